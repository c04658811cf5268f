// Package loginconfig loads utslogin settings from config.yaml, the
// environment (UTSLOGIN_*) and built-in defaults.
package loginconfig

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	utslogin "github.com/unimate/utslogin"
)

const (
	// PlaceholderPassword is the fixed credential the backend currently
	// expects alongside the one-time code.
	PlaceholderPassword = "1234"

	// DefaultEmailDomain is appended to the student ID.
	DefaultEmailDomain = "student.uts.edu.au"

	// DefaultTokenKey is the secure storage slot for the access token.
	DefaultTokenKey = "access_token"

	// DefaultDestination is the screen shown after a successful login.
	DefaultDestination = "Main"

	envPrefix = "UTSLOGIN"
)

// Config represents the runtime configuration of the login client.
type Config struct {
	Server ServerConfig `mapstructure:"server"`
	Login  LoginConfig  `mapstructure:"login"`
	Token  TokenConfig  `mapstructure:"token"`
	Log    LogConfig    `mapstructure:"log"`
}

// ServerConfig points at the login backend.
type ServerConfig struct {
	BaseURL string        `mapstructure:"base_url" validate:"required,url"`
	Timeout time.Duration `mapstructure:"timeout" validate:"gt=0"`
}

// LoginConfig controls how the verification flow builds its requests.
type LoginConfig struct {
	EmailDomain string `mapstructure:"email_domain" validate:"required,fqdn"`
	// TODO: drop once /login/verify stops requiring a password for code logins.
	Password    string `mapstructure:"password" validate:"required"`
	Destination string `mapstructure:"destination" validate:"required"`
}

// TokenConfig locates the secure token store.
type TokenConfig struct {
	Path string `mapstructure:"path" validate:"required"`
	Key  string `mapstructure:"key" validate:"required"`
}

// LogConfig sets the zap level.
type LogConfig struct {
	Level string `mapstructure:"level" validate:"oneof=debug info warn error"`
}

// LoadOptions selects where configuration is read from.
type LoadOptions struct {
	// ConfigFile, when set, must exist.
	ConfigFile string
	// SearchPaths are scanned for config.yaml when ConfigFile is empty.
	SearchPaths []string
}

// UsesPlaceholderPassword reports whether the verify call still sends the
// built-in placeholder credential.
func (c *Config) UsesPlaceholderPassword() bool {
	return c.Login.Password == PlaceholderPassword
}

// DefaultConfigDir returns $XDG_CONFIG_HOME/utslogin (or the platform
// equivalent).
func DefaultConfigDir() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("config: locate user config dir: %w", err)
	}
	return filepath.Join(base, "utslogin"), nil
}

// Load reads configuration with defaults, file and env overrides, then
// validates the result.
func Load(opts LoadOptions) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	configDir, dirErr := DefaultConfigDir()
	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		for _, p := range opts.SearchPaths {
			v.AddConfigPath(p)
		}
		if dirErr == nil {
			v.AddConfigPath(configDir)
		}
	}

	tokenPath := filepath.Join(".utslogin", "tokens.yaml")
	if dirErr == nil {
		tokenPath = filepath.Join(configDir, "tokens.yaml")
	}
	setDefaults(v, tokenPath)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if opts.ConfigFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("config: read file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the built-in configuration without touching the
// filesystem or environment.
func Default() *Config {
	cfg := &Config{
		Server: ServerConfig{BaseURL: utslogin.DefaultBaseURL, Timeout: utslogin.DefaultTimeout},
		Login: LoginConfig{
			EmailDomain: DefaultEmailDomain,
			Password:    PlaceholderPassword,
			Destination: DefaultDestination,
		},
		Token: TokenConfig{Path: filepath.Join(".utslogin", "tokens.yaml"), Key: DefaultTokenKey},
		Log:   LogConfig{Level: "warn"},
	}
	if dir, err := DefaultConfigDir(); err == nil {
		cfg.Token.Path = filepath.Join(dir, "tokens.yaml")
	}
	return cfg
}

// Validate checks field constraints.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("config: invalid %s (%s)", fe.Namespace(), fe.Tag())
		}
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

func (c *Config) normalize() {
	c.Server.BaseURL = strings.TrimSuffix(strings.TrimSpace(c.Server.BaseURL), "/")
	c.Login.EmailDomain = strings.TrimPrefix(strings.TrimSpace(c.Login.EmailDomain), "@")
	c.Log.Level = strings.ToLower(strings.TrimSpace(c.Log.Level))
}

func setDefaults(v *viper.Viper, tokenPath string) {
	v.SetDefault("server.base_url", utslogin.DefaultBaseURL)
	v.SetDefault("server.timeout", utslogin.DefaultTimeout.String())

	v.SetDefault("login.email_domain", DefaultEmailDomain)
	v.SetDefault("login.password", PlaceholderPassword)
	v.SetDefault("login.destination", DefaultDestination)

	v.SetDefault("token.path", tokenPath)
	v.SetDefault("token.key", DefaultTokenKey)

	v.SetDefault("log.level", "warn")
}
