package loginconfig

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)
	t.Setenv("HOME", dir)
	for _, k := range []string{
		"UTSLOGIN_SERVER_BASE_URL", "UTSLOGIN_SERVER_TIMEOUT",
		"UTSLOGIN_LOGIN_EMAIL_DOMAIN", "UTSLOGIN_LOGIN_PASSWORD",
		"UTSLOGIN_TOKEN_PATH", "UTSLOGIN_TOKEN_KEY", "UTSLOGIN_LOG_LEVEL",
	} {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
	return dir
}

func writeConfig(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	dir := isolate(t)

	cfg, err := Load(LoadOptions{SearchPaths: []string{dir}})
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:3000", cfg.Server.BaseURL)
	assert.Equal(t, 10*time.Second, cfg.Server.Timeout)
	assert.Equal(t, "student.uts.edu.au", cfg.Login.EmailDomain)
	assert.Equal(t, "1234", cfg.Login.Password)
	assert.Equal(t, "Main", cfg.Login.Destination)
	assert.Equal(t, "access_token", cfg.Token.Key)
	assert.Equal(t, "tokens.yaml", filepath.Base(cfg.Token.Path))
	assert.True(t, cfg.UsesPlaceholderPassword())
}

func TestLoadFromFile(t *testing.T) {
	dir := isolate(t)
	path := writeConfig(t, dir, `
server:
  base_url: https://login.example.edu/
  timeout: 3s
login:
  email_domain: "@example.edu"
  password: s3cret
token:
  path: /tmp/tokens.yaml
log:
  level: DEBUG
`)

	cfg, err := Load(LoadOptions{ConfigFile: path})
	require.NoError(t, err)

	assert.Equal(t, "https://login.example.edu", cfg.Server.BaseURL)
	assert.Equal(t, 3*time.Second, cfg.Server.Timeout)
	assert.Equal(t, "example.edu", cfg.Login.EmailDomain)
	assert.Equal(t, "/tmp/tokens.yaml", cfg.Token.Path)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.False(t, cfg.UsesPlaceholderPassword())
}

func TestEnvOverridesFile(t *testing.T) {
	dir := isolate(t)
	path := writeConfig(t, dir, "server:\n  base_url: https://file.example.edu\n")
	t.Setenv("UTSLOGIN_SERVER_BASE_URL", "https://env.example.edu")

	cfg, err := Load(LoadOptions{ConfigFile: path})
	require.NoError(t, err)
	assert.Equal(t, "https://env.example.edu", cfg.Server.BaseURL)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	dir := isolate(t)

	_, err := Load(LoadOptions{ConfigFile: filepath.Join(dir, "nope.yaml")})
	require.Error(t, err)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	dir := isolate(t)

	tests := map[string]string{
		"bad url":    "server:\n  base_url: not a url\n",
		"bad level":  "log:\n  level: loud\n",
		"no key":     "token:\n  key: \"\"\n",
		"bad domain": "login:\n  email_domain: \"not a domain\"\n",
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			path := writeConfig(t, dir, body)
			_, err := Load(LoadOptions{ConfigFile: path})
			require.Error(t, err)
			assert.Contains(t, err.Error(), "config: invalid")
		})
	}
}

func TestDefaultIsValid(t *testing.T) {
	isolate(t)
	require.NoError(t, Default().Validate())
}
