package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"golang.org/x/term"

	utslogin "github.com/unimate/utslogin"
	"github.com/unimate/utslogin/flow"
	"github.com/unimate/utslogin/loginconfig"
	"github.com/unimate/utslogin/tokenstore"
)

func loadDotenvBestEffort() {
	// Best effort: load from current working directory.
	_ = godotenv.Load()
	_ = godotenv.Overload(".env.utslogin")
}

func loadConfig() (*loginconfig.Config, error) {
	opts := loginconfig.LoadOptions{ConfigFile: strings.TrimSpace(configFlag)}
	cfg, err := loginconfig.Load(opts)
	if err != nil {
		return nil, err
	}
	if v := strings.TrimSpace(serverFlag); v != "" {
		cfg.Server.BaseURL = strings.TrimSuffix(v, "/")
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// resolve builds the backend client and token store for cfg.
func resolve(cfg *loginconfig.Config) (*utslogin.Client, *tokenstore.Store, error) {
	client, err := utslogin.NewWithHTTPClient(cfg.Server.BaseURL, &http.Client{Timeout: cfg.Server.Timeout})
	if err != nil {
		return nil, nil, fmt.Errorf("invalid base URL: %w", err)
	}
	store, err := tokenstore.Open(cfg.Token.Path, client.BaseURL())
	if err != nil {
		return nil, nil, err
	}
	return client, store, nil
}

func mustResolve() (*utslogin.Client, *tokenstore.Store) {
	client, store, err := resolve(appConfig)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	return client, store
}

// newFlow wires a flow with the configured login settings.
func newFlow(cfg *loginconfig.Config, api flow.API, store flow.TokenStore, nav flow.Navigator, opts ...flow.Option) *flow.Flow {
	base := []flow.Option{
		flow.WithEmailDomain(cfg.Login.EmailDomain),
		flow.WithPassword(cfg.Login.Password),
		flow.WithTokenKey(cfg.Token.Key),
		flow.WithDestination(cfg.Login.Destination),
	}
	return flow.New(api, store, nav, append(base, opts...)...)
}

func isTTY() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}

func printJSON(v any) {
	data, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(data))
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, err.Error())
	os.Exit(1)
}
