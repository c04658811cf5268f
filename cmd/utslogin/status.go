package main

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/spf13/cobra"

	"github.com/unimate/utslogin/tokenstore"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show whether an access token is stored for the server",
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

type statusOutput struct {
	Server     string `json:"server"`
	SignedIn   bool   `json:"signed_in"`
	StoredAt   string `json:"stored_at,omitempty"`
	TokenType  string `json:"token_type,omitempty"`
	Subject    string `json:"subject,omitempty"`
	ExpiresAt  string `json:"expires_at,omitempty"`
	Expired    bool   `json:"expired,omitempty"`
	TokenStore string `json:"token_store"`
}

func runStatus(cmd *cobra.Command, args []string) error {
	client, store := mustResolve()

	out, err := tokenStatus(store, appConfig.Token.Key, time.Now())
	if err != nil {
		fatal(err)
	}
	out.Server = client.BaseURL()
	printJSON(out)
	return nil
}

func tokenStatus(store *tokenstore.Store, key string, now time.Time) (*statusOutput, error) {
	out := &statusOutput{TokenStore: store.Path()}
	entry, err := store.Get(key)
	if errors.Is(err, tokenstore.ErrNotFound) {
		return out, nil
	}
	if err != nil {
		return nil, err
	}
	out.SignedIn = true
	out.StoredAt = entry.UpdatedAt
	describeToken(out, entry.Value, now)
	return out, nil
}

// describeToken fills in JWT claims when the token is a JWT. The signature
// is not checked; the backend remains the authority on validity.
func describeToken(out *statusOutput, token string, now time.Time) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		out.TokenType = "opaque"
		return
	}
	out.TokenType = "jwt"
	if sub, err := claims.GetSubject(); err == nil {
		out.Subject = sub
	}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		out.ExpiresAt = exp.UTC().Format(time.RFC3339)
		out.Expired = now.After(exp.Time)
	}
}
