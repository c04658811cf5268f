package utslogin

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
)

// ErrMissingToken is returned when a successful verify response carries no
// usable authorization header.
var ErrMissingToken = errors.New("utslogin: verify response has no authorization token")

// VerifyRequest is sent to POST /login/verify.
type VerifyRequest struct {
	Email            string `json:"email"`
	VerificationCode string `json:"verificationCode"`
	Password         string `json:"password"`
}

// VerifyResponse holds the credential returned in the authorization header.
type VerifyResponse struct {
	Scheme string
	Token  string
}

// VerifyCode submits the one-time code. Any 2xx status is success; the
// body is ignored either way.
func (c *Client) VerifyCode(ctx context.Context, req *VerifyRequest) (*VerifyResponse, error) {
	resp, err := c.doRaw(ctx, http.MethodPost, "/login/verify", req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &apiError{StatusCode: resp.StatusCode, Body: string(data)}
	}
	scheme, token, ok := splitAuthorization(resp.Header.Get("Authorization"))
	if !ok {
		return nil, ErrMissingToken
	}
	return &VerifyResponse{Scheme: scheme, Token: token}, nil
}

// splitAuthorization splits "<scheme> <token>" at the first space.
func splitAuthorization(v string) (scheme, token string, ok bool) {
	scheme, token, found := strings.Cut(strings.TrimSpace(v), " ")
	if !found || token == "" {
		return "", "", false
	}
	return scheme, token, true
}
