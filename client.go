package utslogin

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	// DefaultTimeout is the default HTTP timeout used by the client.
	DefaultTimeout = 10 * time.Second

	// DefaultBaseURL is the backend address used when none is configured.
	DefaultBaseURL = "http://localhost:3000"

	maxResponseSize = 1 * 1024 * 1024
)

// Client talks to the login backend.
//
// It is used by the flow package and by the one-shot CLI commands.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New creates a new client with the default timeout.
func New(baseURL string) (*Client, error) {
	return NewWithHTTPClient(baseURL, &http.Client{Timeout: DefaultTimeout})
}

// NewWithHTTPClient creates a client that sends requests through hc.
func NewWithHTTPClient(baseURL string, hc *http.Client) (*Client, error) {
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		return nil, fmt.Errorf("empty base url")
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, err
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid base url %q", baseURL)
	}
	if hc == nil {
		hc = &http.Client{Timeout: DefaultTimeout}
	}
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: hc,
	}, nil
}

// BaseURL returns the normalized backend address.
func (c *Client) BaseURL() string { return c.baseURL }

type apiError struct {
	StatusCode int
	Body       string
	Message    string
}

func (e *apiError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("utslogin: http %d: %s", e.StatusCode, e.Message)
	}
	if e.Body == "" {
		return fmt.Sprintf("utslogin: http %d", e.StatusCode)
	}
	return fmt.Sprintf("utslogin: http %d: %s", e.StatusCode, e.Body)
}

// HTTPStatusCode returns the HTTP status code for API errors.
func HTTPStatusCode(err error) (int, bool) {
	var e *apiError
	if !errors.As(err, &e) {
		return 0, false
	}
	return e.StatusCode, true
}

// HTTPErrorBody returns the response body for API errors.
func HTTPErrorBody(err error) (string, bool) {
	var e *apiError
	if !errors.As(err, &e) {
		return "", false
	}
	return e.Body, true
}

// ServerMessage returns the "message" field the server attached to a
// failed response, if any.
func ServerMessage(err error) (string, bool) {
	var e *apiError
	if !errors.As(err, &e) || e.Message == "" {
		return "", false
	}
	return e.Message, true
}

// ResponseFormatError reports a response body that is not JSON.
type ResponseFormatError struct {
	StatusCode int
	Body       string
	Err        error
}

func (e *ResponseFormatError) Error() string {
	return fmt.Sprintf("utslogin: http %d: response is not json: %v", e.StatusCode, e.Err)
}

func (e *ResponseFormatError) Unwrap() error { return e.Err }

// IsResponseFormat reports whether err is a *ResponseFormatError.
func IsResponseFormat(err error) bool {
	var e *ResponseFormatError
	return errors.As(err, &e)
}

// errorBody is the shape of a failure payload.
type errorBody struct {
	Message string `json:"message"`
}

func (c *Client) post(ctx context.Context, path string, in any) (*http.Response, []byte, error) {
	resp, err := c.doRaw(ctx, http.MethodPost, path, in)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, nil, err
	}
	return resp, data, nil
}

// postJSON posts in and decodes the response into out. The body must be
// JSON regardless of status, matching what the backend always sends. A
// failure's "message" is read only when the body is an object.
func (c *Client) postJSON(ctx context.Context, path string, in any, out any) error {
	resp, data, err := c.post(ctx, path, in)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, out); err != nil {
		return &ResponseFormatError{StatusCode: resp.StatusCode, Body: string(data), Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &apiError{StatusCode: resp.StatusCode, Body: string(data)}
		var eb errorBody
		if json.Unmarshal(data, &eb) == nil {
			apiErr.Message = strings.TrimSpace(eb.Message)
		}
		return apiErr
	}
	return nil
}

func (c *Client) doRaw(ctx context.Context, method, path string, in any) (*http.Response, error) {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return nil, err
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	return c.httpClient.Do(req)
}
