package utslogin

import "context"

// SignupRequest is sent to POST /login/signup.
//
// The backend mails a one-time code to Email. It does not require a token.
type SignupRequest struct {
	Email string `json:"email"`
}

// SignupResponse is returned by POST /login/signup. The body must be JSON
// but may be any JSON value.
type SignupResponse struct {
	Body any
}

// Field returns the named field when the body is a JSON object.
func (r SignupResponse) Field(name string) (any, bool) {
	obj, ok := r.Body.(map[string]any)
	if !ok {
		return nil, false
	}
	v, ok := obj[name]
	return v, ok
}

// RequestCode asks the backend to issue a one-time code for req.Email.
func (c *Client) RequestCode(ctx context.Context, req *SignupRequest) (SignupResponse, error) {
	var out SignupResponse
	if err := c.postJSON(ctx, "/login/signup", req, &out.Body); err != nil {
		return SignupResponse{}, err
	}
	return out, nil
}
