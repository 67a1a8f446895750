package sdk

import (
	"context"
	"net/http"
	"net/mail"
	"strings"
)

// LoginInput carries the credentials submitted to /auth/login.
type LoginInput struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// SignupInput carries the profile submitted to /auth/signup.
type SignupInput struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Email    string `json:"email"`
	Name     string `json:"name"`
}

// AuthResult is the validated body of a login, signup or logout response.
type AuthResult struct {
	Success  bool   `json:"success"`
	Username string `json:"username"`
	Error    string `json:"error"`
	Message  string `json:"message"`
}

// AuthStatus is the validated body of a session probe.
type AuthStatus struct {
	Authenticated bool   `json:"authenticated"`
	Username      string `json:"username"`
}

// normalizeUsername mirrors the server: surrounding space is dropped and names are case-insensitive.
func normalizeUsername(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}

// Normalize returns the input as the server will see it.
func (in LoginInput) Normalize() LoginInput {
	return LoginInput{
		Username: normalizeUsername(in.Username),
		Password: strings.TrimSpace(in.Password),
	}
}

// Validate rejects input the server would refuse anyway, without a network round-trip.
func (in LoginInput) Validate() error {
	if in.Username == "" || in.Password == "" {
		return validationError("Username and password are required")
	}
	return nil
}

// Normalize returns the input as the server will see it.
func (in SignupInput) Normalize() SignupInput {
	return SignupInput{
		Username: normalizeUsername(in.Username),
		Password: strings.TrimSpace(in.Password),
		Email:    strings.ToLower(strings.TrimSpace(in.Email)),
		Name:     strings.TrimSpace(in.Name),
	}
}

// Validate rejects input the server would refuse anyway, without a network round-trip.
// Username rules and duplicate checks stay server-side.
func (in SignupInput) Validate() error {
	switch {
	case in.Username == "":
		return validationError("Username is required")
	case in.Password == "":
		return validationError("Password is required")
	case in.Email == "":
		return validationError("Email is required")
	}
	addr, err := mail.ParseAddress(in.Email)
	if err != nil || addr.Address != in.Email {
		return validationError("Invalid email address")
	}
	return nil
}

// Login submits credentials. A rejected login is a KindValidation *Error carrying the
// server's message.
func (c *Client) Login(ctx context.Context, input LoginInput) (*AuthResult, error) {
	input = input.Normalize()
	if err := input.Validate(); err != nil {
		return nil, err
	}
	return c.authCall(ctx, "/auth/login", input, input.Username)
}

// Signup registers a new account and starts a session for it.
func (c *Client) Signup(ctx context.Context, input SignupInput) (*AuthResult, error) {
	input = input.Normalize()
	if err := input.Validate(); err != nil {
		return nil, err
	}
	return c.authCall(ctx, "/auth/signup", input, input.Username)
}

// Logout asks the server to end the session. It does not touch local credentials;
// callers decide what to clear.
func (c *Client) Logout(ctx context.Context) error {
	_, err := c.authCall(ctx, "/auth/logout", nil, "")
	return err
}

// CheckAuth probes whether the attached credential still identifies a user.
func (c *Client) CheckAuth(ctx context.Context) (*AuthStatus, error) {
	body, err := c.roundTrip(ctx, Envelope{Method: http.MethodGet, Path: "/api/check-auth", Public: true})
	if err != nil {
		return nil, err
	}
	var status AuthStatus
	if err := decodeValidated(body, "auth-status.json", &status); err != nil {
		return nil, &Error{Kind: KindServer, StatusCode: http.StatusOK, Message: DefaultErrorMessage, Err: err}
	}
	if status.Authenticated && status.Username == "" {
		status.Authenticated = false
	}
	return &status, nil
}

func (c *Client) authCall(ctx context.Context, path string, payload any, fallbackUser string) (*AuthResult, error) {
	body, err := c.roundTrip(ctx, Envelope{Method: http.MethodPost, Path: path, Body: payload, Public: true})
	if err != nil {
		return nil, err
	}
	var result AuthResult
	if err := decodeValidated(body, "auth-result.json", &result); err != nil {
		return nil, &Error{Kind: KindServer, StatusCode: http.StatusOK, Message: DefaultErrorMessage, Err: err}
	}
	if !result.Success {
		msg := result.Error
		if msg == "" {
			msg = DefaultErrorMessage
		}
		return nil, &Error{Kind: KindValidation, StatusCode: http.StatusOK, Message: msg}
	}
	if result.Username == "" {
		result.Username = fallbackUser
	} else {
		result.Username = normalizeUsername(result.Username)
	}
	return &result, nil
}
