// Package hosted is the auth backend for a hosted identity service speaking
// the GoTrue (/auth/v1) and PostgREST (/rest/v1) REST APIs. Tokens issued
// by the service are kept per client in Redis and treated as opaque.
package hosted

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/keyxmakerx/tailormade/internal/plugins/auth"
)

// maxErrorBody caps how much of an error response is read.
const maxErrorBody = 64 << 10

// Config holds hosted service settings.
type Config struct {
	// BaseURL is the project URL, e.g. https://abc.example.co (required).
	BaseURL string
	// AnonKey is the public API key sent with every request (required).
	AnonKey string
	// ServiceKey, when set, is used for profile reads and writes that have
	// no signed-in user token, such as a sign-up awaiting confirmation.
	ServiceKey string
	// Timeout bounds each HTTP request (default: 10s).
	Timeout time.Duration
}

// Client is a thin REST client for the hosted service.
type Client struct {
	baseURL    string
	anonKey    string
	serviceKey string
	httpClient *http.Client
}

// NewClient creates a client with the provided configuration.
func NewClient(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("hosted auth URL is required")
	}
	if cfg.AnonKey == "" {
		return nil, errors.New("hosted auth anon key is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Client{
		baseURL:    cfg.BaseURL,
		anonKey:    cfg.AnonKey,
		serviceKey: cfg.ServiceKey,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

// --- Wire types ---

// apiUser is the user object returned by /auth/v1.
type apiUser struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// tokenResponse is a session as returned by /auth/v1/token and signup.
type tokenResponse struct {
	AccessToken  string   `json:"access_token"`
	RefreshToken string   `json:"refresh_token"`
	ExpiresIn    int64    `json:"expires_in"`
	ExpiresAt    int64    `json:"expires_at"`
	User         *apiUser `json:"user"`
}

// signUpResponse covers both signup shapes: a session when accounts are
// auto-confirmed, a bare user when email confirmation is pending.
type signUpResponse struct {
	tokenResponse
	ID    string `json:"id"`
	Email string `json:"email"`
}

// apiError is the union of the error bodies the service returns.
type apiError struct {
	Msg              string `json:"msg"`
	Message          string `json:"message"`
	ErrorDescription string `json:"error_description"`
	Error            string `json:"error"`
}

func (e apiError) text() string {
	for _, s := range []string{e.Msg, e.Message, e.ErrorDescription, e.Error} {
		if s != "" {
			return s
		}
	}
	return ""
}

// --- Auth endpoints ---

// PasswordGrant exchanges credentials for a session.
func (c *Client) PasswordGrant(ctx context.Context, email, password string) (*tokenResponse, error) {
	var out tokenResponse
	body := map[string]string{"email": email, "password": password}
	if err := c.do(ctx, http.MethodPost, "/auth/v1/token?grant_type=password", "", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// RefreshGrant exchanges a refresh token for a new session.
func (c *Client) RefreshGrant(ctx context.Context, refreshToken string) (*tokenResponse, error) {
	var out tokenResponse
	body := map[string]string{"refresh_token": refreshToken}
	if err := c.do(ctx, http.MethodPost, "/auth/v1/token?grant_type=refresh_token", "", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SignUp creates an identity with user metadata.
func (c *Client) SignUp(ctx context.Context, email, password string, meta auth.Metadata) (*signUpResponse, error) {
	var out signUpResponse
	body := map[string]any{"email": email, "password": password, "data": meta}
	if err := c.do(ctx, http.MethodPost, "/auth/v1/signup", "", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Logout revokes the session behind accessToken.
func (c *Client) Logout(ctx context.Context, accessToken string) error {
	return c.do(ctx, http.MethodPost, "/auth/v1/logout", accessToken, nil, nil)
}

// --- Profile endpoints ---

// FetchProfile reads one profile row as bearer. Zero rows is an error; row
// level security hides rows the bearer may not read.
func (c *Client) FetchProfile(ctx context.Context, bearer, userID string) (*auth.Profile, error) {
	path := "/rest/v1/profiles?select=first_name,last_name&id=eq." + url.QueryEscape(userID)

	var rows []auth.Profile
	if err := c.do(ctx, http.MethodGet, path, bearer, nil, &rows); err != nil {
		return nil, err
	}
	if len(rows) != 1 {
		return nil, fmt.Errorf("profile %s: expected 1 row, got %d", userID, len(rows))
	}
	return &rows[0], nil
}

// UpdateProfile patches the profile row for userID as bearer. The patched
// row is returned so an update that matched nothing is reported.
func (c *Client) UpdateProfile(ctx context.Context, bearer, userID string, update auth.ProfileUpdate) error {
	path := "/rest/v1/profiles?select=id&id=eq." + url.QueryEscape(userID)

	var rows []struct {
		ID string `json:"id"`
	}
	if err := c.do(ctx, http.MethodPatch, path, bearer, update, &rows); err != nil {
		return err
	}
	if len(rows) == 0 {
		return fmt.Errorf("profile %s: update matched no rows", userID)
	}
	return nil
}

// --- Transport ---

// do sends a JSON request. bearer defaults to the anon key. Non-2xx
// responses from /auth become *auth.AuthError; others a plain error.
func (c *Client) do(ctx context.Context, method, path, bearer string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshaling request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	if bearer == "" {
		bearer = c.anonKey
	}
	req.Header.Set("apikey", c.anonKey)
	req.Header.Set("Authorization", "Bearer "+bearer)
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if method == http.MethodPatch {
		req.Header.Set("Prefer", "return=representation")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(resp, req.URL.Path)
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding %s response: %w", req.URL.Path, err)
	}
	return nil
}

func decodeError(resp *http.Response, path string) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	var apiErr apiError
	_ = json.Unmarshal(raw, &apiErr)
	msg := apiErr.text()

	cause := fmt.Errorf("%s: status %d: %s", path, resp.StatusCode, bytes.TrimSpace(raw))

	// Credential errors (4xx on /auth) carry a message safe to show.
	if resp.StatusCode < 500 && len(path) >= 8 && path[:8] == "/auth/v1" {
		return &auth.AuthError{Message: msg, Status: resp.StatusCode, Err: cause}
	}
	return cause
}
