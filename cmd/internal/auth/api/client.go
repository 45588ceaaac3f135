package authapi

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"fleetdash/cmd/internal/auth/session"

	"github.com/google/uuid"
)

// Auth endpoint paths, relative to the base URL.
const (
	PathLogin         = "/api/auth/login"
	PathLoginPassword = "/api/auth/login/password"
	PathRegister      = "/api/auth/register"
	PathRefresh       = "/api/auth/refresh"
	PathLogout        = "/api/auth/logout"
)

// RequestIDHeader carries a per-request id the backend echoes in its logs.
const RequestIDHeader = "X-Request-ID"

// Client talks to the backend REST API.
type Client struct {
	log  *slog.Logger
	cfg  Config
	http *http.Client
}

var _ session.Gateway = (*Client)(nil)

// ClientOption configures optional client dependencies.
type ClientOption func(*Client)

// WithHTTPClient overrides the underlying http.Client (tests, custom transports).
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		if c == nil || hc == nil {
			return
		}
		c.http = hc
	}
}

// WithLogger overrides the default logger.
func WithLogger(log *slog.Logger) ClientOption {
	return func(c *Client) {
		if c == nil || log == nil {
			return
		}
		c.log = log
	}
}

// NewClient constructs a Client for cfg.BaseURL.
func NewClient(cfg Config, opts ...ClientOption) (*Client, error) {
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 4 << 20
	}

	c := &Client{
		log:  slog.Default(),
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(c)
	}
	return c, nil
}

// BaseURL returns the normalized deployment origin.
func (c *Client) BaseURL() string { return c.cfg.BaseURL }

// Login exchanges a Telegram login-widget proof for a token pair.
func (c *Client) Login(ctx context.Context, proof session.TelegramProof) (session.TokenPair, error) {
	var out session.TokenPair
	err := c.do(ctx, http.MethodPost, PathLogin, "", proof, &out)
	return out, err
}

// LoginWithPassword exchanges username/password for a token pair.
func (c *Client) LoginWithPassword(ctx context.Context, creds session.PasswordCredentials) (session.TokenPair, error) {
	var out session.TokenPair
	err := c.do(ctx, http.MethodPost, PathLoginPassword, "", creds, &out)
	return out, err
}

// Register creates a password account and returns its first token pair.
func (c *Client) Register(ctx context.Context, req session.RegisterRequest) (session.TokenPair, error) {
	var out session.TokenPair
	err := c.do(ctx, http.MethodPost, PathRegister, "", req, &out)
	return out, err
}

// Refresh exchanges a refresh token for a new pair.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (session.TokenPair, error) {
	var out session.TokenPair
	err := c.do(ctx, http.MethodPost, PathRefresh, "", refreshRequest{RefreshToken: refreshToken}, &out)
	return out, err
}

// Logout revokes the session server-side. The response body is ignored.
func (c *Client) Logout(ctx context.Context, accessToken string) error {
	return c.do(ctx, http.MethodPost, PathLogout, accessToken, nil, nil)
}

// GetJSON GETs path and decodes the JSON response into dst. Authorization
// comes from the http.Client's transport (see NewTransport).
func (c *Client) GetJSON(ctx context.Context, path string, dst any) error {
	return c.do(ctx, http.MethodGet, path, "", nil, dst)
}

func (c *Client) do(ctx context.Context, method, path, bearer string, body, dst any) error {
	var rdr io.Reader
	if body != nil {
		r, err := encodeJSON(body)
		if err != nil {
			return err
		}
		rdr = r
	}

	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, rdr)
	if err != nil {
		return err
	}
	reqID := uuid.NewString()
	req.Header.Set(RequestIDHeader, reqID)
	req.Header.Set("Accept", "application/json")
	if c.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", c.cfg.UserAgent)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Debug("api.request.fail",
			"method", method,
			"path", path,
			"request_id", reqID,
			"err", err,
		)
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	c.log.Debug("api.request",
		"method", method,
		"path", path,
		"status", resp.StatusCode,
		"request_id", reqID,
		"dur_ms", time.Since(start).Milliseconds(),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, c.cfg.MaxBodyBytes))
		return &Error{
			Status:  resp.StatusCode,
			Method:  method,
			Path:    path,
			Message: errorMessage(resp.StatusCode, raw),
		}
	}

	if dst == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, c.cfg.MaxBodyBytes))
		return nil
	}
	return decodeJSON(resp.Body, c.cfg.MaxBodyBytes, dst)
}
