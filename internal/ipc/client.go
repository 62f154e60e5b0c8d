package ipc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/capturist/capturist/internal/surface"
)

// ErrNotRunning means no application instance is listening on the address.
var ErrNotRunning = errors.New("capturist is not running")

// StatusError is a non-2xx response from the server.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("request failed with status %d", e.StatusCode)
	}
	return fmt.Sprintf("%s (status %d)", e.Message, e.StatusCode)
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.http = hc
	}
}

// Client calls a running instance's loopback server.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a client for the server listening on address (host:port).
func NewClient(address string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: "http://" + address,
		http: &http.Client{
			// Deep link requests wait for the token exchange.
			Timeout: 2 * time.Minute,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// StartLogin starts a login and returns the authorization URL.
func (c *Client) StartLogin(ctx context.Context) (string, error) {
	var resp AuthStartResponse
	if err := c.do(ctx, http.MethodPost, PathAuthStart, struct{}{}, &resp); err != nil {
		return "", err
	}
	return resp.AuthorizationURL, nil
}

// Token returns the stored access token, reporting false when nobody is logged in.
func (c *Client) Token(ctx context.Context) (string, bool, error) {
	var resp TokenResponse
	err := c.do(ctx, http.MethodGet, PathAuthToken, nil, &resp)
	var statusErr *StatusError
	if errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusNotFound {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return resp.Token, true, nil
}

// Status returns the login status.
func (c *Client) Status(ctx context.Context) (StatusResponse, error) {
	var resp StatusResponse
	err := c.do(ctx, http.MethodGet, PathAuthStatus, nil, &resp)
	return resp, err
}

// LogOut logs the user out.
func (c *Client) LogOut(ctx context.Context) (StatusResponse, error) {
	var resp StatusResponse
	err := c.do(ctx, http.MethodPost, PathAuthLogout, struct{}{}, &resp)
	return resp, err
}

// OpenLink forwards a deep link and waits for its handler to finish.
func (c *Client) OpenLink(ctx context.Context, link string) (StatusResponse, error) {
	var resp StatusResponse
	err := c.do(ctx, http.MethodPost, PathDeepLink, DeepLinkRequest{URL: link}, &resp)
	return resp, err
}

// QuickAdd raises the quick-add window.
func (c *Client) QuickAdd(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, PathQuickAdd, struct{}{}, nil)
}

// SetAutostart changes the autostart preference and returns the applied value.
func (c *Client) SetAutostart(ctx context.Context, enabled bool) (bool, error) {
	var resp AutostartResponse
	if err := c.do(ctx, http.MethodPost, PathAutostart, AutostartRequest{Enabled: enabled}, &resp); err != nil {
		return false, err
	}
	return resp.Enabled, nil
}

// Surfaces returns a snapshot of the windows and the tray menu.
func (c *Client) Surfaces(ctx context.Context) (SurfacesResponse, error) {
	var resp SurfacesResponse
	err := c.do(ctx, http.MethodGet, PathSurfaces, nil, &resp)
	return resp, err
}

// ClickTray activates a tray menu item.
func (c *Client) ClickTray(ctx context.Context, id surface.MenuID) error {
	return c.do(ctx, http.MethodPost, PathTrayClick, TrayClickRequest{ID: id}, nil)
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		var opErr *net.OpError
		if errors.As(err, &opErr) && opErr.Op == "dial" {
			return fmt.Errorf("%w: %w", ErrNotRunning, err)
		}
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var errResp ErrorResponse
		_ = json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(&errResp)
		return &StatusError{StatusCode: resp.StatusCode, Message: errResp.Error}
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}
