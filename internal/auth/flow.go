package auth

import (
	"context"
	"crypto/subtle"
	"fmt"
	"log/slog"
	"net/url"

	"github.com/capturist/capturist/internal/credstore"
	"github.com/capturist/capturist/internal/events"
	"github.com/capturist/capturist/internal/settings"
	"github.com/capturist/capturist/internal/todoist"
)

// Browser opens a URL in the user's default browser.
type Browser interface {
	OpenURL(url string) error
}

// BrowserFunc adapts a function to Browser.
type BrowserFunc func(url string) error

// OpenURL calls f(url).
func (f BrowserFunc) OpenURL(url string) error {
	return f(url)
}

// Authorizer builds authorization URLs and exchanges codes for access tokens.
type Authorizer interface {
	AuthorizationURL(state string) string
	Exchange(ctx context.Context, code string) (string, error)
}

// Compile-time check that the Todoist client satisfies Authorizer
var _ Authorizer = (*todoist.Client)(nil)

// FlowOption configures a Flow.
type FlowOption func(*Flow)

// WithBrowser sets the launcher used by StartLogin. Without one the URL is only returned.
func WithBrowser(b Browser) FlowOption {
	return func(f *Flow) {
		f.browser = b
	}
}

// Flow drives the authorization-code grant: start, callback validation, token
// exchange, persistence and the resulting Authentication event.
type Flow struct {
	state      *State
	authorizer Authorizer
	store      credstore.Store
	bus        *events.Bus
	browser    Browser
	newNonce   func() (string, error)
}

// NewFlow creates a Flow. state must already be attached to bus.
func NewFlow(state *State, authorizer Authorizer, store credstore.Store, bus *events.Bus, opts ...FlowOption) (*Flow, error) {
	if state == nil {
		return nil, fmt.Errorf("missing auth state")
	}
	if authorizer == nil {
		return nil, fmt.Errorf("missing authorizer")
	}
	if store == nil {
		return nil, fmt.Errorf("missing credential store")
	}
	if bus == nil {
		return nil, fmt.Errorf("missing event bus")
	}

	f := &Flow{
		state:      state,
		authorizer: authorizer,
		store:      store,
		bus:        bus,
		newNonce:   todoist.NewState,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f, nil
}

// StartLogin generates a fresh nonce, replacing any pending one, and returns the
// authorization URL. The browser is launched in the background; a launch failure is
// only logged since the caller can still show the URL.
func (f *Flow) StartLogin(ctx context.Context) (string, error) {
	nonce, err := f.newNonce()
	if err != nil {
		return "", fmt.Errorf("generating oauth state: %w", err)
	}
	f.state.beginFlow(nonce)

	authURL := f.authorizer.AuthorizationURL(nonce)
	slog.InfoContext(ctx, "login started", "state_length", len(nonce))

	if f.browser != nil {
		logCtx := context.WithoutCancel(ctx)
		go func() {
			if err := f.browser.OpenURL(authURL); err != nil {
				slog.WarnContext(logCtx, "failed to open browser", "error", err)
			}
		}()
	}

	return authURL, nil
}

// CompleteLogin validates the OAuth callback against the pending nonce, exchanges the
// code, stores the token and publishes Authentication{true}. A failure leaves the
// user logged out and the pending nonce in place.
func (f *Flow) CompleteLogin(ctx context.Context, callback *url.URL) error {
	code, state, err := parseCallback(callback)
	if err != nil {
		slog.ErrorContext(ctx, "rejected oauth callback", "error", err)
		return err
	}

	pending, hasPending := f.state.PendingCSRF()
	// An empty pending nonce must never match, whatever the callback carries.
	if pending == "" || subtle.ConstantTimeCompare([]byte(state), []byte(pending)) != 1 {
		slog.ErrorContext(ctx, "oauth state mismatch, possible CSRF attempt",
			"has_pending", hasPending, "state_length", len(state))
		return ErrCSRFMismatch
	}

	token, err := f.authorizer.Exchange(ctx, code)
	if err != nil {
		slog.ErrorContext(ctx, "token exchange failed", "error", err)
		return fmt.Errorf("%w: %w", ErrTokenExchangeFailed, err)
	}

	if err := f.store.Set(ctx, settings.KeyTodoistToken, token); err != nil {
		slog.ErrorContext(ctx, "failed to store access token", "error", err)
		return fmt.Errorf("storing access token: %w", err)
	}

	// Published only after the store committed, so subscribers can rely on it.
	f.bus.Publish(ctx, events.Authentication{Authenticated: true})
	slog.InfoContext(ctx, "login completed")
	return nil
}

// LogOut removes the stored token and publishes Authentication{false}.
// Logging out without a stored token succeeds.
func (f *Flow) LogOut(ctx context.Context) error {
	if err := f.store.Delete(ctx, settings.KeyTodoistToken); err != nil {
		slog.ErrorContext(ctx, "failed to delete access token", "error", err)
		return fmt.Errorf("deleting access token: %w", err)
	}

	f.bus.Publish(ctx, events.Authentication{Authenticated: false})
	slog.InfoContext(ctx, "logged out")
	return nil
}

// Token returns the stored access token. Reports false when the user never logged in.
func (f *Flow) Token(ctx context.Context) (string, bool, error) {
	return f.store.Find(ctx, settings.KeyTodoistToken)
}

// parseCallback extracts code and state from the callback's query string.
func parseCallback(callback *url.URL) (code, state string, err error) {
	if callback == nil || callback.RawQuery == "" {
		return "", "", fmt.Errorf("%w: missing query parameters", ErrInvalidCallback)
	}

	query, err := url.ParseQuery(callback.RawQuery)
	if err != nil {
		return "", "", fmt.Errorf("%w: %w", ErrInvalidCallback, err)
	}

	// Todoist reports a denied authorization as ?error=access_denied&state=...
	if reason := query.Get("error"); reason != "" {
		return "", "", fmt.Errorf("%w: authorization denied: %s", ErrInvalidCallback, reason)
	}

	code, state = query.Get("code"), query.Get("state")
	if code == "" {
		return "", "", fmt.Errorf("%w: missing code", ErrInvalidCallback)
	}
	if state == "" {
		return "", "", fmt.Errorf("%w: missing state", ErrInvalidCallback)
	}

	return code, state, nil
}
