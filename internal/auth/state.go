package auth

import (
	"context"
	"log/slog"
	"sync"

	"github.com/capturist/capturist/internal/events"
)

// State is the single source of truth for whether the user is logged in, plus the
// CSRF nonce of the login flow in progress.
//
// The authenticated flag changes only through the Authentication subscriber
// registered by Attach; UI code reads it, never writes it.
type State struct {
	mu            sync.Mutex
	authenticated bool
	pendingCSRF   *string
}

// NewState creates a State with the authentication status found at startup.
func NewState(authenticated bool) *State {
	return &State{authenticated: authenticated}
}

// Authenticated reports whether the user is logged in.
func (s *State) Authenticated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.authenticated
}

// PendingCSRF returns the nonce of the login flow in progress, if any.
func (s *State) PendingCSRF() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pendingCSRF == nil {
		return "", false
	}
	return *s.pendingCSRF, true
}

// beginFlow records nonce as the only valid state parameter, invalidating any earlier one.
func (s *State) beginFlow(nonce string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pendingCSRF = &nonce
}

// Attach subscribes the State to authentication events. It runs ahead of every
// other Authentication subscriber so they observe the updated State.
func (s *State) Attach(bus *events.Bus) (unsubscribe func()) {
	return events.Subscribe(bus, "auth-state", s.onAuthentication, events.WithPriority(events.PriorityState))
}

func (s *State) onAuthentication(ctx context.Context, e events.Authentication) error {
	s.mu.Lock()
	s.authenticated = e.Authenticated
	s.pendingCSRF = nil
	s.mu.Unlock()

	slog.InfoContext(ctx, "authentication state changed", "authenticated", e.Authenticated)
	return nil
}
