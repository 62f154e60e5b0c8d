package credstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/capturist/capturist/internal/settings"
)

// TieredStore stores secrets in a secure tier and falls back to a plain tier
// when the secure tier fails. Each operation is atomic from the caller's perspective.
type TieredStore struct {
	secure   Store
	fallback Store

	allowFallback bool

	mu       sync.Mutex
	degraded atomic.Bool
}

// Compile-time check to ensure TieredStore implements Store
var _ Store = (*TieredStore)(nil)

// TieredOption configures a TieredStore.
type TieredOption func(*TieredStore)

// WithoutFallback disables the plain tier. Secure tier failures then surface as ErrPersistenceFailed.
func WithoutFallback() TieredOption {
	return func(t *TieredStore) {
		t.allowFallback = false
	}
}

// NewTieredStore creates a TieredStore preferring secure over fallback.
func NewTieredStore(secure, fallback Store, opts ...TieredOption) (*TieredStore, error) {
	if secure == nil {
		return nil, fmt.Errorf("missing secure store")
	}
	if fallback == nil {
		return nil, fmt.Errorf("missing fallback store")
	}

	t := &TieredStore{
		secure:        secure,
		fallback:      fallback,
		allowFallback: true,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

// Degraded reports whether the last successful operation on a stored secret
// had to use the plain tier.
func (t *TieredStore) Degraded() bool {
	return t.degraded.Load()
}

// Set writes to the secure tier, or to the plain tier if the secure tier fails.
// A cancelled ctx is returned as is and never counts as a secure tier failure.
// A successful secure write removes any plain copy left by an earlier degraded write.
func (t *TieredStore) Set(ctx context.Context, key settings.Key, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	secureErr := t.secure.Set(ctx, key, value)
	if secureErr == nil {
		t.degraded.Store(false)
		t.dropFallbackCopy(ctx, key)
		return nil
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("writing %s: %w", key, err)
	}

	if !t.allowFallback {
		return fmt.Errorf("%w: writing %s to secure storage: %w", ErrPersistenceFailed, key, secureErr)
	}

	slog.WarnContext(ctx, "secure storage unavailable, storing credential in plain settings",
		"key", key, "error", secureErr)

	if err := t.fallback.Set(ctx, key, value); err != nil {
		return fmt.Errorf("%w: writing %s: %w", ErrPersistenceFailed, key, errors.Join(secureErr, err))
	}

	t.degraded.Store(true)
	return nil
}

// Find reads from the secure tier. A missing secure entry is an authoritative "not found";
// any other secure tier error is retried against the plain tier.
func (t *TieredStore) Find(ctx context.Context, key settings.Key) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	value, found, secureErr := t.secure.Find(ctx, key)
	if secureErr == nil {
		if found {
			t.degraded.Store(false)
		}
		return value, found, nil
	}
	if err := ctx.Err(); err != nil {
		return "", false, fmt.Errorf("reading %s: %w", key, err)
	}

	if !t.allowFallback {
		return "", false, fmt.Errorf("reading %s from secure storage: %w", key, secureErr)
	}

	slog.WarnContext(ctx, "secure storage unavailable, reading credential from plain settings",
		"key", key, "error", secureErr)

	value, found, err := t.fallback.Find(ctx, key)
	if err != nil {
		return "", false, fmt.Errorf("reading %s: %w", key, errors.Join(secureErr, err))
	}
	if found {
		t.degraded.Store(true)
	}
	return value, found, nil
}

// Delete removes the secret from both tiers. Absence in either tier is success.
func (t *TieredStore) Delete(ctx context.Context, key settings.Key) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	secureErr := t.secure.Delete(ctx, key)
	if secureErr == nil {
		t.degraded.Store(false)
		t.dropFallbackCopy(ctx, key)
		return nil
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("deleting %s: %w", key, err)
	}

	if !t.allowFallback {
		t.dropFallbackCopy(ctx, key)
		return fmt.Errorf("%w: deleting %s from secure storage: %w", ErrPersistenceFailed, key, secureErr)
	}

	slog.WarnContext(ctx, "secure storage unavailable, deleting credential from plain settings",
		"key", key, "error", secureErr)

	if err := t.fallback.Delete(ctx, key); err != nil {
		return fmt.Errorf("%w: deleting %s: %w", ErrPersistenceFailed, key, errors.Join(secureErr, err))
	}

	t.degraded.Store(false)
	return nil
}

// dropFallbackCopy removes a plain copy of key. Failures are logged, not returned,
// because the secure tier already holds the authoritative state.
func (t *TieredStore) dropFallbackCopy(ctx context.Context, key settings.Key) {
	if err := t.fallback.Delete(ctx, key); err != nil {
		slog.WarnContext(ctx, "failed to remove plain credential copy", "key", key, "error", err)
	}
}
