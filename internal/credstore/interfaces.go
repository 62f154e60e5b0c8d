package credstore

import (
	"context"
	"errors"

	"github.com/capturist/capturist/internal/settings"
)

// ErrPersistenceFailed is returned when neither the secure nor the fallback tier
// could complete a write or delete.
var ErrPersistenceFailed = errors.New("credential persistence failed")

// Store reads and writes secrets to persistent storage.
type Store interface {
	// Set persists value under key, overwriting any existing value.
	Set(ctx context.Context, key settings.Key, value string) error

	// Find returns the value stored under key. Reports false, with a nil error,
	// when nothing is stored.
	Find(ctx context.Context, key settings.Key) (string, bool, error)

	// Delete removes the value stored under key. Deleting an absent key succeeds.
	Delete(ctx context.Context, key settings.Key) error
}
