package credstore

import (
	"context"
	"fmt"

	"github.com/capturist/capturist/internal/settings"
)

// SettingsStore keeps secrets as plain strings in the settings document.
// Only file permissions protect them.
type SettingsStore struct {
	settings *settings.Store
}

// Compile-time check to ensure SettingsStore implements Store
var _ Store = (*SettingsStore)(nil)

// NewSettingsStore creates a SettingsStore on top of the given settings document.
func NewSettingsStore(s *settings.Store) (*SettingsStore, error) {
	if s == nil {
		return nil, fmt.Errorf("missing settings store")
	}
	return &SettingsStore{settings: s}, nil
}

// Set writes the value into the settings document.
func (s *SettingsStore) Set(ctx context.Context, key settings.Key, value string) error {
	return s.settings.Set(ctx, key, value)
}

// Find reads the value from the settings document. Empty values count as absent.
func (s *SettingsStore) Find(ctx context.Context, key settings.Key) (string, bool, error) {
	var value string
	found, err := s.settings.Get(ctx, key, &value)
	if err != nil {
		return "", false, err
	}
	if !found || value == "" {
		return "", false, nil
	}
	return value, true, nil
}

// Delete removes the value from the settings document.
func (s *SettingsStore) Delete(ctx context.Context, key settings.Key) error {
	return s.settings.Delete(ctx, key)
}
