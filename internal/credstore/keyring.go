package credstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/zalando/go-keyring"

	"github.com/capturist/capturist/internal/settings"
)

// KeyringStore provides OS-native secure credential storage.
// Uses macOS Keychain, Windows Credential Manager, or Linux Secret Service.
// Entries are addressed by a fixed service name and the key as account.
type KeyringStore struct {
	service string
}

// Compile-time check to ensure KeyringStore implements Store
var _ Store = (*KeyringStore)(nil)

// NewKeyringStore creates a KeyringStore for the OS-native credential storage
// using the given service identifier.
func NewKeyringStore(service string) (*KeyringStore, error) {
	if service == "" {
		return nil, fmt.Errorf("service cannot be empty")
	}

	return &KeyringStore{
		service: service,
	}, nil
}

// Set persists the value to the system keyring, overwriting any existing value.
func (k *KeyringStore) Set(ctx context.Context, key settings.Key, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return keyring.Set(k.service, key.String(), value)
}

// Find returns the value from the system keyring. A missing entry is reported as not found.
func (k *KeyringStore) Find(ctx context.Context, key settings.Key) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}

	value, err := keyring.Get(k.service, key.String())
	if errors.Is(err, keyring.ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}

	return value, true, nil
}

// Delete removes the entry from the system keyring. A missing entry is not an error.
func (k *KeyringStore) Delete(ctx context.Context, key settings.Key) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	err := keyring.Delete(k.service, key.String())
	if errors.Is(err, keyring.ErrNotFound) {
		return nil
	}
	return err
}
