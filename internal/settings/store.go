package settings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"
)

// lockRetryDelay is the pause between attempts to take the cross-process lock.
const lockRetryDelay = 25 * time.Millisecond

// documentPerm is the only mode under which secrets are read back.
const documentPerm fs.FileMode = 0600

// Store is a JSON document of settings keyed by Key, persisted at a single path.
type Store struct {
	path string

	mu   sync.Mutex
	lock *flock.Flock
}

// New creates a Store for the given path, creating parent directories
// with 0700 permissions if they don't exist. The document itself is created on first write.
func New(path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("settings path cannot be empty")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, err
	}

	return &Store{
		path: path,
		lock: flock.New(path + ".lock"),
	}, nil
}

// Path returns the location of the settings document.
func (s *Store) Path() string {
	return s.path
}

// Set stores value under key, replacing any previous value.
func (s *Store) Set(ctx context.Context, key Key, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encoding setting %s: %w", key, err)
	}

	return s.update(ctx, func(doc map[Key]json.RawMessage) bool {
		doc[key] = raw
		return true
	})
}

// Get decodes the value stored under key into out. It reports false when the key
// is absent or the stored value does not decode into out. Secret keys are refused
// while the document is not owner-only; the next write restores its permissions.
func (s *Store) Get(ctx context.Context, key Key, out any) (bool, error) {
	var raw json.RawMessage
	err := s.withLock(ctx, false, func() error {
		doc, perm, err := s.load()
		if err != nil {
			return err
		}
		if perm != 0 && perm != documentPerm {
			if key.Secret() {
				return fmt.Errorf("insecure permissions on %s: %04o (expected %04o)", s.path, perm, documentPerm)
			}
			slog.WarnContext(ctx, "settings readable by other users", "path", s.path, "mode", fmt.Sprintf("%04o", perm))
		}
		raw = doc[key]
		return nil
	})
	if err != nil {
		return false, err
	}
	if raw == nil {
		return false, nil
	}

	if err := json.Unmarshal(raw, out); err != nil {
		slog.DebugContext(ctx, "ignoring undecodable setting", "key", key, "error", err)
		return false, nil
	}
	return true, nil
}

// Delete removes key from the document. Deleting an absent key is not an error.
func (s *Store) Delete(ctx context.Context, key Key) error {
	return s.update(ctx, func(doc map[Key]json.RawMessage) bool {
		if _, ok := doc[key]; !ok {
			return false
		}
		delete(doc, key)
		return true
	})
}

// update applies mutate to the current document and writes it back when mutate reports a change.
func (s *Store) update(ctx context.Context, mutate func(map[Key]json.RawMessage) bool) error {
	return s.withLock(ctx, true, func() error {
		doc, perm, err := s.load()
		if err != nil {
			return err
		}
		if !mutate(doc) {
			if perm != 0 && perm != documentPerm {
				return s.tighten(ctx, perm)
			}
			return nil
		}

		data, err := json.MarshalIndent(doc, "", "  ")
		if err != nil {
			return fmt.Errorf("encoding settings document: %w", err)
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		return writeFileAtomic(s.path, data)
	})
}

// withLock runs fn holding the in-process mutex and the cross-process file lock.
func (s *Store) withLock(ctx context.Context, exclusive bool, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var (
		locked bool
		err    error
	)
	if exclusive {
		locked, err = s.lock.TryLockContext(ctx, lockRetryDelay)
	} else {
		locked, err = s.lock.TryRLockContext(ctx, lockRetryDelay)
	}
	if err != nil {
		return fmt.Errorf("locking settings %s: %w", s.path, err)
	}
	if !locked {
		return fmt.Errorf("settings %s locked by another process", s.path)
	}
	defer func() { _ = s.lock.Unlock() }()

	return fn()
}

// load reads the document and its permission bits. A missing file is an empty
// document with no permissions.
func (s *Store) load() (map[Key]json.RawMessage, fs.FileMode, error) {
	doc := make(map[Key]json.RawMessage)

	info, err := os.Stat(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return doc, 0, nil
	}
	if err != nil {
		return nil, 0, err
	}
	perm := info.Mode().Perm()

	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, 0, err
	}
	if len(data) == 0 {
		return doc, perm, nil
	}

	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, 0, fmt.Errorf("parsing settings %s: %w", s.path, err)
	}
	return doc, perm, nil
}

// tighten restores owner-only permissions on a document loosened by an outside edit.
// Every rewrite does the same through writeFileAtomic.
func (s *Store) tighten(ctx context.Context, perm fs.FileMode) error {
	slog.WarnContext(ctx, "restoring settings permissions", "path", s.path, "was", fmt.Sprintf("%04o", perm))
	if err := os.Chmod(s.path, documentPerm); err != nil {
		return fmt.Errorf("restoring permissions on %s: %w", s.path, err)
	}
	return nil
}

// writeFileAtomic saves data using temp file + rename for crash safety.
// Sets file permissions to 0600 (owner read/write only).
func writeFileAtomic(path string, data []byte) error {
	// Create secure temp file in same directory for atomic rename
	dir := filepath.Dir(path)
	tempFile, err := os.CreateTemp(dir, "*.tmp")
	if err != nil {
		return err
	}
	tempName := tempFile.Name()
	// Cleanup deferred for all exit paths
	defer func() { _ = os.Remove(tempName) }()
	defer func() { _ = tempFile.Close() }()

	if _, err := tempFile.Write(data); err != nil {
		return err
	}
	if err := tempFile.Sync(); err != nil {
		return err
	}
	if err := tempFile.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tempName, documentPerm); err != nil {
		return err
	}

	return os.Rename(tempName, path)
}
