package settings

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(filepath.Join(t.TempDir(), "capturist", "capturist.json"))
	require.NoError(t, err)
	return store
}

func TestNewRejectsEmptyPath(t *testing.T) {
	_, err := New("")
	require.Error(t, err)
}

func TestSetGetRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	type window struct {
		Width  int    `json:"width"`
		Height int    `json:"height"`
		Title  string `json:"title"`
	}

	tests := []struct {
		name  string
		key   Key
		value any
		out   func() any
	}{
		{name: "string", key: KeyTodoistToken, value: "secret", out: func() any { return new(string) }},
		{name: "bool", key: KeyAutostart, value: false, out: func() any { return new(bool) }},
		{name: "struct", key: Key("WINDOW"), value: window{Width: 640, Height: 120, Title: "Quick add"}, out: func() any { return new(window) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.NoError(t, store.Set(ctx, tt.key, tt.value))

			out := tt.out()
			found, err := store.Get(ctx, tt.key, out)
			require.NoError(t, err)
			require.True(t, found)

			switch v := out.(type) {
			case *string:
				assert.Equal(t, tt.value, *v)
			case *bool:
				assert.Equal(t, tt.value, *v)
			case *window:
				assert.Equal(t, tt.value, *v)
			}
		})
	}
}

func TestGetMissingDocumentAndKey(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	var token string
	found, err := store.Get(ctx, KeyTodoistToken, &token)
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, store.Set(ctx, KeyAutostart, true))

	found, err = store.Get(ctx, KeyTodoistToken, &token)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestGetUndecodableValueReadsAsAbsent(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	require.NoError(t, store.Set(ctx, KeyAutostart, "not a bool"))

	var enabled bool
	found, err := store.Get(ctx, KeyAutostart, &enabled)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestDeleteIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	require.NoError(t, store.Delete(ctx, KeyTodoistToken))

	require.NoError(t, store.Set(ctx, KeyTodoistToken, "secret"))
	require.NoError(t, store.Set(ctx, KeyAutostart, true))
	require.NoError(t, store.Delete(ctx, KeyTodoistToken))
	require.NoError(t, store.Delete(ctx, KeyTodoistToken))

	var token string
	found, err := store.Get(ctx, KeyTodoistToken, &token)
	require.NoError(t, err)
	assert.False(t, found)

	var enabled bool
	found, err = store.Get(ctx, KeyAutostart, &enabled)
	require.NoError(t, err)
	assert.True(t, found)
	assert.True(t, enabled)
}

func TestWritesUseOwnerOnlyPermissions(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	require.NoError(t, store.Set(ctx, KeyTodoistToken, "secret"))

	info, err := os.Stat(store.Path())
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
}

func TestLoosePermissionsRefuseOnlySecrets(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	require.NoError(t, os.WriteFile(store.Path(), []byte(`{"AUTOSTART":true,"TODOIST_TOKEN":"secret"}`), 0644))
	require.NoError(t, os.Chmod(store.Path(), 0644))

	var enabled bool
	found, err := store.Get(ctx, KeyAutostart, &enabled)
	require.NoError(t, err)
	assert.True(t, found)
	assert.True(t, enabled)

	var token string
	_, err = store.Get(ctx, KeyTodoistToken, &token)
	require.ErrorContains(t, err, "insecure permissions")
	assert.Empty(t, token)
}

func TestNextWriteRestoresOwnerOnlyPermissions(t *testing.T) {
	tests := []struct {
		name  string
		write func(ctx context.Context, store *Store) error
	}{
		{
			name: "changed value",
			write: func(ctx context.Context, store *Store) error {
				return store.Set(ctx, KeyAutostart, false)
			},
		},
		{
			name: "nothing to delete",
			write: func(ctx context.Context, store *Store) error {
				return store.Delete(ctx, Key("MISSING"))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			store := newTestStore(t)

			require.NoError(t, os.WriteFile(store.Path(), []byte(`{"AUTOSTART":true,"TODOIST_TOKEN":"secret"}`), 0644))
			require.NoError(t, os.Chmod(store.Path(), 0644))

			require.NoError(t, tt.write(ctx, store))

			info, err := os.Stat(store.Path())
			require.NoError(t, err)
			assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

			var token string
			found, err := store.Get(ctx, KeyTodoistToken, &token)
			require.NoError(t, err)
			assert.True(t, found)
			assert.Equal(t, "secret", token)
		})
	}
}

func TestConcurrentWritersDoNotLoseKeys(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			key := Key("KEY_" + string(rune('A'+i)))
			assert.NoError(t, store.Set(ctx, key, i))
		}()
	}
	wg.Wait()

	for i := range 20 {
		var got int
		found, err := store.Get(ctx, Key("KEY_"+string(rune('A'+i))), &got)
		require.NoError(t, err)
		require.True(t, found)
		assert.Equal(t, i, got)
	}
}

func TestCancelledContext(t *testing.T) {
	store := newTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.ErrorIs(t, store.Set(ctx, KeyAutostart, true), context.Canceled)
}

func TestWatchReportsExternalChanges(t *testing.T) {
	store := newTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changed := make(chan struct{}, 1)
	done := make(chan error, 1)
	go func() {
		done <- store.Watch(ctx, func() {
			select {
			case changed <- struct{}{}:
			default:
			}
		})
	}()

	// Give the watcher time to register before writing.
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, store.Set(context.Background(), KeyAutostart, false))

	select {
	case <-changed:
	case <-time.After(5 * time.Second):
		t.Fatal("no change notification")
	}

	cancel()
	require.NoError(t, <-done)
}
