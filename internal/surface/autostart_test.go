package surface

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capturist/capturist/internal/events"
	"github.com/capturist/capturist/internal/settings"
)

type fakeLauncher struct {
	enabled  bool
	enables  int
	disables int
	err      error
}

func (f *fakeLauncher) IsEnabled(context.Context) (bool, error) { return f.enabled, f.err }

func (f *fakeLauncher) Enable(context.Context) error {
	f.enables++
	f.enabled = true
	return nil
}

func (f *fakeLauncher) Disable(context.Context) error {
	f.disables++
	f.enabled = false
	return nil
}

func newSettings(t *testing.T) *settings.Store {
	t.Helper()
	doc, err := settings.New(filepath.Join(t.TempDir(), "capturist.json"))
	require.NoError(t, err)
	return doc
}

func storedAutostart(t *testing.T, doc *settings.Store) (bool, bool) {
	t.Helper()
	var enabled bool
	found, err := doc.Get(context.Background(), settings.KeyAutostart, &enabled)
	require.NoError(t, err)
	return enabled, found
}

func TestAutostartSetupDefaultsToEnabled(t *testing.T) {
	doc := newSettings(t)
	launcher := &fakeLauncher{}
	a, err := NewAutostart(doc, launcher)
	require.NoError(t, err)

	enabled, err := a.Setup(context.Background())
	require.NoError(t, err)
	assert.True(t, enabled)
	assert.True(t, a.Enabled())
	assert.Equal(t, 1, launcher.enables)

	value, found := storedAutostart(t, doc)
	assert.True(t, found)
	assert.True(t, value)
}

func TestAutostartSetupHonorsStoredPreference(t *testing.T) {
	doc := newSettings(t)
	require.NoError(t, doc.Set(context.Background(), settings.KeyAutostart, false))

	launcher := &fakeLauncher{enabled: true}
	a, err := NewAutostart(doc, launcher)
	require.NoError(t, err)

	enabled, err := a.Setup(context.Background())
	require.NoError(t, err)
	assert.False(t, enabled)
	assert.Equal(t, 1, launcher.disables)
	assert.Zero(t, launcher.enables)
}

func TestAutostartTouchesLauncherOnlyOnChange(t *testing.T) {
	launcher := &fakeLauncher{enabled: true}
	a, err := NewAutostart(newSettings(t), launcher)
	require.NoError(t, err)

	require.NoError(t, a.HandleAutostart(context.Background(), events.Autostart{Enabled: true}))
	require.NoError(t, a.HandleAutostart(context.Background(), events.Autostart{Enabled: true}))
	assert.Zero(t, launcher.enables)
	assert.Zero(t, launcher.disables)
}

func TestAutostartFollowsEvents(t *testing.T) {
	ctx := context.Background()
	doc := newSettings(t)
	launcher := &fakeLauncher{}
	bus := events.NewBus()

	a, err := NewAutostart(doc, launcher)
	require.NoError(t, err)
	a.Attach(bus)
	_, err = a.Setup(ctx)
	require.NoError(t, err)

	receipt := bus.Publish(ctx, events.Autostart{Enabled: false})
	require.Empty(t, receipt.Failed)
	assert.False(t, a.Enabled())
	assert.False(t, launcher.enabled)

	value, found := storedAutostart(t, doc)
	assert.True(t, found)
	assert.False(t, value)
}

func TestAutostartLauncherFailure(t *testing.T) {
	a, err := NewAutostart(newSettings(t), &fakeLauncher{err: errors.New("no session bus")})
	require.NoError(t, err)

	_, err = a.Setup(context.Background())
	require.Error(t, err)
}

func TestAutostartWithoutLauncher(t *testing.T) {
	doc := newSettings(t)
	a, err := NewAutostart(doc, nil)
	require.NoError(t, err)

	require.NoError(t, a.HandleAutostart(context.Background(), events.Autostart{Enabled: false}))
	value, found := storedAutostart(t, doc)
	assert.True(t, found)
	assert.False(t, value)

	_, err = NewAutostart(nil, nil)
	require.Error(t, err)
}

func TestAutostartWatchPublishesExternalEdits(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	doc := newSettings(t)
	bus := events.NewBus()
	a, err := NewAutostart(doc, &fakeLauncher{})
	require.NoError(t, err)
	a.Attach(bus)
	_, err = a.Setup(ctx)
	require.NoError(t, err)

	published := make(chan bool, 4)
	events.Subscribe(bus, "observer", func(_ context.Context, e events.Autostart) error {
		published <- e.Enabled
		return nil
	})

	watchErr := make(chan error, 1)
	go func() { watchErr <- a.Watch(ctx, bus) }()
	// Give the watcher time to register.
	time.Sleep(100 * time.Millisecond)

	// Another process flips the preference.
	other, err := settings.New(doc.Path())
	require.NoError(t, err)
	require.NoError(t, other.Set(ctx, settings.KeyAutostart, false))

	select {
	case enabled := <-published:
		assert.False(t, enabled)
	case <-time.After(5 * time.Second):
		t.Fatal("external edit was not published")
	}
	assert.Eventually(t, func() bool { return !a.Enabled() }, 2*time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, <-watchErr)
}

func TestDesktopEntryLauncher(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "autostart")
	l, err := NewDesktopEntryLauncher(dir, "capturist", "/opt/Capturist App/capturist")
	require.NoError(t, err)

	enabled, err := l.IsEnabled(ctx)
	require.NoError(t, err)
	assert.False(t, enabled)

	require.NoError(t, l.Enable(ctx))
	enabled, err = l.IsEnabled(ctx)
	require.NoError(t, err)
	assert.True(t, enabled)

	content, err := os.ReadFile(l.Path())
	require.NoError(t, err)
	assert.Contains(t, string(content), "[Desktop Entry]\n")
	assert.Contains(t, string(content), "Name=Capturist\n")
	assert.Contains(t, string(content), `Exec="/opt/Capturist App/capturist" --minimize`+"\n")

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files left behind")

	require.NoError(t, l.Disable(ctx))
	require.NoError(t, l.Disable(ctx), "disabling twice")
	enabled, err = l.IsEnabled(ctx)
	require.NoError(t, err)
	assert.False(t, enabled)
}

func TestNewDesktopEntryLauncherValidates(t *testing.T) {
	_, err := NewDesktopEntryLauncher("", "capturist", "/usr/bin/capturist")
	require.Error(t, err)
	_, err = NewDesktopEntryLauncher(t.TempDir(), "", "/usr/bin/capturist")
	require.Error(t, err)
	_, err = NewDesktopEntryLauncher(t.TempDir(), "capturist", "")
	require.Error(t, err)
}

func TestQuoteExec(t *testing.T) {
	assert.Equal(t, "/usr/bin/capturist", quoteExec("/usr/bin/capturist"))
	assert.Equal(t, `"/home/me/my apps/capturist"`, quoteExec("/home/me/my apps/capturist"))
	assert.Equal(t, `"/tmp/\$x"`, quoteExec("/tmp/$x"))
}
