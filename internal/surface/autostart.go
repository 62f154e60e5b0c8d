package surface

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/capturist/capturist/internal/events"
	"github.com/capturist/capturist/internal/settings"
)

// DefaultAutostart applies when the preference was never stored.
const DefaultAutostart = true

// Launcher registers the application to start with the user session.
type Launcher interface {
	IsEnabled(ctx context.Context) (bool, error)
	Enable(ctx context.Context) error
	Disable(ctx context.Context) error
}

// Autostart reconciles the stored preference with the launcher.
type Autostart struct {
	settings *settings.Store
	launcher Launcher

	mu      sync.Mutex
	enabled bool
}

// NewAutostart creates a reconciler. A nil launcher only tracks the preference.
func NewAutostart(doc *settings.Store, launcher Launcher) (*Autostart, error) {
	if doc == nil {
		return nil, fmt.Errorf("missing settings store")
	}
	return &Autostart{settings: doc, launcher: launcher, enabled: DefaultAutostart}, nil
}

// Setup reads the stored preference, applies it and returns it.
func (a *Autostart) Setup(ctx context.Context) (bool, error) {
	enabled, err := a.stored(ctx)
	if err != nil {
		return false, err
	}

	slog.InfoContext(ctx, "setting up autostart", "enabled", enabled)
	if err := a.apply(ctx, enabled); err != nil {
		return false, err
	}
	return enabled, nil
}

// Attach subscribes the reconciler to autostart events.
func (a *Autostart) Attach(bus *events.Bus) (unsubscribe func()) {
	return events.Subscribe(bus, "autostart", a.HandleAutostart)
}

// HandleAutostart applies a changed preference.
func (a *Autostart) HandleAutostart(ctx context.Context, e events.Autostart) error {
	return a.apply(ctx, e.Enabled)
}

// Enabled returns the preference currently applied.
func (a *Autostart) Enabled() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.enabled
}

// Watch publishes an Autostart event whenever the settings document is edited
// externally and its value differs from the applied one. It blocks until ctx is done.
func (a *Autostart) Watch(ctx context.Context, bus *events.Bus) error {
	return a.settings.Watch(ctx, func() {
		enabled, err := a.stored(ctx)
		if err != nil {
			slog.WarnContext(ctx, "failed to read autostart preference", "error", err)
			return
		}
		if enabled == a.Enabled() {
			return
		}
		slog.InfoContext(ctx, "autostart preference changed externally", "enabled", enabled)
		bus.Publish(ctx, events.Autostart{Enabled: enabled})
	})
}

func (a *Autostart) stored(ctx context.Context) (bool, error) {
	enabled := DefaultAutostart
	if _, err := a.settings.Get(ctx, settings.KeyAutostart, &enabled); err != nil {
		return false, fmt.Errorf("reading autostart preference: %w", err)
	}
	return enabled, nil
}

// apply brings the launcher in line with enabled, touching it only when it differs,
// and persists the preference when it changed.
func (a *Autostart) apply(ctx context.Context, enabled bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	// Recorded first so a settings watcher reacting to our own write sees no change.
	a.enabled = enabled

	if a.launcher != nil {
		current, err := a.launcher.IsEnabled(ctx)
		if err != nil {
			return fmt.Errorf("checking autostart: %w", err)
		}
		slog.DebugContext(ctx, "autostart launcher state", "enabled", current)

		switch {
		case enabled && !current:
			slog.InfoContext(ctx, "enabling autostart")
			if err := a.launcher.Enable(ctx); err != nil {
				return fmt.Errorf("enabling autostart: %w", err)
			}
		case !enabled && current:
			slog.InfoContext(ctx, "disabling autostart")
			if err := a.launcher.Disable(ctx); err != nil {
				return fmt.Errorf("disabling autostart: %w", err)
			}
		}
	}

	var stored bool
	found, err := a.settings.Get(ctx, settings.KeyAutostart, &stored)
	if err != nil {
		return fmt.Errorf("reading autostart preference: %w", err)
	}
	if found && stored == enabled {
		return nil
	}
	if err := a.settings.Set(ctx, settings.KeyAutostart, enabled); err != nil {
		return fmt.Errorf("storing autostart preference: %w", err)
	}
	return nil
}
