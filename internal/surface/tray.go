package surface

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/capturist/capturist/internal/events"
)

// MenuID identifies a tray menu item.
type MenuID string

const (
	MenuQuickAdd  MenuID = "quick-add"
	MenuAutostart MenuID = "autostart"
	MenuLogOut    MenuID = "log-out"
	MenuQuit      MenuID = "quit"
)

// ErrUnknownMenuItem means a click referenced an item the menu does not have.
var ErrUnknownMenuItem = errors.New("unknown menu item")

// MenuItem is one entry of the tray menu.
type MenuItem struct {
	ID        MenuID `json:"id"`
	Label     string `json:"label"`
	Enabled   bool   `json:"enabled"`
	Checkable bool   `json:"checkable,omitempty"`
	Checked   bool   `json:"checked,omitempty"`
}

// TrayActions are the side effects of menu clicks that the tray cannot perform itself.
type TrayActions struct {
	LogOut func(ctx context.Context) error
	Quit   func()
}

// TrayOption configures a Tray.
type TrayOption func(*Tray)

// WithoutAutostartItem drops the autostart toggle, for packages whose launcher is
// managed by the sandbox.
func WithoutAutostartItem() TrayOption {
	return func(t *Tray) {
		t.items = slices.DeleteFunc(t.items, func(item MenuItem) bool {
			return item.ID == MenuAutostart
		})
	}
}

// Tray is the menu model behind the tray icon.
type Tray struct {
	auth    AuthReader
	bus     *events.Bus
	actions TrayActions

	mu    sync.Mutex
	items []MenuItem
}

// NewTray builds the menu from the current authentication status and autostart preference.
func NewTray(auth AuthReader, bus *events.Bus, actions TrayActions, autostart bool, opts ...TrayOption) (*Tray, error) {
	if auth == nil {
		return nil, fmt.Errorf("missing auth state")
	}
	if bus == nil {
		return nil, fmt.Errorf("missing event bus")
	}

	authenticated := auth.Authenticated()
	t := &Tray{
		auth:    auth,
		bus:     bus,
		actions: actions,
		items: []MenuItem{
			{ID: MenuQuickAdd, Label: "Add a new task", Enabled: authenticated},
			{ID: MenuAutostart, Label: "Launch at startup", Enabled: true, Checkable: true, Checked: autostart},
			{ID: MenuLogOut, Label: "Log out", Enabled: authenticated},
			{ID: MenuQuit, Label: "Quit Capturist", Enabled: true},
		},
	}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

// Attach subscribes the tray to authentication and autostart events.
func (t *Tray) Attach(bus *events.Bus) (unsubscribe func()) {
	unsubAuth := events.Subscribe(bus, "tray", t.HandleAuthentication)
	unsubAutostart := events.Subscribe(bus, "tray", t.HandleAutostart)
	return func() {
		unsubAuth()
		unsubAutostart()
	}
}

// Items returns a copy of the menu.
func (t *Tray) Items() []MenuItem {
	t.mu.Lock()
	defer t.mu.Unlock()
	return slices.Clone(t.items)
}

// Item returns the item with id.
func (t *Tray) Item(id MenuID) (MenuItem, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	i := t.index(id)
	if i < 0 {
		return MenuItem{}, false
	}
	return t.items[i], true
}

// HandleAuthentication enables the items that need a logged-in user. It reads the
// auth state, which is already updated when this runs.
func (t *Tray) HandleAuthentication(ctx context.Context, _ events.Authentication) error {
	authenticated := t.auth.Authenticated()

	t.mu.Lock()
	defer t.mu.Unlock()

	for _, id := range []MenuID{MenuQuickAdd, MenuLogOut} {
		i := t.index(id)
		if i < 0 {
			return fmt.Errorf("%w: %s", ErrUnknownMenuItem, id)
		}
		t.items[i].Enabled = authenticated
	}

	slog.DebugContext(ctx, "tray menu updated", "authenticated", authenticated)
	return nil
}

// HandleAutostart keeps the autostart check mark in sync with the preference.
func (t *Tray) HandleAutostart(_ context.Context, e events.Autostart) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if i := t.index(MenuAutostart); i >= 0 {
		t.items[i].Checked = e.Enabled
	}
	return nil
}

// Click performs the action of a menu item. It publishes on the bus, so it must
// not be called from an event handler.
func (t *Tray) Click(ctx context.Context, id MenuID) error {
	item, ok := t.Item(id)
	if !ok {
		slog.WarnContext(ctx, "unknown tray menu item", "id", id)
		return fmt.Errorf("%w: %s", ErrUnknownMenuItem, id)
	}
	if !item.Enabled {
		slog.DebugContext(ctx, "ignoring click on disabled tray item", "id", id)
		return nil
	}

	switch id {
	case MenuQuickAdd:
		t.bus.Publish(ctx, events.QuickAdd{})
	case MenuAutostart:
		// The check mark follows through HandleAutostart.
		t.bus.Publish(ctx, events.Autostart{Enabled: !item.Checked})
	case MenuLogOut:
		if t.actions.LogOut == nil {
			return fmt.Errorf("log out is not available")
		}
		return t.actions.LogOut(ctx)
	case MenuQuit:
		slog.InfoContext(ctx, "quit requested from tray")
		if t.actions.Quit != nil {
			t.actions.Quit()
		}
	}
	return nil
}

func (t *Tray) index(id MenuID) int {
	return slices.IndexFunc(t.items, func(item MenuItem) bool {
		return item.ID == id
	})
}
