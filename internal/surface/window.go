package surface

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/capturist/capturist/internal/events"
)

// Window identifies a top-level window.
type Window uint8

const (
	WindowQuickAdd Window = iota + 1
	WindowAuthentication
)

func (w Window) String() string {
	switch w {
	case WindowQuickAdd:
		return "quick-add"
	case WindowAuthentication:
		return "authentication"
	default:
		return "unknown"
	}
}

// MarshalText encodes the window label.
func (w Window) MarshalText() ([]byte, error) {
	return []byte(w.String()), nil
}

// Mode is the state of the window switcher.
type Mode uint8

const (
	ModeUnauthenticated Mode = iota
	ModeAuthenticated
)

func (m Mode) String() string {
	if m == ModeAuthenticated {
		return "authenticated"
	}
	return "unauthenticated"
}

// MarshalText encodes the mode name.
func (m Mode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

func modeFor(authenticated bool) Mode {
	if authenticated {
		return ModeAuthenticated
	}
	return ModeUnauthenticated
}

// AuthReader exposes the current authentication status.
type AuthReader interface {
	Authenticated() bool
}

// Presenter performs the platform work for a window. Show and Hide create the
// window when it does not exist; Retire destroys it.
type Presenter interface {
	Show(ctx context.Context, w Window) error
	Hide(ctx context.Context, w Window) error
	Retire(ctx context.Context, w Window) error
}

// Windows is the two-state window switcher. Authenticated shows the quick-add
// window, Unauthenticated shows the authentication window, and the other one is
// retired on every transition.
type Windows struct {
	presenter Presenter
	auth      AuthReader

	mu   sync.Mutex
	mode Mode
}

// NewWindows creates a switcher. Its mode is taken from auth by Init.
func NewWindows(presenter Presenter, auth AuthReader) (*Windows, error) {
	if presenter == nil {
		return nil, fmt.Errorf("missing window presenter")
	}
	if auth == nil {
		return nil, fmt.Errorf("missing auth state")
	}
	return &Windows{presenter: presenter, auth: auth}, nil
}

// Init opens the window matching the startup authentication status, hidden when minimize is set.
func (w *Windows) Init(ctx context.Context, minimize bool) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.mode = modeFor(w.auth.Authenticated())
	target := w.primary()

	slog.InfoContext(ctx, "opening initial window", "window", target, "minimize", minimize)
	if minimize {
		return w.presenter.Hide(ctx, target)
	}
	return w.presenter.Show(ctx, target)
}

// Attach subscribes the switcher to authentication and quick-add events.
func (w *Windows) Attach(bus *events.Bus) (unsubscribe func()) {
	unsubAuth := events.Subscribe(bus, "windows", w.HandleAuthentication)
	unsubQuickAdd := events.Subscribe(bus, "windows", w.HandleQuickAdd)
	return func() {
		unsubAuth()
		unsubQuickAdd()
	}
}

// Mode returns the current state.
func (w *Windows) Mode() Mode {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.mode
}

// HandleAuthentication switches windows on a state change. A repeated event for the
// current state changes nothing. The mode only moves once both windows are in place,
// so a failed switch is retried by the next event.
func (w *Windows) HandleAuthentication(ctx context.Context, e events.Authentication) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	next := modeFor(e.Authenticated)
	if next == w.mode {
		slog.DebugContext(ctx, "window switcher already in state", "mode", next)
		return nil
	}

	previous := w.primary()
	target := windowFor(next)

	slog.InfoContext(ctx, "switching window", "from", previous, "to", target)
	if err := w.presenter.Show(ctx, target); err != nil {
		return fmt.Errorf("showing %s window: %w", target, err)
	}
	if err := w.presenter.Retire(ctx, previous); err != nil {
		return fmt.Errorf("retiring %s window: %w", previous, err)
	}

	w.mode = next
	return nil
}

// HandleQuickAdd raises the quick-add window, or the authentication window when
// nobody is logged in.
func (w *Windows) HandleQuickAdd(ctx context.Context, _ events.QuickAdd) error {
	target := WindowAuthentication
	if w.auth.Authenticated() {
		target = WindowQuickAdd
	}
	slog.DebugContext(ctx, "quick-add requested", "window", target)
	return w.presenter.Show(ctx, target)
}

func (w *Windows) primary() Window {
	return windowFor(w.mode)
}

func windowFor(m Mode) Window {
	if m == ModeAuthenticated {
		return WindowQuickAdd
	}
	return WindowAuthentication
}

// Visibility is the presentation state of a window.
type Visibility uint8

const (
	VisibilityAbsent Visibility = iota
	VisibilityHidden
	VisibilityVisible
)

func (v Visibility) String() string {
	switch v {
	case VisibilityHidden:
		return "hidden"
	case VisibilityVisible:
		return "visible"
	default:
		return "absent"
	}
}

// MarshalText encodes the visibility name.
func (v Visibility) MarshalText() ([]byte, error) {
	return []byte(v.String()), nil
}

// HeadlessPresenter records window visibility in memory. It backs the loopback
// server's surface snapshot and the tests.
type HeadlessPresenter struct {
	mu      sync.Mutex
	windows map[Window]Visibility
	calls   int
}

// Compile-time check that HeadlessPresenter implements Presenter
var _ Presenter = (*HeadlessPresenter)(nil)

// NewHeadlessPresenter creates a presenter with no windows.
func NewHeadlessPresenter() *HeadlessPresenter {
	return &HeadlessPresenter{windows: make(map[Window]Visibility)}
}

func (p *HeadlessPresenter) Show(ctx context.Context, w Window) error {
	return p.set(ctx, w, VisibilityVisible)
}

func (p *HeadlessPresenter) Hide(ctx context.Context, w Window) error {
	return p.set(ctx, w, VisibilityHidden)
}

func (p *HeadlessPresenter) Retire(ctx context.Context, w Window) error {
	return p.set(ctx, w, VisibilityAbsent)
}

func (p *HeadlessPresenter) set(ctx context.Context, w Window, v Visibility) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.calls++
	if v == VisibilityAbsent {
		delete(p.windows, w)
		return nil
	}
	p.windows[w] = v
	return nil
}

// Visibility returns the state of w.
func (p *HeadlessPresenter) Visibility(w Window) Visibility {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.windows[w]
}

// Calls returns how many presenter operations ran.
func (p *HeadlessPresenter) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

// Windows returns a copy of every existing window and its visibility.
func (p *HeadlessPresenter) Windows() map[Window]Visibility {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make(map[Window]Visibility, len(p.windows))
	for w, v := range p.windows {
		out[w] = v
	}
	return out
}

// UnmarshalText decodes a window label.
func (w *Window) UnmarshalText(text []byte) error {
	for _, candidate := range []Window{WindowQuickAdd, WindowAuthentication} {
		if string(text) == candidate.String() {
			*w = candidate
			return nil
		}
	}
	return fmt.Errorf("unknown window %q", text)
}

// UnmarshalText decodes a mode name.
func (m *Mode) UnmarshalText(text []byte) error {
	switch string(text) {
	case ModeAuthenticated.String():
		*m = ModeAuthenticated
	case ModeUnauthenticated.String():
		*m = ModeUnauthenticated
	default:
		return fmt.Errorf("unknown mode %q", text)
	}
	return nil
}

// UnmarshalText decodes a visibility name.
func (v *Visibility) UnmarshalText(text []byte) error {
	for _, candidate := range []Visibility{VisibilityAbsent, VisibilityHidden, VisibilityVisible} {
		if string(text) == candidate.String() {
			*v = candidate
			return nil
		}
	}
	return fmt.Errorf("unknown visibility %q", text)
}
