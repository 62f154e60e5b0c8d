// Package events provides the typed publish/subscribe bus that keeps application
// surfaces consistent with authentication and preference changes.
//
// The set of events is closed: Authentication, Autostart and QuickAdd. Subscribers
// register for one concrete event type and receive it without any decoding step.
package events

// Kind identifies an event variant.
type Kind uint8

const (
	KindAuthentication Kind = iota + 1
	KindAutostart
	KindQuickAdd
)

func (k Kind) String() string {
	switch k {
	case KindAuthentication:
		return "authentication"
	case KindAutostart:
		return "autostart"
	case KindQuickAdd:
		return "quick-add"
	default:
		return "unknown"
	}
}

// Event is implemented by the event variants of this package only.
type Event interface {
	Kind() Kind
	event()
}

// Authentication is published once per login or logout.
type Authentication struct {
	Authenticated bool
}

func (Authentication) Kind() Kind { return KindAuthentication }
func (Authentication) event()     {}

// Autostart is published when the launch-at-login preference changes.
type Autostart struct {
	Enabled bool
}

func (Autostart) Kind() Kind { return KindAutostart }
func (Autostart) event()     {}

// QuickAdd requests the quick-capture surface, e.g. from the global shortcut.
type QuickAdd struct{}

func (QuickAdd) Kind() Kind { return KindQuickAdd }
func (QuickAdd) event()     {}
