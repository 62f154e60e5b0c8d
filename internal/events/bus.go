package events

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/google/uuid"
)

// Priority orders subscribers of the same event. Lower values run first;
// equal priorities run in registration order.
type Priority int

const (
	// PriorityState is reserved for the subscriber owning the state other subscribers read.
	PriorityState Priority = -100
	// PriorityDefault is used by surfaces reacting to state.
	PriorityDefault Priority = 0
)

// Handler reacts to a single event type.
type Handler[E Event] func(ctx context.Context, event E) error

// SubscribeOption configures a subscription.
type SubscribeOption func(*subscriber)

// WithPriority sets the subscriber's position relative to other subscribers.
func WithPriority(p Priority) SubscribeOption {
	return func(s *subscriber) {
		s.priority = p
	}
}

type subscriber struct {
	id       uint64
	name     string
	priority Priority
	handle   func(context.Context, Event) error
}

// Receipt describes the outcome of a single Publish.
type Receipt struct {
	ID        uuid.UUID
	Kind      Kind
	Delivered int
	// Failed lists the names of subscribers that returned an error or panicked.
	Failed []string
}

// Bus fans events out to subscribers synchronously, one publish at a time.
//
// Handlers run on the publishing goroutine while the dispatch lock is held, so a
// handler must not call Publish itself.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[Kind][]subscriber
	nextID      uint64

	dispatchMu sync.Mutex
}

// NewBus creates an empty Bus.
func NewBus() *Bus {
	return &Bus{
		subscribers: make(map[Kind][]subscriber),
	}
}

// Subscribe registers h for events of type E. The returned func removes the subscription.
func Subscribe[E Event](b *Bus, name string, h Handler[E], opts ...SubscribeOption) (unsubscribe func()) {
	var zero E
	kind := zero.Kind()

	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	sub := subscriber{
		id:       b.nextID,
		name:     name,
		priority: PriorityDefault,
		handle: func(ctx context.Context, event Event) error {
			typed, ok := event.(E)
			if !ok {
				return fmt.Errorf("unexpected event %T for %s subscriber", event, kind)
			}
			return h(ctx, typed)
		},
	}
	for _, opt := range opts {
		opt(&sub)
	}

	subs := append(b.subscribers[kind], sub)
	slices.SortStableFunc(subs, func(a, b subscriber) int {
		if c := cmp.Compare(a.priority, b.priority); c != 0 {
			return c
		}
		return cmp.Compare(a.id, b.id)
	})
	b.subscribers[kind] = subs

	id := sub.id
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.subscribers[kind] = slices.DeleteFunc(b.subscribers[kind], func(s subscriber) bool {
			return s.id == id
		})
	}
}

// Publish delivers event to every current subscriber of its kind, in priority order.
// A failing subscriber is logged and skipped; it never stops delivery to the others
// and its error is not returned to the publisher.
func (b *Bus) Publish(ctx context.Context, event Event) Receipt {
	b.dispatchMu.Lock()
	defer b.dispatchMu.Unlock()

	b.mu.RLock()
	subs := slices.Clone(b.subscribers[event.Kind()])
	b.mu.RUnlock()

	receipt := Receipt{
		ID:   uuid.New(),
		Kind: event.Kind(),
	}

	slog.DebugContext(ctx, "publishing event",
		"event_id", receipt.ID, "kind", receipt.Kind, "subscribers", len(subs))

	for _, sub := range subs {
		if err := deliver(ctx, sub, event); err != nil {
			slog.ErrorContext(ctx, "event subscriber failed",
				"event_id", receipt.ID, "kind", receipt.Kind, "subscriber", sub.name, "error", err)
			receipt.Failed = append(receipt.Failed, sub.name)
			continue
		}
		receipt.Delivered++
	}

	return receipt
}

// deliver runs a single subscriber, turning a panic into an error.
func deliver(ctx context.Context, sub subscriber, event Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return sub.handle(ctx, event)
}
