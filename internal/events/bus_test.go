package events

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKindString(t *testing.T) {
	assert.Equal(t, "authentication", Authentication{}.Kind().String())
	assert.Equal(t, "autostart", Autostart{}.Kind().String())
	assert.Equal(t, "quick-add", QuickAdd{}.Kind().String())
	assert.Equal(t, "unknown", Kind(0).String())
}

func TestPublishDeliversOnlyToMatchingKind(t *testing.T) {
	bus := NewBus()
	ctx := context.Background()

	var auth []bool
	var autostart []bool
	Subscribe(bus, "auth", func(_ context.Context, e Authentication) error {
		auth = append(auth, e.Authenticated)
		return nil
	})
	Subscribe(bus, "autostart", func(_ context.Context, e Autostart) error {
		autostart = append(autostart, e.Enabled)
		return nil
	})

	receipt := bus.Publish(ctx, Authentication{Authenticated: true})
	assert.Equal(t, 1, receipt.Delivered)
	assert.Equal(t, KindAuthentication, receipt.Kind)
	bus.Publish(ctx, Autostart{Enabled: false})

	receipt = bus.Publish(ctx, QuickAdd{})
	assert.Equal(t, 0, receipt.Delivered)

	assert.Equal(t, []bool{true}, auth)
	assert.Equal(t, []bool{false}, autostart)
}

func TestPublishOrdersByPriorityThenRegistration(t *testing.T) {
	bus := NewBus()

	var order []string
	record := func(name string) Handler[Authentication] {
		return func(context.Context, Authentication) error {
			order = append(order, name)
			return nil
		}
	}

	Subscribe(bus, "windows", record("windows"))
	Subscribe(bus, "tray", record("tray"))
	Subscribe(bus, "state", record("state"), WithPriority(PriorityState))
	Subscribe(bus, "late", record("late"))

	bus.Publish(context.Background(), Authentication{Authenticated: true})

	assert.Equal(t, []string{"state", "windows", "tray", "late"}, order)
}

func TestFailingSubscriberIsIsolated(t *testing.T) {
	bus := NewBus()

	var reached []string
	Subscribe(bus, "first", func(context.Context, Authentication) error {
		reached = append(reached, "first")
		return errors.New("menu item missing")
	})
	Subscribe(bus, "panics", func(context.Context, Authentication) error {
		reached = append(reached, "panics")
		panic("boom")
	})
	Subscribe(bus, "last", func(context.Context, Authentication) error {
		reached = append(reached, "last")
		return nil
	})

	receipt := bus.Publish(context.Background(), Authentication{})

	assert.Equal(t, []string{"first", "panics", "last"}, reached)
	assert.Equal(t, 1, receipt.Delivered)
	assert.Equal(t, []string{"first", "panics"}, receipt.Failed)
}

func TestUnsubscribe(t *testing.T) {
	bus := NewBus()

	calls := 0
	unsubscribe := Subscribe(bus, "counter", func(context.Context, QuickAdd) error {
		calls++
		return nil
	})

	bus.Publish(context.Background(), QuickAdd{})
	unsubscribe()
	unsubscribe()
	bus.Publish(context.Background(), QuickAdd{})

	assert.Equal(t, 1, calls)
}

func TestPublishIDsAreUnique(t *testing.T) {
	bus := NewBus()
	first := bus.Publish(context.Background(), QuickAdd{})
	second := bus.Publish(context.Background(), QuickAdd{})
	assert.NotEqual(t, first.ID, second.ID)
}

func TestConcurrentPublishIsSerialized(t *testing.T) {
	bus := NewBus()

	var (
		mu      sync.Mutex
		active  int
		overlap bool
	)
	Subscribe(bus, "observer", func(context.Context, Autostart) error {
		mu.Lock()
		active++
		if active > 1 {
			overlap = true
		}
		mu.Unlock()

		mu.Lock()
		active--
		mu.Unlock()
		return nil
	})

	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			bus.Publish(context.Background(), Autostart{Enabled: i%2 == 0})
		}()
	}
	wg.Wait()

	require.False(t, overlap)
}
