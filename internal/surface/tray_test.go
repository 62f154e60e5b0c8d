package surface

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capturist/capturist/internal/auth"
	"github.com/capturist/capturist/internal/events"
)

func ids(items []MenuItem) []MenuID {
	out := make([]MenuID, 0, len(items))
	for _, item := range items {
		out = append(out, item.ID)
	}
	return out
}

func TestNewTray(t *testing.T) {
	tray, err := NewTray(staticAuth(false), events.NewBus(), TrayActions{}, true)
	require.NoError(t, err)

	assert.Equal(t, []MenuID{MenuQuickAdd, MenuAutostart, MenuLogOut, MenuQuit}, ids(tray.Items()))

	quickAdd, _ := tray.Item(MenuQuickAdd)
	assert.False(t, quickAdd.Enabled)
	logOut, _ := tray.Item(MenuLogOut)
	assert.False(t, logOut.Enabled)
	autostart, _ := tray.Item(MenuAutostart)
	assert.True(t, autostart.Checkable)
	assert.True(t, autostart.Checked)

	_, err = NewTray(nil, events.NewBus(), TrayActions{}, true)
	require.Error(t, err)
	_, err = NewTray(staticAuth(false), nil, TrayActions{}, true)
	require.Error(t, err)
}

func TestTrayWithoutAutostartItem(t *testing.T) {
	tray, err := NewTray(staticAuth(true), events.NewBus(), TrayActions{}, true, WithoutAutostartItem())
	require.NoError(t, err)

	assert.Equal(t, []MenuID{MenuQuickAdd, MenuLogOut, MenuQuit}, ids(tray.Items()))
	require.NoError(t, tray.HandleAutostart(context.Background(), events.Autostart{Enabled: false}))
	require.ErrorIs(t, tray.Click(context.Background(), MenuAutostart), ErrUnknownMenuItem)
}

func TestTrayFollowsAuthentication(t *testing.T) {
	ctx := context.Background()
	bus := events.NewBus()
	state := auth.NewState(false)

	tray, err := NewTray(state, bus, TrayActions{}, false)
	require.NoError(t, err)
	tray.Attach(bus)
	state.Attach(bus)

	for _, authenticated := range []bool{true, true, false, false, true} {
		receipt := bus.Publish(ctx, events.Authentication{Authenticated: authenticated})
		require.Empty(t, receipt.Failed)

		for _, id := range []MenuID{MenuQuickAdd, MenuLogOut} {
			item, ok := tray.Item(id)
			require.True(t, ok)
			assert.Equal(t, authenticated, item.Enabled, "%s after %v", id, authenticated)
		}
		quit, _ := tray.Item(MenuQuit)
		assert.True(t, quit.Enabled)
	}
}

func TestTrayClick(t *testing.T) {
	ctx := context.Background()
	bus := events.NewBus()

	var (
		quickAdds  int
		autostarts []bool
		logOuts    int
		quits      int
	)
	events.Subscribe(bus, "observer", func(context.Context, events.QuickAdd) error {
		quickAdds++
		return nil
	})
	events.Subscribe(bus, "observer", func(_ context.Context, e events.Autostart) error {
		autostarts = append(autostarts, e.Enabled)
		return nil
	})

	tray, err := NewTray(staticAuth(true), bus, TrayActions{
		LogOut: func(context.Context) error { logOuts++; return nil },
		Quit:   func() { quits++ },
	}, true)
	require.NoError(t, err)
	tray.Attach(bus)

	require.NoError(t, tray.Click(ctx, MenuQuickAdd))
	require.NoError(t, tray.Click(ctx, MenuAutostart))
	require.NoError(t, tray.Click(ctx, MenuAutostart))
	require.NoError(t, tray.Click(ctx, MenuLogOut))
	require.NoError(t, tray.Click(ctx, MenuQuit))

	assert.Equal(t, 1, quickAdds)
	assert.Equal(t, []bool{false, true}, autostarts)
	assert.Equal(t, 1, logOuts)
	assert.Equal(t, 1, quits)

	require.ErrorIs(t, tray.Click(ctx, MenuID("settings")), ErrUnknownMenuItem)
}

func TestTrayClickDisabledItem(t *testing.T) {
	bus := events.NewBus()
	var logOuts int
	tray, err := NewTray(staticAuth(false), bus, TrayActions{
		LogOut: func(context.Context) error { logOuts++; return nil },
	}, true)
	require.NoError(t, err)

	require.NoError(t, tray.Click(context.Background(), MenuLogOut))
	assert.Zero(t, logOuts)
}
