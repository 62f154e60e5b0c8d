// Package surface holds the headless models of everything the user sees: the
// window switcher, the tray menu and the autostart toggle.
//
// Each surface subscribes to the event bus and reads auth.State from inside its
// handlers. No package here draws anything; a Presenter or Launcher supplied by
// the host does the platform work.
package surface
