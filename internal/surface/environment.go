package surface

// Environment describes how the application was packaged and which display
// server it runs under.
type Environment struct {
	Snap     bool `json:"snap"`
	Flatpak  bool `json:"flatpak"`
	AppImage bool `json:"appimage"`
	Wayland  bool `json:"wayland"`
}

// DetectEnvironment reads the variables set by the packaging runtimes.
// lookup has the signature of os.LookupEnv.
func DetectEnvironment(lookup func(string) (string, bool)) Environment {
	present := func(key string) bool {
		_, ok := lookup(key)
		return ok
	}
	session, _ := lookup("XDG_SESSION_TYPE")

	return Environment{
		Snap:     present("SNAP"),
		Flatpak:  present("FLATPAK_ID"),
		AppImage: present("APPIMAGE"),
		Wayland:  session == "wayland",
	}
}

// Sandboxed reports whether the package runtime confines the application.
func (e Environment) Sandboxed() bool {
	return e.Snap || e.Flatpak
}

// ManagesAutostart reports whether the package runtime owns session autostart,
// in which case the tray does not offer the toggle.
func (e Environment) ManagesAutostart() bool {
	return e.Snap
}

// GlobalShortcuts reports whether a global keyboard shortcut can be registered.
func (e Environment) GlobalShortcuts() bool {
	return !e.Wayland
}

// Accelerators bound to the quick-add window.
const (
	AcceleratorDefault = "Ctrl+Space"
	AcceleratorDarwin  = "Alt+Space"
)

// Shortcut is the global accelerator that raises the quick-add window.
type Shortcut struct {
	Accelerator string `json:"accelerator"`
	// Registrable is false when the display server offers no global shortcuts and
	// the binding has to be made in the desktop's own settings.
	Registrable bool `json:"registrable"`
}

// Shortcut returns the quick-add accelerator for the operating system goos.
func (e Environment) Shortcut(goos string) Shortcut {
	accelerator := AcceleratorDefault
	if goos == "darwin" {
		accelerator = AcceleratorDarwin
	}
	return Shortcut{Accelerator: accelerator, Registrable: e.GlobalShortcuts()}
}
