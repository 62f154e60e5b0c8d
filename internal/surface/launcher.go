package surface

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// MinimizeFlag starts the application without raising a window.
const MinimizeFlag = "--minimize"

// DesktopEntryLauncher registers autostart through an XDG desktop entry in the
// user's autostart directory.
type DesktopEntryLauncher struct {
	dir  string
	name string
	exec string
}

// Compile-time check that DesktopEntryLauncher implements Launcher
var _ Launcher = (*DesktopEntryLauncher)(nil)

// NewDesktopEntryLauncher creates a launcher writing <dir>/<name>.desktop that runs
// executable with MinimizeFlag.
func NewDesktopEntryLauncher(dir, name, executable string) (*DesktopEntryLauncher, error) {
	if dir == "" {
		return nil, fmt.Errorf("missing autostart directory")
	}
	if name == "" {
		return nil, fmt.Errorf("missing application name")
	}
	if executable == "" {
		return nil, fmt.Errorf("missing executable path")
	}
	return &DesktopEntryLauncher{dir: dir, name: name, exec: executable}, nil
}

// Path returns the location of the desktop entry.
func (l *DesktopEntryLauncher) Path() string {
	return filepath.Join(l.dir, l.name+".desktop")
}

func (l *DesktopEntryLauncher) IsEnabled(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	_, err := os.Stat(l.Path())
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("stat %s: %w", l.Path(), err)
	}
	return true, nil
}

func (l *DesktopEntryLauncher) Enable(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := os.MkdirAll(l.dir, 0o755); err != nil {
		return fmt.Errorf("creating autostart directory: %w", err)
	}

	tmp, err := os.CreateTemp(l.dir, "."+l.name+"-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() { _ = os.Remove(tmpPath) }()

	if _, err := tmp.WriteString(l.entry()); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("writing desktop entry: %w", err)
	}
	if err := tmp.Chmod(0o644); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("setting permissions: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing desktop entry: %w", err)
	}

	if err := os.Rename(tmpPath, l.Path()); err != nil {
		return fmt.Errorf("installing desktop entry: %w", err)
	}
	return nil
}

func (l *DesktopEntryLauncher) Disable(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := os.Remove(l.Path()); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("removing desktop entry: %w", err)
	}
	return nil
}

func (l *DesktopEntryLauncher) entry() string {
	var b strings.Builder
	b.WriteString("[Desktop Entry]\n")
	b.WriteString("Type=Application\n")
	b.WriteString("Version=1.0\n")
	fmt.Fprintf(&b, "Name=%s\n", displayName(l.name))
	fmt.Fprintf(&b, "Exec=%s %s\n", quoteExec(l.exec), MinimizeFlag)
	b.WriteString("Terminal=false\n")
	b.WriteString("X-GNOME-Autostart-enabled=true\n")
	return b.String()
}

func displayName(name string) string {
	if name == "" {
		return name
	}
	return strings.ToUpper(name[:1]) + name[1:]
}

// quoteExec quotes an Exec argument as the desktop entry specification requires.
func quoteExec(arg string) string {
	if !strings.ContainsAny(arg, " \t\"'\\$`") {
		return arg
	}
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`, "$", `\$`, "`", "\\`")
	return `"` + r.Replace(arg) + `"`
}
