package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime"
	"sync"

	"github.com/pkg/browser"
	"golang.org/x/oauth2"
	"golang.org/x/sync/errgroup"

	"github.com/capturist/capturist/internal/auth"
	"github.com/capturist/capturist/internal/credstore"
	"github.com/capturist/capturist/internal/deeplink"
	"github.com/capturist/capturist/internal/events"
	"github.com/capturist/capturist/internal/ipc"
	"github.com/capturist/capturist/internal/settings"
	"github.com/capturist/capturist/internal/surface"
	"github.com/capturist/capturist/internal/todoist"
)

// Option configures an App.
type Option func(*options)

type options struct {
	minimize    bool
	deepLink    string
	browser     auth.Browser
	launcher    surface.Launcher
	hasLauncher bool
	environment *surface.Environment
}

// WithMinimize starts without raising a window.
func WithMinimize(minimize bool) Option {
	return func(o *options) {
		o.minimize = minimize
	}
}

// WithDeepLink handles link once the application is running, as when the OS
// launches the first instance through a URL.
func WithDeepLink(link string) Option {
	return func(o *options) {
		o.deepLink = link
	}
}

// WithBrowser replaces the system browser launcher.
func WithBrowser(b auth.Browser) Option {
	return func(o *options) {
		o.browser = b
	}
}

// WithLauncher replaces the autostart launcher. nil disables launcher management.
func WithLauncher(l surface.Launcher) Option {
	return func(o *options) {
		o.launcher = l
		o.hasLauncher = true
	}
}

// WithEnvironment overrides the detected packaging environment.
func WithEnvironment(env surface.Environment) Option {
	return func(o *options) {
		o.environment = &env
	}
}

// App orchestrates the lifecycle of the local server, the deep link router and
// the surfaces built around the shared auth state.
type App struct {
	cfg  *Config
	opts options

	settings  *settings.Store
	store     *credstore.TieredStore
	bus       *events.Bus
	state     *auth.State
	flow      *auth.Flow
	router    *deeplink.Router
	presenter *surface.HeadlessPresenter
	windows   *surface.Windows
	tray      *surface.Tray
	autostart *surface.Autostart
	server    *ipc.Server

	mu   sync.Mutex
	quit context.CancelFunc
}

// New creates a new App instance. The stored token is looked up here, since it
// decides the initial auth state every component is built around.
func New(ctx context.Context, cfg *Config, opts ...Option) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if err := cfg.ValidateCredentials(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	a := &App{cfg: cfg}
	for _, opt := range opts {
		opt(&a.opts)
	}

	env := surface.DetectEnvironment(os.LookupEnv)
	if a.opts.environment != nil {
		env = *a.opts.environment
	}
	slog.DebugContext(ctx, "detected environment",
		"snap", env.Snap, "flatpak", env.Flatpak, "appimage", env.AppImage,
		"sandboxed", env.Sandboxed(), "global_shortcuts", env.GlobalShortcuts())
	shortcut := env.Shortcut(runtime.GOOS)

	var err error
	a.settings, err = settings.New(cfg.Storage.SettingsFile)
	if err != nil {
		return nil, fmt.Errorf("failed to open settings: %w", err)
	}

	a.store, err = newCredentialStore(cfg.Storage, a.settings)
	if err != nil {
		return nil, fmt.Errorf("failed to create credential store: %w", err)
	}

	_, authenticated, err := a.store.Find(ctx, settings.KeyTodoistToken)
	if err != nil {
		return nil, fmt.Errorf("failed to read stored token: %w", err)
	}
	slog.InfoContext(ctx, "initial authentication state", "authenticated", authenticated)

	a.bus = events.NewBus()
	a.state = auth.NewState(authenticated)
	a.state.Attach(a.bus)

	client := todoist.NewClient(cfg.Todoist.ClientID, cfg.Todoist.ClientSecret, cfg.Todoist.PermissionScopes(),
		todoist.WithEndpoint(oauth2.Endpoint{
			AuthURL:   cfg.Todoist.AuthURL,
			TokenURL:  cfg.Todoist.TokenURL,
			AuthStyle: oauth2.AuthStyleInParams,
		}),
		todoist.WithRedirectURL(cfg.Todoist.RedirectURL),
		todoist.WithTimeout(cfg.Todoist.Timeout),
	)

	b := a.opts.browser
	if b == nil {
		b = systemBrowser()
	}
	a.flow, err = auth.NewFlow(a.state, client, a.store, a.bus, auth.WithBrowser(b))
	if err != nil {
		return nil, fmt.Errorf("failed to create login flow: %w", err)
	}

	a.router, err = deeplink.NewRouter(a.flow,
		deeplink.WithScheme(cfg.DeepLink.Scheme),
		deeplink.WithOAuthHost(cfg.DeepLink.OAuthHost),
		deeplink.WithWorkers(cfg.Workers),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create deep link router: %w", err)
	}

	a.presenter = surface.NewHeadlessPresenter()
	a.windows, err = surface.NewWindows(a.presenter, a.state)
	if err != nil {
		return nil, fmt.Errorf("failed to create window switcher: %w", err)
	}
	a.windows.Attach(a.bus)

	launcher, err := a.newLauncher(env)
	if err != nil {
		return nil, fmt.Errorf("failed to create autostart launcher: %w", err)
	}
	a.autostart, err = surface.NewAutostart(a.settings, launcher)
	if err != nil {
		return nil, fmt.Errorf("failed to create autostart: %w", err)
	}
	// Before the tray, so its check mark follows an applied preference.
	a.autostart.Attach(a.bus)

	var trayOpts []surface.TrayOption
	if env.ManagesAutostart() {
		trayOpts = append(trayOpts, surface.WithoutAutostartItem())
	}
	a.tray, err = surface.NewTray(a.state, a.bus, surface.TrayActions{
		LogOut: a.flow.LogOut,
		Quit:   a.Quit,
	}, surface.DefaultAutostart, trayOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create tray: %w", err)
	}
	a.tray.Attach(a.bus)

	a.server, err = ipc.New(ipc.Services{
		Auth:      a.flow,
		State:     a.state,
		Storage:   a.store,
		Links:     a.router,
		Bus:       a.bus,
		Windows:   a.windows,
		Presenter: a.presenter,
		Tray:      a.tray,
		Autostart: a.autostart,
		Shortcut:  &shortcut,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create local server: %w", err)
	}

	return a, nil
}

// Start starts all services and blocks until shutdown is triggered.
// Uses errgroup for runtime error monitoring and shutdown function collection for coordinated cleanup.
func (a *App) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	a.mu.Lock()
	a.quit = cancel
	a.mu.Unlock()

	g, gCtx := errgroup.WithContext(ctx)

	address := a.cfg.ServerAddress()
	var shutdownFuncs []func(context.Context) error

	// Startup phase: Start services
	if enabled, err := a.autostart.Setup(gCtx); err != nil {
		slog.WarnContext(gCtx, "autostart setup failed", "error", err)
	} else if err := a.tray.HandleAutostart(gCtx, events.Autostart{Enabled: enabled}); err != nil {
		slog.WarnContext(gCtx, "failed to sync tray with autostart", "error", err)
	}

	if err := a.router.Start(gCtx); err != nil {
		return fmt.Errorf("deep link router startup failed: %w", err)
	}
	shutdownFuncs = append(shutdownFuncs, a.router.Shutdown)

	slog.InfoContext(gCtx, "starting local server", "address", address)
	serverErrCh, err := a.server.Start(gCtx, address)
	if err != nil {
		_ = a.router.Shutdown(context.Background())
		return fmt.Errorf("local server startup failed: %w", err)
	}
	shutdownFuncs = append(shutdownFuncs, a.server.Shutdown)

	if err := a.windows.Init(gCtx, a.opts.minimize); err != nil {
		slog.WarnContext(gCtx, "failed to open initial window", "error", err)
	}

	// Monitor runtime errors - errgroup cancels context on first error
	g.Go(func() error {
		select {
		case err := <-serverErrCh:
			if err != nil {
				slog.ErrorContext(gCtx, "local server runtime error", "error", err)
				return fmt.Errorf("local server: %w", err)
			}
			return nil
		case <-gCtx.Done():
			return nil
		}
	})

	g.Go(func() error {
		if err := a.autostart.Watch(gCtx, a.bus); err != nil {
			// Losing external edits is not worth stopping the application.
			slog.WarnContext(gCtx, "settings watcher stopped", "error", err)
		}
		return nil
	})

	if a.opts.deepLink != "" {
		if _, err := a.router.Dispatch(gCtx, a.opts.deepLink); err != nil {
			slog.WarnContext(gCtx, "ignoring startup deep link", "error", err)
		}
	}

	slog.InfoContext(gCtx, "application ready", "address", a.server.Addr())

	runtimeErr := g.Wait()

	slog.InfoContext(gCtx, "shutting down services")

	// Shutdown phase: Stop all services
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), a.cfg.Shutdown.Timeout)
	defer shutdownCancel()

	var errs []error
	if runtimeErr != nil {
		errs = append(errs, fmt.Errorf("runtime: %w", runtimeErr))
	}

	for i := len(shutdownFuncs) - 1; i >= 0; i-- {
		if err := shutdownFuncs[i](shutdownCtx); err != nil {
			slog.ErrorContext(shutdownCtx, "service shutdown failed", "error", err)
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	slog.Info("application stopped")
	return nil
}

// Quit stops a running Start. It is safe to call at any time.
func (a *App) Quit() {
	a.mu.Lock()
	quit := a.quit
	a.mu.Unlock()

	if quit != nil {
		quit()
	}
}

// Addr returns the local server address once Start is listening.
func (a *App) Addr() string {
	return a.server.Addr()
}

func (a *App) newLauncher(env surface.Environment) (surface.Launcher, error) {
	if a.opts.hasLauncher {
		return a.opts.launcher, nil
	}
	if !a.cfg.Autostart.Managed() || env.ManagesAutostart() {
		return nil, nil
	}

	executable, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("locating executable: %w", err)
	}
	// AppImages are mounted at a random path on every launch.
	if env.AppImage {
		if appImage, ok := os.LookupEnv("APPIMAGE"); ok && appImage != "" {
			executable = appImage
		}
	}
	return surface.NewDesktopEntryLauncher(a.cfg.Autostart.Dir, appDirName, executable)
}

// newCredentialStore builds the keyring tier with the settings file as fallback.
func newCredentialStore(cfg StorageConfig, doc *settings.Store) (*credstore.TieredStore, error) {
	secure, err := credstore.NewKeyringStore(cfg.KeyringService)
	if err != nil {
		return nil, err
	}
	fallback, err := credstore.NewSettingsStore(doc)
	if err != nil {
		return nil, err
	}

	var opts []credstore.TieredOption
	if !cfg.AllowInsecureFallback() {
		opts = append(opts, credstore.WithoutFallback())
	}
	return credstore.NewTieredStore(secure, fallback, opts...)
}

// systemBrowser opens URLs with the desktop's default browser, keeping the
// opener's output off the application's terminal.
func systemBrowser() auth.Browser {
	browser.Stdout = io.Discard
	browser.Stderr = io.Discard
	return auth.BrowserFunc(browser.OpenURL)
}
