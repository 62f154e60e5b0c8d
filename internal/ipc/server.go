package ipc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/capturist/capturist/internal/events"
	"github.com/capturist/capturist/internal/observability/middleware"
	"github.com/capturist/capturist/internal/surface"
)

// Authenticator is the login API the server exposes.
type Authenticator interface {
	StartLogin(ctx context.Context) (string, error)
	CompleteLogin(ctx context.Context, callback *url.URL) error
	LogOut(ctx context.Context) error
	Token(ctx context.Context) (string, bool, error)
}

// Dispatcher hands a deep link, or a loopback OAuth callback, to its handler and
// returns the pending result.
type Dispatcher interface {
	Dispatch(ctx context.Context, raw string) (<-chan error, error)
	Complete(ctx context.Context, callback *url.URL) (<-chan error, error)
}

// StorageStatus reports whether secrets had to leave the secure tier.
type StorageStatus interface {
	Degraded() bool
}

// Services are the components behind the endpoints. Auth, State, Links and Bus are
// required; a nil surface leaves it out of the snapshot.
type Services struct {
	Auth    Authenticator
	State   surface.AuthReader
	Storage StorageStatus
	Links   Dispatcher
	Bus     *events.Bus

	Windows   *surface.Windows
	Presenter *surface.HeadlessPresenter
	Tray      *surface.Tray
	Autostart *surface.Autostart
	Shortcut  *surface.Shortcut
}

// Server is the loopback HTTP server through which the UI layer and second
// instances talk to the running application.
type Server struct {
	services Services
	mux      *http.ServeMux

	mu     sync.Mutex
	server *http.Server
	addr   net.Addr
}

// Compile-time check that Server implements http.Handler
var _ http.Handler = (*Server)(nil)

// New creates the server and registers its routes.
func New(services Services) (*Server, error) {
	if services.Auth == nil {
		return nil, fmt.Errorf("missing authenticator")
	}
	if services.State == nil {
		return nil, fmt.Errorf("missing auth state")
	}
	if services.Links == nil {
		return nil, fmt.Errorf("missing deep link dispatcher")
	}
	if services.Bus == nil {
		return nil, fmt.Errorf("missing event bus")
	}

	s := &Server{services: services, mux: http.NewServeMux()}
	logger := slog.Default()

	api := func(h http.HandlerFunc) http.Handler {
		return applyMiddlewares(h,
			middleware.Logging(logger),
			Recovery,
			LoopbackHost,
			RejectCrossOrigin,
		)
	}

	s.mux.Handle("POST "+PathAuthStart, api(s.handleStartLogin))
	s.mux.Handle("GET "+PathAuthToken, api(s.handleToken))
	s.mux.Handle("GET "+PathAuthStatus, api(s.handleStatus))
	s.mux.Handle("POST "+PathAuthLogout, api(s.handleLogOut))
	s.mux.Handle("POST "+PathDeepLink, api(s.handleDeepLink))
	s.mux.Handle("POST "+PathAutostart, api(s.handleAutostart))
	s.mux.Handle("POST "+PathQuickAdd, api(s.handleQuickAdd))
	s.mux.Handle("GET "+PathSurfaces, api(s.handleSurfaces))
	s.mux.Handle("POST "+PathTrayClick, api(s.handleTrayClick))

	// Reached by the browser's redirect, so Origin is not checked. The request log
	// middleware is left out because the query carries the authorization code.
	s.mux.Handle("GET "+PathOAuthCallback, applyMiddlewares(http.HandlerFunc(s.handleOAuthCallback),
		Recovery,
		LoopbackHost,
	))

	return s, nil
}

// ServeHTTP implements http.Handler interface
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// Start starts the HTTP server in the background and returns immediately.
// Returns a channel for runtime errors and a startup error if any.
//
// Startup errors (port in use, permission denied) are returned immediately.
// Runtime errors (network failures during operation) are sent to the error channel.
//
// The caller is responsible for calling Shutdown() to stop the server.
func (s *Server) Start(ctx context.Context, address string) (<-chan error, error) {
	// Startup phase: Create listener synchronously to catch port-in-use errors immediately
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", address, err)
	}

	server := &http.Server{
		Handler:           s,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      2 * time.Minute, // deep link requests wait for the token exchange
		IdleTimeout:       90 * time.Second,
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}

	s.mu.Lock()
	s.server = server
	s.addr = listener.Addr()
	s.mu.Unlock()

	errCh := make(chan error, 1)

	go func() {
		err := server.Serve(listener)
		// Only report error if not from graceful shutdown
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	slog.InfoContext(ctx, "local server listening", "address", listener.Addr().String())
	return errCh, nil
}

// Addr returns the address the server listens on, or "" before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.addr == nil {
		return ""
	}
	return s.addr.String()
}

// Shutdown performs graceful shutdown of the HTTP server.
// Returns error if shutdown fails or times out.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	server := s.server
	s.mu.Unlock()

	if server == nil {
		return nil
	}

	if err := server.Shutdown(ctx); err != nil {
		// Graceful shutdown failed - force close
		_ = server.Close()
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}

	return nil
}
