package deeplink

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"
)

const (
	// DefaultScheme is the URL scheme registered with the OS.
	DefaultScheme = "capturist"

	// HostOAuth identifies the OAuth return path: capturist://oauth?code=...&state=...
	HostOAuth = "oauth"

	// DefaultWorkers bounds how many callbacks complete concurrently.
	DefaultWorkers = 4
)

var (
	// ErrUnknownHost means the link uses the registered scheme but no handler owns its host.
	ErrUnknownHost = errors.New("unknown deep link host")

	// ErrNotDeepLink means the input is empty or does not use the registered scheme.
	ErrNotDeepLink = errors.New("not a deep link")

	// ErrRouterClosed means the router is not running.
	ErrRouterClosed = errors.New("deep link router is not running")
)

// Completer finishes an OAuth login from its callback URL.
type Completer interface {
	CompleteLogin(ctx context.Context, callback *url.URL) error
}

// RouterOption configures a Router.
type RouterOption func(*Router)

// WithScheme overrides DefaultScheme.
func WithScheme(scheme string) RouterOption {
	return func(r *Router) {
		r.scheme = strings.ToLower(scheme)
	}
}

// WithOAuthHost overrides HostOAuth.
func WithOAuthHost(host string) RouterOption {
	return func(r *Router) {
		r.oauthHost = strings.ToLower(host)
	}
}

// WithWorkers sets the worker pool size. Values below 1 are ignored.
func WithWorkers(n int) RouterOption {
	return func(r *Router) {
		if n > 0 {
			r.workers = n
		}
	}
}

// Router parses deep links delivered by the OS and runs the matching handler on a
// bounded worker pool, off the caller's goroutine.
type Router struct {
	scheme    string
	oauthHost string
	workers   int
	completer Completer

	mu     sync.RWMutex
	ctx    context.Context
	cancel context.CancelFunc
	group  *errgroup.Group
}

// NewRouter creates a Router delivering OAuth callbacks to completer.
func NewRouter(completer Completer, opts ...RouterOption) (*Router, error) {
	if completer == nil {
		return nil, fmt.Errorf("missing login completer")
	}

	r := &Router{
		scheme:    DefaultScheme,
		oauthHost: HostOAuth,
		workers:   DefaultWorkers,
		completer: completer,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Scheme returns the URL scheme the router accepts.
func (r *Router) Scheme() string {
	return r.scheme
}

// Start prepares the worker pool. Work dispatched afterwards runs under ctx, not
// under the context of the request that delivered the link.
func (r *Router) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.group != nil {
		return fmt.Errorf("deep link router already started")
	}

	// Workers must not abort each other, so the group's derived context is not used.
	r.ctx, r.cancel = context.WithCancel(ctx)
	r.group = new(errgroup.Group)
	r.group.SetLimit(r.workers)
	return nil
}

// Parse validates raw as one of the router's links.
func (r *Router) Parse(raw string) (*url.URL, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("%w: empty url", ErrNotDeepLink)
	}

	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNotDeepLink, err)
	}
	if !strings.EqualFold(u.Scheme, r.scheme) {
		return nil, fmt.Errorf("%w: scheme %q", ErrNotDeepLink, u.Scheme)
	}
	return u, nil
}

// Dispatch routes raw to its handler. The returned channel yields the handler's
// result once and is then closed. Unknown hosts are logged and reported as
// ErrUnknownHost without running anything.
func (r *Router) Dispatch(ctx context.Context, raw string) (<-chan error, error) {
	u, err := r.Parse(raw)
	if err != nil {
		slog.WarnContext(ctx, "ignoring invalid deep link", "error", err)
		return nil, err
	}

	host := strings.ToLower(u.Host)
	if host != r.oauthHost {
		slog.WarnContext(ctx, "ignoring deep link for unknown host", "host", host)
		return nil, fmt.Errorf("%w: %q", ErrUnknownHost, host)
	}

	return r.Complete(ctx, u)
}

// Complete runs the OAuth completion for callback on the worker pool, detached from
// ctx. The loopback redirect uses it directly, since its callback is no deep link.
func (r *Router) Complete(ctx context.Context, callback *url.URL) (<-chan error, error) {
	// The read lock keeps Shutdown from waiting on the group while a handler is being added.
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.group == nil || r.ctx.Err() != nil {
		slog.WarnContext(ctx, "deep link router is not running")
		return nil, ErrRouterClosed
	}
	base := r.ctx

	resultCh := make(chan error, 1)
	r.group.Go(func() error {
		defer close(resultCh)

		err := r.completer.CompleteLogin(base, callback)
		if err != nil {
			slog.ErrorContext(base, "oauth callback failed", "error", err)
		} else {
			slog.InfoContext(base, "oauth callback completed")
		}
		resultCh <- err
		// Failures are reported per dispatch, never through the group.
		return nil
	})

	return resultCh, nil
}

// Shutdown stops accepting links and waits for in-flight handlers or ctx expiry.
func (r *Router) Shutdown(ctx context.Context) error {
	r.mu.RLock()
	cancel := r.cancel
	r.mu.RUnlock()
	if cancel == nil {
		return nil
	}
	// Cancel first so handlers blocking Dispatch on a full pool finish early.
	cancel()

	r.mu.Lock()
	group := r.group
	r.group = nil
	r.mu.Unlock()
	if group == nil {
		return nil
	}

	done := make(chan struct{})
	go func() {
		_ = group.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for deep link handlers: %w", ctx.Err())
	}
}

// FindLink returns the first argument that is a URL with the given scheme.
func FindLink(scheme string, args []string) (string, bool) {
	prefix := strings.ToLower(scheme) + "://"
	for _, arg := range args {
		if strings.HasPrefix(strings.ToLower(arg), prefix) {
			return arg, true
		}
	}
	return "", false
}

// IsOAuthLink reports whether args carry an OAuth return link for host. Such an
// invocation only forwards the link and never raises a window.
func IsOAuthLink(scheme, host string, args []string) bool {
	prefix := strings.ToLower(scheme) + "://" + strings.ToLower(host)
	for _, arg := range args {
		lower := strings.ToLower(arg)
		if !strings.HasPrefix(lower, prefix) {
			continue
		}
		rest := lower[len(prefix):]
		if rest == "" || strings.ContainsAny(rest[:1], "/?#") {
			return true
		}
	}
	return false
}
