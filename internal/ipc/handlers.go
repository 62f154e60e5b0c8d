package ipc

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/capturist/capturist/internal/auth"
	"github.com/capturist/capturist/internal/deeplink"
	"github.com/capturist/capturist/internal/events"
	"github.com/capturist/capturist/internal/surface"
)

func (s *Server) handleStartLogin(w http.ResponseWriter, r *http.Request) {
	authURL, err := s.services.Auth.StartLogin(r.Context())
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	writeJSON(r.Context(), w, AuthStartResponse{AuthorizationURL: authURL}, http.StatusOK)
}

func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	token, found, err := s.services.Auth.Token(r.Context())
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	if !found {
		writeJSONError(r.Context(), w, "todoist token not found", http.StatusNotFound)
		return
	}
	writeJSON(r.Context(), w, TokenResponse{Token: token}, http.StatusOK)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(r.Context(), w, s.status(), http.StatusOK)
}

func (s *Server) handleLogOut(w http.ResponseWriter, r *http.Request) {
	if err := s.services.Auth.LogOut(r.Context()); err != nil {
		writeError(r.Context(), w, err)
		return
	}
	writeJSON(r.Context(), w, s.status(), http.StatusOK)
}

func (s *Server) handleDeepLink(w http.ResponseWriter, r *http.Request) {
	var req DeepLinkRequest
	if err := readJSON(w, r, &req); err != nil {
		writeJSONError(r.Context(), w, err.Error(), http.StatusBadRequest)
		return
	}

	resultCh, err := s.services.Links.Dispatch(r.Context(), req.URL)
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}

	select {
	case err := <-resultCh:
		if err != nil {
			writeError(r.Context(), w, err)
			return
		}
		writeJSON(r.Context(), w, s.status(), http.StatusOK)
	case <-r.Context().Done():
		// The handler keeps running on the router's pool; the client just stopped waiting.
		slog.WarnContext(r.Context(), "client stopped waiting for deep link result")
	}
}

func (s *Server) handleAutostart(w http.ResponseWriter, r *http.Request) {
	var req AutostartRequest
	if err := readJSON(w, r, &req); err != nil {
		writeJSONError(r.Context(), w, err.Error(), http.StatusBadRequest)
		return
	}

	receipt := s.services.Bus.Publish(r.Context(), events.Autostart{Enabled: req.Enabled})
	if len(receipt.Failed) > 0 {
		slog.WarnContext(r.Context(), "autostart change not applied everywhere", "failed", receipt.Failed)
	}

	enabled := req.Enabled
	if s.services.Autostart != nil {
		enabled = s.services.Autostart.Enabled()
	}
	writeJSON(r.Context(), w, AutostartResponse{Enabled: enabled}, http.StatusOK)
}

func (s *Server) handleQuickAdd(w http.ResponseWriter, r *http.Request) {
	s.services.Bus.Publish(r.Context(), events.QuickAdd{})
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSurfaces(w http.ResponseWriter, r *http.Request) {
	resp := SurfacesResponse{
		Mode:    surface.ModeUnauthenticated,
		Windows: map[surface.Window]surface.Visibility{},
		Tray:    []surface.MenuItem{},
	}
	if s.services.Windows != nil {
		resp.Mode = s.services.Windows.Mode()
	}
	if s.services.Presenter != nil {
		resp.Windows = s.services.Presenter.Windows()
	}
	if s.services.Tray != nil {
		resp.Tray = s.services.Tray.Items()
	}
	if s.services.Autostart != nil {
		resp.Autostart = s.services.Autostart.Enabled()
	}
	resp.Shortcut = s.services.Shortcut
	writeJSON(r.Context(), w, resp, http.StatusOK)
}

func (s *Server) handleTrayClick(w http.ResponseWriter, r *http.Request) {
	if s.services.Tray == nil {
		writeJSONError(r.Context(), w, "tray is not available", http.StatusNotFound)
		return
	}

	var req TrayClickRequest
	if err := readJSON(w, r, &req); err != nil {
		writeJSONError(r.Context(), w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := s.services.Tray.Click(r.Context(), req.ID); err != nil {
		writeError(r.Context(), w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleOAuthCallback(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")

	// The exchange spends the one-time code, so it runs on the router's pool and
	// survives the browser tab going away.
	resultCh, err := s.services.Links.Complete(r.Context(), r.URL)
	if err == nil {
		select {
		case err = <-resultCh:
		case <-r.Context().Done():
			slog.WarnContext(r.Context(), "browser stopped waiting for oauth callback result")
			return
		}
	}

	if err != nil {
		slog.ErrorContext(r.Context(), "loopback oauth callback failed", "error", err)
		w.WriteHeader(statusFor(err))
		_, _ = w.Write([]byte("Login to Todoist failed. Please start the login from Capturist again.\n"))
		return
	}

	slog.InfoContext(r.Context(), "loopback oauth callback completed")
	_, _ = w.Write([]byte("Logged in to Todoist. You can close this window.\n"))
}

func (s *Server) status() StatusResponse {
	resp := StatusResponse{
		Authenticated: s.services.State.Authenticated(),
		SecureStorage: true,
	}
	if s.services.Storage != nil {
		resp.SecureStorage = !s.services.Storage.Degraded()
	}
	return resp
}

// statusFor maps an error to the HTTP status reported to the UI layer. Storage
// failures, credstore.ErrPersistenceFailed included, are internal errors.
func statusFor(err error) int {
	switch {
	case errors.Is(err, auth.ErrInvalidCallback), errors.Is(err, deeplink.ErrNotDeepLink):
		return http.StatusBadRequest
	case errors.Is(err, auth.ErrCSRFMismatch):
		return http.StatusForbidden
	case errors.Is(err, auth.ErrTokenExchangeFailed):
		return http.StatusBadGateway
	case errors.Is(err, deeplink.ErrUnknownHost), errors.Is(err, surface.ErrUnknownMenuItem):
		return http.StatusNotFound
	case errors.Is(err, deeplink.ErrRouterClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeError(ctx context.Context, w http.ResponseWriter, err error) {
	writeJSONError(ctx, w, err.Error(), statusFor(err))
}
