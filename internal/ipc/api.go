package ipc

import "github.com/capturist/capturist/internal/surface"

// Routes served on the loopback address.
const (
	PathAuthStart     = "/v1/auth/start"
	PathAuthToken     = "/v1/auth/token"
	PathAuthStatus    = "/v1/auth/status"
	PathAuthLogout    = "/v1/auth/logout"
	PathDeepLink      = "/v1/deeplink"
	PathAutostart     = "/v1/autostart"
	PathQuickAdd      = "/v1/quick-add"
	PathSurfaces      = "/v1/surfaces"
	PathTrayClick     = "/v1/tray/click"
	PathOAuthCallback = "/oauth/callback"
)

type AuthStartResponse struct {
	AuthorizationURL string `json:"authorization_url"`
}

type TokenResponse struct {
	Token string `json:"token"`
}

// StatusResponse reports the login status. SecureStorage is false when the token
// had to be written to the plain settings file.
type StatusResponse struct {
	Authenticated bool `json:"authenticated"`
	SecureStorage bool `json:"secure_storage"`
}

type DeepLinkRequest struct {
	URL string `json:"url"`
}

type AutostartRequest struct {
	Enabled bool `json:"enabled"`
}

type AutostartResponse struct {
	Enabled bool `json:"enabled"`
}

type TrayClickRequest struct {
	ID surface.MenuID `json:"id"`
}

// SurfacesResponse is a snapshot of every headless surface.
type SurfacesResponse struct {
	Mode      surface.Mode                          `json:"mode"`
	Windows   map[surface.Window]surface.Visibility `json:"windows"`
	Tray      []surface.MenuItem                    `json:"tray"`
	Autostart bool                                  `json:"autostart"`
	Shortcut  *surface.Shortcut                     `json:"shortcut,omitempty"`
}
