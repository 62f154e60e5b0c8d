package app

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/capturist/capturist/internal/deeplink"
	"github.com/capturist/capturist/internal/todoist"
)

// LogFormat represents the logging output format.
type LogFormat string

const (
	LogFormatText LogFormat = "text"
	LogFormatJSON LogFormat = "json"
	LogFormatOTel LogFormat = "otel"
)

// Default configuration values
const (
	DefaultConfigLogFormat         = LogFormatText
	DefaultConfigServerHost        = "127.0.0.1"
	DefaultConfigServerPort        = 47821
	DefaultConfigShutdownTimeout   = 5 * time.Second
	DefaultConfigTodoistTimeout    = todoist.DefaultTimeout
	DefaultConfigKeyringService    = "capturist"
	DefaultConfigDeepLinkScheme    = deeplink.DefaultScheme
	DefaultConfigDeepLinkOAuthHost = deeplink.HostOAuth
	DefaultConfigWorkers           = deeplink.DefaultWorkers

	// appDirName is the per-user directory holding the settings document.
	appDirName = "capturist"
)

// ServerConfig holds configuration of the local loopback server.
type ServerConfig struct {
	Host string `json:"host" validate:"hostname_rfc1123|ip"`
	Port uint16 `json:"port"` // Port range 0-65535 handled by uint16 type
}

// ShutdownConfig holds shutdown behavior configuration.
type ShutdownConfig struct {
	// Timeout for graceful shutdown.
	Timeout time.Duration `json:"timeout"`
}

// TodoistConfig holds the OAuth client registration and endpoints.
type TodoistConfig struct {
	ClientID     string        `json:"client_id"`
	ClientSecret string        `json:"client_secret"`
	AuthURL      string        `json:"auth_url" validate:"required,url"`
	TokenURL     string        `json:"token_url" validate:"required,url"`
	RedirectURL  string        `json:"redirect_url,omitempty" validate:"omitempty,url"`
	Scopes       []string      `json:"scopes" validate:"min=1,dive,oneof=task:add data:read data:read_write data:delete project:delete backups:read"`
	Timeout      time.Duration `json:"timeout" validate:"gte=0"`
}

// PermissionScopes returns the configured scopes. Call after Validate.
func (t *TodoistConfig) PermissionScopes() []todoist.PermissionScope {
	scopes := make([]todoist.PermissionScope, 0, len(t.Scopes))
	for _, s := range t.Scopes {
		if scope, ok := todoist.ParseScope(s); ok {
			scopes = append(scopes, scope)
		}
	}
	return scopes
}

// StorageConfig describes where credentials and preferences are kept.
type StorageConfig struct {
	SettingsFile   string `json:"settings_file" validate:"required"`
	KeyringService string `json:"keyring_service" validate:"required"`

	// InsecureFallback allows writing the token to the settings file when the
	// system keyring is unavailable. Defaults to true.
	InsecureFallback *bool `json:"insecure_fallback,omitempty"`
}

// AllowInsecureFallback reports whether the plain settings file may hold secrets.
func (s *StorageConfig) AllowInsecureFallback() bool {
	return s.InsecureFallback == nil || *s.InsecureFallback
}

// DeepLinkConfig describes the URL scheme registered with the OS.
type DeepLinkConfig struct {
	Scheme    string `json:"scheme" validate:"required,hostname_rfc1123"`
	OAuthHost string `json:"oauth_host" validate:"required,hostname_rfc1123"`
}

// AutostartConfig describes how launching at login is managed.
type AutostartConfig struct {
	// Manage lets the application install and remove its autostart entry. Defaults to true.
	Manage *bool  `json:"manage,omitempty"`
	Dir    string `json:"dir"`
}

// Managed reports whether the autostart entry is managed.
func (a *AutostartConfig) Managed() bool {
	return a.Manage == nil || *a.Manage
}

// Config holds the application's configuration.
type Config struct {
	// LogLevel for logging output (defaults to Info if unset).
	LogLevel  slog.Level      `json:"log_level"`
	LogFormat LogFormat       `json:"log_format" validate:"oneof=text json otel"`
	Server    ServerConfig    `json:"server"`
	Shutdown  ShutdownConfig  `json:"shutdown"`
	Todoist   TodoistConfig   `json:"todoist"`
	Storage   StorageConfig   `json:"storage"`
	DeepLink  DeepLinkConfig  `json:"deep_link"`
	Autostart AutostartConfig `json:"autostart"`

	// Workers bounds concurrent OAuth callback handling.
	Workers int `json:"workers" validate:"gte=1,lte=64"`
}

// Default creates a new Config with default values applied.
func Default() (*Config, error) {
	cfg := &Config{}
	if err := cfg.ApplyDefaults(); err != nil {
		return nil, fmt.Errorf("failed to apply defaults: %w", err)
	}
	return cfg, nil
}

// ApplyDefaults fills unset config fields with sensible defaults.
func (c *Config) ApplyDefaults() error {
	if c.LogFormat == "" {
		c.LogFormat = DefaultConfigLogFormat
	}
	if c.Server.Host == "" {
		c.Server.Host = DefaultConfigServerHost
	}
	if c.Server.Port == 0 {
		c.Server.Port = DefaultConfigServerPort
	}
	if c.Shutdown.Timeout == 0 {
		c.Shutdown.Timeout = DefaultConfigShutdownTimeout
	}
	if c.Todoist.AuthURL == "" {
		c.Todoist.AuthURL = todoist.Endpoint.AuthURL
	}
	if c.Todoist.TokenURL == "" {
		c.Todoist.TokenURL = todoist.Endpoint.TokenURL
	}
	if len(c.Todoist.Scopes) == 0 {
		for _, scope := range todoist.DefaultScopes {
			c.Todoist.Scopes = append(c.Todoist.Scopes, string(scope))
		}
	}
	if c.Todoist.Timeout == 0 {
		c.Todoist.Timeout = DefaultConfigTodoistTimeout
	}
	if c.Storage.KeyringService == "" {
		c.Storage.KeyringService = DefaultConfigKeyringService
	}
	if c.DeepLink.Scheme == "" {
		c.DeepLink.Scheme = DefaultConfigDeepLinkScheme
	}
	if c.DeepLink.OAuthHost == "" {
		c.DeepLink.OAuthHost = DefaultConfigDeepLinkOAuthHost
	}
	if c.Workers == 0 {
		c.Workers = DefaultConfigWorkers
	}

	// Dynamic defaults based on the user's config directory
	if c.Storage.SettingsFile == "" || c.Autostart.Dir == "" {
		configDir, err := os.UserConfigDir()
		if err != nil {
			return fmt.Errorf("storage.settings_file and autostart.dir required (auto-detect failed: %w)", err)
		}
		if c.Storage.SettingsFile == "" {
			c.Storage.SettingsFile = filepath.Join(configDir, appDirName, "capturist.json")
		}
		if c.Autostart.Dir == "" {
			c.Autostart.Dir = filepath.Join(configDir, "autostart")
		}
	}

	return nil
}

// Validate validates the configuration using struct tags and enum values.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return err
	}

	if c.Autostart.Managed() && c.Autostart.Dir == "" {
		return errors.New("autostart.dir required when autostart is managed")
	}

	return nil
}

// ValidateCredentials checks the OAuth client registration, which only the
// running application needs.
func (c *Config) ValidateCredentials() error {
	if c.Todoist.ClientID == "" {
		return errors.New("todoist.client_id required")
	}
	if c.Todoist.ClientSecret == "" {
		return errors.New("todoist.client_secret required")
	}
	return nil
}

// ServerAddress returns the host:port of the local server.
func (c *Config) ServerAddress() string {
	return net.JoinHostPort(c.Server.Host, strconv.FormatUint(uint64(c.Server.Port), 10))
}
