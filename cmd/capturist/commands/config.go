package commands

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/toml/v2"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/urfave/cli/v3"

	"github.com/capturist/capturist/internal/app"
)

// envPrefix marks the environment variables read as config (CAPTURIST_TODOIST__CLIENT_ID → todoist.client_id).
const envPrefix = "CAPTURIST_"

// defaultConfigFile is looked up under the user config directory when --config is not given.
const defaultConfigFile = "capturist/config.toml"

// localFlags belong to a single invocation and never reach the config.
var localFlags = map[string]bool{
	"config":   true,
	"minimize": true,
	"reveal":   true,
}

// configLoader layers the config sources of one invocation. Later layers win:
// config file, then environment, then flags. Defaults fill whatever is left.
type configLoader struct {
	k       *koanf.Koanf
	environ func() []string
}

// loadConfig resolves the configuration for an invocation. configPath may be
// empty, in which case the per-user config file is used when it exists.
func loadConfig(configPath string, cmd *cli.Command, environ func() []string) (*app.Config, error) {
	l := &configLoader{k: koanf.New("."), environ: environ}

	path, explicit, err := resolveConfigPath(configPath)
	if err != nil {
		return nil, err
	}
	if err := l.file(path, explicit); err != nil {
		return nil, err
	}
	if err := l.env(); err != nil {
		return nil, err
	}
	if err := l.flags(cmd); err != nil {
		return nil, err
	}
	return l.config()
}

// resolveConfigPath picks the config file. An explicit path must exist; the
// per-user default is optional.
func resolveConfigPath(configPath string) (string, bool, error) {
	if configPath != "" {
		return configPath, true, nil
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		// No home to look in means no default file, not a broken invocation.
		return "", false, nil
	}
	return filepath.Join(dir, filepath.FromSlash(defaultConfigFile)), false, nil
}

func (l *configLoader) file(path string, explicit bool) error {
	if path == "" {
		return nil
	}
	if !explicit {
		if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
			return nil
		}
	}
	if err := l.k.Load(file.Provider(path), toml.Parser()); err != nil {
		return fmt.Errorf("loading config file: %w", err)
	}
	return nil
}

func (l *configLoader) env() error {
	provider := env.Provider(".", env.Opt{
		Prefix:        envPrefix,
		TransformFunc: envKey,
		EnvironFunc:   l.environ,
	})
	if err := l.k.Load(provider, nil); err != nil {
		return fmt.Errorf("loading environment variables: %w", err)
	}
	return nil
}

func (l *configLoader) flags(cmd *cli.Command) error {
	if cmd == nil {
		return nil
	}
	if err := l.k.Load(confmap.Provider(extractAndTransformFlags(cmd), "."), nil); err != nil {
		return fmt.Errorf("loading CLI flags: %w", err)
	}
	return nil
}

func (l *configLoader) config() (*app.Config, error) {
	cfg := &app.Config{}
	if err := l.k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	if err := cfg.ApplyDefaults(); err != nil {
		return nil, fmt.Errorf("applying defaults: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// envKey maps CAPTURIST_DEEP_LINK__SCHEME to deep_link.scheme.
func envKey(name, value string) (string, any) {
	name = strings.TrimPrefix(name, envPrefix)
	return strings.ToLower(strings.ReplaceAll(name, "__", ".")), value
}

// flagKey maps --todoist--client-id to todoist.client_id.
func flagKey(name string) string {
	return strings.ReplaceAll(strings.ReplaceAll(name, "--", "."), "-", "_")
}

// extractAndTransformFlags collects the flags set on this invocation, parents
// included, keyed by their config path.
func extractAndTransformFlags(cmd *cli.Command) map[string]any {
	values := make(map[string]any)
	for _, name := range cmd.FlagNames() {
		// Unset flags would mask the file and environment with their defaults.
		if localFlags[name] || !cmd.IsSet(name) {
			continue
		}
		if value := cmd.Value(name); value != nil {
			values[flagKey(name)] = value
		}
	}
	return values
}
