package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/capturist/capturist/internal/app"
	"github.com/capturist/capturist/internal/deeplink"
	"github.com/capturist/capturist/internal/ipc"
	"github.com/capturist/capturist/internal/observability"
)

// Execute runs the root command with the given context and arguments.
func Execute(ctx context.Context, args []string) error {
	cmd := &cli.Command{
		Name:      "capturist",
		Usage:     "Quick capture for Todoist",
		ArgsUsage: "[capturist://...]",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to config file (default: capturist/config.toml in the user config directory, when present)",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "log level (debug|info|warn|error)",
				Value: slog.LevelInfo.String(),
			},
			&cli.StringFlag{
				Name:  "log-format",
				Usage: "log format (text|json|otel)",
				Value: string(app.DefaultConfigLogFormat),
			},
			&cli.StringFlag{
				Name:  "server--host",
				Usage: "local server host",
				Value: app.DefaultConfigServerHost,
			},
			&cli.IntFlag{
				Name:  "server--port",
				Usage: "local server port",
				Value: int(app.DefaultConfigServerPort),
			},
			&cli.BoolFlag{
				Name:  "minimize",
				Usage: "start without opening a window",
			},
			&cli.StringFlag{
				Name:  "todoist--client-id",
				Usage: "Todoist OAuth client ID",
			},
			&cli.StringFlag{
				Name:  "todoist--client-secret",
				Usage: "Todoist OAuth client secret",
			},
			&cli.StringFlag{
				Name:  "todoist--redirect-url",
				Usage: "redirect URL registered with Todoist",
			},
			&cli.StringFlag{
				Name:  "storage--settings-file",
				Usage: "path to the settings document",
			},
		},
		Action: runAction,
		Commands: []*cli.Command{
			loginCommand(),
			logoutCommand(),
			tokenCommand(),
			statusCommand(),
			openCommand(),
			quickAddCommand(),
			autostartCommand(),
		},
	}

	return cmd.Run(ctx, args)
}

// runAction starts the application, or hands the invocation to an already
// running instance.
func runAction(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd.String("config"), cmd, os.Environ)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	minimize := cmd.Bool("minimize")
	args := cmd.Args().Slice()
	link, hasLink := deeplink.FindLink(cfg.DeepLink.Scheme, args)

	forwarded, err := forwardToRunningInstance(ctx, cfg, args, minimize)
	if err != nil {
		return err
	}
	if forwarded {
		return nil
	}

	// Set up observability before creating app
	shutdown, err := observability.Instrument(ctx, cfg.LogLevel, string(cfg.LogFormat))
	if err != nil {
		return fmt.Errorf("failed to set up observability layer: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), cfg.Shutdown.Timeout)
		defer cancel()
		if err := shutdown(flushCtx); err != nil {
			fmt.Fprintf(os.Stderr, "failed to flush logs: %v\n", err)
		}
	}()

	opts := []app.Option{app.WithMinimize(minimize)}
	if hasLink {
		opts = append(opts, app.WithDeepLink(link))
	}

	application, err := app.New(ctx, cfg, opts...)
	if err != nil {
		return fmt.Errorf("failed to create app: %w", err)
	}

	slog.InfoContext(ctx, "starting")

	if err := application.Start(ctx); err != nil {
		return fmt.Errorf("app failed to start: %w", err)
	}

	slog.InfoContext(ctx, "stopped gracefully")
	return nil
}

// forwardToRunningInstance passes a deep link, or a request to raise the
// quick-add window, to the instance already serving the local address. It
// reports false when no instance is running.
func forwardToRunningInstance(ctx context.Context, cfg *app.Config, args []string, minimize bool) (bool, error) {
	client := ipc.NewClient(cfg.ServerAddress())

	if _, err := client.Status(ctx); err != nil {
		if errors.Is(err, ipc.ErrNotRunning) {
			return false, nil
		}
		return false, fmt.Errorf("checking for a running instance: %w", err)
	}

	if link, ok := deeplink.FindLink(cfg.DeepLink.Scheme, args); ok {
		if _, err := client.OpenLink(ctx, link); err != nil {
			return true, fmt.Errorf("forwarding link: %w", err)
		}
	}

	if minimize || deeplink.IsOAuthLink(cfg.DeepLink.Scheme, cfg.DeepLink.OAuthHost, args) {
		return true, nil
	}

	if err := client.QuickAdd(ctx); err != nil {
		return true, fmt.Errorf("raising quick add: %w", err)
	}
	return true, nil
}
