package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/urfave/cli/v3"
	"golang.org/x/term"

	"github.com/capturist/capturist/internal/ipc"
)

// clientAction runs fn against the running instance.
func clientAction(fn func(ctx context.Context, cmd *cli.Command, client *ipc.Client) error) cli.ActionFunc {
	return func(ctx context.Context, cmd *cli.Command) error {
		cfg, err := loadConfig(cmd.String("config"), cmd, os.Environ)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		err = fn(ctx, cmd, ipc.NewClient(cfg.ServerAddress()))
		if errors.Is(err, ipc.ErrNotRunning) {
			return fmt.Errorf("%w (start it with `capturist --minimize`)", err)
		}
		return err
	}
}

func loginCommand() *cli.Command {
	return &cli.Command{
		Name:  "login",
		Usage: "start the Todoist login in the browser",
		Action: clientAction(func(ctx context.Context, cmd *cli.Command, client *ipc.Client) error {
			authURL, err := client.StartLogin(ctx)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.Root().Writer, "Continue in your browser. If it did not open, visit:\n%s\n", authURL)
			return err
		}),
	}
}

func logoutCommand() *cli.Command {
	return &cli.Command{
		Name:  "logout",
		Usage: "forget the stored Todoist token",
		Action: clientAction(func(ctx context.Context, cmd *cli.Command, client *ipc.Client) error {
			status, err := client.LogOut(ctx)
			if err != nil {
				return err
			}
			return writeJSON(cmd.Root().Writer, status)
		}),
	}
}

func tokenCommand() *cli.Command {
	return &cli.Command{
		Name:  "token",
		Usage: "print the stored Todoist token",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "reveal",
				Usage: "print the token even when stdout is a terminal",
			},
		},
		Action: clientAction(func(ctx context.Context, cmd *cli.Command, client *ipc.Client) error {
			if isTerminal(cmd.Root().Writer) && !cmd.Bool("reveal") {
				return errors.New("refusing to print the token to a terminal; pipe the output or pass --reveal")
			}

			token, found, err := client.Token(ctx)
			if err != nil {
				return err
			}
			if !found {
				return errors.New("not logged in")
			}
			_, err = fmt.Fprintln(cmd.Root().Writer, token)
			return err
		}),
	}
}

func statusCommand() *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "show authentication and surface state",
		Action: clientAction(func(ctx context.Context, cmd *cli.Command, client *ipc.Client) error {
			status, err := client.Status(ctx)
			if err != nil {
				return err
			}
			surfaces, err := client.Surfaces(ctx)
			if err != nil {
				return err
			}
			return writeJSON(cmd.Root().Writer, struct {
				ipc.StatusResponse
				Surfaces ipc.SurfacesResponse `json:"surfaces"`
			}{status, surfaces})
		}),
	}
}

func openCommand() *cli.Command {
	return &cli.Command{
		Name:      "open",
		Usage:     "hand a capturist:// link to the running instance",
		ArgsUsage: "<url>",
		Action: clientAction(func(ctx context.Context, cmd *cli.Command, client *ipc.Client) error {
			if cmd.Args().Len() != 1 {
				return errors.New("expected exactly one URL")
			}
			status, err := client.OpenLink(ctx, cmd.Args().First())
			if err != nil {
				return err
			}
			return writeJSON(cmd.Root().Writer, status)
		}),
	}
}

func quickAddCommand() *cli.Command {
	return &cli.Command{
		Name:  "quick-add",
		Usage: "raise the quick add window",
		Action: clientAction(func(ctx context.Context, _ *cli.Command, client *ipc.Client) error {
			return client.QuickAdd(ctx)
		}),
	}
}

func autostartCommand() *cli.Command {
	return &cli.Command{
		Name:      "autostart",
		Usage:     "turn launching at login on or off",
		ArgsUsage: "on|off",
		Action: clientAction(func(ctx context.Context, cmd *cli.Command, client *ipc.Client) error {
			var enabled bool
			switch cmd.Args().First() {
			case "on":
				enabled = true
			case "off":
				enabled = false
			default:
				return fmt.Errorf("expected on or off, got %q", cmd.Args().First())
			}

			applied, err := client.SetAutostart(ctx, enabled)
			if err != nil {
				return err
			}
			return writeJSON(cmd.Root().Writer, ipc.AutostartResponse{Enabled: applied})
		}),
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
