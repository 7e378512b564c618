package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/TolesaD/botomics/core/app"
	"github.com/TolesaD/botomics/core/bootstrap"
	"github.com/TolesaD/botomics/core/buildinfo"
	corecmd "github.com/TolesaD/botomics/core/cmd"
	coreconfig "github.com/TolesaD/botomics/core/config"
	"github.com/TolesaD/botomics/core/flow"
	"github.com/TolesaD/botomics/core/logger"
	"github.com/TolesaD/botomics/core/minibot"
	"github.com/TolesaD/botomics/core/tokenbox"

	"github.com/urfave/cli/v2"
)

// ServeCommand runs the main bot, the mini-bot pool and the admin API.
func ServeCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "run the platform until SIGINT or SIGTERM",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    "skip-migrations",
				Usage:   "do not apply migrations on startup",
				EnvVars: []string{"SKIP_MIGRATIONS"},
			},
		},
		Action: func(c *cli.Context) error {
			skip := c.Bool("skip-migrations")
			return corecmd.Run(corecmd.Options{
				ConfigPath: c.String("config"),
				LoadConfig: coreconfig.Load,
				Bootstrap: func(ctx context.Context, cfg *coreconfig.Config) (corecmd.TelegramApp, error) {
					infra, err := bootstrap.Run(ctx, bootstrap.Options{Config: cfg, SkipMigrations: skip})
					if err != nil {
						return nil, err
					}
					a, err := app.New(cfg, infra)
					if err != nil {
						_ = infra.Close()
						return nil, err
					}
					return a, nil
				},
			})
		},
	}
}

// MigrateCommand applies pending migrations and exits.
func MigrateCommand() *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "apply database migrations and exit",
		Action: func(c *cli.Context) error {
			cfg, err := coreconfig.Load(c.String("config"))
			if err != nil {
				return err
			}
			defer func() { _ = logger.Shutdown() }()
			infra, err := bootstrap.Run(c.Context, bootstrap.Options{Config: cfg})
			if err != nil {
				return err
			}
			return infra.Close()
		},
	}
}

// EncryptTokenCommand seals a bot token for the bots table.
func EncryptTokenCommand() *cli.Command {
	return &cli.Command{
		Name:      "encrypt-token",
		Usage:     "encrypt a bot token with the configured key",
		ArgsUsage: "<token>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "key",
				Usage:   "base64 encoded 32 byte key; read from the config when empty",
				EnvVars: []string{"ENCRYPTION_KEY"},
			},
		},
		Action: func(c *cli.Context) error {
			token := strings.TrimSpace(c.Args().First())
			if token == "" {
				return errors.New("encrypt-token: token argument is required")
			}
			if !minibot.ValidToken(token) {
				return errors.New("encrypt-token: token is not a Bot API token")
			}
			key := c.String("key")
			if key == "" {
				cfg, err := coreconfig.Load(c.String("config"))
				if err != nil {
					return fmt.Errorf("encrypt-token: %w", err)
				}
				key = cfg.MiniBots.EncryptionKey
			}
			box, err := tokenbox.New(key)
			if err != nil {
				return fmt.Errorf("encrypt-token: %w", err)
			}
			sealed, err := box.Encrypt(token)
			if err != nil {
				return fmt.Errorf("encrypt-token: %w", err)
			}
			_, err = fmt.Fprintln(c.App.Writer, sealed)
			return err
		},
	}
}

// CheckFlowCommand validates a custom flow definition file.
func CheckFlowCommand() *cli.Command {
	return &cli.Command{
		Name:      "check-flow",
		Usage:     "validate a custom flow definition (JSON or YAML)",
		ArgsUsage: "<file>",
		Action: func(c *cli.Context) error {
			path := c.Args().First()
			if path == "" {
				return errors.New("check-flow: file argument is required")
			}
			data, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("check-flow: %w", err)
			}
			var def flow.Definition
			switch strings.ToLower(filepath.Ext(path)) {
			case ".yaml", ".yml":
				def, err = flow.ParseYAML(data)
			default:
				def, err = flow.Parse(data)
			}
			if err != nil {
				return fmt.Errorf("check-flow: %w", err)
			}
			if len(def.Flows) == 0 {
				return errors.New("check-flow: no flows defined")
			}
			for _, f := range def.Flows {
				trigger := "-"
				if t, ok := f.Trigger(); ok && t.Command != "" {
					trigger = t.Command
				}
				fmt.Fprintf(c.App.Writer, "%s\ttrigger=%s\tsteps=%d\n", f.Name, trigger, len(f.Steps))
			}
			return nil
		},
	}
}

// VersionCommand prints build information.
func VersionCommand() *cli.Command {
	return &cli.Command{
		Name:  "version",
		Usage: "print build information",
		Action: func(c *cli.Context) error {
			_, err := fmt.Fprintln(c.App.Writer, buildinfo.String())
			return err
		},
	}
}
