package main

import (
	"fmt"
	"os"

	"github.com/TolesaD/botomics/core/buildinfo"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"
)

func main() {
	_ = godotenv.Load()

	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:    "botomics",
		Usage:   "Multi-tenant Telegram bot platform",
		Version: buildinfo.String(),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to the YAML config file",
				EnvVars: []string{"CONFIG_PATH"},
				Value:   "config.yaml",
			},
		},
		Commands: []*cli.Command{
			ServeCommand(),
			MigrateCommand(),
			EncryptTokenCommand(),
			CheckFlowCommand(),
			VersionCommand(),
		},
	}
}
