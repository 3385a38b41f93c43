package main

import (
	"context"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/franksops/gfupload/config"
)

func main() {
	runner := NewRunner(RunnerOpts{})

	app := &cli.Command{
		Name:    "gfupload",
		Usage:   "Background file uploads with retries and progress notifications",
		Version: "0.1.0",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to configuration file",
				Value:   config.DefaultPath,
			},
			&cli.BoolFlag{
				Name:    "verbose",
				Aliases: []string{"v"},
				Usage:   "Enable debug logging",
			},
		},
		Commands: runner.register(),
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		runner.logger.Fatal("application error", "error", err)
	}
}
