package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"

	"github.com/franksops/gfupload/api"
	"github.com/franksops/gfupload/provider"
	"github.com/franksops/gfupload/ui"
)

func serveCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the upload service with its HTTP control API",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "addr",
				Usage: "Listen address (default from config)",
			},
		},
		Action: r.Serve,
	}
}

// Serve runs the upload service until interrupted. Tasks still running on
// shutdown are cancelled.
func (r *Runner) Serve(ctx context.Context, cmd *cli.Command) error {
	if err := r.setup(cmd); err != nil {
		return err
	}
	if cmd.IsSet("addr") {
		r.cfg.API.Addr = cmd.String("addr")
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	s, err := r.newStack(ctx, surface{
		presenter: ui.NewLogPresenter(r.logger),
		icons:     &ui.ImageDecoder{Files: provider.NewLocalProvider("")},
	})
	if err != nil {
		return err
	}
	defer s.Close()

	s.service.OnTaskFinished(func(id string) {
		r.logger.Debug("task finished", "task_id", id)
	})

	handler := api.NewHandler(s.service, s.journal, s.uploader, api.Defaults{
		MaxRetries:   r.cfg.Retry.MaxRetries,
		Notification: r.cfg.Notifications(),
	}, r.logger)

	return api.Serve(ctx, r.cfg.API.Addr, handler.Routes(), r.logger)
}
