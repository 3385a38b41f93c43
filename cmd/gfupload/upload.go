package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/dustin/go-humanize"
	"github.com/urfave/cli/v3"

	"github.com/franksops/gfupload/engine"
	"github.com/franksops/gfupload/protocol"
	"github.com/franksops/gfupload/provider"
	"github.com/franksops/gfupload/store"
	"github.com/franksops/gfupload/ui"
)

func uploadCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:      "upload",
		Aliases:   []string{"up"},
		Usage:     "Upload files and directories",
		ArgsUsage: "<path>...",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "dest",
				Aliases:  []string{"d"},
				Usage:    "Server URL, or s3://, gs:// or local directory for the copy protocol",
				Required: true,
			},
			&cli.StringFlag{
				Name:    "protocol",
				Aliases: []string{"p"},
				Usage:   "Upload protocol: binary, multipart or copy",
				Value:   protocol.NameMultipart,
			},
			&cli.StringFlag{
				Name:  "method",
				Usage: "HTTP method",
				Value: "POST",
			},
			&cli.StringSliceFlag{
				Name:    "header",
				Aliases: []string{"H"},
				Usage:   "Request header as 'Name: value'",
			},
			&cli.StringSliceFlag{
				Name:    "field",
				Aliases: []string{"F"},
				Usage:   "Extra multipart parameter as name=value",
			},
			&cli.StringFlag{
				Name:  "param",
				Usage: "Multipart parameter name of the files",
				Value: "file",
			},
			&cli.IntFlag{
				Name:  "retries",
				Usage: "Retries after the first failed attempt (default from config)",
			},
			&cli.IntFlag{
				Name:  "concurrency",
				Usage: "Uploads running at the same time (default from config)",
			},
			&cli.Int64Flag{
				Name:  "limit",
				Usage: "Bandwidth limit in bytes per second, 0 for none (default from config)",
			},
			&cli.BoolFlag{
				Name:  "each",
				Usage: "Start one task per file instead of one per argument",
			},
			&cli.BoolFlag{
				Name:  "auto-delete",
				Usage: "Delete local files once their task succeeds",
			},
			&cli.BoolFlag{
				Name:  "tui",
				Usage: "Show the interactive progress view",
				Value: true,
			},
		},
		Action: r.Upload,
	}
}

// Upload starts one task per argument, waits for all of them and prints a
// summary. It fails when any task did not complete.
func (r *Runner) Upload(ctx context.Context, cmd *cli.Command) error {
	if err := r.setup(cmd); err != nil {
		return err
	}

	paths := cmd.Args().Slice()
	if len(paths) == 0 {
		return fmt.Errorf("%w: no paths given", engine.ErrInvalidParameters)
	}

	base, err := r.baseParameters(cmd)
	if err != nil {
		return err
	}
	if cmd.IsSet("concurrency") {
		r.cfg.Service.MaxConcurrentUploads = cmd.Int("concurrency")
	}
	if cmd.IsSet("limit") {
		r.cfg.HTTP.MaxBytesPerSecond = cmd.Int64("limit")
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	surf := surface{icons: &ui.ImageDecoder{Files: provider.NewLocalProvider("")}}
	var program *ui.Program
	var state *ui.UIState
	if cmd.Bool("tui") {
		state = ui.NewUIState(r.cfg.Service.MaxConcurrentUploads)
		program = ui.NewProgram(ui.NewTUIModel(state), tea.WithAltScreen(), tea.WithContext(ctx))
		surf.indicator = program
		// log lines would tear the alt screen
		r.logger.SetOutput(io.Discard)
	} else {
		surf.presenter = ui.NewLogPresenter(r.logger)
	}

	s, err := r.newStack(ctx, surf)
	if err != nil {
		return err
	}
	defer s.Close()

	tasks, err := r.collect(ctx, s.files, paths, base, cmd.String("param"), cmd.Bool("each"))
	if err != nil {
		return err
	}

	var events <-chan engine.Event
	if program != nil {
		var unsubscribe func()
		events, unsubscribe = s.bus.Subscribe("", 256)
		defer unsubscribe()
		state.Resize = s.service.SetMaxConcurrentUploads
	}

	var ids []string
	for _, params := range tasks {
		uploader, err := s.uploader(params.Protocol)
		if err != nil {
			return err
		}
		id, err := s.service.Start(params, uploader)
		if err != nil {
			s.service.CancelAll()
			return fmt.Errorf("failed to start upload: %w", err)
		}
		ids = append(ids, id)
	}

	done := make(chan struct{})
	go func() {
		s.service.Wait()
		close(done)
		if program != nil {
			program.Finish()
		}
	}()

	if program != nil {
		program.Follow(ctx, events)
		if err := program.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
			r.logger.Error("progress view failed", "error", err)
		}
		// leaving the view early cancels what is left
		s.service.CancelAll()
	}
	<-done

	return r.summarize(s.journal, ids)
}

func (r *Runner) baseParameters(cmd *cli.Command) (engine.Parameters, error) {
	headers, err := parsePairs(cmd.StringSlice("header"), ":")
	if err != nil {
		return engine.Parameters{}, err
	}
	fields, err := parseFields(cmd.StringSlice("field"))
	if err != nil {
		return engine.Parameters{}, err
	}

	params := engine.Parameters{
		Protocol:     cmd.String("protocol"),
		Destination:  cmd.String("dest"),
		Method:       strings.ToUpper(cmd.String("method")),
		Headers:      headers,
		FormFields:   fields,
		MaxRetries:   r.cfg.Retry.MaxRetries,
		AutoDelete:   cmd.Bool("auto-delete"),
		Notification: r.cfg.Notifications(),
	}
	if cmd.IsSet("retries") {
		params.MaxRetries = cmd.Int("retries")
	}
	return params, nil
}

// collect expands paths into task parameters. Directories are walked and
// their files keep their relative path as remote name.
func (r *Runner) collect(ctx context.Context, files provider.Provider, paths []string, base engine.Parameters, param string, each bool) ([]engine.Parameters, error) {
	walker := engine.NewWalker(files)
	single := each || base.Protocol == protocol.NameBinary

	var out []engine.Parameters
	for _, root := range paths {
		entries, err := walker.Collect(ctx, root)
		if err != nil {
			return nil, err
		}
		if len(entries) == 0 {
			r.logger.Warn("nothing to upload", "path", root)
			continue
		}

		for _, e := range entries {
			e.SetProperty(protocol.PropertyParamName, param)
			if rel := relativeName(root, e.Path()); rel != "" {
				e.SetProperty(protocol.PropertyRemoteFileName, rel)
			}
		}

		if single {
			for _, e := range entries {
				p := base
				p.Files = []*engine.FileEntry{e}
				out = append(out, p)
			}
			continue
		}
		p := base
		p.Files = entries
		out = append(out, p)
	}
	return out, nil
}

func (r *Runner) summarize(journal *engine.Journal, ids []string) error {
	var failed int
	for _, id := range ids {
		rec, err := journal.Lookup(id)
		if err != nil {
			r.logger.Warn("no journal entry", "task_id", id, "error", err)
			failed++
			continue
		}
		fmt.Fprintf(r.output, "%s  %-10s  %d/%d files  %s  %d attempt(s)\n",
			rec.ID, rec.State, len(rec.CompletedFiles), len(rec.Files),
			humanize.IBytes(uint64(rec.BytesTransferred)), rec.Attempts)
		if rec.Error != "" {
			fmt.Fprintf(r.output, "    %s\n", rec.Error)
		}
		if rec.State != store.StateCompleted {
			failed++
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d uploads did not complete", failed, len(ids))
	}
	return nil
}

// relativeName returns p relative to root, or "" when p is root itself.
func relativeName(root, p string) string {
	if p == root {
		return ""
	}
	return strings.TrimPrefix(p, strings.TrimSuffix(root, "/")+"/")
}

func parsePairs(raw []string, sep string) (map[string]string, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	out := make(map[string]string, len(raw))
	for _, kv := range raw {
		k, v, ok := strings.Cut(kv, sep)
		if !ok || strings.TrimSpace(k) == "" {
			return nil, fmt.Errorf("%w: malformed %q, expected name%svalue", engine.ErrInvalidParameters, kv, sep)
		}
		out[strings.TrimSpace(k)] = strings.TrimSpace(v)
	}
	return out, nil
}

// parseFields keeps the command line order, repeated names included.
func parseFields(raw []string) ([]engine.FormField, error) {
	var out []engine.FormField
	for _, kv := range raw {
		name, value, ok := strings.Cut(kv, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("%w: malformed field %q, expected name=value", engine.ErrInvalidParameters, kv)
		}
		out = append(out, engine.FormField{Name: name, Value: value})
	}
	return out, nil
}
