package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/log"
	"github.com/urfave/cli/v3"

	"github.com/franksops/gfupload/config"
	"github.com/franksops/gfupload/engine"
	"github.com/franksops/gfupload/protocol"
	"github.com/franksops/gfupload/provider"
	"github.com/franksops/gfupload/store"
)

// Runner holds the dependencies shared by CLI commands.
type Runner struct {
	cfg    *config.Config
	logger *log.Logger
	output io.Writer
}

// RunnerOpts contains configuration options for creating a Runner.
type RunnerOpts struct {
	Config *config.Config
	Logger *log.Logger
	Output io.Writer
}

// NewRunner creates a new Runner. Commands load the configuration on start.
func NewRunner(opts RunnerOpts) *Runner {
	if opts.Logger == nil {
		opts.Logger = log.NewWithOptions(os.Stderr, log.Options{ReportTimestamp: true})
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	return &Runner{
		cfg:    opts.Config,
		logger: opts.Logger,
		output: opts.Output,
	}
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		uploadCommand, serveCommand, statusCommand, configCommand,
	} {
		commands = append(commands, fn(r))
	}
	return commands
}

// setup loads the configuration named by --config and builds the logger.
// A missing default file is not an error.
func (r *Runner) setup(cmd *cli.Command) error {
	path := cmd.String("config")
	if !cmd.IsSet("config") {
		if _, err := os.Stat(path); err != nil {
			path = ""
		}
	}

	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	if cmd.Bool("verbose") {
		cfg.Log.Level = "debug"
	}

	logger, err := config.NewLogger(cfg.Log, nil)
	if err != nil {
		return err
	}

	r.cfg = cfg
	r.logger = logger
	log.SetDefault(logger)
	return nil
}

func (r *Runner) writeJSON(data any) error {
	enc := json.NewEncoder(r.output)
	enc.SetIndent("", "  ")
	return enc.Encode(data)
}

// surface is where task status is shown.
type surface struct {
	presenter engine.Presenter
	indicator engine.Indicator
	icons     engine.IconDecoder
}

// stack is the wired upload service of a command.
type stack struct {
	store   store.Store
	journal *engine.Journal
	bus     *engine.Bus
	files   *provider.Resolver
	deps    protocol.Deps
	service *engine.Service
}

func (r *Runner) newStack(ctx context.Context, s surface) (*stack, error) {
	st, err := store.Open(r.cfg.Journal.Driver, r.cfg.Journal.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}

	opts := provider.Options{GCSCredentialsFile: r.cfg.HTTP.GCSCredentials}
	files := provider.NewResolver(opts)
	journal := engine.NewJournal(st, r.cfg.Checkpoint(), r.logger)
	bus := engine.NewBus(r.logger)

	deps := protocol.Deps{
		Client:  protocol.NewHTTPClient(ctx, r.cfg.HTTPClient()),
		Files:   files,
		Buffers: engine.NewBufferPool(engine.DefaultBufferSize),
		Limiter: protocol.NewLimiter(r.cfg.HTTP.MaxBytesPerSecond),
		OpenDestination: func(ctx context.Context, uri string) (provider.Provider, error) {
			return provider.Open(ctx, uri, opts)
		},
	}

	service := engine.NewService(ctx, r.cfg.EngineService(), engine.Collaborators{
		Delegates:   engine.NewDelegateRegistry(),
		Broadcaster: bus,
		Recorder:    journal,
		FileSystem:  files,
		Presenter:   s.presenter,
		Indicator:   s.indicator,
		Icons:       s.icons,
	}, r.logger)

	return &stack{
		store:   st,
		journal: journal,
		bus:     bus,
		files:   files,
		deps:    deps,
		service: service,
	}, nil
}

// uploader returns the body of the named protocol.
func (s *stack) uploader(name string) (engine.Uploader, error) {
	return protocol.New(name, s.deps)
}

// Close stops the service and closes the journal.
func (s *stack) Close() error {
	s.service.Stop()
	return s.store.Close()
}
