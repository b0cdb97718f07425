// Package services assembles the producers, the dev server and the task
// graphs from a loaded configuration.
package services

import (
	"context"
	"path/filepath"
	"time"

	"github.com/conneroisu/sitepipe/internal/config"
	"github.com/conneroisu/sitepipe/internal/content"
	siteerrors "github.com/conneroisu/sitepipe/internal/errors"
	"github.com/conneroisu/sitepipe/internal/logging"
	"github.com/conneroisu/sitepipe/internal/notifier"
	"github.com/conneroisu/sitepipe/internal/pipeline"
	"github.com/conneroisu/sitepipe/internal/scripts"
	"github.com/conneroisu/sitepipe/internal/server"
	"github.com/conneroisu/sitepipe/internal/styles"
)

// App is one configured site pipeline.
type App struct {
	Config   *config.Config
	Root     string
	Logger   logging.Logger
	Failures *siteerrors.ErrorCollector
	Notifier *notifier.Notifier
	States   *pipeline.StateTable

	Content *content.Generator
	Styles  *styles.Compiler
	Scripts *scripts.Bundler

	graph pipeline.Graph
}

// NewApp validates cfg and wires every producer. Relative paths in cfg are
// resolved against root. The graph is chosen here from cfg.Environment.
func NewApp(cfg *config.Config, root string, logger logging.Logger) (*App, error) {
	if logger == nil {
		logger = logging.Discard()
	}
	if root == "" {
		root = "."
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, siteerrors.NewIOError(siteerrors.ErrCodeReadFile, "failed to resolve project root", err).WithPath(root)
	}

	a := &App{
		Config:   cfg,
		Root:     abs,
		Logger:   logger,
		Failures: siteerrors.NewErrorCollector(),
		Notifier: notifier.New(cfg.Notify.Enabled, logger),
		States:   pipeline.NewStateTable(),
	}

	a.Content, err = content.NewGenerator(content.Options{
		Command:   cfg.Content.Command,
		Args:      cfg.Content.Args,
		WatchFlag: cfg.Content.WatchFlag,
		Dir:       abs,
		Env:       []string{"NODE_ENV=" + cfg.Environment},
	}, logger)
	if err != nil {
		return nil, err
	}

	engine, err := styles.NewSassEngine(cfg.Styles.Command, cfg.Styles.LoadPaths, abs)
	if err != nil {
		return nil, err
	}
	chain, err := styles.NewChain(cfg, abs, logger)
	if err != nil {
		return nil, err
	}
	a.Styles = styles.NewCompiler(styles.Options{
		Root:     abs,
		Entry:    cfg.Styles.Entry,
		Output:   cfg.Styles.Output,
		Watch:    cfg.Styles.Watch,
		Debounce: cfg.Watch.Debounce,
		OnResult: func(err error, took time.Duration) { a.report(pipeline.TaskStyles, err, took) },
	}, engine, styles.NewCompiledStyleCache(), chain, logger)

	scriptOpts := scripts.OptionsFromConfig(cfg.Scripts, abs)
	scriptOpts.OnEvent = func(e scripts.Event) { a.report(pipeline.TaskScripts, e.Err, e.Duration) }
	a.Scripts, err = scripts.NewBundler(scriptOpts, logger)
	if err != nil {
		return nil, err
	}

	env := &pipeline.Env{Logger: logger, States: a.States, Notifier: a.Notifier, Failures: a.Failures}
	a.graph = pipeline.Select(cfg.IsProduction(), pipeline.Producers{
		Content: a.Content,
		Scripts: a.Scripts,
		Styles:  a.Styles,
		Server:  pipeline.ServerFunc(a.serve),
	}, env)

	a.Logger.Debug(context.Background(), "Pipeline assembled",
		"environment", cfg.Environment,
		"root", abs,
		"style_chain", chain.Names(),
	)
	return a, nil
}

// report forwards the outcome of a watch rebuild to the overlay and the
// desktop notifier.
func (a *App) report(task string, err error, took time.Duration) {
	ctx := context.Background()
	a.Failures.Report(task, err)
	if err != nil {
		a.Notifier.Failure(ctx, task, err)
		return
	}
	a.Notifier.Success(ctx, task, took)
}

// Build runs the build graph once.
func (a *App) Build(ctx context.Context) error {
	return pipeline.Run(ctx, a.graph.Build, a.Logger)
}

// Serve runs the serve graph until ctx is cancelled.
func (a *App) Serve(ctx context.Context) error {
	return pipeline.Run(ctx, a.graph.Serve, a.Logger)
}

// ServerOptions returns the dev server options with the site root resolved.
func (a *App) ServerOptions() server.Options {
	opts := server.OptionsFromConfig(a.Config)
	opts.Root = a.path(opts.Root)
	opts.Failures = a.Failures
	return opts
}

func (a *App) serve(ctx context.Context) error {
	srv, err := server.New(a.ServerOptions(), a.Logger)
	if err != nil {
		return err
	}
	return srv.Serve(ctx)
}

func (a *App) path(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(a.Root, p)
}
