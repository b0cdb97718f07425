// Package scripts bundles the site's JavaScript entry points with esbuild,
// either once or in watch mode.
package scripts

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/conneroisu/sitepipe/internal/config"
	siteerrors "github.com/conneroisu/sitepipe/internal/errors"
	"github.com/conneroisu/sitepipe/internal/logging"
	"github.com/evanw/esbuild/pkg/api"
)

// Options configures the bundler. Entries and OutDir are relative to Root.
type Options struct {
	Root       string
	Entries    []string
	OutDir     string
	Format     string // "iife", "esm" or "cjs"
	Sourcemap  bool
	Minify     bool
	Target     string // "es2015", "esnext", ...
	GlobalName string

	// OnEvent, when set, receives the outcome of every watch rebuild.
	OnEvent func(Event)
}

// OptionsFromConfig maps the scripts section of the configuration.
func OptionsFromConfig(cfg config.ScriptsConfig, root string) Options {
	return Options{
		Root:       root,
		Entries:    cfg.Entries,
		OutDir:     cfg.OutDir,
		Format:     cfg.Format,
		Sourcemap:  cfg.Sourcemap,
		Minify:     cfg.Minify,
		Target:     cfg.Target,
		GlobalName: cfg.GlobalName,
	}
}

// EventKind tells a successful rebuild from a failed one.
type EventKind string

const (
	EventSuccess EventKind = "success"
	EventError   EventKind = "error"
)

// Event describes one finished build.
type Event struct {
	Kind     EventKind
	Err      error
	Warnings int
	Duration time.Duration
}

// Bundler runs esbuild with a fixed set of options.
type Bundler struct {
	opts   Options
	build  api.BuildOptions
	logger logging.Logger
}

var formats = map[string]api.Format{
	"iife": api.FormatIIFE,
	"esm":  api.FormatESModule,
	"cjs":  api.FormatCommonJS,
}

var targets = map[string]api.Target{
	"es5":    api.ES5,
	"es2015": api.ES2015,
	"es2016": api.ES2016,
	"es2017": api.ES2017,
	"es2018": api.ES2018,
	"es2019": api.ES2019,
	"es2020": api.ES2020,
	"es2021": api.ES2021,
	"es2022": api.ES2022,
	"esnext": api.ESNext,
}

// NewBundler validates opts and prepares the esbuild options.
func NewBundler(opts Options, logger logging.Logger) (*Bundler, error) {
	if logger == nil {
		logger = logging.Discard()
	}
	if len(opts.Entries) == 0 {
		return nil, siteerrors.ErrConfigInvalid("scripts.entries", "at least one entry point is required")
	}

	format, ok := formats[strings.ToLower(opts.Format)]
	if !ok {
		return nil, siteerrors.ErrConfigInvalid("scripts.format", "unsupported format %q", opts.Format)
	}
	target := api.ES2015
	if opts.Target != "" {
		if target, ok = targets[strings.ToLower(opts.Target)]; !ok {
			return nil, siteerrors.ErrConfigInvalid("scripts.target", "unsupported target %q", opts.Target)
		}
	}

	root := opts.Root
	if root == "" {
		root = "."
	}
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, siteerrors.NewIOError(siteerrors.ErrCodeReadFile, "failed to resolve project root", err).WithPath(root)
	}

	build := api.BuildOptions{
		AbsWorkingDir:     absRoot,
		EntryPoints:       opts.Entries,
		Outdir:            opts.OutDir,
		Bundle:            true,
		Write:             true,
		Format:            format,
		Target:            target,
		GlobalName:        opts.GlobalName,
		Platform:          api.PlatformBrowser,
		MinifyWhitespace:  opts.Minify,
		MinifyIdentifiers: opts.Minify,
		MinifySyntax:      opts.Minify,
		LogLevel:          api.LogLevelSilent,
	}
	if opts.Sourcemap {
		build.Sourcemap = api.SourceMapLinked
	}

	return &Bundler{opts: opts, build: build, logger: logger.WithComponent("scripts")}, nil
}

// Build bundles every entry point once. Failures carry esbuild's formatted
// diagnostics.
func (b *Bundler) Build(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return nil
	}
	perf := logging.StartOperation(b.logger, "bundle")

	result := api.Build(b.build)
	if err := resultError(result.Errors); err != nil {
		perf.EndWithError(ctx, err)
		return err
	}
	b.logWarnings(ctx, result.Warnings)
	perf.End(ctx)
	return nil
}

// Watch bundles, then rebuilds on every source change until ctx is done.
// Rebuild failures are reported through OnEvent and the log; only a failure
// to set up watching is returned.
func (b *Bundler) Watch(ctx context.Context) error {
	opts := b.build
	opts.Plugins = append(opts.Plugins, b.eventPlugin(ctx))

	bctx, cerr := api.Context(opts)
	if cerr != nil {
		return resultError(cerr.Errors)
	}
	defer bctx.Dispose()

	if err := bctx.Watch(api.WatchOptions{}); err != nil {
		return siteerrors.NewInternalError(siteerrors.ErrCodeWatch, "failed to watch scripts", err)
	}
	b.logger.Info(ctx, "Watching scripts", "entries", b.opts.Entries)

	<-ctx.Done()
	return nil
}

// eventPlugin times each build and turns its result into an Event.
func (b *Bundler) eventPlugin(ctx context.Context) api.Plugin {
	var mu sync.Mutex
	var started time.Time

	return api.Plugin{
		Name: "sitepipe-events",
		Setup: func(build api.PluginBuild) {
			build.OnStart(func() (api.OnStartResult, error) {
				mu.Lock()
				started = time.Now()
				mu.Unlock()
				return api.OnStartResult{}, nil
			})
			build.OnEnd(func(result *api.BuildResult) (api.OnEndResult, error) {
				mu.Lock()
				ev := Event{Kind: EventSuccess, Warnings: len(result.Warnings), Duration: time.Since(started)}
				mu.Unlock()

				if err := resultError(result.Errors); err != nil {
					ev.Kind = EventError
					ev.Err = err
					b.logger.Error(ctx, err, "Script rebuild failed")
				} else {
					b.logWarnings(ctx, result.Warnings)
					b.logger.Info(ctx, "Scripts rebuilt", "duration_ms", ev.Duration.Milliseconds())
				}
				if b.opts.OnEvent != nil {
					b.opts.OnEvent(ev)
				}
				return api.OnEndResult{}, nil
			})
		},
	}
}

func (b *Bundler) logWarnings(ctx context.Context, warnings []api.Message) {
	if len(warnings) == 0 {
		return
	}
	formatted := api.FormatMessages(warnings, api.FormatMessagesOptions{Kind: api.WarningMessage})
	b.logger.Warn(ctx, nil, strings.TrimSpace(strings.Join(formatted, "")), "warnings", len(warnings))
}

func resultError(msgs []api.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	formatted := api.FormatMessages(msgs, api.FormatMessagesOptions{Kind: api.ErrorMessage})
	err := siteerrors.NewBuildError(siteerrors.ErrCodeScriptBundle, strings.TrimSpace(strings.Join(formatted, "")), nil)
	if loc := msgs[0].Location; loc != nil {
		err = err.WithPath(loc.File)
	}
	return err.WithContext("errors", len(msgs))
}
