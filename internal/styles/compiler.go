// Package styles compiles the site stylesheet: an external SCSS engine, a
// cache of its last result and an optional post-processing chain whose
// output is written next to its source map.
package styles

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	siteerrors "github.com/conneroisu/sitepipe/internal/errors"
	"github.com/conneroisu/sitepipe/internal/fsutil"
	"github.com/conneroisu/sitepipe/internal/logging"
	"github.com/conneroisu/sitepipe/internal/watcher"
)

// Options configures a Compiler. Paths are relative to Root.
type Options struct {
	Root     string
	Entry    string
	Output   string
	Watch    []string
	Debounce time.Duration

	// OnResult, when set, is called after every compile with its error and
	// how long it took.
	OnResult func(err error, took time.Duration)
}

// Compiler turns the stylesheet entry into the output CSS file.
type Compiler struct {
	opts   Options
	engine Engine
	cache  *CompiledStyleCache
	chain  Chain
	logger logging.Logger

	// mu keeps a single writer per output path.
	mu sync.Mutex
}

// NewCompiler wires an engine, a cache and a post-processing chain. The
// chain is fixed for the life of the compiler.
func NewCompiler(opts Options, engine Engine, cache *CompiledStyleCache, chain Chain, logger logging.Logger) *Compiler {
	if logger == nil {
		logger = logging.Discard()
	}
	if cache == nil {
		cache = NewCompiledStyleCache()
	}
	if opts.Root == "" {
		opts.Root = "."
	}
	return &Compiler{
		opts:   opts,
		engine: engine,
		cache:  cache,
		chain:  chain,
		logger: logger.WithComponent("styles"),
	}
}

// Build compiles once, reusing the cached engine result when it is valid.
func (c *Compiler) Build(ctx context.Context) error {
	start := time.Now()
	err := c.compile(ctx)
	if c.opts.OnResult != nil && ctx.Err() == nil {
		c.opts.OnResult(err, time.Since(start))
	}
	return err
}

func (c *Compiler) compile(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	perf := logging.StartOperation(c.logger, "compile")

	sheet, ok := c.cache.Get()
	if !ok {
		compiled, err := c.engine.Compile(ctx, c.path(c.opts.Entry))
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			perf.EndWithError(ctx, err)
			return err
		}
		c.cache.Store(compiled)
		sheet = compiled
	} else {
		c.logger.Debug(ctx, "Reusing compiled stylesheet", "digest", c.cache.Digest())
	}

	out, err := c.chain.Apply(ctx, sheet)
	if err != nil {
		perf.EndWithError(ctx, err)
		return err
	}

	written, err := c.write(out)
	if err != nil {
		perf.EndWithError(ctx, err)
		return err
	}
	if written {
		perf.End(ctx)
	} else {
		c.logger.Debug(ctx, "Stylesheet unchanged", "output", c.opts.Output)
	}
	return nil
}

// write stores the CSS and its map. It reports whether the CSS changed.
func (c *Compiler) write(sheet *Stylesheet) (bool, error) {
	output := c.path(c.opts.Output)
	mapPath := output + ".map"

	css := append([]byte(nil), stripSourceMapComment(sheet.CSS)...)
	if len(sheet.Map) > 0 {
		css = append(css, []byte("/*# sourceMappingURL="+filepath.Base(mapPath)+" */\n")...)
		if _, err := fsutil.WriteFileIfChanged(mapPath, sheet.Map); err != nil {
			return false, err
		}
	} else if err := os.Remove(mapPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return false, siteerrors.NewIOError(siteerrors.ErrCodeWriteFile, "failed to remove stale source map", err).WithPath(mapPath)
	}

	return fsutil.WriteFileIfChanged(output, css)
}

func (c *Compiler) path(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.opts.Root, p)
}

// Watch compiles once and then recompiles on changes until ctx is done.
// Stylesheet source changes invalidate the cache; markup changes read by
// the chain recompile from it. Compile errors are logged and watching
// continues.
func (c *Compiler) Watch(ctx context.Context) error {
	if err := c.Build(ctx); err != nil {
		c.logger.Error(ctx, err, "Stylesheet compile failed")
	}

	sources, err := watcher.NewMatcher(c.opts.Root, c.opts.Watch...)
	if err != nil {
		return siteerrors.ErrConfigInvalid("styles.watch", "%v", err)
	}
	markupGlobs := c.chain.MarkupGlobs()
	markup, err := watcher.NewMatcher(c.opts.Root, markupGlobs...)
	if err != nil {
		return siteerrors.ErrConfigInvalid("styles.unused.html", "%v", err)
	}

	fw, err := watcher.NewFileWatcher(c.opts.Debounce, c.logger)
	if err != nil {
		return siteerrors.NewInternalError(siteerrors.ErrCodeWatch, "failed to create watcher", err)
	}
	fw.AddFilter(watcher.NoTempFilter)
	fw.AddFilter(func(path string) bool {
		return sources.Match(path) || (len(markupGlobs) > 0 && markup.Match(path))
	})

	for _, dir := range sources.Dirs() {
		if err := fw.AddRecursive(dir); err != nil {
			c.logger.Warn(ctx, err, "Skipping missing stylesheet directory", "dir", dir)
		}
	}
	if len(markupGlobs) > 0 {
		// markup may not be generated yet
		dirs := markup.Dirs()
		if err := fsutil.EnsureDir(dirs...); err != nil {
			return err
		}
		for _, dir := range dirs {
			if err := fw.AddRecursive(dir); err != nil {
				return siteerrors.NewIOError(siteerrors.ErrCodeWatch, "failed to watch markup", err).WithPath(dir)
			}
		}
	}

	fw.AddHandler(func(ctx context.Context, events []watcher.ChangeEvent) error {
		for _, e := range events {
			if sources.Match(e.Path) {
				c.cache.Invalidate()
				break
			}
		}
		if err := c.Build(ctx); err != nil {
			c.logger.Error(ctx, err, "Stylesheet compile failed", "changes", len(events))
		}
		return nil
	})

	c.logger.Info(ctx, "Watching stylesheets", "globs", c.opts.Watch, "markup", markupGlobs)
	return fw.Run(ctx)
}
