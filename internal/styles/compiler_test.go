package styles

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	siteerrors "github.com/conneroisu/sitepipe/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingEngine struct {
	calls atomic.Int32
	sheet *Stylesheet
	err   error
}

func (e *countingEngine) Compile(_ context.Context, _ string) (*Stylesheet, error) {
	e.calls.Add(1)
	if e.err != nil {
		return nil, e.err
	}
	return e.sheet, nil
}

func newTestCompiler(t *testing.T, engine Engine, chain Chain) (*Compiler, string) {
	t.Helper()
	root := t.TempDir()
	c := NewCompiler(Options{
		Root:   root,
		Entry:  "src/css/main.scss",
		Output: "dist/css/main.css",
	}, engine, NewCompiledStyleCache(), chain, nil)
	return c, root
}

func TestCompilerWritesCSSAndMap(t *testing.T) {
	engine := &countingEngine{sheet: &Stylesheet{CSS: []byte(".a{color:red}\n"), Map: []byte(`{"version":3}`)}}
	c, root := newTestCompiler(t, engine, nil)

	require.NoError(t, c.Build(context.Background()))

	css, err := os.ReadFile(filepath.Join(root, "dist/css/main.css"))
	require.NoError(t, err)
	assert.Equal(t, ".a{color:red}\n/*# sourceMappingURL=main.css.map */\n", string(css))

	sourceMap, err := os.ReadFile(filepath.Join(root, "dist/css/main.css.map"))
	require.NoError(t, err)
	assert.Equal(t, `{"version":3}`, string(sourceMap))

	// the cached sheet is never modified by writing
	assert.Equal(t, ".a{color:red}\n", string(engine.sheet.CSS))
}

func TestCompilerWithoutMapRemovesStaleMap(t *testing.T) {
	engine := &countingEngine{sheet: &Stylesheet{CSS: []byte(".a{color:red}\n")}}
	c, root := newTestCompiler(t, engine, nil)

	mapPath := filepath.Join(root, "dist/css/main.css.map")
	require.NoError(t, os.MkdirAll(filepath.Dir(mapPath), 0o755))
	require.NoError(t, os.WriteFile(mapPath, []byte("{}"), 0o644))

	require.NoError(t, c.Build(context.Background()))

	_, err := os.Stat(mapPath)
	assert.True(t, os.IsNotExist(err))
	css, err := os.ReadFile(filepath.Join(root, "dist/css/main.css"))
	require.NoError(t, err)
	assert.Equal(t, ".a{color:red}\n", string(css))
}

func TestCompilerReusesCacheUntilInvalidated(t *testing.T) {
	engine := &countingEngine{sheet: &Stylesheet{CSS: []byte(".a{color:red}\n")}}
	c, _ := newTestCompiler(t, engine, nil)
	ctx := context.Background()

	require.NoError(t, c.Build(ctx))
	require.NoError(t, c.Build(ctx))
	assert.Equal(t, int32(1), engine.calls.Load())

	hits, misses := c.cache.Stats()
	assert.Equal(t, 1, hits)
	assert.Equal(t, 1, misses)

	c.cache.Invalidate()
	require.NoError(t, c.Build(ctx))
	assert.Equal(t, int32(2), engine.calls.Load())
}

func TestCompilerSkipsIdenticalRewrite(t *testing.T) {
	engine := &countingEngine{sheet: &Stylesheet{CSS: []byte(".a{color:red}\n")}}
	c, root := newTestCompiler(t, engine, nil)
	ctx := context.Background()
	output := filepath.Join(root, "dist/css/main.css")

	require.NoError(t, c.Build(ctx))
	old := time.Now().Add(-time.Hour).Truncate(time.Second)
	require.NoError(t, os.Chtimes(output, old, old))

	require.NoError(t, c.Build(ctx))
	info, err := os.Stat(output)
	require.NoError(t, err)
	assert.True(t, info.ModTime().Equal(old))
}

func TestCompilerEngineError(t *testing.T) {
	engineErr := siteerrors.NewBuildError(siteerrors.ErrCodeStyleCompile, "Error: expected \";\".", nil)
	engine := &countingEngine{err: engineErr}

	var reported []error
	root := t.TempDir()
	c := NewCompiler(Options{
		Root:     root,
		Entry:    "main.scss",
		Output:   "dist/main.css",
		OnResult: func(err error, _ time.Duration) { reported = append(reported, err) },
	}, engine, nil, nil, nil)

	err := c.Build(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, engineErr))
	assert.Contains(t, err.Error(), `expected ";"`)
	require.Len(t, reported, 1)
	assert.Equal(t, err, reported[0])

	_, statErr := os.Stat(filepath.Join(root, "dist/main.css"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestCompilerAppliesChain(t *testing.T) {
	engine := &countingEngine{sheet: &Stylesheet{CSS: []byte("@media (max-width: 600px){.b{color:red}}\n.a{color:blue}\n")}}
	c, root := newTestCompiler(t, engine, Chain{SortMedia{Order: "desktop-first"}})

	require.NoError(t, c.Build(context.Background()))

	css, err := os.ReadFile(filepath.Join(root, "dist/css/main.css"))
	require.NoError(t, err)
	assert.Less(t, indexOf(t, string(css), ".a{"), indexOf(t, string(css), "@media"))
}

func TestCompilerWatchRecompilesOnSourceChange(t *testing.T) {
	root := t.TempDir()
	srcDir := filepath.Join(root, "src", "css")
	require.NoError(t, os.MkdirAll(srcDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(srcDir, "main.scss"), []byte(".a{}"), 0o644))

	engine := &countingEngine{sheet: &Stylesheet{CSS: []byte(".a{color:red}\n")}}
	c := NewCompiler(Options{
		Root:     root,
		Entry:    "src/css/main.scss",
		Output:   "dist/css/main.css",
		Watch:    []string{"src/css/**/*.scss"},
		Debounce: 20 * time.Millisecond,
	}, engine, nil, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Watch(ctx) }()

	require.Eventually(t, func() bool { return engine.calls.Load() == 1 }, 2*time.Second, 10*time.Millisecond)

	// give the watcher time to register its directories
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(filepath.Join(srcDir, "_vars.scss"), []byte("$x: 1;"), 0o644))

	require.Eventually(t, func() bool { return engine.calls.Load() >= 2 }, 3*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("watch did not stop after cancellation")
	}
}

func TestCompilerWatchReusesCacheOnMarkupChange(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "src", "css"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "dist"), 0o755))
	page := filepath.Join(root, "dist", "index.html")
	require.NoError(t, os.WriteFile(page, []byte(`<html><body><div class="a"></div></body></html>`), 0o644))

	uncss, err := NewUncss(root, []string{"dist/**/*.html"}, nil, nil)
	require.NoError(t, err)

	engine := &countingEngine{sheet: &Stylesheet{CSS: []byte(".a{color:red}\n.b{color:blue}\n")}}
	c := NewCompiler(Options{
		Root:     root,
		Entry:    "src/css/main.scss",
		Output:   "dist/css/main.css",
		Watch:    []string{"src/css/**/*.scss"},
		Debounce: 20 * time.Millisecond,
	}, engine, nil, Chain{uncss}, nil)
	output := filepath.Join(root, "dist", "css", "main.css")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Watch(ctx) }()

	require.Eventually(t, func() bool {
		css, err := os.ReadFile(output)
		return err == nil && strings.Contains(string(css), ".a")
	}, 2*time.Second, 10*time.Millisecond)
	css, err := os.ReadFile(output)
	require.NoError(t, err)
	assert.NotContains(t, string(css), ".b")

	// give the watcher time to register its directories
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(page, []byte(`<html><body><div class="a"></div><p class="b"></p></body></html>`), 0o644))

	require.Eventually(t, func() bool {
		css, err := os.ReadFile(output)
		return err == nil && strings.Contains(string(css), ".b")
	}, 3*time.Second, 20*time.Millisecond)
	assert.Equal(t, int32(1), engine.calls.Load())

	hits, misses := c.cache.Stats()
	assert.GreaterOrEqual(t, hits, 1)
	assert.Equal(t, 1, misses)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("watch did not stop after cancellation")
	}
}

func indexOf(t *testing.T, s, sub string) int {
	t.Helper()
	i := strings.Index(s, sub)
	require.GreaterOrEqual(t, i, 0, "%q not found in %q", sub, s)
	return i
}
