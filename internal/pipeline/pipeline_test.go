package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	siteerrors "github.com/conneroisu/sitepipe/internal/errors"
	"github.com/conneroisu/sitepipe/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu    sync.Mutex
	order []string
}

func (r *recorder) add(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.order = append(r.order, name)
}

func (r *recorder) list() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.order...)
}

type fakeProducer struct {
	build func(ctx context.Context) error
	watch func(ctx context.Context) error
}

func (f *fakeProducer) Build(ctx context.Context) error {
	if f.build == nil {
		return nil
	}
	return f.build(ctx)
}

func (f *fakeProducer) Watch(ctx context.Context) error {
	if f.watch == nil {
		<-ctx.Done()
		return nil
	}
	return f.watch(ctx)
}

type fakeServer func(ctx context.Context) error

func (f fakeServer) Serve(ctx context.Context) error { return f(ctx) }

func TestSeriesStopsAtFirstFailure(t *testing.T) {
	rec := &recorder{}
	boom := errors.New("boom")
	task := Series("s",
		NewTask("a", func(context.Context) error { rec.add("a"); return nil }),
		NewTask("b", func(context.Context) error { rec.add("b"); return boom }),
		NewTask("c", func(context.Context) error { rec.add("c"); return nil }),
	)

	err := task.Run(context.Background())
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []string{"a", "b"}, rec.list())
	assert.Equal(t, "s", task.Name())
}

func TestParallelCancelsSiblingsOnFailure(t *testing.T) {
	boom := errors.New("boom")
	cancelled := make(chan struct{})
	task := Parallel("p",
		NewTask("waits", func(ctx context.Context) error {
			<-ctx.Done()
			close(cancelled)
			return nil
		}),
		NewTask("fails", func(context.Context) error { return boom }),
	)

	err := task.Run(context.Background())
	assert.ErrorIs(t, err, boom)
	select {
	case <-cancelled:
	case <-time.After(time.Second):
		t.Fatal("sibling was not cancelled")
	}
}

func TestParallelRecoversPanics(t *testing.T) {
	task := Parallel("p", NewTask("explodes", func(context.Context) error {
		panic("kaboom")
	}))

	err := task.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "explodes panicked: kaboom")
}

func TestProductionBuildCompilesStylesAfterMarkupAndScripts(t *testing.T) {
	dir := t.TempDir()
	markup := filepath.Join(dir, "index.html")
	bundle := filepath.Join(dir, "main.js")

	writeLater := func(path string) func(context.Context) error {
		return func(context.Context) error {
			time.Sleep(20 * time.Millisecond)
			return os.WriteFile(path, []byte("x"), 0o644)
		}
	}
	var sawMarkup, sawBundle bool
	p := Producers{
		Content: &fakeProducer{build: writeLater(markup)},
		Scripts: &fakeProducer{build: writeLater(bundle)},
		Styles: &fakeProducer{build: func(context.Context) error {
			_, err := os.Stat(markup)
			sawMarkup = err == nil
			_, err = os.Stat(bundle)
			sawBundle = err == nil
			return nil
		}},
	}

	g := Production(p, &Env{})
	require.NoError(t, g.Build.Run(context.Background()))
	assert.True(t, sawMarkup, "styles ran before markup existed")
	assert.True(t, sawBundle, "styles ran before the bundle existed")
}

func TestProductionBuildSkipsStylesAfterFailure(t *testing.T) {
	boom := errors.New("content failed")
	stylesRan := false
	p := Producers{
		Content: &fakeProducer{build: func(context.Context) error { return boom }},
		Scripts: &fakeProducer{},
		Styles:  &fakeProducer{build: func(context.Context) error { stylesRan = true; return nil }},
	}
	states := NewStateTable()

	err := Production(p, &Env{States: states}).Build.Run(context.Background())
	assert.ErrorIs(t, err, boom)
	assert.False(t, stylesRan)
	assert.Equal(t, StateFailed, states.Get(TaskContent))
	assert.Equal(t, StateIdle, states.Get(TaskStyles))
}

func TestProductionServeRunsServerAfterBuild(t *testing.T) {
	rec := &recorder{}
	step := func(name string) func(context.Context) error {
		return func(context.Context) error { rec.add(name); return nil }
	}
	p := Producers{
		Content: &fakeProducer{build: step("content")},
		Scripts: &fakeProducer{build: step("scripts")},
		Styles:  &fakeProducer{build: step("styles")},
		Server:  fakeServer(step("server")),
	}

	require.NoError(t, Production(p, nil).Serve.Run(context.Background()))
	order := rec.list()
	require.Len(t, order, 4)
	assert.ElementsMatch(t, []string{"content", "scripts"}, order[:2])
	assert.Equal(t, []string{"styles", "server"}, order[2:])
}

func TestDevelopmentBuildRunsEveryProducer(t *testing.T) {
	rec := &recorder{}
	step := func(name string) func(context.Context) error {
		return func(context.Context) error { rec.add(name); return nil }
	}
	p := Producers{
		Content: &fakeProducer{build: step("content")},
		Scripts: &fakeProducer{build: step("scripts")},
		Styles:  &fakeProducer{build: step("styles")},
	}
	states := NewStateTable()

	require.NoError(t, Development(p, &Env{States: states}).Build.Run(context.Background()))
	assert.ElementsMatch(t, []string{"content", "scripts", "styles"}, rec.list())
	for _, name := range []string{TaskContent, TaskScripts, TaskStyles} {
		assert.Equal(t, StateDone, states.Get(name), name)
	}
}

func TestDevelopmentServeIsolatesWatchFailures(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	failures := siteerrors.NewErrorCollector()
	reported := make(chan []siteerrors.Failure, 1)
	failures.OnChange(func(f []siteerrors.Failure) { reported <- f })

	contentStopped := make(chan struct{})
	serving := make(chan struct{})
	p := Producers{
		Content: &fakeProducer{watch: func(ctx context.Context) error {
			<-ctx.Done()
			close(contentStopped)
			return nil
		}},
		Scripts: &fakeProducer{watch: func(context.Context) error {
			return siteerrors.NewBuildError(siteerrors.ErrCodeScriptBundle, "bundle failed", nil)
		}},
		Styles: &fakeProducer{},
		Server: fakeServer(func(ctx context.Context) error {
			close(serving)
			<-ctx.Done()
			return nil
		}),
	}
	states := NewStateTable()
	env := &Env{States: states, Failures: failures}

	done := make(chan error, 1)
	go func() { done <- Development(p, env).Serve.Run(ctx) }()

	select {
	case f := <-reported:
		require.Len(t, f, 1)
		assert.Equal(t, TaskScripts, f[0].Task)
		assert.Equal(t, "bundle failed", f[0].Message)
	case <-time.After(2 * time.Second):
		t.Fatal("watch failure was not reported")
	}
	<-serving

	select {
	case <-contentStopped:
		t.Fatal("content watcher stopped after a sibling failed")
	case <-time.After(50 * time.Millisecond):
	}
	assert.Equal(t, StateFailed, states.Get(TaskScripts))
	assert.Equal(t, StateRunning, states.Get(TaskContent))

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("serve did not stop")
	}
	<-contentStopped
}

func TestServeWithoutServerFails(t *testing.T) {
	p := Producers{Content: &fakeProducer{}, Scripts: &fakeProducer{}, Styles: &fakeProducer{}}
	err := Production(p, nil).Serve.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no server configured")
}

func TestSelect(t *testing.T) {
	rec := &recorder{}
	step := func(name string) func(context.Context) error {
		return func(context.Context) error { rec.add(name); return nil }
	}
	p := Producers{
		Content: &fakeProducer{build: step("content")},
		Scripts: &fakeProducer{build: step("scripts")},
		Styles:  &fakeProducer{build: step("styles")},
	}

	require.NoError(t, Select(true, p, nil).Build.Run(context.Background()))
	assert.Equal(t, "styles", rec.list()[2])
	assert.Equal(t, "serve", Select(false, p, nil).Serve.Name())
}

func TestRunAttachesRunID(t *testing.T) {
	var ids []string
	task := NewTask("t", func(ctx context.Context) error {
		ids = append(ids, logging.RunID(ctx))
		return nil
	})

	require.NoError(t, Run(context.Background(), task, nil))
	require.NoError(t, Run(context.Background(), task, nil))
	require.Len(t, ids, 2)
	assert.NotEmpty(t, ids[0])
	assert.NotEqual(t, ids[0], ids[1])
}

func TestStateTable(t *testing.T) {
	s := NewStateTable()
	s.Register("b")
	s.Register("a")
	s.set("a", StateRunning)
	s.Register("a")

	assert.Equal(t, StateRunning, s.Get("a"))
	assert.Equal(t, StateIdle, s.Get("b"))
	assert.Equal(t, StateIdle, s.Get("unknown"))
	assert.Equal(t, []string{"a", "b"}, s.Names())
	assert.Equal(t, map[string]State{"a": StateRunning, "b": StateIdle}, s.Snapshot())
}
