package pipeline

import (
	"context"
	"time"

	siteerrors "github.com/conneroisu/sitepipe/internal/errors"
	"github.com/conneroisu/sitepipe/internal/logging"
	"github.com/conneroisu/sitepipe/internal/notifier"
)

// Task names shared by the CLI, logs and the failure overlay.
const (
	TaskContent = "content"
	TaskScripts = "scripts"
	TaskStyles  = "styles"
	TaskServer  = "server"
)

// Producer builds an output once or keeps rebuilding it until ctx is done.
type Producer interface {
	Build(ctx context.Context) error
	Watch(ctx context.Context) error
}

// Server serves the output directory until ctx is done.
type Server interface {
	Serve(ctx context.Context) error
}

// ServerFunc adapts a function to Server.
type ServerFunc func(ctx context.Context) error

func (f ServerFunc) Serve(ctx context.Context) error { return f(ctx) }

// Producers are the leaves of the task graphs.
type Producers struct {
	Content Producer
	Scripts Producer
	Styles  Producer
	Server  Server
}

// Env carries what leaf tasks report to. Every field is optional.
type Env struct {
	Logger   logging.Logger
	States   *StateTable
	Notifier *notifier.Notifier
	Failures *siteerrors.ErrorCollector
}

func (e *Env) logger() logging.Logger {
	if e == nil || e.Logger == nil {
		return logging.Discard()
	}
	return e.Logger
}

// Track records the lifecycle of t in the state table and logs its timing.
func (e *Env) Track(t Task) Task {
	if e != nil && e.States != nil {
		e.States.Register(t.Name())
	}
	return NewTask(t.Name(), func(ctx context.Context) error {
		e.setState(t.Name(), StateRunning)
		perf := logging.StartOperation(e.logger().WithComponent(t.Name()), t.Name())
		start := time.Now()

		err := t.Run(ctx)
		if err != nil {
			e.setState(t.Name(), StateFailed)
			perf.EndWithError(ctx, err)
			return err
		}
		e.setState(t.Name(), StateDone)
		if e != nil && e.Notifier != nil {
			e.Notifier.Success(ctx, t.Name(), time.Since(start))
		}
		perf.End(ctx)
		return nil
	})
}

// Isolate keeps a failure of t from cancelling its siblings. The failure is
// logged, announced and shown in the browser overlay instead.
func (e *Env) Isolate(t Task) Task {
	return NewTask(t.Name(), func(ctx context.Context) error {
		err := t.Run(ctx)
		if err == nil || ctx.Err() != nil {
			return nil
		}
		e.logger().Error(ctx, err, "Task stopped", "task", t.Name())
		if e == nil {
			return nil
		}
		if e.Notifier != nil {
			e.Notifier.Failure(ctx, t.Name(), err)
		}
		if e.Failures != nil {
			e.Failures.Report(t.Name(), err)
		}
		return nil
	})
}

func (e *Env) setState(name string, s State) {
	if e != nil && e.States != nil {
		e.States.set(name, s)
	}
}

// Graph holds the two entry points of a mode.
type Graph struct {
	Build Task
	Serve Task
}

func (e *Env) build(name string, p Producer) Task {
	return e.Track(NewTask(name, p.Build))
}

func (e *Env) watch(name string, p Producer) Task {
	return e.Isolate(e.Track(NewTask(name, p.Watch)))
}

func (e *Env) serve(s Server) Task {
	return e.Track(NewTask(TaskServer, func(ctx context.Context) error {
		if s == nil {
			return siteerrors.NewInternalError(siteerrors.ErrCodeServer, "no server configured", nil)
		}
		return s.Serve(ctx)
	}))
}

// Development builds everything at once and serves while watching every
// source. A failing watcher leaves the others and the server running.
func Development(p Producers, env *Env) Graph {
	return Graph{
		Build: Parallel("build",
			env.build(TaskContent, p.Content),
			env.build(TaskStyles, p.Styles),
			env.build(TaskScripts, p.Scripts),
		),
		Serve: Parallel("serve",
			env.watch(TaskContent, p.Content),
			env.watch(TaskScripts, p.Scripts),
			env.watch(TaskStyles, p.Styles),
			env.serve(p.Server),
		),
	}
}

// Production compiles styles last, after the markup and scripts they are
// checked against exist, and serves only a completed build.
func Production(p Producers, env *Env) Graph {
	build := Series("build",
		Parallel("generate",
			env.build(TaskContent, p.Content),
			env.build(TaskScripts, p.Scripts),
		),
		env.build(TaskStyles, p.Styles),
	)
	return Graph{
		Build: build,
		Serve: Series("serve", build, env.serve(p.Server)),
	}
}

// Select picks the graph for the environment once.
func Select(production bool, p Producers, env *Env) Graph {
	if production {
		return Production(p, env)
	}
	return Development(p, env)
}
