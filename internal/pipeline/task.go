// Package pipeline composes the producers into the build and serve task
// graphs and runs them.
package pipeline

import (
	"context"
	"fmt"
	"runtime/debug"
	"sort"
	"sync"

	"github.com/conneroisu/sitepipe/internal/logging"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Task is a named unit of work. Run returns when the work completes, fails
// or, for watch tasks, when ctx is cancelled.
type Task interface {
	Name() string
	Run(ctx context.Context) error
}

type taskFunc struct {
	name string
	fn   func(ctx context.Context) error
}

func (t *taskFunc) Name() string                  { return t.name }
func (t *taskFunc) Run(ctx context.Context) error { return t.fn(ctx) }

// NewTask adapts fn to a Task.
func NewTask(name string, fn func(ctx context.Context) error) Task {
	return &taskFunc{name: name, fn: fn}
}

// Parallel runs tasks concurrently. The first failure cancels the others
// and is returned. A panicking task fails instead of crashing the process.
func Parallel(name string, tasks ...Task) Task {
	return NewTask(name, func(ctx context.Context) error {
		g, ctx := errgroup.WithContext(ctx)
		for _, t := range tasks {
			t := t
			g.Go(func() (err error) {
				defer func() {
					if r := recover(); r != nil {
						err = fmt.Errorf("task %s panicked: %v\n%s", t.Name(), r, debug.Stack())
					}
				}()
				return t.Run(ctx)
			})
		}
		return g.Wait()
	})
}

// Series runs tasks one after another, stopping at the first failure.
func Series(name string, tasks ...Task) Task {
	return NewTask(name, func(ctx context.Context) error {
		for _, t := range tasks {
			if err := ctx.Err(); err != nil {
				return nil
			}
			if err := t.Run(ctx); err != nil {
				return err
			}
		}
		return nil
	})
}

// State is the lifecycle position of a leaf task.
type State string

const (
	StateIdle    State = "idle"
	StateRunning State = "running"
	StateDone    State = "done"
	StateFailed  State = "failed"
)

// StateTable records the state of every tracked task.
type StateTable struct {
	mu     sync.RWMutex
	states map[string]State
}

// NewStateTable returns an empty table.
func NewStateTable() *StateTable {
	return &StateTable{states: make(map[string]State)}
}

// Register adds name as idle unless it is already known.
func (s *StateTable) Register(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.states[name]; !ok {
		s.states[name] = StateIdle
	}
}

func (s *StateTable) set(name string, state State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[name] = state
}

// Get returns the state of name; unknown tasks are idle.
func (s *StateTable) Get(name string) State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if st, ok := s.states[name]; ok {
		return st
	}
	return StateIdle
}

// Snapshot copies the table.
func (s *StateTable) Snapshot() map[string]State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]State, len(s.states))
	for k, v := range s.states {
		out[k] = v
	}
	return out
}

// Names lists the tracked tasks in lexical order.
func (s *StateTable) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.states))
	for k := range s.states {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Run executes t under a fresh run id that every log record of the run
// carries.
func Run(ctx context.Context, t Task, logger logging.Logger) error {
	if logger == nil {
		logger = logging.Discard()
	}
	id := uuid.New().String()
	ctx = logging.WithRunID(ctx, id)

	perf := logging.StartOperation(logger.WithComponent("pipeline"), t.Name())
	perf.Info(ctx, "Starting")
	if err := t.Run(ctx); err != nil {
		perf.EndWithError(ctx, err)
		return err
	}
	perf.End(ctx)
	return nil
}
