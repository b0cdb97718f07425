package errors

import (
	"errors"
	"sort"
	"sync"
	"time"
)

// Failure is the most recent error reported by a task.
type Failure struct {
	Task    string    `json:"task"`
	Code    string    `json:"code,omitempty"`
	Path    string    `json:"path,omitempty"`
	Message string    `json:"message"`
	Time    time.Time `json:"time"`
}

// ErrorCollector keeps the latest failure of each long-running task so the
// dev server can show what is currently broken. A task that succeeds again
// clears its entry.
type ErrorCollector struct {
	mu       sync.RWMutex
	failures map[string]Failure
	onChange []func([]Failure)
}

// NewErrorCollector returns an empty collector.
func NewErrorCollector() *ErrorCollector {
	return &ErrorCollector{failures: make(map[string]Failure)}
}

// Report records err as the current failure of task.
func (c *ErrorCollector) Report(task string, err error) {
	if err == nil {
		c.Clear(task)
		return
	}

	f := Failure{Task: task, Message: err.Error(), Time: time.Now()}
	var se *SiteError
	if errors.As(err, &se) {
		f.Code = se.Code
		f.Path = se.Path
		f.Message = se.Message
		if se.Cause != nil {
			f.Message += ": " + se.Cause.Error()
		}
	}

	c.mu.Lock()
	c.failures[task] = f
	c.mu.Unlock()
	c.notify()
}

// Clear removes the failure of task, if any.
func (c *ErrorCollector) Clear(task string) {
	c.mu.Lock()
	_, ok := c.failures[task]
	delete(c.failures, task)
	c.mu.Unlock()
	if ok {
		c.notify()
	}
}

// Failures returns the current failures ordered by task name.
func (c *ErrorCollector) Failures() []Failure {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Failure, 0, len(c.failures))
	for _, f := range c.failures {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Task < out[j].Task })
	return out
}

// HasFailures reports whether any task is currently failing.
func (c *ErrorCollector) HasFailures() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.failures) > 0
}

// OnChange registers fn to be called with the current failures after every
// change. Callbacks run synchronously on the reporting goroutine.
func (c *ErrorCollector) OnChange(fn func([]Failure)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onChange = append(c.onChange, fn)
}

func (c *ErrorCollector) notify() {
	c.mu.RLock()
	callbacks := append([]func([]Failure){}, c.onChange...)
	c.mu.RUnlock()

	failures := c.Failures()
	for _, fn := range callbacks {
		fn(failures)
	}
}
