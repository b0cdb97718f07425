// Package notifier sends desktop notifications when a watch-mode task
// fails or recovers.
package notifier

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/conneroisu/sitepipe/internal/logging"
	"github.com/gen2brain/beeep"
)

const appName = "sitepipe"

// Notifier reports task outcomes to the desktop.
type Notifier struct {
	enabled bool
	logger  logging.Logger
	send    func(title, message string) error

	mu      sync.Mutex
	failing map[string]bool
}

// New returns a notifier. A disabled notifier only tracks state.
func New(enabled bool, logger logging.Logger) *Notifier {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Notifier{
		enabled: enabled,
		logger:  logger.WithComponent("notifier"),
		send:    func(title, message string) error { return beeep.Notify(title, message, "") },
		failing: make(map[string]bool),
	}
}

// Failure announces that task failed.
func (n *Notifier) Failure(ctx context.Context, task string, err error) {
	n.mu.Lock()
	n.failing[task] = true
	n.mu.Unlock()

	n.notify(ctx, fmt.Sprintf("%s: %s failed", appName, task), firstLine(err.Error()))
}

// Success announces a task that recovers after a failure. Successes of
// healthy tasks are not announced.
func (n *Notifier) Success(ctx context.Context, task string, duration time.Duration) {
	n.mu.Lock()
	wasFailing := n.failing[task]
	delete(n.failing, task)
	n.mu.Unlock()

	if wasFailing {
		n.notify(ctx, fmt.Sprintf("%s: %s fixed", appName, task), "built in "+formatDuration(duration))
	}
}

func (n *Notifier) notify(ctx context.Context, title, message string) {
	if !n.enabled {
		return
	}
	if err := n.send(title, message); err != nil {
		n.logger.Debug(ctx, "Failed to send notification", "error", err)
	}
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
}
