// Package content runs the external content generator that renders the
// site's markup into the output directory.
package content

import (
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
	"strings"
	"time"

	siteerrors "github.com/conneroisu/sitepipe/internal/errors"
	"github.com/conneroisu/sitepipe/internal/logging"
	"github.com/conneroisu/sitepipe/internal/validation"
)

// StopGrace is how long the generator gets to exit after an interrupt
// before it is killed.
const StopGrace = 5 * time.Second

// Options configure a Generator.
type Options struct {
	Command   string
	Args      []string
	WatchFlag string
	Dir       string
	Env       []string
	Stdout    io.Writer
	Stderr    io.Writer
}

// Generator is the content-generation producer.
type Generator struct {
	opts   Options
	logger logging.Logger
}

// NewGenerator validates the command line and returns a generator. Output
// defaults to the process's stdout and stderr.
func NewGenerator(opts Options, logger logging.Logger) (*Generator, error) {
	if err := validation.ValidateCommand(opts.Command, append(append([]string{}, opts.Args...), opts.WatchFlag)); err != nil {
		return nil, siteerrors.NewConfigError(siteerrors.ErrCodeConfigInvalid, "content.command: "+err.Error())
	}
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &Generator{opts: opts, logger: logger.WithComponent("content")}, nil
}

// Build runs the generator once. A non-zero exit is a process error.
func (g *Generator) Build(ctx context.Context) error {
	return g.run(ctx, g.opts.Args)
}

// Watch runs the generator in its own watch mode until ctx is cancelled.
// Cancellation is a clean stop; the generator exiting by itself, with any
// status, is reported as an error since watch mode is expected to run until
// stopped.
func (g *Generator) Watch(ctx context.Context) error {
	args := g.opts.Args
	if g.opts.WatchFlag != "" {
		args = append(append([]string{}, args...), g.opts.WatchFlag)
	}
	err := g.run(ctx, args)
	if err == nil && ctx.Err() == nil {
		return siteerrors.NewProcessError(siteerrors.ErrCodeProcessExit, "content generator exited while watching", nil).
			WithContext("command", g.commandLine(args))
	}
	return err
}

func (g *Generator) run(ctx context.Context, args []string) error {
	commandLine := g.commandLine(args)

	cmd := exec.CommandContext(ctx, g.opts.Command, args...)
	cmd.Dir = g.opts.Dir
	if len(g.opts.Env) > 0 {
		cmd.Env = append(os.Environ(), g.opts.Env...)
	}
	cmd.Stdout = g.opts.Stdout
	cmd.Stderr = g.opts.Stderr
	cmd.Cancel = func() error { return cmd.Process.Signal(os.Interrupt) }
	cmd.WaitDelay = StopGrace

	g.logger.Debug(ctx, "Starting content generator", "command", commandLine)
	if err := cmd.Start(); err != nil {
		return siteerrors.NewProcessError(siteerrors.ErrCodeProcessStart, "failed to start content generator", err).
			WithContext("command", commandLine)
	}

	err := cmd.Wait()
	if ctx.Err() != nil {
		g.logger.Debug(ctx, "Content generator stopped", "command", commandLine)
		return nil
	}
	if err != nil {
		code := -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			code = exitErr.ExitCode()
		}
		return siteerrors.NewProcessError(siteerrors.ErrCodeProcessExit, "content generator failed", err).
			WithContext("command", commandLine).
			WithContext("exit_code", code)
	}
	return nil
}

func (g *Generator) commandLine(args []string) string {
	return strings.TrimSpace(g.opts.Command + " " + strings.Join(args, " "))
}
