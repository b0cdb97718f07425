package styles

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"net/url"
	"os/exec"
	"strings"

	siteerrors "github.com/conneroisu/sitepipe/internal/errors"
	"github.com/conneroisu/sitepipe/internal/validation"
)

// Stylesheet is compiled CSS with its optional source map.
type Stylesheet struct {
	CSS []byte
	Map []byte
}

// Engine compiles a stylesheet entry point.
type Engine interface {
	Compile(ctx context.Context, entry string) (*Stylesheet, error)
}

// EngineFunc adapts a function to Engine.
type EngineFunc func(ctx context.Context, entry string) (*Stylesheet, error)

func (f EngineFunc) Compile(ctx context.Context, entry string) (*Stylesheet, error) {
	return f(ctx, entry)
}

// SassEngine runs the dart-sass command line compiler.
type SassEngine struct {
	Command   string
	LoadPaths []string
	Dir       string
}

// NewSassEngine validates the command line and returns an engine.
func NewSassEngine(command string, loadPaths []string, dir string) (*SassEngine, error) {
	args := make([]string, 0, len(loadPaths))
	for _, p := range loadPaths {
		args = append(args, "--load-path="+p)
	}
	if err := validation.ValidateCommand(command, args); err != nil {
		return nil, siteerrors.NewConfigError(siteerrors.ErrCodeConfigInvalid, "styles.command: "+err.Error())
	}
	return &SassEngine{Command: command, LoadPaths: loadPaths, Dir: dir}, nil
}

// Compile runs sass on entry and returns the CSS with the embedded source
// map split out. A failed compile returns a build error whose message is
// the compiler's own diagnostic.
func (e *SassEngine) Compile(ctx context.Context, entry string) (*Stylesheet, error) {
	args := make([]string, 0, len(e.LoadPaths)+4)
	for _, p := range e.LoadPaths {
		args = append(args, "--load-path="+p)
	}
	args = append(args, "--quiet-deps", "--embed-source-map", "--no-unicode", entry)

	cmd := exec.CommandContext(ctx, e.Command, args...)
	cmd.Dir = e.Dir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			msg := strings.TrimSpace(stderr.String())
			if msg == "" {
				msg = err.Error()
			}
			return nil, siteerrors.NewBuildError(siteerrors.ErrCodeStyleCompile, msg, nil).WithPath(entry)
		}
		return nil, siteerrors.NewProcessError(siteerrors.ErrCodeProcessStart, "failed to run "+e.Command, err)
	}

	css, sourceMap, err := splitInlineSourceMap(stdout.Bytes())
	if err != nil {
		return nil, siteerrors.NewBuildError(siteerrors.ErrCodeStyleCompile, "unreadable embedded source map", err).WithPath(entry)
	}
	return &Stylesheet{CSS: css, Map: sourceMap}, nil
}

const sourceMapPrefix = "/*# sourceMappingURL="

// splitInlineSourceMap removes a trailing sourceMappingURL comment from css
// and, when it holds a data URL, decodes the map it carries.
func splitInlineSourceMap(css []byte) ([]byte, []byte, error) {
	idx := bytes.LastIndex(css, []byte(sourceMapPrefix))
	if idx < 0 {
		return css, nil, nil
	}
	end := bytes.Index(css[idx:], []byte("*/"))
	if end < 0 {
		return css, nil, nil
	}

	ref := strings.TrimSpace(string(css[idx+len(sourceMapPrefix) : idx+end]))
	body := bytes.TrimRight(css[:idx], " \t\r\n")
	stripped := make([]byte, 0, len(body)+1)
	stripped = append(append(stripped, body...), '\n')

	data, ok := strings.CutPrefix(ref, "data:")
	if !ok {
		return stripped, nil, nil
	}
	header, payload, found := strings.Cut(data, ",")
	if !found {
		return stripped, nil, nil
	}

	if strings.HasSuffix(header, ";base64") {
		decoded, err := base64.StdEncoding.DecodeString(payload)
		if err != nil {
			return nil, nil, err
		}
		return stripped, decoded, nil
	}
	decoded, err := url.PathUnescape(payload)
	if err != nil {
		return nil, nil, err
	}
	return stripped, []byte(decoded), nil
}

// stripSourceMapComment removes any sourceMappingURL comment from css.
func stripSourceMapComment(css []byte) []byte {
	out, _, err := splitInlineSourceMap(css)
	if err != nil {
		return css
	}
	return out
}
