package styles

import (
	"context"
	"regexp"
	"strings"

	"github.com/conneroisu/sitepipe/internal/config"
	siteerrors "github.com/conneroisu/sitepipe/internal/errors"
	"github.com/evanw/esbuild/pkg/api"
)

// Autoprefix lowers and vendor-prefixes CSS for the configured browser
// targets using esbuild's CSS transform.
type Autoprefix struct {
	engines  []api.Engine
	filename string
}

// Minify compresses CSS with esbuild, emitting a fresh external source map.
type Minify struct {
	engines  []api.Engine
	filename string
}

// NewAutoprefix parses targets like "chrome58" or "safari11".
func NewAutoprefix(targets []string, filename string) (*Autoprefix, error) {
	engines, err := parseEngines(targets)
	if err != nil {
		return nil, err
	}
	return &Autoprefix{engines: engines, filename: filename}, nil
}

// NewMinify parses targets like NewAutoprefix.
func NewMinify(targets []string, filename string) (*Minify, error) {
	engines, err := parseEngines(targets)
	if err != nil {
		return nil, err
	}
	return &Minify{engines: engines, filename: filename}, nil
}

func (*Autoprefix) Name() string { return config.StageAutoprefix }

func (a *Autoprefix) Process(_ context.Context, sheet *Stylesheet) (*Stylesheet, error) {
	return transformCSS(sheet, api.TransformOptions{
		Loader:     api.LoaderCSS,
		Engines:    a.engines,
		Sourcefile: a.filename,
		Sourcemap:  api.SourceMapExternal,
		LogLevel:   api.LogLevelSilent,
	}, config.StageAutoprefix)
}

func (*Minify) Name() string { return config.StageMinify }

func (m *Minify) Process(_ context.Context, sheet *Stylesheet) (*Stylesheet, error) {
	return transformCSS(sheet, api.TransformOptions{
		Loader:            api.LoaderCSS,
		Engines:           m.engines,
		MinifyWhitespace:  true,
		MinifySyntax:      true,
		MinifyIdentifiers: true,
		LegalComments:     api.LegalCommentsInline,
		Sourcefile:        m.filename,
		Sourcemap:         api.SourceMapExternal,
		LogLevel:          api.LogLevelSilent,
	}, config.StageMinify)
}

func transformCSS(sheet *Stylesheet, opts api.TransformOptions, stage string) (*Stylesheet, error) {
	result := api.Transform(string(sheet.CSS), opts)
	if len(result.Errors) > 0 {
		return nil, siteerrors.NewBuildError(siteerrors.ErrCodeStylePostCSS, formatMessages(result.Errors), nil).
			WithContext("stage", stage)
	}
	return &Stylesheet{CSS: result.Code, Map: result.Map}, nil
}

// formatMessages renders esbuild diagnostics the way esbuild prints them.
func formatMessages(msgs []api.Message) string {
	formatted := api.FormatMessages(msgs, api.FormatMessagesOptions{Kind: api.ErrorMessage})
	return strings.TrimSpace(strings.Join(formatted, ""))
}

var enginePattern = regexp.MustCompile(`^([a-z]+)([0-9][0-9.]*)$`)

var engineNames = map[string]api.EngineName{
	"chrome":  api.EngineChrome,
	"edge":    api.EngineEdge,
	"firefox": api.EngineFirefox,
	"ie":      api.EngineIE,
	"ios":     api.EngineIOS,
	"opera":   api.EngineOpera,
	"safari":  api.EngineSafari,
}

func parseEngines(targets []string) ([]api.Engine, error) {
	engines := make([]api.Engine, 0, len(targets))
	for _, t := range targets {
		m := enginePattern.FindStringSubmatch(strings.ToLower(strings.TrimSpace(t)))
		if m == nil {
			return nil, siteerrors.ErrConfigInvalid("styles.targets", "invalid target %q, expected a browser and version like chrome58", t)
		}
		name, ok := engineNames[m[1]]
		if !ok {
			return nil, siteerrors.ErrConfigInvalid("styles.targets", "unknown browser %q", m[1])
		}
		engines = append(engines, api.Engine{Name: name, Version: m[2]})
	}
	return engines, nil
}
