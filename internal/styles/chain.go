package styles

import (
	"context"
	"errors"
	"path/filepath"

	"github.com/conneroisu/sitepipe/internal/config"
	siteerrors "github.com/conneroisu/sitepipe/internal/errors"
	"github.com/conneroisu/sitepipe/internal/logging"
)

// Processor is one post-processing stage applied to compiled CSS.
type Processor interface {
	Name() string
	Process(ctx context.Context, sheet *Stylesheet) (*Stylesheet, error)
}

// MarkupReader is implemented by stages whose output depends on generated
// markup.
type MarkupReader interface {
	MarkupGlobs() []string
}

// Chain is an ordered list of stages.
type Chain []Processor

// Apply runs every stage in order. A stage that returns no source map
// invalidates the previous one, since its positions no longer line up.
func (c Chain) Apply(ctx context.Context, sheet *Stylesheet) (*Stylesheet, error) {
	for _, p := range c {
		out, err := p.Process(ctx, sheet)
		if err != nil {
			var se *siteerrors.SiteError
			if errors.As(err, &se) {
				return nil, se.WithContext("stage", p.Name())
			}
			return nil, siteerrors.NewBuildError(siteerrors.ErrCodeStylePostCSS, p.Name()+" failed", err)
		}
		sheet = out
	}
	return sheet, nil
}

// MarkupGlobs collects the markup globs of every stage that reads markup.
func (c Chain) MarkupGlobs() []string {
	var globs []string
	for _, p := range c {
		if r, ok := p.(MarkupReader); ok {
			globs = append(globs, r.MarkupGlobs()...)
		}
	}
	return globs
}

// Names lists the stage names in order.
func (c Chain) Names() []string {
	names := make([]string, len(c))
	for i, p := range c {
		names[i] = p.Name()
	}
	return names
}

// NewChain builds the post-processing chain selected by cfg. The choice
// between the development and production chain happens here, once.
func NewChain(cfg *config.Config, root string, logger logging.Logger) (Chain, error) {
	if logger == nil {
		logger = logging.Discard()
	}
	outputName := filepath.Base(cfg.Styles.Output)

	var chain Chain
	for _, stage := range cfg.StyleChain() {
		switch stage {
		case config.StageSortMedia:
			chain = append(chain, SortMedia{Order: cfg.Styles.SortMedia})
		case config.StageUncss:
			u, err := NewUncss(root, cfg.Styles.Unused.HTML, cfg.Styles.Unused.Ignore, logger.WithComponent("uncss"))
			if err != nil {
				return nil, err
			}
			chain = append(chain, u)
		case config.StageAutoprefix:
			a, err := NewAutoprefix(cfg.Styles.Targets, outputName)
			if err != nil {
				return nil, err
			}
			chain = append(chain, a)
		case config.StageMinify:
			m, err := NewMinify(cfg.Styles.Targets, outputName)
			if err != nil {
				return nil, err
			}
			chain = append(chain, m)
		default:
			return nil, siteerrors.ErrConfigInvalid("styles.chain", "unknown stage %q", stage)
		}
	}
	return chain, nil
}
