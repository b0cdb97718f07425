package styles

import (
	"context"
	"os"
	"regexp"
	"strings"

	"github.com/andybalholm/cascadia"
	"github.com/conneroisu/sitepipe/internal/config"
	siteerrors "github.com/conneroisu/sitepipe/internal/errors"
	"github.com/conneroisu/sitepipe/internal/logging"
	"github.com/conneroisu/sitepipe/internal/watcher"
	"github.com/gobwas/glob"
	"golang.org/x/net/html"
)

// Uncss removes style rules whose selectors match nothing in the generated
// markup. Selectors matching an ignore pattern are always kept, as are
// selectors the matcher cannot evaluate.
type Uncss struct {
	root   string
	html   []string
	ignore []glob.Glob
	logger logging.Logger
}

// NewUncss builds the stage. htmlGlobs are resolved against root; ignore
// patterns are globs over selector text ("*--*" keeps every BEM modifier).
func NewUncss(root string, htmlGlobs, ignore []string, logger logging.Logger) (*Uncss, error) {
	u := &Uncss{root: root, html: htmlGlobs, logger: logger}
	if u.logger == nil {
		u.logger = logging.Discard()
	}
	for _, pattern := range ignore {
		g, err := glob.Compile(pattern)
		if err != nil {
			return nil, siteerrors.ErrConfigInvalid("styles.unused.ignore", "invalid pattern %q: %v", pattern, err)
		}
		u.ignore = append(u.ignore, g)
	}
	return u, nil
}

func (*Uncss) Name() string { return config.StageUncss }

// MarkupGlobs lists the markup the stage reads, so watchers can recompile
// when it changes.
func (u *Uncss) MarkupGlobs() []string { return u.html }

func (u *Uncss) Process(ctx context.Context, sheet *Stylesheet) (*Stylesheet, error) {
	docs, err := u.loadDocuments()
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		u.logger.Warn(ctx, nil, "No markup found for unused-rule removal, keeping every rule", "globs", u.html)
		return sheet, nil
	}

	nodes, err := parseStylesheet(sheet.CSS)
	if err != nil {
		return nil, err
	}

	kept, removed := u.filter(nodes, docs)
	u.logger.Debug(ctx, "Removed unused selectors", "removed", removed, "documents", len(docs))
	return &Stylesheet{CSS: renderStylesheet(kept)}, nil
}

func (u *Uncss) loadDocuments() ([]*html.Node, error) {
	m, err := watcher.NewMatcher(u.root, u.html...)
	if err != nil {
		return nil, siteerrors.ErrConfigInvalid("styles.unused.html", "%v", err)
	}
	files, err := m.Files()
	if err != nil {
		return nil, siteerrors.NewIOError(siteerrors.ErrCodeReadFile, "failed to list markup", err)
	}

	docs := make([]*html.Node, 0, len(files))
	for _, path := range files {
		f, err := os.Open(path)
		if err != nil {
			return nil, siteerrors.NewIOError(siteerrors.ErrCodeReadFile, "failed to open markup", err).WithPath(path)
		}
		doc, err := html.Parse(f)
		f.Close()
		if err != nil {
			return nil, siteerrors.NewIOError(siteerrors.ErrCodeReadFile, "failed to parse markup", err).WithPath(path)
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// filter drops unused selectors and the rules and blocks left empty.
func (u *Uncss) filter(nodes []*node, docs []*html.Node) ([]*node, int) {
	out := nodes[:0]
	removed := 0
	for _, n := range nodes {
		switch n.kind {
		case ruleNode:
			var keep []string
			for _, sel := range splitSelectors(n.prelude) {
				if u.used(sel, docs) {
					keep = append(keep, sel)
				} else {
					removed++
				}
			}
			if len(keep) == 0 {
				continue
			}
			n.prelude = strings.Join(keep, ",")
		case atBlockNode:
			if !containsRules(n.name) {
				break
			}
			var r int
			n.children, r = u.filter(n.children, docs)
			removed += r
			if len(n.children) == 0 {
				continue
			}
		}
		out = append(out, n)
	}
	return out, removed
}

// containsRules reports whether an at-rule block holds style rules subject
// to removal. Keyframes, font faces and pages hold something else.
func containsRules(name string) bool {
	switch strings.ToLower(name) {
	case "@media", "@supports", "@layer", "@container", "@document", "@-moz-document":
		return true
	}
	return false
}

func (u *Uncss) used(selector string, docs []*html.Node) bool {
	for _, g := range u.ignore {
		if g.Match(selector) {
			return true
		}
	}

	bare := stripPseudo(selector)
	if bare == "" {
		return true
	}
	sel, err := cascadia.Compile(bare)
	if err != nil {
		return true
	}
	for _, doc := range docs {
		if sel.MatchFirst(doc) != nil {
			return true
		}
	}
	return false
}

var pseudoPattern = regexp.MustCompile(`::?[a-zA-Z-]+(\([^()]*\))?`)

// stripPseudo removes pseudo-classes and pseudo-elements, which describe
// states the static markup cannot show. A compound left empty becomes "*".
func stripPseudo(selector string) string {
	s := pseudoPattern.ReplaceAllString(selector, "")
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	s = strings.Join(strings.Fields(s), " ")
	for _, comb := range []string{">", "+", "~"} {
		s = strings.ReplaceAll(s, comb+" ", comb)
		s = strings.ReplaceAll(s, " "+comb, comb)
	}
	// a combinator left dangling at the end applies to any element
	if strings.HasSuffix(s, ">") || strings.HasSuffix(s, "+") || strings.HasSuffix(s, "~") {
		s += "*"
	}
	return s
}
