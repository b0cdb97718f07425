package watcher

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gobwas/glob"
)

// Matcher matches file paths against slash-separated glob patterns
// ("src/{css,_sass}/**/*.scss") relative to a root directory.
type Matcher struct {
	root     string
	patterns []string
	globs    []glob.Glob
}

// NewMatcher compiles patterns relative to root. "**" matches any number of
// path segments including none, so "dist/**/*.html" also matches
// "dist/index.html".
func NewMatcher(root string, patterns ...string) (*Matcher, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolving glob root: %w", err)
	}

	m := &Matcher{root: absRoot, patterns: patterns}
	for _, p := range patterns {
		for _, variant := range expandDoubleStar(filepath.ToSlash(p)) {
			g, err := glob.Compile(variant, '/')
			if err != nil {
				return nil, fmt.Errorf("invalid glob %q: %w", p, err)
			}
			m.globs = append(m.globs, g)
		}
	}
	return m, nil
}

// expandDoubleStar returns p plus the variants where a "**" segment matches
// zero segments.
func expandDoubleStar(p string) []string {
	variants := []string{p}
	if strings.Contains(p, "/**/") {
		variants = append(variants, strings.ReplaceAll(p, "/**/", "/"))
	}
	if rest, ok := strings.CutPrefix(p, "**/"); ok {
		variants = append(variants, rest)
	}
	return variants
}

// Match reports whether path, absolute or relative to the working
// directory, matches any pattern.
func (m *Matcher) Match(path string) bool {
	rel := path
	if abs, err := filepath.Abs(path); err == nil {
		if r, err := filepath.Rel(m.root, abs); err == nil {
			rel = r
		}
	}
	rel = filepath.ToSlash(rel)
	if strings.HasPrefix(rel, "../") {
		return false
	}

	for _, g := range m.globs {
		if g.Match(rel) {
			return true
		}
	}
	return false
}

// Filter adapts the matcher to a FileFilter.
func (m *Matcher) Filter() FileFilter {
	return m.Match
}

// Dirs returns the directories that must be watched recursively to observe
// every file the patterns can match, resolved against the root.
func (m *Matcher) Dirs() []string {
	seen := make(map[string]struct{})
	for _, p := range m.patterns {
		seen[filepath.Join(m.root, filepath.FromSlash(BaseDir(p)))] = struct{}{}
	}

	dirs := make([]string, 0, len(seen))
	for d := range seen {
		dirs = append(dirs, d)
	}
	sort.Strings(dirs)
	return dirs
}

// Files walks the directories of the patterns and returns every matching
// file in lexical order.
func (m *Matcher) Files() ([]string, error) {
	var files []string
	for _, dir := range m.Dirs() {
		err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				if path == dir {
					return filepath.SkipDir
				}
				return err
			}
			if d.IsDir() {
				if path != dir && skipDir(d.Name()) {
					return filepath.SkipDir
				}
				return nil
			}
			if m.Match(path) {
				files = append(files, path)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	sort.Strings(files)
	return dedupe(files), nil
}

func dedupe(sorted []string) []string {
	out := sorted[:0]
	for i, s := range sorted {
		if i == 0 || s != sorted[i-1] {
			out = append(out, s)
		}
	}
	return out
}

// BaseDir returns the longest directory prefix of pattern that contains no
// glob metacharacters.
func BaseDir(pattern string) string {
	p := filepath.ToSlash(pattern)
	idx := strings.IndexAny(p, "*?[{")
	if idx < 0 {
		return filepath.ToSlash(filepath.Dir(p))
	}
	prefix := p[:idx]
	slash := strings.LastIndex(prefix, "/")
	switch {
	case slash < 0:
		return "."
	case slash == 0:
		return "/"
	}
	return prefix[:slash]
}
