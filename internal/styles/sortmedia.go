package styles

import (
	"context"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/conneroisu/sitepipe/internal/config"
)

// SortMedia moves top-level @media blocks after the other rules, merges
// blocks with identical queries and orders them by breakpoint. Desktop-first
// puts max-width queries first (widest first) followed by min-width queries
// (narrowest first); mobile-first is the mirror image. Queries without a
// width keep their relative order at the end.
type SortMedia struct {
	Order string
}

func (SortMedia) Name() string { return config.StageSortMedia }

func (s SortMedia) Process(_ context.Context, sheet *Stylesheet) (*Stylesheet, error) {
	nodes, err := parseStylesheet(sheet.CSS)
	if err != nil {
		return nil, err
	}
	return &Stylesheet{CSS: renderStylesheet(sortMediaNodes(nodes, s.Order))}, nil
}

type mediaGroup struct {
	query string
	block *node
	index int
}

func sortMediaNodes(nodes []*node, order string) []*node {
	var rest []*node
	var groups []*mediaGroup
	byQuery := make(map[string]*mediaGroup)

	for _, n := range nodes {
		if n.kind != atBlockNode || !strings.EqualFold(n.name, "@media") {
			rest = append(rest, n)
			continue
		}
		key := normalizeQuery(n.prelude)
		if g, ok := byQuery[key]; ok {
			g.block.children = append(g.block.children, n.children...)
			continue
		}
		g := &mediaGroup{
			query: key,
			block: &node{kind: atBlockNode, name: n.name, prelude: n.prelude, children: append([]*node(nil), n.children...)},
			index: len(groups),
		}
		byQuery[key] = g
		groups = append(groups, g)
	}

	sort.SliceStable(groups, func(i, j int) bool {
		return mediaLess(groups[i].query, groups[j].query, order)
	})

	out := rest
	for _, g := range groups {
		out = append(out, g.block)
	}
	return out
}

var widthFeature = regexp.MustCompile(`\((min|max)-width\s*:\s*([0-9.]+)\s*(px|em|rem)?\s*\)`)

// breakpoint extracts the kind ("min", "max" or "") and width in pixels of
// the first width feature of a media query.
func breakpoint(query string) (string, float64) {
	m := widthFeature.FindStringSubmatch(query)
	if m == nil {
		return "", 0
	}
	w, err := strconv.ParseFloat(m[2], 64)
	if err != nil {
		return "", 0
	}
	if m[3] == "em" || m[3] == "rem" {
		w *= 16
	}
	return m[1], w
}

func mediaLess(a, b, order string) bool {
	ka, wa := breakpoint(a)
	kb, wb := breakpoint(b)

	rank := func(kind string) int {
		first, second := "max", "min"
		if order == config.SortMobileFirst {
			first, second = "min", "max"
		}
		switch kind {
		case first:
			return 0
		case second:
			return 1
		}
		return 2
	}

	ra, rb := rank(ka), rank(kb)
	if ra != rb {
		return ra < rb
	}
	switch ka {
	case "max":
		return wa > wb
	case "min":
		return wa < wb
	}
	return false
}

func normalizeQuery(q string) string {
	return strings.Join(strings.Fields(strings.ToLower(q)), " ")
}
