package styles

import (
	"bytes"
	"io"
	"strings"

	"github.com/tdewolff/parse/v2"
	"github.com/tdewolff/parse/v2/css"
)

// nodeKind classifies a node of the stylesheet tree.
type nodeKind int

const (
	ruleNode        nodeKind = iota // selector { ... }
	atBlockNode                     // @media … { ... }
	atStatementNode                 // @import …;
	declarationNode                 // property: value
	commentNode                     // /*! preserved */
)

// node is one element of a parsed stylesheet. Text fields hold source text
// with surrounding whitespace trimmed.
type node struct {
	kind     nodeKind
	name     string // at-rule keyword or declaration property
	prelude  string // selector list, at-rule prelude or declaration value
	children []*node
}

// parseStylesheet builds a tree from compiled CSS. Only comments starting
// with "/*!" survive.
func parseStylesheet(src []byte) ([]*node, error) {
	p := css.NewParser(parse.NewInputBytes(src), false)

	root := &node{kind: atBlockNode}
	stack := []*node{root}
	var pendingSelectors []string

	top := func() *node { return stack[len(stack)-1] }
	push := func(n *node) {
		top().children = append(top().children, n)
		stack = append(stack, n)
	}
	pop := func() {
		if len(stack) > 1 {
			stack = stack[:len(stack)-1]
		}
	}

	for {
		gt, _, data := p.Next()
		switch gt {
		case css.ErrorGrammar:
			if p.Err() == io.EOF {
				return root.children, nil
			}
			return nil, p.Err()
		case css.BeginAtRuleGrammar:
			push(&node{kind: atBlockNode, name: string(data), prelude: tokensText(p.Values())})
		case css.EndAtRuleGrammar, css.EndRulesetGrammar:
			pop()
		case css.QualifiedRuleGrammar:
			pendingSelectors = append(pendingSelectors, tokensText(p.Values()))
		case css.BeginRulesetGrammar:
			selectors := append(pendingSelectors, tokensText(p.Values()))
			pendingSelectors = nil
			push(&node{kind: ruleNode, prelude: strings.Join(selectors, ",")})
		case css.DeclarationGrammar, css.CustomPropertyGrammar:
			top().children = append(top().children, &node{
				kind:    declarationNode,
				name:    string(data),
				prelude: tokensText(p.Values()),
			})
		case css.AtRuleGrammar:
			top().children = append(top().children, &node{
				kind:    atStatementNode,
				name:    string(data),
				prelude: tokensText(p.Values()),
			})
		case css.CommentGrammar:
			if bytes.HasPrefix(data, []byte("/*!")) {
				top().children = append(top().children, &node{kind: commentNode, prelude: string(data)})
			}
		}
	}
}

func tokensText(tokens []css.Token) string {
	var b strings.Builder
	for _, t := range tokens {
		b.Write(t.Data)
	}
	return strings.TrimSpace(b.String())
}

// renderStylesheet serialises nodes back to compact CSS.
func renderStylesheet(nodes []*node) []byte {
	var buf bytes.Buffer
	for _, n := range nodes {
		renderNode(&buf, n)
	}
	return buf.Bytes()
}

func renderNode(buf *bytes.Buffer, n *node) {
	switch n.kind {
	case ruleNode:
		buf.WriteString(n.prelude)
		buf.WriteByte('{')
		renderChildren(buf, n.children)
		buf.WriteString("}\n")
	case atBlockNode:
		buf.WriteString(n.name)
		if n.prelude != "" {
			buf.WriteByte(' ')
			buf.WriteString(n.prelude)
		}
		buf.WriteString("{\n")
		renderChildren(buf, n.children)
		buf.WriteString("}\n")
	case atStatementNode:
		buf.WriteString(n.name)
		if n.prelude != "" {
			buf.WriteByte(' ')
			buf.WriteString(n.prelude)
		}
		buf.WriteString(";\n")
	case declarationNode:
		buf.WriteString(n.name)
		buf.WriteByte(':')
		buf.WriteString(n.prelude)
		buf.WriteByte(';')
	case commentNode:
		buf.WriteString(n.prelude)
		buf.WriteByte('\n')
	}
}

func renderChildren(buf *bytes.Buffer, children []*node) {
	for _, c := range children {
		renderNode(buf, c)
	}
}

// splitSelectors splits a selector list on top-level commas, leaving commas
// inside parentheses or brackets alone.
func splitSelectors(list string) []string {
	var out []string
	depth, start := 0, 0
	for i, r := range list {
		switch r {
		case '(', '[':
			depth++
		case ')', ']':
			if depth > 0 {
				depth--
			}
		case ',':
			if depth == 0 {
				out = append(out, strings.TrimSpace(list[start:i]))
				start = i + 1
			}
		}
	}
	if last := strings.TrimSpace(list[start:]); last != "" {
		out = append(out, last)
	}
	return out
}
