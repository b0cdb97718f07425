package filters

import (
	"bytes"
	"strings"

	"github.com/adrg/frontmatter"
	siteerrors "github.com/conneroisu/sitepipe/internal/errors"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"
	"gopkg.in/yaml.v3"
)

// ExcerptSeparator splits a document's excerpt from the rest of its body.
const ExcerptSeparator = "<!-- more -->"

const frontMatterDelimiter = "---"

var markdown = goldmark.New(
	goldmark.WithExtensions(
		extension.Table,
		extension.Strikethrough,
		extension.Typographer,
	),
	goldmark.WithRendererOptions(html.WithUnsafe()),
)

// Markdownify renders s as HTML. Raw HTML in the source is passed through
// and quotes and dashes are typographically replaced.
func Markdownify(s string) (string, error) {
	var buf bytes.Buffer
	if err := markdown.Convert([]byte(s), &buf); err != nil {
		return "", siteerrors.NewBuildError(siteerrors.ErrCodeFilter, "markdownify failed", err)
	}
	return buf.String(), nil
}

// Document is a source file split into its front matter and body.
type Document struct {
	Data    map[string]interface{} `json:"data"`
	Content string                 `json:"content"`
	// Excerpt is the body up to ExcerptSeparator, or empty when the body has
	// no separator.
	Excerpt string `json:"excerpt"`
	// Matter is the raw YAML between the delimiters.
	Matter string `json:"matter"`
}

// FrontMatter splits a leading YAML block delimited by "---" lines off s.
// Input without front matter, or with an unterminated block, yields empty
// Data and the whole input as Content.
func FrontMatter(s string) (*Document, error) {
	doc := &Document{Data: map[string]interface{}{}}

	yamlMatter := frontmatter.NewFormat(frontMatterDelimiter, frontMatterDelimiter, func(data []byte, v interface{}) error {
		doc.Matter = strings.TrimRight(string(data), "\r\n")
		return yaml.Unmarshal(data, v)
	})
	rest, err := frontmatter.Parse(strings.NewReader(s), &doc.Data, yamlMatter)
	if err != nil {
		return nil, siteerrors.NewConfigError(siteerrors.ErrCodeFilter, "frontmatter: invalid YAML: "+err.Error())
	}
	if doc.Data == nil {
		doc.Data = map[string]interface{}{}
	}
	doc.Content = string(rest)

	if idx := strings.Index(doc.Content, ExcerptSeparator); idx >= 0 {
		doc.Excerpt = doc.Content[:idx]
	}
	return doc, nil
}
