package filters

import (
	"encoding/json"
	"html/template"
	"reflect"
	"strings"

	siteerrors "github.com/conneroisu/sitepipe/internal/errors"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// FuncMap returns every filter under the name template authors use for it.
// Filters producing markup return template.HTML so html/template does not
// escape them a second time. In templates "where" treats a nil value after
// an operator as absent, so {{ where .items "a" "!=" nil }} keeps records
// whose a equals "!=".
func FuncMap() template.FuncMap {
	return template.FuncMap{
		"where":   WhereAny,
		"map":     Map,
		"merge":   Merge,
		"jsonify": Jsonify,
		"date":    Date,
		"markdownify": func(s string) (template.HTML, error) {
			out, err := Markdownify(s)
			return template.HTML(out), err // #nosec G203 -- authored content
		},
		"frontmatter": FrontMatter,
		"title":       Title,
		"lorem":       Lorem,
	}
}

// Map projects every record of seq onto its property prop. Records without
// the property contribute nil.
func Map(seq interface{}, prop string) ([]interface{}, error) {
	items, err := toSlice(seq)
	if err != nil {
		return nil, err
	}
	out := make([]interface{}, len(items))
	for i, item := range items {
		out[i], _ = Property(item, prop)
	}
	return out, nil
}

// Merge copies every key of b into a and returns a. a is modified in place;
// a nil a is replaced by a fresh map.
func Merge(a, b map[string]interface{}) map[string]interface{} {
	if a == nil {
		a = make(map[string]interface{}, len(b))
	}
	for k, v := range b {
		a[k] = v
	}
	return a
}

// Jsonify encodes v as compact JSON.
func Jsonify(v interface{}) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", siteerrors.NewBuildError(siteerrors.ErrCodeFilter, "jsonify: value cannot be encoded", err)
	}
	return string(data), nil
}

// Title upper-cases the first letter of every word using English rules.
func Title(s string) string {
	return cases.Title(language.English).String(s)
}

var loremWords = strings.Fields(`lorem ipsum dolor sit amet consectetur adipiscing elit
sed do eiusmod tempor incididunt ut labore et dolore magna aliqua ut enim ad minim
veniam quis nostrud exercitation ullamco laboris nisi ut aliquip ex ea commodo
consequat duis aute irure dolor in reprehenderit in voluptate velit esse cillum
dolore eu fugiat nulla pariatur excepteur sint occaecat cupidatat non proident sunt
in culpa qui officia deserunt mollit anim id est laborum`)

// Lorem returns placeholder text. unit "w" (the default) counts words and
// "c" counts characters.
func Lorem(count int, unit ...string) string {
	if count <= 0 {
		return ""
	}

	chars := len(unit) > 0 && unit[0] == "c"
	var b strings.Builder
	for i := 0; ; i++ {
		w := loremWords[i%len(loremWords)]
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(w)
		if !chars && i+1 == count {
			break
		}
		if chars && b.Len() >= count {
			return strings.TrimSpace(b.String()[:count])
		}
	}
	return b.String()
}

// isNilValue reports whether v is nil or a typed nil.
func isNilValue(v interface{}) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice:
		return rv.IsNil()
	}
	return false
}
