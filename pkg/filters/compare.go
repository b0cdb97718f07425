package filters

import (
	"encoding/json"
	"math"
	"reflect"
	"strconv"
	"strings"
	"time"
)

type category int

const (
	catNil category = iota
	catNumber
	catString
	catBool
	catTime
	catOther
)

// scalar is a comparison-normalised view of a value.
type scalar struct {
	cat  category
	num  float64
	str  string
	b    bool
	t    time.Time
	orig interface{}
}

func normalize(v interface{}) scalar {
	switch x := v.(type) {
	case nil:
		return scalar{cat: catNil}
	case string:
		return scalar{cat: catString, str: x}
	case bool:
		return scalar{cat: catBool, b: x}
	case time.Time:
		return scalar{cat: catTime, t: x}
	case *time.Time:
		if x == nil {
			return scalar{cat: catNil}
		}
		return scalar{cat: catTime, t: *x}
	case json.Number:
		f, err := x.Float64()
		if err != nil {
			return scalar{cat: catString, str: x.String()}
		}
		return scalar{cat: catNumber, num: f}
	case int:
		return scalar{cat: catNumber, num: float64(x)}
	case int64:
		return scalar{cat: catNumber, num: float64(x)}
	case float64:
		return scalar{cat: catNumber, num: x}
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return scalar{cat: catNumber, num: float64(rv.Int())}
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return scalar{cat: catNumber, num: float64(rv.Uint())}
	case reflect.Float32, reflect.Float64:
		return scalar{cat: catNumber, num: rv.Float()}
	case reflect.String:
		return scalar{cat: catString, str: rv.String()}
	case reflect.Bool:
		return scalar{cat: catBool, b: rv.Bool()}
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
		if rv.IsNil() {
			return scalar{cat: catNil}
		}
	}
	return scalar{cat: catOther, orig: v}
}

// toNumber converts a scalar to a number the way ordering comparisons
// coerce their operands. NaN marks a value with no numeric reading.
func (s scalar) toNumber() float64 {
	switch s.cat {
	case catNumber:
		return s.num
	case catBool:
		if s.b {
			return 1
		}
		return 0
	case catString:
		trimmed := strings.TrimSpace(s.str)
		if trimmed == "" {
			return 0
		}
		f, err := strconv.ParseFloat(trimmed, 64)
		if err != nil {
			return math.NaN()
		}
		return f
	case catTime:
		return float64(s.t.UnixMilli())
	}
	return math.NaN()
}

// strictEqual is equality without coercion: operands of different
// categories are never equal.
func strictEqual(a, b interface{}) bool {
	return strictScalar(normalize(a), normalize(b))
}

func strictScalar(x, y scalar) bool {
	if x.cat != y.cat {
		return false
	}
	switch x.cat {
	case catNil:
		return true
	case catNumber:
		return x.num == y.num
	case catString:
		return x.str == y.str
	case catBool:
		return x.b == y.b
	case catTime:
		return x.t.Equal(y.t)
	}
	return sameReference(x.orig, y.orig)
}

// sameReference compares composite values by identity.
func sameReference(a, b interface{}) bool {
	ta, tb := reflect.TypeOf(a), reflect.TypeOf(b)
	if ta != tb {
		return false
	}
	if ta.Comparable() {
		return a == b
	}
	va, vb := reflect.ValueOf(a), reflect.ValueOf(b)
	switch va.Kind() {
	case reflect.Map, reflect.Func:
		return va.Pointer() == vb.Pointer()
	case reflect.Slice:
		return va.Pointer() == vb.Pointer() && va.Len() == vb.Len()
	}
	return false
}

// looseEqual is equality with coercion between numbers, numeric strings
// and booleans. nil only equals nil.
func looseEqual(a, b interface{}) bool {
	x, y := normalize(a), normalize(b)
	if x.cat == y.cat {
		return strictScalar(x, y)
	}
	if x.cat == catNil || y.cat == catNil {
		return false
	}
	if x.cat == catOther || y.cat == catOther {
		return false
	}
	xn, yn := x.toNumber(), y.toNumber()
	return !math.IsNaN(xn) && !math.IsNaN(yn) && xn == yn
}

// order compares a and b for the relational operators. Two strings compare
// lexically; everything else compares numerically. ok is false when the
// operands cannot be ordered, which makes every relational operator false.
func order(a, b interface{}) (int, bool) {
	x, y := normalize(a), normalize(b)
	if x.cat == catNil || y.cat == catNil {
		return 0, false
	}
	if x.cat == catString && y.cat == catString {
		return strings.Compare(x.str, y.str), true
	}

	xn, yn := x.toNumber(), y.toNumber()
	if math.IsNaN(xn) || math.IsNaN(yn) {
		return 0, false
	}
	switch {
	case xn < yn:
		return -1, true
	case xn > yn:
		return 1, true
	}
	return 0, true
}

// truthy reports whether v counts as set: non-nil, non-zero, non-empty
// string, true. Composite values are always truthy.
func truthy(v interface{}) bool {
	s := normalize(v)
	switch s.cat {
	case catNil:
		return false
	case catBool:
		return s.b
	case catNumber:
		return s.num != 0 && !math.IsNaN(s.num)
	case catString:
		return s.str != ""
	}
	return true
}

// Property looks up name on record. Maps with string keys are indexed
// directly; structs match an exported field by name (case-insensitively) or
// by its json tag. Pointers and interfaces are followed. ok is false when the
// record has no such property; the value is then nil.
func Property(record interface{}, name string) (interface{}, bool) {
	if m, ok := record.(map[string]interface{}); ok {
		v, found := m[name]
		return v, found
	}

	rv := reflect.ValueOf(record)
	for rv.Kind() == reflect.Pointer || rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return nil, false
		}
		rv = rv.Elem()
	}

	switch rv.Kind() {
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return nil, false
		}
		v := rv.MapIndex(reflect.ValueOf(name).Convert(rv.Type().Key()))
		if !v.IsValid() {
			return nil, false
		}
		return v.Interface(), true
	case reflect.Struct:
		return structField(rv, name)
	}
	return nil, false
}

func structField(rv reflect.Value, name string) (interface{}, bool) {
	rt := rv.Type()
	var fold = -1
	for i := 0; i < rt.NumField(); i++ {
		f := rt.Field(i)
		if !f.IsExported() {
			continue
		}
		if f.Name == name {
			return rv.Field(i).Interface(), true
		}
		if tag, _, _ := strings.Cut(f.Tag.Get("json"), ","); tag != "" && tag == name {
			return rv.Field(i).Interface(), true
		}
		if fold < 0 && strings.EqualFold(f.Name, name) {
			fold = i
		}
	}
	if fold >= 0 {
		return rv.Field(fold).Interface(), true
	}
	return nil, false
}
