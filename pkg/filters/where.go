// Package filters implements the helper filters template authors call from
// content templates. The centrepiece is Where, a stable attribute filter over
// a sequence of records:
//
//	where(records, "draft", false)          // operator defaults to ==
//	where(records, "weight", ">", 10)
//	where(records, "featured")              // keep records whose property is truthy
//
// Comparisons follow loose/strict equality and ordering rules rather than Go's
// type-exact equality, so data decoded from YAML or JSON (where numbers may be
// int, float64 or numeric strings) filters the way authors expect.
package filters

import (
	"reflect"

	siteerrors "github.com/conneroisu/sitepipe/internal/errors"
)

// Predicate reports whether a record's property value satisfies a comparison
// against the filter value.
type Predicate func(property, value interface{}) bool

// operators is the fixed operator table. It is never mutated.
var operators = map[string]Predicate{
	"==":  looseEqual,
	"!=":  func(a, b interface{}) bool { return !looseEqual(a, b) },
	"===": strictEqual,
	"!==": func(a, b interface{}) bool { return !strictEqual(a, b) },
	">":   func(a, b interface{}) bool { c, ok := order(a, b); return ok && c > 0 },
	">=":  func(a, b interface{}) bool { c, ok := order(a, b); return ok && c >= 0 },
	"<":   func(a, b interface{}) bool { c, ok := order(a, b); return ok && c < 0 },
	"<=":  func(a, b interface{}) bool { c, ok := order(a, b); return ok && c <= 0 },
}

// Operators returns the names of the recognised operators.
func Operators() []string {
	return []string{"==", "!=", "===", "!==", ">", ">=", "<", "<="}
}

// Expression is a parsed filter expression.
type Expression struct {
	Property string
	Operator string
	Value    interface{}
	// Truthy is set when neither operator nor value was supplied; the
	// expression then keeps records whose property is truthy.
	Truthy bool
}

// ParseExpression resolves the positional filter arguments into an
// Expression.
//
//   - no args: truthiness test
//   - one arg: the arg is the value, operator "=="
//   - two args: (operator, value); when value is nil the operator is
//     reinterpreted as the value and the operator becomes "=="
//
// An operator that is not in the table yields a configuration error.
func ParseExpression(property string, args ...interface{}) (Expression, error) {
	expr := Expression{Property: property, Operator: "=="}

	switch len(args) {
	case 0:
		expr.Truthy = true
		return expr, nil
	case 1:
		expr.Value = args[0]
		return expr, nil
	}

	opArg, value := args[0], args[1]
	if value == nil {
		if opArg == nil {
			expr.Truthy = true
			return expr, nil
		}
		expr.Value = opArg
		return expr, nil
	}

	op, ok := opArg.(string)
	if !ok {
		return Expression{}, siteerrors.ErrBadOperator(opArg)
	}
	if _, ok := operators[op]; !ok {
		return Expression{}, siteerrors.ErrBadOperator(op)
	}
	expr.Operator = op
	expr.Value = value
	return expr, nil
}

// Match reports whether record satisfies the expression.
func (e Expression) Match(record interface{}) bool {
	prop, _ := Property(record, e.Property)
	if e.Truthy {
		return truthy(prop)
	}
	return operators[e.Operator](prop, e.Value)
}

// Where returns the records whose property satisfies the expression given by
// args, preserving their relative order. The input slice is not modified.
//
// An explicit nil value is treated as absent: Where(r, "a", "!=", nil)
// compares a against the string "!=" rather than against nil. Use the
// single-argument form Where(r, "a", nil) to match missing or nil
// properties.
func Where[T any](records []T, property string, args ...interface{}) ([]T, error) {
	expr, err := ParseExpression(property, args...)
	if err != nil {
		return nil, err
	}

	out := make([]T, 0, len(records))
	for _, r := range records {
		if expr.Match(r) {
			out = append(out, r)
		}
	}
	return out, nil
}

// WhereAny is the template-facing form of Where. seq may be any slice or
// array; nil yields an empty result. A nil value after an operator is
// treated as absent, as in Where.
func WhereAny(seq interface{}, property string, args ...interface{}) ([]interface{}, error) {
	items, err := toSlice(seq)
	if err != nil {
		return nil, err
	}
	return Where(items, property, args...)
}

// toSlice flattens any slice or array value into []interface{}.
func toSlice(seq interface{}) ([]interface{}, error) {
	if seq == nil {
		return []interface{}{}, nil
	}
	if items, ok := seq.([]interface{}); ok {
		return items, nil
	}

	v := reflect.ValueOf(seq)
	for v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return []interface{}{}, nil
		}
		v = v.Elem()
	}
	if v.Kind() != reflect.Slice && v.Kind() != reflect.Array {
		return nil, siteerrors.NewConfigError(siteerrors.ErrCodeFilter, "filter expects a sequence, got "+v.Type().String())
	}

	items := make([]interface{}, v.Len())
	for i := range items {
		items[i] = v.Index(i).Interface()
	}
	return items, nil
}
