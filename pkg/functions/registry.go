// Package functions describes the closed catalog of functions that can be
// applied with the `:name(args)` suffix.
//
// The catalog is consulted by the parser, to decide whether `:name` is a
// function suffix and which sub-grammar its arguments follow, and by the
// builders, to check arity before generating code.
//
// # Example
//
//	spec, ok := functions.Lookup("SUM")
//	// spec.Name == "sum", spec.Category == functions.Aggregate
package functions

import (
	"sort"
	"sync"

	"golang.org/x/text/cases"
)

// Category groups functions by the AST node they produce and by the kind of
// value they operate on.
type Category uint8

const (
	// Aggregate functions reduce a collection (count, sum, avg, min, max).
	Aggregate Category = iota
	// Boolean functions test a collection (any, all).
	Boolean
	// String functions transform a string.
	String
	// DateTime functions read or format a date.
	DateTime
	// Math functions operate on numbers.
	Math
	// Collection functions reshape a collection (distinct, groupBy).
	Collection
)

// String returns the category name.
func (c Category) String() string {
	switch c {
	case Aggregate:
		return "aggregate"
	case Boolean:
		return "boolean"
	case String:
		return "string"
	case DateTime:
		return "datetime"
	case Math:
		return "math"
	case Collection:
		return "collection"
	default:
		return "(unknown)"
	}
}

// Unbounded marks a variadic MaxArgs.
const Unbounded = -1

// Spec describes one catalog function.
type Spec struct {
	// Name is the canonical spelling.
	Name     string
	Category Category
	MinArgs  int
	MaxArgs  int
	// LiteralArgs requires every argument to be a literal.
	LiteralArgs bool
	// Doc is a one-line description shown by the REPL.
	Doc string
}

// AcceptsArgs reports whether n arguments satisfy the arity of s.
func (s *Spec) AcceptsArgs(n int) bool {
	if n < s.MinArgs {
		return false
	}
	return s.MaxArgs == Unbounded || n <= s.MaxArgs
}

var catalog = []Spec{
	{Name: "count", Category: Aggregate, MinArgs: 0, MaxArgs: 1, Doc: "number of elements, or string length"},
	{Name: "sum", Category: Aggregate, MinArgs: 0, MaxArgs: 1, Doc: "sum of the elements or of a selector"},
	{Name: "avg", Category: Aggregate, MinArgs: 0, MaxArgs: 1, Doc: "average of the elements or of a selector"},
	{Name: "min", Category: Aggregate, MinArgs: 0, MaxArgs: 1, Doc: "smallest element or selector value"},
	{Name: "max", Category: Aggregate, MinArgs: 0, MaxArgs: 1, Doc: "largest element or selector value"},

	{Name: "any", Category: Boolean, MinArgs: 0, MaxArgs: 1, Doc: "true if some element matches (or the collection is not empty)"},
	{Name: "all", Category: Boolean, MinArgs: 0, MaxArgs: 1, Doc: "true if every element matches"},

	{Name: "upper", Category: String, Doc: "upper-case"},
	{Name: "lower", Category: String, Doc: "lower-case"},
	{Name: "trim", Category: String, Doc: "strip surrounding white space"},
	{Name: "substring", Category: String, MinArgs: 1, MaxArgs: 2, Doc: "substring(start[, length])"},
	{Name: "replace", Category: String, MinArgs: 2, MaxArgs: 2, Doc: "replace(old, new)"},
	{Name: "concat", Category: String, MinArgs: 1, MaxArgs: Unbounded, Doc: "append the arguments"},
	{Name: "split", Category: String, MinArgs: 1, MaxArgs: 1, Doc: "split(separator)"},

	{Name: "year", Category: DateTime, Doc: "calendar year"},
	{Name: "month", Category: DateTime, Doc: "month, 1-12"},
	{Name: "day", Category: DateTime, Doc: "day of the month"},
	{Name: "hour", Category: DateTime, Doc: "hour, 0-23"},
	{Name: "minute", Category: DateTime, Doc: "minute, 0-59"},
	{Name: "second", Category: DateTime, Doc: "second, 0-59"},
	{Name: "dayOfWeek", Category: DateTime, Doc: "day of the week, 0 is Sunday"},
	{Name: "daysAgo", Category: DateTime, Doc: "whole days elapsed until now"},
	{Name: "format", Category: DateTime, MinArgs: 1, MaxArgs: 1, LiteralArgs: true, Doc: "format('yyyy-MM-dd')"},

	{Name: "round", Category: Math, MinArgs: 0, MaxArgs: 1, LiteralArgs: true, Doc: "round([digits])"},
	{Name: "floor", Category: Math, Doc: "largest integer not greater"},
	{Name: "ceil", Category: Math, Doc: "smallest integer not less"},
	{Name: "abs", Category: Math, Doc: "absolute value"},
	{Name: "add", Category: Math, MinArgs: 1, MaxArgs: 1, Doc: "add(operand)"},
	{Name: "subtract", Category: Math, MinArgs: 1, MaxArgs: 1, Doc: "subtract(operand)"},
	{Name: "multiply", Category: Math, MinArgs: 1, MaxArgs: 1, Doc: "multiply(operand)"},
	{Name: "divide", Category: Math, MinArgs: 1, MaxArgs: 1, Doc: "divide(operand)"},
	{Name: "mod", Category: Math, MinArgs: 1, MaxArgs: 1, Doc: "mod(operand)"},
	{Name: "pow", Category: Math, MinArgs: 1, MaxArgs: 1, Doc: "pow(exponent)"},

	{Name: "distinct", Category: Collection, MinArgs: 0, MaxArgs: 1, Doc: "distinct([property])"},
	{Name: "groupBy", Category: Collection, MinArgs: 1, MaxArgs: Unbounded, Doc: "groupBy(key[, key...])"},
}

var (
	indexOnce sync.Once
	index     map[string]*Spec
	names     []string
)

func buildIndex() {
	fold := cases.Fold()
	index = make(map[string]*Spec, len(catalog))
	names = make([]string, 0, len(catalog))
	for i := range catalog {
		index[fold.String(catalog[i].Name)] = &catalog[i]
		names = append(names, catalog[i].Name)
	}
	sort.Strings(names)
}

// Lookup returns the catalog entry for name, matched case-insensitively.
func Lookup(name string) (*Spec, bool) {
	indexOnce.Do(buildIndex)
	// cases.Caser is stateful; a fresh one per call keeps Lookup goroutine-safe.
	spec, ok := index[cases.Fold().String(name)]
	return spec, ok
}

// IsFunction reports whether name is a catalog function.
func IsFunction(name string) bool {
	_, ok := Lookup(name)
	return ok
}

// Names returns the canonical names of all functions, sorted.
func Names() []string {
	indexOnce.Do(buildIndex)
	out := make([]string, len(names))
	copy(out, names)
	return out
}
