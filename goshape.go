// Package goshape compiles expressions of a small typed query language and
// runs them natively against Go values or translates them into aggregation
// documents for a document store.
//
// # Quick Start
//
//	// One-off evaluation
//	n, err := goshape.Eval("Orders(Status = 'Done'):count", customer)
//
//	// Build once for a model type, evaluate many times
//	expr, err := goshape.Build[Customer]("Age > 30 and Name startsWith 'A'")
//	ok, _ := expr.Match(c1)
//
//	// Translate for the store
//	doc, err := goshape.Document[Customer]("Orders:sum(Total)")
//
//	// Several expressions at once, one broken expression never fails the rest
//	rows, err := goshape.Project(ctx, customers, "Name", "Orders:count")
//
// # More Information
//
//   - Parser: github.com/sandrolain/goshape/pkg/parser
//   - Native evaluation: github.com/sandrolain/goshape/pkg/native
//   - Aggregation documents: github.com/sandrolain/goshape/pkg/document
//   - Projections: github.com/sandrolain/goshape/pkg/projection
//   - Types and errors: github.com/sandrolain/goshape/pkg/types
package goshape

import (
	"context"
	"errors"
	"fmt"

	"github.com/sandrolain/goshape/pkg/accessor"
	"github.com/sandrolain/goshape/pkg/document"
	"github.com/sandrolain/goshape/pkg/native"
	"github.com/sandrolain/goshape/pkg/parser"
	"github.com/sandrolain/goshape/pkg/projection"
	"github.com/sandrolain/goshape/pkg/source"
	"github.com/sandrolain/goshape/pkg/transform"
	"github.com/sandrolain/goshape/pkg/types"
)

// Version returns the current version of goshape.
func Version() string {
	return "v0.1.0-dev"
}

var (
	builder   = native.New()
	projector = projection.New[*native.Expression](builder)
)

// Compile parses an expression. The result is independent of any model and
// can be built many times.
func Compile(query string, opts ...parser.CompileOption) (*types.Expression, error) {
	return parser.Parse(query, opts...)
}

// MustCompile is like Compile but panics if the expression cannot be parsed.
// It simplifies safe initialization of global variables.
func MustCompile(query string) *types.Expression {
	expr, err := Compile(query)
	if err != nil {
		panic(fmt.Sprintf("goshape: Compile(%q): %v", query, err))
	}
	return expr
}

// Build compiles query for elements of type T.
func Build[T any](query string) (*native.Expression, error) {
	expr, err := Compile(query)
	if err != nil {
		return nil, err
	}
	return builder.Build(expr, accessor.TypeFor[T]())
}

// Eval compiles and evaluates query against data in a single call. The model
// is the Go type of data; map[string]interface{} documents are typed by the
// layout inferred from data itself.
//
// For repeated evaluations use Build instead.
func Eval(query string, data interface{}) (interface{}, error) {
	expr, err := Compile(query)
	if err != nil {
		return nil, err
	}
	e, err := builder.Build(expr, modelOf(data))
	if err != nil {
		return nil, err
	}
	return e.Eval(data)
}

func modelOf(data interface{}) *types.Type {
	if m, ok := data.(map[string]interface{}); ok {
		return accessor.Infer("document", m).Type()
	}
	return accessor.TypeOf(data)
}

// Filter returns the elements of items for which condition holds, in order.
func Filter[T any](ctx context.Context, condition string, items []T) ([]T, error) {
	expr, err := Compile(condition)
	if err != nil {
		return nil, err
	}
	s := source.NewSlice(items)
	pred, err := builder.Predicate(expr, s.Model())
	if err != nil {
		return nil, err
	}
	return s.Where(ctx, pred)
}

// Document translates query for elements of type T into an aggregation
// expression.
func Document[T any](query string) (*document.Document, error) {
	expr, err := Compile(query)
	if err != nil {
		return nil, err
	}
	return document.New().Build(expr, accessor.TypeFor[T]())
}

// Project evaluates exprs against every element of items. Columns are
// compiled once and cached across calls. Expressions that fail to compile
// or to evaluate produce null values; their errors are joined into the
// returned error, which never prevents the responses from being returned.
func Project[T any](ctx context.Context, items []T, exprs ...string) ([]*transform.Response, error) {
	s := source.NewSlice(items)
	p := projector.Compile(s.Model(), exprs)
	rows, evalErr := s.Project(ctx, p)
	if rows == nil && evalErr != nil {
		return nil, evalErr
	}
	out := make([]*transform.Response, len(rows))
	for i, row := range rows {
		r, err := transform.Transform(row, exprs)
		if err != nil {
			return nil, err
		}
		out[i] = r
	}
	return out, errors.Join(p.Err(), evalErr)
}
