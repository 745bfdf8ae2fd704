// Package parser implements the goshape expression parser.
//
// The parser is a hand-written recursive descent parser over the token
// stream produced by the Lexer. It owns every grammar ambiguity of the
// language: filter conditions versus ternaries, inline function chains in
// projection lists and the group-by projection sub-grammar.
//
// # Grammar
//
// Precedence, from lowest to highest:
//   - ternary: cond ? a : b (right associative)
//   - or, ||
//   - and, && (and the comma inside a filter)
//   - comparison: = != > < >= <= contains startswith endswith
//   - coalesce: a ?? b (right associative)
//   - navigation with suffixes: A.B:func(args)(cond)[indexer]
//   - primary: {projection} | literal | (expr) | navigation
//
// # Example
//
//	expr, err := parser.Parse("Orders(Status = 'Done'):sum(Total)")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	root := expr.Root()
package parser

import (
	"github.com/sandrolain/goshape/pkg/types"
)

// DefaultMaxDepth is the nesting limit used when none is configured.
const DefaultMaxDepth = 100

// Parse parses an expression and returns its AST.
//
// The function tokenizes the input, builds an AST, and validates the syntax.
// If parsing fails, it returns a *types.Error with position information.
//
// Example:
//
//	expr, err := parser.Parse("Customer?.Name ?? 'n/a'")
//	if err != nil {
//	    fmt.Println(err)
//	    return
//	}
func Parse(query string, opts ...CompileOption) (*types.Expression, error) {
	p, err := NewParser(query, opts...)
	if err != nil {
		return nil, err
	}
	return p.Parse()
}

// CompileOption configures compilation behavior.
type CompileOption func(*CompileOptions)

// CompileOptions holds parser configuration.
type CompileOptions struct {
	// MaxDepth limits recursion depth to prevent stack overflow.
	MaxDepth int
}

// WithMaxDepth sets the maximum parsing depth.
func WithMaxDepth(depth int) CompileOption {
	return func(opts *CompileOptions) {
		opts.MaxDepth = depth
	}
}
