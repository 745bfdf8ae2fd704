// Package types defines the core type system for goshape.
//
// This package contains type definitions for:
//   - Expression: Parsed expressions
//   - Node: the closed set of AST node kinds
//   - Type: static types with numeric widening rules
//   - Record: ordered projection output
//   - Error types: Structured errors with codes
package types

// Expression represents a parsed goshape expression.
//
// An Expression is immutable and can be built by any number of backends
// concurrently.
type Expression struct {
	root   Node
	source string
}

// NewExpression creates a new Expression from an AST.
func NewExpression(root Node, source string) *Expression {
	return &Expression{
		root:   root,
		source: source,
	}
}

// Root returns the root node of the expression.
func (e *Expression) Root() Node {
	return e.root
}

// Source returns the original source text of the expression.
func (e *Expression) Source() string {
	return e.source
}

// String returns a string representation of the expression.
func (e *Expression) String() string {
	return e.source
}
