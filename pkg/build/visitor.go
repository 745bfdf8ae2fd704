package build

import (
	"strings"

	"github.com/sandrolain/goshape/pkg/types"
)

// Result is what building a node yields: its static type and the backend
// artifact computing it.
type Result[A any] struct {
	Type  *types.Type
	Value A
}

// Visitor is implemented by the backends, one method per node kind.
type Visitor[A any] interface {
	VisitProperty(n *types.Property, ctx Context) (Result[A], error)
	VisitNavigation(n *types.Navigation, ctx Context) (Result[A], error)
	VisitFilter(n *types.Filter, ctx Context) (Result[A], error)
	VisitIndexer(n *types.Indexer, ctx Context) (Result[A], error)
	VisitProjection(n *types.Projection, ctx Context) (Result[A], error)
	VisitRootProjection(n *types.RootProjection, ctx Context) (Result[A], error)
	VisitFunction(n *types.Function, ctx Context) (Result[A], error)
	VisitAggregate(n *types.Aggregate, ctx Context) (Result[A], error)
	VisitPredicate(n *types.Predicate, ctx Context) (Result[A], error)
	VisitComparison(n *types.Comparison, ctx Context) (Result[A], error)
	VisitLogical(n *types.Logical, ctx Context) (Result[A], error)
	VisitLiteral(n *types.Literal, ctx Context) (Result[A], error)
	VisitCoalesce(n *types.Coalesce, ctx Context) (Result[A], error)
	VisitTernary(n *types.Ternary, ctx Context) (Result[A], error)
	VisitGroupBy(n *types.GroupBy, ctx Context) (Result[A], error)
	VisitGroupElements(n *types.GroupElements, ctx Context) (Result[A], error)
}

// Visit dispatches n to the matching method of v.
func Visit[A any](v Visitor[A], n types.Node, ctx Context) (Result[A], error) {
	ctx.Depth++
	if ctx.Depth > MaxDepth {
		return Result[A]{}, types.Errorf(types.ErrMaxDepth, n.Pos(), "expression nested deeper than %d levels", MaxDepth)
	}

	switch n := n.(type) {
	case *types.Property:
		return v.VisitProperty(n, ctx)
	case *types.Navigation:
		return v.VisitNavigation(n, ctx)
	case *types.Filter:
		return v.VisitFilter(n, ctx)
	case *types.Indexer:
		return v.VisitIndexer(n, ctx)
	case *types.Projection:
		return v.VisitProjection(n, ctx)
	case *types.RootProjection:
		return v.VisitRootProjection(n, ctx)
	case *types.Function:
		return v.VisitFunction(n, ctx)
	case *types.Aggregate:
		return v.VisitAggregate(n, ctx)
	case *types.Predicate:
		return v.VisitPredicate(n, ctx)
	case *types.Comparison:
		return v.VisitComparison(n, ctx)
	case *types.Logical:
		return v.VisitLogical(n, ctx)
	case *types.Literal:
		return v.VisitLiteral(n, ctx)
	case *types.Coalesce:
		return v.VisitCoalesce(n, ctx)
	case *types.Ternary:
		return v.VisitTernary(n, ctx)
	case *types.GroupBy:
		return v.VisitGroupBy(n, ctx)
	case *types.GroupElements:
		return v.VisitGroupElements(n, ctx)
	case nil:
		return Result[A]{}, types.NewError(types.ErrUnsupportedNode, "nil node", -1)
	default:
		return Result[A]{}, types.Errorf(types.ErrUnsupportedNode, n.Pos(), "unsupported node %T", n)
	}
}

// Navigate builds the steps of a navigation in order, each against the
// result of the previous one. A null-safe step guards the steps after it.
func Navigate[A any](v Visitor[A], n *types.Navigation, ctx Context) (Result[A], error) {
	var r Result[A]
	for _, step := range n.Steps {
		var err error
		r, err = Visit(v, step, ctx)
		if err != nil {
			return r, err
		}
		ctx = ctx.WithAccess(r.Type, r.Value)
		if NullSafe(step) {
			ctx = ctx.WithGuard()
		}
	}
	return r, nil
}

func equalFold(a, b string) bool {
	return strings.EqualFold(a, b)
}
