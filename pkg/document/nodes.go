package document

import (
	"time"

	"github.com/sandrolain/goshape/pkg/build"
	"github.com/sandrolain/goshape/pkg/types"
)

func (v *visitor) VisitProperty(n *types.Property, ctx build.Context) (result, error) {
	if ctx.Type.Kind == types.KindGroup && ctx.Group != nil {
		return v.groupMember(n, ctx)
	}

	if ctx.Type.Kind == types.KindCollection {
		p, err := ctx.Resolve(ctx.Type.Elem, n.Name, n.Position)
		if err != nil {
			return result{}, err
		}
		var x interface{} = mapOver(ctx.Access, "this", field("$$this", stored(p)))
		elem := p.Type
		if p.Type.IsCollection() {
			elem = p.Type.Elem
			x = flatten(x)
		}
		t := types.CollectionOf(elem).WithNullable(ctx.Type.Nullable || ctx.Guarded)
		return result{Type: t, Value: x}, nil
	}

	p, err := ctx.Resolve(ctx.Type, n.Name, n.Position)
	if err != nil {
		return result{}, err
	}
	t := p.Type
	if ctx.Guarded || n.NullSafe {
		t = t.WithNullable(true)
	}
	return result{Type: t, Value: field(ctx.Access, stored(p))}, nil
}

// flatten concatenates an array of arrays, skipping missing ones.
func flatten(x interface{}) D {
	return op("$reduce", D{
		{"input", x},
		{"initialValue", A{}},
		{"in", op("$concatArrays", A{"$$value", op("$ifNull", A{"$$this", A{}})})},
	})
}

func (v *visitor) VisitNavigation(n *types.Navigation, ctx build.Context) (result, error) {
	return build.Navigate[interface{}](v, n, ctx)
}

func (v *visitor) VisitFilter(n *types.Filter, ctx build.Context) (result, error) {
	src, err := build.Visit[interface{}](v, n.Source, ctx)
	if err != nil {
		return result{}, err
	}
	ct, err := build.Elements(src.Type, n.Position)
	if err != nil {
		return result{}, err
	}
	inner, name := enter(ctx, ct.Elem)
	cond, err := build.Visit[interface{}](v, n.Condition, inner)
	if err != nil {
		return result{}, err
	}
	if err := build.Condition(cond.Type, n.Condition.Pos()); err != nil {
		return result{}, err
	}

	guarded := ctx.Guarded || build.NullSafe(n.Source)
	x := op("$filter", D{{"input", src.Value}, {"as", name}, {"cond", cond.Value}})
	return result{Type: ct.WithNullable(ct.Nullable || guarded), Value: x}, nil
}

func (v *visitor) VisitIndexer(n *types.Indexer, ctx build.Context) (result, error) {
	src, err := build.Visit[interface{}](v, n.Source, ctx)
	if err != nil {
		return result{}, err
	}
	ct, err := build.Elements(src.Type, n.Position)
	if err != nil {
		return result{}, err
	}
	p, err := ctx.Resolve(ct.Elem, n.OrderBy, n.Position)
	if err != nil {
		return result{}, err
	}

	dir := 1
	if n.Descending {
		dir = -1
	}
	sorted := op("$sortArray", D{{"input", src.Value}, {"sortBy", D{{stored(p), dir}}}})
	guarded := ctx.Guarded || build.NullSafe(n.Source)

	switch n.Mode {
	case types.IndexSingle:
		name := "$first"
		if n.Skip < 0 {
			name = "$last"
		}
		return result{Type: ct.Elem.WithNullable(true), Value: op(name, sorted)}, nil
	case types.IndexRange:
		var x interface{} = A{}
		if n.Take > 0 {
			x = op("$slice", A{sorted, n.Skip, n.Take})
		}
		return result{Type: ct.WithNullable(ct.Nullable || guarded), Value: x}, nil
	default:
		return result{Type: ct.WithNullable(ct.Nullable || guarded), Value: sorted}, nil
	}
}

func (v *visitor) VisitLiteral(n *types.Literal, _ build.Context) (result, error) {
	switch n.Kind {
	case types.LiteralNull:
		return result{Type: types.Null, Value: nil}, nil
	case types.LiteralBool:
		return result{Type: types.Bool, Value: n.Value}, nil
	case types.LiteralInt:
		i := n.Value.(int64)
		if int64(int32(i)) == i {
			return result{Type: types.Int, Value: int(i)}, nil
		}
		return result{Type: types.Long, Value: i}, nil
	case types.LiteralDecimal:
		d, _ := types.ToDecimal(n.Value)
		return result{Type: types.Decimal, Value: op("$toDecimal", d.String())}, nil
	case types.LiteralString:
		return result{Type: types.String, Value: quote(n.Value.(string))}, nil
	default:
		return result{}, types.Errorf(types.ErrUnsupportedNode, n.Position, "unsupported literal %q", n.Text)
	}
}

var compareOps = map[types.CompareOp]string{
	types.OpEqual:        "$eq",
	types.OpNotEqual:     "$ne",
	types.OpGreater:      "$gt",
	types.OpLess:         "$lt",
	types.OpGreaterEqual: "$gte",
	types.OpLessEqual:    "$lte",
}

func (v *visitor) VisitComparison(n *types.Comparison, ctx build.Context) (result, error) {
	l, err := build.Visit[interface{}](v, n.Left, ctx)
	if err != nil {
		return result{}, err
	}
	r, err := build.Visit[interface{}](v, n.Right, ctx)
	if err != nil {
		return result{}, err
	}
	k, err := build.ComparisonKind(n.Op, l.Type, r.Type, n.Position)
	if err != nil {
		return result{}, err
	}

	switch n.Op {
	case types.OpContains:
		return result{Type: types.Bool, Value: op("$gte", A{op("$indexOfCP", A{l.Value, r.Value}), 0})}, nil
	case types.OpStartsWith:
		return result{Type: types.Bool, Value: op("$eq", A{op("$indexOfCP", A{l.Value, r.Value}), 0})}, nil
	case types.OpEndsWith:
		return result{Type: types.Bool, Value: endsWith(l.Value, r.Value)}, nil
	}

	lx, rx := l.Value, r.Value
	if k == types.KindDateTime {
		if lx, err = dateOperand(n.Left, l); err != nil {
			return result{}, err
		}
		if rx, err = dateOperand(n.Right, r); err != nil {
			return result{}, err
		}
	}

	// Missing fields and nulls compare alike, and ordering against null is
	// false.
	var guards A
	if maybeNull(l.Type) {
		lx = op("$ifNull", A{lx, nil})
		guards = append(guards, op("$ne", A{lx, nil}))
	}
	if maybeNull(r.Type) {
		rx = op("$ifNull", A{rx, nil})
		guards = append(guards, op("$ne", A{rx, nil}))
	}
	x := op(compareOps[n.Op], A{lx, rx})
	if len(guards) > 0 && n.Op != types.OpEqual && n.Op != types.OpNotEqual && k != types.KindNull {
		x = op("$and", append(guards, x))
	}
	return result{Type: types.Bool, Value: x}, nil
}

func maybeNull(t *types.Type) bool {
	return t.Nullable && t.Kind != types.KindNull
}

// dateOperand converts a string operand compared with a date. Literals are
// parsed once, here.
func dateOperand(n types.Node, r result) (interface{}, error) {
	if r.Type.Kind == types.KindDateTime {
		return r.Value, nil
	}
	if lit, ok := n.(*types.Literal); ok && lit.Kind == types.LiteralString {
		t, ok := types.ToTime(lit.Value)
		if !ok {
			return nil, types.Errorf(types.ErrTypeMismatch, lit.Position, "%q is not a date", lit.Value).WithToken(lit.Text)
		}
		return op("$toDate", t.UTC().Format(time.RFC3339Nano)), nil
	}
	return op("$toDate", r.Value), nil
}

func endsWith(s, suffix interface{}) D {
	length := func(v string) D { return op("$strLenCP", v) }
	return op("$let", D{
		{"vars", D{{"s", s}, {"t", suffix}}},
		{"in", op("$and", A{
			op("$eq", A{op("$type", "$$s"), "string"}),
			op("$eq", A{op("$type", "$$t"), "string"}),
			op("$gte", A{length("$$s"), length("$$t")}),
			op("$eq", A{
				op("$substrCP", A{"$$s", op("$subtract", A{length("$$s"), length("$$t")}), length("$$t")}),
				"$$t",
			}),
		})},
	})
}

func (v *visitor) VisitLogical(n *types.Logical, ctx build.Context) (result, error) {
	l, err := build.Visit[interface{}](v, n.Left, ctx)
	if err != nil {
		return result{}, err
	}
	if err := build.Condition(l.Type, n.Left.Pos()); err != nil {
		return result{}, err
	}
	r, err := build.Visit[interface{}](v, n.Right, ctx)
	if err != nil {
		return result{}, err
	}
	if err := build.Condition(r.Type, n.Right.Pos()); err != nil {
		return result{}, err
	}

	name := "$and"
	if n.Op == types.OpOr {
		name = "$or"
	}
	// a and b and c reads as one $and.
	var args A
	for _, x := range []interface{}{l.Value, r.Value} {
		if d, ok := x.(D); ok && len(d) == 1 && d[0].Key == name {
			args = append(args, d[0].Value.(A)...)
			continue
		}
		args = append(args, x)
	}
	return result{Type: types.Bool, Value: op(name, args)}, nil
}

// widen converts a branch result when the common type is a wider number.
func widen(x interface{}, t *types.Type, branches ...*types.Type) interface{} {
	if !t.Kind.IsNumeric() {
		return x
	}
	for _, b := range branches {
		if b.Kind != t.Kind {
			return convert(x, t.Kind)
		}
	}
	return x
}

func (v *visitor) VisitCoalesce(n *types.Coalesce, ctx build.Context) (result, error) {
	l, err := build.Visit[interface{}](v, n.Left, ctx)
	if err != nil {
		return result{}, err
	}
	r, err := build.Visit[interface{}](v, n.Right, ctx)
	if err != nil {
		return result{}, err
	}
	t, err := build.Common(l.Type, r.Type, n.Position)
	if err != nil {
		return result{}, err
	}
	t = t.WithNullable(r.Type.Nullable)
	x := widen(op("$ifNull", A{l.Value, r.Value}), t, l.Type, r.Type)
	return result{Type: t, Value: x}, nil
}

func (v *visitor) VisitTernary(n *types.Ternary, ctx build.Context) (result, error) {
	c, err := build.Visit[interface{}](v, n.Condition, ctx)
	if err != nil {
		return result{}, err
	}
	if err := build.Condition(c.Type, n.Condition.Pos()); err != nil {
		return result{}, err
	}
	th, err := build.Visit[interface{}](v, n.Then, ctx)
	if err != nil {
		return result{}, err
	}
	el, err := build.Visit[interface{}](v, n.Else, ctx)
	if err != nil {
		return result{}, err
	}
	t, err := build.Common(th.Type, el.Type, n.Position)
	if err != nil {
		return result{}, err
	}
	x := op("$cond", D{{"if", c.Value}, {"then", th.Value}, {"else", el.Value}})
	return result{Type: t, Value: widen(x, t, th.Type, el.Type)}, nil
}
