package document

import (
	"strconv"
	"strings"

	"github.com/sandrolain/goshape/pkg/build"
	"github.com/sandrolain/goshape/pkg/functions"
	"github.com/sandrolain/goshape/pkg/types"
)

func (v *visitor) VisitFunction(n *types.Function, ctx build.Context) (result, error) {
	spec, ok := functions.Lookup(n.Name)
	if !ok {
		return result{}, types.Errorf(types.ErrUnknownFunction, n.Position, "unknown function %s", n.Name).WithToken(n.Name)
	}
	if err := build.CheckArity(spec, n.Args, n.Position); err != nil {
		return result{}, err
	}
	src, err := build.Visit[interface{}](v, n.Source, ctx)
	if err != nil {
		return result{}, err
	}

	switch spec.Category {
	case functions.Collection:
		if spec.Name == "distinct" {
			return v.distinct(n, src, ctx)
		}
		fallthrough
	case functions.Aggregate, functions.Boolean:
		return result{}, types.Errorf(types.ErrUnsupportedNode, n.Position, "%s cannot be applied as a scalar function", spec.Name)
	}

	args := make([]interface{}, len(n.Args))
	argTypes := make([]*types.Type, len(n.Args))
	for i, a := range n.Args {
		r, err := build.Visit[interface{}](v, a, ctx)
		if err != nil {
			return result{}, err
		}
		args[i], argTypes[i] = r.Value, r.Type
	}

	st := src.Type
	lifted := st.Kind == types.KindCollection && (st.Elem.Kind.IsScalar() || st.Elem.Kind == types.KindUnknown)
	if lifted {
		st = st.Elem
	}
	rt, err := build.FunctionResult(spec, st, argTypes, n.Position)
	if err != nil {
		return result{}, err
	}

	if !lifted {
		x, err := scalar(spec, src.Value, st, rt, args, n)
		if err != nil {
			return result{}, err
		}
		return result{Type: rt, Value: x}, nil
	}
	// Scalar functions applied to a collection of scalars map over it.
	name := "x" + strconv.Itoa(ctx.Depth)
	x, err := scalar(spec, "$$"+name, st, rt, args, n)
	if err != nil {
		return result{}, err
	}
	t := types.CollectionOf(rt).WithNullable(src.Type.Nullable)
	return result{Type: t, Value: mapOver(src.Value, name, x)}, nil
}

func scalar(spec *functions.Spec, x interface{}, src, rt *types.Type, args []interface{}, n *types.Function) (interface{}, error) {
	switch spec.Category {
	case functions.String:
		return stringFn(spec.Name, x, args), nil
	case functions.DateTime:
		if src.Kind != types.KindDateTime {
			x = op("$toDate", x)
		}
		return dateFn(spec.Name, x, n)
	default:
		return mathFn(spec.Name, x, src, rt, args, n), nil
	}
}

func stringFn(name string, x interface{}, args []interface{}) interface{} {
	switch name {
	case "upper":
		return op("$toUpper", x)
	case "lower":
		return op("$toLower", x)
	case "trim":
		return op("$trim", D{{"input", x}})
	case "substring":
		length := interface{}(op("$strLenCP", x))
		if len(args) > 1 {
			length = args[1]
		}
		return op("$substrCP", A{x, args[0], length})
	case "replace":
		return op("$replaceAll", D{{"input", x}, {"find", args[0]}, {"replacement", op("$ifNull", A{args[1], ""})}})
	case "concat":
		parts := A{x}
		for _, a := range args {
			parts = append(parts, op("$ifNull", A{op("$toString", a), ""}))
		}
		return op("$concat", parts)
	default: // split
		return op("$split", A{x, args[0]})
	}
}

var dateOps = map[string]string{
	"year":   "$year",
	"month":  "$month",
	"day":    "$dayOfMonth",
	"hour":   "$hour",
	"minute": "$minute",
	"second": "$second",
}

func dateFn(name string, x interface{}, n *types.Function) (interface{}, error) {
	if o, ok := dateOps[name]; ok {
		return op(o, x), nil
	}
	switch name {
	case "dayOfWeek":
		// $dayOfWeek counts from 1 on Sunday.
		return op("$subtract", A{op("$dayOfWeek", x), 1}), nil
	case "daysAgo":
		return op("$dateDiff", D{{"startDate", x}, {"endDate", "$$NOW"}, {"unit", "day"}}), nil
	default:
		lit := n.Args[0].(*types.Literal)
		format, err := storeLayout(lit.Value.(string), lit.Position)
		if err != nil {
			return nil, err
		}
		return op("$dateToString", D{{"date", x}, {"format", format}}), nil
	}
}

var storeLayoutTokens = map[string]string{
	"yyyy": "%Y",
	"MMMM": "%B",
	"MMM":  "%b",
	"MM":   "%m",
	"dd":   "%d",
	"HH":   "%H",
	"mm":   "%M",
	"ss":   "%S",
	"fff":  "%L",
	"zzz":  "%z",
}

// storeLayout translates a format() layout to $dateToString specifiers.
// Tokens without a specifier are rejected.
func storeLayout(layout string, pos int) (string, error) {
	var b strings.Builder
	for _, part := range functions.SplitLayout(layout) {
		if part.Token == "" {
			b.WriteString(strings.ReplaceAll(part.Literal, "%", "%%"))
			continue
		}
		spec, ok := storeLayoutTokens[part.Token]
		if !ok {
			return "", types.Errorf(types.ErrTypeMismatch, pos, "format token %q has no document equivalent", part.Token).WithToken(part.Token)
		}
		b.WriteString(spec)
	}
	return b.String(), nil
}

var mathOps = map[string]string{
	"floor":    "$floor",
	"ceil":     "$ceil",
	"abs":      "$abs",
	"add":      "$add",
	"subtract": "$subtract",
	"multiply": "$multiply",
	"divide":   "$divide",
	"mod":      "$mod",
	"pow":      "$pow",
}

func mathFn(name string, x interface{}, src, rt *types.Type, args []interface{}, n *types.Function) interface{} {
	switch name {
	case "round":
		digits := 0
		if len(n.Args) == 1 {
			digits = int(n.Args[0].(*types.Literal).Value.(int64))
		}
		return op("$round", A{x, digits})
	case "floor", "ceil", "abs":
		return op(mathOps[name], x)
	}

	y := args[0]
	if rt.Kind == types.KindDecimal && src.Kind != types.KindDecimal {
		x = convert(x, types.KindDecimal)
	}
	e := op(mathOps[name], A{x, y})
	// Integer division and powers stay integral, as in the native backend.
	if (name == "divide" || name == "pow") && (rt.Kind == types.KindInt || rt.Kind == types.KindLong) {
		return convert(op("$trunc", e), rt.Kind)
	}
	return e
}

func (v *visitor) VisitAggregate(n *types.Aggregate, ctx build.Context) (result, error) {
	src, err := build.Visit[interface{}](v, n.Source, ctx)
	if err != nil {
		return result{}, err
	}
	guarded := ctx.Guarded || build.NullSafe(n.Source)
	pos := n.Position

	if n.Name == "count" && n.Selector == nil && src.Type.Kind == types.KindString {
		x := op("$cond", D{
			{"if", op("$eq", A{op("$ifNull", A{src.Value, nil}), nil})},
			{"then", nil},
			{"else", op("$strLenCP", src.Value)},
		})
		return result{Type: types.Int.WithNullable(src.Type.Nullable), Value: x}, nil
	}

	ct, err := build.Elements(src.Type, pos)
	if err != nil {
		return result{}, err
	}
	var sel result
	var name string
	if n.Selector != nil {
		inner, as := enter(ctx, ct.Elem)
		if sel, err = build.Visit[interface{}](v, n.Selector, inner); err != nil {
			return result{}, err
		}
		name = as
	}

	var rt *types.Type
	if n.Selector == nil {
		rt, err = build.AggregateResult(n.Name, selectorType(n.Name, ct), pos)
	} else {
		rt, err = build.AggregateResult(n.Name, sel.Type, pos)
	}
	if err != nil {
		return result{}, err
	}
	if guarded {
		rt = rt.WithNullable(true)
	}

	var x interface{}
	switch {
	case n.Name == "count" && n.Selector == nil:
		x = op("$size", orEmpty(src.Value))
	case n.Name == "count":
		x = op("$size", op("$filter", D{{"input", orEmpty(src.Value)}, {"as", name}, {"cond", sel.Value}}))
	case n.Selector == nil:
		x = op("$"+n.Name, src.Value)
	default:
		x = op("$"+n.Name, mapOver(src.Value, name, sel.Value))
	}
	return result{Type: rt, Value: x}, nil
}

// selectorType is the selector type of an aggregate without selector.
func selectorType(name string, ct *types.Type) *types.Type {
	if name == "count" {
		return nil
	}
	return ct.Elem
}

func (v *visitor) VisitPredicate(n *types.Predicate, ctx build.Context) (result, error) {
	src, err := build.Visit[interface{}](v, n.Source, ctx)
	if err != nil {
		return result{}, err
	}
	ct, err := build.Elements(src.Type, n.Position)
	if err != nil {
		return result{}, err
	}
	guarded := ctx.Guarded || build.NullSafe(n.Source)
	t := types.Bool.WithNullable(guarded)

	if n.Condition == nil {
		if n.Name == "all" {
			return result{Type: t, Value: true}, nil
		}
		return result{Type: t, Value: op("$gt", A{op("$size", orEmpty(src.Value)), 0})}, nil
	}

	inner, name := enter(ctx, ct.Elem)
	cond, err := build.Visit[interface{}](v, n.Condition, inner)
	if err != nil {
		return result{}, err
	}
	if err := build.Condition(cond.Type, n.Condition.Pos()); err != nil {
		return result{}, err
	}
	o := "$anyElementTrue"
	if n.Name == "all" {
		o = "$allElementsTrue"
	}
	return result{Type: t, Value: op(o, A{mapOver(orEmpty(src.Value), name, cond.Value)})}, nil
}

func (v *visitor) distinct(n *types.Function, src result, ctx build.Context) (result, error) {
	ct, err := build.Elements(src.Type, n.Position)
	if err != nil {
		return result{}, err
	}
	guarded := ctx.Guarded || build.NullSafe(n.Source)
	if len(n.Args) == 0 {
		t := types.CollectionOf(ct.Elem).WithNullable(ct.Nullable || guarded)
		return result{Type: t, Value: op("$setUnion", A{src.Value})}, nil
	}

	inner, name := enter(ctx, ct.Elem)
	sel, err := build.Visit[interface{}](v, n.Args[0], inner)
	if err != nil {
		return result{}, err
	}
	t := types.CollectionOf(sel.Type).WithNullable(ct.Nullable || guarded)
	return result{Type: t, Value: op("$setUnion", A{mapOver(src.Value, name, sel.Value)})}, nil
}
