package native

import (
	"unicode/utf8"

	"github.com/shopspring/decimal"

	"github.com/sandrolain/goshape/pkg/build"
	"github.com/sandrolain/goshape/pkg/types"
)

func (v *visitor) VisitAggregate(n *types.Aggregate, ctx build.Context) (result, error) {
	src, err := build.Visit[Func](v, n.Source, ctx)
	if err != nil {
		return result{}, err
	}
	guarded := ctx.Guarded || build.NullSafe(n.Source)
	pos := n.Position

	if n.Name == "count" && n.Selector == nil && src.Type.Kind == types.KindString {
		fn := func(in interface{}) (interface{}, error) {
			s, err := src.Value(in)
			if err != nil || s == nil {
				return nil, err
			}
			return utf8.RuneCountInString(s.(string)), nil
		}
		return result{Type: types.Int.WithNullable(src.Type.Nullable), Value: fn}, nil
	}

	ct, err := build.Elements(src.Type, pos)
	if err != nil {
		return result{}, err
	}
	sel := Func(identity)
	st := ct.Elem
	if n.Selector != nil {
		r, err := build.Visit[Func](v, n.Selector, ctx.Enter(ct.Elem, Func(identity)))
		if err != nil {
			return result{}, err
		}
		sel, st = r.Value, r.Type
	}

	var rt *types.Type
	if n.Name == "count" && n.Selector == nil {
		rt, err = build.AggregateResult(n.Name, nil, pos)
	} else {
		rt, err = build.AggregateResult(n.Name, st, pos)
	}
	if err != nil {
		return result{}, err
	}
	if guarded {
		rt = rt.WithNullable(true)
	}

	name := n.Name
	k := rt.Kind
	counting := n.Selector != nil
	fn := func(in interface{}) (interface{}, error) {
		list, ok, err := collect(src.Value, in, guarded, pos)
		if !ok {
			return nil, err
		}
		if name == "count" && !counting {
			return len(list), nil
		}

		values := make([]interface{}, 0, len(list))
		for _, item := range list {
			x, err := sel(item)
			if err != nil {
				return nil, err
			}
			if x != nil {
				values = append(values, x)
			}
		}
		res, err := reduce(name, k, values)
		return res, atPos(err, pos)
	}
	return result{Type: rt, Value: fn}, nil
}

// reduce applies an aggregate to the non-nil selector values.
func reduce(name string, k types.Kind, values []interface{}) (interface{}, error) {
	switch name {
	case "count":
		n := 0
		for _, x := range values {
			if truthy(x) {
				n++
			}
		}
		return n, nil

	case "sum":
		acc := zero(k)
		for _, x := range values {
			var err error
			if acc, err = arith("add", k, acc, x); err != nil {
				return nil, err
			}
		}
		return acc, nil

	case "avg":
		if len(values) == 0 {
			return nil, nil
		}
		if k == types.KindDecimal {
			acc := decimal.Zero
			for _, x := range values {
				d, ok := types.ToDecimal(x)
				if !ok {
					return nil, types.Errorf(types.ErrConversion, -1, "cannot average %T", x)
				}
				acc = acc.Add(d)
			}
			return acc.Div(decimal.NewFromInt(int64(len(values)))), nil
		}
		var acc float64
		for _, x := range values {
			f, ok := types.ToFloat64(x)
			if !ok {
				return nil, types.Errorf(types.ErrConversion, -1, "cannot average %T", x)
			}
			acc += f
		}
		return types.Convert(acc/float64(len(values)), k)

	default:
		if len(values) == 0 {
			return nil, nil
		}
		best := values[0]
		for _, x := range values[1:] {
			c, err := compareValues(x, best, k)
			if err != nil {
				return nil, err
			}
			if (name == "min" && c < 0) || (name == "max" && c > 0) {
				best = x
			}
		}
		if k == types.KindUnknown {
			return best, nil
		}
		return types.Convert(best, k)
	}
}

func (v *visitor) VisitPredicate(n *types.Predicate, ctx build.Context) (result, error) {
	src, err := build.Visit[Func](v, n.Source, ctx)
	if err != nil {
		return result{}, err
	}
	ct, err := build.Elements(src.Type, n.Position)
	if err != nil {
		return result{}, err
	}
	var cond Func
	if n.Condition != nil {
		r, err := build.Visit[Func](v, n.Condition, ctx.Enter(ct.Elem, Func(identity)))
		if err != nil {
			return result{}, err
		}
		if err := build.Condition(r.Type, n.Condition.Pos()); err != nil {
			return result{}, err
		}
		cond = r.Value
	}

	guarded := ctx.Guarded || build.NullSafe(n.Source)
	all := n.Name == "all"
	pos := n.Position
	fn := func(in interface{}) (interface{}, error) {
		list, ok, err := collect(src.Value, in, guarded, pos)
		if !ok {
			return nil, err
		}
		if cond == nil {
			return all || len(list) > 0, nil
		}
		for _, item := range list {
			ok, err := cond(item)
			if err != nil {
				return nil, err
			}
			if truthy(ok) != all {
				return !all, nil
			}
		}
		return all, nil
	}
	return result{Type: types.Bool.WithNullable(guarded), Value: fn}, nil
}
