package native

import (
	"math"
	"strings"
	"time"

	"github.com/goodsign/monday"
	"github.com/shopspring/decimal"
	"golang.org/x/text/cases"

	"github.com/sandrolain/goshape/pkg/build"
	"github.com/sandrolain/goshape/pkg/functions"
	"github.com/sandrolain/goshape/pkg/types"
)

// scalarFn applies a function to one non-nil source value with the
// evaluated arguments.
type scalarFn func(x interface{}, args []interface{}) (interface{}, error)

func (v *visitor) VisitFunction(n *types.Function, ctx build.Context) (result, error) {
	spec, ok := functions.Lookup(n.Name)
	if !ok {
		return result{}, types.Errorf(types.ErrUnknownFunction, n.Position, "unknown function %s", n.Name).WithToken(n.Name)
	}
	if err := build.CheckArity(spec, n.Args, n.Position); err != nil {
		return result{}, err
	}
	src, err := build.Visit[Func](v, n.Source, ctx)
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

	args := make([]Func, len(n.Args))
	argTypes := make([]*types.Type, len(n.Args))
	for i, a := range n.Args {
		r, err := build.Visit[Func](v, a, ctx)
		if err != nil {
			return result{}, err
		}
		args[i], argTypes[i] = r.Value, r.Type
	}

	// Scalar functions applied to a collection of scalars map over it.
	st := src.Type
	lifted := st.Kind == types.KindCollection && (st.Elem.Kind.IsScalar() || st.Elem.Kind == types.KindUnknown)
	if lifted {
		st = st.Elem
	}
	rt, err := build.FunctionResult(spec, st, argTypes, n.Position)
	if err != nil {
		return result{}, err
	}
	impl, err := v.scalar(spec, st, rt, n)
	if err != nil {
		return result{}, err
	}

	pos := n.Position
	apply := func(x interface{}, vals []interface{}) (interface{}, error) {
		if x == nil {
			return nil, nil
		}
		out, err := impl(x, vals)
		return out, atPos(err, pos)
	}
	fn := func(in interface{}) (interface{}, error) {
		x, err := src.Value(in)
		if err != nil {
			return nil, err
		}
		vals := make([]interface{}, len(args))
		for i, a := range args {
			if vals[i], err = a(in); err != nil {
				return nil, err
			}
		}
		if !lifted {
			return apply(x, vals)
		}
		list, ok, err := items(x, true, spec.Name, pos)
		if !ok {
			return nil, err
		}
		out := make([]interface{}, len(list))
		for i, item := range list {
			if out[i], err = apply(item, vals); err != nil {
				return nil, err
			}
		}
		return out, nil
	}

	if lifted {
		rt = types.CollectionOf(rt).WithNullable(src.Type.Nullable)
	}
	return result{Type: rt, Value: fn}, nil
}

// scalar returns the implementation of a string, date or math function.
func (v *visitor) scalar(spec *functions.Spec, src, rt *types.Type, n *types.Function) (scalarFn, error) {
	switch spec.Category {
	case functions.String:
		return v.stringFn(spec.Name), nil
	case functions.DateTime:
		return v.dateFn(spec.Name, n)
	default:
		return mathFn(spec.Name, src.Kind, rt.Kind, n)
	}
}

func toString(x interface{}) (string, error) {
	s, err := types.Convert(x, types.KindString)
	if err != nil {
		return "", err
	}
	return s.(string), nil
}

func toInt(x interface{}) (int, error) {
	i, err := types.Convert(x, types.KindInt)
	if err != nil {
		return 0, err
	}
	return i.(int), nil
}

func (v *visitor) stringFn(name string) scalarFn {
	tag := v.b.locale
	return func(x interface{}, args []interface{}) (interface{}, error) {
		s, err := toString(x)
		if err != nil {
			return nil, err
		}
		switch name {
		case "upper":
			// Casers carry state and are not safe for concurrent use.
			return cases.Upper(tag).String(s), nil
		case "lower":
			return cases.Lower(tag).String(s), nil
		case "trim":
			return strings.TrimSpace(s), nil
		case "substring":
			return substring(s, args)
		case "replace":
			if args[0] == nil {
				return s, nil
			}
			old, err := toString(args[0])
			if err != nil {
				return nil, err
			}
			repl := ""
			if args[1] != nil {
				if repl, err = toString(args[1]); err != nil {
					return nil, err
				}
			}
			return strings.ReplaceAll(s, old, repl), nil
		case "concat":
			var b strings.Builder
			b.WriteString(s)
			for _, a := range args {
				b.WriteString(text(a))
			}
			return b.String(), nil
		default: // split
			sep := ""
			if args[0] != nil {
				if sep, err = toString(args[0]); err != nil {
					return nil, err
				}
			}
			parts := strings.Split(s, sep)
			out := make([]interface{}, len(parts))
			for i, p := range parts {
				out[i] = p
			}
			return out, nil
		}
	}
}

// substring counts in runes; start and length are clamped to the string.
func substring(s string, args []interface{}) (interface{}, error) {
	r := []rune(s)
	start := 0
	if args[0] != nil {
		var err error
		if start, err = toInt(args[0]); err != nil {
			return nil, err
		}
	}
	start = max(0, min(start, len(r)))
	end := len(r)
	if len(args) > 1 && args[1] != nil {
		n, err := toInt(args[1])
		if err != nil {
			return nil, err
		}
		end = max(start, min(start+n, len(r)))
	}
	return string(r[start:end]), nil
}

func (v *visitor) dateFn(name string, n *types.Function) (scalarFn, error) {
	var layout string
	if name == "format" {
		lit := n.Args[0].(*types.Literal)
		layout = goLayout(lit.Value.(string))
	}
	locale := v.b.dates
	now := v.b.now

	return func(x interface{}, _ []interface{}) (interface{}, error) {
		c, err := types.Convert(x, types.KindDateTime)
		if err != nil {
			return nil, err
		}
		t := c.(time.Time)
		switch name {
		case "year":
			return t.Year(), nil
		case "month":
			return int(t.Month()), nil
		case "day":
			return t.Day(), nil
		case "hour":
			return t.Hour(), nil
		case "minute":
			return t.Minute(), nil
		case "second":
			return t.Second(), nil
		case "dayOfWeek":
			return int(t.Weekday()), nil
		case "daysAgo":
			return daysBetween(t, now()), nil
		default:
			return monday.Format(t, layout, locale), nil
		}
	}, nil
}

// daysBetween counts calendar days from a to b.
func daysBetween(a, b time.Time) int {
	da := time.Date(a.Year(), a.Month(), a.Day(), 0, 0, 0, 0, time.UTC)
	db := time.Date(b.Year(), b.Month(), b.Day(), 0, 0, 0, 0, time.UTC)
	return int(db.Sub(da).Hours() / 24)
}

var goLayoutTokens = map[string]string{
	"yyyy": "2006",
	"yy":   "06",
	"MMMM": "January",
	"MMM":  "Jan",
	"MM":   "01",
	"M":    "1",
	"dddd": "Monday",
	"ddd":  "Mon",
	"dd":   "02",
	"d":    "2",
	"HH":   "15",
	"H":    "15",
	"hh":   "03",
	"h":    "3",
	"mm":   "04",
	"m":    "4",
	"ss":   "05",
	"s":    "5",
	"fff":  "000",
	"ff":   "00",
	"f":    "0",
	"tt":   "PM",
	"zzz":  "-07:00",
}

// goLayout translates a format() layout to a Go reference layout.
func goLayout(layout string) string {
	var b strings.Builder
	for _, part := range functions.SplitLayout(layout) {
		if part.Token != "" {
			b.WriteString(goLayoutTokens[part.Token])
			continue
		}
		b.WriteString(part.Literal)
	}
	return b.String()
}

func mathFn(name string, src, res types.Kind, n *types.Function) (scalarFn, error) {
	switch name {
	case "round":
		digits := int64(0)
		if len(n.Args) == 1 {
			digits = n.Args[0].(*types.Literal).Value.(int64)
		}
		return func(x interface{}, _ []interface{}) (interface{}, error) {
			return round(x, res, int32(digits))
		}, nil
	case "floor", "ceil", "abs":
		return func(x interface{}, _ []interface{}) (interface{}, error) {
			return unary(name, x, res)
		}, nil
	default:
		return func(x interface{}, args []interface{}) (interface{}, error) {
			return arith(name, res, x, args[0])
		}, nil
	}
}

func round(x interface{}, k types.Kind, digits int32) (interface{}, error) {
	c, err := types.Convert(x, k)
	if err != nil {
		return nil, err
	}
	p := math.Pow(10, float64(digits))
	switch v := c.(type) {
	case decimal.Decimal:
		return v.Round(digits), nil
	case float64:
		return math.Round(v*p) / p, nil
	case float32:
		return float32(math.Round(float64(v)*p) / p), nil
	default:
		return c, nil
	}
}

func unary(name string, x interface{}, k types.Kind) (interface{}, error) {
	c, err := types.Convert(x, k)
	if err != nil {
		return nil, err
	}
	switch v := c.(type) {
	case decimal.Decimal:
		switch name {
		case "floor":
			return v.Floor(), nil
		case "ceil":
			return v.Ceil(), nil
		default:
			return v.Abs(), nil
		}
	case float64:
		return floatUnary(name, v), nil
	case float32:
		return float32(floatUnary(name, float64(v))), nil
	case int:
		if name == "abs" && v < 0 {
			return -v, nil
		}
		return v, nil
	case int64:
		if name == "abs" && v < 0 {
			return -v, nil
		}
		return v, nil
	}
	return c, nil
}

func floatUnary(name string, f float64) float64 {
	switch name {
	case "floor":
		return math.Floor(f)
	case "ceil":
		return math.Ceil(f)
	default:
		return math.Abs(f)
	}
}

func (v *visitor) distinct(n *types.Function, src result, ctx build.Context) (result, error) {
	ct, err := build.Elements(src.Type, n.Position)
	if err != nil {
		return result{}, err
	}
	sel := Func(identity)
	st := ct.Elem
	if len(n.Args) == 1 {
		r, err := build.Visit[Func](v, n.Args[0], ctx.Enter(ct.Elem, Func(identity)))
		if err != nil {
			return result{}, err
		}
		sel, st = r.Value, r.Type
	}

	guarded := ctx.Guarded || build.NullSafe(n.Source)
	pos := n.Position
	fn := func(in interface{}) (interface{}, error) {
		list, ok, err := collect(src.Value, in, guarded, pos)
		if !ok {
			return nil, err
		}
		seen := make(map[interface{}]bool, len(list))
		out := make([]interface{}, 0, len(list))
		for _, item := range list {
			x, err := sel(item)
			if err != nil {
				return nil, err
			}
			k := hashable(x)
			if seen[k] {
				continue
			}
			seen[k] = true
			out = append(out, x)
		}
		return out, nil
	}
	return result{Type: types.CollectionOf(st).WithNullable(ct.Nullable || guarded), Value: fn}, nil
}
