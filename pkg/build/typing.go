package build

import (
	"strconv"

	"github.com/sandrolain/goshape/pkg/functions"
	"github.com/sandrolain/goshape/pkg/types"
)

// MaxGroupKeys is the largest number of keys a group-by accepts.
const MaxGroupKeys = 5

// Element returns the element type of a collection type.
func Element(t *types.Type, pos int) (*types.Type, error) {
	switch {
	case t.Kind == types.KindCollection:
		return t.Elem, nil
	case t.Kind == types.KindUnknown:
		return types.Unknown, nil
	default:
		return nil, types.Errorf(types.ErrNotCollection, pos, "%s is not a collection", t)
	}
}

// Elements returns a collection type for t: t itself when it is a
// collection, a collection of unknown elements when t is unknown.
func Elements(t *types.Type, pos int) (*types.Type, error) {
	elem, err := Element(t, pos)
	if err != nil {
		return nil, err
	}
	if t.Kind == types.KindCollection {
		return t, nil
	}
	return types.CollectionOf(elem).WithNullable(true), nil
}

var (
	sumOverloads = map[types.Kind]types.Kind{
		types.KindInt:     types.KindInt,
		types.KindLong:    types.KindLong,
		types.KindFloat:   types.KindFloat,
		types.KindDouble:  types.KindDouble,
		types.KindDecimal: types.KindDecimal,
	}
	avgOverloads = map[types.Kind]types.Kind{
		types.KindInt:     types.KindDouble,
		types.KindLong:    types.KindDouble,
		types.KindFloat:   types.KindFloat,
		types.KindDouble:  types.KindDouble,
		types.KindDecimal: types.KindDecimal,
	}
	orderedKinds = map[types.Kind]bool{
		types.KindInt:      true,
		types.KindLong:     true,
		types.KindFloat:    true,
		types.KindDouble:   true,
		types.KindDecimal:  true,
		types.KindString:   true,
		types.KindDateTime: true,
	}
)

// AggregateResult returns the result type of the aggregate name applied to
// values of type sel. A count with a selector requires a boolean selector.
// sel is nil for a count without selector.
//
// sum of an empty collection is zero; avg, min and max of an empty
// collection are nil, so their result is nullable.
func AggregateResult(name string, sel *types.Type, pos int) (*types.Type, error) {
	if name == "count" {
		if sel != nil && sel.Kind != types.KindBool && sel.Kind != types.KindUnknown {
			return nil, types.Errorf(types.ErrTypeMismatch, pos, "count selector must be a condition, got %s", sel)
		}
		return types.Int, nil
	}
	if sel.Kind == types.KindUnknown {
		if name == "sum" || name == "avg" {
			return types.Decimal.WithNullable(name == "avg"), nil
		}
		return types.Unknown, nil
	}

	var (
		k  types.Kind
		ok bool
	)
	switch name {
	case "sum":
		k, ok = sumOverloads[sel.Kind]
	case "avg":
		k, ok = avgOverloads[sel.Kind]
	case "min", "max":
		k, ok = sel.Kind, orderedKinds[sel.Kind]
	}
	if !ok {
		return nil, types.Errorf(types.ErrNoAggregate, pos, "no %s over %s", name, sel).WithToken(name)
	}
	return types.Of(k).WithNullable(name != "sum"), nil
}

// ComparisonKind checks the operands of a comparison and returns the kind
// both sides are converted to before comparing. KindNull means one side is
// the null literal; KindUnknown means the kind is only known at run time.
func ComparisonKind(op types.CompareOp, l, r *types.Type, pos int) (types.Kind, error) {
	mismatch := func() (types.Kind, error) {
		return 0, types.Errorf(types.ErrTypeMismatch, pos, "cannot compare %s %s %s", l, op, r).WithToken(op.String())
	}

	if op.IsStringOp() {
		if !stringish(l) || !stringish(r) {
			return mismatch()
		}
		return types.KindString, nil
	}

	if l.Kind == types.KindNull || r.Kind == types.KindNull {
		if op != types.OpEqual && op != types.OpNotEqual {
			return mismatch()
		}
		return types.KindNull, nil
	}

	switch {
	case l.Kind == types.KindUnknown && r.Kind == types.KindUnknown:
		return types.KindUnknown, nil
	case l.Kind == types.KindUnknown && r.Kind.IsNumeric(),
		r.Kind == types.KindUnknown && l.Kind.IsNumeric():
		// Numeric kinds widen against the value actually found.
		return types.KindUnknown, nil
	case l.Kind == types.KindUnknown:
		return r.Kind, orderable(op, r, mismatch)
	case r.Kind == types.KindUnknown:
		return l.Kind, orderable(op, l, mismatch)
	case l.Kind.IsNumeric() && r.Kind.IsNumeric():
		return types.Widen(l.Kind, r.Kind), nil
	case l.Kind == types.KindDateTime && r.Kind == types.KindString,
		l.Kind == types.KindString && r.Kind == types.KindDateTime:
		return types.KindDateTime, nil
	case l.Kind == r.Kind:
		return l.Kind, orderable(op, l, mismatch)
	default:
		return mismatch()
	}
}

func orderable(op types.CompareOp, t *types.Type, mismatch func() (types.Kind, error)) error {
	if !t.Kind.IsScalar() && t.Kind != types.KindUnknown {
		_, err := mismatch()
		return err
	}
	if t.Kind == types.KindBool && op != types.OpEqual && op != types.OpNotEqual {
		_, err := mismatch()
		return err
	}
	return nil
}

func stringish(t *types.Type) bool {
	return t.Kind == types.KindString || t.Kind == types.KindUnknown || t.Kind == types.KindNull
}

// Condition checks that t can be used as a condition.
func Condition(t *types.Type, pos int) error {
	if t.Kind != types.KindBool && t.Kind != types.KindUnknown {
		return types.Errorf(types.ErrTypeMismatch, pos, "condition must be boolean, got %s", t)
	}
	return nil
}

// Common returns the type the two branches of a coalesce or a ternary are
// converted to.
func Common(a, b *types.Type, pos int) (*types.Type, error) {
	t := types.Common(a, b)
	if t == nil {
		return nil, types.Errorf(types.ErrTypeMismatch, pos, "%s and %s have no common type", a, b)
	}
	return t, nil
}

// Arithmetic returns the result kind of a binary math function. Kinds widen
// along int < long < float < double < decimal, except that mixing decimal
// with a floating kind yields double.
func Arithmetic(a, b types.Kind) types.Kind {
	if a == types.KindUnknown {
		a = types.KindDecimal
	}
	if b == types.KindUnknown {
		b = types.KindDecimal
	}
	w := types.Widen(a, b)
	if w == types.KindDecimal && (a.IsFloating() || b.IsFloating()) {
		return types.KindDouble
	}
	return w
}

// CheckArity verifies the number and literalness of the arguments of a
// catalog function.
func CheckArity(spec *functions.Spec, args []types.Node, pos int) error {
	if !spec.AcceptsArgs(len(args)) {
		want := "no arguments"
		switch {
		case spec.MaxArgs == functions.Unbounded:
			want = "at least " + strconv.Itoa(spec.MinArgs)
		case spec.MinArgs == spec.MaxArgs:
			want = strconv.Itoa(spec.MinArgs)
		case spec.MaxArgs > 0:
			want = strconv.Itoa(spec.MinArgs) + " to " + strconv.Itoa(spec.MaxArgs)
		}
		return types.Errorf(types.ErrArgumentCount, pos, "%s expects %s arguments, got %d", spec.Name, want, len(args)).WithToken(spec.Name)
	}
	if spec.LiteralArgs {
		for _, a := range args {
			if _, ok := a.(*types.Literal); !ok {
				return types.Errorf(types.ErrTypeMismatch, a.Pos(), "%s arguments must be literals", spec.Name).WithToken(spec.Name)
			}
		}
	}
	return nil
}

// FunctionResult type checks a string, date or math function applied to a
// scalar of type src with arguments of types args, and returns its result
// type.
func FunctionResult(spec *functions.Spec, src *types.Type, args []*types.Type, pos int) (*types.Type, error) {
	mismatch := func(want string) (*types.Type, error) {
		return nil, types.Errorf(types.ErrTypeMismatch, pos, "%s expects %s, got %s", spec.Name, want, src).WithToken(spec.Name)
	}
	argMismatch := func(i int, want string) (*types.Type, error) {
		return nil, types.Errorf(types.ErrTypeMismatch, pos, "%s argument %d must be %s, got %s", spec.Name, i+1, want, args[i]).WithToken(spec.Name)
	}
	nullable := src.Nullable

	switch spec.Category {
	case functions.String:
		if !stringish(src) {
			return mismatch("a string")
		}
		switch spec.Name {
		case "substring":
			for i, a := range args {
				if a.Kind != types.KindInt && a.Kind != types.KindLong && a.Kind != types.KindUnknown {
					return argMismatch(i, "an integer")
				}
			}
		case "replace", "split":
			for i, a := range args {
				if !stringish(a) {
					return argMismatch(i, "a string")
				}
			}
		case "concat":
			for i, a := range args {
				if !a.Kind.IsScalar() && a.Kind != types.KindUnknown && a.Kind != types.KindNull {
					return argMismatch(i, "a scalar")
				}
			}
		}
		if spec.Name == "split" {
			return types.CollectionOf(types.String).WithNullable(nullable), nil
		}
		return types.String.WithNullable(nullable), nil

	case functions.DateTime:
		if src.Kind != types.KindDateTime && !stringish(src) {
			return mismatch("a date")
		}
		if spec.Name == "format" {
			if args[0].Kind != types.KindString {
				return argMismatch(0, "a string")
			}
			return types.String.WithNullable(nullable), nil
		}
		return types.Int.WithNullable(nullable), nil

	case functions.Math:
		if !src.IsNumeric() && src.Kind != types.KindUnknown {
			return mismatch("a number")
		}
		k := src.Kind
		if k == types.KindUnknown {
			k = types.KindDecimal
		}
		switch spec.Name {
		case "round":
			if len(args) == 1 && args[0].Kind != types.KindInt && args[0].Kind != types.KindLong {
				return argMismatch(0, "an integer")
			}
		case "floor", "ceil", "abs":
		default:
			if !args[0].IsNumeric() && args[0].Kind != types.KindUnknown {
				return argMismatch(0, "a number")
			}
			k = Arithmetic(k, args[0].Kind)
			nullable = nullable || args[0].Nullable
		}
		return types.Of(k).WithNullable(nullable), nil
	}
	return nil, types.Errorf(types.ErrUnsupportedNode, pos, "%s is not a scalar function", spec.Name).WithToken(spec.Name)
}

// GroupKey returns the key type of a group-by over keys. A single key is
// its own type; several keys make a composite.
func GroupKey(keys []types.Field, pos int) (*types.Type, error) {
	switch {
	case len(keys) == 0:
		return nil, types.NewError(types.ErrArgumentCount, "groupBy needs at least one key", pos)
	case len(keys) > MaxGroupKeys:
		return nil, types.Errorf(types.ErrTooManyGroupKeys, pos, "groupBy supports at most %d keys, got %d", MaxGroupKeys, len(keys))
	case len(keys) == 1:
		return keys[0].Type, nil
	default:
		return types.CompositeOf(keys...), nil
	}
}

// GroupType returns the type of one group.
func GroupType(keys []types.Field, key, elem *types.Type) *types.Type {
	g := types.GroupOf(key, elem)
	g.Fields = keys
	return g
}
