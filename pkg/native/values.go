package native

import (
	"cmp"
	"errors"
	"fmt"
	"math"
	"math/big"
	"reflect"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/sandrolain/goshape/pkg/types"
)

func identity(in interface{}) (interface{}, error) {
	return in, nil
}

func constant(v interface{}) Func {
	return func(interface{}) (interface{}, error) {
		return v, nil
	}
}

// atPos stamps errors raised by accessors and conversions, which do not
// know where they were called from, with the position of the node.
func atPos(err error, pos int) error {
	var e *types.Error
	if errors.As(err, &e) && e.Position < 0 {
		c := *e
		c.Position = pos
		return &c
	}
	return err
}

func nullRef(what string, pos int) error {
	return types.Errorf(types.ErrNullReference, pos, "%s on a nil value", what)
}

// items returns the elements of a collection value. A nil collection fails
// unless guarded, in which case ok is false.
func items(v interface{}, guarded bool, what string, pos int) (out []interface{}, ok bool, err error) {
	switch c := v.(type) {
	case nil:
		if guarded {
			return nil, false, nil
		}
		return nil, false, nullRef(what, pos)
	case []interface{}:
		return c, true, nil
	default:
		return nil, false, types.Errorf(types.ErrConversion, pos, "%s expects a collection, got %T", what, v)
	}
}

func truthy(v interface{}) bool {
	b, ok := v.(bool)
	return ok && b
}

// runtimeKind picks the kind two dynamically typed values are compared in.
func runtimeKind(a, b interface{}) types.Kind {
	ka, kb := types.KindOf(a), types.KindOf(b)
	switch {
	case ka.IsNumeric() && kb.IsNumeric():
		return types.Widen(ka, kb)
	case ka == types.KindDateTime || kb == types.KindDateTime:
		return types.KindDateTime
	default:
		return ka
	}
}

// compareValues orders two non-nil values after converting both to kind k.
// KindUnknown means the kind is chosen from the values.
func compareValues(a, b interface{}, k types.Kind) (int, error) {
	if k == types.KindUnknown || k == types.KindNull {
		k = runtimeKind(a, b)
	}
	ca, err := types.Convert(a, k)
	if err != nil {
		return 0, err
	}
	cb, err := types.Convert(b, k)
	if err != nil {
		return 0, err
	}
	switch k {
	case types.KindBool:
		x, y := ca.(bool), cb.(bool)
		switch {
		case x == y:
			return 0, nil
		case !x:
			return -1, nil
		default:
			return 1, nil
		}
	case types.KindInt:
		return cmp.Compare(ca.(int), cb.(int)), nil
	case types.KindLong:
		return cmp.Compare(ca.(int64), cb.(int64)), nil
	case types.KindFloat:
		return cmp.Compare(ca.(float32), cb.(float32)), nil
	case types.KindDouble:
		return cmp.Compare(ca.(float64), cb.(float64)), nil
	case types.KindDecimal:
		return ca.(decimal.Decimal).Cmp(cb.(decimal.Decimal)), nil
	case types.KindString:
		return strings.Compare(ca.(string), cb.(string)), nil
	case types.KindDateTime:
		return ca.(time.Time).Compare(cb.(time.Time)), nil
	default:
		return 0, types.Errorf(types.ErrConversion, -1, "cannot compare %T and %T", a, b)
	}
}

// compare evaluates op over a and b converted to kind k. Ordering against
// nil is false; nil equals only nil.
func compare(op types.CompareOp, a, b interface{}, k types.Kind) (bool, error) {
	if op.IsStringOp() {
		s, ok1 := a.(string)
		t, ok2 := b.(string)
		if !ok1 || !ok2 {
			return false, nil
		}
		switch op {
		case types.OpContains:
			return strings.Contains(s, t), nil
		case types.OpStartsWith:
			return strings.HasPrefix(s, t), nil
		default:
			return strings.HasSuffix(s, t), nil
		}
	}

	if a == nil || b == nil || k == types.KindNull {
		both := a == nil && b == nil
		switch op {
		case types.OpEqual:
			return both, nil
		case types.OpNotEqual:
			return !both, nil
		default:
			return false, nil
		}
	}

	c, err := compareValues(a, b, k)
	if err != nil {
		return false, err
	}
	switch op {
	case types.OpEqual:
		return c == 0, nil
	case types.OpNotEqual:
		return c != 0, nil
	case types.OpGreater:
		return c > 0, nil
	case types.OpLess:
		return c < 0, nil
	case types.OpGreaterEqual:
		return c >= 0, nil
	default:
		return c <= 0, nil
	}
}

func divisionByZero(op string) error {
	return types.Errorf(types.ErrDivisionByZero, -1, "%s by zero", op)
}

func intArith[T int | int64](op string, x, y T) (T, error) {
	switch op {
	case "add":
		return x + y, nil
	case "subtract":
		return x - y, nil
	case "multiply":
		return x * y, nil
	case "divide":
		if y == 0 {
			return 0, divisionByZero(op)
		}
		return x / y, nil
	case "mod":
		if y == 0 {
			return 0, divisionByZero(op)
		}
		return x % y, nil
	default:
		return intPow(x, y)
	}
}

// intPow raises x to y exactly. Negative exponents truncate toward zero.
func intPow[T int | int64](x, y T) (T, error) {
	if y < 0 {
		switch x {
		case 0:
			return 0, divisionByZero("pow")
		case 1:
			return 1, nil
		case -1:
			if y%2 == 0 {
				return 1, nil
			}
			return -1, nil
		}
		return 0, nil
	}
	switch x {
	case 0, 1:
		if y == 0 {
			return 1, nil
		}
		return x, nil
	case -1:
		if y%2 == 0 {
			return 1, nil
		}
		return -1, nil
	}
	if y >= 64 {
		return 0, powOverflow(x, y)
	}
	z := new(big.Int).Exp(big.NewInt(int64(x)), big.NewInt(int64(y)), nil)
	if !z.IsInt64() || int64(T(z.Int64())) != z.Int64() {
		return 0, powOverflow(x, y)
	}
	return T(z.Int64()), nil
}

func powOverflow(x, y interface{}) error {
	return types.Errorf(types.ErrConversion, -1, "%v:pow(%v) overflows", x, y)
}

func floatArith[T float32 | float64](op string, x, y T) (T, error) {
	switch op {
	case "add":
		return x + y, nil
	case "subtract":
		return x - y, nil
	case "multiply":
		return x * y, nil
	case "divide":
		if y == 0 {
			return 0, divisionByZero(op)
		}
		return x / y, nil
	case "mod":
		if y == 0 {
			return 0, divisionByZero(op)
		}
		return T(math.Mod(float64(x), float64(y))), nil
	default:
		if x == 0 && y < 0 {
			return 0, divisionByZero(op)
		}
		r := T(math.Pow(float64(x), float64(y)))
		if f := float64(r); math.IsNaN(f) || math.IsInf(f, 0) {
			return 0, powOverflow(x, y)
		}
		return r, nil
	}
}

func decimalArith(op string, x, y decimal.Decimal) (decimal.Decimal, error) {
	switch op {
	case "add":
		return x.Add(y), nil
	case "subtract":
		return x.Sub(y), nil
	case "multiply":
		return x.Mul(y), nil
	case "divide":
		if y.IsZero() {
			return decimal.Zero, divisionByZero(op)
		}
		return x.Div(y), nil
	case "mod":
		if y.IsZero() {
			return decimal.Zero, divisionByZero(op)
		}
		return x.Mod(y), nil
	default:
		switch {
		case y.IsZero():
			return decimal.NewFromInt(1), nil
		case x.IsZero() && y.IsNegative():
			return decimal.Zero, divisionByZero(op)
		case x.IsNegative() && !y.IsInteger():
			return decimal.Zero, types.Errorf(types.ErrConversion, -1, "%s:pow(%s) is not a real number", x, y)
		}
		return x.Pow(y), nil
	}
}

// arith applies a math function to a and b converted to kind k.
func arith(op string, k types.Kind, a, b interface{}) (interface{}, error) {
	if a == nil || b == nil {
		return nil, nil
	}
	ca, err := types.Convert(a, k)
	if err != nil {
		return nil, err
	}
	cb, err := types.Convert(b, k)
	if err != nil {
		return nil, err
	}
	switch k {
	case types.KindInt:
		return boxed(intArith(op, ca.(int), cb.(int)))
	case types.KindLong:
		return boxed(intArith(op, ca.(int64), cb.(int64)))
	case types.KindFloat:
		return boxed(floatArith(op, ca.(float32), cb.(float32)))
	case types.KindDouble:
		return boxed(floatArith(op, ca.(float64), cb.(float64)))
	case types.KindDecimal:
		return boxed(decimalArith(op, ca.(decimal.Decimal), cb.(decimal.Decimal)))
	default:
		return nil, types.Errorf(types.ErrConversion, -1, "cannot %s %s values", op, k)
	}
}

func boxed[T any](v T, err error) (interface{}, error) {
	if err != nil {
		return nil, err
	}
	return v, nil
}

// zero returns the additive identity of kind k.
func zero(k types.Kind) interface{} {
	switch k {
	case types.KindInt:
		return 0
	case types.KindLong:
		return int64(0)
	case types.KindFloat:
		return float32(0)
	case types.KindDouble:
		return float64(0)
	default:
		return decimal.Zero
	}
}

// hashable returns a comparable stand-in for v, used to group and
// deduplicate values.
func hashable(v interface{}) interface{} {
	switch x := v.(type) {
	case decimal.Decimal:
		return "decimal:" + x.String()
	case time.Time:
		return "time:" + x.UTC().Format(time.RFC3339Nano)
	case *types.Record:
		return fmt.Sprintf("record:%v", x.Values)
	case nil:
		return nil
	}
	if !reflect.TypeOf(v).Comparable() {
		return fmt.Sprintf("%T:%v", v, v)
	}
	return v
}

// text renders a scalar for concat.
func text(v interface{}) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case decimal.Decimal:
		return x.String()
	case time.Time:
		return x.Format(time.RFC3339)
	default:
		return fmt.Sprint(x)
	}
}
