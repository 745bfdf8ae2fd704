package types

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/araddon/dateparse"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Convert returns v in the canonical runtime representation of kind k:
//
//	KindBool     bool
//	KindInt      int
//	KindLong     int64
//	KindFloat    float32
//	KindDouble   float64
//	KindDecimal  decimal.Decimal
//	KindString   string
//	KindDateTime time.Time
//
// nil converts to nil. Other kinds return v unchanged.
func Convert(v interface{}, k Kind) (interface{}, error) {
	if v == nil {
		return nil, nil
	}
	switch k {
	case KindBool:
		switch b := v.(type) {
		case bool:
			return b, nil
		case string:
			if p, err := strconv.ParseBool(b); err == nil {
				return p, nil
			}
		case int, int64:
			// Stores without a boolean type keep 0 and 1.
			n, _ := toInt64(b)
			return n != 0, nil
		}
	case KindInt:
		if n, ok := toInt64(v); ok {
			return int(n), nil
		}
	case KindLong:
		if n, ok := toInt64(v); ok {
			return n, nil
		}
	case KindFloat:
		if f, ok := ToFloat64(v); ok {
			return float32(f), nil
		}
	case KindDouble:
		if f, ok := ToFloat64(v); ok {
			return f, nil
		}
	case KindDecimal:
		if d, ok := ToDecimal(v); ok {
			return d, nil
		}
	case KindString:
		switch s := v.(type) {
		case string:
			return s, nil
		case uuid.UUID:
			return s.String(), nil
		case []byte:
			return string(s), nil
		case fmt.Stringer:
			return s.String(), nil
		}
	case KindDateTime:
		if t, ok := ToTime(v); ok {
			return t, nil
		}
	default:
		return v, nil
	}
	return nil, Errorf(ErrConversion, -1, "cannot convert %T to %s", v, k)
}

func toInt64(v interface{}) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int8:
		return int64(n), true
	case int16:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint:
		return int64(n), true
	case uint8:
		return int64(n), true
	case uint16:
		return int64(n), true
	case uint32:
		return int64(n), true
	case uint64:
		return int64(n), true
	case float32:
		if float32(math.Trunc(float64(n))) == n {
			return int64(n), true
		}
	case float64:
		if math.Trunc(n) == n {
			return int64(n), true
		}
	case decimal.Decimal:
		if n.IsInteger() {
			return n.IntPart(), true
		}
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return i, true
		}
	case string:
		if i, err := strconv.ParseInt(n, 10, 64); err == nil {
			return i, true
		}
	}
	return 0, false
}

// ToFloat64 converts any numeric value to float64.
func ToFloat64(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case decimal.Decimal:
		return n.InexactFloat64(), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	}
	if i, ok := toInt64(v); ok {
		return float64(i), true
	}
	return 0, false
}

// ToDecimal converts any numeric value to decimal.Decimal.
func ToDecimal(v interface{}) (decimal.Decimal, bool) {
	switch n := v.(type) {
	case decimal.Decimal:
		return n, true
	case float64:
		return decimal.NewFromFloat(n), true
	case float32:
		return decimal.NewFromFloat32(n), true
	case json.Number:
		d, err := decimal.NewFromString(n.String())
		return d, err == nil
	case string:
		d, err := decimal.NewFromString(n)
		return d, err == nil
	}
	if i, ok := toInt64(v); ok {
		return decimal.NewFromInt(i), true
	}
	return decimal.Zero, false
}

// ToTime converts a time value or a date string to time.Time. Strings are
// parsed with dateparse, which accepts most common layouts.
func ToTime(v interface{}) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case *time.Time:
		if t != nil {
			return *t, true
		}
	case string:
		p, err := dateparse.ParseAny(t)
		return p, err == nil
	}
	return time.Time{}, false
}

// KindOf returns the kind of a canonical runtime value.
func KindOf(v interface{}) Kind {
	switch v.(type) {
	case nil:
		return KindNull
	case bool:
		return KindBool
	case int, int8, int16, int32, uint8, uint16:
		return KindInt
	case int64, uint, uint32, uint64:
		return KindLong
	case float32:
		return KindFloat
	case float64, json.Number:
		return KindDouble
	case decimal.Decimal:
		return KindDecimal
	case string, uuid.UUID:
		return KindString
	case time.Time:
		return KindDateTime
	case []interface{}:
		return KindCollection
	case map[string]interface{}, *Record:
		return KindObject
	default:
		return KindUnknown
	}
}
