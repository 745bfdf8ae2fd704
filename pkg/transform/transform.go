// Package transform turns raw projection rows into structured responses.
//
// A raw row holds the identifier in position 0 and the value of expression
// i in position i+1. Each value is serialized to JSON text so the response
// can cross any transport unchanged.
package transform

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/sandrolain/goshape/pkg/types"
)

// Response is the structured form of a row.
type Response struct {
	ID     string  `json:"id"`
	Values []Value `json:"values"`
}

// Value is one named value of a response.
type Value struct {
	Expression string `json:"expression"`
	Value      string `json:"value"`
}

// Get returns the serialized value of expression.
func (r *Response) Get(expression string) (string, bool) {
	for _, v := range r.Values {
		if v.Expression == expression {
			return v.Value, true
		}
	}
	return "", false
}

// Transform pairs row with the expressions it was projected from.
func Transform(row []interface{}, exprs []string) (*Response, error) {
	if len(row) != len(exprs)+1 {
		return nil, fmt.Errorf("transform: row has %d values, want %d (identifier and %d expressions)", len(row), len(exprs)+1, len(exprs))
	}
	r := &Response{
		ID:     ID(row[0]),
		Values: make([]Value, len(exprs)),
	}
	for i, e := range exprs {
		text, err := Text(row[i+1])
		if err != nil {
			return nil, fmt.Errorf("transform: value of %q: %w", e, err)
		}
		r.Values[i] = Value{Expression: e, Value: text}
	}
	return r, nil
}

// ID renders an identifier as a plain string. Nil renders as "".
func ID(v interface{}) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case uuid.UUID:
		return x.String()
	case [16]byte:
		return uuid.UUID(x).String()
	case []byte:
		if id, err := uuid.FromBytes(x); err == nil {
			return id.String()
		}
		return string(x)
	case decimal.Decimal:
		return x.String()
	case time.Time:
		return x.UTC().Format(time.RFC3339Nano)
	case fmt.Stringer:
		return x.String()
	default:
		return fmt.Sprint(x)
	}
}

// Text serializes v to JSON. Decimals are written as bare numbers so no
// precision is lost to quoting or to float conversion.
func Text(v interface{}) (string, error) {
	var buf bytes.Buffer
	if err := encode(&buf, v); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func encode(buf *bytes.Buffer, v interface{}) error {
	switch x := v.(type) {
	case nil:
		buf.WriteString("null")
	case decimal.Decimal:
		buf.WriteString(x.String())
	case *decimal.Decimal:
		if x == nil {
			buf.WriteString("null")
			return nil
		}
		buf.WriteString(x.String())
	case []interface{}:
		buf.WriteByte('[')
		for i, e := range x {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := encode(buf, e); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case *types.Record:
		if x == nil {
			buf.WriteString("null")
			return nil
		}
		buf.WriteByte('{')
		for i, k := range x.Keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := member(buf, k, x.Values[k]); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	case map[string]interface{}:
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := member(buf, k, x[k]); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	default:
		b, err := json.Marshal(x)
		if err != nil {
			return err
		}
		buf.Write(b)
	}
	return nil
}

func member(buf *bytes.Buffer, key string, v interface{}) error {
	k, err := json.Marshal(key)
	if err != nil {
		return err
	}
	buf.Write(k)
	buf.WriteByte(':')
	return encode(buf, v)
}
