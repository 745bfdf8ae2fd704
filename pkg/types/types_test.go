package types

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestWiden(t *testing.T) {
	tests := []struct {
		a, b, want Kind
	}{
		{KindInt, KindInt, KindInt},
		{KindInt, KindLong, KindLong},
		{KindDouble, KindLong, KindDouble},
		{KindFloat, KindDecimal, KindDecimal},
	}
	for _, tt := range tests {
		if got := Widen(tt.a, tt.b); got != tt.want {
			t.Errorf("Widen(%s, %s) = %s, want %s", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestCommon(t *testing.T) {
	obj := ObjectOf(Field{Name: "A", Type: Int})
	tests := []struct {
		a, b *Type
		want string
	}{
		{Int, Int, "int"},
		{Int.WithNullable(true), Int, "int?"},
		{Int, Decimal, "decimal"},
		{Null, String, "string?"},
		{Unknown, Long, "long?"},
		{obj, obj, "{A:int}"},
		{String, Int, "<nil>"},
		{CollectionOf(Int), CollectionOf(String), "<nil>"},
	}
	for _, tt := range tests {
		if got := Common(tt.a, tt.b); got.String() != tt.want {
			t.Errorf("Common(%s, %s) = %s, want %s", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestTypeString(t *testing.T) {
	keys := []Field{{Name: "Status", Type: String}, {Name: "Year", Type: Int}}
	tests := []struct {
		t    *Type
		want string
	}{
		{Int, "int"},
		{Unknown, "unknown"},
		{DateTime.WithNullable(true), "datetime?"},
		{CollectionOf(Decimal.WithNullable(true)), "[decimal?]"},
		{&Type{Kind: KindObject, Name: "Order"}, "Order"},
		{GroupOf(CompositeOf(keys...), &Type{Kind: KindObject, Name: "Order"}), "group<(Status:string,Year:int),Order>"},
	}
	for _, tt := range tests {
		if got := tt.t.String(); got != tt.want {
			t.Errorf("String() = %s, want %s", got, tt.want)
		}
	}
}

func TestTypeEqualIgnoresNullability(t *testing.T) {
	if !CollectionOf(Int).Equal(CollectionOf(Int.WithNullable(true))) {
		t.Error("collections of int and int? differ")
	}
	if Int.Equal(Long) {
		t.Error("int equals long")
	}
	if Int.WithNullable(false) != Int {
		t.Error("WithNullable copied an unchanged type")
	}
}

func TestConvert(t *testing.T) {
	tests := []struct {
		in   interface{}
		k    Kind
		want interface{}
	}{
		{int64(7), KindInt, 7},
		{7, KindLong, int64(7)},
		{json.Number("12"), KindInt, 12},
		{2.0, KindInt, 2},
		{3, KindDouble, 3.0},
		{3, KindFloat, float32(3)},
		{"true", KindBool, true},
		{nil, KindInt, nil},
		{"x", KindObject, "x"},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%v_%s", tt.in, tt.k), func(t *testing.T) {
			got, err := Convert(tt.in, tt.k)
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Errorf("got %#v, want %#v", got, tt.want)
			}
		})
	}

	when := time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)
	ts, err := Convert("2024-05-06T07:08:09Z", KindDateTime)
	if err != nil || !ts.(time.Time).Equal(when) {
		t.Errorf("datetime = %v, %v", ts, err)
	}
	d, err := Convert(json.Number("1.10"), KindDecimal)
	if err != nil || !d.(decimal.Decimal).Equal(decimal.RequireFromString("1.1")) {
		t.Errorf("decimal = %v, %v", d, err)
	}
	if _, err := Convert(2.5, KindInt); CodeOf(err) != ErrConversion {
		t.Errorf("2.5 to int: %v", err)
	}
	if _, err := Convert("abc", KindDecimal); CodeOf(err) != ErrConversion {
		t.Errorf("abc to decimal: %v", err)
	}
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		v    interface{}
		want Kind
	}{
		{nil, KindNull},
		{1, KindInt},
		{int64(1), KindLong},
		{1.5, KindDouble},
		{decimal.Zero, KindDecimal},
		{"s", KindString},
		{time.Time{}, KindDateTime},
		{[]interface{}{}, KindCollection},
		{NewRecord(0), KindObject},
	}
	for _, tt := range tests {
		if got := KindOf(tt.v); got != tt.want {
			t.Errorf("KindOf(%#v) = %s, want %s", tt.v, got, tt.want)
		}
	}
}

func TestRecordKeepsOrder(t *testing.T) {
	r := NewRecord(3)
	r.Set("Zeta", 1)
	r.Set("Alpha", "a")
	r.Set("Mid", nil)
	r.Set("Zeta", 2)

	b, err := json.Marshal(r)
	if err != nil {
		t.Fatal(err)
	}
	if got, want := string(b), `{"Zeta":2,"Alpha":"a","Mid":null}`; got != want {
		t.Errorf("got %s, want %s", got, want)
	}
	if r.Len() != 3 {
		t.Errorf("Len = %d", r.Len())
	}
	if v, ok := r.Get("Alpha"); !ok || v != "a" {
		t.Errorf("Get = %v, %v", v, ok)
	}
}

func TestErrors(t *testing.T) {
	err := Errorf(ErrUnknownProperty, 4, "no property %s", "Foo").WithToken("Foo")
	if err.Error() != "B0301 at position 4: no property Foo" {
		t.Errorf("Error() = %q", err.Error())
	}
	if NewError(ErrConversion, "bad", -1).Error() != "R0402: bad" {
		t.Error("unpositioned error message")
	}

	wrapped := fmt.Errorf("building: %w", err)
	if CodeOf(wrapped) != ErrUnknownProperty || !IsBuild(wrapped) || IsRuntime(wrapped) {
		t.Errorf("classification of %v", wrapped)
	}
	if CodeOf(errors.New("plain")) != "" {
		t.Error("plain error has a code")
	}

	cause := errors.New("root cause")
	if !errors.Is(NewError(ErrConversion, "x", 0).WithCause(cause), cause) {
		t.Error("cause not unwrapped")
	}
}

func TestExpression(t *testing.T) {
	root := &Property{Name: "Name"}
	e := NewExpression(root, "Name")
	if e.Root() != root || e.Source() != "Name" || e.String() != "Name" {
		t.Errorf("expression = %+v", e)
	}
	if LastName(&Navigation{Steps: []Node{&Property{Name: "A"}, &Filter{Source: &Property{Name: "B"}}}}) != "B" {
		t.Error("LastName through a filter")
	}
}
