package transform_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/sandrolain/goshape/pkg/accessor"
	"github.com/sandrolain/goshape/pkg/native"
	"github.com/sandrolain/goshape/pkg/projection"
	"github.com/sandrolain/goshape/pkg/transform"
	"github.com/sandrolain/goshape/pkg/types"
)

func TestTransform(t *testing.T) {
	row := []interface{}{42, "Ann", nil, decimal.RequireFromString("12.50")}
	exprs := []string{"Name", "NoSuchProp", "Orders:sum(Total)"}
	r, err := transform.Transform(row, exprs)
	if err != nil {
		t.Fatal(err)
	}
	if r.ID != "42" {
		t.Errorf("ID = %q", r.ID)
	}
	want := []transform.Value{
		{Expression: "Name", Value: `"Ann"`},
		{Expression: "NoSuchProp", Value: "null"},
		{Expression: "Orders:sum(Total)", Value: "12.5"},
	}
	for i, v := range want {
		if r.Values[i] != v {
			t.Errorf("value %d = %+v, want %+v", i, r.Values[i], v)
		}
	}
	if v, ok := r.Get("Name"); !ok || v != `"Ann"` {
		t.Errorf("Get(Name) = %q, %v", v, ok)
	}
}

func TestTransformLengthMismatch(t *testing.T) {
	if _, err := transform.Transform([]interface{}{1}, []string{"Name"}); err == nil {
		t.Fatal("expected an error for a short row")
	}
}

func TestID(t *testing.T) {
	id := uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8")
	tests := []struct {
		name string
		in   interface{}
		want string
	}{
		{"nil", nil, ""},
		{"string", "abc", "abc"},
		{"int", 7, "7"},
		{"int64", int64(-3), "-3"},
		{"uuid", id, id.String()},
		{"uuid bytes", id[:], id.String()},
		{"array", [16]byte(id), id.String()},
		{"bytes", []byte("key"), "key"},
		{"decimal", decimal.RequireFromString("1.50"), "1.5"},
		{"time", time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC), "2024-01-02T03:04:05Z"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := transform.ID(tt.in); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestText(t *testing.T) {
	rec := types.NewRecord(2)
	rec.Set("Z", decimal.RequireFromString("0.10"))
	rec.Set("A", []interface{}{1, "x", nil})
	tests := []struct {
		name string
		in   interface{}
		want string
	}{
		{"null", nil, "null"},
		{"bool", true, "true"},
		{"string", "a\"b", `"a\"b"`},
		{"control", "\x01", `"\u0001"`},
		{"float", 1.5, "1.5"},
		{"decimal", decimal.RequireFromString("123456789012345678901234.5"), "123456789012345678901234.5"},
		{"time", time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), `"2024-01-02T00:00:00Z"`},
		{"uuid", uuid.Nil, `"00000000-0000-0000-0000-000000000000"`},
		{"record", rec, `{"Z":0.1,"A":[1,"x",null]}`},
		{"map", map[string]interface{}{"b": 1, "a": decimal.New(5, 0)}, `{"a":5,"b":1}`},
		{"strings", []string{"a", "b"}, `["a","b"]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := transform.Text(tt.in)
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Errorf("got %s, want %s", got, tt.want)
			}
			if !json.Valid([]byte(got)) {
				t.Errorf("%s is not valid JSON", got)
			}
		})
	}
}

// A projection row flows through the transformer unchanged in order.
func TestProjectionRoundTrip(t *testing.T) {
	type order struct {
		Status string
		Total  decimal.Decimal
	}
	type customer struct {
		Id     string
		Name   string
		Orders []order
	}
	c := customer{
		Id:   "c-1",
		Name: "Ann",
		Orders: []order{
			{"Done", decimal.RequireFromString("100")},
			{"Pending", decimal.RequireFromString("50")},
			{"Done", decimal.RequireFromString("200")},
		},
	}
	exprs := []string{"Name", "NoSuchProp", "Orders(Status = 'Done'):sum(Total)", "Orders:groupBy(Status).{Status, :count as N}"}
	o := projection.New[*native.Expression](native.New())
	p := o.Compile(accessor.TypeFor[customer](), exprs)
	row, err := projection.Evaluate(p, c)
	if err != nil {
		t.Fatal(err)
	}
	r, err := transform.Transform(row, exprs)
	if err != nil {
		t.Fatal(err)
	}
	b, _ := json.Marshal(r)
	want := `{"id":"c-1","values":[` +
		`{"expression":"Name","value":"\"Ann\""},` +
		`{"expression":"NoSuchProp","value":"null"},` +
		`{"expression":"Orders(Status = 'Done'):sum(Total)","value":"300"},` +
		`{"expression":"Orders:groupBy(Status).{Status, :count as N}","value":"[{\"Status\":\"Done\",\"N\":2},{\"Status\":\"Pending\",\"N\":1}]"}]}`
	if string(b) != want {
		t.Errorf("got  %s\nwant %s", b, want)
	}
}
