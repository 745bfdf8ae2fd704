package projection_test

import (
	"encoding/json"
	"reflect"
	"sync"
	"testing"

	"github.com/sandrolain/goshape/pkg/accessor"
	"github.com/sandrolain/goshape/pkg/document"
	"github.com/sandrolain/goshape/pkg/native"
	"github.com/sandrolain/goshape/pkg/projection"
	"github.com/sandrolain/goshape/pkg/types"
)

type customer struct {
	Id     int
	Name   string
	Age    int
	Secret string `shape:"Alias"`
	Orders []struct {
		Status string
	}
}

var customerType = accessor.TypeFor[customer]()

func sample() *customer {
	c := &customer{Id: 7, Name: "Ann", Age: 30, Secret: "s3"}
	c.Orders = append(c.Orders, struct{ Status string }{"Done"}, struct{ Status string }{"Done"})
	return c
}

func TestErrorIsolation(t *testing.T) {
	o := projection.New[*native.Expression](native.New())
	p := o.Compile(customerType, []string{"Name", "NoSuchProp", "Age"})
	if p.Len() != 4 {
		t.Fatalf("expected 4 columns, got %d", p.Len())
	}
	if c := p.Columns[2]; c.OK() || types.CodeOf(c.Err) != types.ErrUnknownProperty {
		t.Fatalf("column 2 = %+v", c)
	}
	if p.Err() == nil {
		t.Fatal("expected the projection to report the broken column")
	}

	row, err := projection.Evaluate(p, sample())
	if err != nil {
		t.Fatal(err)
	}
	want := []interface{}{7, "Ann", nil, 30}
	if !reflect.DeepEqual(row, want) {
		t.Errorf("row = %#v, want %#v", row, want)
	}
}

func TestParseErrorsAreIsolated(t *testing.T) {
	o := projection.New[*native.Expression](native.New())
	p := o.Compile(customerType, []string{"Name = ", "Orders:count"})
	if !types.IsSyntax(p.Columns[1].Err) {
		t.Errorf("expected a syntax error, got %v", p.Columns[1].Err)
	}
	row, err := projection.Evaluate(p, sample())
	if err != nil {
		t.Fatal(err)
	}
	if row[1] != nil || row[2] != 2 {
		t.Errorf("row = %#v", row)
	}
}

func TestDefaultProperty(t *testing.T) {
	tests := []struct {
		name string
		opts []projection.Option
		want interface{}
		ok   bool
	}{
		{"identifier", nil, 7, true},
		{"configured", []projection.Option{projection.WithDefaultProperty("Name")}, "Ann", true},
		// Aliases are not visible to direct resolution.
		{"alias", []projection.Option{projection.WithDefaultProperty("Alias")}, nil, false},
		{"physical", []projection.Option{projection.WithDefaultProperty("Secret")}, "s3", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := projection.New[*native.Expression](native.New(), tt.opts...)
			p := o.Compile(customerType, []string{""})
			if p.Columns[1].OK() != tt.ok {
				t.Fatalf("column = %+v", p.Columns[1])
			}
			row, _ := projection.Evaluate(p, sample())
			if row[1] != tt.want {
				t.Errorf("got %#v, want %#v", row[1], tt.want)
			}
		})
	}
}

func TestAliasInExpression(t *testing.T) {
	o := projection.New[*native.Expression](native.New())
	p := o.Compile(customerType, []string{"Alias"})
	row, err := projection.Evaluate(p, sample())
	if err != nil || row[1] != "s3" {
		t.Errorf("row = %#v, %v", row, err)
	}
}

func TestIdentifierProperty(t *testing.T) {
	o := projection.New[*native.Expression](native.New(), projection.WithIDProperty("Name"))
	p := o.Compile(customerType, nil)
	row, err := projection.Evaluate(p, sample())
	if err != nil || !reflect.DeepEqual(row, []interface{}{"Ann"}) {
		t.Errorf("row = %#v, %v", row, err)
	}
}

func TestRuntimeErrors(t *testing.T) {
	o := projection.New[*native.Expression](native.New())
	p := o.Compile(customerType, []string{"Age:divide(0)", "Name"})
	row, err := projection.Evaluate(p, sample())
	if types.CodeOf(err) != types.ErrDivisionByZero {
		t.Fatalf("err = %v", err)
	}
	if row[1] != nil || row[2] != "Ann" {
		t.Errorf("row = %#v", row)
	}
}

func TestCaching(t *testing.T) {
	o := projection.New[*native.Expression](native.New())
	p1 := o.Compile(customerType, []string{"Name", "Age"})
	p2 := o.Compile(customerType, []string{"Age", "Name"})
	if p1.Columns[1].Artifact != p2.Columns[2].Artifact {
		t.Error("expected the cached artifact to be reused")
	}
	if s := o.Stats(); s.Hits != 3 || s.Len != 3 {
		t.Errorf("stats = %+v", s)
	}

	o.Reset()
	p3 := o.Compile(customerType, []string{"Name"})
	if p3.Columns[1].Artifact == p1.Columns[1].Artifact {
		t.Error("expected a rebuild after Reset")
	}
}

func TestCacheKeyIncludesModel(t *testing.T) {
	type other struct {
		Id   int
		Name int
	}
	o := projection.New[*native.Expression](native.New())
	a := o.Column(customerType, "Name")
	b := o.Column(accessor.TypeFor[other](), "Name")
	if a.Artifact.Type().Kind == b.Artifact.Type().Kind {
		t.Errorf("types %s and %s should differ", a.Artifact.Type(), b.Artifact.Type())
	}
}

func TestConcurrentCompile(t *testing.T) {
	o := projection.New[*native.Expression](native.New())
	exprs := []string{"Name", "Orders(Status = 'Done'):count", "Age:add(1)"}
	results := make([]*projection.Projection[*native.Expression], 32)
	var wg sync.WaitGroup
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = o.Compile(customerType, exprs)
		}(i)
	}
	wg.Wait()

	for _, p := range results {
		for i, c := range p.Columns {
			if !c.OK() {
				t.Fatalf("column %d: %v", i, c.Err)
			}
			if c.Artifact != results[0].Columns[i].Artifact {
				t.Fatalf("column %d: callers observed different artifacts", i)
			}
		}
	}
}

func TestStage(t *testing.T) {
	o := projection.New[*document.Document](document.New())
	p := o.Compile(customerType, []string{"Name", "NoSuchProp", "Orders:count"})
	b, err := json.Marshal(projection.Stage(p))
	if err != nil {
		t.Fatal(err)
	}
	want := `{"$project":{"_id":0,"c0":"$Id","c1":"$Name","c2":{"$literal":null},"c3":{"$size":{"$ifNull":["$Orders",[]]}}}}`
	if string(b) != want {
		t.Errorf("got  %s\nwant %s", b, want)
	}

	row := projection.Row(p, map[string]interface{}{"c0": 7, "c1": "Ann", "c2": nil, "c3": 2})
	if !reflect.DeepEqual(row, []interface{}{7, "Ann", nil, 2}) {
		t.Errorf("row = %#v", row)
	}
}

func BenchmarkCompileCached(b *testing.B) {
	o := projection.New[*native.Expression](native.New())
	exprs := []string{"Name", "Orders(Status = 'Done'):count", "Age:add(1)"}
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		o.Compile(customerType, exprs)
	}
}
