package native

import (
	"encoding/json"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"

	"github.com/sandrolain/goshape/pkg/accessor"
	"github.com/sandrolain/goshape/pkg/parser"
	"github.com/sandrolain/goshape/pkg/types"
)

type item struct {
	Sku   string
	Qty   int
	Price float64
}

type order struct {
	Id     int
	Total  decimal.Decimal
	Status string
	Placed time.Time
	Items  []item
}

type country struct {
	Code string
	Name string
}

type customer struct {
	Id       int
	Name     string
	Age      int
	Score    *int
	Balance  decimal.Decimal
	Rating   float64
	Country  *country
	Orders   []order
	Tags     []string
	Joined   time.Time
	Nickname *string
}

var (
	customerType = accessor.TypeFor[customer]()
	jan2         = time.Date(2024, 1, 2, 10, 30, 0, 0, time.UTC)
)

func sample() *customer {
	score := 7
	return &customer{
		Id:      1,
		Name:    "Ada Lovelace",
		Age:     36,
		Score:   &score,
		Balance: decimal.RequireFromString("10.25"),
		Rating:  4.5,
		Country: &country{Code: "GB", Name: "United Kingdom"},
		Orders: []order{
			{Id: 3, Total: decimal.NewFromInt(100), Status: "Done", Placed: jan2, Items: []item{{"a", 1, 2.5}, {"b", 2, 1}}},
			{Id: 1, Total: decimal.NewFromInt(200), Status: "Done", Placed: jan2.AddDate(0, 1, 0), Items: []item{{"c", 3, 4}}},
			{Id: 2, Total: decimal.NewFromInt(50), Status: "Pending", Placed: jan2.AddDate(0, 2, 0)},
		},
		Tags:   []string{"vip", "early", "vip"},
		Joined: jan2,
	}
}

func compile(t *testing.T, src string, model *types.Type, opts ...Option) *Expression {
	t.Helper()
	expr, err := parser.Parse(src)
	if err != nil {
		t.Fatalf("Parse(%q): %v", src, err)
	}
	e, err := New(opts...).Build(expr, model)
	if err != nil {
		t.Fatalf("Build(%q): %v", src, err)
	}
	return e
}

func eval(t *testing.T, src string, obj interface{}, opts ...Option) interface{} {
	t.Helper()
	v, err := compile(t, src, customerType, opts...).Eval(obj)
	if err != nil {
		t.Fatalf("Eval(%q): %v", src, err)
	}
	return v
}

func buildError(t *testing.T, src string, model *types.Type, code types.ErrorCode) {
	t.Helper()
	expr, err := parser.Parse(src)
	if err != nil {
		t.Fatalf("Parse(%q): %v", src, err)
	}
	_, err = New().Build(expr, model)
	if err == nil {
		t.Fatalf("Build(%q): expected %s, got nil", src, code)
	}
	if got := types.CodeOf(err); got != code {
		t.Fatalf("Build(%q): code = %s, want %s (%v)", src, got, code, err)
	}
}

func asJSON(t *testing.T, v interface{}) string {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	return string(b)
}

// Scalars and navigation

func TestProperties(t *testing.T) {
	c := sample()
	tests := []struct {
		src  string
		want interface{}
	}{
		{"Name", "Ada Lovelace"},
		{"name", "Ada Lovelace"},
		{"Age", 36},
		{"Score", 7},
		{"Country.Code", "GB"},
		{"Nickname", nil},
		{"42", 42},
		{"'x'", "x"},
		{"true", true},
		{"null", nil},
	}
	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			if got := eval(t, tt.src, c); got != tt.want {
				t.Errorf("got %#v, want %#v", got, tt.want)
			}
		})
	}
}

func TestResultTypes(t *testing.T) {
	tests := []struct {
		src  string
		want string
	}{
		{"Name", "string"},
		{"Score", "int?"},
		{"Country?.Name", "string?"},
		{"Orders", "[order]"},
		{"Orders.Total", "[decimal]"},
		{"Orders.Items", "[item]"},
		{"Orders:count", "int"},
		{"Orders:sum(Total)", "decimal"},
		{"Orders.Items:avg(Qty)", "double?"},
		{"Age > 30", "bool"},
		{"Score ?? 0", "int"},
		{"Age ?? Balance", "decimal"},
		{"Age:add(1.5)", "decimal"},
		{"Rating:add(Balance)", "double"},
		{"Name:split(' ')", "[string]"},
		{"Orders[0 asc Id]", "order?"},
		{"{Id, Name}", "{Id:int,Name:string}"},
	}
	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			if got := compile(t, tt.src, customerType).Type().String(); got != tt.want {
				t.Errorf("type = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestCollectionNavigationFlattens(t *testing.T) {
	got := eval(t, "Orders.Items.Sku", sample())
	want := []interface{}{"a", "b", "c"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %#v, want %#v", got, want)
	}
}

func TestNullSafe(t *testing.T) {
	c := sample()
	c.Country = nil

	if got := eval(t, "Country?.Name", c); got != nil {
		t.Errorf("Country?.Name = %#v, want nil", got)
	}
	if got := eval(t, "Country?.Name ?? 'none'", c); got != "none" {
		t.Errorf("coalesce = %#v", got)
	}

	_, err := compile(t, "Country.Name", customerType).Eval(c)
	if types.CodeOf(err) != types.ErrNullReference {
		t.Fatalf("err = %v, want %s", err, types.ErrNullReference)
	}
	if e := err.(*types.Error); e.Position != 8 {
		t.Errorf("position = %d, want 8", e.Position)
	}
}

func TestUnknownProperty(t *testing.T) {
	buildError(t, "NoSuchProp", customerType, types.ErrUnknownProperty)
	buildError(t, "Orders.Nope", customerType, types.ErrUnknownProperty)
	buildError(t, "Age.Nope", customerType, types.ErrUnknownProperty)
}

// Filters, predicates and aggregates

func TestFilterSum(t *testing.T) {
	got := eval(t, "Orders(Status = 'Done'):sum(Total)", sample())
	if d := got.(decimal.Decimal); !d.Equal(decimal.NewFromInt(300)) {
		t.Errorf("sum = %s, want 300", d)
	}
}

func TestFilterCommaIsAnd(t *testing.T) {
	got := eval(t, "Orders(Status = 'Done', Total > 150).Id", sample())
	if !reflect.DeepEqual(got, []interface{}{1}) {
		t.Errorf("got %#v", got)
	}
}

func TestAggregates(t *testing.T) {
	c := sample()
	tests := []struct {
		src  string
		want string
	}{
		{"Orders:count", "3"},
		{"Orders:count(Status = 'Done')", "2"},
		{"Name:count", "12"},
		{"Orders:sum(Total)", `"350"`},
		{"Orders:avg(Total)", `"116.6666666666666667"`},
		{"Orders:min(Total)", `"50"`},
		{"Orders:max(Placed)", `"2024-03-02T10:30:00Z"`},
		{"Orders:max(Status)", `"Pending"`},
		{"Orders.Items:sum(Qty)", "6"},
		{"Orders.Items:avg(Qty)", "2"},
		{"Orders(Total > 1000):sum(Total)", `"0"`},
		{"Orders(Total > 1000):avg(Total)", "null"},
		{"Orders(Total > 1000):max(Total)", "null"},
	}
	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			if got := asJSON(t, eval(t, tt.src, c)); got != tt.want {
				t.Errorf("got %s, want %s", got, tt.want)
			}
		})
	}
}

func TestAggregateTypeErrors(t *testing.T) {
	buildError(t, "Orders:sum(Status)", customerType, types.ErrNoAggregate)
	buildError(t, "Orders:count(Total)", customerType, types.ErrTypeMismatch)
	buildError(t, "Age:count", customerType, types.ErrNotCollection)
}

func TestPredicates(t *testing.T) {
	c := sample()
	empty := &customer{}
	tests := []struct {
		src  string
		obj  *customer
		want bool
	}{
		{"Orders:any", c, true},
		{"Orders:any", empty, false},
		{"Orders:all", empty, true},
		{"Orders:all(Total > 1000)", empty, true},
		{"Orders:any(Total > 1000)", empty, false},
		{"Orders:any(Status = 'Pending')", c, true},
		{"Orders:all(Status = 'Done')", c, false},
		{"Orders:all(Total > 10)", c, true},
	}
	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			if got := eval(t, tt.src, tt.obj); got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

// Indexers

func TestIndexer(t *testing.T) {
	c := sample()
	tests := []struct {
		src  string
		want interface{}
	}{
		{"Orders[asc Id].Id", []interface{}{1, 2, 3}},
		{"Orders[desc Id].Id", []interface{}{3, 2, 1}},
		{"Orders.Id", []interface{}{3, 1, 2}},
		{"Orders[1 5 asc Id].Id", []interface{}{2, 3}},
		{"Orders[5 1 asc Id].Id", []interface{}{}},
		{"Orders[asc Status].Id", []interface{}{3, 1, 2}},
	}
	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			if got := eval(t, tt.src, c); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("got %#v, want %#v", got, tt.want)
			}
		})
	}

	first := eval(t, "Orders[0 asc Total]", c).(order)
	if first.Id != 2 {
		t.Errorf("first = %d", first.Id)
	}
	last := eval(t, "Orders[-1 asc Total]", c).(order)
	if last.Id != 1 {
		t.Errorf("last = %d", last.Id)
	}
	if got := eval(t, "Orders(Total > 1000)[0 asc Id]", c); got != nil {
		t.Errorf("empty single = %#v", got)
	}
}

// Coalesce and ternary

func TestCoalesceWidens(t *testing.T) {
	c := sample()
	c.Score = nil
	got := eval(t, "Score ?? Balance", c)
	if d, ok := got.(decimal.Decimal); !ok || !d.Equal(decimal.RequireFromString("10.25")) {
		t.Errorf("got %#v", got)
	}

	c.Score = new(int)
	got = eval(t, "Score ?? Balance", c)
	if d, ok := got.(decimal.Decimal); !ok || !d.IsZero() {
		t.Errorf("got %#v, want decimal 0", got)
	}
}

func TestTernary(t *testing.T) {
	c := sample()
	if got := eval(t, "Age >= 18 ? 'adult' : 'minor'", c); got != "adult" {
		t.Errorf("got %#v", got)
	}
	if got := eval(t, "Age > 40 ? 1 : Age > 30 ? 2 : 3", c); got != 2 {
		t.Errorf("got %#v", got)
	}
	buildError(t, "Age > 1 ? 'a' : 1", customerType, types.ErrTypeMismatch)
	buildError(t, "Name ? 1 : 2", customerType, types.ErrTypeMismatch)
}

// Comparisons

func TestComparisons(t *testing.T) {
	c := sample()
	tests := []struct {
		src  string
		want bool
	}{
		{"Age = 36", true},
		{"Age != 36", false},
		{"Balance > 10", true},
		{"Balance <= 10.25", true},
		{"Rating < Balance", true},
		{"Name contains 'Love'", true},
		{"Name startswith 'Ada'", true},
		{"Name endswith 'ace'", true},
		{"Name endswith 'ada'", false},
		{"Joined = '2024-01-02T10:30:00Z'", true},
		{"Joined > '2023-12-31'", true},
		{"Nickname = null", true},
		{"Score != null", true},
		{"Nickname > 'a'", false},
		{"Age > 30 and Name contains 'x' or Age < 40", true},
	}
	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			if got := eval(t, tt.src, c); got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}

	buildError(t, "Age contains 'x'", customerType, types.ErrTypeMismatch)
	buildError(t, "Age > 'x'", customerType, types.ErrTypeMismatch)
	buildError(t, "Joined > 'not a date'", customerType, types.ErrTypeMismatch)
	buildError(t, "Age > null", customerType, types.ErrTypeMismatch)
}

// Functions

func TestStringFunctions(t *testing.T) {
	c := sample()
	c.Nickname = new(string)
	*c.Nickname = "  ada  "
	tests := []struct {
		src  string
		want interface{}
	}{
		{"Name:upper", "ADA LOVELACE"},
		{"Name:lower", "ada lovelace"},
		{"Nickname:trim", "ada"},
		{"Name:substring(4)", "Lovelace"},
		{"Name:substring(0, 3)", "Ada"},
		{"Name:substring(50)", ""},
		{"Name:replace('Ada', 'A.')", "A. Lovelace"},
		{"Name:concat(' #', Id)", "Ada Lovelace #1"},
		{"Country.Name:upper:substring(0, 6)", "UNITED"},
		{"Tags:upper", []interface{}{"VIP", "EARLY", "VIP"}},
	}
	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			if got := eval(t, tt.src, c); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("got %#v, want %#v", got, tt.want)
			}
		})
	}

	parts := eval(t, "Name:split(' ')", c)
	if !reflect.DeepEqual(parts, []interface{}{"Ada", "Lovelace"}) {
		t.Errorf("split = %#v", parts)
	}
	buildError(t, "Age:upper", customerType, types.ErrTypeMismatch)
	buildError(t, "Name:upper(1)", customerType, types.ErrArgumentCount)
}

func TestLocaleCasing(t *testing.T) {
	got := eval(t, "Name:upper", &customer{Name: "istanbul"}, WithLocale(language.Turkish))
	if got != "İSTANBUL" {
		t.Errorf("got %q", got)
	}
}

func TestDateFunctions(t *testing.T) {
	c := sample()
	now := func() time.Time { return time.Date(2024, 1, 12, 1, 0, 0, 0, time.UTC) }
	tests := []struct {
		src  string
		want interface{}
	}{
		{"Joined:year", 2024},
		{"Joined:month", 1},
		{"Joined:day", 2},
		{"Joined:hour", 10},
		{"Joined:minute", 30},
		{"Joined:second", 0},
		{"Joined:dayOfWeek", 2},
		{"Joined:daysAgo", 10},
		{"Joined:format('yyyy-MM-dd HH:mm')", "2024-01-02 10:30"},
		{"Joined:format('dddd d MMMM')", "Tuesday 2 January"},
	}
	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			if got := eval(t, tt.src, c, WithClock(now)); got != tt.want {
				t.Errorf("got %#v, want %#v", got, tt.want)
			}
		})
	}

	got := eval(t, "Joined:format('dddd d MMMM')", c, WithLocale(language.Italian))
	if strings.ToLower(got.(string)) != "martedì 2 gennaio" {
		t.Errorf("italian = %q", got)
	}
	buildError(t, "Age:year", customerType, types.ErrTypeMismatch)
	buildError(t, "Joined:format(Name)", customerType, types.ErrTypeMismatch)
}

func TestMathFunctions(t *testing.T) {
	c := sample()
	tests := []struct {
		src  string
		want string
	}{
		{"Age:add(1)", "37"},
		{"Age:add(1.5)", `"37.5"`},
		{"Age:subtract(6)", "30"},
		{"Age:multiply(2)", "72"},
		{"Age:divide(5)", "7"},
		{"Age:mod(5)", "1"},
		{"Age:pow(2)", "1296"},
		{"Age:pow(0)", "1"},
		{"Age:pow(-1)", "0"},
		{"2:pow(62)", "4611686018427387904"},
		{"Balance:pow(-1)", `"0.0975609756097561"`},
		{"Balance:round", `"10"`},
		{"Balance:round(1)", `"10.3"`},
		{"Rating:floor", "4"},
		{"Rating:ceil", "5"},
		{"Age:subtract(40):abs", "4"},
		{"Rating:add(Balance)", "14.75"},
		{"Orders.Total:add(1)", `["101","201","51"]`},
	}
	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			if got := asJSON(t, eval(t, tt.src, c)); got != tt.want {
				t.Errorf("got %s, want %s", got, tt.want)
			}
		})
	}

	failures := []struct {
		src  string
		code types.ErrorCode
	}{
		{"Age:divide(0)", types.ErrDivisionByZero},
		{"Age:pow(20)", types.ErrConversion},
		{"2:pow(70)", types.ErrConversion},
		{"0:pow(-1)", types.ErrDivisionByZero},
		{"Rating:subtract(Rating):pow(-1)", types.ErrDivisionByZero},
		{"Balance:subtract(Balance):pow(-1)", types.ErrDivisionByZero},
		{"Balance:multiply(-1):pow(0.5)", types.ErrConversion},
	}
	for _, tt := range failures {
		t.Run(tt.src, func(t *testing.T) {
			got, err := compile(t, tt.src, customerType).Eval(c)
			if types.CodeOf(err) != tt.code {
				t.Fatalf("err = %v, want %s", err, tt.code)
			}
			if got != nil {
				t.Errorf("got %#v alongside error", got)
			}
		})
	}
	buildError(t, "Name:add(1)", customerType, types.ErrTypeMismatch)
	buildError(t, "Balance:round(Age)", customerType, types.ErrTypeMismatch)
}

func TestDistinct(t *testing.T) {
	c := sample()
	if got := eval(t, "Tags:distinct", c); !reflect.DeepEqual(got, []interface{}{"vip", "early"}) {
		t.Errorf("got %#v", got)
	}
	if got := eval(t, "Orders:distinct(Status)", c); !reflect.DeepEqual(got, []interface{}{"Done", "Pending"}) {
		t.Errorf("got %#v", got)
	}
}

// Projections and grouping

func TestProjections(t *testing.T) {
	c := sample()
	tests := []struct {
		src  string
		want string
	}{
		{"{Id, Name}", `{"Id":1,"Name":"Ada Lovelace"}`},
		{"{Name as FullName, Country.Code}", `{"FullName":"Ada Lovelace","Code":"GB"}`},
		{"{(Orders:count) as N, Orders:sum(Total) as Sum}", `{"N":3,"Sum":"350"}`},
		{"Orders(Status = 'Pending').{Id, Total}", `[{"Id":2,"Total":"50"}]`},
		{"Country.{Code}", `{"Code":"GB"}`},
		{"{Id, Orders[asc Id].{Id} as O}", `{"Id":1,"O":[{"Id":1},{"Id":2},{"Id":3}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			if got := asJSON(t, eval(t, tt.src, c)); got != tt.want {
				t.Errorf("got %s\nwant %s", got, tt.want)
			}
		})
	}
}

func TestGroupBy(t *testing.T) {
	c := sample()
	got := asJSON(t, eval(t, "Orders:groupBy(Status).{Status, :count as Count, :sum(Total) as Sum}", c))
	want := `[{"Status":"Done","Count":2,"Sum":"300"},{"Status":"Pending","Count":1,"Sum":"50"}]`
	if got != want {
		t.Errorf("got %s\nwant %s", got, want)
	}

	got = asJSON(t, eval(t, "Orders:groupBy(Status).{Key, {Id} as Rows}", c))
	want = `[{"Key":"Done","Rows":[{"Id":3},{"Id":1}]},{"Key":"Pending","Rows":[{"Id":2}]}]`
	if got != want {
		t.Errorf("got %s\nwant %s", got, want)
	}
}

func TestGroupByComposite(t *testing.T) {
	c := sample()
	c.Orders[2].Placed = jan2
	got := asJSON(t, eval(t, "Orders:groupBy(Status, Placed).{Status, Placed:month as Month, :count as N}", c))
	want := `[{"Status":"Done","Month":1,"N":1},{"Status":"Done","Month":2,"N":1},{"Status":"Pending","Month":1,"N":1}]`
	if got != want {
		t.Errorf("got %s\nwant %s", got, want)
	}

	e := compile(t, "Orders:groupBy(Status, Id)", customerType)
	groups := e.Type().Elem
	if groups.Kind != types.KindGroup || groups.Key.Kind != types.KindComposite || len(groups.Key.Fields) != 2 {
		t.Errorf("group type = %s", groups)
	}
}

func TestGroupErrors(t *testing.T) {
	buildError(t, "Orders:groupBy(Id, Status, Total, Placed, Items, Id)", customerType, types.ErrTooManyGroupKeys)
	buildError(t, "Orders.{Id, :count as N}", customerType, types.ErrNoGroupContext)
	buildError(t, "Orders:groupBy(Status).{Total}", customerType, types.ErrUnknownProperty)
	buildError(t, "Age:groupBy(Status)", customerType, types.ErrNotCollection)
}

// Models

func TestDynamicModel(t *testing.T) {
	var doc interface{}
	dec := json.NewDecoder(strings.NewReader(`{"Name": "Bob", "Orders": [{"Total": 5}, {"Total": 7.5}]}`))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		t.Fatal(err)
	}

	e := compile(t, "Orders(Total > 6):count", types.Unknown)
	v, err := e.Eval(doc)
	if err != nil || v != 1 {
		t.Errorf("got %#v, %v", v, err)
	}

	e = compile(t, "Orders:sum(Total)", types.Unknown)
	v, err = e.Eval(doc)
	if err != nil || !v.(decimal.Decimal).Equal(decimal.RequireFromString("12.5")) {
		t.Errorf("got %#v, %v", v, err)
	}
}

func TestSchemaModel(t *testing.T) {
	s := accessor.NewSchema("Person").
		Define("Name", types.String).
		DefineField("Age", "age_years", types.Int)
	doc := map[string]interface{}{"Name": "Ada", "age_years": json.Number("36")}

	e := compile(t, "{Name, Age:add(1) as Next}", s.Type())
	v, err := e.Eval(doc)
	if err != nil {
		t.Fatal(err)
	}
	if got := asJSON(t, v); got != `{"Name":"Ada","Next":37}` {
		t.Errorf("got %s", got)
	}
}

func TestBuilderProperty(t *testing.T) {
	type tagged struct {
		Code string `shape:"Reference"`
	}
	e, err := New().Property("Code", accessor.TypeFor[tagged]())
	if err != nil {
		t.Fatal(err)
	}
	v, err := e.Eval(tagged{Code: "x"})
	if err != nil || v != "x" {
		t.Errorf("got %#v, %v", v, err)
	}
	if _, err := New().Property("Nope", accessor.TypeFor[tagged]()); types.CodeOf(err) != types.ErrUnknownProperty {
		t.Errorf("err = %v", err)
	}
}

func TestPredicateBuild(t *testing.T) {
	expr, _ := parser.Parse("Age > 30")
	p, err := New().Predicate(expr, customerType)
	if err != nil {
		t.Fatal(err)
	}
	ok, err := p.Match(sample())
	if err != nil || !ok {
		t.Errorf("Match = %v, %v", ok, err)
	}

	expr, _ = parser.Parse("Name")
	if _, err := New().Predicate(expr, customerType); types.CodeOf(err) != types.ErrTypeMismatch {
		t.Errorf("err = %v", err)
	}
}

func BenchmarkEval(b *testing.B) {
	expr, _ := parser.Parse("Orders(Status = 'Done', Total > 10):sum(Total)")
	e, err := New().Build(expr, customerType)
	if err != nil {
		b.Fatal(err)
	}
	c := sample()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := e.Eval(c); err != nil {
			b.Fatal(err)
		}
	}
}
