package functions

import (
	"reflect"
	"sort"
	"testing"
)

func TestLookupIsCaseInsensitive(t *testing.T) {
	for _, name := range []string{"sum", "SUM", "Sum", "dayofweek", "DAYOFWEEK", "groupby"} {
		if _, ok := Lookup(name); !ok {
			t.Errorf("Lookup(%q) failed", name)
		}
	}
	spec, _ := Lookup("DayOfWeek")
	if spec.Name != "dayOfWeek" || spec.Category != DateTime {
		t.Errorf("spec = %+v", spec)
	}
	if IsFunction("nope") {
		t.Error("IsFunction(nope) = true")
	}
}

func TestAcceptsArgs(t *testing.T) {
	tests := []struct {
		name string
		n    int
		want bool
	}{
		{"count", 0, true},
		{"count", 1, true},
		{"count", 2, false},
		{"upper", 0, true},
		{"upper", 1, false},
		{"substring", 0, false},
		{"substring", 2, true},
		{"replace", 1, false},
		{"concat", 5, true},
		{"groupBy", 0, false},
		{"groupBy", 3, true},
	}
	for _, tt := range tests {
		spec, ok := Lookup(tt.name)
		if !ok {
			t.Fatalf("missing %s", tt.name)
		}
		if got := spec.AcceptsArgs(tt.n); got != tt.want {
			t.Errorf("%s.AcceptsArgs(%d) = %v, want %v", tt.name, tt.n, got, tt.want)
		}
	}
}

func TestNames(t *testing.T) {
	names := Names()
	if len(names) != len(catalog) {
		t.Fatalf("len = %d, want %d", len(names), len(catalog))
	}
	if !sort.StringsAreSorted(names) {
		t.Error("names not sorted")
	}
	names[0] = "mutated"
	if Names()[0] == "mutated" {
		t.Error("Names returned shared storage")
	}
}

func TestCategoryString(t *testing.T) {
	if Aggregate.String() != "aggregate" || Collection.String() != "collection" {
		t.Error("unexpected category names")
	}
	if Category(99).String() != "(unknown)" {
		t.Error("unexpected name for unknown category")
	}
}

func TestSplitLayout(t *testing.T) {
	got := SplitLayout(`dd/MM/yyyy HH:mm \at h tt`)
	want := []LayoutPart{
		{Token: "dd"}, {Literal: "/"}, {Token: "MM"}, {Literal: "/"}, {Token: "yyyy"},
		{Literal: " "}, {Token: "HH"}, {Literal: ":"}, {Token: "mm"},
		{Literal: " at "}, {Token: "h"}, {Literal: " "}, {Token: "tt"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("SplitLayout =\n%+v\nwant\n%+v", got, want)
	}
}
