package parser

import (
	"testing"
)

func FuzzParser(f *testing.F) {
	seeds := []string{
		`Name`,
		`Orders(Status = 'Done'):sum(Total)`,
		`{Id, Country.Name as CountryName}`,
		`Items:groupBy(Category).{Category, :count as Count}`,
		`A?x:B?y:z`,
		`Items[0 asc Price]`,
		`Customer?.Name ?? 'n/a'`,
		``,
		`(`,
		`{:sum(`,
	}
	for _, s := range seeds {
		f.Add(s)
	}
	f.Fuzz(func(t *testing.T, input string) {
		expr, err := Parse(input)
		if err == nil && expr.Root() == nil {
			t.Fatalf("Parse(%q) returned neither a tree nor an error", input)
		}
	})
}
