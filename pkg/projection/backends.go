package projection

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/sandrolain/goshape/pkg/document"
	"github.com/sandrolain/goshape/pkg/native"
)

// Evaluate runs a native projection against one element and returns the raw
// row. Columns that failed to build or to evaluate hold nil; evaluation
// errors are joined into the returned error.
func Evaluate(p *Projection[*native.Expression], obj interface{}) ([]interface{}, error) {
	row := make([]interface{}, len(p.Columns))
	var errs []error
	for i, c := range p.Columns {
		if c.Err != nil {
			continue
		}
		v, err := c.Artifact.Eval(obj)
		if err != nil {
			errs = append(errs, fmt.Errorf("column %d (%q): %w", i, c.Expression, err))
			continue
		}
		row[i] = v
	}
	return row, errors.Join(errs...)
}

// ColumnKey returns the member name column i is stored under in a $project
// stage.
func ColumnKey(i int) string {
	return "c" + strconv.Itoa(i)
}

// Stage renders a document projection as a $project stage. Columns that
// failed to build project null.
func Stage(p *Projection[*document.Document]) document.D {
	fields := make(document.D, 0, len(p.Columns)+1)
	fields = append(fields, document.E{Key: "_id", Value: 0})
	for i, c := range p.Columns {
		var x interface{} = document.D{{Key: "$literal", Value: nil}}
		if c.Err == nil {
			x = c.Artifact.Expr()
		}
		fields = append(fields, document.E{Key: ColumnKey(i), Value: x})
	}
	return document.D{{Key: "$project", Value: fields}}
}

// Row reads the raw row of a document produced by Stage.
func Row[A any](p *Projection[A], doc map[string]interface{}) []interface{} {
	row := make([]interface{}, len(p.Columns))
	for i := range row {
		row[i] = doc[ColumnKey(i)]
	}
	return row
}
