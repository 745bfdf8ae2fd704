package sqlsource

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"

	"github.com/sandrolain/goshape/pkg/accessor"
	"github.com/sandrolain/goshape/pkg/types"
)

// Describe derives a schema from the columns of a SQLite table. Member
// names equal column names; columns without NOT NULL are nullable.
func Describe(ctx context.Context, db *sql.DB, table string) (*accessor.Schema, error) {
	query, args, err := sq.Select("name", "type", `"notnull"`).
		From("pragma_table_info(?)").
		ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx, query, append(args, table)...)
	if err != nil {
		return nil, fmt.Errorf("sqlsource: describe %s: %w", table, err)
	}
	defer rows.Close()

	schema := accessor.NewSchema(table)
	n := 0
	for rows.Next() {
		var (
			name, decl string
			notNull    bool
		)
		if err := rows.Scan(&name, &decl, &notNull); err != nil {
			return nil, fmt.Errorf("sqlsource: describe %s: %w", table, err)
		}
		schema.DefineField(name, name, columnType(decl).WithNullable(!notNull))
		n++
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlsource: describe %s: %w", table, err)
	}
	if n == 0 {
		return nil, fmt.Errorf("sqlsource: table %s not found", table)
	}
	return schema, nil
}

// columnType maps a declared column type following SQLite's affinity rules,
// with the common boolean, decimal and date spellings recognised first.
func columnType(decl string) *types.Type {
	d := strings.ToUpper(decl)
	switch {
	case strings.HasPrefix(d, "BOOL"):
		return types.Bool
	case strings.HasPrefix(d, "DECIMAL"), strings.HasPrefix(d, "NUMERIC"), strings.HasPrefix(d, "MONEY"):
		return types.Decimal
	case strings.Contains(d, "DATE"), strings.Contains(d, "TIME"):
		return types.DateTime
	case strings.Contains(d, "INT"):
		return types.Long
	case strings.Contains(d, "CHAR"), strings.Contains(d, "CLOB"), strings.Contains(d, "TEXT"):
		return types.String
	case strings.Contains(d, "REAL"), strings.Contains(d, "FLOA"), strings.Contains(d, "DOUB"):
		return types.Double
	default:
		return types.Unknown
	}
}
