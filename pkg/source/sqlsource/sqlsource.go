// Package sqlsource runs expressions against a relational table.
//
// The part of a filter that a WHERE clause can express exactly or more
// loosely is pushed down to the database; the whole predicate is then
// evaluated in memory on the rows returned, so the result never depends on
// how much was pushed.
package sqlsource

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/shopspring/decimal"

	"github.com/sandrolain/goshape/pkg/accessor"
	"github.com/sandrolain/goshape/pkg/native"
	"github.com/sandrolain/goshape/pkg/types"
)

// Table is a queryable table whose rows are described by a schema.
type Table struct {
	db      *sql.DB
	name    string
	schema  *accessor.Schema
	stmt    sq.StatementBuilderType
	builder *native.Builder
	logger  *slog.Logger
}

// Option configures a Table.
type Option func(*Table)

// WithPlaceholder sets the placeholder format of the database, sq.Question
// by default.
func WithPlaceholder(f sq.PlaceholderFormat) Option {
	return func(t *Table) {
		t.stmt = t.stmt.PlaceholderFormat(f)
	}
}

// WithBuilder sets the builder used for the in-memory predicate.
func WithBuilder(b *native.Builder) Option {
	return func(t *Table) {
		t.builder = b
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(t *Table) {
		t.logger = logger
	}
}

// New creates a table source. Rows are read as map[string]interface{}
// keyed by the physical member names of schema.
func New(db *sql.DB, name string, schema *accessor.Schema, opts ...Option) *Table {
	t := &Table{
		db:     db,
		name:   name,
		schema: schema,
		stmt:   sq.StatementBuilder.PlaceholderFormat(sq.Question),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.builder == nil {
		t.builder = native.New(native.WithLogger(t.logger))
	}
	return t
}

// Model returns the element type expressions must be built against.
func (t *Table) Model() *types.Type {
	return t.schema.Type()
}

type column struct {
	field string
	typ   *types.Type
}

// columns returns the scalar members of the schema.
func (t *Table) columns() []column {
	var cols []column
	for _, f := range t.schema.Fields() {
		if !f.Type.Kind.IsScalar() {
			continue
		}
		p, ok := t.schema.PropertyInfo(f.Name)
		if !ok {
			continue
		}
		cols = append(cols, column{field: p.Field, typ: f.Type})
	}
	return cols
}

// Query returns the statement Where runs for expr. A nil expr selects every
// row.
func (t *Table) Query(expr *types.Expression) (string, []interface{}, error) {
	cols := t.columns()
	names := make([]string, len(cols))
	for i, c := range cols {
		names[i] = Quote(c.field)
	}
	q := t.stmt.Select(names...).From(Quote(t.name))
	if expr != nil {
		if cond, ok := Pushdown(expr.Root(), t.schema); ok {
			q = q.Where(cond)
		}
	}
	return q.ToSql()
}

// All reads every row.
func (t *Table) All(ctx context.Context) ([]interface{}, error) {
	return t.read(ctx, nil, nil)
}

// Where reads the rows matching the boolean expression expr.
func (t *Table) Where(ctx context.Context, expr *types.Expression) ([]interface{}, error) {
	pred, err := t.builder.Predicate(expr, t.Model())
	if err != nil {
		return nil, err
	}
	return t.read(ctx, expr, pred)
}

func (t *Table) read(ctx context.Context, expr *types.Expression, pred *native.Expression) ([]interface{}, error) {
	query, args, err := t.Query(expr)
	if err != nil {
		return nil, fmt.Errorf("sqlsource: build query: %w", err)
	}
	t.logger.Debug("querying table", "table", t.name, "sql", query, "args", len(args))

	rows, err := t.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlsource: query %s: %w", t.name, err)
	}
	defer rows.Close()

	cols := t.columns()
	var out []interface{}
	for rows.Next() {
		raw := make([]interface{}, len(cols))
		ptrs := make([]interface{}, len(cols))
		for i := range raw {
			ptrs[i] = &raw[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("sqlsource: scan %s: %w", t.name, err)
		}
		row := make(map[string]interface{}, len(cols))
		for i, c := range cols {
			v, err := accessor.Coerce(raw[i], c.typ)
			if err != nil {
				return nil, fmt.Errorf("sqlsource: column %s: %w", c.field, err)
			}
			row[c.field] = v
		}
		if pred != nil {
			ok, err := pred.Match(row)
			if err != nil {
				return nil, err
			}
			if !ok {
				continue
			}
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlsource: read %s: %w", t.name, err)
	}
	return out, nil
}

// Quote quotes an SQL identifier.
func Quote(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// Pushdown translates the part of a condition that SQL can evaluate. The
// returned clause selects a superset of the rows the condition selects;
// ok is false when nothing can be pushed.
//
// Pushed are comparisons between a top-level scalar member and a literal,
// joined with and/or. A conjunction keeps its pushable side; a disjunction
// is pushed only when both sides are.
func Pushdown(n types.Node, acc accessor.TypeAccessor) (sq.Sqlizer, bool) {
	switch x := n.(type) {
	case *types.Logical:
		l, lok := Pushdown(x.Left, acc)
		r, rok := Pushdown(x.Right, acc)
		if x.Op == types.OpOr {
			if !lok || !rok {
				return nil, false
			}
			return sq.Or{l, r}, true
		}
		switch {
		case lok && rok:
			return sq.And{l, r}, true
		case lok:
			return l, true
		case rok:
			return r, true
		}
		return nil, false
	case *types.Comparison:
		return comparison(x, acc)
	default:
		return nil, false
	}
}

var flipped = map[types.CompareOp]types.CompareOp{
	types.OpEqual:        types.OpEqual,
	types.OpNotEqual:     types.OpNotEqual,
	types.OpGreater:      types.OpLess,
	types.OpLess:         types.OpGreater,
	types.OpGreaterEqual: types.OpLessEqual,
	types.OpLessEqual:    types.OpGreaterEqual,
}

func comparison(n *types.Comparison, acc accessor.TypeAccessor) (sq.Sqlizer, bool) {
	op := n.Op
	prop, lit := member(n.Left), literal(n.Right)
	if prop == nil || lit == nil {
		f, ok := flipped[op]
		if !ok {
			return nil, false
		}
		op = f
		prop, lit = member(n.Right), literal(n.Left)
	}
	if prop == nil || lit == nil {
		return nil, false
	}
	p, ok := acc.PropertyInfo(prop.Name)
	if !ok {
		return nil, false
	}
	col := Quote(p.Field)

	if lit.Kind == types.LiteralNull {
		switch op {
		case types.OpEqual:
			return sq.Eq{col: nil}, true
		case types.OpNotEqual:
			return sq.NotEq{col: nil}, true
		}
		return nil, false
	}

	arg, ok := argument(p.Type.Kind, lit)
	if !ok {
		return nil, false
	}
	switch op {
	case types.OpEqual:
		return sq.Eq{col: arg}, true
	case types.OpNotEqual:
		// A missing value differs from any literal.
		return sq.Or{sq.NotEq{col: arg}, sq.Eq{col: nil}}, true
	case types.OpGreater:
		return sq.Gt{col: arg}, true
	case types.OpLess:
		return sq.Lt{col: arg}, true
	case types.OpGreaterEqual:
		return sq.GtOrEq{col: arg}, true
	case types.OpLessEqual:
		return sq.LtOrEq{col: arg}, true
	}

	s, ok := arg.(string)
	if !ok {
		return nil, false
	}
	pattern := escapeLike(s)
	switch op {
	case types.OpContains:
		pattern = "%" + pattern + "%"
	case types.OpStartsWith:
		pattern += "%"
	default:
		pattern = "%" + pattern
	}
	return sq.Expr(col+` LIKE ? ESCAPE '\'`, pattern), true
}

// argument converts a literal compared with a member of kind k, reporting
// false when the database comparison could differ from the in-memory one.
func argument(k types.Kind, lit *types.Literal) (interface{}, bool) {
	switch k {
	case types.KindInt, types.KindLong:
		v, ok := lit.Value.(int64)
		return v, ok
	case types.KindDouble:
		switch v := lit.Value.(type) {
		case int64:
			return float64(v), true
		case decimal.Decimal:
			return v.InexactFloat64(), true
		}
	case types.KindString:
		v, ok := lit.Value.(string)
		return v, ok
	case types.KindBool:
		v, ok := lit.Value.(bool)
		return v, ok
	}
	return nil, false
}

func member(n types.Node) *types.Property {
	switch x := n.(type) {
	case *types.Property:
		return x
	case *types.Navigation:
		if len(x.Steps) == 1 {
			return member(x.Steps[0])
		}
	}
	return nil
}

func literal(n types.Node) *types.Literal {
	lit, _ := n.(*types.Literal)
	return lit
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
