// Package document translates expressions into MongoDB-style aggregation
// expressions.
//
// The output is built from the ordered D and A types, so it can be rendered
// as JSON or converted to a driver's document type by walking it. Type
// checking is shared with the native backend: both accept and reject the
// same programs.
//
// # Example
//
//	expr, _ := parser.Parse("Orders(Status = 'Paid'):sum(Total)")
//	doc, err := document.New().Build(expr, accessor.TypeFor[Customer]())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	stage, _ := json.Marshal(doc.Match())
//
// Run-time failures (null references, division by zero) are left to the
// store executing the pipeline.
package document

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strconv"
	"strings"
	"unicode"

	"github.com/sandrolain/goshape/pkg/accessor"
	"github.com/sandrolain/goshape/pkg/build"
	"github.com/sandrolain/goshape/pkg/types"
)

// E is one member of a D.
type E struct {
	Key   string
	Value interface{}
}

// D is an ordered document. Aggregation operators are single-member
// documents, so order matters for readability and for the store.
type D []E

// A is an array.
type A []interface{}

// MarshalJSON renders the members in order.
func (d D) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, e := range d {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.WriteString(strconv.Quote(e.Key))
		buf.WriteByte(':')
		b, err := json.Marshal(e.Value)
		if err != nil {
			return nil, err
		}
		buf.Write(b)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Get returns the value of the member called key.
func (d D) Get(key string) (interface{}, bool) {
	for _, e := range d {
		if e.Key == key {
			return e.Value, true
		}
	}
	return nil, false
}

// op builds a single-operator document.
func op(name string, arg interface{}) D {
	return D{{Key: name, Value: arg}}
}

// current is the access of the document being evaluated.
const current = "$$CURRENT"

// Builder translates expressions.
type Builder struct {
	lookup accessor.Lookup
	logger *slog.Logger
}

// Option configures a Builder.
type Option func(*Builder)

// WithLookup sets the accessor lookup used to resolve properties.
func WithLookup(l accessor.Lookup) Option {
	return func(b *Builder) {
		b.lookup = l
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Builder) {
		b.logger = logger
	}
}

// New creates a builder.
func New(opts ...Option) *Builder {
	b := &Builder{
		lookup: accessor.Default,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Document is a translated expression.
type Document struct {
	expr   interface{}
	typ    *types.Type
	source string
}

// Expr returns the aggregation expression.
func (d *Document) Expr() interface{} {
	return d.expr
}

// Type returns the static result type.
func (d *Document) Type() *types.Type {
	return d.typ
}

// Source returns the text the expression was parsed from.
func (d *Document) Source() string {
	return d.source
}

// Match wraps a boolean expression into a $match stage.
func (d *Document) Match() D {
	return op("$match", op("$expr", d.expr))
}

// MarshalJSON renders the aggregation expression.
func (d *Document) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.expr)
}

// String returns the JSON form of the expression.
func (d *Document) String() string {
	b, err := d.MarshalJSON()
	if err != nil {
		return "<invalid: " + err.Error() + ">"
	}
	return string(b)
}

// Build translates expr against documents of type model.
func (b *Builder) Build(expr *types.Expression, model *types.Type) (*Document, error) {
	ctx := build.NewContext(model, current, b.lookup)
	r, err := build.Visit[interface{}](&visitor{}, expr.Root(), ctx)
	if err != nil {
		b.logger.Debug("build failed", "expression", expr.Source(), "model", model.String(), "error", err)
		return nil, err
	}
	b.logger.Debug("built document", "expression", expr.Source(), "model", model.String(), "type", r.Type.String())
	return &Document{expr: r.Value, typ: r.Type, source: expr.Source()}, nil
}

// Predicate translates a boolean expression.
func (b *Builder) Predicate(expr *types.Expression, model *types.Type) (*Document, error) {
	d, err := b.Build(expr, model)
	if err != nil {
		return nil, err
	}
	if err := build.Condition(d.typ, expr.Root().Pos()); err != nil {
		return nil, err
	}
	return d, nil
}

// Property translates a read of the member stored under the physical name
// name, bypassing aliases.
func (b *Builder) Property(name string, model *types.Type) (*Document, error) {
	ctx := build.NewContext(model, current, b.lookup)
	p, err := ctx.ResolveDirect(model, name, 0)
	if err != nil {
		return nil, err
	}
	return &Document{expr: field(current, stored(p)), typ: p.Type, source: name}, nil
}

// stored returns the name a property is stored under.
func stored(p *accessor.Property) string {
	if p.Field != "" {
		return p.Field
	}
	return p.Name
}

// field reads the member name of input. Plain names on variable paths
// become dotted field paths; anything else goes through $getField.
func field(input interface{}, name string) interface{} {
	if s, ok := input.(string); ok && plain(name) && strings.HasPrefix(s, "$") {
		if s == current {
			return "$" + name
		}
		return s + "." + name
	}
	var f interface{} = name
	if strings.HasPrefix(name, "$") {
		f = op("$literal", name)
	}
	return op("$getField", D{{"field", f}, {"input", input}})
}

func plain(name string) bool {
	if name == "" {
		return false
	}
	for i, r := range name {
		if r == '_' || unicode.IsLetter(r) || (i > 0 && unicode.IsDigit(r)) {
			continue
		}
		return false
	}
	return true
}

// variable returns the name and the access of the variable bound by the
// next element scope of ctx.
func variable(ctx build.Context, prefix string) (name, access string) {
	name = prefix + strconv.Itoa(ctx.Scope+1)
	return name, "$$" + name
}

// enter opens an element scope over elements of type elem bound to a
// fresh variable.
func enter(ctx build.Context, elem *types.Type) (build.Context, string) {
	name, access := variable(ctx, "e")
	return ctx.Enter(elem, access), name
}

// orEmpty substitutes an empty array for a missing collection.
func orEmpty(x interface{}) interface{} {
	return op("$ifNull", A{x, A{}})
}

// mapOver builds {$map: {input, as, in}}.
func mapOver(input interface{}, as string, in interface{}) D {
	return op("$map", D{{"input", input}, {"as", as}, {"in", in}})
}

// quote protects string constants the store would read as field paths.
func quote(s string) interface{} {
	if strings.HasPrefix(s, "$") {
		return op("$literal", s)
	}
	return s
}

// constant protects projection members the store would read as inclusion
// flags.
func constant(v interface{}) interface{} {
	switch v.(type) {
	case bool, int, int64, nil:
		return op("$literal", v)
	}
	return v
}

// convert wraps x in the conversion operator producing kind k.
func convert(x interface{}, k types.Kind) interface{} {
	switch k {
	case types.KindInt:
		return op("$toInt", x)
	case types.KindLong:
		return op("$toLong", x)
	case types.KindFloat, types.KindDouble:
		return op("$toDouble", x)
	case types.KindDecimal:
		return op("$toDecimal", x)
	case types.KindString:
		return op("$toString", x)
	case types.KindDateTime:
		return op("$toDate", x)
	case types.KindBool:
		return op("$toBool", x)
	default:
		return x
	}
}

// visitor implements build.Visitor for aggregation expressions.
type visitor struct{}

var _ build.Visitor[interface{}] = (*visitor)(nil)

type result = build.Result[interface{}]
