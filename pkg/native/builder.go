// Package native compiles expressions into Go closures that evaluate them
// directly against in-memory values.
//
// # Example
//
//	expr, _ := parser.Parse("Orders(Status = 'Paid'):sum(Total)")
//	compiled, err := native.New().Build(expr, accessor.TypeFor[Customer]())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	total, err := compiled.Eval(customer)
//
// # Concurrency
//
// A Builder and the Expressions it returns are safe for concurrent use.
package native

import (
	"log/slog"
	"strings"
	"time"

	"github.com/goodsign/monday"
	"golang.org/x/text/language"

	"github.com/sandrolain/goshape/pkg/accessor"
	"github.com/sandrolain/goshape/pkg/build"
	"github.com/sandrolain/goshape/pkg/types"
)

// Func is a compiled node. It receives the value of its scope (the root
// value, or the element being filtered, selected or projected) and returns
// the node's value.
type Func func(in interface{}) (interface{}, error)

// Builder compiles expressions.
type Builder struct {
	lookup accessor.Lookup
	locale language.Tag
	dates  monday.Locale
	now    func() time.Time
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

// WithLocale sets the language used by upper, lower and format.
func WithLocale(tag language.Tag) Option {
	return func(b *Builder) {
		b.locale = tag
		b.dates = mondayLocale(tag)
	}
}

// WithClock sets the clock daysAgo measures against.
func WithClock(now func() time.Time) Option {
	return func(b *Builder) {
		b.now = now
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
		locale: language.AmericanEnglish,
		dates:  monday.LocaleEnUS,
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Expression is a compiled expression.
type Expression struct {
	fn     Func
	typ    *types.Type
	source string
}

// Eval evaluates the expression against obj.
func (e *Expression) Eval(obj interface{}) (interface{}, error) {
	return e.fn(obj)
}

// Type returns the static result type.
func (e *Expression) Type() *types.Type {
	return e.typ
}

// Source returns the text the expression was parsed from.
func (e *Expression) Source() string {
	return e.source
}

// Match evaluates a boolean expression. A nil result is false.
func (e *Expression) Match(obj interface{}) (bool, error) {
	v, err := e.fn(obj)
	if err != nil {
		return false, err
	}
	return truthy(v), nil
}

// Build compiles expr against values of type model.
func (b *Builder) Build(expr *types.Expression, model *types.Type) (*Expression, error) {
	ctx := build.NewContext(model, Func(identity), b.lookup)
	r, err := build.Visit[Func](&visitor{b: b}, expr.Root(), ctx)
	if err != nil {
		b.logger.Debug("build failed", "expression", expr.Source(), "model", model.String(), "error", err)
		return nil, err
	}
	b.logger.Debug("built expression", "expression", expr.Source(), "model", model.String(), "type", r.Type.String())
	return &Expression{fn: r.Value, typ: r.Type, source: expr.Source()}, nil
}

// Predicate compiles a boolean expression.
func (b *Builder) Predicate(expr *types.Expression, model *types.Type) (*Expression, error) {
	e, err := b.Build(expr, model)
	if err != nil {
		return nil, err
	}
	if err := build.Condition(e.typ, expr.Root().Pos()); err != nil {
		return nil, err
	}
	return e, nil
}

// Property compiles a read of the member stored under the physical name
// name, bypassing aliases.
func (b *Builder) Property(name string, model *types.Type) (*Expression, error) {
	ctx := build.NewContext(model, Func(identity), b.lookup)
	p, err := ctx.ResolveDirect(model, name, 0)
	if err != nil {
		return nil, err
	}
	get := p.Get
	fn := func(in interface{}) (interface{}, error) {
		if in == nil {
			return nil, nullRef("reading "+name, 0)
		}
		return get(in)
	}
	return &Expression{fn: fn, typ: p.Type, source: name}, nil
}

var mondayLocales = map[string]monday.Locale{
	"en":    monday.LocaleEnUS,
	"en_gb": monday.LocaleEnGB,
	"de":    monday.LocaleDeDE,
	"fr":    monday.LocaleFrFR,
	"fr_ca": monday.LocaleFrCA,
	"es":    monday.LocaleEsES,
	"it":    monday.LocaleItIT,
	"pt":    monday.LocalePtPT,
	"pt_br": monday.LocalePtBR,
	"nl":    monday.LocaleNlNL,
	"ru":    monday.LocaleRuRU,
	"pl":    monday.LocalePlPL,
	"sv":    monday.LocaleSvSE,
	"da":    monday.LocaleDaDK,
	"fi":    monday.LocaleFiFI,
	"ja":    monday.LocaleJaJP,
	"zh":    monday.LocaleZhCN,
	"zh_tw": monday.LocaleZhTW,
	"ko":    monday.LocaleKoKR,
}

// mondayLocale maps a language tag to the closest monday locale, falling
// back to the base language and then to US English.
func mondayLocale(tag language.Tag) monday.Locale {
	base, _ := tag.Base()
	region, _ := tag.Region()
	key := strings.ToLower(base.String() + "_" + region.String())
	if l, ok := mondayLocales[key]; ok {
		return l
	}
	if l, ok := mondayLocales[base.String()]; ok {
		return l
	}
	return monday.LocaleEnUS
}

// visitor implements build.Visitor for closures.
type visitor struct {
	b *Builder
}

var _ build.Visitor[Func] = (*visitor)(nil)

type result = build.Result[Func]

func access(ctx build.Context) Func {
	return ctx.Access.(Func)
}

func (v *visitor) VisitProperty(n *types.Property, ctx build.Context) (result, error) {
	if ctx.Type.Kind == types.KindGroup && ctx.Group != nil {
		return v.groupMember(n, ctx)
	}

	src := access(ctx)
	guarded := ctx.Guarded
	pos := n.Position
	name := n.Name

	if ctx.Type.Kind == types.KindCollection {
		p, err := ctx.Resolve(ctx.Type.Elem, name, pos)
		if err != nil {
			return result{}, err
		}
		get := p.Get
		flatten := p.Type.IsCollection()
		elem := p.Type
		if flatten {
			elem = p.Type.Elem
		}
		fn := func(in interface{}) (interface{}, error) {
			c, err := src(in)
			if err != nil {
				return nil, err
			}
			list, ok, err := items(c, guarded, "reading "+name, pos)
			if !ok {
				return nil, err
			}
			out := make([]interface{}, 0, len(list))
			for _, item := range list {
				if item == nil {
					if !guarded {
						return nil, nullRef("reading "+name, pos)
					}
					out = append(out, nil)
					continue
				}
				x, err := get(item)
				if err != nil {
					return nil, atPos(err, pos)
				}
				if xs, ok := x.([]interface{}); ok && flatten {
					out = append(out, xs...)
				} else if !flatten {
					out = append(out, x)
				}
			}
			return out, nil
		}
		t := types.CollectionOf(elem).WithNullable(ctx.Type.Nullable || guarded)
		return result{Type: t, Value: fn}, nil
	}

	p, err := ctx.Resolve(ctx.Type, name, pos)
	if err != nil {
		return result{}, err
	}
	get := p.Get
	fn := func(in interface{}) (interface{}, error) {
		o, err := src(in)
		if err != nil {
			return nil, err
		}
		if o == nil {
			if guarded {
				return nil, nil
			}
			return nil, nullRef("reading "+name, pos)
		}
		x, err := get(o)
		return x, atPos(err, pos)
	}
	t := p.Type
	if guarded || n.NullSafe {
		t = t.WithNullable(true)
	}
	return result{Type: t, Value: fn}, nil
}

func (v *visitor) VisitNavigation(n *types.Navigation, ctx build.Context) (result, error) {
	return build.Navigate[Func](v, n, ctx)
}

func (v *visitor) VisitFilter(n *types.Filter, ctx build.Context) (result, error) {
	src, err := build.Visit[Func](v, n.Source, ctx)
	if err != nil {
		return result{}, err
	}
	ct, err := build.Elements(src.Type, n.Position)
	if err != nil {
		return result{}, err
	}
	cond, err := build.Visit[Func](v, n.Condition, ctx.Enter(ct.Elem, Func(identity)))
	if err != nil {
		return result{}, err
	}
	if err := build.Condition(cond.Type, n.Condition.Pos()); err != nil {
		return result{}, err
	}

	guarded := ctx.Guarded || build.NullSafe(n.Source)
	pos := n.Position
	fn := func(in interface{}) (interface{}, error) {
		c, err := src.Value(in)
		if err != nil {
			return nil, err
		}
		list, ok, err := items(c, guarded, "filter", pos)
		if !ok {
			return nil, err
		}
		out := make([]interface{}, 0, len(list))
		for _, item := range list {
			keep, err := cond.Value(item)
			if err != nil {
				return nil, err
			}
			if truthy(keep) {
				out = append(out, item)
			}
		}
		return out, nil
	}
	return result{Type: ct.WithNullable(ct.Nullable || guarded), Value: fn}, nil
}

func (v *visitor) VisitIndexer(n *types.Indexer, ctx build.Context) (result, error) {
	src, err := build.Visit[Func](v, n.Source, ctx)
	if err != nil {
		return result{}, err
	}
	ct, err := build.Elements(src.Type, n.Position)
	if err != nil {
		return result{}, err
	}
	p, err := ctx.Resolve(ct.Elem, n.OrderBy, n.Position)
	if err != nil {
		return result{}, err
	}

	get := p.Get
	k := p.Type.Kind
	guarded := ctx.Guarded || build.NullSafe(n.Source)
	pos := n.Position
	sortBy := func(list []interface{}) ([]interface{}, error) {
		return stableSort(list, get, k, n.Descending, pos)
	}

	var fn Func
	t := ct.WithNullable(ct.Nullable || guarded)
	switch n.Mode {
	case types.IndexSingle:
		t = ct.Elem.WithNullable(true)
		last := n.Skip < 0
		fn = func(in interface{}) (interface{}, error) {
			list, _, err := collect(src.Value, in, guarded, pos)
			if err != nil || len(list) == 0 {
				return nil, err
			}
			sorted, err := sortBy(list)
			if err != nil {
				return nil, err
			}
			if last {
				return sorted[len(sorted)-1], nil
			}
			return sorted[0], nil
		}
	case types.IndexRange:
		skip, take := n.Skip, n.Take
		fn = func(in interface{}) (interface{}, error) {
			list, ok, err := collect(src.Value, in, guarded, pos)
			if !ok {
				return nil, err
			}
			sorted, err := sortBy(list)
			if err != nil {
				return nil, err
			}
			lo := min(skip, len(sorted))
			hi := min(lo+take, len(sorted))
			return sorted[lo:hi], nil
		}
	default:
		fn = func(in interface{}) (interface{}, error) {
			list, ok, err := collect(src.Value, in, guarded, pos)
			if !ok {
				return nil, err
			}
			return sortBy(list)
		}
	}
	return result{Type: t, Value: fn}, nil
}

// collect evaluates a collection-valued source. ok is false when the
// collection is nil (and guarded) or on error.
func collect(src Func, in interface{}, guarded bool, pos int) (list []interface{}, ok bool, err error) {
	c, err := src(in)
	if err != nil {
		return nil, false, err
	}
	return items(c, guarded, "collection", pos)
}

func (v *visitor) VisitLiteral(n *types.Literal, _ build.Context) (result, error) {
	switch n.Kind {
	case types.LiteralNull:
		return result{Type: types.Null, Value: constant(nil)}, nil
	case types.LiteralBool:
		return result{Type: types.Bool, Value: constant(n.Value)}, nil
	case types.LiteralInt:
		i := n.Value.(int64)
		if int64(int32(i)) == i {
			return result{Type: types.Int, Value: constant(int(i))}, nil
		}
		return result{Type: types.Long, Value: constant(i)}, nil
	case types.LiteralDecimal:
		return result{Type: types.Decimal, Value: constant(n.Value)}, nil
	case types.LiteralString:
		return result{Type: types.String, Value: constant(n.Value)}, nil
	default:
		return result{}, types.Errorf(types.ErrUnsupportedNode, n.Position, "unsupported literal %q", n.Text)
	}
}

func (v *visitor) VisitComparison(n *types.Comparison, ctx build.Context) (result, error) {
	l, err := build.Visit[Func](v, n.Left, ctx)
	if err != nil {
		return result{}, err
	}
	r, err := build.Visit[Func](v, n.Right, ctx)
	if err != nil {
		return result{}, err
	}
	k, err := build.ComparisonKind(n.Op, l.Type, r.Type, n.Position)
	if err != nil {
		return result{}, err
	}

	lf, rf := l.Value, r.Value
	if k == types.KindDateTime {
		if lf, err = dateOperand(n.Left, lf); err != nil {
			return result{}, err
		}
		if rf, err = dateOperand(n.Right, rf); err != nil {
			return result{}, err
		}
	}

	op := n.Op
	pos := n.Position
	fn := func(in interface{}) (interface{}, error) {
		a, err := lf(in)
		if err != nil {
			return nil, err
		}
		b, err := rf(in)
		if err != nil {
			return nil, err
		}
		ok, err := compare(op, a, b, k)
		return ok, atPos(err, pos)
	}
	return result{Type: types.Bool, Value: fn}, nil
}

// dateOperand parses a string literal compared with a date once, at build
// time.
func dateOperand(n types.Node, fn Func) (Func, error) {
	lit, ok := n.(*types.Literal)
	if !ok || lit.Kind != types.LiteralString {
		return fn, nil
	}
	t, ok := types.ToTime(lit.Value)
	if !ok {
		return nil, types.Errorf(types.ErrTypeMismatch, lit.Position, "%q is not a date", lit.Value).WithToken(lit.Text)
	}
	return constant(t), nil
}

func (v *visitor) VisitLogical(n *types.Logical, ctx build.Context) (result, error) {
	l, err := build.Visit[Func](v, n.Left, ctx)
	if err != nil {
		return result{}, err
	}
	if err := build.Condition(l.Type, n.Left.Pos()); err != nil {
		return result{}, err
	}
	r, err := build.Visit[Func](v, n.Right, ctx)
	if err != nil {
		return result{}, err
	}
	if err := build.Condition(r.Type, n.Right.Pos()); err != nil {
		return result{}, err
	}

	and := n.Op == types.OpAnd
	fn := func(in interface{}) (interface{}, error) {
		a, err := l.Value(in)
		if err != nil {
			return nil, err
		}
		if truthy(a) != and {
			return !and, nil
		}
		b, err := r.Value(in)
		if err != nil {
			return nil, err
		}
		return truthy(b), nil
	}
	return result{Type: types.Bool, Value: fn}, nil
}

// converter returns a function converting values to the canonical form of
// t, or nil when no conversion is needed.
func converter(t *types.Type, pos int) func(interface{}) (interface{}, error) {
	if !t.Kind.IsScalar() {
		return nil
	}
	k := t.Kind
	return func(x interface{}) (interface{}, error) {
		c, err := types.Convert(x, k)
		return c, atPos(err, pos)
	}
}

func (v *visitor) VisitCoalesce(n *types.Coalesce, ctx build.Context) (result, error) {
	l, err := build.Visit[Func](v, n.Left, ctx)
	if err != nil {
		return result{}, err
	}
	r, err := build.Visit[Func](v, n.Right, ctx)
	if err != nil {
		return result{}, err
	}
	t, err := build.Common(l.Type, r.Type, n.Position)
	if err != nil {
		return result{}, err
	}
	t = t.WithNullable(r.Type.Nullable)

	conv := converter(t, n.Position)
	fn := func(in interface{}) (interface{}, error) {
		x, err := l.Value(in)
		if err != nil {
			return nil, err
		}
		if x == nil {
			if x, err = r.Value(in); err != nil {
				return nil, err
			}
		}
		if conv == nil {
			return x, nil
		}
		return conv(x)
	}
	return result{Type: t, Value: fn}, nil
}

func (v *visitor) VisitTernary(n *types.Ternary, ctx build.Context) (result, error) {
	c, err := build.Visit[Func](v, n.Condition, ctx)
	if err != nil {
		return result{}, err
	}
	if err := build.Condition(c.Type, n.Condition.Pos()); err != nil {
		return result{}, err
	}
	th, err := build.Visit[Func](v, n.Then, ctx)
	if err != nil {
		return result{}, err
	}
	el, err := build.Visit[Func](v, n.Else, ctx)
	if err != nil {
		return result{}, err
	}
	t, err := build.Common(th.Type, el.Type, n.Position)
	if err != nil {
		return result{}, err
	}

	conv := converter(t, n.Position)
	fn := func(in interface{}) (interface{}, error) {
		cond, err := c.Value(in)
		if err != nil {
			return nil, err
		}
		branch := el.Value
		if truthy(cond) {
			branch = th.Value
		}
		x, err := branch(in)
		if err != nil || conv == nil {
			return x, err
		}
		return conv(x)
	}
	return result{Type: t, Value: fn}, nil
}
