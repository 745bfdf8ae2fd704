// Package projection combines independent expressions into one
// multi-column projection.
//
// Column 0 is always the identifier of the projected element; column i+1
// holds expression i. Every column carries either a built artifact or the
// error that prevented building it, so one broken expression never aborts
// the batch.
//
// # Example
//
//	o := projection.New[*native.Expression](native.New())
//	p := o.Compile(accessor.TypeFor[Customer](), []string{"Name", "Orders:count"})
//	row, err := projection.Evaluate(p, customer)
package projection

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/sandrolain/goshape/pkg/cache"
	"github.com/sandrolain/goshape/pkg/parser"
	"github.com/sandrolain/goshape/pkg/types"
)

// Backend builds artifacts of type A. Both native.Builder and
// document.Builder satisfy it.
type Backend[A any] interface {
	// Build translates an expression against elements of type model.
	Build(expr *types.Expression, model *types.Type) (A, error)
	// Property reads the member stored under the physical name name.
	Property(name string, model *types.Type) (A, error)
}

// DefaultIDProperty is the identifier read into column 0 unless configured.
const DefaultIDProperty = "Id"

// Orchestrator compiles projections and memoises their columns.
//
// Safe for concurrent use by multiple goroutines.
type Orchestrator[A any] struct {
	backend         Backend[A]
	idProperty      string
	defaultProperty string
	parseOpts       []parser.CompileOption
	logger          *slog.Logger

	parsed *cache.Cache[string, *types.Expression]
	built  *cache.Cache[key, A]
}

// key identifies a built column. Direct keys are physical property names
// read without parsing.
type key struct {
	text   string
	direct bool
	model  *types.Type
}

// Option configures an Orchestrator.
type Option func(*options)

type options struct {
	cacheSize       int
	idProperty      string
	defaultProperty string
	parseOpts       []parser.CompileOption
	logger          *slog.Logger
}

// WithCacheSize sets the capacity of the parse and build caches.
func WithCacheSize(n int) Option {
	return func(o *options) {
		o.cacheSize = n
	}
}

// WithIDProperty sets the physical name of the identifier read into column 0.
func WithIDProperty(name string) Option {
	return func(o *options) {
		o.idProperty = name
	}
}

// WithDefaultProperty sets the physical property read for an empty
// expression. It defaults to the identifier property.
func WithDefaultProperty(name string) Option {
	return func(o *options) {
		o.defaultProperty = name
	}
}

// WithParserOptions sets the options used to parse every expression.
func WithParserOptions(opts ...parser.CompileOption) Option {
	return func(o *options) {
		o.parseOpts = append(o.parseOpts, opts...)
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// New creates an orchestrator over backend.
func New[A any](backend Backend[A], opts ...Option) *Orchestrator[A] {
	o := options{
		cacheSize:  cache.DefaultCapacity,
		idProperty: DefaultIDProperty,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.defaultProperty == "" {
		o.defaultProperty = o.idProperty
	}
	return &Orchestrator[A]{
		backend:         backend,
		idProperty:      o.idProperty,
		defaultProperty: o.defaultProperty,
		parseOpts:       o.parseOpts,
		logger:          o.logger,
		parsed:          cache.New[string, *types.Expression](o.cacheSize),
		built:           cache.New[key, A](o.cacheSize),
	}
}

// Column is one column of a projection.
type Column[A any] struct {
	// Expression is the source text, or the physical property name for the
	// identifier and for substituted empty expressions.
	Expression string
	Artifact   A
	Err        error
}

// OK reports whether the column was built.
func (c Column[A]) OK() bool {
	return c.Err == nil
}

// Projection is a compiled batch of expressions.
type Projection[A any] struct {
	Model   *types.Type
	Columns []Column[A]
}

// Len returns the number of columns, identifier included.
func (p *Projection[A]) Len() int {
	return len(p.Columns)
}

// Err joins the errors of every column that failed to build, or returns nil.
func (p *Projection[A]) Err() error {
	var errs []error
	for i, c := range p.Columns {
		if c.Err != nil {
			errs = append(errs, fmt.Errorf("column %d (%q): %w", i, c.Expression, c.Err))
		}
	}
	return errors.Join(errs...)
}

// Compile builds the identifier column followed by one column per
// expression. Parse and build failures are recorded on their column.
func (o *Orchestrator[A]) Compile(model *types.Type, exprs []string) *Projection[A] {
	p := &Projection[A]{
		Model:   model,
		Columns: make([]Column[A], 0, len(exprs)+1),
	}
	p.Columns = append(p.Columns, o.property(o.idProperty, model))
	for _, src := range exprs {
		if src == "" {
			p.Columns = append(p.Columns, o.property(o.defaultProperty, model))
			continue
		}
		p.Columns = append(p.Columns, o.expression(src, model))
	}
	return p
}

// Column builds a single expression, using the caches.
func (o *Orchestrator[A]) Column(model *types.Type, src string) Column[A] {
	if src == "" {
		return o.property(o.defaultProperty, model)
	}
	return o.expression(src, model)
}

func (o *Orchestrator[A]) property(name string, model *types.Type) Column[A] {
	a, err := o.built.GetOrAdd(key{text: name, direct: true, model: model}, func() (A, error) {
		return o.backend.Property(name, model)
	})
	if err != nil {
		o.logger.Debug("property column failed", "property", name, "model", model.String(), "error", err)
	}
	return Column[A]{Expression: name, Artifact: a, Err: err}
}

func (o *Orchestrator[A]) expression(src string, model *types.Type) Column[A] {
	a, err := o.built.GetOrAdd(key{text: src, model: model}, func() (A, error) {
		expr, err := o.parsed.GetOrAdd(src, func() (*types.Expression, error) {
			return parser.Parse(src, o.parseOpts...)
		})
		if err != nil {
			var zero A
			return zero, err
		}
		return o.backend.Build(expr, model)
	})
	if err != nil {
		o.logger.Debug("expression column failed", "expression", src, "model", model.String(), "error", err)
	}
	return Column[A]{Expression: src, Artifact: a, Err: err}
}

// Stats returns the counters of the build cache.
func (o *Orchestrator[A]) Stats() cache.Stats {
	return o.built.Stats()
}

// Reset empties both caches.
func (o *Orchestrator[A]) Reset() {
	o.parsed.Clear()
	o.built.Clear()
}
