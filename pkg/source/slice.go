// Package source provides queryable element sequences that execute built
// expressions.
//
// Sources own cancellation: the context passed to a query is checked here
// between elements and never reaches the builders.
package source

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"

	"github.com/panjf2000/ants/v2"

	"github.com/sandrolain/goshape/pkg/accessor"
	"github.com/sandrolain/goshape/pkg/native"
	"github.com/sandrolain/goshape/pkg/projection"
	"github.com/sandrolain/goshape/pkg/types"
)

// Option configures a Slice.
type Option func(*options)

type options struct {
	workers int
	model   *types.Type
	logger  *slog.Logger
}

// WithWorkers bounds the number of elements evaluated in parallel.
func WithWorkers(n int) Option {
	return func(o *options) {
		o.workers = n
	}
}

// WithModel sets the element type, for slices of documents whose type
// cannot be reflected, such as decoded JSON.
func WithModel(t *types.Type) Option {
	return func(o *options) {
		o.model = t
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// Slice is an in-memory sequence of elements of type T.
type Slice[T any] struct {
	items   []T
	model   *types.Type
	workers int
	logger  *slog.Logger
}

// NewSlice wraps items. The model type defaults to the reflected type of T.
func NewSlice[T any](items []T, opts ...Option) *Slice[T] {
	o := options{
		workers: runtime.GOMAXPROCS(0),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.model == nil {
		o.model = accessor.TypeFor[T]()
	}
	if o.workers < 1 {
		o.workers = 1
	}
	return &Slice[T]{items: items, model: o.model, workers: o.workers, logger: o.logger}
}

// Model returns the element type expressions must be built against.
func (s *Slice[T]) Model() *types.Type {
	return s.model
}

// Len returns the number of elements.
func (s *Slice[T]) Len() int {
	return len(s.items)
}

// Where returns the elements matching pred, in order.
func (s *Slice[T]) Where(ctx context.Context, pred *native.Expression) ([]T, error) {
	keep := make([]bool, len(s.items))
	err := s.each(ctx, func(i int) error {
		ok, err := pred.Match(s.items[i])
		if err != nil {
			return fmt.Errorf("element %d: %w", i, err)
		}
		keep[i] = ok
		return nil
	})
	if err != nil {
		return nil, err
	}
	var out []T
	for i, ok := range keep {
		if ok {
			out = append(out, s.items[i])
		}
	}
	return out, nil
}

// Select evaluates expr against every element.
func (s *Slice[T]) Select(ctx context.Context, expr *native.Expression) ([]interface{}, error) {
	out := make([]interface{}, len(s.items))
	err := s.each(ctx, func(i int) error {
		v, err := expr.Eval(s.items[i])
		if err != nil {
			return fmt.Errorf("element %d: %w", i, err)
		}
		out[i] = v
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Project evaluates a projection against every element and returns the raw
// rows. Evaluation errors null their cell and are joined into the returned
// error; the rows are returned regardless.
func (s *Slice[T]) Project(ctx context.Context, p *projection.Projection[*native.Expression]) ([][]interface{}, error) {
	rows := make([][]interface{}, len(s.items))
	errs := make([]error, len(s.items))
	err := s.each(ctx, func(i int) error {
		row, err := projection.Evaluate(p, s.items[i])
		rows[i] = row
		if err != nil {
			errs[i] = fmt.Errorf("element %d: %w", i, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rows, errors.Join(errs...)
}

// each runs fn for every index on a bounded worker pool. The first error,
// or the cancellation of ctx, stops the submission of further elements.
func (s *Slice[T]) each(ctx context.Context, fn func(i int) error) error {
	if len(s.items) == 0 {
		return ctx.Err()
	}
	var (
		mu       sync.Mutex
		firstErr error
		wg       sync.WaitGroup
	)
	fail := func(err error) {
		mu.Lock()
		if firstErr == nil {
			firstErr = err
		}
		mu.Unlock()
	}
	failed := func() bool {
		mu.Lock()
		defer mu.Unlock()
		return firstErr != nil
	}

	pool, err := ants.NewPool(min(s.workers, len(s.items)))
	if err != nil {
		return err
	}
	defer pool.Release()

	for i := range s.items {
		if err := ctx.Err(); err != nil {
			fail(err)
			break
		}
		if failed() {
			break
		}
		wg.Add(1)
		if err := pool.Submit(func() {
			defer wg.Done()
			defer func() {
				if v := recover(); v != nil {
					s.logger.Error("element evaluation panic", "element", i, "panic", v)
					fail(fmt.Errorf("element %d: panic: %v", i, v))
				}
			}()
			if ctx.Err() != nil {
				return
			}
			if err := fn(i); err != nil {
				fail(err)
			}
		}); err != nil {
			wg.Done()
			fail(err)
			break
		}
	}
	wg.Wait()
	mu.Lock()
	defer mu.Unlock()
	if firstErr == nil {
		// Cancelled while the last elements were running.
		firstErr = ctx.Err()
	}
	return firstErr
}
