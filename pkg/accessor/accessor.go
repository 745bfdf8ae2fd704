// Package accessor resolves the property names used in expressions to the
// members of the model types they run against.
//
// The builders never touch reflection or map layouts directly: they ask a
// Lookup for the TypeAccessor of the current static type and use the
// returned Property to read values and to learn the member's type.
//
// Four implementations are provided:
//   - Reflector: Go structs, with `shape:"Alias"` tags for exposed names
//   - Schema: map[string]interface{} documents with a declared or inferred layout
//   - inline: records produced by projections
//   - dynamic: values whose type is unknown until run time
package accessor

import (
	"reflect"

	"github.com/sandrolain/goshape/pkg/types"
)

// Getter reads a member from a model value. It returns values in the
// canonical representation of the member's kind (see types.Convert).
type Getter func(obj interface{}) (interface{}, error)

// Property is the resolved form of one member of a model type.
type Property struct {
	// Name is the logical name used in expressions.
	Name string
	// Field is the physical member name, used by document backends.
	Field string
	Type  *types.Type
	Get   Getter
}

// TypeAccessor resolves members of a single model type.
type TypeAccessor interface {
	// PropertyInfo resolves an exposed name, honouring aliases.
	PropertyInfo(name string) (*Property, bool)
	// PropertyInfoDirect resolves a physical member name, bypassing aliases.
	PropertyInfoDirect(name string) (*Property, bool)
}

// Lookup returns the accessor for a static type.
type Lookup interface {
	Accessor(t *types.Type) (TypeAccessor, bool)
}

// LookupFunc adapts a function to the Lookup interface.
type LookupFunc func(t *types.Type) (TypeAccessor, bool)

// Accessor implements Lookup.
func (f LookupFunc) Accessor(t *types.Type) (TypeAccessor, bool) {
	return f(t)
}

// Registry is the default Lookup. It dispatches on the Ref of object types
// and falls back to inline and dynamic access.
//
// Safe for concurrent use by multiple goroutines.
type Registry struct {
	reflector *Reflector
}

// NewRegistry creates a registry with its own reflection cache.
func NewRegistry() *Registry {
	return &Registry{reflector: NewReflector()}
}

// Default is the registry used when no Lookup is configured.
var Default = NewRegistry()

// Accessor implements Lookup.
func (r *Registry) Accessor(t *types.Type) (TypeAccessor, bool) {
	if t == nil {
		return nil, false
	}
	switch ref := t.Ref.(type) {
	case reflect.Type:
		return r.reflector.accessor(ref), true
	case *Schema:
		return ref, true
	}
	switch t.Kind {
	case types.KindObject:
		if len(t.Fields) > 0 {
			return inline{t: t}, true
		}
		return dynamic{reflector: r.reflector}, true
	case types.KindUnknown:
		return dynamic{reflector: r.reflector}, true
	default:
		return nil, false
	}
}

// TypeOf returns the static type of the Go type of v.
func (r *Registry) TypeOf(v interface{}) *types.Type {
	return r.reflector.TypeOf(reflect.TypeOf(v))
}

// TypeOf returns the static type of the Go type of v using Default.
func TypeOf(v interface{}) *types.Type {
	return Default.TypeOf(v)
}

// TypeFor returns the static type of T using Default.
func TypeFor[T any]() *types.Type {
	return Default.reflector.TypeOf(reflect.TypeFor[T]())
}
