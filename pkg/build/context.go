// Package build holds what the expression builders have in common: the
// build context threaded through the tree, the visitor dispatch and the
// static typing rules.
//
// A backend implements Visitor[A], where A is the artifact it produces for
// each node (a compiled function, a document fragment, ...). Type checking
// lives here so that every backend accepts and rejects the same programs.
package build

import (
	"github.com/sandrolain/goshape/pkg/accessor"
	"github.com/sandrolain/goshape/pkg/types"
)

// MaxDepth bounds the nesting of nodes visited while building.
const MaxDepth = 200

// GroupContext describes the group being projected inside a projection over
// a group-by. Key and Elements are backend handles that read the key and the
// elements from a group value.
type GroupContext struct {
	Keys     []types.Field
	KeyType  *types.Type
	ElemType *types.Type
	Key      interface{}
	Elements interface{}
}

// Context is the immutable state a node is built in. The With methods
// return modified copies.
type Context struct {
	// Type is the static type of the current value.
	Type *types.Type
	// Access is the backend handle producing the current value.
	Access interface{}
	// Root is the backend handle of the top-level input.
	Root   interface{}
	Lookup accessor.Lookup
	Group  *GroupContext
	// Guarded is set once a null-safe segment has been crossed: nil values
	// then propagate instead of failing.
	Guarded bool
	Depth   int
	// Scope counts the element scopes entered so far. Backends use it to
	// name per-scope variables.
	Scope int
}

// NewContext returns the context of a top-level expression over a value of
// type t.
func NewContext(t *types.Type, root interface{}, lookup accessor.Lookup) Context {
	if lookup == nil {
		lookup = accessor.Default
	}
	return Context{Type: t, Access: root, Root: root, Lookup: lookup}
}

// WithAccess returns a copy of c positioned on a value of type t.
func (c Context) WithAccess(t *types.Type, access interface{}) Context {
	c.Type = t
	c.Access = access
	return c
}

// WithGuard returns a copy of c in which nil values propagate.
func (c Context) WithGuard() Context {
	c.Guarded = true
	return c
}

// WithGroup returns a copy of c projecting the group g.
func (c Context) WithGroup(g *GroupContext) Context {
	c.Group = g
	return c
}

// Enter returns the context of an element scope (a filter condition, a
// selector, a projection member) over elements of type elem. The group
// context and the null-safe guard do not cross scope boundaries.
func (c Context) Enter(elem *types.Type, param interface{}) Context {
	c.Type = elem
	c.Access = param
	c.Group = nil
	c.Guarded = false
	c.Scope++
	return c
}

// Resolve returns the member called name of values of type t, honouring
// aliases.
func (c Context) Resolve(t *types.Type, name string, pos int) (*accessor.Property, error) {
	return c.resolve(t, name, pos, false)
}

// ResolveDirect returns the member stored under the physical name name.
func (c Context) ResolveDirect(t *types.Type, name string, pos int) (*accessor.Property, error) {
	return c.resolve(t, name, pos, true)
}

func (c Context) resolve(t *types.Type, name string, pos int, direct bool) (*accessor.Property, error) {
	a, ok := c.Lookup.Accessor(t)
	if !ok {
		return nil, types.Errorf(types.ErrUnknownProperty, pos, "%s has no members (reading %s)", t, name).WithToken(name)
	}
	var p *accessor.Property
	if direct {
		p, ok = a.PropertyInfoDirect(name)
	} else {
		p, ok = a.PropertyInfo(name)
	}
	if !ok {
		return nil, types.Errorf(types.ErrUnknownProperty, pos, "%s has no property %s", t, name).WithToken(name)
	}
	return p, nil
}

// GroupMember resolves a name used inside a group projection. A name equal
// to a key (or the name "Key") reads the key; with several keys a key name
// reads one component. index is -1 for the whole key.
func GroupMember(g *GroupContext, name string) (index int, t *types.Type, ok bool) {
	for i, k := range g.Keys {
		if equalFold(k.Name, name) {
			if len(g.Keys) == 1 {
				return -1, g.KeyType, true
			}
			return i, k.Type, true
		}
	}
	if equalFold(name, "Key") {
		return -1, g.KeyType, true
	}
	return 0, nil, false
}

// NullSafe reports whether n ends in a null-safe segment, possibly followed
// by suffixes.
func NullSafe(n types.Node) bool {
	switch n := n.(type) {
	case *types.Property:
		return n.NullSafe
	case *types.Filter:
		return NullSafe(n.Source)
	case *types.Indexer:
		return NullSafe(n.Source)
	case *types.Function:
		return NullSafe(n.Source)
	case *types.Aggregate:
		return NullSafe(n.Source)
	case *types.Predicate:
		return NullSafe(n.Source)
	case *types.GroupBy:
		return NullSafe(n.Source)
	default:
		return false
	}
}
