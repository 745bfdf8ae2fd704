package types

import (
	"strings"
)

// Kind classifies a static type.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindNull
	KindBool
	KindInt
	KindLong
	KindFloat
	KindDouble
	KindDecimal
	KindString
	KindDateTime
	KindObject
	KindCollection
	KindGroup
	KindComposite
)

var kindNames = [...]string{
	KindUnknown:    "unknown",
	KindNull:       "null",
	KindBool:       "bool",
	KindInt:        "int",
	KindLong:       "long",
	KindFloat:      "float",
	KindDouble:     "double",
	KindDecimal:    "decimal",
	KindString:     "string",
	KindDateTime:   "datetime",
	KindObject:     "object",
	KindCollection: "collection",
	KindGroup:      "group",
	KindComposite:  "composite",
}

// String returns the lower-case name of the kind.
func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "(unknown)"
}

// IsNumeric reports whether k is one of the numeric kinds.
func (k Kind) IsNumeric() bool {
	return k >= KindInt && k <= KindDecimal
}

// IsFloating reports whether k is a binary floating point kind.
func (k Kind) IsFloating() bool {
	return k == KindFloat || k == KindDouble
}

// IsScalar reports whether values of kind k are single values.
func (k Kind) IsScalar() bool {
	return k >= KindBool && k <= KindDateTime
}

// Field is a named member of an object or composite type.
type Field struct {
	Name string
	Type *Type
}

// Type is the static type of an expression.
//
// Types are immutable once built; the helpers below always return copies.
type Type struct {
	Kind     Kind
	Name     string
	Nullable bool
	// Elem is the element type of a collection or of a group's elements.
	Elem *Type
	// Key is the key type of a group.
	Key *Type
	// Fields lists the members of inline objects and composite keys.
	Fields []Field
	// Ref identifies the model behind an object type for the accessor
	// that created it (a reflect.Type, a schema, ...).
	Ref interface{}
}

// Predeclared scalar types.
var (
	Unknown  = &Type{Kind: KindUnknown, Nullable: true}
	Null     = &Type{Kind: KindNull, Nullable: true}
	Bool     = &Type{Kind: KindBool}
	Int      = &Type{Kind: KindInt}
	Long     = &Type{Kind: KindLong}
	Float    = &Type{Kind: KindFloat}
	Double   = &Type{Kind: KindDouble}
	Decimal  = &Type{Kind: KindDecimal}
	String   = &Type{Kind: KindString}
	DateTime = &Type{Kind: KindDateTime}
)

// Of returns the scalar type of kind k.
func Of(k Kind) *Type {
	switch k {
	case KindNull:
		return Null
	case KindBool:
		return Bool
	case KindInt:
		return Int
	case KindLong:
		return Long
	case KindFloat:
		return Float
	case KindDouble:
		return Double
	case KindDecimal:
		return Decimal
	case KindString:
		return String
	case KindDateTime:
		return DateTime
	default:
		return Unknown
	}
}

// CollectionOf returns a collection type with the given element type.
func CollectionOf(elem *Type) *Type {
	return &Type{Kind: KindCollection, Elem: elem}
}

// ObjectOf returns an inline object type with the given members.
func ObjectOf(fields ...Field) *Type {
	return &Type{Kind: KindObject, Fields: fields}
}

// GroupOf returns the type of one group produced by a group-by.
func GroupOf(key, elem *Type) *Type {
	return &Type{Kind: KindGroup, Key: key, Elem: elem}
}

// CompositeOf returns a composite key type whose components are named after
// the group-by keys.
func CompositeOf(fields ...Field) *Type {
	return &Type{Kind: KindComposite, Fields: fields}
}

// WithNullable returns a copy of t with the nullable flag set to n.
func (t *Type) WithNullable(n bool) *Type {
	if t.Nullable == n {
		return t
	}
	c := *t
	c.Nullable = n
	return &c
}

// IsCollection reports whether t is a collection.
func (t *Type) IsCollection() bool {
	return t != nil && t.Kind == KindCollection
}

// IsNumeric reports whether t has a numeric kind.
func (t *Type) IsNumeric() bool {
	return t != nil && t.Kind.IsNumeric()
}

// Field returns the member called name, matched case-insensitively.
func (t *Type) Field(name string) (Field, int, bool) {
	for i, f := range t.Fields {
		if strings.EqualFold(f.Name, name) {
			return f, i, true
		}
	}
	return Field{}, -1, false
}

// Equal reports whether t and o describe the same type, ignoring nullability.
func (t *Type) Equal(o *Type) bool {
	if t == o {
		return true
	}
	if t == nil || o == nil || t.Kind != o.Kind {
		return false
	}
	switch t.Kind {
	case KindCollection:
		return t.Elem.Equal(o.Elem)
	case KindGroup:
		return t.Key.Equal(o.Key) && t.Elem.Equal(o.Elem)
	case KindObject, KindComposite:
		if t.Ref != nil || o.Ref != nil {
			return t.Ref == o.Ref
		}
		if len(t.Fields) != len(o.Fields) {
			return false
		}
		for i := range t.Fields {
			if t.Fields[i].Name != o.Fields[i].Name || !t.Fields[i].Type.Equal(o.Fields[i].Type) {
				return false
			}
		}
		return true
	default:
		return true
	}
}

// String returns a readable representation of t. It is also used as the
// model component of cache keys, so distinct models must print differently.
func (t *Type) String() string {
	if t == nil {
		return "<nil>"
	}
	var b strings.Builder
	t.write(&b)
	return b.String()
}

func (t *Type) write(b *strings.Builder) {
	switch t.Kind {
	case KindCollection:
		b.WriteByte('[')
		t.Elem.write(b)
		b.WriteByte(']')
	case KindGroup:
		b.WriteString("group<")
		t.Key.write(b)
		b.WriteByte(',')
		t.Elem.write(b)
		b.WriteByte('>')
	case KindObject, KindComposite:
		if t.Name != "" {
			b.WriteString(t.Name)
			break
		}
		if t.Kind == KindComposite {
			b.WriteByte('(')
		} else {
			b.WriteByte('{')
		}
		for i, f := range t.Fields {
			if i > 0 {
				b.WriteByte(',')
			}
			b.WriteString(f.Name)
			b.WriteByte(':')
			f.Type.write(b)
		}
		if t.Kind == KindComposite {
			b.WriteByte(')')
		} else {
			b.WriteByte('}')
		}
	default:
		b.WriteString(t.Kind.String())
	}
	if t.Nullable && t.Kind != KindUnknown && t.Kind != KindNull {
		b.WriteByte('?')
	}
}

// Widen returns the wider of two numeric kinds following
// int < long < float < double < decimal.
func Widen(a, b Kind) Kind {
	if a > b {
		return a
	}
	return b
}

// Common returns the type both branches of a coalesce or ternary convert to.
//
// Identical types win outright, numeric types widen, and unknown, null or
// untyped object branches defer to the other branch. It returns nil when
// the two types have nothing in common.
func Common(a, b *Type) *Type {
	nullable := a.Nullable || b.Nullable
	switch {
	case a.Equal(b):
		return a.WithNullable(nullable)
	case a.Kind.IsNumeric() && b.Kind.IsNumeric():
		return Of(Widen(a.Kind, b.Kind)).WithNullable(nullable)
	case defers(a):
		return b.WithNullable(nullable || a.Kind == KindNull)
	case defers(b):
		return a.WithNullable(nullable || b.Kind == KindNull)
	default:
		return nil
	}
}

func defers(t *Type) bool {
	switch t.Kind {
	case KindUnknown, KindNull:
		return true
	case KindObject:
		return t.Ref == nil && len(t.Fields) == 0
	default:
		return false
	}
}
