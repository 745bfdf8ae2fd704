package accessor

import (
	"encoding/json"
	"sort"
	"strings"
	"time"

	"github.com/sandrolain/goshape/pkg/types"
)

// Schema describes the layout of map-shaped documents, such as decoded
// JSON or YAML or rows scanned from a database. A schema is both the Ref of
// its object type and that type's TypeAccessor.
//
// A Schema must not be modified once expressions have been built against it.
type Schema struct {
	name     string
	fields   []*schemaField
	logical  map[string]*Property
	physical map[string]*Property
	typ      *types.Type
}

type schemaField struct {
	name  string
	field string
	typ   *types.Type
}

// NewSchema creates an empty schema called name.
func NewSchema(name string) *Schema {
	s := &Schema{
		name:     name,
		logical:  make(map[string]*Property),
		physical: make(map[string]*Property),
	}
	s.typ = &types.Type{Kind: types.KindObject, Name: name, Ref: s}
	return s
}

// Name returns the schema name.
func (s *Schema) Name() string {
	return s.name
}

// Type returns the object type described by s.
func (s *Schema) Type() *types.Type {
	return s.typ
}

// Define adds a member whose exposed and physical names are both name.
func (s *Schema) Define(name string, t *types.Type) *Schema {
	return s.DefineField(name, name, t)
}

// DefineField adds a member exposed as name and stored under field.
func (s *Schema) DefineField(name, field string, t *types.Type) *Schema {
	f := &schemaField{name: name, field: field, typ: t}
	s.fields = append(s.fields, f)

	prop := &Property{Name: name, Field: field, Type: t, Get: schemaGetter(field, t)}
	s.logical[strings.ToLower(name)] = prop
	s.physical[strings.ToLower(field)] = prop
	return s
}

// absorb merges the members of o into s. Members present on one side only
// become nullable.
func (s *Schema) absorb(o *Schema) {
	for _, f := range s.fields {
		if _, ok := o.PropertyInfo(f.name); !ok {
			s.redefine(f, f.typ.WithNullable(true))
		}
	}
	for _, f := range o.fields {
		p, ok := s.PropertyInfo(f.name)
		if !ok {
			s.Define(f.name, f.typ.WithNullable(true))
			continue
		}
		for _, sf := range s.fields {
			if sf.name == p.Name {
				s.redefine(sf, merge(sf.typ, f.typ))
			}
		}
	}
}

func (s *Schema) redefine(f *schemaField, t *types.Type) {
	f.typ = t
	prop := &Property{Name: f.name, Field: f.field, Type: t, Get: schemaGetter(f.field, t)}
	s.logical[strings.ToLower(f.name)] = prop
	s.physical[strings.ToLower(f.field)] = prop
}

// Fields returns the members in declaration order.
func (s *Schema) Fields() []types.Field {
	out := make([]types.Field, len(s.fields))
	for i, f := range s.fields {
		out[i] = types.Field{Name: f.name, Type: f.typ}
	}
	return out
}

// PropertyInfo implements TypeAccessor.
func (s *Schema) PropertyInfo(name string) (*Property, bool) {
	p, ok := s.logical[strings.ToLower(name)]
	return p, ok
}

// PropertyInfoDirect implements TypeAccessor.
func (s *Schema) PropertyInfoDirect(name string) (*Property, bool) {
	p, ok := s.physical[strings.ToLower(name)]
	return p, ok
}

func schemaGetter(field string, t *types.Type) Getter {
	return func(obj interface{}) (interface{}, error) {
		v, err := dynamicGet(obj, field)
		if err != nil || v == nil {
			return nil, err
		}
		return Coerce(v, t)
	}
}

// Coerce converts a raw document value to the canonical runtime value of t.
// Collections are converted element by element.
func Coerce(v interface{}, t *types.Type) (interface{}, error) {
	if v == nil {
		return nil, nil
	}
	switch t.Kind {
	case types.KindCollection:
		items, ok := v.([]interface{})
		if !ok {
			return v, nil
		}
		if t.Elem == nil || !t.Elem.Kind.IsScalar() {
			return items, nil
		}
		out := make([]interface{}, len(items))
		for i, item := range items {
			c, err := Coerce(item, t.Elem)
			if err != nil {
				return nil, err
			}
			out[i] = c
		}
		return out, nil
	default:
		return types.Convert(v, t.Kind)
	}
}

// Infer derives a schema from sample documents. Members missing from some
// samples or holding null become nullable; numbers widen across samples.
//
// Integral numbers infer as long, json.Number values with a fraction as
// decimal and other fractional numbers as double. RFC 3339 strings infer
// as datetime.
func Infer(name string, samples ...interface{}) *Schema {
	s := NewSchema(name)
	inferInto(s, samples)
	return s
}

func inferInto(s *Schema, samples []interface{}) {
	type slot struct {
		t     *types.Type
		count int
	}
	slots := make(map[string]*slot)
	var order []string
	objects := 0

	for _, sample := range samples {
		m, ok := sample.(map[string]interface{})
		if !ok {
			continue
		}
		objects++
		keys := make([]string, 0, len(m))
		for k := range m {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			t := inferType(s.name+"."+k, m[k])
			sl, ok := slots[k]
			if !ok {
				slots[k] = &slot{t: t, count: 1}
				order = append(order, k)
				continue
			}
			sl.t = merge(sl.t, t)
			sl.count++
		}
	}

	for _, k := range order {
		sl := slots[k]
		t := sl.t
		if sl.count < objects {
			t = t.WithNullable(true)
		}
		s.Define(k, t)
	}
}

func inferType(name string, v interface{}) *types.Type {
	switch x := v.(type) {
	case nil:
		return types.Unknown
	case bool:
		return types.Bool
	case json.Number:
		if strings.ContainsAny(x.String(), ".eE") {
			return types.Decimal
		}
		return types.Long
	case float64:
		if x == float64(int64(x)) {
			return types.Long
		}
		return types.Double
	case float32:
		return types.Float
	case int, int64, uint64, int32, uint32:
		return types.Long
	case string:
		if _, err := time.Parse(time.RFC3339, x); err == nil {
			return types.DateTime
		}
		return types.String
	case time.Time:
		return types.DateTime
	case []interface{}:
		var elem *types.Type
		var objects []interface{}
		for _, item := range x {
			if _, ok := item.(map[string]interface{}); ok {
				objects = append(objects, item)
				continue
			}
			t := inferType(name, item)
			if elem == nil {
				elem = t
			} else {
				elem = merge(elem, t)
			}
		}
		if len(objects) > 0 {
			nested := NewSchema(singular(name))
			inferInto(nested, objects)
			if elem == nil {
				elem = nested.Type()
			} else {
				elem = merge(elem, nested.Type())
			}
		}
		if elem == nil {
			elem = types.Unknown
		}
		return types.CollectionOf(elem)
	case map[string]interface{}:
		nested := NewSchema(name)
		inferInto(nested, []interface{}{x})
		return nested.Type()
	default:
		return types.Unknown
	}
}

// merge combines the types observed for one member in two samples.
func merge(a, b *types.Type) *types.Type {
	nullable := a.Nullable || b.Nullable
	switch {
	case a.Kind == types.KindUnknown:
		return b.WithNullable(true)
	case b.Kind == types.KindUnknown:
		return a.WithNullable(true)
	case a.Kind.IsNumeric() && b.Kind.IsNumeric():
		return types.Of(types.Widen(a.Kind, b.Kind)).WithNullable(nullable)
	case a.Kind == types.KindCollection && b.Kind == types.KindCollection:
		return types.CollectionOf(merge(a.Elem, b.Elem)).WithNullable(nullable)
	case a.Kind == types.KindObject && b.Kind == types.KindObject:
		sa, okA := a.Ref.(*Schema)
		sb, okB := b.Ref.(*Schema)
		if okA && okB && sa != sb {
			sa.absorb(sb)
		}
		return a.WithNullable(nullable)
	case a.Kind == b.Kind:
		return a.WithNullable(nullable)
	case (a.Kind == types.KindDateTime && b.Kind == types.KindString) || (a.Kind == types.KindString && b.Kind == types.KindDateTime):
		return types.String.WithNullable(nullable)
	default:
		return types.Unknown
	}
}

func singular(name string) string {
	if strings.HasSuffix(name, "s") && len(name) > 1 {
		return name[:len(name)-1]
	}
	return name
}
