package accessor

import (
	"encoding/json"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/sandrolain/goshape/pkg/types"
)

// TagName is the struct tag holding the exposed name of a field.
// `shape:"-"` hides a field from expressions while keeping it reachable
// through PropertyInfoDirect.
const TagName = "shape"

var (
	decimalType = reflect.TypeFor[decimal.Decimal]()
	timeType    = reflect.TypeFor[time.Time]()
	uuidType    = reflect.TypeFor[uuid.UUID]()
	bytesType   = reflect.TypeFor[[]byte]()
	numberType  = reflect.TypeFor[json.Number]()
)

// Reflector derives static types and accessors from Go types.
// Results are cached per reflect.Type.
//
// Safe for concurrent use by multiple goroutines.
type Reflector struct {
	types     sync.Map // reflect.Type -> *types.Type
	accessors sync.Map // reflect.Type -> TypeAccessor
}

// NewReflector creates an empty reflector.
func NewReflector() *Reflector {
	return &Reflector{}
}

// TypeOf maps a Go type to a static type.
func (r *Reflector) TypeOf(rt reflect.Type) *types.Type {
	if rt == nil {
		return types.Unknown
	}
	if t, ok := r.types.Load(rt); ok {
		return t.(*types.Type)
	}
	t, _ := r.types.LoadOrStore(rt, r.typeOf(rt))
	return t.(*types.Type)
}

func (r *Reflector) typeOf(rt reflect.Type) *types.Type {
	switch rt {
	case decimalType, numberType:
		return types.Decimal
	case timeType:
		return types.DateTime
	case uuidType, bytesType:
		return types.String
	}

	switch rt.Kind() {
	case reflect.Pointer:
		return r.TypeOf(rt.Elem()).WithNullable(true)
	case reflect.Bool:
		return types.Bool
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Uint8, reflect.Uint16:
		return types.Int
	case reflect.Int64, reflect.Uint, reflect.Uint32, reflect.Uint64:
		return types.Long
	case reflect.Float32:
		return types.Float
	case reflect.Float64:
		return types.Double
	case reflect.String:
		return types.String
	case reflect.Slice, reflect.Array:
		return types.CollectionOf(r.TypeOf(rt.Elem()))
	case reflect.Map, reflect.Struct:
		return &types.Type{Kind: types.KindObject, Name: rt.Name(), Ref: rt}
	default:
		return types.Unknown
	}
}

func (r *Reflector) accessor(rt reflect.Type) TypeAccessor {
	if a, ok := r.accessors.Load(rt); ok {
		return a.(TypeAccessor)
	}
	var a TypeAccessor
	if rt.Kind() == reflect.Map {
		a = mapAccessor{elem: r.TypeOf(rt.Elem())}
	} else {
		a = r.newStructAccessor(rt)
	}
	actual, _ := r.accessors.LoadOrStore(rt, a)
	return actual.(TypeAccessor)
}

// structAccessor resolves the exported fields of a struct, including
// promoted fields of embedded structs.
type structAccessor struct {
	logical  map[string]*Property
	physical map[string]*Property
}

func (r *Reflector) newStructAccessor(rt reflect.Type) *structAccessor {
	a := &structAccessor{
		logical:  make(map[string]*Property),
		physical: make(map[string]*Property),
	}
	for _, sf := range reflect.VisibleFields(rt) {
		if !sf.IsExported() || (sf.Anonymous && isStruct(sf.Type)) {
			continue
		}

		field := sf.Name
		if tag, ok := sf.Tag.Lookup("json"); ok {
			if name, _, _ := strings.Cut(tag, ","); name != "" && name != "-" {
				field = name
			}
		}

		ft := r.TypeOf(sf.Type)
		prop := &Property{
			Name:  sf.Name,
			Field: field,
			Type:  ft,
			Get:   r.fieldGetter(sf.Index, ft),
		}
		a.physical[strings.ToLower(sf.Name)] = prop
		a.physical[strings.ToLower(field)] = prop

		alias := sf.Tag.Get(TagName)
		switch alias {
		case "-":
		case "":
			a.logical[strings.ToLower(sf.Name)] = prop
			a.logical[strings.ToLower(field)] = prop
		default:
			aliased := *prop
			aliased.Name = alias
			a.logical[strings.ToLower(alias)] = &aliased
		}
	}
	return a
}

func isStruct(rt reflect.Type) bool {
	if rt.Kind() == reflect.Pointer {
		rt = rt.Elem()
	}
	return rt.Kind() == reflect.Struct
}

func (a *structAccessor) PropertyInfo(name string) (*Property, bool) {
	p, ok := a.logical[strings.ToLower(name)]
	return p, ok
}

func (a *structAccessor) PropertyInfoDirect(name string) (*Property, bool) {
	p, ok := a.physical[strings.ToLower(name)]
	return p, ok
}

func (r *Reflector) fieldGetter(index []int, ft *types.Type) Getter {
	return func(obj interface{}) (interface{}, error) {
		v := reflect.ValueOf(obj)
		for v.Kind() == reflect.Pointer || v.Kind() == reflect.Interface {
			if v.IsNil() {
				return nil, types.NewError(types.ErrNullReference, "member access on a nil value", -1)
			}
			v = v.Elem()
		}
		if v.Kind() != reflect.Struct {
			return nil, types.Errorf(types.ErrConversion, -1, "cannot read a member of %s", v.Type())
		}
		fv, err := v.FieldByIndexErr(index)
		if err != nil {
			return nil, nil
		}
		return r.value(fv, ft)
	}
}

// value converts a reflected member to its canonical runtime value.
func (r *Reflector) value(v reflect.Value, t *types.Type) (interface{}, error) {
	switch v.Kind() {
	case reflect.Pointer, reflect.Interface:
		if v.IsNil() {
			return nil, nil
		}
		if v.Kind() == reflect.Interface || t.Kind.IsScalar() {
			return r.value(v.Elem(), t)
		}
		return v.Interface(), nil
	case reflect.Slice, reflect.Array:
		if v.Type() == bytesType {
			return string(v.Bytes()), nil
		}
		if v.Type() == uuidType {
			return v.Interface().(uuid.UUID).String(), nil
		}
		elem := types.Unknown
		if t.Elem != nil {
			elem = t.Elem
		}
		out := make([]interface{}, v.Len())
		for i := range out {
			e, err := r.value(v.Index(i), elem)
			if err != nil {
				return nil, err
			}
			out[i] = e
		}
		return out, nil
	}

	switch t.Kind {
	case types.KindBool:
		return v.Bool(), nil
	case types.KindInt, types.KindLong:
		var n int64
		if v.CanInt() {
			n = v.Int()
		} else {
			n = int64(v.Uint())
		}
		if t.Kind == types.KindInt {
			return int(n), nil
		}
		return n, nil
	case types.KindFloat:
		return float32(v.Float()), nil
	case types.KindDouble:
		return v.Float(), nil
	case types.KindString:
		if v.Kind() == reflect.String {
			return v.String(), nil
		}
	}
	return types.Convert(v.Interface(), t.Kind)
}

// mapAccessor reads keys of Go maps with string keys.
type mapAccessor struct {
	elem *types.Type
}

func (a mapAccessor) PropertyInfo(name string) (*Property, bool) {
	return a.PropertyInfoDirect(name)
}

func (a mapAccessor) PropertyInfoDirect(name string) (*Property, bool) {
	return &Property{
		Name:  name,
		Field: name,
		Type:  a.elem.WithNullable(true),
		Get: func(obj interface{}) (interface{}, error) {
			return dynamicGet(obj, name)
		},
	}, true
}
