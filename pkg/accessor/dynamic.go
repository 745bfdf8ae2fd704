package accessor

import (
	"reflect"
	"strings"

	"github.com/sandrolain/goshape/pkg/types"
)

// inline resolves the members of an inline object type, such as the
// records produced by a projection.
type inline struct {
	t *types.Type
}

func (a inline) PropertyInfo(name string) (*Property, bool) {
	f, _, ok := a.t.Field(name)
	if !ok {
		return nil, false
	}
	key := f.Name
	return &Property{
		Name:  key,
		Field: key,
		Type:  f.Type,
		Get: func(obj interface{}) (interface{}, error) {
			return dynamicGet(obj, key)
		},
	}, true
}

func (a inline) PropertyInfoDirect(name string) (*Property, bool) {
	return a.PropertyInfo(name)
}

// dynamic resolves any name on values whose static type is unknown. The
// member type is unknown too, so the checks happen at run time.
type dynamic struct {
	reflector *Reflector
}

func (a dynamic) PropertyInfo(name string) (*Property, bool) {
	return &Property{
		Name:  name,
		Field: name,
		Type:  types.Unknown,
		Get: func(obj interface{}) (interface{}, error) {
			v, err := dynamicGet(obj, name)
			if err != nil || v == nil {
				return v, err
			}
			rv := reflect.ValueOf(v)
			if rv.Kind() == reflect.Struct || rv.Kind() == reflect.Pointer {
				return v, nil
			}
			return a.reflector.value(rv, a.reflector.TypeOf(rv.Type()))
		},
	}, true
}

func (a dynamic) PropertyInfoDirect(name string) (*Property, bool) {
	return a.PropertyInfo(name)
}

// dynamicGet reads name from a record, a map or a struct. Map keys and
// struct fields are matched exactly first, then case-insensitively.
func dynamicGet(obj interface{}, name string) (interface{}, error) {
	switch o := obj.(type) {
	case nil:
		return nil, types.NewError(types.ErrNullReference, "member access on a nil value: "+name, -1)
	case *types.Record:
		if v, ok := o.Get(name); ok {
			return v, nil
		}
		for _, k := range o.Keys {
			if strings.EqualFold(k, name) {
				return o.Values[k], nil
			}
		}
		return nil, nil
	case map[string]interface{}:
		if v, ok := o[name]; ok {
			return v, nil
		}
		for k, v := range o {
			if strings.EqualFold(k, name) {
				return v, nil
			}
		}
		return nil, nil
	}

	v := reflect.ValueOf(obj)
	for v.Kind() == reflect.Pointer || v.Kind() == reflect.Interface {
		if v.IsNil() {
			return nil, types.NewError(types.ErrNullReference, "member access on a nil value: "+name, -1)
		}
		v = v.Elem()
	}
	switch v.Kind() {
	case reflect.Map:
		if v.Type().Key().Kind() != reflect.String {
			break
		}
		if mv := v.MapIndex(reflect.ValueOf(name).Convert(v.Type().Key())); mv.IsValid() {
			return mv.Interface(), nil
		}
		iter := v.MapRange()
		for iter.Next() {
			if strings.EqualFold(iter.Key().String(), name) {
				return iter.Value().Interface(), nil
			}
		}
		return nil, nil
	case reflect.Struct:
		f := v.FieldByNameFunc(func(n string) bool { return strings.EqualFold(n, name) })
		if !f.IsValid() || !f.CanInterface() {
			return nil, types.Errorf(types.ErrUnknownProperty, -1, "%s has no member %s", v.Type(), name)
		}
		return f.Interface(), nil
	}
	return nil, types.Errorf(types.ErrConversion, -1, "cannot read member %s of %T", name, obj)
}
