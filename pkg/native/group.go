package native

import (
	"sort"

	"github.com/sandrolain/goshape/pkg/accessor"
	"github.com/sandrolain/goshape/pkg/build"
	"github.com/sandrolain/goshape/pkg/types"
)

// Group is one group produced by groupBy. Key is the key value for a single
// key and a CompositeKey otherwise.
type Group struct {
	Key      interface{}
	Elements []interface{}
}

// CompositeKey is the key of a group-by over several properties.
type CompositeKey interface {
	Len() int
	At(i int) interface{}
}

// Key2 is a two-part composite key.
type Key2 struct{ Item1, Item2 interface{} }

// Key3 is a three-part composite key.
type Key3 struct{ Item1, Item2, Item3 interface{} }

// Key4 is a four-part composite key.
type Key4 struct{ Item1, Item2, Item3, Item4 interface{} }

// Key5 is a five-part composite key.
type Key5 struct{ Item1, Item2, Item3, Item4, Item5 interface{} }

func (k Key2) Len() int { return 2 }
func (k Key3) Len() int { return 3 }
func (k Key4) Len() int { return 4 }
func (k Key5) Len() int { return 5 }

func (k Key2) At(i int) interface{} { return [...]interface{}{k.Item1, k.Item2}[i] }
func (k Key3) At(i int) interface{} { return [...]interface{}{k.Item1, k.Item2, k.Item3}[i] }
func (k Key4) At(i int) interface{} {
	return [...]interface{}{k.Item1, k.Item2, k.Item3, k.Item4}[i]
}
func (k Key5) At(i int) interface{} {
	return [...]interface{}{k.Item1, k.Item2, k.Item3, k.Item4, k.Item5}[i]
}

// newKey builds the composite key holding parts.
func newKey(parts []interface{}) CompositeKey {
	switch len(parts) {
	case 2:
		return Key2{parts[0], parts[1]}
	case 3:
		return Key3{parts[0], parts[1], parts[2]}
	case 4:
		return Key4{parts[0], parts[1], parts[2], parts[3]}
	default:
		return Key5{parts[0], parts[1], parts[2], parts[3], parts[4]}
	}
}

func groupKey(in interface{}) (interface{}, error) {
	g, ok := in.(*Group)
	if !ok {
		return nil, types.Errorf(types.ErrConversion, -1, "expected a group, got %T", in)
	}
	return g.Key, nil
}

func groupElements(in interface{}) (interface{}, error) {
	g, ok := in.(*Group)
	if !ok {
		return nil, types.Errorf(types.ErrConversion, -1, "expected a group, got %T", in)
	}
	return g.Elements, nil
}

func (v *visitor) VisitGroupBy(n *types.GroupBy, ctx build.Context) (result, error) {
	src, err := build.Visit[Func](v, n.Source, ctx)
	if err != nil {
		return result{}, err
	}
	ct, err := build.Elements(src.Type, n.Position)
	if err != nil {
		return result{}, err
	}

	keys := make([]types.Field, len(n.Keys))
	getters := make([]accessor.Getter, len(n.Keys))
	for i, name := range n.Keys {
		p, err := ctx.Resolve(ct.Elem, name, n.Position)
		if err != nil {
			return result{}, err
		}
		keys[i] = types.Field{Name: p.Name, Type: p.Type}
		getters[i] = p.Get
	}
	kt, err := build.GroupKey(keys, n.Position)
	if err != nil {
		return result{}, err
	}

	guarded := ctx.Guarded || build.NullSafe(n.Source)
	pos := n.Position
	fn := func(in interface{}) (interface{}, error) {
		list, ok, err := collect(src.Value, in, guarded, pos)
		if !ok {
			return nil, err
		}
		index := make(map[interface{}]int)
		groups := make([]interface{}, 0)
		parts := make([]interface{}, len(getters))
		hashed := make([]interface{}, len(getters))
		for _, item := range list {
			if item == nil {
				return nil, nullRef("groupBy", pos)
			}
			for i, get := range getters {
				x, err := get(item)
				if err != nil {
					return nil, atPos(err, pos)
				}
				parts[i] = x
				hashed[i] = hashable(x)
			}
			var key, mk interface{}
			if len(parts) == 1 {
				key, mk = parts[0], hashed[0]
			} else {
				key, mk = newKey(parts), newKey(hashed)
			}
			if i, ok := index[mk]; ok {
				g := groups[i].(*Group)
				g.Elements = append(g.Elements, item)
				continue
			}
			index[mk] = len(groups)
			groups = append(groups, &Group{Key: key, Elements: []interface{}{item}})
		}
		return groups, nil
	}
	t := types.CollectionOf(build.GroupType(keys, kt, ct.Elem)).WithNullable(guarded)
	return result{Type: t, Value: fn}, nil
}

func (v *visitor) VisitGroupElements(n *types.GroupElements, ctx build.Context) (result, error) {
	if ctx.Group == nil {
		return result{}, types.NewError(types.ErrNoGroupContext, "group members can only be used when projecting a groupBy", n.Position)
	}
	src := access(ctx)
	elements := ctx.Group.Elements.(Func)
	fn := func(in interface{}) (interface{}, error) {
		g, err := src(in)
		if err != nil {
			return nil, err
		}
		return elements(g)
	}
	return result{Type: types.CollectionOf(ctx.Group.ElemType), Value: fn}, nil
}

// groupMember reads the key, or a key component, of the projected group.
func (v *visitor) groupMember(n *types.Property, ctx build.Context) (result, error) {
	idx, t, ok := build.GroupMember(ctx.Group, n.Name)
	if !ok {
		return result{}, types.Errorf(types.ErrUnknownProperty, n.Position, "%s is not a key of the group", n.Name).WithToken(n.Name)
	}
	src := access(ctx)
	key := ctx.Group.Key.(Func)
	fn := func(in interface{}) (interface{}, error) {
		g, err := src(in)
		if err != nil {
			return nil, err
		}
		k, err := key(g)
		if err != nil || idx < 0 {
			return k, err
		}
		return k.(CompositeKey).At(idx), nil
	}
	return result{Type: t, Value: fn}, nil
}

// scope returns the element scope for members projected from values of
// type t. Projecting groups also opens a group context.
func scope(ctx build.Context, t *types.Type) build.Context {
	c := ctx.Enter(t, Func(identity))
	if t.Kind == types.KindGroup {
		c = c.WithGroup(&build.GroupContext{
			Keys:     t.Fields,
			KeyType:  t.Key,
			ElemType: t.Elem,
			Key:      Func(groupKey),
			Elements: Func(groupElements),
		})
	}
	return c
}

func (v *visitor) VisitProjection(n *types.Projection, ctx build.Context) (result, error) {
	src, err := build.Visit[Func](v, n.Source, ctx)
	if err != nil {
		return result{}, err
	}
	return v.project(src, n.Properties, ctx, n.Position, ctx.Guarded || build.NullSafe(n.Source))
}

func (v *visitor) VisitRootProjection(n *types.RootProjection, ctx build.Context) (result, error) {
	src := result{Type: ctx.Type, Value: access(ctx)}
	return v.project(src, n.Properties, ctx, n.Position, ctx.Guarded)
}

func (v *visitor) project(src result, props []types.ProjectionProperty, ctx build.Context, pos int, guarded bool) (result, error) {
	if src.Type.Kind.IsScalar() {
		return result{}, types.Errorf(types.ErrTypeMismatch, pos, "cannot project a %s", src.Type)
	}

	if src.Type.Kind == types.KindCollection {
		row, rt, err := v.record(props, scope(ctx, src.Type.Elem))
		if err != nil {
			return result{}, err
		}
		fn := func(in interface{}) (interface{}, error) {
			list, ok, err := collect(src.Value, in, guarded, pos)
			if !ok {
				return nil, err
			}
			out := make([]interface{}, len(list))
			for i, item := range list {
				if out[i], err = row(item); err != nil {
					return nil, err
				}
			}
			return out, nil
		}
		return result{Type: types.CollectionOf(rt).WithNullable(src.Type.Nullable || guarded), Value: fn}, nil
	}

	row, rt, err := v.record(props, scope(ctx, src.Type))
	if err != nil {
		return result{}, err
	}
	nullable := src.Type.Nullable || guarded
	fn := func(in interface{}) (interface{}, error) {
		o, err := src.Value(in)
		if err != nil {
			return nil, err
		}
		if o == nil {
			if nullable {
				return nil, nil
			}
			return nil, nullRef("projection", pos)
		}
		return row(o)
	}
	return result{Type: rt.WithNullable(nullable), Value: fn}, nil
}

// record compiles the members of a projection into a function building one
// output record.
func (v *visitor) record(props []types.ProjectionProperty, ctx build.Context) (Func, *types.Type, error) {
	fields := make([]types.Field, len(props))
	fns := make([]Func, len(props))
	for i, p := range props {
		r, err := build.Visit[Func](v, p.Expr, ctx)
		if err != nil {
			return nil, nil, err
		}
		fields[i] = types.Field{Name: p.OutputKey, Type: r.Type}
		fns[i] = r.Value
	}

	fn := func(in interface{}) (interface{}, error) {
		rec := types.NewRecord(len(fns))
		for i, f := range fns {
			x, err := f(in)
			if err != nil {
				return nil, err
			}
			rec.Set(fields[i].Name, x)
		}
		return rec, nil
	}
	return fn, types.ObjectOf(fields...), nil
}

// stableSort orders list by the member read by get, keeping the input order
// of equal elements. nil sorts first.
func stableSort(list []interface{}, get accessor.Getter, k types.Kind, desc bool, pos int) ([]interface{}, error) {
	keys := make([]interface{}, len(list))
	for i, item := range list {
		if item == nil {
			continue
		}
		x, err := get(item)
		if err != nil {
			return nil, atPos(err, pos)
		}
		keys[i] = x
	}

	idx := make([]int, len(list))
	for i := range idx {
		idx[i] = i
	}
	var sortErr error
	sort.SliceStable(idx, func(a, b int) bool {
		x, y := keys[idx[a]], keys[idx[b]]
		if desc {
			x, y = y, x
		}
		switch {
		case x == nil:
			return y != nil
		case y == nil:
			return false
		}
		c, err := compareValues(x, y, k)
		if err != nil && sortErr == nil {
			sortErr = atPos(err, pos)
		}
		return c < 0
	})
	if sortErr != nil {
		return nil, sortErr
	}

	out := make([]interface{}, len(list))
	for i, j := range idx {
		out[i] = list[j]
	}
	return out, nil
}
