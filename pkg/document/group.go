package document

import (
	"github.com/sandrolain/goshape/pkg/build"
	"github.com/sandrolain/goshape/pkg/types"
)

// reader reads a part of a group document.
type reader func(group interface{}) interface{}

// Groups are documents {key, elements}. A composite key is a document
// holding one member per key property.
const (
	keyField      = "key"
	elementsField = "elements"
)

func (v *visitor) VisitGroupBy(n *types.GroupBy, ctx build.Context) (result, error) {
	src, err := build.Visit[interface{}](v, n.Source, ctx)
	if err != nil {
		return result{}, err
	}
	ct, err := build.Elements(src.Type, n.Position)
	if err != nil {
		return result{}, err
	}

	keys := make([]types.Field, len(n.Keys))
	paths := make([]string, len(n.Keys))
	for i, name := range n.Keys {
		p, err := ctx.Resolve(ct.Elem, name, n.Position)
		if err != nil {
			return result{}, err
		}
		keys[i] = types.Field{Name: p.Name, Type: p.Type}
		paths[i] = stored(p)
	}
	kt, err := build.GroupKey(keys, n.Position)
	if err != nil {
		return result{}, err
	}

	keyOf := func(elem string) interface{} {
		if len(keys) == 1 {
			return field(elem, paths[0])
		}
		d := make(D, len(keys))
		for i, k := range keys {
			d[i] = E{Key: k.Name, Value: field(elem, paths[i])}
		}
		return d
	}

	e, ea := variable(ctx, "e")
	g, ga := variable(ctx, "g")
	input := orEmpty(src.Value)
	distinct := op("$setUnion", A{mapOver(input, e, keyOf(ea))})
	members := op("$filter", D{
		{"input", input},
		{"as", e},
		{"cond", op("$eq", A{keyOf(ea), ga})},
	})
	x := mapOver(distinct, g, D{{keyField, ga}, {elementsField, members}})

	guarded := ctx.Guarded || build.NullSafe(n.Source)
	t := types.CollectionOf(build.GroupType(keys, kt, ct.Elem)).WithNullable(guarded)
	return result{Type: t, Value: x}, nil
}

func (v *visitor) VisitGroupElements(n *types.GroupElements, ctx build.Context) (result, error) {
	if ctx.Group == nil {
		return result{}, types.NewError(types.ErrNoGroupContext, "group members can only be used when projecting a groupBy", n.Position)
	}
	elements := ctx.Group.Elements.(reader)
	return result{Type: types.CollectionOf(ctx.Group.ElemType), Value: elements(ctx.Access)}, nil
}

// groupMember reads the key, or a key component, of the projected group.
func (v *visitor) groupMember(n *types.Property, ctx build.Context) (result, error) {
	idx, t, ok := build.GroupMember(ctx.Group, n.Name)
	if !ok {
		return result{}, types.Errorf(types.ErrUnknownProperty, n.Position, "%s is not a key of the group", n.Name).WithToken(n.Name)
	}
	key := ctx.Group.Key.(reader)(ctx.Access)
	if idx >= 0 {
		key = field(key, ctx.Group.Keys[idx].Name)
	}
	return result{Type: t, Value: key}, nil
}

// scope opens the element scope for members projected from values of type
// t and returns the variable bound to the element.
func scope(ctx build.Context, t *types.Type) (build.Context, string) {
	c, name := enter(ctx, t)
	if t.Kind == types.KindGroup {
		c = c.WithGroup(&build.GroupContext{
			Keys:     t.Fields,
			KeyType:  t.Key,
			ElemType: t.Elem,
			Key:      reader(func(g interface{}) interface{} { return field(g, keyField) }),
			Elements: reader(func(g interface{}) interface{} { return field(g, elementsField) }),
		})
	}
	return c, name
}

func (v *visitor) VisitProjection(n *types.Projection, ctx build.Context) (result, error) {
	src, err := build.Visit[interface{}](v, n.Source, ctx)
	if err != nil {
		return result{}, err
	}
	return v.project(src, n.Properties, ctx, n.Position, ctx.Guarded || build.NullSafe(n.Source))
}

func (v *visitor) VisitRootProjection(n *types.RootProjection, ctx build.Context) (result, error) {
	src := result{Type: ctx.Type, Value: ctx.Access}
	return v.project(src, n.Properties, ctx, n.Position, ctx.Guarded)
}

func (v *visitor) project(src result, props []types.ProjectionProperty, ctx build.Context, pos int, guarded bool) (result, error) {
	if src.Type.Kind.IsScalar() {
		return result{}, types.Errorf(types.ErrTypeMismatch, pos, "cannot project a %s", src.Type)
	}

	if src.Type.Kind == types.KindCollection {
		inner, name := scope(ctx, src.Type.Elem)
		rec, rt, err := v.record(props, inner)
		if err != nil {
			return result{}, err
		}
		t := types.CollectionOf(rt).WithNullable(src.Type.Nullable || guarded)
		return result{Type: t, Value: mapOver(src.Value, name, rec)}, nil
	}

	nullable := src.Type.Nullable || guarded
	if src.Value == current {
		// Members read the current document directly, so the result can
		// serve as a $project stage.
		rec, rt, err := v.record(props, ctx.Enter(src.Type, current))
		if err != nil {
			return result{}, err
		}
		return result{Type: rt.WithNullable(nullable), Value: rec}, nil
	}

	inner, name := scope(ctx, src.Type)
	rec, rt, err := v.record(props, inner)
	if err != nil {
		return result{}, err
	}
	var x interface{} = op("$let", D{{"vars", D{{name, src.Value}}}, {"in", rec}})
	if nullable {
		x = op("$cond", D{
			{"if", op("$eq", A{op("$ifNull", A{src.Value, nil}), nil})},
			{"then", nil},
			{"else", x},
		})
	}
	return result{Type: rt.WithNullable(nullable), Value: x}, nil
}

// record builds the members of a projection into one document.
func (v *visitor) record(props []types.ProjectionProperty, ctx build.Context) (D, *types.Type, error) {
	fields := make([]types.Field, len(props))
	d := make(D, len(props))
	for i, p := range props {
		r, err := build.Visit[interface{}](v, p.Expr, ctx)
		if err != nil {
			return nil, nil, err
		}
		fields[i] = types.Field{Name: p.OutputKey, Type: r.Type}
		d[i] = E{Key: p.OutputKey, Value: constant(r.Value)}
	}
	return d, types.ObjectOf(fields...), nil
}
