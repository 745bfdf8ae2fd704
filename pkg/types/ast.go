package types

// Node is an AST node.
//
// The set of node kinds is closed: only the types declared in this file
// implement Node. Nodes are pure data and are never mutated after the
// parser returns them, so a tree can be shared by concurrent builds.
type Node interface {
	// Pos returns the offset of the node in the source text.
	Pos() int
	node()
}

// CompareOp is a comparison operator.
type CompareOp uint8

const (
	OpEqual CompareOp = iota
	OpNotEqual
	OpGreater
	OpLess
	OpGreaterEqual
	OpLessEqual
	OpContains
	OpStartsWith
	OpEndsWith
)

// String returns the operator as written in expressions.
func (op CompareOp) String() string {
	switch op {
	case OpEqual:
		return "="
	case OpNotEqual:
		return "!="
	case OpGreater:
		return ">"
	case OpLess:
		return "<"
	case OpGreaterEqual:
		return ">="
	case OpLessEqual:
		return "<="
	case OpContains:
		return "contains"
	case OpStartsWith:
		return "startswith"
	case OpEndsWith:
		return "endswith"
	default:
		return "(unknown)"
	}
}

// IsStringOp reports whether op only applies to string operands.
func (op CompareOp) IsStringOp() bool {
	return op == OpContains || op == OpStartsWith || op == OpEndsWith
}

// LogicalOp is a boolean connective.
type LogicalOp uint8

const (
	OpAnd LogicalOp = iota
	OpOr
)

// String returns the keyword form of the operator.
func (op LogicalOp) String() string {
	if op == OpOr {
		return "or"
	}
	return "and"
}

// IndexMode selects the shape of an indexer.
type IndexMode uint8

const (
	// IndexOrder only sorts: [asc X].
	IndexOrder IndexMode = iota
	// IndexSingle picks the first (0) or last (-1) element after sorting: [0 asc X].
	IndexSingle
	// IndexRange skips and takes after sorting: [skip take asc X].
	IndexRange
)

// LiteralKind identifies the type of a literal.
type LiteralKind uint8

const (
	LiteralNull LiteralKind = iota
	LiteralBool
	LiteralInt
	LiteralDecimal
	LiteralString
)

// Property reads a named member of the current value.
type Property struct {
	Position int
	Name     string
	// NullSafe marks a `Name?` segment: a nil value short-circuits the
	// rest of the navigation instead of failing.
	NullSafe bool
}

// Navigation is a dotted chain of steps. Each step is evaluated against the
// result of the previous one.
type Navigation struct {
	Position int
	Steps    []Node
}

// Filter keeps the elements of Source for which Condition holds.
type Filter struct {
	Position  int
	Source    Node
	Condition Node
}

// Indexer orders Source by a property and optionally selects from it.
type Indexer struct {
	Position   int
	Source     Node
	Mode       IndexMode
	Skip       int
	Take       int
	Descending bool
	OrderBy    string
}

// ProjectionProperty is one output member of a projection.
type ProjectionProperty struct {
	Position int
	Expr     Node
	// Alias is the name given with `as`, empty when omitted.
	Alias string
	// OutputKey is the member name in the output record.
	OutputKey string
	// Computed marks a parenthesised sub-expression or a group member
	// (`:func`, `{...}`), as opposed to a plain path.
	Computed bool
}

// Projection maps Source (an object, a collection or a grouping) to records.
type Projection struct {
	Position   int
	Source     Node
	Properties []ProjectionProperty
}

// RootProjection is a projection of the current value: `{A, B}`.
type RootProjection struct {
	Position   int
	Properties []ProjectionProperty
}

// Function applies a scalar, string, date, math or collection function.
type Function struct {
	Position int
	Source   Node
	Name     string
	Args     []Node
}

// Aggregate reduces a collection: count, sum, avg, min, max.
type Aggregate struct {
	Position int
	Source   Node
	Name     string
	// Selector is evaluated against each element, nil when omitted.
	Selector Node
}

// Predicate is a boolean function over a collection: any, all.
type Predicate struct {
	Position  int
	Source    Node
	Name      string
	Condition Node
}

// Comparison is a binary comparison.
type Comparison struct {
	Position int
	Left     Node
	Op       CompareOp
	Right    Node
}

// Logical joins two conditions.
type Logical struct {
	Position int
	Op       LogicalOp
	Left     Node
	Right    Node
}

// Literal is a constant. Value holds nil, bool, int64,
// decimal.Decimal or string depending on Kind.
type Literal struct {
	Position int
	Kind     LiteralKind
	Value    interface{}
	Text     string
}

// Coalesce yields Left unless it is null, Right otherwise.
type Coalesce struct {
	Position int
	Left     Node
	Right    Node
}

// Ternary is `Condition ? Then : Else`.
type Ternary struct {
	Position  int
	Condition Node
	Then      Node
	Else      Node
}

// GroupBy groups the elements of Source by one or more properties.
type GroupBy struct {
	Position int
	Source   Node
	Keys     []string
}

// GroupElements stands for the elements of the group being projected.
// It is only valid inside a projection over a GroupBy.
type GroupElements struct {
	Position int
}

func (n *Property) Pos() int       { return n.Position }
func (n *Navigation) Pos() int     { return n.Position }
func (n *Filter) Pos() int         { return n.Position }
func (n *Indexer) Pos() int        { return n.Position }
func (n *Projection) Pos() int     { return n.Position }
func (n *RootProjection) Pos() int { return n.Position }
func (n *Function) Pos() int       { return n.Position }
func (n *Aggregate) Pos() int      { return n.Position }
func (n *Predicate) Pos() int      { return n.Position }
func (n *Comparison) Pos() int     { return n.Position }
func (n *Logical) Pos() int        { return n.Position }
func (n *Literal) Pos() int        { return n.Position }
func (n *Coalesce) Pos() int       { return n.Position }
func (n *Ternary) Pos() int        { return n.Position }
func (n *GroupBy) Pos() int        { return n.Position }
func (n *GroupElements) Pos() int  { return n.Position }

func (*Property) node()       {}
func (*Navigation) node()     {}
func (*Filter) node()         {}
func (*Indexer) node()        {}
func (*Projection) node()     {}
func (*RootProjection) node() {}
func (*Function) node()       {}
func (*Aggregate) node()      {}
func (*Predicate) node()      {}
func (*Comparison) node()     {}
func (*Logical) node()        {}
func (*Literal) node()        {}
func (*Coalesce) node()       {}
func (*Ternary) node()        {}
func (*GroupBy) node()        {}
func (*GroupElements) node()  {}

// LastName returns the name of the last property read by n, following
// navigation steps and function suffixes. It is used to derive the output
// key of an unaliased projection member.
func LastName(n Node) string {
	switch n := n.(type) {
	case *Property:
		return n.Name
	case *Navigation:
		if len(n.Steps) == 0 {
			return ""
		}
		return LastName(n.Steps[len(n.Steps)-1])
	case *Function:
		return LastName(n.Source)
	case *Filter:
		return LastName(n.Source)
	case *Indexer:
		return LastName(n.Source)
	case *Aggregate:
		return LastName(n.Source)
	case *Predicate:
		return LastName(n.Source)
	default:
		return ""
	}
}
