package types

import (
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Dump writes an indented outline of the tree rooted at n, one node per
// line with its position.
func Dump(w io.Writer, n Node) error {
	d := dumper{w: w}
	d.node(n, 0, "")
	return d.err
}

type dumper struct {
	w   io.Writer
	err error
}

func (d *dumper) line(depth int, label, format string, args ...interface{}) {
	if d.err != nil {
		return
	}
	var b strings.Builder
	b.WriteString(strings.Repeat("  ", depth))
	if label != "" {
		b.WriteString(label)
		b.WriteString(": ")
	}
	fmt.Fprintf(&b, format, args...)
	b.WriteByte('\n')
	_, d.err = io.WriteString(d.w, b.String())
}

func (d *dumper) node(n Node, depth int, label string) {
	if n == nil {
		d.line(depth, label, "<nil>")
		return
	}
	at := "@" + strconv.Itoa(n.Pos())
	switch n := n.(type) {
	case *Property:
		safe := ""
		if n.NullSafe {
			safe = "?"
		}
		d.line(depth, label, "Property %s%s %s", n.Name, safe, at)
	case *Navigation:
		d.line(depth, label, "Navigation %s", at)
		for _, s := range n.Steps {
			d.node(s, depth+1, "")
		}
	case *Filter:
		d.line(depth, label, "Filter %s", at)
		d.node(n.Source, depth+1, "source")
		d.node(n.Condition, depth+1, "condition")
	case *Indexer:
		dir := "asc"
		if n.Descending {
			dir = "desc"
		}
		switch n.Mode {
		case IndexSingle:
			d.line(depth, label, "Indexer [%d %s %s] %s", n.Skip, dir, n.OrderBy, at)
		case IndexRange:
			d.line(depth, label, "Indexer [%d %d %s %s] %s", n.Skip, n.Take, dir, n.OrderBy, at)
		default:
			d.line(depth, label, "Indexer [%s %s] %s", dir, n.OrderBy, at)
		}
		d.node(n.Source, depth+1, "source")
	case *Projection:
		d.line(depth, label, "Projection %s", at)
		d.node(n.Source, depth+1, "source")
		d.members(n.Properties, depth+1)
	case *RootProjection:
		d.line(depth, label, "RootProjection %s", at)
		d.members(n.Properties, depth+1)
	case *Function:
		d.line(depth, label, "Function %s %s", n.Name, at)
		d.node(n.Source, depth+1, "source")
		for i, a := range n.Args {
			d.node(a, depth+1, "arg"+strconv.Itoa(i))
		}
	case *Aggregate:
		d.line(depth, label, "Aggregate %s %s", n.Name, at)
		d.node(n.Source, depth+1, "source")
		if n.Selector != nil {
			d.node(n.Selector, depth+1, "selector")
		}
	case *Predicate:
		d.line(depth, label, "Predicate %s %s", n.Name, at)
		d.node(n.Source, depth+1, "source")
		if n.Condition != nil {
			d.node(n.Condition, depth+1, "condition")
		}
	case *Comparison:
		d.line(depth, label, "Comparison %s %s", n.Op, at)
		d.node(n.Left, depth+1, "left")
		d.node(n.Right, depth+1, "right")
	case *Logical:
		d.line(depth, label, "Logical %s %s", n.Op, at)
		d.node(n.Left, depth+1, "left")
		d.node(n.Right, depth+1, "right")
	case *Literal:
		d.line(depth, label, "Literal %s %s", n.Text, at)
	case *Coalesce:
		d.line(depth, label, "Coalesce %s", at)
		d.node(n.Left, depth+1, "left")
		d.node(n.Right, depth+1, "right")
	case *Ternary:
		d.line(depth, label, "Ternary %s", at)
		d.node(n.Condition, depth+1, "if")
		d.node(n.Then, depth+1, "then")
		d.node(n.Else, depth+1, "else")
	case *GroupBy:
		d.line(depth, label, "GroupBy %s %s", strings.Join(n.Keys, ","), at)
		d.node(n.Source, depth+1, "source")
	case *GroupElements:
		d.line(depth, label, "GroupElements %s", at)
	default:
		d.line(depth, label, "%T %s", n, at)
	}
}

func (d *dumper) members(props []ProjectionProperty, depth int) {
	for _, p := range props {
		d.node(p.Expr, depth, p.OutputKey)
	}
}
