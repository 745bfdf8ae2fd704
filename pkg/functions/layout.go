package functions

import (
	"strings"
)

// LayoutPart is one piece of a date layout as accepted by format(): either
// a date field token (yyyy, MM, dd, HH, ...) or literal text.
type LayoutPart struct {
	Token   string
	Literal string
}

// layoutTokens lists the recognised field tokens, longest first so that
// "yyyy" wins over "yy".
var layoutTokens = []string{
	"yyyy", "yy",
	"MMMM", "MMM", "MM", "M",
	"dddd", "ddd", "dd", "d",
	"HH", "H", "hh", "h",
	"mm", "m",
	"ss", "s",
	"fff", "ff", "f",
	"tt",
	"zzz",
}

// SplitLayout splits a layout such as "dd/MM/yyyy HH:mm" into tokens and
// literal text. A backslash makes the next character literal.
func SplitLayout(layout string) []LayoutPart {
	var (
		parts []LayoutPart
		lit   strings.Builder
	)
	flush := func() {
		if lit.Len() > 0 {
			parts = append(parts, LayoutPart{Literal: lit.String()})
			lit.Reset()
		}
	}

	for i := 0; i < len(layout); {
		if layout[i] == '\\' && i+1 < len(layout) {
			lit.WriteByte(layout[i+1])
			i += 2
			continue
		}
		matched := ""
		for _, tok := range layoutTokens {
			if strings.HasPrefix(layout[i:], tok) {
				matched = tok
				break
			}
		}
		if matched == "" {
			lit.WriteByte(layout[i])
			i++
			continue
		}
		flush()
		parts = append(parts, LayoutPart{Token: matched})
		i += len(matched)
	}
	flush()
	return parts
}
