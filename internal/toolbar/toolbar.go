// Package toolbar implements the editor's markdown formatting actions as pure
// functions over (text, selection). Offsets are rune indexes.
package toolbar

import (
	"fmt"
	"strings"
)

type Kind string

const (
	Bold    Kind = "bold"
	Italic  Kind = "italic"
	Code    Kind = "code"
	Heading Kind = "heading"
	Link    Kind = "link"
	List    Kind = "list"
	Quote   Kind = "quote"
)

type syntax struct {
	open        string
	close       string
	placeholder string
}

var syntaxes = map[Kind]syntax{
	Bold:    {open: "**", close: "**", placeholder: "bold text"},
	Italic:  {open: "*", close: "*", placeholder: "italic text"},
	Code:    {open: "`", close: "`", placeholder: "code"},
	Heading: {open: "## ", placeholder: "Heading"},
	Link:    {open: "[", close: "](url)", placeholder: "link text"},
	List:    {open: "- ", placeholder: "list item"},
	Quote:   {open: "> ", placeholder: "quote"},
}

// Kinds lists the operations in toolbar order.
func Kinds() []Kind {
	return []Kind{Bold, Italic, Code, Heading, Link, List, Quote}
}

func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := syntaxes[k]; !ok {
		return "", fmt.Errorf("unknown toolbar operation: %q", s)
	}
	return k, nil
}

// Result is the new text and selection after an operation. End is exclusive.
type Result struct {
	Text  string
	Start int
	End   int
}

// Apply wraps the selection [start, end) with kind's syntax. With an empty
// selection it inserts a placeholder and selects it. Out-of-range offsets are
// clamped and a reversed selection is normalized. Unknown kinds return the
// input unchanged.
func Apply(text string, start, end int, kind Kind) Result {
	rs := []rune(text)
	start, end = clamp(start, len(rs)), clamp(end, len(rs))
	if start > end {
		start, end = end, start
	}
	sx, ok := syntaxes[kind]
	if !ok {
		return Result{Text: text, Start: start, End: end}
	}

	inner := rs[start:end]
	if len(inner) == 0 {
		inner = []rune(sx.placeholder)
	}
	open, closing := []rune(sx.open), []rune(sx.close)

	out := make([]rune, 0, len(rs)+len(open)+len(inner)+len(closing))
	out = append(out, rs[:start]...)
	out = append(out, open...)
	out = append(out, inner...)
	out = append(out, closing...)
	out = append(out, rs[end:]...)

	selStart := start + len(open)
	return Result{Text: string(out), Start: selStart, End: selStart + len(inner)}
}

func clamp(i, n int) int {
	if i < 0 {
		return 0
	}
	if i > n {
		return n
	}
	return i
}
