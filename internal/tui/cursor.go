package tui

import (
	"strings"

	"github.com/charmbracelet/bubbles/textarea"
)

// runeOffset converts a logical (row, col) cursor into a rune offset in text.
func runeOffset(text string, row, col int) int {
	lines := strings.Split(text, "\n")
	if row >= len(lines) {
		row = len(lines) - 1
	}
	off := 0
	for i := 0; i < row; i++ {
		off += len([]rune(lines[i])) + 1
	}
	if n := len([]rune(lines[row])); col > n {
		col = n
	}
	if col < 0 {
		col = 0
	}
	return off + col
}

// rowCol is the inverse of runeOffset.
func rowCol(text string, off int) (row, col int) {
	if off < 0 {
		off = 0
	}
	for i, r := range []rune(text) {
		if i == off {
			break
		}
		if r == '\n' {
			row++
			col = 0
			continue
		}
		col++
	}
	return row, col
}

func textareaOffset(ta *textarea.Model) int {
	li := ta.LineInfo()
	return runeOffset(ta.Value(), ta.Line(), li.StartColumn+li.ColumnOffset)
}

// setTextareaValue replaces the buffer and puts the cursor at rune offset off.
func setTextareaValue(ta *textarea.Model, text string, off int) {
	ta.SetValue(text)
	row, col := rowCol(text, off)
	for i := 0; ta.Line() > row && i < 100000; i++ {
		ta.CursorUp()
	}
	ta.SetCursor(col)
}
