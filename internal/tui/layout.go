package tui

import (
	"strings"

	xansi "github.com/charmbracelet/x/ansi"
	"github.com/muesli/reflow/wordwrap"
)

// normalizePane forces s to exactly width columns (ANSI-aware) and height
// lines so lipgloss.JoinHorizontal keeps split panes aligned.
func normalizePane(s string, width, height int) string {
	if width < 0 {
		width = 0
	}
	if height < 0 {
		height = 0
	}
	lines := strings.Split(s, "\n")
	if height > 0 {
		if len(lines) > height {
			lines = lines[:height]
		}
		for len(lines) < height {
			lines = append(lines, "")
		}
	}
	for i, ln := range lines {
		// Bound the width computation on pathological lines.
		if width > 0 && len(ln) > 8192 {
			ln = xansi.Cut(ln, 0, width)
		}
		w := xansi.StringWidth(ln)
		if w > width {
			switch {
			case width <= 0:
				ln = ""
			case width == 1:
				ln = xansi.Cut(ln, 0, 1)
			default:
				ln = xansi.Cut(ln, 0, width-1) + "…"
			}
			w = xansi.StringWidth(ln)
		}
		if w < width {
			ln += strings.Repeat(" ", width-w)
		}
		lines[i] = ln
	}
	return strings.Join(lines, "\n")
}

// wrapText word-wraps plain text (notices, alerts) to width.
func wrapText(s string, width int) string {
	if width < 10 {
		width = 10
	}
	return wordwrap.String(s, width)
}

// splitWidths divides total between the editor and preview panes.
func splitWidths(total int) (left, right int) {
	if total < 2 {
		return total, 0
	}
	left = total / 2
	return left, total - left
}
