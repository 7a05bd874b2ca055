package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"mdpreview/internal/editor"
	"mdpreview/internal/render"
)

func (m appModel) View() string {
	if m.width <= 0 || m.height <= 0 {
		return "Loading..."
	}
	if m.screen == screenDocuments {
		return m.docs.View()
	}

	body := m.viewBody()
	if m.alert != "" {
		body = m.viewAlert(lipgloss.Height(body))
	}
	return lipgloss.JoinVertical(lipgloss.Left,
		m.viewHeader(),
		body,
		m.viewNotice(),
		m.viewFooter(),
	)
}

func (m appModel) viewHeader() string {
	name := m.state.FileName()
	if m.renaming {
		name = m.title.View()
	}
	left := styleTitle().Render(name)
	parts := []string{}
	if label := m.state.StatusLabel(); label != "" {
		parts = append(parts, label)
	}
	if m.state.LoadStatus == editor.LoadLoading {
		parts = append(parts, "Loading...")
	}
	if m.state.AutoSave {
		parts = append(parts, "auto-save")
	}
	if m.opts.UserName != "" {
		parts = append(parts, m.opts.UserName)
	} else {
		parts = append(parts, "not signed in")
	}
	right := styleMuted().Render(strings.Join(parts, " · "))
	gap := m.width - lipgloss.Width(left) - lipgloss.Width(right)
	if gap < 1 {
		gap = 1
	}
	return normalizePane(left+strings.Repeat(" ", gap)+right, m.width, 1)
}

func (m appModel) viewBody() string {
	innerH := m.preview.Height
	pane := func(content string, outer int, focused bool) string {
		inner := outer - 2
		if inner < 1 {
			inner = 1
		}
		return stylePane(focused).Render(normalizePane(content, inner, innerH))
	}
	switch m.state.ViewMode {
	case editor.ViewEditor:
		return pane(m.ta.View(), m.width, !m.renaming)
	case editor.ViewPreview:
		return pane(m.preview.View(), m.width, true)
	default:
		l, r := splitWidths(m.width)
		return lipgloss.JoinHorizontal(lipgloss.Top,
			pane(m.ta.View(), l, !m.renaming),
			pane(m.preview.View(), r, false),
		)
	}
}

func (m appModel) viewAlert(height int) string {
	w := m.width * 2 / 3
	if w < 20 {
		w = m.width
	}
	box := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(colorError).
		Padding(1, 2).
		Render(wrapText(m.alert, w-6) + "\n\n" + styleMuted().Render("enter to dismiss"))
	return lipgloss.Place(m.width, height, lipgloss.Center, lipgloss.Center, box)
}

func (m appModel) viewNotice() string {
	if m.notice.text == "" {
		return normalizePane("", m.width, 1)
	}
	st := lipgloss.NewStyle().Foreground(colorInfo)
	if m.notice.level == noticeError {
		st = lipgloss.NewStyle().Foreground(colorError).Background(colorErrorBg)
	}
	line := strings.SplitN(wrapText(m.notice.text, m.width), "\n", 2)[0]
	return normalizePane(st.Render(line), m.width, 1)
}

func (m appModel) viewFooter() string {
	if m.showHelp {
		return m.help.View(m.keys)
	}
	s := render.Stats(m.state.Text)
	stats := fmt.Sprintf("%d words · %d chars · %d lines · %s", s.Words, s.Characters, s.Lines, m.state.ViewMode)
	help := m.help.View(m.keys)
	gap := m.width - lipgloss.Width(stats) - lipgloss.Width(help) - 2
	if gap < 1 {
		return normalizePane(styleStatusBar().Render(stats), m.width, 1)
	}
	return normalizePane(styleStatusBar().Render(stats+strings.Repeat(" ", gap)+help), m.width, 1)
}
