package tui

import (
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"

	"mdpreview/internal/model"
)

func ac(light, dark string) lipgloss.AdaptiveColor {
	return lipgloss.AdaptiveColor{Light: light, Dark: dark}
}

var (
	colorMuted     lipgloss.TerminalColor = ac("240", "243")
	colorAccent    lipgloss.TerminalColor = ac("27", "62")
	colorAccentFg  lipgloss.TerminalColor = ac("255", "235")
	colorBorder    lipgloss.TerminalColor = ac("250", "240")
	colorError     lipgloss.TerminalColor = ac("160", "203")
	colorErrorBg   lipgloss.TerminalColor = ac("224", "52")
	colorInfo      lipgloss.TerminalColor = ac("25", "117")
	colorStatusBar lipgloss.TerminalColor = ac("254", "236")
)

func styleMuted() lipgloss.Style {
	st := lipgloss.NewStyle().Foreground(colorMuted)
	if lipgloss.HasDarkBackground() {
		return st.Faint(true)
	}
	return st
}

func styleTitle() lipgloss.Style {
	return lipgloss.NewStyle().Bold(true).Foreground(colorAccentFg).Background(colorAccent).Padding(0, 1)
}

func stylePane(focused bool) lipgloss.Style {
	border := colorBorder
	if focused {
		border = colorAccent
	}
	return lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(border)
}

func styleStatusBar() lipgloss.Style {
	return lipgloss.NewStyle().Background(colorStatusBar).Padding(0, 1)
}

// applyColorProfilePreference honors NO_COLOR and otherwise trusts TERM and
// COLORTERM over termenv's probe, which under-reports on some terminals.
func applyColorProfilePreference() {
	if strings.TrimSpace(os.Getenv("NO_COLOR")) != "" {
		lipgloss.SetColorProfile(termenv.Ascii)
		return
	}
	profile := termenv.ColorProfile()
	term := strings.ToLower(strings.TrimSpace(os.Getenv("TERM")))
	colorterm := strings.ToLower(strings.TrimSpace(os.Getenv("COLORTERM")))
	switch {
	case strings.Contains(colorterm, "truecolor") || strings.Contains(colorterm, "24bit"):
		if profile != termenv.Ascii {
			profile = termenv.TrueColor
		}
	case strings.Contains(term, "256color"):
		if profile == termenv.Ascii || profile == termenv.ANSI {
			profile = termenv.ANSI256
		}
	}
	lipgloss.SetColorProfile(profile)
}

// applyThemePreference decides the background once at startup. The user's
// theme setting wins; "system" falls back to MDPREVIEW_TUI_DARKBG and then the
// COLORFGBG heuristic ("fg;bg", bg < 7 is dark).
func applyThemePreference(theme model.Theme) {
	switch theme {
	case model.ThemeLight:
		lipgloss.SetHasDarkBackground(false)
		return
	case model.ThemeDark:
		lipgloss.SetHasDarkBackground(true)
		return
	}
	if v := strings.TrimSpace(os.Getenv("MDPREVIEW_TUI_DARKBG")); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			lipgloss.SetHasDarkBackground(b)
			return
		}
	}
	if dark, ok := colorFGBGDark(os.Getenv("COLORFGBG")); ok {
		lipgloss.SetHasDarkBackground(dark)
	}
}

func colorFGBGDark(v string) (dark, ok bool) {
	v = strings.TrimSpace(v)
	if v == "" {
		return false, false
	}
	parts := strings.Split(v, ";")
	bg, err := strconv.Atoi(strings.TrimSpace(parts[len(parts)-1]))
	if err != nil {
		return false, false
	}
	return bg < 7, true
}
