package output

import "github.com/charmbracelet/lipgloss"

// theme is the set of lipgloss styles the pretty formatter renders with.
type theme struct {
	header, footer lipgloss.Style

	title, label, value, path, size lipgloss.Style
	ok, warn, fail, muted           lipgloss.Style
	column                          lipgloss.Style
}

func newTheme(accent, dim, bright lipgloss.Color) theme {
	fg := func(c lipgloss.Color) lipgloss.Style { return lipgloss.NewStyle().Foreground(c) }
	box := lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)

	return theme{
		header: box.BorderForeground(accent).MarginBottom(1),
		footer: box.BorderForeground(dim).MarginTop(1),
		title:  fg(accent).Bold(true),
		label:  fg(dim),
		value:  fg(bright),
		path:   fg(bright),
		size:   fg(accent).Bold(true),
		ok:     fg(lipgloss.Color("42")),
		warn:   fg(lipgloss.Color("214")),
		fail:   fg(lipgloss.Color("196")),
		muted:  fg(dim),
		column: fg(dim).Bold(true).PaddingRight(2),
	}
}

var styles = newTheme(lipgloss.Color("39"), lipgloss.Color("245"), lipgloss.Color("255"))
