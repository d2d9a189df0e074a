package tui

import "github.com/charmbracelet/lipgloss"

// Theme groups the lipgloss styles used across screens.
type Theme struct {
	Title  lipgloss.Style
	Muted  lipgloss.Style
	Accent lipgloss.Style
	Error  lipgloss.Style

	Row       lipgloss.Style
	RowActive lipgloss.Style

	Mine   lipgloss.Style
	Theirs lipgloss.Style

	Footer   lipgloss.Style
	InputBox lipgloss.Style
}

func NewTheme() Theme {
	accent := lipgloss.AdaptiveColor{Light: "#005F87", Dark: "#5FD7FF"}
	muted := lipgloss.AdaptiveColor{Light: "#6C6C6C", Dark: "#808080"}

	return Theme{
		Title:  lipgloss.NewStyle().Bold(true).Foreground(accent),
		Muted:  lipgloss.NewStyle().Foreground(muted),
		Accent: lipgloss.NewStyle().Foreground(accent),
		Error:  lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#AF0000", Dark: "#FF5F5F"}),

		Row:       lipgloss.NewStyle().PaddingLeft(2),
		RowActive: lipgloss.NewStyle().PaddingLeft(0).Bold(true).Foreground(accent).SetString("> "),

		Mine:   lipgloss.NewStyle().Foreground(accent),
		Theirs: lipgloss.NewStyle(),

		Footer: lipgloss.NewStyle().Foreground(muted),
		InputBox: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(muted).
			Padding(0, 1),
	}
}
