package tui

import "github.com/charmbracelet/lipgloss"

// Theme keeps every console style in one place.
type Theme struct {
	StatusOK      lipgloss.Style
	StatusRunning lipgloss.Style
	StatusFailed  lipgloss.Style
	StatusDead    lipgloss.Style

	Border  lipgloss.Style
	Title   lipgloss.Style
	Prompt  lipgloss.Style
	Stderr  lipgloss.Style
	Dim     lipgloss.Style
	Help    lipgloss.Style
}

func NewDefaultTheme() Theme {
	purple := lipgloss.Color("#874BFD")

	return Theme{
		StatusOK:      lipgloss.NewStyle().Foreground(lipgloss.Color("#00FF00")),
		StatusRunning: lipgloss.NewStyle().Foreground(lipgloss.Color("#FFFF00")),
		StatusFailed:  lipgloss.NewStyle().Foreground(lipgloss.Color("#FF0000")),
		StatusDead:    lipgloss.NewStyle().Foreground(lipgloss.Color("#666666")),

		Border: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(purple),
		Title: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Padding(0, 1),
		Prompt: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#61AFEF")),
		Stderr: lipgloss.NewStyle().Foreground(lipgloss.Color("#E06C75")),
		Dim:    lipgloss.NewStyle().Foreground(lipgloss.Color("#888888")),
		Help:   lipgloss.NewStyle().Foreground(lipgloss.Color("241")),
	}
}
