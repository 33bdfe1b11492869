package prompt

import (
	"github.com/charmbracelet/lipgloss"
)

// Color palette (muted, readable on light backgrounds)
var (
	colorPrimary = lipgloss.Color("#374151") // Slate
	colorDanger  = lipgloss.Color("#C53030") // Muted red
	colorSubtle  = lipgloss.Color("#4B5563") // Gray
	colorAccent  = lipgloss.Color("#1D4ED8") // Accent blue
)

var (
	titleStyle = lipgloss.NewStyle().
			Foreground(colorPrimary).
			Bold(true)

	dangerStyle = lipgloss.NewStyle().
			Foreground(colorDanger).
			Bold(true)

	tableStyle = lipgloss.NewStyle().
			Foreground(colorSubtle).
			PaddingLeft(2)

	hintStyle = lipgloss.NewStyle().
			Foreground(colorSubtle).
			Italic(true)

	targetStyle = lipgloss.NewStyle().
			Foreground(colorAccent).
			Bold(true)
)
