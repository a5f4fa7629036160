package main

import (
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/jedib0t/go-pretty/v6/table"
)

var (
	colorPass  = lipgloss.AdaptiveColor{Light: "#2E7D32", Dark: "#A6E22E"}
	colorWarn  = lipgloss.AdaptiveColor{Light: "#B26A00", Dark: "#FFB454"}
	colorFail  = lipgloss.AdaptiveColor{Light: "#C62828", Dark: "#F07178"}
	colorMuted = lipgloss.AdaptiveColor{Light: "#616161", Dark: "#8A9199"}

	summaryTitleStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(colorPass)

	summaryLabelStyle = lipgloss.NewStyle().
				Foreground(colorMuted)

	summaryWarnStyle = lipgloss.NewStyle().
				Foreground(colorWarn)
)

// outcomeStyle colors a session outcome by how the run ended.
func outcomeStyle(outcome string) lipgloss.Style {
	switch outcome {
	case "count_reached", "exhausted":
		return lipgloss.NewStyle().Foreground(colorPass)
	case "no_results":
		return lipgloss.NewStyle().Foreground(colorWarn)
	default:
		return lipgloss.NewStyle().Foreground(colorFail)
	}
}

func newTable() table.Writer {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.SetOutputMirror(os.Stdout)
	return t
}
