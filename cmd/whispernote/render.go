package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/dshills/whispernote/internal/indexer"
	"github.com/dshills/whispernote/pkg/types"
)

const panelWidth = 80

var (
	cyan    = lipgloss.Color("#06B6D4")
	magenta = lipgloss.Color("#D946EF")
	yellow  = lipgloss.Color("#F9E2AF")
	red     = lipgloss.Color("#F38BA8")
	muted   = lipgloss.Color("#6C7086")

	titleStyle  = lipgloss.NewStyle().Bold(true)
	labelStyle  = lipgloss.NewStyle().Foreground(muted).Width(16)
	valueStyle  = lipgloss.NewStyle().Bold(true)
	errorStyle  = lipgloss.NewStyle().Foreground(red)
	promptStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#A6E3A1"))

	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			Padding(0, 1).
			Width(panelWidth)
)

// panel renders body in a bordered box with a bold title line
func panel(title, body string, border lipgloss.Color) string {
	content := titleStyle.Foreground(border).Render(title) + "\n" + body
	return panelStyle.BorderForeground(border).Render(content)
}

func renderAnswer(answer string) string {
	if strings.TrimSpace(answer) == "" {
		return panel("AI", "No answer found in response.", yellow)
	}
	return panel("AI", answer, cyan)
}

func renderContext(chunks []types.ContextChunk) []string {
	panels := make([]string, 0, len(chunks))
	for i, chunk := range chunks {
		title := fmt.Sprintf("Context %d", i+1)
		if chunk.Metadata != nil {
			title += "  " + chunk.Metadata.File
		}
		if chunk.Distance != nil {
			title += fmt.Sprintf("  (distance %.3f)", *chunk.Distance)
		}
		text := chunk.Text
		if text == "" {
			text = "[empty]"
		}
		panels = append(panels, panel(title, text, magenta))
	}
	return panels
}

func renderMetrics(m indexer.Metrics) string {
	row := func(label string, value any) string {
		return lipgloss.JoinHorizontal(lipgloss.Top, labelStyle.Render(label), valueStyle.Render(fmt.Sprint(value)))
	}

	rows := []string{
		row("Indexed files", m.FileCount),
		row("Indexed chunks", m.ChunkCount),
		row("Skipped files", m.FilesSkipped),
		row("Failed files", m.Failed()),
	}
	if len(m.ExtensionsIndexed) > 0 {
		rows = append(rows, row("Extensions", strings.Join(m.ExtensionsIndexed, ", ")))
	}
	for _, f := range m.FailedFiles {
		rows = append(rows, errorStyle.Render(fmt.Sprintf("  %s: %s", f.File, f.Error)))
	}
	return lipgloss.JoinVertical(lipgloss.Left, rows...)
}
