package styles

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Theme groups the composed styles used by the commands.
var Theme = struct {
	Title   lipgloss.Style
	Muted   lipgloss.Style
	Key     lipgloss.Style
	Value   lipgloss.Style
	Route   lipgloss.Style
	Success lipgloss.Style
	Error   lipgloss.Style
	Warning lipgloss.Style
	Banner  lipgloss.Style
}{
	Title: lipgloss.NewStyle().
		Bold(true).
		Foreground(ColorPrimary),

	Muted: lipgloss.NewStyle().
		Foreground(ColorTextMuted),

	Key: lipgloss.NewStyle().
		Foreground(ColorSecondary).
		Width(10),

	Value: lipgloss.NewStyle().
		Foreground(ColorText),

	Route: lipgloss.NewStyle().
		Foreground(ColorAccent),

	Success: lipgloss.NewStyle().
		Foreground(ColorSuccess),

	Error: lipgloss.NewStyle().
		Foreground(ColorError),

	Warning: lipgloss.NewStyle().
		Foreground(ColorWarning),

	Banner: lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ColorPrimary).
		Padding(0, 2),
}

// RenderKeyValue renders one aligned "key value" row.
func RenderKeyValue(key, value string) string {
	return Theme.Key.Render(key) + " " + Theme.Value.Render(value)
}

// RenderCheck renders a check result line with its icon.
func RenderCheck(ok bool, label string) string {
	if ok {
		return Theme.Success.Render(IconSuccess + " " + label)
	}
	return Theme.Error.Render(IconError + " " + label)
}

// RenderBanner frames a title and rows in the banner box.
func RenderBanner(title string, rows ...string) string {
	body := Theme.Title.Render(title)
	if len(rows) > 0 {
		body += "\n\n" + strings.Join(rows, "\n")
	}
	return Theme.Banner.Render(body)
}
