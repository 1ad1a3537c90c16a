// Package styles holds the terminal palette and composed lipgloss styles of
// the devproxy CLI.
package styles

import "github.com/charmbracelet/lipgloss"

// Palette, tuned for dark terminal backgrounds.
var (
	NeonGreen  = lipgloss.Color("#00ff88")
	NeonCyan   = lipgloss.Color("#00ccff")
	NeonViolet = lipgloss.Color("#a78bfa")
	NeonRed    = lipgloss.Color("#ff4444")
	NeonYellow = lipgloss.Color("#fbbf24")

	Neutral200 = lipgloss.Color("#e5e5e5")
	Neutral500 = lipgloss.Color("#737373")
	Neutral700 = lipgloss.Color("#404040")

	ColorPrimary   = NeonGreen
	ColorSecondary = NeonCyan
	ColorAccent    = NeonViolet
	ColorSuccess   = NeonGreen
	ColorWarning   = NeonYellow
	ColorError     = NeonRed

	ColorText      = Neutral200
	ColorTextMuted = Neutral500
	ColorBorder    = Neutral700
)
