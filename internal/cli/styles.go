package cli

import "github.com/charmbracelet/lipgloss"

// Color palette, ANSI 256 for broad terminal support.
var (
	ColorCyan   = lipgloss.Color("6")
	ColorYellow = lipgloss.Color("3")
	ColorRed    = lipgloss.Color("1")
	ColorGreen  = lipgloss.Color("2")
	ColorGray   = lipgloss.Color("8")
)

var (
	// OKStyle renders an OK reply status.
	OKStyle = lipgloss.NewStyle().Foreground(ColorGreen).Bold(true)
	// ErrorStyle renders BADMSG and CLI errors.
	ErrorStyle = lipgloss.NewStyle().Foreground(ColorRed).Bold(true)
	// MutedStyle renders secondary text (indices, timings).
	MutedStyle = lipgloss.NewStyle().Foreground(ColorGray)
	// LabelStyle renders field names in reports.
	LabelStyle = lipgloss.NewStyle().Foreground(ColorCyan).Bold(true)
	// ItemStyle renders document ids.
	ItemStyle = lipgloss.NewStyle().Foreground(ColorYellow)
)

// plain strips styling when colors are disabled.
func plain(s lipgloss.Style, noColor bool) lipgloss.Style {
	if noColor {
		return lipgloss.NewStyle()
	}
	return s
}
