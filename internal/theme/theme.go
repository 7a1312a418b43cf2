package theme

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/gopulse/pulse"
)

// Adaptive color pairs (dark terminal value, light terminal value).
var (
	ColorBlue      = lipgloss.AdaptiveColor{Dark: "#5B9BD5", Light: "#2B6CB0"}
	ColorLightBlue = lipgloss.AdaptiveColor{Dark: "#66CCFF", Light: "#3182CE"}
	ColorGreen     = lipgloss.AdaptiveColor{Dark: "#6BCB77", Light: "#2F855A"}
	ColorLightGrn  = lipgloss.AdaptiveColor{Dark: "#9CD326", Light: "#5F8C0E"}
	ColorYellow    = lipgloss.AdaptiveColor{Dark: "#FFD93D", Light: "#B7791F"}
	ColorGold      = lipgloss.AdaptiveColor{Dark: "#FFCB00", Light: "#A67C00"}
	ColorRed       = lipgloss.AdaptiveColor{Dark: "#FF6B6B", Light: "#C53030"}
	ColorOrange    = lipgloss.AdaptiveColor{Dark: "#FFA94D", Light: "#C05621"}
	ColorMagenta   = lipgloss.AdaptiveColor{Dark: "#CC5DE8", Light: "#805AD5"}
	ColorGray      = lipgloss.AdaptiveColor{Dark: "#868E96", Light: "#718096"}
	ColorWhite     = lipgloss.AdaptiveColor{Dark: "#F8F9FA", Light: "#1A202C"}
	ColorBlack     = lipgloss.AdaptiveColor{Dark: "#A0A0A0", Light: "#111111"}
	ColorSubtle    = lipgloss.AdaptiveColor{Dark: "#495057", Light: "#CBD5E0"}
	ColorBorder    = lipgloss.AdaptiveColor{Dark: "#495057", Light: "#E2E8F0"}
)

// HeaderStyle is used for top-level section headers and the application title.
var HeaderStyle = lipgloss.NewStyle().
	Bold(true).
	Foreground(ColorWhite).
	Background(ColorBlue).
	Padding(0, 1)

// StatusBarStyle is used for the bottom status bar.
var StatusBarStyle = lipgloss.NewStyle().
	Foreground(ColorWhite).
	Background(ColorSubtle).
	Padding(0, 1)

// DetailPanelStyle wraps the detail view content area.
var DetailPanelStyle = lipgloss.NewStyle().
	Padding(1, 2).
	Border(lipgloss.RoundedBorder()).
	BorderForeground(ColorBorder)

// ListItemStyle is the base style for items in a list.
var ListItemStyle = lipgloss.NewStyle().
	PaddingLeft(2)

// SelectedItemStyle highlights the currently focused list item.
var SelectedItemStyle = lipgloss.NewStyle().
	PaddingLeft(1).
	Bold(true).
	Foreground(ColorBlue).
	Border(lipgloss.NormalBorder(), false, false, false, true).
	BorderForeground(ColorBlue)

// HelpStyle is used for keyboard shortcut hints and help text.
var HelpStyle = lipgloss.NewStyle().
	Foreground(ColorGray).
	Italic(true)

// ErrorStyle renders error lines.
var ErrorStyle = lipgloss.NewStyle().
	Bold(true).
	Foreground(ColorRed)

// DimmedStyle renders secondary information such as ids and timestamps.
var DimmedStyle = lipgloss.NewStyle().
	Foreground(ColorGray)

// statusColors follows the remote color index order.
var statusColors = map[int]lipgloss.AdaptiveColor{
	pulse.StatusOrange:     ColorOrange,
	pulse.StatusLightGreen: ColorLightGrn,
	pulse.StatusRed:        ColorRed,
	pulse.StatusBlue:       ColorBlue,
	pulse.StatusPurple:     ColorMagenta,
	pulse.StatusGrey:       ColorGray,
	pulse.StatusGreen:      ColorGreen,
	pulse.StatusLightBlue:  ColorLightBlue,
	pulse.StatusGold:       ColorGold,
	pulse.StatusYellow:     ColorYellow,
	pulse.StatusBlack:      ColorBlack,
}

// StatusColor returns the color of a status index. Unknown indices are
// gray.
func StatusColor(index int) lipgloss.AdaptiveColor {
	if c, ok := statusColors[index]; ok {
		return c
	}
	return ColorGray
}

// StatusStyle returns a color-coded badge style for a status index.
func StatusStyle(index int) lipgloss.Style {
	return lipgloss.NewStyle().
		Bold(true).
		Padding(0, 1).
		Foreground(StatusColor(index))
}

// GroupStyle returns a style for a group title in the group's color.
// Colors the terminal cannot parse fall back to the default foreground.
func GroupStyle(color string) lipgloss.Style {
	base := lipgloss.NewStyle().Bold(true)
	if color == "" {
		return base
	}
	if color[0] == '#' {
		return base.Foreground(lipgloss.Color(color))
	}
	switch color {
	case "blue":
		return base.Foreground(ColorBlue)
	case "green":
		return base.Foreground(ColorGreen)
	case "red":
		return base.Foreground(ColorRed)
	case "orange":
		return base.Foreground(ColorOrange)
	case "purple":
		return base.Foreground(ColorMagenta)
	case "yellow":
		return base.Foreground(ColorYellow)
	default:
		return base
	}
}
