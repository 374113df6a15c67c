package tui

import "github.com/charmbracelet/lipgloss"

// Colors used throughout the TUI.
var (
	colorRed     = lipgloss.Color("#FF5555")
	colorGreen   = lipgloss.Color("#50FA7B")
	colorYellow  = lipgloss.Color("#F1FA8C")
	colorCyan    = lipgloss.Color("#8BE9FD")
	colorMagenta = lipgloss.Color("#FF79C6")
	colorGray    = lipgloss.Color("#6272A4")
	colorDimGray = lipgloss.Color("#44475A")
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorMagenta)

	voiceStyle = lipgloss.NewStyle().
			Foreground(colorCyan)

	connectedDotStyle = lipgloss.NewStyle().
				Foreground(colorGreen).
				Bold(true)

	connectingDotStyle = lipgloss.NewStyle().
				Foreground(colorYellow).
				Bold(true)

	idleDotStyle = lipgloss.NewStyle().
			Foreground(colorGray)

	errorStyle = lipgloss.NewStyle().
			Foreground(colorRed).
			Bold(true)

	errorTextStyle = lipgloss.NewStyle().
			Foreground(colorRed)

	streamingStyle = lipgloss.NewStyle().
			Foreground(colorYellow)

	timestampStyle = lipgloss.NewStyle().
			Foreground(colorGray)

	userLabelStyle = lipgloss.NewStyle().
			Foreground(colorCyan)

	aiLabelStyle = lipgloss.NewStyle().
			Foreground(colorMagenta)

	linkStyle = lipgloss.NewStyle().
			Foreground(colorGray).
			Underline(true)

	dimStyle = lipgloss.NewStyle().
			Foreground(colorGray)

	footerKeyStyle = lipgloss.NewStyle().
			Foreground(colorYellow).
			Bold(true)

	footerDescStyle = lipgloss.NewStyle().
			Foreground(colorGray)

	dividerStyle = lipgloss.NewStyle().
			Foreground(colorDimGray)

	levelGreenStyle = lipgloss.NewStyle().
			Foreground(colorGreen)

	levelYellowStyle = lipgloss.NewStyle().
				Foreground(colorYellow)

	levelGrayStyle = lipgloss.NewStyle().
			Foreground(colorDimGray)

	speakingStyle = lipgloss.NewStyle().
			Foreground(colorMagenta).
			Bold(true)
)
