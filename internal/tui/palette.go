package tui

import "github.com/charmbracelet/lipgloss"

var (
	ColorInk     = lipgloss.Color("#E5E9F0")
	ColorDim     = lipgloss.Color("#7A8291")
	ColorAccent  = lipgloss.Color("#88C0D0")
	ColorSuccess = lipgloss.Color("#A3BE8C")
	ColorWarn    = lipgloss.Color("#EBCB8B")
	ColorError   = lipgloss.Color("#BF616A")
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(ColorAccent)
	labelStyle  = lipgloss.NewStyle().Foreground(ColorInk)
	barStyle    = lipgloss.NewStyle().Foreground(ColorAccent)
	dimStyle    = lipgloss.NewStyle().Foreground(ColorDim)
	keepStyle   = lipgloss.NewStyle().Foreground(ColorSuccess)
	rejectStyle = lipgloss.NewStyle().Foreground(ColorWarn)
	errorStyle  = lipgloss.NewStyle().Bold(true).Foreground(ColorError)
)
