package cli

import "github.com/charmbracelet/lipgloss"

var (
	primaryStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#0A7D4F")).Bold(true)
	negativeStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF0000")).Bold(true)
	warningStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFFF00"))
	silentStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#808080"))
)

func Primary(text string) string  { return primaryStyle.Render(text) }
func Negative(text string) string { return negativeStyle.Render(text) }
func Warning(text string) string  { return warningStyle.Render(text) }
func Silent(text string) string   { return silentStyle.Render(text) }
