// Package cli holds the terminal palette shared by the grade commands.
package cli

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
)

var (
	accent  = lipgloss.Color("#5B8DEF")
	pass    = lipgloss.Color("#4ECDC4")
	caution = lipgloss.Color("#FFE66D")
	fail    = lipgloss.Color("#FF6B6B")
	note    = lipgloss.Color("#95E1D3")
	muted   = lipgloss.Color("#666666")

	// TitleStyle is used for section headings.
	TitleStyle = lipgloss.NewStyle().Bold(true).Foreground(accent).MarginBottom(1)

	SuccessStyle = lipgloss.NewStyle().Foreground(pass)
	WarningStyle = lipgloss.NewStyle().Foreground(caution)
	ErrorStyle   = lipgloss.NewStyle().Foreground(fail)
	InfoStyle    = lipgloss.NewStyle().Foreground(note)
	SubtleStyle  = lipgloss.NewStyle().Foreground(muted)
	BoldStyle    = lipgloss.NewStyle().Bold(true)

	cardStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#333")).
			Padding(0, 1)
)

const (
	ChartIcon  = "📊"
	ReviewIcon = "🔎"
)

// Score bands, in percent.
const (
	PassingScore = 70.0
	StrongScore  = 90.0
)

// FormatSuccess renders a message prefixed with a check mark.
func FormatSuccess(message string) string {
	return SuccessStyle.Render("✓ " + message)
}

// FormatError renders a message prefixed with a cross.
func FormatError(message string) string {
	return ErrorStyle.Render("✗ " + message)
}

func FormatWarning(message string) string {
	return WarningStyle.Render("⚠️ " + message)
}

func FormatInfo(message string) string {
	return InfoStyle.Render("ℹ️ " + message)
}

func FormatTitle(title string) string {
	return TitleStyle.Render(title)
}

// ScoreStyle picks a color for a percentage: strong scores pass, scores
// under PassingScore fail, the rest are cautionary.
func ScoreStyle(percentage float64) lipgloss.Style {
	switch {
	case percentage >= StrongScore:
		return SuccessStyle
	case percentage < PassingScore:
		return ErrorStyle
	default:
		return WarningStyle
	}
}

// FormatScore renders a score line colored by the band of percentage.
func FormatScore(percentage float64, format string, args ...any) string {
	return ScoreStyle(percentage).Bold(true).Render(fmt.Sprintf(format, args...))
}

// RenderCard frames one student's result under a heading.
func RenderCard(heading, body string) string {
	head := TitleStyle.UnsetMargins().Render(heading)
	return cardStyle.Render(lipgloss.JoinVertical(lipgloss.Left, head, body))
}
