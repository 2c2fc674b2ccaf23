package cli

import (
	"testing"

	"github.com/charmbracelet/lipgloss"
	"github.com/stretchr/testify/assert"
)

func TestScoreStyle(t *testing.T) {
	tests := []struct {
		pct  float64
		want lipgloss.Color
	}{
		{100, pass},
		{StrongScore, pass},
		{85, caution},
		{PassingScore, caution},
		{69.99, fail},
		{0, fail},
	}

	for _, tt := range tests {
		assert.Equal(t, lipgloss.TerminalColor(tt.want), ScoreStyle(tt.pct).GetForeground(), "percentage %v", tt.pct)
	}
}

func TestFormatScore(t *testing.T) {
	out := FormatScore(77.78, "Total: %s/%s (%.2f%%)", "7", "9", 77.78)
	assert.Contains(t, out, "Total: 7/9 (77.78%)")
}

func TestRenderCard(t *testing.T) {
	out := RenderCard("Ana", "Question 1")
	assert.Contains(t, out, "Ana")
	assert.Contains(t, out, "Question 1")
}
