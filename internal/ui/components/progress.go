package components

import (
	"fmt"
	"strings"

	"charm.land/lipgloss/v2"

	"github.com/abhisek/mca/internal/ui/theme"
)

// ProbabilityBar renders a labeled horizontal bar for a value in [0,1].
type ProbabilityBar struct {
	Label     string
	Value     float64
	ShowValue bool
	Width     int
	Highlight bool
}

// NewProbabilityBar creates a bar of the given total width.
func NewProbabilityBar(label string, value float64, width int) ProbabilityBar {
	return ProbabilityBar{Label: label, Value: value, ShowValue: true, Width: width}
}

// Cells returns the number of filled cells for a bar of barWidth.
func Cells(value float64, barWidth int) int {
	filled := int(float64(barWidth)*value + 0.5)
	if filled > barWidth {
		return barWidth
	}
	if filled < 0 {
		return 0
	}
	return filled
}

// View renders the bar.
func (p ProbabilityBar) View() string {
	var b strings.Builder
	if p.Label != "" {
		b.WriteString(p.Label)
		b.WriteString(" ")
	}

	valueWidth := 0
	if p.ShowValue {
		valueWidth = 7 // " 100.0%"
	}
	barWidth := p.Width - lipgloss.Width(b.String()) - valueWidth
	if barWidth < 4 {
		barWidth = 4
	}

	filled := Cells(p.Value, barWidth)
	fill := theme.Positive
	if p.Highlight {
		fill = theme.Heading
	}
	b.WriteString(fill.Render(strings.Repeat("█", filled)))
	b.WriteString(lipgloss.NewStyle().Foreground(theme.Track).Render(strings.Repeat("░", barWidth-filled)))

	if p.ShowValue {
		b.WriteString(theme.Dim.Render(fmt.Sprintf(" %5.1f%%", p.Value*100)))
	}
	return b.String()
}
