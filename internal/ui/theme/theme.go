package theme

import (
	"charm.land/lipgloss/v2"
)

// Palette for terminal reports.
var (
	Primary = lipgloss.Color("#8B5CF6") // purple
	Good    = lipgloss.Color("#22C55E") // green
	Warn    = lipgloss.Color("#F97316") // orange
	Bad     = lipgloss.Color("#F43F5E") // rose
	Muted   = lipgloss.Color("#94A3B8") // slate
	Track   = lipgloss.Color("#334155")
)

// Text styles.
var (
	Heading = lipgloss.NewStyle().
		Bold(true).
		Foreground(Primary)

	Dim = lipgloss.NewStyle().
		Foreground(Muted).
		Italic(true)

	Positive = lipgloss.NewStyle().
			Foreground(Good)

	Negative = lipgloss.NewStyle().
			Foreground(Bad).
			Bold(true)
)

// Urgency styles for intervention tiers.
var (
	UrgencyHigh = lipgloss.NewStyle().
			Foreground(Bad).
			Bold(true)

	UrgencyMedium = lipgloss.NewStyle().
			Foreground(Warn)

	UrgencyLow = lipgloss.NewStyle().
			Foreground(Muted)
)

// ForUrgency returns the style for an urgency tier name.
func ForUrgency(tier string) lipgloss.Style {
	switch tier {
	case "high":
		return UrgencyHigh
	case "medium":
		return UrgencyMedium
	default:
		return UrgencyLow
	}
}
