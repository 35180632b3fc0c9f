package theme

import (
	"charm.land/lipgloss/v2"

	"github.com/abhisek/adaptiq/internal/mastery"
)

// Color palette
var (
	Primary   = lipgloss.Color("#8B5CF6") // Vivid Purple
	Secondary = lipgloss.Color("#14B8A6") // Teal
	Accent    = lipgloss.Color("#F97316") // Orange
	Success   = lipgloss.Color("#22C55E") // Green
	Error     = lipgloss.Color("#F43F5E") // Rose
	Text      = lipgloss.Color("#F8FAFC") // White
	TextDim   = lipgloss.Color("#94A3B8") // Slate
	Border    = lipgloss.Color("#334155") // Slate
)

// Typography
var (
	Title = lipgloss.NewStyle().
		Bold(true).
		Foreground(Primary)

	Subtitle = lipgloss.NewStyle().
			Foreground(TextDim)

	Label = lipgloss.NewStyle().
		Foreground(TextDim).
		Width(22)

	Value = lipgloss.NewStyle().
		Foreground(Text).
		Bold(true)

	Hint = lipgloss.NewStyle().
		Foreground(TextDim).
		Italic(true)
)

// Layout
var (
	Card = lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(Border).
		Padding(0, 2)
)

// Outcomes
var (
	Pass = lipgloss.NewStyle().
		Foreground(Success).
		Bold(true)

	Fail = lipgloss.NewStyle().
		Foreground(Error).
		Bold(true)
)

// Classification styles keyed by skill class.
var (
	Strength = lipgloss.NewStyle().
			Foreground(Success).
			Bold(true)

	Developing = lipgloss.NewStyle().
			Foreground(Accent)

	Weakness = lipgloss.NewStyle().
			Foreground(Error).
			Bold(true)

	NeedsAssessment = lipgloss.NewStyle().
			Foreground(TextDim).
			Italic(true)
)

// ForClass returns the style used for a skill classification.
func ForClass(c mastery.Classification) lipgloss.Style {
	switch c {
	case mastery.ClassStrength:
		return Strength
	case mastery.ClassDeveloping:
		return Developing
	case mastery.ClassWeakness:
		return Weakness
	default:
		return NeedsAssessment
	}
}
