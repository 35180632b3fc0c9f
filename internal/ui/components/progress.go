package components

import (
	"fmt"
	"strings"

	"charm.land/lipgloss/v2"

	"github.com/abhisek/adaptiq/internal/ui/theme"
)

// Meter is a horizontal bar for a value in [0, 1], such as a mastery
// level or an exposure rate.
type Meter struct {
	Label       string
	Value       float64
	ShowPercent bool
	Width       int

	// Limit marks a threshold; values above it render in the error color.
	// Zero disables the check.
	Limit float64
}

// NewMeter creates a meter.
func NewMeter(label string, value float64, width int) Meter {
	return Meter{
		Label:       label,
		Value:       value,
		ShowPercent: true,
		Width:       width,
	}
}

// Cells returns how many of width cells are filled for value.
func Cells(value float64, width int) int {
	filled := int(float64(width)*value + 0.5)
	if filled > width {
		filled = width
	}
	if filled < 0 {
		filled = 0
	}
	return filled
}

// View renders the meter.
func (m Meter) View() string {
	var result string

	if m.Label != "" {
		result += theme.Label.Render(truncate(m.Label, theme.Label.GetWidth()-1))
	}

	labelWidth := lipgloss.Width(result)
	percentWidth := 0
	if m.ShowPercent {
		percentWidth = 6 // "  100%"
	}

	barWidth := m.Width - labelWidth - percentWidth
	if barWidth < 4 {
		barWidth = 4
	}

	filled := Cells(m.Value, barWidth)
	fill := theme.Secondary
	if m.Limit > 0 && m.Value > m.Limit {
		fill = theme.Error
	}

	result += lipgloss.NewStyle().Background(fill).Render(strings.Repeat(" ", filled))
	result += lipgloss.NewStyle().Background(theme.Border).Render(strings.Repeat(" ", barWidth-filled))

	if m.ShowPercent {
		result += lipgloss.NewStyle().
			Foreground(theme.TextDim).
			Render(fmt.Sprintf("  %3d%%", int(m.Value*100+0.5)))
	}

	return result
}

func truncate(s string, n int) string {
	r := []rune(s)
	if n <= 0 || len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
