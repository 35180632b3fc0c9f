package mastery

import (
	"fmt"
	"math"
	"strings"
)

// estimateUnknownSE marks a skill that has not been measured.
var estimateUnknownSE = math.Inf(1)

// maxNamed is how many skills a recommendation lists before summarizing.
const maxNamed = 3

// Recommendations turns the classification buckets into short advice.
func Recommendations(r *Report) []string {
	var out []string
	if len(r.Weaknesses) > 0 {
		out = append(out, "Focus on "+joinSkills(r.Weaknesses)+".")
	}
	if len(r.Developing) > 0 {
		out = append(out, "Keep practicing "+joinSkills(r.Developing)+".")
	}
	if len(r.Strengths) > 0 {
		out = append(out, "Ready for more challenging work in "+joinSkills(r.Strengths)+".")
	}
	if len(r.NeedsAssessment) > 0 {
		out = append(out, "Gather more evidence on "+joinSkills(r.NeedsAssessment)+".")
	}
	if len(out) == 0 {
		out = append(out, "No skill data available yet.")
	}
	return out
}

func joinSkills(skills []string) string {
	if len(skills) <= maxNamed {
		return strings.Join(skills, ", ")
	}
	return fmt.Sprintf("%s and %d more", strings.Join(skills[:maxNamed], ", "), len(skills)-maxNamed)
}
