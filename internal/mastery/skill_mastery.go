package mastery

import "math"

// SkillMastery is the derived mastery estimate for one skill. It is always
// recomputable from the response log and the item→skill map.
type SkillMastery struct {
	Skill         string         `json:"skill"`
	Mastery       float64        `json:"mastery"`
	Confidence    float64        `json:"confidence"`
	ItemsAnswered int            `json:"items_answered"`
	Theta         float64        `json:"theta"`
	StandardError float64        `json:"-"`
	Class         Classification `json:"classification"`
}

// MasteryFromTheta rescales an ability onto [0,1] with the logistic function.
func MasteryFromTheta(theta float64) float64 {
	return 1 / (1 + math.Exp(-theta))
}

// ConfidenceFromSE maps a standard error onto [0,1]; an unknown (+Inf)
// standard error has zero confidence.
func ConfidenceFromSE(se float64) float64 {
	if math.IsInf(se, 1) || math.IsNaN(se) {
		return 0
	}
	return 1 / (1 + se)
}
