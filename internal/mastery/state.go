package mastery

// Classification buckets a skill by its mastery and confidence.
type Classification string

const (
	ClassStrength        Classification = "strength"
	ClassDeveloping      Classification = "developing"
	ClassWeakness        Classification = "weakness"
	ClassNeedsAssessment Classification = "needs_assessment"
)

// Classification thresholds.
const (
	StrengthThreshold   = 0.7 // inclusive
	WeaknessThreshold   = 0.4 // inclusive
	ConfidenceThreshold = 0.5 // exclusive
)

// Classify buckets a skill. Without enough confidence the mastery value is
// not trusted and the skill needs assessment.
func Classify(mastery, confidence float64) Classification {
	switch {
	case confidence <= ConfidenceThreshold:
		return ClassNeedsAssessment
	case mastery >= StrengthThreshold:
		return ClassStrength
	case mastery <= WeaknessThreshold:
		return ClassWeakness
	default:
		return ClassDeveloping
	}
}
