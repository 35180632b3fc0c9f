// Package mastery derives per-skill mastery diagnostics from a completed
// response history.
package mastery

import (
	"fmt"
	"sort"

	"github.com/abhisek/adaptiq/internal/estimate"
	"github.com/abhisek/adaptiq/internal/irt"
)

// Report is the diagnostic summary for one assessment.
type Report struct {
	OverallTheta    float64        `json:"overall_theta"`
	Skills          []SkillMastery `json:"skills"`
	Strengths       []string       `json:"strengths"`
	Developing      []string       `json:"developing"`
	Weaknesses      []string       `json:"weaknesses"`
	NeedsAssessment []string       `json:"needs_assessment"`
	Recommendations []string       `json:"recommendations"`
}

// Skill returns the entry for name.
func (r *Report) Skill(name string) (SkillMastery, bool) {
	for _, sm := range r.Skills {
		if sm.Skill == name {
			return sm, true
		}
	}
	return SkillMastery{}, false
}

// Analyzer computes skill diagnostics by re-running the MLE estimator over
// the responses assigned to each skill.
type Analyzer struct {
	estimator *estimate.Estimator
	opts      estimate.MLEOptions
}

// NewAnalyzer returns an Analyzer using opts for every per-skill estimate.
// The initial theta in opts is replaced by the overall ability.
func NewAnalyzer(est *estimate.Estimator, opts estimate.MLEOptions) *Analyzer {
	if est == nil {
		est = estimate.New(nil)
	}
	return &Analyzer{estimator: est, opts: opts}
}

// Diagnose partitions history by skill and estimates each skill separately,
// seeded at overallTheta. Skills in the map without responses fall back to
// the overall ability with zero confidence. Responses to items without a
// skill are ignored.
func (a *Analyzer) Diagnose(history []estimate.Observation, skills map[string]string, items irt.ItemLookup, overallTheta float64) (*Report, error) {
	bySkill := make(map[string][]estimate.Observation)
	for _, skill := range skills {
		if _, ok := bySkill[skill]; !ok {
			bySkill[skill] = nil
		}
	}
	for _, obs := range history {
		skill, ok := skills[obs.ItemID]
		if !ok {
			continue
		}
		bySkill[skill] = append(bySkill[skill], obs)
	}

	opts := a.opts
	opts.InitialTheta = overallTheta

	report := &Report{OverallTheta: overallTheta}
	for skill, obs := range bySkill {
		sm := SkillMastery{Skill: skill, ItemsAnswered: len(obs)}
		if len(obs) == 0 {
			sm.Theta = overallTheta
			sm.StandardError = estimateUnknownSE
			sm.Mastery = MasteryFromTheta(overallTheta)
			sm.Confidence = 0
		} else {
			res, err := a.estimator.MLE(obs, items, opts)
			if err != nil {
				return nil, fmt.Errorf("estimate skill %q: %w", skill, err)
			}
			sm.Theta = res.Theta
			sm.StandardError = res.StandardError
			sm.Mastery = MasteryFromTheta(res.Theta)
			sm.Confidence = ConfidenceFromSE(res.StandardError)
		}
		sm.Class = Classify(sm.Mastery, sm.Confidence)
		report.Skills = append(report.Skills, sm)
	}

	sort.Slice(report.Skills, func(i, j int) bool { return report.Skills[i].Skill < report.Skills[j].Skill })
	for _, sm := range report.Skills {
		switch sm.Class {
		case ClassStrength:
			report.Strengths = append(report.Strengths, sm.Skill)
		case ClassDeveloping:
			report.Developing = append(report.Developing, sm.Skill)
		case ClassWeakness:
			report.Weaknesses = append(report.Weaknesses, sm.Skill)
		default:
			report.NeedsAssessment = append(report.NeedsAssessment, sm.Skill)
		}
	}
	report.Recommendations = Recommendations(report)
	return report, nil
}
