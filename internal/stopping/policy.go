// Package stopping decides when an adaptive test has measured enough.
package stopping

import (
	"encoding/json"
	"fmt"
	"math"
)

// Reason identifies why a decision was reached.
type Reason string

const (
	ReasonMinimumNotMet  Reason = "minimum_not_met"
	ReasonMaxItems       Reason = "max_items_reached"
	ReasonStandardError  Reason = "standard_error_below_threshold"
	ReasonIntervalNarrow Reason = "interval_narrow"
	ReasonContinue       Reason = "precision_not_reached"
)

// maxIntervalWidth is the confidence-interval width below which testing stops.
const maxIntervalWidth = 1.0

// Config holds the termination thresholds.
type Config struct {
	MinItems               int     `yaml:"min_items"`
	MaxItems               int     `yaml:"max_items"`
	StandardErrorThreshold float64 `yaml:"standard_error_threshold"`
	ConfidenceLevel        float64 `yaml:"confidence_level"`
}

// DefaultConfig returns the standard thresholds.
func DefaultConfig() Config {
	return Config{
		MinItems:               15,
		MaxItems:               30,
		StandardErrorThreshold: 0.30,
		ConfidenceLevel:        0.95,
	}
}

// Validate reports inconsistent thresholds.
func (c Config) Validate() error {
	if c.MinItems < 0 {
		return fmt.Errorf("stopping: min items must be non-negative, got %d", c.MinItems)
	}
	if c.MaxItems <= 0 || c.MaxItems < c.MinItems {
		return fmt.Errorf("stopping: max items %d must be positive and at least min items %d", c.MaxItems, c.MinItems)
	}
	if c.StandardErrorThreshold <= 0 {
		return fmt.Errorf("stopping: standard error threshold must be positive, got %v", c.StandardErrorThreshold)
	}
	if c.ConfidenceLevel <= 0 || c.ConfidenceLevel >= 1 {
		return fmt.Errorf("stopping: confidence level must be in (0,1), got %v", c.ConfidenceLevel)
	}
	return nil
}

// Decision is the outcome of one evaluation.
type Decision struct {
	Stop    bool
	Reason  Reason
	Message string
	// ItemsRequired is how many more items are needed before stopping is
	// even considered.
	ItemsRequired int
}

// Policy evaluates the termination rule.
type Policy struct {
	cfg Config
	z   float64
}

// New returns a Policy for cfg.
func New(cfg Config) Policy {
	return Policy{cfg: cfg, z: ZScore(cfg.ConfidenceLevel)}
}

// Config returns the policy thresholds.
func (p Policy) Config() Config { return p.cfg }

// Evaluate applies, in order: minimum length, maximum length, standard
// error threshold, interval width.
func (p Policy) Evaluate(itemCount int, standardError float64) Decision {
	switch {
	case itemCount < p.cfg.MinItems:
		need := p.cfg.MinItems - itemCount
		return Decision{
			Reason:        ReasonMinimumNotMet,
			Message:       fmt.Sprintf("%d more items required", need),
			ItemsRequired: need,
		}
	case itemCount >= p.cfg.MaxItems:
		return Decision{
			Stop:    true,
			Reason:  ReasonMaxItems,
			Message: fmt.Sprintf("maximum items reached (%d)", p.cfg.MaxItems),
		}
	case standardError <= p.cfg.StandardErrorThreshold:
		return Decision{
			Stop:    true,
			Reason:  ReasonStandardError,
			Message: fmt.Sprintf("standard error %.3f below threshold %.3f", standardError, p.cfg.StandardErrorThreshold),
		}
	case p.intervalWidth(standardError) < maxIntervalWidth:
		return Decision{
			Stop:    true,
			Reason:  ReasonIntervalNarrow,
			Message: fmt.Sprintf("confidence interval width %.3f sufficiently narrow", p.intervalWidth(standardError)),
		}
	default:
		return Decision{
			Reason:  ReasonContinue,
			Message: fmt.Sprintf("standard error %.3f above threshold %.3f", standardError, p.cfg.StandardErrorThreshold),
		}
	}
}

func (p Policy) intervalWidth(se float64) float64 {
	return 2 * p.z * se
}

// Stats is a progress snapshot for one session.
type Stats struct {
	ItemCount       int     `json:"item_count"`
	Theta           float64 `json:"theta"`
	StandardError   float64 `json:"standard_error"`
	CILower         float64 `json:"ci_lower"`
	CIUpper         float64 `json:"ci_upper"`
	CIWidth         float64 `json:"ci_width"`
	MinimumMet      bool    `json:"minimum_met"`
	SEThresholdMet  bool    `json:"se_threshold_met"`
	PercentComplete float64 `json:"percent_complete"`
}

// MarshalJSON writes the interval fields as null while the standard error
// is still infinite.
func (s Stats) MarshalJSON() ([]byte, error) {
	type plain Stats
	return json.Marshal(struct {
		plain
		StandardError *float64 `json:"standard_error"`
		CILower       *float64 `json:"ci_lower"`
		CIUpper       *float64 `json:"ci_upper"`
		CIWidth       *float64 `json:"ci_width"`
	}{
		plain:         plain(s),
		StandardError: finite(s.StandardError),
		CILower:       finite(s.CILower),
		CIUpper:       finite(s.CIUpper),
		CIWidth:       finite(s.CIWidth),
	})
}

func finite(v float64) *float64 {
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return nil
	}
	return &v
}

// Stats builds a progress snapshot. Percent complete is measured against
// the minimum test length and capped at 100.
func (p Policy) Stats(itemCount int, theta, standardError float64) Stats {
	half := p.z * standardError
	s := Stats{
		ItemCount:      itemCount,
		Theta:          theta,
		StandardError:  standardError,
		CILower:        theta - half,
		CIUpper:        theta + half,
		CIWidth:        2 * half,
		MinimumMet:     itemCount >= p.cfg.MinItems,
		SEThresholdMet: standardError <= p.cfg.StandardErrorThreshold,
	}
	if p.cfg.MinItems > 0 {
		s.PercentComplete = math.Min(100, 100*float64(itemCount)/float64(p.cfg.MinItems))
	} else {
		s.PercentComplete = 100
	}
	return s
}

// ZScore returns the two-sided normal critical value for a confidence
// level. The conventional levels use their tabulated values.
func ZScore(level float64) float64 {
	switch level {
	case 0.90:
		return 1.645
	case 0.95:
		return 1.96
	case 0.99:
		return 2.576
	}
	if level <= 0 || level >= 1 {
		return 1.96
	}
	return math.Sqrt2 * math.Erfinv(level)
}
