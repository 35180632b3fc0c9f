// Package estimate computes ability estimates from a response history.
//
// Two interchangeable estimators are provided: Newton–Raphson maximum
// likelihood (used during live administration) and quadrature-based
// expected a posteriori (used for the final reported ability). Both are pure
// functions of the history, the item calibration and the options passed in.
package estimate

import (
	"errors"
	"fmt"
	"math"

	"github.com/abhisek/adaptiq/internal/irt"
)

// Method names an estimation algorithm.
type Method string

const (
	MethodMLE Method = "mle"
	MethodEAP Method = "eap"
)

// MissingItemPolicy controls what happens when a response references an
// item that the lookup does not know.
type MissingItemPolicy string

const (
	// MissingItemSkip treats the response as contributing nothing.
	MissingItemSkip MissingItemPolicy = "skip"
	// MissingItemError rejects the history.
	MissingItemError MissingItemPolicy = "error"
)

// ErrUnknownItem is wrapped by ErrMissingItem.
var ErrUnknownItem = errors.New("unknown item")

// ErrMissingItem reports the first response whose item could not be resolved.
type ErrMissingItem struct {
	ItemID string
}

func (e *ErrMissingItem) Error() string {
	return fmt.Sprintf("response references %s %q", ErrUnknownItem, e.ItemID)
}

func (e *ErrMissingItem) Unwrap() error { return ErrUnknownItem }

// Observation is one scored response as seen by the estimators.
type Observation struct {
	ItemID  string
	Correct bool
}

// Result is an ability estimate with its standard error.
type Result struct {
	Theta         float64
	StandardError float64

	// Iterations is the number of Newton steps taken (MLE only).
	Iterations int
	// Converged reports that the step fell below the tolerance (MLE only).
	Converged bool
	// Degenerate is set when a numerical fallback produced the result.
	Degenerate bool
	// Used is the number of observations that contributed.
	Used int
}

// MLEOptions configures damped Fisher-scoring estimation.
type MLEOptions struct {
	InitialTheta  float64 `yaml:"initial_theta"`
	MaxIterations int     `yaml:"max_iterations"`
	Tolerance     float64 `yaml:"tolerance"`
	MinTheta      float64 `yaml:"min_theta"`
	MaxTheta      float64 `yaml:"max_theta"`
	// MaxStep caps |Δθ| per iteration. Zero leaves steps uncapped.
	MaxStep      float64           `yaml:"max_step"`
	MissingItems MissingItemPolicy `yaml:"missing_items"`
}

// DefaultMLEOptions returns the live-administration defaults.
func DefaultMLEOptions() MLEOptions {
	return MLEOptions{
		InitialTheta:  0.0,
		MaxIterations: 50,
		Tolerance:     0.001,
		MinTheta:      -4.0,
		MaxTheta:      4.0,
		MaxStep:       1.0,
		MissingItems:  MissingItemSkip,
	}
}

// EAPOptions configures quadrature EAP estimation.
type EAPOptions struct {
	PriorMean        float64           `yaml:"prior_mean"`
	PriorSD          float64           `yaml:"prior_sd"`
	QuadraturePoints int               `yaml:"quadrature_points"`
	MissingItems     MissingItemPolicy `yaml:"missing_items"`
}

// DefaultEAPOptions returns a standard normal prior on 41 points.
func DefaultEAPOptions() EAPOptions {
	return EAPOptions{
		PriorMean:        0.0,
		PriorSD:          1.0,
		QuadraturePoints: 41,
		MissingItems:     MissingItemSkip,
	}
}

// resolve pairs each observation with its calibration according to policy.
func resolve(history []Observation, items irt.ItemLookup, policy MissingItemPolicy) ([]scored, error) {
	out := make([]scored, 0, len(history))
	for _, obs := range history {
		p, ok := items.Lookup(obs.ItemID)
		if !ok {
			if policy == MissingItemError {
				return nil, &ErrMissingItem{ItemID: obs.ItemID}
			}
			continue
		}
		out = append(out, scored{item: p, correct: obs.Correct})
	}
	return out, nil
}

type scored struct {
	item    irt.ItemParameters
	correct bool
}

// standardError converts total information into a standard error.
func standardError(info float64) float64 {
	if info <= 0 {
		return math.Inf(1)
	}
	return 1 / math.Sqrt(info)
}
