package estimate

import (
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/abhisek/adaptiq/internal/irt"
	"github.com/abhisek/adaptiq/internal/metrics"
)

// posteriorEpsilon is the smallest normalizer accepted before falling back
// to the prior.
const posteriorEpsilon = 1e-10

// priorSpan is the grid half-width in prior standard deviations.
const priorSpan = 4.0

// EAP computes the expected a posteriori ability over an evenly spaced
// quadrature grid spanning the prior mean ± 4 SD. The likelihood is
// accumulated in log space and scaled by its maximum before normalizing, so
// long histories do not underflow. When no grid point carries posterior
// mass the prior mean is returned with a standard error of 1.
func (e *Estimator) EAP(history []Observation, items irt.ItemLookup, opts EAPOptions) (Result, error) {
	if err := opts.Validate(); err != nil {
		return Result{}, err
	}
	obs, err := resolve(history, items, opts.MissingItems)
	if err != nil {
		return Result{}, err
	}

	n := opts.QuadraturePoints
	lo := opts.PriorMean - priorSpan*opts.PriorSD
	step := 2 * priorSpan * opts.PriorSD / float64(n-1)

	grid := make([]float64, n)
	logPost := make([]float64, n)
	maxLog := math.Inf(-1)
	for k := range grid {
		theta := lo + float64(k)*step
		grid[k] = theta
		lp := logNormalDensity(theta, opts.PriorMean, opts.PriorSD)
		for _, s := range obs {
			p := s.item.Probability(theta)
			if s.correct {
				lp += math.Log(p)
			} else {
				lp += math.Log1p(-p)
			}
		}
		logPost[k] = lp
		if lp > maxLog {
			maxLog = lp
		}
	}

	var sum float64
	weights := logPost
	if !math.IsInf(maxLog, -1) && !math.IsNaN(maxLog) {
		for k, lp := range logPost {
			weights[k] = math.Exp(lp - maxLog)
			sum += weights[k]
		}
	}
	if sum < posteriorEpsilon || math.IsNaN(sum) {
		e.logger.Warn("eap posterior has no mass, falling back to prior mean",
			zap.Float64("posterior_sum", sum),
			zap.Int("responses", len(obs)))
		metrics.EstimatorDegenerate.WithLabelValues("eap", "posterior").Inc()
		return Result{Theta: opts.PriorMean, StandardError: 1.0, Degenerate: true, Used: len(obs)}, nil
	}

	var mean float64
	for k, w := range weights {
		mean += w * grid[k]
	}
	mean /= sum

	var variance float64
	for k, w := range weights {
		d := grid[k] - mean
		variance += w * d * d
	}
	variance /= sum

	return Result{Theta: mean, StandardError: math.Sqrt(variance), Converged: true, Used: len(obs)}, nil
}

func logNormalDensity(x, mean, sd float64) float64 {
	z := (x - mean) / sd
	return -0.5*z*z - math.Log(sd*math.Sqrt(2*math.Pi))
}

// Validate reports unusable quadrature settings.
func (o EAPOptions) Validate() error {
	if o.QuadraturePoints < 2 {
		return fmt.Errorf("eap: need at least 2 quadrature points, got %d", o.QuadraturePoints)
	}
	if o.PriorSD <= 0 {
		return fmt.Errorf("eap: prior standard deviation must be positive, got %v", o.PriorSD)
	}
	return nil
}
