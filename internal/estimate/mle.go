package estimate

import (
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/abhisek/adaptiq/internal/irt"
	"github.com/abhisek/adaptiq/internal/metrics"
)

// curvatureEpsilon is the smallest |d²logL/dθ²| that still yields a step.
const curvatureEpsilon = 1e-10

// maxHalvings bounds the step-halving search within one iteration.
const maxHalvings = 30

// Estimator runs the ability estimators. It holds no estimation state; the
// logger only receives diagnostics.
type Estimator struct {
	logger *zap.Logger
}

// New returns an Estimator. A nil logger discards diagnostics.
func New(logger *zap.Logger) *Estimator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Estimator{logger: logger}
}

// Estimate dispatches to the requested method.
func (e *Estimator) Estimate(method Method, history []Observation, items irt.ItemLookup, mle MLEOptions, eap EAPOptions) (Result, error) {
	switch method {
	case MethodMLE, "":
		return e.MLE(history, items, mle)
	case MethodEAP:
		return e.EAP(history, items, eap)
	default:
		return Result{}, fmt.Errorf("unknown estimation method %q", method)
	}
}

// MLE maximizes the 3PL likelihood with Fisher scoring starting at
// opts.InitialTheta. Each step is score/information, capped at
// opts.MaxStep and halved until the log-likelihood does not decrease, and θ
// is kept within [MinTheta, MaxTheta]. The standard error is
// 1/sqrt(test information) at the final θ, or +Inf when no item carries
// information.
func (e *Estimator) MLE(history []Observation, items irt.ItemLookup, opts MLEOptions) (Result, error) {
	if err := opts.Validate(); err != nil {
		return Result{}, err
	}
	obs, err := resolve(history, items, opts.MissingItems)
	if err != nil {
		return Result{}, err
	}

	theta := clamp(opts.InitialTheta, opts.MinTheta, opts.MaxTheta)
	res := Result{Used: len(obs)}
	if len(obs) == 0 {
		res.Theta = theta
		res.StandardError = math.Inf(1)
		return res, nil
	}

	ll := logLikelihood(theta, obs)
	for iter := 0; iter < opts.MaxIterations; iter++ {
		score, curvature := derivatives(theta, obs)
		res.Iterations = iter + 1

		if math.Abs(curvature) < curvatureEpsilon {
			e.logger.Warn("mle curvature vanished, keeping current estimate",
				zap.Float64("theta", theta),
				zap.Float64("curvature", curvature),
				zap.Int("iterations", res.Iterations))
			metrics.EstimatorDegenerate.WithLabelValues("mle", "curvature").Inc()
			res.Degenerate = true
			break
		}

		step := score / math.Abs(curvature)
		if opts.MaxStep > 0 {
			step = clamp(step, -opts.MaxStep, opts.MaxStep)
		}
		next := clamp(theta+step, opts.MinTheta, opts.MaxTheta)
		nextLL := logLikelihood(next, obs)
		for h := 0; h < maxHalvings && nextLL < ll; h++ {
			step /= 2
			next = clamp(theta+step, opts.MinTheta, opts.MaxTheta)
			nextLL = logLikelihood(next, obs)
		}

		delta := next - theta
		theta, ll = next, nextLL
		if math.Abs(delta) < opts.Tolerance {
			res.Converged = theta > opts.MinTheta && theta < opts.MaxTheta
			break
		}
	}
	metrics.EstimatorIterations.Observe(float64(res.Iterations))

	if !res.Converged && !res.Degenerate {
		e.logger.Debug("mle stopped without interior convergence",
			zap.Float64("theta", theta),
			zap.Int("iterations", res.Iterations),
			zap.Int("responses", len(obs)))
	}

	var info float64
	for _, s := range obs {
		info += s.item.Information(theta)
	}
	res.Theta = theta
	res.StandardError = standardError(info)
	if math.IsInf(res.StandardError, 1) {
		metrics.EstimatorDegenerate.WithLabelValues("mle", "zero_information").Inc()
	}
	return res, nil
}

// logLikelihood is the 3PL log-likelihood of obs at theta.
func logLikelihood(theta float64, obs []scored) float64 {
	var ll float64
	for _, s := range obs {
		p := s.item.Probability(theta)
		if s.correct {
			ll += math.Log(p)
		} else {
			ll += math.Log1p(-p)
		}
	}
	return ll
}

// derivatives returns the first derivative of the 3PL log-likelihood and the
// negative test information at theta.
func derivatives(theta float64, obs []scored) (score, curvature float64) {
	for _, s := range obs {
		it := s.item
		p := it.Probability(theta)
		if p <= 0 || p >= 1 {
			continue
		}
		u := 0.0
		if s.correct {
			u = 1.0
		}
		weight := (p - it.Guessing) / (p * (1 - it.Guessing))
		score += irt.D * it.Discrimination * (u - p) * weight
		curvature -= it.Information(theta)
	}
	return score, curvature
}

// Validate reports unusable iteration settings.
func (o MLEOptions) Validate() error {
	if o.MaxIterations <= 0 {
		return fmt.Errorf("mle: max iterations must be positive, got %d", o.MaxIterations)
	}
	if o.Tolerance <= 0 {
		return fmt.Errorf("mle: tolerance must be positive, got %v", o.Tolerance)
	}
	if o.MaxStep < 0 {
		return fmt.Errorf("mle: max step must not be negative, got %v", o.MaxStep)
	}
	if o.MinTheta >= o.MaxTheta {
		return fmt.Errorf("mle: theta bounds [%v, %v] are empty", o.MinTheta, o.MaxTheta)
	}
	return nil
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
