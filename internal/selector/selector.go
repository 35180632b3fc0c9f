// Package selector chooses the next item to administer.
//
// Selection maximizes Fisher information at the current ability estimate,
// subject to an exposure-rate cap, and then picks uniformly at random among
// the most informative few so that item order does not leak between
// test-takers.
package selector

import (
	"cmp"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"slices"
	"sync"

	"go.uber.org/zap"

	"github.com/abhisek/adaptiq/internal/exposure"
	"github.com/abhisek/adaptiq/internal/irt"
	"github.com/abhisek/adaptiq/internal/metrics"
)

// ErrPoolExhausted means every item in the pool has already been
// administered in the session.
var ErrPoolExhausted = errors.New("item pool exhausted")

// Config holds the selection constraints.
type Config struct {
	MaxExposureRate         float64 `yaml:"max_exposure_rate"`
	RandomizationPercentile float64 `yaml:"randomization_percentile"`
	// FallbackCandidates is how many least-exposed items are considered
	// when the exposure cap eliminates every candidate.
	FallbackCandidates int `yaml:"fallback_candidates"`
	// InitialDifficultyMin/Max bound the medium-difficulty band used when
	// no ability estimate exists yet.
	InitialDifficultyMin float64 `yaml:"initial_difficulty_min"`
	InitialDifficultyMax float64 `yaml:"initial_difficulty_max"`
	// InitialLeastExposedFraction is the share of least-exposed medium items
	// the first item is drawn from.
	InitialLeastExposedFraction float64 `yaml:"initial_least_exposed_fraction"`
}

// DefaultConfig returns the standard selection constraints.
func DefaultConfig() Config {
	return Config{
		MaxExposureRate:             0.20,
		RandomizationPercentile:     0.05,
		FallbackCandidates:          10,
		InitialDifficultyMin:        -0.5,
		InitialDifficultyMax:        0.5,
		InitialLeastExposedFraction: 0.10,
	}
}

// Validate reports out-of-range constraints.
func (c Config) Validate() error {
	if c.MaxExposureRate <= 0 || c.MaxExposureRate > 1 {
		return fmt.Errorf("selector: max exposure rate must be in (0,1], got %v", c.MaxExposureRate)
	}
	if c.RandomizationPercentile <= 0 || c.RandomizationPercentile > 1 {
		return fmt.Errorf("selector: randomization percentile must be in (0,1], got %v", c.RandomizationPercentile)
	}
	if c.FallbackCandidates <= 0 {
		return fmt.Errorf("selector: fallback candidates must be positive, got %d", c.FallbackCandidates)
	}
	if c.InitialDifficultyMin > c.InitialDifficultyMax {
		return fmt.Errorf("selector: initial difficulty band [%v, %v] is empty", c.InitialDifficultyMin, c.InitialDifficultyMax)
	}
	if c.InitialLeastExposedFraction <= 0 || c.InitialLeastExposedFraction > 1 {
		return fmt.Errorf("selector: initial least-exposed fraction must be in (0,1], got %v", c.InitialLeastExposedFraction)
	}
	return nil
}

// Request describes one selection.
type Request struct {
	Theta        float64
	Pool         []irt.ItemParameters
	Administered map[string]struct{}
	Exposure     exposure.Reader

	// ContentAreas maps item id to content area; ContentTargets is the
	// desired count per area. Both are optional.
	ContentAreas   map[string]string
	ContentTargets map[string]int
}

// Candidate is a scored item.
type Candidate struct {
	Item         irt.ItemParameters
	Information  float64
	ExposureRate float64
}

// Selector picks items. It is safe for concurrent use; the random source
// is guarded by a mutex.
type Selector struct {
	cfg    Config
	logger *zap.Logger

	mu  sync.Mutex
	rng *rand.Rand
}

// New returns a Selector drawing tie-breaks from src.
func New(cfg Config, src rand.Source, logger *zap.Logger) *Selector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Selector{cfg: cfg, logger: logger, rng: rand.New(src)}
}

// NewSeeded returns a Selector with a PCG source built from seed.
func NewSeeded(cfg Config, seed uint64, logger *zap.Logger) *Selector {
	return New(cfg, rand.NewPCG(seed, seed^0x9e3779b97f4a7c15), logger)
}

// Config returns the selector configuration.
func (s *Selector) Config() Config { return s.cfg }

// Next returns the steady-state choice for req.
func (s *Selector) Next(req Request) (Candidate, error) {
	candidates := s.score(req)
	if len(candidates) == 0 {
		metrics.ItemSelections.WithLabelValues("next", "exhausted").Inc()
		return Candidate{}, ErrPoolExhausted
	}

	eligible := make([]Candidate, 0, len(candidates))
	for _, c := range candidates {
		if c.ExposureRate < s.cfg.MaxExposureRate {
			eligible = append(eligible, c)
		}
	}
	outcome := "ok"
	if len(eligible) == 0 {
		outcome = "exposure_fallback"
		eligible = leastExposed(candidates, s.cfg.FallbackCandidates)
		s.logger.Debug("exposure cap eliminated every candidate, using least exposed",
			zap.Int("candidates", len(candidates)),
			zap.Int("fallback", len(eligible)))
	}

	if needed := ContentBalance(administeredIDs(req.Administered), req.ContentAreas, req.ContentTargets); anyNeeded(needed) {
		balanced := make([]Candidate, 0, len(eligible))
		for _, c := range eligible {
			if needed[req.ContentAreas[c.Item.ID]] > 0 {
				balanced = append(balanced, c)
			}
		}
		if len(balanced) > 0 {
			eligible = balanced
		}
	}

	slices.SortStableFunc(eligible, func(a, b Candidate) int {
		if c := cmp.Compare(b.Information, a.Information); c != 0 {
			return c
		}
		return cmp.Compare(a.Item.ID, b.Item.ID)
	})

	top := topCount(len(eligible), s.cfg.RandomizationPercentile)
	metrics.ItemSelections.WithLabelValues("next", outcome).Inc()
	return eligible[s.intN(top)], nil
}

// Initial returns a cold-start item: a medium-difficulty item drawn from
// the least-exposed share of the pool.
func (s *Selector) Initial(req Request) (Candidate, error) {
	candidates := s.score(req)
	if len(candidates) == 0 {
		metrics.ItemSelections.WithLabelValues("initial", "exhausted").Inc()
		return Candidate{}, ErrPoolExhausted
	}

	medium := make([]Candidate, 0, len(candidates))
	for _, c := range candidates {
		b := c.Item.Difficulty
		if b >= s.cfg.InitialDifficultyMin && b <= s.cfg.InitialDifficultyMax {
			medium = append(medium, c)
		}
	}
	outcome := "ok"
	if len(medium) == 0 {
		outcome = "difficulty_fallback"
		medium = candidates
	}

	medium = leastExposed(medium, len(medium))
	top := topCount(len(medium), s.cfg.InitialLeastExposedFraction)
	metrics.ItemSelections.WithLabelValues("initial", outcome).Inc()
	return medium[s.intN(top)], nil
}

// score filters administered items out of the pool and computes
// information and exposure for the rest.
func (s *Selector) score(req Request) []Candidate {
	out := make([]Candidate, 0, len(req.Pool))
	for _, it := range req.Pool {
		if _, done := req.Administered[it.ID]; done {
			continue
		}
		c := Candidate{Item: it, Information: it.Information(req.Theta)}
		if req.Exposure != nil {
			c.ExposureRate = exposure.Rate(req.Exposure, it.ID)
		}
		out = append(out, c)
	}
	return out
}

func (s *Selector) intN(n int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rng.IntN(n)
}

// leastExposed returns up to n candidates ordered by ascending exposure.
func leastExposed(cands []Candidate, n int) []Candidate {
	sorted := slices.Clone(cands)
	slices.SortStableFunc(sorted, func(a, b Candidate) int {
		if c := cmp.Compare(a.ExposureRate, b.ExposureRate); c != 0 {
			return c
		}
		return cmp.Compare(a.Item.ID, b.Item.ID)
	})
	if n > 0 && len(sorted) > n {
		sorted = sorted[:n]
	}
	return sorted
}

// topCount is ceil(n·fraction), at least 1 and at most n.
func topCount(n int, fraction float64) int {
	k := int(math.Ceil(float64(n) * fraction))
	return max(1, min(k, n))
}

func administeredIDs(set map[string]struct{}) []string {
	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	return ids
}
