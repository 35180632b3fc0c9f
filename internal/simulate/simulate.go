// Package simulate administers complete adaptive tests to synthetic
// examinees and summarizes how well the engine recovers their ability.
package simulate

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"runtime"
	"sort"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/abhisek/adaptiq/internal/exposure"
	"github.com/abhisek/adaptiq/internal/irt"
	"github.com/abhisek/adaptiq/internal/mastery"
	"github.com/abhisek/adaptiq/internal/session"
	"github.com/abhisek/adaptiq/internal/stopping"
)

// Options configures a run.
type Options struct {
	Examinees int
	Workers   int // 0 = GOMAXPROCS
	Seed      uint64

	// FixedTheta gives every examinee the same true ability. When nil,
	// abilities are drawn from N(0, 1).
	FixedTheta *float64

	Subject string
	Grade   string
}

// Record is the outcome for one examinee.
type Record struct {
	Examinee      int     `json:"examinee"`
	SessionID     string  `json:"session_id"`
	TrueTheta     float64 `json:"true_theta"`
	Theta         float64 `json:"theta"`
	StandardError float64 `json:"standard_error"`
	Items         int     `json:"items"`
	StopReason    string  `json:"stop_reason"`
	Covered       bool    `json:"covered"`

	// Skills is the final classification of each diagnosed skill.
	Skills map[string]mastery.Classification `json:"skills,omitempty"`
}

// Result summarizes a run.
type Result struct {
	Records []Record `json:"records,omitempty"`

	Bias            float64        `json:"bias"`
	RMSE            float64        `json:"rmse"`
	Coverage        float64        `json:"coverage"`
	MeanLength      float64        `json:"mean_length"`
	MaxExposureRate float64        `json:"max_exposure_rate"`
	StopReasons     map[string]int `json:"stop_reasons"`
	Elapsed         time.Duration  `json:"elapsed_ns"`

	// SkillClasses counts examinees per skill and classification.
	SkillClasses map[string]map[mastery.Classification]int `json:"skill_classes,omitempty"`
}

// Simulator drives a session manager with synthetic responses.
type Simulator struct {
	mgr      *session.Manager
	items    session.ItemSource
	exposure exposure.Reader
	logger   *zap.Logger
}

// New returns a Simulator. exp should be the reader the manager's selector
// consults, so that the reported exposure rates match what was enforced.
func New(mgr *session.Manager, items session.ItemSource, exp exposure.Reader, logger *zap.Logger) *Simulator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Simulator{mgr: mgr, items: items, exposure: exp, logger: logger}
}

// Run administers opts.Examinees tests using a bounded worker pool. The
// first error cancels the remaining examinees.
func (s *Simulator) Run(ctx context.Context, opts Options) (*Result, error) {
	if opts.Examinees <= 0 {
		return nil, errors.New("simulate: examinees must be positive")
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	start := time.Now()
	records := make([]Record, opts.Examinees)
	z := stopping.ZScore(s.mgr.Policy().Config().ConfidenceLevel)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := 0; i < opts.Examinees; i++ {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			rec, err := s.examinee(gctx, i, opts, z)
			if err != nil {
				return fmt.Errorf("examinee %d: %w", i, err)
			}
			records[i] = rec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	res := summarize(records)
	res.MaxExposureRate = s.maxExposureRate(opts)
	res.Elapsed = time.Since(start)
	s.logger.Info("simulation finished",
		zap.Int("examinees", opts.Examinees),
		zap.Float64("bias", res.Bias),
		zap.Float64("rmse", res.RMSE),
		zap.Float64("coverage", res.Coverage),
		zap.Float64("mean_length", res.MeanLength),
		zap.Duration("elapsed", res.Elapsed))
	return res, nil
}

func (s *Simulator) examinee(ctx context.Context, i int, opts Options, z float64) (Record, error) {
	rng := rand.New(rand.NewPCG(opts.Seed, uint64(i)))
	trueTheta := rng.NormFloat64()
	if opts.FixedTheta != nil {
		trueTheta = *opts.FixedTheta
	}

	start, err := s.mgr.Start(ctx, fmt.Sprintf("examinee-%d", i), opts.Subject, opts.Grade)
	if err != nil {
		return Record{}, err
	}
	final := start.Final
	item := start.Item
	for item != nil {
		correct := rng.Float64() < item.Probability(trueTheta)
		res, err := s.mgr.SubmitResponse(ctx, start.Session.ID, item.ID, correct, 0)
		if err != nil {
			return Record{}, err
		}
		item, final = res.NextItem, res.Final
	}
	if final == nil {
		return Record{}, fmt.Errorf("session %s ended without a final report", start.Session.ID)
	}

	rec := Record{
		Examinee:      i,
		SessionID:     start.Session.ID,
		TrueTheta:     trueTheta,
		Theta:         final.Theta,
		StandardError: final.StandardError,
		Items:         final.Snapshot.ItemCount,
		StopReason:    final.Snapshot.StopReason,
		Covered:       math.Abs(final.Theta-trueTheta) <= z*final.StandardError,
	}
	if final.Diagnostics != nil && len(final.Diagnostics.Skills) > 0 {
		rec.Skills = make(map[string]mastery.Classification, len(final.Diagnostics.Skills))
		for _, sm := range final.Diagnostics.Skills {
			rec.Skills[sm.Skill] = sm.Class
		}
	}
	return rec, nil
}

func summarize(records []Record) *Result {
	res := &Result{Records: records, StopReasons: make(map[string]int)}
	n := float64(len(records))
	var sumErr, sumSq, covered, items float64
	for _, r := range records {
		e := r.Theta - r.TrueTheta
		sumErr += e
		sumSq += e * e
		if r.Covered {
			covered++
		}
		items += float64(r.Items)
		res.StopReasons[r.StopReason]++
		for skill, class := range r.Skills {
			if res.SkillClasses == nil {
				res.SkillClasses = make(map[string]map[mastery.Classification]int)
			}
			if res.SkillClasses[skill] == nil {
				res.SkillClasses[skill] = make(map[mastery.Classification]int)
			}
			res.SkillClasses[skill][class]++
		}
	}
	res.Bias = sumErr / n
	res.RMSE = math.Sqrt(sumSq / n)
	res.Coverage = covered / n
	res.MeanLength = items / n
	return res
}

func (s *Simulator) maxExposureRate(opts Options) float64 {
	var highest float64
	for _, it := range s.items.Pool(opts.Subject, opts.Grade) {
		if r := exposure.Rate(s.exposure, it.ID); r > highest {
			highest = r
		}
	}
	return highest
}

// ExposureRates returns the observed rate of every pool item, highest first.
func (s *Simulator) ExposureRates(subject, grade string) []ItemExposure {
	pool := s.items.Pool(subject, grade)
	out := make([]ItemExposure, 0, len(pool))
	for _, it := range pool {
		out = append(out, ItemExposure{Item: it, Rate: exposure.Rate(s.exposure, it.ID)})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Rate > out[j].Rate })
	return out
}

// ItemExposure pairs an item with its observed exposure rate.
type ItemExposure struct {
	Item irt.ItemParameters
	Rate float64
}
