package simulate

import (
	"context"
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/abhisek/adaptiq/internal/exposure"
	"github.com/abhisek/adaptiq/internal/irt"
	"github.com/abhisek/adaptiq/internal/itembank"
	"github.com/abhisek/adaptiq/internal/selector"
	"github.com/abhisek/adaptiq/internal/session"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// calibratedBank spreads n items over [-3, 3] with discriminations cycling
// through 0.8 to 2.0.
func calibratedBank(n int) *itembank.Bank {
	entries := make([]itembank.Entry, n)
	for i := range entries {
		b := -3 + 6*float64(i)/float64(n-1)
		a := 0.8 + 0.3*float64(i%5)
		p := irt.NewItem(fmt.Sprintf("q-%03d", i), b, a)
		p.Guessing = 0.2
		entries[i] = itembank.Entry{
			Params:  p,
			Subject: "math",
			Grade:   "7",
			Skill:   []string{"number", "algebra", "geometry"}[i%3],
		}
	}
	return itembank.New(entries...)
}

func newSimulator(t *testing.T, bank *itembank.Bank, seed uint64) (*Simulator, *exposure.Tracker) {
	t.Helper()
	tracker := exposure.NewTracker(nil, nil)
	mgr, err := session.NewManager(session.DefaultConfig(), session.Options{
		Items:    bank,
		Selector: selector.NewSeeded(selector.DefaultConfig(), seed, nil),
		Exposure: tracker,
	})
	require.NoError(t, err)
	return New(mgr, bank, tracker, nil), tracker
}

func TestRunRecoversAbility(t *testing.T) {
	if testing.Short() {
		t.Skip("statistical run")
	}
	bank := calibratedBank(240)
	sim, tracker := newSimulator(t, bank, 3)

	res, err := sim.Run(context.Background(), Options{
		Examinees: 300,
		Workers:   4,
		Seed:      99,
		Subject:   "math",
		Grade:     "7",
	})
	require.NoError(t, err)
	require.Len(t, res.Records, 300)

	assert.Less(t, math.Abs(res.Bias), 0.15)
	assert.Less(t, res.RMSE, 0.5)
	assert.GreaterOrEqual(t, res.Coverage, 0.85)
	assert.GreaterOrEqual(t, res.MeanLength, 15.0)
	assert.LessOrEqual(t, res.MeanLength, 30.0)
	assert.LessOrEqual(t, res.MaxExposureRate, 0.25)
	assert.Equal(t, int64(300), tracker.TotalAssessments())

	total := 0
	for _, n := range res.StopReasons {
		total += n
	}
	assert.Equal(t, 300, total)

	for _, r := range res.Records {
		assert.NotEmpty(t, r.SessionID)
		assert.GreaterOrEqual(t, r.Items, 15)
		assert.LessOrEqual(t, r.Items, 30)
		assert.False(t, math.IsInf(r.StandardError, 0))
	}
}

func TestRunFixedThetaIsConsistent(t *testing.T) {
	if testing.Short() {
		t.Skip("statistical run")
	}
	theta := 1.0
	sim, _ := newSimulator(t, calibratedBank(240), 5)

	res, err := sim.Run(context.Background(), Options{
		Examinees:  150,
		Workers:    4,
		Seed:       7,
		FixedTheta: &theta,
		Subject:    "math",
		Grade:      "7",
	})
	require.NoError(t, err)

	var mean float64
	for _, r := range res.Records {
		assert.Equal(t, theta, r.TrueTheta)
		mean += r.Theta
	}
	mean /= float64(len(res.Records))
	assert.InDelta(t, theta, mean, 0.2)
}

func TestRunIsDeterministicWithOneWorker(t *testing.T) {
	run := func() []float64 {
		sim, _ := newSimulator(t, calibratedBank(120), 11)
		res, err := sim.Run(context.Background(), Options{
			Examinees: 20,
			Workers:   1,
			Seed:      1,
			Subject:   "math",
			Grade:     "7",
		})
		require.NoError(t, err)
		out := make([]float64, len(res.Records))
		for i, r := range res.Records {
			out[i] = r.Theta
		}
		return out
	}
	assert.Equal(t, run(), run())
}

func TestRunEmptyPoolCompletesImmediately(t *testing.T) {
	sim, _ := newSimulator(t, calibratedBank(10), 1)

	res, err := sim.Run(context.Background(), Options{Examinees: 3, Subject: "science", Grade: "7"})
	require.NoError(t, err)
	assert.Equal(t, map[string]int{session.StopReasonPoolExhausted: 3}, res.StopReasons)
	assert.Equal(t, 0.0, res.MeanLength)
	assert.Equal(t, 0.0, res.MaxExposureRate)
}

func TestRunRejectsBadOptions(t *testing.T) {
	sim, _ := newSimulator(t, calibratedBank(10), 1)
	_, err := sim.Run(context.Background(), Options{})
	assert.Error(t, err)
}

func TestRunHonorsCancellation(t *testing.T) {
	sim, _ := newSimulator(t, calibratedBank(60), 1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := sim.Run(ctx, Options{Examinees: 50, Workers: 2, Subject: "math", Grade: "7"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestExposureRatesSorted(t *testing.T) {
	sim, _ := newSimulator(t, calibratedBank(60), 2)
	_, err := sim.Run(context.Background(), Options{Examinees: 10, Workers: 2, Seed: 4, Subject: "math", Grade: "7"})
	require.NoError(t, err)

	rates := sim.ExposureRates("math", "7")
	require.Len(t, rates, 60)
	for i := 1; i < len(rates); i++ {
		assert.GreaterOrEqual(t, rates[i-1].Rate, rates[i].Rate)
	}
}

func TestRunAggregatesSkillClasses(t *testing.T) {
	bank := calibratedBank(90)
	sim, _ := newSimulator(t, bank, 5)

	res, err := sim.Run(context.Background(), Options{Examinees: 20, Workers: 2, Seed: 8, Subject: "math", Grade: "7"})
	require.NoError(t, err)

	require.Len(t, res.SkillClasses, 3)
	for _, skill := range []string{"number", "algebra", "geometry"} {
		total := 0
		for _, n := range res.SkillClasses[skill] {
			total += n
		}
		assert.Equal(t, 20, total, skill)
	}
	for _, r := range res.Records {
		assert.Len(t, r.Skills, 3)
	}
}
