package estimate

import (
	"errors"
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abhisek/adaptiq/internal/irt"
)

func twoPL(id string, b float64) irt.ItemParameters {
	return irt.ItemParameters{ID: id, Difficulty: b, Discrimination: 1, UpperAsymptote: 1}
}

func spreadBank(n int) (irt.ItemMap, []irt.ItemParameters) {
	items := make([]irt.ItemParameters, n)
	for i := range items {
		b := -3 + 6*float64(i)/float64(n-1)
		items[i] = irt.ItemParameters{
			ID:             "item-" + string(rune('A'+i%26)) + string(rune('a'+i/26)),
			Difficulty:     b,
			Discrimination: 1.2,
			Guessing:       0.2,
			UpperAsymptote: 1,
		}
	}
	return irt.NewItemMap(items...), items
}

func TestMLE_SymmetricHistoryConvergesToCenter(t *testing.T) {
	items := irt.NewItemMap(twoPL("easy", -1), twoPL("hard", 1))
	history := []Observation{{ItemID: "easy", Correct: true}, {ItemID: "hard", Correct: false}}

	opts := DefaultMLEOptions()
	opts.InitialTheta = 1.0
	res, err := New(nil).MLE(history, items, opts)
	require.NoError(t, err)

	assert.True(t, res.Converged)
	assert.InDelta(t, 0.0, res.Theta, 0.01)
	wantSE := 1 / math.Sqrt(2*irt.Information2PL(0, 1, 1))
	assert.InDelta(t, wantSE, res.StandardError, 0.01)
}

func TestMLE_AllCorrectStaysWithinBounds(t *testing.T) {
	items, all := spreadBank(20)
	history := make([]Observation, len(all))
	for i, it := range all {
		history[i] = Observation{ItemID: it.ID, Correct: true}
	}

	res, err := New(nil).MLE(history, items, DefaultMLEOptions())
	require.NoError(t, err)
	assert.Equal(t, 4.0, res.Theta)
	assert.False(t, res.Converged)
	assert.False(t, math.IsInf(res.StandardError, 0))
}

// The maximum does not depend on where the iteration starts, including the
// bounds a one-sided history leaves behind.
func TestMLE_SeedOnBoundRecovers(t *testing.T) {
	items := irt.NewItemMap(irt.NewItem("a", -1, 1.2), irt.NewItem("b", 0, 1.2))
	history := []Observation{{ItemID: "a", Correct: true}, {ItemID: "b", Correct: false}}
	est := New(nil)

	opts := DefaultMLEOptions()
	center, err := est.MLE(history, items, opts)
	require.NoError(t, err)
	require.True(t, center.Converged)
	require.Less(t, center.Theta, 0.0)

	for _, seed := range []float64{opts.MaxTheta, opts.MinTheta} {
		opts.InitialTheta = seed
		res, err := est.MLE(history, items, opts)
		require.NoError(t, err)
		assert.True(t, res.Converged, "seed %v", seed)
		assert.InDelta(t, center.Theta, res.Theta, 0.01, "seed %v", seed)
	}
}

func TestMLE_StepsNeverLowerLikelihood(t *testing.T) {
	items, all := spreadBank(12)
	history := []Observation{{ItemID: all[6].ID, Correct: true}}
	for _, it := range all[:6] {
		history = append(history, Observation{ItemID: it.ID, Correct: false})
	}
	obs, err := resolve(history, items, MissingItemError)
	require.NoError(t, err)

	opts := DefaultMLEOptions()
	opts.InitialTheta = opts.MaxTheta
	res, err := New(nil).MLE(history, items, opts)
	require.NoError(t, err)
	assert.Less(t, res.Theta, 0.0)
	assert.GreaterOrEqual(t, logLikelihood(res.Theta, obs), logLikelihood(opts.MaxTheta, obs))
}

func TestMLE_InvalidMaxStep(t *testing.T) {
	opts := DefaultMLEOptions()
	opts.MaxStep = -1
	_, err := New(nil).MLE(nil, irt.NewItemMap(), opts)
	assert.Error(t, err)
}

func TestMLE_NoUsableResponses(t *testing.T) {
	res, err := New(nil).MLE([]Observation{{ItemID: "ghost", Correct: true}}, irt.ItemMap{}, DefaultMLEOptions())
	require.NoError(t, err)
	assert.Equal(t, 0.0, res.Theta)
	assert.True(t, math.IsInf(res.StandardError, 1))
	assert.Zero(t, res.Used)
}

func TestMLE_VanishingCurvatureKeepsEstimate(t *testing.T) {
	items := irt.NewItemMap(irt.ItemParameters{ID: "trivial", Difficulty: -20, Discrimination: 4, UpperAsymptote: 1})
	opts := DefaultMLEOptions()
	opts.InitialTheta = 0.7

	res, err := New(nil).MLE([]Observation{{ItemID: "trivial", Correct: true}}, items, opts)
	require.NoError(t, err)
	assert.True(t, res.Degenerate)
	assert.Equal(t, 0.7, res.Theta)
	assert.True(t, math.IsInf(res.StandardError, 1))
}

func TestMLE_MissingItemPolicy(t *testing.T) {
	items := irt.NewItemMap(twoPL("easy", -1), twoPL("hard", 1))
	known := []Observation{{ItemID: "easy", Correct: true}, {ItemID: "hard", Correct: false}}
	withGhost := append([]Observation{{ItemID: "retired", Correct: true}}, known...)

	est := New(nil)
	base, err := est.MLE(known, items, DefaultMLEOptions())
	require.NoError(t, err)

	skipped, err := est.MLE(withGhost, items, DefaultMLEOptions())
	require.NoError(t, err)
	assert.Equal(t, base.Theta, skipped.Theta)
	assert.Equal(t, base.StandardError, skipped.StandardError)

	strict := DefaultMLEOptions()
	strict.MissingItems = MissingItemError
	_, err = est.MLE(withGhost, items, strict)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnknownItem))

	var missing *ErrMissingItem
	require.True(t, errors.As(err, &missing))
	assert.Equal(t, "retired", missing.ItemID)
}

func TestMLE_InvalidOptions(t *testing.T) {
	opts := DefaultMLEOptions()
	opts.MaxIterations = 0
	_, err := New(nil).MLE(nil, irt.ItemMap{}, opts)
	assert.Error(t, err)

	opts = DefaultMLEOptions()
	opts.MinTheta, opts.MaxTheta = 1, -1
	_, err = New(nil).MLE(nil, irt.ItemMap{}, opts)
	assert.Error(t, err)
}

// Responses sampled from a known ability should put the true value inside
// the estimate's 95% interval in the large majority of trials.
func TestMLE_ConsistencyAgainstKnownAbility(t *testing.T) {
	items, all := spreadBank(60)
	rng := rand.New(rand.NewPCG(42, 7))
	est := New(nil)

	for _, trueTheta := range []float64{-0.5, 0, 1} {
		const trials = 200
		covered := 0
		for range trials {
			history := make([]Observation, len(all))
			for i, it := range all {
				history[i] = Observation{ItemID: it.ID, Correct: rng.Float64() < it.Probability(trueTheta)}
			}
			res, err := est.MLE(history, items, DefaultMLEOptions())
			require.NoError(t, err)
			if math.Abs(res.Theta-trueTheta) <= 1.96*res.StandardError {
				covered++
			}
		}
		rate := float64(covered) / trials
		assert.GreaterOrEqual(t, rate, 0.90, "coverage at theta=%v", trueTheta)
	}
}

func TestEAP_NoResponsesReturnsPrior(t *testing.T) {
	res, err := New(nil).EAP(nil, irt.ItemMap{}, DefaultEAPOptions())
	require.NoError(t, err)
	assert.InDelta(t, 0.0, res.Theta, 1e-9)
	assert.InDelta(t, 1.0, res.StandardError, 0.01)
}

func TestEAP_AllCorrectIsHighButBounded(t *testing.T) {
	var all []irt.ItemParameters
	for i := range 24 {
		all = append(all, irt.NewItem("m"+string(rune('a'+i)), -0.5+float64(i)/23, 1.2))
	}
	items := irt.NewItemMap(all...)
	history := make([]Observation, len(all))
	for i, it := range all {
		history[i] = Observation{ItemID: it.ID, Correct: true}
	}

	opts := DefaultEAPOptions()
	res, err := New(nil).EAP(history, items, opts)
	require.NoError(t, err)
	assert.Greater(t, res.Theta, 1.0)
	assert.LessOrEqual(t, res.Theta, opts.PriorMean+4*opts.PriorSD)
	assert.False(t, math.IsInf(res.StandardError, 0))
	assert.False(t, res.Degenerate)
}

func TestEAP_AgreesWithMLEInTheInterior(t *testing.T) {
	items, all := spreadBank(60)
	rng := rand.New(rand.NewPCG(3, 11))
	history := make([]Observation, len(all))
	for i, it := range all {
		history[i] = Observation{ItemID: it.ID, Correct: rng.Float64() < it.Probability(0.3)}
	}

	est := New(nil)
	mle, err := est.MLE(history, items, DefaultMLEOptions())
	require.NoError(t, err)
	eap, err := est.EAP(history, items, DefaultEAPOptions())
	require.NoError(t, err)

	assert.InDelta(t, mle.Theta, eap.Theta, 0.5)
	assert.Less(t, eap.StandardError, 1.0)
}

func TestEAP_LongHistoryDoesNotUnderflow(t *testing.T) {
	var all []irt.ItemParameters
	var history []Observation
	for i := range 400 {
		it := irt.NewItem("long-"+string(rune('a'+i%26))+string(rune('a'+i/26)), 0, 1)
		all = append(all, it)
		history = append(history, Observation{ItemID: it.ID, Correct: i%2 == 0})
	}
	res, err := New(nil).EAP(history, irt.NewItemMap(all...), DefaultEAPOptions())
	require.NoError(t, err)
	assert.False(t, res.Degenerate)
	assert.Less(t, res.StandardError, 0.2)
}

func TestEAP_DegeneratePosteriorFallsBackToPrior(t *testing.T) {
	items := irt.NewItemMap(irt.ItemParameters{ID: "certain", Difficulty: -20, Discrimination: 4, UpperAsymptote: 1})
	opts := DefaultEAPOptions()
	opts.PriorMean = 0.4

	res, err := New(nil).EAP([]Observation{{ItemID: "certain", Correct: false}}, items, opts)
	require.NoError(t, err)
	assert.True(t, res.Degenerate)
	assert.Equal(t, 0.4, res.Theta)
	assert.Equal(t, 1.0, res.StandardError)
}

func TestEAP_InvalidOptions(t *testing.T) {
	opts := DefaultEAPOptions()
	opts.QuadraturePoints = 1
	_, err := New(nil).EAP(nil, irt.ItemMap{}, opts)
	assert.Error(t, err)
}

func TestEstimate_Dispatch(t *testing.T) {
	items := irt.NewItemMap(twoPL("easy", -1), twoPL("hard", 1))
	history := []Observation{{ItemID: "easy", Correct: true}, {ItemID: "hard", Correct: false}}
	est := New(nil)

	mle, err := est.Estimate(MethodMLE, history, items, DefaultMLEOptions(), DefaultEAPOptions())
	require.NoError(t, err)
	eap, err := est.Estimate(MethodEAP, history, items, DefaultMLEOptions(), DefaultEAPOptions())
	require.NoError(t, err)
	assert.NotEqual(t, mle.StandardError, eap.StandardError)

	_, err = est.Estimate("bayes-modal", history, items, DefaultMLEOptions(), DefaultEAPOptions())
	assert.Error(t, err)
}
