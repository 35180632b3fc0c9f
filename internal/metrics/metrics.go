// Package metrics holds the Prometheus instruments for the adaptive engine.
package metrics

import (
	"fmt"
	"io"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/common/expfmt"
)

var (
	// EstimatorDegenerate counts numerical fallbacks by estimator and kind.
	EstimatorDegenerate = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "adaptiq_estimator_degenerate_total",
		Help: "Numerical degeneracies recovered by the ability estimators",
	}, []string{"estimator", "kind"})

	// EstimatorIterations observes Newton steps per MLE call.
	EstimatorIterations = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "adaptiq_mle_iterations",
		Help:    "Newton-Raphson iterations per MLE estimate",
		Buckets: []float64{1, 2, 3, 5, 8, 13, 21, 34, 50},
	})

	// ItemSelections counts selector outcomes.
	ItemSelections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "adaptiq_item_selections_total",
		Help: "Item selections by mode and outcome",
	}, []string{"mode", "outcome"})

	// ResponsesSubmitted counts accepted and rejected submissions.
	ResponsesSubmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "adaptiq_responses_submitted_total",
		Help: "Response submissions by result",
	}, []string{"result"})

	// SessionTransitions counts lifecycle transitions by target status.
	SessionTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "adaptiq_session_transitions_total",
		Help: "Session lifecycle transitions by status and reason",
	}, []string{"status", "reason"})

	// ActiveSessions tracks sessions currently in progress.
	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "adaptiq_active_sessions",
		Help: "Sessions currently in progress",
	})

	// ExposureDeliveries counts exposure notifications sent to the external sink.
	ExposureDeliveries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "adaptiq_exposure_deliveries_total",
		Help: "Exposure increments delivered to the sink by result",
	}, []string{"result"})

	// SnapshotWrites counts session snapshot emissions by result.
	SnapshotWrites = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "adaptiq_snapshot_writes_total",
		Help: "Session snapshot emissions by result",
	}, []string{"result"})

	// SnapshotFlushes counts background snapshot writes by result.
	SnapshotFlushes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "adaptiq_snapshot_flushes_total",
		Help: "Queued session snapshots written, failed or superseded before writing",
	}, []string{"result"})

	// ItemBankReloads counts item bank reload attempts by result.
	ItemBankReloads = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "adaptiq_itembank_reloads_total",
		Help: "Item bank reloads by result",
	}, []string{"result"})
)

// WriteText writes every metric family gathered from g in the Prometheus
// text exposition format.
func WriteText(w io.Writer, g prometheus.Gatherer) error {
	families, err := g.Gather()
	if err != nil {
		return fmt.Errorf("gather metrics: %w", err)
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return fmt.Errorf("write %s: %w", mf.GetName(), err)
		}
	}
	return nil
}
