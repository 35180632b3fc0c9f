package session

import (
	"context"
	"math"
	"time"
)

// Snapshot is the summary of a session handed to external storage after
// every state change.
type Snapshot struct {
	// Seq increases with every snapshot of the same session. Stores keep
	// the highest one they have seen.
	Seq            uint64    `json:"seq"`
	SessionID      string    `json:"session_id"`
	TestTakerID    string    `json:"test_taker_id"`
	Subject        string    `json:"subject"`
	Grade          string    `json:"grade"`
	Status         Status    `json:"status"`
	StopReason     string    `json:"stop_reason,omitempty"`
	Theta          float64   `json:"theta"`
	StandardError  *float64  `json:"standard_error,omitempty"`
	FinalTheta     *float64  `json:"final_theta,omitempty"`
	FinalSE        *float64  `json:"final_standard_error,omitempty"`
	ItemCount      int       `json:"item_count"`
	PercentCorrect float64   `json:"percent_correct"`
	DurationSecs   float64   `json:"duration_seconds"`
	StartedAt      time.Time `json:"started_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// SnapshotSink persists session snapshots.
type SnapshotSink interface {
	SaveSession(ctx context.Context, snap Snapshot) error
}

// finite returns nil for an infinite or NaN value.
func finite(v float64) *float64 {
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return nil
	}
	return &v
}

func snapshotOf(s *Session) Snapshot {
	snap := Snapshot{
		SessionID:     s.ID,
		TestTakerID:   s.TestTakerID,
		Subject:       s.Subject,
		Grade:         s.Grade,
		Status:        s.Status,
		StopReason:    s.StopReason,
		Theta:         s.Theta,
		StandardError: finite(s.StandardError),
		ItemCount:     len(s.Responses),
		DurationSecs:  s.Duration().Seconds(),
		StartedAt:     s.StartedAt,
		UpdatedAt:     s.LastActivity,
	}
	if len(s.Responses) > 0 {
		snap.PercentCorrect = 100 * float64(s.CorrectCount()) / float64(len(s.Responses))
	}
	if s.Status == StatusCompleted {
		snap.FinalTheta = finite(s.FinalTheta)
		snap.FinalSE = finite(s.FinalSE)
		snap.UpdatedAt = s.CompletedAt
	}
	return snap
}
