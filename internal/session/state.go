package session

import (
	"time"

	"github.com/abhisek/adaptiq/internal/estimate"
)

// Status is a session's lifecycle state.
type Status string

const (
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusExpired    Status = "expired"
)

// StopReasonForced marks a completion requested by an operator.
const StopReasonForced = "forced"

// StopReasonPoolExhausted marks a completion caused by running out of items.
const StopReasonPoolExhausted = "item_pool_exhausted"

// StopReasonIdle marks an expired session.
const StopReasonIdle = "idle_timeout"

// Response is one scored interaction.
type Response struct {
	ItemID      string        `json:"item_id"`
	Correct     bool          `json:"correct"`
	Latency     time.Duration `json:"latency"`
	ThetaBefore float64       `json:"theta_before"`
	ThetaAfter  float64       `json:"theta_after"`
	AnsweredAt  time.Time     `json:"answered_at"`
}

// Session is the live state of one attempt. The response list is
// append-only and Administered always holds exactly the item ids in it.
type Session struct {
	ID          string
	TestTakerID string
	Subject     string
	Grade       string

	// Theta and StandardError are the running MLE estimate.
	Theta         float64
	StandardError float64

	Responses    []Response
	Administered map[string]struct{}

	// PendingItem is the item most recently served and not yet answered.
	PendingItem string

	Status       Status
	StopReason   string
	StartedAt    time.Time
	LastActivity time.Time
	CompletedAt  time.Time

	// FinalTheta and FinalSE are the EAP estimate reported on completion.
	FinalTheta float64
	FinalSE    float64
}

// Observations converts the response log for the estimators.
func (s *Session) Observations() []estimate.Observation {
	obs := make([]estimate.Observation, len(s.Responses))
	for i, r := range s.Responses {
		obs[i] = estimate.Observation{ItemID: r.ItemID, Correct: r.Correct}
	}
	return obs
}

// CorrectCount returns the number of correct responses.
func (s *Session) CorrectCount() int {
	n := 0
	for _, r := range s.Responses {
		if r.Correct {
			n++
		}
	}
	return n
}

// Duration is the time from start to completion or last activity.
func (s *Session) Duration() time.Duration {
	end := s.LastActivity
	if !s.CompletedAt.IsZero() {
		end = s.CompletedAt
	}
	return end.Sub(s.StartedAt)
}

// clone deep-copies the session so callers never alias manager state.
func (s *Session) clone() Session {
	c := *s
	c.Responses = append([]Response(nil), s.Responses...)
	c.Administered = make(map[string]struct{}, len(s.Administered))
	for id := range s.Administered {
		c.Administered[id] = struct{}{}
	}
	return c
}
