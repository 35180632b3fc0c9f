// Package session owns the per-test-taker assessment state machine:
// in_progress → completed, or in_progress → expired. No transition leaves
// completed or expired.
package session

import (
	"fmt"
	"math"
	"time"

	"github.com/abhisek/adaptiq/internal/estimate"
	"github.com/abhisek/adaptiq/internal/irt"
)

// New returns a fresh in-progress session with an unknown standard error.
func New(id, testTaker, subject, grade string, now time.Time) *Session {
	return &Session{
		ID:            id,
		TestTakerID:   testTaker,
		Subject:       subject,
		Grade:         grade,
		Theta:         0.0,
		StandardError: math.Inf(1),
		Administered:  make(map[string]struct{}),
		Status:        StatusInProgress,
		StartedAt:     now,
		LastActivity:  now,
		FinalSE:       math.Inf(1),
	}
}

// Submit appends a response and re-estimates ability over the full history
// with MLE seeded at the current estimate. Once an item has been served,
// only that item may be answered. The caller must hold the session's lock.
func (s *Session) Submit(itemID string, correct bool, latency time.Duration, items irt.ItemLookup, est *estimate.Estimator, opts estimate.MLEOptions, now time.Time) (estimate.Result, error) {
	if s.Status != StatusInProgress {
		return estimate.Result{}, &ErrNotActive{ID: s.ID, Status: s.Status}
	}
	if itemID == "" {
		return estimate.Result{}, fmt.Errorf("%w: empty item id", ErrInvalidRequest)
	}
	if _, done := s.Administered[itemID]; done {
		return estimate.Result{}, fmt.Errorf("%w: %s", ErrItemAlreadyAdministered, itemID)
	}
	if s.PendingItem != "" && itemID != s.PendingItem {
		return estimate.Result{}, fmt.Errorf("%w: got %s, waiting on %s", ErrItemNotPending, itemID, s.PendingItem)
	}

	history := append(s.Observations(), estimate.Observation{ItemID: itemID, Correct: correct})
	opts.InitialTheta = s.Theta
	res, err := est.MLE(history, items, opts)
	if err != nil {
		return estimate.Result{}, fmt.Errorf("estimate ability: %w", err)
	}

	s.Responses = append(s.Responses, Response{
		ItemID:      itemID,
		Correct:     correct,
		Latency:     latency,
		ThetaBefore: s.Theta,
		ThetaAfter:  res.Theta,
		AnsweredAt:  now,
	})
	s.Administered[itemID] = struct{}{}
	s.PendingItem = ""
	s.Theta = res.Theta
	s.StandardError = res.StandardError
	s.LastActivity = now
	return res, nil
}

// complete moves the session to completed.
func (s *Session) complete(reason string, now time.Time) error {
	if s.Status != StatusInProgress {
		return &ErrNotActive{ID: s.ID, Status: s.Status}
	}
	s.Status = StatusCompleted
	s.StopReason = reason
	s.CompletedAt = now
	s.PendingItem = ""
	return nil
}

// expire moves an idle session to expired.
func (s *Session) expire(now time.Time) error {
	if s.Status != StatusInProgress {
		return &ErrNotActive{ID: s.ID, Status: s.Status}
	}
	s.Status = StatusExpired
	s.StopReason = StopReasonIdle
	s.CompletedAt = now
	s.PendingItem = ""
	return nil
}
