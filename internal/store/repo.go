package store

import (
	"context"
	"errors"
	"time"

	"github.com/abhisek/adaptiq/internal/session"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// ListOpts configures session snapshot queries.
type ListOpts struct {
	Status      session.Status // empty = any
	TestTakerID string         // empty = any
	Limit       int            // max results (0 = unlimited)
	Since       time.Time      // updated_at >= Since
}

// SessionRepo persists session snapshots.
type SessionRepo interface {
	session.SnapshotSink

	// GetSession returns the latest snapshot for id.
	GetSession(ctx context.Context, id string) (session.Snapshot, error)

	// ListSessions returns snapshots, most recently updated first.
	ListSessions(ctx context.Context, opts ListOpts) ([]session.Snapshot, error)

	// PruneSessions deletes finished snapshots last updated before cutoff.
	PruneSessions(ctx context.Context, cutoff time.Time) (int64, error)
}

// ExposureRepo persists item exposure counts.
type ExposureRepo interface {
	IncrementExposure(ctx context.Context, itemID string) error
	IncrementAssessments(ctx context.Context) error

	// LoadExposure returns every stored count and the assessment total.
	LoadExposure(ctx context.Context) (map[string]int64, int64, error)
}

var (
	_ SessionRepo  = (*Store)(nil)
	_ ExposureRepo = (*Store)(nil)
)
