package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	entsql "entgo.io/ent/dialect/sql"

	"github.com/abhisek/adaptiq/internal/session"
)

var sessionSelect = []string{
	"session_id", "test_taker_id", "subject", "grade", "status", "stop_reason",
	"theta", "standard_error", "final_theta", "final_standard_error",
	"item_count", "percent_correct", "duration_seconds", "started_at", "updated_at",
	"seq",
}

// SaveSession upserts the snapshot keyed by session id. A stored row with a
// higher Seq is left alone, so a late write never overwrites newer state.
func (s *Store) SaveSession(ctx context.Context, snap session.Snapshot) error {
	query, args := s.builder().Insert(sessionsTable.Name).
		Columns(sessionSelect...).
		Values(
			snap.SessionID, snap.TestTakerID, snap.Subject, snap.Grade, string(snap.Status), snap.StopReason,
			snap.Theta, nullable(snap.StandardError), nullable(snap.FinalTheta), nullable(snap.FinalSE),
			snap.ItemCount, snap.PercentCorrect, snap.DurationSecs, snap.StartedAt.UTC(), snap.UpdatedAt.UTC(),
			int64(snap.Seq),
		).
		OnConflict(
			entsql.ConflictColumns("session_id"),
			entsql.ResolveWithNewValues(),
			entsql.UpdateWhere(entsql.ExprP("excluded.seq >= "+sessionsTable.Name+".seq")),
		).
		Query()
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("save session %s: %w", snap.SessionID, err)
	}
	return nil
}

// GetSession returns the stored snapshot for id, or ErrNotFound.
func (s *Store) GetSession(ctx context.Context, id string) (session.Snapshot, error) {
	query, args := s.builder().Select(sessionSelect...).
		From(entsql.Table(sessionsTable.Name)).
		Where(entsql.EQ("session_id", id)).
		Query()
	snaps, err := s.querySessions(ctx, query, args)
	if err != nil {
		return session.Snapshot{}, err
	}
	if len(snaps) == 0 {
		return session.Snapshot{}, fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	return snaps[0], nil
}

// ListSessions returns snapshots matching opts, most recently updated first.
func (s *Store) ListSessions(ctx context.Context, opts ListOpts) ([]session.Snapshot, error) {
	sel := s.builder().Select(sessionSelect...).
		From(entsql.Table(sessionsTable.Name))

	var preds []*entsql.Predicate
	if opts.Status != "" {
		preds = append(preds, entsql.EQ("status", string(opts.Status)))
	}
	if opts.TestTakerID != "" {
		preds = append(preds, entsql.EQ("test_taker_id", opts.TestTakerID))
	}
	if !opts.Since.IsZero() {
		preds = append(preds, entsql.GTE("updated_at", opts.Since.UTC()))
	}
	if len(preds) > 0 {
		sel.Where(entsql.And(preds...))
	}
	sel.OrderBy(entsql.Desc("updated_at"), "session_id")
	if opts.Limit > 0 {
		sel.Limit(opts.Limit)
	}

	query, args := sel.Query()
	return s.querySessions(ctx, query, args)
}

// PruneSessions deletes completed and expired snapshots last updated
// before cutoff and returns how many were removed.
func (s *Store) PruneSessions(ctx context.Context, cutoff time.Time) (int64, error) {
	query, args := s.builder().Delete(sessionsTable.Name).
		Where(entsql.And(
			entsql.In("status", string(session.StatusCompleted), string(session.StatusExpired)),
			entsql.LT("updated_at", cutoff.UTC()),
		)).
		Query()
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("prune sessions: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("prune sessions: %w", err)
	}
	return n, nil
}

func (s *Store) querySessions(ctx context.Context, query string, args []any) ([]session.Snapshot, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	var out []session.Snapshot
	for rows.Next() {
		var (
			snap                session.Snapshot
			status              string
			se, finalTheta, fse sql.NullFloat64
			seq                 int64
		)
		err := rows.Scan(
			&snap.SessionID, &snap.TestTakerID, &snap.Subject, &snap.Grade, &status, &snap.StopReason,
			&snap.Theta, &se, &finalTheta, &fse,
			&snap.ItemCount, &snap.PercentCorrect, &snap.DurationSecs, &snap.StartedAt, &snap.UpdatedAt,
			&seq,
		)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		snap.Status = session.Status(status)
		snap.Seq = uint64(seq)
		snap.StandardError = fromNull(se)
		snap.FinalTheta = fromNull(finalTheta)
		snap.FinalSE = fromNull(fse)
		out = append(out, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return out, nil
}

func nullable(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func fromNull(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}
