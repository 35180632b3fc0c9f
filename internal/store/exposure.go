package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	entsql "entgo.io/ent/dialect/sql"
)

// IncrementExposure adds one administration of itemID. It implements
// exposure.Sink.
func (s *Store) IncrementExposure(ctx context.Context, itemID string) error {
	query, args := s.builder().Insert(exposureTable.Name).
		Columns("item_id", "count").
		Values(itemID, 1).
		OnConflict(
			entsql.ConflictColumns("item_id"),
			entsql.ResolveWith(func(u *entsql.UpdateSet) {
				u.Add("count", 1)
			}),
		).
		Query()
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("increment exposure %s: %w", itemID, err)
	}
	return nil
}

// IncrementAssessments adds one to the assessment total. It implements
// exposure.Sink.
func (s *Store) IncrementAssessments(ctx context.Context) error {
	query, args := s.builder().Insert(totalsTable.Name).
		Columns("id", "assessments").
		Values(totalsRow, 1).
		OnConflict(
			entsql.ConflictColumns("id"),
			entsql.ResolveWith(func(u *entsql.UpdateSet) {
				u.Add("assessments", 1)
			}),
		).
		Query()
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("increment assessments: %w", err)
	}
	return nil
}

// LoadExposure returns every stored exposure count and the assessment
// total, for seeding the in-memory counter at startup.
func (s *Store) LoadExposure(ctx context.Context) (map[string]int64, int64, error) {
	query, args := s.builder().Select("item_id", "count").
		From(entsql.Table(exposureTable.Name)).
		Query()
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("query exposure: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var (
			id string
			n  int64
		)
		if err := rows.Scan(&id, &n); err != nil {
			return nil, 0, fmt.Errorf("scan exposure: %w", err)
		}
		counts[id] = n
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate exposure: %w", err)
	}

	query, args = s.builder().Select("assessments").
		From(entsql.Table(totalsTable.Name)).
		Where(entsql.EQ("id", totalsRow)).
		Query()
	var total int64
	err = s.db.QueryRowContext(ctx, query, args...).Scan(&total)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		total = 0
	case err != nil:
		return nil, 0, fmt.Errorf("query assessment total: %w", err)
	}
	return counts, total, nil
}
