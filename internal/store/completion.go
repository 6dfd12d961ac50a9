package store

import (
	"context"
	"fmt"

	"github.com/dukerupert/chorequest/internal/model"
)

// CompletionStore records which milestone bonuses have been granted. Each
// period has its own marker table, unique on (user_id, period_start).
type CompletionStore struct {
	db DBTX
}

func NewCompletionStore(db DBTX) *CompletionStore {
	return &CompletionStore{db: db}
}

func markerTable(p model.Period) (string, error) {
	switch p {
	case model.PeriodDaily:
		return "daily_completions", nil
	case model.PeriodWeekly:
		return "weekly_completions", nil
	case model.PeriodMonthly:
		return "monthly_completions", nil
	}
	return "", fmt.Errorf("unknown period %q", p)
}

// Insert writes a marker for periodStart. It returns false if one already
// existed, in which case the bonus must not be granted again.
func (s *CompletionStore) Insert(ctx context.Context, p model.Period, userID int64, familyID *int64, periodStart string) (bool, error) {
	table, err := markerTable(p)
	if err != nil {
		return false, err
	}
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO `+table+` (user_id, family_id, period_start, rewarded) VALUES (?, ?, ?, 1)
		 ON CONFLICT (user_id, period_start) DO NOTHING`,
		userID, nullInt64(familyID), periodStart,
	)
	if err != nil {
		return false, fmt.Errorf("insert %s marker: %w", p, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n == 1, nil
}

// ExistsBetween reports whether a marker with period_start in [from, to]
// exists for the user.
func (s *CompletionStore) ExistsBetween(ctx context.Context, p model.Period, userID int64, from, to string) (bool, error) {
	table, err := markerTable(p)
	if err != nil {
		return false, err
	}
	var n int
	err = s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM `+table+` WHERE user_id = ? AND period_start >= ? AND period_start <= ?`,
		userID, from, to,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check %s marker: %w", p, err)
	}
	return n > 0, nil
}

// CountBetween counts markers with period_start in [from, to].
func (s *CompletionStore) CountBetween(ctx context.Context, p model.Period, userID int64, from, to string) (int, error) {
	table, err := markerTable(p)
	if err != nil {
		return 0, err
	}
	var n int
	err = s.db.QueryRowContext(ctx,
		`SELECT COUNT(DISTINCT period_start) FROM `+table+` WHERE user_id = ? AND period_start >= ? AND period_start <= ?`,
		userID, from, to,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count %s markers: %w", p, err)
	}
	return n, nil
}

func (s *CompletionStore) List(ctx context.Context, p model.Period, userID int64) ([]model.CompletionMarker, error) {
	table, err := markerTable(p)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, family_id, period_start, rewarded, created_at FROM `+table+` WHERE user_id = ? ORDER BY period_start DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list %s markers: %w", p, err)
	}
	defer rows.Close()

	var markers []model.CompletionMarker
	for rows.Next() {
		var m model.CompletionMarker
		var familyID *int64
		var rewarded int
		if err := rows.Scan(&m.ID, &m.UserID, &familyID, &m.PeriodStart, &rewarded, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan marker: %w", err)
		}
		m.FamilyID = familyID
		m.Rewarded = rewarded != 0
		markers = append(markers, m)
	}
	return markers, rows.Err()
}
