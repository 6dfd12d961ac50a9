// Package milestone grants bonus coins and XP for sustained daily, weekly and
// monthly completion streaks.
package milestone

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukerupert/chorequest/internal/config"
	"github.com/dukerupert/chorequest/internal/model"
	"github.com/dukerupert/chorequest/internal/store"
)

const (
	weekSpan  = 7
	monthSpan = 30
)

// Evaluator checks each milestone in its own transaction. A marker row,
// unique per user and period start, guards every grant.
type Evaluator struct {
	db     *sql.DB
	policy config.Milestones
	logger *slog.Logger
}

func New(db *sql.DB, policy config.Milestones, logger *slog.Logger) *Evaluator {
	return &Evaluator{db: db, policy: policy, logger: logger.With("component", "milestone")}
}

// Evaluate runs the daily, weekly and monthly checks in order for a user on
// the given local date and returns the bonuses granted.
func (e *Evaluator) Evaluate(ctx context.Context, userID int64, familyID *int64, today string) ([]model.Bonus, error) {
	day, err := time.Parse(model.DateLayout, today)
	if err != nil {
		return nil, fmt.Errorf("parse date %q: %w", today, err)
	}

	checks := []func(context.Context, *store.Stores, int64, *int64, time.Time) (*model.Bonus, error){
		e.daily,
		e.weekly,
		e.monthly,
	}

	var granted []model.Bonus
	for _, check := range checks {
		var b *model.Bonus
		err := store.InTx(ctx, e.db, func(tx *store.Stores) error {
			var err error
			b, err = check(ctx, tx, userID, familyID, day)
			return err
		})
		if err != nil {
			return granted, err
		}
		if b != nil {
			e.logger.Info("milestone granted", "user_id", userID, "period", b.Period, "period_start", b.PeriodStart, "coins", b.Coins, "xp", b.XP)
			granted = append(granted, *b)
		}
	}
	return granted, nil
}

func (e *Evaluator) daily(ctx context.Context, tx *store.Stores, userID int64, familyID *int64, day time.Time) (*model.Bonus, error) {
	today := day.Format(model.DateLayout)
	n, err := tx.Tasks.CountApprovedDaily(ctx, userID, today)
	if err != nil {
		return nil, err
	}
	if n < e.policy.Daily.Threshold {
		return nil, nil
	}
	return grant(ctx, tx, model.PeriodDaily, e.policy.Daily, userID, familyID, today)
}

// weekly fires when enough daily markers fall in the trailing week and no
// earlier weekly grant covers any day of it.
func (e *Evaluator) weekly(ctx context.Context, tx *store.Stores, userID int64, familyID *int64, day time.Time) (*model.Bonus, error) {
	return e.rolling(ctx, tx, model.PeriodDaily, model.PeriodWeekly, weekSpan, e.policy.Weekly, userID, familyID, day)
}

func (e *Evaluator) monthly(ctx context.Context, tx *store.Stores, userID int64, familyID *int64, day time.Time) (*model.Bonus, error) {
	return e.rolling(ctx, tx, model.PeriodWeekly, model.PeriodMonthly, monthSpan, e.policy.Monthly, userID, familyID, day)
}

func (e *Evaluator) rolling(ctx context.Context, tx *store.Stores, source, target model.Period, span int, bonus config.Bonus, userID int64, familyID *int64, day time.Time) (*model.Bonus, error) {
	today := day.Format(model.DateLayout)
	start := day.AddDate(0, 0, -(span - 1)).Format(model.DateLayout)

	n, err := tx.Completions.CountBetween(ctx, source, userID, start, today)
	if err != nil {
		return nil, err
	}
	if n < bonus.Threshold {
		return nil, nil
	}

	// Skip if an earlier grant's window [ps, ps+span-1] shares a day with
	// [start, today], i.e. some marker has ps in [start-(span-1), today].
	overlap := day.AddDate(0, 0, -2*(span-1)).Format(model.DateLayout)
	exists, err := tx.Completions.ExistsBetween(ctx, target, userID, overlap, today)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, nil
	}
	return grant(ctx, tx, target, bonus, userID, familyID, start)
}

func grant(ctx context.Context, tx *store.Stores, p model.Period, bonus config.Bonus, userID int64, familyID *int64, periodStart string) (*model.Bonus, error) {
	inserted, err := tx.Completions.Insert(ctx, p, userID, familyID, periodStart)
	if err != nil {
		return nil, err
	}
	if !inserted {
		return nil, nil
	}
	if err := tx.Profiles.AddStats(ctx, userID, bonus.XP, bonus.Coins); err != nil {
		return nil, err
	}
	return &model.Bonus{Period: p, PeriodStart: periodStart, Coins: bonus.Coins, XP: bonus.XP}, nil
}
