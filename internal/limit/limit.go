// Package limit enforces the per-window task and coin quotas checked before a
// task may be completed.
package limit

import (
	"context"
	"fmt"
	"time"

	"github.com/dukerupert/chorequest/internal/apperr"
	"github.com/dukerupert/chorequest/internal/config"
	"github.com/dukerupert/chorequest/internal/model"
)

// Totals is the query the evaluator needs from the task store.
type Totals interface {
	ApprovedTotals(ctx context.Context, userID int64, from, to string) (count, coins int, err error)
}

// Usage reports a user's approved totals against a window's caps.
type Usage struct {
	Window   model.TaskType `json:"window"`
	From     string         `json:"from"`
	To       string         `json:"to"`
	Count    int            `json:"count"`
	Coins    int            `json:"coins"`
	MaxTasks int            `json:"max_tasks"`
	MaxCoins int            `json:"max_coins"`
}

type Evaluator struct {
	limits config.Limits
}

func New(limits config.Limits) *Evaluator {
	return &Evaluator{limits: limits}
}

func (e *Evaluator) Limit(w model.TaskType) config.Limit {
	switch w {
	case model.TypeWeekly:
		return e.limits.Weekly
	case model.TypeMonthly:
		return e.limits.Monthly
	default:
		return e.limits.Daily
	}
}

// Range returns the inclusive date bounds of a trailing window ending today:
// today only for daily, 7 days for weekly, 30 days for monthly.
func Range(w model.TaskType, today string) (from, to string, err error) {
	d, err := time.Parse(model.DateLayout, today)
	if err != nil {
		return "", "", fmt.Errorf("parse date %q: %w", today, err)
	}
	var span int
	switch w {
	case model.TypeDaily:
		span = 1
	case model.TypeWeekly:
		span = 7
	case model.TypeMonthly:
		span = 30
	default:
		return "", "", fmt.Errorf("unknown window %q", w)
	}
	return d.AddDate(0, 0, -(span - 1)).Format(model.DateLayout), today, nil
}

// Stats sums the user's approved tasks in the window ending today.
func (e *Evaluator) Stats(ctx context.Context, q Totals, userID int64, w model.TaskType, today string) (Usage, error) {
	from, to, err := Range(w, today)
	if err != nil {
		return Usage{}, err
	}
	count, coins, err := q.ApprovedTotals(ctx, userID, from, to)
	if err != nil {
		return Usage{}, err
	}
	l := e.Limit(w)
	return Usage{
		Window:   w,
		From:     from,
		To:       to,
		Count:    count,
		Coins:    coins,
		MaxTasks: l.MaxTasks,
		MaxCoins: l.MaxCoins,
	}, nil
}

// CanComplete returns a LimitExceeded error when completing a task worth
// pendingCoins would break the window's caps.
func (e *Evaluator) CanComplete(ctx context.Context, q Totals, userID int64, w model.TaskType, today string, pendingCoins int) error {
	u, err := e.Stats(ctx, q, userID, w, today)
	if err != nil {
		return err
	}
	if u.Count >= u.MaxTasks {
		return apperr.LimitExceeded("%s task limit reached (%d/%d)", w, u.Count, u.MaxTasks)
	}
	if u.Coins+pendingCoins > u.MaxCoins {
		return apperr.LimitExceeded("%s coin limit reached (%d + %d > %d)", w, u.Coins, pendingCoins, u.MaxCoins)
	}
	return nil
}

// All reports usage for every window.
func (e *Evaluator) All(ctx context.Context, q Totals, userID int64, today string) ([]Usage, error) {
	var out []Usage
	for _, w := range []model.TaskType{model.TypeDaily, model.TypeWeekly, model.TypeMonthly} {
		u, err := e.Stats(ctx, q, userID, w, today)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, nil
}
