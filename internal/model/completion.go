package model

import "time"

// Period names a milestone cadence and its marker table.
type Period string

const (
	PeriodDaily   Period = "daily"
	PeriodWeekly  Period = "weekly"
	PeriodMonthly Period = "monthly"
)

// CompletionMarker records that a milestone bonus was granted for a period.
type CompletionMarker struct {
	ID          int64     `json:"id"`
	UserID      int64     `json:"user_id"`
	FamilyID    *int64    `json:"family_id"`
	PeriodStart string    `json:"period_start"`
	Rewarded    bool      `json:"rewarded"`
	CreatedAt   time.Time `json:"created_at"`
}

// Bonus is a milestone grant reported back to the caller.
type Bonus struct {
	Period      Period `json:"period"`
	PeriodStart string `json:"period_start"`
	Coins       int    `json:"coins"`
	XP          int    `json:"xp"`
}
