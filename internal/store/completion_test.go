package store

import (
	"context"
	"testing"

	"github.com/dukerupert/chorequest/internal/model"
)

func TestCompletionMarkerIsIdempotent(t *testing.T) {
	_, s := setupTestDB(t)
	parent, fam := seedFamily(t, s)
	ctx := context.Background()

	inserted, err := s.Completions.Insert(ctx, model.PeriodDaily, parent.ID, &fam.ID, "2025-03-10")
	if err != nil || !inserted {
		t.Fatalf("first insert = %v, %v", inserted, err)
	}
	inserted, err = s.Completions.Insert(ctx, model.PeriodDaily, parent.ID, &fam.ID, "2025-03-10")
	if err != nil {
		t.Fatalf("second insert: %v", err)
	}
	if inserted {
		t.Error("duplicate marker should not insert")
	}

	// Other tables are independent.
	inserted, _ = s.Completions.Insert(ctx, model.PeriodWeekly, parent.ID, &fam.ID, "2025-03-10")
	if !inserted {
		t.Error("weekly marker should insert")
	}
}

func TestCompletionWindowQueries(t *testing.T) {
	_, s := setupTestDB(t)
	parent, _ := seedFamily(t, s)
	ctx := context.Background()

	for _, d := range []string{"2025-03-01", "2025-03-05", "2025-03-09"} {
		if _, err := s.Completions.Insert(ctx, model.PeriodDaily, parent.ID, nil, d); err != nil {
			t.Fatalf("insert %s: %v", d, err)
		}
	}

	n, err := s.Completions.CountBetween(ctx, model.PeriodDaily, parent.ID, "2025-03-04", "2025-03-10")
	if err != nil || n != 2 {
		t.Errorf("count = %d, %v; want 2", n, err)
	}

	exists, err := s.Completions.ExistsBetween(ctx, model.PeriodDaily, parent.ID, "2025-03-10", "2025-03-20")
	if err != nil || exists {
		t.Errorf("exists = %v, %v; want false", exists, err)
	}

	markers, err := s.Completions.List(ctx, model.PeriodDaily, parent.ID)
	if err != nil || len(markers) != 3 || markers[0].PeriodStart != "2025-03-09" {
		t.Errorf("markers = %+v, %v", markers, err)
	}
}

func TestUnknownPeriod(t *testing.T) {
	_, s := setupTestDB(t)
	if _, err := s.Completions.Insert(context.Background(), model.Period("yearly"), 1, nil, "2025-01-01"); err == nil {
		t.Error("expected error for unknown period")
	}
}
