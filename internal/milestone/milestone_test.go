package milestone

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/dukerupert/chorequest/internal/config"
	"github.com/dukerupert/chorequest/internal/database"
	"github.com/dukerupert/chorequest/internal/logging"
	"github.com/dukerupert/chorequest/internal/model"
	"github.com/dukerupert/chorequest/internal/store"
)

type fixture struct {
	db     *sql.DB
	s      *store.Stores
	e      *Evaluator
	user   *model.Profile
	family *model.Family
}

func setup(t *testing.T) *fixture {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	ctx := context.Background()
	s := store.New(db)
	user, err := s.Profiles.Create(ctx, "kid@example.com", "Kid", model.RoleChild, "h", nil)
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	fam, err := s.Families.Create(ctx, "Fam", "FAM001", "ROOT01", user.ID)
	if err != nil {
		t.Fatalf("create family: %v", err)
	}
	if err := s.Profiles.SetFamily(ctx, user.ID, &fam.ID); err != nil {
		t.Fatalf("set family: %v", err)
	}

	return &fixture{
		db:     db,
		s:      s,
		e:      New(db, config.DefaultPolicy().Milestones, logging.Discard()),
		user:   user,
		family: fam,
	}
}

func (f *fixture) approveDaily(t *testing.T, date string, n int) {
	t.Helper()
	ctx := context.Background()
	at := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		task, err := f.s.Tasks.Create(ctx, &model.Task{
			Title: "Chore", AssignedTo: f.user.ID, CreatedBy: f.user.ID,
			Type: model.TypeDaily, CoinReward: 5, XPReward: 10, FamilyID: f.family.ID, TaskDate: &date,
		})
		if err != nil {
			t.Fatalf("create task: %v", err)
		}
		f.s.Tasks.MarkStarted(ctx, task.ID, at)
		f.s.Tasks.MarkCompleted(ctx, task.ID, at, date, false)
		if ok, err := f.s.Tasks.MarkApproved(ctx, task.ID); err != nil || !ok {
			t.Fatalf("approve: %v %v", ok, err)
		}
	}
}

func (f *fixture) stats(t *testing.T) (xp, coins int) {
	t.Helper()
	p, err := f.s.Profiles.GetByID(context.Background(), f.user.ID)
	if err != nil {
		t.Fatalf("get profile: %v", err)
	}
	return p.XP, p.Coins
}

func TestDailyMilestoneNeedsThreshold(t *testing.T) {
	f := setup(t)
	f.approveDaily(t, "2025-03-10", 5)

	bonuses, err := f.e.Evaluate(context.Background(), f.user.ID, &f.family.ID, "2025-03-10")
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if len(bonuses) != 0 {
		t.Errorf("bonuses = %+v, want none with 5 tasks", bonuses)
	}
}

func TestDailyMilestoneGrantedOnce(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.approveDaily(t, "2025-03-10", 6)

	bonuses, err := f.e.Evaluate(ctx, f.user.ID, &f.family.ID, "2025-03-10")
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if len(bonuses) != 1 || bonuses[0].Period != model.PeriodDaily || bonuses[0].Coins != 50 || bonuses[0].XP != 100 {
		t.Fatalf("bonuses = %+v, want one daily 50/100", bonuses)
	}

	bonuses, err = f.e.Evaluate(ctx, f.user.ID, &f.family.ID, "2025-03-10")
	if err != nil {
		t.Fatalf("second evaluate: %v", err)
	}
	if len(bonuses) != 0 {
		t.Errorf("second evaluate granted %+v", bonuses)
	}

	xp, coins := f.stats(t)
	if xp != 100 || coins != 50 {
		t.Errorf("stats = %d xp %d coins, want 100/50", xp, coins)
	}
}

func TestWeeklyMilestone(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	for _, d := range []string{"2025-03-04", "2025-03-05", "2025-03-07", "2025-03-08", "2025-03-10"} {
		if _, err := f.s.Completions.Insert(ctx, model.PeriodDaily, f.user.ID, &f.family.ID, d); err != nil {
			t.Fatalf("insert marker: %v", err)
		}
	}

	bonuses, err := f.e.Evaluate(ctx, f.user.ID, &f.family.ID, "2025-03-10")
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if len(bonuses) != 1 || bonuses[0].Period != model.PeriodWeekly || bonuses[0].PeriodStart != "2025-03-04" {
		t.Fatalf("bonuses = %+v, want weekly starting 2025-03-04", bonuses)
	}

	// The next day's window overlaps the granted one.
	if _, err := f.s.Completions.Insert(ctx, model.PeriodDaily, f.user.ID, &f.family.ID, "2025-03-11"); err != nil {
		t.Fatalf("insert marker: %v", err)
	}
	bonuses, err = f.e.Evaluate(ctx, f.user.ID, &f.family.ID, "2025-03-11")
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if len(bonuses) != 0 {
		t.Errorf("overlapping week granted %+v", bonuses)
	}

	xp, coins := f.stats(t)
	if xp != 600 || coins != 300 {
		t.Errorf("stats = %d xp %d coins, want 600/300", xp, coins)
	}
}

func TestWeeklyRegrantsOnceWindowsStopOverlapping(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	if _, err := f.s.Completions.Insert(ctx, model.PeriodWeekly, f.user.ID, &f.family.ID, "2025-03-04"); err != nil {
		t.Fatalf("insert weekly marker: %v", err)
	}
	for _, d := range []string{"2025-03-10", "2025-03-11", "2025-03-12", "2025-03-13", "2025-03-14", "2025-03-15", "2025-03-16"} {
		if _, err := f.s.Completions.Insert(ctx, model.PeriodDaily, f.user.ID, &f.family.ID, d); err != nil {
			t.Fatalf("insert marker: %v", err)
		}
	}

	tests := []struct {
		today     string
		wantStart string
	}{
		// [03-10, 03-16] still shares 03-10 with the granted [03-04, 03-10].
		{"2025-03-16", ""},
		// [03-11, 03-17] is disjoint from it.
		{"2025-03-17", "2025-03-11"},
		// Five markers again in [03-12, 03-18], but the 03-11 grant overlaps.
		{"2025-03-18", ""},
	}
	for _, tt := range tests {
		bonuses, err := f.e.Evaluate(ctx, f.user.ID, &f.family.ID, tt.today)
		if err != nil {
			t.Fatalf("evaluate %s: %v", tt.today, err)
		}
		var weekly []model.Bonus
		for _, b := range bonuses {
			if b.Period == model.PeriodWeekly {
				weekly = append(weekly, b)
			}
		}
		if tt.wantStart == "" {
			if len(weekly) != 0 {
				t.Errorf("%s: granted %+v, want none", tt.today, weekly)
			}
			continue
		}
		if len(weekly) != 1 || weekly[0].PeriodStart != tt.wantStart {
			t.Errorf("%s: granted %+v, want one starting %s", tt.today, weekly, tt.wantStart)
		}
	}
}

func TestMonthlyMilestone(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	for _, d := range []string{"2025-02-10", "2025-02-17", "2025-02-24", "2025-03-03"} {
		if _, err := f.s.Completions.Insert(ctx, model.PeriodWeekly, f.user.ID, &f.family.ID, d); err != nil {
			t.Fatalf("insert marker: %v", err)
		}
	}

	for i := 0; i < 2; i++ {
		bonuses, err := f.e.Evaluate(ctx, f.user.ID, &f.family.ID, "2025-03-10")
		if err != nil {
			t.Fatalf("evaluate: %v", err)
		}
		if i == 0 && (len(bonuses) != 1 || bonuses[0].Period != model.PeriodMonthly || bonuses[0].PeriodStart != "2025-02-09") {
			t.Fatalf("bonuses = %+v, want monthly starting 2025-02-09", bonuses)
		}
		if i == 1 && len(bonuses) != 0 {
			t.Fatalf("repeat evaluate granted %+v", bonuses)
		}
	}

	xp, coins := f.stats(t)
	if xp != 2400 || coins != 1200 {
		t.Errorf("stats = %d xp %d coins, want 2400/1200", xp, coins)
	}
}

func TestEvaluateRejectsBadDate(t *testing.T) {
	f := setup(t)
	if _, err := f.e.Evaluate(context.Background(), f.user.ID, nil, "March 10"); err == nil {
		t.Error("expected error for malformed date")
	}
}
