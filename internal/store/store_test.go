package store

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/dukerupert/chorequest/internal/database"
	"github.com/dukerupert/chorequest/internal/model"
)

func setupTestDB(t *testing.T) (*sql.DB, *Stores) {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db, New(db)
}

// seedFamily creates a parent who owns a fresh family and returns both.
func seedFamily(t *testing.T, s *Stores) (*model.Profile, *model.Family) {
	t.Helper()
	ctx := context.Background()

	parent, err := s.Profiles.Create(ctx, "mom@example.com", "Mom", model.RoleParent, "hash", nil)
	if err != nil {
		t.Fatalf("create parent: %v", err)
	}
	fam, err := s.Families.Create(ctx, "Nguyen", "ABC123", "ROOT99", parent.ID)
	if err != nil {
		t.Fatalf("create family: %v", err)
	}
	if err := s.Profiles.SetFamily(ctx, parent.ID, &fam.ID); err != nil {
		t.Fatalf("set family: %v", err)
	}
	return parent, fam
}

func seedChild(t *testing.T, s *Stores, email string, familyID int64) *model.Profile {
	t.Helper()
	ctx := context.Background()

	child, err := s.Profiles.Create(ctx, email, "Kid", model.RoleChild, "hash", nil)
	if err != nil {
		t.Fatalf("create child: %v", err)
	}
	if err := s.Profiles.SetFamily(ctx, child.ID, &familyID); err != nil {
		t.Fatalf("set family: %v", err)
	}
	return child
}

func TestInTxCommits(t *testing.T) {
	db, s := setupTestDB(t)
	parent, _ := seedFamily(t, s)
	ctx := context.Background()

	err := InTx(ctx, db, func(tx *Stores) error {
		return tx.Profiles.AddStats(ctx, parent.ID, 10, 5)
	})
	if err != nil {
		t.Fatalf("in tx: %v", err)
	}

	got, _ := s.Profiles.GetByID(ctx, parent.ID)
	if got.XP != 10 || got.Coins != 5 {
		t.Errorf("stats = %d xp %d coins, want 10 xp 5 coins", got.XP, got.Coins)
	}
}

func TestInTxRollsBackOnError(t *testing.T) {
	db, s := setupTestDB(t)
	parent, _ := seedFamily(t, s)
	ctx := context.Background()
	boom := errors.New("boom")

	err := InTx(ctx, db, func(tx *Stores) error {
		if err := tx.Profiles.AddStats(ctx, parent.ID, 10, 5); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want boom", err)
	}

	got, _ := s.Profiles.GetByID(ctx, parent.ID)
	if got.XP != 0 || got.Coins != 0 {
		t.Errorf("stats = %d xp %d coins, want rollback to zero", got.XP, got.Coins)
	}
}

func TestPlaceholders(t *testing.T) {
	tests := []struct {
		n    int
		want string
	}{
		{0, ""},
		{1, "?"},
		{3, "?, ?, ?"},
	}
	for _, tt := range tests {
		if got := placeholders(tt.n); got != tt.want {
			t.Errorf("placeholders(%d) = %q, want %q", tt.n, got, tt.want)
		}
	}
}
