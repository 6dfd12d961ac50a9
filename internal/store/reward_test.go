package store

import (
	"context"
	"testing"

	"github.com/dukerupert/chorequest/internal/model"
)

func TestRewardCatalog(t *testing.T) {
	_, s := setupTestDB(t)
	parent, fam := seedFamily(t, s)
	ctx := context.Background()

	movie, err := s.Rewards.Create(ctx, &model.Reward{FamilyID: fam.ID, Name: "Movie night", CoinCost: 100, Active: true, CreatedBy: parent.ID})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	_, err = s.Rewards.Create(ctx, &model.Reward{FamilyID: fam.ID, Name: "Retired", CoinCost: 5, Active: false, CreatedBy: parent.ID})
	if err != nil {
		t.Fatalf("create inactive: %v", err)
	}

	active, _ := s.Rewards.ListByFamily(ctx, fam.ID, false)
	if len(active) != 1 || active[0].ID != movie.ID {
		t.Errorf("active = %+v", active)
	}
	all, _ := s.Rewards.ListByFamily(ctx, fam.ID, true)
	if len(all) != 2 {
		t.Errorf("all = %d, want 2", len(all))
	}

	movie.CoinCost = 120
	updated, err := s.Rewards.Update(ctx, movie)
	if err != nil || updated.CoinCost != 120 {
		t.Errorf("update = %+v, %v", updated, err)
	}
}

func TestRewardPurchases(t *testing.T) {
	_, s := setupTestDB(t)
	parent, fam := seedFamily(t, s)
	ctx := context.Background()

	r, _ := s.Rewards.Create(ctx, &model.Reward{FamilyID: fam.ID, Name: "Ice cream", CoinCost: 10, Active: true, CreatedBy: parent.ID})
	if _, err := s.Rewards.AddPurchase(ctx, parent.ID, r.ID, 10); err != nil {
		t.Fatalf("add purchase: %v", err)
	}
	receipts, err := s.Rewards.ListPurchases(ctx, parent.ID)
	if err != nil || len(receipts) != 1 || receipts[0].CoinsSpent != 10 {
		t.Errorf("receipts = %+v, %v", receipts, err)
	}
}
