package loot

import (
	"context"
	"math/rand/v2"
	"testing"

	"github.com/dukerupert/chorequest/internal/apperr"
	"github.com/dukerupert/chorequest/internal/auth"
	"github.com/dukerupert/chorequest/internal/config"
	"github.com/dukerupert/chorequest/internal/database"
	"github.com/dukerupert/chorequest/internal/logging"
	"github.com/dukerupert/chorequest/internal/model"
	"github.com/dukerupert/chorequest/internal/store"
)

type fixture struct {
	e     *Engine
	s     *store.Stores
	root  auth.AuthContext
	child auth.AuthContext
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
	parent, _ := s.Profiles.Create(ctx, "mom@example.com", "Mom", model.RoleParent, "h", nil)
	fam, err := s.Families.Create(ctx, "Fam", "FAM001", "ROOT01", parent.ID)
	if err != nil {
		t.Fatalf("create family: %v", err)
	}
	s.Profiles.SetFamily(ctx, parent.ID, &fam.ID)
	s.Profiles.SetRoot(ctx, parent.ID, true)
	kid, _ := s.Profiles.Create(ctx, "kid@example.com", "Kid", model.RoleChild, "h", nil)
	s.Profiles.SetFamily(ctx, kid.ID, &fam.ID)

	parent, _ = s.Profiles.GetByID(ctx, parent.ID)
	kid, _ = s.Profiles.GetByID(ctx, kid.ID)

	e := NewEngine(db, config.DefaultPolicy().Loot, logging.Discard())
	e.SetRand(rand.New(rand.NewPCG(7, 7)))
	return &fixture{
		e:     e,
		s:     s,
		root:  auth.FromProfile(parent, 0, nil),
		child: auth.FromProfile(kid, 0, nil),
	}
}

func (f *fixture) chest(t *testing.T, cost int, items ...model.ChestItem) *model.Chest {
	t.Helper()
	c, err := f.e.CreateChest(context.Background(), f.root, model.Chest{Name: "Chest", Cost: cost, Items: items})
	if err != nil {
		t.Fatalf("create chest: %v", err)
	}
	return c
}

func (f *fixture) give(t *testing.T, coins int) {
	t.Helper()
	if err := f.s.Profiles.AddStats(context.Background(), f.child.UserID, 0, coins); err != nil {
		t.Fatalf("give coins: %v", err)
	}
}

func (f *fixture) kid(t *testing.T) *model.Profile {
	t.Helper()
	p, err := f.s.Profiles.GetByID(context.Background(), f.child.UserID)
	if err != nil {
		t.Fatalf("get kid: %v", err)
	}
	return p
}

func TestPurchaseInsufficientFunds(t *testing.T) {
	f := setup(t)
	c := f.chest(t, 50, model.ChestItem{Key: "xp", Type: model.ItemXP, Value: 10})
	f.give(t, 40)

	_, err := f.e.Purchase(context.Background(), f.child, c.ID)
	if apperr.KindOf(err) != apperr.KindInsufficientFunds {
		t.Fatalf("err = %v, want InsufficientFunds", err)
	}
	if got := f.kid(t).Coins; got != 40 {
		t.Errorf("coins = %d, want 40", got)
	}
	owned, _ := f.e.ListOwned(context.Background(), f.child)
	if len(owned) != 0 {
		t.Errorf("owned = %d, want 0", len(owned))
	}
}

func TestPurchaseMissingChest(t *testing.T) {
	f := setup(t)
	_, err := f.e.Purchase(context.Background(), f.child, 404)
	if apperr.KindOf(err) != apperr.KindNotFound {
		t.Fatalf("err = %v, want NotFound", err)
	}
}

func TestOpenIsIdempotent(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	c := f.chest(t, 20, model.ChestItem{Key: "coins", Type: model.ItemCoins, Value: 15, Rarity: "rare"})
	f.give(t, 20)

	owned, err := f.e.Purchase(ctx, f.child, c.ID)
	if err != nil {
		t.Fatalf("purchase: %v", err)
	}
	if got := f.kid(t).Coins; got != 0 {
		t.Fatalf("coins after purchase = %d, want 0", got)
	}

	res, err := f.e.Open(ctx, f.child, owned.ID)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if res.Item.Key != "coins" || !res.Chest.Opened || res.Chest.ReceivedItem == nil {
		t.Errorf("open result = %+v", res)
	}

	_, err = f.e.Open(ctx, f.child, owned.ID)
	if apperr.KindOf(err) != apperr.KindAlreadyProcessed {
		t.Fatalf("second open err = %v, want AlreadyProcessed", err)
	}
	if got := f.kid(t).Coins; got != 15 {
		t.Errorf("coins = %d, want 15 (reward applied once)", got)
	}
}

func TestOpenRequiresOwnership(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	c := f.chest(t, 0, model.ChestItem{Key: "xp", Type: model.ItemXP, Value: 5})

	owned, err := f.e.Purchase(ctx, f.child, c.ID)
	if err != nil {
		t.Fatalf("purchase: %v", err)
	}
	_, err = f.e.Open(ctx, f.root, owned.ID)
	if apperr.KindOf(err) != apperr.KindPermissionDenied {
		t.Fatalf("err = %v, want PermissionDenied", err)
	}
	_, err = f.e.Open(ctx, f.child, 9999)
	if apperr.KindOf(err) != apperr.KindNotFound {
		t.Fatalf("err = %v, want NotFound", err)
	}
}

func TestLevelUpIsFlatXP(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	c := f.chest(t, 0, model.ChestItem{Key: model.SpecialLevelUp, Name: "Level up", Type: model.ItemSpecial, Rarity: "legendary"})
	f.s.Profiles.AddStats(ctx, f.child.UserID, 250, 0)

	owned, _ := f.e.Purchase(ctx, f.child, c.ID)
	res, err := f.e.Open(ctx, f.child, owned.ID)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if res.Profile.XP != 1250 {
		t.Errorf("xp = %d, want 1250", res.Profile.XP)
	}
}

func TestChestManagementIsRootOnly(t *testing.T) {
	f := setup(t)
	_, err := f.e.CreateChest(context.Background(), f.child, model.Chest{
		Name: "Mine", Items: []model.ChestItem{{Type: model.ItemXP, Value: 1}},
	})
	if apperr.KindOf(err) != apperr.KindPermissionDenied {
		t.Fatalf("err = %v, want PermissionDenied", err)
	}

	_, err = f.e.CreateChest(context.Background(), f.root, model.Chest{Name: "Empty"})
	if apperr.KindOf(err) != apperr.KindValidationFailed {
		t.Fatalf("err = %v, want ValidationFailed", err)
	}
}
