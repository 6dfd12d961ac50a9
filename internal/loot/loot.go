// Package loot runs the chest shop: the family chest catalog, buying chests
// with coins and opening them for a weighted random reward.
package loot

import (
	"context"
	"database/sql"
	"log/slog"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/dukerupert/chorequest/internal/apperr"
	"github.com/dukerupert/chorequest/internal/auth"
	"github.com/dukerupert/chorequest/internal/config"
	"github.com/dukerupert/chorequest/internal/model"
	"github.com/dukerupert/chorequest/internal/store"
)

type Engine struct {
	db     *sql.DB
	stores *store.Stores
	policy config.Loot
	logger *slog.Logger

	mu  sync.Mutex
	rng *rand.Rand
}

func NewEngine(db *sql.DB, policy config.Loot, logger *slog.Logger) *Engine {
	return &Engine{
		db:     db,
		stores: store.New(db),
		policy: policy,
		logger: logger.With("component", "loot"),
		rng:    rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
	}
}

// SetRand replaces the random source.
func (e *Engine) SetRand(rng *rand.Rand) {
	e.mu.Lock()
	e.rng = rng
	e.mu.Unlock()
}

// OpenResult is the outcome of opening a chest.
type OpenResult struct {
	Chest   *model.UserChest `json:"user_chest"`
	Item    model.ChestItem  `json:"item"`
	Profile *model.Profile   `json:"profile"`
}

func validateChest(c *model.Chest) error {
	c.Name = strings.TrimSpace(c.Name)
	if c.Name == "" {
		return apperr.Validation("chest name is required")
	}
	if c.Cost < 0 {
		return apperr.Validation("cost must not be negative")
	}
	if len(c.Items) == 0 {
		return apperr.Validation("a chest needs at least one item")
	}
	for i := range c.Items {
		it := &c.Items[i]
		if !it.Type.Valid() {
			return apperr.Validation("unknown item type %q", it.Type)
		}
		if it.Value < 0 {
			return apperr.Validation("item value must not be negative")
		}
		if it.Rarity == "" {
			it.Rarity = "common"
		}
	}
	return nil
}

func (e *Engine) CreateChest(ctx context.Context, ac auth.AuthContext, c model.Chest) (*model.Chest, error) {
	if err := requireRoot(ac); err != nil {
		return nil, err
	}
	if err := validateChest(&c); err != nil {
		return nil, err
	}
	c.FamilyID = ac.FamilyID
	c.CreatedBy = ac.UserID

	var created *model.Chest
	err := store.InTx(ctx, e.db, func(tx *store.Stores) error {
		var err error
		created, err = tx.Chests.Create(ctx, &c)
		return err
	})
	if err != nil {
		return nil, err
	}
	e.logger.Info("chest created", "chest_id", created.ID, "family_id", ac.FamilyID, "items", len(created.Items))
	return created, nil
}

func (e *Engine) UpdateChest(ctx context.Context, ac auth.AuthContext, c model.Chest) (*model.Chest, error) {
	if err := requireRoot(ac); err != nil {
		return nil, err
	}
	if err := validateChest(&c); err != nil {
		return nil, err
	}

	var updated *model.Chest
	err := store.InTx(ctx, e.db, func(tx *store.Stores) error {
		existing, err := loadChest(ctx, tx.Chests, ac, c.ID)
		if err != nil {
			return err
		}
		c.FamilyID = existing.FamilyID
		c.CreatedBy = existing.CreatedBy
		updated, err = tx.Chests.Update(ctx, &c)
		return err
	})
	return updated, err
}

// SetImage stores the artwork URL of a chest.
func (e *Engine) SetImage(ctx context.Context, ac auth.AuthContext, chestID int64, url string) (*model.Chest, error) {
	if err := requireRoot(ac); err != nil {
		return nil, err
	}
	if _, err := loadChest(ctx, e.stores.Chests, ac, chestID); err != nil {
		return nil, err
	}
	if err := e.stores.Chests.SetImage(ctx, chestID, url); err != nil {
		return nil, err
	}
	return e.stores.Chests.GetByID(ctx, chestID)
}

func (e *Engine) ListChests(ctx context.Context, ac auth.AuthContext) ([]model.Chest, error) {
	if !ac.HasFamily() {
		return nil, apperr.Validation("join a family first")
	}
	return e.stores.Chests.ListByFamily(ctx, ac.FamilyID)
}

func (e *Engine) DeleteChest(ctx context.Context, ac auth.AuthContext, chestID int64) error {
	if err := requireRoot(ac); err != nil {
		return err
	}
	if _, err := loadChest(ctx, e.stores.Chests, ac, chestID); err != nil {
		return err
	}
	return e.stores.Chests.Delete(ctx, chestID)
}

// Purchase debits the chest's cost and gives the caller an unopened chest.
func (e *Engine) Purchase(ctx context.Context, ac auth.AuthContext, chestID int64) (*model.UserChest, error) {
	var owned *model.UserChest
	err := store.InTx(ctx, e.db, func(tx *store.Stores) error {
		c, err := loadChest(ctx, tx.Chests, ac, chestID)
		if err != nil {
			return err
		}
		ok, err := tx.Profiles.DebitCoins(ctx, ac.UserID, c.Cost)
		if err != nil {
			return err
		}
		if !ok {
			return apperr.InsufficientFunds("%s costs %d coins", c.Name, c.Cost)
		}
		owned, err = tx.Chests.AddOwned(ctx, ac.UserID, c.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	e.logger.Info("chest purchased", "user_id", ac.UserID, "chest_id", chestID, "user_chest_id", owned.ID)
	return owned, nil
}

// Open draws one item from an owned, unopened chest and applies it to the
// caller's profile. A chest can be opened only once.
func (e *Engine) Open(ctx context.Context, ac auth.AuthContext, userChestID int64) (*OpenResult, error) {
	res := &OpenResult{}
	err := store.InTx(ctx, e.db, func(tx *store.Stores) error {
		uc, err := tx.Chests.GetOwned(ctx, userChestID)
		if err != nil {
			return err
		}
		if uc == nil {
			return apperr.NotFound("chest not found")
		}
		if uc.UserID != ac.UserID {
			return apperr.PermissionDenied("this chest belongs to someone else")
		}
		if uc.Opened {
			return apperr.AlreadyProcessed("chest already opened")
		}

		items, err := tx.Chests.ListItems(ctx, uc.ChestID)
		if err != nil {
			return err
		}
		table, err := NewTable(items, e.policy.RarityWeights, e.policy.DefaultWeight)
		if err != nil {
			return apperr.Validation("this chest is empty")
		}
		item := e.draw(table)

		ok, err := tx.Chests.MarkOpened(ctx, uc.ID, item, time.Now())
		if err != nil {
			return err
		}
		if !ok {
			return apperr.AlreadyProcessed("chest already opened")
		}

		xp, coins := e.rewardOf(item)
		if err := tx.Profiles.AddStats(ctx, ac.UserID, xp, coins); err != nil {
			return err
		}

		res.Item = item
		if res.Chest, err = tx.Chests.GetOwned(ctx, uc.ID); err != nil {
			return err
		}
		res.Profile, err = tx.Profiles.GetByID(ctx, ac.UserID)
		return err
	})
	if err != nil {
		return nil, err
	}
	e.logger.Info("chest opened", "user_id", ac.UserID, "user_chest_id", userChestID, "item", res.Item.Key, "rarity", res.Item.Rarity)
	return res, nil
}

func (e *Engine) ListOwned(ctx context.Context, ac auth.AuthContext) ([]model.UserChest, error) {
	return e.stores.Chests.ListOwned(ctx, ac.UserID)
}

func (e *Engine) draw(t *Table) model.ChestItem {
	e.mu.Lock()
	defer e.mu.Unlock()
	return t.Draw(e.rng)
}

// rewardOf converts an item into xp and coin deltas. The level-up special is
// a flat xp grant.
func (e *Engine) rewardOf(it model.ChestItem) (xp, coins int) {
	switch it.Type {
	case model.ItemXP:
		return it.Value, 0
	case model.ItemCoins:
		return 0, it.Value
	case model.ItemSpecial:
		if it.Key == model.SpecialLevelUp {
			return e.policy.LevelUpXP, 0
		}
	}
	return 0, 0
}

func requireRoot(ac auth.AuthContext) error {
	if !ac.HasFamily() {
		return apperr.Validation("join a family first")
	}
	if !ac.IsRoot {
		return apperr.PermissionDenied("only a family root can manage chests")
	}
	return nil
}

func loadChest(ctx context.Context, chests *store.ChestStore, ac auth.AuthContext, id int64) (*model.Chest, error) {
	c, err := chests.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if c == nil || c.FamilyID != ac.FamilyID {
		return nil, apperr.NotFound("chest not found")
	}
	return c, nil
}
