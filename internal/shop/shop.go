// Package shop is the family rewards catalog where coins are redeemed for
// real-world treats.
package shop

import (
	"context"
	"database/sql"
	"log/slog"
	"strings"

	"github.com/dukerupert/chorequest/internal/apperr"
	"github.com/dukerupert/chorequest/internal/auth"
	"github.com/dukerupert/chorequest/internal/model"
	"github.com/dukerupert/chorequest/internal/store"
)

type Shop struct {
	db     *sql.DB
	stores *store.Stores
	logger *slog.Logger
}

func New(db *sql.DB, logger *slog.Logger) *Shop {
	return &Shop{db: db, stores: store.New(db), logger: logger.With("component", "shop")}
}

// PurchaseResult is the receipt plus the buyer's updated profile.
type PurchaseResult struct {
	Receipt *model.UserReward `json:"receipt"`
	Profile *model.Profile    `json:"profile"`
}

func requireRoot(ac auth.AuthContext) error {
	if !ac.HasFamily() {
		return apperr.Validation("join a family first")
	}
	if !ac.IsRoot {
		return apperr.PermissionDenied("only a family root can manage rewards")
	}
	return nil
}

func validate(r *model.Reward) error {
	r.Name = strings.TrimSpace(r.Name)
	if r.Name == "" {
		return apperr.Validation("reward name is required")
	}
	if r.CoinCost < 0 {
		return apperr.Validation("cost must not be negative")
	}
	return nil
}

func (s *Shop) load(ctx context.Context, rewards *store.RewardStore, ac auth.AuthContext, id int64) (*model.Reward, error) {
	r, err := rewards.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if r == nil || r.FamilyID != ac.FamilyID {
		return nil, apperr.NotFound("reward not found")
	}
	return r, nil
}

func (s *Shop) Create(ctx context.Context, ac auth.AuthContext, r model.Reward) (*model.Reward, error) {
	if err := requireRoot(ac); err != nil {
		return nil, err
	}
	if err := validate(&r); err != nil {
		return nil, err
	}
	r.FamilyID = ac.FamilyID
	r.CreatedBy = ac.UserID
	r.Active = true
	return s.stores.Rewards.Create(ctx, &r)
}

func (s *Shop) Update(ctx context.Context, ac auth.AuthContext, r model.Reward) (*model.Reward, error) {
	if err := requireRoot(ac); err != nil {
		return nil, err
	}
	if err := validate(&r); err != nil {
		return nil, err
	}
	if _, err := s.load(ctx, s.stores.Rewards, ac, r.ID); err != nil {
		return nil, err
	}
	return s.stores.Rewards.Update(ctx, &r)
}

func (s *Shop) Delete(ctx context.Context, ac auth.AuthContext, id int64) error {
	if err := requireRoot(ac); err != nil {
		return err
	}
	if _, err := s.load(ctx, s.stores.Rewards, ac, id); err != nil {
		return err
	}
	return s.stores.Rewards.Delete(ctx, id)
}

// List returns the family catalog. Roots also see inactive rewards.
func (s *Shop) List(ctx context.Context, ac auth.AuthContext) ([]model.Reward, error) {
	if !ac.HasFamily() {
		return nil, apperr.Validation("join a family first")
	}
	return s.stores.Rewards.ListByFamily(ctx, ac.FamilyID, ac.IsRoot)
}

// Purchase debits the reward's cost and records a receipt.
func (s *Shop) Purchase(ctx context.Context, ac auth.AuthContext, rewardID int64) (*PurchaseResult, error) {
	res := &PurchaseResult{}
	err := store.InTx(ctx, s.db, func(tx *store.Stores) error {
		r, err := s.load(ctx, tx.Rewards, ac, rewardID)
		if err != nil {
			return err
		}
		if !r.Active {
			return apperr.Validation("%s is not available", r.Name)
		}
		ok, err := tx.Profiles.DebitCoins(ctx, ac.UserID, r.CoinCost)
		if err != nil {
			return err
		}
		if !ok {
			return apperr.InsufficientFunds("%s costs %d coins", r.Name, r.CoinCost)
		}
		if res.Receipt, err = tx.Rewards.AddPurchase(ctx, ac.UserID, r.ID, r.CoinCost); err != nil {
			return err
		}
		res.Profile, err = tx.Profiles.GetByID(ctx, ac.UserID)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("reward purchased", "user_id", ac.UserID, "reward_id", rewardID, "coins", res.Receipt.CoinsSpent)
	return res, nil
}

func (s *Shop) History(ctx context.Context, ac auth.AuthContext) ([]model.UserReward, error) {
	return s.stores.Rewards.ListPurchases(ctx, ac.UserID)
}
