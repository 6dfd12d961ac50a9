package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dukerupert/chorequest/internal/model"
)

type RewardStore struct {
	db DBTX
}

func NewRewardStore(db DBTX) *RewardStore {
	return &RewardStore{db: db}
}

func scanReward(s scanner) (*model.Reward, error) {
	var r model.Reward
	var active int
	err := s.Scan(&r.ID, &r.FamilyID, &r.Name, &r.Description, &r.CoinCost, &active, &r.CreatedBy, &r.CreatedAt)
	if err != nil {
		return nil, err
	}
	r.Active = active != 0
	return &r, nil
}

const rewardCols = `id, family_id, name, description, coin_cost, active, created_by, created_at`

func (s *RewardStore) Create(ctx context.Context, r *model.Reward) (*model.Reward, error) {
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO rewards (family_id, name, description, coin_cost, active, created_by) VALUES (?, ?, ?, ?, ?, ?)`,
		r.FamilyID, r.Name, r.Description, r.CoinCost, boolInt(r.Active), r.CreatedBy,
	)
	if err != nil {
		return nil, fmt.Errorf("insert reward: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(ctx, id)
}

func (s *RewardStore) GetByID(ctx context.Context, id int64) (*model.Reward, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+rewardCols+` FROM rewards WHERE id = ?`, id)
	r, err := scanReward(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get reward: %w", err)
	}
	return r, nil
}

// ListByFamily returns the catalog, cheapest first. Inactive rewards are
// included only when includeInactive is set.
func (s *RewardStore) ListByFamily(ctx context.Context, familyID int64, includeInactive bool) ([]model.Reward, error) {
	q := `SELECT ` + rewardCols + ` FROM rewards WHERE family_id = ?`
	if !includeInactive {
		q += ` AND active = 1`
	}
	q += ` ORDER BY coin_cost ASC, name ASC`

	rows, err := s.db.QueryContext(ctx, q, familyID)
	if err != nil {
		return nil, fmt.Errorf("list rewards: %w", err)
	}
	defer rows.Close()

	var rewards []model.Reward
	for rows.Next() {
		r, err := scanReward(rows)
		if err != nil {
			return nil, fmt.Errorf("scan reward: %w", err)
		}
		rewards = append(rewards, *r)
	}
	return rewards, rows.Err()
}

func (s *RewardStore) Update(ctx context.Context, r *model.Reward) (*model.Reward, error) {
	_, err := s.db.ExecContext(ctx,
		`UPDATE rewards SET name = ?, description = ?, coin_cost = ?, active = ? WHERE id = ?`,
		r.Name, r.Description, r.CoinCost, boolInt(r.Active), r.ID,
	)
	if err != nil {
		return nil, fmt.Errorf("update reward: %w", err)
	}
	return s.GetByID(ctx, r.ID)
}

func (s *RewardStore) Delete(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM rewards WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete reward: %w", err)
	}
	return nil
}

// AddPurchase records a redemption receipt.
func (s *RewardStore) AddPurchase(ctx context.Context, userID, rewardID int64, coinsSpent int) (*model.UserReward, error) {
	now := time.Now().UTC()
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO user_rewards (user_id, reward_id, coins_spent, purchased_at) VALUES (?, ?, ?, ?)`,
		userID, rewardID, coinsSpent, now,
	)
	if err != nil {
		return nil, fmt.Errorf("insert user reward: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return &model.UserReward{
		ID:          id,
		UserID:      userID,
		RewardID:    rewardID,
		CoinsSpent:  coinsSpent,
		PurchasedAt: now,
	}, nil
}

func (s *RewardStore) ListPurchases(ctx context.Context, userID int64) ([]model.UserReward, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, reward_id, coins_spent, purchased_at FROM user_rewards WHERE user_id = ? ORDER BY purchased_at DESC, id DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list user rewards: %w", err)
	}
	defer rows.Close()

	var purchases []model.UserReward
	for rows.Next() {
		var ur model.UserReward
		if err := rows.Scan(&ur.ID, &ur.UserID, &ur.RewardID, &ur.CoinsSpent, &ur.PurchasedAt); err != nil {
			return nil, fmt.Errorf("scan user reward: %w", err)
		}
		purchases = append(purchases, ur)
	}
	return purchases, rows.Err()
}
