package model

import "time"

type Reward struct {
	ID          int64     `json:"id"`
	FamilyID    int64     `json:"family_id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	CoinCost    int       `json:"coin_cost"`
	Active      bool      `json:"active"`
	CreatedBy   int64     `json:"created_by"`
	CreatedAt   time.Time `json:"created_at"`
}

type UserReward struct {
	ID          int64     `json:"id"`
	UserID      int64     `json:"user_id"`
	RewardID    int64     `json:"reward_id"`
	CoinsSpent  int       `json:"coins_spent"`
	PurchasedAt time.Time `json:"purchased_at"`
}
