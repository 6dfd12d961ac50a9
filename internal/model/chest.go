package model

import "time"

type ItemType string

const (
	ItemXP      ItemType = "xp"
	ItemCoins   ItemType = "coins"
	ItemSpecial ItemType = "special"
)

func (t ItemType) Valid() bool {
	return t == ItemXP || t == ItemCoins || t == ItemSpecial
}

// SpecialLevelUp is the item key of the level-up special reward.
const SpecialLevelUp = "special_levelup"

type ChestItem struct {
	ID      int64    `json:"id"`
	ChestID int64    `json:"chest_id"`
	Key     string   `json:"key"`
	Name    string   `json:"name"`
	Type    ItemType `json:"type"`
	Value   int      `json:"value"`
	Rarity  string   `json:"rarity"`
}

type Chest struct {
	ID        int64       `json:"id"`
	FamilyID  int64       `json:"family_id"`
	Name      string      `json:"name"`
	Cost      int         `json:"cost"`
	ImageURL  string      `json:"image_url"`
	CreatedBy int64       `json:"created_by"`
	CreatedAt time.Time   `json:"created_at"`
	Items     []ChestItem `json:"items"`
}

// UserChest is a purchased chest instance. ReceivedItem is set once, when opened.
type UserChest struct {
	ID           int64      `json:"id"`
	UserID       int64      `json:"user_id"`
	ChestID      int64      `json:"chest_id"`
	Opened       bool       `json:"opened"`
	ReceivedItem *ChestItem `json:"received_item"`
	PurchasedAt  time.Time  `json:"purchased_at"`
	OpenedAt     *time.Time `json:"opened_at"`
}
