package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dukerupert/chorequest/internal/model"
)

// ChestStore persists the chest catalog, its loot tables and owned chests.
type ChestStore struct {
	db DBTX
}

func NewChestStore(db DBTX) *ChestStore {
	return &ChestStore{db: db}
}

func scanChest(s scanner) (*model.Chest, error) {
	var c model.Chest
	err := s.Scan(&c.ID, &c.FamilyID, &c.Name, &c.Cost, &c.ImageURL, &c.CreatedBy, &c.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

const chestCols = `id, family_id, name, cost, image_url, created_by, created_at`

func scanChestItem(s scanner) (*model.ChestItem, error) {
	var it model.ChestItem
	var typ string
	err := s.Scan(&it.ID, &it.ChestID, &it.Key, &it.Name, &typ, &it.Value, &it.Rarity)
	if err != nil {
		return nil, err
	}
	it.Type = model.ItemType(typ)
	return &it, nil
}

const chestItemCols = `id, chest_id, item_key, name, type, value, rarity`

func scanUserChest(s scanner) (*model.UserChest, error) {
	var uc model.UserChest
	var opened int
	var received sql.NullString
	var openedAt sql.NullTime
	err := s.Scan(&uc.ID, &uc.UserID, &uc.ChestID, &opened, &received, &uc.PurchasedAt, &openedAt)
	if err != nil {
		return nil, err
	}
	uc.Opened = opened != 0
	if openedAt.Valid {
		uc.OpenedAt = &openedAt.Time
	}
	if received.Valid && received.String != "" {
		var it model.ChestItem
		if err := json.Unmarshal([]byte(received.String), &it); err != nil {
			return nil, fmt.Errorf("decode received item: %w", err)
		}
		uc.ReceivedItem = &it
	}
	return &uc, nil
}

const userChestCols = `id, user_id, chest_id, opened, received_item, purchased_at, opened_at`

// Create inserts a chest together with its loot table.
func (s *ChestStore) Create(ctx context.Context, c *model.Chest) (*model.Chest, error) {
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO chests (family_id, name, cost, image_url, created_by) VALUES (?, ?, ?, ?, ?)`,
		c.FamilyID, c.Name, c.Cost, c.ImageURL, c.CreatedBy,
	)
	if err != nil {
		return nil, fmt.Errorf("insert chest: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	if err := s.insertItems(ctx, id, c.Items); err != nil {
		return nil, err
	}
	return s.GetByID(ctx, id)
}

func (s *ChestStore) insertItems(ctx context.Context, chestID int64, items []model.ChestItem) error {
	for _, it := range items {
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO chest_items (chest_id, item_key, name, type, value, rarity) VALUES (?, ?, ?, ?, ?, ?)`,
			chestID, it.Key, it.Name, string(it.Type), it.Value, it.Rarity,
		)
		if err != nil {
			return fmt.Errorf("insert chest item: %w", err)
		}
	}
	return nil
}

// Update rewrites a chest's fields and replaces its loot table.
func (s *ChestStore) Update(ctx context.Context, c *model.Chest) (*model.Chest, error) {
	_, err := s.db.ExecContext(ctx,
		`UPDATE chests SET name = ?, cost = ?, image_url = ? WHERE id = ?`,
		c.Name, c.Cost, c.ImageURL, c.ID,
	)
	if err != nil {
		return nil, fmt.Errorf("update chest: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM chest_items WHERE chest_id = ?`, c.ID); err != nil {
		return nil, fmt.Errorf("clear chest items: %w", err)
	}
	if err := s.insertItems(ctx, c.ID, c.Items); err != nil {
		return nil, err
	}
	return s.GetByID(ctx, c.ID)
}

func (s *ChestStore) SetImage(ctx context.Context, id int64, url string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE chests SET image_url = ? WHERE id = ?`, url, id)
	if err != nil {
		return fmt.Errorf("set chest image: %w", err)
	}
	return nil
}

// GetByID returns the chest with its items, or nil.
func (s *ChestStore) GetByID(ctx context.Context, id int64) (*model.Chest, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+chestCols+` FROM chests WHERE id = ?`, id)
	c, err := scanChest(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get chest: %w", err)
	}
	items, err := s.ListItems(ctx, id)
	if err != nil {
		return nil, err
	}
	c.Items = items
	return c, nil
}

// ListByFamily returns the family's chests with their items, cheapest first.
func (s *ChestStore) ListByFamily(ctx context.Context, familyID int64) ([]model.Chest, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+chestCols+` FROM chests WHERE family_id = ? ORDER BY cost ASC, id ASC`, familyID)
	if err != nil {
		return nil, fmt.Errorf("list chests: %w", err)
	}

	var chests []model.Chest
	for rows.Next() {
		c, err := scanChest(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan chest: %w", err)
		}
		chests = append(chests, *c)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	for i := range chests {
		items, err := s.ListItems(ctx, chests[i].ID)
		if err != nil {
			return nil, err
		}
		chests[i].Items = items
	}
	return chests, nil
}

func (s *ChestStore) ListItems(ctx context.Context, chestID int64) ([]model.ChestItem, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+chestItemCols+` FROM chest_items WHERE chest_id = ? ORDER BY id ASC`, chestID)
	if err != nil {
		return nil, fmt.Errorf("list chest items: %w", err)
	}
	defer rows.Close()

	items := []model.ChestItem{}
	for rows.Next() {
		it, err := scanChestItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan chest item: %w", err)
		}
		items = append(items, *it)
	}
	return items, rows.Err()
}

func (s *ChestStore) Delete(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM chests WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete chest: %w", err)
	}
	return nil
}

// AddOwned records a purchased, unopened chest for userID.
func (s *ChestStore) AddOwned(ctx context.Context, userID, chestID int64) (*model.UserChest, error) {
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO user_chests (user_id, chest_id, purchased_at) VALUES (?, ?, ?)`,
		userID, chestID, time.Now().UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("insert user chest: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetOwned(ctx, id)
}

func (s *ChestStore) GetOwned(ctx context.Context, id int64) (*model.UserChest, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userChestCols+` FROM user_chests WHERE id = ?`, id)
	uc, err := scanUserChest(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user chest: %w", err)
	}
	return uc, nil
}

// ListOwned returns a user's chests, unopened first then most recent.
func (s *ChestStore) ListOwned(ctx context.Context, userID int64) ([]model.UserChest, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+userChestCols+` FROM user_chests WHERE user_id = ? ORDER BY opened ASC, purchased_at DESC, id DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list user chests: %w", err)
	}
	defer rows.Close()

	var owned []model.UserChest
	for rows.Next() {
		uc, err := scanUserChest(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user chest: %w", err)
		}
		owned = append(owned, *uc)
	}
	return owned, rows.Err()
}

// MarkOpened records the drawn item on an unopened chest. It returns false
// if the chest was already opened.
func (s *ChestStore) MarkOpened(ctx context.Context, id int64, item model.ChestItem, at time.Time) (bool, error) {
	data, err := json.Marshal(item)
	if err != nil {
		return false, fmt.Errorf("encode received item: %w", err)
	}
	result, err := s.db.ExecContext(ctx,
		`UPDATE user_chests SET opened = 1, received_item = ?, opened_at = ? WHERE id = ? AND opened = 0`,
		string(data), at.UTC(), id,
	)
	if err != nil {
		return false, fmt.Errorf("mark chest opened: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n == 1, nil
}
