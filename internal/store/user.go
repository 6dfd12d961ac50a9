package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dukerupert/chorequest/internal/model"
)

// ProfileStore persists user profiles (the users table).
type ProfileStore struct {
	db DBTX
}

func NewProfileStore(db DBTX) *ProfileStore {
	return &ProfileStore{db: db}
}

func scanProfile(s scanner) (*model.Profile, error) {
	var p model.Profile
	var familyID sql.NullInt64
	var authUID, passwordHash sql.NullString
	var role string
	var isRoot, isSuperRoot int

	err := s.Scan(
		&p.ID, &p.Name, &p.Email, &passwordHash, &authUID, &p.XP, &p.Coins,
		&role, &isRoot, &isSuperRoot, &familyID,
		&p.CharacterAvatar, &p.CharacterBase, &p.Profession, &p.Gender,
		&p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	p.Role = model.Role(role)
	p.IsRoot = isRoot != 0
	p.IsSuperRoot = isSuperRoot != 0
	p.PasswordHash = passwordHash.String
	if familyID.Valid {
		p.FamilyID = &familyID.Int64
	}
	if authUID.Valid {
		p.AuthUID = &authUID.String
	}
	return &p, nil
}

const profileCols = `id, name, email, password_hash, auth_uid, xp, coins, role, is_root, is_super_root, family_id, character_avatar, character_base, profession, gender, created_at, updated_at`

// Create inserts a new profile with zero stats. passwordHash may be empty for
// federated accounts, authUID nil for password accounts.
func (s *ProfileStore) Create(ctx context.Context, email, name string, role model.Role, passwordHash string, authUID *string) (*model.Profile, error) {
	var ph sql.NullString
	if passwordHash != "" {
		ph = sql.NullString{String: passwordHash, Valid: true}
	}

	result, err := s.db.ExecContext(ctx,
		`INSERT INTO users (email, name, role, password_hash, auth_uid) VALUES (?, ?, ?, ?, ?)`,
		email, name, string(role), ph, nullString(authUID),
	)
	if err != nil {
		return nil, fmt.Errorf("insert user: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(ctx, id)
}

func (s *ProfileStore) GetByID(ctx context.Context, id int64) (*model.Profile, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+profileCols+` FROM users WHERE id = ?`, id)
	p, err := scanProfile(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return p, nil
}

func (s *ProfileStore) GetByEmail(ctx context.Context, email string) (*model.Profile, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+profileCols+` FROM users WHERE email = ?`, email)
	p, err := scanProfile(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user by email: %w", err)
	}
	return p, nil
}

func (s *ProfileStore) GetByAuthUID(ctx context.Context, uid string) (*model.Profile, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+profileCols+` FROM users WHERE auth_uid = ?`, uid)
	p, err := scanProfile(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user by auth uid: %w", err)
	}
	return p, nil
}

// ListByFamily returns family members ordered by XP, highest first.
func (s *ProfileStore) ListByFamily(ctx context.Context, familyID int64) ([]model.Profile, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+profileCols+` FROM users WHERE family_id = ? ORDER BY xp DESC, name ASC`,
		familyID,
	)
	if err != nil {
		return nil, fmt.Errorf("list family users: %w", err)
	}
	defer rows.Close()

	var profiles []model.Profile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		profiles = append(profiles, *p)
	}
	return profiles, rows.Err()
}

// UpdateDetails writes the user-editable columns.
func (s *ProfileStore) UpdateDetails(ctx context.Context, p *model.Profile) (*model.Profile, error) {
	_, err := s.db.ExecContext(ctx,
		`UPDATE users SET name = ?, role = ?, character_avatar = ?, character_base = ?, profession = ?, gender = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		p.Name, string(p.Role), p.CharacterAvatar, p.CharacterBase, p.Profession, p.Gender, p.ID,
	)
	if err != nil {
		return nil, fmt.Errorf("update user: %w", err)
	}
	return s.GetByID(ctx, p.ID)
}

// SetAuthUID links a federated identity to an existing profile.
func (s *ProfileStore) SetAuthUID(ctx context.Context, id int64, uid string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE users SET auth_uid = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`, uid, id)
	if err != nil {
		return fmt.Errorf("set auth uid: %w", err)
	}
	return nil
}

// AddStats credits xp and coins. Both deltas must be non-negative.
func (s *ProfileStore) AddStats(ctx context.Context, id int64, xp, coins int) error {
	if xp < 0 || coins < 0 {
		return fmt.Errorf("add stats: negative delta xp=%d coins=%d", xp, coins)
	}
	result, err := s.db.ExecContext(ctx,
		`UPDATE users SET xp = xp + ?, coins = coins + ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		xp, coins, id,
	)
	if err != nil {
		return fmt.Errorf("add stats: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("add stats: user %d not found", id)
	}
	return nil
}

// DebitCoins subtracts amount only if the balance covers it. It returns false
// without changing anything when funds are insufficient.
func (s *ProfileStore) DebitCoins(ctx context.Context, id int64, amount int) (bool, error) {
	result, err := s.db.ExecContext(ctx,
		`UPDATE users SET coins = coins - ?, updated_at = CURRENT_TIMESTAMP WHERE id = ? AND coins >= ?`,
		amount, id, amount,
	)
	if err != nil {
		return false, fmt.Errorf("debit coins: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n == 1, nil
}

func (s *ProfileStore) ResetStats(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE users SET xp = 0, coins = 0, updated_at = CURRENT_TIMESTAMP WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("reset stats: %w", err)
	}
	return nil
}

func (s *ProfileStore) SetFamily(ctx context.Context, id int64, familyID *int64) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE users SET family_id = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		nullInt64(familyID), id,
	)
	if err != nil {
		return fmt.Errorf("set family: %w", err)
	}
	return nil
}

func (s *ProfileStore) SetRoot(ctx context.Context, id int64, isRoot bool) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE users SET is_root = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		boolInt(isRoot), id,
	)
	if err != nil {
		return fmt.Errorf("set root: %w", err)
	}
	return nil
}

func (s *ProfileStore) SetRole(ctx context.Context, id int64, role model.Role) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE users SET role = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		string(role), id,
	)
	if err != nil {
		return fmt.Errorf("set role: %w", err)
	}
	return nil
}

func (s *ProfileStore) SetSuperRoot(ctx context.Context, id int64, isSuperRoot bool) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE users SET is_super_root = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		boolInt(isSuperRoot), id,
	)
	if err != nil {
		return fmt.Errorf("set super root: %w", err)
	}
	return nil
}

// CountRoots returns how many root members a family currently has.
func (s *ProfileStore) CountRoots(ctx context.Context, familyID int64) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM users WHERE family_id = ? AND is_root = 1`, familyID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count roots: %w", err)
	}
	return n, nil
}

// ClearFamily detaches every member of a family and drops their root flag.
func (s *ProfileStore) ClearFamily(ctx context.Context, familyID int64) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE users SET family_id = NULL, is_root = 0, updated_at = CURRENT_TIMESTAMP WHERE family_id = ?`,
		familyID,
	)
	if err != nil {
		return fmt.Errorf("clear family: %w", err)
	}
	return nil
}

// Delete removes the account. Sessions, tasks assigned to it, owned chests
// and receipts cascade.
func (s *ProfileStore) Delete(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	return nil
}
