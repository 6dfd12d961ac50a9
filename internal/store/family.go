package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dukerupert/chorequest/internal/model"
)

type FamilyStore struct {
	db DBTX
}

func NewFamilyStore(db DBTX) *FamilyStore {
	return &FamilyStore{db: db}
}

func scanFamily(s scanner) (*model.Family, error) {
	var f model.Family
	err := s.Scan(&f.ID, &f.Name, &f.Code, &f.RootCode, &f.CreatedBy, &f.MemberCount, &f.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &f, nil
}

const familyCols = `id, name, code, root_code, created_by, member_count, created_at`

func (s *FamilyStore) Create(ctx context.Context, name, code, rootCode string, createdBy int64) (*model.Family, error) {
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO families (name, code, root_code, created_by, member_count) VALUES (?, ?, ?, ?, 1)`,
		name, code, rootCode, createdBy,
	)
	if err != nil {
		return nil, fmt.Errorf("insert family: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(ctx, id)
}

func (s *FamilyStore) GetByID(ctx context.Context, id int64) (*model.Family, error) {
	return s.getBy(ctx, "id", id)
}

func (s *FamilyStore) GetByCode(ctx context.Context, code string) (*model.Family, error) {
	return s.getBy(ctx, "code", code)
}

func (s *FamilyStore) GetByRootCode(ctx context.Context, rootCode string) (*model.Family, error) {
	return s.getBy(ctx, "root_code", rootCode)
}

func (s *FamilyStore) getBy(ctx context.Context, col string, v any) (*model.Family, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+familyCols+` FROM families WHERE `+col+` = ?`, v)
	f, err := scanFamily(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get family by %s: %w", col, err)
	}
	return f, nil
}

// CodeInUse reports whether code is taken as either a join code or a root code.
func (s *FamilyStore) CodeInUse(ctx context.Context, code string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM families WHERE code = ? OR root_code = ?`, code, code,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check code: %w", err)
	}
	return n > 0, nil
}

// AdjustMemberCount adds delta to member_count, never going below zero.
func (s *FamilyStore) AdjustMemberCount(ctx context.Context, id int64, delta int) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE families SET member_count = MAX(member_count + ?, 0) WHERE id = ?`, delta, id)
	if err != nil {
		return fmt.Errorf("adjust member count: %w", err)
	}
	return nil
}

func (s *FamilyStore) Delete(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM families WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete family: %w", err)
	}
	return nil
}
