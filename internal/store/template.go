package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dukerupert/chorequest/internal/model"
)

type TemplateStore struct {
	db DBTX
}

func NewTemplateStore(db DBTX) *TemplateStore {
	return &TemplateStore{db: db}
}

func scanTemplate(s scanner) (*model.TaskTemplate, error) {
	var t model.TaskTemplate
	var typ string
	var category sql.NullString
	err := s.Scan(&t.ID, &t.FamilyID, &t.Title, &t.Description, &typ, &category,
		&t.XPReward, &t.CoinReward, &t.CreatedBy, &t.CreatedAt)
	if err != nil {
		return nil, err
	}
	t.Type = model.TaskType(typ)
	if category.Valid {
		c := model.Category(category.String)
		t.Category = &c
	}
	return &t, nil
}

const templateCols = `id, family_id, title, description, type, category, xp_reward, coin_reward, created_by, created_at`

func (s *TemplateStore) Create(ctx context.Context, t *model.TaskTemplate) (*model.TaskTemplate, error) {
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO task_templates (family_id, title, description, type, category, xp_reward, coin_reward, created_by)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		t.FamilyID, t.Title, t.Description, string(t.Type), nullCategory(t.Category), t.XPReward, t.CoinReward, t.CreatedBy,
	)
	if err != nil {
		return nil, fmt.Errorf("insert template: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(ctx, id)
}

func (s *TemplateStore) GetByID(ctx context.Context, id int64) (*model.TaskTemplate, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+templateCols+` FROM task_templates WHERE id = ?`, id)
	t, err := scanTemplate(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get template: %w", err)
	}
	return t, nil
}

func (s *TemplateStore) ListByFamily(ctx context.Context, familyID int64) ([]model.TaskTemplate, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+templateCols+` FROM task_templates WHERE family_id = ? ORDER BY title ASC`, familyID)
	if err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}
	defer rows.Close()

	var templates []model.TaskTemplate
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, fmt.Errorf("scan template: %w", err)
		}
		templates = append(templates, *t)
	}
	return templates, rows.Err()
}

func (s *TemplateStore) Update(ctx context.Context, t *model.TaskTemplate) (*model.TaskTemplate, error) {
	_, err := s.db.ExecContext(ctx,
		`UPDATE task_templates SET title = ?, description = ?, type = ?, category = ?, xp_reward = ?, coin_reward = ? WHERE id = ?`,
		t.Title, t.Description, string(t.Type), nullCategory(t.Category), t.XPReward, t.CoinReward, t.ID,
	)
	if err != nil {
		return nil, fmt.Errorf("update template: %w", err)
	}
	return s.GetByID(ctx, t.ID)
}

func (s *TemplateStore) Delete(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM task_templates WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete template: %w", err)
	}
	return nil
}
