package task

import (
	"context"
	"strings"

	"github.com/dukerupert/chorequest/internal/apperr"
	"github.com/dukerupert/chorequest/internal/auth"
	"github.com/dukerupert/chorequest/internal/model"
)

func (m *Manager) CreateTemplate(ctx context.Context, ac auth.AuthContext, tpl model.TaskTemplate) (*model.TaskTemplate, error) {
	if err := requireRoot(ac); err != nil {
		return nil, err
	}
	tpl.Title = strings.TrimSpace(tpl.Title)
	if tpl.Title == "" {
		return nil, apperr.Validation("title is required")
	}
	if tpl.Type == "" {
		tpl.Type = model.TypeDaily
	}
	if !tpl.Type.Valid() {
		return nil, apperr.Validation("unknown task type %q", tpl.Type)
	}
	if tpl.Category != nil && !tpl.Category.Valid() {
		return nil, apperr.Validation("unknown category %q", *tpl.Category)
	}
	if tpl.XPReward < 0 || tpl.CoinReward < 0 {
		return nil, apperr.Validation("rewards must not be negative")
	}
	tpl.FamilyID = ac.FamilyID
	tpl.CreatedBy = ac.UserID
	return m.stores.Templates.Create(ctx, &tpl)
}

func (m *Manager) ListTemplates(ctx context.Context, ac auth.AuthContext) ([]model.TaskTemplate, error) {
	if !ac.HasFamily() {
		return nil, apperr.Validation("join a family first")
	}
	return m.stores.Templates.ListByFamily(ctx, ac.FamilyID)
}

// DeleteTemplate removes a template. Only its creator may delete it.
func (m *Manager) DeleteTemplate(ctx context.Context, ac auth.AuthContext, id int64) error {
	tpl, err := m.stores.Templates.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if tpl == nil || tpl.FamilyID != ac.FamilyID {
		return apperr.NotFound("template not found")
	}
	if tpl.CreatedBy != ac.UserID {
		return apperr.PermissionDenied("only the creator can delete this template")
	}
	return m.stores.Templates.Delete(ctx, id)
}
