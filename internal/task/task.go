// Package task implements the task lifecycle: creation of single and
// recurring tasks, the pending → in_progress → completed → approved
// transitions, aggregate progress, deletion and housekeeping.
package task

import (
	"context"
	"database/sql"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dukerupert/chorequest/internal/apperr"
	"github.com/dukerupert/chorequest/internal/auth"
	"github.com/dukerupert/chorequest/internal/config"
	"github.com/dukerupert/chorequest/internal/limit"
	"github.com/dukerupert/chorequest/internal/milestone"
	"github.com/dukerupert/chorequest/internal/model"
	"github.com/dukerupert/chorequest/internal/store"
)

type Manager struct {
	db         *sql.DB
	stores     *store.Stores
	policy     config.Policy
	limits     *limit.Evaluator
	milestones *milestone.Evaluator
	logger     *slog.Logger
	now        func() time.Time
}

func NewManager(db *sql.DB, policy config.Policy, limits *limit.Evaluator, milestones *milestone.Evaluator, logger *slog.Logger) *Manager {
	return &Manager{
		db:         db,
		stores:     store.New(db),
		policy:     policy,
		limits:     limits,
		milestones: milestones,
		logger:     logger.With("component", "task"),
		now:        time.Now,
	}
}

// SetClock replaces the time source.
func (m *Manager) SetClock(now func() time.Time) {
	m.now = now
}

// CreateInput describes a new task. Zero fields are filled from the template
// when TemplateID is set.
type CreateInput struct {
	Title       string          `json:"title"`
	Description string          `json:"description"`
	AssignedTo  int64           `json:"assigned_to"`
	Category    *model.Category `json:"category"`
	XPReward    int             `json:"xp_reward"`
	CoinReward  int             `json:"coin_reward"`
	TemplateID  *int64          `json:"template_id"`
}

// ApproveResult carries everything an approval changed.
type ApproveResult struct {
	Task    *model.Task   `json:"task"`
	Parent  *model.Task   `json:"parent,omitempty"`
	Bonuses []model.Bonus `json:"bonuses"`
}

// DeleteFailure reports one id a batch delete could not remove.
type DeleteFailure struct {
	ID    int64  `json:"id"`
	Error string `json:"error"`
}

func requireRoot(ac auth.AuthContext) error {
	if !ac.HasFamily() {
		return apperr.Validation("join a family first")
	}
	if !ac.IsRoot {
		return apperr.PermissionDenied("only a family root can do that")
	}
	return nil
}

// canApprove: the creator, or anyone with the parent role.
func canApprove(ac auth.AuthContext, t *model.Task) bool {
	return ac.IsParent() || t.CreatedBy == ac.UserID
}

func loadTask(ctx context.Context, tasks *store.TaskStore, ac auth.AuthContext, id int64) (*model.Task, error) {
	t, err := tasks.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if t == nil || t.FamilyID != ac.FamilyID {
		return nil, apperr.NotFound("task not found")
	}
	return t, nil
}

// prepare validates the input against the caller's family and applies the
// template defaults.
func (m *Manager) prepare(ctx context.Context, ac auth.AuthContext, in CreateInput) (CreateInput, error) {
	if in.TemplateID != nil {
		tpl, err := m.stores.Templates.GetByID(ctx, *in.TemplateID)
		if err != nil {
			return in, err
		}
		if tpl == nil || tpl.FamilyID != ac.FamilyID {
			return in, apperr.NotFound("template not found")
		}
		if in.Title == "" {
			in.Title = tpl.Title
		}
		if in.Description == "" {
			in.Description = tpl.Description
		}
		if in.Category == nil {
			in.Category = tpl.Category
		}
		if in.XPReward == 0 {
			in.XPReward = tpl.XPReward
		}
		if in.CoinReward == 0 {
			in.CoinReward = tpl.CoinReward
		}
	}

	in.Title = strings.TrimSpace(in.Title)
	if in.Title == "" {
		return in, apperr.Validation("title is required")
	}
	if in.AssignedTo == 0 {
		return in, apperr.Validation("choose who the task is for")
	}
	if in.XPReward < 0 || in.CoinReward < 0 {
		return in, apperr.Validation("rewards must not be negative")
	}
	if in.Category != nil && !in.Category.Valid() {
		return in, apperr.Validation("unknown category %q", *in.Category)
	}

	assignee, err := m.stores.Profiles.GetByID(ctx, in.AssignedTo)
	if err != nil {
		return in, err
	}
	if assignee == nil || !assignee.InFamily(ac.FamilyID) {
		return in, apperr.Validation("assignee is not in your family")
	}
	return in, nil
}

// Create adds a pending daily task dated today in the caller's time zone.
func (m *Manager) Create(ctx context.Context, ac auth.AuthContext, in CreateInput) (*model.Task, error) {
	if err := requireRoot(ac); err != nil {
		return nil, err
	}
	in, err := m.prepare(ctx, ac, in)
	if err != nil {
		return nil, err
	}

	today := ac.Today(m.now())
	t, err := m.stores.Tasks.Create(ctx, &model.Task{
		Title:       in.Title,
		Description: in.Description,
		AssignedTo:  in.AssignedTo,
		CreatedBy:   ac.UserID,
		Type:        model.TypeDaily,
		Category:    in.Category,
		XPReward:    in.XPReward,
		CoinReward:  in.CoinReward,
		FamilyID:    ac.FamilyID,
		TaskDate:    &today,
	})
	if err != nil {
		return nil, err
	}
	m.logger.Info("task created", "task_id", t.ID, "family_id", ac.FamilyID, "assigned_to", t.AssignedTo)
	return t, nil
}

// CreateRecurring creates a weekly or monthly aggregate and its daily tasks,
// one per consecutive day starting today. The aggregate is returned first.
func (m *Manager) CreateRecurring(ctx context.Context, ac auth.AuthContext, in CreateInput, typ model.TaskType) ([]model.Task, error) {
	if err := requireRoot(ac); err != nil {
		return nil, err
	}

	var days int
	switch typ {
	case model.TypeWeekly:
		days = m.policy.Recurring.WeeklyDays
	case model.TypeMonthly:
		days = m.policy.Recurring.MonthlyDays
	default:
		return nil, apperr.Validation("recurring tasks are weekly or monthly")
	}

	in, err := m.prepare(ctx, ac, in)
	if err != nil {
		return nil, err
	}

	start := m.now().In(ac.Loc())
	groupKey := uuid.NewString()
	completed := 0

	var created []model.Task
	err = store.InTx(ctx, m.db, func(tx *store.Stores) error {
		created = created[:0]
		parent, err := tx.Tasks.Create(ctx, &model.Task{
			Title:          in.Title,
			Description:    in.Description,
			AssignedTo:     in.AssignedTo,
			CreatedBy:      ac.UserID,
			Type:           typ,
			Category:       in.Category,
			XPReward:       in.XPReward * days,
			CoinReward:     in.CoinReward * days,
			FamilyID:       ac.FamilyID,
			GroupKey:       &groupKey,
			RequiredCount:  &days,
			CompletedCount: &completed,
		})
		if err != nil {
			return err
		}
		created = append(created, *parent)

		for i := 0; i < days; i++ {
			date := start.AddDate(0, 0, i).Format(model.DateLayout)
			child, err := tx.Tasks.Create(ctx, &model.Task{
				Title:        in.Title,
				Description:  in.Description,
				AssignedTo:   in.AssignedTo,
				CreatedBy:    ac.UserID,
				Type:         model.TypeDaily,
				Category:     in.Category,
				XPReward:     in.XPReward,
				CoinReward:   in.CoinReward,
				FamilyID:     ac.FamilyID,
				TaskDate:     &date,
				ParentTaskID: &parent.ID,
				GroupKey:     &groupKey,
			})
			if err != nil {
				return err
			}
			created = append(created, *child)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	m.logger.Info("recurring tasks created", "group_key", groupKey, "type", typ, "days", days, "family_id", ac.FamilyID)
	return created, nil
}

func (m *Manager) Get(ctx context.Context, ac auth.AuthContext, id int64) (*model.Task, error) {
	return loadTask(ctx, m.stores.Tasks, ac, id)
}

// List returns the caller's family tasks. Old finished tasks are purged first.
func (m *Manager) List(ctx context.Context, ac auth.AuthContext, f model.TaskFilter) ([]model.Task, error) {
	if !ac.HasFamily() {
		return nil, apperr.Validation("join a family first")
	}
	if _, err := m.AutoDeleteOldCompleted(ctx, ac.FamilyID); err != nil {
		m.logger.Error("auto delete old tasks", "family_id", ac.FamilyID, "error", err)
	}
	return m.stores.Tasks.List(ctx, ac.FamilyID, f)
}

// Start moves a pending task to in_progress. Only the assignee may start it.
func (m *Manager) Start(ctx context.Context, ac auth.AuthContext, id int64) (*model.Task, error) {
	t, err := loadTask(ctx, m.stores.Tasks, ac, id)
	if err != nil {
		return nil, err
	}
	if t.IsAggregate() {
		return nil, apperr.Validation("progress a recurring task through its daily tasks")
	}
	if t.AssignedTo != ac.UserID {
		return nil, apperr.PermissionDenied("only the assignee can start this task")
	}
	ok, err := m.stores.Tasks.MarkStarted(ctx, id, m.now())
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperr.AlreadyProcessed("task is %s, not pending", t.Status)
	}
	return m.stores.Tasks.GetByID(ctx, id)
}

// Complete marks an in-progress task completed after checking the
// assignee's quota for the task's window. It returns the task and, for a
// daily task in a recurring group, the updated aggregate.
func (m *Manager) Complete(ctx context.Context, ac auth.AuthContext, id int64) (*model.Task, *model.Task, error) {
	now := m.now()
	today := ac.Today(now)
	threshold := time.Duration(m.policy.SuspiciousSeconds) * time.Second

	var done, parent *model.Task
	var flagged bool
	err := store.InTx(ctx, m.db, func(tx *store.Stores) error {
		t, err := loadTask(ctx, tx.Tasks, ac, id)
		if err != nil {
			return err
		}
		if t.IsAggregate() {
			return apperr.Validation("progress a recurring task through its daily tasks")
		}
		if t.AssignedTo != ac.UserID {
			return apperr.PermissionDenied("only the assignee can complete this task")
		}
		if t.Status != model.StatusInProgress {
			return apperr.AlreadyProcessed("task is %s, not in progress", t.Status)
		}

		window, err := effectiveType(ctx, tx.Tasks, t)
		if err != nil {
			return err
		}
		if err := m.limits.CanComplete(ctx, tx.Tasks, t.AssignedTo, window, today, t.CoinReward); err != nil {
			return err
		}

		flagged = t.StartedAt != nil && now.Sub(*t.StartedAt) < threshold
		ok, err := tx.Tasks.MarkCompleted(ctx, id, now, today, flagged)
		if err != nil {
			return err
		}
		if !ok {
			return apperr.AlreadyProcessed("task is no longer in progress")
		}

		if t.ParentTaskID != nil {
			if parent, err = recompute(ctx, tx.Tasks, *t.ParentTaskID, now, today); err != nil {
				return err
			}
		}
		done, err = tx.Tasks.GetByID(ctx, id)
		return err
	})
	if err != nil {
		return nil, nil, err
	}

	if flagged {
		m.logger.Warn("task completed suspiciously fast", "task_id", id, "user_id", ac.UserID, "threshold", threshold)
	}
	return done, parent, nil
}

// Approve credits the assignee and marks the task approved, then evaluates
// milestone bonuses for the assignee.
func (m *Manager) Approve(ctx context.Context, ac auth.AuthContext, id int64) (*ApproveResult, error) {
	now := m.now()
	today := ac.Today(now)
	res := &ApproveResult{Bonuses: []model.Bonus{}}

	err := store.InTx(ctx, m.db, func(tx *store.Stores) error {
		t, err := loadTask(ctx, tx.Tasks, ac, id)
		if err != nil {
			return err
		}
		if t.IsAggregate() {
			return apperr.Validation("recurring tasks complete on their own")
		}
		if !canApprove(ac, t) {
			return apperr.PermissionDenied("only a parent or the task creator can approve")
		}
		ok, err := tx.Tasks.MarkApproved(ctx, id)
		if err != nil {
			return err
		}
		if !ok {
			return apperr.AlreadyProcessed("task is %s, not completed", t.Status)
		}
		if err := tx.Profiles.AddStats(ctx, t.AssignedTo, t.XPReward, t.CoinReward); err != nil {
			return err
		}
		if t.ParentTaskID != nil {
			if res.Parent, err = recompute(ctx, tx.Tasks, *t.ParentTaskID, now, today); err != nil {
				return err
			}
		}
		res.Task, err = tx.Tasks.GetByID(ctx, id)
		return err
	})
	if err != nil {
		return nil, err
	}

	m.logger.Info("task approved", "task_id", id, "assigned_to", res.Task.AssignedTo, "approved_by", ac.UserID,
		"xp", res.Task.XPReward, "coins", res.Task.CoinReward)

	familyID := ac.FamilyID
	bonuses, err := m.milestones.Evaluate(ctx, res.Task.AssignedTo, &familyID, today)
	if err != nil {
		m.logger.Error("evaluate milestones", "user_id", res.Task.AssignedTo, "error", err)
	}
	res.Bonuses = append(res.Bonuses, bonuses...)
	return res, nil
}

// Reject sends a completed task back to pending without any reward.
func (m *Manager) Reject(ctx context.Context, ac auth.AuthContext, id int64) (*model.Task, error) {
	t, err := loadTask(ctx, m.stores.Tasks, ac, id)
	if err != nil {
		return nil, err
	}
	if t.IsAggregate() {
		return nil, apperr.Validation("recurring tasks complete on their own")
	}
	if !canApprove(ac, t) {
		return nil, apperr.PermissionDenied("only a parent or the task creator can reject")
	}
	ok, err := m.stores.Tasks.MarkRejected(ctx, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperr.AlreadyProcessed("task is %s, not completed", t.Status)
	}
	m.logger.Info("task rejected", "task_id", id, "rejected_by", ac.UserID)
	return m.stores.Tasks.GetByID(ctx, id)
}

// SetEvidence attaches a photo URL. The assignee or a root may do this.
func (m *Manager) SetEvidence(ctx context.Context, ac auth.AuthContext, id int64, url string) (*model.Task, error) {
	t, err := loadTask(ctx, m.stores.Tasks, ac, id)
	if err != nil {
		return nil, err
	}
	if t.AssignedTo != ac.UserID && !ac.IsRoot {
		return nil, apperr.PermissionDenied("only the assignee can attach evidence")
	}
	if err := m.stores.Tasks.SetEvidence(ctx, id, url); err != nil {
		return nil, err
	}
	return m.stores.Tasks.GetByID(ctx, id)
}

// Delete removes a task. Deleting an aggregate removes its whole group.
// It returns how many rows were removed.
func (m *Manager) Delete(ctx context.Context, ac auth.AuthContext, id int64) (int64, error) {
	if err := requireRoot(ac); err != nil {
		return 0, err
	}

	var removed int64
	err := store.InTx(ctx, m.db, func(tx *store.Stores) error {
		t, err := loadTask(ctx, tx.Tasks, ac, id)
		if err != nil {
			return err
		}
		if t.ParentTaskID == nil && t.GroupKey != nil {
			removed, err = tx.Tasks.DeleteGroup(ctx, *t.GroupKey)
			return err
		}
		removed = 1
		return tx.Tasks.Delete(ctx, id)
	})
	if err != nil {
		return 0, err
	}
	m.logger.Info("task deleted", "task_id", id, "rows", removed, "deleted_by", ac.UserID)
	return removed, nil
}

// DeleteMultiple deletes each id independently. Failures are collected and
// do not stop the batch.
func (m *Manager) DeleteMultiple(ctx context.Context, ac auth.AuthContext, ids []int64) (int64, []DeleteFailure, error) {
	if err := requireRoot(ac); err != nil {
		return 0, nil, err
	}

	var removed int64
	failures := []DeleteFailure{}
	for _, id := range ids {
		n, err := m.Delete(ctx, ac, id)
		if err != nil {
			failures = append(failures, DeleteFailure{ID: id, Error: err.Error()})
			continue
		}
		removed += n
	}
	return removed, failures, nil
}

// AutoDeleteOldCompleted purges a family's completed and approved tasks
// finished longer ago than the retention period.
func (m *Manager) AutoDeleteOldCompleted(ctx context.Context, familyID int64) (int64, error) {
	cutoff := m.now().AddDate(0, 0, -m.policy.RetentionDays)
	n, err := m.stores.Tasks.DeleteFinishedBefore(ctx, familyID, cutoff)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		m.logger.Info("old tasks purged", "family_id", familyID, "rows", n)
	}
	return n, nil
}

// Usage reports the caller's quota usage for every window.
func (m *Manager) Usage(ctx context.Context, ac auth.AuthContext) ([]limit.Usage, error) {
	return m.limits.All(ctx, m.stores.Tasks, ac.UserID, ac.Today(m.now()))
}

// effectiveType is the window a task counts against: a daily task inside a
// recurring group counts toward its aggregate's window.
func effectiveType(ctx context.Context, tasks *store.TaskStore, t *model.Task) (model.TaskType, error) {
	if t.ParentTaskID == nil {
		return t.Type, nil
	}
	p, err := tasks.GetByID(ctx, *t.ParentTaskID)
	if err != nil {
		return "", err
	}
	if p == nil {
		return t.Type, nil
	}
	return p.Type, nil
}

// recompute writes the group's done count to the aggregate and completes it
// once the required count is reached.
func recompute(ctx context.Context, tasks *store.TaskStore, parentID int64, now time.Time, today string) (*model.Task, error) {
	p, err := tasks.GetByID(ctx, parentID)
	if err != nil || p == nil || p.GroupKey == nil {
		return p, err
	}
	done, err := tasks.CountGroupDone(ctx, *p.GroupKey)
	if err != nil {
		return nil, err
	}
	if err := tasks.SetCompletedCount(ctx, p.ID, done); err != nil {
		return nil, err
	}
	if p.RequiredCount != nil && done >= *p.RequiredCount {
		if _, err := tasks.CompleteAggregate(ctx, p.ID, now, today); err != nil {
			return nil, err
		}
	}
	return tasks.GetByID(ctx, p.ID)
}
