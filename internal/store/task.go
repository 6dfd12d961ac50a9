package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/dukerupert/chorequest/internal/model"
)

type TaskStore struct {
	db DBTX
}

func NewTaskStore(db DBTX) *TaskStore {
	return &TaskStore{db: db}
}

func scanTask(s scanner) (*model.Task, error) {
	var t model.Task
	var status, typ string
	var category, taskDate, completedDate, groupKey sql.NullString
	var startedAt, completedAt sql.NullTime
	var parentID, required, completed sql.NullInt64
	var flagged int

	err := s.Scan(
		&t.ID, &t.Title, &t.Description, &t.AssignedTo, &t.CreatedBy, &status, &typ,
		&category, &t.XPReward, &t.CoinReward, &t.FamilyID, &taskDate, &completedDate,
		&startedAt, &completedAt, &t.Evidence, &parentID, &groupKey, &required, &completed,
		&flagged, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	t.Status = model.TaskStatus(status)
	t.Type = model.TaskType(typ)
	t.FlaggedFast = flagged != 0
	if category.Valid {
		c := model.Category(category.String)
		t.Category = &c
	}
	if taskDate.Valid {
		t.TaskDate = &taskDate.String
	}
	if completedDate.Valid {
		t.CompletedDate = &completedDate.String
	}
	if startedAt.Valid {
		t.StartedAt = &startedAt.Time
	}
	if completedAt.Valid {
		t.CompletedAt = &completedAt.Time
	}
	if parentID.Valid {
		t.ParentTaskID = &parentID.Int64
	}
	if groupKey.Valid {
		t.GroupKey = &groupKey.String
	}
	if required.Valid {
		n := int(required.Int64)
		t.RequiredCount = &n
	}
	if completed.Valid {
		n := int(completed.Int64)
		t.CompletedCount = &n
	}
	return &t, nil
}

const taskCols = `id, title, description, assigned_to, created_by, status, type, category, xp_reward, coin_reward, family_id, task_date, completed_date, started_at, completed_at, evidence, parent_task_id, group_key, required_count, completed_count, flagged_fast, created_at, updated_at`

func nullInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

func nullCategory(c *model.Category) sql.NullString {
	if c == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: string(*c), Valid: true}
}

// Create inserts t as given (status, dates and aggregate fields included) and
// returns the stored row.
func (s *TaskStore) Create(ctx context.Context, t *model.Task) (*model.Task, error) {
	status := t.Status
	if status == "" {
		status = model.StatusPending
	}

	result, err := s.db.ExecContext(ctx,
		`INSERT INTO tasks (title, description, assigned_to, created_by, status, type, category, xp_reward, coin_reward, family_id, task_date, parent_task_id, group_key, required_count, completed_count)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.Title, t.Description, t.AssignedTo, t.CreatedBy, string(status), string(t.Type),
		nullCategory(t.Category), t.XPReward, t.CoinReward, t.FamilyID, nullString(t.TaskDate),
		nullInt64(t.ParentTaskID), nullString(t.GroupKey), nullInt(t.RequiredCount), nullInt(t.CompletedCount),
	)
	if err != nil {
		return nil, fmt.Errorf("insert task: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(ctx, id)
}

func (s *TaskStore) GetByID(ctx context.Context, id int64) (*model.Task, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+taskCols+` FROM tasks WHERE id = ?`, id)
	t, err := scanTask(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get task: %w", err)
	}
	return t, nil
}

// List returns a family's tasks matching the filter, newest dates first.
func (s *TaskStore) List(ctx context.Context, familyID int64, f model.TaskFilter) ([]model.Task, error) {
	where := []string{"family_id = ?"}
	args := []any{familyID}
	if f.AssignedTo != nil {
		where = append(where, "assigned_to = ?")
		args = append(args, *f.AssignedTo)
	}
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(f.Status))
	}
	if f.Type != "" {
		where = append(where, "type = ?")
		args = append(args, string(f.Type))
	}
	if f.TaskDate != "" {
		where = append(where, "task_date = ?")
		args = append(args, f.TaskDate)
	}
	if f.GroupKey != "" {
		where = append(where, "group_key = ?")
		args = append(args, f.GroupKey)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+taskCols+` FROM tasks WHERE `+strings.Join(where, " AND ")+` ORDER BY COALESCE(task_date, '') DESC, id ASC`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	return collectTasks(rows)
}

// ListGroup returns every task sharing groupKey, parent first.
func (s *TaskStore) ListGroup(ctx context.Context, groupKey string) ([]model.Task, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+taskCols+` FROM tasks WHERE group_key = ? ORDER BY parent_task_id IS NOT NULL, task_date ASC, id ASC`,
		groupKey,
	)
	if err != nil {
		return nil, fmt.Errorf("list task group: %w", err)
	}
	return collectTasks(rows)
}

func collectTasks(rows *sql.Rows) ([]model.Task, error) {
	defer rows.Close()

	var tasks []model.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, *t)
	}
	return tasks, rows.Err()
}

// transition moves a task from one status to another with the given extra
// assignments. It returns false when the task was not in the expected status.
func (s *TaskStore) transition(ctx context.Context, id int64, from, to model.TaskStatus, set string, args ...any) (bool, error) {
	q := `UPDATE tasks SET status = ?, updated_at = CURRENT_TIMESTAMP`
	if set != "" {
		q += ", " + set
	}
	q += ` WHERE id = ? AND status = ?`

	params := append([]any{string(to)}, args...)
	params = append(params, id, string(from))

	result, err := s.db.ExecContext(ctx, q, params...)
	if err != nil {
		return false, fmt.Errorf("update task status: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n == 1, nil
}

func (s *TaskStore) MarkStarted(ctx context.Context, id int64, at time.Time) (bool, error) {
	return s.transition(ctx, id, model.StatusPending, model.StatusInProgress, "started_at = ?", at.UTC())
}

func (s *TaskStore) MarkCompleted(ctx context.Context, id int64, at time.Time, date string, flaggedFast bool) (bool, error) {
	return s.transition(ctx, id, model.StatusInProgress, model.StatusCompleted,
		"completed_at = ?, completed_date = ?, flagged_fast = ?", at.UTC(), date, boolInt(flaggedFast))
}

func (s *TaskStore) MarkApproved(ctx context.Context, id int64) (bool, error) {
	return s.transition(ctx, id, model.StatusCompleted, model.StatusApproved, "")
}

// MarkRejected sends a completed task back to pending. started_at and
// completed_date are left as they were.
func (s *TaskStore) MarkRejected(ctx context.Context, id int64) (bool, error) {
	return s.transition(ctx, id, model.StatusCompleted, model.StatusPending, "")
}

func (s *TaskStore) SetEvidence(ctx context.Context, id int64, url string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE tasks SET evidence = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`, url, id)
	if err != nil {
		return fmt.Errorf("set evidence: %w", err)
	}
	return nil
}

// CountGroupDone counts the children of a group that are completed or approved.
func (s *TaskStore) CountGroupDone(ctx context.Context, groupKey string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM tasks WHERE group_key = ? AND parent_task_id IS NOT NULL AND status IN ('completed', 'approved')`,
		groupKey,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count group done: %w", err)
	}
	return n, nil
}

func (s *TaskStore) SetCompletedCount(ctx context.Context, id int64, count int) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE tasks SET completed_count = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`, count, id)
	if err != nil {
		return fmt.Errorf("set completed count: %w", err)
	}
	return nil
}

// CompleteAggregate flips an aggregate parent to completed if it is still
// pending or in progress.
func (s *TaskStore) CompleteAggregate(ctx context.Context, id int64, at time.Time, date string) (bool, error) {
	result, err := s.db.ExecContext(ctx,
		`UPDATE tasks SET status = 'completed', completed_at = ?, completed_date = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND status IN ('pending', 'in_progress')`,
		at.UTC(), date, id,
	)
	if err != nil {
		return false, fmt.Errorf("complete aggregate: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n == 1, nil
}

func (s *TaskStore) Delete(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	return nil
}

// DeleteGroup removes every task sharing groupKey and returns how many went.
func (s *TaskStore) DeleteGroup(ctx context.Context, groupKey string) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM tasks WHERE group_key = ?`, groupKey)
	if err != nil {
		return 0, fmt.Errorf("delete task group: %w", err)
	}
	return result.RowsAffected()
}

// DeleteFinishedBefore removes a family's completed/approved tasks whose
// completed_at is older than cutoff.
func (s *TaskStore) DeleteFinishedBefore(ctx context.Context, familyID int64, cutoff time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM tasks WHERE family_id = ? AND status IN ('completed', 'approved') AND completed_at IS NOT NULL AND completed_at < ?`,
		familyID, cutoff.UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("delete old tasks: %w", err)
	}
	return result.RowsAffected()
}

// ApprovedTotals sums the count and coin rewards of every approved task of a
// user completed between from and to (inclusive, YYYY-MM-DD), whatever its type.
func (s *TaskStore) ApprovedTotals(ctx context.Context, userID int64, from, to string) (count, coins int, err error) {
	err = s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(coin_reward), 0)
		 FROM tasks
		 WHERE assigned_to = ? AND status = 'approved'
		   AND completed_date >= ? AND completed_date <= ?`,
		userID, from, to,
	).Scan(&count, &coins)
	if err != nil {
		return 0, 0, fmt.Errorf("sum approved tasks: %w", err)
	}
	return count, coins, nil
}

// CountApprovedDaily counts a user's approved daily tasks completed on date.
func (s *TaskStore) CountApprovedDaily(ctx context.Context, userID int64, date string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM tasks WHERE assigned_to = ? AND status = 'approved' AND type = 'daily' AND completed_date = ?`,
		userID, date,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count approved daily: %w", err)
	}
	return n, nil
}
