package model

import "time"

type TaskStatus string

const (
	StatusPending    TaskStatus = "pending"
	StatusInProgress TaskStatus = "in_progress"
	StatusCompleted  TaskStatus = "completed"
	StatusApproved   TaskStatus = "approved"
)

type TaskType string

const (
	TypeDaily   TaskType = "daily"
	TypeWeekly  TaskType = "weekly"
	TypeMonthly TaskType = "monthly"
)

func (t TaskType) Valid() bool {
	return t == TypeDaily || t == TypeWeekly || t == TypeMonthly
}

type Category string

const (
	CategoryStudy Category = "hoc"
	CategoryOther Category = "khac"
)

func (c Category) Valid() bool {
	return c == CategoryStudy || c == CategoryOther
}

// DateLayout is the calendar date format used for task_date and completed_date.
const DateLayout = "2006-01-02"

type Task struct {
	ID             int64      `json:"id"`
	Title          string     `json:"title"`
	Description    string     `json:"description"`
	AssignedTo     int64      `json:"assigned_to"`
	CreatedBy      int64      `json:"created_by"`
	Status         TaskStatus `json:"status"`
	Type           TaskType   `json:"type"`
	Category       *Category  `json:"category"`
	XPReward       int        `json:"xp_reward"`
	CoinReward     int        `json:"coin_reward"`
	FamilyID       int64      `json:"family_id"`
	TaskDate       *string    `json:"task_date"`
	CompletedDate  *string    `json:"completed_date"`
	StartedAt      *time.Time `json:"started_at"`
	CompletedAt    *time.Time `json:"completed_at"`
	Evidence       string     `json:"evidence"`
	ParentTaskID   *int64     `json:"parent_task_id"`
	GroupKey       *string    `json:"group_key"`
	RequiredCount  *int       `json:"required_count"`
	CompletedCount *int       `json:"completed_count"`
	FlaggedFast    bool       `json:"flagged_fast"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// IsAggregate reports whether the task is a weekly/monthly parent whose
// progress is derived from its children.
func (t Task) IsAggregate() bool {
	return t.ParentTaskID == nil && t.GroupKey != nil && t.Type != TypeDaily
}

// TaskFilter narrows a family task listing. Zero values are ignored.
type TaskFilter struct {
	AssignedTo *int64
	Status     TaskStatus
	Type       TaskType
	TaskDate   string
	GroupKey   string
}

type TaskTemplate struct {
	ID          int64     `json:"id"`
	FamilyID    int64     `json:"family_id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Type        TaskType  `json:"type"`
	Category    *Category `json:"category"`
	XPReward    int       `json:"xp_reward"`
	CoinReward  int       `json:"coin_reward"`
	CreatedBy   int64     `json:"created_by"`
	CreatedAt   time.Time `json:"created_at"`
}
