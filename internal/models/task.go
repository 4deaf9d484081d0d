package models

import "time"

type TaskStatus string

const (
	TaskStatusTodo       TaskStatus = "todo"
	TaskStatusInProgress TaskStatus = "in_progress"
	TaskStatusReview     TaskStatus = "review"
	TaskStatusDone       TaskStatus = "done"
)

func (s TaskStatus) Valid() bool {
	switch s {
	case TaskStatusTodo, TaskStatusInProgress, TaskStatusReview, TaskStatusDone:
		return true
	}
	return false
}

type ChecklistItem struct {
	ID    string `json:"id"`
	Label string `json:"label"`
	Done  bool   `json:"done"`
}

type Task struct {
	ID          int64
	Title       string
	Description string
	Status      TaskStatus
	Position    int
	AssigneeID  *int64
	DueDate     *time.Time
	Checklist   []ChecklistItem
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
