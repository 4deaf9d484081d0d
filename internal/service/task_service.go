package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/lemurdu20escalade/LeSite-sub001/internal/ids"
	"github.com/lemurdu20escalade/LeSite-sub001/internal/models"
	"github.com/lemurdu20escalade/LeSite-sub001/internal/repository"
)

var (
	ErrTaskNotFound         = errors.New("tâche introuvable")
	ErrInvalidTaskStatus    = errors.New("statut de tâche invalide")
	ErrInvalidRequest       = errors.New("requête invalide")
	ErrInvalidChecklistItem = errors.New("élément de checklist invalide")
)

const maxTitleLength = 200

type TaskStore interface {
	List(ctx context.Context, status models.TaskStatus) ([]models.Task, error)
	GetByID(ctx context.Context, id int64) (models.Task, error)
	Update(ctx context.Context, task models.Task) (models.Task, error)
}

// TaskPatch lists the fields a Kanban edit may change. Nil means unchanged;
// an empty DueDate clears it and a zero AssigneeID unassigns.
type TaskPatch struct {
	Title      *string `json:"title"`
	Status     *string `json:"status"`
	Position   *int    `json:"position"`
	AssigneeID *int64  `json:"assignee_id"`
	DueDate    *string `json:"due_date"`
}

type ChecklistPatch struct {
	Index *int    `json:"index"`
	Done  *bool   `json:"done"`
	Label *string `json:"label"`
}

type TaskService struct {
	tasks TaskStore
}

func NewTaskService(tasks TaskStore) *TaskService {
	return &TaskService{tasks: tasks}
}

func (s *TaskService) List(ctx context.Context, status string) ([]models.Task, error) {
	st := models.TaskStatus(strings.TrimSpace(status))
	if st != "" && !st.Valid() {
		return nil, ErrInvalidTaskStatus
	}
	tasks, err := s.tasks.List(ctx, st)
	if err != nil {
		return nil, err
	}
	if tasks == nil {
		tasks = []models.Task{}
	}
	return tasks, nil
}

func (s *TaskService) load(ctx context.Context, id int64) (models.Task, error) {
	task, err := s.tasks.GetByID(ctx, id)
	if errors.Is(err, repository.ErrTaskNotFound) {
		return models.Task{}, ErrTaskNotFound
	}
	return task, err
}

func (s *TaskService) Update(ctx context.Context, id int64, patch TaskPatch) (models.Task, error) {
	task, err := s.load(ctx, id)
	if err != nil {
		return models.Task{}, err
	}

	if patch.Status != nil {
		st := models.TaskStatus(*patch.Status)
		if !st.Valid() {
			return models.Task{}, ErrInvalidTaskStatus
		}
		task.Status = st
	}
	if patch.Title != nil {
		title := strings.TrimSpace(*patch.Title)
		if title == "" || len(title) > maxTitleLength {
			return models.Task{}, ErrInvalidRequest
		}
		task.Title = title
	}
	if patch.Position != nil {
		if *patch.Position < 0 {
			return models.Task{}, ErrInvalidRequest
		}
		task.Position = *patch.Position
	}
	if patch.AssigneeID != nil {
		if *patch.AssigneeID == 0 {
			task.AssigneeID = nil
		} else {
			assignee := *patch.AssigneeID
			task.AssigneeID = &assignee
		}
	}
	if patch.DueDate != nil {
		due, err := parseDueDate(*patch.DueDate)
		if err != nil {
			return models.Task{}, ErrInvalidRequest
		}
		task.DueDate = due
	}

	return s.save(ctx, task)
}

// UpdateChecklist toggles, relabels or appends a checklist item. Without an
// index a new item is appended; without Done an existing item is toggled.
func (s *TaskService) UpdateChecklist(ctx context.Context, id int64, patch ChecklistPatch) (models.Task, error) {
	task, err := s.load(ctx, id)
	if err != nil {
		return models.Task{}, err
	}

	if patch.Index == nil {
		if patch.Label == nil || strings.TrimSpace(*patch.Label) == "" {
			return models.Task{}, ErrInvalidChecklistItem
		}
		task.Checklist = append(task.Checklist, models.ChecklistItem{
			ID:    ids.New(),
			Label: strings.TrimSpace(*patch.Label),
		})
		return s.save(ctx, task)
	}

	i := *patch.Index
	if i < 0 || i >= len(task.Checklist) {
		return models.Task{}, ErrInvalidChecklistItem
	}
	item := &task.Checklist[i]
	if patch.Label != nil {
		label := strings.TrimSpace(*patch.Label)
		if label == "" {
			return models.Task{}, ErrInvalidChecklistItem
		}
		item.Label = label
	}
	switch {
	case patch.Done != nil:
		item.Done = *patch.Done
	case patch.Label == nil:
		item.Done = !item.Done
	}
	return s.save(ctx, task)
}

func (s *TaskService) save(ctx context.Context, task models.Task) (models.Task, error) {
	updated, err := s.tasks.Update(ctx, task)
	if errors.Is(err, repository.ErrTaskNotFound) {
		return models.Task{}, ErrTaskNotFound
	}
	return updated, err
}

func parseDueDate(raw string) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	if t, err := time.Parse("2006-01-02", raw); err == nil {
		return &t, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
