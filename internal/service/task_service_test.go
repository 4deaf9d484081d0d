package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lemurdu20escalade/LeSite-sub001/internal/models"
	"github.com/lemurdu20escalade/LeSite-sub001/internal/repository"
)

type memTasks map[int64]models.Task

func (m memTasks) List(_ context.Context, status models.TaskStatus) ([]models.Task, error) {
	var out []models.Task
	for _, t := range m {
		if status == "" || t.Status == status {
			out = append(out, t)
		}
	}
	return out, nil
}

func (m memTasks) GetByID(_ context.Context, id int64) (models.Task, error) {
	t, ok := m[id]
	if !ok {
		return models.Task{}, repository.ErrTaskNotFound
	}
	return t, nil
}

func (m memTasks) Update(_ context.Context, task models.Task) (models.Task, error) {
	if _, ok := m[task.ID]; !ok {
		return models.Task{}, repository.ErrTaskNotFound
	}
	m[task.ID] = task
	return task, nil
}

func ptr[T any](v T) *T { return &v }

func newTasks() memTasks {
	return memTasks{
		1: {ID: 1, Title: "Changer les cordes", Status: models.TaskStatusTodo, Checklist: []models.ChecklistItem{
			{ID: "a", Label: "Commander"},
			{ID: "b", Label: "Installer"},
		}},
	}
}

func TestTaskUpdate(t *testing.T) {
	svc := NewTaskService(newTasks())
	ctx := context.Background()

	task, err := svc.Update(ctx, 1, TaskPatch{Status: ptr("in_progress"), Position: ptr(2), DueDate: ptr("2026-05-01")})
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusInProgress, task.Status)
	assert.Equal(t, 2, task.Position)
	require.NotNil(t, task.DueDate)
	assert.Equal(t, 2026, task.DueDate.Year())

	_, err = svc.Update(ctx, 1, TaskPatch{Status: ptr("archived")})
	assert.ErrorIs(t, err, ErrInvalidTaskStatus)

	_, err = svc.Update(ctx, 1, TaskPatch{DueDate: ptr("demain")})
	assert.ErrorIs(t, err, ErrInvalidRequest)

	_, err = svc.Update(ctx, 1, TaskPatch{Title: ptr("  ")})
	assert.ErrorIs(t, err, ErrInvalidRequest)

	_, err = svc.Update(ctx, 42, TaskPatch{})
	assert.ErrorIs(t, err, ErrTaskNotFound)
}

func TestTaskList(t *testing.T) {
	svc := NewTaskService(newTasks())
	ctx := context.Background()

	tasks, err := svc.List(ctx, "todo")
	require.NoError(t, err)
	assert.Len(t, tasks, 1)

	tasks, err = svc.List(ctx, "done")
	require.NoError(t, err)
	assert.NotNil(t, tasks)
	assert.Empty(t, tasks)

	_, err = svc.List(ctx, "bogus")
	assert.ErrorIs(t, err, ErrInvalidTaskStatus)
}

func TestChecklistToggleAndAppend(t *testing.T) {
	svc := NewTaskService(newTasks())
	ctx := context.Background()

	task, err := svc.UpdateChecklist(ctx, 1, ChecklistPatch{Index: ptr(1)})
	require.NoError(t, err)
	assert.True(t, task.Checklist[1].Done)

	task, err = svc.UpdateChecklist(ctx, 1, ChecklistPatch{Index: ptr(1), Done: ptr(true)})
	require.NoError(t, err)
	assert.True(t, task.Checklist[1].Done)

	task, err = svc.UpdateChecklist(ctx, 1, ChecklistPatch{Label: ptr("Vérifier")})
	require.NoError(t, err)
	require.Len(t, task.Checklist, 3)
	assert.NotEmpty(t, task.Checklist[2].ID)

	_, err = svc.UpdateChecklist(ctx, 1, ChecklistPatch{Index: ptr(9)})
	assert.ErrorIs(t, err, ErrInvalidChecklistItem)
	_, err = svc.UpdateChecklist(ctx, 1, ChecklistPatch{})
	assert.ErrorIs(t, err, ErrInvalidChecklistItem)
}
