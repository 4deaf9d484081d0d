package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lemurdu20escalade/LeSite-sub001/internal/models"
)

var ErrTaskNotFound = errors.New("task not found")

type TaskRepository struct {
	pool *pgxpool.Pool
}

func NewTaskRepository(pool *pgxpool.Pool) *TaskRepository {
	return &TaskRepository{pool: pool}
}

const taskColumns = `
	id, title, description, status, position, assignee_id, due_date, checklist, created_at, updated_at
`

func scanTask(row pgx.Row) (models.Task, error) {
	var (
		task      models.Task
		checklist []byte
	)
	if err := row.Scan(
		&task.ID,
		&task.Title,
		&task.Description,
		&task.Status,
		&task.Position,
		&task.AssigneeID,
		&task.DueDate,
		&checklist,
		&task.CreatedAt,
		&task.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Task{}, ErrTaskNotFound
		}
		return models.Task{}, err
	}
	if len(checklist) > 0 {
		if err := json.Unmarshal(checklist, &task.Checklist); err != nil {
			return models.Task{}, fmt.Errorf("decode checklist: %w", err)
		}
	}
	return task, nil
}

// List returns tasks ordered by column then position. Empty status lists all.
func (r *TaskRepository) List(ctx context.Context, status models.TaskStatus) ([]models.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks
		WHERE ($1 = '' OR status = $1)
		ORDER BY status, position, id`
	rows, err := r.pool.Query(ctx, query, string(status))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tasks []models.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	return tasks, rows.Err()
}

func (r *TaskRepository) GetByID(ctx context.Context, id int64) (models.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE id = $1`
	return scanTask(r.pool.QueryRow(ctx, query, id))
}

// Update persists the mutable fields of task and returns the stored row.
func (r *TaskRepository) Update(ctx context.Context, task models.Task) (models.Task, error) {
	checklist, err := json.Marshal(task.Checklist)
	if err != nil {
		return models.Task{}, fmt.Errorf("encode checklist: %w", err)
	}
	if task.Checklist == nil {
		checklist = []byte("[]")
	}

	query := `
		UPDATE tasks
		SET title = $2,
		    description = $3,
		    status = $4,
		    position = $5,
		    assignee_id = $6,
		    due_date = $7,
		    checklist = $8,
		    updated_at = NOW()
		WHERE id = $1
		RETURNING ` + taskColumns
	return scanTask(r.pool.QueryRow(ctx, query,
		task.ID,
		task.Title,
		task.Description,
		task.Status,
		task.Position,
		task.AssigneeID,
		task.DueDate,
		checklist,
	))
}
