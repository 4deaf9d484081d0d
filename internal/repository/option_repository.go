package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrOptionNotFound = errors.New("option not found")

// OptionRepository stores scalar site settings by name.
type OptionRepository struct {
	pool *pgxpool.Pool
}

func NewOptionRepository(pool *pgxpool.Pool) *OptionRepository {
	return &OptionRepository{pool: pool}
}

func (r *OptionRepository) GetOption(ctx context.Context, name string) (string, error) {
	var value string
	err := r.pool.QueryRow(ctx, `SELECT value FROM options WHERE name = $1`, name).Scan(&value)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrOptionNotFound
		}
		return "", err
	}
	return value, nil
}

func (r *OptionRepository) SetOption(ctx context.Context, name string, value string) error {
	const query = `
		INSERT INTO options (name, value, updated_at) VALUES ($1, $2, NOW())
		ON CONFLICT (name) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()
	`
	_, err := r.pool.Exec(ctx, query, name, value)
	return err
}
