package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lemurdu20escalade/LeSite-sub001/internal/models"
)

var ErrPageNotFound = errors.New("page not found")

type PageRepository struct {
	pool *pgxpool.Pool
}

func NewPageRepository(pool *pgxpool.Pool) *PageRepository {
	return &PageRepository{pool: pool}
}

func (r *PageRepository) GetBySlug(ctx context.Context, slug string) (models.Page, error) {
	const query = `
		SELECT id, slug, title, content, members_only, updated_at
		FROM pages WHERE slug = $1
	`

	var page models.Page
	if err := r.pool.QueryRow(ctx, query, slug).Scan(
		&page.ID,
		&page.Slug,
		&page.Title,
		&page.Content,
		&page.MembersOnly,
		&page.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Page{}, ErrPageNotFound
		}
		return models.Page{}, err
	}
	return page, nil
}
