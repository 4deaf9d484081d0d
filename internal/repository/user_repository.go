package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lemurdu20escalade/LeSite-sub001/internal/models"
)

var ErrUserNotFound = errors.New("user not found")

type UserRepository struct {
	pool *pgxpool.Pool
}

func NewUserRepository(pool *pgxpool.Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

const userColumns = `
	u.id, u.login, COALESCE(u.email, ''), u.password_hash, u.display_name, u.first_name, u.external_id,
	u.status, u.collectifs, u.galette_synced_at, u.created_at, u.updated_at,
	COALESCE(array_agg(ur.role ORDER BY ur.role) FILTER (WHERE ur.role IS NOT NULL), '{}')
`

const userFrom = `
	FROM users u
	LEFT JOIN user_roles ur ON ur.user_id = u.id
`

func scanUser(row pgx.Row) (models.User, error) {
	var user models.User
	if err := row.Scan(
		&user.ID,
		&user.Login,
		&user.Email,
		&user.PasswordHash,
		&user.DisplayName,
		&user.FirstName,
		&user.ExternalID,
		&user.Status,
		&user.Collectifs,
		&user.GaletteSyncedAt,
		&user.CreatedAt,
		&user.UpdatedAt,
		&user.Roles,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.User{}, ErrUserNotFound
		}
		return models.User{}, err
	}
	return user, nil
}

func (r *UserRepository) Create(ctx context.Context, user models.User) (int64, error) {
	const query = `
		INSERT INTO users (
			login, email, password_hash, display_name, first_name, external_id, status, created_at, updated_at
		) VALUES (
			$1, NULLIF($2, ''), $3, $4, $5, $6, $7, NOW(), NOW()
		)
		RETURNING id
	`

	var id int64
	err := r.pool.QueryRow(ctx, query,
		user.Login,
		user.Email,
		user.PasswordHash,
		user.DisplayName,
		user.FirstName,
		user.ExternalID,
		user.Status,
	).Scan(&id)
	return id, err
}

func (r *UserRepository) GetByID(ctx context.Context, id int64) (models.User, error) {
	query := `SELECT ` + userColumns + userFrom + ` WHERE u.id = $1 GROUP BY u.id`
	return scanUser(r.pool.QueryRow(ctx, query, id))
}

// FindByLogin matches either the login or the email address. Accounts
// without an email never match on it.
func (r *UserRepository) FindByLogin(ctx context.Context, login string) (models.User, error) {
	if login == "" {
		return models.User{}, ErrUserNotFound
	}
	query := `SELECT ` + userColumns + userFrom + ` WHERE u.login = $1 OR u.email = $1 GROUP BY u.id LIMIT 1`
	return scanUser(r.pool.QueryRow(ctx, query, login))
}

func (r *UserRepository) FindByExternalID(ctx context.Context, externalID string) (models.User, error) {
	query := `SELECT ` + userColumns + userFrom + ` WHERE u.external_id = $1 GROUP BY u.id`
	return scanUser(r.pool.QueryRow(ctx, query, externalID))
}

// LinkExternal attaches a Galette subject to an existing account and refreshes
// the identity fields Galette owns.
func (r *UserRepository) LinkExternal(ctx context.Context, id int64, externalID, email, displayName, firstName string) error {
	const query = `
		UPDATE users
		SET external_id = $2,
		    email = COALESCE(NULLIF($3, ''), email),
		    display_name = COALESCE(NULLIF($4, ''), display_name),
		    first_name = COALESCE(NULLIF($5, ''), first_name),
		    updated_at = NOW()
		WHERE id = $1
	`
	cmd, err := r.pool.Exec(ctx, query, id, externalID, email, displayName, firstName)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (r *UserRepository) UpdatePassword(ctx context.Context, id int64, hash []byte) error {
	const query = `UPDATE users SET password_hash = $2, updated_at = NOW() WHERE id = $1`
	cmd, err := r.pool.Exec(ctx, query, id, hash)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (r *UserRepository) UpdateStatus(ctx context.Context, id int64, status models.UserStatus) error {
	const query = `UPDATE users SET status = $2, updated_at = NOW() WHERE id = $1`
	cmd, err := r.pool.Exec(ctx, query, id, status)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

// ReplaceRoles removes every role in remove and grants add, in one transaction.
func (r *UserRepository) ReplaceRoles(ctx context.Context, userID int64, remove []string, add string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, `DELETE FROM user_roles WHERE user_id = $1 AND role = ANY($2)`, userID, remove); err != nil {
		return fmt.Errorf("remove roles: %w", err)
	}
	if add != "" {
		if _, err := tx.Exec(ctx, `
			INSERT INTO user_roles (user_id, role) VALUES ($1, $2)
			ON CONFLICT (user_id, role) DO NOTHING
		`, userID, add); err != nil {
			return fmt.Errorf("add role: %w", err)
		}
	}
	if _, err := tx.Exec(ctx, `UPDATE users SET updated_at = NOW() WHERE id = $1`, userID); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (r *UserRepository) AddRole(ctx context.Context, userID int64, role string) error {
	const query = `
		INSERT INTO user_roles (user_id, role) VALUES ($1, $2)
		ON CONFLICT (user_id, role) DO NOTHING
	`
	_, err := r.pool.Exec(ctx, query, userID, role)
	return err
}

// UpdateGaletteSync overwrites the collectif tags and the last sync time.
func (r *UserRepository) UpdateGaletteSync(ctx context.Context, userID int64, collectifs []string, syncedAt time.Time) error {
	const query = `
		UPDATE users
		SET collectifs = $2, galette_synced_at = $3, updated_at = NOW()
		WHERE id = $1
	`
	if collectifs == nil {
		collectifs = []string{}
	}
	cmd, err := r.pool.Exec(ctx, query, userID, collectifs, syncedAt)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

// MemberFilter narrows the directory listing. Empty Collectif means everyone.
type MemberFilter struct {
	Roles     []string
	Collectif string
	Limit     int
	Offset    int
}

// ListMembers returns active users holding one of filter.Roles, ordered by first name.
func (r *UserRepository) ListMembers(ctx context.Context, filter MemberFilter) ([]models.User, error) {
	query := `SELECT ` + userColumns + userFrom + `
		WHERE u.status = 'active'
		  AND EXISTS (SELECT 1 FROM user_roles m WHERE m.user_id = u.id AND m.role = ANY($1))
		  AND ($2 = '' OR $2 = ANY(u.collectifs))
		GROUP BY u.id
		ORDER BY lower(u.first_name), u.id
		LIMIT $3 OFFSET $4
	`
	rows, err := r.pool.Query(ctx, query, filter.Roles, filter.Collectif, filter.Limit, filter.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []models.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

func (r *UserRepository) CountMembers(ctx context.Context, filter MemberFilter) (int, error) {
	const query = `
		SELECT COUNT(*) FROM users u
		WHERE u.status = 'active'
		  AND EXISTS (SELECT 1 FROM user_roles m WHERE m.user_id = u.id AND m.role = ANY($1))
		  AND ($2 = '' OR $2 = ANY(u.collectifs))
	`
	var count int
	if err := r.pool.QueryRow(ctx, query, filter.Roles, filter.Collectif).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

// ListExternal returns the id and Galette subject of every linked account.
func (r *UserRepository) ListExternal(ctx context.Context) (map[int64]string, error) {
	const query = `SELECT id, external_id FROM users WHERE external_id IS NOT NULL AND status = 'active'`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[int64]string)
	for rows.Next() {
		var (
			id  int64
			ext string
		)
		if err := rows.Scan(&id, &ext); err != nil {
			return nil, err
		}
		out[id] = ext
	}
	return out, rows.Err()
}
