package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lemurdu20escalade/LeSite-sub001/internal/capability"
)

type RoleRepository struct {
	pool *pgxpool.Pool
}

func NewRoleRepository(pool *pgxpool.Pool) *RoleRepository {
	return &RoleRepository{pool: pool}
}

func (r *RoleRepository) RoleExists(ctx context.Context, role capability.Role) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM roles WHERE name = $1)`, role).Scan(&exists)
	return exists, err
}

func (r *RoleRepository) CreateRole(ctx context.Context, role capability.Role, displayName string, caps []capability.Capability) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, `
		INSERT INTO roles (name, display_name) VALUES ($1, $2)
		ON CONFLICT (name) DO NOTHING
	`, role, displayName); err != nil {
		return fmt.Errorf("insert role: %w", err)
	}
	for _, c := range caps {
		if _, err := tx.Exec(ctx, `
			INSERT INTO role_capabilities (role, capability) VALUES ($1, $2)
			ON CONFLICT (role, capability) DO NOTHING
		`, role, c); err != nil {
			return fmt.Errorf("insert capability %s: %w", c, err)
		}
	}
	return tx.Commit(ctx)
}

func (r *RoleRepository) RoleHasCapability(ctx context.Context, role capability.Role, c capability.Capability) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM role_capabilities WHERE role = $1 AND capability = $2)`
	var has bool
	err := r.pool.QueryRow(ctx, query, role, c).Scan(&has)
	return has, err
}

func (r *RoleRepository) GrantCapability(ctx context.Context, role capability.Role, c capability.Capability) error {
	const query = `
		INSERT INTO role_capabilities (role, capability) VALUES ($1, $2)
		ON CONFLICT (role, capability) DO NOTHING
	`
	_, err := r.pool.Exec(ctx, query, role, c)
	return err
}

func (r *RoleRepository) CapabilitiesForRoles(ctx context.Context, roles []string) ([]capability.Capability, error) {
	if len(roles) == 0 {
		return nil, nil
	}
	rows, err := r.pool.Query(ctx, `SELECT DISTINCT capability FROM role_capabilities WHERE role = ANY($1)`, roles)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var caps []capability.Capability
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, err
		}
		caps = append(caps, capability.Capability(c))
	}
	return caps, rows.Err()
}
