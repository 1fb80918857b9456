package sqlite

import (
	"context"
	"time"

	"github.com/aussiebroadwan/tenantadmin/internal/auth/domain"
)

type rolesRepo struct {
	db dbtx
}

func (r *rolesRepo) GetRoleByName(ctx context.Context, name string) (domain.Role, error) {
	var (
		role      domain.Role
		createdAt int64
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT name, description, created_at FROM roles WHERE name = ?`, name,
	).Scan(&role.Name, &role.Description, &createdAt)
	if err != nil {
		return domain.Role{}, mapNotFound(err)
	}
	role.CreatedAt = fromUnix(createdAt)
	return role, nil
}

func (r *rolesRepo) ListRoles(ctx context.Context) ([]domain.Role, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT name, description, created_at FROM roles ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Role
	for rows.Next() {
		var (
			role      domain.Role
			createdAt int64
		)
		if err := rows.Scan(&role.Name, &role.Description, &createdAt); err != nil {
			return nil, err
		}
		role.CreatedAt = fromUnix(createdAt)
		out = append(out, role)
	}
	return out, rows.Err()
}

func (r *rolesRepo) CreateRole(ctx context.Context, role domain.Role) error {
	if role.CreatedAt.IsZero() {
		role.CreatedAt = time.Now()
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO roles (name, description, created_at) VALUES (?, ?, ?)`,
		role.Name, role.Description, toUnix(role.CreatedAt),
	)
	return mapConstraint(err)
}

func (r *rolesRepo) DeleteRole(ctx context.Context, name string) error {
	return expectOne(r.db.ExecContext(ctx, `DELETE FROM roles WHERE name = ?`, name))
}

func (r *rolesRepo) IsEmpty(ctx context.Context) (bool, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM roles`).Scan(&n); err != nil {
		return false, err
	}
	return n == 0, nil
}
