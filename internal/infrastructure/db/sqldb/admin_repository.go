package sqldb

import (
	"context"
	"fmt"

	"github.com/99minutos/auth-service/internal/core/domain"
)

// UserWithRole pairs a user with its role for administrative listings.
type UserWithRole struct {
	User domain.User
	Role *domain.Role
}

// AdminRepository holds operator-only operations that the auth flow never
// performs: full listings and role removal.
type AdminRepository struct {
	db *DB
}

func NewAdminRepository(db *DB) *AdminRepository {
	return &AdminRepository{db: db}
}

// ListUsersWithRoles returns every user joined with its role, ordered by id.
func (r *AdminRepository) ListUsersWithRoles(ctx context.Context) ([]UserWithRole, error) {
	const op = "sqldb.ListUsersWithRoles"

	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `
SELECT u.id, u.username, u.login, u.password, u.role_id, r.id, r.name, r.attributes
FROM users u
LEFT JOIN roles r ON r.id = u.role_id
ORDER BY u.id`)
	if err != nil {
		return nil, classify(op, err)
	}
	defer rows.Close()

	out := make([]UserWithRole, 0)
	for rows.Next() {
		user, role, err := scanUserWithRole(rows)
		if err != nil {
			return nil, classify(op, err)
		}
		out = append(out, UserWithRole{User: *user, Role: role})
	}
	if err := rows.Err(); err != nil {
		return nil, classify(op, err)
	}
	return out, nil
}

// DeleteRole removes a role by name. Users referencing it are removed by the
// ON DELETE CASCADE constraint. Returns domain.ErrRecordNotFound when no role
// has that name.
func (r *AdminRepository) DeleteRole(ctx context.Context, name string) error {
	const op = "sqldb.DeleteRole"

	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	res, err := r.db.ExecContext(ctx, r.db.rebind(`DELETE FROM roles WHERE name = ?`), name)
	if err != nil {
		return classify(op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return classify(op, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", op, domain.ErrRecordNotFound)
	}
	return nil
}
