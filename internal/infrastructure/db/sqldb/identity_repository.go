package sqldb

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/99minutos/auth-service/internal/core/domain"
)

const (
	roleColumns = `id, name, attributes`
	userColumns = `id, username, login, password, role_id`
)

// IdentityRepository stores roles and users in the relational store.
type IdentityRepository struct {
	db *DB
}

func NewIdentityRepository(db *DB) *IdentityRepository {
	return &IdentityRepository{db: db}
}

func (r *IdentityRepository) FindRoleByName(ctx context.Context, name string) (*domain.Role, error) {
	const op = "sqldb.FindRoleByName"

	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	row := r.db.QueryRowContext(ctx, r.db.rebind(`SELECT `+roleColumns+` FROM roles WHERE name = ?`), name)
	role, err := scanRole(row)
	if err != nil {
		return nil, classify(op, err)
	}
	return role, nil
}

func (r *IdentityRepository) CreateRole(ctx context.Context, name string, attributes json.RawMessage) (*domain.Role, error) {
	const op = "sqldb.CreateRole"

	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	var id int64
	err := r.db.QueryRowContext(ctx,
		r.db.rebind(`INSERT INTO roles (name, attributes) VALUES (?, ?) RETURNING id`),
		name, string(attributes),
	).Scan(&id)
	if err != nil {
		return nil, classify(op, err)
	}

	return &domain.Role{ID: id, Name: name, Attributes: cloneRaw(attributes)}, nil
}

func (r *IdentityRepository) ListRoles(ctx context.Context) ([]domain.Role, error) {
	const op = "sqldb.ListRoles"

	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `SELECT `+roleColumns+` FROM roles ORDER BY id`)
	if err != nil {
		return nil, classify(op, err)
	}
	defer rows.Close()

	roles := make([]domain.Role, 0)
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, classify(op, err)
		}
		roles = append(roles, *role)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(op, err)
	}
	return roles, nil
}

func (r *IdentityRepository) FindUserByLogin(ctx context.Context, login string) (*domain.User, error) {
	return r.findUser(ctx, "sqldb.FindUserByLogin", `login = ?`, login)
}

func (r *IdentityRepository) FindUserByUsername(ctx context.Context, username string) (*domain.User, error) {
	return r.findUser(ctx, "sqldb.FindUserByUsername", `username = ?`, username)
}

func (r *IdentityRepository) FindUserByID(ctx context.Context, id int64) (*domain.User, error) {
	return r.findUser(ctx, "sqldb.FindUserByID", `id = ?`, id)
}

func (r *IdentityRepository) findUser(ctx context.Context, op, where string, arg any) (*domain.User, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	row := r.db.QueryRowContext(ctx, r.db.rebind(`SELECT `+userColumns+` FROM users WHERE `+where), arg)
	user, err := scanUser(row)
	if err != nil {
		return nil, classify(op, err)
	}
	return user, nil
}

func (r *IdentityRepository) FindUserWithRole(ctx context.Context, id int64) (*domain.User, *domain.Role, error) {
	const op = "sqldb.FindUserWithRole"

	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	row := r.db.QueryRowContext(ctx, r.db.rebind(`
SELECT u.id, u.username, u.login, u.password, u.role_id, r.id, r.name, r.attributes
FROM users u
LEFT JOIN roles r ON r.id = u.role_id
WHERE u.id = ?`), id)

	user, role, err := scanUserWithRole(row)
	if err != nil {
		return nil, nil, classify(op, err)
	}
	return user, role, nil
}

func (r *IdentityRepository) CreateUser(ctx context.Context, in domain.NewUser) (*domain.User, error) {
	const op = "sqldb.CreateUser"

	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	var id int64
	err := r.db.QueryRowContext(ctx,
		r.db.rebind(`INSERT INTO users (username, login, password, role_id) VALUES (?, ?, ?, ?) RETURNING id`),
		in.Username, in.Login, in.PasswordHash, in.RoleID,
	).Scan(&id)
	if err != nil {
		return nil, classify(op, err)
	}

	return &domain.User{
		ID:           id,
		Username:     in.Username,
		Login:        in.Login,
		PasswordHash: in.PasswordHash,
		RoleID:       in.RoleID,
	}, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRole(s scanner) (*domain.Role, error) {
	var (
		role  domain.Role
		attrs []byte
	)
	if err := s.Scan(&role.ID, &role.Name, &attrs); err != nil {
		return nil, err
	}
	role.Attributes = cloneRaw(attrs)
	return &role, nil
}

func scanUser(s scanner) (*domain.User, error) {
	var u domain.User
	if err := s.Scan(&u.ID, &u.Username, &u.Login, &u.PasswordHash, &u.RoleID); err != nil {
		return nil, err
	}
	return &u, nil
}

func scanUserWithRole(s scanner) (*domain.User, *domain.Role, error) {
	var (
		u        domain.User
		roleID   sql.NullInt64
		roleName sql.NullString
		attrs    []byte
	)
	if err := s.Scan(&u.ID, &u.Username, &u.Login, &u.PasswordHash, &u.RoleID, &roleID, &roleName, &attrs); err != nil {
		return nil, nil, err
	}
	if !roleID.Valid {
		return &u, nil, nil
	}
	return &u, &domain.Role{ID: roleID.Int64, Name: roleName.String, Attributes: cloneRaw(attrs)}, nil
}

// cloneRaw copies driver-owned bytes so the result outlives the row.
func cloneRaw(b []byte) json.RawMessage {
	if b == nil {
		return nil
	}
	out := make(json.RawMessage, len(b))
	copy(out, b)
	return out
}
