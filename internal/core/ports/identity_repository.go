package ports

import (
	"context"
	"encoding/json"

	"github.com/99minutos/auth-service/internal/core/domain"
)

// IdentityRepository is the only component permitted to read or write roles
// and users. Lookups return domain.ErrRecordNotFound when nothing matches;
// inserts surface unique violations as domain.ErrConflict and dangling role
// references as domain.ErrForeignKey.
type IdentityRepository interface {
	FindRoleByName(ctx context.Context, name string) (*domain.Role, error)
	CreateRole(ctx context.Context, name string, attributes json.RawMessage) (*domain.Role, error)
	ListRoles(ctx context.Context) ([]domain.Role, error)

	FindUserByLogin(ctx context.Context, login string) (*domain.User, error)
	FindUserByUsername(ctx context.Context, username string) (*domain.User, error)
	FindUserByID(ctx context.Context, id int64) (*domain.User, error)
	// FindUserWithRole returns the user and its role. The role is nil when the
	// join finds no matching row.
	FindUserWithRole(ctx context.Context, id int64) (*domain.User, *domain.Role, error)
	CreateUser(ctx context.Context, user domain.NewUser) (*domain.User, error)
}
