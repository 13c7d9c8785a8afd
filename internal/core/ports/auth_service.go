package ports

import (
	"context"

	"github.com/99minutos/auth-service/internal/core/domain"
)

// RegisterInput is the DTO passed from the transport layer to AuthService.Register.
type RegisterInput struct {
	Username string
	Login    string
	Password string
	RoleName string // optional; empty selects the default role
}

// LoginResult is returned by a successful login.
type LoginResult struct {
	Token string
	User  *domain.User
	Role  *domain.Role // nil when the user's role could not be loaded
}

type AuthService interface {
	Register(ctx context.Context, in RegisterInput) (*domain.User, error)
	Login(ctx context.Context, login, password string) (*LoginResult, error)
	// Logout acknowledges the request. Tokens stay valid until they expire.
	Logout(ctx context.Context) error
	Me(ctx context.Context, claims *domain.Claims) (*domain.User, *domain.Role, error)
	ListRoles(ctx context.Context) ([]domain.Role, error)
}
