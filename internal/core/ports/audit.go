package ports

import (
	"context"

	"github.com/99minutos/auth-service/internal/core/domain"
)

// AuditSink accepts audit events. Record must not block the caller.
type AuditSink interface {
	Record(event domain.AuthEvent)
}

// AuditRepository persists audit events.
type AuditRepository interface {
	InsertEvent(ctx context.Context, event *domain.AuthEvent) error
}

// RoleCache is an optional read-through cache of roles keyed by name.
type RoleCache interface {
	Get(ctx context.Context, name string) (*domain.Role, bool, error)
	Set(ctx context.Context, role *domain.Role) error
	Delete(ctx context.Context, name string) error
}
