package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/99minutos/auth-service/internal/core/domain"
)

const (
	defaultRoleTTL = 5 * time.Minute
	roleKeyPrefix  = "auth:role:"
)

// RoleCache caches roles by name.
// Key format: auth:role:<name>, value: JSON {id, name, attributes}.
type RoleCache struct {
	client redis.Cmdable
	ttl    time.Duration
}

// NewRoleCache creates a RoleCache. A non-positive ttl selects defaultRoleTTL.
func NewRoleCache(client redis.Cmdable, ttl time.Duration) *RoleCache {
	if ttl <= 0 {
		ttl = defaultRoleTTL
	}
	return &RoleCache{client: client, ttl: ttl}
}

// Get returns the cached role and true, or false on a miss.
func (c *RoleCache) Get(ctx context.Context, name string) (*domain.Role, bool, error) {
	raw, err := c.client.Get(ctx, roleKey(name)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("role cache get: %w", err)
	}

	role, err := decodeRole(raw)
	if err != nil {
		// unreadable entries are treated as misses and overwritten on Set
		return nil, false, fmt.Errorf("role cache decode %q: %w", name, err)
	}
	return role, true, nil
}

// Set stores role under its name until the TTL expires.
func (c *RoleCache) Set(ctx context.Context, role *domain.Role) error {
	raw, err := json.Marshal(role)
	if err != nil {
		return fmt.Errorf("role cache encode: %w", err)
	}
	if err := c.client.Set(ctx, roleKey(role.Name), raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("role cache set: %w", err)
	}
	return nil
}

// Delete evicts a role.
func (c *RoleCache) Delete(ctx context.Context, name string) error {
	if err := c.client.Del(ctx, roleKey(name)).Err(); err != nil {
		return fmt.Errorf("role cache delete: %w", err)
	}
	return nil
}

func roleKey(name string) string {
	return roleKeyPrefix + name
}

func decodeRole(raw []byte) (*domain.Role, error) {
	var role domain.Role
	if err := json.Unmarshal(raw, &role); err != nil {
		return nil, err
	}
	if role.ID <= 0 || role.Name == "" {
		return nil, errors.New("incomplete role entry")
	}
	return &role, nil
}
