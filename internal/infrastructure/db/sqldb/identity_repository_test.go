package sqldb

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/99minutos/auth-service/internal/core/domain"
)

func seedRole(t *testing.T, repo *IdentityRepository, name string) *domain.Role {
	t.Helper()

	role, err := repo.CreateRole(context.Background(), name, domain.DefaultRoleAttributes)
	if err != nil {
		t.Fatalf("create role %s: %v", name, err)
	}
	return role
}

func TestIdentityRepository_RoleLifecycle(t *testing.T) {
	repo := NewIdentityRepository(openTestDB(t))
	ctx := context.Background()

	if _, err := repo.FindRoleByName(ctx, "dummy"); !errors.Is(err, domain.ErrRecordNotFound) {
		t.Fatalf("expected ErrRecordNotFound, got %v", err)
	}

	attrs := json.RawMessage(`{"scopes":["read","write"],"level":2}`)
	created, err := repo.CreateRole(ctx, "editor", attrs)
	if err != nil {
		t.Fatalf("create role: %v", err)
	}
	if created.ID == 0 || created.Name != "editor" {
		t.Fatalf("unexpected role: %+v", created)
	}

	found, err := repo.FindRoleByName(ctx, "editor")
	if err != nil {
		t.Fatalf("find role: %v", err)
	}
	if found.ID != created.ID || string(found.Attributes) != string(attrs) {
		t.Fatalf("attributes not returned verbatim: %+v", found)
	}

	if _, err := repo.CreateRole(ctx, "editor", attrs); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected ErrConflict on duplicate role, got %v", err)
	}

	if _, err := repo.FindRoleByName(ctx, "Editor"); !errors.Is(err, domain.ErrRecordNotFound) {
		t.Fatalf("role lookup must be case-sensitive, got %v", err)
	}

	seedRole(t, repo, "dummy")
	roles, err := repo.ListRoles(ctx)
	if err != nil {
		t.Fatalf("list roles: %v", err)
	}
	if len(roles) != 2 || roles[0].Name != "editor" || roles[1].Name != "dummy" {
		t.Fatalf("unexpected roles: %+v", roles)
	}
}

func TestIdentityRepository_UserLifecycle(t *testing.T) {
	repo := NewIdentityRepository(openTestDB(t))
	ctx := context.Background()
	role := seedRole(t, repo, "dummy")

	user, err := repo.CreateUser(ctx, domain.NewUser{
		Username:     "Alice",
		Login:        "alice",
		PasswordHash: "$2a$10$hash",
		RoleID:       role.ID,
	})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	if user.ID == 0 || user.RoleID != role.ID {
		t.Fatalf("unexpected user: %+v", user)
	}

	byLogin, err := repo.FindUserByLogin(ctx, "alice")
	if err != nil || byLogin.ID != user.ID || byLogin.PasswordHash != "$2a$10$hash" {
		t.Fatalf("find by login: %v %+v", err, byLogin)
	}
	byUsername, err := repo.FindUserByUsername(ctx, "Alice")
	if err != nil || byUsername.ID != user.ID {
		t.Fatalf("find by username: %v %+v", err, byUsername)
	}
	byID, err := repo.FindUserByID(ctx, user.ID)
	if err != nil || byID.Login != "alice" {
		t.Fatalf("find by id: %v %+v", err, byID)
	}

	withRoleUser, withRole, err := repo.FindUserWithRole(ctx, user.ID)
	if err != nil {
		t.Fatalf("find with role: %v", err)
	}
	if withRoleUser.ID != user.ID || withRole == nil || withRole.Name != "dummy" {
		t.Fatalf("unexpected join: %+v %+v", withRoleUser, withRole)
	}
	if string(withRole.Attributes) != `["read"]` {
		t.Fatalf("unexpected attributes %s", withRole.Attributes)
	}

	if _, err := repo.FindUserByLogin(ctx, "ALICE"); !errors.Is(err, domain.ErrRecordNotFound) {
		t.Fatalf("login lookup must be case-sensitive, got %v", err)
	}
	if _, err := repo.FindUserByID(ctx, user.ID+100); !errors.Is(err, domain.ErrRecordNotFound) {
		t.Fatalf("expected ErrRecordNotFound, got %v", err)
	}
	if _, _, err := repo.FindUserWithRole(ctx, user.ID+100); !errors.Is(err, domain.ErrRecordNotFound) {
		t.Fatalf("expected ErrRecordNotFound, got %v", err)
	}
}

func TestIdentityRepository_CreateUserConflicts(t *testing.T) {
	repo := NewIdentityRepository(openTestDB(t))
	ctx := context.Background()
	role := seedRole(t, repo, "dummy")

	if _, err := repo.CreateUser(ctx, domain.NewUser{Username: "alice", Login: "alice", PasswordHash: "h", RoleID: role.ID}); err != nil {
		t.Fatalf("create user: %v", err)
	}

	tests := []struct {
		name string
		in   domain.NewUser
	}{
		{"duplicate login", domain.NewUser{Username: "other", Login: "alice", PasswordHash: "h", RoleID: role.ID}},
		{"duplicate username", domain.NewUser{Username: "alice", Login: "other", PasswordHash: "h", RoleID: role.ID}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := repo.CreateUser(ctx, tt.in); !errors.Is(err, domain.ErrConflict) {
				t.Fatalf("expected ErrConflict, got %v", err)
			}
		})
	}
}

func TestIdentityRepository_CreateUserMissingRole(t *testing.T) {
	repo := NewIdentityRepository(openTestDB(t))

	_, err := repo.CreateUser(context.Background(), domain.NewUser{Username: "bob", Login: "bob", PasswordHash: "h", RoleID: 999})
	if !errors.Is(err, domain.ErrForeignKey) {
		t.Fatalf("expected ErrForeignKey, got %v", err)
	}
}

func TestIdentityRepository_ConcurrentDuplicateLogin(t *testing.T) {
	repo := NewIdentityRepository(openTestDB(t))
	role := seedRole(t, repo, "dummy")

	const workers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		conflicts int
		others    []error
	)
	start := make(chan struct{})
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			_, err := repo.CreateUser(context.Background(), domain.NewUser{
				Username:     "user-" + string(rune('a'+i)),
				Login:        "shared-login",
				PasswordHash: "h",
				RoleID:       role.ID,
			})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.Is(err, domain.ErrConflict):
				conflicts++
			default:
				others = append(others, err)
			}
		}(i)
	}
	close(start)
	wg.Wait()

	if len(others) > 0 {
		t.Fatalf("unexpected errors: %v", others)
	}
	if successes != 1 || conflicts != workers-1 {
		t.Fatalf("expected 1 success and %d conflicts, got %d and %d", workers-1, successes, conflicts)
	}
}
