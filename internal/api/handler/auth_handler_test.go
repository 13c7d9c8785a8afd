package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/99minutos/auth-service/internal/api/middleware"
	"github.com/99minutos/auth-service/internal/core/domain"
	"github.com/99minutos/auth-service/internal/core/ports"
)

type stubAuthService struct {
	registerFn  func(ctx context.Context, in ports.RegisterInput) (*domain.User, error)
	loginFn     func(ctx context.Context, login, password string) (*ports.LoginResult, error)
	meFn        func(ctx context.Context, claims *domain.Claims) (*domain.User, *domain.Role, error)
	listRolesFn func(ctx context.Context) ([]domain.Role, error)
}

func (s *stubAuthService) Register(ctx context.Context, in ports.RegisterInput) (*domain.User, error) {
	return s.registerFn(ctx, in)
}

func (s *stubAuthService) Login(ctx context.Context, login, password string) (*ports.LoginResult, error) {
	return s.loginFn(ctx, login, password)
}

func (s *stubAuthService) Logout(context.Context) error { return nil }

func (s *stubAuthService) Me(ctx context.Context, claims *domain.Claims) (*domain.User, *domain.Role, error) {
	return s.meFn(ctx, claims)
}

func (s *stubAuthService) ListRoles(ctx context.Context) ([]domain.Role, error) {
	return s.listRolesFn(ctx)
}

func newContext(method, path, body string) (echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	e.Validator = NewValidator()

	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var resp map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid json: %v (%s)", err, rec.Body.String())
	}
	return resp
}

func httpCode(err error) int {
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he.Code
	}
	return 0
}

func TestAuthHandler_Register_Success(t *testing.T) {
	stub := &stubAuthService{
		registerFn: func(_ context.Context, in ports.RegisterInput) (*domain.User, error) {
			if in.Username != "alice" || in.Login != "alice@x" || in.Password != "pw" || in.RoleName != "" {
				t.Fatalf("unexpected input: %+v", in)
			}
			return &domain.User{ID: 1, Username: in.Username, Login: in.Login, PasswordHash: "$2a$10$secret", RoleID: 7}, nil
		},
	}
	c, rec := newContext(http.MethodPost, "/auth/register", `{"username":"alice","login":"alice@x","password":"pw"}`)

	if err := NewAuthHandler(stub).Register(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}

	resp := decode(t, rec)
	if resp["id"] != float64(1) || resp["username"] != "alice" || resp["login"] != "alice@x" || resp["role_id"] != float64(7) {
		t.Fatalf("unexpected body: %v", resp)
	}
	if strings.Contains(rec.Body.String(), "$2a$") || strings.Contains(rec.Body.String(), "password") {
		t.Fatalf("response leaks the password hash: %s", rec.Body.String())
	}
}

func TestAuthHandler_Register_BadPayloads(t *testing.T) {
	stub := &stubAuthService{
		registerFn: func(context.Context, ports.RegisterInput) (*domain.User, error) {
			t.Fatal("service must not be called")
			return nil, nil
		},
	}

	tests := []struct {
		name string
		body string
		want int
	}{
		{"malformed json", `{"username":`, http.StatusBadRequest},
		{"missing login", `{"username":"alice","password":"pw"}`, http.StatusUnprocessableEntity},
		{"missing password", `{"username":"alice","login":"alice"}`, http.StatusUnprocessableEntity},
		{"username too long", `{"username":"` + strings.Repeat("a", 256) + `","login":"alice","password":"pw"}`, http.StatusUnprocessableEntity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newContext(http.MethodPost, "/auth/register", tt.body)
			err := NewAuthHandler(stub).Register(c)
			if got := httpCode(err); got != tt.want {
				t.Fatalf("expected %d, got %d (%v)", tt.want, got, err)
			}
		})
	}
}

func TestAuthHandler_Register_PropagatesConflict(t *testing.T) {
	stub := &stubAuthService{
		registerFn: func(context.Context, ports.RegisterInput) (*domain.User, error) {
			return nil, domain.ErrConflict
		},
	}
	c, _ := newContext(http.MethodPost, "/auth/register", `{"username":"alice","login":"alice","password":"pw"}`)

	if err := NewAuthHandler(stub).Register(c); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestAuthHandler_Login_Success(t *testing.T) {
	stub := &stubAuthService{
		loginFn: func(_ context.Context, login, password string) (*ports.LoginResult, error) {
			if login != "alice" || password != "pw" {
				t.Fatalf("unexpected credentials %s/%s", login, password)
			}
			return &ports.LoginResult{
				Token: "tkn",
				User:  &domain.User{ID: 1, Username: "alice", Login: "alice", RoleID: 7},
				Role:  &domain.Role{ID: 7, Name: "dummy", Attributes: domain.DefaultRoleAttributes},
			}, nil
		},
	}
	c, rec := newContext(http.MethodPost, "/auth/login", `{"login":"alice","password":"pw"}`)

	if err := NewAuthHandler(stub).Login(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	resp := decode(t, rec)
	if resp["token"] != "tkn" {
		t.Fatalf("unexpected token: %v", resp["token"])
	}
	user, _ := resp["user"].(map[string]any)
	role, _ := user["role"].(map[string]any)
	if user["login"] != "alice" || role["name"] != "dummy" || role["id"] != float64(7) {
		t.Fatalf("unexpected user payload: %v", user)
	}
}

func TestAuthHandler_Login_Validation(t *testing.T) {
	stub := &stubAuthService{}
	c, _ := newContext(http.MethodPost, "/auth/login", `{"login":"alice"}`)

	if got := httpCode(NewAuthHandler(stub).Login(c)); got != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", got)
	}
}

func TestAuthHandler_Logout(t *testing.T) {
	c, rec := newContext(http.MethodPost, "/auth/logout", "")

	if err := NewAuthHandler(&stubAuthService{}).Logout(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusOK || decode(t, rec)["status"] != "ok" {
		t.Fatalf("unexpected response %d %s", rec.Code, rec.Body.String())
	}
}

func TestAuthHandler_Me(t *testing.T) {
	stub := &stubAuthService{
		meFn: func(_ context.Context, claims *domain.Claims) (*domain.User, *domain.Role, error) {
			if claims.Subject != "1" {
				t.Fatalf("unexpected subject %q", claims.Subject)
			}
			return &domain.User{ID: 1, Username: "alice", Login: "alice", RoleID: 7}, nil, nil
		},
	}

	c, _ := newContext(http.MethodGet, "/auth/me", "")
	if got := httpCode(NewAuthHandler(stub).Me(c)); got != http.StatusUnauthorized {
		t.Fatalf("expected 401 without claims, got %d", got)
	}

	c, rec := newContext(http.MethodGet, "/auth/me", "")
	c.Set(middleware.ClaimsKey, &domain.Claims{Subject: "1", Login: "alice"})
	if err := NewAuthHandler(stub).Me(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	resp := decode(t, rec)
	if resp["id"] != float64(1) {
		t.Fatalf("unexpected body %v", resp)
	}
	if _, ok := resp["role"]; ok {
		t.Fatalf("role should be omitted when nil: %v", resp)
	}
}

func TestAuthHandler_Roles(t *testing.T) {
	stub := &stubAuthService{
		listRolesFn: func(context.Context) ([]domain.Role, error) {
			return []domain.Role{{ID: 1, Name: "dummy", Attributes: json.RawMessage(`["read"]`)}}, nil
		},
	}
	c, rec := newContext(http.MethodGet, "/auth/roles", "")
	c.Set(middleware.ClaimsKey, &domain.Claims{Subject: "1"})

	if err := NewAuthHandler(stub).Roles(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	want := `[{"id":1,"name":"dummy","attributes":["read"]}]`
	if got := strings.TrimSpace(rec.Body.String()); got != want {
		t.Fatalf("expected %s, got %s", want, got)
	}
}
