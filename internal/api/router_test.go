package api

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/99minutos/auth-service/internal/api/handler"
	"github.com/99minutos/auth-service/internal/core/service"
	"github.com/99minutos/auth-service/internal/infrastructure/db/sqldb"
	"github.com/99minutos/auth-service/internal/infrastructure/password"
	"github.com/99minutos/auth-service/internal/infrastructure/token"
)

type testServer struct {
	handler http.Handler
	now     time.Time
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	db, err := sqldb.Open(context.Background(), sqldb.Config{
		Driver: sqldb.DriverSQLite,
		DSN:    filepath.Join(t.TempDir(), "auth.db"),
	})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	hasher, err := password.NewHasher(bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hasher: %v", err)
	}
	issuer, err := token.NewIssuer("e2e-secret", token.DefaultLifetime)
	if err != nil {
		t.Fatalf("issuer: %v", err)
	}

	ts := &testServer{now: time.Now()}
	clock := func() time.Time { return ts.now }
	svc := service.NewAuthService(sqldb.NewIdentityRepository(db), hasher, issuer, service.AuthConfig{}, zerolog.Nop(), service.WithClock(clock))

	ts.handler = NewRouter(Dependencies{
		AuthService: svc,
		Tokens:      issuer,
		Checks:      map[string]handler.Check{"database": handler.SQLCheck(db.DB)},
		Log:         zerolog.Nop(),
		Now:         clock,
		Registry:    prometheus.NewRegistry(),
	})
	return ts
}

func (s *testServer) do(t *testing.T, method, path, body, bearer string) (int, map[string]any) {
	t.Helper()

	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)

	var resp map[string]any
	_ = json.Unmarshal(rec.Body.Bytes(), &resp)
	return rec.Code, resp
}

func TestRouter_AliceScenario(t *testing.T) {
	s := newTestServer(t)

	code, reg := s.do(t, http.MethodPost, "/auth/register", `{"username":"alice","login":"alice@x","password":"p1"}`, "")
	if code != http.StatusCreated {
		t.Fatalf("register: expected 201, got %d %v", code, reg)
	}
	if _, leaked := reg["password"]; leaked {
		t.Fatalf("register response leaks password: %v", reg)
	}

	code, login := s.do(t, http.MethodPost, "/auth/login", `{"login":"alice@x","password":"p1"}`, "")
	if code != http.StatusOK {
		t.Fatalf("login: expected 200, got %d %v", code, login)
	}
	tok, _ := login["token"].(string)
	if strings.Count(tok, ".") != 2 {
		t.Fatalf("expected a three-segment token, got %q", tok)
	}

	payload, err := base64.RawURLEncoding.DecodeString(strings.Split(tok, ".")[1])
	if err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	var claims map[string]any
	if err := json.Unmarshal(payload, &claims); err != nil {
		t.Fatalf("payload json: %v", err)
	}
	if claims["pid"] != "1" || claims["login"] != "alice@x" || len(claims) != 3 {
		t.Fatalf("unexpected claims %v", claims)
	}
	if exp, _ := claims["exp"].(float64); int64(exp) != s.now.Add(168*time.Hour).Unix() {
		t.Fatalf("unexpected exp %v", claims["exp"])
	}

	code, me := s.do(t, http.MethodGet, "/auth/me", "", tok)
	if code != http.StatusOK {
		t.Fatalf("me: expected 200, got %d %v", code, me)
	}
	role, _ := me["role"].(map[string]any)
	if me["username"] != "alice" || me["login"] != "alice@x" || role["name"] != "dummy" {
		t.Fatalf("unexpected me payload %v", me)
	}

	code, _ = s.do(t, http.MethodGet, "/auth/roles", "", tok)
	if code != http.StatusOK {
		t.Fatalf("roles: expected 200, got %d", code)
	}

	code, again := s.do(t, http.MethodPost, "/auth/register", `{"username":"alice2","login":"alice@x","password":"p2"}`, "")
	if code != http.StatusConflict || again["error"] != "already exists" {
		t.Fatalf("duplicate register: expected 409, got %d %v", code, again)
	}

	code, logout := s.do(t, http.MethodPost, "/auth/logout", "", "")
	if code != http.StatusOK || logout["status"] != "ok" {
		t.Fatalf("logout: unexpected %d %v", code, logout)
	}

	// tokens outlive logout until they expire
	if code, _ := s.do(t, http.MethodGet, "/auth/me", "", tok); code != http.StatusOK {
		t.Fatalf("me after logout: expected 200, got %d", code)
	}

	s.now = s.now.Add(168 * time.Hour)
	if code, body := s.do(t, http.MethodGet, "/auth/me", "", tok); code != http.StatusUnauthorized || body["error"] != "invalid token" {
		t.Fatalf("me after expiry: expected 401, got %d %v", code, body)
	}
}

func TestRouter_LoginFailuresAreIndistinguishable(t *testing.T) {
	s := newTestServer(t)
	if code, _ := s.do(t, http.MethodPost, "/auth/register", `{"username":"alice","login":"alice","password":"p1"}`, ""); code != http.StatusCreated {
		t.Fatalf("register: %d", code)
	}

	codeWrong, wrong := s.do(t, http.MethodPost, "/auth/login", `{"login":"alice","password":"nope"}`, "")
	codeUnknown, unknown := s.do(t, http.MethodPost, "/auth/login", `{"login":"bob","password":"p1"}`, "")

	if codeWrong != http.StatusUnauthorized || codeUnknown != http.StatusUnauthorized {
		t.Fatalf("expected 401 for both, got %d and %d", codeWrong, codeUnknown)
	}
	if wrong["error"] != unknown["error"] || wrong["error"] != "invalid login or password" {
		t.Fatalf("messages differ: %v vs %v", wrong, unknown)
	}
}

func TestRouter_MeRequiresValidToken(t *testing.T) {
	s := newTestServer(t)

	if code, _ := s.do(t, http.MethodGet, "/auth/me", "", ""); code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", code)
	}
	if code, _ := s.do(t, http.MethodGet, "/auth/me", "", "not.a.token"); code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for garbage token, got %d", code)
	}

	other, _ := token.NewIssuer("other-secret", time.Hour)
	forged, _ := other.Issue("1", "alice", s.now)
	if code, _ := s.do(t, http.MethodGet, "/auth/me", "", forged); code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for foreign token, got %d", code)
	}
}

func TestRouter_MeForDeletedUser(t *testing.T) {
	s := newTestServer(t)
	issuer, _ := token.NewIssuer("e2e-secret", time.Hour)
	tok, _ := issuer.Issue("999", "ghost", s.now)

	code, body := s.do(t, http.MethodGet, "/auth/me", "", tok)
	if code != http.StatusNotFound || body["error"] != "user not found" {
		t.Fatalf("expected 404 user not found, got %d %v", code, body)
	}
}

func TestRouter_OperationalEndpoints(t *testing.T) {
	s := newTestServer(t)

	if code, body := s.do(t, http.MethodGet, "/health", "", ""); code != http.StatusOK || body["status"] != "ok" {
		t.Fatalf("liveness: %d %v", code, body)
	}
	if code, body := s.do(t, http.MethodGet, "/health/ready", "", ""); code != http.StatusOK || body["status"] != "ok" {
		t.Fatalf("readiness: %d %v", code, body)
	}

	s.do(t, http.MethodGet, "/health", "", "")
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "auth_http_requests_total") {
		t.Fatalf("metrics endpoint missing request counter: %d", rec.Code)
	}
}
