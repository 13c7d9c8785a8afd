package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/99minutos/auth-service/internal/api/metrics"
	"github.com/99minutos/auth-service/internal/core/domain"
	"github.com/99minutos/auth-service/internal/core/ports"
	"github.com/99minutos/auth-service/pkg/logger"
)

const tracerName = "github.com/99minutos/auth-service/internal/core/service"

// AuthConfig holds the immutable settings the auth flow needs.
type AuthConfig struct {
	DefaultRole           string
	DefaultRoleAttributes json.RawMessage
}

// Option customises an auth service at construction.
type Option func(*authService)

// WithRoleCache enables read-through caching of roles by name.
func WithRoleCache(cache ports.RoleCache) Option {
	return func(s *authService) { s.roles = cache }
}

// WithAuditSink routes register and login outcomes to sink.
func WithAuditSink(sink ports.AuditSink) Option {
	return func(s *authService) { s.audit = sink }
}

// WithTracer replaces the tracer taken from the global provider.
func WithTracer(tracer trace.Tracer) Option {
	return func(s *authService) { s.tracer = tracer }
}

// WithClock replaces time.Now, used for token expiry.
func WithClock(now func() time.Time) Option {
	return func(s *authService) { s.now = now }
}

type authService struct {
	repo   ports.IdentityRepository
	hasher ports.PasswordHasher
	tokens ports.TokenIssuer
	roles  ports.RoleCache
	audit  ports.AuditSink
	cfg    AuthConfig
	log    zerolog.Logger
	now    func() time.Time
	tracer trace.Tracer
}

// NewAuthService returns an AuthService implementation.
func NewAuthService(
	repo ports.IdentityRepository,
	hasher ports.PasswordHasher,
	tokens ports.TokenIssuer,
	cfg AuthConfig,
	log zerolog.Logger,
	opts ...Option,
) ports.AuthService {
	if cfg.DefaultRole == "" {
		cfg.DefaultRole = domain.DefaultRoleName
	}
	if len(cfg.DefaultRoleAttributes) == 0 {
		cfg.DefaultRoleAttributes = domain.DefaultRoleAttributes
	}

	s := &authService{
		repo:   repo,
		hasher: hasher,
		tokens: tokens,
		cfg:    cfg,
		log:    log,
		now:    time.Now,
		tracer: otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register creates an account, creating its role on first use.
func (s *authService) Register(ctx context.Context, in ports.RegisterInput) (*domain.User, error) {
	ctx, span := s.tracer.Start(ctx, "AuthService.Register")
	defer span.End()

	user, err := s.register(ctx, in)
	s.record(ctx, domain.EventRegister, in.Login, user, err)
	if err != nil {
		failSpan(span, err)
		return nil, err
	}

	span.SetAttributes(attribute.Int64("user.id", user.ID))
	log := logger.WithSpan(ctx, s.log)
	log.Info().Int64("user_id", user.ID).Int64("role_id", user.RoleID).Msg("user registered")
	return user, nil
}

func (s *authService) register(ctx context.Context, in ports.RegisterInput) (*domain.User, error) {
	// 1. Cheap pre-check; the unique constraint on insert is authoritative.
	if _, err := s.repo.FindUserByLogin(ctx, in.Login); err == nil {
		return nil, fmt.Errorf("register: %w", domain.ErrConflict)
	} else if !errors.Is(err, domain.ErrRecordNotFound) {
		return nil, fmt.Errorf("register: %w", err)
	}

	// 2. Resolve or create the role.
	roleName := in.RoleName
	if roleName == "" {
		roleName = s.cfg.DefaultRole
	}
	role, err := s.resolveRole(ctx, roleName)
	if err != nil {
		return nil, fmt.Errorf("register: %w", err)
	}

	// 3. Hash the password.
	start := time.Now()
	hash, err := s.hasher.Hash(in.Password)
	metrics.PasswordHashDuration.WithLabelValues("hash").Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, fmt.Errorf("register: %w", err)
	}

	// 4. Insert. A foreign key failure means the role disappeared after it was
	// resolved, possibly from a stale cache entry; resolve again once.
	newUser := domain.NewUser{
		Username:     in.Username,
		Login:        in.Login,
		PasswordHash: hash,
		RoleID:       role.ID,
	}
	user, err := s.repo.CreateUser(ctx, newUser)
	if errors.Is(err, domain.ErrForeignKey) {
		s.log.Warn().Str("role", roleName).Int64("role_id", role.ID).Msg("role vanished before user insert, retrying")
		s.evictRole(ctx, roleName)

		role, err = s.resolveRole(ctx, roleName)
		if err != nil {
			return nil, fmt.Errorf("register: %w", err)
		}
		newUser.RoleID = role.ID
		user, err = s.repo.CreateUser(ctx, newUser)
	}
	if err != nil {
		return nil, fmt.Errorf("register: %w", err)
	}
	return user, nil
}

func (s *authService) resolveRole(ctx context.Context, name string) (*domain.Role, error) {
	if s.roles != nil {
		role, ok, err := s.roles.Get(ctx, name)
		switch {
		case err != nil:
			metrics.RoleCacheTotal.WithLabelValues("error").Inc()
			s.log.Warn().Err(err).Str("role", name).Msg("role cache lookup failed, reading store")
		case ok:
			metrics.RoleCacheTotal.WithLabelValues("hit").Inc()
			return role, nil
		default:
			metrics.RoleCacheTotal.WithLabelValues("miss").Inc()
		}
	}

	role, err := s.repo.FindRoleByName(ctx, name)
	if errors.Is(err, domain.ErrRecordNotFound) {
		role, err = s.repo.CreateRole(ctx, name, s.cfg.DefaultRoleAttributes)
		if err == nil {
			metrics.RolesCreatedTotal.Inc()
			s.log.Info().Str("role", name).Int64("role_id", role.ID).Msg("role created")
		} else if errors.Is(err, domain.ErrConflict) {
			// created concurrently by another registration
			role, err = s.repo.FindRoleByName(ctx, name)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("resolve role %q: %w", name, err)
	}

	if s.roles != nil {
		if err := s.roles.Set(ctx, role); err != nil {
			s.log.Warn().Err(err).Str("role", name).Msg("failed to cache role")
		}
	}
	return role, nil
}

func (s *authService) evictRole(ctx context.Context, name string) {
	if s.roles == nil {
		return
	}
	if err := s.roles.Delete(ctx, name); err != nil {
		s.log.Warn().Err(err).Str("role", name).Msg("failed to evict cached role")
	}
}

// Login verifies credentials and issues a bearer token. Unknown logins and
// wrong passwords are indistinguishable to the caller.
func (s *authService) Login(ctx context.Context, login, password string) (*ports.LoginResult, error) {
	ctx, span := s.tracer.Start(ctx, "AuthService.Login")
	defer span.End()

	result, err := s.login(ctx, login, password)
	var user *domain.User
	if result != nil {
		user = result.User
	}
	s.record(ctx, domain.EventLogin, login, user, err)
	if err != nil {
		failSpan(span, err)
		return nil, err
	}

	span.SetAttributes(attribute.Int64("user.id", result.User.ID))
	log := logger.WithSpan(ctx, s.log)
	log.Info().Int64("user_id", result.User.ID).Msg("user logged in")
	return result, nil
}

func (s *authService) login(ctx context.Context, login, password string) (*ports.LoginResult, error) {
	user, err := s.repo.FindUserByLogin(ctx, login)
	if errors.Is(err, domain.ErrRecordNotFound) {
		s.hasher.DummyVerify(password)
		return nil, domain.ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("login: %w", err)
	}

	start := time.Now()
	ok, err := s.hasher.Verify(password, user.PasswordHash)
	metrics.PasswordHashDuration.WithLabelValues("verify").Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, fmt.Errorf("login: user %d: %w", user.ID, err)
	}
	if !ok {
		return nil, domain.ErrInvalidCredentials
	}

	user, role, err := s.repo.FindUserWithRole(ctx, user.ID)
	if errors.Is(err, domain.ErrRecordNotFound) {
		// deleted between lookup and join
		return nil, domain.ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("login: %w", err)
	}

	token, err := s.tokens.Issue(user.Subject(), user.Login, s.now())
	if err != nil {
		return nil, fmt.Errorf("login: %w", err)
	}

	return &ports.LoginResult{Token: token, User: user, Role: role}, nil
}

// Logout is a stateless acknowledgement.
func (s *authService) Logout(ctx context.Context) error {
	_, span := s.tracer.Start(ctx, "AuthService.Logout")
	defer span.End()
	return nil
}

// Me resolves the user and role identified by verified claims.
func (s *authService) Me(ctx context.Context, claims *domain.Claims) (*domain.User, *domain.Role, error) {
	ctx, span := s.tracer.Start(ctx, "AuthService.Me")
	defer span.End()

	if claims == nil {
		failSpan(span, domain.ErrTokenInvalid)
		return nil, nil, domain.ErrTokenInvalid
	}
	id, err := claims.UserID()
	if err != nil {
		failSpan(span, err)
		return nil, nil, fmt.Errorf("me: subject %q: %w", claims.Subject, err)
	}

	user, role, err := s.repo.FindUserWithRole(ctx, id)
	if err != nil {
		failSpan(span, err)
		return nil, nil, fmt.Errorf("me: %w", err)
	}
	return user, role, nil
}

func (s *authService) ListRoles(ctx context.Context) ([]domain.Role, error) {
	ctx, span := s.tracer.Start(ctx, "AuthService.ListRoles")
	defer span.End()

	roles, err := s.repo.ListRoles(ctx)
	if err != nil {
		failSpan(span, err)
		return nil, fmt.Errorf("list roles: %w", err)
	}
	return roles, nil
}

// record counts the attempt and hands an audit event to the sink. It never
// fails the request.
func (s *authService) record(ctx context.Context, kind domain.AuthEventKind, login string, user *domain.User, err error) {
	outcome := outcomeOf(err)
	metrics.AuthAttemptsTotal.WithLabelValues(string(kind), string(outcome)).Inc()

	log := logger.WithSpan(ctx, s.log)
	switch outcome {
	case domain.OutcomeError:
		log.Error().Err(err).Str("operation", string(kind)).Msg("auth operation failed")
	case domain.OutcomeConflict, domain.OutcomeRejected:
		log.Debug().Str("operation", string(kind)).Str("outcome", string(outcome)).Msg("auth attempt refused")
	}

	if s.audit == nil {
		return
	}
	event := domain.AuthEvent{
		ID:         uuid.NewString(),
		Kind:       kind,
		Login:      login,
		Outcome:    outcome,
		OccurredAt: s.now().UTC(),
	}
	if user != nil {
		event.UserID = user.ID
	}
	s.audit.Record(event)
}

func outcomeOf(err error) domain.AuthOutcome {
	switch {
	case err == nil:
		return domain.OutcomeSuccess
	case errors.Is(err, domain.ErrConflict):
		return domain.OutcomeConflict
	case errors.Is(err, domain.ErrInvalidCredentials):
		return domain.OutcomeRejected
	default:
		return domain.OutcomeError
	}
}

func failSpan(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
