// Package token issues and verifies HS256 bearer tokens whose claims are
// exactly {pid, login, exp}.
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/99minutos/auth-service/internal/core/domain"
)

// DefaultLifetime is how long an issued token stays valid.
const DefaultLifetime = 168 * time.Hour

// claims is the wire shape of the token payload. RegisteredClaims only
// contributes exp; its other fields are left empty and omitted.
type claims struct {
	PID   string `json:"pid"`
	Login string `json:"login"`
	jwt.RegisteredClaims
}

// Issuer signs and verifies tokens with a process-wide secret.
type Issuer struct {
	secret   []byte
	lifetime time.Duration
}

// NewIssuer returns an Issuer. A non-positive lifetime selects DefaultLifetime.
func NewIssuer(secret string, lifetime time.Duration) (*Issuer, error) {
	if secret == "" {
		return nil, errors.New("token: signing secret is empty")
	}
	if lifetime <= 0 {
		lifetime = DefaultLifetime
	}
	return &Issuer{secret: []byte(secret), lifetime: lifetime}, nil
}

// Lifetime returns the configured token lifetime.
func (i *Issuer) Lifetime() time.Duration {
	return i.lifetime
}

// Issue returns a signed token for subject that expires at now+lifetime.
// exp is encoded in whole seconds, so the token is valid in
// [now, floor(now+lifetime)).
func (i *Issuer) Issue(subject, login string, now time.Time) (string, error) {
	c := claims{
		PID:   subject,
		Login: login,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(i.lifetime)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrSigning, err)
	}
	return signed, nil
}

// Verify checks the signature and expiry of raw at time now. Every failure is
// reported as domain.ErrTokenInvalid; the wrapped cause is for logs only.
func (i *Issuer) Verify(raw string, now time.Time) (*domain.Claims, error) {
	var c claims
	tkn, err := jwt.ParseWithClaims(raw, &c, func(t *jwt.Token) (interface{}, error) {
		return i.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(func() time.Time { return now }),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrTokenInvalid, err)
	}
	if !tkn.Valid || c.PID == "" {
		return nil, domain.ErrTokenInvalid
	}

	return &domain.Claims{
		Subject:   c.PID,
		Login:     c.Login,
		ExpiresAt: c.ExpiresAt.Unix(),
	}, nil
}
