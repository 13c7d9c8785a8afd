package ports

import (
	"time"

	"github.com/99minutos/auth-service/internal/core/domain"
)

// PasswordHasher converts plaintext passwords into self-describing salted
// hashes and verifies candidates against them.
type PasswordHasher interface {
	Hash(plaintext string) (string, error)
	// Verify reports whether plaintext matches stored. A malformed stored
	// value yields domain.ErrHashing, distinct from a plain mismatch.
	Verify(plaintext, stored string) (bool, error)
	// DummyVerify spends the same work as Verify without a stored hash.
	DummyVerify(plaintext string)
}

// TokenIssuer mints and validates bearer tokens.
type TokenIssuer interface {
	Issue(subject, login string, now time.Time) (string, error)
	Verify(token string, now time.Time) (*domain.Claims, error)
}
