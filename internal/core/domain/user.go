package domain

import (
	"encoding/json"
	"strconv"
)

// DefaultRoleName is assigned when registration does not name a role.
const DefaultRoleName = "dummy"

// DefaultRoleAttributes is the attribute document given to roles created lazily
// during registration.
var DefaultRoleAttributes = json.RawMessage(`["read"]`)

// Role is a named authorization role. Attributes is an opaque JSON document
// stored and returned verbatim.
type Role struct {
	ID         int64           `json:"id"`
	Name       string          `json:"name"`
	Attributes json.RawMessage `json:"attributes"`
}

// User models a registered account.
type User struct {
	ID           int64  `json:"id"`
	Username     string `json:"username"`
	Login        string `json:"login"`
	PasswordHash string `json:"-"`
	RoleID       int64  `json:"role_id"`
}

// Subject returns the token subject identifying this user.
func (u *User) Subject() string {
	return strconv.FormatInt(u.ID, 10)
}

// NewUser carries the fields required to insert a user row.
type NewUser struct {
	Username     string
	Login        string
	PasswordHash string
	RoleID       int64
}

// Claims is the identity recovered from a verified bearer token.
type Claims struct {
	Subject   string
	Login     string
	ExpiresAt int64 // unix seconds
}

// UserID parses the subject back into a user id.
func (c *Claims) UserID() (int64, error) {
	id, err := strconv.ParseInt(c.Subject, 10, 64)
	if err != nil || id <= 0 {
		return 0, ErrTokenInvalid
	}
	return id, nil
}
