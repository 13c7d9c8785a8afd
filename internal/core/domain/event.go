package domain

import "time"

// AuthEventKind names the operation an audit event records.
type AuthEventKind string

const (
	EventRegister AuthEventKind = "register"
	EventLogin    AuthEventKind = "login"
)

// AuthOutcome is the result recorded for an audit event.
type AuthOutcome string

const (
	OutcomeSuccess  AuthOutcome = "success"
	OutcomeConflict AuthOutcome = "conflict"
	OutcomeRejected AuthOutcome = "rejected"
	OutcomeError    AuthOutcome = "error"
)

// AuthEvent is an audit record of a registration or login attempt. It never
// carries passwords, hashes or tokens.
type AuthEvent struct {
	ID         string
	Kind       AuthEventKind
	Login      string
	UserID     int64 // zero when unknown
	Outcome    AuthOutcome
	OccurredAt time.Time
}
