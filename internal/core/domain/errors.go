package domain

import "errors"

var (
	ErrConflict           = errors.New("already exists")
	ErrForeignKey         = errors.New("referenced record does not exist")
	ErrRecordNotFound     = errors.New("record not found")
	ErrStoreUnavailable   = errors.New("store unavailable")
	ErrHashing            = errors.New("password hashing failed")
	ErrSigning            = errors.New("token signing failed")
	ErrTokenInvalid       = errors.New("invalid token")
	ErrInvalidCredentials = errors.New("invalid login or password")
)
