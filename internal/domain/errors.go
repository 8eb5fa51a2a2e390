package domain

import "errors"

// Sentinel errors returned by services. Handlers map these onto HTTP reason
// codes; anything not in this list is treated as a storage/system fault.
var (
	ErrNotFound       = errors.New("not found")
	ErrInactive       = errors.New("account deactivated")
	ErrEmailTaken     = errors.New("email already registered")
	ErrExpired        = errors.New("expired")
	ErrWrongPurpose   = errors.New("challenge issued for another purpose")
	ErrCodeMismatch   = errors.New("code mismatch")
	ErrInvalidToken   = errors.New("invalid token")
	ErrWrongIntent    = errors.New("token issued for another intent")
	ErrInvalidState   = errors.New("invalid state")
	ErrNotYetValid    = errors.New("pass not valid yet")
	ErrRevoked        = errors.New("pass revoked")
	ErrBadCredentials = errors.New("invalid credentials")
)
