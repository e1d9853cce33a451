package auth

import "errors"

var (
	// ErrInvalidToken covers every token rejection surfaced to callers:
	// malformed, bad signature, expired beyond grace, revoked, or a subject
	// that no longer verifies. The distinguishing reason is logged only.
	ErrInvalidToken = errors.New("auth: invalid token")

	ErrInvalidInput = errors.New("auth: invalid input")
	ErrNotFound     = errors.New("auth: not found")
	ErrUnauthorized = errors.New("auth: unauthorized")
	ErrConflict     = errors.New("auth: resource conflict")

	// ErrLookupFailed wraps transport failures from the directory or the
	// permission service. Security-critical callers treat it as a denial
	// but must not swallow it.
	ErrLookupFailed = errors.New("auth: lookup failed")
)
