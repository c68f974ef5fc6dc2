package domain

import "errors"

// -----------------------------------------------------------------------------
// Domain Errors
// Selection and session failures surfaced to callers. Handlers map them to
// transport status codes with errors.Is.
// -----------------------------------------------------------------------------

// Selection errors
var (
	// ErrInsufficientScope means the topic/law/article mapping resolved to
	// nothing. It is a content configuration problem, not a filter outcome.
	ErrInsufficientScope = errors.New("insufficient scope")
	ErrInvalidRequest    = errors.New("invalid request")
)

// Adaptive session errors
var (
	ErrStateConflict   = errors.New("state conflict")
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionExpired  = errors.New("session expired")
)

// General errors
var (
	ErrNotFound = errors.New("not found")
)
