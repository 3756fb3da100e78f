package domain

import "errors"

// Sentinel errors shared across the service layers. The HTTP layer maps them
// onto response codes; everything else wraps them with context.
var (
	ErrValidation = errors.New("validation failed")
	ErrAuth       = errors.New("unauthenticated")
	ErrForbidden  = errors.New("forbidden")
	ErrNotFound   = errors.New("not found")
	ErrConflict   = errors.New("conflict")
)
