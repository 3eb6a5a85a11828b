// Package common defines shared constants and sentinel errors used across
// the parley server layers. Callers should use errors.Is to match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound = errors.New("not found")

	// Service-level errors (generic/internal flow control).
	ErrorInternal     = errors.New("internal error")
	ErrorUnauthorized = errors.New("unauthorized")

	// ErrorForbidden means the actor is authenticated but lacks permission
	// for the target resource.
	ErrorForbidden = errors.New("forbidden")

	// Validation errors (bad or missing input).
	ErrorValidation = errors.New("validation error")

	// ErrorExpired is returned when a time-boxed operation window has elapsed.
	ErrorExpired = errors.New("operation window expired")

	// ErrorCrypto covers key derivation and integrity-check failures.
	ErrorCrypto = errors.New("crypto error")

	// Auth errors (invalid or malformed token).
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")

	ErrorAlreadyExists     = errors.New("already exists")
	ErrorTooManyAttempts   = errors.New("too many attempts")
	ErrorInvalidLoginInput = errors.New("invalid login/password")
)
