// Package common defines shared constants and sentinel errors used across
// vaultsync layers. Callers should use errors.Is to match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound      = errors.New("not found")
	ErrAlreadyExists   = errors.New("already exists")
	ErrVersionConflict = errors.New("version conflict")

	// Service-level errors.
	ErrorInternal      = errors.New("internal error")
	ErrSyncUnavailable = errors.New("sync unavailable")
	ErrValidation      = errors.New("validation error")

	// Transport errors.
	ErrorUnauthorized = errors.New("unauthorized")
	ErrInvalidToken   = errors.New("invalid token")
	ErrTokenExpired   = errors.New("token expired")
	ErrRateLimited    = errors.New("rate limited")
)
