// Package common defines shared constants and sentinel errors used across
// Rollcall components. Callers should use errors.Is to match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound = errors.New("not found")

	// ErrConflict signals an optimistic concurrency conflict: another writer
	// changed the same row or key first. Allocators retry on it.
	ErrConflict = errors.New("optimistic concurrency conflict")

	// ErrStoreUnavailable wraps failures to reach counter or document storage.
	ErrStoreUnavailable = errors.New("store unavailable")

	// Caller-facing validation errors.
	ErrUnauthenticated  = errors.New("unauthenticated")
	ErrPermissionDenied = errors.New("permission denied")
	ErrInvalidArgument  = errors.New("invalid argument")

	// Allocation errors.
	ErrAllocationConflict = errors.New("allocation conflict")

	// Identity provider errors.
	ErrDuplicateEmail = errors.New("duplicate email")
	ErrWeakPassword   = errors.New("weak password")
	ErrInvalidEmail   = errors.New("invalid email")

	// Multi-step operation errors.
	ErrPartialFailure     = errors.New("partial failure")
	ErrOrphanedCredential = errors.New("orphaned credential")

	// Token errors.
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")

	// ErrAlreadyExists is returned by insert-only writes hitting an existing key.
	ErrAlreadyExists = errors.New("already exists")
)
