// Package domain provides shared domain-level sentinel errors.
package domain

import (
	"errors"
	"fmt"
)

// ErrNotFound indicates the requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrConflict indicates a uniqueness or concurrent modification conflict.
var ErrConflict = errors.New("conflict: resource already exists or was modified by another request")

// ErrValidation indicates invalid caller input.
var ErrValidation = errors.New("validation error")

// Isolation failures. These are never retried and never downgraded.
var (
	// ErrMissingTenantContext means a tenant-scoped operation was attempted
	// without an established tenant scope.
	ErrMissingTenantContext = errors.New("missing tenant context")

	// ErrCrossTenantAccessDenied means the storage policy rejected rows owned
	// by another tenant. Callers always see it wrapped with ErrNotFound.
	ErrCrossTenantAccessDenied = errors.New("cross-tenant access denied")

	// ErrUnclassifiedEntity means an entity value outside the classifier's
	// registry was used in a scoped operation.
	ErrUnclassifiedEntity = errors.New("unclassified entity")
)

// Membership resolution errors.
var (
	ErrNoActiveMembership      = errors.New("user has no active tenant membership")
	ErrNotMember               = errors.New("user is not an active member of the requested tenant")
	ErrTenantSelectionRequired = errors.New("user belongs to several tenants; a tenant must be selected")
	ErrTenantInactive          = errors.New("tenant is deactivated")
)

// IsolationError describes a rejected scoped operation. It never carries data
// belonging to another tenant.
type IsolationError struct {
	Op     string
	Entity string
	Err    error
}

func (e *IsolationError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Entity, e.Err)
}

func (e *IsolationError) Unwrap() error { return e.Err }

// NewCrossTenantError builds the not-found-shaped error returned when the
// storage boundary rejects an operation.
func NewCrossTenantError(op, entity string) error {
	return &IsolationError{
		Op:     op,
		Entity: entity,
		Err:    fmt.Errorf("%w: %w", ErrNotFound, ErrCrossTenantAccessDenied),
	}
}

// IsIsolation reports whether err stems from tenant isolation enforcement
// rather than business logic.
func IsIsolation(err error) bool {
	var ie *IsolationError
	return errors.As(err, &ie)
}
