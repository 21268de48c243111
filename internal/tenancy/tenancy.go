// Package tenancy carries the request's tenant scope through context.Context.
//
// A Scope is immutable and bound to the context value chain, so concurrent
// requests never observe each other's scope, and a call chain keeps its scope
// across every blocking operation it passes the context to.
package tenancy

import (
	"context"
	"fmt"
	"strings"

	"github.com/Strob0t/LabCore/internal/domain"
)

// Scope is the tenant declaration of one call chain.
type Scope struct {
	tenantID string
	system   bool
}

// TenantID returns the scoped tenant, or "" for the system scope.
func (s Scope) TenantID() string { return s.tenantID }

// IsSystem reports whether the scope explicitly acts without a tenant.
func (s Scope) IsSystem() bool { return s.system }

type scopeCtxKey struct{}

// WithTenant returns a context scoped to tenantID. It shadows any scope
// already present in ctx.
func WithTenant(ctx context.Context, tenantID string) (context.Context, error) {
	tenantID = strings.TrimSpace(tenantID)
	if tenantID == "" {
		return ctx, fmt.Errorf("empty tenant id: %w", domain.ErrMissingTenantContext)
	}
	return context.WithValue(ctx, scopeCtxKey{}, Scope{tenantID: tenantID}), nil
}

// WithSystem returns a context that explicitly carries no tenant. Tenant-scoped
// operations inside it fail with ErrMissingTenantContext.
func WithSystem(ctx context.Context) context.Context {
	return context.WithValue(ctx, scopeCtxKey{}, Scope{system: true})
}

// Run executes fn with its context scoped to tenantID.
func Run(ctx context.Context, tenantID string, fn func(ctx context.Context) error) error {
	scoped, err := WithTenant(ctx, tenantID)
	if err != nil {
		return err
	}
	return fn(scoped)
}

// RunSystem executes fn with the system scope.
func RunSystem(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(WithSystem(ctx))
}

// FromContext returns the scope stored in ctx, if any.
func FromContext(ctx context.Context) (Scope, bool) {
	s, ok := ctx.Value(scopeCtxKey{}).(Scope)
	return s, ok
}

// Current returns the tenant the calling chain acts for.
func Current(ctx context.Context) (string, error) {
	s, ok := FromContext(ctx)
	if !ok || s.system || s.tenantID == "" {
		return "", domain.ErrMissingTenantContext
	}
	return s.tenantID, nil
}

// IsSystem reports whether ctx carries the explicit system scope.
func IsSystem(ctx context.Context) bool {
	s, ok := FromContext(ctx)
	return ok && s.system
}
