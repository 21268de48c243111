package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/Strob0t/LabCore/internal/domain"
	"github.com/Strob0t/LabCore/internal/domain/tenant"
	"github.com/Strob0t/LabCore/internal/tenancy"
)

const headerTenantID = "X-Tenant-ID"

// MembershipResolver picks the membership that scopes a request.
// *service.DirectoryService satisfies it.
type MembershipResolver interface {
	Resolve(ctx context.Context, userID, requested string) (*tenant.Membership, error)
}

type membershipCtxKey struct{}

// Tenant is middleware that resolves the caller's active membership, using
// the optional X-Tenant-ID header (tenant ID or slug) as the selection, and
// scopes the rest of the request to that tenant. It must run after Auth.
func Tenant(resolver MembershipResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID := UserIDFromContext(r.Context())
			if userID == "" {
				http.Error(w, `{"error":"authorization required"}`, http.StatusUnauthorized)
				return
			}

			m, err := resolver.Resolve(r.Context(), userID, r.Header.Get(headerTenantID))
			if err != nil {
				writeResolveError(w, r, err)
				return
			}

			ctx, err := tenancy.WithTenant(r.Context(), m.TenantID)
			if err != nil {
				http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
				return
			}
			ctx = context.WithValue(ctx, membershipCtxKey{}, m)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func writeResolveError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrTenantSelectionRequired):
		http.Error(w, `{"error":"tenant selection required","code":"tenant_selection_required"}`, http.StatusBadRequest)
	case errors.Is(err, domain.ErrNoActiveMembership):
		http.Error(w, `{"error":"no active tenant membership","code":"no_active_membership"}`, http.StatusForbidden)
	case errors.Is(err, domain.ErrNotMember):
		http.Error(w, `{"error":"not a member of the requested tenant","code":"not_member"}`, http.StatusForbidden)
	case errors.Is(err, domain.ErrTenantInactive):
		http.Error(w, `{"error":"tenant is deactivated","code":"tenant_inactive"}`, http.StatusForbidden)
	default:
		slog.ErrorContext(r.Context(), "tenant resolution failed", "error", err)
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
	}
}

// MembershipFromContext returns the membership that scopes the request, or
// nil outside Tenant.
func MembershipFromContext(ctx context.Context) *tenant.Membership {
	m, _ := ctx.Value(membershipCtxKey{}).(*tenant.Membership)
	return m
}

// WithMembership returns a context that carries m and is scoped to its
// tenant. It is the non-HTTP form of Tenant, used by tests and jobs.
func WithMembership(ctx context.Context, m *tenant.Membership) (context.Context, error) {
	ctx, err := tenancy.WithTenant(ctx, m.TenantID)
	if err != nil {
		return ctx, err
	}
	return context.WithValue(ctx, membershipCtxKey{}, m), nil
}

// SystemScope marks the request as acting without a tenant, for routes that
// span the caller's tenants or create new ones. Tenant-scoped storage calls
// inside it fail.
func SystemScope(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, r.WithContext(tenancy.WithSystem(r.Context())))
	})
}
