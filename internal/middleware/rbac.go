package middleware

import (
	"net/http"

	"github.com/Strob0t/LabCore/internal/domain/tenant"
)

// RequireRole returns middleware that restricts access to members holding one
// of the given roles in the request's tenant. It must run after Tenant.
func RequireRole(roles ...tenant.Role) func(http.Handler) http.Handler {
	allowed := make(map[tenant.Role]bool, len(roles))
	for _, r := range roles {
		allowed[r] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			m := MembershipFromContext(r.Context())
			if m == nil {
				http.Error(w, `{"error":"authorization required"}`, http.StatusUnauthorized)
				return
			}

			if !allowed[m.Role] {
				http.Error(w, `{"error":"forbidden"}`, http.StatusForbidden)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
