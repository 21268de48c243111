package http

import (
	"net/http"

	"github.com/Strob0t/LabCore/internal/domain/tenant"
	"github.com/Strob0t/LabCore/internal/middleware"
	"github.com/Strob0t/LabCore/internal/tenancy"
)

type scopeResponse struct {
	UserID     string      `json:"user_id"`
	TenantID   string      `json:"tenant_id"`
	TenantSlug string      `json:"tenant_slug,omitempty"`
	Role       tenant.Role `json:"role"`
}

// GetScope handles GET /api/v1/me/scope: the tenant and role the request
// resolved to.
func (h *Handlers) GetScope(w http.ResponseWriter, r *http.Request) {
	m := middleware.MembershipFromContext(r.Context())
	tid, err := tenancy.Current(r.Context())
	if m == nil || err != nil {
		writeError(w, http.StatusUnauthorized, "tenant scope required")
		return
	}
	writeJSON(w, http.StatusOK, scopeResponse{
		UserID:     middleware.UserIDFromContext(r.Context()),
		TenantID:   tid,
		TenantSlug: m.TenantSlug,
		Role:       m.Role,
	})
}

// ListMyMemberships handles GET /api/v1/me/memberships.
func (h *Handlers) ListMyMemberships(w http.ResponseWriter, r *http.Request) {
	ms, err := h.Directory.MembershipsFor(r.Context(), middleware.UserIDFromContext(r.Context()))
	if err != nil {
		writeDomainError(w, r, err, "user not found")
		return
	}
	if ms == nil {
		ms = []tenant.Membership{}
	}
	writeJSON(w, http.StatusOK, ms)
}

type onboardResponse struct {
	Tenant     *tenant.Tenant     `json:"tenant"`
	Membership *tenant.Membership `json:"membership"`
}

// OnboardTenant handles POST /api/v1/tenants. The caller becomes the new
// tenant's first admin.
func (h *Handlers) OnboardTenant(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[tenant.CreateRequest](w, r, h.bodyLimit())
	if !ok {
		return
	}
	t, m, err := h.Tenants.Onboard(r.Context(), req, middleware.UserIDFromContext(r.Context()))
	if err != nil {
		writeDomainError(w, r, err, "user not found")
		return
	}
	writeJSON(w, http.StatusCreated, onboardResponse{Tenant: t, Membership: m})
}

// GetCurrentTenant handles GET /api/v1/tenant.
func (h *Handlers) GetCurrentTenant(w http.ResponseWriter, r *http.Request) {
	tid, err := tenancy.Current(r.Context())
	if err != nil {
		writeDomainError(w, r, err, "tenant not found")
		return
	}
	t, err := h.Tenants.Get(r.Context(), tid)
	if err != nil {
		writeDomainError(w, r, err, "tenant not found")
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// UpdateCurrentTenant handles PUT /api/v1/tenant.
func (h *Handlers) UpdateCurrentTenant(w http.ResponseWriter, r *http.Request) {
	tid, err := tenancy.Current(r.Context())
	if err != nil {
		writeDomainError(w, r, err, "tenant not found")
		return
	}
	req, ok := readJSON[tenant.UpdateRequest](w, r, h.bodyLimit())
	if !ok {
		return
	}
	t, err := h.Tenants.Update(r.Context(), tid, req)
	if err != nil {
		writeDomainError(w, r, err, "tenant not found")
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// DeactivateCurrentTenant handles POST /api/v1/tenant/deactivate.
// Reactivation is an operator task since no member can resolve a
// deactivated tenant.
func (h *Handlers) DeactivateCurrentTenant(w http.ResponseWriter, r *http.Request) {
	tid, err := tenancy.Current(r.Context())
	if err != nil {
		writeDomainError(w, r, err, "tenant not found")
		return
	}
	if err := h.Tenants.Deactivate(r.Context(), tid); err != nil {
		writeDomainError(w, r, err, "tenant not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListMembers handles GET /api/v1/tenant/members.
func (h *Handlers) ListMembers(w http.ResponseWriter, r *http.Request) {
	tid, err := tenancy.Current(r.Context())
	if err != nil {
		writeDomainError(w, r, err, "tenant not found")
		return
	}
	ms, err := h.Directory.ListMembers(r.Context(), tid)
	if err != nil {
		writeDomainError(w, r, err, "tenant not found")
		return
	}
	if ms == nil {
		ms = []tenant.Membership{}
	}
	writeJSON(w, http.StatusOK, ms)
}

// GrantMember handles POST /api/v1/tenant/members.
func (h *Handlers) GrantMember(w http.ResponseWriter, r *http.Request) {
	tid, err := tenancy.Current(r.Context())
	if err != nil {
		writeDomainError(w, r, err, "tenant not found")
		return
	}
	req, ok := readJSON[tenant.GrantRequest](w, r, h.bodyLimit())
	if !ok {
		return
	}
	m, err := h.Directory.Grant(r.Context(), tid, req)
	if err != nil {
		writeDomainError(w, r, err, "user not found")
		return
	}
	writeJSON(w, http.StatusCreated, m)
}

type changeRoleRequest struct {
	Role tenant.Role `json:"role"`
}

// ChangeMemberRole handles PUT /api/v1/tenant/members/{userID}.
func (h *Handlers) ChangeMemberRole(w http.ResponseWriter, r *http.Request) {
	tid, err := tenancy.Current(r.Context())
	if err != nil {
		writeDomainError(w, r, err, "tenant not found")
		return
	}
	req, ok := readJSON[changeRoleRequest](w, r, h.bodyLimit())
	if !ok {
		return
	}
	if err := h.Directory.ChangeRole(r.Context(), tid, urlParam(r, "userID"), req.Role); err != nil {
		writeDomainError(w, r, err, "member not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RevokeMember handles DELETE /api/v1/tenant/members/{userID}.
func (h *Handlers) RevokeMember(w http.ResponseWriter, r *http.Request) {
	tid, err := tenancy.Current(r.Context())
	if err != nil {
		writeDomainError(w, r, err, "tenant not found")
		return
	}
	if err := h.Directory.Revoke(r.Context(), tid, urlParam(r, "userID")); err != nil {
		writeDomainError(w, r, err, "member not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
