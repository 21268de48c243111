package http

import (
	"github.com/go-chi/chi/v5"

	"github.com/Strob0t/LabCore/internal/domain/tenant"
	"github.com/Strob0t/LabCore/internal/middleware"
)

var (
	tenantAdmins = []tenant.Role{tenant.RoleAdmin}
	supervisors  = []tenant.Role{tenant.RoleAdmin, tenant.RoleSupervisor}
	labStaff     = []tenant.Role{tenant.RoleAdmin, tenant.RoleSupervisor, tenant.RoleTechnician, tenant.RoleFinance, tenant.RoleDriver}
	clientEditor = []tenant.Role{tenant.RoleAdmin, tenant.RoleSupervisor, tenant.RoleFinance}
)

// MountRoutes registers all API routes on the given chi router. Every /api/v1
// route requires a bearer token; routes outside the system group are scoped
// to the tenant resolved from the caller's memberships.
func MountRoutes(r chi.Router, h *Handlers, verifier *middleware.TokenVerifier) {
	r.Get("/health", h.Health)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(verifier))

		// System scope
		r.Group(func(r chi.Router) {
			r.Use(middleware.SystemScope)
			r.Get("/me/memberships", h.ListMyMemberships)
			r.Post("/tenants", h.OnboardTenant)
		})

		// Tenant scope
		r.Group(func(r chi.Router) {
			r.Use(middleware.Tenant(h.Directory))

			r.Get("/me/scope", h.GetScope)

			r.Get("/tenant", h.GetCurrentTenant)
			r.With(middleware.RequireRole(tenantAdmins...)).Put("/tenant", h.UpdateCurrentTenant)
			r.With(middleware.RequireRole(tenantAdmins...)).Post("/tenant/deactivate", h.DeactivateCurrentTenant)

			r.Route("/tenant/members", func(r chi.Router) {
				r.With(middleware.RequireRole(supervisors...)).Get("/", h.ListMembers)
				r.Group(func(r chi.Router) {
					r.Use(middleware.RequireRole(tenantAdmins...))
					r.Post("/", h.GrantMember)
					r.Put("/{userID}", h.ChangeMemberRole)
					r.Delete("/{userID}", h.RevokeMember)
				})
			})

			r.Route("/clients", func(r chi.Router) {
				r.Use(middleware.RequireRole(labStaff...))
				r.Get("/", h.ListClients)
				r.Get("/count", h.CountClients)
				r.Get("/{id}", h.getClient())
				r.Group(func(r chi.Router) {
					r.Use(middleware.RequireRole(clientEditor...))
					r.Post("/", h.createClient())
					r.Put("/{id}", h.updateClient())
					r.Delete("/{id}", h.deleteClient())
				})
			})
		})
	})
}
