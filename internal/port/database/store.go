// Package database defines the database store port (interface) for the
// system-scoped directory: tenants, users and memberships.
package database

import (
	"context"

	"github.com/Strob0t/LabCore/internal/domain/tenant"
	"github.com/Strob0t/LabCore/internal/domain/user"
)

// Store is the port interface for directory persistence. None of its methods
// read the caller's tenant scope; tenant IDs are explicit arguments.
type Store interface {
	// Tenants
	CreateTenant(ctx context.Context, req tenant.CreateRequest) (*tenant.Tenant, error)
	OnboardTenant(ctx context.Context, req tenant.CreateRequest, adminUserID string) (*tenant.Tenant, *tenant.Membership, error)
	GetTenant(ctx context.Context, id string) (*tenant.Tenant, error)
	GetTenantBySlug(ctx context.Context, slug string) (*tenant.Tenant, error)
	ListTenants(ctx context.Context, includeInactive bool) ([]tenant.Tenant, error)
	UpdateTenant(ctx context.Context, t *tenant.Tenant) error
	SetTenantActive(ctx context.Context, id string, active bool) error

	// Users
	CreateUser(ctx context.Context, req user.RegisterRequest) (*user.User, error)
	GetUser(ctx context.Context, id string) (*user.User, error)
	GetUserByEmail(ctx context.Context, email string) (*user.User, error)
	GetUserByExternalAuthID(ctx context.Context, externalID string) (*user.User, error)

	// Memberships
	UpsertMembership(ctx context.Context, tenantID, userID string, role tenant.Role) (*tenant.Membership, error)
	GetMembership(ctx context.Context, tenantID, userID string) (*tenant.Membership, error)
	ListMembershipsByUser(ctx context.Context, userID string) ([]tenant.Membership, error)
	ListMembershipsByTenant(ctx context.Context, tenantID string) ([]tenant.Membership, error)
	UpdateMembershipRole(ctx context.Context, tenantID, userID string, role tenant.Role) error
	SetMembershipActive(ctx context.Context, tenantID, userID string, active bool) error
}
