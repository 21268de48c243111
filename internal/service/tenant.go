package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Strob0t/LabCore/internal/domain"
	"github.com/Strob0t/LabCore/internal/domain/tenant"
	"github.com/Strob0t/LabCore/internal/port/database"
)

// TenantService manages the tenant registry. Tenants are deactivated, never
// deleted.
type TenantService struct {
	store     database.Store
	directory *DirectoryService
}

// NewTenantService creates a new TenantService. directory is used to drop
// cached memberships when a tenant's state changes and may be nil.
func NewTenantService(store database.Store, directory *DirectoryService) *TenantService {
	return &TenantService{store: store, directory: directory}
}

// Onboard creates a tenant and makes adminUserID its first admin in one
// transaction.
func (s *TenantService) Onboard(ctx context.Context, req tenant.CreateRequest, adminUserID string) (*tenant.Tenant, *tenant.Membership, error) {
	if err := req.Validate(); err != nil {
		return nil, nil, fmt.Errorf("%w: %w", domain.ErrValidation, err)
	}
	if _, err := s.store.GetUser(ctx, adminUserID); err != nil {
		return nil, nil, fmt.Errorf("onboard: admin %s: %w", adminUserID, err)
	}

	t, m, err := s.store.OnboardTenant(ctx, req, adminUserID)
	if err != nil {
		return nil, nil, fmt.Errorf("onboard %s: %w", req.Slug, err)
	}
	s.invalidate(ctx, adminUserID)
	slog.InfoContext(ctx, "tenant onboarded", "tenant", t.ID, "slug", t.Slug, "admin", adminUserID)
	return t, m, nil
}

// Get returns a tenant by ID.
func (s *TenantService) Get(ctx context.Context, id string) (*tenant.Tenant, error) {
	return s.store.GetTenant(ctx, id)
}

// GetBySlug returns a tenant by its slug.
func (s *TenantService) GetBySlug(ctx context.Context, slug string) (*tenant.Tenant, error) {
	return s.store.GetTenantBySlug(ctx, slug)
}

// List returns tenants ordered by name.
func (s *TenantService) List(ctx context.Context, includeInactive bool) ([]tenant.Tenant, error) {
	return s.store.ListTenants(ctx, includeInactive)
}

// Update modifies the mutable fields of a tenant. The slug never changes.
func (s *TenantService) Update(ctx context.Context, id string, req tenant.UpdateRequest) (*tenant.Tenant, error) {
	t, err := s.store.GetTenant(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.Name != "" {
		t.Name = req.Name
	}
	if req.LogoURL != nil {
		t.LogoURL = *req.LogoURL
	}
	if req.Settings != nil {
		t.Settings = req.Settings
	}
	if err := s.store.UpdateTenant(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

// Deactivate blocks every member from establishing the tenant's scope. The
// tenant's data is kept.
func (s *TenantService) Deactivate(ctx context.Context, id string) error {
	return s.setActive(ctx, id, false)
}

// Reactivate restores a deactivated tenant.
func (s *TenantService) Reactivate(ctx context.Context, id string) error {
	return s.setActive(ctx, id, true)
}

func (s *TenantService) setActive(ctx context.Context, id string, active bool) error {
	if err := s.store.SetTenantActive(ctx, id, active); err != nil {
		return fmt.Errorf("set tenant %s active=%t: %w", id, active, err)
	}
	members, err := s.store.ListMembershipsByTenant(ctx, id)
	if err != nil {
		return fmt.Errorf("list members of %s: %w", id, err)
	}
	for i := range members {
		s.invalidate(ctx, members[i].UserID)
	}
	slog.InfoContext(ctx, "tenant state changed", "tenant", id, "active", active)
	return nil
}

func (s *TenantService) invalidate(ctx context.Context, userID string) {
	if s.directory != nil {
		s.directory.Invalidate(ctx, userID)
	}
}
