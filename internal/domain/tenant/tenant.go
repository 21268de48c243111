// Package tenant defines the tenant registry and membership domain model.
package tenant

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Tenant is one isolated lab. Tenants are never hard-deleted.
type Tenant struct {
	ID            string            `json:"id"`
	Name          string            `json:"name"`
	Slug          string            `json:"slug"`
	LogoURL       string            `json:"logo_url,omitempty"`
	Settings      map[string]string `json:"settings,omitempty"`
	Active        bool              `json:"active"`
	DeactivatedAt *time.Time        `json:"deactivated_at,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
}

var slugRegex = regexp.MustCompile(`^[a-z0-9][a-z0-9-]{1,62}[a-z0-9]$`)

// CreateRequest holds the fields required to create a new tenant.
type CreateRequest struct {
	Name     string            `json:"name"`
	Slug     string            `json:"slug"`
	LogoURL  string            `json:"logo_url,omitempty"`
	Settings map[string]string `json:"settings,omitempty"`
}

// Validate checks the name and slug.
func (r *CreateRequest) Validate() error {
	r.Name = strings.TrimSpace(r.Name)
	if r.Name == "" {
		return errors.New("tenant name is required")
	}
	if !slugRegex.MatchString(r.Slug) {
		return fmt.Errorf("invalid slug %q: must be 3-64 lowercase alphanumeric characters or hyphens", r.Slug)
	}
	return nil
}

// UpdateRequest holds the mutable tenant fields. The slug is not among them.
type UpdateRequest struct {
	Name     string            `json:"name,omitempty"`
	LogoURL  *string           `json:"logo_url,omitempty"`
	Settings map[string]string `json:"settings,omitempty"`
}

// Role bounds what a member may do inside one tenant.
type Role string

const (
	RoleAdmin      Role = "admin"
	RoleSupervisor Role = "supervisor"
	RoleTechnician Role = "technician"
	RoleFinance    Role = "finance"
	RoleDriver     Role = "driver"
	RoleClient     Role = "client"
)

// ValidRoles is the set of all valid membership roles.
var ValidRoles = map[Role]bool{
	RoleAdmin:      true,
	RoleSupervisor: true,
	RoleTechnician: true,
	RoleFinance:    true,
	RoleDriver:     true,
	RoleClient:     true,
}

// Membership joins a user to a tenant. A (TenantID, UserID) pair is unique.
type Membership struct {
	TenantID   string    `json:"tenant_id"`
	TenantSlug string    `json:"tenant_slug,omitempty"`
	UserID     string    `json:"user_id"`
	Role       Role      `json:"role"`
	Active     bool      `json:"active"`
	JoinedAt   time.Time `json:"joined_at"`
	// TenantActive mirrors the owning tenant's active flag.
	TenantActive bool `json:"tenant_active"`
}

// Usable reports whether the membership can establish a tenant scope.
func (m *Membership) Usable() bool {
	return m.Active && m.TenantActive
}

// GrantRequest adds a user to the current tenant.
type GrantRequest struct {
	UserID string `json:"user_id"`
	Role   Role   `json:"role"`
}

// Validate checks that the GrantRequest names a user and a known role.
func (r *GrantRequest) Validate() error {
	if strings.TrimSpace(r.UserID) == "" {
		return errors.New("user_id is required")
	}
	if !ValidRoles[r.Role] {
		return fmt.Errorf("invalid role %q", r.Role)
	}
	return nil
}
