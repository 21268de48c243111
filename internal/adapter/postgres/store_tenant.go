package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/Strob0t/LabCore/internal/domain/tenant"
)

const tenantColumns = `id, name, slug, logo_url, settings, active, deactivated_at, created_at, updated_at`

func scanTenant(row scannable) (tenant.Tenant, error) {
	var t tenant.Tenant
	var settingsJSON []byte
	err := row.Scan(&t.ID, &t.Name, &t.Slug, &t.LogoURL, &settingsJSON, &t.Active, &t.DeactivatedAt, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return t, err
	}
	if len(settingsJSON) > 0 {
		if err := json.Unmarshal(settingsJSON, &t.Settings); err != nil {
			return t, fmt.Errorf("decode tenant settings: %w", err)
		}
	}
	return t, nil
}

func settingsJSON(settings map[string]string) ([]byte, error) {
	if settings == nil {
		settings = map[string]string{}
	}
	return json.Marshal(settings)
}

// --- Tenant CRUD ---

type queryRower interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func insertTenant(ctx context.Context, q queryRower, req tenant.CreateRequest) (*tenant.Tenant, error) {
	settings, err := settingsJSON(req.Settings)
	if err != nil {
		return nil, fmt.Errorf("create tenant: %w", err)
	}
	t, err := scanTenant(q.QueryRow(ctx,
		`INSERT INTO tenants (name, slug, logo_url, settings) VALUES ($1, $2, $3, $4)
		 RETURNING `+tenantColumns,
		req.Name, req.Slug, req.LogoURL, settings))
	if err != nil {
		return nil, fmt.Errorf("create tenant %s: %w", req.Slug, mapPgError(err))
	}
	return &t, nil
}

func (s *Store) CreateTenant(ctx context.Context, req tenant.CreateRequest) (*tenant.Tenant, error) {
	return insertTenant(ctx, s.db, req)
}

// OnboardTenant creates the tenant and its first admin membership atomically.
func (s *Store) OnboardTenant(ctx context.Context, req tenant.CreateRequest, adminUserID string) (*tenant.Tenant, *tenant.Membership, error) {
	var (
		t *tenant.Tenant
		m *tenant.Membership
	)
	err := s.inTx(ctx, "onboard tenant", func(tx pgx.Tx) error {
		var err error
		if t, err = insertTenant(ctx, tx, req); err != nil {
			return err
		}
		m, err = upsertMembership(ctx, tx, t.ID, adminUserID, tenant.RoleAdmin)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	m.TenantSlug = t.Slug
	m.TenantActive = t.Active
	return t, m, nil
}

func (s *Store) GetTenant(ctx context.Context, id string) (*tenant.Tenant, error) {
	t, err := scanTenant(s.db.QueryRow(ctx,
		`SELECT `+tenantColumns+` FROM tenants WHERE id = $1`, id))
	if err != nil {
		return nil, notFoundWrap(err, "get tenant %s", id)
	}
	return &t, nil
}

func (s *Store) GetTenantBySlug(ctx context.Context, slug string) (*tenant.Tenant, error) {
	t, err := scanTenant(s.db.QueryRow(ctx,
		`SELECT `+tenantColumns+` FROM tenants WHERE slug = $1`, slug))
	if err != nil {
		return nil, notFoundWrap(err, "get tenant by slug %s", slug)
	}
	return &t, nil
}

func (s *Store) ListTenants(ctx context.Context, includeInactive bool) ([]tenant.Tenant, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+tenantColumns+` FROM tenants
		 WHERE active OR $1 ORDER BY created_at ASC`, includeInactive)
	if err != nil {
		return nil, fmt.Errorf("list tenants: %w", err)
	}
	defer rows.Close()

	var tenants []tenant.Tenant
	for rows.Next() {
		t, err := scanTenant(rows)
		if err != nil {
			return nil, fmt.Errorf("scan tenant: %w", err)
		}
		tenants = append(tenants, t)
	}
	return orEmpty(tenants), rows.Err()
}

// UpdateTenant writes the mutable fields. The slug is never written.
func (s *Store) UpdateTenant(ctx context.Context, t *tenant.Tenant) error {
	settings, err := settingsJSON(t.Settings)
	if err != nil {
		return fmt.Errorf("update tenant %s: %w", t.ID, err)
	}
	tag, err := s.db.Exec(ctx,
		`UPDATE tenants SET name = $2, logo_url = $3, settings = $4 WHERE id = $1`,
		t.ID, t.Name, t.LogoURL, settings)
	return execExpectOne(tag, err, "update tenant %s", t.ID)
}

func (s *Store) SetTenantActive(ctx context.Context, id string, active bool) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE tenants SET active = $2,
		        deactivated_at = CASE WHEN $2 THEN NULL ELSE now() END
		 WHERE id = $1`, id, active)
	return execExpectOne(tag, err, "set tenant %s active=%t", id, active)
}
