package postgres

import (
	"context"
	"fmt"

	"github.com/Strob0t/LabCore/internal/domain/tenant"
)

const membershipColumns = `m.tenant_id, t.slug, m.user_id, m.role, m.active, m.joined_at, t.active`

func scanMembership(row scannable) (tenant.Membership, error) {
	var m tenant.Membership
	var role string
	err := row.Scan(&m.TenantID, &m.TenantSlug, &m.UserID, &role, &m.Active, &m.JoinedAt, &m.TenantActive)
	m.Role = tenant.Role(role)
	return m, err
}

// upsertMembership grants role to the user, reactivating a revoked membership.
func upsertMembership(ctx context.Context, q queryRower, tenantID, userID string, role tenant.Role) (*tenant.Membership, error) {
	var m tenant.Membership
	var granted string
	err := q.QueryRow(ctx,
		`INSERT INTO memberships (tenant_id, user_id, role) VALUES ($1, $2, $3)
		 ON CONFLICT (tenant_id, user_id) DO UPDATE SET role = EXCLUDED.role, active = TRUE
		 RETURNING tenant_id, user_id, role, active, joined_at`,
		tenantID, userID, string(role),
	).Scan(&m.TenantID, &m.UserID, &granted, &m.Active, &m.JoinedAt)
	if err != nil {
		return nil, fmt.Errorf("upsert membership %s/%s: %w", tenantID, userID, mapPgError(err))
	}
	m.Role = tenant.Role(granted)
	return &m, nil
}

func (s *Store) UpsertMembership(ctx context.Context, tenantID, userID string, role tenant.Role) (*tenant.Membership, error) {
	if _, err := upsertMembership(ctx, s.db, tenantID, userID, role); err != nil {
		return nil, err
	}
	return s.GetMembership(ctx, tenantID, userID)
}

func (s *Store) GetMembership(ctx context.Context, tenantID, userID string) (*tenant.Membership, error) {
	m, err := scanMembership(s.db.QueryRow(ctx,
		`SELECT `+membershipColumns+`
		   FROM memberships m JOIN tenants t ON t.id = m.tenant_id
		  WHERE m.tenant_id = $1 AND m.user_id = $2`, tenantID, userID))
	if err != nil {
		return nil, notFoundWrap(err, "get membership %s/%s", tenantID, userID)
	}
	return &m, nil
}

func (s *Store) listMemberships(ctx context.Context, where string, arg string) ([]tenant.Membership, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+membershipColumns+`
		   FROM memberships m JOIN tenants t ON t.id = m.tenant_id
		  WHERE `+where+` ORDER BY m.joined_at ASC`, arg)
	if err != nil {
		return nil, fmt.Errorf("list memberships: %w", err)
	}
	defer rows.Close()

	var out []tenant.Membership
	for rows.Next() {
		m, err := scanMembership(rows)
		if err != nil {
			return nil, fmt.Errorf("scan membership: %w", err)
		}
		out = append(out, m)
	}
	return orEmpty(out), rows.Err()
}

// ListMembershipsByUser returns every membership of the user, active or not.
func (s *Store) ListMembershipsByUser(ctx context.Context, userID string) ([]tenant.Membership, error) {
	return s.listMemberships(ctx, "m.user_id = $1", userID)
}

func (s *Store) ListMembershipsByTenant(ctx context.Context, tenantID string) ([]tenant.Membership, error) {
	return s.listMemberships(ctx, "m.tenant_id = $1", tenantID)
}

func (s *Store) UpdateMembershipRole(ctx context.Context, tenantID, userID string, role tenant.Role) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE memberships SET role = $3 WHERE tenant_id = $1 AND user_id = $2`,
		tenantID, userID, string(role))
	return execExpectOne(tag, err, "update membership role %s/%s", tenantID, userID)
}

func (s *Store) SetMembershipActive(ctx context.Context, tenantID, userID string, active bool) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE memberships SET active = $3 WHERE tenant_id = $1 AND user_id = $2`,
		tenantID, userID, active)
	return execExpectOne(tag, err, "set membership %s/%s active=%t", tenantID, userID, active)
}
