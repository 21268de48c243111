package postgres

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/Strob0t/LabCore/internal/domain/entity"
)

// PolicyName is the row-level security policy bound to every tenant-scoped table.
const PolicyName = "tenant_isolation"

// tenantPredicate matches rows owned by the declared tenant. With nothing
// declared the setting is empty, NULLIF yields NULL and no row matches.
const tenantPredicate = "tenant_id = NULLIF(current_setting('" + tenantSetting + "', true), '')::uuid"

const reassignFunctionSQL = `CREATE OR REPLACE FUNCTION forbid_tenant_reassignment() RETURNS trigger
LANGUAGE plpgsql AS $$
BEGIN
    IF NEW.tenant_id IS DISTINCT FROM OLD.tenant_id THEN
        RAISE EXCEPTION 'tenant_id is immutable' USING ERRCODE = '42501';
    END IF;
    RETURN NEW;
END
$$`

// PolicyStatements returns the DDL that binds e's table to the declared
// tenant. It returns nil for system-scoped entities.
func PolicyStatements(e entity.Entity) []string {
	if e.IsSystemScoped() || !e.Valid() {
		return nil
	}
	table := pgx.Identifier{e.Table()}.Sanitize()
	policy := pgx.Identifier{PolicyName}.Sanitize()
	trigger := pgx.Identifier{e.Table() + "_tenant_immutable"}.Sanitize()

	return []string{
		fmt.Sprintf("ALTER TABLE %s ENABLE ROW LEVEL SECURITY", table),
		fmt.Sprintf("ALTER TABLE %s FORCE ROW LEVEL SECURITY", table),
		fmt.Sprintf("DROP POLICY IF EXISTS %s ON %s", policy, table),
		fmt.Sprintf("CREATE POLICY %s ON %s USING (%s) WITH CHECK (%s)", policy, table, tenantPredicate, tenantPredicate),
		fmt.Sprintf("DROP TRIGGER IF EXISTS %s ON %s", trigger, table),
		fmt.Sprintf("CREATE TRIGGER %s BEFORE UPDATE OF tenant_id ON %s FOR EACH ROW EXECUTE FUNCTION forbid_tenant_reassignment()", trigger, table),
	}
}

// EnsurePolicies applies the row-level security DDL for every tenant-scoped
// entity in one transaction. It is idempotent.
func EnsurePolicies(ctx context.Context, db DB) error {
	tx, err := db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("ensure policies: begin: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback(context.WithoutCancel(ctx))
		}
	}()

	if _, err := tx.Exec(ctx, reassignFunctionSQL); err != nil {
		return fmt.Errorf("ensure policies: reassignment guard: %w", err)
	}
	for _, e := range entity.TenantScopedEntities() {
		for _, stmt := range PolicyStatements(e) {
			if _, err := tx.Exec(ctx, stmt); err != nil {
				return fmt.Errorf("ensure policies %s: %w", e.Table(), err)
			}
		}
	}

	committed = true
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("ensure policies: commit: %w", err)
	}
	return nil
}

// PolicyReport is the outcome of VerifyPolicies.
type PolicyReport struct {
	// Unprotected lists tenant-scoped tables that are missing, lack enabled or
	// forced row-level security, or lack the tenant_isolation policy.
	Unprotected []string
	// RoleBypassesRLS is set when the connected role is a superuser or has
	// BYPASSRLS, in which case no policy applies to it.
	RoleBypassesRLS bool
}

// OK reports whether every tenant-scoped table is protected.
func (r PolicyReport) OK() bool { return len(r.Unprotected) == 0 }

func (r PolicyReport) Error() string {
	return "row-level security missing on: " + strings.Join(r.Unprotected, ", ")
}

const verifyPoliciesSQL = `SELECT c.relname, c.relrowsecurity, c.relforcerowsecurity,
       EXISTS (SELECT 1 FROM pg_policies p
               WHERE p.schemaname = n.nspname AND p.tablename = c.relname AND p.policyname = $2)
  FROM pg_class c
  JOIN pg_namespace n ON n.oid = c.relnamespace
 WHERE n.nspname = current_schema() AND c.relkind = 'r' AND c.relname = ANY($1)`

const roleBypassSQL = `SELECT rolsuper OR rolbypassrls FROM pg_roles WHERE rolname = current_user`

// VerifyPolicies inspects the catalog and reports every tenant-scoped table
// the storage boundary does not protect.
func VerifyPolicies(ctx context.Context, db DB) (PolicyReport, error) {
	var report PolicyReport

	tenantScoped := entity.TenantScopedEntities()
	tables := make([]string, 0, len(tenantScoped))
	for _, e := range tenantScoped {
		tables = append(tables, e.Table())
	}

	rows, err := db.Query(ctx, verifyPoliciesSQL, tables, PolicyName)
	if err != nil {
		return report, fmt.Errorf("verify policies: %w", err)
	}
	defer rows.Close()

	protected := make(map[string]bool, len(tables))
	for rows.Next() {
		var (
			name                 string
			enabled, forced, has bool
		)
		if err := rows.Scan(&name, &enabled, &forced, &has); err != nil {
			return report, fmt.Errorf("verify policies: scan: %w", err)
		}
		protected[name] = enabled && forced && has
	}
	if err := rows.Err(); err != nil {
		return report, fmt.Errorf("verify policies: %w", err)
	}

	for _, t := range tables {
		if !protected[t] {
			report.Unprotected = append(report.Unprotected, t)
		}
	}
	slices.Sort(report.Unprotected)

	if err := db.QueryRow(ctx, roleBypassSQL).Scan(&report.RoleBypassesRLS); err != nil {
		return report, fmt.Errorf("verify policies: role: %w", err)
	}
	return report, nil
}
