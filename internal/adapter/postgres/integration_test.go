package postgres_test

import (
	"context"
	"fmt"
	"os"
	"testing"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/Strob0t/LabCore/internal/adapter/postgres"
	"github.com/Strob0t/LabCore/internal/domain"
	"github.com/Strob0t/LabCore/internal/domain/client"
	"github.com/Strob0t/LabCore/internal/domain/entity"
	"github.com/Strob0t/LabCore/internal/domain/tenant"
	"github.com/Strob0t/LabCore/internal/domain/user"
	"github.com/Strob0t/LabCore/internal/tenancy"
)

// setupPool connects to DATABASE_URL, runs migrations and applies the
// row-level security policies. Tests skip when the connected role bypasses
// row-level security, since nothing below the gateway would be exercised.
func setupPool(t *testing.T) *pgxpool.Pool {
	t.Helper()

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("requires DATABASE_URL")
	}
	ctx := context.Background()

	require.NoError(t, postgres.RunMigrations(ctx, dsn))

	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	require.NoError(t, postgres.EnsurePolicies(ctx, pool))
	report, err := postgres.VerifyPolicies(ctx, pool)
	require.NoError(t, err)
	require.True(t, report.OK(), report.Error())
	if report.RoleBypassesRLS {
		t.Skip("connected role bypasses row-level security")
	}
	return pool
}

// seedTenant creates a tenant with a fresh admin user and returns its ID.
func seedTenant(t *testing.T, store *postgres.Store, name string) string {
	t.Helper()
	ctx := context.Background()
	suffix := uuid.NewString()[:8]

	u, err := store.CreateUser(ctx, user.RegisterRequest{
		Email: fmt.Sprintf("admin-%s@%s.test", suffix, name),
		Name:  "Admin " + name,
	})
	require.NoError(t, err)

	tn, _, err := store.OnboardTenant(ctx, tenant.CreateRequest{
		Name: name,
		Slug: name + "-" + suffix,
	}, u.ID)
	require.NoError(t, err)
	return tn.ID
}

func scoped(t *testing.T, tenantID string) context.Context {
	t.Helper()
	ctx, err := tenancy.WithTenant(context.Background(), tenantID)
	require.NoError(t, err)
	return ctx
}

func TestIntegration_ClientInvisibleToOtherTenant(t *testing.T) {
	pool := setupPool(t)
	store := postgres.NewStore(pool)
	tenantA := seedTenant(t, store, "lab-a")
	tenantB := seedTenant(t, store, "lab-b")

	repo := postgres.NewRepository[client.Client](postgres.NewGateway(pool), entity.Client)
	ctxA, ctxB := scoped(t, tenantA), scoped(t, tenantB)

	created, err := repo.Create(ctxA, postgres.Record{"name": "Acme", "tenant_id": tenantB})
	require.NoError(t, err)
	assert.Equal(t, tenantA, created.TenantID, "tenant comes from the scope, not the payload")

	_, err = repo.Get(ctxB, created.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = repo.Update(ctxB, created.ID, postgres.Record{"name": "Hijacked"})
	assert.ErrorIs(t, err, domain.ErrNotFound)

	assert.ErrorIs(t, repo.Delete(ctxB, created.ID), domain.ErrNotFound)

	got, err := repo.Get(ctxA, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "Acme", got.Name)
}

func TestIntegration_PoliciesHoldWithoutFilterInjection(t *testing.T) {
	pool := setupPool(t)
	store := postgres.NewStore(pool)
	tenantA := seedTenant(t, store, "lab-a")
	tenantB := seedTenant(t, store, "lab-b")

	gw := postgres.NewGateway(pool)
	rec, err := gw.Create(scoped(t, tenantA), entity.Client, postgres.Record{"name": "Only A"})
	require.NoError(t, err)
	id := fmt.Sprint(rec["id"])

	broken := postgres.NewGateway(pool)
	broken.DisableFilterScoping()
	ctxB := scoped(t, tenantB)

	_, err = broken.FindByID(ctxB, entity.Client, id)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	n, err := broken.Count(ctxB, entity.Client, sq.Eq{"id": id})
	require.NoError(t, err)
	assert.Zero(t, n)

	changed, err := broken.UpdateMany(ctxB, entity.Client, sq.Eq{"id": id}, postgres.Record{"name": "Hijacked"})
	require.NoError(t, err)
	assert.Zero(t, changed)
}

func TestIntegration_WriteCheckRejectsForeignTenant(t *testing.T) {
	pool := setupPool(t)
	store := postgres.NewStore(pool)
	tenantA := seedTenant(t, store, "lab-a")
	tenantB := seedTenant(t, store, "lab-b")
	ctx := context.Background()

	tx, err := pool.Begin(ctx)
	require.NoError(t, err)
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, "SELECT set_config('app.current_tenant', $1, true)", tenantB)
	require.NoError(t, err)
	_, err = tx.Exec(ctx, "INSERT INTO clients (tenant_id, name) VALUES ($1, 'Forged')", tenantA)
	require.Error(t, err, "insert for another tenant must violate WITH CHECK")
}

func TestIntegration_UndeclaredConnectionSeesNothing(t *testing.T) {
	pool := setupPool(t)
	store := postgres.NewStore(pool)
	tenantA := seedTenant(t, store, "lab-a")

	_, err := postgres.NewGateway(pool).Create(scoped(t, tenantA), entity.Client, postgres.Record{"name": "Hidden"})
	require.NoError(t, err)

	var n int64
	require.NoError(t, pool.QueryRow(context.Background(), "SELECT COUNT(*) FROM clients").Scan(&n))
	assert.Zero(t, n)
}

func TestIntegration_ConcurrentTenantsShareThePool(t *testing.T) {
	pool := setupPool(t)
	store := postgres.NewStore(pool)
	tenantA := seedTenant(t, store, "lab-a")
	tenantB := seedTenant(t, store, "lab-b")

	gw := postgres.NewGateway(pool)
	_, err := gw.Create(scoped(t, tenantA), entity.Client, postgres.Record{"name": "A1"})
	require.NoError(t, err)

	g, ctx := errgroup.WithContext(context.Background())
	for i := range 40 {
		tenantID, want := tenantA, int64(1)
		if i%2 == 1 {
			tenantID, want = tenantB, 0
		}
		g.Go(func() error {
			return tenancy.Run(ctx, tenantID, func(ctx context.Context) error {
				n, err := gw.Count(ctx, entity.Client, nil)
				if err != nil {
					return err
				}
				if n != want {
					return fmt.Errorf("tenant %s: expected %d clients, got %d", tenantID, want, n)
				}
				return nil
			})
		})
	}
	require.NoError(t, g.Wait())
}

func TestIntegration_ForeignKeysStayInsideTenant(t *testing.T) {
	pool := setupPool(t)
	store := postgres.NewStore(pool)
	tenantA := seedTenant(t, store, "lab-a")
	tenantB := seedTenant(t, store, "lab-b")
	ctxA, ctxB := scoped(t, tenantA), scoped(t, tenantB)

	gw := postgres.NewGateway(pool)
	own, err := gw.Create(ctxA, entity.Client, postgres.Record{"name": "Own"})
	require.NoError(t, err)
	foreign, err := gw.Create(ctxB, entity.Client, postgres.Record{"name": "Foreign"})
	require.NoError(t, err)

	_, err = gw.Create(ctxA, entity.Case, postgres.Record{"client_id": own["id"], "reference": "C-1"})
	require.NoError(t, err)

	_, foreignErr := gw.Create(ctxA, entity.Case, postgres.Record{"client_id": foreign["id"], "reference": "C-2"})
	require.Error(t, foreignErr, "a case must not reference another tenant's client")
	assert.ErrorIs(t, foreignErr, domain.ErrValidation)

	_, missingErr := gw.Create(ctxA, entity.Case, postgres.Record{"client_id": uuid.NewString(), "reference": "C-3"})
	require.Error(t, missingErr)
	assert.Equal(t, missingErr.Error(), foreignErr.Error(), "a foreign row must look exactly like a missing one")
}
