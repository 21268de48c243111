package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/jackc/pgx/v5/pgxpool"

	lcnats "github.com/Strob0t/LabCore/internal/adapter/nats"
	"github.com/Strob0t/LabCore/internal/adapter/postgres"
	"github.com/Strob0t/LabCore/internal/config"
	"github.com/Strob0t/LabCore/internal/domain"
	"github.com/Strob0t/LabCore/internal/domain/tenant"
	"github.com/Strob0t/LabCore/internal/domain/user"
	"github.com/Strob0t/LabCore/internal/logger"
	"github.com/Strob0t/LabCore/internal/service"
)

// runAdmin dispatches admin subcommands.
func runAdmin(args []string) error {
	if len(args) == 0 || args[0] == "help" || args[0] == "--help" {
		printAdminHelp()
		return nil
	}

	switch args[0] {
	case "create-user":
		return runAdminCreateUser(args[1:])
	case "create-tenant":
		return runAdminCreateTenant(args[1:])
	case "list-tenants":
		return runAdminListTenants(args[1:])
	case "reactivate-tenant":
		return runAdminReactivateTenant(args[1:])
	case "add-member":
		return runAdminAddMember(args[1:])
	case "list-memberships":
		return runAdminListMemberships(args[1:])
	case "verify-policies":
		return runAdminVerifyPolicies(args[1:])
	case "migrate":
		return runAdminMigrate(args[1:])
	default:
		printAdminHelp()
		return fmt.Errorf("unknown admin command: %s", args[0])
	}
}

func printAdminHelp() {
	fmt.Fprintf(os.Stderr, `Usage: labcore admin <command> [options]

Commands:
  create-user         Register a user
  create-tenant       Create a tenant with its first admin
  list-tenants        List tenants
  reactivate-tenant   Reactivate a deactivated tenant
  add-member          Grant a user a role in a tenant
  list-memberships    List the memberships of a user
  verify-policies     Check row-level security on every tenant table
  migrate             Run schema migrations (up, down, version)
  help                Show this help message

Examples:
  labcore admin create-user --email ana@lab.test --name "Ana Souza"
  labcore admin create-tenant --name "North Lab" --slug north-lab --admin-email ana@lab.test
  labcore admin add-member --tenant north-lab --email bo@lab.test --role technician
  labcore admin migrate down --steps 1
`)
}

type adminDeps struct {
	pool      *pgxpool.Pool
	tenants   *service.TenantService
	users     *service.UserService
	directory *service.DirectoryService
	cleanup   func()
}

// loadAdminDeps connects to the database and, when configured, to NATS so
// that membership changes made here reach the caches of running servers.
func loadAdminDeps(ctx context.Context) (*adminDeps, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	slog.SetDefault(logger.New(cfg.Logging))

	pool, err := postgres.NewPool(ctx, cfg.Postgres)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	store := postgres.NewStore(pool)
	directory := service.NewDirectoryService(store, nil, cfg.Tenancy.MembershipTTL)
	cleanup := pool.Close

	if cfg.NATS.URL != "" {
		queue, err := lcnats.Connect(ctx, cfg.NATS.URL)
		if err != nil {
			slog.Warn("nats unavailable, running servers keep cached memberships until expiry", "error", err)
		} else {
			directory.SetQueue(queue)
			cleanup = func() {
				_ = queue.Drain()
				pool.Close()
			}
		}
	}

	return &adminDeps{
		pool:      pool,
		tenants:   service.NewTenantService(store, directory),
		users:     service.NewUserService(store),
		directory: directory,
		cleanup:   cleanup,
	}, nil
}

// lookupTenant accepts a tenant slug or ID.
func (d *adminDeps) lookupTenant(ctx context.Context, ref string) (*tenant.Tenant, error) {
	t, err := d.tenants.GetBySlug(ctx, ref)
	if errors.Is(err, domain.ErrNotFound) {
		t, err = d.tenants.Get(ctx, ref)
	}
	if err != nil {
		return nil, fmt.Errorf("tenant %q: %w", ref, err)
	}
	return t, nil
}

func runAdminCreateUser(args []string) error {
	fs := flag.NewFlagSet("create-user", flag.ContinueOnError)
	email := fs.String("email", "", "user email address (required)")
	name := fs.String("name", "", "user display name (required)")
	external := fs.String("external-id", "", "identity provider subject")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *email == "" {
		return fmt.Errorf("--email is required")
	}
	if *name == "" {
		return fmt.Errorf("--name is required")
	}

	ctx := context.Background()
	deps, err := loadAdminDeps(ctx)
	if err != nil {
		return err
	}
	defer deps.cleanup()

	u, err := deps.users.Register(ctx, user.RegisterRequest{Email: *email, Name: *name, ExternalAuthID: *external})
	if err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	fmt.Fprintf(os.Stderr, "User created: %s (id=%s)\n", u.Email, u.ID)
	return nil
}

func runAdminCreateTenant(args []string) error {
	fs := flag.NewFlagSet("create-tenant", flag.ContinueOnError)
	name := fs.String("name", "", "tenant display name (required)")
	slug := fs.String("slug", "", "unique tenant slug (required)")
	adminEmail := fs.String("admin-email", "", "email of the first admin (required)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *name == "" || *slug == "" || *adminEmail == "" {
		return fmt.Errorf("--name, --slug and --admin-email are required")
	}

	ctx := context.Background()
	deps, err := loadAdminDeps(ctx)
	if err != nil {
		return err
	}
	defer deps.cleanup()

	admin, err := deps.users.GetByEmail(ctx, *adminEmail)
	if err != nil {
		return fmt.Errorf("admin user %s: %w", *adminEmail, err)
	}
	t, _, err := deps.tenants.Onboard(ctx, tenant.CreateRequest{Name: *name, Slug: *slug}, admin.ID)
	if err != nil {
		return fmt.Errorf("create tenant: %w", err)
	}
	fmt.Fprintf(os.Stderr, "Tenant created: %s (id=%s, admin=%s)\n", t.Slug, t.ID, admin.Email)
	return nil
}

func runAdminListTenants(args []string) error {
	fs := flag.NewFlagSet("list-tenants", flag.ContinueOnError)
	all := fs.Bool("all", false, "include deactivated tenants")
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx := context.Background()
	deps, err := loadAdminDeps(ctx)
	if err != nil {
		return err
	}
	defer deps.cleanup()

	tenants, err := deps.tenants.List(ctx, *all)
	if err != nil {
		return fmt.Errorf("list tenants: %w", err)
	}
	if len(tenants) == 0 {
		fmt.Println("No tenants found.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSLUG\tNAME\tACTIVE\tCREATED")
	for i := range tenants {
		t := &tenants[i]
		fmt.Fprintf(w, "%s\t%s\t%s\t%t\t%s\n", t.ID, t.Slug, t.Name, t.Active, t.CreatedAt.Format("2006-01-02 15:04"))
	}
	return w.Flush()
}

func runAdminReactivateTenant(args []string) error {
	fs := flag.NewFlagSet("reactivate-tenant", flag.ContinueOnError)
	ref := fs.String("tenant", "", "tenant slug or ID (required)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *ref == "" {
		return fmt.Errorf("--tenant is required")
	}

	ctx := context.Background()
	deps, err := loadAdminDeps(ctx)
	if err != nil {
		return err
	}
	defer deps.cleanup()

	t, err := deps.lookupTenant(ctx, *ref)
	if err != nil {
		return err
	}
	if err := deps.tenants.Reactivate(ctx, t.ID); err != nil {
		return fmt.Errorf("reactivate tenant: %w", err)
	}
	fmt.Fprintf(os.Stderr, "Tenant reactivated: %s\n", t.Slug)
	return nil
}

func runAdminAddMember(args []string) error {
	fs := flag.NewFlagSet("add-member", flag.ContinueOnError)
	ref := fs.String("tenant", "", "tenant slug or ID (required)")
	email := fs.String("email", "", "user email address (required)")
	role := fs.String("role", string(tenant.RoleTechnician), "membership role")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *ref == "" || *email == "" {
		return fmt.Errorf("--tenant and --email are required")
	}

	ctx := context.Background()
	deps, err := loadAdminDeps(ctx)
	if err != nil {
		return err
	}
	defer deps.cleanup()

	t, err := deps.lookupTenant(ctx, *ref)
	if err != nil {
		return err
	}
	u, err := deps.users.GetByEmail(ctx, *email)
	if err != nil {
		return fmt.Errorf("user %s: %w", *email, err)
	}
	m, err := deps.directory.Grant(ctx, t.ID, tenant.GrantRequest{UserID: u.ID, Role: tenant.Role(*role)})
	if err != nil {
		return fmt.Errorf("add member: %w", err)
	}
	fmt.Fprintf(os.Stderr, "Member added: %s is %s in %s\n", u.Email, m.Role, t.Slug)
	return nil
}

func runAdminListMemberships(args []string) error {
	fs := flag.NewFlagSet("list-memberships", flag.ContinueOnError)
	email := fs.String("email", "", "user email address (required)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *email == "" {
		return fmt.Errorf("--email is required")
	}

	ctx := context.Background()
	deps, err := loadAdminDeps(ctx)
	if err != nil {
		return err
	}
	defer deps.cleanup()

	u, err := deps.users.GetByEmail(ctx, *email)
	if err != nil {
		return fmt.Errorf("user %s: %w", *email, err)
	}
	memberships, err := deps.directory.MembershipsFor(ctx, u.ID)
	if err != nil {
		return fmt.Errorf("list memberships: %w", err)
	}
	if len(memberships) == 0 {
		fmt.Println("No memberships found.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TENANT\tSLUG\tROLE\tACTIVE\tTENANT ACTIVE")
	for i := range memberships {
		m := &memberships[i]
		fmt.Fprintf(w, "%s\t%s\t%s\t%t\t%t\n", m.TenantID, m.TenantSlug, m.Role, m.Active, m.TenantActive)
	}
	return w.Flush()
}

func runAdminVerifyPolicies(args []string) error {
	fs := flag.NewFlagSet("verify-policies", flag.ContinueOnError)
	apply := fs.Bool("apply", false, "apply missing policies before verifying")
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx := context.Background()
	deps, err := loadAdminDeps(ctx)
	if err != nil {
		return err
	}
	defer deps.cleanup()

	if *apply {
		if err := postgres.EnsurePolicies(ctx, deps.pool); err != nil {
			return err
		}
	}
	report, err := postgres.VerifyPolicies(ctx, deps.pool)
	if err != nil {
		return err
	}
	if report.RoleBypassesRLS {
		fmt.Fprintln(os.Stderr, "Warning: the connected role bypasses row-level security")
	}
	if !report.OK() {
		return errors.New(report.Error())
	}
	fmt.Fprintln(os.Stderr, "All tenant-scoped tables are protected.")
	return nil
}

func runAdminMigrate(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: labcore admin migrate <up|down|version> [--steps N]")
	}
	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	steps := fs.Int("steps", 1, "migrations to roll back")
	if err := fs.Parse(args[1:]); err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	ctx := context.Background()
	dsn := cfg.Postgres.DSN

	switch args[0] {
	case "up":
		if err := postgres.RunMigrations(ctx, dsn); err != nil {
			return err
		}
	case "down":
		if err := postgres.RollbackMigrations(ctx, dsn, *steps); err != nil {
			return err
		}
	case "version":
	default:
		return fmt.Errorf("unknown migrate command: %s", args[0])
	}

	v, err := postgres.MigrationVersion(ctx, dsn)
	if err != nil {
		return err
	}
	fmt.Println("schema version " + strconv.FormatInt(v, 10))
	return nil
}
