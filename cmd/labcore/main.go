package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	lchttp "github.com/Strob0t/LabCore/internal/adapter/http"
	lcnats "github.com/Strob0t/LabCore/internal/adapter/nats"
	"github.com/Strob0t/LabCore/internal/adapter/natskv"
	lcotel "github.com/Strob0t/LabCore/internal/adapter/otel"
	"github.com/Strob0t/LabCore/internal/adapter/postgres"
	"github.com/Strob0t/LabCore/internal/adapter/ristretto"
	"github.com/Strob0t/LabCore/internal/adapter/tiered"
	"github.com/Strob0t/LabCore/internal/config"
	"github.com/Strob0t/LabCore/internal/domain/client"
	"github.com/Strob0t/LabCore/internal/domain/entity"
	"github.com/Strob0t/LabCore/internal/logger"
	"github.com/Strob0t/LabCore/internal/middleware"
	"github.com/Strob0t/LabCore/internal/port/audit"
	"github.com/Strob0t/LabCore/internal/port/cache"
	"github.com/Strob0t/LabCore/internal/resilience"
	"github.com/Strob0t/LabCore/internal/secrets"
	"github.com/Strob0t/LabCore/internal/service"
)

func main() {
	var err error
	args := os.Args[1:]
	switch {
	case len(args) > 0 && args[0] == "admin":
		err = runAdmin(args[1:])
	case len(args) == 0 || args[0] == "serve":
		err = run()
	default:
		fmt.Fprintf(os.Stderr, "Usage: labcore [serve | admin <command>]\n")
		err = fmt.Errorf("unknown command: %s", args[0])
	}
	if err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	slog.SetDefault(logger.New(cfg.Logging))

	slog.Info("config loaded",
		"port", cfg.Server.Port,
		"log_level", cfg.Logging.Level,
		"pg_max_conns", cfg.Postgres.MaxConns,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Telemetry ---

	shutdownOTEL, err := lcotel.Setup(ctx, cfg.OTEL, cfg.Logging.Service)
	if err != nil {
		return fmt.Errorf("otel: %w", err)
	}
	defer func() { _ = shutdownOTEL(context.WithoutCancel(ctx)) }()

	metrics, err := lcotel.NewMetrics()
	if err != nil {
		return fmt.Errorf("metrics: %w", err)
	}

	// --- Infrastructure ---

	pool, err := postgres.NewPool(ctx, cfg.Postgres)
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	defer pool.Close()
	slog.Info("postgres connected")

	if err := postgres.RunMigrations(ctx, cfg.Postgres.DSN); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}
	if err := postgres.EnsurePolicies(ctx, pool); err != nil {
		return fmt.Errorf("row-level security: %w", err)
	}
	slog.Info("migrations and policies applied")

	if cfg.Tenancy.PolicyCheck {
		report, err := postgres.VerifyPolicies(ctx, pool)
		if err != nil {
			return fmt.Errorf("verify policies: %w", err)
		}
		if !report.OK() {
			return errors.New(report.Error())
		}
		if report.RoleBypassesRLS {
			slog.Warn("database role bypasses row-level security; only gateway filters isolate tenants")
		}
	}

	l1, err := ristretto.New(cfg.Cache.L1MaxSizeMB << 20)
	if err != nil {
		return fmt.Errorf("l1 cache: %w", err)
	}
	defer l1.Close()

	var (
		queue *lcnats.Queue
		l2    cache.Cache
		sink  audit.Sink = audit.Discard{}
	)
	if cfg.NATS.URL != "" {
		queue, err = lcnats.Connect(ctx, cfg.NATS.URL)
		if err != nil {
			return fmt.Errorf("nats: %w", err)
		}
		defer func() { _ = queue.Drain() }()

		kv, err := natskv.Open(ctx, queue.JetStream(), cfg.Cache.L2Bucket, cfg.Cache.L2TTL)
		if err != nil {
			return fmt.Errorf("l2 cache: %w", err)
		}
		l2 = resilience.GuardCache(kv, resilience.NewBreaker(5, 30*time.Second), "nats-kv")
		sink = lcnats.NewAuditSink(queue, cfg.NATS.AuditSubject)
	}
	memberships := tiered.New(l1, l2, cfg.Tenancy.MembershipTTL)

	// --- Services ---

	store := postgres.NewStore(pool)
	gateway := postgres.NewGateway(pool,
		postgres.WithLogger(slog.Default()),
		postgres.WithAuditSink(sink),
		postgres.WithMetrics(metrics),
	)

	directory := service.NewDirectoryService(store, memberships, cfg.Tenancy.MembershipTTL)
	directory.SetMetrics(metrics)
	if queue != nil {
		directory.SetQueue(queue)
		cancelListen, err := directory.ListenForChanges(ctx)
		if err != nil {
			return fmt.Errorf("membership listener: %w", err)
		}
		defer cancelListen()
	}

	handlers := &lchttp.Handlers{
		Tenants:   service.NewTenantService(store, directory),
		Users:     service.NewUserService(store),
		Directory: directory,
		Clients:   service.NewClientService(postgres.NewRepository[client.Client](gateway, entity.Client)),
		BodyLimit: cfg.Server.MaxRequestBytes,
		Checks: map[string]lchttp.HealthCheck{
			"postgres": pool.Ping,
		},
	}
	if queue != nil {
		handlers.Checks["nats"] = func(context.Context) error {
			if !queue.IsConnected() {
				return errors.New("disconnected")
			}
			return nil
		}
	}

	// --- Secrets ---

	loader := secrets.StaticLoader(map[string]string{secrets.JWTSecret: cfg.Auth.JWTSecret})
	if cfg.Auth.SecretFile != "" {
		loader = secrets.FileLoader(secrets.JWTSecret, cfg.Auth.SecretFile)
	}
	vault, err := secrets.NewVault(loader, secrets.JWTSecret)
	if err != nil {
		return fmt.Errorf("secrets: %w", err)
	}
	go reloadOnHangup(ctx, vault)

	// --- HTTP ---

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(lcotel.HTTPMiddleware(cfg.Logging.Service))
	r.Use(lchttp.CORS(cfg.Server.CORSOrigin))
	r.Use(lchttp.SecurityHeaders)
	r.Use(lchttp.Logger)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(cfg.Server.RequestTimeout))

	lchttp.MountRoutes(r, handlers, middleware.NewRotatingTokenVerifier(vault.Getter(secrets.JWTSecret), cfg.Auth.Issuer))

	addr := ":" + cfg.Server.Port
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("starting server", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server: %w", err)
	case <-ctx.Done():
	}
	slog.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// reloadOnHangup re-reads secrets on SIGHUP until ctx ends.
func reloadOnHangup(ctx context.Context, vault *secrets.Vault) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			if err := vault.Reload(); err != nil {
				slog.Error("secret reload failed, keeping current values", "error", err)
				continue
			}
			slog.Info("secrets reloaded", "keys", vault.Keys())
		}
	}
}
