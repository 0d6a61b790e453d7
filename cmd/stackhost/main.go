package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/riandyrn/otelchi"

	"github.com/neomorfeo/stackhost/internal/adapter/auth"
	"github.com/neomorfeo/stackhost/internal/adapter/certbot"
	"github.com/neomorfeo/stackhost/internal/adapter/compose"
	"github.com/neomorfeo/stackhost/internal/adapter/docker"
	"github.com/neomorfeo/stackhost/internal/adapter/fsm"
	"github.com/neomorfeo/stackhost/internal/adapter/nginx"
	"github.com/neomorfeo/stackhost/internal/adapter/otel"
	"github.com/neomorfeo/stackhost/internal/adapter/postgres"
	"github.com/neomorfeo/stackhost/internal/adapter/river"
	"github.com/neomorfeo/stackhost/internal/adapter/sqlite"
	"github.com/neomorfeo/stackhost/internal/app"
	"github.com/neomorfeo/stackhost/internal/config"
	"github.com/neomorfeo/stackhost/internal/domain"

	handler "github.com/neomorfeo/stackhost/internal/adapter/http"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	// --- Observability ---
	providers, err := otel.Setup(ctx, otel.ConfigFromEnv())
	if err != nil {
		return fmt.Errorf("otel: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := providers.Shutdown(shutdownCtx); err != nil {
			logger.Error("otel shutdown", "error", err)
		}
	}()

	// --- Storage ---
	db, err := otel.OpenDB(cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("database: %w", err)
	}
	defer db.Close()

	sqliteRepo, err := sqlite.NewFromDB(db)
	if err != nil {
		return fmt.Errorf("migrations: %w", err)
	}
	repo := otel.NewTracingRepository(sqliteRepo)

	alloc := sqlite.NewPortAllocator(db, cfg.PortRangeStart)
	payments := sqlite.NewPaymentStore(db)
	backups := sqlite.NewBackupStore(db)
	audit := sqlite.NewAuditStore(db)

	// --- Infrastructure adapters ---
	dbProv, err := postgres.New(cfg.TenantDBAdminDSN, logger)
	if err != nil {
		return fmt.Errorf("tenant database server: %w", err)
	}
	defer dbProv.Close()

	inspector, err := docker.NewInspector(cfg.DockerHost)
	if err != nil {
		return fmt.Errorf("docker: %w", err)
	}
	defer inspector.Close()

	builder := compose.NewBuilder(compose.DatabaseEndpoint{Host: cfg.TenantDBHost, Port: cfg.TenantDBPort})
	store := compose.NewDirStore(cfg.StacksDir)
	runtime := docker.NewComposeRuntime(cfg.StacksDir, logger)
	dumper := docker.NewPGDumper(cfg.TenantDBHost, cfg.TenantDBPort)
	proxy := nginx.New(cfg.NginxAvailableDir, cfg.NginxEnabledDir, logger)
	certs := certbot.New(logger)
	validator := fsm.New()

	// --- Application ---
	// River's client needs the workers at construction and the workers
	// need the publisher, which needs the client. The late-bound
	// publisher breaks the cycle; it is set before the client starts.
	publisher := &lateBoundPublisher{}

	prov := app.NewProvisioner(repo, validator, dbProv, builder, store, runtime, proxy, certs, publisher, logger)
	deprov := app.NewDeprovisioner(repo, alloc, dbProv, runtime, proxy, store, audit, logger)
	backupRunner := app.NewBackupRunner(repo, backups, dumper, cfg.BackupDir, logger)
	sweeper := app.NewSweeper(repo, deprov, audit, logger)

	client, err := river.Setup(ctx, db, river.Deps{
		Activator:     prov,
		Backupper:     backupRunner,
		Sweeper:       sweeper,
		Audit:         audit,
		Logger:        logger,
		SweepInterval: cfg.SweepInterval,
	})
	if err != nil {
		return fmt.Errorf("river: %w", err)
	}

	riverPub := river.NewPublisher(client)
	publisher.set(otel.NewTracingPublisher(riverPub))

	svc := app.NewTenantService(app.TenantServiceDeps{
		Repo:          repo,
		Alloc:         alloc,
		Validator:     validator,
		Provisioner:   prov,
		Deprov:        deprov,
		Backups:       backupRunner,
		BackupQueue:   riverPub,
		Payments:      payments,
		Runtime:       runtime,
		Inspector:     inspector,
		Publisher:     publisher,
		Authz:         &auth.EmailAuthorizer{},
		Audit:         audit,
		Logger:        logger,
		PaymentWindow: cfg.PaymentWindow,
		DeletionDelay: cfg.DeletionDelay,
	})

	tokens := auth.NewTokenManager(cfg.JWTSecret, cfg.JWTIssuer)

	// --- HTTP ---
	router := chi.NewMux()
	router.Use(middleware.RequestID)
	router.Use(middleware.Recoverer)
	router.Use(otelchi.Middleware("stackhost", otelchi.WithChiRoutes(router)))
	router.Use(handler.Authenticate(tokens))

	api := humachi.New(router, huma.DefaultConfig("stackhost", "0.1.0"))
	handler.NewHandler(svc, sweeper, cfg.WebhookSecret).Register(api)

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	if err := client.Start(ctx); err != nil {
		return fmt.Errorf("starting river: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("stackhost listening", "addr", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := client.Stop(shutdownCtx); err != nil {
		logger.Error("river shutdown", "error", err)
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}

	logger.Info("stopped")
	return nil
}

func newLogger(level string) *slog.Logger {
	var l slog.Level
	switch strings.ToLower(level) {
	case "debug":
		l = slog.LevelDebug
	case "warn":
		l = slog.LevelWarn
	case "error":
		l = slog.LevelError
	default:
		l = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: l}))
}

// lateBoundPublisher delegates to a publisher set after construction.
// Nothing publishes before the job client exists.
type lateBoundPublisher struct {
	mu   sync.RWMutex
	next domain.EventPublisher
}

func (p *lateBoundPublisher) set(next domain.EventPublisher) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.next = next
}

func (p *lateBoundPublisher) Publish(ctx context.Context, event domain.Event, tenant domain.Tenant) error {
	p.mu.RLock()
	next := p.next
	p.mu.RUnlock()
	if next == nil {
		return errors.New("event publisher not ready")
	}
	return next.Publish(ctx, event, tenant)
}
