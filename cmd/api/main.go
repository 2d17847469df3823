package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/josh-kwaku/settlement-engine/internal/catalog"
	"github.com/josh-kwaku/settlement-engine/internal/config"
	"github.com/josh-kwaku/settlement-engine/internal/logging"
	"github.com/josh-kwaku/settlement-engine/internal/repository"
	"github.com/josh-kwaku/settlement-engine/internal/service"
	"github.com/josh-kwaku/settlement-engine/internal/service/entitlement"
	"github.com/josh-kwaku/settlement-engine/internal/service/gateway"
	"github.com/josh-kwaku/settlement-engine/internal/service/payment"
	"github.com/josh-kwaku/settlement-engine/internal/service/wallet"
	"github.com/josh-kwaku/settlement-engine/internal/telemetry"
	"github.com/josh-kwaku/settlement-engine/migrations"
)

func main() {
	if err := run(); err != nil {
		slog.Error("api exited", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := logging.Init(cfg.ServiceName, cfg.LogLevel, cfg.AppEnv)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := telemetry.InitTracer(ctx, cfg.ServiceName, cfg.OTLPEndpoint)
	if err != nil {
		return err
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracer(flushCtx); err != nil {
			logger.Warn("tracer shutdown failed", "error", err)
		}
	}()

	db, err := connectDB(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()

	applied, err := repository.Migrate(ctx, db, migrations.FS)
	if err != nil {
		return err
	}
	if len(applied) > 0 {
		logger.Info("migrations applied", "names", applied)
	}

	prices, err := loadCatalog(cfg.Settlement)
	if err != nil {
		return err
	}

	users := repository.NewUserRepository(db)
	accounts := repository.NewAccountRepository(db)
	items := repository.NewItemRepository(db)
	intents := repository.NewIntentRepository(db)
	events := repository.NewIntentEventRepository(db)
	ledger := repository.NewLedgerRepository(db)
	webhooks := repository.NewWebhookEventRepository(db)
	idempotency := repository.NewIdempotencyRepository(db)

	store := wallet.NewStore(db, accounts, ledger)
	payments := payment.NewService(payment.Deps{
		DB:           db,
		Intents:      intents,
		Accounts:     accounts,
		Items:        items,
		Events:       events,
		Ledger:       store,
		Entitlements: entitlement.NewApplier(accounts, items),
		Gateway: gateway.NewClient(gateway.Config{
			BaseURL:     cfg.Gateway.BaseURL,
			ClientID:    cfg.Gateway.ClientID,
			APIKey:      cfg.Gateway.APIKey,
			ChecksumKey: cfg.Gateway.ChecksumKey,
			Timeout:     cfg.Gateway.Timeout,
		}),
		Catalog: prices,
	}, payment.Options{
		ResolveMaxAttempts:    cfg.Settlement.ResolveMaxAttempts,
		ManualCompleteEnabled: cfg.Settlement.ManualCompleteEnabled,
		DefaultReturnURL:      cfg.Gateway.ReturnURL,
		DefaultCancelURL:      cfg.Gateway.CancelURL,
	})

	processor := service.NewWebhookProcessor(webhooks, payments, service.WebhookProcessorConfig{
		Interval:    cfg.Worker.WebhookPollInterval,
		MaxAttempts: cfg.Worker.WebhookMaxAttempts,
	}, logger)
	reconciler := service.NewReconciler(payments, service.ReconcilerConfig{
		Interval: cfg.Worker.ReconcileInterval,
		MinAge:   cfg.Worker.ReconcileMinAge,
		Batch:    cfg.Worker.ReconcileBatch,
	}, logger)

	var workers sync.WaitGroup
	workers.Add(2)
	go func() { defer workers.Done(); processor.Start(ctx) }()
	go func() { defer workers.Done(); reconciler.Start(ctx) }()

	handler := newRouter(routerDeps{
		cfg:         cfg,
		db:          db,
		users:       users,
		payments:    payments,
		wallets:     service.NewAccountService(accounts, users),
		ledger:      store,
		inbox:       service.NewWebhookInbox(webhooks, processor, cfg.WebhookSecret),
		idempotency: idempotency,
	})

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           otelhttp.NewHandler(handler, "settlement-api"),
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("server started", "addr", addr, "version", telemetry.Version)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serveErr <- err
		}
	}()

	select {
	case err := <-serveErr:
		stop()
		workers.Wait()
		return fmt.Errorf("server: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	workers.Wait()
	logger.Info("server stopped")
	return nil
}

// connectDB retries for half a minute; under docker compose the api can
// start before Postgres accepts connections.
func connectDB(ctx context.Context, cfg config.DatabaseConfig) (*sql.DB, error) {
	return repository.NewPostgresDB(ctx, cfg.URL, repository.PoolConfig{
		MaxOpenConns:     cfg.MaxOpenConns,
		MaxIdleConns:     cfg.MaxIdleConns,
		ConnMaxLifetimeS: cfg.ConnMaxLifetimeS,
		ConnMaxIdleTimeS: cfg.ConnMaxIdleTimeS,
		ConnectAttempts:  30,
	})
}

func loadCatalog(cfg config.SettlementConfig) (*catalog.Catalog, error) {
	if cfg.CatalogFile != "" {
		return catalog.Load(cfg.CatalogFile, cfg.WalletTopupMax)
	}
	return catalog.Default(cfg.WalletTopupMax)
}
