package main

import (
	"context"
	"database/sql"
	"log/slog"

	"github.com/josh-kwaku/settlement-engine/internal/catalog"
	"github.com/josh-kwaku/settlement-engine/internal/config"
	"github.com/josh-kwaku/settlement-engine/internal/logging"
	"github.com/josh-kwaku/settlement-engine/internal/repository"
	"github.com/josh-kwaku/settlement-engine/internal/service/entitlement"
	"github.com/josh-kwaku/settlement-engine/internal/service/gateway"
	"github.com/josh-kwaku/settlement-engine/internal/service/payment"
	"github.com/josh-kwaku/settlement-engine/internal/service/wallet"
)

type operatorEnv struct {
	cfg    *config.Operator
	db     *sql.DB
	logger *slog.Logger
}

func openEnv(ctx context.Context) (*operatorEnv, error) {
	cfg, err := config.LoadOperator()
	if err != nil {
		return nil, err
	}
	logger := logging.Init("settlectl", cfg.LogLevel, cfg.AppEnv)

	db, err := repository.NewPostgresDB(ctx, cfg.Database.URL, repository.PoolConfig{
		MaxOpenConns:     4,
		MaxIdleConns:     2,
		ConnMaxLifetimeS: cfg.Database.ConnMaxLifetimeS,
		ConnMaxIdleTimeS: cfg.Database.ConnMaxIdleTimeS,
	})
	if err != nil {
		return nil, err
	}
	return &operatorEnv{cfg: cfg, db: db, logger: logger}, nil
}

func (e *operatorEnv) Close() error { return e.db.Close() }

// payments builds the settlement service the api runs, with manual
// completion always on: settlectl already holds database credentials.
func (e *operatorEnv) payments() (*payment.Service, error) {
	var (
		prices *catalog.Catalog
		err    error
	)
	if e.cfg.Settlement.CatalogFile != "" {
		prices, err = catalog.Load(e.cfg.Settlement.CatalogFile, e.cfg.Settlement.WalletTopupMax)
	} else {
		prices, err = catalog.Default(e.cfg.Settlement.WalletTopupMax)
	}
	if err != nil {
		return nil, err
	}

	accounts := repository.NewAccountRepository(e.db)
	items := repository.NewItemRepository(e.db)

	return payment.NewService(payment.Deps{
		DB:           e.db,
		Intents:      repository.NewIntentRepository(e.db),
		Accounts:     accounts,
		Items:        items,
		Events:       repository.NewIntentEventRepository(e.db),
		Ledger:       wallet.NewStore(e.db, accounts, repository.NewLedgerRepository(e.db)),
		Entitlements: entitlement.NewApplier(accounts, items),
		Gateway: gateway.NewClient(gateway.Config{
			BaseURL:     e.cfg.Gateway.BaseURL,
			ClientID:    e.cfg.Gateway.ClientID,
			APIKey:      e.cfg.Gateway.APIKey,
			ChecksumKey: e.cfg.Gateway.ChecksumKey,
			Timeout:     e.cfg.Gateway.Timeout,
		}),
		Catalog: prices,
	}, payment.Options{
		ResolveMaxAttempts:    e.cfg.Settlement.ResolveMaxAttempts,
		ManualCompleteEnabled: true,
	}), nil
}
