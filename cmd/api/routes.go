package main

import (
	"database/sql"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/josh-kwaku/settlement-engine/api"
	"github.com/josh-kwaku/settlement-engine/internal/config"
	"github.com/josh-kwaku/settlement-engine/internal/domain"
	"github.com/josh-kwaku/settlement-engine/internal/handler"
	"github.com/josh-kwaku/settlement-engine/internal/middleware"
	"github.com/josh-kwaku/settlement-engine/internal/repository"
	"github.com/josh-kwaku/settlement-engine/internal/service"
	"github.com/josh-kwaku/settlement-engine/internal/service/payment"
	"github.com/josh-kwaku/settlement-engine/internal/service/wallet"
)

type routerDeps struct {
	cfg         *config.Config
	db          *sql.DB
	users       *repository.UserRepository
	payments    *payment.Service
	wallets     *service.AccountService
	ledger      *wallet.Store
	inbox       *service.WebhookInbox
	idempotency *repository.IdempotencyRepository
}

func newRouter(d routerDeps) http.Handler {
	authH := handler.NewAuthHandler(d.users, d.wallets, d.cfg.JWTSecret, d.cfg.JWTExpiry)
	userH := handler.NewUserHandler(d.users, d.wallets)
	paymentH := handler.NewPaymentHandler(d.payments, d.wallets)
	walletH := handler.NewWalletHandler(d.wallets, d.ledger, paymentH, d.cfg.Settlement.CurrencyExponent)
	webhookH := handler.NewWebhookHandler(d.inbox)
	healthH := handler.NewHealthHandler(map[string]handler.Check{
		"database": d.db.PingContext,
	})

	authed := middleware.Auth(d.cfg.JWTSecret)
	admin := func(h http.HandlerFunc) http.Handler {
		return authed(middleware.RequireRole(domain.RoleAdmin)(h))
	}
	user := func(h http.HandlerFunc) http.Handler {
		return authed(h)
	}
	// Idempotency needs the caller id, so it runs inside Auth.
	once := func(h http.HandlerFunc) http.Handler {
		return authed(middleware.Idempotency(d.idempotency)(h))
	}

	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", healthH.Liveness)
	mux.HandleFunc("GET /health/ready", healthH.Readiness)
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /openapi.yaml", handler.ServeSpec(api.Spec))
	mux.HandleFunc("GET /docs", handler.ServeDocs())

	mux.HandleFunc("POST /auth/login", authH.Login)
	mux.Handle("GET /users/me", user(userH.Me))

	mux.HandleFunc("POST /payments/webhook", webhookH.Receive)
	mux.Handle("POST /payments", once(paymentH.Create))
	mux.Handle("GET /payments/status/{ref}", user(paymentH.Status))
	mux.Handle("GET /payments/poll/{ref}", user(paymentH.Poll))
	mux.Handle("POST /payments/manual-complete/{ref}", admin(paymentH.ManualComplete))

	mux.Handle("GET /wallet/balance", user(walletH.Balance))
	mux.Handle("GET /wallet/transactions", user(walletH.Transactions))
	mux.Handle("POST /wallet/deposit", once(walletH.Deposit))
	mux.Handle("GET /admin/users/{userId}/wallet/balance", admin(walletH.UserBalance))
	mux.Handle("GET /admin/users/{userId}/wallet/transactions", admin(walletH.UserTransactions))

	return middleware.RequestID(middleware.Logging(middleware.Metrics(middleware.Recovery(mux))))
}
