package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/josh-kwaku/settlement-engine/internal/domain"
	"github.com/josh-kwaku/settlement-engine/internal/logging"
)

type ReconcilerConfig struct {
	Interval time.Duration
	MinAge   time.Duration
	Batch    int
}

type ReconcileSummary struct {
	Checked int
	Settled int
	Pending int
	Errors  int
}

// Reconciler polls the gateway for intents that have stayed PENDING longer
// than MinAge, covering lost webhooks and abandoned checkout pages.
type Reconciler struct {
	payments staleReconciler
	cfg      ReconcilerConfig
	logger   *slog.Logger
}

func NewReconciler(payments staleReconciler, cfg ReconcilerConfig, logger *slog.Logger) *Reconciler {
	if cfg.MinAge <= 0 {
		cfg.MinAge = 2 * time.Minute
	}
	if cfg.Batch <= 0 {
		cfg.Batch = 50
	}
	return &Reconciler{payments: payments, cfg: cfg, logger: logger}
}

// Start runs a pass every Interval until ctx is done. A zero interval
// disables the loop.
func (r *Reconciler) Start(ctx context.Context) {
	if r.cfg.Interval <= 0 {
		r.logger.Info("reconciler disabled")
		return
	}
	r.logger.Info("reconciler started", "interval", r.cfg.Interval, "min_age", r.cfg.MinAge)

	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("reconciler stopped")
			return
		case <-ticker.C:
			if _, err := r.RunOnce(ctx); err != nil {
				r.logger.Error("reconcile pass failed", "error", err)
			}
		}
	}
}

func (r *Reconciler) RunOnce(ctx context.Context) (ReconcileSummary, error) {
	var sum ReconcileSummary

	stale, err := r.payments.ListStale(ctx, r.cfg.MinAge, r.cfg.Batch)
	if err != nil {
		return sum, err
	}

	ctx = logging.WithLogger(ctx, r.logger)
	for _, intent := range stale {
		if ctx.Err() != nil {
			break
		}
		sum.Checked++

		res, err := r.payments.Reconcile(ctx, intent.ExternalRef)
		if err != nil {
			sum.Errors++
			r.logger.Warn("reconcile failed", "external_ref", intent.ExternalRef, "error", err)
			continue
		}
		switch res.Outcome {
		case domain.OutcomeAppliedSuccess, domain.OutcomeAppliedFailure, domain.OutcomeAlreadyTerminal:
			sum.Settled++
		default:
			sum.Pending++
		}
	}

	if sum.Checked > 0 {
		r.logger.Info("reconcile pass complete",
			"checked", sum.Checked,
			"settled", sum.Settled,
			"pending", sum.Pending,
			"errors", sum.Errors,
		)
	}
	return sum, nil
}
