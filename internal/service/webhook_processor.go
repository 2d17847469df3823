package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/josh-kwaku/settlement-engine/internal/domain"
	"github.com/josh-kwaku/settlement-engine/internal/logging"
	"github.com/josh-kwaku/settlement-engine/internal/service/payment"
)

type WebhookProcessorConfig struct {
	Interval    time.Duration
	MaxAttempts int
	// Lease is how long a claimed event is left alone before another
	// processor may pick it up again.
	Lease time.Duration
	Batch int
}

// WebhookProcessor feeds stored gateway notifications into settlement and
// retries the ones that hit a transient error.
type WebhookProcessor struct {
	webhooks webhookEventRepository
	resolver statusResolver
	cfg      WebhookProcessorConfig
	logger   *slog.Logger
}

func NewWebhookProcessor(webhooks webhookEventRepository, resolver statusResolver, cfg WebhookProcessorConfig, logger *slog.Logger) *WebhookProcessor {
	if cfg.Interval <= 0 {
		cfg.Interval = 2 * time.Second
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.Lease <= 0 {
		cfg.Lease = 30 * time.Second
	}
	if cfg.Batch <= 0 {
		cfg.Batch = 10
	}
	return &WebhookProcessor{
		webhooks: webhooks,
		resolver: resolver,
		cfg:      cfg,
		logger:   logger,
	}
}

func (p *WebhookProcessor) Start(ctx context.Context) {
	p.logger.Info("webhook processor started", "interval", p.cfg.Interval, "max_attempts", p.cfg.MaxAttempts)

	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("webhook processor stopped")
			return
		case <-ticker.C:
			p.poll(ctx)
		}
	}
}

func (p *WebhookProcessor) poll(ctx context.Context) {
	events, err := p.webhooks.ClaimPending(ctx, p.cfg.Batch, p.cfg.Lease)
	if err != nil {
		p.logger.Error("failed to claim pending webhook events", "error", err)
		return
	}

	for _, event := range events {
		if _, err := p.Process(logging.WithLogger(ctx, p.logger), event); err != nil {
			p.logger.Warn("webhook event not settled",
				"webhook_event_id", event.ID,
				"attempts", event.Attempts+1,
				"error", err,
			)
		}
	}
}

// Process runs one attempt of a stored notification and records the result
// on the event. The returned error is the settlement error, if any, after it
// has been recorded.
func (p *WebhookProcessor) Process(ctx context.Context, event domain.WebhookEvent) (*payment.Resolution, error) {
	log := logging.FromContext(ctx).With("webhook_event_id", event.ID)

	if event.ExternalRef == nil || *event.ExternalRef == "" {
		p.record(ctx, event.ID, domain.WebhookEventStatusFailed, errors.New("notification carries no reference"))
		return nil, fmt.Errorf("Process: %w", domain.ErrInvalidInput)
	}

	res, err := p.resolver.ResolveStatus(ctx, *event.ExternalRef, event.ReportedStatus, domain.SourceWebhook)
	switch {
	case err == nil:
		status := domain.WebhookEventStatusDispatched
		if res.Outcome == domain.OutcomeIgnored {
			status = domain.WebhookEventStatusIgnored
		}
		p.record(ctx, event.ID, status, nil)
		log.Info("webhook event settled", "external_ref", *event.ExternalRef, "outcome", res.Outcome)
		return res, nil

	case errors.Is(err, domain.ErrNotFound):
		p.record(ctx, event.ID, domain.WebhookEventStatusFailed, err)
		return nil, fmt.Errorf("Process: %w", err)

	default:
		status := domain.WebhookEventStatusPending
		if event.Attempts+1 >= p.cfg.MaxAttempts {
			status = domain.WebhookEventStatusFailed
			log.Error("webhook event gave up", "external_ref", *event.ExternalRef, "attempts", event.Attempts+1, "error", err)
		}
		p.record(ctx, event.ID, status, err)
		return nil, fmt.Errorf("Process: %w", err)
	}
}

func (p *WebhookProcessor) record(ctx context.Context, id uuid.UUID, status domain.WebhookEventStatus, cause error) {
	var lastErr *string
	if cause != nil {
		msg := cause.Error()
		lastErr = &msg
	}
	// Recording must survive a caller that has already gone away.
	if err := p.webhooks.RecordAttempt(context.WithoutCancel(ctx), id, status, lastErr); err != nil {
		logging.FromContext(ctx).Error("failed to record webhook attempt", "webhook_event_id", id, "error", err)
	}
}
