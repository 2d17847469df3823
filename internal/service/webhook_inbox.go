package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/josh-kwaku/settlement-engine/internal/domain"
	"github.com/josh-kwaku/settlement-engine/internal/logging"
	"github.com/josh-kwaku/settlement-engine/internal/metrics"
	"github.com/josh-kwaku/settlement-engine/internal/service/gateway"
	"github.com/josh-kwaku/settlement-engine/internal/service/payment"
)

// Receipt statuses reported back to the gateway. Settled notifications carry
// the settlement outcome instead.
const (
	ReceiptRejected        = "rejected"
	ReceiptInvalid         = "invalid"
	ReceiptAlreadyReceived = "already_received"
	ReceiptUnknownRef      = "unknown_reference"
	ReceiptQueued          = "queued"
)

type Receipt struct {
	Status      string
	ExternalRef string
}

// WebhookInbox accepts gateway notifications, stores them once and settles
// them inline. Anything that fails transiently stays pending for the
// WebhookProcessor.
type WebhookInbox struct {
	webhooks  webhookEventRepository
	processor *WebhookProcessor
	secret    string
	now       func() time.Time
}

func NewWebhookInbox(webhooks webhookEventRepository, processor *WebhookProcessor, secret string) *WebhookInbox {
	return &WebhookInbox{
		webhooks:  webhooks,
		processor: processor,
		secret:    secret,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Receive never returns an error: the gateway only needs to know the
// notification arrived, and every failure is logged and counted here.
func (in *WebhookInbox) Receive(ctx context.Context, body []byte, signature string) Receipt {
	log := logging.FromContext(ctx)

	if in.secret != "" && !gateway.Verify(in.secret, body, signature) {
		metrics.WebhooksReceived.WithLabelValues(ReceiptRejected).Inc()
		log.Warn("webhook signature mismatch")
		return Receipt{Status: ReceiptRejected}
	}

	n, err := payment.ParseNotification(body)
	if err != nil {
		metrics.WebhooksReceived.WithLabelValues(ReceiptInvalid).Inc()
		log.Warn("webhook payload not understood", "error", err)
		return Receipt{Status: ReceiptInvalid}
	}

	now := in.now()
	sum := sha256.Sum256(body)
	event := domain.WebhookEvent{
		ID:             uuid.New(),
		DedupKey:       hex.EncodeToString(sum[:]),
		ExternalRef:    &n.Reference,
		ReportedStatus: n.Reported(),
		Payload:        body,
		Status:         domain.WebhookEventStatusPending,
		LastAttempt:    &now,
		CreatedAt:      now,
	}

	if err := in.webhooks.Create(ctx, &event); err != nil {
		if errors.Is(err, domain.ErrDuplicateEvent) {
			return in.redelivered(ctx, event.DedupKey, n.Reference)
		}
		// Without a stored copy the inline attempt is the only one; the
		// reconciler covers the intent if it fails.
		log.Error("failed to store webhook event", "external_ref", n.Reference, "error", err)
	}

	return in.process(ctx, event)
}

// redelivered handles a body that was stored before. Settled events are
// resolved again without touching the stored row, which reports
// alreadyTerminal. A failed event gets a fresh attempt budget.
func (in *WebhookInbox) redelivered(ctx context.Context, dedupKey, ref string) Receipt {
	log := logging.FromContext(ctx).With("external_ref", ref)

	stored, err := in.webhooks.GetByDedupKey(ctx, dedupKey)
	if err != nil {
		metrics.WebhooksReceived.WithLabelValues(ReceiptAlreadyReceived).Inc()
		log.Error("failed to load redelivered webhook event", "error", err)
		return Receipt{Status: ReceiptAlreadyReceived, ExternalRef: ref}
	}

	switch stored.Status {
	case domain.WebhookEventStatusDispatched, domain.WebhookEventStatusIgnored:
		res, err := in.processor.resolver.ResolveStatus(ctx, ref, stored.ReportedStatus, domain.SourceWebhook)
		if err != nil {
			metrics.WebhooksReceived.WithLabelValues(ReceiptAlreadyReceived).Inc()
			log.Warn("redelivered webhook not resolved", "error", err)
			return Receipt{Status: ReceiptAlreadyReceived, ExternalRef: ref}
		}
		metrics.WebhooksReceived.WithLabelValues(string(res.Outcome)).Inc()
		log.Info("duplicate webhook resolved", "outcome", res.Outcome)
		return Receipt{Status: string(res.Outcome), ExternalRef: ref}

	case domain.WebhookEventStatusFailed:
		requeued, err := in.webhooks.Requeue(ctx, stored.ID)
		if err != nil {
			log.Error("failed to requeue webhook event", "webhook_event_id", stored.ID, "error", err)
		}
		if requeued {
			stored.Status = domain.WebhookEventStatusPending
			stored.Attempts = 0
			log.Info("failed webhook event requeued by redelivery", "webhook_event_id", stored.ID)
		}
	}

	return in.process(ctx, *stored)
}

func (in *WebhookInbox) process(ctx context.Context, event domain.WebhookEvent) Receipt {
	ref := ""
	if event.ExternalRef != nil {
		ref = *event.ExternalRef
	}

	res, err := in.processor.Process(ctx, event)
	switch {
	case err == nil:
		metrics.WebhooksReceived.WithLabelValues(string(res.Outcome)).Inc()
		return Receipt{Status: string(res.Outcome), ExternalRef: ref}
	case errors.Is(err, domain.ErrNotFound):
		metrics.WebhooksReceived.WithLabelValues(ReceiptUnknownRef).Inc()
		logging.FromContext(ctx).Warn("webhook for unknown reference", "external_ref", ref)
		return Receipt{Status: ReceiptUnknownRef, ExternalRef: ref}
	default:
		metrics.WebhooksReceived.WithLabelValues(ReceiptQueued).Inc()
		return Receipt{Status: ReceiptQueued, ExternalRef: ref}
	}
}
