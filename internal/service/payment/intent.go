package payment

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/josh-kwaku/settlement-engine/internal/domain"
	"github.com/josh-kwaku/settlement-engine/internal/logging"
	"github.com/josh-kwaku/settlement-engine/internal/metrics"
	"github.com/josh-kwaku/settlement-engine/internal/service/gateway"
)

type CreateIntentRequest struct {
	AccountID      uuid.UUID
	Purpose        domain.Purpose
	Amount         int64
	DurationMonths *int
	ItemID         *uuid.UUID
	ReturnURL      string
	CancelURL      string
	// Actor is recorded on the audit trail, e.g. "user:<id>".
	Actor string
}

func (r CreateIntentRequest) validate() error {
	if r.AccountID == uuid.Nil {
		return fmt.Errorf("account id required: %w", domain.ErrInvalidInput)
	}
	if r.Purpose == domain.PurposePromotion && r.ItemID == nil {
		return fmt.Errorf("promotion requires an item: %w", domain.ErrInvalidInput)
	}
	if r.Purpose != domain.PurposePromotion && r.ItemID != nil {
		return fmt.Errorf("%s takes no item: %w", r.Purpose, domain.ErrInvalidInput)
	}
	return nil
}

// CreateIntent validates the request against the catalog, persists a PENDING
// intent and asks the gateway for a checkout page. When the gateway call
// fails the PENDING intent is kept and the error wraps ErrGatewayUnavailable.
func (s *Service) CreateIntent(ctx context.Context, req CreateIntentRequest) (*domain.PaymentIntent, error) {
	ctx, span := tracer.Start(ctx, "payment.CreateIntent")
	defer span.End()
	span.SetAttributes(
		attribute.String("payment.purpose", string(req.Purpose)),
		attribute.Int64("payment.amount", req.Amount),
	)

	if err := s.catalog.Validate(req.Purpose, req.DurationMonths, req.Amount); err != nil {
		return nil, fmt.Errorf("CreateIntent: %w", err)
	}
	if err := req.validate(); err != nil {
		return nil, fmt.Errorf("CreateIntent: %w", err)
	}

	acct, err := s.accounts.GetByID(ctx, req.AccountID)
	if err != nil {
		return nil, fmt.Errorf("CreateIntent: account: %w", err)
	}
	if req.ItemID != nil {
		item, err := s.items.GetByID(ctx, *req.ItemID)
		if err != nil {
			return nil, fmt.Errorf("CreateIntent: item: %w", err)
		}
		if item.OwnerID != acct.UserID {
			return nil, fmt.Errorf("CreateIntent: item %s: %w", item.ID, domain.ErrNotFound)
		}
	}

	// Purchases are paid out of the wallet at settlement, so refuse them up
	// front when the wallet cannot cover the price today.
	if req.Purpose.RequiresDuration() && acct.Balance < req.Amount {
		return nil, fmt.Errorf("CreateIntent: balance %d, price %d: %w", acct.Balance, req.Amount, domain.ErrInsufficientFunds)
	}

	intent, err := s.persistIntent(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("CreateIntent: %w", err)
	}
	span.SetAttributes(attribute.String("payment.external_ref", intent.ExternalRef))

	log := logging.FromContext(ctx).With("external_ref", intent.ExternalRef, "intent_id", intent.ID)

	checkout, err := s.gateway.CreateCheckout(ctx, gateway.CheckoutRequest{
		ExternalRef: intent.ExternalRef,
		Amount:      intent.Amount,
		Description: intent.Description,
		ReturnURL:   firstNonEmpty(req.ReturnURL, s.opts.DefaultReturnURL),
		CancelURL:   firstNonEmpty(req.CancelURL, s.opts.DefaultCancelURL),
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "checkout creation failed")
		metrics.IntentsCreated.WithLabelValues(string(req.Purpose), "checkout_failed").Inc()
		log.Warn("checkout creation failed, intent kept pending", "error", err)

		// The caller's context may already be past its deadline.
		if recErr := s.recordCheckoutFailure(context.WithoutCancel(ctx), intent, err); recErr != nil {
			log.Error("failed to record checkout failure", "error", recErr)
		}
		if !errors.Is(err, domain.ErrGatewayUnavailable) {
			err = fmt.Errorf("%v: %w", err, domain.ErrGatewayUnavailable)
		}
		return nil, fmt.Errorf("CreateIntent: %w", err)
	}

	if err := s.storeCheckout(ctx, intent, checkout); err != nil {
		return nil, fmt.Errorf("CreateIntent: %w", err)
	}
	intent.CheckoutURL = &checkout.CheckoutURL

	metrics.IntentsCreated.WithLabelValues(string(req.Purpose), "ok").Inc()
	log.Info("payment intent created",
		"purpose", intent.Purpose,
		"amount", intent.Amount,
		"account_id", intent.AccountID,
	)
	return intent, nil
}

func (s *Service) persistIntent(ctx context.Context, req CreateIntentRequest) (*domain.PaymentIntent, error) {
	now := s.now()
	intent := &domain.PaymentIntent{
		ID:             uuid.New(),
		AccountID:      req.AccountID,
		ItemID:         req.ItemID,
		Purpose:        req.Purpose,
		Amount:         req.Amount,
		DurationMonths: req.DurationMonths,
		Status:         domain.IntentStatusPending,
		Description:    describe(req.Purpose, req.DurationMonths),
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("persistIntent: begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := s.intents.Create(ctx, tx, intent); err != nil {
		return nil, fmt.Errorf("persistIntent: %w", err)
	}
	if err := s.writeEvent(ctx, tx, intent.ID, domain.IntentEventCreated, req.Actor, map[string]any{
		"purpose":  intent.Purpose,
		"amount":   intent.Amount,
		"duration": intent.DurationMonths,
	}); err != nil {
		return nil, fmt.Errorf("persistIntent: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("persistIntent: commit: %w", err)
	}
	return intent, nil
}

func (s *Service) storeCheckout(ctx context.Context, intent *domain.PaymentIntent, checkout *gateway.Checkout) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("storeCheckout: begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := s.intents.SetCheckoutURL(ctx, tx, intent.ID, checkout.CheckoutURL); err != nil {
		return fmt.Errorf("storeCheckout: %w", err)
	}
	if err := s.writeEvent(ctx, tx, intent.ID, domain.IntentEventCheckoutCreated, "gateway", map[string]any{
		"checkoutUrl":   checkout.CheckoutURL,
		"paymentLinkId": checkout.PaymentLinkID,
	}); err != nil {
		return fmt.Errorf("storeCheckout: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("storeCheckout: commit: %w", err)
	}
	return nil
}

func (s *Service) recordCheckoutFailure(ctx context.Context, intent *domain.PaymentIntent, cause error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("recordCheckoutFailure: begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := s.writeEvent(ctx, tx, intent.ID, domain.IntentEventCheckoutFailed, "gateway", map[string]any{
		"error": cause.Error(),
	}); err != nil {
		return fmt.Errorf("recordCheckoutFailure: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("recordCheckoutFailure: commit: %w", err)
	}
	return nil
}

func (s *Service) writeEvent(ctx context.Context, tx *sql.Tx, intentID uuid.UUID, eventType domain.IntentEventType, actor string, payload map[string]any) error {
	var raw json.RawMessage
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("writeEvent: marshal payload: %w", err)
		}
		raw = b
	}
	if actor == "" {
		actor = "system"
	}
	event := &domain.IntentEvent{
		ID:        uuid.New(),
		IntentID:  intentID,
		EventType: eventType,
		Actor:     actor,
		Payload:   raw,
		CreatedAt: s.now(),
	}
	if err := s.events.Create(ctx, tx, event); err != nil {
		return fmt.Errorf("writeEvent %s: %w", eventType, err)
	}
	return nil
}

func describe(purpose domain.Purpose, months *int) string {
	switch purpose {
	case domain.PurposeMembership:
		return fmt.Sprintf("Membership %d months", derefInt(months))
	case domain.PurposePromotion:
		return fmt.Sprintf("Promotion %d months", derefInt(months))
	default:
		return "Wallet top-up"
	}
}

func derefInt(p *int) int {
	if p == nil {
		return 0
	}
	return *p
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
