package payment

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/josh-kwaku/settlement-engine/internal/domain"
	"github.com/josh-kwaku/settlement-engine/internal/logging"
	"github.com/josh-kwaku/settlement-engine/internal/metrics"
	"github.com/josh-kwaku/settlement-engine/internal/repository"
	"github.com/josh-kwaku/settlement-engine/internal/service/wallet"
)

type Resolution struct {
	Outcome domain.Outcome
	Intent  *domain.PaymentIntent
	// Shortfall is set when the intent settled SUCCESS but the wallet could
	// not pay for the entitlement.
	Shortfall bool
}

// ResolveStatus feeds one reported status for an intent through settlement.
// It is safe to call concurrently and repeatedly for the same reference:
// only the caller that moves the intent out of PENDING applies side effects,
// everyone else gets OutcomeAlreadyTerminal.
func (s *Service) ResolveStatus(ctx context.Context, ref, reported string, source domain.Source) (*Resolution, error) {
	ctx, span := tracer.Start(ctx, "payment.ResolveStatus")
	defer span.End()
	span.SetAttributes(
		attribute.String("payment.external_ref", ref),
		attribute.String("payment.reported_status", reported),
		attribute.String("payment.source", string(source)),
	)

	ctx = logging.With(ctx, "external_ref", ref, "source", source)
	log := logging.FromContext(ctx)

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("ResolveStatus: %w", err)
	}

	intent, err := s.intents.GetByExternalRef(ctx, ref)
	if err != nil {
		return nil, fmt.Errorf("ResolveStatus: %w", err)
	}
	if intent.Status.IsTerminal() {
		return finish(span, source, &Resolution{Outcome: domain.OutcomeAlreadyTerminal, Intent: intent}), nil
	}

	verdict := Normalize(reported)
	if verdict == VerdictUnknown {
		log.Info("unrecognised status ignored", "reported_status", reported)
		return finish(span, source, &Resolution{Outcome: domain.OutcomeIgnored, Intent: intent}), nil
	}

	var lastErr error
	for attempt := 1; attempt <= s.opts.ResolveMaxAttempts; attempt++ {
		res, err := s.settle(ctx, intent, verdict, reported, source)
		if err == nil {
			return finish(span, source, res), nil
		}
		if !isConflict(err) {
			span.RecordError(err)
			span.SetStatus(codes.Error, "settlement failed")
			return nil, fmt.Errorf("ResolveStatus: %w", err)
		}

		lastErr = err
		if attempt == s.opts.ResolveMaxAttempts {
			break
		}
		metrics.ResolveRetries.Inc()
		log.Warn("settlement conflict, retrying", "attempt", attempt, "error", err)

		// No transaction is open between attempts, so the caller may leave here.
		select {
		case <-ctx.Done():
			span.RecordError(ctx.Err())
			span.SetStatus(codes.Error, "settlement retry abandoned")
			return nil, fmt.Errorf("ResolveStatus: retry after %d attempts: %w", attempt, ctx.Err())
		case <-time.After(time.Duration(attempt) * s.opts.RetryBackoff):
		}
	}

	span.RecordError(lastErr)
	span.SetStatus(codes.Error, "settlement conflict")
	return nil, fmt.Errorf("ResolveStatus: %d attempts: %v: %w", s.opts.ResolveMaxAttempts, lastErr, domain.ErrConflict)
}

func finish(span trace.Span, source domain.Source, res *Resolution) *Resolution {
	span.SetAttributes(
		attribute.String("payment.outcome", string(res.Outcome)),
		attribute.Bool("payment.shortfall", res.Shortfall),
	)
	metrics.SettlementOutcomes.WithLabelValues(string(source), string(res.Outcome)).Inc()
	return res
}

// settle runs one attempt of the transition and its side effects in a single
// transaction. The transaction is detached from caller cancellation so a
// disconnecting client cannot abort it half way.
func (s *Service) settle(ctx context.Context, intent *domain.PaymentIntent, verdict Verdict, reported string, source domain.Source) (*Resolution, error) {
	txCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.opts.ResolveTimeout)
	defer cancel()

	tx, err := s.db.BeginTx(txCtx, nil)
	if err != nil {
		return nil, fmt.Errorf("settle: begin tx: %w", err)
	}
	defer tx.Rollback()

	locked, err := s.intents.GetForUpdate(txCtx, tx, intent.ID)
	if err != nil {
		return nil, fmt.Errorf("settle: %w", err)
	}
	if locked.Status.IsTerminal() {
		return &Resolution{Outcome: domain.OutcomeAlreadyTerminal, Intent: locked}, nil
	}

	now := s.now()
	status, eventType, outcome := domain.IntentStatusFailed, domain.IntentEventFailed, domain.OutcomeAppliedFailure
	if verdict == VerdictSuccess {
		status, eventType, outcome = domain.IntentStatusSuccess, domain.IntentEventSucceeded, domain.OutcomeAppliedSuccess
	}

	if err := s.intents.Transition(txCtx, tx, locked.ID, status, locked.Version, now); err != nil {
		return nil, fmt.Errorf("settle: %w", err)
	}
	if err := s.writeEvent(txCtx, tx, locked.ID, eventType, "source:"+string(source), map[string]any{
		"reportedStatus": reported,
	}); err != nil {
		return nil, fmt.Errorf("settle: %w", err)
	}

	res := &Resolution{Outcome: outcome, Intent: locked}
	if verdict == VerdictSuccess {
		shortfall, err := s.dispatch(txCtx, tx, locked)
		if err != nil {
			return nil, fmt.Errorf("settle: %w", err)
		}
		res.Shortfall = shortfall
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("settle: commit: %w", err)
	}

	locked.Status = status
	locked.Version++
	locked.SettledAt = &now
	locked.UpdatedAt = now

	logging.FromContext(ctx).Info("payment intent settled",
		"intent_id", locked.ID,
		"status", status,
		"purpose", locked.Purpose,
		"amount", locked.Amount,
		"shortfall", res.Shortfall,
	)
	return res, nil
}

// dispatch applies the side effect of a successful intent. It reports true
// when the wallet could not pay for a purchase; that is recorded and does not
// fail the settlement.
func (s *Service) dispatch(ctx context.Context, tx *sql.Tx, intent *domain.PaymentIntent) (bool, error) {
	switch intent.Purpose {
	case domain.PurposeWalletTopup:
		_, err := s.ledger.CreditTx(ctx, tx, wallet.Entry{
			AccountID:   intent.AccountID,
			Amount:      intent.Amount,
			Type:        domain.EntryTypeDeposit,
			IntentID:    &intent.ID,
			Description: fmt.Sprintf("Wallet top-up #%s", intent.ExternalRef),
		})
		if err != nil {
			return false, fmt.Errorf("dispatch: credit: %w", err)
		}
		return false, nil

	case domain.PurposeMembership, domain.PurposePromotion:
		return s.purchase(ctx, tx, intent)

	default:
		return false, fmt.Errorf("dispatch: purpose %q: %w", intent.Purpose, domain.ErrInvalidInput)
	}
}

func (s *Service) purchase(ctx context.Context, tx *sql.Tx, intent *domain.PaymentIntent) (bool, error) {
	if intent.DurationMonths == nil {
		return false, fmt.Errorf("purchase: no duration on %s intent: %w", intent.Purpose, domain.ErrInvalidInput)
	}
	months := *intent.DurationMonths

	entryType := domain.EntryTypeMembershipPurchase
	if intent.Purpose == domain.PurposePromotion {
		entryType = domain.EntryTypePromotionPurchase
	}

	_, err := s.ledger.DebitTx(ctx, tx, wallet.Entry{
		AccountID:   intent.AccountID,
		Amount:      intent.Amount,
		Type:        entryType,
		IntentID:    &intent.ID,
		Description: fmt.Sprintf("%s #%s", intent.Description, intent.ExternalRef),
	})
	if errors.Is(err, domain.ErrInsufficientFunds) {
		metrics.EntitlementShortfalls.WithLabelValues(string(intent.Purpose)).Inc()
		logging.FromContext(ctx).Warn("entitlement not applied, wallet cannot cover purchase",
			"intent_id", intent.ID,
			"purpose", intent.Purpose,
			"amount", intent.Amount,
		)
		if err := s.writeEvent(ctx, tx, intent.ID, domain.IntentEventEntitlementShortfall, "system", map[string]any{
			"amount": intent.Amount,
			"reason": "insufficient wallet balance",
		}); err != nil {
			return false, fmt.Errorf("purchase: %w", err)
		}
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("purchase: debit: %w", err)
	}

	var expiry time.Time
	if intent.Purpose == domain.PurposeMembership {
		expiry, err = s.entitlements.ExtendMembership(ctx, tx, intent.AccountID, months, intent.ID)
	} else {
		if intent.ItemID == nil {
			return false, fmt.Errorf("purchase: promotion without item: %w", domain.ErrInvalidInput)
		}
		expiry, err = s.entitlements.ExtendPromotion(ctx, tx, *intent.ItemID, months, intent.ID)
	}
	if err != nil {
		return false, fmt.Errorf("purchase: %w", err)
	}

	if err := s.writeEvent(ctx, tx, intent.ID, domain.IntentEventEntitlementApplied, "system", map[string]any{
		"months":    months,
		"expiresAt": expiry,
	}); err != nil {
		return false, fmt.Errorf("purchase: %w", err)
	}
	return false, nil
}

func isConflict(err error) bool {
	return errors.Is(err, domain.ErrVersionConflict) || repository.IsRetryable(err)
}
