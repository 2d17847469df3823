package payment

import (
	"context"
	"fmt"

	"github.com/josh-kwaku/settlement-engine/internal/domain"
	"github.com/josh-kwaku/settlement-engine/internal/logging"
)

// Poll asks the gateway for the intent's current status and feeds it through
// ResolveStatus. Intents that are already terminal are answered from the
// store without calling the gateway.
func (s *Service) Poll(ctx context.Context, ref string) (*Resolution, error) {
	return s.poll(ctx, ref, domain.SourcePoll)
}

func (s *Service) poll(ctx context.Context, ref string, source domain.Source) (*Resolution, error) {
	intent, err := s.intents.GetByExternalRef(ctx, ref)
	if err != nil {
		return nil, fmt.Errorf("Poll: %w", err)
	}
	if intent.Status.IsTerminal() {
		return &Resolution{Outcome: domain.OutcomeAlreadyTerminal, Intent: intent}, nil
	}

	st, err := s.gateway.GetStatus(ctx, ref)
	if err != nil {
		return nil, fmt.Errorf("Poll: %w", err)
	}
	logging.FromContext(ctx).Debug("gateway status fetched", "external_ref", ref, "gateway_status", st.Status)

	res, err := s.ResolveStatus(ctx, ref, st.Status, source)
	if err != nil {
		return nil, fmt.Errorf("Poll: %w", err)
	}
	return res, nil
}

// ManualComplete marks an intent paid without a gateway report. It is meant
// for environments with no reachable gateway and is off unless enabled.
func (s *Service) ManualComplete(ctx context.Context, ref string) (*Resolution, error) {
	if !s.opts.ManualCompleteEnabled {
		return nil, fmt.Errorf("ManualComplete: %w", domain.ErrManualCompleteDisabled)
	}
	res, err := s.ResolveStatus(ctx, ref, "SUCCESS", domain.SourceManual)
	if err != nil {
		return nil, fmt.Errorf("ManualComplete: %w", err)
	}
	return res, nil
}

// Reconcile polls one stale intent on behalf of the background reconciler.
func (s *Service) Reconcile(ctx context.Context, ref string) (*Resolution, error) {
	res, err := s.poll(ctx, ref, domain.SourceReconciler)
	if err != nil {
		return nil, fmt.Errorf("Reconcile: %w", err)
	}
	return res, nil
}
