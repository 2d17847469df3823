package domain

import (
	"time"

	"github.com/google/uuid"
)

type Purpose string

const (
	PurposeWalletTopup Purpose = "WALLET_TOPUP"
	PurposeMembership  Purpose = "MEMBERSHIP"
	PurposePromotion   Purpose = "PROMOTION"
)

func (p Purpose) IsValid() bool {
	switch p {
	case PurposeWalletTopup, PurposeMembership, PurposePromotion:
		return true
	}
	return false
}

// RequiresDuration reports whether intents of this purpose buy a time-bounded entitlement.
func (p Purpose) RequiresDuration() bool {
	return p == PurposeMembership || p == PurposePromotion
}

type IntentStatus string

const (
	IntentStatusPending IntentStatus = "PENDING"
	IntentStatusSuccess IntentStatus = "SUCCESS"
	IntentStatusFailed  IntentStatus = "FAILED"
)

func (s IntentStatus) IsTerminal() bool {
	return s == IntentStatusSuccess || s == IntentStatusFailed
}

type PaymentIntent struct {
	ID             uuid.UUID
	ExternalRef    string
	AccountID      uuid.UUID
	ItemID         *uuid.UUID
	Purpose        Purpose
	Amount         int64
	DurationMonths *int
	Status         IntentStatus
	Description    string
	CheckoutURL    *string
	Version        int64
	CreatedAt      time.Time
	UpdatedAt      time.Time
	SettledAt      *time.Time
}

// Outcome is the result of feeding a status report into settlement.
type Outcome string

const (
	OutcomeAlreadyTerminal Outcome = "already_terminal"
	OutcomeAppliedSuccess  Outcome = "applied_success"
	OutcomeAppliedFailure  Outcome = "applied_failure"
	OutcomeIgnored         Outcome = "ignored"
)

// Source identifies which path delivered a status report.
type Source string

const (
	SourceWebhook    Source = "webhook"
	SourcePoll       Source = "poll"
	SourceManual     Source = "manual"
	SourceReconciler Source = "reconciler"
)
