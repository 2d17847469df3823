package domain

import (
	"time"

	"github.com/google/uuid"
)

type EntryType string

const (
	EntryTypeDeposit            EntryType = "DEPOSIT"
	EntryTypeWithdrawal         EntryType = "WITHDRAWAL"
	EntryTypeMembershipPurchase EntryType = "MEMBERSHIP_PURCHASE"
	EntryTypePromotionPurchase  EntryType = "PROMOTION_PURCHASE"
)

// LedgerEntry is an immutable balance change. Amount is signed: credits are
// positive and debits negative.
type LedgerEntry struct {
	ID              uuid.UUID
	AccountID       uuid.UUID
	Amount          int64
	EntryType       EntryType
	PaymentIntentID *uuid.UUID
	Description     string
	BalanceAfter    int64
	CreatedAt       time.Time
}
