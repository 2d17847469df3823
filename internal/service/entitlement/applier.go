// Package entitlement extends time-bounded benefits bought through settled
// payment intents.
package entitlement

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/josh-kwaku/settlement-engine/internal/domain"
	"github.com/josh-kwaku/settlement-engine/internal/logging"
)

type accountRepo interface {
	GetForUpdate(ctx context.Context, tx *sql.Tx, id uuid.UUID) (*domain.Account, error)
	UpdateMembershipExpiry(ctx context.Context, tx *sql.Tx, id uuid.UUID, expiresAt time.Time, newVersion int64) error
}

type itemRepo interface {
	GetForUpdate(ctx context.Context, tx *sql.Tx, id uuid.UUID) (*domain.Item, error)
	UpdatePromotionExpiry(ctx context.Context, tx *sql.Tx, id uuid.UUID, expiresAt time.Time, newVersion int64) error
}

// Applier is not idempotent on its own: callers run it at most once per
// intent, inside the transaction that settles the intent.
type Applier struct {
	accounts accountRepo
	items    itemRepo
	now      func() time.Time
}

func NewApplier(accounts accountRepo, items itemRepo) *Applier {
	return &Applier{
		accounts: accounts,
		items:    items,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// WithClock replaces the time source.
func (a *Applier) WithClock(now func() time.Time) *Applier {
	a.now = now
	return a
}

// NextExpiry extends from whichever is later, now or the current expiry, by
// the given number of calendar months.
func NextExpiry(now time.Time, current *time.Time, months int) time.Time {
	base := now
	if current != nil && current.After(now) {
		base = *current
	}
	return AddMonths(base, months)
}

// AddMonths moves t forward by calendar months, clamping the day to the last
// day of the target month: Jan 31 + 1 month is Feb 28 (or 29).
func AddMonths(t time.Time, months int) time.Time {
	y, m, d := t.Date()
	first := time.Date(y, m+time.Month(months), 1, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
	if last := first.AddDate(0, 1, -1).Day(); d > last {
		d = last
	}
	return first.AddDate(0, 0, d-1)
}

func (a *Applier) ExtendMembership(ctx context.Context, tx *sql.Tx, accountID uuid.UUID, months int, intentID uuid.UUID) (time.Time, error) {
	if months <= 0 {
		return time.Time{}, fmt.Errorf("ExtendMembership: months %d: %w", months, domain.ErrInvalidInput)
	}

	acct, err := a.accounts.GetForUpdate(ctx, tx, accountID)
	if err != nil {
		return time.Time{}, fmt.Errorf("ExtendMembership: %w", err)
	}

	expiry := NextExpiry(a.now(), acct.MembershipExpiresAt, months)
	if err := a.accounts.UpdateMembershipExpiry(ctx, tx, acct.ID, expiry, acct.Version+1); err != nil {
		return time.Time{}, fmt.Errorf("ExtendMembership: %w", err)
	}

	logging.FromContext(ctx).Info("membership extended",
		"account_id", acct.ID,
		"intent_id", intentID,
		"months", months,
		"expires_at", expiry,
	)
	return expiry, nil
}

func (a *Applier) ExtendPromotion(ctx context.Context, tx *sql.Tx, itemID uuid.UUID, months int, intentID uuid.UUID) (time.Time, error) {
	if months <= 0 {
		return time.Time{}, fmt.Errorf("ExtendPromotion: months %d: %w", months, domain.ErrInvalidInput)
	}

	item, err := a.items.GetForUpdate(ctx, tx, itemID)
	if err != nil {
		return time.Time{}, fmt.Errorf("ExtendPromotion: %w", err)
	}

	expiry := NextExpiry(a.now(), item.PromotionExpiresAt, months)
	if err := a.items.UpdatePromotionExpiry(ctx, tx, item.ID, expiry, item.Version+1); err != nil {
		return time.Time{}, fmt.Errorf("ExtendPromotion: %w", err)
	}

	logging.FromContext(ctx).Info("promotion extended",
		"item_id", item.ID,
		"intent_id", intentID,
		"months", months,
		"expires_at", expiry,
	)
	return expiry, nil
}
