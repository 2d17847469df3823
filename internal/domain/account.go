package domain

import (
	"time"

	"github.com/google/uuid"
)

// Account is the wallet owned by a user. Balance is in minor currency units
// and always equals the sum of the account's ledger entries.
type Account struct {
	ID                  uuid.UUID
	UserID              uuid.UUID
	Balance             int64
	Version             int64
	MembershipExpiresAt *time.Time
	CreatedAt           time.Time
}

func (a *Account) MembershipActive(now time.Time) bool {
	return a.MembershipExpiresAt != nil && a.MembershipExpiresAt.After(now)
}
