// Package wallet is the ledger store: account balances and their append-only
// entries, always changed together.
package wallet

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
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Account, error)
	GetForUpdate(ctx context.Context, tx *sql.Tx, id uuid.UUID) (*domain.Account, error)
	UpdateBalance(ctx context.Context, tx *sql.Tx, id uuid.UUID, newBalance int64, newVersion int64) error
}

type ledgerRepo interface {
	Create(ctx context.Context, tx *sql.Tx, entry *domain.LedgerEntry) error
	GetByAccountID(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]domain.LedgerEntry, int, error)
}

type Store struct {
	db       *sql.DB
	accounts accountRepo
	ledger   ledgerRepo
	now      func() time.Time
}

func NewStore(db *sql.DB, accounts accountRepo, ledger ledgerRepo) *Store {
	return &Store{
		db:       db,
		accounts: accounts,
		ledger:   ledger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Entry describes one balance change. Amount is always positive; the
// direction comes from whether it is passed to Credit or Debit.
type Entry struct {
	AccountID   uuid.UUID
	Amount      int64
	Type        domain.EntryType
	IntentID    *uuid.UUID
	Description string
}

func (s *Store) Credit(ctx context.Context, e Entry) (*domain.LedgerEntry, error) {
	var out *domain.LedgerEntry
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		var err error
		out, err = s.CreditTx(ctx, tx, e)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("Credit: %w", err)
	}
	return out, nil
}

func (s *Store) Debit(ctx context.Context, e Entry) (*domain.LedgerEntry, error) {
	var out *domain.LedgerEntry
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		var err error
		out, err = s.DebitTx(ctx, tx, e)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("Debit: %w", err)
	}
	return out, nil
}

// CreditTx applies a credit inside the caller's transaction.
func (s *Store) CreditTx(ctx context.Context, tx *sql.Tx, e Entry) (*domain.LedgerEntry, error) {
	entry, err := s.apply(ctx, tx, e, e.Amount)
	if err != nil {
		return nil, fmt.Errorf("CreditTx: %w", err)
	}
	return entry, nil
}

// DebitTx applies a debit inside the caller's transaction. It returns
// ErrInsufficientFunds, without writing anything, when the locked balance
// does not cover the amount.
func (s *Store) DebitTx(ctx context.Context, tx *sql.Tx, e Entry) (*domain.LedgerEntry, error) {
	entry, err := s.apply(ctx, tx, e, -e.Amount)
	if err != nil {
		return nil, fmt.Errorf("DebitTx: %w", err)
	}
	return entry, nil
}

func (s *Store) apply(ctx context.Context, tx *sql.Tx, e Entry, delta int64) (*domain.LedgerEntry, error) {
	if e.Amount <= 0 {
		return nil, fmt.Errorf("apply: %w", domain.ErrInvalidAmount)
	}

	acct, err := s.accounts.GetForUpdate(ctx, tx, e.AccountID)
	if err != nil {
		return nil, fmt.Errorf("apply: %w", err)
	}

	newBalance := acct.Balance + delta
	if newBalance < 0 {
		return nil, fmt.Errorf("apply: balance %d, debit %d: %w", acct.Balance, e.Amount, domain.ErrInsufficientFunds)
	}

	entry := &domain.LedgerEntry{
		ID:              uuid.New(),
		AccountID:       acct.ID,
		Amount:          delta,
		EntryType:       e.Type,
		PaymentIntentID: e.IntentID,
		Description:     e.Description,
		BalanceAfter:    newBalance,
		CreatedAt:       s.now(),
	}
	if err := s.ledger.Create(ctx, tx, entry); err != nil {
		return nil, fmt.Errorf("apply: ledger entry: %w", err)
	}

	if err := s.accounts.UpdateBalance(ctx, tx, acct.ID, newBalance, acct.Version+1); err != nil {
		return nil, fmt.Errorf("apply: %w", err)
	}

	logging.FromContext(ctx).Debug("ledger entry written",
		"account_id", acct.ID,
		"entry_type", e.Type,
		"amount", delta,
		"balance_after", newBalance,
	)
	return entry, nil
}

func (s *Store) Balance(ctx context.Context, accountID uuid.UUID) (*domain.Account, error) {
	acct, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("Balance: %w", err)
	}
	return acct, nil
}

const (
	DefaultHistoryLimit = 20
	MaxHistoryLimit     = 100
)

// History returns a page of the account's entries, newest first, and the
// total entry count.
func (s *Store) History(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]domain.LedgerEntry, int, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	if limit > MaxHistoryLimit {
		limit = MaxHistoryLimit
	}
	if offset < 0 {
		offset = 0
	}
	entries, total, err := s.ledger.GetByAccountID(ctx, accountID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("History: %w", err)
	}
	return entries, total, nil
}

func (s *Store) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}
