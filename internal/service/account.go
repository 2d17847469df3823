package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/josh-kwaku/settlement-engine/internal/domain"
	"github.com/josh-kwaku/settlement-engine/internal/logging"
)

type AccountService struct {
	accounts accountRepository
	users    userRepository
}

func NewAccountService(accounts accountRepository, users userRepository) *AccountService {
	return &AccountService{accounts: accounts, users: users}
}

// EnsureWallet returns the user's wallet account, creating it with a zero
// balance on first use.
func (s *AccountService) EnsureWallet(ctx context.Context, userID uuid.UUID) (*domain.Account, error) {
	acct, err := s.accounts.GetByUserID(ctx, userID)
	if err == nil {
		return acct, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("EnsureWallet: %w", err)
	}

	if _, err := s.users.GetByID(ctx, userID); err != nil {
		return nil, fmt.Errorf("EnsureWallet: %w", err)
	}

	acct, err = s.accounts.CreateIfAbsent(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("EnsureWallet: %w", err)
	}

	logging.FromContext(ctx).Info("wallet account provisioned", "account_id", acct.ID, "user_id", userID)
	return acct, nil
}

// WalletFor resolves the account a request acts on. A requested account id
// that is not the caller's own wallet is reported as not found.
func (s *AccountService) WalletFor(ctx context.Context, userID uuid.UUID, requested *uuid.UUID) (*domain.Account, error) {
	acct, err := s.EnsureWallet(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("WalletFor: %w", err)
	}
	if requested != nil && *requested != acct.ID {
		return nil, fmt.Errorf("WalletFor: account %s: %w", *requested, domain.ErrNotFound)
	}
	return acct, nil
}
