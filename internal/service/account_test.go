package service

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/josh-kwaku/settlement-engine/internal/domain"
	"github.com/josh-kwaku/settlement-engine/internal/repository"
	"github.com/josh-kwaku/settlement-engine/internal/testutil"
)

func TestEnsureWallet(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := NewAccountService(repository.NewAccountRepository(db), repository.NewUserRepository(db))
	ctx := context.Background()

	u := testutil.SeedTestUser(t, db, "wallet@test.com", "Wallet", domain.RoleUser)

	first, err := svc.EnsureWallet(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, u.ID, first.UserID)
	assert.Zero(t, first.Balance)

	second, err := svc.EnsureWallet(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
}

func TestEnsureWallet_UnknownUser(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := NewAccountService(repository.NewAccountRepository(db), repository.NewUserRepository(db))

	_, err := svc.EnsureWallet(context.Background(), uuid.New())
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestWalletFor(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := NewAccountService(repository.NewAccountRepository(db), repository.NewUserRepository(db))
	ctx := context.Background()

	u := testutil.SeedTestUser(t, db, "owner@test.com", "Owner", domain.RoleUser)
	acct := testutil.SeedTestAccount(t, db, u.ID, 100)

	got, err := svc.WalletFor(ctx, u.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, acct.ID, got.ID)

	got, err = svc.WalletFor(ctx, u.ID, &acct.ID)
	require.NoError(t, err)
	assert.Equal(t, acct.ID, got.ID)

	other := uuid.New()
	_, err = svc.WalletFor(ctx, u.ID, &other)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
