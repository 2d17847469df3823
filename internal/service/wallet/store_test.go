package wallet_test

import (
	"context"
	"database/sql"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/josh-kwaku/settlement-engine/internal/domain"
	"github.com/josh-kwaku/settlement-engine/internal/repository"
	"github.com/josh-kwaku/settlement-engine/internal/service/wallet"
	"github.com/josh-kwaku/settlement-engine/internal/testutil"
)

func setupStore(t *testing.T, db *sql.DB) *wallet.Store {
	t.Helper()
	return wallet.NewStore(db, repository.NewAccountRepository(db), repository.NewLedgerRepository(db))
}

func seedAccount(t *testing.T, db *sql.DB, email string, balance int64) *domain.Account {
	t.Helper()
	u := testutil.SeedTestUser(t, db, email, "Wallet Owner", domain.RoleUser)
	return testutil.SeedTestAccount(t, db, u.ID, balance)
}

func TestCredit(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := setupStore(t, db)
	ctx := context.Background()

	acct := seedAccount(t, db, "credit@test.com", 1000)

	entry, err := store.Credit(ctx, wallet.Entry{
		AccountID:   acct.ID,
		Amount:      500,
		Type:        domain.EntryTypeDeposit,
		Description: "top-up",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(500), entry.Amount)
	assert.Equal(t, int64(1500), entry.BalanceAfter)
	assert.Equal(t, int64(1500), testutil.GetAccountBalance(t, db, acct.ID))
	assert.Equal(t, int64(1500), testutil.SumLedgerEntries(t, db, acct.ID))
}

func TestDebit_InsufficientFundsLeavesStateUnchanged(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := setupStore(t, db)
	ctx := context.Background()

	acct := seedAccount(t, db, "guard@test.com", 1000)

	_, err := store.Debit(ctx, wallet.Entry{
		AccountID: acct.ID,
		Amount:    1001,
		Type:      domain.EntryTypeWithdrawal,
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInsufficientFunds)

	assert.Equal(t, int64(1000), testutil.GetAccountBalance(t, db, acct.ID))
	assert.Equal(t, int64(1000), testutil.SumLedgerEntries(t, db, acct.ID))

	_, total, err := store.History(ctx, acct.ID, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, total, "only the opening entry")
}

func TestDebit_ExactBalance(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := setupStore(t, db)
	ctx := context.Background()

	acct := seedAccount(t, db, "exact@test.com", 1000)

	entry, err := store.Debit(ctx, wallet.Entry{
		AccountID: acct.ID,
		Amount:    1000,
		Type:      domain.EntryTypeWithdrawal,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(-1000), entry.Amount)
	assert.Zero(t, entry.BalanceAfter)
	assert.Zero(t, testutil.GetAccountBalance(t, db, acct.ID))
}

func TestApply_RejectsNonPositiveAmount(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := setupStore(t, db)
	ctx := context.Background()

	acct := seedAccount(t, db, "zero@test.com", 0)

	_, err := store.Credit(ctx, wallet.Entry{AccountID: acct.ID, Amount: 0, Type: domain.EntryTypeDeposit})
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)

	_, err = store.Debit(ctx, wallet.Entry{AccountID: acct.ID, Amount: -5, Type: domain.EntryTypeWithdrawal})
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)
}

func TestCredit_UnknownAccount(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := setupStore(t, db)

	_, err := store.Credit(context.Background(), wallet.Entry{
		AccountID: uuid.New(),
		Amount:    100,
		Type:      domain.EntryTypeDeposit,
	})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestConcurrentCreditsAndDebits_PreserveInvariant(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := setupStore(t, db)
	ctx := context.Background()

	acct := seedAccount(t, db, "concurrent@test.com", 5000)

	const workers = 20
	var wg sync.WaitGroup
	results := make(chan error, workers)

	for i := range workers {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			var err error
			if idx%2 == 0 {
				_, err = store.Credit(ctx, wallet.Entry{AccountID: acct.ID, Amount: 100, Type: domain.EntryTypeDeposit})
			} else {
				_, err = store.Debit(ctx, wallet.Entry{AccountID: acct.ID, Amount: 300, Type: domain.EntryTypeWithdrawal})
			}
			results <- err
		}(i)
	}

	wg.Wait()
	close(results)

	for err := range results {
		assert.NoError(t, err)
	}

	// 10 credits of 100 and 10 debits of 300
	assert.Equal(t, int64(3000), testutil.GetAccountBalance(t, db, acct.ID))
	assert.Equal(t, testutil.GetAccountBalance(t, db, acct.ID), testutil.SumLedgerEntries(t, db, acct.ID))
}

func TestConcurrentOverdraft_OnlyOneDebitWins(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := setupStore(t, db)
	ctx := context.Background()

	acct := seedAccount(t, db, "overdraft@test.com", 1000)

	var wg sync.WaitGroup
	results := make(chan error, 2)

	for range 2 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.Debit(ctx, wallet.Entry{AccountID: acct.ID, Amount: 700, Type: domain.EntryTypeWithdrawal})
			results <- err
		}()
	}

	wg.Wait()
	close(results)

	var successes, failures int
	for err := range results {
		if err == nil {
			successes++
		} else {
			assert.ErrorIs(t, err, domain.ErrInsufficientFunds)
			failures++
		}
	}

	assert.Equal(t, 1, successes)
	assert.Equal(t, 1, failures)
	assert.Equal(t, int64(300), testutil.GetAccountBalance(t, db, acct.ID))
	assert.Equal(t, int64(300), testutil.SumLedgerEntries(t, db, acct.ID))
}

func TestHistory_NewestFirstWithPaging(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := setupStore(t, db)
	ctx := context.Background()

	acct := seedAccount(t, db, "history@test.com", 0)

	for _, amt := range []int64{100, 200, 300} {
		_, err := store.Credit(ctx, wallet.Entry{AccountID: acct.ID, Amount: amt, Type: domain.EntryTypeDeposit})
		require.NoError(t, err)
	}

	entries, total, err := store.History(ctx, acct.ID, 2, 0)
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, entries, 2)
	assert.Equal(t, int64(600), entries[0].BalanceAfter)
	assert.Equal(t, int64(300), entries[1].BalanceAfter)

	entries, _, err = store.History(ctx, acct.ID, 2, 2)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, int64(100), entries[0].Amount)
}
