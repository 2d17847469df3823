package entitlement_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/josh-kwaku/settlement-engine/internal/domain"
	"github.com/josh-kwaku/settlement-engine/internal/repository"
	"github.com/josh-kwaku/settlement-engine/internal/service/entitlement"
	"github.com/josh-kwaku/settlement-engine/internal/testutil"
)

var fixedNow = time.Date(2026, 2, 10, 12, 0, 0, 0, time.UTC)

func setupApplier(db *sql.DB) *entitlement.Applier {
	return entitlement.NewApplier(
		repository.NewAccountRepository(db),
		repository.NewItemRepository(db),
	).WithClock(func() time.Time { return fixedNow })
}

func inTx(t *testing.T, db *sql.DB, fn func(tx *sql.Tx) error) error {
	t.Helper()
	tx, err := db.Begin()
	require.NoError(t, err)
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func TestExtendMembership_StacksFromLaterExpiry(t *testing.T) {
	db := testutil.SetupTestDB(t)
	applier := setupApplier(db)
	ctx := context.Background()

	u := testutil.SeedTestUser(t, db, "member@test.com", "Member", domain.RoleUser)
	acct := testutil.SeedTestAccount(t, db, u.ID, 0)

	err := inTx(t, db, func(tx *sql.Tx) error {
		_, err := applier.ExtendMembership(ctx, tx, acct.ID, 3, uuid.New())
		return err
	})
	require.NoError(t, err)

	err = inTx(t, db, func(tx *sql.Tx) error {
		_, err := applier.ExtendMembership(ctx, tx, acct.ID, 1, uuid.New())
		return err
	})
	require.NoError(t, err)

	exp := testutil.GetMembershipExpiry(t, db, acct.ID)
	require.NotNil(t, exp)
	assert.True(t, fixedNow.AddDate(0, 4, 0).Equal(*exp), "got %s", exp)
}

func TestExtendMembership_PastExpiryExtendsFromNow(t *testing.T) {
	db := testutil.SetupTestDB(t)
	applier := setupApplier(db)
	ctx := context.Background()

	u := testutil.SeedTestUser(t, db, "lapsed@test.com", "Lapsed", domain.RoleUser)
	acct := testutil.SeedTestAccount(t, db, u.ID, 0)
	_, err := db.Exec(`UPDATE accounts SET membership_expires_at = $1 WHERE id = $2`, fixedNow.AddDate(-1, 0, 0), acct.ID)
	require.NoError(t, err)

	err = inTx(t, db, func(tx *sql.Tx) error {
		_, err := applier.ExtendMembership(ctx, tx, acct.ID, 1, uuid.New())
		return err
	})
	require.NoError(t, err)

	exp := testutil.GetMembershipExpiry(t, db, acct.ID)
	require.NotNil(t, exp)
	assert.True(t, fixedNow.AddDate(0, 1, 0).Equal(*exp))
}

func TestExtendPromotion(t *testing.T) {
	db := testutil.SetupTestDB(t)
	applier := setupApplier(db)
	ctx := context.Background()

	u := testutil.SeedTestUser(t, db, "promoter@test.com", "Promoter", domain.RoleUser)
	item := testutil.SeedTestItem(t, db, u.ID, "Lisbon in three days")

	var got time.Time
	err := inTx(t, db, func(tx *sql.Tx) error {
		var err error
		got, err = applier.ExtendPromotion(ctx, tx, item.ID, 3, uuid.New())
		return err
	})
	require.NoError(t, err)

	exp := testutil.GetPromotionExpiry(t, db, item.ID)
	require.NotNil(t, exp)
	assert.True(t, got.Equal(*exp))
	assert.True(t, fixedNow.AddDate(0, 3, 0).Equal(*exp))
}

func TestExtendPromotion_UnknownItem(t *testing.T) {
	db := testutil.SetupTestDB(t)
	applier := setupApplier(db)

	err := inTx(t, db, func(tx *sql.Tx) error {
		_, err := applier.ExtendPromotion(context.Background(), tx, uuid.New(), 1, uuid.New())
		return err
	})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
