package audit

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/josh-kwaku/settlement-engine/internal/domain"
	"github.com/josh-kwaku/settlement-engine/internal/testutil"
)

func TestAuditor_Run(t *testing.T) {
	db, url := testutil.SetupTestDBWithURL(t)
	ctx := context.Background()

	pool, err := Connect(ctx, url)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	alice := testutil.SeedTestUser(t, db, "alice@example.com", "Alice", domain.RoleUser)
	bob := testutil.SeedTestUser(t, db, "bob@example.com", "Bob", domain.RoleUser)
	testutil.SeedTestAccount(t, db, alice.ID, 50000)
	bobAcct := testutil.SeedTestAccount(t, db, bob.ID, 0)

	report, err := New(pool).Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), report.Accounts)
	assert.True(t, report.OK())

	_, err = db.Exec(`UPDATE accounts SET balance = 700 WHERE id = $1`, bobAcct.ID)
	require.NoError(t, err)

	report, err = New(pool).Run(ctx)
	require.NoError(t, err)
	require.Len(t, report.Mismatches, 1)

	m := report.Mismatches[0]
	assert.Equal(t, bobAcct.ID, uuid.MustParse(m.AccountID))
	assert.Equal(t, int64(700), m.Balance)
	assert.Zero(t, m.LedgerSum)
	assert.Nil(t, m.LastBalance)
}
