package testutil

import (
	"database/sql"
	"testing"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/josh-kwaku/settlement-engine/internal/domain"
)

const TestPassword = "password123"

func SeedTestUser(t *testing.T, db *sql.DB, email, name string, role domain.Role) *domain.User {
	t.Helper()

	hash, err := bcrypt.GenerateFromPassword([]byte(TestPassword), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	u := &domain.User{
		ID:           uuid.New(),
		Email:        email,
		Name:         name,
		PasswordHash: string(hash),
		Role:         role,
		Status:       domain.UserStatusActive,
		CreatedAt:    time.Now().UTC(),
	}

	_, err = db.Exec(
		`INSERT INTO users (id, email, name, password_hash, role, status, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		u.ID, u.Email, u.Name, u.PasswordHash, u.Role, u.Status, u.CreatedAt,
	)
	if err != nil {
		t.Fatalf("seed test user %s: %v", email, err)
	}
	return u
}

// SeedTestAccount creates a wallet whose opening balance is backed by a
// DEPOSIT ledger entry, so balance == sum(entries) holds from the start.
func SeedTestAccount(t *testing.T, db *sql.DB, userID uuid.UUID, balance int64) *domain.Account {
	t.Helper()

	a := &domain.Account{
		ID:        uuid.New(),
		UserID:    userID,
		Balance:   balance,
		Version:   0,
		CreatedAt: time.Now().UTC(),
	}

	_, err := db.Exec(
		`INSERT INTO accounts (id, user_id, balance, version, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		a.ID, a.UserID, a.Balance, a.Version, a.CreatedAt,
	)
	if err != nil {
		t.Fatalf("seed test account for %s: %v", userID, err)
	}

	if balance > 0 {
		_, err = db.Exec(
			`INSERT INTO ledger_entries (id, account_id, amount, entry_type, description, balance_after, created_at)
			 VALUES ($1, $2, $3, 'DEPOSIT', 'opening balance', $3, $4)`,
			uuid.New(), a.ID, balance, a.CreatedAt,
		)
		if err != nil {
			t.Fatalf("seed opening entry for %s: %v", a.ID, err)
		}
	}
	return a
}

func SeedTestItem(t *testing.T, db *sql.DB, ownerID uuid.UUID, title string) *domain.Item {
	t.Helper()

	it := &domain.Item{
		ID:        uuid.New(),
		OwnerID:   ownerID,
		Title:     title,
		CreatedAt: time.Now().UTC(),
	}
	_, err := db.Exec(
		`INSERT INTO items (id, owner_id, title, version, created_at) VALUES ($1, $2, $3, 0, $4)`,
		it.ID, it.OwnerID, it.Title, it.CreatedAt,
	)
	if err != nil {
		t.Fatalf("seed test item %q: %v", title, err)
	}
	return it
}

func GetAccountBalance(t *testing.T, db *sql.DB, accountID uuid.UUID) int64 {
	t.Helper()

	var balance int64
	err := db.QueryRow(`SELECT balance FROM accounts WHERE id = $1`, accountID).Scan(&balance)
	if err != nil {
		t.Fatalf("get account balance %s: %v", accountID, err)
	}
	return balance
}

func SumLedgerEntries(t *testing.T, db *sql.DB, accountID uuid.UUID) int64 {
	t.Helper()

	var sum int64
	err := db.QueryRow(`SELECT COALESCE(SUM(amount), 0) FROM ledger_entries WHERE account_id = $1`, accountID).Scan(&sum)
	if err != nil {
		t.Fatalf("sum ledger entries %s: %v", accountID, err)
	}
	return sum
}

func CountLedgerEntries(t *testing.T, db *sql.DB, intentID uuid.UUID) int {
	t.Helper()

	var count int
	err := db.QueryRow(`SELECT COUNT(*) FROM ledger_entries WHERE payment_intent_id = $1`, intentID).Scan(&count)
	if err != nil {
		t.Fatalf("count ledger entries for intent %s: %v", intentID, err)
	}
	return count
}

func CountIntentEvents(t *testing.T, db *sql.DB, intentID uuid.UUID, eventType domain.IntentEventType) int {
	t.Helper()

	var count int
	err := db.QueryRow(
		`SELECT COUNT(*) FROM intent_events WHERE intent_id = $1 AND event_type = $2`,
		intentID, eventType,
	).Scan(&count)
	if err != nil {
		t.Fatalf("count %s events for intent %s: %v", eventType, intentID, err)
	}
	return count
}

func GetMembershipExpiry(t *testing.T, db *sql.DB, accountID uuid.UUID) *time.Time {
	t.Helper()

	var exp *time.Time
	if err := db.QueryRow(`SELECT membership_expires_at FROM accounts WHERE id = $1`, accountID).Scan(&exp); err != nil {
		t.Fatalf("get membership expiry %s: %v", accountID, err)
	}
	return exp
}

func GetPromotionExpiry(t *testing.T, db *sql.DB, itemID uuid.UUID) *time.Time {
	t.Helper()

	var exp *time.Time
	if err := db.QueryRow(`SELECT promotion_expires_at FROM items WHERE id = $1`, itemID).Scan(&exp); err != nil {
		t.Fatalf("get promotion expiry %s: %v", itemID, err)
	}
	return exp
}
