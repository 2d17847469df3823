// Package audit checks the ledger invariant: every account's balance equals
// the sum of its ledger entries, and its newest entry's balance_after.
package audit

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Mismatch struct {
	AccountID    string
	Balance      int64
	LedgerSum    int64
	LastBalance  *int64
	EntriesCount int64
}

type Report struct {
	Accounts   int64
	Mismatches []Mismatch
}

func (r Report) OK() bool { return len(r.Mismatches) == 0 }

type Auditor struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Auditor {
	return &Auditor{pool: pool}
}

// Connect opens a pgx pool for the audit and pings it.
func Connect(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("audit.Connect: parse config: %w", err)
	}
	cfg.MaxConns = 2

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("audit.Connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("audit.Connect: ping: %w", err)
	}
	return pool, nil
}

const mismatchQuery = `
	WITH sums AS (
		SELECT a.id, a.balance,
		       COALESCE(SUM(l.amount), 0) AS ledger_sum,
		       COUNT(l.id) AS entries
		FROM accounts a
		LEFT JOIN ledger_entries l ON l.account_id = a.id
		GROUP BY a.id, a.balance
	), latest AS (
		SELECT DISTINCT ON (account_id) account_id, balance_after
		FROM ledger_entries
		ORDER BY account_id, created_at DESC, id DESC
	)
	SELECT s.id::text, s.balance, s.ledger_sum, lt.balance_after, s.entries
	FROM sums s
	LEFT JOIN latest lt ON lt.account_id = s.id
	WHERE s.balance <> s.ledger_sum
	   OR (lt.balance_after IS NOT NULL AND lt.balance_after <> s.balance)
	ORDER BY s.id`

// Run scans every account in a single repeatable-read snapshot.
func (a *Auditor) Run(ctx context.Context) (Report, error) {
	tx, err := a.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly})
	if err != nil {
		return Report{}, fmt.Errorf("audit.Run: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	var report Report
	if err := tx.QueryRow(ctx, `SELECT COUNT(*) FROM accounts`).Scan(&report.Accounts); err != nil {
		return Report{}, fmt.Errorf("audit.Run: count accounts: %w", err)
	}

	rows, err := tx.Query(ctx, mismatchQuery)
	if err != nil {
		return Report{}, fmt.Errorf("audit.Run: query: %w", err)
	}
	report.Mismatches, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (Mismatch, error) {
		var m Mismatch
		err := row.Scan(&m.AccountID, &m.Balance, &m.LedgerSum, &m.LastBalance, &m.EntriesCount)
		return m, err
	})
	if err != nil {
		return Report{}, fmt.Errorf("audit.Run: scan: %w", err)
	}
	return report, nil
}
