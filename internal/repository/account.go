package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/josh-kwaku/settlement-engine/internal/domain"
)

const accountColumns = `id, user_id, balance, version, membership_expires_at, created_at`

type AccountRepository struct {
	db *sql.DB
}

func NewAccountRepository(db *sql.DB) *AccountRepository {
	return &AccountRepository{db: db}
}

func (r *AccountRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id,
	)
	a, err := scanAccount(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetByID: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("GetByID: %w", err)
	}
	return a, nil
}

func (r *AccountRepository) GetByUserID(ctx context.Context, userID uuid.UUID) (*domain.Account, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE user_id = $1`, userID,
	)
	a, err := scanAccount(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetByUserID: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("GetByUserID: %w", err)
	}
	return a, nil
}

// CreateIfAbsent inserts a zero-balance account for the user unless one
// already exists, and returns whichever row is stored.
func (r *AccountRepository) CreateIfAbsent(ctx context.Context, userID uuid.UUID) (*domain.Account, error) {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO accounts (id, user_id, balance, version, created_at)
		VALUES ($1, $2, 0, 0, $3)
		ON CONFLICT (user_id) DO NOTHING`,
		uuid.New(), userID, time.Now().UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("CreateIfAbsent: %w", err)
	}
	a, err := r.GetByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("CreateIfAbsent: %w", err)
	}
	return a, nil
}

func (r *AccountRepository) GetForUpdate(ctx context.Context, tx *sql.Tx, id uuid.UUID) (*domain.Account, error) {
	row := tx.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE id = $1 FOR UPDATE`, id,
	)
	a, err := scanAccount(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetForUpdate: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("GetForUpdate: %w", err)
	}
	return a, nil
}

func (r *AccountRepository) UpdateBalance(ctx context.Context, tx *sql.Tx, id uuid.UUID, newBalance int64, newVersion int64) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE accounts SET balance = $1, version = $2 WHERE id = $3 AND version = $4`,
		newBalance, newVersion, id, newVersion-1,
	)
	if err != nil {
		return fmt.Errorf("UpdateBalance: %w", err)
	}
	return expectOneRow("UpdateBalance", res)
}

func (r *AccountRepository) UpdateMembershipExpiry(ctx context.Context, tx *sql.Tx, id uuid.UUID, expiresAt time.Time, newVersion int64) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE accounts SET membership_expires_at = $1, version = $2 WHERE id = $3 AND version = $4`,
		expiresAt, newVersion, id, newVersion-1,
	)
	if err != nil {
		return fmt.Errorf("UpdateMembershipExpiry: %w", err)
	}
	return expectOneRow("UpdateMembershipExpiry", res)
}

func expectOneRow(op string, res sql.Result) error {
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: rows affected: %w", op, err)
	}
	if rows == 0 {
		return fmt.Errorf("%s: %w", op, domain.ErrVersionConflict)
	}
	return nil
}

func scanAccount(s scanner) (*domain.Account, error) {
	var a domain.Account
	err := s.Scan(
		&a.ID, &a.UserID, &a.Balance, &a.Version,
		&a.MembershipExpiresAt, &a.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &a, nil
}
