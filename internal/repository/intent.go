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

const intentColumns = `id, external_ref, account_id, item_id, purpose, amount,
	duration_months, status, description, checkout_url, version,
	created_at, updated_at, settled_at`

type IntentRepository struct {
	db *sql.DB
}

func NewIntentRepository(db *sql.DB) *IntentRepository {
	return &IntentRepository{db: db}
}

// Create inserts the intent and fills in the external reference drawn from
// payment_intent_ref_seq.
func (r *IntentRepository) Create(ctx context.Context, tx *sql.Tx, intent *domain.PaymentIntent) error {
	err := tx.QueryRowContext(ctx,
		`INSERT INTO payment_intents (
			id, account_id, item_id, purpose, amount, duration_months,
			status, description, version, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING external_ref`,
		intent.ID, intent.AccountID, intent.ItemID, intent.Purpose, intent.Amount,
		intent.DurationMonths, intent.Status, intent.Description, intent.Version,
		intent.CreatedAt, intent.UpdatedAt,
	).Scan(&intent.ExternalRef)
	if err != nil {
		return fmt.Errorf("Create: %w", err)
	}
	return nil
}

func (r *IntentRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.PaymentIntent, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+intentColumns+` FROM payment_intents WHERE id = $1`, id,
	)
	p, err := scanIntent(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetByID: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("GetByID: %w", err)
	}
	return p, nil
}

func (r *IntentRepository) GetByExternalRef(ctx context.Context, ref string) (*domain.PaymentIntent, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+intentColumns+` FROM payment_intents WHERE external_ref = $1`, ref,
	)
	p, err := scanIntent(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetByExternalRef: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("GetByExternalRef: %w", err)
	}
	return p, nil
}

func (r *IntentRepository) GetForUpdate(ctx context.Context, tx *sql.Tx, id uuid.UUID) (*domain.PaymentIntent, error) {
	row := tx.QueryRowContext(ctx,
		`SELECT `+intentColumns+` FROM payment_intents WHERE id = $1 FOR UPDATE`, id,
	)
	p, err := scanIntent(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetForUpdate: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("GetForUpdate: %w", err)
	}
	return p, nil
}

// Transition moves a PENDING intent to a terminal status. It only succeeds
// against the version that was read under lock.
func (r *IntentRepository) Transition(ctx context.Context, tx *sql.Tx, id uuid.UUID, status domain.IntentStatus, version int64, settledAt time.Time) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE payment_intents
		SET status = $1, version = version + 1, settled_at = $2, updated_at = $2
		WHERE id = $3 AND version = $4 AND status = $5`,
		status, settledAt, id, version, domain.IntentStatusPending,
	)
	if err != nil {
		return fmt.Errorf("Transition: %w", err)
	}
	return expectOneRow("Transition", res)
}

func (r *IntentRepository) SetCheckoutURL(ctx context.Context, tx *sql.Tx, id uuid.UUID, url string) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE payment_intents SET checkout_url = $1, updated_at = now() WHERE id = $2`,
		url, id,
	)
	if err != nil {
		return fmt.Errorf("SetCheckoutURL: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("SetCheckoutURL: rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("SetCheckoutURL: %w", domain.ErrNotFound)
	}
	return nil
}

// ListPendingBefore returns the oldest PENDING intents created before cutoff.
func (r *IntentRepository) ListPendingBefore(ctx context.Context, cutoff time.Time, limit int) ([]domain.PaymentIntent, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+intentColumns+` FROM payment_intents
		WHERE status = $1 AND created_at < $2 ORDER BY created_at LIMIT $3`,
		domain.IntentStatusPending, cutoff, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("ListPendingBefore: %w", err)
	}
	defer rows.Close()

	var intents []domain.PaymentIntent
	for rows.Next() {
		p, err := scanIntent(rows)
		if err != nil {
			return nil, fmt.Errorf("ListPendingBefore: scan: %w", err)
		}
		intents = append(intents, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ListPendingBefore: rows: %w", err)
	}
	return intents, nil
}

func scanIntent(s scanner) (*domain.PaymentIntent, error) {
	var p domain.PaymentIntent
	var itemID uuid.NullUUID
	var duration sql.NullInt32

	err := s.Scan(
		&p.ID, &p.ExternalRef, &p.AccountID, &itemID, &p.Purpose, &p.Amount,
		&duration, &p.Status, &p.Description, &p.CheckoutURL, &p.Version,
		&p.CreatedAt, &p.UpdatedAt, &p.SettledAt,
	)
	if err != nil {
		return nil, err
	}

	if itemID.Valid {
		p.ItemID = &itemID.UUID
	}
	if duration.Valid {
		d := int(duration.Int32)
		p.DurationMonths = &d
	}
	return &p, nil
}
