package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/josh-kwaku/settlement-engine/internal/domain"
)

const webhookEventColumns = `id, dedup_key, external_ref, reported_status, payload, status,
	attempts, last_attempt, last_error, created_at`

type WebhookEventRepository struct {
	db *sql.DB
}

func NewWebhookEventRepository(db *sql.DB) *WebhookEventRepository {
	return &WebhookEventRepository{db: db}
}

// Create stores a received notification. The row is inserted already claimed
// (last_attempt = now) so the processor leaves it to the receiving request
// until the lease runs out.
func (r *WebhookEventRepository) Create(ctx context.Context, event *domain.WebhookEvent) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO webhook_events (
			id, dedup_key, external_ref, reported_status, payload, status,
			attempts, last_attempt, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		event.ID, event.DedupKey, event.ExternalRef, event.ReportedStatus, jsonb(event.Payload),
		event.Status, event.Attempts, event.LastAttempt, event.CreatedAt,
	)
	if err != nil {
		if IsDuplicateKey(err) {
			return fmt.Errorf("Create: %w", domain.ErrDuplicateEvent)
		}
		return fmt.Errorf("Create: %w", err)
	}
	return nil
}

func (r *WebhookEventRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.WebhookEvent, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+webhookEventColumns+` FROM webhook_events WHERE id = $1`, id,
	)
	e, err := scanWebhookEvent(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetByID: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("GetByID: %w", err)
	}
	return e, nil
}

func (r *WebhookEventRepository) GetByDedupKey(ctx context.Context, key string) (*domain.WebhookEvent, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+webhookEventColumns+` FROM webhook_events WHERE dedup_key = $1`, key,
	)
	e, err := scanWebhookEvent(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetByDedupKey: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("GetByDedupKey: %w", err)
	}
	return e, nil
}

// Requeue puts a failed event back to pending with a fresh attempt budget,
// claimed by the caller. It reports false when the event was not failed.
func (r *WebhookEventRepository) Requeue(ctx context.Context, id uuid.UUID) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE webhook_events
		SET status = $1, attempts = 0, last_attempt = now(), last_error = NULL
		WHERE id = $2 AND status = $3`,
		domain.WebhookEventStatusPending, id, domain.WebhookEventStatusFailed,
	)
	if err != nil {
		return false, fmt.Errorf("Requeue: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("Requeue: rows affected: %w", err)
	}
	return rows == 1, nil
}

// ClaimPending leases up to limit pending events whose previous attempt is
// older than lease. SKIP LOCKED keeps concurrent processors off the same rows.
func (r *WebhookEventRepository) ClaimPending(ctx context.Context, limit int, lease time.Duration) ([]domain.WebhookEvent, error) {
	rows, err := r.db.QueryContext(ctx,
		`UPDATE webhook_events SET last_attempt = now()
		WHERE id IN (
			SELECT id FROM webhook_events
			WHERE status = $1
			  AND (last_attempt IS NULL OR last_attempt < now() - make_interval(secs => $2))
			ORDER BY created_at
			LIMIT $3
			FOR UPDATE SKIP LOCKED
		)
		RETURNING `+webhookEventColumns,
		domain.WebhookEventStatusPending, lease.Seconds(), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("ClaimPending: %w", err)
	}
	defer rows.Close()

	var events []domain.WebhookEvent
	for rows.Next() {
		e, err := scanWebhookEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("ClaimPending: scan: %w", err)
		}
		events = append(events, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ClaimPending: rows: %w", err)
	}
	return events, nil
}

// RecordAttempt counts one processing attempt and stores its result.
func (r *WebhookEventRepository) RecordAttempt(ctx context.Context, id uuid.UUID, status domain.WebhookEventStatus, lastErr *string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE webhook_events
		SET status = $1, attempts = attempts + 1, last_attempt = now(), last_error = $2
		WHERE id = $3`,
		status, lastErr, id,
	)
	if err != nil {
		return fmt.Errorf("RecordAttempt: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("RecordAttempt: rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("RecordAttempt: %w", domain.ErrNotFound)
	}
	return nil
}

func scanWebhookEvent(s scanner) (*domain.WebhookEvent, error) {
	var e domain.WebhookEvent
	var payload []byte
	err := s.Scan(
		&e.ID, &e.DedupKey, &e.ExternalRef, &e.ReportedStatus, &payload, &e.Status,
		&e.Attempts, &e.LastAttempt, &e.LastError, &e.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	e.Payload = json.RawMessage(payload)
	return &e, nil
}
