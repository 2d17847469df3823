package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/josh-kwaku/settlement-engine/internal/domain"
)

const intentEventColumns = `id, intent_id, event_type, actor, payload, created_at`

type IntentEventRepository struct {
	db *sql.DB
}

func NewIntentEventRepository(db *sql.DB) *IntentEventRepository {
	return &IntentEventRepository{db: db}
}

func (r *IntentEventRepository) Create(ctx context.Context, tx *sql.Tx, event *domain.IntentEvent) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO intent_events (id, intent_id, event_type, actor, payload, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		event.ID, event.IntentID, event.EventType, event.Actor,
		jsonb(event.Payload), event.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("Create: %w", err)
	}
	return nil
}

func (r *IntentEventRepository) GetByIntentID(ctx context.Context, intentID uuid.UUID) ([]domain.IntentEvent, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+intentEventColumns+` FROM intent_events
		WHERE intent_id = $1 ORDER BY created_at, id`, intentID,
	)
	if err != nil {
		return nil, fmt.Errorf("GetByIntentID: %w", err)
	}
	defer rows.Close()

	var events []domain.IntentEvent
	for rows.Next() {
		e, err := scanIntentEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("GetByIntentID: scan: %w", err)
		}
		events = append(events, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("GetByIntentID: rows: %w", err)
	}
	return events, nil
}

func scanIntentEvent(s scanner) (*domain.IntentEvent, error) {
	var e domain.IntentEvent
	var payload []byte
	err := s.Scan(
		&e.ID, &e.IntentID, &e.EventType, &e.Actor,
		&payload, &e.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if payload != nil {
		e.Payload = json.RawMessage(payload)
	}
	return &e, nil
}

// jsonb passes raw JSON as text so lib/pq does not send it as bytea.
func jsonb(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}
