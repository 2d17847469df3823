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

const itemColumns = `id, owner_id, title, promotion_expires_at, version, created_at`

type ItemRepository struct {
	db *sql.DB
}

func NewItemRepository(db *sql.DB) *ItemRepository {
	return &ItemRepository{db: db}
}

func (r *ItemRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Item, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+itemColumns+` FROM items WHERE id = $1`, id,
	)
	it, err := scanItem(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetByID: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("GetByID: %w", err)
	}
	return it, nil
}

func (r *ItemRepository) GetForUpdate(ctx context.Context, tx *sql.Tx, id uuid.UUID) (*domain.Item, error) {
	row := tx.QueryRowContext(ctx,
		`SELECT `+itemColumns+` FROM items WHERE id = $1 FOR UPDATE`, id,
	)
	it, err := scanItem(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetForUpdate: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("GetForUpdate: %w", err)
	}
	return it, nil
}

func (r *ItemRepository) UpdatePromotionExpiry(ctx context.Context, tx *sql.Tx, id uuid.UUID, expiresAt time.Time, newVersion int64) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE items SET promotion_expires_at = $1, version = $2 WHERE id = $3 AND version = $4`,
		expiresAt, newVersion, id, newVersion-1,
	)
	if err != nil {
		return fmt.Errorf("UpdatePromotionExpiry: %w", err)
	}
	return expectOneRow("UpdatePromotionExpiry", res)
}

func scanItem(s scanner) (*domain.Item, error) {
	var it domain.Item
	err := s.Scan(
		&it.ID, &it.OwnerID, &it.Title, &it.PromotionExpiresAt,
		&it.Version, &it.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &it, nil
}
