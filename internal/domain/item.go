package domain

import (
	"time"

	"github.com/google/uuid"
)

type Item struct {
	ID                 uuid.UUID
	OwnerID            uuid.UUID
	Title              string
	PromotionExpiresAt *time.Time
	Version            int64
	CreatedAt          time.Time
}
