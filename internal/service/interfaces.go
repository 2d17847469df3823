package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/josh-kwaku/settlement-engine/internal/domain"
	"github.com/josh-kwaku/settlement-engine/internal/service/payment"
)

type accountRepository interface {
	GetByUserID(ctx context.Context, userID uuid.UUID) (*domain.Account, error)
	CreateIfAbsent(ctx context.Context, userID uuid.UUID) (*domain.Account, error)
}

type userRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error)
}

type webhookEventRepository interface {
	Create(ctx context.Context, event *domain.WebhookEvent) error
	GetByDedupKey(ctx context.Context, key string) (*domain.WebhookEvent, error)
	Requeue(ctx context.Context, id uuid.UUID) (bool, error)
	ClaimPending(ctx context.Context, limit int, lease time.Duration) ([]domain.WebhookEvent, error)
	RecordAttempt(ctx context.Context, id uuid.UUID, status domain.WebhookEventStatus, lastErr *string) error
}

// statusResolver is the single settlement entry point every status source
// feeds into.
type statusResolver interface {
	ResolveStatus(ctx context.Context, ref, reported string, source domain.Source) (*payment.Resolution, error)
}

type staleReconciler interface {
	ListStale(ctx context.Context, minAge time.Duration, limit int) ([]domain.PaymentIntent, error)
	Reconcile(ctx context.Context, ref string) (*payment.Resolution, error)
}
