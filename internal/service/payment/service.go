// Package payment is the settlement engine: it creates payment intents and
// turns reported gateway statuses into exactly-once wallet and entitlement
// effects.
package payment

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"

	"github.com/josh-kwaku/settlement-engine/internal/domain"
	"github.com/josh-kwaku/settlement-engine/internal/service/gateway"
	"github.com/josh-kwaku/settlement-engine/internal/service/wallet"
)

var tracer = otel.Tracer("github.com/josh-kwaku/settlement-engine/internal/service/payment")

type intentRepo interface {
	Create(ctx context.Context, tx *sql.Tx, intent *domain.PaymentIntent) error
	GetByExternalRef(ctx context.Context, ref string) (*domain.PaymentIntent, error)
	GetForUpdate(ctx context.Context, tx *sql.Tx, id uuid.UUID) (*domain.PaymentIntent, error)
	Transition(ctx context.Context, tx *sql.Tx, id uuid.UUID, status domain.IntentStatus, version int64, settledAt time.Time) error
	SetCheckoutURL(ctx context.Context, tx *sql.Tx, id uuid.UUID, url string) error
	ListPendingBefore(ctx context.Context, cutoff time.Time, limit int) ([]domain.PaymentIntent, error)
}

type accountRepo interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Account, error)
}

type itemRepo interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Item, error)
}

type eventRepo interface {
	Create(ctx context.Context, tx *sql.Tx, event *domain.IntentEvent) error
	GetByIntentID(ctx context.Context, intentID uuid.UUID) ([]domain.IntentEvent, error)
}

type ledgerStore interface {
	CreditTx(ctx context.Context, tx *sql.Tx, e wallet.Entry) (*domain.LedgerEntry, error)
	DebitTx(ctx context.Context, tx *sql.Tx, e wallet.Entry) (*domain.LedgerEntry, error)
}

type entitlementApplier interface {
	ExtendMembership(ctx context.Context, tx *sql.Tx, accountID uuid.UUID, months int, intentID uuid.UUID) (time.Time, error)
	ExtendPromotion(ctx context.Context, tx *sql.Tx, itemID uuid.UUID, months int, intentID uuid.UUID) (time.Time, error)
}

type gatewayClient interface {
	CreateCheckout(ctx context.Context, req gateway.CheckoutRequest) (*gateway.Checkout, error)
	GetStatus(ctx context.Context, externalRef string) (*gateway.Status, error)
}

type priceCatalog interface {
	Validate(purpose domain.Purpose, months *int, amount int64) error
}

type Deps struct {
	DB           *sql.DB
	Intents      intentRepo
	Accounts     accountRepo
	Items        itemRepo
	Events       eventRepo
	Ledger       ledgerStore
	Entitlements entitlementApplier
	Gateway      gatewayClient
	Catalog      priceCatalog
}

type Options struct {
	// ResolveMaxAttempts bounds how often a settlement transaction is retried
	// after a concurrency conflict.
	ResolveMaxAttempts int
	// ResolveTimeout bounds a single settlement transaction.
	ResolveTimeout        time.Duration
	RetryBackoff          time.Duration
	ManualCompleteEnabled bool
	DefaultReturnURL      string
	DefaultCancelURL      string
}

type Service struct {
	db           *sql.DB
	intents      intentRepo
	accounts     accountRepo
	items        itemRepo
	events       eventRepo
	ledger       ledgerStore
	entitlements entitlementApplier
	gateway      gatewayClient
	catalog      priceCatalog
	opts         Options
	now          func() time.Time
}

func NewService(deps Deps, opts Options) *Service {
	if opts.ResolveMaxAttempts <= 0 {
		opts.ResolveMaxAttempts = 3
	}
	if opts.ResolveTimeout <= 0 {
		opts.ResolveTimeout = 10 * time.Second
	}
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = 25 * time.Millisecond
	}
	return &Service{
		db:           deps.DB,
		intents:      deps.Intents,
		accounts:     deps.Accounts,
		items:        deps.Items,
		events:       deps.Events,
		ledger:       deps.Ledger,
		entitlements: deps.Entitlements,
		gateway:      deps.Gateway,
		catalog:      deps.Catalog,
		opts:         opts,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

func (s *Service) GetIntent(ctx context.Context, ref string) (*domain.PaymentIntent, error) {
	p, err := s.intents.GetByExternalRef(ctx, ref)
	if err != nil {
		return nil, fmt.Errorf("GetIntent: %w", err)
	}
	return p, nil
}

// GetIntentForAccount hides intents that belong to other accounts behind
// ErrNotFound.
func (s *Service) GetIntentForAccount(ctx context.Context, ref string, accountID uuid.UUID) (*domain.PaymentIntent, error) {
	p, err := s.intents.GetByExternalRef(ctx, ref)
	if err != nil {
		return nil, fmt.Errorf("GetIntentForAccount: %w", err)
	}
	if p.AccountID != accountID {
		return nil, fmt.Errorf("GetIntentForAccount: %w", domain.ErrNotFound)
	}
	return p, nil
}

// Trail returns the intent's audit events, oldest first.
func (s *Service) Trail(ctx context.Context, intentID uuid.UUID) ([]domain.IntentEvent, error) {
	events, err := s.events.GetByIntentID(ctx, intentID)
	if err != nil {
		return nil, fmt.Errorf("Trail: %w", err)
	}
	return events, nil
}

// ListStale returns PENDING intents older than minAge, oldest first.
func (s *Service) ListStale(ctx context.Context, minAge time.Duration, limit int) ([]domain.PaymentIntent, error) {
	intents, err := s.intents.ListPendingBefore(ctx, s.now().Add(-minAge), limit)
	if err != nil {
		return nil, fmt.Errorf("ListStale: %w", err)
	}
	return intents, nil
}
