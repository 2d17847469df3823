package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type WebhookEventStatus string

const (
	WebhookEventStatusPending    WebhookEventStatus = "pending"
	WebhookEventStatusDispatched WebhookEventStatus = "dispatched"
	WebhookEventStatusIgnored    WebhookEventStatus = "ignored"
	WebhookEventStatusFailed     WebhookEventStatus = "failed"
)

// WebhookEvent is a gateway notification as received, kept until it has been
// fed through settlement.
type WebhookEvent struct {
	ID             uuid.UUID
	DedupKey       string
	ExternalRef    *string
	ReportedStatus string
	Payload        json.RawMessage
	Status         WebhookEventStatus
	Attempts       int
	LastAttempt    *time.Time
	LastError      *string
	CreatedAt      time.Time
}
