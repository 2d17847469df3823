package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type IntentEventType string

const (
	IntentEventCreated              IntentEventType = "created"
	IntentEventCheckoutCreated      IntentEventType = "checkout_created"
	IntentEventCheckoutFailed       IntentEventType = "checkout_failed"
	IntentEventSucceeded            IntentEventType = "succeeded"
	IntentEventFailed               IntentEventType = "failed"
	IntentEventEntitlementApplied   IntentEventType = "entitlement_applied"
	IntentEventEntitlementShortfall IntentEventType = "entitlement_shortfall"
)

type IntentEvent struct {
	ID        uuid.UUID
	IntentID  uuid.UUID
	EventType IntentEventType
	Actor     string
	Payload   json.RawMessage
	CreatedAt time.Time
}
