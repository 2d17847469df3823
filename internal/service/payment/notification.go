package payment

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/josh-kwaku/settlement-engine/internal/domain"
)

// Verdict is a reported gateway status reduced to what settlement acts on.
type Verdict int

const (
	VerdictUnknown Verdict = iota
	VerdictSuccess
	VerdictFailure
)

func (v Verdict) String() string {
	switch v {
	case VerdictSuccess:
		return "success"
	case VerdictFailure:
		return "failure"
	default:
		return "unknown"
	}
}

const successCode = "00"

var (
	successStatuses = map[string]bool{
		"PAID": true, "SUCCESS": true, "SUCCEEDED": true,
		"SUCCESSFUL": true, "COMPLETED": true, successCode: true,
	}
	failureStatuses = map[string]bool{
		"CANCELLED": true, "CANCELED": true, "FAILED": true,
		"FAILURE": true, "EXPIRED": true, "REJECTED": true,
	}
)

// Normalize maps a reported status, from any source, onto a verdict.
func Normalize(status string) Verdict {
	s := strings.ToUpper(strings.TrimSpace(status))
	switch {
	case successStatuses[s]:
		return VerdictSuccess
	case failureStatuses[s]:
		return VerdictFailure
	default:
		return VerdictUnknown
	}
}

// Notification is an inbound webhook reduced to the reference it concerns and
// the status it reports.
type Notification struct {
	Reference string
	Status    string
	Code      string
}

// Reported returns the status string to feed into resolution. An explicit,
// recognised status wins; otherwise a success code stands in for it.
func (n Notification) Reported() string {
	if Normalize(n.Status) != VerdictUnknown {
		return n.Status
	}
	if n.Code == successCode {
		return successCode
	}
	return n.Status
}

type rawNotification struct {
	OrderCode json.RawMessage  `json:"orderCode"`
	Status    json.RawMessage  `json:"status"`
	Code      json.RawMessage  `json:"code"`
	Data      *rawNotification `json:"data"`
}

// ParseNotification accepts the flat shape {orderCode, status, code} and the
// nested shape {code, data: {orderCode, status}}. A top-level reference takes
// precedence over a nested one.
func ParseNotification(body []byte) (*Notification, error) {
	var raw rawNotification
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("ParseNotification: %v: %w", err, domain.ErrInvalidInput)
	}

	n := &Notification{
		Reference: scalar(raw.OrderCode),
		Status:    scalar(raw.Status),
		Code:      scalar(raw.Code),
	}
	if raw.Data != nil {
		if n.Reference == "" {
			n.Reference = scalar(raw.Data.OrderCode)
		}
		if n.Status == "" {
			n.Status = scalar(raw.Data.Status)
		}
		if n.Code == "" {
			n.Code = scalar(raw.Data.Code)
		}
	}

	if n.Reference == "" {
		return nil, fmt.Errorf("ParseNotification: no order reference: %w", domain.ErrInvalidInput)
	}
	return n, nil
}

// scalar renders a JSON string or number as text. Anything else is empty.
func scalar(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var num json.Number
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&num); err == nil {
		return num.String()
	}
	return ""
}
