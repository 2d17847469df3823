package handler

import (
	"context"
	"io"
	"net/http"

	"github.com/josh-kwaku/settlement-engine/internal/logging"
	"github.com/josh-kwaku/settlement-engine/internal/service"
)

type webhookInbox interface {
	Receive(ctx context.Context, body []byte, signature string) service.Receipt
}

type WebhookHandler struct {
	inbox webhookInbox
}

func NewWebhookHandler(inbox webhookInbox) *WebhookHandler {
	return &WebhookHandler{inbox: inbox}
}

type webhookAck struct {
	Received    bool   `json:"received"`
	Status      string `json:"status"`
	ExternalRef string `json:"externalRef,omitempty"`
}

// Receive acknowledges every delivery with 200 so the gateway stops
// retrying; the outcome is reported in the body only.
func (h *WebhookHandler) Receive(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	defer func() {
		if err := recover(); err != nil {
			log.Error("panic while handling webhook", "error", err)
			RespondJSON(w, http.StatusOK, webhookAck{Received: true, Status: "error"})
		}
	}()

	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		log.Warn("failed to read webhook body", "error", err)
		RespondJSON(w, http.StatusOK, webhookAck{Received: true, Status: service.ReceiptInvalid})
		return
	}

	receipt := h.inbox.Receive(r.Context(), body, r.Header.Get("X-Webhook-Signature"))
	RespondJSON(w, http.StatusOK, webhookAck{
		Received:    true,
		Status:      receipt.Status,
		ExternalRef: receipt.ExternalRef,
	})
}
