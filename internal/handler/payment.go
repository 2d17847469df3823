package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/josh-kwaku/settlement-engine/internal/auth"
	"github.com/josh-kwaku/settlement-engine/internal/domain"
	"github.com/josh-kwaku/settlement-engine/internal/logging"
	"github.com/josh-kwaku/settlement-engine/internal/service/payment"
)

type paymentService interface {
	CreateIntent(ctx context.Context, req payment.CreateIntentRequest) (*domain.PaymentIntent, error)
	GetIntent(ctx context.Context, ref string) (*domain.PaymentIntent, error)
	GetIntentForAccount(ctx context.Context, ref string, accountID uuid.UUID) (*domain.PaymentIntent, error)
	Trail(ctx context.Context, intentID uuid.UUID) ([]domain.IntentEvent, error)
	Poll(ctx context.Context, ref string) (*payment.Resolution, error)
	ManualComplete(ctx context.Context, ref string) (*payment.Resolution, error)
}

type walletResolver interface {
	WalletFor(ctx context.Context, userID uuid.UUID, requested *uuid.UUID) (*domain.Account, error)
}

type PaymentHandler struct {
	payments paymentService
	wallets  walletResolver
}

func NewPaymentHandler(payments paymentService, wallets walletResolver) *PaymentHandler {
	return &PaymentHandler{payments: payments, wallets: wallets}
}

type createPaymentRequest struct {
	AccountID *uuid.UUID `json:"accountId"`
	Purpose   string     `json:"purpose"`
	Amount    int64      `json:"amount"`
	Duration  *int       `json:"duration"`
	ItemID    *uuid.UUID `json:"itemId"`
	ReturnURL string     `json:"returnUrl"`
	CancelURL string     `json:"cancelUrl"`
}

func (r createPaymentRequest) Validate() []FieldError {
	var errs []FieldError

	purpose := domain.Purpose(r.Purpose)
	if r.Purpose == "" {
		errs = append(errs, FieldError{Field: "purpose", Message: "required"})
	} else if !purpose.IsValid() {
		errs = append(errs, FieldError{Field: "purpose", Message: "must be WALLET_TOPUP, MEMBERSHIP or PROMOTION"})
	}

	if r.Amount <= 0 {
		errs = append(errs, FieldError{Field: "amount", Message: "must be greater than 0"})
	}

	if purpose.RequiresDuration() && r.Duration == nil {
		errs = append(errs, FieldError{Field: "duration", Message: "required"})
	}

	if purpose == domain.PurposePromotion && r.ItemID == nil {
		errs = append(errs, FieldError{Field: "itemId", Message: "required"})
	}

	return errs
}

type createPaymentResponse struct {
	CheckoutURL string `json:"checkoutUrl"`
	Status      string `json:"status"`
	Purpose     string `json:"purpose"`
	Duration    *int   `json:"duration"`
	ExternalRef string `json:"externalRef"`
}

type intentDTO struct {
	ExternalRef string     `json:"externalRef"`
	AccountID   uuid.UUID  `json:"accountId"`
	ItemID      *uuid.UUID `json:"itemId,omitempty"`
	Purpose     string     `json:"purpose"`
	Amount      int64      `json:"amount"`
	Duration    *int       `json:"duration"`
	Status      string     `json:"status"`
	Description string     `json:"description"`
	CheckoutURL *string    `json:"checkoutUrl"`
	CreatedAt   time.Time  `json:"createdAt"`
	SettledAt   *time.Time `json:"settledAt,omitempty"`
}

func toIntentDTO(p *domain.PaymentIntent) intentDTO {
	return intentDTO{
		ExternalRef: p.ExternalRef,
		AccountID:   p.AccountID,
		ItemID:      p.ItemID,
		Purpose:     string(p.Purpose),
		Amount:      p.Amount,
		Duration:    p.DurationMonths,
		Status:      string(p.Status),
		Description: p.Description,
		CheckoutURL: p.CheckoutURL,
		CreatedAt:   p.CreatedAt,
		SettledAt:   p.SettledAt,
	}
}

type eventDTO struct {
	Type      string          `json:"type"`
	Actor     string          `json:"actor"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
}

type statusResponse struct {
	intentDTO
	Events []eventDTO `json:"events"`
}

type resolutionResponse struct {
	Outcome   string    `json:"outcome"`
	Shortfall bool      `json:"shortfall,omitempty"`
	Intent    intentDTO `json:"intent"`
}

func toResolutionResponse(res *payment.Resolution) resolutionResponse {
	return resolutionResponse{
		Outcome:   string(res.Outcome),
		Shortfall: res.Shortfall,
		Intent:    toIntentDTO(res.Intent),
	}
}

func (h *PaymentHandler) Create(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		RespondAppError(w, ErrMissingToken, nil)
		return
	}

	var req createPaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}

	if fields := req.Validate(); len(fields) > 0 {
		RespondValidationError(w, fields)
		return
	}

	acct, err := h.wallets.WalletFor(r.Context(), userID, req.AccountID)
	if err != nil {
		log.Warn("wallet lookup failed", "error", err)
		RespondDomainError(w, err)
		return
	}

	h.create(w, r, payment.CreateIntentRequest{
		AccountID:      acct.ID,
		Purpose:        domain.Purpose(req.Purpose),
		Amount:         req.Amount,
		DurationMonths: req.Duration,
		ItemID:         req.ItemID,
		ReturnURL:      req.ReturnURL,
		CancelURL:      req.CancelURL,
		Actor:          "user:" + userID.String(),
	})
}

func (h *PaymentHandler) create(w http.ResponseWriter, r *http.Request, req payment.CreateIntentRequest) {
	p, err := h.payments.CreateIntent(r.Context(), req)
	if err != nil {
		logging.FromContext(r.Context()).Warn("payment intent creation failed", "purpose", req.Purpose, "error", err)
		RespondDomainError(w, err)
		return
	}

	var checkoutURL string
	if p.CheckoutURL != nil {
		checkoutURL = *p.CheckoutURL
	}

	w.Header().Set("Location", fmt.Sprintf("/payments/status/%s", p.ExternalRef))
	RespondSuccess(w, http.StatusCreated, createPaymentResponse{
		CheckoutURL: checkoutURL,
		Status:      string(p.Status),
		Purpose:     string(p.Purpose),
		Duration:    p.DurationMonths,
		ExternalRef: p.ExternalRef,
	})
}

func (h *PaymentHandler) Status(w http.ResponseWriter, r *http.Request) {
	p, ok := h.authorizedIntent(w, r)
	if !ok {
		return
	}

	events, err := h.payments.Trail(r.Context(), p.ID)
	if err != nil {
		logging.FromContext(r.Context()).Error("failed to load intent events", "error", err)
		RespondDomainError(w, err)
		return
	}

	resp := statusResponse{intentDTO: toIntentDTO(p), Events: make([]eventDTO, 0, len(events))}
	for _, e := range events {
		resp.Events = append(resp.Events, eventDTO{
			Type:      string(e.EventType),
			Actor:     e.Actor,
			Payload:   e.Payload,
			CreatedAt: e.CreatedAt,
		})
	}
	RespondSuccess(w, http.StatusOK, resp)
}

func (h *PaymentHandler) Poll(w http.ResponseWriter, r *http.Request) {
	p, ok := h.authorizedIntent(w, r)
	if !ok {
		return
	}

	res, err := h.payments.Poll(r.Context(), p.ExternalRef)
	if err != nil {
		logging.FromContext(r.Context()).Warn("poll failed", "external_ref", p.ExternalRef, "error", err)
		RespondDomainError(w, err)
		return
	}
	RespondSuccess(w, http.StatusOK, toResolutionResponse(res))
}

func (h *PaymentHandler) ManualComplete(w http.ResponseWriter, r *http.Request) {
	ref := r.PathValue("ref")

	res, err := h.payments.ManualComplete(r.Context(), ref)
	if err != nil {
		logging.FromContext(r.Context()).Warn("manual completion failed", "external_ref", ref, "error", err)
		RespondDomainError(w, err)
		return
	}

	logging.FromContext(r.Context()).Info("intent completed manually", "external_ref", ref, "outcome", res.Outcome)
	RespondSuccess(w, http.StatusOK, toResolutionResponse(res))
}

// authorizedIntent loads the intent named in the path. Admins see every
// intent; other callers only see intents on their own wallet.
func (h *PaymentHandler) authorizedIntent(w http.ResponseWriter, r *http.Request) (*domain.PaymentIntent, bool) {
	ctx := r.Context()
	ref := r.PathValue("ref")

	userID, ok := auth.UserIDFromContext(ctx)
	if !ok {
		RespondAppError(w, ErrMissingToken, nil)
		return nil, false
	}

	var (
		p   *domain.PaymentIntent
		err error
	)
	if auth.IsAdmin(ctx) {
		p, err = h.payments.GetIntent(ctx, ref)
	} else {
		var acct *domain.Account
		acct, err = h.wallets.WalletFor(ctx, userID, nil)
		if err == nil {
			p, err = h.payments.GetIntentForAccount(ctx, ref, acct.ID)
		}
	}
	if err != nil {
		logging.FromContext(ctx).Warn("intent lookup failed", "external_ref", ref, "error", err)
		RespondDomainError(w, err)
		return nil, false
	}
	return p, true
}
