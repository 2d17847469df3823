package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/josh-kwaku/settlement-engine/internal/auth"
	"github.com/josh-kwaku/settlement-engine/internal/catalog"
	"github.com/josh-kwaku/settlement-engine/internal/domain"
	"github.com/josh-kwaku/settlement-engine/internal/logging"
	"github.com/josh-kwaku/settlement-engine/internal/service/payment"
	"github.com/josh-kwaku/settlement-engine/internal/service/wallet"
)

type ledgerReader interface {
	History(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]domain.LedgerEntry, int, error)
}

type WalletHandler struct {
	wallets  walletResolver
	ledger   ledgerReader
	payments *PaymentHandler
	exponent int32
}

func NewWalletHandler(wallets walletResolver, ledger ledgerReader, payments *PaymentHandler, exponent int32) *WalletHandler {
	return &WalletHandler{wallets: wallets, ledger: ledger, payments: payments, exponent: exponent}
}

type balanceResponse struct {
	AccountID           uuid.UUID  `json:"accountId"`
	Balance             int64      `json:"balance"`
	BalanceFormatted    string     `json:"balanceFormatted"`
	MembershipExpiresAt *time.Time `json:"membershipExpiresAt"`
	MembershipActive    bool       `json:"membershipActive"`
}

type entryDTO struct {
	ID           uuid.UUID  `json:"id"`
	Amount       int64      `json:"amount"`
	Type         string     `json:"type"`
	IntentID     *uuid.UUID `json:"paymentIntentId,omitempty"`
	Description  string     `json:"description"`
	BalanceAfter int64      `json:"balanceAfter"`
	CreatedAt    time.Time  `json:"createdAt"`
}

type transactionsResponse struct {
	Entries []entryDTO `json:"entries"`
	Total   int        `json:"total"`
	Limit   int        `json:"limit"`
	Offset  int        `json:"offset"`
}

type depositRequest struct {
	Amount    int64  `json:"amount"`
	ReturnURL string `json:"returnUrl"`
	CancelURL string `json:"cancelUrl"`
}

func (r depositRequest) Validate() []FieldError {
	var errs []FieldError
	if r.Amount <= 0 {
		errs = append(errs, FieldError{Field: "amount", Message: "must be greater than 0"})
	}
	return errs
}

func (h *WalletHandler) callerWallet(w http.ResponseWriter, r *http.Request) (*domain.Account, uuid.UUID, bool) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		RespondAppError(w, ErrMissingToken, nil)
		return nil, uuid.Nil, false
	}
	acct, err := h.wallets.WalletFor(r.Context(), userID, nil)
	if err != nil {
		logging.FromContext(r.Context()).Error("wallet lookup failed", "error", err)
		RespondDomainError(w, err)
		return nil, uuid.Nil, false
	}
	return acct, userID, true
}

// userWallet resolves the wallet named by the {userId} path value for the
// admin views.
func (h *WalletHandler) userWallet(w http.ResponseWriter, r *http.Request) (*domain.Account, bool) {
	userID, err := uuid.Parse(r.PathValue("userId"))
	if err != nil {
		RespondValidationError(w, []FieldError{{Field: "userId", Message: "must be a UUID"}})
		return nil, false
	}
	acct, err := h.wallets.WalletFor(r.Context(), userID, nil)
	if err != nil {
		logging.FromContext(r.Context()).Warn("wallet lookup failed", "target_user_id", userID, "error", err)
		RespondDomainError(w, err)
		return nil, false
	}
	return acct, true
}

func (h *WalletHandler) Balance(w http.ResponseWriter, r *http.Request) {
	acct, _, ok := h.callerWallet(w, r)
	if !ok {
		return
	}
	h.writeBalance(w, acct)
}

// UserBalance is the admin view of another user's balance.
func (h *WalletHandler) UserBalance(w http.ResponseWriter, r *http.Request) {
	acct, ok := h.userWallet(w, r)
	if !ok {
		return
	}
	h.writeBalance(w, acct)
}

func (h *WalletHandler) writeBalance(w http.ResponseWriter, acct *domain.Account) {
	RespondSuccess(w, http.StatusOK, balanceResponse{
		AccountID:           acct.ID,
		Balance:             acct.Balance,
		BalanceFormatted:    catalog.FormatAmount(acct.Balance, h.exponent),
		MembershipExpiresAt: acct.MembershipExpiresAt,
		MembershipActive:    acct.MembershipActive(time.Now().UTC()),
	})
}

func (h *WalletHandler) Transactions(w http.ResponseWriter, r *http.Request) {
	acct, _, ok := h.callerWallet(w, r)
	if !ok {
		return
	}
	h.writeTransactions(w, r, acct)
}

// UserTransactions is the admin view of another user's ledger.
func (h *WalletHandler) UserTransactions(w http.ResponseWriter, r *http.Request) {
	acct, ok := h.userWallet(w, r)
	if !ok {
		return
	}
	h.writeTransactions(w, r, acct)
}

func (h *WalletHandler) writeTransactions(w http.ResponseWriter, r *http.Request, acct *domain.Account) {
	limit, fields := queryInt(r, "limit", wallet.DefaultHistoryLimit)
	offset, more := queryInt(r, "offset", 0)
	if fields = append(fields, more...); len(fields) > 0 {
		RespondValidationError(w, fields)
		return
	}

	limit = min(max(limit, 1), wallet.MaxHistoryLimit)

	entries, total, err := h.ledger.History(r.Context(), acct.ID, limit, offset)
	if err != nil {
		logging.FromContext(r.Context()).Error("failed to load transactions", "error", err)
		RespondDomainError(w, err)
		return
	}

	resp := transactionsResponse{
		Entries: make([]entryDTO, 0, len(entries)),
		Total:   total,
		Limit:   limit,
		Offset:  offset,
	}
	for _, e := range entries {
		resp.Entries = append(resp.Entries, entryDTO{
			ID:           e.ID,
			Amount:       e.Amount,
			Type:         string(e.EntryType),
			IntentID:     e.PaymentIntentID,
			Description:  e.Description,
			BalanceAfter: e.BalanceAfter,
			CreatedAt:    e.CreatedAt,
		})
	}
	RespondSuccess(w, http.StatusOK, resp)
}

// Deposit starts a wallet top-up; the balance changes only once the
// resulting intent settles.
func (h *WalletHandler) Deposit(w http.ResponseWriter, r *http.Request) {
	acct, userID, ok := h.callerWallet(w, r)
	if !ok {
		return
	}

	var req depositRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}
	if fields := req.Validate(); len(fields) > 0 {
		RespondValidationError(w, fields)
		return
	}

	h.payments.create(w, r, payment.CreateIntentRequest{
		AccountID: acct.ID,
		Purpose:   domain.PurposeWalletTopup,
		Amount:    req.Amount,
		ReturnURL: req.ReturnURL,
		CancelURL: req.CancelURL,
		Actor:     "user:" + userID.String(),
	})
}

func queryInt(r *http.Request, key string, def int) (int, []FieldError) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return def, []FieldError{{Field: key, Message: "must be a non-negative integer"}}
	}
	return v, nil
}
