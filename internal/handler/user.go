package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/josh-kwaku/settlement-engine/internal/auth"
	"github.com/josh-kwaku/settlement-engine/internal/domain"
	"github.com/josh-kwaku/settlement-engine/internal/logging"
)

type userGetter interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error)
}

type UserHandler struct {
	users   userGetter
	wallets walletResolver
}

func NewUserHandler(users userGetter, wallets walletResolver) *UserHandler {
	return &UserHandler{users: users, wallets: wallets}
}

type profileResponse struct {
	userDTO
	AccountID           uuid.UUID  `json:"accountId"`
	MembershipExpiresAt *time.Time `json:"membershipExpiresAt"`
}

// Me returns the caller's profile with their wallet account id.
func (h *UserHandler) Me(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		RespondAppError(w, ErrMissingToken, nil)
		return
	}

	user, err := h.users.GetByID(r.Context(), userID)
	if err != nil {
		logging.FromContext(r.Context()).Error("failed to get user", "error", err)
		RespondDomainError(w, err)
		return
	}
	acct, err := h.wallets.WalletFor(r.Context(), userID, nil)
	if err != nil {
		logging.FromContext(r.Context()).Error("failed to resolve wallet", "error", err)
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusOK, profileResponse{
		userDTO:             toUserDTO(user),
		AccountID:           acct.ID,
		MembershipExpiresAt: acct.MembershipExpiresAt,
	})
}
