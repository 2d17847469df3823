package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/josh-kwaku/settlement-engine/internal/auth"
	"github.com/josh-kwaku/settlement-engine/internal/domain"
	"github.com/josh-kwaku/settlement-engine/internal/logging"
)

type userReader interface {
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
}

type walletProvisioner interface {
	EnsureWallet(ctx context.Context, userID uuid.UUID) (*domain.Account, error)
}

type AuthHandler struct {
	users     userReader
	wallets   walletProvisioner
	jwtSecret string
	jwtExpiry time.Duration
}

func NewAuthHandler(users userReader, wallets walletProvisioner, jwtSecret string, jwtExpiry time.Duration) *AuthHandler {
	return &AuthHandler{
		users:     users,
		wallets:   wallets,
		jwtSecret: jwtSecret,
		jwtExpiry: jwtExpiry,
	}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (r loginRequest) Validate() []FieldError {
	var errs []FieldError
	if strings.TrimSpace(r.Email) == "" {
		errs = append(errs, FieldError{Field: "email", Message: "required"})
	}
	if r.Password == "" {
		errs = append(errs, FieldError{Field: "password", Message: "required"})
	}
	return errs
}

type loginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
	AccountID uuid.UUID `json:"accountId"`
	User      userDTO   `json:"user"`
}

type userDTO struct {
	ID    uuid.UUID `json:"id"`
	Email string    `json:"email"`
	Name  string    `json:"name"`
	Role  string    `json:"role"`
}

func toUserDTO(u *domain.User) userDTO {
	return userDTO{ID: u.ID, Email: u.Email, Name: u.Name, Role: string(u.Role)}
}

// Login issues a JWT and provisions the caller's wallet on first sign-in.
// Unknown emails, wrong passwords and inactive users all get the same 401.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}
	if fields := req.Validate(); len(fields) > 0 {
		RespondValidationError(w, fields)
		return
	}

	user, err := h.users.GetByEmail(r.Context(), strings.TrimSpace(req.Email))
	if errors.Is(err, domain.ErrNotFound) {
		RespondAppError(w, ErrInvalidCredentials, nil)
		return
	}
	if err != nil {
		log.Error("user lookup failed", "error", err)
		RespondDomainError(w, err)
		return
	}

	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)) != nil ||
		user.Status != domain.UserStatusActive {
		log.Info("login rejected", "user_id", user.ID, "status", user.Status)
		RespondAppError(w, ErrInvalidCredentials, nil)
		return
	}

	acct, err := h.wallets.EnsureWallet(r.Context(), user.ID)
	if err != nil {
		log.Error("wallet provisioning failed", "user_id", user.ID, "error", err)
		RespondDomainError(w, err)
		return
	}

	token, err := auth.GenerateToken(auth.Claims{
		UserID: user.ID,
		Email:  user.Email,
		Role:   user.Role,
	}, h.jwtSecret, h.jwtExpiry)
	if err != nil {
		log.Error("token signing failed", "error", err)
		RespondAppError(w, ErrInternalError, nil)
		return
	}

	RespondSuccess(w, http.StatusOK, loginResponse{
		Token:     token,
		ExpiresAt: time.Now().UTC().Add(h.jwtExpiry),
		AccountID: acct.ID,
		User:      toUserDTO(user),
	})
}
