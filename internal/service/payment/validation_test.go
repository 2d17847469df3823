package payment

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/josh-kwaku/settlement-engine/internal/catalog"
	"github.com/josh-kwaku/settlement-engine/internal/domain"
)

func intPtr(v int) *int { return &v }

func TestNormalize(t *testing.T) {
	tests := []struct {
		in   string
		want Verdict
	}{
		{"PAID", VerdictSuccess},
		{"paid", VerdictSuccess},
		{" Success ", VerdictSuccess},
		{"SUCCEEDED", VerdictSuccess},
		{"SUCCESSFUL", VerdictSuccess},
		{"COMPLETED", VerdictSuccess},
		{"00", VerdictSuccess},
		{"CANCELLED", VerdictFailure},
		{"canceled", VerdictFailure},
		{"FAILED", VerdictFailure},
		{"EXPIRED", VerdictFailure},
		{"REJECTED", VerdictFailure},
		{"PENDING", VerdictUnknown},
		{"PROCESSING", VerdictUnknown},
		{"", VerdictUnknown},
	}
	for _, tc := range tests {
		t.Run(tc.in, func(t *testing.T) {
			assert.Equal(t, tc.want, Normalize(tc.in))
		})
	}
}

func TestParseNotification(t *testing.T) {
	tests := []struct {
		name         string
		body         string
		wantRef      string
		wantReported string
		wantErr      error
	}{
		{
			name:         "flat with numeric order code",
			body:         `{"orderCode": 100001, "status": "PAID"}`,
			wantRef:      "100001",
			wantReported: "PAID",
		},
		{
			name:         "flat with string order code",
			body:         `{"orderCode": "100002", "status": "CANCELLED", "code": "01"}`,
			wantRef:      "100002",
			wantReported: "CANCELLED",
		},
		{
			name:         "nested with success code only",
			body:         `{"code": "00", "desc": "success", "data": {"orderCode": 100003, "amount": 50000}}`,
			wantRef:      "100003",
			wantReported: "00",
		},
		{
			name:         "nested status inside data",
			body:         `{"data": {"orderCode": 100004, "status": "EXPIRED"}}`,
			wantRef:      "100004",
			wantReported: "EXPIRED",
		},
		{
			name:         "explicit failure status wins over success code",
			body:         `{"orderCode": 100005, "status": "CANCELLED", "code": "00"}`,
			wantRef:      "100005",
			wantReported: "CANCELLED",
		},
		{
			name:         "flat reference wins over nested",
			body:         `{"orderCode": 100006, "status": "PAID", "data": {"orderCode": 999}}`,
			wantRef:      "100006",
			wantReported: "PAID",
		},
		{
			name:         "unknown status without code",
			body:         `{"orderCode": 100007, "status": "PROCESSING"}`,
			wantRef:      "100007",
			wantReported: "PROCESSING",
		},
		{
			name:    "no reference",
			body:    `{"status": "PAID"}`,
			wantErr: domain.ErrInvalidInput,
		},
		{
			name:    "not json",
			body:    `orderCode=1`,
			wantErr: domain.ErrInvalidInput,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			n, err := ParseNotification([]byte(tc.body))
			if tc.wantErr != nil {
				assert.ErrorIs(t, err, tc.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.wantRef, n.Reference)
			assert.Equal(t, tc.wantReported, n.Reported())
		})
	}
}

func TestCreateIntentRequest_Validate(t *testing.T) {
	item := uuid.New()
	acct := uuid.New()

	tests := []struct {
		name    string
		req     CreateIntentRequest
		wantErr bool
	}{
		{"topup", CreateIntentRequest{AccountID: acct, Purpose: domain.PurposeWalletTopup}, false},
		{"promotion with item", CreateIntentRequest{AccountID: acct, Purpose: domain.PurposePromotion, ItemID: &item}, false},
		{"promotion without item", CreateIntentRequest{AccountID: acct, Purpose: domain.PurposePromotion}, true},
		{"membership with item", CreateIntentRequest{AccountID: acct, Purpose: domain.PurposeMembership, ItemID: &item}, true},
		{"missing account", CreateIntentRequest{Purpose: domain.PurposeWalletTopup}, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.req.validate()
			if tc.wantErr {
				assert.ErrorIs(t, err, domain.ErrInvalidInput)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

type mockAccounts struct{ mock.Mock }

func (m *mockAccounts) GetByID(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	args := m.Called(ctx, id)
	if a := args.Get(0); a != nil {
		return a.(*domain.Account), args.Error(1)
	}
	return nil, args.Error(1)
}

func newValidationService(t *testing.T, accounts accountRepo) *Service {
	t.Helper()
	cat, err := catalog.Default(50_000_000)
	require.NoError(t, err)
	// No DB or gateway: every case here must be rejected before persistence.
	return NewService(Deps{Accounts: accounts, Catalog: cat}, Options{})
}

func TestCreateIntent_RejectsBeforePersisting(t *testing.T) {
	acctID := uuid.New()

	tests := []struct {
		name    string
		req     CreateIntentRequest
		balance int64
		wantErr error
	}{
		{
			name:    "catalog price mismatch",
			req:     CreateIntentRequest{AccountID: acctID, Purpose: domain.PurposeMembership, DurationMonths: intPtr(1), Amount: 1},
			wantErr: domain.ErrCatalogMismatch,
		},
		{
			name:    "unlisted duration",
			req:     CreateIntentRequest{AccountID: acctID, Purpose: domain.PurposeMembership, DurationMonths: intPtr(7), Amount: 10000},
			wantErr: domain.ErrCatalogMismatch,
		},
		{
			name:    "wallet cannot cover membership",
			req:     CreateIntentRequest{AccountID: acctID, Purpose: domain.PurposeMembership, DurationMonths: intPtr(1), Amount: 10000},
			balance: 9999,
			wantErr: domain.ErrInsufficientFunds,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			accounts := &mockAccounts{}
			accounts.On("GetByID", mock.Anything, acctID).
				Return(&domain.Account{ID: acctID, Balance: tc.balance}, nil).Maybe()

			svc := newValidationService(t, accounts)
			_, err := svc.CreateIntent(context.Background(), tc.req)
			assert.ErrorIs(t, err, tc.wantErr)
		})
	}
}

func TestCreateIntent_UnknownAccount(t *testing.T) {
	acctID := uuid.New()
	accounts := &mockAccounts{}
	accounts.On("GetByID", mock.Anything, acctID).Return(nil, domain.ErrNotFound)

	svc := newValidationService(t, accounts)
	_, err := svc.CreateIntent(context.Background(), CreateIntentRequest{
		AccountID: acctID,
		Purpose:   domain.PurposeWalletTopup,
		Amount:    50000,
	})
	assert.ErrorIs(t, err, domain.ErrNotFound)
	accounts.AssertExpectations(t)
}

func TestManualComplete_Disabled(t *testing.T) {
	svc := NewService(Deps{}, Options{ManualCompleteEnabled: false})
	_, err := svc.ManualComplete(context.Background(), "100001")
	assert.ErrorIs(t, err, domain.ErrManualCompleteDisabled)
}
