package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/josh-kwaku/settlement-engine/internal/domain"
)

func newTestClient(url string, timeout time.Duration) *Client {
	return NewClient(Config{
		BaseURL:     url,
		ClientID:    "client-1",
		APIKey:      "api-key",
		ChecksumKey: "checksum",
		Timeout:     timeout,
	})
}

func TestCreateCheckout_Success(t *testing.T) {
	var got createBody
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v2/payment-requests", r.URL.Path)
		assert.Equal(t, "client-1", r.Header.Get("x-client-id"))
		assert.Equal(t, "api-key", r.Header.Get("x-api-key"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"code":"00","desc":"success","data":{"checkoutUrl":"https://pay.test/100001","paymentLinkId":"pl_1","status":"PENDING"}}`))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, time.Second)
	out, err := c.CreateCheckout(context.Background(), CheckoutRequest{
		ExternalRef: "100001",
		Amount:      50000,
		Description: "Wallet top-up for a long trip",
		ReturnURL:   "https://app.test/ok",
		CancelURL:   "https://app.test/cancel",
	})
	require.NoError(t, err)
	assert.Equal(t, "https://pay.test/100001", out.CheckoutURL)
	assert.Equal(t, "pl_1", out.PaymentLinkID)

	assert.Equal(t, int64(100001), got.OrderCode)
	assert.Len(t, got.Description, maxDescriptionLen)
	wantSig := Sign("checksum", []byte(CheckoutSignatureData(
		got.Amount, got.CancelURL, got.Description, got.OrderCode, got.ReturnURL,
	)))
	assert.Equal(t, wantSig, got.Signature)
}

func TestTruncateRunes(t *testing.T) {
	tests := []struct {
		name string
		in   string
		n    int
		want string
	}{
		{"short ascii kept", "Membership 6 months", 25, "Membership 6 months"},
		{"long ascii cut", "Wallet top-up for a long trip", 25, "Wallet top-up for a long "},
		{"multibyte counted as characters", "Nạp tiền ví điện tử cho chuyến đi", 10, "Nạp tiền v"},
		{"exact length kept", "ưưưưư", 5, "ưưưưư"},
		{"empty", "", 25, ""},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := truncateRunes(tc.in, tc.n)
			assert.Equal(t, tc.want, got)
			assert.True(t, utf8.ValidString(got))
		})
	}
}

func TestCreateCheckout_MultibyteDescriptionStaysValid(t *testing.T) {
	var got createBody
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"code":"00","desc":"success","data":{"checkoutUrl":"https://pay.test/100002","paymentLinkId":"pl_2","status":"PENDING"}}`))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, time.Second)
	_, err := c.CreateCheckout(context.Background(), CheckoutRequest{
		ExternalRef: "100002",
		Amount:      10000,
		Description: "Gói thành viên ưu đãi đặc biệt mười hai tháng",
	})
	require.NoError(t, err)

	assert.True(t, utf8.ValidString(got.Description))
	assert.Equal(t, maxDescriptionLen, utf8.RuneCountInString(got.Description))
}

func TestCreateCheckout_Failures(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		wantErr error
	}{
		{
			name: "server error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusBadGateway)
			},
			wantErr: domain.ErrGatewayUnavailable,
		},
		{
			name: "rejected code",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`{"code":"20","desc":"invalid signature","data":null}`))
			},
			wantErr: domain.ErrGatewayUnavailable,
		},
		{
			name: "garbage body",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`<html>`))
			},
			wantErr: domain.ErrGatewayUnavailable,
		},
		{
			name: "missing checkout url",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`{"code":"00","desc":"success","data":{}}`))
			},
			wantErr: domain.ErrGatewayUnavailable,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(tc.handler)
			defer srv.Close()

			_, err := newTestClient(srv.URL, time.Second).CreateCheckout(context.Background(), CheckoutRequest{
				ExternalRef: "100002",
				Amount:      100,
			})
			assert.ErrorIs(t, err, tc.wantErr)
		})
	}
}

func TestCreateCheckout_TimeoutSurfacesGatewayUnavailable(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	start := time.Now()
	_, err := newTestClient(srv.URL, 100*time.Millisecond).CreateCheckout(context.Background(), CheckoutRequest{
		ExternalRef: "100003",
		Amount:      100,
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrGatewayUnavailable)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestCreateCheckout_NonNumericReference(t *testing.T) {
	_, err := newTestClient("http://127.0.0.1:1", time.Second).CreateCheckout(context.Background(), CheckoutRequest{
		ExternalRef: "abc",
		Amount:      100,
	})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestGetStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v2/payment-requests/100004":
			_, _ = w.Write([]byte(`{"code":"00","desc":"success","data":{"orderCode":100004,"amount":50000,"status":"PAID"}}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, time.Second)

	st, err := c.GetStatus(context.Background(), "100004")
	require.NoError(t, err)
	assert.Equal(t, "PAID", st.Status)
	assert.Equal(t, int64(50000), st.Amount)

	_, err = c.GetStatus(context.Background(), "999999")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestGetStatus_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := newTestClient(url, time.Second).GetStatus(context.Background(), "100005")
	assert.ErrorIs(t, err, domain.ErrGatewayUnavailable)
}

func TestVerify(t *testing.T) {
	body := []byte(`{"orderCode":1}`)
	sig := Sign("secret", body)

	assert.True(t, Verify("secret", body, sig))
	assert.False(t, Verify("other", body, sig))
	assert.False(t, Verify("secret", body, "zz"))
	assert.False(t, Verify("secret", []byte(`{"orderCode":2}`), sig))
}
