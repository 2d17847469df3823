package main

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/josh-kwaku/settlement-engine/internal/domain"
	"github.com/josh-kwaku/settlement-engine/internal/service/gateway"
	"github.com/josh-kwaku/settlement-engine/internal/service/payment"
)

type received struct {
	body      []byte
	signature string
}

func startMock(t *testing.T) (*gateway.Client, *httptest.Server, chan received) {
	t.Helper()

	deliveries := make(chan received, 4)
	hook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		deliveries <- received{body: body, signature: r.Header.Get("X-Webhook-Signature")}
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(hook.Close)

	cfg := mockConfig{
		PublicURL:     "http://mock.test",
		ChecksumKey:   "checksum",
		CallbackURL:   hook.URL,
		WebhookSecret: "hook-secret",
	}
	srv := httptest.NewServer(newServer(cfg, slog.New(slog.NewTextHandler(io.Discard, nil))).routes())
	t.Cleanup(srv.Close)

	client := gateway.NewClient(gateway.Config{BaseURL: srv.URL, ChecksumKey: "checksum"})
	return client, srv, deliveries
}

func TestMockGateway_CheckoutAndStatus(t *testing.T) {
	client, _, _ := startMock(t)
	ctx := context.Background()

	checkout, err := client.CreateCheckout(ctx, gateway.CheckoutRequest{
		ExternalRef: "100001",
		Amount:      50000,
		Description: "Wallet top-up",
		ReturnURL:   "http://app/ok",
		CancelURL:   "http://app/cancel",
	})
	require.NoError(t, err)
	assert.Equal(t, "http://mock.test/checkout/100001", checkout.CheckoutURL)

	status, err := client.GetStatus(ctx, "100001")
	require.NoError(t, err)
	assert.Equal(t, "PENDING", status.Status)
	assert.Equal(t, int64(50000), status.Amount)

	_, err = client.GetStatus(ctx, "999999")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = client.CreateCheckout(ctx, gateway.CheckoutRequest{ExternalRef: "100001", Amount: 50000})
	assert.ErrorIs(t, err, domain.ErrGatewayUnavailable)
}

func TestMockGateway_RejectsBadChecksum(t *testing.T) {
	_, srv, _ := startMock(t)
	client := gateway.NewClient(gateway.Config{BaseURL: srv.URL, ChecksumKey: "wrong"})

	_, err := client.CreateCheckout(context.Background(), gateway.CheckoutRequest{ExternalRef: "100002", Amount: 100})
	assert.ErrorIs(t, err, domain.ErrGatewayUnavailable)
}

func TestMockGateway_PayDeliversSignedWebhook(t *testing.T) {
	client, srv, deliveries := startMock(t)
	ctx := context.Background()

	_, err := client.CreateCheckout(ctx, gateway.CheckoutRequest{ExternalRef: "100003", Amount: 25000})
	require.NoError(t, err)

	resp, err := http.Post(srv.URL+"/admin/payment-requests/100003/pay", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	got := <-deliveries
	assert.True(t, gateway.Verify("hook-secret", got.body, got.signature))

	n, err := payment.ParseNotification(got.body)
	require.NoError(t, err)
	assert.Equal(t, "100003", n.Reference)
	assert.Equal(t, payment.VerdictSuccess, payment.Normalize(n.Reported()))

	status, err := client.GetStatus(ctx, "100003")
	require.NoError(t, err)
	assert.Equal(t, "PAID", status.Status)
}

func TestMockGateway_SettledRequestKeepsStatus(t *testing.T) {
	client, srv, deliveries := startMock(t)
	ctx := context.Background()

	_, err := client.CreateCheckout(ctx, gateway.CheckoutRequest{ExternalRef: "100004", Amount: 100})
	require.NoError(t, err)

	for _, action := range []string{"cancel", "pay"} {
		resp, err := http.Post(srv.URL+"/admin/payment-requests/100004/"+action, "application/json", nil)
		require.NoError(t, err)
		resp.Body.Close()
		<-deliveries
	}

	status, err := client.GetStatus(ctx, "100004")
	require.NoError(t, err)
	assert.Equal(t, "CANCELLED", status.Status)
}
