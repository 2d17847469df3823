// Package gateway is the client for the external payment gateway.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"
	"unicode/utf8"

	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/josh-kwaku/settlement-engine/internal/domain"
	"github.com/josh-kwaku/settlement-engine/internal/logging"
	"github.com/josh-kwaku/settlement-engine/internal/metrics"
)

const (
	codeOK = "00"

	// The gateway rejects longer descriptions.
	maxDescriptionLen = 25
)

var tracer = otel.Tracer("github.com/josh-kwaku/settlement-engine/internal/service/gateway")

type Config struct {
	BaseURL     string
	ClientID    string
	APIKey      string
	ChecksumKey string
	Timeout     time.Duration
}

type Client struct {
	http        *resty.Client
	checksumKey string
}

func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	rc := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(timeout).
		SetTransport(otelhttp.NewTransport(http.DefaultTransport)).
		SetHeader("Content-Type", "application/json").
		SetHeader("x-client-id", cfg.ClientID).
		SetHeader("x-api-key", cfg.APIKey)

	return &Client{http: rc, checksumKey: cfg.ChecksumKey}
}

type CheckoutRequest struct {
	ExternalRef string
	Amount      int64
	Description string
	ReturnURL   string
	CancelURL   string
}

type Checkout struct {
	CheckoutURL   string
	PaymentLinkID string
	Status        string
}

type Status struct {
	ExternalRef string
	Amount      int64
	Status      string
}

type envelope struct {
	Code string          `json:"code"`
	Desc string          `json:"desc"`
	Data json.RawMessage `json:"data"`
}

type createBody struct {
	OrderCode   int64  `json:"orderCode"`
	Amount      int64  `json:"amount"`
	Description string `json:"description"`
	ReturnURL   string `json:"returnUrl"`
	CancelURL   string `json:"cancelUrl"`
	Signature   string `json:"signature"`
}

type createData struct {
	CheckoutURL   string `json:"checkoutUrl"`
	PaymentLinkID string `json:"paymentLinkId"`
	Status        string `json:"status"`
}

type statusData struct {
	OrderCode int64  `json:"orderCode"`
	Amount    int64  `json:"amount"`
	Status    string `json:"status"`
}

// CreateCheckout asks the gateway for a hosted checkout page for the intent.
func (c *Client) CreateCheckout(ctx context.Context, req CheckoutRequest) (*Checkout, error) {
	ctx, span := tracer.Start(ctx, "gateway.CreateCheckout")
	defer span.End()
	span.SetAttributes(attribute.String("payment.external_ref", req.ExternalRef))

	orderCode, err := strconv.ParseInt(req.ExternalRef, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("CreateCheckout: order code %q: %w", req.ExternalRef, domain.ErrInvalidInput)
	}

	body := createBody{
		OrderCode:   orderCode,
		Amount:      req.Amount,
		Description: truncateRunes(req.Description, maxDescriptionLen),
		ReturnURL:   req.ReturnURL,
		CancelURL:   req.CancelURL,
	}
	body.Signature = Sign(c.checksumKey, []byte(CheckoutSignatureData(
		body.Amount, body.CancelURL, body.Description, body.OrderCode, body.ReturnURL,
	)))

	var data createData
	if err := c.do(ctx, "create_checkout", http.MethodPost, "/v2/payment-requests", body, &data); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "create checkout failed")
		return nil, fmt.Errorf("CreateCheckout: %w", err)
	}
	if data.CheckoutURL == "" {
		err := fmt.Errorf("CreateCheckout: empty checkout url: %w", domain.ErrGatewayUnavailable)
		span.RecordError(err)
		span.SetStatus(codes.Error, "empty checkout url")
		return nil, err
	}

	return &Checkout{
		CheckoutURL:   data.CheckoutURL,
		PaymentLinkID: data.PaymentLinkID,
		Status:        data.Status,
	}, nil
}

// GetStatus reads the gateway's current view of an intent.
func (c *Client) GetStatus(ctx context.Context, externalRef string) (*Status, error) {
	ctx, span := tracer.Start(ctx, "gateway.GetStatus")
	defer span.End()
	span.SetAttributes(attribute.String("payment.external_ref", externalRef))

	if _, err := strconv.ParseInt(externalRef, 10, 64); err != nil {
		return nil, fmt.Errorf("GetStatus: order code %q: %w", externalRef, domain.ErrInvalidInput)
	}

	var data statusData
	if err := c.do(ctx, "get_status", http.MethodGet, "/v2/payment-requests/"+externalRef, nil, &data); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "get status failed")
		return nil, fmt.Errorf("GetStatus: %w", err)
	}
	span.SetAttributes(attribute.String("payment.gateway_status", data.Status))

	return &Status{
		ExternalRef: externalRef,
		Amount:      data.Amount,
		Status:      data.Status,
	}, nil
}

func (c *Client) do(ctx context.Context, op, method, path string, body any, out any) error {
	log := logging.FromContext(ctx)

	r := c.http.R().SetContext(ctx)
	if body != nil {
		r.SetBody(body)
	}

	start := time.Now()
	log.Info("gateway request sent", "operation", op, "path", path)

	resp, err := r.Execute(method, path)
	elapsed := time.Since(start)
	if err != nil {
		metrics.GatewayLatency.WithLabelValues(op, "transport_error").Observe(elapsed.Seconds())
		log.Warn("gateway request failed",
			"operation", op,
			"timeout", isTimeout(err),
			"duration_ms", elapsed.Milliseconds(),
			"error", err,
		)
		return fmt.Errorf("%s: %v: %w", op, err, domain.ErrGatewayUnavailable)
	}

	log.Info("gateway response received",
		"operation", op,
		"status", resp.StatusCode(),
		"duration_ms", elapsed.Milliseconds(),
	)

	switch {
	case resp.StatusCode() == http.StatusNotFound:
		metrics.GatewayLatency.WithLabelValues(op, "not_found").Observe(elapsed.Seconds())
		return fmt.Errorf("%s: %w", op, domain.ErrNotFound)
	case resp.StatusCode() >= http.StatusInternalServerError:
		metrics.GatewayLatency.WithLabelValues(op, "server_error").Observe(elapsed.Seconds())
		return fmt.Errorf("%s: status %d: %w", op, resp.StatusCode(), domain.ErrGatewayUnavailable)
	}

	var env envelope
	if err := json.Unmarshal(resp.Body(), &env); err != nil {
		metrics.GatewayLatency.WithLabelValues(op, "bad_response").Observe(elapsed.Seconds())
		return fmt.Errorf("%s: decode response: %v: %w", op, err, domain.ErrGatewayUnavailable)
	}
	if env.Code != codeOK || resp.IsError() {
		metrics.GatewayLatency.WithLabelValues(op, "rejected").Observe(elapsed.Seconds())
		return fmt.Errorf("%s: gateway code %q (%s): %w", op, env.Code, env.Desc, domain.ErrGatewayUnavailable)
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		metrics.GatewayLatency.WithLabelValues(op, "bad_response").Observe(elapsed.Seconds())
		return fmt.Errorf("%s: decode data: %v: %w", op, err, domain.ErrGatewayUnavailable)
	}

	metrics.GatewayLatency.WithLabelValues(op, "ok").Observe(elapsed.Seconds())
	return nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// truncateRunes keeps at most n characters of s without splitting a rune.
func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n])
}
