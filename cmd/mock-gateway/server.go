package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/gorilla/mux"

	"github.com/josh-kwaku/settlement-engine/internal/service/gateway"
)

type mockConfig struct {
	Port        int    `env:"PORT" envDefault:"8081"`
	PublicURL   string `env:"MOCK_PUBLIC_URL" envDefault:"http://localhost:8081"`
	ChecksumKey string `env:"GATEWAY_CHECKSUM_KEY"`
	CallbackURL string `env:"WEBHOOK_CALLBACK_URL" envDefault:"http://api:8080/payments/webhook"`
	// WebhookSecret signs callbacks in X-Webhook-Signature when set.
	WebhookSecret string `env:"WEBHOOK_SECRET"`
	LogLevel      string `env:"LOG_LEVEL" envDefault:"info"`
	AppEnv        string `env:"APP_ENV" envDefault:"development"`
}

type paymentRequest struct {
	OrderCode     int64
	Amount        int64
	Description   string
	Status        string
	PaymentLinkID string
	CreatedAt     time.Time
}

type envelope struct {
	Code string `json:"code"`
	Desc string `json:"desc"`
	Data any    `json:"data"`
}

type createBody struct {
	OrderCode   int64  `json:"orderCode"`
	Amount      int64  `json:"amount"`
	Description string `json:"description"`
	ReturnURL   string `json:"returnUrl"`
	CancelURL   string `json:"cancelUrl"`
	Signature   string `json:"signature"`
}

type callback struct {
	OrderCode int64  `json:"orderCode"`
	Amount    int64  `json:"amount"`
	Status    string `json:"status"`
}

type server struct {
	cfg    mockConfig
	client *resty.Client
	log    *slog.Logger

	mu       sync.Mutex
	requests map[int64]*paymentRequest
}

func newServer(cfg mockConfig, log *slog.Logger) *server {
	return &server{
		cfg:      cfg,
		client:   resty.New().SetTimeout(5 * time.Second).SetHeader("Content-Type", "application/json"),
		log:      log,
		requests: make(map[int64]*paymentRequest),
	}
}

func (s *server) routes() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/health", s.health).Methods(http.MethodGet)

	v2 := r.PathPrefix("/v2").Subrouter()
	v2.HandleFunc("/payment-requests", s.create).Methods(http.MethodPost)
	v2.HandleFunc("/payment-requests/{orderCode:[0-9]+}", s.status).Methods(http.MethodGet)

	admin := r.PathPrefix("/admin").Subrouter()
	admin.HandleFunc("/payment-requests/{orderCode:[0-9]+}/pay", s.settle("PAID")).Methods(http.MethodPost)
	admin.HandleFunc("/payment-requests/{orderCode:[0-9]+}/cancel", s.settle("CANCELLED")).Methods(http.MethodPost)

	r.HandleFunc("/checkout/{orderCode:[0-9]+}", s.checkoutPage).Methods(http.MethodGet)
	return r
}

func (s *server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *server) create(w http.ResponseWriter, r *http.Request) {
	var body createBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusOK, envelope{Code: "20", Desc: "invalid body"})
		return
	}

	if s.cfg.ChecksumKey != "" {
		data := gateway.CheckoutSignatureData(body.Amount, body.CancelURL, body.Description, body.OrderCode, body.ReturnURL)
		if !gateway.Verify(s.cfg.ChecksumKey, []byte(data), body.Signature) {
			s.log.Warn("checkout signature mismatch", "order_code", body.OrderCode)
			writeJSON(w, http.StatusOK, envelope{Code: "201", Desc: "signature mismatch"})
			return
		}
	}
	if body.Amount <= 0 || body.OrderCode <= 0 {
		writeJSON(w, http.StatusOK, envelope{Code: "20", Desc: "amount and orderCode must be positive"})
		return
	}

	s.mu.Lock()
	if _, exists := s.requests[body.OrderCode]; exists {
		s.mu.Unlock()
		writeJSON(w, http.StatusOK, envelope{Code: "231", Desc: "order code already exists"})
		return
	}
	pr := &paymentRequest{
		OrderCode:     body.OrderCode,
		Amount:        body.Amount,
		Description:   body.Description,
		Status:        "PENDING",
		PaymentLinkID: fmt.Sprintf("pl_%d", body.OrderCode),
		CreatedAt:     time.Now().UTC(),
	}
	s.requests[body.OrderCode] = pr
	s.mu.Unlock()

	s.log.Info("payment request created", "order_code", pr.OrderCode, "amount", pr.Amount)
	writeJSON(w, http.StatusOK, envelope{Code: "00", Desc: "success", Data: map[string]any{
		"checkoutUrl":   fmt.Sprintf("%s/checkout/%d", s.cfg.PublicURL, pr.OrderCode),
		"paymentLinkId": pr.PaymentLinkID,
		"status":        pr.Status,
	}})
}

func (s *server) status(w http.ResponseWriter, r *http.Request) {
	pr, ok := s.lookup(mux.Vars(r)["orderCode"])
	if !ok {
		writeJSON(w, http.StatusNotFound, envelope{Code: "101", Desc: "payment request not found"})
		return
	}
	writeJSON(w, http.StatusOK, envelope{Code: "00", Desc: "success", Data: map[string]any{
		"orderCode": pr.OrderCode,
		"amount":    pr.Amount,
		"status":    pr.Status,
	}})
}

// settle flips a pending request to status and notifies the callback URL.
func (s *server) settle(status string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		code, err := strconv.ParseInt(mux.Vars(r)["orderCode"], 10, 64)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, envelope{Code: "20", Desc: "invalid order code"})
			return
		}

		s.mu.Lock()
		pr, ok := s.requests[code]
		if ok && pr.Status == "PENDING" {
			pr.Status = status
		}
		var snapshot paymentRequest
		if ok {
			snapshot = *pr
		}
		s.mu.Unlock()

		if !ok {
			writeJSON(w, http.StatusNotFound, envelope{Code: "101", Desc: "payment request not found"})
			return
		}

		if err := s.notify(r.Context(), snapshot); err != nil {
			s.log.Warn("webhook delivery failed", "order_code", code, "error", err)
		}
		writeJSON(w, http.StatusOK, envelope{Code: "00", Desc: "success", Data: map[string]any{
			"orderCode": snapshot.OrderCode,
			"status":    snapshot.Status,
		}})
	}
}

func (s *server) notify(ctx context.Context, pr paymentRequest) error {
	body, err := json.Marshal(callback{OrderCode: pr.OrderCode, Amount: pr.Amount, Status: pr.Status})
	if err != nil {
		return fmt.Errorf("notify: marshal: %w", err)
	}

	req := s.client.R().SetContext(ctx).SetBody(body)
	if s.cfg.WebhookSecret != "" {
		req.SetHeader("X-Webhook-Signature", gateway.Sign(s.cfg.WebhookSecret, body))
	}

	resp, err := req.Post(s.cfg.CallbackURL)
	if err != nil {
		return fmt.Errorf("notify: %w", err)
	}
	s.log.Info("webhook delivered", "order_code", pr.OrderCode, "status", pr.Status, "http_status", resp.StatusCode(), "response", resp.String())
	return nil
}

func (s *server) checkoutPage(w http.ResponseWriter, r *http.Request) {
	pr, ok := s.lookup(mux.Vars(r)["orderCode"])
	if !ok {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprintf(w, "<html><body><h1>%s</h1><p>Amount: %d</p><p>Status: %s</p>"+
		`<form method="post" action="/admin/payment-requests/%d/pay"><button>Pay</button></form>`+
		`<form method="post" action="/admin/payment-requests/%d/cancel"><button>Cancel</button></form>`+
		"</body></html>", pr.Description, pr.Amount, pr.Status, pr.OrderCode, pr.OrderCode)
}

func (s *server) lookup(raw string) (paymentRequest, bool) {
	code, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return paymentRequest{}, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	pr, ok := s.requests[code]
	if !ok {
		return paymentRequest{}, false
	}
	return *pr, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}
