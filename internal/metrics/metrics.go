// Package metrics declares the service's prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "settlement_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "route", "status"})

	HTTPLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "settlement_http_request_duration_seconds",
		Help:    "Request latency",
		Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
	}, []string{"method", "route"})

	SettlementOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "settlement_resolutions_total",
		Help: "Status resolutions by source and outcome",
	}, []string{"source", "outcome"})

	ResolveRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "settlement_resolve_retries_total",
		Help: "Resolution attempts retried after a concurrency conflict",
	})

	EntitlementShortfalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "settlement_entitlement_shortfalls_total",
		Help: "Paid intents whose wallet could not cover the entitlement",
	}, []string{"purpose"})

	IntentsCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "settlement_intents_created_total",
		Help: "Payment intents created by purpose and checkout result",
	}, []string{"purpose", "result"})

	WebhooksReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "settlement_webhooks_received_total",
		Help: "Inbound gateway notifications by handling result",
	}, []string{"result"})

	GatewayLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "settlement_gateway_request_duration_seconds",
		Help:    "Outbound gateway call latency",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	}, []string{"operation", "result"})
)
