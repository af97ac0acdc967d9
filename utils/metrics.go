package utils

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "urbana_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "urbana_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	VerificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "urbana_payment_verifications_total",
			Help: "Processor verification calls by outcome",
		},
		[]string{"processor", "outcome"},
	)

	PaymentsFinalizedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "urbana_payments_finalized_total",
			Help: "Finalizations by processor and whether a new payment was created",
		},
		[]string{"processor", "created"},
	)

	WebhooksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "urbana_webhooks_total",
			Help: "Inbound webhook deliveries by outcome",
		},
		[]string{"processor", "outcome"},
	)

	EscrowOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "urbana_escrow_operations_total",
			Help: "Escrow holds, releases and refunds",
		},
		[]string{"operation"},
	)

	WithdrawalsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "urbana_withdrawals_total",
			Help: "Withdrawal state changes",
		},
		[]string{"status"},
	)
)

func RecordHTTPRequest(method, path, status string, duration float64) {
	HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
	HTTPRequestDuration.WithLabelValues(method, path).Observe(duration)
}

func RecordVerification(processor, outcome string) {
	VerificationsTotal.WithLabelValues(processor, outcome).Inc()
}

func RecordFinalize(processor string, created bool) {
	label := "false"
	if created {
		label = "true"
	}
	PaymentsFinalizedTotal.WithLabelValues(processor, label).Inc()
}

func RecordWebhook(processor, outcome string) {
	WebhooksTotal.WithLabelValues(processor, outcome).Inc()
}

func RecordEscrow(operation string) {
	EscrowOperationsTotal.WithLabelValues(operation).Inc()
}

func RecordWithdrawal(status string) {
	WithdrawalsTotal.WithLabelValues(status).Inc()
}
