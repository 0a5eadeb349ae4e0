package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTPRequests counts handled requests by route and status
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "khata_http_requests_total",
		Help: "HTTP requests handled, by method, route and status.",
	}, []string{"method", "route", "status"})

	// HTTPDuration observes request latency by route
	HTTPDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "khata_http_request_duration_seconds",
		Help:    "HTTP request latency.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"})

	// SalesCreated counts committed sales by payment method
	SalesCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "khata_sales_created_total",
		Help: "Sales committed, by payment method.",
	}, []string{"payment_method"})

	// SagaOutcomes counts finished sale sagas by final state
	SagaOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "khata_sale_saga_outcomes_total",
		Help: "Sale sagas finished, by final state.",
	}, []string{"state"})

	// InvoiceRetries counts invoice number collisions that were retried
	InvoiceRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "khata_invoice_retries_total",
		Help: "Invoice number collisions retried with a fresh number.",
	})

	// LedgerEntries counts ledger writes by type and direction
	LedgerEntries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "khata_ledger_entries_total",
		Help: "Ledger entries written or reversed, by type and op.",
	}, []string{"type", "op"})

	// SyncPushes counts replica push outcomes
	SyncPushes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "khata_sync_pushes_total",
		Help: "Replica pushes, by kind and result.",
	}, []string{"kind", "result"})

	// OverdueInstallments is the last observed count of overdue installments
	OverdueInstallments = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "khata_overdue_installments",
		Help: "Overdue installments seen by the last scan.",
	})
)
