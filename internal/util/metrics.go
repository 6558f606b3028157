package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RVCRecalculationsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rvc_recalculations_total",
		Help: "Total number of RVC recalculations performed",
	})

	RVCRecalculationLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "rvc_recalculation_latency_seconds",
		Help:    "Latency of ledger mutation plus RVC recalculation",
		Buckets: prometheus.DefBuckets,
	})

	LedgerMutationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_mutations_total",
		Help: "Total number of cost input mutations",
	}, []string{"operation"})

	LedgerMutationsFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_mutations_failed_total",
		Help: "Total number of failed cost input mutations",
	}, []string{"reason"})

	CertificatesIssuedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "certificates_issued_total",
		Help: "Total number of certificates of origin generated",
	})

	CertificatesRejectedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "certificates_rejected_total",
		Help: "Total number of certificate requests for non-qualifying listings",
	})

	TransactionsCreatedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "edi_transactions_created_total",
		Help: "Total number of EDI transactions created",
	}, []string{"transaction_type"})

	TransactionsFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "edi_transactions_failed_total",
		Help: "Total number of failed EDI transaction creations",
	}, []string{"reason"})

	AIDraftsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "edi_ai_drafts_total",
		Help: "Total number of AI-assisted draft requests",
	})

	AIDraftFallbacksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "edi_ai_draft_fallbacks_total",
		Help: "Total number of AI drafts that fell back to basic generation",
	})

	AIDraftLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "edi_ai_draft_latency_seconds",
		Help:    "Latency of AI collaborator calls",
		Buckets: prometheus.DefBuckets,
	})

	AcknowledgmentsIssuedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "edi_acknowledgments_issued_total",
		Help: "Total number of 997 acknowledgments issued by the worker",
	})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
)
