// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Engine metrics
	OperationsTotal   *prometheus.CounterVec
	OperationDuration *prometheus.HistogramVec
	InvariantFaults   prometheus.Counter

	// Sale flow metrics
	TokensAllocated *prometheus.CounterVec
	TokensClaimed   prometheus.Counter
	PaymentsTotal   prometheus.Counter
	RefundsTotal    prometheus.Counter
	FundsWithdrawn  prometheus.Counter

	// Sale state gauges
	CurrentStage   prometheus.Gauge
	StageSold      *prometheus.GaugeVec
	CustodyBalance prometheus.Gauge
	Paused         prometheus.Gauge

	// Event publishing metrics
	EventsPublished *prometheus.CounterVec
	PublishErrors   *prometheus.CounterVec

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "token_presale"
	}

	return &Metrics{
		// Engine metrics
		OperationsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "operations_total",
			Help:      "Total number of sale operations by operation and outcome",
		}, []string{"operation", "outcome"}),
		OperationDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "operation_duration_seconds",
			Help:      "Sale operation latency in seconds, including storage commit",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		InvariantFaults: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "ledger_invariant_faults_total",
			Help:      "Total number of aborted transitions caused by ledger invariant violations",
		}),

		// Sale flow metrics
		TokensAllocated: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sale",
			Name:      "tokens_allocated_total",
			Help:      "Raw tokens allocated to buyers by stage",
		}, []string{"stage"}),
		TokensClaimed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sale",
			Name:      "tokens_claimed_total",
			Help:      "Raw tokens released to buyers",
		}),
		PaymentsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sale",
			Name:      "payments_base_units_total",
			Help:      "Base units collected into custody",
		}),
		RefundsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sale",
			Name:      "refunds_base_units_total",
			Help:      "Base units offered but left with buyers due to rounding",
		}),
		FundsWithdrawn: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sale",
			Name:      "withdrawn_base_units_total",
			Help:      "Base units withdrawn by the owner",
		}),

		// Sale state gauges
		CurrentStage: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "sale",
			Name:      "current_stage",
			Help:      "Index of the lowest not-yet-exhausted stage",
		}),
		StageSold: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "sale",
			Name:      "stage_sold_tokens",
			Help:      "Raw tokens sold per stage",
		}, []string{"stage"}),
		CustodyBalance: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "sale",
			Name:      "custody_balance_base_units",
			Help:      "Base units held in custody",
		}),
		Paused: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "sale",
			Name:      "paused",
			Help:      "1 if the sale is paused",
		}),

		// Event publishing metrics
		EventsPublished: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "published_total",
			Help:      "Total number of sale events published by sink",
		}, []string{"sink"}),
		PublishErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "publish_errors_total",
			Help:      "Total number of failed event publications by sink",
		}, []string{"sink"}),

		// Database metrics
		DBQueryDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_duration_seconds",
			Help:      "Database query duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"database", "operation"}),
		DBQueryErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_errors_total",
			Help:      "Total number of database query errors",
		}, []string{"database", "operation"}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordOperation records one engine operation and its latency.
func RecordOperation(operation, outcome string, seconds float64) {
	DefaultMetrics.OperationsTotal.WithLabelValues(operation, outcome).Inc()
	DefaultMetrics.OperationDuration.WithLabelValues(operation).Observe(seconds)
}

// RecordInvariantFault counts a ledger invariant violation.
func RecordInvariantFault() {
	DefaultMetrics.InvariantFaults.Inc()
}

// RecordAllocation records tokens allocated from one stage.
func RecordAllocation(stage string, tokens uint64) {
	DefaultMetrics.TokensAllocated.WithLabelValues(stage).Add(float64(tokens))
}

// RecordPayment records a collected payment and the refunded remainder.
func RecordPayment(charged, refunded uint64) {
	DefaultMetrics.PaymentsTotal.Add(float64(charged))
	DefaultMetrics.RefundsTotal.Add(float64(refunded))
}

// RecordClaim records tokens released to a buyer.
func RecordClaim(tokens uint64) {
	DefaultMetrics.TokensClaimed.Add(float64(tokens))
}

// RecordWithdrawal records base units withdrawn by the owner.
func RecordWithdrawal(amount uint64) {
	DefaultMetrics.FundsWithdrawn.Add(float64(amount))
}

// UpdateSaleGauges refreshes the sale state gauges.
func UpdateSaleGauges(currentStage int, stageSold []uint64, custody uint64, paused bool) {
	DefaultMetrics.CurrentStage.Set(float64(currentStage))
	for i, sold := range stageSold {
		DefaultMetrics.StageSold.WithLabelValues(StageLabel(i)).Set(float64(sold))
	}
	DefaultMetrics.CustodyBalance.Set(float64(custody))
	if paused {
		DefaultMetrics.Paused.Set(1)
	} else {
		DefaultMetrics.Paused.Set(0)
	}
}

// RecordPublish records the outcome of publishing events to a sink.
func RecordPublish(sink string, count int, err error) {
	if err != nil {
		DefaultMetrics.PublishErrors.WithLabelValues(sink).Inc()
		return
	}
	DefaultMetrics.EventsPublished.WithLabelValues(sink).Add(float64(count))
}

// RecordDBQuery records database query metrics.
func RecordDBQuery(database, operation string, seconds float64, err error) {
	DefaultMetrics.DBQueryDuration.WithLabelValues(database, operation).Observe(seconds)
	if err != nil {
		DefaultMetrics.DBQueryErrors.WithLabelValues(database, operation).Inc()
	}
}

// StageLabel formats a stage index as a metric label.
func StageLabel(stage int) string {
	return strconv.Itoa(stage)
}
