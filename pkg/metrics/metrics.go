package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics for monitoring
var (
	PaymentsSubmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "paycore_payments_submitted_total",
		Help: "The total number of submitted payments",
	}, []string{"chain_id", "method"})

	PaymentsConfirmed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "paycore_payments_confirmed_total",
		Help: "The total number of confirmed payments by chain",
	}, []string{"chain_id"})

	PaymentsFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "paycore_payments_failed_total",
		Help: "The total number of failed payments by chain and error kind",
	}, []string{"chain_id", "error_kind"})

	PaymentsCancelled = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "paycore_payments_cancelled_total",
		Help: "The total number of cancelled payments by chain",
	}, []string{"chain_id"})

	ActivePayments = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "paycore_active_payments",
		Help: "The number of payments currently pending or confirming",
	})

	ConfirmationTime = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "paycore_confirmation_seconds",
		Help:    "Time from submission to confirmation",
		Buckets: prometheus.ExponentialBuckets(1, 2, 10), // Start at 1s with 10 buckets doubling in size
	}, []string{"chain_id"})

	GasUsed = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "paycore_gas_used",
		Help:    "Gas used for confirmed payments",
		Buckets: prometheus.ExponentialBuckets(21000, 2, 10), // Start at 21000 with 10 buckets doubling in size
	}, []string{"chain_id"})

	GasPrice = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "paycore_gas_price_gwei",
		Help: "Last observed gas price in gwei",
	}, []string{"chain_id"})

	GasLimitClamped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "paycore_gas_limit_clamped_total",
		Help: "Number of estimates clamped to the gas limit ceiling",
	}, []string{"chain_id"})

	RetryCount = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "paycore_retry_count_total",
		Help: "The total number of payment retries by chain",
	}, []string{"chain_id"})

	MaxRetriesReached = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "paycore_max_retries_reached_total",
		Help: "Number of payments that exhausted their retry budget",
	}, []string{"chain_id", "error_kind"})

	ClassifiedErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "paycore_classified_errors_total",
		Help: "Total number of classified errors by kind",
	}, []string{"chain_id", "error_kind"})

	CircuitBreakerTrips = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "paycore_circuit_breaker_trips_total",
		Help: "Number of times a chain circuit breaker tripped",
	}, []string{"chain_id"})

	EscrowOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "paycore_escrow_operations_total",
		Help: "Escrow contract operations by type and status",
	}, []string{"chain_id", "operation", "status"})

	MonitorTimeouts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "paycore_monitor_timeouts_total",
		Help: "Number of payments whose confirmation monitoring timed out",
	}, []string{"chain_id"})
)
