package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RegistrarRequests tracks logical registrar calls (retries included once)
	RegistrarRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "regsync_registrar_requests_total",
			Help: "Total number of registrar API calls",
		},
		[]string{"endpoint", "verb"},
	)

	// RegistrarErrors tracks terminal call failures by kind
	RegistrarErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "regsync_registrar_errors_total",
			Help: "Total number of failed registrar API calls",
		},
		[]string{"endpoint", "kind"},
	)

	// RegistrarRetries tracks retry attempts
	RegistrarRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "regsync_registrar_retries_total",
			Help: "Total number of registrar call retries",
		},
		[]string{"endpoint"},
	)

	// RegistrarLatency tracks call latency including queueing inside the dispatcher
	RegistrarLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "regsync_registrar_latency_seconds",
			Help:    "Registrar call latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint"},
	)

	RegistrarQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "regsync_registrar_queue_depth",
			Help: "Calls waiting for the registrar dispatcher",
		},
	)

	// PriceLookups tracks cache reads by outcome: hit, miss, stale
	PriceLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "regsync_pricing_lookups_total",
			Help: "Pricing cache lookups by result",
		},
		[]string{"tier", "result"},
	)

	PriceRefreshEntries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "regsync_pricing_refresh_entries_total",
			Help: "Cached price rows written by refreshes",
		},
		[]string{"tier"},
	)

	PriceRefreshErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "regsync_pricing_refresh_errors_total",
			Help: "Pricing tier refresh failures",
		},
		[]string{"tier"},
	)

	PriceRefreshDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "regsync_pricing_refresh_duration_seconds",
			Help:    "Duration of full pricing refreshes",
			Buckets: prometheus.DefBuckets,
		},
	)

	// ReconcileChecked tracks resources compared against the registrar
	ReconcileChecked = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "regsync_reconcile_checked_total",
			Help: "Mirrored resources checked by reconciliation",
		},
		[]string{"resource"},
	)

	ReconcileUpdated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "regsync_reconcile_updated_total",
			Help: "Mirrored resources corrected by reconciliation",
		},
		[]string{"resource"},
	)

	ReconcileDiscrepancies = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "regsync_reconcile_discrepancies_total",
			Help: "Field-level discrepancies found by reconciliation",
		},
		[]string{"resource", "field"},
	)

	ReconcileErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "regsync_reconcile_errors_total",
			Help: "Resources that could not be reconciled",
		},
		[]string{"resource"},
	)

	// DBConnectionPoolUsage tracks open connections as a percentage of the pool
	DBConnectionPoolUsage = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "regsync_db_connection_pool_usage_percent",
			Help: "Database connection pool usage in percent",
		},
	)
)
