// Package metrics provides Prometheus metrics for the mythicstats backend.
// Scrape these at /metrics for Grafana dashboards and alerting.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP Metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tcg_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tcg_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// JustTCG API Metrics
	JustTCGRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tcg_justtcg_requests_total",
			Help: "JustTCG API calls by operation and outcome",
		},
		[]string{"operation", "outcome"}, // outcome: success, rate_limited, api_error, network_error, invalid
	)

	JustTCGRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tcg_justtcg_request_duration_seconds",
			Help:    "JustTCG API call latency including retries",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10},
		},
		[]string{"operation"},
	)

	JustTCGRetriesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tcg_justtcg_retries_total",
			Help: "JustTCG calls retried after a network failure",
		},
	)

	JustTCGQuotaRemaining = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "tcg_justtcg_quota_remaining",
			Help: "Remaining JustTCG API requests for today",
		},
		[]string{"user"},
	)

	JustTCGQuotaLimit = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "tcg_justtcg_quota_limit",
			Help: "Daily JustTCG API request limit",
		},
		[]string{"user"},
	)

	JustTCGMonthlyQuotaRemaining = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "tcg_justtcg_monthly_quota_remaining",
			Help: "Remaining JustTCG API requests for this month",
		},
		[]string{"user"},
	)

	JustTCGMonthlyQuotaLimit = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "tcg_justtcg_monthly_quota_limit",
			Help: "Monthly JustTCG API request limit",
		},
		[]string{"user"},
	)

	// Catalog Sync Metrics
	SyncRecordsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tcg_sync_records_total",
			Help: "Catalog records merged by entity and outcome",
		},
		[]string{"entity", "outcome"}, // outcome: created, updated, skipped, dropped
	)

	SyncPagesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tcg_sync_pages_total",
			Help: "Card pages fetched from JustTCG",
		},
	)

	SyncDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tcg_sync_duration_seconds",
			Help:    "Time taken by a catalog sync flow",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 300},
		},
		[]string{"flow"},
	)

	// Price Update Metrics
	PriceUpdatesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tcg_price_updates_total",
			Help: "Total number of inventory variant prices marked updated",
		},
	)

	PriceBatchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "tcg_price_batch_duration_seconds",
			Help:    "Time taken to process a price update batch",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60},
		},
	)

	// Job Metrics
	JobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tcg_jobs_total",
			Help: "Processed jobs by name and final state",
		},
		[]string{"name", "state"}, // state: completed, delayed, failed
	)

	JobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tcg_job_duration_seconds",
			Help:    "Time taken to process a job",
			Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 300, 900},
		},
		[]string{"name"},
	)

	JobQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "tcg_job_queue_depth",
			Help: "Jobs waiting in the queue, due or delayed",
		},
	)

	// Inventory Metrics
	InventoryItemsTotal = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "tcg_inventory_items_total",
			Help: "Number of inventory items per user",
		},
		[]string{"user"},
	)
)
