package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// Override metrics
	OverrideWrites        *prometheus.CounterVec
	OverrideWriteDuration prometheus.Histogram
	AuditEntriesCreated   *prometheus.CounterVec

	// Bulk allocation metrics
	BulkRuns        prometheus.Counter
	BulkOutcomes    *prometheus.CounterVec
	BulkDuration    prometheus.Histogram
	Reconciliations *prometheus.CounterVec

	// Ledger metrics
	LedgerBuildDuration prometheus.Histogram
	SnapshotCache       *prometheus.CounterVec

	// Sync client metrics
	SyncAttempts    *prometheus.CounterVec
	SyncEscalations prometheus.Counter
	TokenRefreshes  *prometheus.CounterVec

	// Audit export metrics
	AuditExportRows *prometheus.CounterVec

	// API metrics
	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec

	// Security token metrics
	SecurityTokens *prometheus.CounterVec

	// Rate limiting metrics
	RateLimitHits *prometheus.CounterVec

	// Outbox metrics
	EventsPublished *prometheus.CounterVec

	// Database metrics
	DBRetries *prometheus.CounterVec
}

// New creates and registers all Prometheus metrics on the default registerer
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates all metrics on reg
func NewWithRegistry(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)

	return &Metrics{
		OverrideWrites: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pspledger_override_writes_total",
				Help: "Total number of override writes",
			},
			[]string{"kind", "status"},
		),
		OverrideWriteDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "pspledger_override_write_duration_seconds",
			Help:    "Duration of override write transactions",
			Buckets: prometheus.DefBuckets,
		}),
		AuditEntriesCreated: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pspledger_audit_entries_created_total",
				Help: "Total number of audit entries created",
			},
			[]string{"kind"},
		),

		BulkRuns: f.NewCounter(prometheus.CounterOpts{
			Name: "pspledger_bulk_runs_total",
			Help: "Total number of bulk allocation runs",
		}),
		BulkOutcomes: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pspledger_bulk_outcomes_total",
				Help: "Per-PSP outcomes of bulk allocation runs",
			},
			[]string{"status"},
		),
		BulkDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "pspledger_bulk_duration_seconds",
			Help:    "Duration of bulk allocation runs including reconciliation",
			Buckets: prometheus.DefBuckets,
		}),
		Reconciliations: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pspledger_reconciliations_total",
				Help: "Total number of post-bulk reconciliations",
			},
			[]string{"status"},
		),

		LedgerBuildDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "pspledger_ledger_build_duration_seconds",
			Help:    "Duration of monthly ledger builds",
			Buckets: prometheus.DefBuckets,
		}),
		SnapshotCache: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pspledger_snapshot_cache_total",
				Help: "Override snapshot cache lookups",
			},
			[]string{"result"},
		),

		SyncAttempts: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pspledger_sync_attempts_total",
				Help: "Write attempts made by the sync client",
			},
			[]string{"outcome"},
		),
		SyncEscalations: f.NewCounter(prometheus.CounterOpts{
			Name: "pspledger_sync_escalations_total",
			Help: "Writes escalated to re-authentication",
		}),
		TokenRefreshes: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pspledger_token_refreshes_total",
				Help: "Security token refreshes made by the sync client",
			},
			[]string{"status"},
		),

		AuditExportRows: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pspledger_audit_export_rows_total",
				Help: "Audit entries written by exports",
			},
			[]string{"format"},
		),

		HTTPRequests: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pspledger_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pspledger_http_request_duration_seconds",
				Help:    "Duration of HTTP requests",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),

		SecurityTokens: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pspledger_security_tokens_total",
				Help: "Security token issues and rejections",
			},
			[]string{"result"},
		),

		RateLimitHits: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pspledger_rate_limit_hits_total",
				Help: "Total number of rate limit hits",
			},
			[]string{"client"},
		),

		EventsPublished: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pspledger_events_published_total",
				Help: "Outbox events published",
			},
			[]string{"event_type", "status"},
		),

		DBRetries: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pspledger_db_retries_total",
				Help: "Override transactions retried after lock contention",
			},
			[]string{"reason"},
		),
	}
}
