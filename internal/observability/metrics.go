package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for SparkLedger.
type Metrics struct {
	// --- Engine ---
	CommandsApplied       *prometheus.CounterVec
	CommandsRejected      *prometheus.CounterVec
	CommandDuration       *prometheus.HistogramVec
	TransactionsCommitted *prometheus.CounterVec
	StateHashDur          prometheus.Histogram
	Sequence              prometheus.Gauge

	// --- Economy ---
	SparkIssued       prometheus.Counter
	SparkDestroyed    prometheus.Counter
	TaxCollected      *prometheus.CounterVec
	UBIDistributed    prometheus.Counter
	TreasuryBalance   prometheus.Gauge
	CirculatingSupply prometheus.Gauge
	AuctionsFinalized *prometheus.CounterVec
	ListingsExpired   prometheus.Counter
	StructuresRemoved prometheus.Counter
	TickDuration      prometheus.Histogram

	// --- Channel & Backpressure ---
	ChannelSize         *prometheus.GaugeVec
	ChannelCapacity     *prometheus.GaugeVec
	ChannelUtilization  *prometheus.GaugeVec
	ProjectionDrops     *prometheus.CounterVec
	PublishDrops        prometheus.Counter
	FeedDrops           prometheus.Counter
	PersistBackpressure prometheus.Counter

	// --- Idempotency ---
	IdempotencyDuplicates *prometheus.CounterVec
	DedupLRUSize          prometheus.Gauge
	DedupLRUEvictions     prometheus.Counter
	DedupTier2Duration    prometheus.Histogram

	// --- Ingestion ---
	IngestToApply  *prometheus.HistogramVec
	IngestRejected *prometheus.CounterVec

	// --- Persistence ---
	PersistCommandsWritten     prometheus.Counter
	PersistTransactionsWritten prometheus.Counter
	PersistBatchSize           prometheus.Histogram
	PersistBatchDur            prometheus.Histogram
	PersistErrors              *prometheus.CounterVec
	PersistRetry               prometheus.Counter
	PersistLastSequence        prometheus.Gauge
	ProjectionUpdateDur        *prometheus.HistogramVec

	// --- Snapshot ---
	SnapshotTaken       prometheus.Counter
	SnapshotDuration    prometheus.Histogram
	SnapshotSizeBytes   prometheus.Gauge
	SnapshotLastSeq     prometheus.Gauge
	ReplayCommandsTotal prometheus.Counter
	ReplayDuration      prometheus.Gauge

	// --- Query API & Feed ---
	QueryRequests *prometheus.CounterVec
	QueryDuration *prometheus.HistogramVec
	FeedClients   prometheus.Gauge
}

// NewMetrics creates all metrics and registers them with reg.
// Pass prometheus.DefaultRegisterer in production and a fresh registry in tests.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)

	latencyBuckets := []float64{
		0.000001, 0.000005, 0.00001, 0.000025, 0.00005,
		0.0001, 0.00025, 0.0005, 0.001, 0.002, 0.005, 0.01,
	}

	ingestBuckets := []float64{
		0.00001, 0.000025, 0.00005, 0.0001, 0.00025,
		0.0005, 0.001, 0.002, 0.005, 0.01,
	}

	return &Metrics{
		// Engine
		CommandsApplied: f.NewCounterVec(prometheus.CounterOpts{
			Name: "spark_engine_commands_applied_total",
			Help: "Commands successfully applied by the engine",
		}, []string{"kind"}),

		CommandsRejected: f.NewCounterVec(prometheus.CounterOpts{
			Name: "spark_engine_commands_rejected_total",
			Help: "Commands rejected (duplicate, validation, domain)",
		}, []string{"kind", "reason"}),

		CommandDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "spark_engine_command_apply_duration_seconds",
			Help:    "Time to apply a single command",
			Buckets: latencyBuckets,
		}, []string{"kind"}),

		TransactionsCommitted: f.NewCounterVec(prometheus.CounterOpts{
			Name: "spark_engine_transactions_committed_total",
			Help: "Ledger transactions appended",
		}, []string{"type"}),

		StateHashDur: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "spark_engine_state_hash_duration_seconds",
			Help:    "Time to compute state hash",
			Buckets: latencyBuckets,
		}),

		Sequence: f.NewGauge(prometheus.GaugeOpts{
			Name: "spark_engine_sequence",
			Help: "Current command sequence number",
		}),

		// Economy
		SparkIssued: f.NewCounter(prometheus.CounterOpts{
			Name: "spark_economy_issued_total",
			Help: "Gross Spark minted by earn",
		}),

		SparkDestroyed: f.NewCounter(prometheus.CounterOpts{
			Name: "spark_economy_destroyed_total",
			Help: "Spark destroyed by spend, fees, and maintenance",
		}),

		TaxCollected: f.NewCounterVec(prometheus.CounterOpts{
			Name: "spark_economy_tax_collected_total",
			Help: "Tax moved into TREASURY",
		}, []string{"kind"}),

		UBIDistributed: f.NewCounter(prometheus.CounterOpts{
			Name: "spark_economy_ubi_distributed_total",
			Help: "Spark paid out as UBI",
		}),

		TreasuryBalance: f.NewGauge(prometheus.GaugeOpts{
			Name: "spark_economy_treasury_balance",
			Help: "Current TREASURY balance",
		}),

		CirculatingSupply: f.NewGauge(prometheus.GaugeOpts{
			Name: "spark_economy_circulating_supply",
			Help: "Sum of all tracked balances",
		}),

		AuctionsFinalized: f.NewCounterVec(prometheus.CounterOpts{
			Name: "spark_market_auctions_finalized_total",
			Help: "Auctions reaching a terminal state",
		}, []string{"status"}),

		ListingsExpired: f.NewCounter(prometheus.CounterOpts{
			Name: "spark_market_listings_expired_total",
			Help: "Listings closed by age",
		}),

		StructuresRemoved: f.NewCounter(prometheus.CounterOpts{
			Name: "spark_economy_structures_removed_total",
			Help: "Structures removed for missed maintenance",
		}),

		TickDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "spark_economy_tick_duration_seconds",
			Help:    "Time to run one economy tick",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
		}),

		// Channel & Backpressure
		ChannelSize: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "spark_channel_size",
			Help: "Current items in channel",
		}, []string{"name"}),

		ChannelCapacity: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "spark_channel_capacity",
			Help: "Channel capacity (constant)",
		}, []string{"name"}),

		ChannelUtilization: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "spark_channel_utilization",
			Help: "Channel size / capacity (0.0-1.0)",
		}, []string{"name"}),

		ProjectionDrops: f.NewCounterVec(prometheus.CounterOpts{
			Name: "spark_projection_drops_total",
			Help: "Outputs dropped due to full projection channel",
		}, []string{"projection"}),

		PublishDrops: f.NewCounter(prometheus.CounterOpts{
			Name: "spark_publish_drops_total",
			Help: "Outputs dropped due to full publish channel",
		}),

		FeedDrops: f.NewCounter(prometheus.CounterOpts{
			Name: "spark_feed_drops_total",
			Help: "Outputs dropped due to full feed channel or slow clients",
		}),

		PersistBackpressure: f.NewCounter(prometheus.CounterOpts{
			Name: "spark_persist_backpressure_total",
			Help: "Times the engine blocked on the persist channel",
		}),

		// Idempotency
		IdempotencyDuplicates: f.NewCounterVec(prometheus.CounterOpts{
			Name: "spark_idempotency_duplicates_total",
			Help: "Duplicates caught (lru/postgres)",
		}, []string{"kind", "tier"}),

		DedupLRUSize: f.NewGauge(prometheus.GaugeOpts{
			Name: "spark_dedup_lru_size",
			Help: "Current LRU occupancy",
		}),

		DedupLRUEvictions: f.NewCounter(prometheus.CounterOpts{
			Name: "spark_dedup_lru_evictions_total",
			Help: "LRU evictions",
		}),

		DedupTier2Duration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "spark_dedup_tier2_duration_seconds",
			Help:    "Postgres dedup lookup latency",
			Buckets: latencyBuckets,
		}),

		// Ingestion
		IngestToApply: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "spark_ingest_to_apply_seconds",
			Help:    "Command receive to engine apply complete",
			Buckets: ingestBuckets,
		}, []string{"kind"}),

		IngestRejected: f.NewCounterVec(prometheus.CounterOpts{
			Name: "spark_ingest_rejected_total",
			Help: "Inbound messages rejected before reaching the engine",
		}, []string{"reason"}),

		// Persistence
		PersistCommandsWritten: f.NewCounter(prometheus.CounterOpts{
			Name: "spark_persist_commands_written_total",
			Help: "Commands written to Postgres",
		}),

		PersistTransactionsWritten: f.NewCounter(prometheus.CounterOpts{
			Name: "spark_persist_transactions_written_total",
			Help: "Ledger transactions written to Postgres",
		}),

		PersistBatchSize: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "spark_persist_batch_size",
			Help:    "Commands per batch",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500},
		}),

		PersistBatchDur: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "spark_persist_batch_duration_seconds",
			Help:    "Postgres batch write duration",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25},
		}),

		PersistErrors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "spark_persist_errors_total",
			Help: "Persistence errors",
		}, []string{"error_type"}),

		PersistRetry: f.NewCounter(prometheus.CounterOpts{
			Name: "spark_persist_retry_total",
			Help: "Persistence retries",
		}),

		PersistLastSequence: f.NewGauge(prometheus.GaugeOpts{
			Name: "spark_persist_last_sequence",
			Help: "Last persisted sequence",
		}),

		ProjectionUpdateDur: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "spark_projection_update_duration_seconds",
			Help:    "Projection table update duration",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1},
		}, []string{"projection"}),

		// Snapshot
		SnapshotTaken: f.NewCounter(prometheus.CounterOpts{
			Name: "spark_snapshot_taken_total",
			Help: "Snapshots created",
		}),

		SnapshotDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "spark_snapshot_duration_seconds",
			Help:    "Snapshot creation time",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1.0, 5.0, 10.0},
		}),

		SnapshotSizeBytes: f.NewGauge(prometheus.GaugeOpts{
			Name: "spark_snapshot_size_bytes",
			Help: "Last snapshot size (compressed)",
		}),

		SnapshotLastSeq: f.NewGauge(prometheus.GaugeOpts{
			Name: "spark_snapshot_last_sequence",
			Help: "Sequence of last snapshot",
		}),

		ReplayCommandsTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "spark_replay_commands_total",
			Help: "Commands replayed on startup",
		}),

		ReplayDuration: f.NewGauge(prometheus.GaugeOpts{
			Name: "spark_replay_duration_seconds",
			Help: "Total replay time",
		}),

		// Query API & Feed
		QueryRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "spark_query_requests_total",
			Help: "HTTP API requests",
		}, []string{"endpoint", "status"}),

		QueryDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "spark_query_duration_seconds",
			Help:    "HTTP API latency",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
		}, []string{"endpoint"}),

		FeedClients: f.NewGauge(prometheus.GaugeOpts{
			Name: "spark_feed_clients",
			Help: "Connected websocket feed clients",
		}),
	}
}

// SetChannelMetrics updates channel utilization metrics.
func (m *Metrics) SetChannelMetrics(name string, size, capacity int) {
	m.ChannelSize.WithLabelValues(name).Set(float64(size))
	m.ChannelCapacity.WithLabelValues(name).Set(float64(capacity))
	if capacity > 0 {
		m.ChannelUtilization.WithLabelValues(name).Set(float64(size) / float64(capacity))
	}
}
