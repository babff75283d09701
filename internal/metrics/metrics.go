package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CyclesTotal counts ingestion cycles by result: ok, noop, error, busy.
	CyclesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Name: "tracker_ingest_cycles_total", Help: "Ingestion cycles by result"},
		[]string{"result"},
	)

	// EventsIngested counts transfer events persisted to the ledger.
	EventsIngested = promauto.NewCounter(
		prometheus.CounterOpts{Name: "tracker_ingest_events_total", Help: "Transfer events persisted"},
	)

	// RPCRetries counts chain RPC attempts that failed and were retried.
	RPCRetries = promauto.NewCounter(
		prometheus.CounterOpts{Name: "tracker_rpc_retries_total", Help: "Chain RPC attempts retried after failure"},
	)

	// CycleDuration observes full ingestion cycle latency.
	CycleDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{Name: "tracker_ingest_cycle_duration_seconds", Help: "Ingestion cycle latency", Buckets: prometheus.DefBuckets},
	)

	// LastProcessedBlock tracks the cursor position.
	LastProcessedBlock = promauto.NewGauge(
		prometheus.GaugeOpts{Name: "tracker_last_processed_block", Help: "Latest fully-processed block number"},
	)

	// FeedSubscribers tracks connected live feed subscribers.
	FeedSubscribers = promauto.NewGauge(
		prometheus.GaugeOpts{Name: "tracker_feed_subscribers", Help: "Connected live feed subscribers"},
	)
)
