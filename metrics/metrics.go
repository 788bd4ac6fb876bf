// Package metrics exposes Prometheus instrumentation for the chain
// follower, block queue, rollback engine and batcher union-find.
package metrics

import (
	"log"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// BlocksProcessedTotal counts blocks the parser has committed.
	BlocksProcessedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "batcher_monitor_blocks_processed_total",
			Help: "Total number of blocks committed by the parser",
		},
	)

	// CurrentSlot tracks the parser's last-processed slot.
	CurrentSlot = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "batcher_monitor_current_slot",
			Help: "Slot of the most recently processed block",
		},
	)

	// QueueDepth tracks the block queue's current length.
	QueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "batcher_monitor_queue_depth",
			Help: "Current number of blocks waiting in the block queue",
		},
	)

	// RollbackDepth records the slot distance walked by the most recent
	// rollback (0 when no rollback has occurred yet).
	RollbackDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "batcher_monitor_rollback_depth_slots",
			Help: "Slot distance walked by the most recent rollback",
		},
	)

	// RollbacksTotal counts rollback events.
	RollbacksTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "batcher_monitor_rollbacks_total",
			Help: "Total number of rollback events handled",
		},
	)

	// BatcherMergesTotal counts union-find merge events.
	BatcherMergesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "batcher_monitor_batcher_merges_total",
			Help: "Total number of batcher-identity merge events",
		},
	)

	// FallbackFetchesTotal counts calls to the UTxO fallback API, by outcome.
	FallbackFetchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "batcher_monitor_fallback_fetches_total",
			Help: "Total UTxO fallback API calls by outcome",
		},
		[]string{"outcome"},
	)

	// OracleQueriesTotal counts price oracle calls, by outcome.
	OracleQueriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "batcher_monitor_oracle_queries_total",
			Help: "Total price oracle calls by outcome",
		},
		[]string{"outcome"},
	)

	// BlockProcessingSeconds histograms per-block processing latency.
	BlockProcessingSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "batcher_monitor_block_processing_seconds",
			Help:    "Time spent processing a single block end to end",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 15),
		},
	)
)

func init() {
	prometheus.MustRegister(
		BlocksProcessedTotal,
		CurrentSlot,
		QueueDepth,
		RollbackDepth,
		RollbacksTotal,
		BatcherMergesTotal,
		FallbackFetchesTotal,
		OracleQueriesTotal,
		BlockProcessingSeconds,
	)
}

// StartServer starts the metrics HTTP server on the given address.
func StartServer(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	go func() {
		log.Printf("[metrics] listening on %s", addr)
		if err := http.ListenAndServe(addr, mux); err != nil {
			log.Printf("[metrics] server error: %v", err)
		}
	}()
}
