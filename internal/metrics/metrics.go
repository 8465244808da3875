// Package metrics declares the Prometheus instruments the Scheduler,
// Poller, Fetch Worker, and Timeseries Writer report through, grounded on
// internal/bot/metrics.go's promauto-vector style.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// DispatchTotal counts Scheduler dispatch attempts by outcome
// (dispatched, already_running, enqueue_failed).
var DispatchTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "marketmanager",
		Subsystem: "scheduler",
		Name:      "dispatch_total",
		Help:      "Total number of Scheduler dispatch decisions by outcome",
	},
	[]string{"exchange", "outcome"},
)

// PollTimeoutsTotal counts jobs reaped by the Poller for exceeding their
// timeout.
var PollTimeoutsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "marketmanager",
		Subsystem: "poller",
		Name:      "timeouts_total",
		Help:      "Total number of jobs reaped for exceeding their timeout",
	},
	[]string{"exchange"},
)

// FetchDuration observes the end-to-end Fetch Worker job duration.
var FetchDuration = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "marketmanager",
		Subsystem: "worker",
		Name:      "fetch_duration_seconds",
		Help:      "Fetch Worker job duration in seconds",
		Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
	},
	[]string{"exchange", "result"}, // result: ok, error
)

// FetchedPairsTotal counts parsed ticker entries per exchange per run.
var FetchedPairsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "marketmanager",
		Subsystem: "worker",
		Name:      "fetched_pairs_total",
		Help:      "Total number of ticker entries successfully parsed into a batch",
	},
	[]string{"exchange"},
)

// DroppedPairsTotal counts malformed ticker entries dropped during parsing.
var DroppedPairsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "marketmanager",
		Subsystem: "worker",
		Name:      "dropped_pairs_total",
		Help:      "Total number of malformed ticker entries dropped during parsing",
	},
	[]string{"exchange"},
)

// TimeseriesWriteFailuresTotal counts individual point-write failures
// (best-effort; never fails the Fetch Worker job).
var TimeseriesWriteFailuresTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "marketmanager",
		Subsystem: "timeseries",
		Name:      "write_failures_total",
		Help:      "Total number of failed timeseries point writes",
	},
	[]string{"measurement"}, // pairs, fiat
)

// SnapshotConflictRetriesTotal counts Snapshot Updater transaction
// conflict retries (spec §4.3/§7: retried once).
var SnapshotConflictRetriesTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "marketmanager",
		Subsystem: "snapshot",
		Name:      "conflict_retries_total",
		Help:      "Total number of Snapshot Updater transaction conflict retries",
	},
	[]string{"exchange"},
)

// QueueDepth reports the number of buffered-but-undispatched jobs.
var QueueDepth = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: "marketmanager",
		Subsystem: "queue",
		Name:      "depth",
		Help:      "Number of jobs buffered in the queue but not yet picked up by a worker",
	},
)
