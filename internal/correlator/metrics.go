package correlator

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SpansEmitted counts spans handed to the delivery queue.
	// Labels: status (completed, failed)
	SpansEmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "wasmobs",
			Subsystem: "correlator",
			Name:      "spans_emitted_total",
			Help:      "Total number of spans emitted by status",
		},
		[]string{"status"},
	)

	// OrphanExits counts exit events with no matching enter.
	OrphanExits = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "wasmobs",
			Subsystem: "correlator",
			Name:      "orphan_exits_total",
			Help:      "Total number of exit events without a matching enter",
		},
	)

	// SpansDropped counts spans the queue refused.
	SpansDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "wasmobs",
			Subsystem: "correlator",
			Name:      "spans_dropped_total",
			Help:      "Total number of spans dropped because the queue refused them",
		},
	)

	// PendingCalls tracks calls that have entered but not exited.
	PendingCalls = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "wasmobs",
			Subsystem: "correlator",
			Name:      "pending_calls",
			Help:      "Number of in-flight instrumented calls",
		},
	)
)
