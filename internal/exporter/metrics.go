package exporter

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SpansExported counts spans the backend accepted.
	SpansExported = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "wasmobs",
			Subsystem: "exporter",
			Name:      "spans_exported_total",
			Help:      "Total number of spans handed to the backend",
		},
	)

	// SpansSkipped counts incomplete spans dropped before export.
	SpansSkipped = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "wasmobs",
			Subsystem: "exporter",
			Name:      "spans_skipped_total",
			Help:      "Total number of incomplete spans skipped",
		},
	)

	// ExportErrors counts spans the backend rejected.
	ExportErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "wasmobs",
			Subsystem: "exporter",
			Name:      "export_errors_total",
			Help:      "Total number of backend export failures",
		},
	)

	// ShutdownTimeouts counts backend flushes abandoned at the deadline.
	ShutdownTimeouts = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "wasmobs",
			Subsystem: "exporter",
			Name:      "shutdown_timeouts_total",
			Help:      "Total number of backend shutdowns that exceeded the timeout",
		},
	)

	// CurrentState exposes the lifecycle state of the most recent exporter.
	CurrentState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "wasmobs",
			Subsystem: "exporter",
			Name:      "state",
			Help:      "Exporter state (0=configuring 1=ready 2=draining 3=shutting_down 4=terminated 5=failed)",
		},
	)
)
