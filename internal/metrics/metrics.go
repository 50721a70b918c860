package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Message pipeline metrics
var (
	MessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agenda_relay_messages_total",
			Help: "Total number of messages handled, by outcome",
		},
		[]string{"outcome"},
	)

	ForwardDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "agenda_relay_forward_duration_seconds",
			Help:    "Duration of requests to the scheduling service in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"outcome"},
	)
)

// Cycle metrics
var (
	CyclesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agenda_relay_cycles_total",
			Help: "Total number of polling cycles, by result",
		},
		[]string{"result"},
	)

	CycleDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "agenda_relay_cycle_duration_seconds",
			Help:    "Duration of polling cycles in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	IMAPUp = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "agenda_relay_imap_up",
			Help: "Whether the last IMAP connectivity check succeeded (1) or not (0)",
		},
	)

	PollInterval = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "agenda_relay_poll_interval_seconds",
			Help: "Current polling interval in seconds",
		},
	)
)

// Journal metrics
var (
	JournalOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agenda_relay_journal_operations_total",
			Help: "Total number of event journal operations",
		},
		[]string{"backend", "operation", "status"},
	)
)

// Cycle results
const (
	CycleOK    = "ok"
	CycleError = "error"
)
