package provenance

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	actionsExecuted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "provenance",
		Name:      "actions_executed_total",
		Help:      "Actions executed, including replays.",
	}, []string{"function"})

	commandFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "provenance",
		Name:      "command_failures_total",
		Help:      "Command functions that returned an error or panicked.",
	}, []string{"function"})

	chainLength = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "provenance",
		Name:      "replay_chain_length",
		Help:      "Replay chain length before and after compression.",
		Buckets:   []float64{0, 1, 2, 4, 8, 16, 32, 64, 128},
	}, []string{"stage"})

	jumps = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "provenance",
		Name:      "jumps_total",
		Help:      "Completed jumps between states.",
	})

	undos = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "provenance",
		Name:      "undos_total",
		Help:      "Completed undo requests.",
	})
)
