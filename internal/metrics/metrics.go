package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CyclesTotal counts healing cycles run
	CyclesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gpuheald_cycles_total",
			Help: "Total number of healing cycles run",
		},
	)

	// ClassificationsTotal counts classified conditions per category
	ClassificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gpuheald_classifications_total",
			Help: "Total number of classified error conditions",
		},
		[]string{"category"},
	)

	// ActionsTotal counts remediation attempts per action and outcome
	ActionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gpuheald_actions_total",
			Help: "Total number of remediation attempts",
		},
		[]string{"action", "outcome"},
	)

	// CooldownVetoesTotal counts actions suppressed by the cooldown guard
	CooldownVetoesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gpuheald_cooldown_vetoes_total",
			Help: "Total number of actions suppressed by the cooldown guard",
		},
		[]string{"action"},
	)

	// LedgerWriteFailuresTotal counts swallowed ledger write failures
	LedgerWriteFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gpuheald_ledger_write_failures_total",
			Help: "Total number of ledger writes that failed and were skipped",
		},
	)

	// RemediationDuration tracks remediation latency per action
	RemediationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gpuheald_remediation_duration_seconds",
			Help:    "Remediation execution time in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"action"},
	)
)
