package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ExecutionsTotal counts finished judge runs by language and outcome.
	ExecutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "alsit_executions_total",
			Help: "Total number of judge executions",
		},
		[]string{"language", "outcome"},
	)

	// ExecutionDuration tracks wall time of a judge run, gate wait excluded.
	ExecutionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "alsit_execution_duration_seconds",
			Help:    "Duration of judge executions in seconds",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12), // 50ms to ~100s
		},
		[]string{"language"},
	)

	// GateWait tracks how long a task queued behind a busy judge.
	GateWait = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "alsit_judge_gate_wait_seconds",
			Help:    "Time a dispatched ticket waited for its judge",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 10),
		},
		[]string{"language"},
	)

	// JudgesBusy tracks judges currently executing a ticket.
	JudgesBusy = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "alsit_judges_busy",
			Help: "Number of judges currently executing a ticket",
		},
		[]string{"language"},
	)

	// TasksInFlight tracks dispatched tasks that have not completed.
	TasksInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "alsit_tasks_in_flight",
			Help: "Number of dispatched tickets not yet finished",
		},
	)

	// DispatchRejected counts tickets refused synchronously by the dispatcher.
	DispatchRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "alsit_dispatch_rejected_total",
			Help: "Total number of tickets rejected at dispatch",
		},
		[]string{"language", "reason"},
	)

	// RetryAttempts counts retried transient failures per operation.
	RetryAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "alsit_retry_attempts_total",
			Help: "Total number of retried operations",
		},
		[]string{"op"},
	)
)
