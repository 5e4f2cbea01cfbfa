// Package metrics implements Prometheus metrics for the scheduler.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ExecutionsTotal counts completed executions per task.
	ExecutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chronod_executions_total",
			Help: "Total number of completed task executions",
		},
		[]string{"task"},
	)

	// ExecutionErrorsTotal counts failed executions per task and error kind.
	ExecutionErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chronod_execution_errors_total",
			Help: "Total number of failed task executions",
		},
		[]string{"task", "kind"},
	)

	// RunningExecutions tracks currently running workers per task.
	RunningExecutions = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "chronod_running_executions",
			Help: "Number of currently running task executions",
		},
		[]string{"task"},
	)

	// ExecutionDurationSeconds measures subprocess wall-clock runtime.
	ExecutionDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chronod_execution_duration_seconds",
			Help:    "Wall-clock duration of successful task executions in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 16), // 1ms to ~32s
		},
		[]string{"task"},
	)

	// WavesTotal counts dispatched waves per task group.
	WavesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chronod_waves_total",
			Help: "Total number of execution waves dispatched",
		},
		[]string{"group"},
	)

	// TaskGroups tracks the number of task groups in the environment.
	TaskGroups = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chronod_task_groups",
			Help: "Number of task groups owned by the environment",
		},
	)
)
