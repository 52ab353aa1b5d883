package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Метрики движка. Регистрируются в default registry,
// чтобы попасть в promhttp.Handler() любого бинарника.
var (
	// ExecutionsTotal — количество завершённых executions по статусам.
	ExecutionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hookflow_executions_total",
		Help: "Completed workflow executions by terminal status",
	}, []string{"status"})

	// NodeExecutionsTotal — количество выполненных узлов по типам.
	NodeExecutionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hookflow_node_executions_total",
		Help: "Executed workflow nodes by node type",
	}, []string{"type"})

	// TaskRetriesTotal — количество повторов httpTask/gptTask задач.
	TaskRetriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hookflow_task_retries_total",
		Help: "Task retries by task type",
	}, []string{"type"})

	// ExecutionDuration — длительность выполнения workflow.
	ExecutionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "hookflow_execution_duration_seconds",
		Help:    "Wall-clock duration of workflow executions",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
	})
)
