package fetch

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	MetricNameFetchErrors    = "datawatch_fetch_errors_total"
	MetricNameTasksSubmitted = "datawatch_fetch_tasks_submitted_total"

	MetricLabelErrorType = "error_type"
	MetricLabelTier      = "tier"
)

var (
	MetricFetchErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: MetricNameFetchErrors,
			Help: "Number of fetch errors by type",
		},
		[]string{MetricLabelErrorType},
	)

	MetricTasksSubmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: MetricNameTasksSubmitted,
			Help: "Number of fetch tasks submitted per tier",
		},
		[]string{MetricLabelTier},
	)
)
