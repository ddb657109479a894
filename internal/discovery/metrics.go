package discovery

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	MetricNameSessions           = "datawatch_discovery_sessions_total"
	MetricNameSourceErrors       = "datawatch_discovery_source_errors_total"
	MetricNameDatasetsDiscovered = "datawatch_discovery_datasets_total"

	MetricLabelStatus = "status"
	MetricLabelSource = "source"
)

var (
	MetricSessions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: MetricNameSessions,
			Help: "Number of discovery sessions by final status",
		},
		[]string{MetricLabelStatus},
	)

	MetricSourceErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: MetricNameSourceErrors,
			Help: "Number of per-source enumeration failures",
		},
		[]string{MetricLabelSource},
	)

	MetricDatasetsDiscovered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: MetricNameDatasetsDiscovered,
			Help: "Number of newly discovered datasets per source",
		},
		[]string{MetricLabelSource},
	)
)
