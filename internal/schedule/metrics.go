package schedule

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	MetricNameRegistered   = "datawatch_schedule_registered_total"
	MetricNameReclassified = "datawatch_schedule_reclassified_total"

	MetricLabelPriority = "priority"
)

var (
	MetricRegistered = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: MetricNameRegistered,
			Help: "Number of datasets registered for monitoring",
		},
	)

	MetricReclassified = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: MetricNameReclassified,
			Help: "Number of tier reclassifications by new priority",
		},
		[]string{MetricLabelPriority},
	)
)
