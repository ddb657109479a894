package monitor

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	MetricNameChecks = "datawatch_monitor_checks_total"
	MetricNameEvents = "datawatch_monitor_events_total"

	MetricLabelTier      = "tier"
	MetricLabelStatus    = "status"
	MetricLabelEventType = "event_type"
)

var (
	// BuildInfo carries version labels for the running binary.
	BuildInfo = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "datawatch_build_info",
		Help: "Build information of the dataset monitor",
	}, []string{"version", "commit", "date"})

	MetricChecks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: MetricNameChecks,
			Help: "Number of dataset checks by tier and outcome",
		},
		[]string{MetricLabelTier, MetricLabelStatus},
	)

	MetricEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: MetricNameEvents,
			Help: "Number of change events emitted by type",
		},
		[]string{MetricLabelEventType},
	)
)
