package analyze

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	MetricNameAnalyses = "datawatch_analyze_payloads_total"

	MetricLabelFormat = "format"
	MetricLabelStatus = "status"
)

var MetricAnalyses = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: MetricNameAnalyses,
		Help: "Number of payload analyses by declared format and outcome",
	},
	[]string{MetricLabelFormat, MetricLabelStatus},
)
