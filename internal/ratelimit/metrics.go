package ratelimit

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	MetricNameDelays      = "datawatch_ratelimit_delays_total"
	MetricNameRateLimited = "datawatch_ratelimit_429s_total"

	MetricLabelReason = "reason"
	MetricLabelDomain = "domain"

	MetricDelayReasonWindow     = "window_cap"
	MetricDelayReasonRetryAfter = "retry_after"
	MetricDelayReasonBackoff    = "backoff"
)

var (
	MetricDelays = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: MetricNameDelays,
			Help: "Number of delayed fetch decisions by reason",
		},
		[]string{MetricLabelReason},
	)

	MetricRateLimited = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: MetricNameRateLimited,
			Help: "Number of 429 responses received per domain",
		},
		[]string{MetricLabelDomain},
	)
)
