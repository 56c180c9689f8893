package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the front door's Prometheus instruments.
type Metrics struct {
	ChatRequests *prometheus.CounterVec // outcome: success | error | bad_request
	Sessions     *prometheus.CounterVec // mode: created | loaded
	TurnDuration prometheus.Histogram
}

// NewMetrics registers the instruments with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		ChatRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "refresh",
			Name:      "chat_requests_total",
			Help:      "Chat requests by outcome.",
		}, []string{"outcome"}),
		Sessions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "refresh",
			Name:      "sessions_total",
			Help:      "Sessions resolved by the front door, by create-or-load outcome.",
		}, []string{"mode"}),
		TurnDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "refresh",
			Name:      "turn_duration_seconds",
			Help:      "End-to-end duration of one conversational turn.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
}
