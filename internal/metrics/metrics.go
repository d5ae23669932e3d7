// Package metrics holds the Prometheus collectors for the evaluation pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all Prometheus metrics for the station.
type Metrics struct {
	Evaluations   *prometheus.CounterVec // labels: outcome
	Signal        *prometheus.GaugeVec   // labels: ticker, timeframe; 1 bullish, 0 neutral, -1 bearish
	Transitions   *prometheus.CounterVec // labels: to
	Notifications *prometheus.CounterVec // labels: sink, result
	FetchDuration *prometheus.HistogramVec
	CacheRequests *prometheus.CounterVec // labels: result
}

// New creates the collectors and registers them on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Evaluations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "station_evaluations_total",
			Help: "Evaluation passes by outcome",
		}, []string{"outcome"}),
		Signal: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "station_signal",
			Help: "Latest signal per instrument (1 bullish, 0 neutral, -1 bearish)",
		}, []string{"ticker", "timeframe"}),
		Transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "station_transitions_total",
			Help: "Signal transitions committed by the dispatcher",
		}, []string{"to"}),
		Notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "station_notifications_total",
			Help: "Notification deliveries per sink",
		}, []string{"sink", "result"}),
		FetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "station_fetch_duration_seconds",
			Help:    "Upstream market data fetch latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"provider"}),
		CacheRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "station_cache_requests_total",
			Help: "Bar store lookups by result (hit, miss, stale)",
		}, []string{"result"}),
	}

	reg.MustRegister(
		m.Evaluations,
		m.Signal,
		m.Transitions,
		m.Notifications,
		m.FetchDuration,
		m.CacheRequests,
	)
	return m
}

// NewUnregistered returns collectors bound to a private registry. Used by tests and tools.
func NewUnregistered() *Metrics {
	return New(prometheus.NewRegistry())
}
