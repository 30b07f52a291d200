// Package metrics exports Prometheus counters for the harvest pipeline.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the pipeline collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	PagesFetched      *prometheus.CounterVec
	TransientRetries  *prometheus.CounterVec
	MessagesHarvested *prometheus.CounterVec
	DuplicatesDropped *prometheus.CounterVec
	MessagesByType    *prometheus.CounterVec
	Runs              *prometheus.CounterVec
}

// New registers the collectors on a private registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		PagesFetched: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "harvest_pages_fetched_total",
			Help: "History pages fetched per channel",
		}, []string{"channel"}),
		TransientRetries: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "harvest_transient_retries_total",
			Help: "Page fetches retried after a transient fault",
		}, []string{"channel"}),
		MessagesHarvested: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "harvest_messages_total",
			Help: "Deduplicated messages returned by crawls",
		}, []string{"channel"}),
		DuplicatesDropped: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "harvest_duplicates_dropped_total",
			Help: "Messages dropped by overlap deduplication",
		}, []string{"channel"}),
		MessagesByType: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "harvest_classified_total",
			Help: "Classified messages by alert type",
		}, []string{"alert_type"}),
		Runs: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "harvest_runs_total",
			Help: "Pipeline runs by outcome",
		}, []string{"outcome"}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) PageFetched(channel string) {
	if m == nil {
		return
	}
	m.PagesFetched.WithLabelValues(channel).Inc()
}

func (m *Metrics) TransientRetry(channel string) {
	if m == nil {
		return
	}
	m.TransientRetries.WithLabelValues(channel).Inc()
}

func (m *Metrics) Harvested(channel string, messages, duplicates int) {
	if m == nil {
		return
	}
	m.MessagesHarvested.WithLabelValues(channel).Add(float64(messages))
	m.DuplicatesDropped.WithLabelValues(channel).Add(float64(duplicates))
}

func (m *Metrics) Classified(alertType string) {
	if m == nil {
		return
	}
	m.MessagesByType.WithLabelValues(alertType).Inc()
}

func (m *Metrics) RunFinished(outcome string) {
	if m == nil {
		return
	}
	m.Runs.WithLabelValues(outcome).Inc()
}
