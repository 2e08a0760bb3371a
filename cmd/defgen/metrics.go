package main

import (
	"errors"
	"net/http"
	"time"

	"github.com/CTAG07/defgen/pkg/markov"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the counters exported on /metrics.
type Metrics struct {
	registry *prometheus.Registry

	Generated       *prometheus.CounterVec
	Exhausted       *prometheus.CounterVec
	DefinitionWords prometheus.Histogram
	Duration        *prometheus.HistogramVec
	ModelsLoaded    prometheus.Gauge
}

// NewMetrics creates the metrics and registers them on a private registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		Generated: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "defgen",
				Subsystem: "generate",
				Name:      "definitions_total",
				Help:      "Total number of definitions generated",
			},
			[]string{"model"},
		),
		Exhausted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "defgen",
				Subsystem: "generate",
				Name:      "exhausted_total",
				Help:      "Total number of generations that ended without reaching END",
			},
			[]string{"model", "reason"},
		),
		DefinitionWords: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "defgen",
				Subsystem: "generate",
				Name:      "definition_words",
				Help:      "Number of words in generated definitions",
				Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
			},
		),
		Duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "defgen",
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "Time spent serving API requests",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"handler", "code"},
		),
		ModelsLoaded: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "defgen",
				Subsystem: "model",
				Name:      "loaded",
				Help:      "Number of models held in memory by the API",
			},
		),
	}
	m.registry.MustRegister(m.Generated, m.Exhausted, m.DefinitionWords, m.Duration, m.ModelsLoaded)
	return m
}

// Handler returns the Prometheus scrape handler for the registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// ObserveGeneration records the outcome of generating definitions from model.
func (m *Metrics) ObserveGeneration(model string, defs [][]string, err error) {
	for _, def := range defs {
		m.Generated.WithLabelValues(model).Inc()
		m.DefinitionWords.Observe(float64(len(def)))
	}
	var epe *markov.ExhaustedPathError
	if errors.As(err, &epe) {
		m.Exhausted.WithLabelValues(model, epe.Reason.String()).Inc()
	}
}

// ObserveRequest records how long a handler took.
func (m *Metrics) ObserveRequest(handler, code string, start time.Time) {
	m.Duration.WithLabelValues(handler, code).Observe(time.Since(start).Seconds())
}
