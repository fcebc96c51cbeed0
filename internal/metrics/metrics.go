// Package metrics exposes Prometheus collectors for the assessment pipeline,
// the HTTP API and sensor ingestion.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "water_quality"

// Metrics holds every collector registered by the server.
type Metrics struct {
	gatherer prometheus.Gatherer

	assessments        *prometheus.CounterVec
	recommendations    prometheus.Counter
	assessmentDuration prometheus.Histogram
	failures           *prometheus.CounterVec
	skipped            *prometheus.CounterVec

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec

	ingested *prometheus.CounterVec
}

// New registers the collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return NewWithRegistry(reg, reg)
}

// NewWithRegistry registers the collectors on reg and serves them from g.
func NewWithRegistry(reg prometheus.Registerer, g prometheus.Gatherer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		gatherer: g,
		assessments: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "assessments_total",
			Help:      "Total number of completed assessments by verdict.",
		}, []string{"potable"}),
		recommendations: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recommendations_total",
			Help:      "Total number of recommendations persisted.",
		}),
		assessmentDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "assessment_duration_seconds",
			Help:      "Duration of a full assessment from validation to publish.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
		}),
		failures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "assessment_failures_total",
			Help:      "Total number of failed assessments by pipeline stage.",
		}, []string{"stage"}),
		skipped: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "parameters_skipped_total",
			Help:      "Out-of-range or invalid parameters that produced no recommendation.",
		}, []string{"status"}),
		httpRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests by route and status.",
		}, []string{"method", "route", "status"}),
		httpDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		ingested: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingested_messages_total",
			Help:      "Sensor messages received over MQTT by outcome.",
		}, []string{"outcome"}),
	}
}

// ObserveAssessment records a completed assessment.
func (m *Metrics) ObserveAssessment(potable bool, recommendations int, elapsed time.Duration) {
	m.assessments.WithLabelValues(strconv.FormatBool(potable)).Inc()
	m.recommendations.Add(float64(recommendations))
	m.assessmentDuration.Observe(elapsed.Seconds())
}

// ObserveFailure records a failed pipeline stage.
func (m *Metrics) ObserveFailure(stage string) {
	m.failures.WithLabelValues(stage).Inc()
}

// ObserveSkipped records a parameter that produced no recommendation.
func (m *Metrics) ObserveSkipped(status string) {
	m.skipped.WithLabelValues(status).Inc()
}

// ObserveRequest records one HTTP request. route is the matched pattern, not
// the raw path.
func (m *Metrics) ObserveRequest(method, route string, status int, elapsed time.Duration) {
	if route == "" {
		route = "unmatched"
	}
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

// Ingest outcomes
const (
	IngestAssessed = "assessed"
	IngestInvalid  = "invalid"
	IngestFailed   = "failed"
)

// ObserveIngest records one MQTT message outcome.
func (m *Metrics) ObserveIngest(outcome string) {
	m.ingested.WithLabelValues(outcome).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
