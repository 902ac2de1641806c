// Package monitoring exposes Prometheus metrics for model loading, prediction
// and HTTP traffic.
package monitoring

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Prediction outcomes used as the "outcome" label.
const (
	OutcomeSuccess         = "success"
	OutcomeCached          = "cached"
	OutcomeValidationError = "validation_error"
	OutcomeSelectionError  = "selection_error"
	OutcomePredictionError = "prediction_error"
)

// Metrics contains all Prometheus metrics of the service. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	Predictions       *prometheus.CounterVec
	InferenceDuration *prometheus.HistogramVec
	LoadedModels      prometheus.Gauge
	ModelLoadFailures prometheus.Counter
	HTTPRequests      *prometheus.CounterVec
	HTTPDuration      *prometheus.HistogramVec
	registry          *prometheus.Registry
}

// NewMetrics creates the metrics and registers them with registry.
func NewMetrics(registry *prometheus.Registry) (*Metrics, error) {
	m := &Metrics{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}
	return m, nil
}

func (m *Metrics) initMetrics() {
	m.Predictions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "powercast_predictions_total",
		Help: "Prediction requests by model and outcome",
	}, []string{"model", "outcome"})

	m.InferenceDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "powercast_inference_duration_seconds",
		Help:    "Time spent inside model inference",
		Buckets: prometheus.ExponentialBuckets(0.00001, 4, 10),
	}, []string{"model"})

	m.LoadedModels = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "powercast_loaded_models",
		Help: "Number of models available for prediction",
	})

	m.ModelLoadFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "powercast_model_load_failures_total",
		Help: "Startup errors while fetching or loading models",
	})

	m.HTTPRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "powercast_http_requests_total",
		Help: "HTTP requests by method, route and status",
	}, []string{"method", "route", "status"})

	m.HTTPDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "powercast_http_request_duration_seconds",
		Help:    "HTTP request latency by route",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
}

// Describe implements prometheus.Collector.
func (m *Metrics) Describe(ch chan<- *prometheus.Desc) {
	m.Predictions.Describe(ch)
	m.InferenceDuration.Describe(ch)
	m.LoadedModels.Describe(ch)
	m.ModelLoadFailures.Describe(ch)
	m.HTTPRequests.Describe(ch)
	m.HTTPDuration.Describe(ch)
}

// Collect implements prometheus.Collector.
func (m *Metrics) Collect(ch chan<- prometheus.Metric) {
	m.Predictions.Collect(ch)
	m.InferenceDuration.Collect(ch)
	m.LoadedModels.Collect(ch)
	m.ModelLoadFailures.Collect(ch)
	m.HTTPRequests.Collect(ch)
	m.HTTPDuration.Collect(ch)
}

func (m *Metrics) RecordPrediction(model, outcome string) {
	if m == nil {
		return
	}
	m.Predictions.WithLabelValues(model, outcome).Inc()
}

func (m *Metrics) ObserveInference(model string, d time.Duration) {
	if m == nil {
		return
	}
	m.InferenceDuration.WithLabelValues(model).Observe(d.Seconds())
}

func (m *Metrics) SetLoadedModels(n int) {
	if m == nil {
		return
	}
	m.LoadedModels.Set(float64(n))
}

func (m *Metrics) AddLoadFailures(n int) {
	if m == nil {
		return
	}
	m.ModelLoadFailures.Add(float64(n))
}

func (m *Metrics) ObserveHTTP(method, route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.HTTPDuration.WithLabelValues(route).Observe(d.Seconds())
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
