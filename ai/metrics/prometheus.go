// Package metrics provides Prometheus metrics export for the chat and
// memory subsystems.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusExporter exports service metrics in Prometheus format.
type PrometheusExporter struct {
	registry *prometheus.Registry

	chatLatency  *prometheus.HistogramVec
	chatRequests *prometheus.CounterVec
	llmTokens    *prometheus.CounterVec

	memoryOps   *prometheus.CounterVec
	memoryItems *prometheus.GaugeVec
}

// Config configures the Prometheus exporter.
type Config struct {
	// Registry to use (if nil, creates a new one)
	Registry *prometheus.Registry

	// Buckets for latency histograms (in seconds)
	LatencyBuckets []float64
}

// DefaultConfig returns default Prometheus configuration.
func DefaultConfig() Config {
	return Config{
		LatencyBuckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
	}
}

// NewPrometheusExporter creates a new Prometheus metrics exporter.
func NewPrometheusExporter(cfg Config) *PrometheusExporter {
	if len(cfg.LatencyBuckets) == 0 {
		cfg.LatencyBuckets = DefaultConfig().LatencyBuckets
	}

	registry := cfg.Registry
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	e := &PrometheusExporter{registry: registry}

	e.chatLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "luna",
			Subsystem: "chat",
			Name:      "latency_seconds",
			Help:      "Chat request latency in seconds",
			Buckets:   cfg.LatencyBuckets,
		},
		[]string{"model"},
	)

	e.chatRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "luna",
			Subsystem: "chat",
			Name:      "requests_total",
			Help:      "Total number of chat requests",
		},
		[]string{"model", "status"},
	)

	e.llmTokens = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "luna",
			Subsystem: "chat",
			Name:      "llm_tokens_total",
			Help:      "Total LLM tokens consumed",
		},
		[]string{"model", "token_type"},
	)

	e.memoryOps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "luna",
			Subsystem: "memory",
			Name:      "operations_total",
			Help:      "Total number of memory operations",
		},
		[]string{"operation"},
	)

	e.memoryItems = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "luna",
			Subsystem: "memory",
			Name:      "items",
			Help:      "Current number of stored memory items",
		},
		[]string{"store"},
	)

	registry.MustRegister(
		e.chatLatency,
		e.chatRequests,
		e.llmTokens,
		e.memoryOps,
		e.memoryItems,
	)

	return e
}

// RecordChatRequest records a chat request metric.
func (e *PrometheusExporter) RecordChatRequest(model string, latency time.Duration, success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	e.chatRequests.WithLabelValues(model, status).Inc()
	e.chatLatency.WithLabelValues(model).Observe(latency.Seconds())
}

// RecordLLMTokens records LLM token usage.
func (e *PrometheusExporter) RecordLLMTokens(model, tokenType string, count int) {
	e.llmTokens.WithLabelValues(model, tokenType).Add(float64(count))
}

// RecordMemoryOp records a memory operation.
func (e *PrometheusExporter) RecordMemoryOp(operation string) {
	e.memoryOps.WithLabelValues(operation).Inc()
}

// SetMemoryItems sets the current size of a memory store.
func (e *PrometheusExporter) SetMemoryItems(store string, count int) {
	e.memoryItems.WithLabelValues(store).Set(float64(count))
}

// Handler returns an HTTP handler for the metrics endpoint.
func (e *PrometheusExporter) Handler() http.Handler {
	return promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{})
}

// GetRegistry returns the Prometheus registry.
func (e *PrometheusExporter) GetRegistry() *prometheus.Registry {
	return e.registry
}
