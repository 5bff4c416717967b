package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	registry *prometheus.Registry

	// HTTP metrics
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight *prometheus.GaugeVec

	// Agent metrics
	AgentExecutions        *prometheus.CounterVec
	AgentExecutionDuration *prometheus.HistogramVec

	// Provider metrics
	ProviderRequests        *prometheus.CounterVec
	ProviderRequestDuration *prometheus.HistogramVec

	// Resilience metrics
	BreakerState  *prometheus.GaugeVec
	BreakerTrips  *prometheus.CounterVec
	RetryAttempts *prometheus.CounterVec

	// Streaming metrics
	ActiveStreams *prometheus.GaugeVec
	StreamEvents  *prometheus.CounterVec

	// Cache metrics
	CacheOperations        *prometheus.CounterVec
	CacheOperationDuration *prometheus.HistogramVec

	// Error metrics
	ErrorsTotal *prometheus.CounterVec
}

// Config holds metrics configuration
type Config struct {
	Namespace string `json:"namespace"`
	Subsystem string `json:"subsystem"`
	Enabled   bool   `json:"enabled"`
}

// DefaultConfig returns default metrics configuration
func DefaultConfig() *Config {
	return &Config{
		Namespace: "agentkit",
		Subsystem: "",
		Enabled:   true,
	}
}

// NewMetrics creates all Prometheus metrics on a dedicated registry
func NewMetrics(config *Config) *Metrics {
	if config == nil {
		config = DefaultConfig()
	}

	if !config.Enabled {
		return &Metrics{}
	}

	m := &Metrics{
		registry: prometheus.NewRegistry(),

		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: config.Namespace,
				Subsystem: config.Subsystem,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "path", "status_code"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: config.Namespace,
				Subsystem: config.Subsystem,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path", "status_code"},
		),
		HTTPRequestsInFlight: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: config.Namespace,
				Subsystem: config.Subsystem,
				Name:      "http_requests_in_flight",
				Help:      "Number of HTTP requests currently being processed",
			},
			[]string{"method", "path"},
		),

		AgentExecutions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: config.Namespace,
				Subsystem: config.Subsystem,
				Name:      "agent_executions_total",
				Help:      "Total number of agent executions",
			},
			[]string{"agent", "skill", "status"},
		),
		AgentExecutionDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: config.Namespace,
				Subsystem: config.Subsystem,
				Name:      "agent_execution_duration_seconds",
				Help:      "Agent execution duration in seconds",
				Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"agent", "status"},
		),

		ProviderRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: config.Namespace,
				Subsystem: config.Subsystem,
				Name:      "provider_requests_total",
				Help:      "Total number of model provider requests",
			},
			[]string{"provider", "model", "status"},
		),
		ProviderRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: config.Namespace,
				Subsystem: config.Subsystem,
				Name:      "provider_request_duration_seconds",
				Help:      "Model provider request duration in seconds",
				Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
			},
			[]string{"provider", "model"},
		),

		BreakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: config.Namespace,
				Subsystem: config.Subsystem,
				Name:      "circuit_breaker_state",
				Help:      "Circuit breaker state (0=closed, 1=open, 2=half-open)",
			},
			[]string{"name"},
		),
		BreakerTrips: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: config.Namespace,
				Subsystem: config.Subsystem,
				Name:      "circuit_breaker_trips_total",
				Help:      "Total number of circuit breaker trips to open",
			},
			[]string{"name"},
		),
		RetryAttempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: config.Namespace,
				Subsystem: config.Subsystem,
				Name:      "retry_attempts_total",
				Help:      "Total number of retry attempts",
			},
			[]string{"operation"},
		),

		ActiveStreams: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: config.Namespace,
				Subsystem: config.Subsystem,
				Name:      "active_streams",
				Help:      "Number of currently active streaming sessions",
			},
			[]string{"agent"},
		),
		StreamEvents: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: config.Namespace,
				Subsystem: config.Subsystem,
				Name:      "stream_events_total",
				Help:      "Total number of stream events emitted",
			},
			[]string{"event_type"},
		),

		CacheOperations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: config.Namespace,
				Subsystem: config.Subsystem,
				Name:      "cache_operations_total",
				Help:      "Total number of cache operations",
			},
			[]string{"operation", "result"},
		),
		CacheOperationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: config.Namespace,
				Subsystem: config.Subsystem,
				Name:      "cache_operation_duration_seconds",
				Help:      "Cache operation duration in seconds",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
			},
			[]string{"operation"},
		),

		ErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: config.Namespace,
				Subsystem: config.Subsystem,
				Name:      "errors_total",
				Help:      "Total number of errors",
			},
			[]string{"component", "error_type"},
		),
	}

	m.registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
		m.AgentExecutions,
		m.AgentExecutionDuration,
		m.ProviderRequests,
		m.ProviderRequestDuration,
		m.BreakerState,
		m.BreakerTrips,
		m.RetryAttempts,
		m.ActiveStreams,
		m.StreamEvents,
		m.CacheOperations,
		m.CacheOperationDuration,
		m.ErrorsTotal,
	)

	return m
}

// RecordHTTPRequest records HTTP request metrics
func (m *Metrics) RecordHTTPRequest(method, path string, statusCode int, duration time.Duration) {
	if m.HTTPRequestsTotal == nil {
		return
	}

	statusStr := strconv.Itoa(statusCode)
	m.HTTPRequestsTotal.WithLabelValues(method, path, statusStr).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path, statusStr).Observe(duration.Seconds())
}

// RecordAgentExecution records agent execution metrics
func (m *Metrics) RecordAgentExecution(agent, skill, status string, duration time.Duration) {
	if m.AgentExecutions == nil {
		return
	}

	m.AgentExecutions.WithLabelValues(agent, skill, status).Inc()
	m.AgentExecutionDuration.WithLabelValues(agent, status).Observe(duration.Seconds())
}

// RecordProviderRequest records model provider request metrics
func (m *Metrics) RecordProviderRequest(provider, model, status string, duration time.Duration) {
	if m.ProviderRequests == nil {
		return
	}

	m.ProviderRequests.WithLabelValues(provider, model, status).Inc()
	m.ProviderRequestDuration.WithLabelValues(provider, model).Observe(duration.Seconds())
}

// UpdateBreakerState updates the circuit breaker state gauge
func (m *Metrics) UpdateBreakerState(name string, state int) {
	if m.BreakerState == nil {
		return
	}

	m.BreakerState.WithLabelValues(name).Set(float64(state))
}

// RecordBreakerTrip records a circuit breaker trip to open
func (m *Metrics) RecordBreakerTrip(name string) {
	if m.BreakerTrips == nil {
		return
	}

	m.BreakerTrips.WithLabelValues(name).Inc()
}

// RecordRetryAttempt records a retry attempt
func (m *Metrics) RecordRetryAttempt(operation string) {
	if m.RetryAttempts == nil {
		return
	}

	m.RetryAttempts.WithLabelValues(operation).Inc()
}

// IncActiveStreams records a streaming session opening
func (m *Metrics) IncActiveStreams(agent string) {
	if m.ActiveStreams == nil {
		return
	}

	m.ActiveStreams.WithLabelValues(agent).Inc()
}

// DecActiveStreams records a streaming session closing
func (m *Metrics) DecActiveStreams(agent string) {
	if m.ActiveStreams == nil {
		return
	}

	m.ActiveStreams.WithLabelValues(agent).Dec()
}

// RecordStreamEvent records an emitted stream event
func (m *Metrics) RecordStreamEvent(eventType string) {
	if m.StreamEvents == nil {
		return
	}

	m.StreamEvents.WithLabelValues(eventType).Inc()
}

// RecordCacheOperation records cache operation metrics
func (m *Metrics) RecordCacheOperation(operation, result string, duration time.Duration) {
	if m.CacheOperations == nil {
		return
	}

	m.CacheOperations.WithLabelValues(operation, result).Inc()
	m.CacheOperationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordError records error metrics
func (m *Metrics) RecordError(component, errorType string) {
	if m.ErrorsTotal == nil {
		return
	}

	m.ErrorsTotal.WithLabelValues(component, errorType).Inc()
}

// PrometheusMiddleware creates a middleware for Prometheus metrics collection
func (m *Metrics) PrometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if m.HTTPRequestsInFlight != nil {
			m.HTTPRequestsInFlight.WithLabelValues(c.Request.Method, c.FullPath()).Inc()
			defer m.HTTPRequestsInFlight.WithLabelValues(c.Request.Method, c.FullPath()).Dec()
		}

		start := time.Now()
		c.Next()
		duration := time.Since(start)

		m.RecordHTTPRequest(c.Request.Method, c.FullPath(), c.Writer.Status(), duration)
	}
}

// Handler returns the Prometheus metrics HTTP handler
func (m *Metrics) Handler() http.Handler {
	if m.registry == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
