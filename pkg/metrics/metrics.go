package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the warehouse-core Prometheus collectors.
// All Record methods are safe on a nil receiver so services can run without metrics.
type Metrics struct {
	serviceName string
	registry    *prometheus.Registry

	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge

	KafkaEventsPublished *prometheus.CounterVec
	KafkaPublishDuration *prometheus.HistogramVec

	StoreOperations        *prometheus.CounterVec
	StoreOperationDuration *prometheus.HistogramVec

	OutboxPending   prometheus.Gauge
	OutboxPublished *prometheus.CounterVec
	OutboxRetries   *prometheus.CounterVec

	WorkflowsStarted   *prometheus.CounterVec
	WorkflowsCompleted *prometheus.CounterVec

	// Domain
	MovementsApplied   *prometheus.CounterVec
	MovementsReplayed  prometheus.Counter
	AllocationsCreated *prometheus.CounterVec
	BackordersCreated  prometheus.Counter
	TaskExceptions     *prometheus.CounterVec
	TasksCompleted     *prometheus.CounterVec
	ShortPicks         prometheus.Counter
	WavesReleased      prometheus.Counter
	ScanRejections     *prometheus.CounterVec

	CircuitBreakerState *prometheus.GaugeVec
}

// Config holds metrics configuration
type Config struct {
	ServiceName string
	Namespace   string
}

// DefaultConfig returns default metrics configuration
func DefaultConfig(serviceName string) *Config {
	return &Config{ServiceName: serviceName, Namespace: "wms"}
}

// New creates a new Metrics instance on a private registry
func New(config *Config) *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	ns := config.Namespace
	m := &Metrics{serviceName: config.ServiceName, registry: registry}

	m.HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns, Name: "http_requests_total", Help: "Total number of HTTP requests",
	}, []string{"service", "method", "path", "status"})
	m.HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: ns, Name: "http_request_duration_seconds", Help: "HTTP request duration in seconds",
		Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
	}, []string{"service", "method", "path"})
	m.HTTPRequestsInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: ns, Name: "http_requests_in_flight", Help: "Number of HTTP requests being served",
		ConstLabels: prometheus.Labels{"service": config.ServiceName},
	})

	m.KafkaEventsPublished = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns, Name: "kafka_events_published_total", Help: "Total number of events published to Kafka",
	}, []string{"service", "topic", "event_type", "status"})
	m.KafkaPublishDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: ns, Name: "kafka_publish_duration_seconds", Help: "Kafka publish duration in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"service", "topic"})

	m.StoreOperations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns, Name: "store_operations_total", Help: "Total number of store operations",
	}, []string{"service", "collection", "operation", "status"})
	m.StoreOperationDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: ns, Name: "store_operation_duration_seconds", Help: "Store operation duration in seconds",
		Buckets: []float64{.0005, .001, .005, .01, .025, .05, .1, .25, .5, 1},
	}, []string{"service", "collection", "operation"})

	m.OutboxPending = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: ns, Name: "outbox_pending_events", Help: "Unpublished events seen in the last poll",
		ConstLabels: prometheus.Labels{"service": config.ServiceName},
	})
	m.OutboxPublished = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns, Name: "outbox_published_total", Help: "Outbox events relayed to the bus",
	}, []string{"service", "event_type", "status"})
	m.OutboxRetries = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns, Name: "outbox_retries_total", Help: "Outbox relay retries",
	}, []string{"service", "event_type"})

	m.WorkflowsStarted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns, Name: "temporal_workflows_started_total", Help: "Temporal workflows started",
	}, []string{"service", "workflow_type"})
	m.WorkflowsCompleted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns, Name: "temporal_workflows_completed_total", Help: "Temporal workflows completed",
	}, []string{"service", "workflow_type", "status"})

	m.MovementsApplied = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns, Name: "ledger_movements_applied_total", Help: "Inventory movements applied, by kind",
	}, []string{"service", "kind"})
	m.MovementsReplayed = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: ns, Name: "ledger_movements_replayed_total", Help: "Idempotent movement replays",
		ConstLabels: prometheus.Labels{"service": config.ServiceName},
	})
	m.AllocationsCreated = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns, Name: "allocations_created_total", Help: "Allocation slices created",
	}, []string{"service", "outcome"})
	m.BackordersCreated = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: ns, Name: "backorders_created_total", Help: "Backorders recorded",
		ConstLabels: prometheus.Labels{"service": config.ServiceName},
	})
	m.TaskExceptions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns, Name: "task_exceptions_total", Help: "Task exceptions raised, by kind",
	}, []string{"service", "kind"})
	m.TasksCompleted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns, Name: "tasks_completed_total", Help: "Tasks finalized, by type",
	}, []string{"service", "type"})
	m.ShortPicks = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: ns, Name: "short_picks_total", Help: "Short picks recorded",
		ConstLabels: prometheus.Labels{"service": config.ServiceName},
	})
	m.WavesReleased = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: ns, Name: "waves_released_total", Help: "Waves released",
		ConstLabels: prometheus.Labels{"service": config.ServiceName},
	})
	m.ScanRejections = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns, Name: "scan_rejections_total", Help: "Rejected scans, by expected kind",
	}, []string{"service", "expected"})

	m.CircuitBreakerState = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: ns, Name: "circuit_breaker_state", Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
	}, []string{"service", "name"})

	registry.MustRegister(
		m.HTTPRequestsTotal, m.HTTPRequestDuration, m.HTTPRequestsInFlight,
		m.KafkaEventsPublished, m.KafkaPublishDuration,
		m.StoreOperations, m.StoreOperationDuration,
		m.OutboxPending, m.OutboxPublished, m.OutboxRetries,
		m.WorkflowsStarted, m.WorkflowsCompleted,
		m.MovementsApplied, m.MovementsReplayed, m.AllocationsCreated, m.BackordersCreated,
		m.TaskExceptions, m.TasksCompleted, m.ShortPicks, m.WavesReleased, m.ScanRejections,
		m.CircuitBreakerState,
	)
	return m
}

// Handler returns an HTTP handler for the metrics endpoint
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

// Registry returns the prometheus registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func status(success bool) string {
	if success {
		return "success"
	}
	return "error"
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, path string, code int, duration time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(m.serviceName, method, path, strconv.Itoa(code)).Inc()
	m.HTTPRequestDuration.WithLabelValues(m.serviceName, method, path).Observe(duration.Seconds())
}

func (m *Metrics) IncrementHTTPRequestsInFlight() {
	if m != nil {
		m.HTTPRequestsInFlight.Inc()
	}
}

func (m *Metrics) DecrementHTTPRequestsInFlight() {
	if m != nil {
		m.HTTPRequestsInFlight.Dec()
	}
}

// RecordKafkaPublish records a Kafka publish
func (m *Metrics) RecordKafkaPublish(topic, eventType string, success bool, duration time.Duration) {
	if m == nil {
		return
	}
	m.KafkaEventsPublished.WithLabelValues(m.serviceName, topic, eventType, status(success)).Inc()
	m.KafkaPublishDuration.WithLabelValues(m.serviceName, topic).Observe(duration.Seconds())
}

// RecordStoreOperation records a store call
func (m *Metrics) RecordStoreOperation(collection, operation string, success bool, duration time.Duration) {
	if m == nil {
		return
	}
	m.StoreOperations.WithLabelValues(m.serviceName, collection, operation, status(success)).Inc()
	m.StoreOperationDuration.WithLabelValues(m.serviceName, collection, operation).Observe(duration.Seconds())
}

func (m *Metrics) SetOutboxPending(n int) {
	if m != nil {
		m.OutboxPending.Set(float64(n))
	}
}

func (m *Metrics) RecordOutboxPublish(eventType string, success bool) {
	if m != nil {
		m.OutboxPublished.WithLabelValues(m.serviceName, eventType, status(success)).Inc()
	}
}

func (m *Metrics) RecordOutboxRetry(eventType string) {
	if m != nil {
		m.OutboxRetries.WithLabelValues(m.serviceName, eventType).Inc()
	}
}

func (m *Metrics) RecordWorkflowStarted(workflowType string) {
	if m != nil {
		m.WorkflowsStarted.WithLabelValues(m.serviceName, workflowType).Inc()
	}
}

func (m *Metrics) RecordWorkflowCompleted(workflowType string, success bool) {
	if m != nil {
		m.WorkflowsCompleted.WithLabelValues(m.serviceName, workflowType, status(success)).Inc()
	}
}

// RecordMovement counts an applied movement; replayed movements are counted separately
func (m *Metrics) RecordMovement(kind string, replayed bool) {
	if m == nil {
		return
	}
	if replayed {
		m.MovementsReplayed.Inc()
		return
	}
	m.MovementsApplied.WithLabelValues(m.serviceName, kind).Inc()
}

// RecordAllocation records the outcome of one order allocation run
func (m *Metrics) RecordAllocation(slices, backorders int) {
	if m == nil {
		return
	}
	outcome := "full"
	if backorders > 0 {
		outcome = "partial"
	}
	m.AllocationsCreated.WithLabelValues(m.serviceName, outcome).Add(float64(slices))
	m.BackordersCreated.Add(float64(backorders))
}

func (m *Metrics) RecordTaskException(kind string) {
	if m != nil {
		m.TaskExceptions.WithLabelValues(m.serviceName, kind).Inc()
	}
}

func (m *Metrics) RecordTaskCompleted(taskType string) {
	if m != nil {
		m.TasksCompleted.WithLabelValues(m.serviceName, taskType).Inc()
	}
}

func (m *Metrics) RecordShortPick() {
	if m != nil {
		m.ShortPicks.Inc()
	}
}

func (m *Metrics) RecordWaveReleased() {
	if m != nil {
		m.WavesReleased.Inc()
	}
}

func (m *Metrics) RecordScanRejected(expected string) {
	if m != nil {
		m.ScanRejections.WithLabelValues(m.serviceName, expected).Inc()
	}
}

// SetCircuitBreakerState sets the circuit breaker state gauge
func (m *Metrics) SetCircuitBreakerState(name string, state int) {
	if m != nil {
		m.CircuitBreakerState.WithLabelValues(m.serviceName, name).Set(float64(state))
	}
}
