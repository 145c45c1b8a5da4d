package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var (
	// Registry is the dedicated Prometheus registry for the API
	Registry = prometheus.NewRegistry()
	// HTTPRequests counts requests by method, path, and status
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "http_requests_total", Help: "Total HTTP requests."},
		[]string{"method", "path", "status"},
	)
	// HTTPDuration records request durations in seconds
	HTTPDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "http_request_duration_seconds", Help: "HTTP request duration in seconds.", Buckets: prometheus.DefBuckets},
		[]string{"method", "path", "status"},
	)

	// OptimizeDuration tracks route optimization wall time in seconds
	OptimizeDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{Name: "optimize_duration_seconds", Help: "Route optimization duration in seconds.", Buckets: prometheus.DefBuckets},
	)
	// OptimizeStops records how many stops each optimization covered
	OptimizeStops = prometheus.NewHistogram(
		prometheus.HistogramOpts{Name: "optimize_stops", Help: "Stops per optimization request.", Buckets: []float64{2, 5, 10, 20, 50, 100, 200}},
	)
	// Assignments counts task assignment attempts by outcome
	Assignments = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "assignments_total", Help: "Task assignment attempts by outcome."},
		[]string{"outcome"},
	)
	// Reassignments counts breakdown recoveries by task outcome
	Reassignments = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "reassignments_total", Help: "Breakdown task reassignments by outcome."},
		[]string{"outcome"},
	)
	// TasksCompleted counts tasks delivered via location updates
	TasksCompleted = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "tasks_completed_total", Help: "Tasks completed."},
	)

	// WebhookDeliveries counts webhook delivery outcomes by event type and status
	WebhookDeliveries = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "webhook_deliveries_total", Help: "Webhook deliveries by event type and status."},
		[]string{"event_type", "status"},
	)
)

// RegisterDefault registers collectors to the dedicated registry.
func RegisterDefault() {
	regOnce.Do(func() {
		Registry.MustRegister(HTTPRequests)
		Registry.MustRegister(HTTPDuration)
		Registry.MustRegister(OptimizeDuration)
		Registry.MustRegister(OptimizeStops)
		Registry.MustRegister(Assignments)
		Registry.MustRegister(Reassignments)
		Registry.MustRegister(TasksCompleted)
		Registry.MustRegister(WebhookDeliveries)
		// Go/process collectors on our registry
		Registry.MustRegister(collectors.NewGoCollector())
		Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	})
}

var regOnce sync.Once
