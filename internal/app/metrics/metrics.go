// Package metrics is the Prometheus collector set for this service: HTTP
// instrumentation, Job Executor and Workflow Engine counters/histograms, and
// the adapter that builds core/service.ObservationHooks.
package metrics

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	core "github.com/R3E-Network/orchestrator/internal/app/core/service"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	httpInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "orchestrator",
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "orchestrator",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "orchestrator",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~2.5s
		},
		[]string{"method", "path"},
	)

	jobExecutions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "orchestrator",
			Subsystem: "jobs",
			Name:      "runs_total",
			Help:      "Total number of tool job runs, by terminal status.",
		},
		[]string{"tool_name", "status"},
	)

	jobDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "orchestrator",
			Subsystem: "jobs",
			Name:      "run_duration_seconds",
			Help:      "Duration of tool job runs from start to terminal status.",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 12), // 500ms to ~17min
		},
		[]string{"tool_name"},
	)

	parseResults = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "orchestrator",
			Subsystem: "parsers",
			Name:      "upserts_total",
			Help:      "Total entities upserted by a parse task, by entity kind.",
		},
		[]string{"parser", "entity"},
	)

	workflowNodeDispatches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "orchestrator",
			Subsystem: "workflow",
			Name:      "node_dispatch_total",
			Help:      "Total workflow node dispatches, by node type and outcome.",
		},
		[]string{"node_type", "status"},
	)

	workflowNodeDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "orchestrator",
			Subsystem: "workflow",
			Name:      "node_dispatch_duration_seconds",
			Help:      "Duration of a single workflow node dispatch.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 14),
		},
		[]string{"node_type"},
	)

	observationCollectors sync.Map
)

func init() {
	Registry.MustRegister(
		httpInFlight,
		httpRequests,
		httpDuration,
		jobExecutions,
		jobDuration,
		parseResults,
		workflowNodeDispatches,
		workflowNodeDuration,
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered Prometheus metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// InstrumentHandler wraps the provided handler with HTTP metrics collection.
func InstrumentHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		httpInFlight.Inc()
		defer httpInFlight.Dec()

		next.ServeHTTP(rec, r)

		duration := time.Since(start)
		path := canonicalPath(r.URL.Path)
		method := strings.ToUpper(r.Method)

		httpRequests.WithLabelValues(method, path, strconv.Itoa(rec.status)).Inc()
		httpDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	})
}

// RecordJobExecution records a terminal Job outcome and its wall-clock
// duration, keyed by tool name.
func RecordJobExecution(toolName, status string, duration time.Duration) {
	if toolName == "" {
		toolName = "unknown"
	}
	if duration <= 0 {
		duration = time.Millisecond
	}
	jobExecutions.WithLabelValues(toolName, status).Inc()
	jobDuration.WithLabelValues(toolName).Observe(duration.Seconds())
}

// RecordParseUpserts records the per-entity-kind counts a parse task merged
// into the Persistence Gateway.
func RecordParseUpserts(parser string, assets, vulns, credentials, results int) {
	if parser == "" {
		parser = "unknown"
	}
	if assets > 0 {
		parseResults.WithLabelValues(parser, "asset").Add(float64(assets))
	}
	if vulns > 0 {
		parseResults.WithLabelValues(parser, "vulnerability").Add(float64(vulns))
	}
	if credentials > 0 {
		parseResults.WithLabelValues(parser, "credential").Add(float64(credentials))
	}
	if results > 0 {
		parseResults.WithLabelValues(parser, "result").Add(float64(results))
	}
}

// RecordWorkflowNodeDispatch records one workflow node's dispatch outcome
// and duration, keyed by node type.
func RecordWorkflowNodeDispatch(nodeType, status string, duration time.Duration) {
	if nodeType == "" {
		nodeType = "unknown"
	}
	if duration <= 0 {
		duration = time.Millisecond
	}
	workflowNodeDispatches.WithLabelValues(nodeType, status).Inc()
	workflowNodeDuration.WithLabelValues(nodeType).Observe(duration.Seconds())
}

type observationCollector struct {
	gauge *prometheus.GaugeVec
	hist  *prometheus.HistogramVec
}

// ObservationHooks creates core observation hooks backed by Prometheus
// metrics, one gauge+histogram pair per (namespace, subsystem, name), cached
// across calls so repeated wiring doesn't double-register collectors.
func ObservationHooks(namespace, subsystem, name string) core.ObservationHooks {
	key := namespace + ":" + subsystem + ":" + name
	var collector observationCollector
	if entry, ok := observationCollectors.Load(key); ok {
		collector = entry.(observationCollector)
	} else {
		collector = createObservationCollector(namespace, subsystem, name)
		observationCollectors.Store(key, collector)
	}
	return core.ObservationHooks{
		OnStart: func(ctx context.Context, meta map[string]string) {
			label := metaLabel(meta)
			collector.gauge.WithLabelValues(label).Inc()
		},
		OnComplete: func(ctx context.Context, meta map[string]string, err error, duration time.Duration) {
			label := metaLabel(meta)
			collector.gauge.WithLabelValues(label).Dec()
			status := "success"
			if err != nil {
				status = "error"
			}
			collector.hist.WithLabelValues(label, status).Observe(duration.Seconds())
		},
	}
}

func createObservationCollector(namespace, subsystem, name string) observationCollector {
	gauge := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      name + "_in_flight",
			Help:      "Current operations in flight for " + subsystem,
		},
		[]string{"resource"},
	)
	hist := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      name + "_duration_seconds",
			Help:      "Duration of operations for " + subsystem,
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 10),
		},
		[]string{"resource", "status"},
	)
	Registry.MustRegister(gauge, hist)
	return observationCollector{gauge: gauge, hist: hist}
}

func metaLabel(meta map[string]string) string {
	if meta == nil {
		return "unknown"
	}
	if id, ok := meta["resource"]; ok && id != "" {
		return id
	}
	if id, ok := meta["job_id"]; ok && id != "" {
		return id
	}
	if id, ok := meta["workflow_run_id"]; ok && id != "" {
		return id
	}
	if id, ok := meta["node_id"]; ok && id != "" {
		return id
	}
	return "unknown"
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}

// canonicalPath collapses a request path to a low-cardinality label so a
// parameterized route (e.g. /import/{project}/{format}) doesn't explode the
// requests_total series by project ID.
func canonicalPath(raw string) string {
	if raw == "" || raw == "/" {
		return "/"
	}
	trimmed := strings.Trim(raw, "/")
	if trimmed == "" {
		return "/"
	}
	parts := strings.Split(trimmed, "/")
	if parts[0] != "import" {
		return "/" + parts[0]
	}
	if len(parts) == 1 {
		return "/import"
	}
	if len(parts) == 2 {
		return "/import/:project"
	}
	return "/import/:project/:format"
}
