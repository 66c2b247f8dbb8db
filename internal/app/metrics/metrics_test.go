package metrics

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	io_prometheus_client "github.com/prometheus/client_model/go"
)

func TestInstrumentHandlerRecordsMetrics(t *testing.T) {
	handler := InstrumentHandler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}))

	req := httptest.NewRequest(http.MethodGet, "/import/proj-1/nmap", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", rec.Code)
	}

	if !metricCounterGreaterOrEqual(t, "orchestrator_http_requests_total", map[string]string{
		"method": "GET",
		"path":   "/import/:project/:format",
		"status": "202",
	}, 1) {
		t.Fatalf("expected http request counter to increment")
	}

	if !metricHistogramCountGreaterOrEqual(t, "orchestrator_http_request_duration_seconds", map[string]string{
		"method": "GET",
		"path":   "/import/:project/:format",
	}, 1) {
		t.Fatalf("expected http duration histogram to record samples")
	}
}

func TestRecordJobExecution(t *testing.T) {
	RecordJobExecution("nmap", "completed", 250*time.Millisecond)
	if !metricCounterGreaterOrEqual(t, "orchestrator_jobs_runs_total", map[string]string{
		"tool_name": "nmap",
		"status":    "completed",
	}, 1) {
		t.Fatalf("expected job execution counter to increase")
	}
	if !metricHistogramCountGreaterOrEqual(t, "orchestrator_jobs_run_duration_seconds", map[string]string{
		"tool_name": "nmap",
	}, 1) {
		t.Fatalf("expected job duration histogram to record")
	}
}

func TestRecordJobExecution_EdgeCases(t *testing.T) {
	RecordJobExecution("", "failed", 0)
	if !metricCounterGreaterOrEqual(t, "orchestrator_jobs_runs_total", map[string]string{
		"tool_name": "unknown",
		"status":    "failed",
	}, 1) {
		t.Fatalf("expected job execution counter with unknown tool name")
	}

	RecordJobExecution("hydra", "timeout", -5*time.Second)
	if !metricCounterGreaterOrEqual(t, "orchestrator_jobs_runs_total", map[string]string{
		"tool_name": "hydra",
		"status":    "timeout",
	}, 1) {
		t.Fatalf("expected job execution counter with negative duration")
	}
}

func TestRecordParseUpserts(t *testing.T) {
	RecordParseUpserts("nuclei_jsonl", 2, 3, 0, 1)
	if !metricCounterGreaterOrEqual(t, "orchestrator_parsers_upserts_total", map[string]string{
		"parser": "nuclei_jsonl",
		"entity": "vulnerability",
	}, 3) {
		t.Fatalf("expected parser upsert counter for vulnerabilities to increase")
	}
	if !metricCounterGreaterOrEqual(t, "orchestrator_parsers_upserts_total", map[string]string{
		"parser": "nuclei_jsonl",
		"entity": "asset",
	}, 2) {
		t.Fatalf("expected parser upsert counter for assets to increase")
	}

	// zero counts for an entity kind should not register a series at all.
	RecordParseUpserts("", 0, 0, 0, 0)
}

func TestRecordWorkflowNodeDispatch(t *testing.T) {
	RecordWorkflowNodeDispatch("tool", "completed", 1500*time.Millisecond)
	if !metricCounterGreaterOrEqual(t, "orchestrator_workflow_node_dispatch_total", map[string]string{
		"node_type": "tool",
		"status":    "completed",
	}, 1) {
		t.Fatalf("expected workflow node dispatch counter to increase")
	}
	if !metricHistogramCountGreaterOrEqual(t, "orchestrator_workflow_node_dispatch_duration_seconds", map[string]string{
		"node_type": "tool",
	}, 1) {
		t.Fatalf("expected workflow node dispatch duration histogram to record")
	}

	RecordWorkflowNodeDispatch("", "failed", 0)
	if !metricCounterGreaterOrEqual(t, "orchestrator_workflow_node_dispatch_total", map[string]string{
		"node_type": "unknown",
		"status":    "failed",
	}, 1) {
		t.Fatalf("expected workflow node dispatch counter with unknown node type")
	}
}

func metricCounterGreaterOrEqual(t *testing.T, name string, labels map[string]string, min float64) bool {
	t.Helper()
	families, err := Registry.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, metric := range mf.GetMetric() {
			if labelsMatch(metric, labels) && metric.GetCounter() != nil {
				return metric.GetCounter().GetValue() >= min
			}
		}
	}
	return false
}

func metricHistogramCountGreaterOrEqual(t *testing.T, name string, labels map[string]string, min uint64) bool {
	t.Helper()
	families, err := Registry.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, metric := range mf.GetMetric() {
			if labelsMatch(metric, labels) && metric.GetHistogram() != nil {
				return metric.GetHistogram().GetSampleCount() >= min
			}
		}
	}
	return false
}

func labelsMatch(metric *io_prometheus_client.Metric, labels map[string]string) bool {
	if len(metric.GetLabel()) < len(labels) {
		return false
	}
	matched := 0
	for _, lbl := range metric.GetLabel() {
		if val, ok := labels[lbl.GetName()]; ok && val == lbl.GetValue() {
			matched++
		}
	}
	return matched == len(labels)
}

func TestCanonicalPath(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"", "/"},
		{"/", "/"},
		{"//", "/"},
		{"/healthz", "/healthz"},
		{"/metrics", "/metrics"},
		{"/import", "/import"},
		{"/import/", "/import"},
		{"/import/proj-1", "/import/:project"},
		{"/import/proj-1/", "/import/:project"},
		{"/import/proj-1/nmap", "/import/:project/:format"},
		{"/import/proj-1/nmap/extra", "/import/:project/:format"},
		{"import", "/import"},
		{"import/", "/import"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result := canonicalPath(tt.input)
			if result != tt.expected {
				t.Errorf("canonicalPath(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestStatusRecorder(t *testing.T) {
	rec := httptest.NewRecorder()
	sr := &statusRecorder{ResponseWriter: rec, status: http.StatusOK}
	sr.WriteHeader(http.StatusNotFound)
	if sr.status != http.StatusNotFound {
		t.Errorf("expected status 404, got %d", sr.status)
	}

	rec2 := httptest.NewRecorder()
	sr2 := &statusRecorder{ResponseWriter: rec2, status: 0}
	n, err := sr2.Write([]byte("hello"))
	if err != nil {
		t.Fatalf("Write error: %v", err)
	}
	if n != 5 {
		t.Errorf("expected 5 bytes written, got %d", n)
	}
	if sr2.status != http.StatusOK {
		t.Errorf("expected default status 200, got %d", sr2.status)
	}

	rec3 := httptest.NewRecorder()
	sr3 := &statusRecorder{ResponseWriter: rec3, status: http.StatusCreated}
	sr3.Write([]byte("test"))
	if sr3.status != http.StatusCreated {
		t.Errorf("expected status 201 preserved, got %d", sr3.status)
	}
}

func TestMetaLabel(t *testing.T) {
	tests := []struct {
		name     string
		meta     map[string]string
		expected string
	}{
		{"nil map", nil, "unknown"},
		{"empty map", map[string]string{}, "unknown"},
		{"resource key", map[string]string{"resource": "res-1"}, "res-1"},
		{"job_id key", map[string]string{"job_id": "job-1"}, "job-1"},
		{"workflow_run_id key", map[string]string{"workflow_run_id": "run-1"}, "run-1"},
		{"node_id key", map[string]string{"node_id": "node-1"}, "node-1"},
		{"resource takes precedence", map[string]string{"resource": "res-1", "job_id": "job-1"}, "res-1"},
		{"empty resource falls through", map[string]string{"resource": "", "job_id": "job-1"}, "job-1"},
		{"all empty returns unknown", map[string]string{"resource": "", "job_id": ""}, "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := metaLabel(tt.meta)
			if result != tt.expected {
				t.Errorf("metaLabel(%v) = %q, want %q", tt.meta, result, tt.expected)
			}
		})
	}
}

func TestHandler(t *testing.T) {
	h := Handler()
	if h == nil {
		t.Fatal("Handler() should return non-nil handler")
	}

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	if rec.Body.Len() == 0 {
		t.Error("expected non-empty metrics response")
	}
}

func TestInstrumentHandler_MetricsPathPassthrough(t *testing.T) {
	called := false
	handler := InstrumentHandler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if !called {
		t.Error("expected /metrics path to pass through to handler")
	}
}

func TestObservationHooks(t *testing.T) {
	hooks := ObservationHooks("test_ns", "test_sub", "test_op")

	if hooks.OnStart == nil {
		t.Fatal("OnStart should not be nil")
	}
	if hooks.OnComplete == nil {
		t.Fatal("OnComplete should not be nil")
	}

	hooks.OnStart(nil, map[string]string{"resource": "test-res"})
	hooks.OnComplete(nil, map[string]string{"resource": "test-res"}, nil, 100*time.Millisecond)
	hooks.OnComplete(nil, map[string]string{"resource": "test-res"}, fmt.Errorf("test error"), 50*time.Millisecond)

	// cached hooks on a repeat call must still be valid, not re-register.
	hooks2 := ObservationHooks("test_ns", "test_sub", "test_op")
	if hooks2.OnStart == nil || hooks2.OnComplete == nil {
		t.Fatal("cached hooks should be valid")
	}
}
