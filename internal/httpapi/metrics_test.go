package httpapi

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"modelrt/internal/manager"
)

func scrape(t *testing.T) []byte {
	t.Helper()
	w := httptest.NewRecorder()
	promhttp.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("/metrics status=%d", w.Code)
	}
	return w.Body.Bytes()
}

// Routes with parameters are labelled by pattern, not by the concrete id.
func TestMetrics_UsesRoutePattern(t *testing.T) {
	r := NewMux(&mockService{})
	do(t, r, http.MethodDelete, "/sessions/abc-123", "")
	body := scrape(t)
	if !bytes.Contains(body, []byte("modelrt_http_requests_total")) || !bytes.Contains(body, []byte(`path="/sessions/{id}"`)) {
		t.Fatalf("expected pattern label in metrics")
	}
	if bytes.Contains(body, []byte("abc-123")) {
		t.Fatalf("raw path leaked into labels")
	}
}

func TestIncrementBackpressure(t *testing.T) {
	before := testutil.ToFloat64(backpressureTotal.WithLabelValues("unspecified"))
	IncrementBackpressure("")
	if got := testutil.ToFloat64(backpressureTotal.WithLabelValues("unspecified")); got != before+1 {
		t.Fatalf("backpressure=%v want %v", got, before+1)
	}
}

func TestPoolExhaustedCountsBackpressure(t *testing.T) {
	before := testutil.ToFloat64(backpressureTotal.WithLabelValues("pool_exhausted"))
	h, model := newLiveServer(t, &tokenBackend{tokens: []string{"x"}}, nil)
	loadAndLease(t, h, model)
	do(t, h, http.MethodPost, "/sessions", `{"timeout_ms":0}`)
	if got := testutil.ToFloat64(backpressureTotal.WithLabelValues("pool_exhausted")); got != before+1 {
		t.Fatalf("pool_exhausted=%v want %v", got, before+1)
	}
}

func TestRuntimeCollector(t *testing.T) {
	snap := manager.HealthSnapshot{
		RuntimeState:         manager.StateReady,
		MemoryUsedBytes:      2048,
		MemoryThresholdBytes: 1024,
		UnderPressure:        true,
		ActiveSessions:       2,
		Evictions:            3,
	}
	c := NewRuntimeCollector(func() manager.HealthSnapshot { return snap })
	reg := prometheus.NewPedanticRegistry()
	if err := reg.Register(c); err != nil {
		t.Fatalf("register: %v", err)
	}
	want := `
# HELP modelrt_runtime_evictions_total Idle sessions evicted under memory pressure
# TYPE modelrt_runtime_evictions_total counter
modelrt_runtime_evictions_total 3
# HELP modelrt_runtime_sessions_active Leased sessions
# TYPE modelrt_runtime_sessions_active gauge
modelrt_runtime_sessions_active 2
# HELP modelrt_runtime_state Runtime handle state (1 for the current state)
# TYPE modelrt_runtime_state gauge
modelrt_runtime_state{state="ready"} 1
# HELP modelrt_runtime_under_pressure 1 when memory use is above the threshold
# TYPE modelrt_runtime_under_pressure gauge
modelrt_runtime_under_pressure 1
`
	if err := testutil.GatherAndCompare(reg, strings.NewReader(want),
		"modelrt_runtime_evictions_total", "modelrt_runtime_sessions_active",
		"modelrt_runtime_state", "modelrt_runtime_under_pressure"); err != nil {
		t.Fatalf("collector output: %v", err)
	}
	if n := testutil.CollectAndCount(c); n != 9 {
		t.Fatalf("metrics=%d want 9", n)
	}
}
