package api

import (
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arb-engine/flashloan-arb-engine/pkg/dedup"
	"github.com/arb-engine/flashloan-arb-engine/pkg/gas"
	"github.com/arb-engine/flashloan-arb-engine/pkg/interfaces"
	"github.com/arb-engine/flashloan-arb-engine/pkg/metrics"
	"github.com/arb-engine/flashloan-arb-engine/pkg/risk"
)

// fakeEngine satisfies EngineStats without a live pipeline.
type fakeEngine struct {
	depth int
}

func (e *fakeEngine) QueueDepth() int { return e.depth }

func (e *fakeEngine) PoolStats() *interfaces.WorkerPoolStats {
	return &interfaces.WorkerPoolStats{PoolSize: 8, CompletedJobs: 42}
}

func newTestHandlers(t *testing.T) (*Handlers, *risk.Controller, interfaces.DedupEngine) {
	t.Helper()

	collector := metrics.NewCollectorWithRegistry(prometheus.NewRegistry())

	riskCtrl, err := risk.NewController(risk.DefaultConfig())
	require.NoError(t, err)
	riskCtrl.Initialize(big.NewInt(1e18))

	gasCtrl, err := gas.NewController(gas.DefaultConfig())
	require.NoError(t, err)

	dedupEngine, err := dedup.NewEngine(dedup.DefaultConfig())
	require.NoError(t, err)

	h := NewHandlers(collector, riskCtrl, gasCtrl, dedupEngine, &fakeEngine{depth: 3}, collector)
	return h, riskCtrl, dedupEngine
}

func decodeJSON(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestGetSystemStatus(t *testing.T) {
	h, _, _ := newTestHandlers(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/status", nil)
	rec := httptest.NewRecorder()
	h.GetSystemStatus(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	body := decodeJSON(t, rec)
	assert.Equal(t, "running", body["status"])
	assert.Equal(t, float64(3), body["queue_depth"])
	assert.Contains(t, body, "pipeline")
	assert.Contains(t, body, "risk")
	assert.Contains(t, body, "worker_pool")
}

func TestGetSystemStatusCircuitBreaker(t *testing.T) {
	h, riskCtrl, _ := newTestHandlers(t)

	for i := 0; i < 3; i++ {
		riskCtrl.RecordTrade(false, big.NewInt(0), nil)
	}
	riskCtrl.CanTrade() // trips the breaker

	req := httptest.NewRequest(http.MethodGet, "/api/v1/status", nil)
	rec := httptest.NewRecorder()
	h.GetSystemStatus(rec, req)

	body := decodeJSON(t, rec)
	assert.Equal(t, "circuit_breaker", body["status"])
}

func TestGetRiskStatus(t *testing.T) {
	h, _, _ := newTestHandlers(t)

	rec := httptest.NewRecorder()
	h.GetRiskStatus(rec, httptest.NewRequest(http.MethodGet, "/api/v1/risk", nil))

	body := decodeJSON(t, rec)
	assert.Equal(t, false, body["circuitBreakerActive"])
	assert.Contains(t, body, "currentBalance")
}

func TestGetGasStatus(t *testing.T) {
	h, _, _ := newTestHandlers(t)

	rec := httptest.NewRecorder()
	h.GetGasStatus(rec, httptest.NewRequest(http.MethodGet, "/api/v1/gas", nil))

	body := decodeJSON(t, rec)
	assert.Equal(t, string(interfaces.TrendUnknown), body["trend"])
}

func TestDedupStatsAndClear(t *testing.T) {
	h, _, dedupEngine := newTestHandlers(t)

	dedupEngine.Admit("cycle-a")
	dedupEngine.Admit("cycle-a")

	rec := httptest.NewRecorder()
	h.GetDedupStats(rec, httptest.NewRequest(http.MethodGet, "/api/v1/dedup", nil))
	body := decodeJSON(t, rec)
	assert.Equal(t, float64(2), body["totalChecked"])
	assert.Equal(t, float64(1), body["duplicatesFound"])

	rec = httptest.NewRecorder()
	h.ClearDedupCache(rec, httptest.NewRequest(http.MethodPost, "/api/v1/dedup/clear", nil))
	assert.Equal(t, "cleared", decodeJSON(t, rec)["status"])

	assert.Equal(t, uint64(0), dedupEngine.Stats().TotalChecked)
}

func TestGetLatencyMetrics(t *testing.T) {
	h, _, _ := newTestHandlers(t)

	router := mux.NewRouter()
	router.HandleFunc("/api/v1/metrics/latency/{operation}", h.GetLatencyMetrics)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/metrics/latency/pipeline", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	body := decodeJSON(t, rec)
	assert.Equal(t, "pipeline", body["operation"])
	assert.Contains(t, body, "average_latency")
}
