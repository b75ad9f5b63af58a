package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/arb-engine/flashloan-arb-engine/pkg/interfaces"
)

// EngineStats is the slice of the pipeline engine the API reads.
type EngineStats interface {
	QueueDepth() int
	PoolStats() *interfaces.WorkerPoolStats
}

// LatencyReader reports average latency per recorded operation.
type LatencyReader interface {
	AverageLatency(operation string) time.Duration
}

// Handlers contains the HTTP handlers for the API.
type Handlers struct {
	metrics   interfaces.MetricsCollector
	risk      interfaces.RiskController
	gasCtrl   interfaces.GasController
	dedup     interfaces.DedupEngine
	engine    EngineStats
	latency   LatencyReader
	startTime time.Time
}

// NewHandlers creates a handlers instance.
func NewHandlers(
	metrics interfaces.MetricsCollector,
	risk interfaces.RiskController,
	gasCtrl interfaces.GasController,
	dedup interfaces.DedupEngine,
	engine EngineStats,
	latency LatencyReader,
) *Handlers {
	return &Handlers{
		metrics:   metrics,
		risk:      risk,
		gasCtrl:   gasCtrl,
		dedup:     dedup,
		engine:    engine,
		latency:   latency,
		startTime: time.Now(),
	}
}

// GetSystemStatus returns an aggregate view of the engine.
func (h *Handlers) GetSystemStatus(w http.ResponseWriter, r *http.Request) {
	riskSnapshot := h.risk.Snapshot()

	status := "running"
	if riskSnapshot.CircuitBreakerActive {
		status = "circuit_breaker"
	}

	response := map[string]interface{}{
		"status":      status,
		"uptime":      time.Since(h.startTime).String(),
		"pipeline":    h.metrics.Snapshot(),
		"risk":        riskSnapshot,
		"queue_depth": h.engine.QueueDepth(),
		"worker_pool": h.engine.PoolStats(),
		"updated_at":  time.Now(),
	}

	writeJSON(w, response)
}

// GetPipelineStats returns the aggregate pipeline counters.
func (h *Handlers) GetPipelineStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.metrics.Snapshot())
}

// GetRiskStatus returns the risk controller snapshot.
func (h *Handlers) GetRiskStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.risk.Snapshot())
}

// GetGasStatus returns the current gas trend classification.
func (h *Handlers) GetGasStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.gasCtrl.ClassifyTrend())
}

// GetDedupStats returns the dedup cache counters.
func (h *Handlers) GetDedupStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.dedup.Stats())
}

// ClearDedupCache flushes the dedup caches. Operator role required.
func (h *Handlers) ClearDedupCache(w http.ResponseWriter, r *http.Request) {
	h.dedup.Clear()
	writeJSON(w, map[string]string{"status": "cleared"})
}

// GetLatencyMetrics returns the average latency for one operation.
func (h *Handlers) GetLatencyMetrics(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	operation := vars["operation"]

	writeJSON(w, map[string]interface{}{
		"operation":       operation,
		"average_latency": h.latency.AverageLatency(operation).String(),
	})
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
