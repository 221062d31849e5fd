package dashboard

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/exec-dashboard/backend/internal/analysis/metrics"
	"github.com/zhouzirui/exec-dashboard/backend/internal/dataset"
)

// Summarizer reports the loaded datasets' shapes for the data overview
// sidebar.
type Summarizer interface {
	Summary() []dataset.Summary
}

// Handler 仪表盘KPI接口的HTTP处理器
type Handler struct {
	calc *metrics.Calculator
	data Summarizer
}

// New 创建仪表盘处理器
func New(calc *metrics.Calculator, data Summarizer) *Handler {
	return &Handler{calc: calc, data: data}
}

// RegisterRoutes 注册仪表盘相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/dashboard/kpis", h.handleKeyMetrics)
	r.Get("/dashboard/stores", h.handleStorePerformance)
	r.Get("/dashboard/regions", h.handleRegionalPerformance)
	r.Get("/dashboard/anomalies", h.handleAnomalies)
	r.Get("/dashboard/datasets", h.handleDatasets)
}

// handleKeyMetrics 返回核心业务指标
func (h *Handler) handleKeyMetrics(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.calc.KeyMetrics())
}

// handleStorePerformance 返回按营收排序的门店表现
func (h *Handler) handleStorePerformance(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"stores": h.calc.StorePerformance(),
	})
}

// handleRegionalPerformance 返回区域表现
func (h *Handler) handleRegionalPerformance(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"regions": h.calc.RegionalPerformance(),
	})
}

// handleAnomalies 返回营收异常与低库存告警
func (h *Handler) handleAnomalies(w http.ResponseWriter, r *http.Request) {
	anomalies := h.calc.DetectAnomalies(metrics.DefaultAnomalyThreshold)
	if anomalies == nil {
		anomalies = []metrics.Anomaly{}
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"anomalies": anomalies,
	})
}

// handleDatasets 返回已加载数据集的概览
func (h *Handler) handleDatasets(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"datasets": h.data.Summary(),
	})
}

// respondJSON 发送JSON响应
func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}
