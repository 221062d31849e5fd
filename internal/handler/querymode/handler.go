package querymode

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/exec-dashboard/backend/internal/model/querymode"
)

// Handler 分析模式接口的HTTP处理器
type Handler struct {
	modes querymode.Store
}

// New 创建分析模式处理器
func New(modes querymode.Store) *Handler {
	return &Handler{
		modes: modes,
	}
}

// RegisterRoutes 注册分析模式相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/modes", h.handleListModes)
}

// handleListModes 列出所有分析模式
func (h *Handler) handleListModes(w http.ResponseWriter, r *http.Request) {
	modes := h.modes.List()
	h.respondJSON(w, http.StatusOK, modes)
}

// respondJSON 发送JSON响应
func (h *Handler) respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}
