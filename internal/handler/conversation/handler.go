package conversation

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	conversationModel "github.com/zhouzirui/exec-dashboard/backend/internal/model/conversation"
	conversationService "github.com/zhouzirui/exec-dashboard/backend/internal/service/conversation"
	"github.com/zhouzirui/exec-dashboard/backend/pkg/utils"
)

// Handler 会话管理的HTTP处理器
type Handler struct {
	sessions *conversationService.Service
}

// New 创建会话处理器
func New(sessions *conversationService.Service) *Handler {
	return &Handler{sessions: sessions}
}

// RegisterRoutes 注册会话相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/sessions", h.handleCreateSession)
	r.Get("/sessions/{sessionID}", h.handleGetSummary)
	r.Get("/sessions/{sessionID}/transcript", h.handleGetTranscript)
	r.Put("/sessions/{sessionID}/system", h.handleSetSystemMessage)
	r.Post("/sessions/{sessionID}/undo", h.handleUndo)
	r.Post("/sessions/{sessionID}/clear", h.handleClear)
	r.Post("/sessions/{sessionID}/cancel", h.handleCancelPending)
	r.Delete("/sessions/{sessionID}", h.handleDeleteSession)
}

// handleCreateSession 创建会话
func (h *Handler) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		SystemMessage string `json:"systemMessage"`
	}

	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			respondError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	handle, err := h.sessions.CreateSession(r.Context(), payload.SystemMessage)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	respondJSON(w, http.StatusCreated, handle)
}

// handleGetSummary 查询会话摘要
func (h *Handler) handleGetSummary(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	summary, err := h.sessions.GetSummary(r.Context(), sessionID)
	if err != nil {
		respondCoreError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, summary)
}

// handleGetTranscript 查询会话完整消息记录
func (h *Handler) handleGetTranscript(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	messages, err := h.sessions.Snapshot(r.Context(), sessionID)
	if err != nil {
		respondCoreError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"sessionId": sessionID,
		"messages":  messages,
	})
}

// handleSetSystemMessage 设置会话的系统提示词
func (h *Handler) handleSetSystemMessage(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	var payload struct {
		SystemMessage string `json:"systemMessage"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.sessions.SetSystemMessage(r.Context(), sessionID, payload.SystemMessage); err != nil {
		respondCoreError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleUndo 撤销最近一轮完整问答
func (h *Handler) handleUndo(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	if err := h.sessions.Undo(r.Context(), sessionID); err != nil {
		respondCoreError(w, err)
		return
	}

	summary, err := h.sessions.GetSummary(r.Context(), sessionID)
	if err != nil {
		respondCoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, summary)
}

// handleClear 清空会话历史
func (h *Handler) handleClear(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	if err := h.sessions.Clear(r.Context(), sessionID); err != nil {
		respondCoreError(w, err)
		return
	}

	summary, err := h.sessions.GetSummary(r.Context(), sessionID)
	if err != nil {
		respondCoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, summary)
}

// handleCancelPending 取消尚未回答的问题
func (h *Handler) handleCancelPending(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	if err := h.sessions.CancelPending(r.Context(), sessionID); err != nil {
		respondCoreError(w, err)
		return
	}

	summary, err := h.sessions.GetSummary(r.Context(), sessionID)
	if err != nil {
		respondCoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, summary)
}

// handleDeleteSession 删除会话
func (h *Handler) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	if err := h.sessions.DeleteSession(r.Context(), sessionID); err != nil {
		respondCoreError(w, err)
		return
	}

	utils.RespondNoContent(w)
}

// respondCoreError 将会话核心错误映射为HTTP状态码
func respondCoreError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, conversationService.ErrSessionNotFound):
		status = http.StatusNotFound
	case errors.Is(err, conversationModel.ErrEmptyQuestion):
		status = http.StatusBadRequest
	case errors.Is(err, conversationModel.ErrQuestionPending),
		errors.Is(err, conversationModel.ErrNoPendingQuestion),
		errors.Is(err, conversationModel.ErrNothingToUndo):
		status = http.StatusConflict
	}
	respondError(w, status, err.Error())
}

// respondJSON 发送JSON响应
func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

// respondError 发送错误响应
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
