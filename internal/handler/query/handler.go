package query

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/yuin/goldmark"

	"github.com/zhouzirui/exec-dashboard/backend/internal/analysis/intent"
	conversationModel "github.com/zhouzirui/exec-dashboard/backend/internal/model/conversation"
	"github.com/zhouzirui/exec-dashboard/backend/internal/model/querymode"
	conversationService "github.com/zhouzirui/exec-dashboard/backend/internal/service/conversation"
	insightService "github.com/zhouzirui/exec-dashboard/backend/internal/service/insight"
)

// Answerer produces a model answer for a session's request messages.
type Answerer interface {
	Answer(ctx context.Context, messages []conversationModel.Message, fallbackSystem string) (string, error)
}

// Handler 问答接口的HTTP处理器
type Handler struct {
	sessions *conversationService.Service
	insights *insightService.Service
	modes    querymode.Store
	ai       Answerer
	markdown goldmark.Markdown
}

// New 创建问答处理器；ai 为 nil 时退化为本地数据回答。
func New(sessions *conversationService.Service, insights *insightService.Service, modes querymode.Store, ai Answerer) *Handler {
	return &Handler{
		sessions: sessions,
		insights: insights,
		modes:    modes,
		ai:       ai,
		markdown: goldmark.New(),
	}
}

// RegisterRoutes 注册问答路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/query", h.handleQuery)
}

type queryResponse struct {
	SessionID  string                    `json:"sessionId"`
	QueryType  string                    `json:"queryType"`
	Answer     string                    `json:"answer"`
	AnswerHTML string                    `json:"answerHtml"`
	Fallback   bool                      `json:"fallback"`
	Summary    conversationModel.Summary `json:"summary"`
}

// handleQuery 接收一个业务问题并返回带类型标注的回答
func (h *Handler) handleQuery(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		SessionID string `json:"sessionId"`
		Question  string `json:"question"`
	}

	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if payload.Question == "" {
		respondError(w, http.StatusBadRequest, "question is required")
		return
	}

	ctx := r.Context()

	sessionID := payload.SessionID
	if sessionID == "" {
		handle, err := h.sessions.CreateSession(ctx, "")
		if err != nil {
			respondError(w, http.StatusInternalServerError, err.Error())
			return
		}
		sessionID = handle.ID
	}

	label := intent.Classify(payload.Question)
	systemPrompt := h.systemPromptFor(label)
	userMessage := fmt.Sprintf("Question: %s\n\nAvailable Data Summary:\n%s",
		payload.Question, h.insights.DataSummary())

	answer, usedFallback, err := h.answer(ctx, sessionID, label, systemPrompt, userMessage)
	if err != nil {
		h.respondCoreError(w, err)
		return
	}

	answer = fmt.Sprintf("**Query Type:** %s\n\n%s", label.Title(), answer)

	summary, err := h.sessions.GetSummary(ctx, sessionID)
	if err != nil {
		h.respondCoreError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, queryResponse{
		SessionID:  sessionID,
		QueryType:  string(label),
		Answer:     answer,
		AnswerHTML: h.renderHTML(answer),
		Fallback:   usedFallback,
		Summary:    summary,
	})
}

// answer runs the record/ask/record cycle. Model failures cancel the
// pending question and fall back to a metrics-derived answer so the
// session never sticks in a half-finished exchange.
func (h *Handler) answer(ctx context.Context, sessionID string, label intent.Label, systemPrompt, userMessage string) (string, bool, error) {
	if h.ai == nil {
		return h.insights.Fallback(label), true, nil
	}

	if err := h.sessions.RecordQuestion(ctx, sessionID, userMessage); err != nil {
		return "", false, err
	}

	messages, err := h.sessions.Snapshot(ctx, sessionID)
	if err != nil {
		return "", false, err
	}

	answer, err := h.ai.Answer(ctx, messages, systemPrompt)
	if err != nil {
		log.Printf("[query] model answer failed for session=%s: %v", sessionID, err)
		if cancelErr := h.sessions.CancelPending(ctx, sessionID); cancelErr != nil {
			log.Printf("[query] cancel pending failed for session=%s: %v", sessionID, cancelErr)
		}
		return h.insights.Fallback(label), true, nil
	}

	if err := h.sessions.RecordAnswer(ctx, sessionID, answer); err != nil {
		return "", false, err
	}
	return answer, false, nil
}

// systemPromptFor picks the mode prompt for the label; the general mode
// gets a prompt built from the live dataset context.
func (h *Handler) systemPromptFor(label intent.Label) string {
	if mode, ok := h.modes.FindByID(string(label)); ok && mode.SystemPrompt != "" {
		return mode.SystemPrompt
	}
	return h.insights.GeneralSystemPrompt()
}

func (h *Handler) renderHTML(markdown string) string {
	var buf bytes.Buffer
	if err := h.markdown.Convert([]byte(markdown), &buf); err != nil {
		log.Printf("[query] markdown render failed: %v", err)
		return ""
	}
	return buf.String()
}

// respondCoreError 将会话核心错误映射为HTTP状态码
func (h *Handler) respondCoreError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, conversationService.ErrSessionNotFound):
		status = http.StatusNotFound
	case errors.Is(err, conversationModel.ErrEmptyQuestion):
		status = http.StatusBadRequest
	case errors.Is(err, conversationModel.ErrQuestionPending):
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
