package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"

	"github.com/cloudwego/eino/schema"

	"github.com/zhouzirui/exec-dashboard/backend/internal/analysis/intent"
	conversationModel "github.com/zhouzirui/exec-dashboard/backend/internal/model/conversation"
	"github.com/zhouzirui/exec-dashboard/backend/internal/model/querymode"
	conversationService "github.com/zhouzirui/exec-dashboard/backend/internal/service/conversation"
	insightService "github.com/zhouzirui/exec-dashboard/backend/internal/service/insight"
	"github.com/zhouzirui/exec-dashboard/backend/pkg/utils"
)

// Streamer is the slice of the AI service the SSE pipeline needs.
type Streamer interface {
	StreamingEnabled() bool
	Answer(ctx context.Context, messages []conversationModel.Message, fallbackSystem string) (string, error)
	StreamAnswer(ctx context.Context, messages []conversationModel.Message, fallbackSystem string) (*schema.StreamReader[*schema.Message], error)
}

// Handler manages streaming query answers via Server-Sent Events
type Handler struct {
	ai       Streamer
	sessions *conversationService.Service
	insights *insightService.Service
	modes    querymode.Store
}

// New creates a new stream handler
func New(ai Streamer, sessions *conversationService.Service, insights *insightService.Service, modes querymode.Store) *Handler {
	return &Handler{
		ai:       ai,
		sessions: sessions,
		insights: insights,
		modes:    modes,
	}
}

// StreamResponse represents a streaming response chunk
type StreamResponse struct {
	Event     string `json:"event"`
	Content   string `json:"content,omitempty"`
	SessionID string `json:"sessionId,omitempty"`
	QueryType string `json:"queryType,omitempty"`
	Finished  bool   `json:"finished,omitempty"`
	Error     string `json:"error,omitempty"`
}

// HandleStreamRequest answers one question over SSE: start, delta chunks
// while the model produces tokens, the assembled message, then end. A
// model failure cancels the pending question before the error event so
// the session stays usable.
func (h *Handler) HandleStreamRequest(ctx context.Context, w http.ResponseWriter, sessionID string, question string) error {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return fmt.Errorf("streaming unsupported")
	}

	utils.SetupSSEHeaders(w)

	label := intent.Classify(question)
	systemPrompt := h.systemPromptFor(label)
	userMessage := fmt.Sprintf("Question: %s\n\nAvailable Data Summary:\n%s",
		question, h.insights.DataSummary())

	if err := h.sessions.RecordQuestion(ctx, sessionID, userMessage); err != nil {
		h.sendSSEError(w, flusher, err.Error())
		return err
	}

	messages, err := h.sessions.Snapshot(ctx, sessionID)
	if err != nil {
		h.cancelPending(ctx, sessionID)
		h.sendSSEError(w, flusher, err.Error())
		return err
	}

	h.sendSSE(w, flusher, StreamResponse{
		Event:     "start",
		SessionID: sessionID,
		QueryType: string(label),
	})

	answer, err := h.dispatchAnswer(ctx, w, flusher, sessionID, messages, systemPrompt)
	if err != nil {
		h.cancelPending(ctx, sessionID)
		h.sendSSEError(w, flusher, fmt.Sprintf("answer generation failed: %v", err))
		return err
	}

	if err := h.sessions.RecordAnswer(ctx, sessionID, answer); err != nil {
		log.Printf("[stream] failed to record answer for session=%s: %v", sessionID, err)
	}

	h.sendSSE(w, flusher, StreamResponse{
		Event:     "message",
		SessionID: sessionID,
		Content:   fmt.Sprintf("**Query Type:** %s\n\n%s", label.Title(), answer),
	})

	h.sendSSE(w, flusher, StreamResponse{
		Event:     "end",
		SessionID: sessionID,
		Finished:  true,
	})

	log.Printf("[stream] completed answer for session=%s, type=%s", sessionID, label)
	return nil
}

func (h *Handler) dispatchAnswer(ctx context.Context, w http.ResponseWriter, flusher http.Flusher, sessionID string, messages []conversationModel.Message, systemPrompt string) (string, error) {
	if !h.ai.StreamingEnabled() {
		return h.ai.Answer(ctx, messages, systemPrompt)
	}

	stream, err := h.ai.StreamAnswer(ctx, messages, systemPrompt)
	if err != nil {
		return "", err
	}
	defer stream.Close()

	chunks := make([]*schema.Message, 0, 8)

	for {
		chunk, recvErr := stream.Recv()
		if errors.Is(recvErr, io.EOF) {
			break
		}
		if recvErr != nil {
			return "", recvErr
		}
		if chunk == nil {
			continue
		}

		chunks = append(chunks, chunk)
		if chunk.Content != "" {
			h.sendSSE(w, flusher, StreamResponse{
				Event:     "delta",
				SessionID: sessionID,
				Content:   chunk.Content,
			})
		}
	}

	response, err := schema.ConcatMessages(chunks)
	if err != nil {
		return "", err
	}
	return response.Content, nil
}

// systemPromptFor picks the mode prompt for the label; general
// questions get the prompt built from the live dataset context.
func (h *Handler) systemPromptFor(label intent.Label) string {
	if mode, ok := h.modes.FindByID(string(label)); ok && mode.SystemPrompt != "" {
		return mode.SystemPrompt
	}
	return h.insights.GeneralSystemPrompt()
}

func (h *Handler) cancelPending(ctx context.Context, sessionID string) {
	if err := h.sessions.CancelPending(ctx, sessionID); err != nil {
		log.Printf("[stream] cancel pending failed for session=%s: %v", sessionID, err)
	}
}

// sendSSE sends a Server-Sent Event
func (h *Handler) sendSSE(w http.ResponseWriter, flusher http.Flusher, response StreamResponse) {
	utils.SendSSEChunk(w, flusher, response)
}

// sendSSEError sends an error via Server-Sent Events
func (h *Handler) sendSSEError(w http.ResponseWriter, flusher http.Flusher, errorMsg string) {
	h.sendSSE(w, flusher, StreamResponse{
		Event: "error",
		Error: errorMsg,
	})
}
