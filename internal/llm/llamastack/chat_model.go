// Package llamastack implements an eino chat model speaking the
// OpenAI-compatible chat-completions wire format exposed by a LlamaStack
// server. It covers the subset the dashboard needs: plain text messages,
// non-streaming JSON responses and SSE streaming. Tool calling is not
// supported.
package llamastack

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

const completionsPath = "/v1/openai/v1/chat/completions"

// Config carries the connection settings for one LlamaStack endpoint.
type Config struct {
	// BaseURL is the server root, e.g. "http://localhost:8321". The
	// OpenAI-compatible completions path is appended internally.
	BaseURL string
	// Model is the model identifier, e.g. "ollama/llama3.3:70b".
	Model string
	// Temperature and MaxTokens are the default sampling parameters,
	// overridable per call through eino model options.
	Temperature *float32
	MaxTokens   *int
	// Timeout bounds a single non-streaming round trip. Zero means no
	// client-side timeout beyond the request context.
	Timeout time.Duration
	// HTTPClient overrides the transport, mainly for tests.
	HTTPClient *http.Client
}

// ChatModel talks to a LlamaStack server. It satisfies eino's
// model.ChatModel so it can slot into the same chain as the Ark model.
type ChatModel struct {
	cli         *http.Client
	endpoint    string
	modelName   string
	temperature *float32
	maxTokens   *int
}

// NewChatModel validates the config and builds a client.
func NewChatModel(cfg Config) (*ChatModel, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, errors.New("llamastack: BaseURL is required")
	}
	if strings.TrimSpace(cfg.Model) == "" {
		return nil, errors.New("llamastack: Model is required")
	}

	cli := cfg.HTTPClient
	if cli == nil {
		cli = &http.Client{Timeout: cfg.Timeout}
	}

	return &ChatModel{
		cli:         cli,
		endpoint:    base + completionsPath,
		modelName:   cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
	}, nil
}

// Generate runs a non-streaming completion.
func (m *ChatModel) Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	req, err := m.buildRequest(input, false, opts...)
	if err != nil {
		return nil, err
	}

	httpResp, err := m.post(ctx, req)
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("llamastack: reading response: %w", err)
	}

	var resp chatResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("llamastack: decoding response: %w", err)
	}
	if resp.Error != nil {
		return nil, fmt.Errorf("llamastack: provider error: %s", resp.Error.Message)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("llamastack: response contains no choices")
	}

	return schema.AssistantMessage(resp.Choices[0].Message.Content, nil), nil
}

// Stream runs a streaming completion. Chunks arrive as SSE "data:"
// lines and the stream terminates with the "[DONE]" sentinel.
func (m *ChatModel) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	req, err := m.buildRequest(input, true, opts...)
	if err != nil {
		return nil, err
	}

	httpResp, err := m.post(ctx, req)
	if err != nil {
		return nil, err
	}

	reader, writer := schema.Pipe[*schema.Message](8)

	go func() {
		defer httpResp.Body.Close()
		defer writer.Close()

		scanner := newSSEScanner(httpResp.Body)
		for scanner.Next() {
			data := scanner.Data()
			if data == "[DONE]" {
				return
			}

			var chunk streamChunk
			if err := json.Unmarshal([]byte(data), &chunk); err != nil {
				writer.Send(nil, fmt.Errorf("llamastack: decoding stream chunk: %w", err))
				return
			}
			// Some servers report errors as a JSON object on a data line.
			if chunk.Error != nil {
				writer.Send(nil, fmt.Errorf("llamastack: provider error: %s", chunk.Error.Message))
				return
			}
			if len(chunk.Choices) == 0 {
				continue
			}
			if content := chunk.Choices[0].Delta.Content; content != "" {
				if closed := writer.Send(schema.AssistantMessage(content, nil), nil); closed {
					return
				}
			}
		}
		if err := scanner.Err(); err != nil {
			writer.Send(nil, fmt.Errorf("llamastack: reading stream: %w", err))
		}
	}()

	return reader, nil
}

// BindTools is required by the ChatModel interface; this backend has no
// tool-calling surface.
func (m *ChatModel) BindTools(_ []*schema.ToolInfo) error {
	return errors.New("llamastack: tool calling is not supported")
}

func (m *ChatModel) buildRequest(input []*schema.Message, stream bool, opts ...model.Option) (chatRequest, error) {
	if len(input) == 0 {
		return chatRequest{}, errors.New("llamastack: empty message list")
	}

	options := model.GetCommonOptions(&model.Options{
		Model:       &m.modelName,
		Temperature: m.temperature,
		MaxTokens:   m.maxTokens,
	}, opts...)

	req := chatRequest{
		Model:       *options.Model,
		Temperature: options.Temperature,
		MaxTokens:   options.MaxTokens,
		Stream:      stream,
	}

	for _, msg := range input {
		switch msg.Role {
		case schema.System, schema.User, schema.Assistant:
			req.Messages = append(req.Messages, chatMessage{
				Role:    string(msg.Role),
				Content: msg.Content,
			})
		default:
			return chatRequest{}, fmt.Errorf("llamastack: unsupported message role %q", msg.Role)
		}
	}

	return req, nil
}

func (m *ChatModel) post(ctx context.Context, req chatRequest) (*http.Response, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("llamastack: encoding request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, m.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("llamastack: building request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if req.Stream {
		httpReq.Header.Set("Accept", "text/event-stream")
	}

	resp, err := m.cli.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("llamastack: sending request: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return nil, fmt.Errorf("llamastack: unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	return resp, nil
}

// Wire types for the OpenAI-compatible chat completions endpoint.

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature *float32      `json:"temperature,omitempty"`
	MaxTokens   *int          `json:"max_tokens,omitempty"`
	Stream      bool          `json:"stream,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []chatChoice `json:"choices"`
	Error   *apiError    `json:"error,omitempty"`
}

type chatChoice struct {
	Message      chatMessage `json:"message"`
	FinishReason string      `json:"finish_reason"`
}

type apiError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

type streamChunk struct {
	Choices []streamChoice `json:"choices"`
	Error   *apiError      `json:"error,omitempty"`
}

type streamChoice struct {
	Delta        streamDelta `json:"delta"`
	FinishReason *string     `json:"finish_reason"`
}

type streamDelta struct {
	Content string `json:"content"`
}
