package ai

import (
	"context"
	"fmt"
	"log"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/zhouzirui/exec-dashboard/backend/internal/config"
	"github.com/zhouzirui/exec-dashboard/backend/internal/model/conversation"
)

// Service encapsulates AI-powered question answering
type Service struct {
	chatModel model.ChatModel
	cfg       config.AIConfig
	chain     compose.Runnable[map[string]any, *schema.Message]
}

// NewService creates a new AI service instance
func NewService(ctx context.Context, cfg config.AIConfig) (*Service, error) {
	chatModel, err := cfg.NewChatModel(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat model: %w", err)
	}

	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage("{system}"),
		schema.MessagesPlaceholder("history", true),
		schema.UserMessage("{query}"),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile chat chain: %w", err)
	}

	return &Service{
		chatModel: chatModel,
		cfg:       cfg,
		chain:     runnable,
	}, nil
}

// StreamingEnabled 指示是否开启 SSE 流式输出。
func (s *Service) StreamingEnabled() bool {
	return s.cfg.StreamResponse
}

// Answer runs a non-streaming completion over a session's request
// messages: an optional leading system message (fallbackSystem fills in
// when the session has none yet), the completed exchanges, and the
// trailing pending question.
func (s *Service) Answer(ctx context.Context, messages []conversation.Message, fallbackSystem string) (string, error) {
	input, err := buildChainInput(messages, fallbackSystem)
	if err != nil {
		return "", err
	}

	response, err := s.chain.Invoke(ctx, input)
	if err != nil {
		return "", fmt.Errorf("failed to run AI chain: %w", err)
	}

	log.Printf("[ai] generated answer, length=%d", len(response.Content))
	return response.Content, nil
}

// StreamAnswer streams completion chunks for the same payload shape as
// Answer.
func (s *Service) StreamAnswer(ctx context.Context, messages []conversation.Message, fallbackSystem string) (*schema.StreamReader[*schema.Message], error) {
	if !s.StreamingEnabled() {
		return nil, fmt.Errorf("streaming disabled in configuration")
	}

	input, err := buildChainInput(messages, fallbackSystem)
	if err != nil {
		return nil, err
	}

	stream, err := s.chain.Stream(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("failed to stream AI chain output: %w", err)
	}

	return stream, nil
}

// Probe 用一次最小的对话往返检测模型是否可用。
func (s *Service) Probe(ctx context.Context) error {
	response, err := s.chatModel.Generate(ctx, []*schema.Message{schema.UserMessage("hi")})
	if err != nil {
		return fmt.Errorf("llm probe failed: %w", err)
	}
	if response == nil || response.Content == "" {
		return fmt.Errorf("llm probe returned empty response")
	}
	return nil
}

// GetChatModel 返回底层的聊天模型
func (s *Service) GetChatModel() model.ChatModel {
	return s.chatModel
}

// buildChainInput splits a request-message snapshot into the chain's
// system/history/query slots. The snapshot must end with the pending
// user question; everything between the optional system message and
// that question is history.
func buildChainInput(messages []conversation.Message, fallbackSystem string) (map[string]any, error) {
	system := fallbackSystem
	rest := messages
	if len(rest) > 0 && rest[0].Role == conversation.RoleSystem {
		system = rest[0].Content
		rest = rest[1:]
	}

	if len(rest) == 0 || rest[len(rest)-1].Role != conversation.RoleUser {
		return nil, fmt.Errorf("request messages must end with a pending user question")
	}

	query := rest[len(rest)-1].Content
	history := make([]*schema.Message, 0, len(rest)-1)
	for _, msg := range rest[:len(rest)-1] {
		switch msg.Role {
		case conversation.RoleUser:
			history = append(history, schema.UserMessage(msg.Content))
		case conversation.RoleAssistant:
			history = append(history, schema.AssistantMessage(msg.Content, nil))
		}
	}

	return map[string]any{
		"system":  system,
		"history": history,
		"query":   query,
	}, nil
}
