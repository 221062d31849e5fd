package ai

import (
	"testing"

	"github.com/cloudwego/eino/schema"

	"github.com/zhouzirui/exec-dashboard/backend/internal/model/conversation"
)

func TestBuildChainInputSplitsSnapshot(t *testing.T) {
	messages := []conversation.Message{
		{Role: conversation.RoleSystem, Content: "You are a retail analyst."},
		{Role: conversation.RoleUser, Content: "How did we do last week?"},
		{Role: conversation.RoleAssistant, Content: "Revenue was flat."},
		{Role: conversation.RoleUser, Content: "And this week?"},
	}

	input, err := buildChainInput(messages, "fallback")
	if err != nil {
		t.Fatalf("buildChainInput failed: %v", err)
	}

	if got := input["system"]; got != "You are a retail analyst." {
		t.Errorf("system = %q, want session system message", got)
	}
	if got := input["query"]; got != "And this week?" {
		t.Errorf("query = %q, want pending question", got)
	}

	history, ok := input["history"].([]*schema.Message)
	if !ok {
		t.Fatalf("history has type %T, want []*schema.Message", input["history"])
	}
	if len(history) != 2 {
		t.Fatalf("history has %d messages, want 2", len(history))
	}
	if history[0].Role != schema.User || history[1].Role != schema.Assistant {
		t.Errorf("history roles = %v/%v, want user/assistant", history[0].Role, history[1].Role)
	}
}

func TestBuildChainInputUsesFallbackSystem(t *testing.T) {
	messages := []conversation.Message{
		{Role: conversation.RoleUser, Content: "Show me anomalies"},
	}

	input, err := buildChainInput(messages, "default prompt")
	if err != nil {
		t.Fatalf("buildChainInput failed: %v", err)
	}
	if got := input["system"]; got != "default prompt" {
		t.Errorf("system = %q, want fallback prompt", got)
	}
	if history := input["history"].([]*schema.Message); len(history) != 0 {
		t.Errorf("history has %d messages, want 0", len(history))
	}
}

func TestBuildChainInputRejectsMissingQuestion(t *testing.T) {
	cases := [][]conversation.Message{
		nil,
		{{Role: conversation.RoleSystem, Content: "sys"}},
		{
			{Role: conversation.RoleUser, Content: "q"},
			{Role: conversation.RoleAssistant, Content: "a"},
		},
	}
	for i, messages := range cases {
		if _, err := buildChainInput(messages, "sys"); err == nil {
			t.Errorf("case %d: expected error for snapshot without pending question", i)
		}
	}
}
