package llm

import (
	"testing"
)

func TestConvertToAnthropicExtractsSystem(t *testing.T) {
	messages := []Message{
		{Role: "system", Content: "You are a tutor."},
		{Role: "system", Content: "Be kind."},
		{Role: "user", Content: "explain recursion"},
	}

	wire, system := convertToAnthropic(messages)

	if system != "You are a tutor.\n\nBe kind." {
		t.Errorf("system = %q", system)
	}
	if len(wire) != 1 {
		t.Fatalf("wire messages = %d, want 1", len(wire))
	}
	if wire[0].Role != "user" {
		t.Errorf("role = %q, want user", wire[0].Role)
	}
}

func TestConvertToAnthropicToolCallTurn(t *testing.T) {
	messages := []Message{
		{
			Role:    "assistant",
			Content: "Saving that.",
			ToolCalls: []ToolCall{
				{ID: "toolu_123", Name: "save_memory", Arguments: map[string]any{"content": "likes diagrams"}},
			},
		},
	}

	wire, _ := convertToAnthropic(messages)
	if len(wire) != 1 {
		t.Fatalf("wire messages = %d, want 1", len(wire))
	}

	blocks, ok := wire[0].Content.([]anthropicContent)
	if !ok {
		t.Fatalf("content is %T, want []anthropicContent", wire[0].Content)
	}
	if len(blocks) != 2 {
		t.Fatalf("blocks = %d, want 2 (text + tool_use)", len(blocks))
	}
	if blocks[0].Type != "text" || blocks[0].Text != "Saving that." {
		t.Errorf("first block = %+v", blocks[0])
	}
	if blocks[1].Type != "tool_use" || blocks[1].ID != "toolu_123" || blocks[1].Name != "save_memory" {
		t.Errorf("second block = %+v", blocks[1])
	}
}

func TestConvertToAnthropicSynthesizesMissingID(t *testing.T) {
	messages := []Message{
		{
			Role:      "assistant",
			ToolCalls: []ToolCall{{Name: "present_quiz"}},
		},
	}

	wire, _ := convertToAnthropic(messages)
	blocks := wire[0].Content.([]anthropicContent)
	if len(blocks) != 1 {
		t.Fatalf("blocks = %d, want 1", len(blocks))
	}
	if blocks[0].ID == "" {
		t.Error("tool_use block has empty ID")
	}
}

func TestConvertToAnthropicToolResult(t *testing.T) {
	messages := []Message{
		{Role: "tool", ToolCallID: "toolu_9", Content: "Memory saved."},
	}

	wire, _ := convertToAnthropic(messages)
	if len(wire) != 1 {
		t.Fatalf("wire messages = %d, want 1", len(wire))
	}
	// Tool results re-enter as user messages for Anthropic.
	if wire[0].Role != "user" {
		t.Errorf("role = %q, want user", wire[0].Role)
	}
	blocks := wire[0].Content.([]anthropicContent)
	if blocks[0].Type != "tool_result" || blocks[0].ToolUseID != "toolu_9" || blocks[0].Content != "Memory saved." {
		t.Errorf("block = %+v", blocks[0])
	}
}

func TestAnthropicFormatToolCallFillsIDs(t *testing.T) {
	p := NewAnthropic("key", "claude-3-haiku-20240307", nil)

	msg := p.FormatToolCall([]ToolCall{{Name: "save_memory"}}, "noted")
	if msg.Role != "assistant" || msg.Content != "noted" {
		t.Errorf("msg = %+v", msg)
	}
	if len(msg.ToolCalls) != 1 || msg.ToolCalls[0].ID == "" {
		t.Errorf("expected synthesized ID, got %+v", msg.ToolCalls)
	}
	if msg.ToolCalls[0].Arguments == nil {
		t.Error("expected non-nil arguments map")
	}
}

func TestConvertToolsToAnthropicNilSchema(t *testing.T) {
	tools := convertToolsToAnthropic([]Tool{{Name: "search_web", Description: "search"}})
	if len(tools) != 1 {
		t.Fatalf("tools = %d, want 1", len(tools))
	}
	schema, ok := tools[0].InputSchema.(map[string]any)
	if !ok || schema["type"] != "object" {
		t.Errorf("expected empty object schema, got %v", tools[0].InputSchema)
	}
}

func TestConvertToolsToAnthropicEmpty(t *testing.T) {
	if got := convertToolsToAnthropic(nil); got != nil {
		t.Errorf("expected nil for empty manifest, got %v", got)
	}
}
