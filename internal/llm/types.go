// Package llm provides LLM provider implementations behind a single
// provider-neutral contract.
package llm

import "log/slog"

// LevelTrace is below Debug, used for wire-level payload logging.
const LevelTrace = slog.Level(-8)

// Message is a provider-neutral chat message. Wire-format conversion
// (where system prompts live, how tool turns are shaped) happens inside
// each provider at request time.
type Message struct {
	Role       string     `json:"role"` // system, user, assistant, tool
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`  // set on assistant tool-invocation turns
	ToolCallID string     `json:"tool_call_id,omitempty"` // set on tool-result turns
}

// ToolCall is a structured tool invocation requested by the model.
type ToolCall struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// Tool describes one callable tool in the manifest sent to the model.
type Tool struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"input_schema"`
}

// Response is the unified completion result from any provider.
type Response struct {
	Text      string
	ToolCalls []ToolCall
	Model     string

	// Token usage (provider-neutral; zero when the backend omits it)
	InputTokens  int
	OutputTokens int
}
