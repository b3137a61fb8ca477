package llm

import "context"

// Provider is the contract every LLM backend implements. The orchestrator
// never branches on backend identity; everything provider-specific routes
// through these four methods.
type Provider interface {
	// Name returns the provider identifier (e.g., "anthropic", "groq").
	Name() string

	// Generate sends a completion request. When tools is empty the backend
	// must not request tool use. Errors are fatal for the current turn.
	Generate(ctx context.Context, messages []Message, tools []Tool) (*Response, error)

	// FormatToolCall re-serializes the model's own tool-invocation turn
	// into a history message suitable for this provider's next request.
	// text is the model's accompanying prose, possibly empty.
	FormatToolCall(calls []ToolCall, text string) Message

	// FormatToolResult re-serializes a tool's textual outcome into a
	// history message correlated to the originating call.
	FormatToolResult(callID, result string) Message
}
