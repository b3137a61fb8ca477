package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/sahayak/tutor-agent/internal/httpkit"
)

// OpenAIProvider talks to any OpenAI-compatible chat completions endpoint.
// It serves two backends: Groq (hosted, API key required) and a local
// Ollama instance in OpenAI-compatibility mode. System prompts stay inline
// in the message list; tool turns use the tool_calls field with
// JSON-string arguments and role "tool" results.
type OpenAIProvider struct {
	name       string
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewGroq creates a provider for the Groq API.
func NewGroq(apiKey, model string, logger *slog.Logger) *OpenAIProvider {
	return newOpenAI("groq", "https://api.groq.com/openai/v1", apiKey, model, logger)
}

// NewOllama creates a provider for a local OpenAI-compatible endpoint.
func NewOllama(baseURL, model string, logger *slog.Logger) *OpenAIProvider {
	return newOpenAI("ollama", baseURL, "", model, logger)
}

func newOpenAI(name, baseURL, apiKey, model string, logger *slog.Logger) *OpenAIProvider {
	if logger == nil {
		logger = slog.Default()
	}
	t := httpkit.NewTransport()
	t.ResponseHeaderTimeout = 120 * time.Second

	return &OpenAIProvider{
		name:    name,
		baseURL: baseURL,
		apiKey:  apiKey,
		model:   model,
		logger:  logger.With("provider", name),
		httpClient: httpkit.NewClient(
			httpkit.WithTimeout(0),
			httpkit.WithTransport(t),
		),
	}
}

func (p *OpenAIProvider) Name() string { return p.name }

// OpenAI wire types

type openaiRequest struct {
	Model      string          `json:"model"`
	Messages   []openaiMessage `json:"messages"`
	MaxTokens  int             `json:"max_tokens,omitempty"`
	Tools      []openaiTool    `json:"tools,omitempty"`
	ToolChoice string          `json:"tool_choice,omitempty"`
}

type openaiMessage struct {
	Role       string           `json:"role"`
	Content    string           `json:"content"`
	ToolCalls  []openaiToolCall `json:"tool_calls,omitempty"`
	ToolCallID string           `json:"tool_call_id,omitempty"`
}

type openaiToolCall struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"` // JSON-encoded object
	} `json:"function"`
}

type openaiTool struct {
	Type     string `json:"type"`
	Function struct {
		Name        string         `json:"name"`
		Description string         `json:"description,omitempty"`
		Parameters  map[string]any `json:"parameters"`
	} `json:"function"`
}

type openaiResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message      openaiMessage `json:"message"`
		FinishReason string        `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

// Generate sends a chat completion request.
func (p *OpenAIProvider) Generate(ctx context.Context, messages []Message, tools []Tool) (*Response, error) {
	req := openaiRequest{
		Model:     p.model,
		Messages:  convertToOpenAI(messages),
		MaxTokens: 4096,
		Tools:     convertToolsToOpenAI(tools),
	}
	if len(req.Tools) > 0 {
		req.ToolChoice = "auto"
	}

	jsonData, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	p.logger.Debug("preparing request",
		"model", p.model,
		"messages", len(req.Messages),
		"tools", len(req.Tools),
	)
	p.logger.Log(ctx, LevelTrace, "request payload", "json", string(jsonData))

	httpReq, err := http.NewRequestWithContext(ctx, "POST", p.baseURL+"/chat/completions", bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		errBody := httpkit.ReadErrorBody(resp.Body, 4096)
		p.logger.Error("API error", "status", resp.StatusCode, "body", errBody)
		return nil, fmt.Errorf("%s API error %d: %s", p.name, resp.StatusCode, errBody)
	}

	var wire openaiResponse
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if len(wire.Choices) == 0 {
		return nil, fmt.Errorf("%s returned no choices", p.name)
	}

	msg := wire.Choices[0].Message
	result := &Response{
		Text:         msg.Content,
		Model:        wire.Model,
		InputTokens:  wire.Usage.PromptTokens,
		OutputTokens: wire.Usage.CompletionTokens,
	}

	for _, tc := range msg.ToolCalls {
		var args map[string]any
		if tc.Function.Arguments != "" {
			if err := json.Unmarshal([]byte(tc.Function.Arguments), &args); err != nil {
				args = map[string]any{"_raw": tc.Function.Arguments}
			}
		}
		result.ToolCalls = append(result.ToolCalls, ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: args,
		})
	}

	p.logger.Debug("response received",
		"model", result.Model,
		"tool_calls", len(result.ToolCalls),
		"content_len", len(result.Text),
	)
	p.logger.Log(ctx, LevelTrace, "response content", "content", result.Text)

	return result, nil
}

// FormatToolCall builds the assistant turn that initiated tool use. The
// wire encoding (tool_calls array with stringified arguments) is applied
// at request time.
func (p *OpenAIProvider) FormatToolCall(calls []ToolCall, text string) Message {
	return Message{Role: "assistant", Content: text, ToolCalls: calls}
}

// FormatToolResult builds a role "tool" turn correlated by tool_call_id.
func (p *OpenAIProvider) FormatToolResult(callID, result string) Message {
	return Message{Role: "tool", ToolCallID: callID, Content: result}
}

func convertToOpenAI(messages []Message) []openaiMessage {
	result := make([]openaiMessage, 0, len(messages))
	for _, msg := range messages {
		out := openaiMessage{
			Role:       msg.Role,
			Content:    msg.Content,
			ToolCallID: msg.ToolCallID,
		}
		for _, tc := range msg.ToolCalls {
			args, err := json.Marshal(tc.Arguments)
			if err != nil || tc.Arguments == nil {
				args = []byte("{}")
			}
			wtc := openaiToolCall{ID: tc.ID, Type: "function"}
			wtc.Function.Name = tc.Name
			wtc.Function.Arguments = string(args)
			out.ToolCalls = append(out.ToolCalls, wtc)
		}
		result = append(result, out)
	}
	return result
}

func convertToolsToOpenAI(tools []Tool) []openaiTool {
	if len(tools) == 0 {
		return nil
	}

	result := make([]openaiTool, 0, len(tools))
	for _, t := range tools {
		schema := t.InputSchema
		if schema == nil {
			schema = map[string]any{"type": "object", "properties": map[string]any{}}
		}
		wt := openaiTool{Type: "function"}
		wt.Function.Name = t.Name
		wt.Function.Description = t.Description
		wt.Function.Parameters = schema
		result = append(result, wt)
	}
	return result
}
