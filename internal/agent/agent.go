// Package agent implements the turn-execution loop: one user message
// in, one assistant message out, with bounded model/tool iterations in
// between.
package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sahayak/tutor-agent/internal/gamify"
	"github.com/sahayak/tutor-agent/internal/llm"
	"github.com/sahayak/tutor-agent/internal/memory"
	"github.com/sahayak/tutor-agent/internal/prompts"
	"github.com/sahayak/tutor-agent/internal/store"
	"github.com/sahayak/tutor-agent/internal/tools"
)

const maxTitleLen = 30

// Providers resolves the model backend for a learner's turn.
type Providers interface {
	For(ctx context.Context, learnerID int64) llm.Provider
}

// Config carries the orchestrator's tunable knobs.
type Config struct {
	// MaxToolIterations bounds the model/tool loop within one turn.
	MaxToolIterations int
	// RolloverThreshold is the persisted message count at which a
	// conversation rolls over into a summarized continuation.
	RolloverThreshold int
	// MinSubstantiveChars is the minimum first-iteration text length
	// below which a tool-using response is considered degenerate.
	MinSubstantiveChars int
}

func (c *Config) applyDefaults() {
	if c.MaxToolIterations <= 0 {
		c.MaxToolIterations = 5
	}
	if c.RolloverThreshold <= 0 {
		c.RolloverThreshold = 20
	}
	if c.MinSubstantiveChars <= 0 {
		c.MinSubstantiveChars = 50
	}
}

// Agent orchestrates conversation turns.
type Agent struct {
	store     *store.Store
	memories  *memory.Store
	providers Providers
	registry  *tools.Registry
	cfg       Config
	logger    *slog.Logger
}

// New creates a turn orchestrator.
func New(st *store.Store, mem *memory.Store, providers Providers, registry *tools.Registry, cfg Config, logger *slog.Logger) *Agent {
	cfg.applyDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Agent{
		store:     st,
		memories:  mem,
		providers: providers,
		registry:  registry,
		cfg:       cfg,
		logger:    logger,
	}
}

// TurnResult is what one processed turn returns to the caller.
type TurnResult struct {
	Response          string     `json:"response"`
	NewConversationID *uuid.UUID `json:"new_conversation_id,omitempty"`
	NewTitle          string     `json:"new_title,omitempty"`
}

// ProcessTurn runs one conversation turn end to end: rollover check,
// context build, the bounded model/tool loop, laziness correction, and
// persistence.
func (a *Agent) ProcessTurn(ctx context.Context, userText string, conversationID uuid.UUID, learnerID int64, guest bool) (*TurnResult, error) {
	conv, err := a.store.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("load conversation: %w", err)
	}
	guest = guest || conv.Guest

	provider := a.providers.For(ctx, learnerID)
	log := a.logger.With("conversation", conversationID, "learner", learnerID, "provider", provider.Name())

	// Prior message count decides rollover before the new message is
	// added.
	priorCount, err := a.store.MessageCount(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("count messages: %w", err)
	}
	if priorCount >= a.cfg.RolloverThreshold {
		log.Info("rollover triggered", "messages", priorCount, "threshold", a.cfg.RolloverThreshold)
		// The triggering message is recorded in the old conversation;
		// it is not replayed into the new one.
		if _, err := a.store.AddMessage(ctx, conversationID, "user", userText); err != nil {
			return nil, fmt.Errorf("save user message: %w", err)
		}
		newConv, err := a.rollover(ctx, provider, conv)
		if err != nil {
			return nil, fmt.Errorf("rollover: %w", err)
		}
		return &TurnResult{
			Response:          prompts.RolloverNotice,
			NewConversationID: &newConv.ID,
			NewTitle:          newConv.Title,
		}, nil
	}

	history, err := a.store.Messages(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	if _, err := a.store.AddMessage(ctx, conversationID, "user", userText); err != nil {
		return nil, fmt.Errorf("save user message: %w", err)
	}

	if !guest {
		a.touchStreak(ctx, learnerID, log)
	}

	systemPrompt, err := a.buildSystemPrompt(ctx, userText, learnerID, guest)
	if err != nil {
		return nil, fmt.Errorf("build context: %w", err)
	}

	messages := make([]llm.Message, 0, len(history)+2)
	messages = append(messages, llm.Message{Role: "system", Content: systemPrompt})
	for _, m := range history {
		messages = append(messages, llm.Message{Role: m.Role, Content: m.Content})
	}
	messages = append(messages, llm.Message{Role: "user", Content: userText})

	var manifest []llm.Tool
	if !guest {
		manifest = a.registry.Manifest()
	}

	var (
		response   strings.Builder
		firstText  string
		firstCalls []llm.ToolCall
	)

	for iteration := 0; iteration < a.cfg.MaxToolIterations; iteration++ {
		resp, err := provider.Generate(ctx, messages, manifest)
		if err != nil {
			return nil, fmt.Errorf("generate: %w", err)
		}
		log.Debug("model response",
			"iteration", iteration,
			"text_len", len(resp.Text),
			"tool_calls", len(resp.ToolCalls),
		)

		if iteration == 0 {
			firstText = resp.Text
			firstCalls = resp.ToolCalls
		}
		appendText(&response, resp.Text)

		if guest || len(resp.ToolCalls) == 0 {
			break
		}

		// The model's own tool-call turn re-enters context in the
		// provider's wire shape, with any missing call IDs filled.
		callTurn := provider.FormatToolCall(resp.ToolCalls, resp.Text)
		messages = append(messages, callTurn)

		for _, call := range callTurn.ToolCalls {
			outcome, err := a.registry.Execute(ctx, learnerID, call.Name, call.Arguments)
			feedback := outcome.Feedback
			if err != nil {
				log.Warn("tool failed", "tool", call.Name, "error", err)
				feedback = "Error: " + err.Error()
			}
			if outcome.Visible != "" {
				response.WriteString(outcome.Visible)
			}
			messages = append(messages, provider.FormatToolResult(call.ID, feedback))
		}
	}

	final := response.String()
	if a.isDegenerate(firstText, firstCalls) {
		log.Info("laziness correction triggered", "first_text_len", len(firstText))
		corrected, err := a.correctLaziness(ctx, provider, messages)
		if err != nil {
			log.Warn("laziness correction failed", "error", err)
		} else if corrected != "" {
			final = corrected + "\n\n" + final
		}
	}

	if _, err := a.store.AddMessage(ctx, conversationID, "assistant", final); err != nil {
		return nil, fmt.Errorf("save assistant message: %w", err)
	}

	result := &TurnResult{Response: final}
	if priorCount == 0 && !guest {
		// First exchange: synthesize a short title, best-effort.
		if title := a.generateTitle(ctx, provider, userText, log); title != "" {
			if err := a.store.SetTitle(ctx, conversationID, title); err != nil {
				log.Warn("set title failed", "error", err)
			} else {
				result.NewTitle = title
			}
		}
	}
	return result, nil
}

// isDegenerate reports whether the first model iteration acted through
// tools without producing an adequate explanation. Search-driven turns
// are exempt: short text before a lookup is legitimate.
func (a *Agent) isDegenerate(firstText string, firstCalls []llm.ToolCall) bool {
	if len(firstCalls) == 0 {
		return false
	}
	for _, c := range firstCalls {
		if c.Name == "web_search" || c.Name == "search_web" {
			return false
		}
	}
	return len(strings.TrimSpace(firstText)) < a.cfg.MinSubstantiveChars
}

// correctLaziness re-invokes the model once with the corrective
// instruction and no tool manifest.
func (a *Agent) correctLaziness(ctx context.Context, provider llm.Provider, messages []llm.Message) (string, error) {
	corrective := append(append([]llm.Message(nil), messages...),
		llm.Message{Role: "system", Content: prompts.LazinessCorrection})
	resp, err := provider.Generate(ctx, corrective, nil)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(resp.Text), nil
}

func (a *Agent) generateTitle(ctx context.Context, provider llm.Provider, userText string, log *slog.Logger) string {
	resp, err := provider.Generate(ctx, []llm.Message{
		{Role: "user", Content: prompts.Title(userText)},
	}, nil)
	if err != nil {
		log.Warn("title generation failed", "error", err)
		return ""
	}

	title := strings.TrimSpace(strings.Trim(strings.TrimSpace(resp.Text), `"'`))
	if title == "" {
		return ""
	}
	if len(title) > maxTitleLen {
		title = strings.TrimSpace(title[:maxTitleLen])
	}
	return title
}

func (a *Agent) touchStreak(ctx context.Context, learnerID int64, log *slog.Logger) {
	learner, err := a.store.EnsureLearner(ctx, learnerID)
	if err != nil {
		log.Warn("ensure learner failed", "error", err)
		return
	}
	now := time.Now().UTC()
	streak := gamify.NextStreak(learner.StreakDays, learner.LastActive, now)
	if err := a.store.SetStreak(ctx, learnerID, streak, now); err != nil {
		log.Warn("streak update failed", "error", err)
	}
}

func appendText(b *strings.Builder, text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	if b.Len() > 0 {
		b.WriteString("\n\n")
	}
	b.WriteString(text)
}
