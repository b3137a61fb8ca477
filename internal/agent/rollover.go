package agent

import (
	"context"
	"fmt"

	"github.com/sahayak/tutor-agent/internal/llm"
	"github.com/sahayak/tutor-agent/internal/prompts"
	"github.com/sahayak/tutor-agent/internal/store"
)

// rollover summarizes a conversation that has hit the message cap and
// starts a fresh one seeded with the summary. A summary failure aborts
// the rollover before anything is created, so no half-built
// conversation is left behind.
func (a *Agent) rollover(ctx context.Context, provider llm.Provider, conv *store.Conversation) (*store.Conversation, error) {
	history, err := a.store.Messages(ctx, conv.ID)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}

	summaryInput := make([]llm.Message, 0, len(history)+1)
	summaryInput = append(summaryInput, llm.Message{Role: "system", Content: prompts.RolloverSummary})
	for _, m := range history {
		role := m.Role
		// Seed messages from earlier rollovers replay as user context,
		// not as competing system instructions.
		if role == "system" {
			role = "user"
		}
		summaryInput = append(summaryInput, llm.Message{Role: role, Content: m.Content})
	}

	resp, err := provider.Generate(ctx, summaryInput, nil)
	if err != nil {
		return nil, fmt.Errorf("summarize: %w", err)
	}
	if resp.Text == "" {
		return nil, fmt.Errorf("summarize: empty summary")
	}

	newConv, err := a.store.CreateConversation(ctx, conv.LearnerID, prompts.FollowUpTitle(conv.Title), conv.Guest)
	if err != nil {
		return nil, fmt.Errorf("create conversation: %w", err)
	}
	if _, err := a.store.AddMessage(ctx, newConv.ID, "system", prompts.RolloverSeed(resp.Text)); err != nil {
		return nil, fmt.Errorf("seed summary: %w", err)
	}

	return newConv, nil
}
