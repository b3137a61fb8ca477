package agent

import (
	"context"

	"github.com/sahayak/tutor-agent/internal/memory"
	"github.com/sahayak/tutor-agent/internal/prompts"
)

const (
	semanticLimit = 5
	categoryLimit = 10
)

// buildSystemPrompt assembles the turn's system prompt. For normal
// turns it retrieves semantic matches, profile memories, and due review
// items, merged with semantic results first and duplicates dropped.
// Guest turns skip retrieval entirely and get the guest policy note
// instead.
func (a *Agent) buildSystemPrompt(ctx context.Context, userText string, learnerID int64, guest bool) (string, error) {
	if guest {
		return prompts.System("", true), nil
	}

	semantic, err := a.memories.SearchSemantic(ctx, userText, learnerID, semanticLimit)
	if err != nil {
		return "", err
	}
	profile, err := a.memories.ByCategory(ctx, memory.CategoryUserProfile, learnerID, categoryLimit)
	if err != nil {
		return "", err
	}
	due, err := a.memories.DueForReview(ctx, learnerID)
	if err != nil {
		return "", err
	}

	merged := memory.MergeUnique(semantic, profile, due)
	contents := make([]string, len(merged))
	for i, m := range merged {
		contents[i] = m.Content
	}

	return prompts.System(prompts.MemoryContext(contents), false), nil
}
