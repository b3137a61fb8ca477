package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/sahayak/tutor-agent/internal/llm"
	"github.com/sahayak/tutor-agent/internal/prompts"
)

// EnhancePrompt rewrites a learner's question to be clearer and more
// specific. Runs against the default backend since no learner context
// is involved.
func (a *Agent) EnhancePrompt(ctx context.Context, prompt string) (string, error) {
	provider := a.providers.For(ctx, 0)
	resp, err := provider.Generate(ctx, []llm.Message{
		{Role: "user", Content: prompts.Enhance(prompt)},
	}, nil)
	if err != nil {
		return "", fmt.Errorf("enhance: %w", err)
	}

	enhanced := strings.Trim(strings.TrimSpace(resp.Text), `"'`)
	if enhanced == "" {
		return prompt, nil
	}
	return enhanced, nil
}
