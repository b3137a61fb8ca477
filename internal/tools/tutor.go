package tools

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sahayak/tutor-agent/internal/gamify"
	"github.com/sahayak/tutor-agent/internal/memory"
	"github.com/sahayak/tutor-agent/internal/search"
)

// MemoryWriter persists memories on behalf of tools.
type MemoryWriter interface {
	Add(ctx context.Context, learnerID int64, content string, metadata map[string]any) (*memory.Record, error)
}

// XPLedger applies experience point awards.
type XPLedger interface {
	AddXP(ctx context.Context, learnerID int64, amount int) error
}

// Searcher runs web searches. The search manager implements this.
type Searcher interface {
	Search(ctx context.Context, query string, opts search.Options) ([]search.Result, error)
	Configured() bool
}

// NewTutorRegistry builds the registry with the full tutoring tool set.
func NewTutorRegistry(mem MemoryWriter, xp XPLedger, searcher Searcher) (*Registry, error) {
	r := NewRegistry()
	b := &builtins{mem: mem, xp: xp, searcher: searcher, now: time.Now}
	if err := b.register(r); err != nil {
		return nil, err
	}
	return r, nil
}

type builtins struct {
	mem      MemoryWriter
	xp       XPLedger
	searcher Searcher
	now      func() time.Time
}

func (b *builtins) register(r *Registry) error {
	specs := []*Tool{
		{
			Name:        "save_memory",
			Description: "Save an important fact about the learner for future sessions: their background, learning preferences, or goals. Use sparingly for genuinely useful facts.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"content": map[string]any{
						"type":        "string",
						"description": "The fact to remember, phrased as a standalone sentence",
					},
					"category": map[string]any{
						"type": "string",
						"enum": []string{
							memory.CategoryUserProfile,
							memory.CategoryLearningPreference,
							memory.CategoryGeneral,
						},
						"description": "What kind of fact this is",
					},
				},
				"required": []string{"content", "category"},
			},
			Handler: b.handleSaveMemory,
		},
		{
			Name:        "update_concept_state",
			Description: "Record the learner's progress on a concept after practice or a quiz. Schedules the next spaced-repetition review based on performance.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"concept": map[string]any{
						"type":        "string",
						"description": "The concept name (e.g., 'recursion')",
					},
					"state": map[string]any{
						"type":        "string",
						"enum":        []string{"new", "practicing", "mastered"},
						"description": "Current mastery state",
					},
					"performance": map[string]any{
						"type":        "string",
						"enum":        []string{"low", "medium", "high"},
						"description": "How well the learner performed (defaults to medium)",
					},
				},
				"required": []string{"concept", "state"},
			},
			Handler: b.handleUpdateConceptState,
		},
		{
			Name:        "manage_gamification",
			Description: "Award experience points for learning achievements: completing a quiz, mastering a concept, or a productive session.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"xp_amount": map[string]any{
						"type":        "integer",
						"minimum":     1,
						"description": "How many points to award",
					},
					"reason": map[string]any{
						"type":        "string",
						"description": "Why the points are awarded",
					},
				},
				"required": []string{"xp_amount"},
			},
			Handler: b.handleManageGamification,
		},
		{
			Name:        "present_quiz",
			Description: "Present a multiple-choice quiz to check understanding. Always explain the concept first, then quiz.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"questions": map[string]any{
						"type":        "array",
						"description": "Quiz questions",
						"items": map[string]any{
							"type": "object",
							"properties": map[string]any{
								"question":       map[string]any{"type": "string"},
								"options":        map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
								"correct_answer": map[string]any{},
								"hint":           map[string]any{"type": "string"},
								"explanation":    map[string]any{"type": "string"},
								"xp_reward":      map[string]any{"type": "integer"},
							},
							"required": []string{"question", "options", "correct_answer"},
						},
					},
					"question":       map[string]any{"type": "string"},
					"options":        map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
					"correct_answer": map[string]any{},
					"hint":           map[string]any{"type": "string"},
					"explanation":    map[string]any{"type": "string"},
					"xp_reward":      map[string]any{"type": "integer"},
				},
			},
			Handler: b.handlePresentQuiz,
		},
		{
			Name:        "web_search",
			Description: "Search the web for current information, tutorials, or learning resources.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"query": map[string]any{
						"type":        "string",
						"description": "The search query",
					},
					"num_results": map[string]any{
						"type":        "integer",
						"minimum":     1,
						"maximum":     10,
						"description": "How many results to return (default 5)",
					},
				},
				"required": []string{"query"},
			},
			Handler: b.handleWebSearch,
		},
		{
			Name:        "search_web",
			Description: "Search the web. Alias of web_search for models that prefer this name.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"query": map[string]any{
						"type":        "string",
						"description": "The search query",
					},
				},
				"required": []string{"query"},
			},
			Handler: b.handleWebSearch,
		},
		{
			Name:        "generate_cheatsheet",
			Description: "Generate a structured reference cheatsheet for a topic, with titled sections and quick tips.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"topic": map[string]any{
						"type":        "string",
						"description": "The cheatsheet topic",
					},
					"sections": map[string]any{
						"type":        "array",
						"description": "Content sections",
						"items": map[string]any{
							"type": "object",
							"properties": map[string]any{
								"title":   map[string]any{"type": "string"},
								"content": map[string]any{"type": "string"},
							},
							"required": []string{"title", "content"},
						},
					},
					"tips": map[string]any{
						"type":        "array",
						"description": "Short one-line tips",
						"items":       map[string]any{"type": "string"},
					},
				},
				"required": []string{"topic", "sections"},
			},
			Handler: b.handleGenerateCheatsheet,
		},
	}

	for _, t := range specs {
		if err := r.Register(t); err != nil {
			return err
		}
	}
	return nil
}

// Tool handlers

func (b *builtins) handleSaveMemory(ctx context.Context, learnerID int64, args map[string]any) (Outcome, error) {
	content, _ := args["content"].(string)
	category, _ := args["category"].(string)

	_, err := b.mem.Add(ctx, learnerID, content, map[string]any{"category": category})
	if err != nil {
		return Outcome{}, fmt.Errorf("save memory: %w", err)
	}
	return Outcome{Feedback: fmt.Sprintf("Memory saved (%s).", category)}, nil
}

func (b *builtins) handleUpdateConceptState(ctx context.Context, learnerID int64, args map[string]any) (Outcome, error) {
	concept, _ := args["concept"].(string)
	state, _ := args["state"].(string)
	performance, _ := args["performance"].(string)
	if performance == "" {
		performance = "medium"
	}

	now := b.now().UTC()
	next := gamify.NextReview(performance, now)

	content := fmt.Sprintf("Concept: %s. State: %s. Last performance: %s.", concept, state, performance)
	_, err := b.mem.Add(ctx, learnerID, content, map[string]any{
		"category":           memory.CategoryLearningProgress,
		"concept":            concept,
		"state":              state,
		"last_performance":   performance,
		"last_reviewed_date": now.Format(time.RFC3339),
		"next_review_date":   next.Format(time.RFC3339),
	})
	if err != nil {
		return Outcome{}, fmt.Errorf("update concept state: %w", err)
	}

	return Outcome{
		Feedback: fmt.Sprintf("Progress recorded for %q (%s). Next review: %s.",
			concept, state, next.Format("2006-01-02")),
	}, nil
}

func (b *builtins) handleManageGamification(ctx context.Context, learnerID int64, args map[string]any) (Outcome, error) {
	amount, _ := args["xp_amount"].(float64)
	reason, _ := args["reason"].(string)

	if err := b.xp.AddXP(ctx, learnerID, int(amount)); err != nil {
		return Outcome{}, fmt.Errorf("award xp: %w", err)
	}

	feedback := fmt.Sprintf("Awarded %d XP.", int(amount))
	if reason != "" {
		feedback = fmt.Sprintf("Awarded %d XP for %s.", int(amount), reason)
	}
	return Outcome{Feedback: feedback}, nil
}

func (b *builtins) handlePresentQuiz(ctx context.Context, learnerID int64, args map[string]any) (Outcome, error) {
	payload, err := normalizeQuiz(args)
	if err != nil {
		return Outcome{}, err
	}

	block, err := RenderBlock(BlockQuiz, payload)
	if err != nil {
		return Outcome{}, err
	}

	n := len(payload["questions"].([]quizQuestion))
	return Outcome{
		Feedback: fmt.Sprintf("Quiz with %d question(s) presented to the learner.", n),
		Visible:  block,
	}, nil
}

func (b *builtins) handleWebSearch(ctx context.Context, learnerID int64, args map[string]any) (Outcome, error) {
	query, _ := args["query"].(string)
	count := 5
	if n, ok := args["num_results"].(float64); ok && n > 0 {
		count = int(n)
	}

	if b.searcher == nil || !b.searcher.Configured() {
		return Outcome{Feedback: "Web search is not configured; answer from existing knowledge."}, nil
	}

	results, err := b.searcher.Search(ctx, query, search.Options{Count: count})
	if err != nil {
		// Search failures are information for the model, not turn
		// failures.
		return Outcome{Feedback: fmt.Sprintf("Web search failed: %v. Answer from existing knowledge.", err)}, nil
	}
	if len(results) == 0 {
		return Outcome{Feedback: "Web search returned no results."}, nil
	}

	block, err := RenderBlock(BlockResources, map[string]any{
		"query":   query,
		"results": results,
	})
	if err != nil {
		return Outcome{}, err
	}

	return Outcome{
		Feedback: search.FormatResults(results),
		Visible:  block,
	}, nil
}

func (b *builtins) handleGenerateCheatsheet(ctx context.Context, learnerID int64, args map[string]any) (Outcome, error) {
	topic, _ := args["topic"].(string)

	type section struct {
		Title   string `json:"title"`
		Content string `json:"content"`
	}
	var sections []section
	if raw, ok := args["sections"].([]any); ok {
		for _, s := range raw {
			m, ok := s.(map[string]any)
			if !ok {
				continue
			}
			title, _ := m["title"].(string)
			content, _ := m["content"].(string)
			sections = append(sections, section{Title: title, Content: content})
		}
	}
	if len(sections) == 0 {
		return Outcome{}, fmt.Errorf("cheatsheet has no sections")
	}

	var tips []string
	if raw, ok := args["tips"].([]any); ok {
		for _, t := range raw {
			if s, ok := t.(string); ok && strings.TrimSpace(s) != "" {
				tips = append(tips, s)
			}
		}
	}

	block, err := RenderBlock(BlockCheatsheet, map[string]any{
		"topic":    topic,
		"sections": sections,
		"tips":     tips,
	})
	if err != nil {
		return Outcome{}, err
	}

	return Outcome{
		Feedback: fmt.Sprintf("Cheatsheet for %q generated with %d section(s).", topic, len(sections)),
		Visible:  block,
	}, nil
}
