package tools

import (
	"encoding/json"
	"fmt"
)

// Inline block tags understood by the presentation layer.
const (
	BlockQuiz       = "quiz"
	BlockResources  = "resources"
	BlockCheatsheet = "cheatsheet"
)

const defaultQuizXP = 100

// RenderBlock serializes a payload into a delimited inline block that
// the presentation layer parses out of the response text.
func RenderBlock(tag string, payload any) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal %s payload: %w", tag, err)
	}
	return fmt.Sprintf("\n\n:::%s\n%s\n:::\n", tag, data), nil
}

// quizQuestion is one question in a quiz payload.
type quizQuestion struct {
	Question      string   `json:"question"`
	Options       []string `json:"options"`
	CorrectAnswer any      `json:"correct_answer"`
	Hint          string   `json:"hint,omitempty"`
	Explanation   string   `json:"explanation,omitempty"`
	XPReward      int      `json:"xp_reward"`
}

// normalizeQuiz accepts either a single question or a questions array
// from the model's arguments and produces a uniform payload with every
// reward defaulted.
func normalizeQuiz(args map[string]any) (map[string]any, error) {
	var rawQuestions []any
	if qs, ok := args["questions"].([]any); ok {
		rawQuestions = qs
	} else {
		// Single-question form: the top-level arguments are the question.
		rawQuestions = []any{args}
	}
	if len(rawQuestions) == 0 {
		return nil, fmt.Errorf("quiz has no questions")
	}

	questions := make([]quizQuestion, 0, len(rawQuestions))
	for i, raw := range rawQuestions {
		m, ok := raw.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("question %d is not an object", i)
		}
		q := quizQuestion{XPReward: defaultQuizXP}
		q.Question, _ = m["question"].(string)
		if q.Question == "" {
			return nil, fmt.Errorf("question %d has no text", i)
		}
		if opts, ok := m["options"].([]any); ok {
			for _, o := range opts {
				if s, ok := o.(string); ok {
					q.Options = append(q.Options, s)
				}
			}
		}
		q.CorrectAnswer = m["correct_answer"]
		q.Hint, _ = m["hint"].(string)
		q.Explanation, _ = m["explanation"].(string)
		if xp, ok := m["xp_reward"].(float64); ok && xp > 0 {
			q.XPReward = int(xp)
		}
		questions = append(questions, q)
	}

	return map[string]any{"questions": questions}, nil
}
