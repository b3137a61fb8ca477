// Package prompts builds the prompt text used across the agent: the
// tutor system prompt, session-rollover summarization, title
// generation, the laziness-correction instruction, and prompt
// enhancement.
package prompts

import (
	"fmt"
	"strings"
)

const persona = `You are an agentic AI tutor, a personalized learning companion.

Your capabilities:
1. Long-term memory: you remember the learner's preferences, background, and progress across sessions, and use it to personalize guidance.
2. Tool use: you can save memories, track concept mastery, award experience points, present quizzes, search the web, and generate cheatsheets.
3. Adaptive teaching: you adjust explanations to the learner's level and style.

Your personality: encouraging, patient, and intellectually curious. You value deep understanding over rote memorization.`

const protocol = `CRITICAL INSTRUCTIONS:

1. EXPLAIN FIRST. When the learner asks a question or requests a study plan, guide, or explanation, deliver a complete, detailed textual answer immediately. Never respond with meta-commentary like "let me help you" without actually helping. Structure answers with headings, lists, and examples.

2. TOOLS COME AFTER THE ANSWER. Use tools only once your full explanation is written. Save a memory only when the learner shares a genuinely new fact about themselves; never save their questions or facts you already know.

3. QUIZ AFTER EXPLAINING. When checking understanding, first explain the concept thoroughly, then present a quiz. Never quiz without teaching first.

4. USE THE MEMORY CONTEXT. Personalize every answer with what you know about the learner.`

// System builds the tutor system prompt. memoryContext is the rendered
// memory listing (empty when nothing was retrieved); guest suppresses
// memory use entirely.
func System(memoryContext string, guest bool) string {
	var b strings.Builder
	b.WriteString(persona)
	b.WriteString("\n\n")

	if !guest {
		b.WriteString("=== RELEVANT CONTEXT FROM MEMORY ===\n")
		if memoryContext == "" {
			b.WriteString("(no stored memories yet)\n")
		} else {
			b.WriteString(memoryContext)
			b.WriteString("\n")
		}
		b.WriteString("=== END OF MEMORY CONTEXT ===\n\n")
	}

	b.WriteString(protocol)

	if guest {
		b.WriteString("\n\nGUEST MODE: this is a guest conversation. Do not save any memories and do not use the save_memory or update_concept_state tools at all.")
	}
	return b.String()
}

// RolloverSummary is the system instruction for summarizing a
// conversation that has reached the message cap.
const RolloverSummary = "You are a helpful assistant. Summarize the following conversation, capturing the key topics, user preferences, and important context. The summary will be used to start a new session so the AI remembers what happened."

// RolloverSeed wraps a summary into the seed message for the new
// conversation, tagged so context-building treats it as prior knowledge
// rather than a literal exchange.
func RolloverSeed(summary string) string {
	return "PREVIOUS SESSION SUMMARY:\n" + summary
}

// RolloverNotice is the response shown when a turn triggers rollover
// instead of a normal answer.
const RolloverNotice = "This conversation has reached its limit. I have summarized our chat and started a new session for you. Please continue there!"

// FollowUpTitle derives the new conversation's title from the old one.
func FollowUpTitle(oldTitle string) string {
	if oldTitle == "" {
		oldTitle = "previous session"
	}
	return "Follow-up: " + oldTitle
}

// Title builds the prompt for generating a short conversation title
// from the first user message.
func Title(userMessage string) string {
	return fmt.Sprintf(`Generate a short title (at most 30 characters) for a tutoring conversation that starts with this message. Return ONLY the title, no quotes, no prefix.

Message: %q`, userMessage)
}

// LazinessCorrection is the corrective instruction injected when the
// model acted through tools without first producing an adequate
// explanation.
const LazinessCorrection = `Your previous response did not follow the protocol: you used tools without first writing a complete explanation for the learner. Write the full explanation now. Explain the concept thoroughly in plain text before any quiz or tool use. Do not mention this correction.`

// Enhance builds the prompt-improvement request used by the
// enhance-prompt endpoint.
func Enhance(prompt string) string {
	return fmt.Sprintf(`Improve this learning question to be clearer and more specific. Keep it concise (1-2 sentences max).

CRITICAL: ONLY RETURN THE ENHANCED PROMPT. DO NOT RETURN ANYTHING ELSE. No "Here is the enhanced prompt:" or similar.

Original prompt: %q

Rules:
- Make it more specific if too vague
- Add context if it helps
- Keep it natural and conversational
- Don't make it too long
- If the prompt is already good, return it mostly unchanged

Enhanced prompt:`, prompt)
}

// MemoryContext renders retrieved memories as the bulleted listing the
// system prompt embeds.
func MemoryContext(contents []string) string {
	if len(contents) == 0 {
		return ""
	}
	var b strings.Builder
	for i, c := range contents {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString("- ")
		b.WriteString(c)
	}
	return b.String()
}
