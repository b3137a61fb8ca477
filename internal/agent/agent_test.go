package agent

import (
	"context"
	"database/sql"
	"strings"
	"testing"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/sahayak/tutor-agent/internal/llm"
	"github.com/sahayak/tutor-agent/internal/memory"
	"github.com/sahayak/tutor-agent/internal/prompts"
	"github.com/sahayak/tutor-agent/internal/search"
	"github.com/sahayak/tutor-agent/internal/store"
	"github.com/sahayak/tutor-agent/internal/tools"
)

// scriptedProvider replays canned responses and records every call.
type scriptedProvider struct {
	responses []*llm.Response
	calls     []generateCall
}

type generateCall struct {
	messages []llm.Message
	tools    []llm.Tool
}

func (p *scriptedProvider) Name() string { return "scripted" }

func (p *scriptedProvider) Generate(ctx context.Context, messages []llm.Message, manifest []llm.Tool) (*llm.Response, error) {
	p.calls = append(p.calls, generateCall{
		messages: append([]llm.Message(nil), messages...),
		tools:    manifest,
	})
	if len(p.responses) == 0 {
		return &llm.Response{Text: "fallback response"}, nil
	}
	r := p.responses[0]
	p.responses = p.responses[1:]
	return r, nil
}

func (p *scriptedProvider) FormatToolCall(calls []llm.ToolCall, text string) llm.Message {
	filled := make([]llm.ToolCall, len(calls))
	for i, tc := range calls {
		if tc.ID == "" {
			tc.ID = "call_" + tc.Name
		}
		filled[i] = tc
	}
	return llm.Message{Role: "assistant", Content: text, ToolCalls: filled}
}

func (p *scriptedProvider) FormatToolResult(callID, result string) llm.Message {
	return llm.Message{Role: "tool", ToolCallID: callID, Content: result}
}

type fixedProviders struct{ p llm.Provider }

func (f fixedProviders) For(ctx context.Context, learnerID int64) llm.Provider { return f.p }

type constEmbedder struct{}

func (constEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return []float32{1, 0, 0}, nil
}

type noSearch struct{}

func (noSearch) Search(ctx context.Context, query string, opts search.Options) ([]search.Result, error) {
	return []search.Result{{Title: "Result", URL: "https://example.com"}}, nil
}

func (noSearch) Configured() bool { return true }

type fixture struct {
	agent    *Agent
	store    *store.Store
	memories *memory.Store
	provider *scriptedProvider
	conv     *store.Conversation
}

func newFixture(t *testing.T, cfg Config, guest bool, responses ...*llm.Response) *fixture {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	st, err := store.NewWithDB(db)
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	mem, err := memory.NewStore(db, constEmbedder{})
	if err != nil {
		t.Fatalf("memory store: %v", err)
	}
	registry, err := tools.NewTutorRegistry(mem, st, noSearch{})
	if err != nil {
		t.Fatalf("registry: %v", err)
	}

	provider := &scriptedProvider{responses: responses}
	a := New(st, mem, fixedProviders{provider}, registry, cfg, nil)

	conv, err := st.CreateConversation(context.Background(), 1, "", guest)
	if err != nil {
		t.Fatalf("create conversation: %v", err)
	}

	return &fixture{agent: a, store: st, memories: mem, provider: provider, conv: conv}
}

const longAnswer = "Recursion is when a function calls itself to solve a smaller instance of the same problem, terminating at a base case. Each call adds a frame to the stack, and results combine as the calls unwind."

func TestSimpleTurnPersistsAndTitles(t *testing.T) {
	f := newFixture(t, Config{}, false,
		&llm.Response{Text: longAnswer},
		&llm.Response{Text: "Recursion Basics"},
	)
	ctx := context.Background()

	result, err := f.agent.ProcessTurn(ctx, "explain recursion", f.conv.ID, 1, false)
	if err != nil {
		t.Fatalf("ProcessTurn: %v", err)
	}

	if result.Response != longAnswer {
		t.Errorf("response = %q", result.Response)
	}
	if result.NewTitle != "Recursion Basics" {
		t.Errorf("title = %q", result.NewTitle)
	}
	if len(result.NewTitle) > 30 {
		t.Errorf("title too long: %d chars", len(result.NewTitle))
	}

	msgs, _ := f.store.Messages(ctx, f.conv.ID)
	if len(msgs) != 2 {
		t.Fatalf("persisted = %d messages, want 2", len(msgs))
	}
	if msgs[0].Role != "user" || msgs[1].Role != "assistant" {
		t.Errorf("roles = %s, %s", msgs[0].Role, msgs[1].Role)
	}

	conv, _ := f.store.GetConversation(ctx, f.conv.ID)
	if conv.Title != "Recursion Basics" {
		t.Errorf("stored title = %q", conv.Title)
	}

	// One call for the turn, one for the title.
	if len(f.provider.calls) != 2 {
		t.Errorf("model calls = %d, want 2", len(f.provider.calls))
	}
	if len(f.provider.calls[1].tools) != 0 {
		t.Error("title generation must not carry a tool manifest")
	}
}

func TestTitleFailureDoesNotFailTurn(t *testing.T) {
	f := newFixture(t, Config{}, false,
		&llm.Response{Text: longAnswer},
		&llm.Response{Text: ""},
	)

	result, err := f.agent.ProcessTurn(context.Background(), "explain recursion", f.conv.ID, 1, false)
	if err != nil {
		t.Fatalf("ProcessTurn: %v", err)
	}
	if result.NewTitle != "" {
		t.Errorf("title = %q, want empty", result.NewTitle)
	}
}

func TestRolloverShortCircuits(t *testing.T) {
	f := newFixture(t, Config{RolloverThreshold: 20}, false,
		&llm.Response{Text: "We discussed recursion and the learner prefers diagrams."},
	)
	ctx := context.Background()

	f.store.SetTitle(ctx, f.conv.ID, "Recursion")
	for i := 0; i < 10; i++ {
		f.store.AddMessage(ctx, f.conv.ID, "user", "question")
		f.store.AddMessage(ctx, f.conv.ID, "assistant", "answer")
	}

	result, err := f.agent.ProcessTurn(ctx, "one more question", f.conv.ID, 1, false)
	if err != nil {
		t.Fatalf("ProcessTurn: %v", err)
	}

	if result.Response != prompts.RolloverNotice {
		t.Errorf("response = %q", result.Response)
	}
	if result.NewConversationID == nil {
		t.Fatal("no new conversation id")
	}
	if result.NewTitle != "Follow-up: Recursion" {
		t.Errorf("new title = %q", result.NewTitle)
	}

	// Exactly one model call: the summary. Never the main loop.
	if len(f.provider.calls) != 1 {
		t.Fatalf("model calls = %d, want 1", len(f.provider.calls))
	}
	if len(f.provider.calls[0].tools) != 0 {
		t.Error("summary call must not carry a tool manifest")
	}

	// Triggering message lands in the old conversation.
	oldMsgs, _ := f.store.Messages(ctx, f.conv.ID)
	if last := oldMsgs[len(oldMsgs)-1]; last.Role != "user" || last.Content != "one more question" {
		t.Errorf("last old message = %+v", last)
	}

	// New conversation holds only the tagged seed.
	newMsgs, _ := f.store.Messages(ctx, *result.NewConversationID)
	if len(newMsgs) != 1 {
		t.Fatalf("new conversation messages = %d, want 1", len(newMsgs))
	}
	if newMsgs[0].Role != "system" || !strings.HasPrefix(newMsgs[0].Content, "PREVIOUS SESSION SUMMARY:") {
		t.Errorf("seed = %+v", newMsgs[0])
	}
}

func TestRolloverSummaryFailurePropagates(t *testing.T) {
	f := newFixture(t, Config{RolloverThreshold: 2}, false,
		&llm.Response{Text: ""},
	)
	ctx := context.Background()

	f.store.AddMessage(ctx, f.conv.ID, "user", "q")
	f.store.AddMessage(ctx, f.conv.ID, "assistant", "a")

	if _, err := f.agent.ProcessTurn(ctx, "next", f.conv.ID, 1, false); err == nil {
		t.Fatal("expected rollover failure for empty summary")
	}

	// Nothing half-created.
	convs, _ := f.store.ListConversations(ctx, 1)
	if len(convs) != 1 {
		t.Errorf("conversations = %d, want 1", len(convs))
	}
}

func TestIterationBound(t *testing.T) {
	toolLoop := &llm.Response{
		Text: longAnswer,
		ToolCalls: []llm.ToolCall{
			{Name: "save_memory", Arguments: map[string]any{"content": "studies biology", "category": "user_profile"}},
		},
	}
	// More scripted tool responses than the cap allows.
	f := newFixture(t, Config{MaxToolIterations: 3}, false,
		toolLoop, toolLoop, toolLoop, toolLoop, toolLoop,
		&llm.Response{Text: "Short Title"},
	)

	if _, err := f.agent.ProcessTurn(context.Background(), "explain recursion", f.conv.ID, 1, false); err != nil {
		t.Fatalf("ProcessTurn: %v", err)
	}

	// 3 loop iterations + title. No laziness retry: text was long.
	if got := len(f.provider.calls); got != 4 {
		t.Errorf("model calls = %d, want 4", got)
	}
}

func TestGuestTurnOmitsManifestAndMemory(t *testing.T) {
	f := newFixture(t, Config{}, true,
		&llm.Response{
			Text: longAnswer,
			ToolCalls: []llm.ToolCall{
				{Name: "save_memory", Arguments: map[string]any{"content": "x", "category": "general"}},
			},
		},
	)
	ctx := context.Background()

	result, err := f.agent.ProcessTurn(ctx, "explain recursion", f.conv.ID, 1, true)
	if err != nil {
		t.Fatalf("ProcessTurn: %v", err)
	}
	if result.NewTitle != "" {
		t.Errorf("guest turn generated title %q", result.NewTitle)
	}

	for i, call := range f.provider.calls {
		if len(call.tools) != 0 {
			t.Errorf("call %d carried a tool manifest", i)
		}
	}
	// Even a returned tool call must not execute in guest mode.
	if len(f.provider.calls) != 1 {
		t.Errorf("model calls = %d, want 1", len(f.provider.calls))
	}
	records, _ := f.memories.All(ctx, 1)
	if len(records) != 0 {
		t.Errorf("guest turn wrote %d memories", len(records))
	}

	// Guest system prompt carries the policy note, not memory context.
	sys := f.provider.calls[0].messages[0]
	if sys.Role != "system" || !strings.Contains(sys.Content, "GUEST MODE") {
		t.Errorf("system prompt = %q", sys.Content)
	}
	if strings.Contains(sys.Content, "RELEVANT CONTEXT FROM MEMORY") {
		t.Error("guest prompt contains memory section")
	}
}

func TestLazinessCorrectionPath(t *testing.T) {
	f := newFixture(t, Config{MinSubstantiveChars: 50}, false,
		&llm.Response{
			Text: "Saved that!",
			ToolCalls: []llm.ToolCall{
				{Name: "save_memory", Arguments: map[string]any{"content": "studies biology", "category": "user_profile"}},
			},
		},
		&llm.Response{Text: ""},
		&llm.Response{Text: longAnswer},
		&llm.Response{Text: "Biology Help"},
	)
	ctx := context.Background()

	result, err := f.agent.ProcessTurn(ctx, "I'm studying biology, explain osmosis", f.conv.ID, 1, false)
	if err != nil {
		t.Fatalf("ProcessTurn: %v", err)
	}

	if !strings.HasPrefix(result.Response, longAnswer) {
		t.Errorf("response does not start with correction: %q", result.Response)
	}
	// 2 loop calls + 1 correction + 1 title.
	if len(f.provider.calls) != 4 {
		t.Fatalf("model calls = %d, want 4", len(f.provider.calls))
	}

	// The correction call carries the corrective instruction and no
	// manifest.
	correction := f.provider.calls[2]
	if len(correction.tools) != 0 {
		t.Error("correction call carried a tool manifest")
	}
	last := correction.messages[len(correction.messages)-1]
	if last.Role != "system" || last.Content != prompts.LazinessCorrection {
		t.Errorf("correction instruction = %+v", last)
	}

	// The tool still ran.
	records, _ := f.memories.All(ctx, 1)
	if len(records) != 1 {
		t.Errorf("memories = %d, want 1", len(records))
	}

	msgs, _ := f.store.Messages(ctx, f.conv.ID)
	assistant := msgs[len(msgs)-1]
	if !strings.HasPrefix(assistant.Content, longAnswer) {
		t.Errorf("persisted assistant message starts with %q", assistant.Content[:40])
	}
}

func TestSearchCallIsNotDegenerate(t *testing.T) {
	f := newFixture(t, Config{MinSubstantiveChars: 50}, false,
		&llm.Response{
			Text:      "Looking it up.",
			ToolCalls: []llm.ToolCall{{Name: "web_search", Arguments: map[string]any{"query": "osmosis"}}},
		},
		&llm.Response{Text: longAnswer},
		&llm.Response{Text: "Osmosis"},
	)

	result, err := f.agent.ProcessTurn(context.Background(), "find osmosis resources", f.conv.ID, 1, false)
	if err != nil {
		t.Fatalf("ProcessTurn: %v", err)
	}

	// 2 loop calls + title; no correction call.
	if len(f.provider.calls) != 3 {
		t.Errorf("model calls = %d, want 3", len(f.provider.calls))
	}
	if !strings.Contains(result.Response, ":::resources") {
		t.Errorf("missing resources block: %q", result.Response)
	}
}

func TestToolFailureIsIsolated(t *testing.T) {
	f := newFixture(t, Config{}, false,
		&llm.Response{
			Text:      longAnswer,
			ToolCalls: []llm.ToolCall{{Name: "defragment_disk", Arguments: map[string]any{}}},
		},
		&llm.Response{Text: "All done."},
		&llm.Response{Text: "Title"},
	)

	_, err := f.agent.ProcessTurn(context.Background(), "explain recursion", f.conv.ID, 1, false)
	if err != nil {
		t.Fatalf("tool failure aborted the turn: %v", err)
	}

	// The second model call sees the error as a tool result.
	second := f.provider.calls[1]
	var found bool
	for _, m := range second.messages {
		if m.Role == "tool" && strings.Contains(m.Content, "not available") {
			found = true
		}
	}
	if !found {
		t.Error("tool error was not fed back to the model")
	}
}

func TestMemoryContextReachesSystemPrompt(t *testing.T) {
	f := newFixture(t, Config{}, false,
		&llm.Response{Text: longAnswer},
		&llm.Response{Text: "Title"},
	)
	ctx := context.Background()

	if _, err := f.memories.Add(ctx, 1, "prefers visual explanations", map[string]any{"category": memory.CategoryUserProfile}); err != nil {
		t.Fatal(err)
	}

	if _, err := f.agent.ProcessTurn(ctx, "explain recursion", f.conv.ID, 1, false); err != nil {
		t.Fatalf("ProcessTurn: %v", err)
	}

	sys := f.provider.calls[0].messages[0]
	if !strings.Contains(sys.Content, "prefers visual explanations") {
		t.Error("retrieved memory missing from system prompt")
	}
}

func TestStreakUpdatedOnTurn(t *testing.T) {
	f := newFixture(t, Config{}, false,
		&llm.Response{Text: longAnswer},
		&llm.Response{Text: "Title"},
	)
	ctx := context.Background()

	if _, err := f.agent.ProcessTurn(ctx, "explain recursion", f.conv.ID, 1, false); err != nil {
		t.Fatal(err)
	}

	learner, err := f.store.GetLearner(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	if learner.StreakDays != 1 {
		t.Errorf("streak = %d, want 1", learner.StreakDays)
	}
	if learner.LastActive.IsZero() {
		t.Error("last active not recorded")
	}
}

func TestUnknownConversation(t *testing.T) {
	f := newFixture(t, Config{}, false)
	if _, err := f.agent.ProcessTurn(context.Background(), "hi", uuid.New(), 1, false); err == nil {
		t.Fatal("expected error for unknown conversation")
	}
}

func TestEnhancePrompt(t *testing.T) {
	f := newFixture(t, Config{}, false,
		&llm.Response{Text: `"How does osmosis move water across a semipermeable membrane?"`},
	)

	got, err := f.agent.EnhancePrompt(context.Background(), "osmosis?")
	if err != nil {
		t.Fatalf("EnhancePrompt: %v", err)
	}
	if strings.HasPrefix(got, `"`) || !strings.Contains(got, "osmosis") {
		t.Errorf("enhanced = %q", got)
	}
	if len(f.provider.calls[0].tools) != 0 {
		t.Error("enhance call carried a tool manifest")
	}
}
