package prompts

import (
	"strings"
	"testing"
)

func TestSystemIncludesMemoryContext(t *testing.T) {
	got := System("- prefers visual explanations", false)

	if !strings.Contains(got, "RELEVANT CONTEXT FROM MEMORY") {
		t.Error("missing memory section")
	}
	if !strings.Contains(got, "prefers visual explanations") {
		t.Error("missing memory content")
	}
	if strings.Contains(got, "GUEST MODE") {
		t.Error("guest note present in non-guest prompt")
	}
}

func TestSystemGuestMode(t *testing.T) {
	got := System("", true)

	if strings.Contains(got, "RELEVANT CONTEXT FROM MEMORY") {
		t.Error("guest prompt must not carry a memory section")
	}
	if !strings.Contains(got, "GUEST MODE") {
		t.Error("missing guest note")
	}
	if !strings.Contains(got, "save_memory") {
		t.Error("guest note should forbid memory tools by name")
	}
}

func TestSystemEmptyMemories(t *testing.T) {
	got := System("", false)
	if !strings.Contains(got, "no stored memories yet") {
		t.Error("missing empty-memory placeholder")
	}
}

func TestRolloverSeed(t *testing.T) {
	got := RolloverSeed("We covered recursion.")
	if !strings.HasPrefix(got, "PREVIOUS SESSION SUMMARY:\n") {
		t.Errorf("seed = %q", got)
	}
}

func TestFollowUpTitle(t *testing.T) {
	if got := FollowUpTitle("Recursion"); got != "Follow-up: Recursion" {
		t.Errorf("got %q", got)
	}
	if got := FollowUpTitle(""); got != "Follow-up: previous session" {
		t.Errorf("got %q", got)
	}
}

func TestMemoryContext(t *testing.T) {
	got := MemoryContext([]string{"fact one", "fact two"})
	if got != "- fact one\n- fact two" {
		t.Errorf("got %q", got)
	}
	if MemoryContext(nil) != "" {
		t.Error("empty input should render empty")
	}
}
