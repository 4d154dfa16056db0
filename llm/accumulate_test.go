package llm

import (
	"testing"

	"github.com/m4xw311/dialagent/session"
)

func TestAccumulatorMergesByIndex(t *testing.T) {
	var acc Accumulator
	frags := []Fragment{
		{Content: "Let me "},
		{ToolCalls: []ToolCallDelta{{Index: 1, ID: "call_b", Name: "search_users", Arguments: `{"name"`}}},
		{Content: "check."},
		{ToolCalls: []ToolCallDelta{{Index: 0, ID: "call_a", Name: "get_user_by_id", Arguments: `{"a":`}}},
		{ToolCalls: []ToolCallDelta{{Index: 0, Arguments: `1`}, {Index: 1, Arguments: `:"A"}`}}},
		// later id and name values do not override the first ones
		{ToolCalls: []ToolCallDelta{{Index: 0, ID: "other", Name: "other", Arguments: `}`}}},
		{FinishReason: FinishToolCalls},
	}
	var text string
	for _, f := range frags {
		text += acc.Add(f)
	}

	if text != "Let me check." || acc.Content() != text {
		t.Errorf("unexpected text %q / %q", text, acc.Content())
	}
	want := []session.ToolCall{
		{ID: "call_a", Name: "get_user_by_id", Arguments: `{"a":1}`},
		{ID: "call_b", Name: "search_users", Arguments: `{"name":"A"}`},
	}
	got := acc.ToolCalls()
	if len(got) != len(want) {
		t.Fatalf("expected %d calls, got %+v", len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("call %d: expected %+v, got %+v", i, want[i], got[i])
		}
	}
	if acc.FinishReason() != FinishToolCalls {
		t.Errorf("unexpected finish reason %q", acc.FinishReason())
	}

	msg := acc.Message()
	if msg.Role != session.RoleAssistant || !msg.HasToolCalls() {
		t.Errorf("unexpected message %+v", msg)
	}
}

func TestAccumulatorEmpty(t *testing.T) {
	var acc Accumulator
	if acc.ToolCalls() != nil || acc.Content() != "" || acc.FinishReason() != "" {
		t.Error("zero accumulator should be empty")
	}
}
