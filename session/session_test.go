package session

import (
	"encoding/json"
	"testing"

	"github.com/m4xw311/dialagent/errors"
)

func sampleHistory() []Message {
	calls := []ToolCall{
		{ID: "call_1", Name: "add_user", Arguments: `{"name":"Andrej"}`},
		{ID: "call_2", Name: "search_users", Arguments: `{}`},
	}
	return []Message{
		System("be helpful"),
		User("Add Andrej Karpathy as a new user"),
		Assistant("", calls),
		ToolResult(calls[0], "User created"),
		ToolResult(calls[1], "[]"),
		Assistant("Done", nil),
	}
}

func TestTranscriptAppendIsCopy(t *testing.T) {
	calls := []ToolCall{{ID: "a", Name: "x"}}
	tr := NewTranscript(System("s"))
	tr.Append(Assistant("", calls))
	calls[0].ID = "mutated"

	msgs := tr.Messages()
	if msgs[1].ToolCalls[0].ID != "a" {
		t.Errorf("append should copy tool calls, got %q", msgs[1].ToolCalls[0].ID)
	}
	msgs[0].Content = "changed"
	if m, _ := tr.Last(); m.Role != RoleAssistant {
		t.Errorf("unexpected last entry %+v", m)
	}
	if tr.Messages()[0].Content != "s" {
		t.Error("Messages should return a copy")
	}
	if tr.Len() != 2 {
		t.Errorf("expected 2 entries, got %d", tr.Len())
	}
}

func TestToWireKeepsToolCallIDs(t *testing.T) {
	wire := ToWire(sampleHistory())
	data, err := json.Marshal(wire)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var decoded []WireMessage
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(decoded) != 6 {
		t.Fatalf("expected 6 wire messages, got %d", len(decoded))
	}
	for i, w := range decoded {
		if w.Role == RoleTool && w.ToolCallID == "" {
			t.Errorf("tool message %d lost its tool_call_id", i)
		}
		if w.Role != RoleTool && (w.ToolCallID != "" || w.Name != "") {
			t.Errorf("message %d (%s) should not carry tool fields", i, w.Role)
		}
	}
	if decoded[2].Content != nil {
		t.Errorf("tool-requesting assistant entry should have null content")
	}
	if got := decoded[2].ToolCalls[1].Function.Arguments; got != "{}" {
		t.Errorf("arguments not round-tripped, got %q", got)
	}
	if decoded[3].Name != "add_user" || decoded[3].ToolCallID != "call_1" {
		t.Errorf("unexpected tool message %+v", decoded[3])
	}

	back := FromWire(decoded[2])
	if back.ToolCalls[0].ID != "call_1" || back.ToolCalls[0].Name != "add_user" {
		t.Errorf("FromWire lost call identity: %+v", back.ToolCalls)
	}
}

func TestToWireOmitsIrrelevantFields(t *testing.T) {
	data, err := MarshalWire([]Message{User("hi")})
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != `[{"role":"user","content":"hi"}]` {
		t.Errorf("unexpected wire form %s", data)
	}
}

func TestValidate(t *testing.T) {
	calls := []ToolCall{{ID: "1", Name: "a"}, {ID: "2", Name: "b"}}
	tests := []struct {
		name string
		msgs []Message
		want error
	}{
		{"valid", sampleHistory(), nil},
		{"missing result", []Message{User("u"), Assistant("", calls), ToolResult(calls[0], "ok")}, ErrUnansweredToolCall},
		{"interleaved user", []Message{Assistant("", calls), ToolResult(calls[0], "ok"), User("u"), ToolResult(calls[1], "ok")}, ErrUnansweredToolCall},
		{"wrong order", []Message{Assistant("", calls), ToolResult(calls[1], "ok"), ToolResult(calls[0], "ok")}, ErrOrphanToolResult},
		{"orphan", []Message{User("u"), ToolResult(calls[0], "ok")}, ErrOrphanToolResult},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.msgs)
			if tt.want == nil {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}
}
