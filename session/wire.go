package session

import "encoding/json"

// WireMessage is the chat completions representation of an entry. Fields
// irrelevant to a role are left empty and omitted when marshalled.
type WireMessage struct {
	Role       Role           `json:"role"`
	Content    *string        `json:"content"`
	Name       string         `json:"name,omitempty"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
	ToolCalls  []WireToolCall `json:"tool_calls,omitempty"`
}

type WireToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function WireFunction `json:"function"`
}

type WireFunction struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ToWire converts entries to their wire shape. An assistant entry that only
// requests tools is sent with a null content.
func ToWire(msgs []Message) []WireMessage {
	out := make([]WireMessage, 0, len(msgs))
	for _, m := range msgs {
		content := m.Content
		w := WireMessage{Role: m.Role, Content: &content}
		switch m.Role {
		case RoleTool:
			w.Name = m.Name
			w.ToolCallID = m.ToolCallID
		case RoleAssistant:
			if len(m.ToolCalls) > 0 {
				if content == "" {
					w.Content = nil
				}
				w.ToolCalls = make([]WireToolCall, len(m.ToolCalls))
				for i, c := range m.ToolCalls {
					w.ToolCalls[i] = WireToolCall{
						ID:       c.ID,
						Type:     "function",
						Function: WireFunction{Name: c.Name, Arguments: c.Arguments},
					}
				}
			}
		}
		out = append(out, w)
	}
	return out
}

// FromWire converts a wire message back into an entry.
func FromWire(w WireMessage) Message {
	m := Message{Role: w.Role, Name: w.Name, ToolCallID: w.ToolCallID}
	if w.Content != nil {
		m.Content = *w.Content
	}
	for _, c := range w.ToolCalls {
		m.ToolCalls = append(m.ToolCalls, ToolCall{ID: c.ID, Name: c.Function.Name, Arguments: c.Function.Arguments})
	}
	return m
}

// MarshalWire is a convenience for logging and request bodies.
func MarshalWire(msgs []Message) ([]byte, error) {
	return json.Marshal(ToWire(msgs))
}
