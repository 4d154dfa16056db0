package session

import (
	"slices"

	"github.com/m4xw311/dialagent/errors"
)

// Role tags a transcript entry.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ToolCall is a model-declared request to run a named tool. ID is opaque and
// must be echoed verbatim in the answering tool entry. Arguments holds the
// JSON text exactly as the model produced it.
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// Message is a single transcript entry. Name and ToolCallID are only set on
// tool entries, ToolCalls only on assistant entries.
type Message struct {
	Role       Role       `json:"role"`
	Content    string     `json:"content"`
	Name       string     `json:"name,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
}

func System(content string) Message { return Message{Role: RoleSystem, Content: content} }

func User(content string) Message { return Message{Role: RoleUser, Content: content} }

// Assistant builds an assistant entry. A nil or empty calls slice yields a
// plain text reply.
func Assistant(content string, calls []ToolCall) Message {
	return Message{Role: RoleAssistant, Content: content, ToolCalls: slices.Clone(calls)}
}

// ToolResult answers call with content.
func ToolResult(call ToolCall, content string) Message {
	return Message{Role: RoleTool, Content: content, Name: call.Name, ToolCallID: call.ID}
}

// HasToolCalls reports whether the entry requests tool work.
func (m Message) HasToolCalls() bool {
	return m.Role == RoleAssistant && len(m.ToolCalls) > 0
}

var (
	ErrUnansweredToolCall = errors.Sentinel("tool call has no matching tool result")
	ErrOrphanToolResult   = errors.Sentinel("tool result does not answer a pending tool call")
)

// Validate checks that every assistant entry carrying tool calls is followed
// by exactly one tool entry per call, matching ids in call order, before any
// other entry. A trailing assistant entry with unanswered calls is reported too.
func Validate(msgs []Message) error {
	for i := 0; i < len(msgs); i++ {
		m := msgs[i]
		if m.Role == RoleTool {
			return errors.Wrapf(ErrOrphanToolResult, "entry %d answers %q", i, m.ToolCallID)
		}
		if !m.HasToolCalls() {
			continue
		}
		for j, call := range m.ToolCalls {
			k := i + 1 + j
			if k >= len(msgs) || msgs[k].Role != RoleTool {
				return errors.Wrapf(ErrUnansweredToolCall, "entry %d call %q (%s)", i, call.ID, call.Name)
			}
			if msgs[k].ToolCallID != call.ID {
				return errors.Wrapf(ErrOrphanToolResult, "entry %d answers %q, expected %q", k, msgs[k].ToolCallID, call.ID)
			}
		}
		i += len(m.ToolCalls)
	}
	return nil
}
