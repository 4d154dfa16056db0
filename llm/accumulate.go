package llm

import (
	"slices"
	"strings"

	"github.com/m4xw311/dialagent/session"
)

// Accumulator merges stream fragments into one assistant turn. The first
// delta seen for an index fixes that call's id and name; the argument text of
// every delta for the index is appended in arrival order.
type Accumulator struct {
	content strings.Builder
	calls   map[int]*session.ToolCall
	finish  string
}

// Add merges f and returns its text, if any.
func (a *Accumulator) Add(f Fragment) string {
	a.content.WriteString(f.Content)
	for _, d := range f.ToolCalls {
		if a.calls == nil {
			a.calls = make(map[int]*session.ToolCall)
		}
		call, ok := a.calls[d.Index]
		if !ok {
			call = &session.ToolCall{ID: d.ID, Name: d.Name}
			a.calls[d.Index] = call
		}
		call.Arguments += d.Arguments
	}
	if f.FinishReason != "" {
		a.finish = f.FinishReason
	}
	return f.Content
}

func (a *Accumulator) Content() string { return a.content.String() }

// FinishReason is the last finish reason reported by the stream, if any.
func (a *Accumulator) FinishReason() string { return a.finish }

// ToolCalls returns the accumulated calls in ascending index order.
func (a *Accumulator) ToolCalls() []session.ToolCall {
	if len(a.calls) == 0 {
		return nil
	}
	indexes := make([]int, 0, len(a.calls))
	for i := range a.calls {
		indexes = append(indexes, i)
	}
	slices.Sort(indexes)
	out := make([]session.ToolCall, 0, len(indexes))
	for _, i := range indexes {
		out = append(out, *a.calls[i])
	}
	return out
}

// Message builds the candidate assistant entry.
func (a *Accumulator) Message() session.Message {
	return session.Assistant(a.Content(), a.ToolCalls())
}
