package llm

import (
	"context"

	"github.com/m4xw311/dialagent/session"
	"github.com/m4xw311/dialagent/tools"
)

// Finish reasons reported by backends, normalised to the chat completions
// vocabulary.
const (
	FinishStop      = "stop"
	FinishToolCalls = "tool_calls"
	FinishLength    = "length"
)

// Request is one model call: the whole history plus the declared tools.
type Request struct {
	Messages []session.Message
	Tools    []tools.Spec
}

// Response is the result of a blocking model call.
type Response struct {
	Message      session.Message
	FinishReason string
}

// ToolCallDelta is a partial tool call inside a stream fragment. Index ties
// the pieces of one call together within an assistant turn.
type ToolCallDelta struct {
	Index     int
	ID        string
	Name      string
	Arguments string
}

// Fragment is one incremental piece of a streamed response.
type Fragment struct {
	Content      string
	ToolCalls    []ToolCallDelta
	FinishReason string
}

// FragmentStream is a forward-only sequence of fragments. Next returns false
// once the stream completed or failed; Err tells which. Close releases the
// underlying connection and is safe to call more than once.
type FragmentStream interface {
	Next() bool
	Current() Fragment
	Err() error
	Close() error
}

// Transport issues model calls. Implementations hold one client for their
// lifetime so connections are reused across tool loop iterations.
type Transport interface {
	Complete(ctx context.Context, req Request) (*Response, error)
	Stream(ctx context.Context, req Request) (FragmentStream, error)
}
