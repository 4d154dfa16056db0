package errors

import (
	"fmt"
	"strings"
)

var (
	// ErrNoChoices is reported when a completion response carries no choices.
	ErrNoChoices = Sentinel("response contains no choices")
	// ErrMalformedResponse is reported when a response body cannot be decoded.
	ErrMalformedResponse = Sentinel("malformed response body")
	// ErrStreamTruncated is reported when an event stream ends before its [DONE] marker.
	ErrStreamTruncated = Sentinel("stream ended before completion marker")

	// ErrToolLoopExceeded matches every *ToolLoopError.
	ErrToolLoopExceeded = Sentinel("tool loop exceeded")

	// The following classify per-tool failures. They are folded into tool
	// result text and never terminate a turn.
	ErrUnknownTool   = Sentinel("unknown tool")
	ErrToolArguments = Sentinel("invalid tool arguments")
	ErrToolDenied    = Sentinel("tool execution denied")
)

// TransportError is a hard failure talking to the model backend: a non-success
// status, an unusable body or a network failure. StatusCode is zero when no
// response was received.
type TransportError struct {
	Backend    string
	StatusCode int
	Body       string
	Err        error
}

func (e *TransportError) Error() string {
	var b strings.Builder
	if e.Backend != "" {
		b.WriteString(e.Backend)
		b.WriteString(": ")
	}
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, "HTTP %d", e.StatusCode)
		if body := strings.TrimSpace(e.Body); body != "" {
			b.WriteString(": ")
			b.WriteString(body)
		}
	} else {
		b.WriteString("transport failure")
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *TransportError) Unwrap() error { return e.Err }

// ToolLoopError is returned when the model keeps requesting tools past the
// configured iteration bound.
type ToolLoopError struct {
	Max int
}

func (e *ToolLoopError) Error() string {
	return fmt.Sprintf("tool loop exceeded: model still requested tools after %d iterations", e.Max)
}

func (e *ToolLoopError) Is(target error) bool { return target == ErrToolLoopExceeded }
