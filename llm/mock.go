package llm

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/m4xw311/dialagent/session"
)

// MockTurn scripts one model reply. When Fragments is empty, streaming
// replays Content word by word followed by one delta per tool call.
type MockTurn struct {
	Content   string
	ToolCalls []session.ToolCall
	Fragments []Fragment
	Err       error
}

// Mock is a scripted Transport. Once the script is exhausted it parrots the
// last user message back.
type Mock struct {
	mu       sync.Mutex
	turns    []MockTurn
	requests []Request
	closed   int
}

func NewMock(turns ...MockTurn) *Mock {
	return &Mock{turns: turns}
}

// Requests returns the requests received so far.
func (m *Mock) Requests() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Request(nil), m.requests...)
}

// Closed reports how many streams have been closed.
func (m *Mock) Closed() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

func (m *Mock) next(req Request) MockTurn {
	m.mu.Lock()
	defer m.mu.Unlock()
	req.Messages = append([]session.Message(nil), req.Messages...)
	m.requests = append(m.requests, req)
	if len(m.turns) == 0 {
		return MockTurn{Content: "I am a mock LLM. You said: '" + lastUserContent(req.Messages) + "'."}
	}
	turn := m.turns[0]
	m.turns = m.turns[1:]
	return turn
}

func (m *Mock) Complete(ctx context.Context, req Request) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	turn := m.next(req)
	if turn.Err != nil {
		return nil, turn.Err
	}
	content, calls := turn.Content, turn.ToolCalls
	if len(turn.Fragments) > 0 {
		content, calls = collapse(turn.Fragments)
	}
	finish := FinishStop
	if len(calls) > 0 {
		finish = FinishToolCalls
	}
	return &Response{Message: session.Assistant(content, calls), FinishReason: finish}, nil
}

func (m *Mock) Stream(ctx context.Context, req Request) (FragmentStream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	turn := m.next(req)
	if turn.Err != nil {
		return nil, turn.Err
	}
	frags := turn.Fragments
	if len(frags) == 0 {
		frags = explode(turn.Content, turn.ToolCalls)
	}
	return &mockStream{ctx: ctx, owner: m, frags: frags, pos: -1}, nil
}

type mockStream struct {
	ctx    context.Context
	owner  *Mock
	frags  []Fragment
	pos    int
	err    error
	closed bool
}

func (s *mockStream) Next() bool {
	if s.err != nil || s.closed {
		return false
	}
	if err := s.ctx.Err(); err != nil {
		s.err = err
		return false
	}
	s.pos++
	return s.pos < len(s.frags)
}

func (s *mockStream) Current() Fragment { return s.frags[s.pos] }

func (s *mockStream) Err() error { return s.err }

func (s *mockStream) Close() error {
	if !s.closed {
		s.closed = true
		s.owner.mu.Lock()
		s.owner.closed++
		s.owner.mu.Unlock()
	}
	return nil
}

func explode(content string, calls []session.ToolCall) []Fragment {
	var frags []Fragment
	for _, word := range strings.SplitAfter(content, " ") {
		if word == "" {
			continue
		}
		frags = append(frags, Fragment{Content: word})
	}
	for i, c := range calls {
		frags = append(frags, Fragment{ToolCalls: []ToolCallDelta{{Index: i, ID: c.ID, Name: c.Name, Arguments: c.Arguments}}})
	}
	return frags
}

func collapse(frags []Fragment) (string, []session.ToolCall) {
	var acc Accumulator
	for _, f := range frags {
		acc.Add(f)
	}
	return acc.Content(), acc.ToolCalls()
}

func lastUserContent(msgs []session.Message) string {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == session.RoleUser {
			return msgs[i].Content
		}
	}
	return ""
}

// String describes the remaining script, for debugging failed tests.
func (m *Mock) String() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return fmt.Sprintf("mock transport: %d turns left, %d requests seen", len(m.turns), len(m.requests))
}
