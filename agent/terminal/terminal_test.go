package terminal

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/m4xw311/dialagent/agent"
	"github.com/m4xw311/dialagent/errors"
	"github.com/m4xw311/dialagent/llm"
	"github.com/m4xw311/dialagent/session"
	"github.com/m4xw311/dialagent/tools"
	"go.uber.org/zap/zaptest"
)

func init() {
	color.NoColor = true
}

type pingTool struct{ runs int }

func (p *pingTool) Name() string                { return "ping" }
func (p *pingTool) Description() string         { return "answers pong" }
func (p *pingTool) InputSchema() map[string]any { return map[string]any{"type": "object"} }
func (p *pingTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	p.runs++
	return "pong", nil
}

func newTerminal(t *testing.T, input string, mock *llm.Mock, tool *pingTool, opts ...agent.Option) (*Terminal, *bytes.Buffer) {
	t.Helper()
	reg := tools.NewRegistry()
	if tool != nil {
		reg.Register(tool)
	}
	a := agent.New(agent.NewEngine(mock, reg), "sys", opts...)
	out := &bytes.Buffer{}
	return New(a, WithIO(strings.NewReader(input), out), WithLogger(zaptest.NewLogger(t))), out
}

func TestTerminalConversation(t *testing.T) {
	mock := llm.NewMock(llm.MockTurn{Content: "Hello there"})
	term, out := newTerminal(t, "hi\n\nsecond\n/quit\nnever\n", mock, nil)

	if err := term.Run(context.Background(), ""); err != nil {
		t.Fatal(err)
	}
	text := out.String()
	if !strings.Contains(text, "> Assistant: Hello there\n") {
		t.Errorf("streamed reply missing:\n%s", text)
	}
	if !strings.Contains(text, "I am a mock LLM. You said: 'second'.") {
		t.Errorf("second turn missing:\n%s", text)
	}
	if len(mock.Requests()) != 2 {
		t.Errorf("expected 2 requests, got %d; input after /quit must be ignored", len(mock.Requests()))
	}
}

func TestTerminalInitialPromptAndSync(t *testing.T) {
	mock := llm.NewMock(llm.MockTurn{Content: "Done"})
	term, out := newTerminal(t, "", mock, nil, agent.WithDelivery(agent.DeliverySync))

	if err := term.Run(context.Background(), "do it"); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), "Assistant: Done\n") {
		t.Errorf("unexpected output:\n%s", out.String())
	}
	if got := mock.Requests()[0].Messages[1].Content; got != "do it" {
		t.Errorf("initial prompt not sent, got %q", got)
	}
}

func TestTerminalTransportFailure(t *testing.T) {
	mock := llm.NewMock(llm.MockTurn{Err: &errors.TransportError{Backend: "dial", StatusCode: 502, Body: "bad gateway"}})
	term, out := newTerminal(t, "hi\n/exit\n", mock, nil)

	if err := term.Run(context.Background(), ""); err != nil {
		t.Fatal(err)
	}
	text := out.String()
	if !strings.Contains(text, FailureMessage) {
		t.Errorf("generic failure message missing:\n%s", text)
	}
	if strings.Contains(text, "bad gateway") {
		t.Errorf("transport details should not reach the user:\n%s", text)
	}
}

func TestTerminalPromptMode(t *testing.T) {
	call := session.ToolCall{ID: "c1", Name: "ping", Arguments: `{}`}
	tests := []struct {
		answer  string
		wantRun int
	}{
		{"y", 1},
		{"n", 0},
	}
	for _, tt := range tests {
		t.Run(tt.answer, func(t *testing.T) {
			mock := llm.NewMock(
				llm.MockTurn{ToolCalls: []session.ToolCall{call}},
				llm.MockTurn{Content: "finished"},
			)
			tool := &pingTool{}
			term, out := newTerminal(t, "ping please\n"+tt.answer+"\n", mock, tool,
				agent.WithMode(agent.ModePrompt), agent.WithToolVerbosity(agent.ToolVerbosityAll))

			if err := term.Run(context.Background(), ""); err != nil {
				t.Fatal(err)
			}
			if tool.runs != tt.wantRun {
				t.Errorf("expected %d runs, got %d", tt.wantRun, tool.runs)
			}
			text := out.String()
			if !strings.Contains(text, "Calling tool ping {}") || !strings.Contains(text, "Allow tool ping with {}? (y/n): ") {
				t.Errorf("tool call not shown:\n%s", text)
			}
			if tt.wantRun == 0 && !strings.Contains(text, "Tool execution denied by user: ping") {
				t.Errorf("denial result not shown:\n%s", text)
			}
		})
	}
}
