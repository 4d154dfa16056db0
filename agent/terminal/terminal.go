package terminal

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/m4xw311/dialagent/agent"
	"github.com/m4xw311/dialagent/errors"
	"github.com/m4xw311/dialagent/session"
	"go.uber.org/zap"
)

// FailureMessage is shown when the model backend cannot be reached. Details go
// to the log.
const FailureMessage = "Sorry, the assistant is unavailable right now. Please try again."

var (
	assistantLabel = color.New(color.FgGreen, color.Bold).SprintFunc()
	toolLabel      = color.New(color.FgCyan).SprintFunc()
	warnLabel      = color.New(color.FgYellow).SprintFunc()
	errorLabel     = color.New(color.FgRed).SprintFunc()
)

// Terminal handles the terminal/CLI interaction mode for the agent
type Terminal struct {
	agent  *agent.Agent
	in     *bufio.Scanner
	out    io.Writer
	logger *zap.Logger

	// midLine is set while streamed text is waiting for its newline.
	midLine bool
}

type Option func(*Terminal)

// WithIO replaces stdin and stdout.
func WithIO(in io.Reader, out io.Writer) Option {
	return func(t *Terminal) {
		t.in = bufio.NewScanner(in)
		t.out = out
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(t *Terminal) { t.logger = logger }
}

// New creates a new Terminal instance
func New(a *agent.Agent, opts ...Option) *Terminal {
	t := &Terminal{
		agent:  a,
		in:     bufio.NewScanner(os.Stdin),
		out:    os.Stdout,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Run starts the interactive terminal session. It returns when the input ends,
// on /quit or /exit, or when ctx is cancelled.
func (t *Terminal) Run(ctx context.Context, initialPrompt string) error {
	if initialPrompt != "" {
		t.processTurn(ctx, initialPrompt)
	}

	for ctx.Err() == nil {
		fmt.Fprint(t.out, "> ")
		if !t.in.Scan() {
			fmt.Fprintln(t.out)
			break
		}

		userInput := strings.TrimSpace(t.in.Text())
		if userInput == "" {
			continue
		}
		if userInput == "/quit" || userInput == "/exit" {
			break
		}
		t.processTurn(ctx, userInput)
	}
	return t.in.Err()
}

// processTurn handles a single user input turn. Failures are reported to the
// user and never end the session.
func (t *Terminal) processTurn(ctx context.Context, userInput string) {
	t.midLine = false
	err := t.agent.ProcessUserInput(ctx, userInput, t.callbacks())
	t.endLine()
	if err == nil {
		return
	}

	var transportErr *errors.TransportError
	switch {
	case errors.As(err, &transportErr):
		t.logger.Error("model request failed",
			zap.String("backend", transportErr.Backend),
			zap.Int("status", transportErr.StatusCode),
			zap.Error(err))
		fmt.Fprintln(t.out, errorLabel(FailureMessage))
	case errors.Is(err, errors.ErrToolLoopExceeded):
		t.logger.Warn("turn abandoned", zap.Error(err))
		fmt.Fprintln(t.out, errorLabel("The assistant kept requesting tools without answering. Please rephrase the request."))
	case errors.Is(err, context.Canceled):
		fmt.Fprintln(t.out, warnLabel("Interrupted."))
	default:
		t.logger.Error("turn failed", zap.Error(err))
		fmt.Fprintf(t.out, "%s %v\n", errorLabel("Error:"), err)
	}
}

func (t *Terminal) endLine() {
	if t.midLine {
		fmt.Fprintln(t.out)
		t.midLine = false
	}
}

func (t *Terminal) callbacks() agent.ProcessCallbacks {
	return agent.ProcessCallbacks{
		OnAssistantChunk: func(chunk string) {
			if !t.midLine {
				fmt.Fprint(t.out, assistantLabel("Assistant: "))
				t.midLine = true
			}
			fmt.Fprint(t.out, chunk)
		},
		OnAssistantMessage: func(message string) {
			if t.agent.Delivery == agent.DeliverySync {
				fmt.Fprintf(t.out, "%s%s\n", assistantLabel("Assistant: "), message)
			}
		},
		OnToolCall: func(call session.ToolCall) {
			t.endLine()
			if t.agent.ToolVerbosity == agent.ToolVerbosityAll {
				fmt.Fprintf(t.out, "%s %s %s\n", toolLabel("Calling tool"), call.Name, call.Arguments)
				return
			}
			fmt.Fprintf(t.out, "%s %s\n", toolLabel("Calling tool"), call.Name)
		},
		OnToolResult: func(call session.ToolCall, result string) {
			fmt.Fprintf(t.out, "%s %s:\n%s\n", toolLabel("Tool output"), call.Name, result)
		},
		ShouldExecuteTool: func(call session.ToolCall) bool {
			t.endLine()
			fmt.Fprintf(t.out, "Allow tool %s with %s? (y/n): ", call.Name, call.Arguments)
			if !t.in.Scan() {
				return false
			}
			answer := strings.ToLower(strings.TrimSpace(t.in.Text()))
			return answer == "y" || answer == "yes"
		},
		OnWarning: func(warning string) {
			t.endLine()
			fmt.Fprintln(t.out, warnLabel("Warning: "+warning))
		},
	}
}
