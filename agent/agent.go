package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/m4xw311/dialagent/errors"
	"github.com/m4xw311/dialagent/session"
	"github.com/m4xw311/dialagent/tools"
)

type Mode string

const (
	ModeAuto   Mode = "auto"
	ModePrompt Mode = "prompt"
)

type ToolVerbosity string

const (
	ToolVerbosityNone ToolVerbosity = "none"
	ToolVerbosityInfo ToolVerbosity = "info"
	ToolVerbosityAll  ToolVerbosity = "all"
)

// Delivery selects which engine variant answers a turn.
type Delivery string

const (
	DeliverySync   Delivery = "sync"
	DeliveryStream Delivery = "stream"
	DeliveryEvents Delivery = "events"
)

// ParseMode, ParseToolVerbosity and ParseDelivery validate user supplied
// values. An empty string selects the default.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(s); m {
	case "":
		return ModeAuto, nil
	case ModeAuto, ModePrompt:
		return m, nil
	}
	return "", errors.New("invalid mode %q, must be 'auto' or 'prompt'", s)
}

func ParseToolVerbosity(s string) (ToolVerbosity, error) {
	switch v := ToolVerbosity(s); v {
	case "":
		return ToolVerbosityInfo, nil
	case ToolVerbosityNone, ToolVerbosityInfo, ToolVerbosityAll:
		return v, nil
	}
	return "", errors.New("invalid tool verbosity %q, must be 'none', 'info' or 'all'", s)
}

func ParseDelivery(s string) (Delivery, error) {
	switch d := Delivery(s); d {
	case "":
		return DeliveryStream, nil
	case DeliverySync, DeliveryStream, DeliveryEvents:
		return d, nil
	}
	return "", errors.New("invalid delivery %q, must be 'sync', 'stream' or 'events'", s)
}

// ProcessCallbacks let an interaction mode observe a turn. Any field may be nil.
type ProcessCallbacks struct {
	// OnAssistantMessage receives the final reply once it is stored.
	OnAssistantMessage func(message string)
	// OnAssistantChunk receives text as it streams in.
	OnAssistantChunk  func(chunk string)
	OnToolCall        func(toolCall session.ToolCall)
	OnToolResult      func(toolCall session.ToolCall, result string)
	ShouldExecuteTool func(toolCall session.ToolCall) bool
	OnWarning         func(warning string)
}

type Option func(*Agent)

func WithMode(m Mode) Option { return func(a *Agent) { a.Mode = m } }

func WithToolVerbosity(v ToolVerbosity) Option { return func(a *Agent) { a.ToolVerbosity = v } }

func WithDelivery(d Delivery) Option { return func(a *Agent) { a.Delivery = d } }

// Agent owns one conversation: a transcript seeded with the system prompt and
// the engine that answers it.
type Agent struct {
	Mode          Mode
	ToolVerbosity ToolVerbosity
	Delivery      Delivery

	engine       *Engine
	systemPrompt string
	transcript   *session.Transcript
}

func New(engine *Engine, systemPrompt string, opts ...Option) *Agent {
	a := &Agent{
		Mode:          ModeAuto,
		ToolVerbosity: ToolVerbosityInfo,
		Delivery:      DeliveryStream,
		engine:        engine,
		systemPrompt:  systemPrompt,
	}
	for _, opt := range opts {
		opt(a)
	}
	a.transcript = a.newTranscript()
	return a
}

func (a *Agent) newTranscript() *session.Transcript {
	if a.systemPrompt == "" {
		return session.NewTranscript()
	}
	return session.NewTranscript(session.System(a.systemPrompt))
}

// NewSession returns an agent with the same settings and engine and a fresh
// conversation.
func (a *Agent) NewSession() *Agent {
	c := *a
	c.transcript = a.newTranscript()
	return &c
}

func (a *Agent) Transcript() *session.Transcript { return a.transcript }

func (a *Agent) Engine() *Engine { return a.engine }

// ProcessUserInput appends input to the conversation, runs the tool loop and
// stores the final reply. Tool failures are part of the conversation; only
// transport failures, an exceeded tool loop and cancellation are returned.
func (a *Agent) ProcessUserInput(ctx context.Context, input string, callbacks ProcessCallbacks) error {
	input = strings.TrimSpace(input)
	if input == "" {
		return nil
	}
	a.transcript.Append(session.User(input))

	engine := a.engine.Hooked(a.hooks(callbacks))
	var (
		msg *session.Message
		err error
	)
	switch a.Delivery {
	case DeliverySync:
		msg, err = engine.Complete(ctx, a.transcript)
	case DeliveryEvents:
		for ev, evErr := range engine.Events(ctx, a.transcript) {
			if evErr != nil {
				err = evErr
				break
			}
			if ev.Final != nil {
				msg = ev.Final
			} else if callbacks.OnAssistantChunk != nil {
				callbacks.OnAssistantChunk(ev.Text)
			}
		}
	default:
		msg, err = engine.Stream(ctx, a.transcript, callbacks.OnAssistantChunk)
	}
	if err != nil {
		return errors.Wrapf(err, "failed to process user input")
	}
	if msg == nil {
		return errors.New("turn ended without a reply")
	}

	a.transcript.Append(*msg)
	if callbacks.OnAssistantMessage != nil {
		callbacks.OnAssistantMessage(msg.Content)
	}
	return nil
}

// hooks maps the callbacks onto dispatcher hooks according to the agent's
// mode and verbosity.
func (a *Agent) hooks(callbacks ProcessCallbacks) tools.Hooks {
	var hooks tools.Hooks
	switch a.ToolVerbosity {
	case ToolVerbosityNone:
	case ToolVerbosityInfo:
		hooks.OnCall = callbacks.OnToolCall
	default:
		hooks.OnCall = callbacks.OnToolCall
		hooks.OnResult = callbacks.OnToolResult
	}

	if a.Mode == ModePrompt {
		should := callbacks.ShouldExecuteTool
		if should == nil {
			should = func(call session.ToolCall) bool {
				if callbacks.OnWarning != nil {
					callbacks.OnWarning(fmt.Sprintf("no confirmation available, skipping tool %s", call.Name))
				}
				return false
			}
		}
		hooks.ShouldExecute = should
	}
	return hooks
}
