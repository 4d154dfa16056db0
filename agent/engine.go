package agent

import (
	"context"
	"iter"

	"github.com/m4xw311/dialagent/errors"
	"github.com/m4xw311/dialagent/llm"
	"github.com/m4xw311/dialagent/session"
	"github.com/m4xw311/dialagent/tools"
	"go.uber.org/zap"
)

// DefaultMaxIterations bounds the number of model calls in one turn.
const DefaultMaxIterations = 10

// errStopped unwinds the loop when a pull consumer stops early.
var errStopped = errors.Sentinel("consumer stopped")

// Event is one element of a pull-streamed turn. Exactly one of Text or Final
// is set; the event carrying Final is always the last one.
type Event struct {
	Text  string
	Final *session.Message
}

type EngineOption func(*Engine)

// WithMaxIterations sets the bound on model calls per turn. Values below one
// are ignored.
func WithMaxIterations(n int) EngineOption {
	return func(e *Engine) {
		if n > 0 {
			e.maxIterations = n
		}
	}
}

func WithLogger(logger *zap.Logger) EngineOption {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

func WithHooks(hooks tools.Hooks) EngineOption {
	return func(e *Engine) { e.hooks = hooks }
}

// Engine runs the tool calling loop against one transport and one registry.
// It never appends the final assistant entry; that is left to the caller.
type Engine struct {
	transport     llm.Transport
	registry      *tools.Registry
	dispatcher    *tools.Dispatcher
	hooks         tools.Hooks
	maxIterations int
	logger        *zap.Logger
}

func NewEngine(transport llm.Transport, registry *tools.Registry, opts ...EngineOption) *Engine {
	if registry == nil {
		registry = tools.NewRegistry()
	}
	e := &Engine{
		transport:     transport,
		registry:      registry,
		maxIterations: DefaultMaxIterations,
		logger:        zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.dispatcher = tools.NewDispatcher(registry, e.logger, e.hooks)
	return e
}

// Hooked returns a copy of e that reports tool execution through hooks. The
// copy shares the transport and the registry.
func (e *Engine) Hooked(hooks tools.Hooks) *Engine {
	c := *e
	c.hooks = hooks
	c.dispatcher = tools.NewDispatcher(e.registry, e.logger, hooks)
	return &c
}

func (e *Engine) Registry() *tools.Registry { return e.registry }

// Complete runs the loop with blocking model calls and returns the final
// assistant entry.
func (e *Engine) Complete(ctx context.Context, t *session.Transcript) (*session.Message, error) {
	return e.run(ctx, t, nil)
}

// Stream runs the loop with streamed model calls. onChunk receives every text
// fragment as it arrives, across all iterations. The final assistant entry is
// returned once no more tools are requested.
func (e *Engine) Stream(ctx context.Context, t *session.Transcript, onChunk func(string)) (*session.Message, error) {
	return e.run(ctx, t, func(text string) bool {
		if onChunk != nil {
			onChunk(text)
		}
		return true
	})
}

// Events is the pull form of Stream. The sequence yields text fragments and
// ends with one event carrying the final entry, or with an error. Breaking
// out of the range stops the loop and releases the transport stream.
func (e *Engine) Events(ctx context.Context, t *session.Transcript) iter.Seq2[Event, error] {
	return func(yield func(Event, error) bool) {
		msg, err := e.run(ctx, t, func(text string) bool {
			return yield(Event{Text: text}, nil)
		})
		switch {
		case errors.Is(err, errStopped):
		case err != nil:
			yield(Event{}, err)
		default:
			yield(Event{Final: msg}, nil)
		}
	}
}

// run is the shared loop. A nil emit selects blocking calls.
func (e *Engine) run(ctx context.Context, t *session.Transcript, emit func(string) bool) (*session.Message, error) {
	specs := e.registry.Specs()
	for i := 1; i <= e.maxIterations; i++ {
		if err := t.Validate(); err != nil {
			return nil, errors.Wrapf(err, "transcript is not well formed")
		}
		req := llm.Request{Messages: t.Messages(), Tools: specs}

		var (
			msg        session.Message
			needsTools bool
			err        error
		)
		if emit == nil {
			msg, needsTools, err = e.complete(ctx, req)
		} else {
			msg, err = e.consume(ctx, req, emit)
			needsTools = msg.HasToolCalls()
		}
		if err != nil {
			return nil, err
		}

		e.logger.Debug("model turn",
			zap.Int("iteration", i),
			zap.Bool("needs_tools", needsTools),
			zap.Int("tool_calls", len(msg.ToolCalls)))
		if !needsTools {
			return &msg, nil
		}

		results, err := e.dispatcher.Dispatch(ctx, msg.ToolCalls)
		if err != nil {
			return nil, err
		}
		t.Append(append([]session.Message{msg}, results...)...)
	}
	e.logger.Warn("tool loop exceeded", zap.Int("max_iterations", e.maxIterations))
	return nil, &errors.ToolLoopError{Max: e.maxIterations}
}

// complete issues a blocking call. Only the tool_calls finish reason asks for
// tool work; calls reported under any other finish reason are dropped so the
// returned entry never carries unanswered calls.
func (e *Engine) complete(ctx context.Context, req llm.Request) (session.Message, bool, error) {
	resp, err := e.transport.Complete(ctx, req)
	if err != nil {
		return session.Message{}, false, err
	}
	msg := resp.Message
	needsTools := resp.FinishReason == llm.FinishToolCalls
	switch {
	case needsTools && !msg.HasToolCalls():
		e.logger.Warn("finish reason requests tools but none were sent")
		needsTools = false
	case !needsTools && msg.HasToolCalls():
		e.logger.Warn("dropping tool calls from final answer",
			zap.String("finish_reason", resp.FinishReason),
			zap.Int("tool_calls", len(msg.ToolCalls)))
		msg.ToolCalls = nil
	}
	return msg, needsTools, nil
}

// consume drains one streamed response into an assistant entry.
func (e *Engine) consume(ctx context.Context, req llm.Request, emit func(string) bool) (session.Message, error) {
	stream, err := e.transport.Stream(ctx, req)
	if err != nil {
		return session.Message{}, err
	}
	defer stream.Close()

	var acc llm.Accumulator
	for stream.Next() {
		if text := acc.Add(stream.Current()); text != "" && !emit(text) {
			return session.Message{}, errStopped
		}
	}
	if err := stream.Err(); err != nil {
		return session.Message{}, err
	}
	if err := ctx.Err(); err != nil {
		return session.Message{}, err
	}
	return acc.Message(), nil
}
