package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/m4xw311/dialagent/errors"
	"github.com/m4xw311/dialagent/session"
	"go.uber.org/zap"
)

// Hooks observe and gate tool execution. Any field may be nil.
type Hooks struct {
	OnCall        func(call session.ToolCall)
	OnResult      func(call session.ToolCall, result string)
	ShouldExecute func(call session.ToolCall) bool
}

// Dispatcher resolves model-declared tool calls against a Registry.
type Dispatcher struct {
	registry *Registry
	logger   *zap.Logger
	hooks    Hooks
}

func NewDispatcher(registry *Registry, logger *zap.Logger, hooks Hooks) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{registry: registry, logger: logger, hooks: hooks}
}

// Dispatch runs calls one after another and returns exactly one tool entry per
// call, in call order. Failures of individual tools become result text. The
// only error returned is cancellation of ctx, in which case no entries are
// returned.
func (d *Dispatcher) Dispatch(ctx context.Context, calls []session.ToolCall) ([]session.Message, error) {
	results := make([]session.Message, 0, len(calls))
	for _, call := range calls {
		if err := ctx.Err(); err != nil {
			return nil, errors.Wrapf(err, "dispatch interrupted before %s", call.Name)
		}
		results = append(results, session.ToolResult(call, d.invoke(ctx, call)))
	}
	return results, nil
}

func (d *Dispatcher) invoke(ctx context.Context, call session.ToolCall) string {
	if d.hooks.OnCall != nil {
		d.hooks.OnCall(call)
	}

	start := time.Now()
	result, err := d.execute(ctx, call)
	fields := []zap.Field{
		zap.String("tool", call.Name),
		zap.String("call_id", call.ID),
		zap.String("arguments", call.Arguments),
		zap.Int("result_size", len(result)),
		zap.Duration("duration", time.Since(start)),
	}
	if err != nil {
		result = describeFailure(call, err)
		d.logger.Warn("tool call failed", append(fields, zap.Error(err))...)
	} else {
		d.logger.Debug("tool call completed", fields...)
	}

	if d.hooks.OnResult != nil {
		d.hooks.OnResult(call, result)
	}
	return result
}

func (d *Dispatcher) execute(ctx context.Context, call session.ToolCall) (string, error) {
	tool, ok := d.registry.Lookup(call.Name)
	if !ok {
		return "", errors.ErrUnknownTool
	}
	if d.hooks.ShouldExecute != nil && !d.hooks.ShouldExecute(call) {
		return "", errors.ErrToolDenied
	}
	args, err := ParseArguments(call.Arguments)
	if err != nil {
		return "", fmt.Errorf("%w: %v", errors.ErrToolArguments, err)
	}
	return tool.Execute(ctx, args)
}

func describeFailure(call session.ToolCall, err error) string {
	switch {
	case errors.Is(err, errors.ErrUnknownTool):
		return "Unknown function: " + call.Name
	case errors.Is(err, errors.ErrToolDenied):
		return "Tool execution denied by user: " + call.Name
	case errors.Is(err, errors.ErrToolArguments):
		return fmt.Sprintf("Error: invalid arguments for %s: %s", call.Name, strings.TrimPrefix(err.Error(), errors.ErrToolArguments.Error()+": "))
	default:
		return fmt.Sprintf("Error executing %s: %s", call.Name, err.Error())
	}
}

// ParseArguments decodes the raw JSON arguments of a tool call. Blank input
// is treated as an empty object.
func ParseArguments(raw string) (map[string]any, error) {
	if strings.TrimSpace(raw) == "" {
		return map[string]any{}, nil
	}
	var args map[string]any
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return nil, err
	}
	if args == nil {
		args = map[string]any{}
	}
	return args, nil
}
