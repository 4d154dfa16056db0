// Package agent runs conversations between a user, a chat model and a set of
// tools.
//
// # Architecture
//
// The package is organized into three components:
//
//   - Engine: the tool calling loop. It sends the transcript and the declared
//     tools to an llm.Transport, dispatches the tool calls the model asks for,
//     appends the assistant entry together with its tool results, and repeats
//     until the model answers without tools or the iteration bound is hit.
//   - Agent: owns one transcript, appends user input and the final reply, and
//     maps interaction callbacks onto the engine.
//   - Subpackages agent/terminal and agent/acp: the interactive CLI and the
//     Agent Client Protocol server built on Agent.
//
// # Delivery
//
// The engine answers a turn in three ways that share one loop:
//
//   - Complete blocks until the final entry is known.
//   - Stream pushes every text fragment to a callback as it arrives.
//   - Events returns an iterator of text fragments that ends with the final
//     entry. Breaking out of the range closes the underlying stream.
//
// In every variant the engine leaves the final assistant entry to the caller.
// Agent.ProcessUserInput is that caller:
//
//	eng := agent.NewEngine(transport, registry, agent.WithLogger(logger))
//	a := agent.New(eng, agent.DefaultSystemPrompt, agent.WithDelivery(agent.DeliveryEvents))
//	err := a.ProcessUserInput(ctx, "Add Andrej Karpathy as a new user", agent.ProcessCallbacks{
//	    OnAssistantChunk: func(chunk string) { fmt.Print(chunk) },
//	})
//
// # Modes
//
//   - ModeAuto: tools run without confirmation.
//   - ModePrompt: every tool call goes through ProcessCallbacks.ShouldExecuteTool;
//     a refused call is answered with a denial the model can read.
//
// # Tool Verbosity
//
//   - ToolVerbosityNone: no tool callbacks fire.
//   - ToolVerbosityInfo: OnToolCall fires.
//   - ToolVerbosityAll: OnToolCall and OnToolResult fire.
package agent
