// Package acp implements the Agent Client Protocol (ACP) server, which lets
// editors such as Zed drive the agent over stdio.
//
// Messages are newline-delimited JSON-RPC 2.0 objects. Supported methods:
//
//   - initialize: returns the protocol version and capabilities
//   - session/new: starts an in-memory conversation
//   - session/prompt: runs one turn and answers with a stop reason
//
// While a prompt runs the server emits session/update notifications:
// agent_message_chunk for streamed text, tool_call and tool_result around
// each tool execution. Sessions are not persisted, so session/load is not
// offered.
package acp
