package acp

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/m4xw311/dialagent/agent"
	"github.com/m4xw311/dialagent/errors"
	"github.com/m4xw311/dialagent/session"
	"go.uber.org/zap"
)

// JSON-RPC 2.0 error codes.
const (
	codeParseError     = -32700
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeInternalError  = -32603
)

// maxResourceSize bounds the inline content of a linked file.
const maxResourceSize = 50000

type jsonrpcRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      any             `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

type jsonrpcResponse struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      any           `json:"id"`
	Result  any           `json:"result,omitempty"`
	Error   *jsonrpcError `json:"error,omitempty"`
}

type jsonrpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

type jsonrpcNotification struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  any    `json:"params"`
}

// contentBlock is a prompt content block. Only text and resource_link blocks
// are understood.
type contentBlock struct {
	Type        string `json:"type"`
	Text        string `json:"text,omitempty"`
	URI         string `json:"uri,omitempty"`
	Name        string `json:"name,omitempty"`
	MimeType    string `json:"mimeType,omitempty"`
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
	Size        *int64 `json:"size,omitempty"`
}

// Server speaks a minimal subset of the Agent Client Protocol over
// newline-delimited JSON-RPC. Every session is a fresh conversation of the
// template agent and lives only as long as the process.
type Server struct {
	template *agent.Agent
	in       *bufio.Reader
	out      *bufio.Writer
	logger   *zap.Logger

	writeMu  sync.Mutex
	mu       sync.Mutex
	sessions map[string]*agent.Agent
}

func NewServer(template *agent.Agent, in io.Reader, out io.Writer, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		template: template,
		in:       bufio.NewReader(in),
		out:      bufio.NewWriter(out),
		logger:   logger,
		sessions: make(map[string]*agent.Agent),
	}
}

// Run serves requests until the input ends or ctx is cancelled. Nothing but
// JSON-RPC messages is written to the output.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("acp server started")
	for ctx.Err() == nil {
		line, err := s.in.ReadBytes('\n')
		if len(strings.TrimSpace(string(line))) > 0 {
			s.handle(ctx, line)
		}
		if err == io.EOF {
			s.logger.Info("acp input closed")
			return nil
		}
		if err != nil {
			return errors.Wrapf(err, "acp read failed")
		}
	}
	return nil
}

func (s *Server) handle(ctx context.Context, payload []byte) {
	var req jsonrpcRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		s.logger.Warn("unparseable request", zap.Error(err))
		s.writeError(nil, codeParseError, "Parse error", nil)
		return
	}
	s.logger.Debug("request", zap.String("method", req.Method), zap.Any("id", req.ID))

	switch req.Method {
	case "initialize":
		s.handleInitialize(&req)
	case "session/new":
		s.handleSessionNew(&req)
	case "session/prompt":
		s.handleSessionPrompt(ctx, &req)
	default:
		s.writeError(req.ID, codeMethodNotFound, "Method not found", req.Method)
	}
}

func (s *Server) write(msg any) {
	data, err := json.Marshal(msg)
	if err != nil {
		s.logger.Error("failed to encode message", zap.Error(err))
		return
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.out.Write(data)
	s.out.WriteByte('\n')
	if err := s.out.Flush(); err != nil {
		s.logger.Error("failed to write message", zap.Error(err))
	}
}

func (s *Server) writeResult(id any, result any) {
	s.write(jsonrpcResponse{JSONRPC: "2.0", ID: id, Result: result})
}

func (s *Server) writeError(id any, code int, msg string, data any) {
	s.write(jsonrpcResponse{JSONRPC: "2.0", ID: id, Error: &jsonrpcError{Code: code, Message: msg, Data: data}})
}

func (s *Server) update(sessionID string, update map[string]any) {
	s.write(jsonrpcNotification{
		JSONRPC: "2.0",
		Method:  "session/update",
		Params:  map[string]any{"sessionId": sessionID, "update": update},
	})
}

func (s *Server) handleInitialize(req *jsonrpcRequest) {
	s.writeResult(req.ID, map[string]any{
		"protocolVersion": 1,
		"agentCapabilities": map[string]any{
			"loadSession": false,
			"promptCapabilities": map[string]bool{
				"audio":           false,
				"embeddedContext": false,
				"image":           false,
			},
		},
		"authMethods": []any{},
	})
}

func (s *Server) handleSessionNew(req *jsonrpcRequest) {
	sess := s.template.NewSession()
	sess.Delivery = agent.DeliveryStream
	sess.ToolVerbosity = agent.ToolVerbosityAll

	sid := "sess_" + uuid.NewString()
	s.mu.Lock()
	s.sessions[sid] = sess
	s.mu.Unlock()

	s.logger.Info("session created", zap.String("session_id", sid))
	s.writeResult(req.ID, map[string]any{"sessionId": sid})
}

func (s *Server) handleSessionPrompt(ctx context.Context, req *jsonrpcRequest) {
	var p struct {
		SessionID string         `json:"sessionId"`
		Prompt    []contentBlock `json:"prompt"`
	}
	if err := json.Unmarshal(req.Params, &p); err != nil {
		s.writeError(req.ID, codeInvalidParams, "Invalid params", err.Error())
		return
	}
	s.mu.Lock()
	sess, ok := s.sessions[p.SessionID]
	s.mu.Unlock()
	if !ok {
		s.writeError(req.ID, codeInvalidParams, "Invalid params", "unknown sessionId")
		return
	}

	logger := s.logger.With(zap.String("session_id", p.SessionID))
	callbacks := agent.ProcessCallbacks{
		OnAssistantChunk: func(chunk string) {
			s.update(p.SessionID, map[string]any{
				"sessionUpdate": "agent_message_chunk",
				"content":       map[string]any{"type": "text", "text": chunk},
			})
		},
		OnToolCall: func(call session.ToolCall) {
			s.update(p.SessionID, map[string]any{
				"sessionUpdate": "tool_call",
				"toolCall":      map[string]any{"id": call.ID, "name": call.Name, "args": toolArgs(call.Arguments)},
			})
		},
		OnToolResult: func(call session.ToolCall, result string) {
			s.update(p.SessionID, map[string]any{
				"sessionUpdate": "tool_result",
				"toolResult":    map[string]any{"toolCallId": call.ID, "result": result},
			})
		},
		ShouldExecuteTool: func(session.ToolCall) bool { return true },
		OnWarning: func(warning string) {
			logger.Warn(warning)
		},
	}

	err := sess.ProcessUserInput(ctx, extractUserText(p.Prompt), callbacks)
	var transportErr *errors.TransportError
	switch {
	case err == nil:
		s.writeResult(req.ID, map[string]any{"stopReason": "end_turn"})
	case errors.Is(err, errors.ErrToolLoopExceeded):
		logger.Warn("turn abandoned", zap.Error(err))
		s.writeResult(req.ID, map[string]any{"stopReason": "max_turn_requests"})
	case errors.Is(err, context.Canceled):
		s.writeResult(req.ID, map[string]any{"stopReason": "cancelled"})
	case errors.As(err, &transportErr):
		logger.Error("model request failed", zap.Int("status", transportErr.StatusCode), zap.Error(err))
		s.writeError(req.ID, codeInternalError, "Internal error", "the model backend is unavailable")
	default:
		logger.Error("prompt failed", zap.Error(err))
		s.writeError(req.ID, codeInternalError, "Internal error", err.Error())
	}
}

// toolArgs returns the arguments as JSON when they parse, else as text.
func toolArgs(raw string) any {
	if json.Valid([]byte(raw)) {
		return json.RawMessage(raw)
	}
	return raw
}

// extractUserText joins the prompt blocks into one user message. Linked
// local files are inlined.
func extractUserText(blocks []contentBlock) string {
	var parts []string
	for _, b := range blocks {
		switch b.Type {
		case "text":
			if strings.TrimSpace(b.Text) != "" {
				parts = append(parts, b.Text)
			}
		case "resource_link":
			parts = append(parts, describeResource(b))
		}
	}
	return strings.Join(parts, "\n")
}

func describeResource(b contentBlock) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "=== Resource: %s ===\n", b.Name)
	if b.Title != "" {
		fmt.Fprintf(&sb, "Title: %s\n", b.Title)
	}
	if b.Description != "" {
		fmt.Fprintf(&sb, "Description: %s\n", b.Description)
	}
	fmt.Fprintf(&sb, "URI: %s\n", b.URI)
	if b.MimeType != "" {
		fmt.Fprintf(&sb, "Type: %s\n", b.MimeType)
	}
	if b.Size != nil {
		fmt.Fprintf(&sb, "Size: %d bytes\n", *b.Size)
	}

	if strings.HasPrefix(b.URI, "file://") {
		content, err := readFileFromURI(b.URI)
		if err != nil {
			fmt.Fprintf(&sb, "\n[Error reading file: %v]\n", err)
		} else {
			if len(content) > maxResourceSize {
				content = content[:maxResourceSize] + "\n\n[... truncated ...]"
			}
			fmt.Fprintf(&sb, "\n--- File Contents ---\n%s\n--- End of File ---\n", content)
		}
	} else {
		sb.WriteString("\n[External resource - content not available]\n")
	}
	sb.WriteString("=== End Resource ===\n")
	return sb.String()
}

func readFileFromURI(uri string) (string, error) {
	parsed, err := url.Parse(uri)
	if err != nil {
		return "", errors.Wrapf(err, "invalid URI")
	}
	if parsed.Scheme != "file" {
		return "", errors.New("unsupported URI scheme: %s", parsed.Scheme)
	}
	content, err := os.ReadFile(parsed.Path)
	if err != nil {
		return "", errors.Wrapf(err, "failed to read file")
	}
	return string(content), nil
}
