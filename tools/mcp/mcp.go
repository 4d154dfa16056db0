// Package mcp exposes tools served by external Model Context Protocol
// servers.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/m4xw311/dialagent/errors"
	"github.com/m4xw311/dialagent/tools"
	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"
)

// Client manages the session with a single MCP server.
type Client struct {
	Name    string
	session *mcpsdk.ClientSession
	tools   []*Tool
	logger  *zap.Logger
}

// Connect starts the MCP server subprocess and discovers its tools. The
// subprocess stderr is passed through.
func Connect(ctx context.Context, name, command string, args []string, logger *zap.Logger) (*Client, error) {
	cmd := exec.Command(command, args...)
	cmd.Stderr = os.Stderr
	return ConnectTransport(ctx, name, &mcpsdk.CommandTransport{Command: cmd}, logger)
}

// ConnectTransport is Connect over an arbitrary transport.
func ConnectTransport(ctx context.Context, name string, transport mcpsdk.Transport, logger *zap.Logger) (*Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	client := mcpsdk.NewClient(&mcpsdk.Implementation{Name: "dialagent", Version: "v1.0.0"}, nil)
	session, err := client.Connect(ctx, transport, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to connect to MCP server '%s'", name)
	}
	c := &Client{Name: name, session: session, logger: logger.With(zap.String("mcp_server", name))}

	params := &mcpsdk.ListToolsParams{}
	for {
		list, err := session.ListTools(ctx, params)
		if err != nil {
			session.Close()
			return nil, errors.Wrapf(err, "failed to list tools from MCP server '%s'", name)
		}
		for _, t := range list.Tools {
			c.tools = append(c.tools, &Tool{
				client:      c,
				name:        t.Name,
				description: t.Description,
				schema:      schemaMap(t.InputSchema),
			})
		}
		if list.NextCursor == "" {
			break
		}
		params.Cursor = list.NextCursor
	}

	c.logger.Info("mcp server connected", zap.Int("tools", len(c.tools)))
	return c, nil
}

// Tools returns the discovered tools in server order.
func (c *Client) Tools() []tools.Tool {
	out := make([]tools.Tool, 0, len(c.tools))
	for _, t := range c.tools {
		out = append(out, t)
	}
	return out
}

// Close ends the session, which also stops a subprocess server.
func (c *Client) Close() error {
	c.logger.Info("closing mcp server")
	return c.session.Close()
}

// schemaMap normalises a tool input schema to a JSON object.
func schemaMap(schema any) map[string]any {
	out, ok := schema.(map[string]any)
	if !ok && schema != nil {
		if data, err := json.Marshal(schema); err == nil {
			json.Unmarshal(data, &out)
		}
	}
	if out == nil {
		out = map[string]any{"type": "object"}
	}
	return out
}

// Tool is a tool served by an MCP server.
type Tool struct {
	client      *Client
	name        string
	description string
	schema      map[string]any
}

func (t *Tool) Name() string { return t.name }

func (t *Tool) Description() string { return t.description }

func (t *Tool) InputSchema() map[string]any { return t.schema }

// Execute calls the tool on the server. Text content is concatenated; a
// result flagged as an error becomes an execution error.
func (t *Tool) Execute(ctx context.Context, args map[string]any) (string, error) {
	result, err := t.client.session.CallTool(ctx, &mcpsdk.CallToolParams{
		Name:      t.name,
		Arguments: args,
	})
	if err != nil {
		return "", errors.Wrapf(err, "failed to call tool '%s'", t.name)
	}

	var sb strings.Builder
	for _, content := range result.Content {
		switch c := content.(type) {
		case *mcpsdk.TextContent:
			sb.WriteString(c.Text)
		default:
			data, err := json.Marshal(c)
			if err != nil {
				continue
			}
			sb.Write(data)
		}
	}
	if result.IsError {
		return "", fmt.Errorf("%s", sb.String())
	}
	return sb.String(), nil
}
