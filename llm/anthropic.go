package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"os"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"
	"github.com/m4xw311/dialagent/errors"
	"github.com/m4xw311/dialagent/session"
	"github.com/m4xw311/dialagent/tools"
)

const anthropicMaxTokens = 4096

// AnthropicTransport is a Transport for the Anthropic Messages API.
type AnthropicTransport struct {
	client *anthropic.Client
	model  string
}

// NewAnthropicTransport creates a new AnthropicTransport. An empty apiKey
// falls back to the ANTHROPIC_API_KEY environment variable.
func NewAnthropicTransport(model, apiKey string, httpClient *http.Client) (*AnthropicTransport, error) {
	if apiKey == "" {
		apiKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	if apiKey == "" {
		return nil, errors.New("ANTHROPIC_API_KEY environment variable not set")
	}
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if httpClient != nil {
		opts = append(opts, option.WithHTTPClient(httpClient))
	}
	client := anthropic.NewClient(opts...)
	return &AnthropicTransport{client: &client, model: model}, nil
}

func (a *AnthropicTransport) params(req Request) anthropic.MessageNewParams {
	messages, systemPrompt := convertMessagesToAnthropicMessages(req.Messages)
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(a.model),
		MaxTokens: anthropicMaxTokens,
		Messages:  messages,
	}
	if systemPrompt != "" {
		params.System = []anthropic.TextBlockParam{{Text: systemPrompt}}
	}
	for _, toolParam := range convertSpecsToAnthropicTools(req.Tools) {
		params.Tools = append(params.Tools, anthropic.ToolUnionParam{OfTool: &toolParam})
	}
	return params
}

func (a *AnthropicTransport) Complete(ctx context.Context, req Request) (*Response, error) {
	resp, err := a.client.Messages.New(ctx, a.params(req))
	if err != nil {
		return nil, anthropicTransportError(err)
	}
	return processAnthropicResponse(resp), nil
}

func (a *AnthropicTransport) Stream(ctx context.Context, req Request) (FragmentStream, error) {
	stream := a.client.Messages.NewStreaming(ctx, a.params(req))
	if err := stream.Err(); err != nil {
		stream.Close()
		return nil, anthropicTransportError(err)
	}
	return &anthropicStream{stream: stream}, nil
}

func anthropicTransportError(err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return &errors.TransportError{Backend: "anthropic", StatusCode: apiErr.StatusCode, Body: apiErr.RawJSON(), Err: err}
	}
	return &errors.TransportError{Backend: "anthropic", Err: err}
}

func anthropicFinishReason(reason string) string {
	switch anthropic.StopReason(reason) {
	case anthropic.StopReasonToolUse:
		return FinishToolCalls
	case anthropic.StopReasonMaxTokens:
		return FinishLength
	case "":
		return ""
	default:
		return FinishStop
	}
}

// convertMessagesToAnthropicMessages converts our internal message format to
// Anthropic's. Consecutive tool results are grouped into one user message as
// the API requires.
func convertMessagesToAnthropicMessages(messages []session.Message) ([]anthropic.MessageParam, string) {
	var out []anthropic.MessageParam
	var systemPrompt string
	lastWasToolResult := false

	for _, msg := range messages {
		switch msg.Role {
		case session.RoleSystem:
			systemPrompt = msg.Content
			lastWasToolResult = false
		case session.RoleUser:
			out = append(out, anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Content)))
			lastWasToolResult = false
		case session.RoleAssistant:
			var blocks []anthropic.ContentBlockParamUnion
			if msg.Content != "" {
				blocks = append(blocks, anthropic.NewTextBlock(msg.Content))
			}
			for _, tc := range msg.ToolCalls {
				input := json.RawMessage(tc.Arguments)
				if !json.Valid(input) {
					input = json.RawMessage("{}")
				}
				blocks = append(blocks, anthropic.NewToolUseBlock(tc.ID, input, tc.Name))
			}
			if len(blocks) > 0 {
				out = append(out, anthropic.NewAssistantMessage(blocks...))
			}
			lastWasToolResult = false
		case session.RoleTool:
			block := anthropic.NewToolResultBlock(msg.ToolCallID, msg.Content, false)
			if lastWasToolResult {
				last := &out[len(out)-1]
				last.Content = append(last.Content, block)
			} else {
				out = append(out, anthropic.NewUserMessage(block))
			}
			lastWasToolResult = true
		}
	}
	return out, systemPrompt
}

// convertSpecsToAnthropicTools converts tool declarations to Anthropic's tool format.
func convertSpecsToAnthropicTools(specs []tools.Spec) []anthropic.ToolParam {
	out := make([]anthropic.ToolParam, 0, len(specs))
	for _, spec := range specs {
		schema := anthropic.ToolInputSchemaParam{Properties: spec.Parameters["properties"]}
		switch required := spec.Parameters["required"].(type) {
		case []string:
			schema.Required = required
		case []any:
			for _, r := range required {
				if s, ok := r.(string); ok {
					schema.Required = append(schema.Required, s)
				}
			}
		}
		out = append(out, anthropic.ToolParam{
			Name:        spec.Name,
			Description: anthropic.String(spec.Description),
			InputSchema: schema,
		})
	}
	return out
}

// processAnthropicResponse converts an Anthropic API response into a Response.
func processAnthropicResponse(resp *anthropic.Message) *Response {
	var content string
	var calls []session.ToolCall
	for _, block := range resp.Content {
		switch c := block.AsAny().(type) {
		case anthropic.TextBlock:
			content += c.Text
		case anthropic.ToolUseBlock:
			calls = append(calls, session.ToolCall{ID: c.ID, Name: c.Name, Arguments: string(c.Input)})
		}
	}
	return &Response{
		Message:      session.Assistant(content, calls),
		FinishReason: anthropicFinishReason(string(resp.StopReason)),
	}
}

// anthropicStream maps message stream events onto fragments. Content block
// indexes double as tool call indexes, which keeps calls in block order.
type anthropicStream struct {
	stream *ssestream.Stream[anthropic.MessageStreamEventUnion]
	cur    Fragment
}

func (s *anthropicStream) Next() bool {
	for s.stream.Next() {
		event := s.stream.Current()
		var frag Fragment
		switch ev := event.AsAny().(type) {
		case anthropic.ContentBlockStartEvent:
			if ev.ContentBlock.Type != "tool_use" {
				continue
			}
			frag.ToolCalls = []ToolCallDelta{{Index: int(ev.Index), ID: ev.ContentBlock.ID, Name: ev.ContentBlock.Name}}
		case anthropic.ContentBlockDeltaEvent:
			switch d := ev.Delta.AsAny().(type) {
			case anthropic.TextDelta:
				frag.Content = d.Text
			case anthropic.InputJSONDelta:
				frag.ToolCalls = []ToolCallDelta{{Index: int(ev.Index), Arguments: d.PartialJSON}}
			default:
				continue
			}
		case anthropic.MessageDeltaEvent:
			frag.FinishReason = anthropicFinishReason(string(ev.Delta.StopReason))
			if frag.FinishReason == "" {
				continue
			}
		default:
			continue
		}
		s.cur = frag
		return true
	}
	return false
}

func (s *anthropicStream) Current() Fragment { return s.cur }

func (s *anthropicStream) Err() error {
	if err := s.stream.Err(); err != nil {
		return anthropicTransportError(err)
	}
	return nil
}

func (s *anthropicStream) Close() error { return s.stream.Close() }
