package llm

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/m4xw311/dialagent/errors"
	"github.com/m4xw311/dialagent/session"
	"github.com/m4xw311/dialagent/tools"
)

// bedrockInvoker is the part of the Bedrock runtime client we use.
type bedrockInvoker interface {
	InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error)
}

// BedrockTransport is a Transport for Anthropic models on AWS Bedrock.
type BedrockTransport struct {
	client  bedrockInvoker
	modelID string
}

// NewBedrockTransport creates a new BedrockTransport.
// It requires AWS credentials to be configured in the environment.
func NewBedrockTransport(ctx context.Context, modelID, region string) (*BedrockTransport, error) {
	var opts []func(*config.LoadOptions) error
	if region != "" {
		opts = append(opts, config.WithRegion(region))
	}
	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to load AWS config")
	}
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}
	return &BedrockTransport{client: bedrockruntime.NewFromConfig(cfg), modelID: modelID}, nil
}

func (b *BedrockTransport) Complete(ctx context.Context, req Request) (*Response, error) {
	messages, systemPrompt := convertMessagesToAnthropicFormat(req.Messages)
	body, err := createAnthropicRequest(messages, systemPrompt, req.Tools)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to create Anthropic request")
	}

	resp, err := b.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(b.modelID),
		ContentType: aws.String("application/json"),
		Body:        body,
	})
	if err != nil {
		return nil, &errors.TransportError{Backend: "bedrock", Err: err}
	}
	return processBedrockResponse(resp.Body)
}

// Stream performs a blocking call and replays the result as a single
// fragment.
func (b *BedrockTransport) Stream(ctx context.Context, req Request) (FragmentStream, error) {
	resp, err := b.Complete(ctx, req)
	if err != nil {
		return nil, err
	}
	frag := Fragment{Content: resp.Message.Content, FinishReason: resp.FinishReason}
	for i, tc := range resp.Message.ToolCalls {
		frag.ToolCalls = append(frag.ToolCalls, ToolCallDelta{Index: i, ID: tc.ID, Name: tc.Name, Arguments: tc.Arguments})
	}
	return &sliceStream{frags: []Fragment{frag}, pos: -1}, nil
}

// sliceStream replays fragments held in memory.
type sliceStream struct {
	frags []Fragment
	pos   int
}

func (s *sliceStream) Next() bool {
	s.pos++
	return s.pos < len(s.frags)
}

func (s *sliceStream) Current() Fragment { return s.frags[s.pos] }
func (s *sliceStream) Err() error        { return nil }
func (s *sliceStream) Close() error      { return nil }

// convertMessagesToAnthropicFormat converts our internal message format to the
// Anthropic JSON shape accepted by Bedrock.
func convertMessagesToAnthropicFormat(messages []session.Message) ([]map[string]interface{}, string) {
	var out []map[string]interface{}
	var systemPrompt string

	for _, msg := range messages {
		switch msg.Role {
		case session.RoleSystem:
			systemPrompt = msg.Content
		case session.RoleUser:
			out = append(out, map[string]interface{}{
				"role":    "user",
				"content": []map[string]interface{}{{"type": "text", "text": msg.Content}},
			})
		case session.RoleAssistant:
			var blocks []map[string]interface{}
			if msg.Content != "" {
				blocks = append(blocks, map[string]interface{}{"type": "text", "text": msg.Content})
			}
			for _, tc := range msg.ToolCalls {
				input, err := tools.ParseArguments(tc.Arguments)
				if err != nil {
					input = map[string]any{}
				}
				blocks = append(blocks, map[string]interface{}{
					"type":  "tool_use",
					"id":    tc.ID,
					"name":  tc.Name,
					"input": input,
				})
			}
			if len(blocks) > 0 {
				out = append(out, map[string]interface{}{"role": "assistant", "content": blocks})
			}
		case session.RoleTool:
			block := map[string]interface{}{
				"type":        "tool_result",
				"tool_use_id": msg.ToolCallID,
				"content":     msg.Content,
			}
			if n := len(out); n > 0 && isToolResultMessage(out[n-1]) {
				out[n-1]["content"] = append(out[n-1]["content"].([]map[string]interface{}), block)
				continue
			}
			out = append(out, map[string]interface{}{
				"role":    "user",
				"content": []map[string]interface{}{block},
			})
		}
	}
	return out, systemPrompt
}

func isToolResultMessage(m map[string]interface{}) bool {
	blocks, ok := m["content"].([]map[string]interface{})
	return ok && m["role"] == "user" && len(blocks) > 0 && blocks[0]["type"] == "tool_result"
}

// createAnthropicRequest creates the request body for Anthropic models on Bedrock.
func createAnthropicRequest(messages []map[string]interface{}, systemPrompt string, specs []tools.Spec) ([]byte, error) {
	request := map[string]interface{}{
		"anthropic_version": "bedrock-2023-05-31",
		"max_tokens":        anthropicMaxTokens,
		"messages":          messages,
	}
	if systemPrompt != "" {
		request["system"] = systemPrompt
	}
	if len(specs) > 0 {
		var toolDefs []map[string]interface{}
		for _, spec := range specs {
			toolDefs = append(toolDefs, map[string]interface{}{
				"name":         spec.Name,
				"description":  spec.Description,
				"input_schema": spec.Parameters,
			})
		}
		request["tools"] = toolDefs
	}
	return json.Marshal(request)
}

type bedrockResponse struct {
	Content []struct {
		Type  string          `json:"type"`
		Text  string          `json:"text"`
		ID    string          `json:"id"`
		Name  string          `json:"name"`
		Input json.RawMessage `json:"input"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
	Error      any    `json:"error"`
}

// processBedrockResponse converts a Bedrock response body into a Response.
func processBedrockResponse(body []byte) (*Response, error) {
	var resp bedrockResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, &errors.TransportError{Backend: "bedrock", Body: string(body), Err: errors.Join(errors.ErrMalformedResponse, err)}
	}
	if resp.Error != nil {
		return nil, &errors.TransportError{Backend: "bedrock", Body: string(body), Err: fmt.Errorf("bedrock API error: %v", resp.Error)}
	}

	var content string
	var calls []session.ToolCall
	for i, item := range resp.Content {
		switch item.Type {
		case "text":
			content += item.Text
		case "tool_use":
			id := item.ID
			if id == "" {
				id = fmt.Sprintf("call_%d_%s", i, item.Name)
			}
			args := string(item.Input)
			if args == "" || args == "null" {
				args = "{}"
			}
			calls = append(calls, session.ToolCall{ID: id, Name: item.Name, Arguments: args})
		}
	}
	return &Response{
		Message:      session.Assistant(content, calls),
		FinishReason: anthropicFinishReason(resp.StopReason),
	}, nil
}
