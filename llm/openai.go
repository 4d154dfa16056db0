package llm

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/m4xw311/dialagent/errors"
	"github.com/m4xw311/dialagent/session"
	"github.com/m4xw311/dialagent/tools"
	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/azure"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/packages/ssestream"
	"github.com/openai/openai-go/v3/shared"
)

// OpenAIConfig configures an OpenAITransport. With AzureEndpoint set the
// client targets an Azure OpenAI resource and Model names the deployment.
type OpenAIConfig struct {
	Model           string
	APIKey          string
	BaseURL         string
	AzureEndpoint   string
	AzureAPIVersion string
	Credential      azcore.TokenCredential
	HTTPClient      *http.Client
	Timeout         time.Duration
}

// OpenAITransport is a Transport for the OpenAI Chat Completion API.
type OpenAITransport struct {
	client *openai.Client
	model  string
}

// NewOpenAITransport creates a new OpenAITransport. Without an explicit key it
// falls back to OPENAI_API_KEY, and OPENAI_BASE_URL for custom endpoints.
func NewOpenAITransport(cfg OpenAIConfig) (*OpenAITransport, error) {
	var options []option.RequestOption
	if cfg.HTTPClient != nil {
		options = append(options, option.WithHTTPClient(cfg.HTTPClient))
	}
	if cfg.Timeout > 0 {
		options = append(options, option.WithRequestTimeout(cfg.Timeout))
	}

	if cfg.AzureEndpoint != "" {
		apiVersion := cfg.AzureAPIVersion
		if apiVersion == "" {
			apiVersion = "2024-10-21"
		}
		options = append(options, azure.WithEndpoint(cfg.AzureEndpoint, apiVersion))
		switch {
		case cfg.Credential != nil:
			options = append(options, azure.WithTokenCredential(cfg.Credential))
		case cfg.APIKey != "":
			options = append(options, azure.WithAPIKey(cfg.APIKey))
		default:
			return nil, errors.New("azure openai needs an API key or a token credential")
		}
	} else {
		apiKey := cfg.APIKey
		if apiKey == "" {
			apiKey = os.Getenv("OPENAI_API_KEY")
		}
		if apiKey == "" {
			return nil, errors.New("OPENAI_API_KEY environment variable not set")
		}
		options = append(options, option.WithAPIKey(apiKey))
		baseURL := cfg.BaseURL
		if baseURL == "" {
			baseURL = os.Getenv("OPENAI_BASE_URL")
		}
		if baseURL != "" {
			options = append(options, option.WithBaseURL(baseURL))
		}
	}

	c := openai.NewClient(options...)
	return &OpenAITransport{client: &c, model: cfg.Model}, nil
}

func (o *OpenAITransport) params(req Request) openai.ChatCompletionNewParams {
	return openai.ChatCompletionNewParams{
		Model:    shared.ChatModel(o.model),
		Messages: convertMessagesToOpenaiContent(req.Messages),
		Tools:    convertSpecsToOpenAITools(req.Tools),
	}
}

func (o *OpenAITransport) Complete(ctx context.Context, req Request) (*Response, error) {
	resp, err := o.client.Chat.Completions.New(ctx, o.params(req))
	if err != nil {
		return nil, openaiTransportError(err)
	}
	if len(resp.Choices) == 0 {
		return nil, &errors.TransportError{Backend: "openai", StatusCode: http.StatusOK, Body: resp.RawJSON(), Err: errors.ErrNoChoices}
	}
	return processOpenaiChoice(resp.Choices[0]), nil
}

func (o *OpenAITransport) Stream(ctx context.Context, req Request) (FragmentStream, error) {
	stream := o.client.Chat.Completions.NewStreaming(ctx, o.params(req))
	if err := stream.Err(); err != nil {
		stream.Close()
		return nil, openaiTransportError(err)
	}
	return &openaiStream{stream: stream}, nil
}

// processOpenaiChoice converts a completion choice into a Response.
func processOpenaiChoice(choice openai.ChatCompletionChoice) *Response {
	var calls []session.ToolCall
	for _, tc := range choice.Message.ToolCalls {
		calls = append(calls, session.ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}
	return &Response{
		Message:      session.Assistant(choice.Message.Content, calls),
		FinishReason: choice.FinishReason,
	}
}

func openaiTransportError(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return &errors.TransportError{Backend: "openai", StatusCode: apiErr.StatusCode, Body: apiErr.RawJSON(), Err: err}
	}
	return &errors.TransportError{Backend: "openai", Err: err}
}

type openaiStream struct {
	stream *ssestream.Stream[openai.ChatCompletionChunk]
	cur    Fragment
}

func (s *openaiStream) Next() bool {
	for s.stream.Next() {
		chunk := s.stream.Current()
		if len(chunk.Choices) == 0 {
			continue
		}
		choice := chunk.Choices[0]
		frag := Fragment{Content: choice.Delta.Content, FinishReason: choice.FinishReason}
		for _, tc := range choice.Delta.ToolCalls {
			frag.ToolCalls = append(frag.ToolCalls, ToolCallDelta{
				Index:     int(tc.Index),
				ID:        tc.ID,
				Name:      tc.Function.Name,
				Arguments: tc.Function.Arguments,
			})
		}
		s.cur = frag
		return true
	}
	return false
}

func (s *openaiStream) Current() Fragment { return s.cur }

func (s *openaiStream) Err() error {
	if err := s.stream.Err(); err != nil {
		return openaiTransportError(err)
	}
	return nil
}

func (s *openaiStream) Close() error { return s.stream.Close() }

// convertMessagesToOpenaiContent converts our internal message format to OpenAI's.
func convertMessagesToOpenaiContent(messages []session.Message) []openai.ChatCompletionMessageParamUnion {
	chatMessages := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case session.RoleSystem:
			chatMessages = append(chatMessages, openai.SystemMessage(msg.Content))
		case session.RoleAssistant:
			assistant := openai.ChatCompletionAssistantMessageParam{}
			if msg.Content != "" || len(msg.ToolCalls) == 0 {
				assistant.Content.OfString = openai.String(msg.Content)
			}
			for _, tc := range msg.ToolCalls {
				assistant.ToolCalls = append(assistant.ToolCalls, openai.ChatCompletionMessageToolCallUnionParam{
					OfFunction: &openai.ChatCompletionMessageFunctionToolCallParam{
						ID: tc.ID,
						Function: openai.ChatCompletionMessageFunctionToolCallFunctionParam{
							Name:      tc.Name,
							Arguments: tc.Arguments,
						},
					},
				})
			}
			chatMessages = append(chatMessages, openai.ChatCompletionMessageParamUnion{OfAssistant: &assistant})
		case session.RoleTool:
			chatMessages = append(chatMessages, openai.ToolMessage(msg.Content, msg.ToolCallID))
		default:
			chatMessages = append(chatMessages, openai.UserMessage(msg.Content))
		}
	}
	return chatMessages
}

// convertSpecsToOpenAITools converts tool declarations to the OpenAI tool format.
func convertSpecsToOpenAITools(specs []tools.Spec) []openai.ChatCompletionToolUnionParam {
	if len(specs) == 0 {
		return nil
	}
	out := make([]openai.ChatCompletionToolUnionParam, 0, len(specs))
	for _, spec := range specs {
		out = append(out, openai.ChatCompletionFunctionTool(shared.FunctionDefinitionParam{
			Name:        spec.Name,
			Description: openai.String(spec.Description),
			Parameters:  shared.FunctionParameters(spec.Parameters),
		}))
	}
	return out
}
