package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/m4xw311/dialagent/errors"
	"github.com/m4xw311/dialagent/session"
	"github.com/m4xw311/dialagent/tools"
	"go.uber.org/zap"
)

const cognitiveServicesScope = "https://cognitiveservices.azure.com/.default"

// DialConfig configures a DialTransport. Exactly one of APIKey or Credential
// is needed; Credential takes precedence.
type DialConfig struct {
	Endpoint   string
	Deployment string
	APIKey     string
	Credential azcore.TokenCredential
	// HTTPClient overrides the client built from Timeout.
	HTTPClient *http.Client
	Timeout    time.Duration
	Logger     *zap.Logger
}

// DialTransport talks to a DIAL (Azure OpenAI compatible) chat completions
// deployment over plain HTTP and server-sent events.
type DialTransport struct {
	url        string
	apiKey     string
	credential azcore.TokenCredential
	client     *http.Client
	logger     *zap.Logger
}

func NewDialTransport(cfg DialConfig) (*DialTransport, error) {
	if cfg.Endpoint == "" || cfg.Deployment == "" {
		return nil, errors.New("dial transport needs an endpoint and a deployment")
	}
	if cfg.APIKey == "" && cfg.Credential == nil {
		return nil, errors.New("dial transport needs an API key or a token credential")
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	t := &DialTransport{
		url: strings.TrimRight(cfg.Endpoint, "/") +
			"/openai/deployments/" + url.PathEscape(cfg.Deployment) + "/chat/completions",
		apiKey:     cfg.APIKey,
		credential: cfg.Credential,
		client:     client,
		logger:     logger,
	}
	logger.Debug("dial transport ready", zap.String("url", t.url))
	return t, nil
}

type wireTool struct {
	Type     string     `json:"type"`
	Function tools.Spec `json:"function"`
}

type chatRequest struct {
	Messages []session.WireMessage `json:"messages"`
	Tools    []wireTool            `json:"tools,omitempty"`
	Stream   bool                  `json:"stream,omitempty"`
}

func newChatRequest(req Request, stream bool) chatRequest {
	out := chatRequest{Messages: session.ToWire(req.Messages), Stream: stream}
	for _, spec := range req.Tools {
		out.Tools = append(out.Tools, wireTool{Type: "function", Function: spec})
	}
	return out
}

type chatResponse struct {
	Choices []struct {
		Message      session.WireMessage `json:"message"`
		FinishReason string              `json:"finish_reason"`
	} `json:"choices"`
}

// do posts body and returns the response when the status is 200. Any other
// outcome is a TransportError and the body is already closed.
func (t *DialTransport) do(ctx context.Context, body chatRequest) (*http.Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, errors.Wrapf(err, "marshal chat request")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.url, bytes.NewReader(payload))
	if err != nil {
		return nil, errors.Wrapf(err, "create chat request")
	}
	req.Header.Set("Content-Type", "application/json")
	if body.Stream {
		req.Header.Set("Accept", "text/event-stream")
	}
	if t.credential != nil {
		token, err := t.credential.GetToken(ctx, policy.TokenRequestOptions{Scopes: []string{cognitiveServicesScope}})
		if err != nil {
			return nil, &errors.TransportError{Backend: "dial", Err: errors.Wrapf(err, "acquire token")}
		}
		req.Header.Set("Authorization", "Bearer "+token.Token)
	} else {
		req.Header.Set("api-key", t.apiKey)
	}

	t.logger.Debug("chat request",
		zap.Int("messages", len(body.Messages)),
		zap.Int("tools", len(body.Tools)),
		zap.Bool("stream", body.Stream))

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, &errors.TransportError{Backend: "dial", Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		data, _ := io.ReadAll(resp.Body)
		t.logger.Warn("chat request rejected", zap.Int("status", resp.StatusCode))
		return nil, &errors.TransportError{Backend: "dial", StatusCode: resp.StatusCode, Body: string(data)}
	}
	return resp, nil
}

func (t *DialTransport) Complete(ctx context.Context, req Request) (*Response, error) {
	resp, err := t.do(ctx, newChatRequest(req, false))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &errors.TransportError{Backend: "dial", StatusCode: resp.StatusCode, Err: err}
	}
	var decoded chatResponse
	if err := json.Unmarshal(data, &decoded); err != nil {
		return nil, &errors.TransportError{
			Backend: "dial", StatusCode: resp.StatusCode, Body: string(data),
			Err: errors.Join(errors.ErrMalformedResponse, err),
		}
	}
	if len(decoded.Choices) == 0 {
		return nil, &errors.TransportError{Backend: "dial", StatusCode: resp.StatusCode, Body: string(data), Err: errors.ErrNoChoices}
	}

	choice := decoded.Choices[0]
	msg := session.FromWire(choice.Message)
	msg.Role = session.RoleAssistant
	return &Response{Message: msg, FinishReason: choice.FinishReason}, nil
}

func (t *DialTransport) Stream(ctx context.Context, req Request) (FragmentStream, error) {
	resp, err := t.do(ctx, newChatRequest(req, true))
	if err != nil {
		return nil, err
	}
	return newSSEStream(resp.Body, "dial"), nil
}
