package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/m4xw311/dialagent/errors"
	"github.com/m4xw311/dialagent/session"
	"github.com/m4xw311/dialagent/tools"
	"go.uber.org/zap/zaptest"
)

func newDialServer(t *testing.T, handler http.HandlerFunc) (*DialTransport, *httptest.Server) {
	t.Helper()
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)
	tr, err := NewDialTransport(DialConfig{
		Endpoint:   ts.URL + "/",
		Deployment: "gpt-4o",
		APIKey:     "secret",
		Timeout:    5 * time.Second,
		Logger:     zaptest.NewLogger(t),
	})
	if err != nil {
		t.Fatalf("NewDialTransport: %v", err)
	}
	return tr, ts
}

func sampleRequest() Request {
	call := session.ToolCall{ID: "call_1", Name: "add_user", Arguments: `{"name":"Andrej"}`}
	return Request{
		Messages: []session.Message{
			session.System("sys"),
			session.User("hi"),
			session.Assistant("", []session.ToolCall{call}),
			session.ToolResult(call, "ok"),
		},
		Tools: []tools.Spec{{Name: "add_user", Description: "adds", Parameters: map[string]any{"type": "object"}}},
	}
}

func TestNewDialTransportValidation(t *testing.T) {
	if _, err := NewDialTransport(DialConfig{Deployment: "d", APIKey: "k"}); err == nil {
		t.Error("missing endpoint should fail")
	}
	if _, err := NewDialTransport(DialConfig{Endpoint: "http://x", Deployment: "d"}); err == nil {
		t.Error("missing credentials should fail")
	}
}

func TestDialComplete(t *testing.T) {
	tr, _ := newDialServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/openai/deployments/gpt-4o/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("api-key") != "secret" || r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("unexpected headers %v", r.Header)
		}
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if _, ok := body["stream"]; ok {
			t.Error("blocking request should not set stream")
		}
		msgs := body["messages"].([]any)
		tool := msgs[3].(map[string]any)
		if tool["tool_call_id"] != "call_1" || tool["name"] != "add_user" {
			t.Errorf("tool message lost its identity: %v", tool)
		}
		if msgs[2].(map[string]any)["content"] != nil {
			t.Errorf("assistant tool call message should have null content")
		}
		fn := body["tools"].([]any)[0].(map[string]any)
		if fn["type"] != "function" || fn["function"].(map[string]any)["name"] != "add_user" {
			t.Errorf("unexpected tools %v", body["tools"])
		}

		fmt.Fprint(w, `{"choices":[{"finish_reason":"tool_calls","message":{"role":"assistant","content":null,
			"tool_calls":[{"id":"call_2","type":"function","function":{"name":"search_users","arguments":"{\"name\":\"A\"}"}}]}}]}`)
	})

	resp, err := tr.Complete(context.Background(), sampleRequest())
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.FinishReason != FinishToolCalls {
		t.Errorf("unexpected finish reason %q", resp.FinishReason)
	}
	calls := resp.Message.ToolCalls
	if resp.Message.Role != session.RoleAssistant || len(calls) != 1 || calls[0].ID != "call_2" || calls[0].Arguments != `{"name":"A"}` {
		t.Errorf("unexpected message %+v", resp.Message)
	}
}

func TestDialCompleteFailures(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr error
	}{
		{"unauthorized", http.StatusUnauthorized, `{"error":"bad key"}`, nil},
		{"no choices", http.StatusOK, `{"choices":[]}`, errors.ErrNoChoices},
		{"missing choices", http.StatusOK, `{}`, errors.ErrNoChoices},
		{"malformed", http.StatusOK, `{"choices":`, errors.ErrMalformedResponse},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr, _ := newDialServer(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				io.WriteString(w, tt.body)
			})
			_, err := tr.Complete(context.Background(), sampleRequest())
			var te *errors.TransportError
			if !errors.As(err, &te) {
				t.Fatalf("expected TransportError, got %v", err)
			}
			if te.StatusCode != tt.status || te.Body != tt.body {
				t.Errorf("unexpected status/body %d %q", te.StatusCode, te.Body)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestDialCompleteNetworkFailure(t *testing.T) {
	tr, ts := newDialServer(t, func(w http.ResponseWriter, r *http.Request) {})
	ts.Close()
	_, err := tr.Complete(context.Background(), sampleRequest())
	var te *errors.TransportError
	if !errors.As(err, &te) || te.StatusCode != 0 {
		t.Fatalf("expected TransportError without status, got %v", err)
	}
}

const sseBody = `data: {"choices":[],"prompt_filter_results":[]}

data: {"choices":[{"delta":{"role":"assistant","content":"Hel"}}]}

: keep-alive
data: {"choices":[{"delta":{"content":"lo"}}]}

data: {"choices":[{"delta":{"tool_calls":[{"index":0,"id":"call_1","type":"function","function":{"name":"add_user","arguments":"{\"a\":"}}]}}]}

data: {"choices":[{"delta":{"tool_calls":[{"index":0,"function":{"arguments":"1"}}]}}]}

data: {"choices":[{"delta":{"tool_calls":[{"index":0,"function":{"arguments":"}"}}]},"finish_reason":"tool_calls"}]}

data: [DONE]

data: {"choices":[{"delta":{"content":"ignored"}}]}
`

func TestDialStream(t *testing.T) {
	tr, _ := newDialServer(t, func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		if body["stream"] != true {
			t.Errorf("streaming request should set stream=true, got %v", body["stream"])
		}
		w.Header().Set("Content-Type", "text/event-stream")
		io.WriteString(w, sseBody)
	})

	stream, err := tr.Stream(context.Background(), sampleRequest())
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	defer stream.Close()

	var acc Accumulator
	var texts []string
	for stream.Next() {
		if text := acc.Add(stream.Current()); text != "" {
			texts = append(texts, text)
		}
	}
	if err := stream.Err(); err != nil {
		t.Fatalf("stream error: %v", err)
	}
	if strings.Join(texts, "|") != "Hel|lo" {
		t.Errorf("unexpected text fragments %v", texts)
	}
	calls := acc.ToolCalls()
	if len(calls) != 1 || calls[0].ID != "call_1" || calls[0].Name != "add_user" || calls[0].Arguments != `{"a":1}` {
		t.Errorf("unexpected calls %+v", calls)
	}
	if acc.FinishReason() != FinishToolCalls {
		t.Errorf("unexpected finish reason %q", acc.FinishReason())
	}
}

func TestDialStreamFailures(t *testing.T) {
	t.Run("status", func(t *testing.T) {
		tr, _ := newDialServer(t, func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "overloaded", http.StatusTooManyRequests)
		})
		_, err := tr.Stream(context.Background(), sampleRequest())
		var te *errors.TransportError
		if !errors.As(err, &te) || te.StatusCode != http.StatusTooManyRequests || !strings.Contains(te.Body, "overloaded") {
			t.Fatalf("unexpected error %v", err)
		}
	})

	t.Run("truncated", func(t *testing.T) {
		tr, _ := newDialServer(t, func(w http.ResponseWriter, r *http.Request) {
			io.WriteString(w, "data: {\"choices\":[{\"delta\":{\"content\":\"partial\"}}]}\n\n")
		})
		stream, err := tr.Stream(context.Background(), sampleRequest())
		if err != nil {
			t.Fatal(err)
		}
		defer stream.Close()
		n := 0
		for stream.Next() {
			n++
		}
		if n != 1 || !errors.Is(stream.Err(), errors.ErrStreamTruncated) {
			t.Fatalf("expected one fragment then truncation, got %d %v", n, stream.Err())
		}
	})

	t.Run("malformed chunk", func(t *testing.T) {
		tr, _ := newDialServer(t, func(w http.ResponseWriter, r *http.Request) {
			io.WriteString(w, "data: {not json}\n\ndata: [DONE]\n\n")
		})
		stream, err := tr.Stream(context.Background(), sampleRequest())
		if err != nil {
			t.Fatal(err)
		}
		defer stream.Close()
		if stream.Next() || !errors.Is(stream.Err(), errors.ErrMalformedResponse) {
			t.Fatalf("expected malformed response error, got %v", stream.Err())
		}
	})
}

type staticCredential struct{ token string }

func (c staticCredential) GetToken(ctx context.Context, opts policy.TokenRequestOptions) (azcore.AccessToken, error) {
	if len(opts.Scopes) != 1 || opts.Scopes[0] != cognitiveServicesScope {
		return azcore.AccessToken{}, fmt.Errorf("unexpected scopes %v", opts.Scopes)
	}
	return azcore.AccessToken{Token: c.token, ExpiresOn: time.Now().Add(time.Hour)}, nil
}

func TestDialTokenCredential(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer entra-token" || r.Header.Get("api-key") != "" {
			t.Errorf("unexpected auth headers %v", r.Header)
		}
		io.WriteString(w, `{"choices":[{"finish_reason":"stop","message":{"role":"assistant","content":"hi"}}]}`)
	}))
	defer ts.Close()

	tr, err := NewDialTransport(DialConfig{Endpoint: ts.URL, Deployment: "d", Credential: staticCredential{"entra-token"}})
	if err != nil {
		t.Fatal(err)
	}
	resp, err := tr.Complete(context.Background(), Request{Messages: []session.Message{session.User("hi")}})
	if err != nil || resp.Message.Content != "hi" || resp.FinishReason != FinishStop {
		t.Fatalf("unexpected result %+v %v", resp, err)
	}
}
