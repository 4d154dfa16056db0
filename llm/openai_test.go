package llm

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/m4xw311/dialagent/errors"
	"github.com/m4xw311/dialagent/session"
)

func newOpenAIServer(t *testing.T, handler http.HandlerFunc) *OpenAITransport {
	t.Helper()
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)
	tr, err := NewOpenAITransport(OpenAIConfig{Model: "gpt-4o", APIKey: "test-key", BaseURL: ts.URL})
	if err != nil {
		t.Fatalf("NewOpenAITransport: %v", err)
	}
	return tr
}

func TestOpenAIComplete(t *testing.T) {
	tr := newOpenAIServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var body struct {
			Model    string           `json:"model"`
			Messages []map[string]any `json:"messages"`
			Tools    []map[string]any `json:"tools"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if body.Model != "gpt-4o" || len(body.Messages) != 4 || len(body.Tools) != 1 {
			t.Errorf("unexpected request %+v", body)
		}
		if body.Messages[3]["role"] != "tool" || body.Messages[3]["tool_call_id"] != "call_1" {
			t.Errorf("unexpected tool message %v", body.Messages[3])
		}

		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"id":"cmpl","object":"chat.completion","created":0,"model":"gpt-4o",
			"choices":[{"index":0,"finish_reason":"tool_calls","message":{"role":"assistant","content":null,
			"tool_calls":[{"id":"call_9","type":"function","function":{"name":"search_users","arguments":"{}"}}]}}]}`)
	})

	resp, err := tr.Complete(context.Background(), sampleRequest())
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.FinishReason != FinishToolCalls {
		t.Errorf("unexpected finish reason %q", resp.FinishReason)
	}
	calls := resp.Message.ToolCalls
	if len(calls) != 1 || calls[0].ID != "call_9" || calls[0].Name != "search_users" {
		t.Errorf("unexpected calls %+v", calls)
	}
}

func TestOpenAICompleteRejected(t *testing.T) {
	tr := newOpenAIServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		io.WriteString(w, `{"error":{"message":"bad tool schema","type":"invalid_request_error"}}`)
	})
	_, err := tr.Complete(context.Background(), sampleRequest())
	var te *errors.TransportError
	if !errors.As(err, &te) || te.StatusCode != http.StatusBadRequest || te.Backend != "openai" {
		t.Fatalf("expected openai TransportError with status, got %v", err)
	}
}

func TestOpenAIStream(t *testing.T) {
	tr := newOpenAIServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		io.WriteString(w, `data: {"id":"c","object":"chat.completion.chunk","created":0,"model":"m","choices":[{"index":0,"delta":{"content":"Hi "}}]}

data: {"id":"c","object":"chat.completion.chunk","created":0,"model":"m","choices":[]}

data: {"id":"c","object":"chat.completion.chunk","created":0,"model":"m","choices":[{"index":0,"delta":{"tool_calls":[{"index":0,"id":"call_1","type":"function","function":{"name":"add_user","arguments":"{\"name\":"}}]}}]}

data: {"id":"c","object":"chat.completion.chunk","created":0,"model":"m","choices":[{"index":0,"delta":{"tool_calls":[{"index":0,"function":{"arguments":"\"A\"}"}}]},"finish_reason":"tool_calls"}]}

data: [DONE]

`)
	})

	stream, err := tr.Stream(context.Background(), Request{Messages: []session.Message{session.User("hi")}})
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	defer stream.Close()
	var acc Accumulator
	for stream.Next() {
		acc.Add(stream.Current())
	}
	if err := stream.Err(); err != nil {
		t.Fatalf("stream error: %v", err)
	}
	calls := acc.ToolCalls()
	if acc.Content() != "Hi " || len(calls) != 1 || calls[0].Arguments != `{"name":"A"}` {
		t.Errorf("unexpected accumulation %q %+v", acc.Content(), calls)
	}
}

func TestConvertMessagesToOpenaiContent(t *testing.T) {
	req := sampleRequest()
	msgs := convertMessagesToOpenaiContent(req.Messages)
	if len(msgs) != 4 {
		t.Fatalf("expected 4 messages, got %d", len(msgs))
	}
	if msgs[0].OfSystem == nil || msgs[1].OfUser == nil || msgs[2].OfAssistant == nil || msgs[3].OfTool == nil {
		t.Fatalf("unexpected message kinds %+v", msgs)
	}
	if got := msgs[2].OfAssistant.ToolCalls; len(got) != 1 || got[0].OfFunction.ID != "call_1" {
		t.Errorf("unexpected assistant tool calls %+v", got)
	}
	if msgs[3].OfTool.ToolCallID != "call_1" {
		t.Errorf("unexpected tool call id %q", msgs[3].OfTool.ToolCallID)
	}
	if convertSpecsToOpenAITools(nil) != nil {
		t.Error("no specs should produce no tools")
	}
}
