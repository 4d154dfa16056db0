package websearch

import (
	"context"
	"strings"
	"testing"

	"github.com/m4xw311/dialagent/errors"
	"github.com/m4xw311/dialagent/llm"
	"github.com/m4xw311/dialagent/session"
	"github.com/m4xw311/dialagent/tools"
)

func TestWebSearch(t *testing.T) {
	mock := llm.NewMock(llm.MockTurn{Content: "Andrej Karpathy is an AI researcher."})
	tool := New(mock)

	got, err := tool.Execute(context.Background(), map[string]any{"request": "Who is Andrej Karpathy?"})
	if err != nil {
		t.Fatal(err)
	}
	if got != "Andrej Karpathy is an AI researcher." {
		t.Errorf("unexpected result %q", got)
	}

	reqs := mock.Requests()
	if len(reqs) != 1 || len(reqs[0].Tools) != 0 {
		t.Fatalf("expected one request without tools, got %+v", reqs)
	}
	msgs := reqs[0].Messages
	if len(msgs) != 2 || msgs[0].Role != session.RoleSystem || msgs[1].Content != "Who is Andrej Karpathy?" {
		t.Errorf("unexpected messages %+v", msgs)
	}
}

func TestWebSearchSchema(t *testing.T) {
	tool := New(llm.NewMock())
	props, ok := tool.InputSchema()["properties"].(map[string]any)
	if !ok || props["request"] == nil {
		t.Fatalf("unexpected schema %v", tool.InputSchema())
	}
	if tool.Name() != "web_search" {
		t.Errorf("unexpected name %q", tool.Name())
	}
}

func TestWebSearchFailures(t *testing.T) {
	mock := llm.NewMock(llm.MockTurn{Err: &errors.TransportError{Backend: "dial", StatusCode: 500}})
	d := tools.NewDispatcher(tools.NewRegistry(New(mock)), nil, tools.Hooks{})

	results, err := d.Dispatch(context.Background(), []session.ToolCall{
		{ID: "a", Name: "web_search", Arguments: `{"request":"x"}`},
		{ID: "b", Name: "web_search", Arguments: `{"request":"  "}`},
	})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(results[0].Content, "Error executing web_search:") || !strings.Contains(results[0].Content, "HTTP 500") {
		t.Errorf("unexpected result %q", results[0].Content)
	}
	if !strings.Contains(results[1].Content, "request must not be empty") {
		t.Errorf("unexpected result %q", results[1].Content)
	}
	if len(mock.Requests()) != 1 {
		t.Errorf("blank request should not reach the model")
	}
}
