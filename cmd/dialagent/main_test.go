package main

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/m4xw311/dialagent/config"
	"github.com/m4xw311/dialagent/llm"
	"github.com/m4xw311/dialagent/userdir"
	"go.uber.org/zap/zaptest"
)

func init() {
	color.NoColor = true
}

func execute(t *testing.T, input string, args ...string) (string, error) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	t.Chdir(t.TempDir())

	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetArgs(append(args, "--log-level", "error"))
	cmd.SetIn(strings.NewReader(input))
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	err := cmd.Execute()
	return out.String(), err
}

func TestChatWithMockBackend(t *testing.T) {
	out, err := execute(t, "hello\n/quit\n", "chat", "--llm", "mock")
	if err != nil {
		t.Fatalf("chat failed: %v", err)
	}
	if !strings.Contains(out, "I am a mock LLM. You said: 'hello'.") {
		t.Errorf("output missing mock reply:\n%s", out)
	}
}

func TestBareRootStartsChatWithPrompt(t *testing.T) {
	out, err := execute(t, "", "--llm", "mock", "--delivery", "sync", "hi", "there")
	if err != nil {
		t.Fatalf("root failed: %v", err)
	}
	if !strings.Contains(out, "Assistant: I am a mock LLM. You said: 'hi there'.") {
		t.Errorf("output missing reply to initial prompt:\n%s", out)
	}
}

func TestChatRejectsInvalidFlags(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"mode", []string{"chat", "--llm", "mock", "--mode", "sometimes"}},
		{"verbosity", []string{"chat", "--llm", "mock", "--tool-verbosity", "loud"}},
		{"delivery", []string{"chat", "--llm", "mock", "--delivery", "carrier"}},
		{"backend", []string{"chat", "--llm", "gemini"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := execute(t, "", tt.args...); err == nil {
				t.Error("expected an error")
			}
		})
	}
}

func TestSubcommands(t *testing.T) {
	cmd := newRootCmd()
	for _, name := range []string{"chat", "acp", "userservice"} {
		found, _, err := cmd.Find([]string{name})
		if err != nil || found.Name() != name {
			t.Errorf("subcommand %q not registered", name)
		}
	}
}

func TestNewTransport(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.LLMClient = "mock"
	transport, err := newTransport(context.Background(), cfg, cfg.Model, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("newTransport failed: %v", err)
	}
	if _, ok := transport.(*llm.Mock); !ok {
		t.Errorf("got %T, want *llm.Mock", transport)
	}

	cfg.LLMClient = "unknown"
	if _, err := newTransport(context.Background(), cfg, cfg.Model, zaptest.NewLogger(t)); err == nil {
		t.Error("expected an error for an unknown backend")
	}
}

func TestOpenDirectory(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.UserService.URL = "http://127.0.0.1:8041"
	rt := &runtime{}
	dir, err := openDirectory(cfg, rt)
	if err != nil {
		t.Fatalf("openDirectory failed: %v", err)
	}
	if _, ok := dir.(*userdir.Client); !ok {
		t.Errorf("got %T, want *userdir.Client", dir)
	}

	cfg.UserService.URL = ""
	cfg.UserService.DBPath = filepath.Join(t.TempDir(), "nested", "users.db")
	dir, err = openDirectory(cfg, rt)
	if err != nil {
		t.Fatalf("openDirectory failed: %v", err)
	}
	if _, ok := dir.(*userdir.BoltStore); !ok {
		t.Errorf("got %T, want *userdir.BoltStore", dir)
	}
	if len(rt.closers) != 1 {
		t.Errorf("closers = %d, want 1", len(rt.closers))
	}
	rt.Close()
}
