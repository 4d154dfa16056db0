// Package websearch provides a tool that answers web questions with a
// search-enabled chat deployment.
package websearch

import (
	"context"
	"strings"

	"github.com/m4xw311/dialagent/errors"
	"github.com/m4xw311/dialagent/llm"
	"github.com/m4xw311/dialagent/session"
	"github.com/m4xw311/dialagent/tools"
)

const instructions = `You are a web search assistant. Search the web for the request and answer with the facts you found.
Be concise, prefer recent sources, and say plainly when nothing relevant was found.`

type args struct {
	Request string `json:"request" jsonschema_description:"The search request or question, in plain words."`
}

var schema = tools.GenerateSchema[args]()

// Tool forwards a request to a transport bound to a search-capable model.
type Tool struct {
	transport llm.Transport
}

func New(transport llm.Transport) *Tool {
	return &Tool{transport: transport}
}

func (t *Tool) Name() string { return "web_search" }

func (t *Tool) Description() string {
	return "Searches the web for up to date public information, e.g. to enrich a user profile."
}

func (t *Tool) InputSchema() map[string]any { return schema }

func (t *Tool) Execute(ctx context.Context, raw map[string]any) (string, error) {
	in, err := tools.DecodeArgs[args](raw)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(in.Request) == "" {
		return "", errors.New("request must not be empty")
	}

	resp, err := t.transport.Complete(ctx, llm.Request{Messages: []session.Message{
		session.System(instructions),
		session.User(in.Request),
	}})
	if err != nil {
		return "", errors.Wrapf(err, "web search failed")
	}
	return resp.Message.Content, nil
}
