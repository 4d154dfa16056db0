package llm

import (
	"bufio"
	"encoding/json"
	"io"
	"strings"

	"github.com/m4xw311/dialagent/errors"
)

type chunkToolCall struct {
	Index    int    `json:"index"`
	ID       string `json:"id"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

type chatChunk struct {
	Choices []struct {
		Delta struct {
			Content   *string         `json:"content"`
			ToolCalls []chunkToolCall `json:"tool_calls"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
}

// sseStream reads chat completion chunks from a server-sent event body. Only
// "data:" lines are considered; the literal [DONE] payload ends the stream.
// Chunks without choices (content filter preambles, usage trailers) are
// skipped.
type sseStream struct {
	body    io.ReadCloser
	scanner *bufio.Scanner
	backend string
	cur     Fragment
	err     error
	done    bool
}

func newSSEStream(body io.ReadCloser, backend string) *sseStream {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	return &sseStream{body: body, scanner: scanner, backend: backend}
}

func (s *sseStream) Next() bool {
	if s.done || s.err != nil {
		return false
	}
	for s.scanner.Scan() {
		line := s.scanner.Text()
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "[DONE]" {
			s.done = true
			return false
		}
		if data == "" {
			continue
		}

		var chunk chatChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			s.err = &errors.TransportError{Backend: s.backend, Body: data, Err: errors.Join(errors.ErrMalformedResponse, err)}
			return false
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		choice := chunk.Choices[0]
		frag := Fragment{}
		if choice.Delta.Content != nil {
			frag.Content = *choice.Delta.Content
		}
		if choice.FinishReason != nil {
			frag.FinishReason = *choice.FinishReason
		}
		for _, tc := range choice.Delta.ToolCalls {
			frag.ToolCalls = append(frag.ToolCalls, ToolCallDelta{
				Index:     tc.Index,
				ID:        tc.ID,
				Name:      tc.Function.Name,
				Arguments: tc.Function.Arguments,
			})
		}
		s.cur = frag
		return true
	}

	if err := s.scanner.Err(); err != nil {
		s.err = &errors.TransportError{Backend: s.backend, Err: err}
	} else {
		s.err = &errors.TransportError{Backend: s.backend, Err: errors.ErrStreamTruncated}
	}
	return false
}

func (s *sseStream) Current() Fragment { return s.cur }

func (s *sseStream) Err() error { return s.err }

func (s *sseStream) Close() error {
	s.done = true
	return s.body.Close()
}
