package session

import "slices"

// Transcript is an append-only conversation history. It is owned by the
// caller and is not safe for concurrent mutation; turns must be serialized.
type Transcript struct {
	messages []Message
}

// NewTranscript returns a transcript seeded with msgs.
func NewTranscript(msgs ...Message) *Transcript {
	t := &Transcript{}
	t.Append(msgs...)
	return t
}

// Append adds entries to the end. Entries are copied so later changes to the
// caller's values never reach the history.
func (t *Transcript) Append(msgs ...Message) {
	for _, m := range msgs {
		m.ToolCalls = slices.Clone(m.ToolCalls)
		t.messages = append(t.messages, m)
	}
}

// Messages returns a copy of the history.
func (t *Transcript) Messages() []Message {
	out := make([]Message, len(t.messages))
	for i, m := range t.messages {
		m.ToolCalls = slices.Clone(m.ToolCalls)
		out[i] = m
	}
	return out
}

func (t *Transcript) Len() int { return len(t.messages) }

// Last returns the most recent entry.
func (t *Transcript) Last() (Message, bool) {
	if len(t.messages) == 0 {
		return Message{}, false
	}
	return t.messages[len(t.messages)-1], true
}

// Validate checks the tool call pairing of the whole history.
func (t *Transcript) Validate() error { return Validate(t.messages) }

// ToWire serializes the history for a chat completions request.
func (t *Transcript) ToWire() []WireMessage { return ToWire(t.messages) }
