package session

import (
	"errors"
	"fmt"
)

// ErrInvalidConversation is returned when a conversation breaks the
// system-first or tool-correlation rules.
var ErrInvalidConversation = errors.New("invalid conversation")

// Conversation is an append-only message sequence. It is owned by whoever
// is extending it and must not be shared between goroutines.
type Conversation struct {
	messages []Message
}

// NewConversation starts a conversation with a system message
func NewConversation(system string) *Conversation {
	return &Conversation{messages: []Message{SystemMessage(system)}}
}

// FromMessages builds a conversation from a copy of msgs. No validation is
// done here; call Validate before using it for a turn.
func FromMessages(msgs []Message) *Conversation {
	c := &Conversation{messages: make([]Message, 0, len(msgs))}
	for _, m := range msgs {
		c.messages = append(c.messages, m.clone())
	}
	return c
}

// Append adds messages to the end of the conversation
func (c *Conversation) Append(msgs ...Message) {
	for _, m := range msgs {
		c.messages = append(c.messages, m.clone())
	}
}

// Messages returns a copy of the message list
func (c *Conversation) Messages() []Message {
	out := make([]Message, len(c.messages))
	for i, m := range c.messages {
		out[i] = m.clone()
	}
	return out
}

// Len returns the number of messages
func (c *Conversation) Len() int {
	return len(c.messages)
}

// Last returns the final message, if any
func (c *Conversation) Last() (Message, bool) {
	if len(c.messages) == 0 {
		return Message{}, false
	}
	return c.messages[len(c.messages)-1].clone(), true
}

// Since returns copies of the messages appended after the first n
func (c *Conversation) Since(n int) []Message {
	if n >= len(c.messages) {
		return nil
	}
	if n < 0 {
		n = 0
	}
	return FromMessages(c.messages[n:]).messages
}

// Clone returns an independent copy
func (c *Conversation) Clone() *Conversation {
	return FromMessages(c.messages)
}

// Validate checks the structural invariants: the first message is a system
// message, roles are known, and every tool message answers a tool call
// issued by an earlier assistant message.
func (c *Conversation) Validate() error {
	if c == nil || len(c.messages) == 0 {
		return fmt.Errorf("%w: empty", ErrInvalidConversation)
	}
	if c.messages[0].Role != RoleSystem {
		return fmt.Errorf("%w: first message has role %q, want %q", ErrInvalidConversation, c.messages[0].Role, RoleSystem)
	}

	issued := make(map[string]bool)
	for i, m := range c.messages {
		switch m.Role {
		case RoleSystem, RoleUser:
		case RoleAssistant:
			for _, tc := range m.ToolCalls {
				issued[tc.ID] = true
			}
		case RoleTool:
			if m.ToolCallID == "" || !issued[m.ToolCallID] {
				return fmt.Errorf("%w: tool message %d references unknown tool call %q", ErrInvalidConversation, i, m.ToolCallID)
			}
		default:
			return fmt.Errorf("%w: message %d has unknown role %q", ErrInvalidConversation, i, m.Role)
		}
	}
	return nil
}
