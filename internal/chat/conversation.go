// ABOUTME: Conversation and message model - append-only ordered history
// ABOUTME: Snapshots are value copies so readers never race with appends

package chat

import (
	"sync"
	"time"
)

// Role identifies the author side of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is a single entry in a conversation.
type Message struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Conversation is an append-only ordered message history, identified by a
// stable ID that survives reconnects and process replacement.
//
// Send-message calls against one session are expected to be serialized by
// the caller (one in flight per session); the mutex only guards appends
// against concurrent snapshot reads.
type Conversation struct {
	id string

	mu       sync.RWMutex
	messages []Message
}

// NewConversation creates an empty conversation with the given ID.
func NewConversation(id string) *Conversation {
	return &Conversation{id: id}
}

// ID returns the conversation's stable identifier.
func (c *Conversation) ID() string { return c.id }

// Append adds a message to the end of the history and returns it with the
// timestamp filled in if it was zero.
func (c *Conversation) Append(msg Message) Message {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}

	c.mu.Lock()
	c.messages = append(c.messages, msg)
	c.mu.Unlock()
	return msg
}

// Messages returns a copy of the full history in append order.
func (c *Conversation) Messages() []Message {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]Message, len(c.messages))
	copy(out, c.messages)
	return out
}

// Len returns the number of messages in the history.
func (c *Conversation) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.messages)
}

// LastIfFromUser returns the last message if it was authored by the user,
// or nil otherwise. The runtime uses this to ignore spurious triggers.
func (c *Conversation) LastIfFromUser() *Message {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if len(c.messages) == 0 {
		return nil
	}
	last := c.messages[len(c.messages)-1]
	if last.Role != RoleUser {
		return nil
	}
	return &last
}
