// ABOUTME: User identity and Session - the live binding of user, conversation, channel
// ABOUTME: A session is addressed by its ProcessID for the lifetime of the agent context

package chat

import (
	"sync/atomic"
	"time"
)

// User is the identity that owns a session. Users are created by the
// authentication layer and are immutable apart from their process binding,
// which the Registry tracks.
type User struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	Username    string `json:"username"`
	Email       string `json:"email,omitempty"`
}

// Context returns the analysis context identifier for this user. Extracted
// knowledge is partitioned per user by this key.
func (u User) Context() string {
	return u.ID + "_default_context"
}

// Session binds a user, a conversation history, and exactly one output
// channel, addressed by a ProcessID unique to one live agent execution
// context. Rebinding the delivery target on reconnect replaces where events
// go, never the conversation history.
type Session struct {
	ProcessID    string
	Conversation *Conversation
	User         User
	Channel      OutputChannel

	lastActive atomic.Int64 // unix nanos, maintained by the Registry
}

func (s *Session) touch() {
	s.lastActive.Store(time.Now().UnixNano())
}

// LastActive reports when the session was last used.
func (s *Session) LastActive() time.Time {
	return time.Unix(0, s.lastActive.Load())
}
