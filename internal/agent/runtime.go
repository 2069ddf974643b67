// ABOUTME: Runtime interface - one agent execution per user message
// ABOUTME: Runtimes emit events to the session's output channel and return the final reply

package agent

import (
	"context"

	"github.com/2389/knowledge-gateway/internal/chat"
)

// Request carries everything a runtime needs for one exchange. History
// already includes the user message that triggered the exchange.
type Request struct {
	ProcessID string
	User      chat.User
	History   []chat.Message
	Out       chat.OutputChannel
}

// Runtime produces the assistant's reply for a user message. Implementations
// emit progress and content events to req.Out as they work, finish with a
// MessageEvent carrying the full reply, and return the same reply so the
// caller can persist it without watching the channel.
type Runtime interface {
	Process(ctx context.Context, req Request) (*chat.Message, error)
}
