// ABOUTME: ScriptedRuntime - deterministic runtime for local development and tests
// ABOUTME: Emits progress, chunked content, then echoes a canned reply

package agent

import (
	"context"
	"fmt"
	"time"

	"github.com/2389/knowledge-gateway/internal/chat"
)

// ScriptedRuntime produces a deterministic reply without calling any model.
// Used by the scripted provider for local development, and by tests that need
// a runtime with predictable output.
type ScriptedRuntime struct {
	// Reply overrides the default echo reply when non-empty.
	Reply string

	// ChunkSize controls how the reply is split into ContentEvents.
	// Zero disables content chunking.
	ChunkSize int
}

// Process emits a progress event, optional content chunks, and the final
// message.
func (r *ScriptedRuntime) Process(ctx context.Context, req Request) (*chat.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	req.Out.Send(chat.ProgressEvent{Process: req.ProcessID, Message: "Preparing a reply"})

	content := r.Reply
	if content == "" {
		last := ""
		if len(req.History) > 0 {
			last = req.History[len(req.History)-1].Content
		}
		content = fmt.Sprintf("You said: %s", last)
	}

	if r.ChunkSize > 0 {
		for start := 0; start < len(content); start += r.ChunkSize {
			end := min(start+r.ChunkSize, len(content))
			req.Out.Send(chat.ContentEvent{Process: req.ProcessID, Content: content[start:end]})
		}
	}

	reply := chat.Message{
		Role:      chat.RoleAssistant,
		Content:   content,
		Timestamp: time.Now(),
	}
	req.Out.Send(chat.MessageEvent{Process: req.ProcessID, Message: reply})
	return &reply, nil
}
