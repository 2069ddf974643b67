// ABOUTME: Tests for the SSE subscriber adapter
// ABOUTME: Covers buffering, overflow, close semantics, and frame format

package gateway

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/knowledge-gateway/internal/chat"
)

// syncWriter is a ResponseWriter safe to read while serve is writing.
type syncWriter struct {
	mu sync.Mutex
	sb strings.Builder
}

func (w *syncWriter) Header() http.Header { return http.Header{} }
func (w *syncWriter) WriteHeader(int)     {}
func (w *syncWriter) Flush()              {}

func (w *syncWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.sb.Write(p)
}

func (w *syncWriter) String() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.sb.String()
}

func TestSSESubscriber_DeliverBuffers(t *testing.T) {
	sub := newSSESubscriber()
	defer sub.close()

	require.NoError(t, sub.Deliver(chat.NewConnectedEvent("proc-1")))
	assert.False(t, sub.Closed())
}

func TestSSESubscriber_OverflowReportsError(t *testing.T) {
	sub := newSSESubscriber()
	defer sub.close()

	for range cap(sub.events) {
		require.NoError(t, sub.Deliver(chat.ContentEvent{Process: "proc-1", Content: "x"}))
	}
	assert.ErrorIs(t, sub.Deliver(chat.ContentEvent{Process: "proc-1", Content: "y"}), errSubscriberFull)
}

func TestSSESubscriber_DeliverAfterClose(t *testing.T) {
	sub := newSSESubscriber()
	sub.close()

	assert.True(t, sub.Closed())
	assert.ErrorIs(t, sub.Deliver(chat.NewConnectedEvent("proc-1")), errSubscriberClosed)
}

func TestSSESubscriber_ServeWritesFrames(t *testing.T) {
	sub := newSSESubscriber()
	require.NoError(t, sub.Deliver(chat.ContentEvent{Process: "proc-1", Content: "chunk"}))

	out := &syncWriter{}
	ctx, cancel := context.WithCancel(t.Context())

	done := make(chan struct{})
	go func() {
		sub.serve(ctx, out, out)
		close(done)
	}()

	require.Eventually(t, func() bool {
		return strings.Contains(out.String(), "event: ContentOutputChannelEvent")
	}, time.Second, 5*time.Millisecond)

	cancel()
	<-done
	assert.True(t, sub.Closed())

	body := out.String()
	assert.Contains(t, body, "id: ")
	assert.Contains(t, body, `data: {"processId":"proc-1","content":"chunk"}`)
}
