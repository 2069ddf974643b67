// ABOUTME: SSE subscriber - one open event-stream connection on a streaming channel
// ABOUTME: Buffered delivery with a writer loop; slow or gone clients are detached

package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/google/uuid"

	"github.com/2389/knowledge-gateway/internal/chat"
)

// Subscriber delivery errors. Either one causes the streaming channel to
// detach the subscriber.
var (
	errSubscriberClosed = errors.New("subscriber closed")
	errSubscriberFull   = errors.New("subscriber buffer full")
)

// sseSubscriber adapts one HTTP event-stream connection to the
// chat.Subscriber interface. Deliver enqueues without blocking; the serve
// loop drains the queue onto the wire. A full queue means the client is not
// keeping up and the subscriber reports itself undeliverable.
type sseSubscriber struct {
	id     string
	events chan chat.Event
	done   chan struct{}
	once   sync.Once
}

func newSSESubscriber() *sseSubscriber {
	return &sseSubscriber{
		id:     uuid.New().String(),
		events: make(chan chat.Event, 64),
		done:   make(chan struct{}),
	}
}

func (s *sseSubscriber) ID() string { return s.id }

func (s *sseSubscriber) Deliver(event chat.Event) error {
	select {
	case <-s.done:
		return errSubscriberClosed
	default:
	}

	select {
	case s.events <- event:
		return nil
	default:
		return errSubscriberFull
	}
}

func (s *sseSubscriber) Closed() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

func (s *sseSubscriber) close() {
	s.once.Do(func() { close(s.done) })
}

// serve writes queued events to the response until the request context ends.
// Each frame carries an id line so clients can resume-detect, the event name,
// and the JSON payload.
func (s *sseSubscriber) serve(ctx context.Context, w http.ResponseWriter, flusher http.Flusher) {
	defer s.close()

	for {
		select {
		case <-ctx.Done():
			return
		case event := <-s.events:
			if err := writeSSEEvent(w, event); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

// writeSSEEvent writes a single event as an SSE frame.
func writeSSEEvent(w http.ResponseWriter, event chat.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshaling SSE data: %w", err)
	}

	if _, err := fmt.Fprintf(w, "id: %s\nevent: %s\ndata: %s\n\n", uuid.New().String(), event.EventName(), data); err != nil {
		return fmt.Errorf("writing SSE frame: %w", err)
	}
	return nil
}
