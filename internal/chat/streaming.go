// ABOUTME: StreamingChannel - fans runtime events out to live subscribers
// ABOUTME: Connected handshake on attach, isolated per-subscriber failure, idempotent removal

package chat

import (
	"log/slog"
	"sync"
)

// Subscriber is one live delivery endpoint attached to a streaming channel,
// typically an open SSE connection. Implementations must be safe for
// concurrent Deliver calls from the channel and Close from the transport.
type Subscriber interface {
	// ID uniquely identifies this subscriber within its channel.
	ID() string

	// Deliver pushes one event to the endpoint. A non-nil error means the
	// endpoint is gone (closed connection, write failure) and the channel
	// removes the subscriber; it never aborts delivery to others.
	Deliver(event Event) error

	// Closed reports whether the endpoint has terminated. Used to prune
	// stale subscribers when a client reconnects.
	Closed() bool
}

// StreamingChannel multiplexes runtime events to every subscriber currently
// attached to its process ID. Events sent while no subscribers are attached
// are dropped - delivery is at-most-once, best-effort - except the Connected
// handshake, which every newly attached subscriber receives first.
type StreamingChannel struct {
	processID string

	mu          sync.Mutex
	subscribers map[string]Subscriber

	logger *slog.Logger
}

// NewStreamingChannel creates a channel for the given process ID with no
// subscribers attached.
func NewStreamingChannel(processID string, logger *slog.Logger) *StreamingChannel {
	if logger == nil {
		logger = slog.Default()
	}
	return &StreamingChannel{
		processID:   processID,
		subscribers: make(map[string]Subscriber),
		logger:      logger.With("channel", "streaming", "process_id", processID),
	}
}

// ProcessID returns the process this channel is bound to.
func (c *StreamingChannel) ProcessID() string { return c.processID }

// Attach registers a subscriber and immediately delivers the synthetic
// Connected handshake to it, proving the channel is live before any runtime
// event can be missed. Registration and handshake are atomic with respect to
// concurrent sends and other attaches: a subscriber can never observe a
// runtime event before its handshake.
//
// Attach also prunes subscribers whose endpoints have closed, so a
// reconnecting client replaces its dead predecessor rather than piling up
// next to it.
func (c *StreamingChannel) Attach(sub Subscriber) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for id, existing := range c.subscribers {
		if existing.Closed() {
			delete(c.subscribers, id)
			c.logger.Debug("pruned closed subscriber", "sub_id", id)
		}
	}

	c.subscribers[sub.ID()] = sub

	if err := sub.Deliver(NewConnectedEvent(c.processID)); err != nil {
		delete(c.subscribers, sub.ID())
		c.logger.Warn("handshake delivery failed, subscriber dropped",
			"sub_id", sub.ID(), "error", err)
		return
	}

	c.logger.Info("subscriber attached", "sub_id", sub.ID(), "total", len(c.subscribers))
}

// Detach removes a subscriber. Completion, transport error, and timeout all
// converge here; removing an already-removed subscriber is a no-op.
func (c *StreamingChannel) Detach(subID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.subscribers[subID]; !ok {
		return
	}
	delete(c.subscribers, subID)
	c.logger.Debug("subscriber detached", "sub_id", subID, "total", len(c.subscribers))
}

// Send delivers the event to every currently attached subscriber in call
// order. A delivery failure is isolated to that subscriber: it is logged and
// the subscriber removed, while the remaining subscribers still receive the
// event.
func (c *StreamingChannel) Send(event Event) {
	c.mu.Lock()
	if len(c.subscribers) == 0 {
		c.mu.Unlock()
		c.logger.Debug("no subscribers attached, dropping event", "event", event.EventName())
		return
	}

	type target struct {
		id  string
		sub Subscriber
	}
	targets := make([]target, 0, len(c.subscribers))
	for id, sub := range c.subscribers {
		targets = append(targets, target{id: id, sub: sub})
	}
	c.mu.Unlock()

	for _, t := range targets {
		if err := t.sub.Deliver(event); err != nil {
			c.logger.Warn("delivery failed, removing subscriber",
				"sub_id", t.id, "event", event.EventName(), "error", err)
			c.Detach(t.id)
		}
	}
}

// SubscriberCount returns the number of currently attached subscribers.
func (c *StreamingChannel) SubscriberCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.subscribers)
}
