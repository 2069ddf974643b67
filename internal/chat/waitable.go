// ABOUTME: WaitableChannel - one-shot output channel with a single result slot
// ABOUTME: First MessageEvent wins; the slot is re-armed per exchange and reset after

package chat

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrResponseTimeout is returned when a one-shot wait exceeds its bound.
var ErrResponseTimeout = errors.New("timed out waiting for agent response")

// WaitableChannel collects the agent's terminal message for a single pending
// exchange. The caller arms the channel with Expect before dispatching to the
// runtime, then blocks in AwaitResult. The first MessageEvent sent while the
// channel is armed resolves the wait; later events for the same exchange are
// logged and dropped. After resolution or timeout the slot is disarmed, so
// the same channel instance serves the session's next message without a
// stale result leaking into the next wait.
//
// Safe for a single concurrent sender and a single concurrent waiter on
// different goroutines.
type WaitableChannel struct {
	mu     sync.Mutex
	armed  bool
	result chan string

	logger *slog.Logger
}

// NewWaitableChannel creates an unarmed one-shot channel.
func NewWaitableChannel(logger *slog.Logger) *WaitableChannel {
	if logger == nil {
		logger = slog.Default()
	}
	return &WaitableChannel{
		logger: logger.With("channel", "waitable"),
	}
}

// Expect arms the channel for the next exchange, replacing any previous
// result slot. Must be called before the runtime is invoked so an early
// MessageEvent cannot be missed.
func (c *WaitableChannel) Expect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.armed = true
	c.result = make(chan string, 1)
}

// Send accepts a runtime event. Only a MessageEvent resolves the pending
// wait; everything else (including unrecognized kinds) is logged.
func (c *WaitableChannel) Send(event Event) {
	switch e := event.(type) {
	case MessageEvent:
		c.resolve(e)
	case ContentEvent:
		c.logger.Debug("content chunk", "process_id", e.Process, "len", len(e.Content))
	case ProgressEvent:
		c.logger.Info("agent progress", "process_id", e.Process, "message", e.Message)
	case LoggingEvent:
		c.logger.Debug("agent log", "process_id", e.Process, "message", e.Message)
	default:
		c.logger.Info("unrecognized event kind", "event", event.EventName(), "process_id", event.ProcessID())
	}
}

// resolve delivers the terminal message into the armed slot. The first
// message wins; a second message for the same wait, or a message arriving
// after timeout has disarmed the slot, is dropped.
func (c *WaitableChannel) resolve(e MessageEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.armed {
		c.logger.Info("dropping message event, no pending wait",
			"process_id", e.Process,
			"content_len", len(e.Message.Content))
		return
	}

	c.result <- e.Message.Content
	c.armed = false
}

// AwaitResult blocks until the armed slot resolves, the timeout elapses, or
// ctx is cancelled. Timeout and cancellation disarm the slot so a late event
// cannot pollute the next exchange; the runtime's in-flight work is not
// cancelled, its late events are simply dropped.
func (c *WaitableChannel) AwaitResult(ctx context.Context, timeout time.Duration) (string, error) {
	c.mu.Lock()
	if !c.armed && c.result == nil {
		c.mu.Unlock()
		return "", errors.New("await on unarmed channel")
	}
	result := c.result
	c.mu.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case content := <-result:
		return content, nil
	case <-timer.C:
		c.disarm()
		return "", ErrResponseTimeout
	case <-ctx.Done():
		c.disarm()
		return "", ctx.Err()
	}
}

func (c *WaitableChannel) disarm() {
	c.mu.Lock()
	c.armed = false
	c.mu.Unlock()
}
