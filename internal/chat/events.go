// ABOUTME: Output channel event variants emitted by the agent runtime
// ABOUTME: Open set - unknown kinds are tolerated and logged, never rejected

package chat

// Event is a single output-channel event produced by the agent runtime.
// The set of kinds is open for forward compatibility: channels must handle
// events they do not recognize by logging them, not by failing the send.
type Event interface {
	// EventName is the wire name of the event, used as the SSE event name.
	EventName() string

	// ProcessID identifies the agent execution context that produced the event.
	ProcessID() string
}

// MessageEvent carries the final assistant message for an exchange.
// In one-shot mode the first MessageEvent resolves the pending wait.
type MessageEvent struct {
	Process string  `json:"processId"`
	Message Message `json:"message"`
}

func (e MessageEvent) EventName() string { return "MessageOutputChannelEvent" }
func (e MessageEvent) ProcessID() string { return e.Process }

// ContentEvent carries a partial content chunk while the runtime is still
// producing the final message.
type ContentEvent struct {
	Process string `json:"processId"`
	Content string `json:"content"`
}

func (e ContentEvent) EventName() string { return "ContentOutputChannelEvent" }
func (e ContentEvent) ProcessID() string { return e.Process }

// ProgressEvent carries a human-readable status update.
type ProgressEvent struct {
	Process string `json:"processId"`
	Message string `json:"message"`
}

func (e ProgressEvent) EventName() string { return "ProgressOutputChannelEvent" }
func (e ProgressEvent) ProcessID() string { return e.Process }

// LoggingEvent carries diagnostic text from the runtime.
type LoggingEvent struct {
	Process string `json:"processId"`
	Message string `json:"message"`
}

func (e LoggingEvent) EventName() string { return "LoggingOutputChannelEvent" }
func (e LoggingEvent) ProcessID() string { return e.Process }

// ConnectedEvent is the handshake sent to a newly attached subscriber.
// It is synthesized by the StreamingChannel, never by the runtime, and is
// always the first event a subscriber receives.
type ConnectedEvent struct {
	Process string `json:"processId"`
	Message string `json:"message"`
}

func (e ConnectedEvent) EventName() string { return "Connected" }
func (e ConnectedEvent) ProcessID() string { return e.Process }

// NewConnectedEvent builds the handshake event for a process.
func NewConnectedEvent(processID string) ConnectedEvent {
	return ConnectedEvent{
		Process: processID,
		Message: "Connected output channel",
	}
}

// OutputChannel is the sink the agent runtime writes events to.
// Send never returns an error: delivery problems are local to the channel
// implementation and must not propagate back into the runtime.
type OutputChannel interface {
	Send(event Event)
}
