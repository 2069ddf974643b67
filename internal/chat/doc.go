// ABOUTME: Core session and output-channel bridge for the chat path
// ABOUTME: Converts async agent event streams into blocking replies or SSE fan-out

// Package chat implements the session/output-channel bridge between HTTP
// clients and the asynchronous agent runtime.
//
// The runtime produces a stream of discrete events (progress, partial
// content, diagnostics, and a terminal assistant message) for each exchange.
// Clients consume those events in one of two modes:
//
//   - One-shot: a WaitableChannel collects the first terminal message and
//     hands it to a blocked caller, bounded by a timeout.
//   - Streaming: a StreamingChannel fans every event out to the live
//     subscribers attached to the session's process ID.
//
// The Registry maps process and conversation IDs to live sessions, each
// binding a user, a conversation history, and exactly one output channel.
// Sessions are never shared across users: a lookup that resolves to a
// session owned by someone else forks a fresh session instead.
package chat
