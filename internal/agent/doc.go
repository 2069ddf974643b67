// ABOUTME: Package doc for the agent runtime abstraction
// ABOUTME: OpenAI-backed and scripted implementations

// Package agent defines the Runtime that produces assistant replies. A
// runtime emits progress, content, and diagnostic events to the session's
// output channel while it works, and returns the final message.
package agent
