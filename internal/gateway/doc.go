// ABOUTME: Package doc for the HTTP gateway
// ABOUTME: Wires sessions, runtime, analysis, and persistence behind the API

// Package gateway is the HTTP surface of the server. It composes the session
// registry, agent runtime, analysis trigger, user directory, ingest service,
// and store behind the chat, knowledge, and admin endpoints, and owns server
// startup and graceful shutdown.
package gateway
