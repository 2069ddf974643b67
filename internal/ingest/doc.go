// ABOUTME: Package doc for document ingestion
// ABOUTME: Walks a data directory and stores markdown/text documents

// Package ingest loads source documents from a data directory into the
// store. Markdown is reduced to a title and plain text; a path that was
// already ingested is never refreshed.
package ingest
