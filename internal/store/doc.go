// ABOUTME: Package doc for the persistence layer
// ABOUTME: Store interface plus the SQLite implementation

// Package store persists conversations, messages, extracted propositions,
// analysis offsets, and ingested documents. The Store interface is the only
// thing callers see; SQLiteStore is the single implementation.
package store
