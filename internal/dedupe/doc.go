// ABOUTME: Package doc for duplicate suppression
// ABOUTME: TTL cache with mark-and-check semantics

// Package dedupe provides a TTL cache for suppressing duplicate work.
package dedupe
