// ABOUTME: Package doc for background conversation analysis
// ABOUTME: Fire-and-forget trigger plus the proposition extractor

// Package analysis extracts knowledge from completed exchanges in the
// background. The Trigger accepts notifications from the chat path and runs
// the configured Analyzer asynchronously; no analyzer failure, panic, or
// backlog ever surfaces to the sender. The PropositionExtractor is the one
// analyzer: it reads the unanalyzed tail of a conversation and stores the
// factual statements an LLM finds in it.
package analysis
