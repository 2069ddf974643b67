// ABOUTME: Store interface and data types for knowledge-gateway persistence
// ABOUTME: Conversations, messages, extracted propositions, analysis offsets, documents

package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// ErrDuplicateDocument is returned when ingesting a document whose source path
// was already ingested
var ErrDuplicateDocument = errors.New("document already ingested")

// Conversation is the persisted record of a chat conversation
type Conversation struct {
	ID        string
	UserID    string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Message is a single persisted chat message within a conversation
type Message struct {
	ID             string
	ConversationID string
	Role           string // "user" or "assistant"
	Content        string
	CreatedAt      time.Time
}

// Proposition is one extracted knowledge statement, partitioned by the
// user's context key
type Proposition struct {
	ID             string
	ContextID      string
	ConversationID string
	Text           string
	CreatedAt      time.Time
}

// Document records an ingested source file. Ingestion never refreshes: a
// path that already has a row is skipped on later runs.
type Document struct {
	ID         string
	Path       string
	Title      string
	Content    string
	IngestedAt time.Time
}

// Store defines the interface for gateway persistence
type Store interface {
	// Conversations
	SaveConversation(ctx context.Context, conv *Conversation) error
	GetConversation(ctx context.Context, id string) (*Conversation, error)
	ListConversationsByUser(ctx context.Context, userID string, limit int) ([]*Conversation, error)

	// Messages
	SaveMessage(ctx context.Context, msg *Message) error
	GetConversationMessages(ctx context.Context, conversationID string, limit int) ([]*Message, error)

	// Propositions (extracted knowledge)
	SavePropositions(ctx context.Context, props []*Proposition) error
	ListPropositions(ctx context.Context, contextID string, limit int) ([]*Proposition, error)

	// Analysis offsets track how many messages of a conversation have been
	// analyzed, so each run only looks at the new window.
	GetAnalysisOffset(ctx context.Context, conversationID string) (int, error)
	SetAnalysisOffset(ctx context.Context, conversationID string, offset int) error

	// Documents
	CreateDocument(ctx context.Context, doc *Document) error
	GetDocumentByPath(ctx context.Context, path string) (*Document, error)
	ListDocuments(ctx context.Context, limit int) ([]*Document, error)

	// Close releases any resources held by the store
	Close() error
}
