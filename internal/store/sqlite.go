// ABOUTME: SQLite implementation of the Store interface using modernc.org/sqlite
// ABOUTME: Automatic schema creation, WAL mode, RFC3339 timestamps

package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// timeLayout is RFC3339 with a fixed-width nanosecond fraction. Rows are
// ordered by string comparison on created_at, and RFC3339Nano trims trailing
// zeros, which makes a whole-second timestamp sort after a fractional one in
// the same second.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

// createSchema creates the database tables if they don't exist
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS conversations (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_conversations_user
			ON conversations(user_id, updated_at);

		CREATE TABLE IF NOT EXISTS messages (
			id TEXT PRIMARY KEY,
			conversation_id TEXT NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			created_at TEXT NOT NULL,
			FOREIGN KEY (conversation_id) REFERENCES conversations(id),

			CHECK (role IN ('user', 'assistant'))
		);

		CREATE INDEX IF NOT EXISTS idx_messages_conversation
			ON messages(conversation_id, created_at);

		CREATE TABLE IF NOT EXISTS propositions (
			id TEXT PRIMARY KEY,
			context_id TEXT NOT NULL,
			conversation_id TEXT NOT NULL,
			text TEXT NOT NULL,
			created_at TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_propositions_context
			ON propositions(context_id, created_at);

		CREATE TABLE IF NOT EXISTS analysis_offsets (
			conversation_id TEXT PRIMARY KEY,
			offset_count INTEGER NOT NULL,
			updated_at TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS documents (
			id TEXT PRIMARY KEY,
			path TEXT UNIQUE NOT NULL,
			title TEXT NOT NULL,
			content TEXT NOT NULL,
			ingested_at TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_documents_path ON documents(path);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("executing schema: %w", err)
	}
	return nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	s.logger.Info("closing SQLite store")
	return s.db.Close()
}

// isConstraintViolation checks if the error is a SQLite UNIQUE constraint violation
func isConstraintViolation(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "UNIQUE constraint failed") ||
		strings.Contains(errStr, "constraint failed")
}

// SaveConversation inserts the conversation or, if it already exists,
// refreshes its updated_at timestamp.
func (s *SQLiteStore) SaveConversation(ctx context.Context, conv *Conversation) error {
	query := `
		INSERT INTO conversations (id, user_id, created_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET updated_at = excluded.updated_at
	`

	_, err := s.db.ExecContext(ctx, query,
		conv.ID,
		conv.UserID,
		conv.CreatedAt.UTC().Format(time.RFC3339),
		conv.UpdatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("upserting conversation: %w", err)
	}

	s.logger.Debug("saved conversation", "id", conv.ID, "user", conv.UserID)
	return nil
}

// GetConversation retrieves a conversation by ID.
// Returns ErrNotFound if it doesn't exist.
func (s *SQLiteStore) GetConversation(ctx context.Context, id string) (*Conversation, error) {
	query := `
		SELECT id, user_id, created_at, updated_at
		FROM conversations
		WHERE id = ?
	`

	var conv Conversation
	var createdAtStr, updatedAtStr string

	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&conv.ID,
		&conv.UserID,
		&createdAtStr,
		&updatedAtStr,
	)

	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying conversation: %w", err)
	}

	conv.CreatedAt, err = time.Parse(time.RFC3339, createdAtStr)
	if err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}

	conv.UpdatedAt, err = time.Parse(time.RFC3339, updatedAtStr)
	if err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}

	return &conv, nil
}

// ListConversationsByUser returns the user's conversations, most recently
// updated first.
func (s *SQLiteStore) ListConversationsByUser(ctx context.Context, userID string, limit int) ([]*Conversation, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `
		SELECT id, user_id, created_at, updated_at
		FROM conversations
		WHERE user_id = ?
		ORDER BY updated_at DESC
		LIMIT ?
	`

	rows, err := s.db.QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying conversations: %w", err)
	}
	defer rows.Close()

	var convs []*Conversation
	for rows.Next() {
		var conv Conversation
		var createdAtStr, updatedAtStr string

		if err := rows.Scan(&conv.ID, &conv.UserID, &createdAtStr, &updatedAtStr); err != nil {
			return nil, fmt.Errorf("scanning conversation: %w", err)
		}

		conv.CreatedAt, err = time.Parse(time.RFC3339, createdAtStr)
		if err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		conv.UpdatedAt, err = time.Parse(time.RFC3339, updatedAtStr)
		if err != nil {
			return nil, fmt.Errorf("parsing updated_at: %w", err)
		}

		convs = append(convs, &conv)
	}

	return convs, rows.Err()
}

// SaveMessage persists a single chat message
func (s *SQLiteStore) SaveMessage(ctx context.Context, msg *Message) error {
	query := `
		INSERT INTO messages (id, conversation_id, role, content, created_at)
		VALUES (?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		msg.ID,
		msg.ConversationID,
		msg.Role,
		msg.Content,
		msg.CreatedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("inserting message: %w", err)
	}

	s.logger.Debug("saved message", "id", msg.ID, "conversation", msg.ConversationID, "role", msg.Role)
	return nil
}

// GetConversationMessages returns the conversation's messages in send order,
// oldest first, up to limit.
func (s *SQLiteStore) GetConversationMessages(ctx context.Context, conversationID string, limit int) ([]*Message, error) {
	if limit <= 0 {
		limit = 1000
	}

	query := `
		SELECT id, conversation_id, role, content, created_at
		FROM messages
		WHERE conversation_id = ?
		ORDER BY created_at ASC
		LIMIT ?
	`

	rows, err := s.db.QueryContext(ctx, query, conversationID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying messages: %w", err)
	}
	defer rows.Close()

	var msgs []*Message
	for rows.Next() {
		var msg Message
		var createdAtStr string

		if err := rows.Scan(&msg.ID, &msg.ConversationID, &msg.Role, &msg.Content, &createdAtStr); err != nil {
			return nil, fmt.Errorf("scanning message: %w", err)
		}

		msg.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAtStr)
		if err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}

		msgs = append(msgs, &msg)
	}

	return msgs, rows.Err()
}

// SavePropositions persists a batch of extracted propositions in one
// transaction. An empty batch is a no-op.
func (s *SQLiteStore) SavePropositions(ctx context.Context, props []*Proposition) error {
	if len(props) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO propositions (id, context_id, conversation_id, text, created_at)
		VALUES (?, ?, ?, ?, ?)
	`

	for _, p := range props {
		_, err := tx.ExecContext(ctx, query,
			p.ID,
			p.ContextID,
			p.ConversationID,
			p.Text,
			p.CreatedAt.UTC().Format(timeLayout),
		)
		if err != nil {
			return fmt.Errorf("inserting proposition: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing propositions: %w", err)
	}

	s.logger.Debug("saved propositions", "count", len(props), "context", props[0].ContextID)
	return nil
}

// ListPropositions returns propositions for a context, newest first.
func (s *SQLiteStore) ListPropositions(ctx context.Context, contextID string, limit int) ([]*Proposition, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `
		SELECT id, context_id, conversation_id, text, created_at
		FROM propositions
		WHERE context_id = ?
		ORDER BY created_at DESC
		LIMIT ?
	`

	rows, err := s.db.QueryContext(ctx, query, contextID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying propositions: %w", err)
	}
	defer rows.Close()

	var props []*Proposition
	for rows.Next() {
		var p Proposition
		var createdAtStr string

		if err := rows.Scan(&p.ID, &p.ContextID, &p.ConversationID, &p.Text, &createdAtStr); err != nil {
			return nil, fmt.Errorf("scanning proposition: %w", err)
		}

		p.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAtStr)
		if err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}

		props = append(props, &p)
	}

	return props, rows.Err()
}

// GetAnalysisOffset returns how many messages of the conversation have been
// analyzed. A conversation never analyzed has offset 0, not ErrNotFound.
func (s *SQLiteStore) GetAnalysisOffset(ctx context.Context, conversationID string) (int, error) {
	var offset int
	err := s.db.QueryRowContext(ctx,
		`SELECT offset_count FROM analysis_offsets WHERE conversation_id = ?`,
		conversationID,
	).Scan(&offset)

	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("querying analysis offset: %w", err)
	}
	return offset, nil
}

// SetAnalysisOffset records the analyzed message count for a conversation
func (s *SQLiteStore) SetAnalysisOffset(ctx context.Context, conversationID string, offset int) error {
	query := `
		INSERT INTO analysis_offsets (conversation_id, offset_count, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(conversation_id) DO UPDATE SET
			offset_count = excluded.offset_count,
			updated_at = excluded.updated_at
	`

	_, err := s.db.ExecContext(ctx, query,
		conversationID,
		offset,
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("upserting analysis offset: %w", err)
	}
	return nil
}

// CreateDocument records an ingested document.
// Returns ErrDuplicateDocument if the path was already ingested.
func (s *SQLiteStore) CreateDocument(ctx context.Context, doc *Document) error {
	query := `
		INSERT INTO documents (id, path, title, content, ingested_at)
		VALUES (?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		doc.ID,
		doc.Path,
		doc.Title,
		doc.Content,
		doc.IngestedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		if isConstraintViolation(err) {
			return ErrDuplicateDocument
		}
		return fmt.Errorf("inserting document: %w", err)
	}

	s.logger.Debug("created document", "id", doc.ID, "path", doc.Path)
	return nil
}

// GetDocumentByPath retrieves an ingested document by its source path.
// Returns ErrNotFound if the path was never ingested.
func (s *SQLiteStore) GetDocumentByPath(ctx context.Context, path string) (*Document, error) {
	query := `
		SELECT id, path, title, content, ingested_at
		FROM documents
		WHERE path = ?
	`

	var doc Document
	var ingestedAtStr string

	err := s.db.QueryRowContext(ctx, query, path).Scan(
		&doc.ID,
		&doc.Path,
		&doc.Title,
		&doc.Content,
		&ingestedAtStr,
	)

	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying document: %w", err)
	}

	doc.IngestedAt, err = time.Parse(time.RFC3339, ingestedAtStr)
	if err != nil {
		return nil, fmt.Errorf("parsing ingested_at: %w", err)
	}

	return &doc, nil
}

// ListDocuments returns ingested documents, newest first.
func (s *SQLiteStore) ListDocuments(ctx context.Context, limit int) ([]*Document, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `
		SELECT id, path, title, content, ingested_at
		FROM documents
		ORDER BY ingested_at DESC
		LIMIT ?
	`

	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("querying documents: %w", err)
	}
	defer rows.Close()

	var docs []*Document
	for rows.Next() {
		var doc Document
		var ingestedAtStr string

		if err := rows.Scan(&doc.ID, &doc.Path, &doc.Title, &doc.Content, &ingestedAtStr); err != nil {
			return nil, fmt.Errorf("scanning document: %w", err)
		}

		doc.IngestedAt, err = time.Parse(time.RFC3339, ingestedAtStr)
		if err != nil {
			return nil, fmt.Errorf("parsing ingested_at: %w", err)
		}

		docs = append(docs, &doc)
	}

	return docs, rows.Err()
}
