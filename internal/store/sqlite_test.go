// ABOUTME: Tests for the SQLite store implementation
// ABOUTME: Covers conversation/message persistence, propositions, offsets, documents

package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestNewSQLiteStore(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "subdir", "nested", "test.db")

	store, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	defer store.Close()

	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Error("database file was not created in nested directory")
	}
}

func TestSaveAndGetConversation(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Second)
	conv := &Conversation{
		ID:        "conv-123",
		UserID:    "jettro",
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := store.SaveConversation(ctx, conv); err != nil {
		t.Fatalf("SaveConversation failed: %v", err)
	}

	got, err := store.GetConversation(ctx, "conv-123")
	if err != nil {
		t.Fatalf("GetConversation failed: %v", err)
	}
	if got.UserID != "jettro" {
		t.Errorf("UserID mismatch: got %q, want %q", got.UserID, "jettro")
	}
	if !got.CreatedAt.Equal(now) {
		t.Errorf("CreatedAt mismatch: got %v, want %v", got.CreatedAt, now)
	}
}

func TestSaveConversation_UpsertKeepsCreatedAt(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	created := time.Now().UTC().Add(-time.Hour).Truncate(time.Second)
	conv := &Conversation{ID: "conv-1", UserID: "ian", CreatedAt: created, UpdatedAt: created}
	if err := store.SaveConversation(ctx, conv); err != nil {
		t.Fatalf("SaveConversation failed: %v", err)
	}

	updated := time.Now().UTC().Truncate(time.Second)
	conv.UpdatedAt = updated
	if err := store.SaveConversation(ctx, conv); err != nil {
		t.Fatalf("SaveConversation upsert failed: %v", err)
	}

	got, err := store.GetConversation(ctx, "conv-1")
	if err != nil {
		t.Fatalf("GetConversation failed: %v", err)
	}
	if !got.CreatedAt.Equal(created) {
		t.Errorf("CreatedAt changed on upsert: got %v, want %v", got.CreatedAt, created)
	}
	if !got.UpdatedAt.Equal(updated) {
		t.Errorf("UpdatedAt not refreshed: got %v, want %v", got.UpdatedAt, updated)
	}
}

func TestGetConversation_NotFound(t *testing.T) {
	store := newTestStore(t)

	_, err := store.GetConversation(context.Background(), "nonexistent")
	if err != ErrNotFound {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestListConversationsByUser(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	base := time.Now().UTC().Truncate(time.Second)
	for i := range 3 {
		conv := &Conversation{
			ID:        fmt.Sprintf("conv-%d", i),
			UserID:    "roy",
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
			UpdatedAt: base.Add(time.Duration(i) * time.Minute),
		}
		if err := store.SaveConversation(ctx, conv); err != nil {
			t.Fatalf("SaveConversation failed: %v", err)
		}
	}
	other := &Conversation{ID: "conv-other", UserID: "marijn", CreatedAt: base, UpdatedAt: base}
	if err := store.SaveConversation(ctx, other); err != nil {
		t.Fatalf("SaveConversation failed: %v", err)
	}

	convs, err := store.ListConversationsByUser(ctx, "roy", 10)
	if err != nil {
		t.Fatalf("ListConversationsByUser failed: %v", err)
	}
	if len(convs) != 3 {
		t.Fatalf("expected 3 conversations, got %d", len(convs))
	}
	// Most recently updated first
	if convs[0].ID != "conv-2" {
		t.Errorf("expected conv-2 first, got %q", convs[0].ID)
	}
}

func TestMessageOrderingAndLimit(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	now := time.Now().UTC()
	conv := &Conversation{ID: "conv-msg", UserID: "jettro", CreatedAt: now, UpdatedAt: now}
	if err := store.SaveConversation(ctx, conv); err != nil {
		t.Fatalf("SaveConversation failed: %v", err)
	}

	for i := range 5 {
		role := "user"
		if i%2 == 1 {
			role = "assistant"
		}
		msg := &Message{
			ID:             fmt.Sprintf("msg-%d", i),
			ConversationID: "conv-msg",
			Role:           role,
			Content:        fmt.Sprintf("message %d", i),
			CreatedAt:      now.Add(time.Duration(i) * time.Millisecond),
		}
		if err := store.SaveMessage(ctx, msg); err != nil {
			t.Fatalf("SaveMessage failed: %v", err)
		}
	}

	msgs, err := store.GetConversationMessages(ctx, "conv-msg", 3)
	if err != nil {
		t.Fatalf("GetConversationMessages failed: %v", err)
	}
	if len(msgs) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(msgs))
	}
	// Oldest first
	if msgs[0].ID != "msg-0" || msgs[2].ID != "msg-2" {
		t.Errorf("messages out of order: %q, %q, %q", msgs[0].ID, msgs[1].ID, msgs[2].ID)
	}
}

func TestMessageOrdering_WholeSecondBeforeFractional(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 12, 0, 5, 0, time.UTC)
	conv := &Conversation{ID: "conv-frac", UserID: "jettro", CreatedAt: base, UpdatedAt: base}
	if err := store.SaveConversation(ctx, conv); err != nil {
		t.Fatalf("SaveConversation failed: %v", err)
	}

	// A whole-second timestamp and a later fractional one in the same second.
	// Ordering is by string comparison on the stored value, so the format
	// must be fixed width.
	msgs := []*Message{
		{ID: "msg-user", ConversationID: "conv-frac", Role: "user", Content: "question", CreatedAt: base},
		{ID: "msg-assistant", ConversationID: "conv-frac", Role: "assistant", Content: "answer", CreatedAt: base.Add(500 * time.Millisecond)},
	}
	for _, msg := range msgs {
		if err := store.SaveMessage(ctx, msg); err != nil {
			t.Fatalf("SaveMessage failed: %v", err)
		}
	}

	got, err := store.GetConversationMessages(ctx, "conv-frac", 10)
	if err != nil {
		t.Fatalf("GetConversationMessages failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(got))
	}
	if got[0].ID != "msg-user" || got[1].ID != "msg-assistant" {
		t.Errorf("messages out of order: %q, %q", got[0].ID, got[1].ID)
	}
}

func TestSaveAndListPropositions(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	now := time.Now().UTC()
	props := []*Proposition{
		{ID: "prop-1", ContextID: "jettro_default_context", ConversationID: "conv-1", Text: "Prefers Go for services", CreatedAt: now},
		{ID: "prop-2", ContextID: "jettro_default_context", ConversationID: "conv-1", Text: "Works on search systems", CreatedAt: now.Add(time.Second)},
		{ID: "prop-3", ContextID: "ian_default_context", ConversationID: "conv-2", Text: "Lives in Amsterdam", CreatedAt: now},
	}

	if err := store.SavePropositions(ctx, props); err != nil {
		t.Fatalf("SavePropositions failed: %v", err)
	}

	got, err := store.ListPropositions(ctx, "jettro_default_context", 10)
	if err != nil {
		t.Fatalf("ListPropositions failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 propositions, got %d", len(got))
	}
	// Newest first
	if got[0].ID != "prop-2" {
		t.Errorf("expected prop-2 first, got %q", got[0].ID)
	}
}

func TestSavePropositions_EmptyBatchIsNoop(t *testing.T) {
	store := newTestStore(t)

	if err := store.SavePropositions(context.Background(), nil); err != nil {
		t.Fatalf("SavePropositions with nil batch failed: %v", err)
	}
}

func TestAnalysisOffsetRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	offset, err := store.GetAnalysisOffset(ctx, "conv-never-analyzed")
	if err != nil {
		t.Fatalf("GetAnalysisOffset failed: %v", err)
	}
	if offset != 0 {
		t.Errorf("expected offset 0 for unanalyzed conversation, got %d", offset)
	}

	if err := store.SetAnalysisOffset(ctx, "conv-1", 4); err != nil {
		t.Fatalf("SetAnalysisOffset failed: %v", err)
	}
	if err := store.SetAnalysisOffset(ctx, "conv-1", 8); err != nil {
		t.Fatalf("SetAnalysisOffset upsert failed: %v", err)
	}

	offset, err = store.GetAnalysisOffset(ctx, "conv-1")
	if err != nil {
		t.Fatalf("GetAnalysisOffset failed: %v", err)
	}
	if offset != 8 {
		t.Errorf("expected offset 8, got %d", offset)
	}
}

func TestCreateDocument_DuplicatePathRejected(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	doc := &Document{
		ID:         "doc-1",
		Path:       "data/notes.md",
		Title:      "Notes",
		Content:    "some text",
		IngestedAt: time.Now().UTC(),
	}
	if err := store.CreateDocument(ctx, doc); err != nil {
		t.Fatalf("CreateDocument failed: %v", err)
	}

	dup := &Document{
		ID:         "doc-2",
		Path:       "data/notes.md",
		Title:      "Notes again",
		Content:    "changed text",
		IngestedAt: time.Now().UTC(),
	}
	if err := store.CreateDocument(ctx, dup); err != ErrDuplicateDocument {
		t.Errorf("expected ErrDuplicateDocument, got %v", err)
	}

	got, err := store.GetDocumentByPath(ctx, "data/notes.md")
	if err != nil {
		t.Fatalf("GetDocumentByPath failed: %v", err)
	}
	if got.ID != "doc-1" {
		t.Errorf("original document was replaced: got %q", got.ID)
	}
}

func TestGetDocumentByPath_NotFound(t *testing.T) {
	store := newTestStore(t)

	_, err := store.GetDocumentByPath(context.Background(), "data/missing.md")
	if err != ErrNotFound {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}
