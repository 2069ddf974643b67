// ABOUTME: PropositionExtractor - distills conversation windows into knowledge statements
// ABOUTME: Analyzes only messages added since the last run, tracked via store offsets

package analysis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	openai "github.com/sashabaranov/go-openai"

	"github.com/2389/knowledge-gateway/internal/metrics"
	"github.com/2389/knowledge-gateway/internal/store"
)

const extractionPrompt = `You distill conversations into standalone factual propositions about the user.
Read the conversation fragment and output one proposition per line.
Only include durable facts, preferences, and context worth remembering.
Output nothing when the fragment contains no such facts.`

// CompletionClient is the subset of the OpenAI client the extractor needs.
type CompletionClient interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// PropositionExtractor implements Analyzer by asking a model to pull
// factual propositions out of the unanalyzed tail of a conversation.
type PropositionExtractor struct {
	client  CompletionClient
	store   store.Store
	model   string
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewPropositionExtractor creates an extractor using the given model.
func NewPropositionExtractor(client CompletionClient, st store.Store, model string, m *metrics.Metrics, logger *slog.Logger) *PropositionExtractor {
	if logger == nil {
		logger = slog.Default()
	}
	if model == "" {
		model = openai.GPT4oMini
	}
	return &PropositionExtractor{
		client:  client,
		store:   st,
		model:   model,
		metrics: m,
		logger:  logger.With("component", "extractor", "model", model),
	}
}

// Analyze extracts propositions from the messages added since the previous
// run and advances the conversation's analysis offset.
func (e *PropositionExtractor) Analyze(ctx context.Context, n Notification) error {
	offset, err := e.store.GetAnalysisOffset(ctx, n.ConversationID)
	if err != nil {
		return fmt.Errorf("loading analysis offset: %w", err)
	}

	msgs, err := e.store.GetConversationMessages(ctx, n.ConversationID, 0)
	if err != nil {
		return fmt.Errorf("loading messages: %w", err)
	}

	if offset >= len(msgs) {
		e.logger.Debug("nothing new to analyze",
			"conversation_id", n.ConversationID, "offset", offset, "messages", len(msgs))
		return nil
	}
	window := msgs[offset:]

	props, err := e.extract(ctx, n, window)
	if err != nil {
		return err
	}

	if err := e.store.SavePropositions(ctx, props); err != nil {
		return fmt.Errorf("saving propositions: %w", err)
	}
	if err := e.store.SetAnalysisOffset(ctx, n.ConversationID, len(msgs)); err != nil {
		return fmt.Errorf("advancing analysis offset: %w", err)
	}

	if e.metrics != nil {
		e.metrics.PropositionsSaved.Add(float64(len(props)))
	}
	e.logger.Info("analysis complete",
		"conversation_id", n.ConversationID,
		"window", len(window),
		"propositions", len(props))
	return nil
}

func (e *PropositionExtractor) extract(ctx context.Context, n Notification, window []*store.Message) ([]*store.Proposition, error) {
	var sb strings.Builder
	for _, m := range window {
		fmt.Fprintf(&sb, "%s: %s\n", m.Role, m.Content)
	}

	resp, err := e.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: e.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: extractionPrompt},
			{Role: openai.ChatMessageRoleUser, Content: sb.String()},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("extraction completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("extraction returned no choices")
	}

	now := time.Now()
	var props []*store.Proposition
	for line := range strings.Lines(resp.Choices[0].Message.Content) {
		text := strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(line), "-*• "))
		if text == "" {
			continue
		}
		props = append(props, &store.Proposition{
			ID:             uuid.New().String(),
			ContextID:      n.ContextID,
			ConversationID: n.ConversationID,
			Text:           text,
			CreatedAt:      now,
		})
	}
	return props, nil
}
