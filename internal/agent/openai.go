// ABOUTME: OpenAI-backed runtime - chat completions with optional streaming
// ABOUTME: Streams content chunks as ContentEvents, finishes with a MessageEvent

package agent

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/2389/knowledge-gateway/internal/chat"
)

// CompletionClient is the subset of the OpenAI client the runtime needs,
// extracted for testability.
type CompletionClient interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
	CreateChatCompletionStream(ctx context.Context, req openai.ChatCompletionRequest) (*openai.ChatCompletionStream, error)
}

// OpenAIRuntime answers user messages with an OpenAI chat model.
type OpenAIRuntime struct {
	client CompletionClient
	model  string
	stream bool
	logger *slog.Logger
}

// NewOpenAIRuntime creates a runtime using the given API key and model.
// With stream enabled the runtime emits a ContentEvent per chunk before the
// final MessageEvent; otherwise only the final MessageEvent is emitted.
func NewOpenAIRuntime(apiKey, model string, stream bool, logger *slog.Logger) *OpenAIRuntime {
	return NewOpenAIRuntimeWithClient(openai.NewClient(apiKey), model, stream, logger)
}

// NewOpenAIRuntimeWithClient creates a runtime with a custom client
// (useful for testing).
func NewOpenAIRuntimeWithClient(client CompletionClient, model string, stream bool, logger *slog.Logger) *OpenAIRuntime {
	if logger == nil {
		logger = slog.Default()
	}
	if model == "" {
		model = openai.GPT4oMini
	}
	return &OpenAIRuntime{
		client: client,
		model:  model,
		stream: stream,
		logger: logger.With("component", "agent", "model", model),
	}
}

// Process runs one exchange. Events go to req.Out; the final reply is also
// returned.
func (r *OpenAIRuntime) Process(ctx context.Context, req Request) (*chat.Message, error) {
	req.Out.Send(chat.ProgressEvent{
		Process: req.ProcessID,
		Message: "Thinking about your question",
	})

	completionReq := openai.ChatCompletionRequest{
		Model:    r.model,
		Messages: buildMessages(req.User, req.History),
	}

	var content string
	var err error
	if r.stream {
		content, err = r.streamCompletion(ctx, req, completionReq)
	} else {
		content, err = r.completion(ctx, completionReq)
	}
	if err != nil {
		req.Out.Send(chat.LoggingEvent{
			Process: req.ProcessID,
			Message: fmt.Sprintf("completion failed: %v", err),
		})
		return nil, err
	}

	reply := chat.Message{
		Role:      chat.RoleAssistant,
		Content:   content,
		Timestamp: time.Now(),
	}
	req.Out.Send(chat.MessageEvent{Process: req.ProcessID, Message: reply})

	r.logger.Debug("exchange complete", "process_id", req.ProcessID, "reply_len", len(content))
	return &reply, nil
}

func (r *OpenAIRuntime) completion(ctx context.Context, req openai.ChatCompletionRequest) (string, error) {
	resp, err := r.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("chat completion returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

func (r *OpenAIRuntime) streamCompletion(ctx context.Context, req Request, completionReq openai.ChatCompletionRequest) (string, error) {
	completionReq.Stream = true

	stream, err := r.client.CreateChatCompletionStream(ctx, completionReq)
	if err != nil {
		return "", fmt.Errorf("opening completion stream: %w", err)
	}
	defer stream.Close()

	var sb strings.Builder
	for {
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("receiving stream chunk: %w", err)
		}
		if len(resp.Choices) == 0 {
			continue
		}

		delta := resp.Choices[0].Delta.Content
		if delta == "" {
			continue
		}
		sb.WriteString(delta)
		req.Out.Send(chat.ContentEvent{Process: req.ProcessID, Content: delta})
	}

	return sb.String(), nil
}

// buildMessages maps conversation history into the completion request,
// prefixed with a system prompt that addresses the user by name.
func buildMessages(user chat.User, history []chat.Message) []openai.ChatCompletionMessage {
	name := user.DisplayName
	if name == "" {
		name = user.Username
	}

	msgs := make([]openai.ChatCompletionMessage, 0, len(history)+1)
	msgs = append(msgs, openai.ChatCompletionMessage{
		Role: openai.ChatMessageRoleSystem,
		Content: fmt.Sprintf(
			"You are a personal knowledge assistant talking to %s. "+
				"Answer concisely and address them by name when it feels natural.", name),
	})

	for _, m := range history {
		role := openai.ChatMessageRoleUser
		if m.Role == chat.RoleAssistant {
			role = openai.ChatMessageRoleAssistant
		}
		msgs = append(msgs, openai.ChatCompletionMessage{Role: role, Content: m.Content})
	}

	return msgs
}
