// ABOUTME: Tests for agent runtimes
// ABOUTME: Uses a mock completion client and a capturing output channel

package agent

import (
	"context"
	"errors"
	"sync"
	"testing"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/knowledge-gateway/internal/chat"
)

// captureChannel records every event sent to it.
type captureChannel struct {
	mu     sync.Mutex
	events []chat.Event
}

func (c *captureChannel) Send(event chat.Event) {
	c.mu.Lock()
	c.events = append(c.events, event)
	c.mu.Unlock()
}

func (c *captureChannel) names() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.events))
	for i, e := range c.events {
		out[i] = e.EventName()
	}
	return out
}

// mockCompletionClient returns canned responses without touching the network.
type mockCompletionClient struct {
	response openai.ChatCompletionResponse
	err      error
	lastReq  openai.ChatCompletionRequest
}

func (m *mockCompletionClient) CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	m.lastReq = req
	return m.response, m.err
}

func (m *mockCompletionClient) CreateChatCompletionStream(ctx context.Context, req openai.ChatCompletionRequest) (*openai.ChatCompletionStream, error) {
	return nil, errors.New("streaming not supported by mock")
}

func testRequest(out chat.OutputChannel) Request {
	return Request{
		ProcessID: "proc-1",
		User:      chat.User{ID: "jettro", DisplayName: "Jettro", Username: "jettro"},
		History: []chat.Message{
			{Role: chat.RoleUser, Content: "What is a knowledge graph?"},
		},
		Out: out,
	}
}

func TestOpenAIRuntime_EmitsProgressThenMessage(t *testing.T) {
	client := &mockCompletionClient{
		response: openai.ChatCompletionResponse{
			Choices: []openai.ChatCompletionChoice{
				{Message: openai.ChatCompletionMessage{Content: "A graph of facts."}},
			},
		},
	}
	rt := NewOpenAIRuntimeWithClient(client, "test-model", false, nil)
	out := &captureChannel{}

	reply, err := rt.Process(t.Context(), testRequest(out))
	require.NoError(t, err)
	require.NotNil(t, reply)
	assert.Equal(t, chat.RoleAssistant, reply.Role)
	assert.Equal(t, "A graph of facts.", reply.Content)

	assert.Equal(t, []string{"ProgressOutputChannelEvent", "MessageOutputChannelEvent"}, out.names())
}

func TestOpenAIRuntime_SystemPromptAddressesUserByName(t *testing.T) {
	client := &mockCompletionClient{
		response: openai.ChatCompletionResponse{
			Choices: []openai.ChatCompletionChoice{
				{Message: openai.ChatCompletionMessage{Content: "ok"}},
			},
		},
	}
	rt := NewOpenAIRuntimeWithClient(client, "test-model", false, nil)

	_, err := rt.Process(t.Context(), testRequest(&captureChannel{}))
	require.NoError(t, err)

	require.NotEmpty(t, client.lastReq.Messages)
	system := client.lastReq.Messages[0]
	assert.Equal(t, openai.ChatMessageRoleSystem, system.Role)
	assert.Contains(t, system.Content, "Jettro")

	// History follows the system prompt with roles mapped through.
	require.Len(t, client.lastReq.Messages, 2)
	assert.Equal(t, openai.ChatMessageRoleUser, client.lastReq.Messages[1].Role)
}

func TestOpenAIRuntime_ErrorEmitsLoggingEvent(t *testing.T) {
	client := &mockCompletionClient{err: errors.New("rate limited")}
	rt := NewOpenAIRuntimeWithClient(client, "test-model", false, nil)
	out := &captureChannel{}

	_, err := rt.Process(t.Context(), testRequest(out))
	require.Error(t, err)

	names := out.names()
	require.Len(t, names, 2)
	assert.Equal(t, "LoggingOutputChannelEvent", names[1])
}

func TestOpenAIRuntime_EmptyChoicesIsError(t *testing.T) {
	client := &mockCompletionClient{response: openai.ChatCompletionResponse{}}
	rt := NewOpenAIRuntimeWithClient(client, "test-model", false, nil)

	_, err := rt.Process(t.Context(), testRequest(&captureChannel{}))
	assert.Error(t, err)
}

func TestScriptedRuntime_EchoesLastUserMessage(t *testing.T) {
	rt := &ScriptedRuntime{}
	out := &captureChannel{}

	reply, err := rt.Process(t.Context(), testRequest(out))
	require.NoError(t, err)
	assert.Equal(t, "You said: What is a knowledge graph?", reply.Content)
	assert.Equal(t, []string{"ProgressOutputChannelEvent", "MessageOutputChannelEvent"}, out.names())
}

func TestScriptedRuntime_ChunksContent(t *testing.T) {
	rt := &ScriptedRuntime{Reply: "abcdef", ChunkSize: 4}
	out := &captureChannel{}

	reply, err := rt.Process(t.Context(), testRequest(out))
	require.NoError(t, err)
	assert.Equal(t, "abcdef", reply.Content)

	names := out.names()
	assert.Equal(t, []string{
		"ProgressOutputChannelEvent",
		"ContentOutputChannelEvent",
		"ContentOutputChannelEvent",
		"MessageOutputChannelEvent",
	}, names)
}
