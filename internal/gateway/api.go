// ABOUTME: HTTP API handlers for sessions, messaging, history, users, and ingest
// ABOUTME: One-shot sends block for the reply; streaming sends return an ack

package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/2389/knowledge-gateway/internal/agent"
	"github.com/2389/knowledge-gateway/internal/analysis"
	"github.com/2389/knowledge-gateway/internal/auth"
	"github.com/2389/knowledge-gateway/internal/chat"
	"github.com/2389/knowledge-gateway/internal/store"
)

// LoginRequest is the JSON request body for POST /login and POST /users/{id}.
type LoginRequest struct {
	Username string `json:"username,omitempty"`
	Password string `json:"password"`
}

// LoginResponse is the JSON response for successful authentication. Token is
// empty when authentication is disabled.
type LoginResponse struct {
	Token string    `json:"token,omitempty"`
	User  chat.User `json:"user"`
}

// InitRequest is the JSON request body for POST /chat/init. ID may be a
// process or conversation ID; empty means start fresh.
type InitRequest struct {
	ID string `json:"id,omitempty"`
}

// InitResponse is the JSON response for POST /chat/init.
type InitResponse struct {
	ProcessID      string `json:"processId"`
	ConversationID string `json:"conversationId"`
}

// SendMessageRequest is the JSON request body for POST /chat/message.
type SendMessageRequest struct {
	ID      string `json:"id,omitempty"` // process or conversation ID
	Message string `json:"message"`
}

// SendMessageResponse is the JSON response for POST /chat/message. Message is
// only present in one-shot mode; streaming mode acknowledges and delivers the
// reply over the event stream.
type SendMessageResponse struct {
	ProcessID      string        `json:"processId"`
	ConversationID string        `json:"conversationId"`
	Message        *chat.Message `json:"message,omitempty"`
	Status         string        `json:"status,omitempty"`
}

// HistoryResponse is the JSON response for GET /chat/history/{conversationId}.
type HistoryResponse struct {
	ConversationID string         `json:"conversationId"`
	Messages       []chat.Message `json:"messages"`
}

// ListUsersResponse is the JSON response for GET /users.
type ListUsersResponse struct {
	Users []chat.User `json:"users"`
}

// Proposition is one extracted knowledge statement as served by the API.
type Proposition struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversationId"`
	Text           string    `json:"text"`
	CreatedAt      time.Time `json:"createdAt"`
}

// PropositionsResponse is the JSON response for GET /propositions.
type PropositionsResponse struct {
	ContextID    string        `json:"contextId"`
	Propositions []Proposition `json:"propositions"`
}

// DocumentSummary describes one ingested document without its content.
type DocumentSummary struct {
	ID         string    `json:"id"`
	Path       string    `json:"path"`
	Title      string    `json:"title"`
	IngestedAt time.Time `json:"ingestedAt"`
}

// DocumentsResponse is the JSON response for GET /documents.
type DocumentsResponse struct {
	Documents []DocumentSummary `json:"documents"`
}

// ConversationSummary describes one persisted conversation.
type ConversationSummary struct {
	ID        string    `json:"id"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// ConversationsResponse is the JSON response for GET /chat/conversations.
type ConversationsResponse struct {
	Conversations []ConversationSummary `json:"conversations"`
}

// sendJSONError writes a JSON error response.
func (g *Gateway) sendJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// sendJSON writes a JSON response with the given status.
func (g *Gateway) sendJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		g.logger.Error("failed to encode response", "error", err)
	}
}

// handleLogin handles POST /login.
func (g *Gateway) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		g.sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Username == "" || req.Password == "" {
		g.sendJSONError(w, http.StatusBadRequest, "username and password are required")
		return
	}

	g.loginAs(w, req.Username, req.Password)
}

// handleUserToken handles POST /users/{id}. It is login addressed by user ID
// instead of username, for clients that present the user list first.
func (g *Gateway) handleUserToken(w http.ResponseWriter, r *http.Request) {
	user, err := g.directory.Lookup(r.PathValue("id"))
	if err != nil {
		g.sendJSONError(w, http.StatusNotFound, "unknown user")
		return
	}

	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		g.sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	g.loginAs(w, user.Username, req.Password)
}

func (g *Gateway) loginAs(w http.ResponseWriter, username, password string) {
	user, err := g.directory.Authenticate(username, password)
	if err != nil {
		g.sendJSONError(w, http.StatusUnauthorized, "bad credentials")
		return
	}

	resp := LoginResponse{User: user}
	if g.verifier != nil {
		token, err := g.verifier.Generate(user.ID, g.config.Auth.TokenTTL)
		if err != nil {
			g.logger.Error("failed to generate token", "user", user.ID, "error", err)
			g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
			return
		}
		resp.Token = token
	}

	g.logger.Info("user logged in", "user", user.ID)
	g.sendJSON(w, http.StatusOK, resp)
}

// handleLogout handles POST /logout. Tokens are stateless; logout only
// forgets the user's active session binding.
func (g *Gateway) handleLogout(w http.ResponseWriter, r *http.Request) {
	user := auth.MustUserFromContext(r.Context())
	g.registry.Bind(user, "")
	g.logger.Info("user logged out", "user", user.ID)
	w.WriteHeader(http.StatusNoContent)
}

// handleListUsers handles GET /users.
func (g *Gateway) handleListUsers(w http.ResponseWriter, r *http.Request) {
	g.sendJSON(w, http.StatusOK, ListUsersResponse{Users: g.directory.List()})
}

// handleInit handles POST /chat/init. An empty id creates a fresh session; a
// known id resumes it; an unknown id is an error, never a silent create.
func (g *Gateway) handleInit(w http.ResponseWriter, r *http.Request) {
	user := auth.MustUserFromContext(r.Context())

	var req InitRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			g.sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
	}

	session, err := g.registry.CreateOrFetch(req.ID, user)
	if errors.Is(err, chat.ErrSessionNotFound) {
		g.sendJSONError(w, http.StatusNotFound, "session not found")
		return
	}
	if err != nil {
		g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	g.registry.Bind(user, session.ProcessID)
	if err := g.persistConversation(r, session); err != nil {
		g.logger.Error("failed to persist conversation", "error", err)
	}

	g.sendJSON(w, http.StatusOK, InitResponse{
		ProcessID:      session.ProcessID,
		ConversationID: session.Conversation.ID(),
	})
}

// handleStream handles GET /chat/stream/{processId}. The connection stays
// open until the client disconnects; events for the session's process are
// fanned out to every open stream.
func (g *Gateway) handleStream(w http.ResponseWriter, r *http.Request) {
	session, err := g.registry.Fetch(r.PathValue("processId"))
	if err != nil {
		g.sendJSONError(w, http.StatusNotFound, "session not found")
		return
	}

	channel, ok := session.Channel.(*chat.StreamingChannel)
	if !ok {
		g.sendJSONError(w, http.StatusInternalServerError, "session is not bound to a streaming channel")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		g.sendJSONError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	sub := newSSESubscriber()
	channel.Attach(sub)
	g.metrics.SubscribersActive.Inc()
	defer func() {
		channel.Detach(sub.ID())
		g.metrics.SubscribersActive.Dec()
	}()

	sub.serve(r.Context(), w, flusher)
}

// handleSendMessage handles POST /chat/message. In one-shot mode the call
// blocks until the reply arrives or the response timeout fires; in streaming
// mode it acknowledges immediately.
func (g *Gateway) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	user := auth.MustUserFromContext(r.Context())

	var req SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		g.sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Message == "" {
		g.sendJSONError(w, http.StatusBadRequest, "message is required")
		return
	}

	session, err := g.resolveSession(req.ID, user)
	if errors.Is(err, chat.ErrSessionNotFound) {
		g.sendJSONError(w, http.StatusNotFound, "session not found")
		return
	}
	if err != nil {
		g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	userMsg := session.Conversation.Append(chat.Message{
		Role:    chat.RoleUser,
		Content: req.Message,
	})
	if err := g.persistMessage(r, session, userMsg); err != nil {
		g.logger.Error("failed to persist user message", "error", err)
	}

	switch channel := session.Channel.(type) {
	case *chat.WaitableChannel:
		g.sendOneShot(w, r, session, channel)
	default:
		go g.dispatchExchange(session)
		g.sendJSON(w, http.StatusAccepted, SendMessageResponse{
			ProcessID:      session.ProcessID,
			ConversationID: session.Conversation.ID(),
			Status:         "accepted",
		})
	}
}

// sendOneShot dispatches the exchange and blocks for its result.
func (g *Gateway) sendOneShot(w http.ResponseWriter, r *http.Request, session *chat.Session, channel *chat.WaitableChannel) {
	// Arm before dispatch so a fast runtime cannot win the race.
	channel.Expect()
	go g.dispatchExchange(session)

	content, err := channel.AwaitResult(r.Context(), g.config.Chat.ResponseTimeout)
	if errors.Is(err, chat.ErrResponseTimeout) {
		g.sendJSONError(w, http.StatusGatewayTimeout, "timed out waiting for agent response")
		return
	}
	if err != nil {
		g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	g.sendJSON(w, http.StatusOK, SendMessageResponse{
		ProcessID:      session.ProcessID,
		ConversationID: session.Conversation.ID(),
		Message:        &chat.Message{Role: chat.RoleAssistant, Content: content, Timestamp: time.Now()},
	})
}

// resolveSession finds the session a message belongs to: an explicit id wins,
// then the user's bound session, then a fresh one.
func (g *Gateway) resolveSession(id string, user chat.User) (*chat.Session, error) {
	if id != "" {
		return g.registry.CreateOrFetch(id, user)
	}

	if bound := g.registry.BoundProcess(user); bound != "" {
		if session, err := g.registry.Fetch(bound); err == nil {
			return session, nil
		}
		// Bound session idled out; fall through to a fresh one.
	}

	session, err := g.registry.CreateOrFetch("", user)
	if err != nil {
		return nil, err
	}
	g.registry.Bind(user, session.ProcessID)
	return session, nil
}

// dispatchExchange runs the agent for the session's latest message, persists
// the reply, and notifies the analysis trigger. Runs in its own goroutine;
// events reach the caller through the session's channel.
func (g *Gateway) dispatchExchange(session *chat.Session) {
	start := time.Now()
	mode := g.config.Chat.Mode

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	reply, err := g.runtime.Process(ctx, agent.Request{
		ProcessID: session.ProcessID,
		User:      session.User,
		History:   session.Conversation.Messages(),
		Out:       session.Channel,
	})
	if err != nil {
		g.logger.Error("exchange failed",
			"process_id", session.ProcessID, "error", err)
		g.metrics.ExchangesTotal.WithLabelValues(mode, "error").Inc()
		return
	}

	appended := session.Conversation.Append(*reply)
	if err := g.persistMessageCtx(ctx, session, appended); err != nil {
		g.logger.Error("failed to persist assistant message", "error", err)
	}

	if g.trigger != nil {
		g.trigger.Notify(analysis.Notification{
			ConversationID: session.Conversation.ID(),
			ContextID:      session.User.Context(),
			MessageCount:   session.Conversation.Len(),
		})
	}

	g.metrics.ExchangesTotal.WithLabelValues(mode, "ok").Inc()
	g.metrics.ExchangeDuration.Observe(time.Since(start).Seconds())
	g.metrics.SessionsActive.Set(float64(g.registry.Len()))
}

// handleHistory handles GET /chat/history/{conversationId} from the store,
// so history survives session eviction and restarts.
func (g *Gateway) handleHistory(w http.ResponseWriter, r *http.Request) {
	conversationID := r.PathValue("conversationId")

	if _, err := g.store.GetConversation(r.Context(), conversationID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			g.sendJSONError(w, http.StatusNotFound, "conversation not found")
			return
		}
		g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	records, err := g.store.GetConversationMessages(r.Context(), conversationID, 0)
	if err != nil {
		g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	msgs := make([]chat.Message, 0, len(records))
	for _, rec := range records {
		msgs = append(msgs, chat.Message{
			Role:      chat.Role(rec.Role),
			Content:   rec.Content,
			Timestamp: rec.CreatedAt,
		})
	}

	g.sendJSON(w, http.StatusOK, HistoryResponse{
		ConversationID: conversationID,
		Messages:       msgs,
	})
}

// handlePropositions handles GET /propositions, returning the knowledge
// extracted for the caller's context, newest first.
func (g *Gateway) handlePropositions(w http.ResponseWriter, r *http.Request) {
	user := auth.MustUserFromContext(r.Context())

	records, err := g.store.ListPropositions(r.Context(), user.Context(), queryLimit(r))
	if err != nil {
		g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	props := make([]Proposition, 0, len(records))
	for _, rec := range records {
		props = append(props, Proposition{
			ID:             rec.ID,
			ConversationID: rec.ConversationID,
			Text:           rec.Text,
			CreatedAt:      rec.CreatedAt,
		})
	}

	g.sendJSON(w, http.StatusOK, PropositionsResponse{
		ContextID:    user.Context(),
		Propositions: props,
	})
}

// handleListDocuments handles GET /documents.
func (g *Gateway) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	records, err := g.store.ListDocuments(r.Context(), queryLimit(r))
	if err != nil {
		g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	docs := make([]DocumentSummary, 0, len(records))
	for _, rec := range records {
		docs = append(docs, DocumentSummary{
			ID:         rec.ID,
			Path:       rec.Path,
			Title:      rec.Title,
			IngestedAt: rec.IngestedAt,
		})
	}

	g.sendJSON(w, http.StatusOK, DocumentsResponse{Documents: docs})
}

// handleListConversations handles GET /chat/conversations, listing the
// caller's persisted conversations, most recently updated first.
func (g *Gateway) handleListConversations(w http.ResponseWriter, r *http.Request) {
	user := auth.MustUserFromContext(r.Context())

	records, err := g.store.ListConversationsByUser(r.Context(), user.ID, queryLimit(r))
	if err != nil {
		g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	convs := make([]ConversationSummary, 0, len(records))
	for _, rec := range records {
		convs = append(convs, ConversationSummary{ID: rec.ID, UpdatedAt: rec.UpdatedAt})
	}

	g.sendJSON(w, http.StatusOK, ConversationsResponse{Conversations: convs})
}

// queryLimit parses an optional ?limit parameter. The store applies its own
// default when the result is zero.
func queryLimit(r *http.Request) int {
	n, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	return n
}

// handleIngest handles POST /ingest, running one ingest pass synchronously.
func (g *Gateway) handleIngest(w http.ResponseWriter, r *http.Request) {
	report, err := g.ingest.Run(r.Context())
	if err != nil {
		g.logger.Error("ingest run failed", "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "ingest failed")
		return
	}
	g.sendJSON(w, http.StatusOK, report)
}

func (g *Gateway) persistConversation(r *http.Request, session *chat.Session) error {
	now := time.Now()
	return g.store.SaveConversation(r.Context(), &store.Conversation{
		ID:        session.Conversation.ID(),
		UserID:    session.User.ID,
		CreatedAt: now,
		UpdatedAt: now,
	})
}

func (g *Gateway) persistMessage(r *http.Request, session *chat.Session, msg chat.Message) error {
	return g.persistMessageCtx(r.Context(), session, msg)
}

func (g *Gateway) persistMessageCtx(ctx context.Context, session *chat.Session, msg chat.Message) error {
	now := time.Now()
	if err := g.store.SaveConversation(ctx, &store.Conversation{
		ID:        session.Conversation.ID(),
		UserID:    session.User.ID,
		CreatedAt: now,
		UpdatedAt: now,
	}); err != nil {
		return err
	}

	return g.store.SaveMessage(ctx, &store.Message{
		ID:             uuid.New().String(),
		ConversationID: session.Conversation.ID(),
		Role:           string(msg.Role),
		Content:        msg.Content,
		CreatedAt:      msg.Timestamp,
	})
}
