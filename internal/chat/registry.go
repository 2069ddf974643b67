// ABOUTME: Registry maps process and conversation IDs to live sessions
// ABOUTME: Creates, looks up, forks on user mismatch, and evicts idle sessions

package chat

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrSessionNotFound is returned when an explicit, non-empty session ID
// resolves to nothing. The registry never silently replaces a session the
// caller asked for by ID.
var ErrSessionNotFound = errors.New("session not found")

// ChannelFactory builds the output channel bound to a new session's process.
type ChannelFactory func(processID string) OutputChannel

// Registry owns all live sessions, indexed by both ProcessID and
// ConversationID. A process ID addresses exactly one session for its entire
// lifetime; IDs are never reused.
type Registry struct {
	mu        sync.RWMutex
	byProcess map[string]*Session
	byConv    map[string]*Session
	byUser    map[string]string // user ID -> active process ID

	newChannel ChannelFactory
	idleTTL    time.Duration
	done       chan struct{}
	closeOnce  sync.Once
	logger     *slog.Logger
}

// NewRegistry creates a session registry. Sessions idle longer than idleTTL
// are evicted by a background janitor; pass 0 to disable eviction.
func NewRegistry(newChannel ChannelFactory, idleTTL time.Duration, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Registry{
		byProcess:  make(map[string]*Session),
		byConv:     make(map[string]*Session),
		byUser:     make(map[string]string),
		newChannel: newChannel,
		idleTTL:    idleTTL,
		done:       make(chan struct{}),
		logger:     logger.With("component", "registry"),
	}
	if idleTTL > 0 {
		go r.janitor()
	}
	return r
}

// CreateOrFetch resolves a session for the user. An empty id creates a fresh
// session with new process and conversation IDs and a new output channel. A
// non-empty id (process or conversation) must resolve to an existing session
// or the call fails with ErrSessionNotFound.
//
// A session found under the supplied id but owned by a different user is
// never handed over: the caller gets a fresh session instead, and the old
// one stays addressable by its own IDs until it idles out.
func (r *Registry) CreateOrFetch(id string, user User) (*Session, error) {
	if id == "" {
		return r.create(user), nil
	}

	r.mu.RLock()
	session := r.lookupLocked(id)
	r.mu.RUnlock()

	if session == nil {
		return nil, ErrSessionNotFound
	}

	if session.User.ID != user.ID {
		r.logger.Warn("session owned by different user, creating fresh session",
			"requested_id", id,
			"owner", session.User.ID,
			"caller", user.ID)
		return r.create(user), nil
	}

	session.touch()
	return session, nil
}

// Fetch resolves an existing session by process or conversation ID without
// regard to ownership. Returns ErrSessionNotFound if no session exists.
func (r *Registry) Fetch(id string) (*Session, error) {
	r.mu.RLock()
	session := r.lookupLocked(id)
	r.mu.RUnlock()

	if session == nil {
		return nil, ErrSessionNotFound
	}
	session.touch()
	return session, nil
}

// Bind records the user's active process ID, so later send-message calls can
// identify the session via the authenticated principal instead of an
// explicit id.
func (r *Registry) Bind(user User, processID string) {
	r.mu.Lock()
	r.byUser[user.ID] = processID
	r.mu.Unlock()
}

// BoundProcess returns the process ID last bound to the user, or empty.
func (r *Registry) BoundProcess(user User) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.byUser[user.ID]
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byProcess)
}

// Close stops the eviction janitor. Safe to call multiple times.
func (r *Registry) Close() {
	r.closeOnce.Do(func() { close(r.done) })
}

// lookupLocked resolves an id against both indexes. Caller holds the lock.
func (r *Registry) lookupLocked(id string) *Session {
	if s, ok := r.byProcess[id]; ok {
		return s
	}
	if s, ok := r.byConv[id]; ok {
		return s
	}
	return nil
}

func (r *Registry) create(user User) *Session {
	processID := uuid.New().String()
	conversationID := uuid.New().String()

	session := &Session{
		ProcessID:    processID,
		Conversation: NewConversation(conversationID),
		User:         user,
		Channel:      r.newChannel(processID),
	}
	session.touch()

	r.mu.Lock()
	r.byProcess[processID] = session
	r.byConv[conversationID] = session
	r.byUser[user.ID] = processID
	r.mu.Unlock()

	r.logger.Info("session created",
		"process_id", processID,
		"conversation_id", conversationID,
		"user", user.ID)
	return session
}

// janitor periodically evicts sessions idle longer than the TTL. Orphaned
// sessions left behind by a user-mismatch fork are cleaned up here too;
// without the janitor the registry would grow without bound.
func (r *Registry) janitor() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.evictIdle()
		case <-r.done:
			return
		}
	}
}

func (r *Registry) evictIdle() {
	cutoff := time.Now().Add(-r.idleTTL)

	r.mu.Lock()
	defer r.mu.Unlock()

	for processID, session := range r.byProcess {
		if session.LastActive().After(cutoff) {
			continue
		}
		delete(r.byProcess, processID)
		delete(r.byConv, session.Conversation.ID())
		if r.byUser[session.User.ID] == processID {
			delete(r.byUser, session.User.ID)
		}
		r.logger.Info("evicted idle session",
			"process_id", processID,
			"conversation_id", session.Conversation.ID(),
			"idle_since", session.LastActive())
	}
}
