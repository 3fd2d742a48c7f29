package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/aldan/opschat/internal/metrics"
	"github.com/aldan/opschat/internal/tracing"
)

// ErrNotFound is returned when a session id is unknown to the store.
var ErrNotFound = errors.New("session not found")

// record is the store-internal session state. The per-record mutex
// serializes appends for one session without blocking other sessions.
type record struct {
	mu         sync.Mutex
	id         string
	createdAt  time.Time
	lastActive time.Time
	messages   []Message
}

// StoreConfig configures the session store
type StoreConfig struct {
	Logger zerolog.Logger
}

// Store keeps conversation histories in memory, keyed by session id
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*record
	logger   zerolog.Logger
}

// NewStore creates a new in-memory session store
func NewStore(cfg StoreConfig) *Store {
	metrics.EnsureRegistered()

	return &Store{
		sessions: make(map[string]*record),
		logger:   cfg.Logger,
	}
}

// GetOrCreate resolves a session by id, creating it when the id is
// empty or unknown. It returns the resolved id and a copy of the
// current history.
func (s *Store) GetOrCreate(ctx context.Context, sessionID string) (string, []Message, error) {
	if sessionID == "" {
		id, err := gonanoid.New()
		if err != nil {
			return "", nil, fmt.Errorf("failed to generate session id: %w", err)
		}
		sessionID = id
	}

	s.mu.Lock()
	rec, exists := s.sessions[sessionID]
	if !exists {
		rec = &record{
			id:         sessionID,
			createdAt:  time.Now(),
			lastActive: time.Now(),
		}
		s.sessions[sessionID] = rec
		metrics.RecordSessionCreated()
		metrics.SetActiveSessions(len(s.sessions))
	}
	s.mu.Unlock()

	if !exists {
		logger := tracing.LoggerFromContext(ctx, s.logger)
		logger.Debug().Str("session_id", sessionID).Msg("Session created")
	}

	rec.mu.Lock()
	history := copyMessages(rec.messages)
	rec.mu.Unlock()

	return sessionID, history, nil
}

// Append adds one message to the end of a session's history and
// returns the updated length. The message id and timestamp are filled
// in when absent.
func (s *Store) Append(ctx context.Context, sessionID string, msg Message) (int, error) {
	s.mu.RLock()
	rec, exists := s.sessions[sessionID]
	s.mu.RUnlock()

	if !exists {
		return 0, fmt.Errorf("%w: %s", ErrNotFound, sessionID)
	}

	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}

	rec.mu.Lock()
	rec.messages = append(rec.messages, msg)
	rec.lastActive = time.Now()
	length := len(rec.messages)
	rec.mu.Unlock()

	logger := tracing.LoggerFromContext(ctx, s.logger)
	logger.Debug().
		Str("session_id", sessionID).
		Str("role", msg.Role).
		Int("history_len", length).
		Msg("Message appended")

	return length, nil
}

// Get returns a copy of a session's history in insertion order
func (s *Store) Get(ctx context.Context, sessionID string) ([]Message, error) {
	s.mu.RLock()
	rec, exists := s.sessions[sessionID]
	s.mu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, sessionID)
	}

	rec.mu.Lock()
	history := copyMessages(rec.messages)
	rec.mu.Unlock()

	return history, nil
}

// Len returns the number of messages in a session
func (s *Store) Len(sessionID string) (int, error) {
	s.mu.RLock()
	rec, exists := s.sessions[sessionID]
	s.mu.RUnlock()

	if !exists {
		return 0, fmt.Errorf("%w: %s", ErrNotFound, sessionID)
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	return len(rec.messages), nil
}

// List returns all live session ids
func (s *Store) List() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	return ids
}

// Delete removes a session outright
func (s *Store) Delete(sessionID string) {
	s.mu.Lock()
	delete(s.sessions, sessionID)
	metrics.SetActiveSessions(len(s.sessions))
	s.mu.Unlock()
}

// Evicted holds the transcript of a session removed by the sweeper
type Evicted struct {
	ID         string
	CreatedAt  time.Time
	LastActive time.Time
	Messages   []Message
}

// EvictIdle removes every session idle since before the cutoff and
// returns their transcripts so the caller can archive them.
func (s *Store) EvictIdle(cutoff time.Time) []Evicted {
	s.mu.Lock()
	defer s.mu.Unlock()

	var evicted []Evicted
	for id, rec := range s.sessions {
		rec.mu.Lock()
		idle := rec.lastActive.Before(cutoff)
		if idle {
			evicted = append(evicted, Evicted{
				ID:         id,
				CreatedAt:  rec.createdAt,
				LastActive: rec.lastActive,
				Messages:   copyMessages(rec.messages),
			})
		}
		rec.mu.Unlock()

		if idle {
			delete(s.sessions, id)
		}
	}

	if len(evicted) > 0 {
		metrics.SetActiveSessions(len(s.sessions))
	}

	return evicted
}

func copyMessages(msgs []Message) []Message {
	out := make([]Message, len(msgs))
	copy(out, msgs)
	return out
}
