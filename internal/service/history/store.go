package history

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/parlalabs/parla/backend/internal/model/conversation"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrEmptyExchange   = errors.New("exchange must contain at least one turn")
)

// subscriberBuffer bounds per-follower queues; a follower that falls
// this far behind misses turns rather than blocking an append.
const subscriberBuffer = 8

// Store keeps per-session transcripts in memory. Turns are append-only
// and live exactly as long as the process; nothing is persisted.
type Store struct {
	mu         sync.RWMutex
	sessions   map[string]conversation.Session
	turns      map[string][]conversation.Turn
	lastPlayed map[string]int // index of the newest turn handed out for autoplay, -1 initially
	followers  map[string]map[int]chan conversation.Turn
	nextFollow int
}

// NewStore bootstraps the in-memory transcript store.
func NewStore() *Store {
	return &Store{
		sessions:   make(map[string]conversation.Session),
		turns:      make(map[string][]conversation.Turn),
		lastPlayed: make(map[string]int),
		followers:  make(map[string]map[int]chan conversation.Turn),
	}
}

// CreateSession provisions an empty transcript.
func (s *Store) CreateSession(_ context.Context) conversation.Session {
	session := conversation.Session{
		ID:        uuid.NewString(),
		CreatedAt: time.Now().UTC(),
	}

	s.mu.Lock()
	s.sessions[session.ID] = session
	s.turns[session.ID] = make([]conversation.Turn, 0, 16)
	s.lastPlayed[session.ID] = -1
	s.mu.Unlock()

	return session
}

// GetSession retrieves a session by identifier.
func (s *Store) GetSession(_ context.Context, sessionID string) (conversation.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.sessions[sessionID]
	if !ok {
		return conversation.Session{}, ErrSessionNotFound
	}
	return session, nil
}

// Sessions lists the live sessions.
func (s *Store) Sessions(_ context.Context) []conversation.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sessions := make([]conversation.Session, 0, len(s.sessions))
	for _, session := range s.sessions {
		sessions = append(sessions, session)
	}
	return sessions
}

// DeleteSession drops the transcript and closes any follower channels.
func (s *Store) DeleteSession(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[sessionID]; !ok {
		return ErrSessionNotFound
	}

	for _, ch := range s.followers[sessionID] {
		close(ch)
	}
	delete(s.followers, sessionID)
	delete(s.sessions, sessionID)
	delete(s.turns, sessionID)
	delete(s.lastPlayed, sessionID)
	return nil
}

// AppendExchange appends the turns of one exchange under a single lock
// so a transcript never exposes half an exchange. IDs and timestamps
// are assigned here. The stored turns are returned.
func (s *Store) AppendExchange(_ context.Context, sessionID string, turns ...conversation.Turn) ([]conversation.Turn, error) {
	if len(turns) == 0 {
		return nil, ErrEmptyExchange
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[sessionID]; !ok {
		return nil, ErrSessionNotFound
	}

	now := time.Now().UTC()
	stored := make([]conversation.Turn, 0, len(turns))
	for _, turn := range turns {
		turn.ID = uuid.NewString()
		turn.SessionID = sessionID
		if turn.CreatedAt.IsZero() {
			turn.CreatedAt = now
		}
		s.turns[sessionID] = append(s.turns[sessionID], turn)
		stored = append(stored, turn)
	}

	for _, ch := range s.followers[sessionID] {
		for _, turn := range stored {
			select {
			case ch <- turn:
			default: // follower too slow, drop rather than block the append
			}
		}
	}

	return stored, nil
}

// Transcript returns a copy of the stored turns for the session.
func (s *Store) Transcript(_ context.Context, sessionID string) ([]conversation.Turn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	turns, ok := s.turns[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}

	copied := make([]conversation.Turn, len(turns))
	copy(copied, turns)
	return copied, nil
}

// TranscriptWithAutoplay returns the transcript plus the index of the
// turn the client should play now, or -1. Only the newest turn is ever
// eligible, only when it is an assistant turn carrying audio, and each
// turn is handed out at most once.
func (s *Store) TranscriptWithAutoplay(_ context.Context, sessionID string) ([]conversation.Turn, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	turns, ok := s.turns[sessionID]
	if !ok {
		return nil, -1, ErrSessionNotFound
	}

	copied := make([]conversation.Turn, len(turns))
	copy(copied, turns)

	autoplay := -1
	last := len(turns) - 1
	if last >= 0 && turns[last].Role == conversation.RoleAssistant && turns[last].HasAudio() && s.lastPlayed[sessionID] < last {
		s.lastPlayed[sessionID] = last
		autoplay = last
	}

	return copied, autoplay, nil
}

// Follow returns the current transcript and a channel of turns
// appended after it, atomically, so no turn is missed between the
// snapshot and the subscription. The cancel func releases the channel.
func (s *Store) Follow(_ context.Context, sessionID string) ([]conversation.Turn, <-chan conversation.Turn, func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	turns, ok := s.turns[sessionID]
	if !ok {
		return nil, nil, nil, ErrSessionNotFound
	}

	copied := make([]conversation.Turn, len(turns))
	copy(copied, turns)

	ch := make(chan conversation.Turn, subscriberBuffer)
	id := s.nextFollow
	s.nextFollow++

	if s.followers[sessionID] == nil {
		s.followers[sessionID] = make(map[int]chan conversation.Turn)
	}
	s.followers[sessionID][id] = ch

	cancel := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if ch, ok := s.followers[sessionID][id]; ok {
			delete(s.followers[sessionID], id)
			close(ch)
		}
	}

	return copied, ch, cancel, nil
}
