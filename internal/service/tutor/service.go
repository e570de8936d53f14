package tutor

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/parlalabs/parla/backend/internal/analysis/reply"
	"github.com/parlalabs/parla/backend/internal/model/conversation"
	"github.com/parlalabs/parla/backend/internal/service/history"
)

// ErrEmptyAudio marks turn submissions without any recorded bytes.
var ErrEmptyAudio = errors.New("audio recording is empty")

// Conversation is one remote chat context. Implementations keep the full
// exchange history server side, so every send sees the prior turns.
type Conversation interface {
	SendText(ctx context.Context, prompt string) (string, error)
	SendAudio(ctx context.Context, prompt string, wav []byte) (string, error)
}

// StartChatFunc opens a fresh remote conversation context.
type StartChatFunc func(ctx context.Context) (Conversation, error)

// Synthesizer renders Italian text as MP3 audio.
type Synthesizer interface {
	SynthesizeText(ctx context.Context, text string) ([]byte, error)
}

// Manager runs the tutoring pipeline: one chat context per session, audio
// in, transcription/analysis/reply out, exchanges appended to the history.
type Manager struct {
	mu        sync.RWMutex
	sessions  map[string]*session
	startChat StartChatFunc
	speech    Synthesizer
	store     *history.Store
}

// session holds the per-conversation state. Its mutex serializes bootstrap
// and turn processing, one user interaction runs to completion before the
// next starts.
type session struct {
	mu           sync.Mutex
	conv         Conversation
	fingerprint  string
	bootstrapped bool
}

// NewManager wires the pipeline dependencies together.
func NewManager(startChat StartChatFunc, speech Synthesizer, store *history.Store) *Manager {
	return &Manager{
		sessions:  make(map[string]*session),
		startChat: startChat,
		speech:    speech,
		store:     store,
	}
}

// StartSession creates a session and greets the user. On bootstrap failure
// the half-created session is dropped again so the client can simply retry
// the create.
func (m *Manager) StartSession(ctx context.Context) (conversation.Session, []conversation.Turn, error) {
	sess := m.store.CreateSession(ctx)

	m.mu.Lock()
	m.sessions[sess.ID] = &session{}
	m.mu.Unlock()

	greeting, err := m.Bootstrap(ctx, sess.ID)
	if err != nil {
		m.EndSession(ctx, sess.ID)
		return conversation.Session{}, nil, fmt.Errorf("failed to bootstrap session: %w", err)
	}

	return sess, greeting, nil
}

// Bootstrap opens the remote chat context and appends the scripted Italian
// greeting as the first assistant turn. Calling it again is a no-op, the
// bootstrapped flag only flips after the greeting landed in the history.
func (m *Manager) Bootstrap(ctx context.Context, sessionID string) ([]conversation.Turn, error) {
	s, err := m.lookup(sessionID)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return m.bootstrapLocked(ctx, sessionID, s)
}

func (m *Manager) bootstrapLocked(ctx context.Context, sessionID string, s *session) ([]conversation.Turn, error) {
	if s.bootstrapped {
		return nil, nil
	}

	if s.conv == nil {
		conv, err := m.startChat(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to open chat context: %w", err)
		}
		s.conv = conv
	}

	greeting, err := s.conv.SendText(ctx, greetingPrompt)
	if err != nil {
		return nil, fmt.Errorf("failed to request greeting: %w", err)
	}

	turns, err := m.store.AppendExchange(ctx, sessionID, conversation.Turn{
		Role:  conversation.RoleAssistant,
		Text:  greeting,
		Audio: m.synthesize(ctx, greeting),
	})
	if err != nil {
		return nil, err
	}

	s.bootstrapped = true
	log.Printf("[tutor] session %s bootstrapped", sessionID)
	return turns, nil
}

// ProcessTurn runs one recording through the pipeline: dedup, upload and
// generation, reply parsing, synthesis, atomic history append. A duplicate
// of the previous recording returns (nil, nil) without touching anything.
func (m *Manager) ProcessTurn(ctx context.Context, sessionID string, wav []byte) ([]conversation.Turn, error) {
	if len(wav) == 0 {
		return nil, ErrEmptyAudio
	}

	s, err := m.lookup(sessionID)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sum := sha256.Sum256(wav)
	fingerprint := hex.EncodeToString(sum[:])
	if fingerprint == s.fingerprint {
		log.Printf("[tutor] duplicate recording ignored for session %s", sessionID)
		return nil, nil
	}

	if !s.bootstrapped {
		if _, err := m.bootstrapLocked(ctx, sessionID, s); err != nil {
			return nil, err
		}
	}

	raw, err := s.conv.SendAudio(ctx, turnPrompt, wav)
	if err != nil {
		return nil, err
	}

	parsed, err := reply.Parse(raw)
	if err != nil {
		return nil, err
	}

	turns, err := m.store.AppendExchange(ctx, sessionID,
		conversation.Turn{
			Role: conversation.RoleUser,
			Text: parsed.UserTurnText(),
		},
		conversation.Turn{
			Role:  conversation.RoleAssistant,
			Text:  parsed.ResponseItalian,
			Audio: m.synthesize(ctx, parsed.ResponseItalian),
		},
	)
	if err != nil {
		return nil, err
	}

	// Only a fully processed recording counts for dedup, a failed turn
	// stays retryable with the same bytes.
	s.fingerprint = fingerprint
	return turns, nil
}

// EndSession drops the chat context and the stored transcript.
func (m *Manager) EndSession(ctx context.Context, sessionID string) error {
	m.mu.Lock()
	delete(m.sessions, sessionID)
	m.mu.Unlock()

	return m.store.DeleteSession(ctx, sessionID)
}

func (m *Manager) lookup(sessionID string) (*session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[sessionID]
	if !ok {
		return nil, history.ErrSessionNotFound
	}
	return s, nil
}

// synthesize returns nil audio when speech generation fails, the turn then
// carries text only.
func (m *Manager) synthesize(ctx context.Context, text string) []byte {
	if m.speech == nil || text == "" {
		return nil
	}

	audio, err := m.speech.SynthesizeText(ctx, text)
	if err != nil {
		log.Printf("[tutor] speech synthesis failed, turn continues without audio: %v", err)
		return nil
	}
	return audio
}
