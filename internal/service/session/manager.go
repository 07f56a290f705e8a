package session

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"

	"github.com/krishisevak/assistant/internal/model/query"
	"github.com/krishisevak/assistant/internal/service/gateway"
)

// ErrSessionNotFound is returned for unknown or already closed sessions.
var ErrSessionNotFound = errors.New("session not found")

// Manager tracks the live sessions. One session spans one open chat panel;
// closing it drops the transcript.
type Manager struct {
	gw      gateway.Client
	queries query.Store
	texts   Texts

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewManager bootstraps the in-memory session registry.
func NewManager(gw gateway.Client, queries query.Store, texts Texts) *Manager {
	return &Manager{
		gw:       gw,
		queries:  queries,
		texts:    texts,
		sessions: make(map[string]*Session),
	}
}

// Create provisions a new session seeded with the greeting entry.
func (m *Manager) Create(_ context.Context) *Session {
	s := New(uuid.NewString(), m.gw, m.queries, m.texts)

	m.mu.Lock()
	m.sessions[s.ID()] = s
	m.mu.Unlock()

	return s
}

// Get retrieves a live session by identifier.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// Close releases a session's resources and forgets it.
func (m *Manager) Close(id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	if ok {
		delete(m.sessions, id)
	}
	m.mu.Unlock()

	if !ok {
		return ErrSessionNotFound
	}
	s.Close()
	return nil
}

// Len reports the number of live sessions.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}
