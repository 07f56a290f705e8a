package transcript

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/krishisevak/assistant/internal/model/chat"
)

// Store is the append-only message log for a single session. It is owned by
// exactly one session orchestrator; entries are never mutated or removed.
type Store struct {
	mu        sync.RWMutex
	sessionID string
	messages  []chat.Message
}

// NewStore creates an empty transcript bound to a session.
func NewStore(sessionID string) *Store {
	return &Store{
		sessionID: sessionID,
		messages:  make([]chat.Message, 0, 16),
	}
}

// Append stores a new message and returns it with its assigned identity.
// Insertion order is the display order; CreatedAt only breaks ties.
func (s *Store) Append(sender chat.Sender, text, audioRef string) chat.Message {
	message := chat.Message{
		ID:        uuid.NewString(),
		SessionID: s.sessionID,
		Sender:    sender,
		Text:      text,
		AudioRef:  audioRef,
		CreatedAt: time.Now().UTC(),
	}

	s.mu.Lock()
	s.messages = append(s.messages, message)
	s.mu.Unlock()

	return message
}

// Snapshot returns a copy of the transcript in insertion order.
func (s *Store) Snapshot() []chat.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()

	copied := make([]chat.Message, len(s.messages))
	copy(copied, s.messages)
	return copied
}

// Find returns the stored message with the given id.
func (s *Store) Find(id string) (chat.Message, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, message := range s.messages {
		if message.ID == id {
			return message, true
		}
	}
	return chat.Message{}, false
}

// Len reports the number of stored messages.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.messages)
}
