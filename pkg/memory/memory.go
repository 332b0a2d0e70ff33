// Package memory provides conversation and note storage for agent sessions.
// Two backends are provided: a map-backed store for tests and short runs,
// and a SQLite-backed store for durable sessions.
package memory

import (
	"sync"

	"devteam/pkg/proto"
)

// Store is the memory capability the core depends on.
type Store interface {
	// AppendMessage records a message in a session's ordered history.
	AppendMessage(sessionID string, msg *proto.Message) error

	// Messages returns a session's history in append order.
	Messages(sessionID string) ([]*proto.Message, error)

	// SaveNote stores free-form text under a key, replacing any prior value.
	SaveNote(key, text string) error

	// Note returns a stored note. The boolean reports presence.
	Note(key string) (string, bool, error)
}

// InMemory is a map-backed Store. Safe for concurrent use.
type InMemory struct {
	mu            sync.RWMutex
	conversations map[string][]*proto.Message
	notes         map[string]string
}

// NewInMemory creates an empty in-memory store.
func NewInMemory() *InMemory {
	return &InMemory{
		conversations: make(map[string][]*proto.Message),
		notes:         make(map[string]string),
	}
}

// AppendMessage implements Store.
func (m *InMemory) AppendMessage(sessionID string, msg *proto.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.conversations[sessionID] = append(m.conversations[sessionID], msg.Clone())
	return nil
}

// Messages implements Store.
func (m *InMemory) Messages(sessionID string) ([]*proto.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	history := m.conversations[sessionID]
	out := make([]*proto.Message, len(history))
	for i, msg := range history {
		out[i] = msg.Clone()
	}
	return out, nil
}

// SaveNote implements Store.
func (m *InMemory) SaveNote(key, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notes[key] = text
	return nil
}

// Note implements Store.
func (m *InMemory) Note(key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	text, ok := m.notes[key]
	return text, ok, nil
}
