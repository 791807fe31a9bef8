// Package conversation provides ConversationStore implementations. The
// in-memory store is volatile and best suited for tests, examples and
// ephemeral demo servers; a production deployment backs the same interface
// with a durable transcript log.
package conversation

import (
	"fmt"
	"sync"

	"github.com/hupe1980/promptmesh/core"
)

// InMemoryStore is a volatile ConversationStore keeping conversations in a
// process local map. It is safe for concurrent access. Reads return clones to
// prevent external mutation of internal state.
type InMemoryStore struct {
	mu            sync.RWMutex
	conversations map[string]*core.Conversation
}

// NewInMemoryStore constructs an empty in-memory conversation store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{conversations: make(map[string]*core.Conversation)}
}

// Create allocates a new active conversation. Creating an existing id fails.
func (s *InMemoryStore) Create(id string) (*core.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.conversations[id]; exists {
		return nil, fmt.Errorf("conversation %s already exists", id)
	}

	conv := core.NewConversation(id)
	s.conversations[id] = conv

	return conv.Clone(), nil
}

// Get returns a clone of an existing conversation.
func (s *InMemoryStore) Get(id string) (*core.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conv, ok := s.conversations[id]
	if !ok {
		return nil, fmt.Errorf("conversation %s not found", id)
	}

	return conv.Clone(), nil
}

// Append adds a message to the transcript.
func (s *InMemoryStore) Append(conversationID string, msg core.Message) error {
	conv, err := s.lookup(conversationID)
	if err != nil {
		return err
	}
	conv.Append(msg)
	return nil
}

// SetState records the engine state label on the conversation.
func (s *InMemoryStore) SetState(conversationID, state string) error {
	conv, err := s.lookup(conversationID)
	if err != nil {
		return err
	}
	conv.SetState(state)
	return nil
}

// SetTokenEstimate records the accumulated token estimate.
func (s *InMemoryStore) SetTokenEstimate(conversationID string, n int) error {
	conv, err := s.lookup(conversationID)
	if err != nil {
		return err
	}
	conv.SetTokenEstimate(n)
	return nil
}

// SetStatus updates the conversation lifecycle status.
func (s *InMemoryStore) SetStatus(conversationID string, status core.ConversationStatus) error {
	conv, err := s.lookup(conversationID)
	if err != nil {
		return err
	}
	if status == core.ConversationTerminated {
		conv.Terminate()
	}
	return nil
}

func (s *InMemoryStore) lookup(conversationID string) (*core.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conv, ok := s.conversations[conversationID]
	if !ok {
		return nil, fmt.Errorf("conversation %s not found", conversationID)
	}
	return conv, nil
}
