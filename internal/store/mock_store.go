// ABOUTME: Mock Store implementation for testing
// ABOUTME: Allows tests to run without SQLite

package store

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MockStore is an in-memory Store implementation for testing.
type MockStore struct {
	mu            sync.RWMutex
	conversations map[string]*ConversationMetadata

	// SaveErr, when set, is returned by SaveConversation.
	SaveErr error

	// SaveCalls counts SaveConversation invocations.
	SaveCalls int
}

// NewMockStore creates a new MockStore.
func NewMockStore() *MockStore {
	return &MockStore{
		conversations: make(map[string]*ConversationMetadata),
	}
}

// CreateConversation stores a new conversation.
func (m *MockStore) CreateConversation(ctx context.Context, conv *ConversationMetadata) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.conversations[conv.ConversationID]; exists {
		return ErrDuplicateConversation
	}

	now := time.Now().UTC()
	if conv.CreatedAt.IsZero() {
		conv.CreatedAt = now
	}
	conv.UpdatedAt = now

	// Make a copy to avoid external modification
	c := *conv
	m.conversations[c.ConversationID] = &c
	return nil
}

// GetConversation retrieves a conversation by ID.
func (m *MockStore) GetConversation(ctx context.Context, conversationID string) (*ConversationMetadata, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.conversations[conversationID]
	if !ok {
		return nil, ErrNotFound
	}

	// Return a copy
	result := *c
	return &result, nil
}

// SaveConversation updates an existing conversation.
func (m *MockStore) SaveConversation(ctx context.Context, conv *ConversationMetadata) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.SaveCalls++
	if m.SaveErr != nil {
		return m.SaveErr
	}

	if _, ok := m.conversations[conv.ConversationID]; !ok {
		return ErrNotFound
	}

	conv.UpdatedAt = time.Now().UTC()
	c := *conv
	m.conversations[c.ConversationID] = &c
	return nil
}

// ListConversationsByUser returns all conversations owned by a user, newest first.
func (m *MockStore) ListConversationsByUser(ctx context.Context, userID string) ([]*ConversationMetadata, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var convs []*ConversationMetadata
	for _, c := range m.conversations {
		if c.UserID == userID {
			result := *c
			convs = append(convs, &result)
		}
	}
	sort.Slice(convs, func(i, j int) bool {
		return convs[i].CreatedAt.After(convs[j].CreatedAt)
	})
	return convs, nil
}

// DeleteConversation removes a conversation.
func (m *MockStore) DeleteConversation(ctx context.Context, conversationID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.conversations, conversationID)
	return nil
}

// Close is a no-op for the mock store.
func (m *MockStore) Close() error {
	return nil
}
