// ABOUTME: Mock Store implementation for testing
// ABOUTME: Allows tests to run without SQLite and to inject collaborator failures

package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MockStore is an in-memory Store implementation for testing.
type MockStore struct {
	mu            sync.RWMutex
	identities    []string
	identitySet   map[string]struct{}
	conversations map[[2]string]*Conversation // keyed by canonical pair
	order         [][2]string                 // pairs in creation order
	messages      map[string][]Message     // keyed by conversation ID
	seq           int64

	// Err, when set, is returned by every operation.
	Err error
}

// NewMockStore creates a new MockStore.
func NewMockStore() *MockStore {
	return &MockStore{
		identitySet:   make(map[string]struct{}),
		conversations: make(map[[2]string]*Conversation),
		messages:      make(map[string][]Message),
	}
}

// SetErr makes every subsequent call fail with err. Pass nil to recover.
func (m *MockStore) SetErr(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Err = err
}

// RegisterIdentity records an identity once.
func (m *MockStore) RegisterIdentity(ctx context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.Err != nil {
		return m.Err
	}
	if _, ok := m.identitySet[name]; ok {
		return nil
	}
	m.identitySet[name] = struct{}{}
	m.identities = append(m.identities, name)
	return nil
}

// ListIdentities returns identities in registration order.
func (m *MockStore) ListIdentities(ctx context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.Err != nil {
		return nil, m.Err
	}
	result := make([]string, len(m.identities))
	copy(result, m.identities)
	return result, nil
}

// FindOrCreateConversation returns or creates the conversation for the pair.
func (m *MockStore) FindOrCreateConversation(ctx context.Context, a, b string) (*Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.Err != nil {
		return nil, m.Err
	}

	key := CanonicalPair(a, b)
	if conv, ok := m.conversations[key]; ok {
		result := *conv
		return &result, nil
	}

	conv := &Conversation{
		ID:           uuid.New().String(),
		Participants: key,
		CreatedAt:    time.Now(),
	}
	m.conversations[key] = conv
	m.order = append(m.order, key)

	result := *conv
	return &result, nil
}

// GetConversation returns the conversation for the pair or ErrNotFound.
func (m *MockStore) GetConversation(ctx context.Context, a, b string) (*Conversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.Err != nil {
		return nil, m.Err
	}

	conv, ok := m.conversations[CanonicalPair(a, b)]
	if !ok {
		return nil, ErrNotFound
	}
	result := *conv
	return &result, nil
}

// ListConversations returns the identity's conversations in creation order.
func (m *MockStore) ListConversations(ctx context.Context, identity string) ([]Conversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.Err != nil {
		return nil, m.Err
	}

	result := []Conversation{}
	for _, key := range m.order {
		conv := m.conversations[key]
		if conv.Participants[0] == identity || conv.Participants[1] == identity {
			result = append(result, *conv)
		}
	}
	return result, nil
}

// AppendMessage appends a copy of msg to the conversation.
func (m *MockStore) AppendMessage(ctx context.Context, conversationID string, msg *Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.Err != nil {
		return m.Err
	}
	if !m.hasConversationLocked(conversationID) {
		return fmt.Errorf("appending message to %s: %w", conversationID, ErrNotFound)
	}

	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}
	m.seq++
	msg.Position = m.seq
	msg.ConversationID = conversationID

	m.messages[conversationID] = append(m.messages[conversationID], *msg)
	return nil
}

// ListMessages returns a copy of the conversation's messages.
func (m *MockStore) ListMessages(ctx context.Context, conversationID string) ([]Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.Err != nil {
		return nil, m.Err
	}

	msgs := m.messages[conversationID]
	result := make([]Message, len(msgs))
	copy(result, msgs)
	return result, nil
}

// Ping reports the injected error, if any.
func (m *MockStore) Ping(ctx context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.Err
}

// Close is a no-op for the mock store.
func (m *MockStore) Close() error {
	return nil
}

// ConversationCount returns how many conversations exist. Test helper.
func (m *MockStore) ConversationCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.conversations)
}

func (m *MockStore) hasConversationLocked(id string) bool {
	for _, conv := range m.conversations {
		if conv.ID == id {
			return true
		}
	}
	return false
}

// Compile-time interface checks
var (
	_ Store = (*MockStore)(nil)
	_ Store = (*SQLiteStore)(nil)
	_ Store = (*PostgresStore)(nil)
)
