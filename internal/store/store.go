// ABOUTME: Store interfaces and data types for parley persistence
// ABOUTME: Defines Conversation, Message and the identity registry/conversation contracts

package store

import (
	"context"
	"errors"
	"strings"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// Conversation is the durable record shared by an unordered pair of identities.
// Participants is ordered canonically (lexicographically smaller first).
type Conversation struct {
	ID           string
	Participants [2]string
	CreatedAt    time.Time
}

// Message is a single immutable entry in a conversation.
// Time and Date are the sender-local wall clock rendered as HH:MM and YYYY-MM-DD.
type Message struct {
	ID             string
	ConversationID string
	Position       int64
	From           string
	Text           string
	Time           string
	Date           string
	CreatedAt      time.Time
}

// IdentityRegistry records every identity ever seen.
type IdentityRegistry interface {
	// RegisterIdentity records the identity. Registering an existing identity is a no-op.
	RegisterIdentity(ctx context.Context, name string) error

	// ListIdentities returns all registered identities in registration order.
	ListIdentities(ctx context.Context) ([]string, error)
}

// ConversationStore holds conversations and their ordered messages.
type ConversationStore interface {
	// FindOrCreateConversation returns the conversation between a and b, creating
	// it when absent. Argument order does not matter, and concurrent callers for
	// the same pair always observe the same conversation.
	FindOrCreateConversation(ctx context.Context, a, b string) (*Conversation, error)

	// GetConversation returns the conversation between a and b or ErrNotFound.
	GetConversation(ctx context.Context, a, b string) (*Conversation, error)

	// ListConversations returns the conversations an identity participates in,
	// oldest first.
	ListConversations(ctx context.Context, identity string) ([]Conversation, error)

	// AppendMessage appends msg to the conversation. Position, ID and
	// ConversationID are filled in by the store.
	AppendMessage(ctx context.Context, conversationID string, msg *Message) error

	// ListMessages returns every message of the conversation in append order.
	ListMessages(ctx context.Context, conversationID string) ([]Message, error)
}

// Store is the full persistence contract used by the gateway.
type Store interface {
	IdentityRegistry
	ConversationStore

	// Ping reports whether the backing database is reachable.
	Ping(ctx context.Context) error

	Close() error
}

// CanonicalPair orders a and b so that both argument orders name the same
// conversation. Stores key conversations by the ordered pair itself.
func CanonicalPair(a, b string) [2]string {
	if b < a {
		a, b = b, a
	}
	return [2]string{a, b}
}

// Other returns the participant of c that is not identity. For a conversation
// an identity holds with itself, identity is returned.
func (c *Conversation) Other(identity string) string {
	if c.Participants[0] == identity {
		return c.Participants[1]
	}
	return c.Participants[0]
}

// isConstraintViolation checks if the error is a UNIQUE constraint violation
func isConstraintViolation(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "UNIQUE constraint failed") ||
		strings.Contains(errStr, "constraint failed") ||
		strings.Contains(errStr, "duplicate key value")
}
