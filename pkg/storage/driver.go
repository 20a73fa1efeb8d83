// Package storage persists finished question/answer exchanges so
// conversations can be browsed and resumed.
package storage

import (
	"context"
	"time"

	"github.com/papercomputeco/ragchat/pkg/transcript"
)

// Driver defines the interface for persisting and retrieving exchanges in a
// storage backend. Exchanges are keyed by their assistant turn ID and are
// immutable once stored.
type Driver interface {
	// Put stores an exchange. Returns true if it was newly inserted, false if
	// an exchange with the same assistant turn ID already exists, in which
	// case it is a no-op.
	Put(ctx context.Context, ex *transcript.Exchange) (bool, error)

	// Get retrieves an exchange by its assistant turn ID.
	Get(ctx context.Context, turnID string) (*transcript.Exchange, error)

	// Conversation returns a conversation's exchanges, oldest first.
	Conversation(ctx context.Context, conversationID string) ([]transcript.Exchange, error)

	// Conversations summarizes every stored conversation, most recently
	// active first.
	Conversations(ctx context.Context) ([]ConversationSummary, error)

	// Close closes the store and releases any resources.
	Close() error
}

// ConversationSummary describes one stored conversation.
type ConversationSummary struct {
	ID         string    `json:"id"`
	Exchanges  int       `json:"exchanges"`
	FirstQuery string    `json:"first_query"`
	StartedAt  time.Time `json:"started_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}
