// Package inmemory provides a map-backed storage driver for tests and
// throwaway sessions.
package inmemory

import (
	"cmp"
	"context"
	"slices"
	"sync"

	"github.com/papercomputeco/ragchat/pkg/storage"
	"github.com/papercomputeco/ragchat/pkg/transcript"
)

// Driver implements storage.Driver using an in-memory map.
type Driver struct {
	// mu is a read write sync mutex for locking the mapping of exchanges
	mu sync.RWMutex

	// exchanges is keyed by assistant turn ID
	exchanges map[string]transcript.Exchange

	// byConversation holds assistant turn IDs per conversation in insertion
	// order
	byConversation map[string][]string
}

// NewDriver creates a new in-memory driver.
func NewDriver() *Driver {
	return &Driver{
		exchanges:      make(map[string]transcript.Exchange),
		byConversation: make(map[string][]string),
	}
}

// Put stores a copy of the exchange. Returns false if it already existed.
func (s *Driver) Put(_ context.Context, ex *transcript.Exchange) (bool, error) {
	if err := storage.ValidateExchange(ex); err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id := ex.Assistant.ID
	if _, ok := s.exchanges[id]; ok {
		return false, nil
	}

	s.exchanges[id] = copyExchange(*ex)
	s.byConversation[ex.ConversationID] = append(s.byConversation[ex.ConversationID], id)
	return true, nil
}

// Get retrieves an exchange by its assistant turn ID.
func (s *Driver) Get(_ context.Context, turnID string) (*transcript.Exchange, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ex, ok := s.exchanges[turnID]
	if !ok {
		return nil, storage.NotFoundError{ID: turnID}
	}

	out := copyExchange(ex)
	return &out, nil
}

// Conversation returns a conversation's exchanges ordered by when the
// question was asked.
func (s *Driver) Conversation(_ context.Context, conversationID string) ([]transcript.Exchange, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.byConversation[conversationID]
	out := make([]transcript.Exchange, 0, len(ids))
	for _, id := range ids {
		out = append(out, copyExchange(s.exchanges[id]))
	}

	slices.SortStableFunc(out, func(a, b transcript.Exchange) int {
		return a.User.CreatedAt.Compare(b.User.CreatedAt)
	})
	return out, nil
}

// Conversations summarizes every conversation, most recently active first.
func (s *Driver) Conversations(ctx context.Context) ([]storage.ConversationSummary, error) {
	s.mu.RLock()
	ids := make([]string, 0, len(s.byConversation))
	for id := range s.byConversation {
		ids = append(ids, id)
	}
	s.mu.RUnlock()

	summaries := make([]storage.ConversationSummary, 0, len(ids))
	for _, id := range ids {
		exchanges, err := s.Conversation(ctx, id)
		if err != nil {
			return nil, err
		}

		summary := storage.ConversationSummary{
			ID:         id,
			Exchanges:  len(exchanges),
			FirstQuery: exchanges[0].User.Content,
			StartedAt:  exchanges[0].User.CreatedAt,
		}
		for _, ex := range exchanges {
			if ex.Assistant.FinishedAt.After(summary.UpdatedAt) {
				summary.UpdatedAt = ex.Assistant.FinishedAt
			}
		}
		summaries = append(summaries, summary)
	}

	slices.SortFunc(summaries, func(a, b storage.ConversationSummary) int {
		if c := b.UpdatedAt.Compare(a.UpdatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return summaries, nil
}

// Close is a no-op for the in-memory driver.
func (s *Driver) Close() error {
	return nil
}

func copyExchange(ex transcript.Exchange) transcript.Exchange {
	ex.User = ex.User.Snapshot()
	ex.Assistant = ex.Assistant.Snapshot()
	return ex
}
