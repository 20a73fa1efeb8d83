// Package transcript models a conversation with a retrieval-augmented
// backend: an append-only list of user and assistant turns, where the newest
// assistant turn grows while its answer streams in and is frozen once the
// stream ends.
package transcript

import (
	"errors"
	"slices"
	"time"

	"github.com/google/uuid"
)

// Role identifies who authored a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// State is the lifecycle state of a turn.
type State string

const (
	// StateStreaming is a live assistant turn still receiving events.
	StateStreaming State = "streaming"

	// StateCompleted is a turn whose stream ended normally. User turns are
	// created completed.
	StateCompleted State = "completed"

	// StateCancelled is a turn whose stream was cancelled by the caller.
	StateCancelled State = "cancelled"

	// StateFailed is a turn whose stream ended on a transport failure or
	// idle timeout.
	StateFailed State = "failed"
)

// Terminal reports whether s is a frozen state.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateCancelled || s == StateFailed
}

var (
	// ErrFrozen is returned when mutating a turn that has already finished.
	ErrFrozen = errors.New("turn is frozen")

	// ErrUserTurn is returned when mutating a user turn.
	ErrUserTurn = errors.New("user turns are immutable")
)

// Turn is one message in the transcript.
type Turn struct {
	ID      string   `json:"id"`
	Role    Role     `json:"role"`
	Content string   `json:"content"`
	Sources []Source `json:"sources"`
	State   State    `json:"state"`

	// Err holds the failure reason for StateFailed turns.
	Err string `json:"error,omitempty"`

	CreatedAt  time.Time `json:"created_at"`
	FinishedAt time.Time `json:"finished_at,omitzero"`
}

// NewUserTurn returns an immutable user turn carrying the query text.
func NewUserTurn(query string) *Turn {
	now := time.Now()
	return &Turn{
		ID:         uuid.NewString(),
		Role:       RoleUser,
		Content:    query,
		Sources:    []Source{},
		State:      StateCompleted,
		CreatedAt:  now,
		FinishedAt: now,
	}
}

// NewAssistantTurn returns an empty, streaming assistant turn.
func NewAssistantTurn() *Turn {
	return &Turn{
		ID:        uuid.NewString(),
		Role:      RoleAssistant,
		Sources:   []Source{},
		State:     StateStreaming,
		CreatedAt: time.Now(),
	}
}

// AppendContent appends s to the answer. Content only ever grows.
func (t *Turn) AppendContent(s string) error {
	if err := t.mutable(); err != nil {
		return err
	}
	t.Content += s
	return nil
}

// SetSources replaces the source list wholesale. Sources are never merged.
func (t *Turn) SetSources(sources []Source) error {
	if err := t.mutable(); err != nil {
		return err
	}
	t.Sources = cloneSources(sources)
	return nil
}

// Finish freezes the turn in the given terminal state. It returns false if
// the turn was already frozen, in which case nothing changes.
func (t *Turn) Finish(state State, reason string) bool {
	if t.State.Terminal() || !state.Terminal() {
		return false
	}

	t.State = state
	t.Err = reason
	t.FinishedAt = time.Now()
	return true
}

// Snapshot returns a deep copy of the turn that is safe to retain while the
// original keeps changing.
func (t *Turn) Snapshot() Turn {
	snap := *t
	snap.Sources = cloneSources(t.Sources)
	return snap
}

func (t *Turn) mutable() error {
	if t.Role == RoleUser {
		return ErrUserTurn
	}
	if t.State.Terminal() {
		return ErrFrozen
	}
	return nil
}

func cloneSources(sources []Source) []Source {
	out := make([]Source, len(sources))
	for i, s := range sources {
		out[i] = s.clone()
	}
	return out
}

// EqualSources reports whether two source lists are structurally equal, in
// order.
func EqualSources(a, b []Source) bool {
	return slices.EqualFunc(a, b, Source.Equal)
}
