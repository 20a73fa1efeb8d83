package transcript

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// Transcript is the conversation history: an append-only sequence of turns.
// Live assistant turns are owned by their stream until frozen, then written
// back with Commit as an indexed update. It is safe for concurrent use.
type Transcript struct {
	id string

	mu    sync.RWMutex
	turns []Turn
}

// New returns an empty transcript with a fresh conversation ID.
func New() *Transcript {
	return &Transcript{id: uuid.NewString()}
}

// Restore returns a transcript holding previously persisted turns.
func Restore(id string, turns []Turn) *Transcript {
	t := &Transcript{id: id}
	for i := range turns {
		t.turns = append(t.turns, turns[i].Snapshot())
	}
	return t
}

// ID returns the conversation ID.
func (t *Transcript) ID() string {
	return t.id
}

// Begin appends an immutable user turn for query followed by an assistant
// placeholder. It returns the placeholder's index and the live assistant turn,
// which the caller owns until it is committed.
func (t *Transcript) Begin(query string) (int, *Turn) {
	user := NewUserTurn(query)
	assistant := NewAssistantTurn()

	t.mu.Lock()
	defer t.mu.Unlock()

	t.turns = append(t.turns, user.Snapshot(), assistant.Snapshot())
	return len(t.turns) - 1, assistant
}

// Commit stores the frozen turn at index, replacing the placeholder written
// by Begin.
func (t *Transcript) Commit(index int, turn *Turn) error {
	if turn == nil {
		return fmt.Errorf("cannot commit nil turn")
	}
	if !turn.State.Terminal() {
		return fmt.Errorf("cannot commit turn %s in state %s", turn.ID, turn.State)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if index < 0 || index >= len(t.turns) {
		return fmt.Errorf("turn index %d out of range [0, %d)", index, len(t.turns))
	}
	if t.turns[index].ID != turn.ID {
		return fmt.Errorf("turn index %d holds %s, not %s", index, t.turns[index].ID, turn.ID)
	}
	if t.turns[index].State.Terminal() {
		return fmt.Errorf("turn %s already committed: %w", turn.ID, ErrFrozen)
	}

	t.turns[index] = turn.Snapshot()
	return nil
}

// Turn returns a snapshot of the turn at index.
func (t *Transcript) Turn(index int) (Turn, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if index < 0 || index >= len(t.turns) {
		return Turn{}, false
	}
	return t.turns[index].Snapshot(), true
}

// Turns returns snapshots of every turn, oldest first.
func (t *Transcript) Turns() []Turn {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]Turn, len(t.turns))
	for i := range t.turns {
		out[i] = t.turns[i].Snapshot()
	}
	return out
}

// Len returns the number of turns.
func (t *Transcript) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.turns)
}
