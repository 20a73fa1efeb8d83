package eventstream

import (
	"time"

	"github.com/google/uuid"

	"github.com/papercomputeco/ragchat/pkg/transcript"
)

const (
	// SchemaVersionV1 is the first version of the event payload schema.
	SchemaVersionV1 = 1

	// EventTypeTurnFinalized is emitted after an assistant turn is frozen and
	// persisted.
	EventTypeTurnFinalized = "ragchat.turn.finalized"
)

// TurnFinalizedEvent is a transport-neutral event payload for a finished
// question and answer.
type TurnFinalizedEvent struct {
	SchemaVersion  int       `json:"schema_version"`
	EventType      string    `json:"event_type"`
	EventID        string    `json:"event_id"`
	EmittedAt      time.Time `json:"emitted_at"`
	ConversationID string    `json:"conversation_id"`

	// Outcome is the assistant turn's final state: completed, cancelled or
	// failed.
	Outcome string     `json:"outcome"`
	Stream  StreamMeta `json:"stream"`

	User      transcript.Turn `json:"user"`
	Assistant transcript.Turn `json:"assistant"`
}

// StreamMeta captures how the answer stream behaved.
type StreamMeta struct {
	TopK       int       `json:"top_k"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	DurationMs int64     `json:"duration_ms"`
	Applied    int       `json:"applied"`
	Malformed  int       `json:"malformed"`
}

// NewTurnFinalizedEvent builds the event for a finished exchange.
func NewTurnFinalizedEvent(ex transcript.Exchange) *TurnFinalizedEvent {
	started := ex.Assistant.CreatedAt
	finished := ex.Assistant.FinishedAt

	return &TurnFinalizedEvent{
		SchemaVersion:  SchemaVersionV1,
		EventType:      EventTypeTurnFinalized,
		EventID:        uuid.NewString(),
		EmittedAt:      time.Now().UTC(),
		ConversationID: ex.ConversationID,
		Outcome:        string(ex.Assistant.State),
		Stream: StreamMeta{
			TopK:       ex.TopK,
			StartedAt:  started,
			FinishedAt: finished,
			DurationMs: finished.Sub(started).Milliseconds(),
			Applied:    ex.Applied,
			Malformed:  ex.Malformed,
		},
		User:      ex.User.Snapshot(),
		Assistant: ex.Assistant.Snapshot(),
	}
}
