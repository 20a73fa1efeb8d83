package client

import (
	"errors"

	"github.com/papercomputeco/ragchat/pkg/transcript"
)

var (
	// ErrBusy is returned by StartStream when a stream is already active and
	// the conversation's policy is BusyReject.
	ErrBusy = errors.New("a stream is already active for this conversation")

	// ErrIdleTimeout is the failure reason when no chunk arrives within the
	// configured idle timeout.
	ErrIdleTimeout = errors.New("stream idle timeout")

	// ErrCancelled is the cancellation cause used by Handle.Cancel.
	ErrCancelled = errors.New("stream cancelled")
)

// OutcomeKind classifies how a stream ended.
type OutcomeKind int

const (
	// Completed streams reached end-of-stream normally.
	Completed OutcomeKind = iota

	// Cancelled streams were stopped by the caller. Not an error.
	Cancelled

	// Failed streams ended on a transport failure, non-success status, or
	// idle timeout.
	Failed
)

func (k OutcomeKind) String() string {
	switch k {
	case Completed:
		return "completed"
	case Cancelled:
		return "cancelled"
	case Failed:
		return "error"
	default:
		return "unknown"
	}
}

// Outcome is the terminal result of a stream. Err is set only for Failed.
type Outcome struct {
	Kind OutcomeKind
	Err  error
}

func (o Outcome) String() string {
	if o.Kind == Failed && o.Err != nil {
		return "error: " + o.Err.Error()
	}
	return o.Kind.String()
}

// state maps the outcome onto the frozen turn state and failure reason.
func (o Outcome) state() (transcript.State, string) {
	switch o.Kind {
	case Cancelled:
		return transcript.StateCancelled, ""
	case Failed:
		reason := "unknown error"
		if o.Err != nil {
			reason = o.Err.Error()
		}
		return transcript.StateFailed, reason
	default:
		return transcript.StateCompleted, ""
	}
}

// Observer receives turn snapshots from a stream. Both methods are called
// synchronously on the stream's reader goroutine, so slow observers slow the
// stream; snapshots are deep copies and may be retained freely.
//
// Observer methods must not call StartStream on the same conversation
// directly. Under BusyCancel it would wait for the calling stream to finish,
// which never happens while the callback runs. Start the follow-up query from
// another goroutine instead.
type Observer interface {
	// OnUpdate is called after every event that changed the turn.
	OnUpdate(turn transcript.Turn)

	// OnTerminal is called exactly once, with the frozen turn.
	OnTerminal(turn transcript.Turn, outcome Outcome)
}

// ObserverFuncs adapts plain functions to Observer. Nil fields are skipped.
type ObserverFuncs struct {
	Update   func(turn transcript.Turn)
	Terminal func(turn transcript.Turn, outcome Outcome)
}

func (o ObserverFuncs) OnUpdate(turn transcript.Turn) {
	if o.Update != nil {
		o.Update(turn)
	}
}

func (o ObserverFuncs) OnTerminal(turn transcript.Turn, outcome Outcome) {
	if o.Terminal != nil {
		o.Terminal(turn, outcome)
	}
}
