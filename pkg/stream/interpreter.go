package stream

import (
	"errors"

	"go.uber.org/zap"

	"github.com/papercomputeco/ragchat/pkg/transcript"
)

// Outcome is the result class of applying one record.
type Outcome int

const (
	// Skipped records leave the turn untouched and trigger no update.
	Skipped Outcome = iota

	// Applied records mutated the turn; observers must be notified.
	Applied
)

func (o Outcome) String() string {
	if o == Applied {
		return "applied"
	}
	return "skipped"
}

// SkipReason explains a Skipped outcome.
type SkipReason string

const (
	ReasonEmpty     SkipReason = "empty"
	ReasonMalformed SkipReason = "malformed"

	// ReasonRejected means the event was valid but the target turn refused
	// it, e.g. because it was already frozen.
	ReasonRejected SkipReason = "rejected"
)

// Result describes what Apply did with a record.
type Result struct {
	Outcome Outcome

	// Kind is set for Applied outcomes.
	Kind Kind

	// Reason and Err are set for Skipped outcomes (Err is nil for empty
	// records).
	Reason SkipReason
	Err    error
}

// Applied reports whether the record mutated the turn.
func (r Result) Applied() bool {
	return r.Outcome == Applied
}

// Stats counts the records an Interpreter has seen.
type Stats struct {
	Applied   int
	Tokens    int
	Metas     int
	Skipped   int
	Malformed int
}

// Interpreter applies records to a turn in the order they are given. It keeps
// counters for observability and is not safe for concurrent use; each stream
// owns its own Interpreter.
type Interpreter struct {
	logger *zap.Logger
	stats  Stats
}

// NewInterpreter returns an Interpreter that logs skipped records to logger.
// A nil logger discards them.
func NewInterpreter(logger *zap.Logger) *Interpreter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Interpreter{logger: logger}
}

// Apply classifies record and applies it to target. It never panics and never
// aborts the stream: every anomaly becomes a Skipped result.
//
// Token events append their content. Meta events replace the source list
// wholesale; when several arrive, the last one wins.
func (i *Interpreter) Apply(record string, target *transcript.Turn) Result {
	ev, err := Decode(record)
	if err != nil {
		if errors.Is(err, ErrEmptyRecord) {
			return i.skip(ReasonEmpty, nil)
		}

		i.stats.Malformed++
		i.logger.Debug("skipping malformed stream record",
			zap.Error(err),
			zap.String("record", record),
		)
		return i.skip(ReasonMalformed, err)
	}

	if target == nil {
		return i.skip(ReasonRejected, errors.New("no target turn"))
	}

	switch ev.Kind {
	case KindToken:
		err = target.AppendContent(ev.Content)
	case KindMeta:
		err = target.SetSources(ev.Sources)
	}
	if err != nil {
		i.logger.Debug("turn rejected stream event",
			zap.String("turn_id", target.ID),
			zap.String("kind", string(ev.Kind)),
			zap.Error(err),
		)
		return i.skip(ReasonRejected, err)
	}

	i.stats.Applied++
	if ev.Kind == KindToken {
		i.stats.Tokens++
	} else {
		i.stats.Metas++
	}

	return Result{Outcome: Applied, Kind: ev.Kind}
}

// Stats returns the counters accumulated so far.
func (i *Interpreter) Stats() Stats {
	return i.stats
}

func (i *Interpreter) skip(reason SkipReason, err error) Result {
	i.stats.Skipped++
	return Result{Outcome: Skipped, Reason: reason, Err: err}
}
