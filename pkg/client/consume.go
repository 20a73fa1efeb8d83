package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/papercomputeco/ragchat/pkg/ndjson"
	"github.com/papercomputeco/ragchat/pkg/stream"
	"github.com/papercomputeco/ragchat/pkg/transcript"
)

// streamRun is the state of one answer stream, owned by its reader goroutine.
type streamRun struct {
	query  string
	topK   int
	turn   *transcript.Turn
	obs    Observer
	tee    io.Writer
	cancel context.CancelCauseFunc
	interp *stream.Interpreter
}

// consume opens the stream and applies records to run.turn until the body
// ends, fails, or ctx is cancelled. It does not freeze the turn.
func (c *Client) consume(ctx context.Context, run *streamRun) Outcome {
	ctx, span := c.tracer.Start(ctx, "ragchat.stream",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("ragchat.turn_id", run.turn.ID),
			attribute.Int("ragchat.top_k", run.topK),
			attribute.Int("ragchat.query_length", len(run.query)),
		),
	)
	defer span.End()

	outcome := c.read(ctx, span, run)

	stats := run.interp.Stats()
	span.SetAttributes(
		attribute.String("ragchat.outcome", outcome.Kind.String()),
		attribute.Int("ragchat.records.applied", stats.Applied),
		attribute.Int("ragchat.records.malformed", stats.Malformed),
		attribute.Int("ragchat.content_length", len(run.turn.Content)),
	)
	if outcome.Kind == Failed {
		span.RecordError(outcome.Err)
		span.SetStatus(codes.Error, outcome.Err.Error())
	}

	return outcome
}

func (c *Client) read(ctx context.Context, span trace.Span, run *streamRun) Outcome {
	touch := func() {}
	if idle := c.config.IdleTimeout; idle > 0 {
		// The timer covers the wait for headers and is pushed out again by
		// every chunk.
		timer := time.AfterFunc(idle, func() { run.cancel(ErrIdleTimeout) })
		defer timer.Stop()
		touch = func() { timer.Reset(idle) }
	}

	body, err := c.open(ctx, run.query, run.topK)
	if err != nil {
		return outcomeFor(ctx, err)
	}
	defer body.Close()

	var (
		framer     ndjson.Framer
		buf        = make([]byte, defaultChunkSize)
		firstChunk = true
		teeFailed  bool
	)

	for {
		if ctx.Err() != nil {
			return outcomeFor(ctx, ctx.Err())
		}

		n, rerr := body.Read(buf)
		if n > 0 {
			touch()
			if firstChunk {
				span.AddEvent("first chunk")
				firstChunk = false
			}

			if run.tee != nil && !teeFailed {
				if _, werr := run.tee.Write(buf[:n]); werr != nil {
					teeFailed = true
					c.logger.Warn("recording answer stream failed, continuing without it",
						zap.String("turn_id", run.turn.ID),
						zap.Error(werr),
					)
				}
			}

			for record := range framer.Feed(string(buf[:n])) {
				if ctx.Err() != nil {
					return outcomeFor(ctx, ctx.Err())
				}
				c.apply(run, record)
			}
		}

		if rerr == nil {
			continue
		}

		if errors.Is(rerr, io.EOF) {
			if tail, ok := framer.Flush(); ok {
				c.apply(run, tail)
			}
			return Outcome{Kind: Completed}
		}

		return outcomeFor(ctx, fmt.Errorf("reading answer stream: %w", rerr))
	}
}

// apply hands one record to the interpreter and notifies the observer when
// the turn changed.
func (c *Client) apply(run *streamRun, record string) {
	if run.interp.Apply(record, run.turn).Applied() {
		run.obs.OnUpdate(run.turn.Snapshot())
	}
}

// outcomeFor classifies an error that ended a stream. Cancellation through
// Handle.Cancel or the parent context is not a failure; an idle timeout is.
func outcomeFor(ctx context.Context, err error) Outcome {
	if ctx.Err() != nil {
		cause := context.Cause(ctx)
		switch {
		case errors.Is(cause, ErrIdleTimeout):
			return Outcome{Kind: Failed, Err: ErrIdleTimeout}
		case errors.Is(cause, ErrCancelled), errors.Is(cause, context.Canceled):
			return Outcome{Kind: Cancelled}
		default:
			return Outcome{Kind: Failed, Err: cause}
		}
	}

	return Outcome{Kind: Failed, Err: err}
}
