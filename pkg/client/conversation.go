package client

import (
	"context"
	"io"
	"sync"

	"go.uber.org/zap"

	"github.com/papercomputeco/ragchat/pkg/stream"
	"github.com/papercomputeco/ragchat/pkg/transcript"
)

// BusyPolicy decides what StartStream does while another stream is active.
type BusyPolicy int

const (
	// BusyReject fails the new query with ErrBusy.
	BusyReject BusyPolicy = iota

	// BusyCancel cancels the active stream, waits for it to finalize, and
	// then starts the new one.
	BusyCancel
)

// ParseBusyPolicy maps "reject" and "cancel" to a BusyPolicy.
func ParseBusyPolicy(s string) (BusyPolicy, bool) {
	switch s {
	case "reject", "":
		return BusyReject, true
	case "cancel":
		return BusyCancel, true
	default:
		return BusyReject, false
	}
}

// Conversation is a transcript plus the single stream that may be writing its
// newest assistant turn.
type Conversation struct {
	client     *Client
	transcript *transcript.Transcript
	policy     BusyPolicy
	onFinalize func(transcript.Exchange)

	mu     sync.Mutex
	active *Handle
}

// ConversationOption configures a Conversation.
type ConversationOption func(*Conversation)

// WithBusyPolicy sets the policy for queries submitted mid-stream.
func WithBusyPolicy(p BusyPolicy) ConversationOption {
	return func(c *Conversation) {
		c.policy = p
	}
}

// WithTranscript resumes an existing transcript instead of starting empty.
func WithTranscript(t *transcript.Transcript) ConversationOption {
	return func(c *Conversation) {
		c.transcript = t
	}
}

// WithFinalizeHook registers fn to receive every finished exchange, after the
// turn is committed and before the observer's OnTerminal runs.
func WithFinalizeHook(fn func(transcript.Exchange)) ConversationOption {
	return func(c *Conversation) {
		c.onFinalize = fn
	}
}

// NewConversation starts a conversation against this client's backend.
func (c *Client) NewConversation(opts ...ConversationOption) *Conversation {
	conv := &Conversation{client: c}
	for _, opt := range opts {
		opt(conv)
	}
	if conv.transcript == nil {
		conv.transcript = transcript.New()
	}
	return conv
}

// Transcript returns the conversation history. Turns still streaming appear
// as empty placeholders until they finalize.
func (c *Conversation) Transcript() *transcript.Transcript {
	return c.transcript
}

// Active returns the handle of the running stream, or nil.
func (c *Conversation) Active() *Handle {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// StreamOption configures a single stream.
type StreamOption func(*streamRun)

// WithTee writes every raw byte of the answer stream to w, e.g. to record it
// for replay. A failing writer is logged and dropped; it never fails the
// stream.
func WithTee(w io.Writer) StreamOption {
	return func(r *streamRun) {
		r.tee = w
	}
}

// StartStream submits query, appending a user turn and an assistant
// placeholder to the transcript, and streams the answer in the background.
// The returned Handle cancels or awaits the stream. Under BusyCancel it blocks
// until the previous stream has finalized, so it must not be called from that
// stream's Observer.
func (c *Conversation) StartStream(ctx context.Context, query string, topK int, obs Observer, opts ...StreamOption) (*Handle, error) {
	if topK <= 0 {
		topK = DefaultTopK
	}
	if obs == nil {
		obs = ObserverFuncs{}
	}

	for {
		c.mu.Lock()
		prev := c.active
		if prev == nil {
			break
		}
		c.mu.Unlock()

		if c.policy == BusyReject {
			return nil, ErrBusy
		}
		prev.Cancel()
		<-prev.Done()
	}
	// c.mu is held here.

	index, live := c.transcript.Begin(query)
	streamCtx, cancel := context.WithCancelCause(ctx)

	h := &Handle{
		turnID: live.ID,
		index:  index,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	c.active = h
	c.mu.Unlock()

	run := &streamRun{
		query:  query,
		topK:   topK,
		turn:   live,
		obs:    obs,
		cancel: cancel,
		interp: stream.NewInterpreter(c.client.logger),
	}
	for _, opt := range opts {
		opt(run)
	}

	go c.run(streamCtx, h, run)

	return h, nil
}

// run is the stream's reader goroutine. It is the only code touching the live
// turn until the turn is committed.
func (c *Conversation) run(ctx context.Context, h *Handle, run *streamRun) {
	logger := c.client.logger.With(
		zap.String("conversation_id", c.transcript.ID()),
		zap.String("turn_id", run.turn.ID),
	)

	outcome := c.client.consume(ctx, run)

	state, reason := outcome.state()
	run.turn.Finish(state, reason)
	h.cancel(nil)

	if err := c.transcript.Commit(h.index, run.turn); err != nil {
		logger.Error("committing finished turn", zap.Error(err))
	}

	stats := run.interp.Stats()
	logger.Debug("answer stream finished",
		zap.Stringer("outcome", outcome),
		zap.Int("applied", stats.Applied),
		zap.Int("malformed", stats.Malformed),
		zap.Int("content_length", len(run.turn.Content)),
	)

	c.mu.Lock()
	if c.active == h {
		c.active = nil
	}
	c.mu.Unlock()

	final := run.turn.Snapshot()
	if c.onFinalize != nil {
		user, _ := c.transcript.Turn(h.index - 1)
		c.onFinalize(transcript.Exchange{
			ConversationID: c.transcript.ID(),
			TopK:           run.topK,
			User:           user,
			Assistant:      final,
			Applied:        stats.Applied,
			Malformed:      stats.Malformed,
		})
	}

	h.outcome = outcome
	run.obs.OnTerminal(final, outcome)
	close(h.done)
}

// Handle controls one running stream.
type Handle struct {
	turnID string
	index  int
	cancel context.CancelCauseFunc
	done   chan struct{}

	// outcome is written once before done is closed.
	outcome Outcome
}

// TurnID returns the ID of the assistant turn this stream is writing.
func (h *Handle) TurnID() string {
	return h.turnID
}

// Index returns the assistant turn's position in the transcript.
func (h *Handle) Index() int {
	return h.index
}

// Cancel stops consuming the stream and finalizes the turn as it stands,
// reporting Cancelled. Calling it more than once, or after the stream has
// ended, has no further effect.
func (h *Handle) Cancel() {
	h.cancel(ErrCancelled)
}

// Done is closed once the stream has finalized and OnTerminal has returned.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Wait blocks until the stream finalizes and returns its outcome.
func (h *Handle) Wait() Outcome {
	<-h.done
	return h.outcome
}
