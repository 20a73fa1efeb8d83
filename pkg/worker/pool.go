// Package worker provides an asynchronous worker pool for persisting finished
// exchanges with the provided storage.Driver and publishing turn events with
// the provided eventstream.Publisher.
//
// The pool keeps storage and publishing off the stream's reader goroutine so
// that a slow database or broker never delays the next answer.
package worker

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/papercomputeco/ragchat/pkg/eventstream"
	"github.com/papercomputeco/ragchat/pkg/storage"
	"github.com/papercomputeco/ragchat/pkg/transcript"
	"github.com/papercomputeco/ragchat/pkg/utils"
)

var (
	defaultNumWorkers   uint = 2
	defaultJobQueueSize uint = 256
	defaultJobTimeout        = 30 * time.Second
)

// queryPreviewLen bounds the query excerpt in debug logs.
const queryPreviewLen = 60

// Job is a unit of work for the worker pool to execute against.
type Job struct {
	Exchange transcript.Exchange
}

// Config is the configuration options for the worker pool.
type Config struct {
	// Driver is the storage backend for persisting exchanges.
	Driver storage.Driver

	// Publisher is the optional event publisher. Events are only published
	// for exchanges that were newly stored.
	Publisher eventstream.Publisher

	// NumWorkers is the number of background workers in the pool.
	NumWorkers uint

	// QueueSize is the capacity of the buffered job channel (defaults to 256).
	QueueSize uint

	// JobTimeout bounds the storage and publish calls of one job.
	JobTimeout time.Duration

	// Logger is the provided zap logger
	Logger *zap.Logger
}

// Pool processes storage jobs asynchronously via a worker pool.
type Pool struct {
	config *Config
	queue  chan Job
	wg     sync.WaitGroup
	logger *zap.Logger

	closeOnce sync.Once
}

// NewPool creates a new Pool and starts its worker goroutines.
func NewPool(c *Config) (*Pool, error) {
	if c.Driver == nil {
		return nil, errors.New("worker pool needs a storage driver")
	}

	if c.NumWorkers == 0 {
		c.NumWorkers = defaultNumWorkers
	}

	if c.QueueSize == 0 {
		c.QueueSize = defaultJobQueueSize
	}

	if c.JobTimeout == 0 {
		c.JobTimeout = defaultJobTimeout
	}

	if c.NumWorkers > uint(math.MaxInt) {
		return nil, fmt.Errorf("NumWorkers %d exceeds max int", c.NumWorkers)
	}

	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}

	wp := &Pool{
		config: c,
		queue:  make(chan Job, c.QueueSize),
		logger: c.Logger,
	}

	wp.wg.Add(int(c.NumWorkers))
	for i := range c.NumWorkers {
		go wp.worker(i)
	}

	return wp, nil
}

// Enqueue submits a job for processing by the worker pool.
// Returns true if enqueued, false if the queue is full, resulting in the job being dropped
func (p *Pool) Enqueue(job Job) bool {
	select {
	case p.queue <- job:
		p.logger.Debug("job queued",
			zap.String("conversation_id", job.Exchange.ConversationID),
			zap.String("turn_id", job.Exchange.Assistant.ID),
		)
		return true
	default:
		p.logger.Error("job not queued, queue full, job dropped",
			zap.String("conversation_id", job.Exchange.ConversationID),
			zap.String("turn_id", job.Exchange.Assistant.ID),
		)
		return false
	}
}

// EnqueueExchange is a convenience for use as a conversation finalize hook.
func (p *Pool) EnqueueExchange(ex transcript.Exchange) {
	p.Enqueue(Job{Exchange: ex})
}

// Close signals workers to stop and waits for in-flight jobs to drain.
// Call this during shutdown after the last stream has finalized. Enqueue
// must not be called after Close.
func (p *Pool) Close() {
	p.closeOnce.Do(func() {
		close(p.queue)
	})
	p.wg.Wait()
}

// worker is the inner worker thread that continuously pulls jobs off the jobs queue
func (p *Pool) worker(id uint) {
	defer p.wg.Done()
	p.logger.Debug("worker started", zap.Uint("worker_id", id))

	for job := range p.queue {
		p.processJob(job)
	}

	p.logger.Debug("storage worker stopped", zap.Uint("worker_id", id))
}

// processJob stores the exchange and, if it was new, publishes its event.
func (p *Pool) processJob(job Job) {
	ctx, cancel := context.WithTimeout(context.Background(), p.config.JobTimeout)
	defer cancel()

	ex := job.Exchange
	isNew, err := p.config.Driver.Put(ctx, &ex)
	if err != nil {
		p.logger.Error("async exchange storage failed",
			zap.String("turn_id", ex.Assistant.ID),
			zap.Error(err),
		)
		return
	}

	p.logger.Debug("exchange stored",
		zap.String("conversation_id", ex.ConversationID),
		zap.String("turn_id", ex.Assistant.ID),
		zap.String("state", string(ex.Assistant.State)),
		zap.String("query", utils.Truncate(ex.User.Content, queryPreviewLen)),
		zap.Bool("is_new", isNew),
	)

	if !isNew || p.config.Publisher == nil {
		return
	}

	event := eventstream.NewTurnFinalizedEvent(ex)
	if err := p.config.Publisher.PublishTurn(ctx, event); err != nil {
		p.logger.Warn("failed to publish turn event",
			zap.String("turn_id", ex.Assistant.ID),
			zap.String("event_id", event.EventID),
			zap.Error(err),
		)
	}
}
