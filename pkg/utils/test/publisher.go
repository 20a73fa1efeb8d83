package testutils

import (
	"context"
	"errors"
	"sync"

	"github.com/papercomputeco/ragchat/pkg/eventstream"
)

// ErrPublishFailed is returned by MockPublisher when FailPublish is set.
var ErrPublishFailed = errors.New("mock publish failure")

// MockPublisher is a test publisher that records every event it is given.
type MockPublisher struct {
	mu     sync.Mutex
	events []*eventstream.TurnFinalizedEvent
	closed bool

	// FailPublish causes PublishTurn to return ErrPublishFailed.
	FailPublish bool
}

// NewMockPublisher creates a new mock publisher.
func NewMockPublisher() *MockPublisher {
	return &MockPublisher{}
}

func (p *MockPublisher) PublishTurn(_ context.Context, event *eventstream.TurnFinalizedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.FailPublish {
		return ErrPublishFailed
	}
	p.events = append(p.events, event)
	return nil
}

func (p *MockPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

// SetFailPublish toggles failures while the publisher is in use.
func (p *MockPublisher) SetFailPublish(fail bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.FailPublish = fail
}

// Events returns a copy of the published events.
func (p *MockPublisher) Events() []*eventstream.TurnFinalizedEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*eventstream.TurnFinalizedEvent(nil), p.events...)
}

// Closed reports whether Close was called.
func (p *MockPublisher) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}
