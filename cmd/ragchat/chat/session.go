package chatcmder

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/papercomputeco/ragchat/pkg/client"
	"github.com/papercomputeco/ragchat/pkg/dotdir"
	"github.com/papercomputeco/ragchat/pkg/transcript"
)

// session is the state a chat shares between its front ends: the current
// conversation, the top_k in effect, and where answer streams are recorded.
type session struct {
	client    *client.Client
	policy    client.BusyPolicy
	onFinal   func(transcript.Exchange)
	recordDir string
	configDir string
	dotdir    *dotdir.Manager
	logger    *zap.Logger

	topK atomic.Int64

	mu   sync.Mutex
	conv *client.Conversation
}

type sessionConfig struct {
	client    *client.Client
	policy    client.BusyPolicy
	onFinal   func(transcript.Exchange)
	topK      int
	recordDir string
	configDir string
	resumed   *transcript.Transcript
	logger    *zap.Logger
}

func newSession(cfg sessionConfig) *session {
	s := &session{
		client:    cfg.client,
		policy:    cfg.policy,
		onFinal:   cfg.onFinal,
		recordDir: cfg.recordDir,
		configDir: cfg.configDir,
		dotdir:    dotdir.NewManager(),
		logger:    cfg.logger,
	}
	s.topK.Store(int64(cfg.topK))
	s.conv = s.newConversation(cfg.resumed)
	return s
}

func (s *session) newConversation(t *transcript.Transcript) *client.Conversation {
	opts := []client.ConversationOption{client.WithBusyPolicy(s.policy)}
	if t != nil {
		opts = append(opts, client.WithTranscript(t))
	}
	if s.onFinal != nil {
		opts = append(opts, client.WithFinalizeHook(s.onFinal))
	}
	return s.client.NewConversation(opts...)
}

// conversation returns the conversation queries currently go to.
func (s *session) conversation() *client.Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conv
}

// TopK is the number of chunks requested for the next query.
func (s *session) TopK() int {
	return int(s.topK.Load())
}

func (s *session) setTopK(k int) {
	if k <= 0 {
		k = client.DefaultTopK
	}
	if old := s.topK.Swap(int64(k)); old != int64(k) {
		s.logger.Info("top_k changed", zap.Int64("from", old), zap.Int("to", k))
	}
}

// reset starts a new, empty conversation. A running stream on the old one is
// cancelled first.
func (s *session) reset() error {
	s.mu.Lock()
	old := s.conv
	s.conv = s.newConversation(nil)
	s.mu.Unlock()

	if h := old.Active(); h != nil {
		h.Cancel()
		<-h.Done()
	}

	return s.dotdir.ClearSession(s.configDir)
}

// ask starts streaming the answer to query. Terminal is wrapped so that the
// recording file is closed and the chat session saved before obs sees the
// frozen turn.
func (s *session) ask(ctx context.Context, query string, obs client.ObserverFuncs) (*client.Handle, error) {
	conv := s.conversation()

	var (
		opts     []client.StreamOption
		recorder *os.File
	)
	if s.recordDir != "" {
		f, err := openRecording(s.recordDir, conv.Transcript())
		if err != nil {
			s.logger.Warn("not recording answer stream", zap.Error(err))
		} else {
			recorder = f
			opts = append(opts, client.WithTee(f))
		}
	}

	terminal := obs.Terminal
	obs.Terminal = func(turn transcript.Turn, outcome client.Outcome) {
		if recorder != nil {
			if err := recorder.Close(); err != nil {
				s.logger.Warn("closing recording", zap.String("path", recorder.Name()), zap.Error(err))
			}
		}
		s.saveSession(conv)
		if terminal != nil {
			terminal(turn, outcome)
		}
	}

	h, err := conv.StartStream(ctx, query, s.TopK(), obs, opts...)
	if err != nil {
		if recorder != nil {
			_ = recorder.Close()
			_ = os.Remove(recorder.Name())
		}
		return nil, err
	}
	return h, nil
}

func (s *session) saveSession(conv *client.Conversation) {
	err := s.dotdir.SaveSession(&dotdir.SessionState{
		ConversationID: conv.Transcript().ID(),
		UpdatedAt:      time.Now(),
	}, s.configDir)
	if err != nil {
		s.logger.Warn("saving chat session", zap.Error(err))
	}
}

// cancelActive cancels the running stream, if any, and waits for it to
// finalize.
func (s *session) cancelActive() {
	if h := s.conversation().Active(); h != nil {
		h.Cancel()
		<-h.Done()
	}
}

// openRecording creates the file the next answer of t is recorded to, named
// after the conversation and the exchange's position in it.
func openRecording(dir string, t *transcript.Transcript) (*os.File, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating record dir: %w", err)
	}

	name := fmt.Sprintf("%s-%03d.ndjson", t.ID(), t.Len()/2+1)
	f, err := os.OpenFile(filepath.Join(dir, name), os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("recording %s already exists", name)
		}
		return nil, fmt.Errorf("creating recording: %w", err)
	}
	return f, nil
}
