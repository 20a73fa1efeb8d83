package client_test

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"

	"github.com/papercomputeco/ragchat/pkg/client"
	"github.com/papercomputeco/ragchat/pkg/transcript"
)

// recorder is an Observer that keeps every snapshot it is given.
type recorder struct {
	mu        sync.Mutex
	updates   []transcript.Turn
	terminals []transcript.Turn
	outcomes  []client.Outcome

	// onUpdate runs after an update is recorded, on the stream goroutine.
	onUpdate func(transcript.Turn)
}

func (r *recorder) OnUpdate(turn transcript.Turn) {
	r.mu.Lock()
	r.updates = append(r.updates, turn)
	hook := r.onUpdate
	r.mu.Unlock()

	if hook != nil {
		hook(turn)
	}
}

func (r *recorder) OnTerminal(turn transcript.Turn, outcome client.Outcome) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.terminals = append(r.terminals, turn)
	r.outcomes = append(r.outcomes, outcome)
}

func (r *recorder) Updates() []transcript.Turn {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]transcript.Turn(nil), r.updates...)
}

func (r *recorder) Terminals() []transcript.Turn {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]transcript.Turn(nil), r.terminals...)
}

// capturedRequest is the decoded body of a streaming query.
type capturedRequest struct {
	Query string `json:"query"`
	TopK  int    `json:"top_k"`
}

// chunkServer streams each chunk as a separate flushed write, then runs
// after (if set) before returning.
type chunkServer struct {
	chunks []string
	after  func(w http.ResponseWriter, r *http.Request)

	mu       sync.Mutex
	requests []capturedRequest
}

func (s *chunkServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	var req capturedRequest
	_ = json.Unmarshal(body, &req)

	s.mu.Lock()
	s.requests = append(s.requests, req)
	s.mu.Unlock()

	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	flusher := w.(http.Flusher)
	for _, chunk := range s.chunks {
		_, _ = io.WriteString(w, chunk)
		flusher.Flush()
	}

	if s.after != nil {
		s.after(w, r)
	}
}

func (s *chunkServer) Requests() []capturedRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]capturedRequest(nil), s.requests...)
}

func newTestServer(h http.Handler) *httptest.Server {
	return httptest.NewServer(h)
}
