package chatcmder

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"sync"
)

// backend answers every query with body, recording the requested top_k.
// When hold is set, it writes the first line and then waits for release or
// for the client to go away.
type backend struct {
	status  int
	body    string
	hold    bool
	release chan struct{}

	mu   sync.Mutex
	topK []int
}

func newBackend(body string) *backend {
	return &backend{status: http.StatusOK, body: body, release: make(chan struct{})}
}

func (b *backend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TopK int `json:"top_k"`
	}
	_ = json.NewDecoder(r.Body).Decode(&req)
	b.mu.Lock()
	b.topK = append(b.topK, req.TopK)
	b.mu.Unlock()

	w.WriteHeader(b.status)
	if !b.hold {
		_, _ = io.WriteString(w, b.body)
		return
	}

	first, rest, _ := strings.Cut(b.body, "\n")
	_, _ = io.WriteString(w, first+"\n")
	w.(http.Flusher).Flush()

	select {
	case <-b.release:
		_, _ = io.WriteString(w, rest)
	case <-r.Context().Done():
	}
}

func (b *backend) TopK() []int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]int(nil), b.topK...)
}
