// Package client consumes streamed answers from a retrieval-augmented
// generation backend.
//
// A Client opens the streaming query endpoint; a Conversation owns the
// transcript and runs at most one stream at a time. Each stream is driven by a
// single reader goroutine which frames the response body into records,
// applies them to the live assistant turn, and reports progress to an
// Observer:
//
//	body chunks ─▶ ndjson.Framer ─▶ stream.Interpreter ─▶ transcript.Turn
//	                                                           │
//	                                          Observer.OnUpdate(snapshot)
//
// Observers only ever receive snapshots, so they may hand them to another
// goroutine (e.g. a TUI event loop) without racing the stream.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const (
	tracerName = "github.com/papercomputeco/ragchat/pkg/client"

	// DefaultStreamPath is the backend's streaming query endpoint.
	DefaultStreamPath = "/query-stream"

	// DefaultTopK mirrors the backend's default number of retrieved chunks.
	DefaultTopK = 5

	defaultChunkSize = 16 * 1024

	// maxErrorBody bounds how much of a failed response body is quoted in
	// a StatusError.
	maxErrorBody = 512
)

// Config configures a Client.
type Config struct {
	// BaseURL is the backend's scheme, host and port, e.g. http://localhost:8000
	BaseURL string

	// StreamPath is the streaming endpoint path. Defaults to DefaultStreamPath.
	StreamPath string

	// IdleTimeout bounds the wait for each chunk, including the wait for
	// response headers. Zero disables it.
	IdleTimeout time.Duration

	// HTTPClient overrides the transport. The default client instruments
	// requests with OpenTelemetry and sets no overall timeout, since answer
	// streams are long-lived.
	HTTPClient *http.Client
}

// Client opens answer streams against a backend.
type Client struct {
	config Config
	http   *http.Client
	logger *zap.Logger
	tracer trace.Tracer
}

// New creates a Client. A nil logger discards logs.
func New(config Config, logger *zap.Logger) *Client {
	if config.StreamPath == "" {
		config.StreamPath = DefaultStreamPath
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")

	if logger == nil {
		logger = zap.NewNop()
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		}
	}

	return &Client{
		config: config,
		http:   httpClient,
		logger: logger,
		tracer: otel.Tracer(tracerName),
	}
}

// queryRequest is the body of a streaming query.
type queryRequest struct {
	Query string `json:"query"`
	TopK  int    `json:"top_k"`
}

// StatusError reports a non-success HTTP status from the backend.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("backend returned status %d", e.Code)
	}
	return fmt.Sprintf("backend returned status %d: %s", e.Code, e.Body)
}

// open sends the query and returns the response body once a success status
// has been received.
func (c *Client) open(ctx context.Context, query string, topK int) (io.ReadCloser, error) {
	body, err := json.Marshal(queryRequest{Query: query, TopK: topK})
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	url := c.config.BaseURL + c.config.StreamPath
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/x-ndjson, text/plain")

	c.logger.Debug("opening answer stream",
		zap.String("url", url),
		zap.Int("top_k", topK),
		zap.Int("query_length", len(query)),
	)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sending request to backend: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &StatusError{
			Code: resp.StatusCode,
			Body: strings.TrimSpace(string(excerpt)),
		}
	}

	return resp.Body, nil
}
