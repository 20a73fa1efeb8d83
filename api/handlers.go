package api

import (
	"encoding/json"
	"errors"
	"io"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/papercomputeco/ragchat/pkg/stream"
	"github.com/papercomputeco/ragchat/pkg/transcript"
)

const defaultTopK = 5

// QueryRequest is the body of both query endpoints. Unknown fields are
// ignored.
type QueryRequest struct {
	Query string `json:"query"`
	TopK  *int   `json:"top_k,omitempty"`
}

// QueryResponse is the non-streaming answer.
type QueryResponse struct {
	Answer  string              `json:"answer"`
	Sources []transcript.Source `json:"sources"`
}

// ErrorResponse is returned for rejected requests.
type ErrorResponse struct {
	Detail string `json:"detail"`
}

type tokenEvent struct {
	Type    stream.Kind `json:"type"`
	Content string      `json:"content"`
}

type metaEvent struct {
	Type    stream.Kind         `json:"type"`
	Sources []transcript.Source `json:"sources"`
}

func (s *Server) handleRoot(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok", "message": "RAG backend running"})
}

// handlePing returns a simple health check response.
func (s *Server) handlePing(c *fiber.Ctx) error {
	return c.JSON("pong")
}

// handleQuery answers in a single JSON response.
func (s *Server) handleQuery(c *fiber.Ctx) error {
	query, topK, err := parseQuery(c.Body())
	if err != nil {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(ErrorResponse{Detail: err.Error()})
	}

	ranked := retrieve(s.corpus, query, topK)
	return c.JSON(QueryResponse{
		Answer:  answer(ranked),
		Sources: sources(ranked),
	})
}

// handleQueryStream streams the answer as newline-delimited JSON: one token
// event per word, then a single meta event carrying the sources.
func (s *Server) handleQueryStream(c *fiber.Ctx) error {
	query, topK, err := parseQuery(c.Body())
	if err != nil {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(ErrorResponse{Detail: err.Error()})
	}

	ranked := retrieve(s.corpus, query, topK)

	s.logger.Debug("streaming answer",
		zap.Int("top_k", topK),
		zap.Int("sources", len(ranked)),
		zap.Int("query_length", len(query)),
	)

	c.Set(fiber.HeaderContentType, fiber.MIMETextPlainCharsetUTF8)

	// The pipe gives per-chunk flushing: fasthttp writes each chunk to the
	// connection as soon as the writer hands it over.
	pr, pw := io.Pipe()
	go s.writeAnswer(pw, ranked)
	c.Context().Response.SetBodyStream(pr, -1)

	return nil
}

// writeAnswer produces the event stream into pw. It stops early when the
// client goes away and the pipe is closed.
func (s *Server) writeAnswer(pw *io.PipeWriter, ranked []retrieval) {
	defer pw.Close()

	for i, token := range tokenize(answer(ranked)) {
		if i > 0 && s.config.TokenDelay > 0 {
			time.Sleep(s.config.TokenDelay)
		}
		if err := writeEvent(pw, tokenEvent{Type: stream.KindToken, Content: token}); err != nil {
			s.logger.Debug("client went away mid-answer", zap.Error(err))
			return
		}
	}

	if err := writeEvent(pw, metaEvent{Type: stream.KindMeta, Sources: sources(ranked)}); err != nil {
		s.logger.Debug("client went away before sources", zap.Error(err))
	}
}

func writeEvent(w io.Writer, event any) error {
	line, err := json.Marshal(event)
	if err != nil {
		return err
	}
	_, err = w.Write(append(line, '\n'))
	return err
}

func parseQuery(body []byte) (string, int, error) {
	var req QueryRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return "", 0, errors.New("request body must be a JSON object")
	}

	if strings.TrimSpace(req.Query) == "" {
		return "", 0, errors.New("query is required")
	}

	topK := defaultTopK
	if req.TopK != nil {
		topK = *req.TopK
	}
	if topK < 0 {
		return "", 0, errors.New("top_k must not be negative")
	}

	return req.Query, topK, nil
}
