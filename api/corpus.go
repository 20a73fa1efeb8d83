package api

import (
	"fmt"
	"math"
	"slices"
	"strings"
	"unicode"

	"github.com/papercomputeco/ragchat/pkg/transcript"
)

// Chunk is one indexed passage of a document.
type Chunk struct {
	Source string `json:"source" toml:"source"`
	Page   int    `json:"page" toml:"page"`
	Index  int    `json:"chunk_index" toml:"chunk_index"`
	Text   string `json:"text" toml:"text"`
}

// DefaultCorpus returns the passages served when no corpus is configured.
func DefaultCorpus() []Chunk {
	return []Chunk{
		{
			Source: "handbook.pdf", Page: 1, Index: 0,
			Text: "Retrieval augmented generation answers a question by first retrieving relevant passages from an index and then asking a language model to answer using only those passages.",
		},
		{
			Source: "handbook.pdf", Page: 2, Index: 1,
			Text: "Hybrid retrieval combines keyword scoring with dense vector similarity, and a cross encoder reranks the merged candidates before generation.",
		},
		{
			Source: "handbook.pdf", Page: 3, Index: 2,
			Text: "Answers are streamed to the client as newline delimited JSON, one token event per fragment followed by a single meta event listing the sources.",
		},
		{
			Source: "operations.pdf", Page: 1, Index: 0,
			Text: "Uploaded PDF documents are split into overlapping chunks, embedded, and written to the vector store during ingestion.",
		},
		{
			Source: "operations.pdf", Page: 4, Index: 1,
			Text: "Reindexing rebuilds the vector store from every document in the data directory and reports the number of indexed chunks.",
		},
		{
			Source: "operations.pdf", Page: 6, Index: 2,
			Text: "The reranker can be fine tuned on labelled query passage pairs with a configurable number of epochs and batch size.",
		},
	}
}

// retrieval is a ranked chunk.
type retrieval struct {
	chunk Chunk
	score float64
}

// retrieve ranks the corpus by the share of query terms each chunk contains
// and returns the best topK. Ties keep corpus order.
func retrieve(corpus []Chunk, query string, topK int) []retrieval {
	terms := terms(query)

	ranked := make([]retrieval, len(corpus))
	for i, c := range corpus {
		ranked[i] = retrieval{chunk: c, score: overlap(terms, c.Text)}
	}
	slices.SortStableFunc(ranked, func(a, b retrieval) int {
		switch {
		case a.score > b.score:
			return -1
		case a.score < b.score:
			return 1
		default:
			return 0
		}
	})

	return ranked[:min(topK, len(ranked))]
}

func terms(s string) []string {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	out := fields[:0]
	for _, f := range fields {
		if len([]rune(f)) > 2 && !slices.Contains(out, f) {
			out = append(out, f)
		}
	}
	return out
}

func overlap(queryTerms []string, text string) float64 {
	if len(queryTerms) == 0 {
		return 0
	}

	have := terms(text)
	hits := 0
	for _, t := range queryTerms {
		if slices.Contains(have, t) {
			hits++
		}
	}

	score := float64(hits) / float64(len(queryTerms))
	return math.Round(score*10000) / 10000
}

// answer composes the mock completion for a ranked retrieval.
func answer(ranked []retrieval) string {
	if len(ranked) == 0 || ranked[0].score == 0 {
		return "I could not find anything about that in the indexed documents."
	}

	best := ranked[0].chunk
	return fmt.Sprintf("According to %s (page %d): %s", best.Source, best.Page, best.Text)
}

// sources converts a ranked retrieval into the meta event's source list.
func sources(ranked []retrieval) []transcript.Source {
	out := make([]transcript.Source, len(ranked))
	for i, r := range ranked {
		chunkIndex, page, score := r.chunk.Index, r.chunk.Page, r.score
		out[i] = transcript.Source{
			Source:     r.chunk.Source,
			ID:         fmt.Sprintf("%s#%d", r.chunk.Source, r.chunk.Index),
			ChunkIndex: &chunkIndex,
			Page:       &page,
			Score:      &score,
		}
	}
	return out
}

// tokenize splits an answer into the fragments streamed as token events,
// one word per token with its trailing space.
func tokenize(s string) []string {
	return strings.SplitAfter(s, " ")
}
