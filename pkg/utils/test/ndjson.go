// Package testutils holds fakes and fixtures shared across package tests.
package testutils

import (
	"encoding/json"
	"strings"

	"github.com/papercomputeco/ragchat/pkg/transcript"
)

// TokenLine returns a newline-terminated token record.
func TokenLine(content string) string {
	line, _ := json.Marshal(map[string]string{"type": "token", "content": content})
	return string(line) + "\n"
}

// MetaLine returns a newline-terminated meta record carrying sources.
func MetaLine(sources ...transcript.Source) string {
	if sources == nil {
		sources = []transcript.Source{}
	}
	line, _ := json.Marshal(map[string]any{"type": "meta", "sources": sources})
	return string(line) + "\n"
}

// Answer returns a complete answer stream: one token record per word of
// answer, then a meta record.
func Answer(answer string, sources ...transcript.Source) string {
	var b strings.Builder
	for _, word := range strings.SplitAfter(answer, " ") {
		b.WriteString(TokenLine(word))
	}
	b.WriteString(MetaLine(sources...))
	return b.String()
}

// Source returns a source reference with a chunk index and score.
func Source(name string, chunkIndex int, score float64) transcript.Source {
	return transcript.Source{Source: name, ChunkIndex: &chunkIndex, Score: &score}
}
