// Package api provides a development backend that streams answers the way the
// retrieval-augmented backend does, for exercising clients without a model.
package api

import "time"

// Config is the mock backend configuration.
type Config struct {
	// ListenAddr is the address to listen on (e.g., ":8000")
	ListenAddr string

	// TokenDelay is the pause between streamed tokens.
	TokenDelay time.Duration

	// Corpus replaces the built-in documents answers are retrieved from.
	Corpus []Chunk
}
