// Package stream classifies framed answer-stream records into events and
// applies them to a live transcript turn.
//
// The backend emits one JSON object per record:
//
//	{"type": "token", "content": "<string>"}
//	{"type": "meta", "sources": [{"source": "<string>", "chunk_index": 0, "score": 0.9}]}
//
// Any other type, and any record that is not a JSON object, is a malformed
// event. Malformed events are skipped so that new event kinds can be added
// to the backend without breaking older clients.
package stream

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/papercomputeco/ragchat/pkg/transcript"
)

// Kind is the event discriminator carried in the "type" field.
type Kind string

const (
	// KindToken carries a piece of answer text to append.
	KindToken Kind = "token"

	// KindMeta carries the complete, final source list for the answer.
	KindMeta Kind = "meta"
)

var (
	// ErrEmptyRecord is returned by Decode for whitespace-only records.
	ErrEmptyRecord = errors.New("empty record")

	// ErrMalformed is returned by Decode for records that are not a
	// recognised event.
	ErrMalformed = errors.New("malformed event")
)

// Event is a decoded stream event. Only the field matching Kind is set.
type Event struct {
	Kind    Kind
	Content string
	Sources []transcript.Source
}

// Decode parses a single record into an Event.
//
// A token whose content is absent or not a string decodes with empty content.
// A meta event whose sources are absent or null decodes with an empty source
// list. A sources payload that is not an array of source objects is malformed.
func Decode(record string) (Event, error) {
	if strings.TrimSpace(record) == "" {
		return Event{}, ErrEmptyRecord
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(record), &fields); err != nil {
		return Event{}, fmt.Errorf("%w: %w", ErrMalformed, err)
	}

	rawType, ok := fields["type"]
	if !ok {
		return Event{}, fmt.Errorf("%w: missing type", ErrMalformed)
	}

	var kind string
	if err := json.Unmarshal(rawType, &kind); err != nil {
		return Event{}, fmt.Errorf("%w: type is not a string", ErrMalformed)
	}

	switch Kind(kind) {
	case KindToken:
		var content string
		if raw, ok := fields["content"]; ok {
			// Non-string content is treated as empty.
			_ = json.Unmarshal(raw, &content)
		}
		return Event{Kind: KindToken, Content: content}, nil

	case KindMeta:
		sources := []transcript.Source{}
		if raw, ok := fields["sources"]; ok && !isNull(raw) {
			if err := json.Unmarshal(raw, &sources); err != nil {
				return Event{}, fmt.Errorf("%w: sources: %w", ErrMalformed, err)
			}
			if sources == nil {
				sources = []transcript.Source{}
			}
		}
		return Event{Kind: KindMeta, Sources: sources}, nil

	default:
		return Event{}, fmt.Errorf("%w: unknown type %q", ErrMalformed, kind)
	}
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}
