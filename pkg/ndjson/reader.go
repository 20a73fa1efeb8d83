package ndjson

import (
	"errors"
	"io"
)

const defaultChunkSize = 32 * 1024

// Reader pulls records from a source io.Reader, optionally writing all raw
// bytes verbatim to a destination io.Writer as they are read.
//
// ┌──────────────────┐
// │ source io.Reader │
// └──────────────────┘
// │
// ▼
// ┌──────────────────┐   ┌───────────────────────┐
// │  Reader.Next()   │──▶│ destination io.Writer │
// └──────────────────┘   └───────────────────────┘
// │
// ▼
// ┌──────────────────┐
// │      record      │
// └──────────────────┘
//
// The destination receives an exact copy of the stream (useful for recording
// a live answer stream to disk), while the caller consumes framed records.
type Reader struct {
	src    io.Reader
	dest   io.Writer
	framer Framer
	chunk  []byte

	eof     bool
	flushed bool
}

// NewReader returns a Reader that frames records from src.
func NewReader(src io.Reader) *Reader {
	return NewTeeReader(src, nil)
}

// NewTeeReader returns a Reader that frames records from src and writes all
// raw bytes through to dest. A nil dest disables the tee.
func NewTeeReader(src io.Reader, dest io.Writer) *Reader {
	return &Reader{
		src:   src,
		dest:  dest,
		chunk: make([]byte, defaultChunkSize),
	}
}

// Next returns the next complete record. It blocks until a record is
// available. When the source is exhausted, a non-blank unterminated tail is
// returned as a final record and every later call returns io.EOF.
func (r *Reader) Next() (string, error) {
	for {
		for record := range r.framer.Records() {
			return record, nil
		}

		if r.eof {
			if !r.flushed {
				r.flushed = true
				if tail, ok := r.framer.Flush(); ok {
					return tail, nil
				}
			}
			return "", io.EOF
		}

		n, err := r.src.Read(r.chunk)
		if n > 0 {
			if r.dest != nil {
				if _, werr := r.dest.Write(r.chunk[:n]); werr != nil {
					return "", werr
				}
			}
			_, _ = r.framer.Write(r.chunk[:n])
		}

		if err != nil {
			if errors.Is(err, io.EOF) {
				r.eof = true
				continue
			}
			return "", err
		}
	}
}
