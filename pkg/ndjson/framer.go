// Package ndjson frames newline-delimited records out of an arbitrarily
// fragmented byte stream. It is the first stage of the streaming answer
// consumer: transports push chunks in, complete records come out, and the
// unterminated tail is retained until the next chunk (or stream end) arrives.
//
// Records are UTF-8 text separated by "\n", optionally preceded by "\r".
// A newline byte never occurs inside a multi-byte UTF-8 sequence, so chunks
// may split runes freely without corrupting record boundaries.
package ndjson

import (
	"bytes"
	"iter"
	"strings"
)

// Framer accumulates fragments in its frame buffer and extracts complete
// records from it. The zero value is ready to use. A Framer is owned by a
// single stream for its lifetime and is not safe for concurrent use.
type Framer struct {
	buf []byte

	// off is the start of the not-yet-extracted bytes in buf.
	off int
}

// Feed appends fragment to the frame buffer and returns a lazy sequence of
// every complete record now available, in input order. The trailing "\r" of
// a CRLF line ending is trimmed and the newline itself is consumed.
//
// The append happens immediately; extraction happens as the sequence is
// consumed. Records left unconsumed stay buffered and are produced by the
// next call to Feed or Records.
func (f *Framer) Feed(fragment string) iter.Seq[string] {
	if fragment != "" {
		f.compact()
		f.buf = append(f.buf, fragment...)
	}

	return f.Records()
}

// Write appends p to the frame buffer without extracting records, letting a
// Framer sit behind an io.Writer. It never fails.
func (f *Framer) Write(p []byte) (int, error) {
	if len(p) > 0 {
		f.compact()
		f.buf = append(f.buf, p...)
	}
	return len(p), nil
}

// Records returns a lazy sequence of the complete records currently buffered.
func (f *Framer) Records() iter.Seq[string] {
	return func(yield func(string) bool) {
		for {
			record, ok := f.next()
			if !ok {
				return
			}
			if !yield(record) {
				return
			}
		}
	}
}

// Flush returns the unterminated tail of the stream, the bytes after the last
// newline, as a final record if it is non-empty after trimming whitespace. It
// models producers that omit the newline after their last event. Flush
// discards the frame buffer, including complete records that were fed but not
// drained, so callers drain Records first.
func (f *Framer) Flush() (string, bool) {
	pending := f.buf[f.off:]
	if i := bytes.LastIndexByte(pending, '\n'); i >= 0 {
		pending = pending[i+1:]
	}
	tail := string(bytes.TrimSuffix(pending, []byte{'\r'}))
	f.buf = nil
	f.off = 0

	if strings.TrimSpace(tail) == "" {
		return "", false
	}
	return tail, true
}

// Buffered returns the number of bytes held in the frame buffer that have not
// been extracted as records yet.
func (f *Framer) Buffered() int {
	return len(f.buf) - f.off
}

// next extracts one record from the frame buffer, if a newline is present.
func (f *Framer) next() (string, bool) {
	i := bytes.IndexByte(f.buf[f.off:], '\n')
	if i < 0 {
		return "", false
	}

	line := bytes.TrimSuffix(f.buf[f.off:f.off+i], []byte{'\r'})
	record := string(line)

	f.off += i + 1
	if f.off == len(f.buf) {
		// Buffer fully consumed: reset in place so it can be reused.
		f.buf = f.buf[:0]
		f.off = 0
	}

	return record, true
}

// compact moves the retained tail to the front of the buffer before new input
// is appended, keeping the buffer from growing with already-extracted bytes.
func (f *Framer) compact() {
	if f.off == 0 {
		return
	}
	n := copy(f.buf, f.buf[f.off:])
	f.buf = f.buf[:n]
	f.off = 0
}
