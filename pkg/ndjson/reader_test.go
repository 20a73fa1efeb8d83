package ndjson_test

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing/iotest"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/ragchat/pkg/ndjson"
)

// readAll drains r, returning every record produced before io.EOF.
func readAll(r *ndjson.Reader) ([]string, error) {
	var records []string
	for {
		record, err := r.Next()
		if errors.Is(err, io.EOF) {
			return records, nil
		}
		if err != nil {
			return records, err
		}
		records = append(records, record)
	}
}

var _ = Describe("Reader", func() {
	Describe("Next", func() {
		It("reads newline-terminated records", func() {
			r := ndjson.NewReader(strings.NewReader("a\nb\n"))

			records, err := readAll(r)
			Expect(err).NotTo(HaveOccurred())
			Expect(records).To(Equal([]string{"a", "b"}))
		})

		It("flushes an unterminated final record", func() {
			r := ndjson.NewReader(strings.NewReader("a\n{\"type\":\"meta\"}"))

			records, err := readAll(r)
			Expect(err).NotTo(HaveOccurred())
			Expect(records).To(Equal([]string{"a", "{\"type\":\"meta\"}"}))
		})

		It("frames identically when the source returns one byte at a time", func() {
			input := "{\"type\":\"token\",\"content\":\"A\"}\r\n{\"type\":\"token\",\"content\":\"B\"}\ntail"
			r := ndjson.NewReader(iotest.OneByteReader(strings.NewReader(input)))

			records, err := readAll(r)
			Expect(err).NotTo(HaveOccurred())
			Expect(records).To(Equal([]string{
				"{\"type\":\"token\",\"content\":\"A\"}",
				"{\"type\":\"token\",\"content\":\"B\"}",
				"tail",
			}))
		})

		It("keeps returning io.EOF once exhausted", func() {
			r := ndjson.NewReader(strings.NewReader(""))

			_, err := r.Next()
			Expect(err).To(MatchError(io.EOF))
			_, err = r.Next()
			Expect(err).To(MatchError(io.EOF))
		})

		It("surfaces source errors", func() {
			boom := errors.New("connection reset")
			r := ndjson.NewReader(io.MultiReader(strings.NewReader("a\n"), iotest.ErrReader(boom)))

			record, err := r.Next()
			Expect(err).NotTo(HaveOccurred())
			Expect(record).To(Equal("a"))

			_, err = r.Next()
			Expect(err).To(MatchError(boom))
		})
	})

	Describe("tee", func() {
		It("writes every raw byte to the destination", func() {
			input := "a\r\nb\n\nc"
			var dest bytes.Buffer
			r := ndjson.NewTeeReader(strings.NewReader(input), &dest)

			_, err := readAll(r)
			Expect(err).NotTo(HaveOccurred())
			Expect(dest.String()).To(Equal(input))
		})
	})
})
