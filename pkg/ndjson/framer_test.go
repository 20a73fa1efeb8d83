package ndjson_test

import (
	"slices"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/ragchat/pkg/ndjson"
)

var _ = Describe("Framer", func() {
	var f *ndjson.Framer

	BeforeEach(func() {
		f = &ndjson.Framer{}
	})

	Describe("Feed", func() {
		It("yields nothing for an empty fragment", func() {
			Expect(slices.Collect(f.Feed(""))).To(BeEmpty())
			Expect(f.Buffered()).To(Equal(0))
		})

		It("yields a single complete record", func() {
			Expect(slices.Collect(f.Feed("{\"type\":\"token\"}\n"))).To(Equal([]string{"{\"type\":\"token\"}"}))
			Expect(f.Buffered()).To(Equal(0))
		})

		It("yields one empty record for a lone newline", func() {
			Expect(slices.Collect(f.Feed("\n"))).To(Equal([]string{""}))
		})

		It("yields several records from one fragment in order", func() {
			records := slices.Collect(f.Feed("a\nb\nc\n"))
			Expect(records).To(Equal([]string{"a", "b", "c"}))
		})

		It("retains an unterminated tail across calls", func() {
			Expect(slices.Collect(f.Feed("{\"type\":\"tok"))).To(BeEmpty())
			Expect(f.Buffered()).To(Equal(len("{\"type\":\"tok")))

			Expect(slices.Collect(f.Feed("en\"}\n{\"ty"))).To(Equal([]string{"{\"type\":\"token\"}"}))
			Expect(f.Buffered()).To(Equal(len("{\"ty")))
		})

		It("strips a trailing carriage return", func() {
			Expect(slices.Collect(f.Feed("one\r\ntwo\r\n"))).To(Equal([]string{"one", "two"}))
		})

		It("handles a CRLF split between fragments", func() {
			Expect(slices.Collect(f.Feed("one\r"))).To(BeEmpty())
			Expect(slices.Collect(f.Feed("\n"))).To(Equal([]string{"one"}))
		})

		It("frames the worked example identically to a single feed", func() {
			whole := "{\"type\":\"token\",\"content\":\"Hi\"}\n{\"type\":\"meta\",\"sources\":[]}\n"

			split := &ndjson.Framer{}
			var got []string
			got = append(got, slices.Collect(split.Feed("{\"type\":\"token\",\"content\":\"Hi\"}\n{\"typ"))...)
			got = append(got, slices.Collect(split.Feed("e\":\"meta\",\"sources\":[]}\n"))...)

			Expect(got).To(Equal(slices.Collect(f.Feed(whole))))
			Expect(got).To(HaveLen(2))
		})

		It("keeps records a consumer did not pull for the next call", func() {
			for record := range f.Feed("a\nb\nc") {
				Expect(record).To(Equal("a"))
				break
			}

			Expect(slices.Collect(f.Feed("\n"))).To(Equal([]string{"b", "c"}))
		})

		It("does not corrupt multi-byte runes split across fragments", func() {
			word := "héllo"
			raw := []byte(word + "\n")

			Expect(slices.Collect(f.Feed(string(raw[:2])))).To(BeEmpty())
			Expect(slices.Collect(f.Feed(string(raw[2:])))).To(Equal([]string{word}))
		})
	})

	Describe("Write", func() {
		It("buffers bytes without extracting records", func() {
			n, err := f.Write([]byte("x\ny"))
			Expect(err).NotTo(HaveOccurred())
			Expect(n).To(Equal(3))
			Expect(slices.Collect(f.Records())).To(Equal([]string{"x"}))
			Expect(f.Buffered()).To(Equal(1))
		})
	})

	Describe("Flush", func() {
		It("returns an unterminated final record", func() {
			Expect(slices.Collect(f.Feed("{\"type\":\"token\",\"content\":\"x\"}"))).To(BeEmpty())

			record, ok := f.Flush()
			Expect(ok).To(BeTrue())
			Expect(record).To(Equal("{\"type\":\"token\",\"content\":\"x\"}"))
		})

		It("returns nothing when input ended with a newline", func() {
			Expect(slices.Collect(f.Feed("{\"type\":\"token\",\"content\":\"x\"}\n"))).To(HaveLen(1))

			_, ok := f.Flush()
			Expect(ok).To(BeFalse())
		})

		It("returns nothing for a whitespace-only tail", func() {
			Expect(slices.Collect(f.Feed("a\n  \t"))).To(HaveLen(1))

			_, ok := f.Flush()
			Expect(ok).To(BeFalse())
		})

		It("returns only the tail after records that were fed but not drained", func() {
			f.Feed("{\"type\":\"token\",\"content\":\"a\"}\n{\"type\":\"token\",\"content\":\"b\"}\ntail")

			record, ok := f.Flush()
			Expect(ok).To(BeTrue())
			Expect(record).To(Equal("tail"))
			Expect(f.Buffered()).To(Equal(0))
		})

		It("returns nothing for undrained input that ended with a newline", func() {
			f.Feed("{\"type\":\"token\",\"content\":\"x\"}\n")

			_, ok := f.Flush()
			Expect(ok).To(BeFalse())
		})

		It("discards the buffer", func() {
			f.Feed("partial")
			_, ok := f.Flush()
			Expect(ok).To(BeTrue())
			Expect(f.Buffered()).To(Equal(0))

			_, ok = f.Flush()
			Expect(ok).To(BeFalse())
		})
	})
})
