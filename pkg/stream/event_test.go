package stream_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/ragchat/pkg/stream"
)

var _ = Describe("Decode", func() {
	Context("with token events", func() {
		It("reads the content", func() {
			ev, err := stream.Decode(`{"type":"token","content":"Hi"}`)
			Expect(err).NotTo(HaveOccurred())
			Expect(ev.Kind).To(Equal(stream.KindToken))
			Expect(ev.Content).To(Equal("Hi"))
		})

		It("treats missing content as empty", func() {
			ev, err := stream.Decode(`{"type":"token"}`)
			Expect(err).NotTo(HaveOccurred())
			Expect(ev.Content).To(BeEmpty())
		})

		It("treats non-string content as empty", func() {
			ev, err := stream.Decode(`{"type":"token","content":42}`)
			Expect(err).NotTo(HaveOccurred())
			Expect(ev.Kind).To(Equal(stream.KindToken))
			Expect(ev.Content).To(BeEmpty())
		})

		It("preserves whitespace and escapes in content", func() {
			ev, err := stream.Decode(`{"type":"token","content":" line\nnext "}`)
			Expect(err).NotTo(HaveOccurred())
			Expect(ev.Content).To(Equal(" line\nnext "))
		})
	})

	Context("with meta events", func() {
		It("reads sources in order with optional fields", func() {
			ev, err := stream.Decode(`{"type":"meta","sources":[` +
				`{"source":"a.pdf","chunk_index":3,"score":0.87},` +
				`{"source":"b.md"},` +
				`{"source":"a.pdf","chunk_index":3,"score":0.87}]}`)
			Expect(err).NotTo(HaveOccurred())
			Expect(ev.Kind).To(Equal(stream.KindMeta))
			Expect(ev.Sources).To(HaveLen(3))
			Expect(ev.Sources[0].Source).To(Equal("a.pdf"))
			Expect(*ev.Sources[0].ChunkIndex).To(Equal(3))
			Expect(*ev.Sources[0].Score).To(BeNumerically("~", 0.87))
			Expect(ev.Sources[1].ChunkIndex).To(BeNil())
			Expect(ev.Sources[1].Score).To(BeNil())
			Expect(ev.Sources[2].Equal(ev.Sources[0])).To(BeTrue())
		})

		It("treats missing sources as empty", func() {
			ev, err := stream.Decode(`{"type":"meta"}`)
			Expect(err).NotTo(HaveOccurred())
			Expect(ev.Sources).NotTo(BeNil())
			Expect(ev.Sources).To(BeEmpty())
		})

		It("treats null sources as empty", func() {
			ev, err := stream.Decode(`{"type":"meta","sources":null}`)
			Expect(err).NotTo(HaveOccurred())
			Expect(ev.Sources).To(BeEmpty())
		})

		It("rejects sources that are not an array", func() {
			_, err := stream.Decode(`{"type":"meta","sources":"a.pdf"}`)
			Expect(err).To(MatchError(stream.ErrMalformed))
		})
	})

	Context("with malformed records", func() {
		DescribeTable("returns ErrMalformed",
			func(record string) {
				_, err := stream.Decode(record)
				Expect(err).To(MatchError(stream.ErrMalformed))
			},
			Entry("plain text", "not json"),
			Entry("truncated object", `{"type":"tok`),
			Entry("json array", `[1,2,3]`),
			Entry("json null", `null`),
			Entry("json string", `"token"`),
			Entry("missing type", `{"content":"x"}`),
			Entry("non-string type", `{"type":1}`),
			Entry("unknown type", `{"type":"done"}`),
		)

		It("returns ErrEmptyRecord for whitespace", func() {
			_, err := stream.Decode(" \t ")
			Expect(err).To(MatchError(stream.ErrEmptyRecord))

			_, err = stream.Decode("")
			Expect(err).To(MatchError(stream.ErrEmptyRecord))
		})
	})
})
