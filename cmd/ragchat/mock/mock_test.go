package mockcmder_test

import (
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	mockcmder "github.com/papercomputeco/ragchat/cmd/ragchat/mock"
)

var _ = Describe("NewMockCmd", func() {
	It("registers the mock flags with their defaults", func() {
		cmd := mockcmder.NewMockCmd()

		listen := cmd.Flags().Lookup("listen")
		Expect(listen).NotTo(BeNil())
		Expect(listen.Shorthand).To(Equal("l"))
		Expect(listen.DefValue).To(Equal(":8000"))

		Expect(cmd.Flags().Lookup("token-delay").DefValue).To(Equal("40ms"))
		Expect(cmd.Flags().Lookup("corpus")).NotTo(BeNil())
	})
})

var _ = Describe("LoadCorpus", func() {
	write := func(content string) string {
		path := filepath.Join(GinkgoT().TempDir(), "corpus.toml")
		Expect(os.WriteFile(path, []byte(content), 0o600)).To(Succeed())
		return path
	}

	It("returns nil without a path", func() {
		chunks, err := mockcmder.LoadCorpus("")
		Expect(err).NotTo(HaveOccurred())
		Expect(chunks).To(BeNil())
	})

	It("reads chunks", func() {
		path := write(`
[[chunks]]
source = "guide.pdf"
page = 4
chunk_index = 2
text = "Chunks overlap by fifty tokens."

[[chunks]]
source = "faq.md"
text = "Ask anything."
`)
		chunks, err := mockcmder.LoadCorpus(path)
		Expect(err).NotTo(HaveOccurred())
		Expect(chunks).To(HaveLen(2))
		Expect(chunks[0].Source).To(Equal("guide.pdf"))
		Expect(chunks[0].Page).To(Equal(4))
		Expect(chunks[0].Index).To(Equal(2))
		Expect(chunks[1].Text).To(Equal("Ask anything."))
	})

	It("rejects an empty corpus", func() {
		_, err := mockcmder.LoadCorpus(write(`title = "nothing"`))
		Expect(err).To(MatchError(ContainSubstring("no [[chunks]]")))
	})

	It("rejects chunks without text", func() {
		_, err := mockcmder.LoadCorpus(write("[[chunks]]\nsource = \"a\"\n"))
		Expect(err).To(MatchError(ContainSubstring("needs both source and text")))
	})

	It("reports unreadable files", func() {
		_, err := mockcmder.LoadCorpus(filepath.Join(GinkgoT().TempDir(), "missing.toml"))
		Expect(err).To(MatchError(ContainSubstring("reading corpus")))
	})
})
