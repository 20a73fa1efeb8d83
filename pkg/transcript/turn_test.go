package transcript_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/ragchat/pkg/transcript"
)

func intPtr(i int) *int           { return &i }
func floatPtr(f float64) *float64 { return &f }

var _ = Describe("Turn", func() {
	var turn *transcript.Turn

	BeforeEach(func() {
		turn = transcript.NewAssistantTurn()
	})

	It("starts empty and streaming", func() {
		Expect(turn.Role).To(Equal(transcript.RoleAssistant))
		Expect(turn.Content).To(BeEmpty())
		Expect(turn.Sources).To(BeEmpty())
		Expect(turn.State).To(Equal(transcript.StateStreaming))
		Expect(turn.ID).NotTo(BeEmpty())
	})

	Describe("AppendContent", func() {
		It("concatenates in call order", func() {
			Expect(turn.AppendContent("A")).To(Succeed())
			Expect(turn.AppendContent("B")).To(Succeed())
			Expect(turn.AppendContent("C")).To(Succeed())
			Expect(turn.Content).To(Equal("ABC"))
		})

		It("rejects user turns", func() {
			user := transcript.NewUserTurn("question")
			Expect(user.AppendContent("x")).To(MatchError(transcript.ErrUserTurn))
			Expect(user.Content).To(Equal("question"))
		})

		It("rejects frozen turns", func() {
			Expect(turn.AppendContent("A")).To(Succeed())
			Expect(turn.Finish(transcript.StateCompleted, "")).To(BeTrue())
			Expect(turn.AppendContent("B")).To(MatchError(transcript.ErrFrozen))
			Expect(turn.Content).To(Equal("A"))
		})
	})

	Describe("SetSources", func() {
		It("replaces rather than merges", func() {
			x := transcript.Source{Source: "x.pdf", ChunkIndex: intPtr(1)}
			y := transcript.Source{Source: "y.pdf", Score: floatPtr(0.5)}

			Expect(turn.SetSources([]transcript.Source{x})).To(Succeed())
			Expect(turn.SetSources([]transcript.Source{y})).To(Succeed())
			Expect(transcript.EqualSources(turn.Sources, []transcript.Source{y})).To(BeTrue())
		})

		It("keeps duplicates in order", func() {
			a := transcript.Source{Source: "a.md"}
			Expect(turn.SetSources([]transcript.Source{a, a})).To(Succeed())
			Expect(turn.Sources).To(HaveLen(2))
		})

		It("copies the caller's slice", func() {
			in := []transcript.Source{{Source: "a.md", Score: floatPtr(0.9)}}
			Expect(turn.SetSources(in)).To(Succeed())

			in[0].Source = "changed"
			*in[0].Score = 0.1
			Expect(turn.Sources[0].Source).To(Equal("a.md"))
			Expect(*turn.Sources[0].Score).To(Equal(0.9))
		})
	})

	Describe("Finish", func() {
		It("freezes exactly once", func() {
			Expect(turn.Finish(transcript.StateCancelled, "")).To(BeTrue())
			Expect(turn.Finish(transcript.StateFailed, "late")).To(BeFalse())
			Expect(turn.State).To(Equal(transcript.StateCancelled))
			Expect(turn.Err).To(BeEmpty())
			Expect(turn.FinishedAt).NotTo(BeZero())
		})

		It("ignores non-terminal states", func() {
			Expect(turn.Finish(transcript.StateStreaming, "")).To(BeFalse())
			Expect(turn.State).To(Equal(transcript.StateStreaming))
		})
	})

	Describe("Snapshot", func() {
		It("is unaffected by later mutation", func() {
			Expect(turn.AppendContent("Hel")).To(Succeed())
			Expect(turn.SetSources([]transcript.Source{{Source: "a", ChunkIndex: intPtr(2)}})).To(Succeed())

			snap := turn.Snapshot()
			Expect(turn.AppendContent("lo")).To(Succeed())
			*turn.Sources[0].ChunkIndex = 9

			Expect(snap.Content).To(Equal("Hel"))
			Expect(*snap.Sources[0].ChunkIndex).To(Equal(2))
		})
	})
})

var _ = Describe("Source", func() {
	It("compares structurally", func() {
		a := transcript.Source{Source: "a", ChunkIndex: intPtr(1), Score: floatPtr(0.3)}
		b := transcript.Source{Source: "a", ChunkIndex: intPtr(1), Score: floatPtr(0.3)}
		c := transcript.Source{Source: "a", ChunkIndex: intPtr(1)}

		Expect(a.Equal(b)).To(BeTrue())
		Expect(a.Equal(c)).To(BeFalse())
	})
})
