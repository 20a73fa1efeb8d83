// Package storagetest holds the behavior every storage.Driver must share, as
// ginkgo specs each driver's suite registers.
package storagetest

import (
	"context"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/ragchat/pkg/storage"
	"github.com/papercomputeco/ragchat/pkg/transcript"
)

// Exchange builds a frozen exchange in conversation conv. The question is
// asked at base plus offset, so callers control ordering.
func Exchange(conv, query, answer string, offset time.Duration) transcript.Exchange {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	user := transcript.NewUserTurn(query)
	user.CreatedAt = base.Add(offset)
	user.FinishedAt = user.CreatedAt

	turn := transcript.NewAssistantTurn()
	turn.CreatedAt = user.CreatedAt.Add(10 * time.Millisecond)
	_ = turn.AppendContent(answer)
	page, chunk, score := 3, 7, 0.82
	_ = turn.SetSources([]transcript.Source{
		{Source: "handbook.pdf", ID: "doc-1", ChunkIndex: &chunk, Page: &page, Score: &score},
		{Source: "faq.md"},
	})
	turn.Finish(transcript.StateCompleted, "")
	turn.FinishedAt = turn.CreatedAt.Add(2 * time.Second)

	return transcript.Exchange{
		ConversationID: conv,
		TopK:           5,
		User:           *user,
		Assistant:      turn.Snapshot(),
		Applied:        4,
		Malformed:      1,
	}
}

// DriverSpecs registers the shared storage.Driver specs. newDriver is called
// before every test and the driver is closed after it.
func DriverSpecs(newDriver func() storage.Driver) {
	var (
		driver storage.Driver
		ctx    context.Context
	)

	BeforeEach(func() {
		ctx = context.Background()
		driver = nil
		driver = newDriver()
	})

	AfterEach(func() {
		// newDriver may have skipped the test.
		if driver != nil {
			Expect(driver.Close()).To(Succeed())
		}
	})

	Describe("Put", func() {
		It("reports new and duplicate inserts", func() {
			ex := Exchange("c1", "q", "a", 0)

			isNew, err := driver.Put(ctx, &ex)
			Expect(err).NotTo(HaveOccurred())
			Expect(isNew).To(BeTrue())

			isNew, err = driver.Put(ctx, &ex)
			Expect(err).NotTo(HaveOccurred())
			Expect(isNew).To(BeFalse())
		})

		It("rejects nil exchanges", func() {
			_, err := driver.Put(ctx, nil)
			Expect(err).To(HaveOccurred())
		})

		It("rejects exchanges still streaming", func() {
			ex := Exchange("c1", "q", "a", 0)
			ex.Assistant.State = transcript.StateStreaming

			_, err := driver.Put(ctx, &ex)
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("Get", func() {
		It("round-trips every field", func() {
			ex := Exchange("c1", "what is rag?", "retrieval augmented generation", 0)
			_, err := driver.Put(ctx, &ex)
			Expect(err).NotTo(HaveOccurred())

			got, err := driver.Get(ctx, ex.Assistant.ID)
			Expect(err).NotTo(HaveOccurred())

			Expect(got.ConversationID).To(Equal("c1"))
			Expect(got.TopK).To(Equal(5))
			Expect(got.Applied).To(Equal(4))
			Expect(got.Malformed).To(Equal(1))

			Expect(got.User.ID).To(Equal(ex.User.ID))
			Expect(got.User.Role).To(Equal(transcript.RoleUser))
			Expect(got.User.Content).To(Equal("what is rag?"))
			Expect(got.User.CreatedAt).To(BeTemporally("~", ex.User.CreatedAt, time.Millisecond))

			Expect(got.Assistant.ID).To(Equal(ex.Assistant.ID))
			Expect(got.Assistant.Role).To(Equal(transcript.RoleAssistant))
			Expect(got.Assistant.Content).To(Equal("retrieval augmented generation"))
			Expect(got.Assistant.State).To(Equal(transcript.StateCompleted))
			Expect(transcript.EqualSources(got.Assistant.Sources, ex.Assistant.Sources)).To(BeTrue())
			Expect(got.Assistant.CreatedAt).To(BeTemporally("~", ex.Assistant.CreatedAt, time.Millisecond))
			Expect(got.Assistant.FinishedAt).To(BeTemporally("~", ex.Assistant.FinishedAt, time.Millisecond))
		})

		It("keeps the failure reason of failed turns", func() {
			ex := Exchange("c1", "q", "partial", 0)
			ex.Assistant.State = transcript.StateFailed
			ex.Assistant.Err = "stream idle timeout"
			_, err := driver.Put(ctx, &ex)
			Expect(err).NotTo(HaveOccurred())

			got, err := driver.Get(ctx, ex.Assistant.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(got.Assistant.State).To(Equal(transcript.StateFailed))
			Expect(got.Assistant.Err).To(Equal("stream idle timeout"))
		})

		It("stores empty source lists as empty", func() {
			ex := Exchange("c1", "q", "a", 0)
			ex.Assistant.Sources = nil
			_, err := driver.Put(ctx, &ex)
			Expect(err).NotTo(HaveOccurred())

			got, err := driver.Get(ctx, ex.Assistant.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(got.Assistant.Sources).NotTo(BeNil())
			Expect(got.Assistant.Sources).To(BeEmpty())
		})

		It("returns NotFoundError for unknown IDs", func() {
			_, err := driver.Get(ctx, "missing")

			var notFound storage.NotFoundError
			Expect(errors.As(err, &notFound)).To(BeTrue())
			Expect(notFound.ID).To(Equal("missing"))
		})
	})

	Describe("Conversation", func() {
		It("returns exchanges oldest first", func() {
			late := Exchange("c1", "second", "b", time.Minute)
			early := Exchange("c1", "first", "a", 0)
			other := Exchange("c2", "elsewhere", "x", 0)
			for _, ex := range []*transcript.Exchange{&late, &early, &other} {
				_, err := driver.Put(ctx, ex)
				Expect(err).NotTo(HaveOccurred())
			}

			got, err := driver.Conversation(ctx, "c1")
			Expect(err).NotTo(HaveOccurred())
			Expect(got).To(HaveLen(2))
			Expect(got[0].User.Content).To(Equal("first"))
			Expect(got[1].User.Content).To(Equal("second"))
		})

		It("returns nothing for unknown conversations", func() {
			got, err := driver.Conversation(ctx, "nope")
			Expect(err).NotTo(HaveOccurred())
			Expect(got).To(BeEmpty())
		})
	})

	Describe("Conversations", func() {
		It("summarizes conversations, most recent first", func() {
			for _, ex := range []transcript.Exchange{
				Exchange("old", "hello", "hi", 0),
				Exchange("old", "again", "hi", time.Minute),
				Exchange("new", "latest", "yes", time.Hour),
			} {
				_, err := driver.Put(ctx, &ex)
				Expect(err).NotTo(HaveOccurred())
			}

			got, err := driver.Conversations(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(got).To(HaveLen(2))

			Expect(got[0].ID).To(Equal("new"))
			Expect(got[0].Exchanges).To(Equal(1))

			Expect(got[1].ID).To(Equal("old"))
			Expect(got[1].Exchanges).To(Equal(2))
			Expect(got[1].FirstQuery).To(Equal("hello"))
			Expect(got[1].UpdatedAt).To(BeTemporally(">", got[1].StartedAt))
		})
	})

	Describe("LoadTranscript", func() {
		It("rebuilds the turn sequence", func() {
			first := Exchange("c1", "first", "a", 0)
			second := Exchange("c1", "second", "b", time.Minute)
			for _, ex := range []*transcript.Exchange{&second, &first} {
				_, err := driver.Put(ctx, ex)
				Expect(err).NotTo(HaveOccurred())
			}

			t, err := storage.LoadTranscript(ctx, driver, "c1")
			Expect(err).NotTo(HaveOccurred())
			Expect(t.ID()).To(Equal("c1"))

			turns := t.Turns()
			Expect(turns).To(HaveLen(4))
			Expect(turns[0].Content).To(Equal("first"))
			Expect(turns[1].Content).To(Equal("a"))
			Expect(turns[2].Content).To(Equal("second"))
			Expect(turns[3].Content).To(Equal("b"))
		})

		It("reports unknown conversations", func() {
			_, err := storage.LoadTranscript(ctx, driver, "nope")
			Expect(err).To(BeAssignableToTypeOf(storage.NotFoundError{}))
		})
	})
}
