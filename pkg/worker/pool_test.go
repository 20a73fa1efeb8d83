package worker

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/papercomputeco/ragchat/pkg/eventstream"
	"github.com/papercomputeco/ragchat/pkg/storage/inmemory"
	"github.com/papercomputeco/ragchat/pkg/transcript"
	testutils "github.com/papercomputeco/ragchat/pkg/utils/test"
)

// exchange builds a finished exchange in conversation conv.
func exchange(conv, query, answer string) transcript.Exchange {
	user := transcript.NewUserTurn(query)
	turn := transcript.NewAssistantTurn()
	_ = turn.AppendContent(answer)
	turn.Finish(transcript.StateCompleted, "")

	return transcript.Exchange{
		ConversationID: conv,
		TopK:           5,
		User:           *user,
		Assistant:      turn.Snapshot(),
		Applied:        1,
	}
}

// newTestPool creates a worker pool backed by an in-memory driver.
// Callers should "wp.Close()" to drain enqueued jobs before asserting storage state.
func newTestPool(pub eventstream.Publisher) (*Pool, *inmemory.Driver) {
	logger, _ := zap.NewDevelopment()
	driver := inmemory.NewDriver()

	wp, err := NewPool(&Config{
		Driver:    driver,
		Publisher: pub,
		Logger:    logger,
	})
	Expect(err).NotTo(HaveOccurred())

	return wp, driver
}

var _ = Describe("Worker Pool", func() {
	var (
		wp     *Pool
		driver *inmemory.Driver
		pub    *testutils.MockPublisher
		ctx    context.Context
	)

	BeforeEach(func() {
		pub = testutils.NewMockPublisher()
		wp, driver = newTestPool(pub)
		ctx = context.Background()
	})

	It("requires a driver", func() {
		_, err := NewPool(&Config{})
		Expect(err).To(HaveOccurred())
		wp.Close()
	})

	Describe("Enqueue", func() {
		It("returns true when the queue has capacity", func() {
			Expect(wp.Enqueue(Job{Exchange: exchange("c1", "q", "a")})).To(BeTrue())
			wp.Close()
		})

		It("drops jobs when the queue is full", func() {
			wp.Close()

			// A pool with no room and a worker that never drains.
			full := &Pool{queue: make(chan Job), logger: zap.NewNop()}
			Expect(full.Enqueue(Job{Exchange: exchange("c1", "q", "a")})).To(BeFalse())
		})
	})

	Describe("processing", func() {
		It("stores exchanges and publishes one event each", func() {
			first := exchange("c1", "what is rag?", "retrieval")
			second := exchange("c1", "and chunking?", "splitting")

			wp.EnqueueExchange(first)
			wp.EnqueueExchange(second)
			wp.Close()

			stored, err := driver.Conversation(ctx, "c1")
			Expect(err).NotTo(HaveOccurred())
			Expect(stored).To(HaveLen(2))

			events := pub.Events()
			Expect(events).To(HaveLen(2))
			ids := []string{events[0].Assistant.ID, events[1].Assistant.ID}
			Expect(ids).To(ConsistOf(first.Assistant.ID, second.Assistant.ID))
		})

		It("does not republish duplicates", func() {
			ex := exchange("c1", "q", "a")

			wp.EnqueueExchange(ex)
			wp.EnqueueExchange(ex)
			wp.Close()

			Expect(pub.Events()).To(HaveLen(1))
		})

		It("skips publishing when storage fails", func() {
			bad := exchange("", "q", "a")

			wp.EnqueueExchange(bad)
			wp.Close()

			Expect(pub.Events()).To(BeEmpty())
		})

		It("keeps stored exchanges when publishing fails", func() {
			pub.SetFailPublish(true)
			ex := exchange("c2", "q", "a")

			wp.EnqueueExchange(ex)
			wp.Close()

			got, err := driver.Get(ctx, ex.Assistant.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(got.Assistant.Content).To(Equal("a"))
		})

		It("works without a publisher", func() {
			wp.Close()
			wp, driver = newTestPool(nil)

			ex := exchange("c3", "q", "a")
			wp.EnqueueExchange(ex)
			wp.Close()

			_, err := driver.Get(ctx, ex.Assistant.ID)
			Expect(err).NotTo(HaveOccurred())
		})
	})

	It("tolerates repeated Close", func() {
		wp.Close()
		Expect(wp.Close).NotTo(Panic())
	})
})
