package eventstream_test

import (
	"encoding/json"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/ragchat/pkg/eventstream"
	"github.com/papercomputeco/ragchat/pkg/transcript"
)

func finishedExchange() transcript.Exchange {
	user := transcript.NewUserTurn("what is rag?")
	answer := transcript.NewAssistantTurn()
	answer.CreatedAt = time.Unix(1735689600, 0).UTC()
	_ = answer.AppendContent("retrieval augmented generation")
	_ = answer.SetSources([]transcript.Source{{Source: "rag.pdf"}})
	answer.Finish(transcript.StateCompleted, "")
	answer.FinishedAt = answer.CreatedAt.Add(1500 * time.Millisecond)

	return transcript.Exchange{
		ConversationID: "conv-1",
		TopK:           5,
		User:           *user,
		Assistant:      answer.Snapshot(),
		Applied:        2,
		Malformed:      1,
	}
}

var _ = Describe("Event", func() {
	It("builds a finalized event from an exchange", func() {
		event := eventstream.NewTurnFinalizedEvent(finishedExchange())

		Expect(event.SchemaVersion).To(Equal(eventstream.SchemaVersionV1))
		Expect(event.EventType).To(Equal(eventstream.EventTypeTurnFinalized))
		Expect(event.EventID).NotTo(BeEmpty())
		Expect(event.ConversationID).To(Equal("conv-1"))
		Expect(event.Outcome).To(Equal("completed"))
		Expect(event.Stream.TopK).To(Equal(5))
		Expect(event.Stream.DurationMs).To(Equal(int64(1500)))
		Expect(event.Stream.Applied).To(Equal(2))
		Expect(event.Stream.Malformed).To(Equal(1))
		Expect(event.Assistant.Content).To(Equal("retrieval augmented generation"))
	})

	It("gives every event its own ID", func() {
		ex := finishedExchange()
		Expect(eventstream.NewTurnFinalizedEvent(ex).EventID).
			NotTo(Equal(eventstream.NewTurnFinalizedEvent(ex).EventID))
	})

	It("marshals with expected top-level keys", func() {
		payload, err := json.Marshal(eventstream.NewTurnFinalizedEvent(finishedExchange()))
		Expect(err).NotTo(HaveOccurred())

		var got map[string]any
		Expect(json.Unmarshal(payload, &got)).To(Succeed())

		for _, key := range []string{
			"schema_version", "event_type", "event_id", "emitted_at",
			"conversation_id", "outcome", "stream", "user", "assistant",
		} {
			Expect(got).To(HaveKey(key))
		}
		Expect(got["assistant"]).To(HaveKeyWithValue("sources", HaveLen(1)))
	})

	It("defines stable event constants", func() {
		Expect(eventstream.SchemaVersionV1).To(BeNumerically(">", 0))
		Expect(eventstream.EventTypeTurnFinalized).To(Equal("ragchat.turn.finalized"))
	})

	It("provides ErrNilTurnEvent for nil payload validation", func() {
		Expect(eventstream.ErrNilTurnEvent).To(MatchError("nil turn event"))
	})
})
