package chatcmder

import (
	"context"
	"net/http/httptest"
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/papercomputeco/ragchat/pkg/client"
	"github.com/papercomputeco/ragchat/pkg/dotdir"
	"github.com/papercomputeco/ragchat/pkg/transcript"
	testutils "github.com/papercomputeco/ragchat/pkg/utils/test"
)

var _ = Describe("session", func() {
	var (
		be        *backend
		configDir string
		finalized chan transcript.Exchange
	)

	newTestSession := func(policy client.BusyPolicy, recordDir string) *session {
		server := httptest.NewServer(be)
		DeferCleanup(server.Close)
		DeferCleanup(func() { close(be.release) })

		return newSession(sessionConfig{
			client:    client.New(client.Config{BaseURL: server.URL}, nil),
			policy:    policy,
			onFinal:   func(ex transcript.Exchange) { finalized <- ex },
			topK:      4,
			recordDir: recordDir,
			configDir: configDir,
			logger:    zap.NewNop(),
		})
	}

	BeforeEach(func() {
		be = newBackend(testutils.Answer("It reorders.", testutils.Source("a.pdf", 0, 0.5)))
		configDir = GinkgoT().TempDir()
		finalized = make(chan transcript.Exchange, 4)
	})

	It("asks with the current top_k and saves the chat session", func() {
		s := newTestSession(client.BusyReject, "")

		h, err := s.ask(context.Background(), "What?", client.ObserverFuncs{})
		Expect(err).NotTo(HaveOccurred())
		Expect(h.Wait().Kind).To(Equal(client.Completed))

		var ex transcript.Exchange
		Eventually(finalized).Should(Receive(&ex))
		Expect(ex.TopK).To(Equal(4))
		Expect(ex.Assistant.Content).To(Equal("It reorders."))
		Expect(be.TopK()).To(Equal([]int{4}))

		state, err := dotdir.NewManager().LoadSession(configDir)
		Expect(err).NotTo(HaveOccurred())
		Expect(state.ConversationID).To(Equal(s.conversation().Transcript().ID()))
	})

	It("saves the session before the caller sees the frozen turn", func() {
		s := newTestSession(client.BusyReject, "")

		saved := make(chan bool, 1)
		h, err := s.ask(context.Background(), "What?", client.ObserverFuncs{
			Terminal: func(transcript.Turn, client.Outcome) {
				state, _ := dotdir.NewManager().LoadSession(configDir)
				saved <- state != nil
			},
		})
		Expect(err).NotTo(HaveOccurred())
		h.Wait()
		Expect(saved).To(Receive(BeTrue()))
	})

	It("falls back to the default top_k", func() {
		s := newTestSession(client.BusyReject, "")

		s.setTopK(9)
		Expect(s.TopK()).To(Equal(9))
		s.setTopK(0)
		Expect(s.TopK()).To(Equal(client.DefaultTopK))
	})

	It("cancels a running stream when the conversation is reset", func() {
		be.hold = true
		s := newTestSession(client.BusyReject, "")
		before := s.conversation()

		Expect(dotdir.NewManager().SaveSession(&dotdir.SessionState{
			ConversationID: before.Transcript().ID(),
			UpdatedAt:      time.Now(),
		}, configDir)).To(Succeed())

		h, err := s.ask(context.Background(), "What?", client.ObserverFuncs{})
		Expect(err).NotTo(HaveOccurred())

		Expect(s.reset()).To(Succeed())
		Expect(h.Done()).To(BeClosed())
		Expect(h.Wait().Kind).To(Equal(client.Cancelled))
		Expect(s.conversation()).NotTo(BeIdenticalTo(before))
		Expect(s.conversation().Transcript().Len()).To(BeZero())

		state, err := dotdir.NewManager().LoadSession(configDir)
		Expect(err).NotTo(HaveOccurred())
		Expect(state).To(BeNil())
	})

	It("applies the busy policy to the conversation", func() {
		be.hold = true
		s := newTestSession(client.BusyCancel, "")

		first, err := s.ask(context.Background(), "First?", client.ObserverFuncs{})
		Expect(err).NotTo(HaveOccurred())

		second, err := s.ask(context.Background(), "Second?", client.ObserverFuncs{})
		Expect(err).NotTo(HaveOccurred())
		Expect(first.Wait().Kind).To(Equal(client.Cancelled))

		second.Cancel()
		Expect(second.Wait().Kind).To(Equal(client.Cancelled))
	})

	Describe("recording", func() {
		It("writes the raw stream to a numbered file per exchange", func() {
			dir := filepath.Join(configDir, "rec")
			s := newTestSession(client.BusyReject, dir)
			id := s.conversation().Transcript().ID()

			for range 2 {
				h, err := s.ask(context.Background(), "What?", client.ObserverFuncs{})
				Expect(err).NotTo(HaveOccurred())
				h.Wait()
			}

			for _, name := range []string{id + "-001.ndjson", id + "-002.ndjson"} {
				data, err := os.ReadFile(filepath.Join(dir, name))
				Expect(err).NotTo(HaveOccurred())
				Expect(string(data)).To(Equal(be.body))
			}
		})

		It("removes the recording of a rejected question", func() {
			be.hold = true
			dir := filepath.Join(configDir, "rec")
			s := newTestSession(client.BusyReject, dir)
			id := s.conversation().Transcript().ID()

			h, err := s.ask(context.Background(), "First?", client.ObserverFuncs{})
			Expect(err).NotTo(HaveOccurred())

			_, err = s.ask(context.Background(), "Second?", client.ObserverFuncs{})
			Expect(err).To(MatchError(client.ErrBusy))
			Expect(filepath.Join(dir, id+"-002.ndjson")).NotTo(BeAnExistingFile())

			h.Cancel()
			h.Wait()
		})

		It("refuses to overwrite an existing recording", func() {
			dir := GinkgoT().TempDir()
			t := transcript.New()
			Expect(os.WriteFile(filepath.Join(dir, t.ID()+"-001.ndjson"), nil, 0o644)).To(Succeed())

			_, err := openRecording(dir, t)
			Expect(err).To(MatchError(ContainSubstring("already exists")))
		})
	})
})
