package replaycmder_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/charmbracelet/x/ansi"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	replaycmder "github.com/papercomputeco/ragchat/cmd/ragchat/replay"
	"github.com/papercomputeco/ragchat/pkg/transcript"
	testutils "github.com/papercomputeco/ragchat/pkg/utils/test"
)

// failingReader returns data, then err.
type failingReader struct {
	data string
	err  error
}

func (r *failingReader) Read(p []byte) (int, error) {
	if r.data == "" {
		return 0, r.err
	}
	n := copy(p, r.data)
	r.data = r.data[n:]
	return n, nil
}

// newRootCmd wraps the replay command with the persistent flags the root
// command provides.
func newRootCmd(out io.Writer) *cobra.Command {
	root := &cobra.Command{Use: "ragchat"}
	root.PersistentFlags().BoolP("debug", "d", false, "")
	root.AddCommand(replaycmder.NewReplayCmd())
	root.SetOut(out)
	root.SetErr(io.Discard)
	return root
}

var _ = Describe("Replay", func() {
	It("rebuilds the answer and sources of a recording", func() {
		recording := testutils.Answer("Streams are framed by newlines.",
			testutils.Source("handbook.pdf", 2, 0.9),
		)

		var lengths []int
		turn, stats := replaycmder.Replay(strings.NewReader(recording), zap.NewNop(), func(t transcript.Turn) {
			lengths = append(lengths, len(t.Content))
		})

		Expect(turn.State).To(Equal(transcript.StateCompleted))
		Expect(turn.Content).To(Equal("Streams are framed by newlines."))
		Expect(turn.Sources).To(HaveLen(1))
		Expect(stats.Applied).To(Equal(6))
		Expect(stats.Malformed).To(BeZero())
		Expect(lengths).To(HaveLen(6))
		Expect(slices.IsSorted(lengths)).To(BeTrue())
	})

	It("skips malformed records and applies an unterminated tail", func() {
		recording := testutils.TokenLine("a") +
			"not json\n" +
			`{"type":"heartbeat"}` + "\n" +
			`{"type":"token","content":"b"}`

		turn, stats := replaycmder.Replay(strings.NewReader(recording), zap.NewNop(), nil)

		Expect(turn.Content).To(Equal("ab"))
		Expect(stats.Malformed).To(Equal(2))
		Expect(stats.Applied).To(Equal(2))
	})

	It("fails the turn on a read error and keeps applied content", func() {
		src := &failingReader{data: testutils.TokenLine("partial"), err: errors.New("disk gone")}

		turn, _ := replaycmder.Replay(src, zap.NewNop(), nil)

		Expect(turn.State).To(Equal(transcript.StateFailed))
		Expect(turn.Err).To(ContainSubstring("disk gone"))
		Expect(turn.Content).To(Equal("partial"))
	})
})

var _ = Describe("NewReplayCmd", func() {
	var path string

	BeforeEach(func() {
		path = filepath.Join(GinkgoT().TempDir(), "answer.ndjson")
		recording := testutils.Answer("Hello there.", testutils.Source("faq.md", 0, 0.5)) + "garbage\n"
		Expect(os.WriteFile(path, []byte(recording), 0o600)).To(Succeed())
	})

	It("requires exactly one argument", func() {
		root := newRootCmd(io.Discard)
		root.SetArgs([]string{"replay"})
		Expect(root.Execute()).NotTo(Succeed())
	})

	It("prints the answer, sources and counts", func() {
		var out bytes.Buffer
		root := newRootCmd(&out)
		root.SetArgs([]string{"replay", path})

		Expect(root.Execute()).To(Succeed())

		text := ansi.Strip(out.String())
		Expect(text).To(ContainSubstring("Hello there."))
		Expect(text).To(ContainSubstring("1. faq.md #0 (0.50)"))
		Expect(text).To(ContainSubstring("(3 applied, 1 malformed)"))
	})

	It("prints JSON with --json", func() {
		var out bytes.Buffer
		root := newRootCmd(&out)
		root.SetArgs([]string{"replay", "--json", path})

		Expect(root.Execute()).To(Succeed())

		var got struct {
			Turn      transcript.Turn `json:"turn"`
			Applied   int             `json:"applied"`
			Malformed int             `json:"malformed"`
		}
		Expect(json.Unmarshal(out.Bytes(), &got)).To(Succeed())
		Expect(got.Turn.Content).To(Equal("Hello there."))
		Expect(got.Turn.State).To(Equal(transcript.StateCompleted))
		Expect(got.Applied).To(Equal(3))
		Expect(got.Malformed).To(Equal(1))
	})

	It("reads stdin for -", func() {
		var out bytes.Buffer
		root := newRootCmd(&out)
		root.SetIn(strings.NewReader(testutils.TokenLine("piped")))
		root.SetArgs([]string{"replay", "--json", "-"})

		Expect(root.Execute()).To(Succeed())
		Expect(out.String()).To(ContainSubstring(`"content": "piped"`))
	})

	It("fails on a missing file", func() {
		root := newRootCmd(io.Discard)
		root.SetArgs([]string{"replay", filepath.Join(GinkgoT().TempDir(), "nope.ndjson")})
		Expect(root.Execute()).To(MatchError(ContainSubstring("opening recording")))
	})
})
