// Package replaycmder provides the replay command, which runs a recorded
// answer stream through the same framing and interpretation as a live one.
package replaycmder

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/papercomputeco/ragchat/pkg/cliui"
	"github.com/papercomputeco/ragchat/pkg/logger"
	"github.com/papercomputeco/ragchat/pkg/ndjson"
	"github.com/papercomputeco/ragchat/pkg/stream"
	"github.com/papercomputeco/ragchat/pkg/transcript"
)

type replayCommander struct {
	markdown bool
	asJSON   bool
	delay    time.Duration
	debug    bool

	in     io.Reader
	out    io.Writer
	logger *zap.Logger
}

const replayLongDesc string = `Replay a recorded answer stream.

Reads newline-delimited answer events from FILE (or stdin when FILE is "-"),
applies them to a fresh assistant turn exactly as a live stream would, and
prints the resulting answer, its sources, and how many records were applied
or skipped as malformed.

Streams are recorded by "ragchat chat --record-dir DIR" or with curl:
  curl -sN -d '{"query":"..."}' localhost:8000/query-stream > answer.ndjson

Examples:
  ragchat replay answer.ndjson
  ragchat replay --delay 30ms answer.ndjson
  ragchat replay --json - < answer.ndjson`

const replayShortDesc string = "Replay a recorded answer stream"

func NewReplayCmd() *cobra.Command {
	cmder := &replayCommander{}

	cmd := &cobra.Command{
		Use:   "replay <file>",
		Short: replayShortDesc,
		Long:  replayLongDesc,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var err error
			cmder.debug, err = cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %w", err)
			}
			cmder.in = cmd.InOrStdin()
			cmder.out = cmd.OutOrStdout()

			return cmder.run(args[0])
		},
	}

	cmd.Flags().BoolVarP(&cmder.markdown, "markdown", "m", false, "Render the final answer as markdown")
	cmd.Flags().BoolVar(&cmder.asJSON, "json", false, "Print the resulting turn as JSON")
	cmd.Flags().DurationVar(&cmder.delay, "delay", 0, "Pause between records to mimic a live stream")

	return cmd
}

// result is the JSON form of a replay.
type result struct {
	Turn      transcript.Turn `json:"turn"`
	Applied   int             `json:"applied"`
	Skipped   int             `json:"skipped"`
	Malformed int             `json:"malformed"`
}

func (c *replayCommander) run(path string) error {
	c.logger = logger.NewLoggerWithWriters(c.debug, os.Stderr)
	defer func() { _ = c.logger.Sync() }()

	src := c.in
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("opening recording: %w", err)
		}
		defer f.Close()
		src = f
	}

	live := !c.asJSON && !c.markdown
	if live {
		fmt.Fprintln(c.out)
		fmt.Fprint(c.out, "  ")
	}

	printed := 0
	turn, stats := Replay(src, c.logger, func(t transcript.Turn) {
		if c.delay > 0 {
			time.Sleep(c.delay)
		}
		if live && len(t.Content) > printed {
			fmt.Fprint(c.out, t.Content[printed:])
			printed = len(t.Content)
		}
	})

	if c.asJSON {
		enc := json.NewEncoder(c.out)
		enc.SetIndent("", "  ")
		return enc.Encode(result{
			Turn:      turn.Snapshot(),
			Applied:   stats.Applied,
			Skipped:   stats.Skipped,
			Malformed: stats.Malformed,
		})
	}

	if c.markdown {
		rendered, err := cliui.RenderMarkdown(turn.Content, cliui.Width(c.out))
		if err != nil {
			c.logger.Debug("markdown rendering failed", zap.Error(err))
		}
		fmt.Fprint(c.out, rendered)
	} else {
		fmt.Fprint(c.out, "\n\n")
	}

	cliui.WriteSources(c.out, turn.Sources)
	fmt.Fprintf(c.out, "\n  %s %s\n\n",
		cliui.TurnStatus(turn.Snapshot()),
		cliui.DimStyle.Render(fmt.Sprintf("(%d applied, %d malformed)", stats.Applied, stats.Malformed)),
	)

	return nil
}

// Replay applies every record of src to a new assistant turn and returns the
// frozen turn with the interpreter's counters. onUpdate, if set, sees a
// snapshot after every applied record. A read error fails the turn and keeps
// what was applied before it.
func Replay(src io.Reader, logger *zap.Logger, onUpdate func(transcript.Turn)) (*transcript.Turn, stream.Stats) {
	reader := ndjson.NewReader(src)
	interp := stream.NewInterpreter(logger)
	turn := transcript.NewAssistantTurn()

	for {
		record, err := reader.Next()
		if errors.Is(err, io.EOF) {
			turn.Finish(transcript.StateCompleted, "")
			break
		}
		if err != nil {
			turn.Finish(transcript.StateFailed, fmt.Sprintf("reading recording: %v", err))
			break
		}

		if interp.Apply(record, turn).Applied() && onUpdate != nil {
			onUpdate(turn.Snapshot())
		}
	}

	return turn, interp.Stats()
}
