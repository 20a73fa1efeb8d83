// Package askcmder provides the ask command, which streams the answer to a
// single question.
package askcmder

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/papercomputeco/ragchat/cmd/ragchat/setup"
	"github.com/papercomputeco/ragchat/pkg/client"
	"github.com/papercomputeco/ragchat/pkg/cliui"
	"github.com/papercomputeco/ragchat/pkg/config"
	"github.com/papercomputeco/ragchat/pkg/logger"
	"github.com/papercomputeco/ragchat/pkg/transcript"
)

type askCommander struct {
	target      string
	topK        uint
	idleTimeout string

	storageDriver string
	sqlitePath    string
	postgresDSN   string
	publisher     string
	brokers       []string
	topic         string

	markdown bool
	save     bool
	debug    bool

	settings *setup.Settings
	out      io.Writer
	errOut   io.Writer
	logger   *zap.Logger
}

const askLongDesc string = `Ask the backend a single question.

The answer is printed as it streams in, followed by the sources the backend
retrieved. With --markdown the answer is collected behind a spinner and
rendered as markdown once complete. Ctrl+C stops the stream and keeps what
has arrived so far.

With --save the exchange is stored like a chat turn and shows up in
"ragchat history".

Examples:
  ragchat ask "What does the reranker do?"
  ragchat ask -k 3 --markdown "Summarize the ingestion pipeline"
  ragchat ask --target http://rag.internal:8000 --save "How do I reindex?"`

const askShortDesc string = "Ask a single question"

func NewAskCmd() *cobra.Command {
	cmder := &askCommander{}

	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: askShortDesc,
		Long:  askLongDesc,
		Args:  cobra.MinimumNArgs(1),
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			v, err := setup.Viper(cmd, config.ClientFlags, config.PersistenceFlags)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}

			configDir, _ := cmd.Flags().GetString("config-dir")
			cmder.settings, err = setup.Load(v, configDir)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			var err error
			cmder.debug, err = cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %w", err)
			}
			cmder.out = cmd.OutOrStdout()
			cmder.errOut = cmd.ErrOrStderr()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			return cmder.run(ctx, strings.Join(args, " "))
		},
	}

	config.AddStringFlag(cmd, config.ClientFlags, config.FlagTarget, &cmder.target)
	config.AddUintFlag(cmd, config.ClientFlags, config.FlagTopK, &cmder.topK)
	config.AddStringFlag(cmd, config.ClientFlags, config.FlagIdleTimeout, &cmder.idleTimeout)
	config.AddStringFlag(cmd, config.PersistenceFlags, config.FlagStorageDriver, &cmder.storageDriver)
	config.AddStringFlag(cmd, config.PersistenceFlags, config.FlagSQLite, &cmder.sqlitePath)
	config.AddStringFlag(cmd, config.PersistenceFlags, config.FlagPostgres, &cmder.postgresDSN)
	config.AddStringFlag(cmd, config.PersistenceFlags, config.FlagPublisher, &cmder.publisher)
	config.AddStringSliceFlag(cmd, config.PersistenceFlags, config.FlagBrokers, &cmder.brokers)
	config.AddStringFlag(cmd, config.PersistenceFlags, config.FlagTopic, &cmder.topic)

	cmd.Flags().BoolVarP(&cmder.markdown, "markdown", "m", false, "Render the answer as markdown once complete")
	cmd.Flags().BoolVar(&cmder.save, "save", false, "Store the exchange in conversation history")

	return cmd
}

func (c *askCommander) run(ctx context.Context, question string) error {
	c.logger = logger.NewLoggerWithWriters(c.debug, c.errOut)
	defer func() { _ = c.logger.Sync() }()

	var opts []client.ConversationOption
	if c.save {
		persistence, err := setup.OpenPersistence(ctx, c.settings, c.logger)
		if err != nil {
			return err
		}
		defer func() {
			if err := persistence.Close(); err != nil {
				c.logger.Warn("closing storage", zap.Error(err))
			}
		}()
		opts = append(opts, client.WithFinalizeHook(persistence.Pool.EnqueueExchange))
	}

	conv := setup.NewClient(c.settings, c.logger).NewConversation(opts...)

	var (
		h       *client.Handle
		outcome client.Outcome
		final   transcript.Turn
	)
	obs := client.ObserverFuncs{
		Terminal: func(turn transcript.Turn, _ client.Outcome) { final = turn },
	}

	if c.markdown {
		err := cliui.Step(c.errOut, "Waiting for the answer", func() error {
			var err error
			h, err = conv.StartStream(ctx, question, c.settings.TopK, obs)
			if err != nil {
				return err
			}
			outcome = h.Wait()
			return outcome.Err
		})
		if h == nil {
			return err
		}

		rendered, rerr := cliui.RenderMarkdown(final.Content, cliui.Width(c.out))
		if rerr != nil {
			c.logger.Debug("markdown rendering failed", zap.Error(rerr))
		}
		fmt.Fprint(c.out, rendered)
	} else {
		printed := 0
		obs.Update = func(turn transcript.Turn) {
			if len(turn.Content) > printed {
				fmt.Fprint(c.out, turn.Content[printed:])
				printed = len(turn.Content)
			}
		}

		var err error
		h, err = conv.StartStream(ctx, question, c.settings.TopK, obs)
		if err != nil {
			return err
		}
		outcome = h.Wait()
		fmt.Fprint(c.out, "\n\n")
	}

	cliui.WriteSources(c.out, final.Sources)
	fmt.Fprintf(c.out, "\n  %s\n", cliui.TurnStatus(final))

	if outcome.Kind == client.Failed {
		return fmt.Errorf("answer stream failed: %w", outcome.Err)
	}
	return nil
}
