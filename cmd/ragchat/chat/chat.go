// Package chatcmder provides the chat command, an interactive conversation
// with the backend in the terminal.
package chatcmder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/papercomputeco/ragchat/cmd/ragchat/setup"
	"github.com/papercomputeco/ragchat/pkg/cliui"
	"github.com/papercomputeco/ragchat/pkg/config"
	"github.com/papercomputeco/ragchat/pkg/dotdir"
	"github.com/papercomputeco/ragchat/pkg/logger"
	"github.com/papercomputeco/ragchat/pkg/storage"
	"github.com/papercomputeco/ragchat/pkg/transcript"
)

type chatCommander struct {
	target      string
	topK        uint
	idleTimeout string

	storageDriver string
	sqlitePath    string
	postgresDSN   string
	publisher     string
	brokers       []string
	topic         string

	busyPolicy string
	recordDir  string

	resume bool
	tui    bool
	debug  bool

	viper    *viper.Viper
	settings *setup.Settings
	in       io.Reader
	out      io.Writer
	errOut   io.Writer
	logger   *zap.Logger
}

const chatLongDesc string = `Chat with the backend about the indexed documents.

Each question is sent to the backend's streaming endpoint and the answer is
printed as it arrives, followed by the sources it was drawn from. Every
finished exchange is stored, so conversations can be browsed with
"ragchat history" and picked up again with --resume.

In the line-oriented chat, Ctrl+C stops the answer that is streaming and
/help lists the available commands. With --tui the chat runs full screen;
Esc stops the answer and Ctrl+N starts a new conversation.

--busy-policy decides what a question submitted while an answer is still
streaming does: "reject" refuses it, "cancel" stops the running answer first.
--record-dir writes the raw answer stream of every question to a file that
"ragchat replay" can play back.

Changing backend.top_k in config.toml takes effect on the next question
without restarting the chat.

Examples:
  ragchat chat
  ragchat chat --resume
  ragchat chat --tui --busy-policy cancel
  ragchat chat --target http://rag.internal:8000 -k 8
  ragchat chat --record-dir ./recordings`

const chatShortDesc string = "Chat with the backend interactively"

func NewChatCmd() *cobra.Command {
	cmder := &chatCommander{}

	cmd := &cobra.Command{
		Use:   "chat",
		Short: chatShortDesc,
		Long:  chatLongDesc,
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			v, err := setup.Viper(cmd, config.ClientFlags, config.PersistenceFlags, config.ChatFlags)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}

			configDir, _ := cmd.Flags().GetString("config-dir")
			cmder.settings, err = setup.Load(v, configDir)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			cmder.viper = v
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			cmder.debug, err = cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %w", err)
			}
			cmder.in = cmd.InOrStdin()
			cmder.out = cmd.OutOrStdout()
			cmder.errOut = cmd.ErrOrStderr()

			return cmder.run(cmd.Context())
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
	config.AddStringFlag(cmd, config.ChatFlags, config.FlagBusyPolicy, &cmder.busyPolicy)
	config.AddStringFlag(cmd, config.ChatFlags, config.FlagRecordDir, &cmder.recordDir)

	cmd.Flags().BoolVarP(&cmder.resume, "resume", "r", false, "Continue the conversation of the last chat session")
	cmd.Flags().BoolVar(&cmder.tui, "tui", false, "Run the chat full screen")

	return cmd
}

func (c *chatCommander) run(ctx context.Context) error {
	closeLog, err := c.initLogger()
	if err != nil {
		return err
	}
	defer closeLog()

	persistence, err := setup.OpenPersistence(ctx, c.settings, c.logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := persistence.Close(); err != nil {
			c.logger.Warn("closing storage", zap.Error(err))
		}
	}()

	var resumed *transcript.Transcript
	if c.resume {
		resumed, err = c.loadResumed(ctx, persistence.Driver)
		if err != nil {
			return err
		}
	}

	sess := newSession(sessionConfig{
		client:    setup.NewClient(c.settings, c.logger),
		policy:    c.settings.BusyPolicy,
		onFinal:   persistence.Pool.EnqueueExchange,
		topK:      c.settings.TopK,
		recordDir: c.settings.RecordDir,
		configDir: c.settings.ConfigDir,
		resumed:   resumed,
		logger:    c.logger,
	})

	reload := make(chan int, 1)
	watching := config.WatchViper(c.viper, func(fsnotify.Event) {
		k := c.viper.GetInt("backend.top_k")
		sess.setTopK(k)
		select {
		case reload <- k:
		default:
		}
	})
	c.logger.Debug("starting chat",
		zap.String("target", c.settings.Target),
		zap.Int("top_k", c.settings.TopK),
		zap.Bool("watching_config", watching),
		zap.Bool("tui", c.tui),
	)

	if c.tui {
		return runTUI(ctx, sess, reload)
	}

	chat := &lineChat{
		session:        sess,
		in:             c.in,
		out:            c.out,
		trapInterrupts: cliui.IsTerminal(c.out),
	}
	return chat.run(ctx)
}

// initLogger logs to stderr for the line chat. The full-screen chat owns the
// terminal, so its debug logs go to chat.log in the config dir instead.
func (c *chatCommander) initLogger() (func(), error) {
	if !c.tui {
		c.logger = logger.NewLoggerWithWriters(c.debug, c.errOut)
		return func() { _ = c.logger.Sync() }, nil
	}

	if !c.debug {
		c.logger = logger.Nop()
		return func() {}, nil
	}

	path, err := dotdir.NewManager().Path(c.settings.ConfigDir, "chat.log")
	if err != nil {
		return nil, fmt.Errorf("resolving log file: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("opening log file: %w", err)
	}
	c.logger = logger.NewLoggerWithWriters(true, f)
	return func() {
		_ = c.logger.Sync()
		_ = f.Close()
	}, nil
}

// loadResumed restores the conversation of the last chat session. A missing
// session or conversation starts a new one.
func (c *chatCommander) loadResumed(ctx context.Context, driver storage.Driver) (*transcript.Transcript, error) {
	state, err := dotdir.NewManager().LoadSession(c.settings.ConfigDir)
	if err != nil {
		return nil, fmt.Errorf("loading chat session: %w", err)
	}
	if state == nil || state.ConversationID == "" {
		fmt.Fprintln(c.errOut, cliui.DimStyle.Render("No previous chat session, starting a new conversation."))
		return nil, nil
	}

	t, err := storage.LoadTranscript(ctx, driver, state.ConversationID)
	var notFound storage.NotFoundError
	if errors.As(err, &notFound) {
		fmt.Fprintln(c.errOut, cliui.DimStyle.Render("Previous conversation was not stored, starting a new one."))
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading conversation %s: %w", state.ConversationID, err)
	}
	return t, nil
}
