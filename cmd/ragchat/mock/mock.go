// Package mockcmder provides the mock command, a development backend that
// streams canned answers over the same wire format as the real one.
package mockcmder

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/papercomputeco/ragchat/api"
	"github.com/papercomputeco/ragchat/cmd/ragchat/setup"
	"github.com/papercomputeco/ragchat/pkg/config"
	"github.com/papercomputeco/ragchat/pkg/logger"
)

type mockCommander struct {
	listen     string
	tokenDelay string
	corpusPath string
	debug      bool

	settings *setup.Settings
	logger   *zap.Logger
}

const mockLongDesc string = `Run a development backend.

The mock backend answers POST /query-stream with one token event per word
followed by a meta event listing the top_k best matching passages, and
POST /query with the whole answer at once. Passages come from a small
built-in corpus, or from a TOML file given with --corpus:

  [[chunks]]
  source = "handbook.pdf"
  page = 1
  chunk_index = 0
  text = "..."

Examples:
  ragchat mock
  ragchat mock --listen :9000 --token-delay 120ms
  ragchat mock --corpus ./corpus.toml`

const mockShortDesc string = "Run a development backend"

func NewMockCmd() *cobra.Command {
	cmder := &mockCommander{}

	cmd := &cobra.Command{
		Use:   "mock",
		Short: mockShortDesc,
		Long:  mockLongDesc,
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			v, err := setup.Viper(cmd, config.MockFlags)
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
		RunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			cmder.debug, err = cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %w", err)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return cmder.run(ctx)
		},
	}

	config.AddStringFlag(cmd, config.MockFlags, config.FlagMockListen, &cmder.listen)
	config.AddStringFlag(cmd, config.MockFlags, config.FlagTokenDelay, &cmder.tokenDelay)
	cmd.Flags().StringVar(&cmder.corpusPath, "corpus", "", "TOML file of passages to answer from")

	return cmd
}

func (c *mockCommander) run(ctx context.Context) error {
	c.logger = logger.NewLogger(c.debug)
	defer func() { _ = c.logger.Sync() }()

	corpus, err := LoadCorpus(c.corpusPath)
	if err != nil {
		return err
	}

	server := api.NewServer(api.Config{
		ListenAddr: c.settings.MockListen,
		TokenDelay: c.settings.TokenDelay,
		Corpus:     corpus,
	}, c.logger)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Run()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		c.logger.Info("shutting down mock backend")
		return server.Shutdown()
	}
}

// corpusFile is the TOML layout of a --corpus file.
type corpusFile struct {
	Chunks []api.Chunk `toml:"chunks"`
}

// LoadCorpus reads passages from a TOML file. An empty path returns nil, so
// the server falls back to its built-in corpus.
func LoadCorpus(path string) ([]api.Chunk, error) {
	if path == "" {
		return nil, nil
	}

	var f corpusFile
	if _, err := toml.DecodeFile(path, &f); err != nil {
		return nil, fmt.Errorf("reading corpus: %w", err)
	}
	if len(f.Chunks) == 0 {
		return nil, fmt.Errorf("corpus %s has no [[chunks]]", path)
	}

	for i, chunk := range f.Chunks {
		if chunk.Source == "" || chunk.Text == "" {
			return nil, fmt.Errorf("corpus chunk %d needs both source and text", i)
		}
	}

	return f.Chunks, nil
}
