// Package historycmder provides the history command for browsing stored
// conversations.
package historycmder

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/papercomputeco/ragchat/cmd/ragchat/setup"
	"github.com/papercomputeco/ragchat/pkg/config"
	"github.com/papercomputeco/ragchat/pkg/logger"
	"github.com/papercomputeco/ragchat/pkg/storage"
)

const historyLongDesc string = `Browse conversations stored by "ragchat chat" and "ragchat ask --save".

Conversations are read from the configured storage driver. Use "list" to see
every stored conversation and "show" to print one of them. Conversation IDs
may be abbreviated to any unique prefix.

Examples:
  ragchat history list
  ragchat history show
  ragchat history show 3f2a9c1e
  ragchat history show --json 3f2a9c1e`

const historyShortDesc string = "Browse stored conversations"

func NewHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: historyShortDesc,
		Long:  historyLongDesc,
	}

	cmd.AddCommand(newListCmd())
	cmd.AddCommand(newShowCmd())

	return cmd
}

// storageFlags holds the persistence flags shared by the subcommands.
type storageFlags struct {
	storageDriver string
	sqlitePath    string
	postgresDSN   string
}

func (f *storageFlags) register(cmd *cobra.Command) {
	config.AddStringFlag(cmd, config.PersistenceFlags, config.FlagStorageDriver, &f.storageDriver)
	config.AddStringFlag(cmd, config.PersistenceFlags, config.FlagSQLite, &f.sqlitePath)
	config.AddStringFlag(cmd, config.PersistenceFlags, config.FlagPostgres, &f.postgresDSN)
}

// openStorage resolves the settings for cmd and opens its storage driver.
// The returned logger writes to the command's error stream.
func openStorage(ctx context.Context, cmd *cobra.Command) (*setup.Settings, storage.Driver, *zap.Logger, error) {
	debug, err := cmd.Flags().GetBool("debug")
	if err != nil {
		return nil, nil, nil, fmt.Errorf("could not get debug flag: %w", err)
	}
	log := logger.NewLoggerWithWriters(debug, cmd.ErrOrStderr())

	v, err := setup.Viper(cmd, config.PersistenceFlags)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("loading config: %w", err)
	}

	configDir, _ := cmd.Flags().GetString("config-dir")
	settings, err := setup.Load(v, configDir)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("loading config: %w", err)
	}

	driver, err := setup.OpenStorage(ctx, settings, log)
	if err != nil {
		return nil, nil, nil, err
	}

	return settings, driver, log, nil
}
