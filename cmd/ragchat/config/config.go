// Package configcmder provides the config command for managing persistent
// ragchat configuration stored in the .ragchat/ directory.
package configcmder

import (
	"github.com/spf13/cobra"

	"github.com/papercomputeco/ragchat/pkg/config"
)

const configLongDesc string = `Manage persistent ragchat configuration.

Configuration is stored as config.toml in the .ragchat/ directory and provides
default values for command flags. CLI flags and RAGCHAT_* environment
variables always take precedence over config file values.

Keys use dotted notation matching the TOML section structure:
  backend.target, backend.stream_path, backend.top_k, backend.idle_timeout,
  storage.driver, storage.sqlite_path, storage.postgres_dsn,
  publisher.provider, publisher.brokers, publisher.topic,
  chat.busy_policy, chat.record_dir,
  mock.listen, mock.token_delay

Use subcommands to get, set, or list configuration values:
  ragchat config set <key> <value>    Set a configuration value
  ragchat config get <key>            Get a configuration value
  ragchat config list                 List all configuration values

Examples:
  ragchat config set backend.target http://rag.internal:8000
  ragchat config set backend.top_k 8
  ragchat config get chat.busy_policy
  ragchat config list`

const configShortDesc string = "Manage persistent ragchat configuration"

func NewConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: configShortDesc,
		Long:  configLongDesc,
	}

	cmd.AddCommand(newSetCmd())
	cmd.AddCommand(newGetCmd())
	cmd.AddCommand(newListCmd())

	return cmd
}

// keyArgs completes config keys for the first argument.
func keyArgs(_ *cobra.Command, args []string, _ string) ([]string, cobra.ShellCompDirective) {
	if len(args) == 0 {
		return config.ValidConfigKeys(), cobra.ShellCompDirectiveNoFileComp
	}
	return nil, cobra.ShellCompDirectiveNoFileComp
}
