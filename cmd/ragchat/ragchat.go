// Package ragchatcmder
package ragchatcmder

import (
	"github.com/spf13/cobra"

	askcmder "github.com/papercomputeco/ragchat/cmd/ragchat/ask"
	chatcmder "github.com/papercomputeco/ragchat/cmd/ragchat/chat"
	configcmder "github.com/papercomputeco/ragchat/cmd/ragchat/config"
	historycmder "github.com/papercomputeco/ragchat/cmd/ragchat/history"
	mockcmder "github.com/papercomputeco/ragchat/cmd/ragchat/mock"
	replaycmder "github.com/papercomputeco/ragchat/cmd/ragchat/replay"
	versioncmder "github.com/papercomputeco/ragchat/cmd/version"
)

const ragchatLongDesc string = `ragchat is a terminal client for retrieval-augmented answer backends.

Answers are streamed token by token and shown as they arrive, together with
the document sources the backend retrieved for them.

  ragchat chat          Interactive chat
  ragchat ask "..."     Ask a single question
  ragchat history       Browse stored conversations
  ragchat replay FILE   Re-run a recorded answer stream
  ragchat mock          Run a development backend`

const ragchatShortDesc string = "ragchat - streaming RAG chat client"

func NewRagchatCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "ragchat",
		Short:        ragchatShortDesc,
		Long:         ragchatLongDesc,
		SilenceUsage: true,
	}

	// Global flags
	cmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug logging")
	cmd.PersistentFlags().String("config-dir", "", "Override path to .ragchat/ config directory")

	// Add subcommands
	cmd.AddCommand(chatcmder.NewChatCmd())
	cmd.AddCommand(askcmder.NewAskCmd())
	cmd.AddCommand(historycmder.NewHistoryCmd())
	cmd.AddCommand(replaycmder.NewReplayCmd())
	cmd.AddCommand(configcmder.NewConfigCmd())
	cmd.AddCommand(mockcmder.NewMockCmd())
	cmd.AddCommand(versioncmder.NewVersionCmd())

	return cmd
}
