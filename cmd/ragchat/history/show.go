package historycmder

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/ragchat/pkg/cliui"
	"github.com/papercomputeco/ragchat/pkg/dotdir"
	"github.com/papercomputeco/ragchat/pkg/storage"
	"github.com/papercomputeco/ragchat/pkg/transcript"
)

const showLongDesc string = `Print a stored conversation.

Without an argument, shows the conversation the last chat session wrote to.
The ID may be any unique prefix of a conversation ID from "history list".

Examples:
  ragchat history show
  ragchat history show 3f2a9c1e
  ragchat history show --json 3f2a9c1e`

const showShortDesc string = "Print a stored conversation"

var errNoSession = errors.New(`no conversation given and no chat session saved; see "ragchat history list"`)

type showCommander struct {
	storageFlags
	json bool
}

func newShowCmd() *cobra.Command {
	cmder := &showCommander{}

	cmd := &cobra.Command{
		Use:   "show [conversation-id]",
		Short: showShortDesc,
		Long:  showLongDesc,
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, driver, log, err := openStorage(cmd.Context(), cmd)
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()
			defer driver.Close()

			id := ""
			if len(args) == 1 {
				id = args[0]
			} else {
				session, err := dotdir.NewManager().LoadSession(settings.ConfigDir)
				if err != nil {
					return fmt.Errorf("loading chat session: %w", err)
				}
				if session == nil || session.ConversationID == "" {
					return errNoSession
				}
				id = session.ConversationID
			}

			return cmder.run(cmd.Context(), cmd.OutOrStdout(), driver, id)
		},
	}

	cmder.register(cmd)
	cmd.Flags().BoolVar(&cmder.json, "json", false, "Print the stored exchanges as JSON")

	return cmd
}

func (c *showCommander) run(ctx context.Context, w io.Writer, driver storage.Driver, id string) error {
	id, err := resolveConversation(ctx, driver, id)
	if err != nil {
		return err
	}

	exchanges, err := driver.Conversation(ctx, id)
	if err != nil {
		return fmt.Errorf("loading conversation: %w", err)
	}
	if len(exchanges) == 0 {
		return storage.NotFoundError{ID: id}
	}

	if c.json {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(exchanges)
	}

	fmt.Fprintf(w, "%s %s\n", cliui.KeyStyle.Render("Conversation"), cliui.IDStyle.Render(id))
	fmt.Fprintf(w, "%s\n\n", cliui.DimStyle.Render(
		"started "+exchanges[0].User.CreatedAt.Local().Format("2006-01-02 15:04"),
	))

	turns := make([]transcript.Turn, 0, 2*len(exchanges))
	for _, ex := range exchanges {
		turns = append(turns, ex.User, ex.Assistant)
	}
	cliui.WriteTurns(w, turns)

	return nil
}

// resolveConversation expands a unique ID prefix to a full conversation ID.
func resolveConversation(ctx context.Context, driver storage.Driver, prefix string) (string, error) {
	summaries, err := driver.Conversations(ctx)
	if err != nil {
		return "", fmt.Errorf("listing conversations: %w", err)
	}

	var matches []string
	for _, s := range summaries {
		if s.ID == prefix {
			return s.ID, nil
		}
		if strings.HasPrefix(s.ID, prefix) {
			matches = append(matches, s.ID)
		}
	}

	switch len(matches) {
	case 0:
		return "", storage.NotFoundError{ID: prefix}
	case 1:
		return matches[0], nil
	default:
		return "", fmt.Errorf("conversation ID %q is ambiguous: matches %s", prefix, strings.Join(matches, ", "))
	}
}
