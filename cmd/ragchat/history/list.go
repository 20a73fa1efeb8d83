package historycmder

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/papercomputeco/ragchat/pkg/cliui"
	"github.com/papercomputeco/ragchat/pkg/storage"
)

const listLongDesc string = `List stored conversations, most recently active first.

Each line shows the abbreviated conversation ID, the number of exchanges,
when the conversation was last active, and its first question.

Examples:
  ragchat history list
  ragchat history list --json`

const listShortDesc string = "List stored conversations"

// shortIDLen is how much of a conversation ID list prints.
const shortIDLen = 8

type listCommander struct {
	storageFlags
	json bool
}

func newListCmd() *cobra.Command {
	cmder := &listCommander{}

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   listShortDesc,
		Long:    listLongDesc,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, driver, log, err := openStorage(cmd.Context(), cmd)
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()
			defer driver.Close()

			return cmder.run(cmd.Context(), cmd.OutOrStdout(), driver)
		},
	}

	cmder.register(cmd)
	cmd.Flags().BoolVar(&cmder.json, "json", false, "Print conversation summaries as JSON")

	return cmd
}

func (c *listCommander) run(ctx context.Context, w io.Writer, driver storage.Driver) error {
	summaries, err := driver.Conversations(ctx)
	if err != nil {
		return fmt.Errorf("listing conversations: %w", err)
	}

	if c.json {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if summaries == nil {
			summaries = []storage.ConversationSummary{}
		}
		return enc.Encode(summaries)
	}

	if len(summaries) == 0 {
		fmt.Fprintln(w, "No conversations stored yet.")
		return nil
	}

	width := cliui.Width(w)
	for _, s := range summaries {
		exchanges := fmt.Sprintf("%d exchange", s.Exchanges)
		if s.Exchanges != 1 {
			exchanges += "s"
		}
		prefix := fmt.Sprintf("%s  %-12s  %s  ",
			cliui.IDStyle.Render(shortID(s.ID)),
			exchanges,
			cliui.DimStyle.Render(s.UpdatedAt.Local().Format("2006-01-02 15:04")),
		)
		fmt.Fprintln(w, prefix+cliui.Fit(s.FirstQuery, width-lipgloss.Width(prefix)))
	}

	return nil
}

func shortID(id string) string {
	if len(id) <= shortIDLen {
		return id
	}
	return id[:shortIDLen]
}
