package cliui

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/papercomputeco/ragchat/pkg/transcript"
)

// FormatSource renders a source reference on one line, e.g.
// "handbook.pdf p.3 #7 (0.82)". Absent fields are left out.
func FormatSource(s transcript.Source) string {
	parts := []string{s.Source}
	if s.Page != nil {
		parts = append(parts, "p."+strconv.Itoa(*s.Page))
	}
	if s.ChunkIndex != nil {
		parts = append(parts, "#"+strconv.Itoa(*s.ChunkIndex))
	}
	if s.Score != nil {
		parts = append(parts, fmt.Sprintf("(%.2f)", *s.Score))
	}
	return strings.Join(parts, " ")
}

// WriteSources prints a numbered source list. Nothing is printed for an
// empty list.
func WriteSources(w io.Writer, sources []transcript.Source) {
	if len(sources) == 0 {
		return
	}

	fmt.Fprintf(w, "  %s\n", KeyStyle.Render("Sources:"))
	for i, s := range sources {
		fmt.Fprintf(w, "    %s %s\n",
			DimStyle.Render(strconv.Itoa(i+1)+"."),
			SourceStyle.Render(FormatSource(s)),
		)
	}
}

// TurnStatus summarizes how an assistant turn ended, for a footer line.
func TurnStatus(t transcript.Turn) string {
	switch t.State {
	case transcript.StateCompleted:
		return SuccessMark + " " + DimStyle.Render("completed")
	case transcript.StateCancelled:
		return DimStyle.Render("● cancelled")
	case transcript.StateFailed:
		return FailMark + " " + ErrorStyle.Render("failed: "+t.Err)
	default:
		return DimStyle.Render(string(t.State))
	}
}

var (
	UserPrompt      = lipgloss.NewStyle().Foreground(lipgloss.Color("82")).Bold(true).Render("you> ")
	AssistantPrompt = lipgloss.NewStyle().Foreground(lipgloss.Color("245")).Render("assistant> ")
)

// WriteTurns prints a conversation: each user question, then each answer
// with its sources and, unless it completed normally, how it ended.
func WriteTurns(w io.Writer, turns []transcript.Turn) {
	for _, t := range turns {
		switch t.Role {
		case transcript.RoleUser:
			fmt.Fprintf(w, "%s%s\n", UserPrompt, t.Content)
		case transcript.RoleAssistant:
			fmt.Fprintf(w, "%s%s\n", AssistantPrompt, t.Content)
			if len(t.Sources) > 0 {
				fmt.Fprintln(w)
				WriteSources(w, t.Sources)
			}
			if t.State != transcript.StateCompleted {
				fmt.Fprintf(w, "  %s\n", TurnStatus(t))
			}
			fmt.Fprintln(w)
		}
	}
}
