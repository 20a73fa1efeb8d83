package cliui

import (
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
	"github.com/muesli/termenv"
	"golang.org/x/term"
)

// defaultWidth is used when the output is not a terminal.
const defaultWidth = 80

// IsTerminal reports whether w is an interactive terminal.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// Width returns the terminal width of w, or 80 when it is not a terminal.
func Width(w io.Writer) int {
	f, ok := w.(*os.File)
	if !ok {
		return defaultWidth
	}
	width, _, err := term.GetSize(int(f.Fd()))
	if err != nil || width <= 0 {
		return defaultWidth
	}
	return width
}

// NewRenderer returns a lipgloss renderer for w. Non-terminal output gets
// the ASCII profile so piped output carries no escape codes.
func NewRenderer(w io.Writer) *lipgloss.Renderer {
	if !IsTerminal(w) {
		r := lipgloss.NewRenderer(w, termenv.WithProfile(termenv.Ascii))
		r.SetColorProfile(termenv.Ascii)
		return r
	}
	return lipgloss.NewRenderer(w, termenv.WithProfile(termenv.TrueColor))
}

// Fit truncates s to width display cells, ending in an ellipsis when cut.
// Escape sequences and wide runes are measured correctly.
func Fit(s string, width int) string {
	if width <= 0 {
		return ""
	}
	if ansi.StringWidth(s) <= width {
		return s
	}
	return ansi.Truncate(s, width, "…")
}
