// Package cliui holds the terminal output helpers shared by ragchat commands:
// styles, step indicators, markdown rendering, and transcript printing.
package cliui

import (
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
)

var (
	SuccessMark  = lipgloss.NewStyle().Foreground(lipgloss.Color("82")).Render("✓")
	FailMark     = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Render("✗")
	StepStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	spinnerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("82"))

	KeyStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("75")).Bold(true)
	ValueStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	DimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	IDStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	SourceStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("109")).Italic(true)
	ErrorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
)

// maxMarkdownWidth keeps rendered answers readable on wide terminals.
const maxMarkdownWidth = 100

// Step runs fn and reports it on one line: a spinner while it runs, then a
// ✓ or ✗ with the elapsed time. Output that is not a terminal only gets the
// final line.
func Step(w io.Writer, msg string, fn func() error) error {
	done := make(chan struct{})
	stopped := make(chan struct{})

	prefix := ""
	if IsTerminal(w) {
		prefix = "\r"
		go spin(w, msg, done, stopped)
	} else {
		close(stopped)
	}

	start := time.Now()
	err := fn()
	elapsed := time.Since(start)

	close(done)
	<-stopped

	fmt.Fprintf(w, "%s  %s %s %s\n",
		prefix,
		Mark(err),
		msg,
		StepStyle.Render(fmt.Sprintf("(%s)", FormatDuration(elapsed))),
	)

	return err
}

// spin animates the dot spinner in front of msg until done is closed.
func spin(w io.Writer, msg string, done <-chan struct{}, stopped chan<- struct{}) {
	defer close(stopped)

	frames := spinner.Dot.Frames
	ticker := time.NewTicker(spinner.Dot.FPS)
	defer ticker.Stop()

	for frame := 0; ; frame++ {
		fmt.Fprintf(w, "\r  %s %s", spinnerStyle.Render(frames[frame%len(frames)]), msg)

		select {
		case <-done:
			return
		case <-ticker.C:
		}
	}
}

// Mark returns a ✓ for nil errors or ✗ for non-nil errors.
func Mark(err error) string {
	if err != nil {
		return FailMark
	}
	return SuccessMark
}

// FormatDuration formats a duration for display (e.g. "12ms" or "3.2s").
func FormatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	return fmt.Sprintf("%.1fs", d.Seconds())
}

// RenderMarkdown renders an answer for the terminal, wrapped to width. On
// failure the content is returned unchanged with the error.
func RenderMarkdown(content string, width int) (string, error) {
	return renderMarkdown(content, width, glamour.WithAutoStyle())
}

func renderMarkdown(content string, width int, style glamour.TermRendererOption) (string, error) {
	r, err := glamour.NewTermRenderer(
		style,
		glamour.WithWordWrap(min(max(width-4, 20), maxMarkdownWidth)),
	)
	if err != nil {
		return content, err
	}

	rendered, err := r.Render(content)
	if err != nil {
		return content, err
	}

	return rendered, nil
}
