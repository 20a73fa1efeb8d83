package cliui

import (
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/glamour/styles"
)

// RenderMarkdownDark renders with the dark style whether or not the test
// output is a terminal.
func RenderMarkdownDark(content string, width int) (string, error) {
	return renderMarkdown(content, width, glamour.WithStandardStyle(styles.DarkStyle))
}
