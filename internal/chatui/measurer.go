package chatui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/groverooms/grove/internal/euphid"
	"github.com/groverooms/grove/internal/wire"
)

// seenMessage records exactly the inputs a message was measured with,
// so the draw pass can reproduce the identical wrapped output instead
// of risking a different line count at a different indent.
type seenMessage struct {
	msg         wire.Message
	indent      int
	foldedCount int
}

// lipglossMeasurer implements layout.Measurer by actually rendering each
// widget through the same lipgloss styles the View uses, so reported
// heights always match what gets drawn. Width is fixed for the
// lifetime of one frame; a new measurer is built whenever the terminal
// resizes.
//
// Layout only ever hands a message to the Measurer, never back to the
// caller, so MessageHeight doubles as the one place the frame's message
// bodies are collected for the subsequent draw pass.
type lipglossMeasurer struct {
	width int
	seen  map[euphid.ID]seenMessage
}

func newMeasurer(width int) lipglossMeasurer {
	if width < 1 {
		width = 1
	}
	return lipglossMeasurer{width: width, seen: make(map[euphid.ID]seenMessage)}
}

func (m lipglossMeasurer) MessageHeight(msg wire.Message, indent, foldedCount int, highlighted bool) int {
	m.seen[msg.ID] = seenMessage{msg: msg, indent: indent, foldedCount: foldedCount}
	return lipgloss.Height(m.renderMessage(msg, indent, foldedCount, highlighted))
}

func (m lipglossMeasurer) PlaceholderHeight(indent, foldedCount int, highlighted bool) int {
	return lipgloss.Height(m.renderPlaceholder(indent, foldedCount, highlighted))
}

func (m lipglossMeasurer) EditorHeight(indent int) (height, cursorLine int) {
	// The editor block is always measured as one line with the text
	// cursor on line 0; the compose textinput itself is drawn in the
	// footer, not inside the block layout.
	return 1, 0
}

func (m lipglossMeasurer) PseudoHeight(indent int) int {
	return 1
}

func (m lipglossMeasurer) renderMessage(msg wire.Message, indent, foldedCount int, highlighted bool) string {
	style := messageStyle
	if highlighted {
		style = highlightedMessageStyle
	}
	prefix := strings.Repeat("  ", indent)
	content := msg.Content
	if foldedCount > 0 {
		content = fmt.Sprintf("%s [%d more]", content, foldedCount)
	}
	line := fmt.Sprintf("%s%s: %s", prefix, msg.Sender.Name, content)
	width := m.width - len(prefix)
	if width < 1 {
		width = 1
	}
	return style.Width(width).Render(line)
}

func (m lipglossMeasurer) renderPlaceholder(indent, foldedCount int, highlighted bool) string {
	prefix := strings.Repeat("  ", indent)
	return placeholderStyle.Render(prefix + "[unavailable]")
}
