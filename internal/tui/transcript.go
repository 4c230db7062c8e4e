package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/entrepeneur4lyf/bookchat/internal/session"
)

const emptyTranscript = "Ask anything about the textbook. Copy a passage and press ctrl+s to ask about it."

var roleTitle = cases.Title(language.English)

// roleLabel names the author of a message
func roleLabel(role session.Role) string {
	return roleTitle.String(string(role))
}

// renderTranscript lays out messages for a viewport width wide
func renderTranscript(th Theme, md *MarkdownRenderer, msgs []session.Message, width int) string {
	if len(msgs) == 0 {
		return th.Muted.Render(emptyTranscript)
	}

	blocks := make([]string, 0, len(msgs))
	for _, msg := range msgs {
		blocks = append(blocks, renderMessage(th, md, msg, width))
	}
	return strings.Join(blocks, "\n\n")
}

func renderMessage(th Theme, md *MarkdownRenderer, msg session.Message, width int) string {
	label := th.User
	if msg.Role == session.RoleAssistant {
		label = th.Assistant
	}
	header := label.Render(roleLabel(msg.Role)) + " " + th.Muted.Render(msg.Time().Local().Format("15:04"))

	var body string
	switch {
	case msg.Role == session.RoleUser:
		body = lipgloss.NewStyle().Width(width).Render(msg.Content)
	case msg.IsError():
		body = th.Error.Width(width).Render(msg.Content)
	default:
		body = md.Render(msg.Content)
	}

	parts := []string{header, body}
	if len(msg.Citations) > 0 {
		parts = append(parts, renderCitations(th, msg.Citations, width))
	}
	return strings.Join(parts, "\n")
}

// renderCitations lists sources one per line, truncated to width
func renderCitations(th Theme, citations []session.Citation, width int) string {
	lines := make([]string, 0, len(citations)+1)
	lines = append(lines, th.Muted.Render("Sources:"))
	for i, c := range citations {
		line := fmt.Sprintf("  %d. %s (%.0f%%) %s", i+1, c.Section, c.Score*100, c.URL)
		lines = append(lines, th.Citation.Render(ansi.Truncate(line, width, "…")))
	}
	return strings.Join(lines, "\n")
}

// statusLine summarises the chat state in one line
func statusLine(state chatStatus, maxMessages, width int) string {
	var parts []string
	if state.sessionID != "" {
		parts = append(parts, shortID(state.sessionID))
	}
	parts = append(parts, fmt.Sprintf("%d/%d messages", state.messageCount, maxMessages))
	if state.nearLimit {
		parts = append(parts, "near limit, oldest messages drop off next")
	}
	if state.archived {
		parts = append(parts, "older messages archived")
	}
	if state.timeoutWarning {
		parts = append(parts, "session expires soon")
	}
	if state.offline {
		parts = append(parts, "offline")
	}
	if state.contextLen > 0 {
		parts = append(parts, fmt.Sprintf("context: %d chars", state.contextLen))
	}
	return ansi.Truncate(strings.Join(parts, " · "), width, "…")
}

type chatStatus struct {
	sessionID      string
	messageCount   int
	nearLimit      bool
	archived       bool
	timeoutWarning bool
	offline        bool
	contextLen     int
}

func shortID(id string) string {
	const keep = 12
	if len(id) <= keep {
		return id
	}
	return "…" + id[len(id)-keep:]
}

func truncate(s string, width int) string {
	if width < 1 {
		width = 1
	}
	return ansi.Truncate(s, width, "…")
}
