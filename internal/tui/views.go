package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/chadmichel/chadchat/internal/models"
	"github.com/chadmichel/chadchat/internal/store"
)

func (m *Model) View() string {
	var body string
	switch m.screen {
	case screenLogin:
		body = m.viewLogin()
	case screenList:
		body = m.viewList()
	case screenDetail:
		body = m.viewDetail()
	case screenInvite:
		body = m.viewInvite()
	}
	return body + "\n" + m.viewFooter()
}

func (m *Model) viewLogin() string {
	var b strings.Builder
	b.WriteString(m.theme.Title.Render("chadchat") + "\n\n")
	b.WriteString("Sign in with your email address.\n\n")
	b.WriteString(m.theme.InputBox.Render(m.emailInput.View()) + "\n")
	return b.String()
}

func (m *Model) viewList() string {
	var b strings.Builder
	header := m.theme.Title.Render("Conversations")
	header += "  " + m.theme.Muted.Render(m.connLabel())
	b.WriteString(header + "\n\n")

	if len(m.conversations) == 0 {
		b.WriteString(m.theme.Muted.Render("  No conversations yet. Press n to start one.") + "\n")
		return b.String()
	}

	viewerID := ""
	if session := m.store.Session(); session != nil {
		viewerID = session.UserID
	}
	for i, conv := range m.conversations {
		line := conversationLine(conv, viewerID, m.width)
		if i == m.cursor {
			b.WriteString(m.theme.RowActive.Render(line) + "\n")
		} else {
			b.WriteString(m.theme.Row.Render(line) + "\n")
		}
	}
	return b.String()
}

func (m *Model) viewDetail() string {
	title := m.detail.TheirDisplayName
	if title == "" {
		title = m.detail.Topic
	}
	header := m.theme.Title.Render(title) + "  " + m.theme.Muted.Render(m.connLabel())

	var b strings.Builder
	b.WriteString(header + "\n")
	b.WriteString(m.history.View() + "\n")
	b.WriteString(m.theme.InputBox.Render(m.compose.View()) + "\n")
	return b.String()
}

func (m *Model) viewInvite() string {
	var b strings.Builder
	b.WriteString(m.theme.Title.Render("New conversation") + "\n\n")
	b.WriteString("Who do you want to chat with?\n\n")
	b.WriteString(m.theme.InputBox.Render(m.inviteInput.View()) + "\n")
	return b.String()
}

func (m *Model) viewFooter() string {
	if m.errText != "" {
		return m.theme.Error.Render(m.errText)
	}
	if m.busy {
		return m.spin.View() + m.theme.Muted.Render(m.status)
	}
	var help string
	switch m.screen {
	case screenLogin:
		help = "enter sign in · ctrl+c quit"
	case screenList:
		help = "enter open · n new · r refresh · ctrl+l sign out · q quit"
	case screenDetail:
		help = "enter send · pgup/pgdn scroll · esc back · ctrl+c quit"
	case screenInvite:
		help = "enter create · esc cancel"
	}
	return m.theme.Footer.Render(help)
}

func (m *Model) connLabel() string {
	state := m.store.ConnectionState()
	if state == store.StateConnected {
		return "● live"
	}
	return "○ " + state.String()
}

// conversationLine formats one list row: the other participant, the last
// message preview and its timestamp.
func conversationLine(conv models.Conversation, viewerID string, width int) string {
	name := conv.TheirDisplayName(viewerID)
	if name == "" {
		name = conv.Topic
	}

	when := ""
	if !conv.LastMessageTime.IsZero() {
		when = conv.LastMessageTime.Local().Format("Jan 2 15:04")
	}
	preview := conv.LastMessage
	if preview == "" {
		preview = "no messages yet"
	}

	line := fmt.Sprintf("%-28s %s", name, preview)
	if when != "" {
		line += "  " + when
	}
	return truncate(line, max(20, width-4))
}

// renderMessages renders a detail's history oldest first for the viewport.
// The store keeps messages newest first, so iteration runs backwards.
func renderMessages(detail models.ConversationDetail, width int, theme Theme) string {
	if len(detail.Messages) == 0 {
		return theme.Muted.Render("No messages yet. Say hello.")
	}

	var b strings.Builder
	for i := len(detail.Messages) - 1; i >= 0; i-- {
		msg := detail.Messages[i]
		ts := msg.CreatedOn.Local().Format("15:04")
		name := msg.SenderDisplayName
		style := theme.Theirs
		if msg.IsMine {
			name = "me"
			style = theme.Mine
		}
		prefix := fmt.Sprintf("%s %s: ", ts, name)
		wrapped := lipgloss.NewStyle().Width(max(20, width-2)).Render(prefix + msg.Text)
		b.WriteString(style.Render(wrapped))
		if i > 0 {
			b.WriteString("\n")
		}
	}
	return b.String()
}

func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit-1]) + "…"
}
