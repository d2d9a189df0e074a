// Package tui is the terminal front end. It owns no chat state of its own:
// every screen renders a snapshot read from the store, and the store's
// change signal drives re-reads.
package tui

import (
	"context"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/chadmichel/chadchat/internal/models"
	"github.com/chadmichel/chadchat/internal/store"
)

const opTimeout = 30 * time.Second

type screen int

const (
	screenLogin screen = iota
	screenList
	screenDetail
	screenInvite
)

type keyMap struct {
	Up     key.Binding
	Down   key.Binding
	Enter  key.Binding
	Back   key.Binding
	New    key.Binding
	Reload key.Binding
	Logout key.Binding
	Quit   key.Binding
}

func newKeyMap() keyMap {
	return keyMap{
		Up:     key.NewBinding(key.WithKeys("up", "k")),
		Down:   key.NewBinding(key.WithKeys("down", "j")),
		Enter:  key.NewBinding(key.WithKeys("enter")),
		Back:   key.NewBinding(key.WithKeys("esc")),
		New:    key.NewBinding(key.WithKeys("n")),
		Reload: key.NewBinding(key.WithKeys("r")),
		Logout: key.NewBinding(key.WithKeys("ctrl+l")),
		Quit:   key.NewBinding(key.WithKeys("ctrl+c", "q")),
	}
}

type (
	changedMsg    struct{}
	loginDoneMsg  struct{ err error }
	reloadDoneMsg struct{ err error }
	detailDoneMsg struct {
		conversationID string
		err            error
	}
	sendDoneMsg   struct{ err error }
	inviteDoneMsg struct{ err error }
)

// Model is the bubbletea root model for the chat client.
type Model struct {
	store *store.Store
	theme Theme
	keys  keyMap

	screen screen
	width  int
	height int
	ready  bool

	emailInput  textinput.Model
	inviteInput textinput.Model
	compose     textarea.Model
	history     viewport.Model
	spin        spinner.Model

	conversations []models.Conversation
	cursor        int
	activeID      string
	detail        models.ConversationDetail
	haveDetail    bool

	busy    bool
	status  string
	errText string
}

// New builds the root model. restored tells whether a cached session was
// reconnected before the program started; it decides the opening screen.
func New(s *store.Store, restored bool) *Model {
	email := textinput.New()
	email.Placeholder = "you@example.com"
	email.CharLimit = 254
	email.Focus()
	if last := s.LastLoginEmail(); last != "" {
		email.SetValue(last)
	}

	invite := textinput.New()
	invite.Placeholder = "friend@example.com"
	invite.CharLimit = 254

	compose := textarea.New()
	compose.Placeholder = "Type a message, Enter sends"
	compose.CharLimit = 2000
	compose.SetHeight(1)
	compose.ShowLineNumbers = false
	compose.Prompt = " "

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	m := &Model{
		store:       s,
		theme:       NewTheme(),
		keys:        newKeyMap(),
		screen:      screenLogin,
		width:       100,
		height:      30,
		emailInput:  email,
		inviteInput: invite,
		compose:     compose,
		spin:        sp,
	}
	if restored {
		m.screen = screenList
		m.conversations = s.Conversations()
	}
	return m
}

func (m *Model) Init() tea.Cmd {
	cmds := []tea.Cmd{textinput.Blink, m.waitChange()}
	if m.screen == screenList {
		cmds = append(cmds, m.reloadCmd())
	}
	return tea.Batch(cmds...)
}

// waitChange blocks on the store's change signal and converts it into a
// bubbletea message. Re-armed after every delivery.
func (m *Model) waitChange() tea.Cmd {
	ch := m.store.Changed()
	return func() tea.Msg {
		<-ch
		return changedMsg{}
	}
}

func (m *Model) loginCmd(email string) tea.Cmd {
	s := m.store
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
		defer cancel()
		if err := s.Login(ctx, email); err != nil {
			return loginDoneMsg{err: err}
		}
		return loginDoneMsg{}
	}
}

func (m *Model) reloadCmd() tea.Cmd {
	s := m.store
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
		defer cancel()
		return reloadDoneMsg{err: s.Refresh(ctx)}
	}
}

func (m *Model) openCmd(conversationID string) tea.Cmd {
	s := m.store
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
		defer cancel()
		return detailDoneMsg{conversationID: conversationID, err: s.EnsureLoaded(ctx, conversationID)}
	}
}

func (m *Model) sendCmd(conversationID, text string) tea.Cmd {
	s := m.store
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
		defer cancel()
		return sendDoneMsg{err: s.SendMessage(ctx, conversationID, text)}
	}
}

func (m *Model) inviteCmd(email string) tea.Cmd {
	s := m.store
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
		defer cancel()
		return inviteDoneMsg{err: s.CreateConversation(ctx, email)}
	}
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resize()
		return m, nil

	case changedMsg:
		m.refreshSnapshots()
		return m, m.waitChange()

	case spinner.TickMsg:
		if !m.busy {
			return m, nil
		}
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd

	case loginDoneMsg:
		m.busy = false
		if msg.err != nil {
			m.errText = "login failed: " + msg.err.Error()
			return m, nil
		}
		m.screen = screenList
		m.status = ""
		return m, m.reloadCmd()

	case reloadDoneMsg:
		m.busy = false
		if msg.err != nil {
			m.errText = msg.err.Error()
			return m, nil
		}
		m.refreshSnapshots()
		return m, nil

	case detailDoneMsg:
		m.busy = false
		if msg.err != nil {
			m.errText = msg.err.Error()
			return m, nil
		}
		m.activeID = msg.conversationID
		m.screen = screenDetail
		m.refreshSnapshots()
		m.compose.Reset()
		m.compose.Focus()
		m.history.GotoBottom()
		return m, nil

	case sendDoneMsg:
		m.busy = false
		if msg.err != nil {
			m.errText = msg.err.Error()
			return m, nil
		}
		// The provider echo appends the message; nothing to insert here.
		m.compose.Reset()
		return m, nil

	case inviteDoneMsg:
		m.busy = false
		if msg.err != nil {
			m.errText = msg.err.Error()
			return m, nil
		}
		m.screen = screenList
		m.inviteInput.Reset()
		m.refreshSnapshots()
		return m, nil

	case tea.KeyMsg:
		return m.updateKeys(msg)
	}

	// Everything else (cursor blink and friends) goes to the focused widget.
	var cmd tea.Cmd
	switch m.screen {
	case screenLogin:
		m.emailInput, cmd = m.emailInput.Update(msg)
	case screenInvite:
		m.inviteInput, cmd = m.inviteInput.Update(msg)
	case screenDetail:
		m.compose, cmd = m.compose.Update(msg)
	}
	return m, cmd
}

func (m *Model) updateKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	// Quit works everywhere except while typing free text, where plain q
	// must stay typeable.
	if key.Matches(msg, m.keys.Quit) {
		typing := m.screen == screenLogin || m.screen == screenInvite || m.screen == screenDetail
		if !typing || msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
	}
	m.errText = ""

	switch m.screen {
	case screenLogin:
		return m.updateLogin(msg)
	case screenList:
		return m.updateList(msg)
	case screenDetail:
		return m.updateDetail(msg)
	case screenInvite:
		return m.updateInvite(msg)
	}
	return m, nil
}

func (m *Model) updateLogin(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if key.Matches(msg, m.keys.Enter) {
		email := strings.TrimSpace(m.emailInput.Value())
		if email == "" {
			return m, nil
		}
		m.busy = true
		m.status = "signing in"
		return m, tea.Batch(m.spin.Tick, m.loginCmd(email))
	}
	var cmd tea.Cmd
	m.emailInput, cmd = m.emailInput.Update(msg)
	return m, cmd
}

func (m *Model) updateList(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Up):
		if m.cursor > 0 {
			m.cursor--
		}
	case key.Matches(msg, m.keys.Down):
		if m.cursor < len(m.conversations)-1 {
			m.cursor++
		}
	case key.Matches(msg, m.keys.Enter):
		if m.cursor < len(m.conversations) {
			m.busy = true
			m.status = "loading conversation"
			return m, tea.Batch(m.spin.Tick, m.openCmd(m.conversations[m.cursor].ConversationID))
		}
	case key.Matches(msg, m.keys.New):
		m.screen = screenInvite
		m.inviteInput.Focus()
		return m, textinput.Blink
	case key.Matches(msg, m.keys.Reload):
		m.busy = true
		m.status = "refreshing"
		return m, tea.Batch(m.spin.Tick, m.reloadCmd())
	case key.Matches(msg, m.keys.Logout):
		if err := m.store.Logout(); err != nil {
			m.errText = err.Error()
		}
		m.screen = screenLogin
		m.conversations = nil
		m.cursor = 0
		m.emailInput.Focus()
		return m, textinput.Blink
	}
	return m, nil
}

func (m *Model) updateDetail(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Back):
		m.screen = screenList
		m.activeID = ""
		m.haveDetail = false
		return m, nil
	case key.Matches(msg, m.keys.Enter):
		text := strings.TrimSpace(m.compose.Value())
		if text == "" {
			return m, nil
		}
		m.busy = true
		m.status = "sending"
		return m, tea.Batch(m.spin.Tick, m.sendCmd(m.activeID, text))
	case msg.Type == tea.KeyPgUp:
		m.history.HalfViewUp()
		return m, nil
	case msg.Type == tea.KeyPgDown:
		m.history.HalfViewDown()
		return m, nil
	}
	var cmd tea.Cmd
	m.compose, cmd = m.compose.Update(msg)
	return m, cmd
}

func (m *Model) updateInvite(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Back):
		m.screen = screenList
		m.inviteInput.Reset()
		return m, nil
	case key.Matches(msg, m.keys.Enter):
		email := strings.TrimSpace(m.inviteInput.Value())
		if email == "" {
			return m, nil
		}
		m.busy = true
		m.status = "creating conversation"
		return m, tea.Batch(m.spin.Tick, m.inviteCmd(email))
	}
	var cmd tea.Cmd
	m.inviteInput, cmd = m.inviteInput.Update(msg)
	return m, cmd
}

// refreshSnapshots re-reads every derived view this model renders. Called on
// each store change signal; the store coalesces, so this stays cheap.
func (m *Model) refreshSnapshots() {
	m.conversations = m.store.Conversations()
	if m.cursor >= len(m.conversations) {
		m.cursor = max(0, len(m.conversations)-1)
	}
	if m.activeID == "" {
		return
	}
	detail, ok := m.store.Detail(m.activeID)
	if !ok {
		return
	}
	atBottom := m.history.AtBottom()
	m.detail = detail
	m.haveDetail = true
	m.history.SetContent(renderMessages(m.detail, m.historyWidth(), m.theme))
	if atBottom {
		m.history.GotoBottom()
	}
}

func (m *Model) resize() {
	historyHeight := m.height - 6
	if historyHeight < 3 {
		historyHeight = 3
	}
	if !m.ready {
		m.history = viewport.New(m.historyWidth(), historyHeight)
		m.ready = true
	} else {
		m.history.Width = m.historyWidth()
		m.history.Height = historyHeight
	}
	m.compose.SetWidth(max(10, m.width-6))
	m.emailInput.Width = max(10, min(40, m.width-10))
	m.inviteInput.Width = max(10, min(40, m.width-10))
	if m.haveDetail {
		m.history.SetContent(renderMessages(m.detail, m.historyWidth(), m.theme))
		m.history.GotoBottom()
	}
}

func (m *Model) historyWidth() int {
	return max(20, m.width-2)
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
