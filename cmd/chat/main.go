package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/joho/godotenv"

	"github.com/pnson1322/coursechat/internal/client/api"
	"github.com/pnson1322/coursechat/internal/client/debug"
	"github.com/pnson1322/coursechat/internal/client/realtime"
	"github.com/pnson1322/coursechat/internal/client/session"
	csync "github.com/pnson1322/coursechat/internal/client/sync"
)

// --- Styles ---

var (
	primaryColor   = lipgloss.Color("#7C3AED")
	secondaryColor = lipgloss.Color("#10B981")
	mutedColor     = lipgloss.Color("#9CA3AF")
	errorColor     = lipgloss.Color("#EF4444")
	warnColor      = lipgloss.Color("#F59E0B")

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(primaryColor).
			Padding(0, 1)

	selectedStyle = lipgloss.NewStyle().
			Foreground(secondaryColor).
			Bold(true)

	mutedStyle = lipgloss.NewStyle().
			Foreground(mutedColor)

	errorStyle = lipgloss.NewStyle().
			Foreground(errorColor).
			Bold(true)

	offlineStyle = lipgloss.NewStyle().
			Foreground(warnColor).
			Bold(true)

	ownMessageStyle = lipgloss.NewStyle().
			Foreground(secondaryColor)

	otherMessageStyle = lipgloss.NewStyle().
				Foreground(primaryColor)

	unreadStyle = lipgloss.NewStyle().
			Foreground(warnColor).
			Bold(true)

	helpStyle = lipgloss.NewStyle().
			Foreground(mutedColor).
			Italic(true)
)

// --- View State ---

type viewState int

const (
	viewLogin viewState = iota
	viewConversations
	viewChat
	viewFilter
)

// --- Messages ---

type stateUpdated struct{}

type loginDone struct {
	result api.LoginResult
	err    error
}

type sessionReady struct {
	err error
}

type convOpened struct {
	err error
}

type olderLoaded struct {
	added int
	err   error
}

type nextPageLoaded struct {
	err error
}

type sendDone struct {
	content string
	err     error
}

type filterApplied struct {
	err error
}

// --- Main Model ---

type model struct {
	apiClient *api.Client
	rt        *realtime.Manager
	coord     *csync.Coordinator
	updates   chan struct{}

	profile string
	apiURL  string
	hubURL  string
	selfID  string
	name    string

	emailInput    textinput.Model
	passwordInput textinput.Model
	loginFocused  int
	loginError    string

	selectedConv int

	messageInput textinput.Model
	chatViewport viewport.Model
	lastNewestID string
	statusLine   string

	filterInput textinput.Model

	view   viewState
	width  int
	height int
	err    error
}

func initialModel(apiURL, hubURL, profile string) model {
	emailInput := textinput.New()
	emailInput.Placeholder = "Email"
	emailInput.Focus()
	emailInput.CharLimit = 128
	emailInput.Width = 30

	passwordInput := textinput.New()
	passwordInput.Placeholder = "Password"
	passwordInput.EchoMode = textinput.EchoPassword
	passwordInput.CharLimit = 64
	passwordInput.Width = 30

	messageInput := textinput.New()
	messageInput.Placeholder = "Type a message..."
	messageInput.CharLimit = 2000
	messageInput.Width = 50

	filterInput := textinput.New()
	filterInput.Placeholder = "Course ID (empty for all)"
	filterInput.CharLimit = 20
	filterInput.Width = 30

	return model{
		apiURL:        apiURL,
		hubURL:        hubURL,
		profile:       profile,
		updates:       make(chan struct{}, 16),
		emailInput:    emailInput,
		passwordInput: passwordInput,
		messageInput:  messageInput,
		filterInput:   filterInput,
		chatViewport:  viewport.New(80, 20),
		view:          viewLogin,
	}
}

// --- Commands ---

func waitForUpdate(ch chan struct{}) tea.Cmd {
	return func() tea.Msg {
		<-ch
		return stateUpdated{}
	}
}

func (m model) loginCmd(email, password string) tea.Cmd {
	return func() tea.Msg {
		result, err := m.apiClient.Login(context.Background(), email, password)
		return loginDone{result: result, err: err}
	}
}

func (m model) startSessionCmd(token string) tea.Cmd {
	coord := m.coord
	rt := m.rt
	return func() tea.Msg {
		if err := rt.Connect(context.Background(), token); err != nil {
			return sessionReady{err: err}
		}
		return sessionReady{err: coord.Start(context.Background())}
	}
}

func (m model) openConvCmd(conv api.Conversation) tea.Cmd {
	coord := m.coord
	return func() tea.Msg {
		return convOpened{err: coord.OpenConversation(context.Background(), conv)}
	}
}

func (m model) loadOlderCmd() tea.Cmd {
	coord := m.coord
	return func() tea.Msg {
		added, err := coord.Window.LoadOlder(context.Background())
		return olderLoaded{added: added, err: err}
	}
}

func (m model) nextPageCmd() tea.Cmd {
	coord := m.coord
	return func() tea.Msg {
		return nextPageLoaded{err: coord.Conversations.LoadNextPage(context.Background())}
	}
}

func (m model) sendCmd(content string) tea.Cmd {
	coord := m.coord
	return func() tea.Msg {
		return sendDone{content: content, err: coord.Send(context.Background(), content, nil)}
	}
}

func (m model) filterCmd(courseID *int64) tea.Cmd {
	coord := m.coord
	return func() tea.Msg {
		return filterApplied{err: coord.Conversations.FilterByCourse(context.Background(), courseID)}
	}
}

// --- Init ---

func (m model) Init() tea.Cmd {
	cmds := []tea.Cmd{textinput.Blink, waitForUpdate(m.updates)}
	if s := session.Load(m.profile); s != nil && s.Token != "" && s.APIURL == m.apiURL {
		m.apiClient.SetToken(s.Token)
		cmds = append(cmds, m.startSessionCmd(s.Token))
	}
	return tea.Batch(cmds...)
}

// --- Update ---

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			return m, tea.Quit

		case "q":
			if m.view == viewLogin || m.view == viewConversations {
				return m, tea.Quit
			}

		case "tab":
			if m.view == viewLogin {
				if m.loginFocused == 0 {
					m.loginFocused = 1
					m.emailInput.Blur()
					m.passwordInput.Focus()
				} else {
					m.loginFocused = 0
					m.passwordInput.Blur()
					m.emailInput.Focus()
				}
				return m, nil
			}

		case "enter":
			switch m.view {
			case viewLogin:
				if m.emailInput.Value() != "" && m.passwordInput.Value() != "" {
					m.loginError = ""
					return m, m.loginCmd(m.emailInput.Value(), m.passwordInput.Value())
				}

			case viewConversations:
				items := m.coord.Conversations.Items()
				if m.selectedConv < len(items) {
					conv := items[m.selectedConv]
					m.view = viewChat
					m.statusLine = ""
					m.messageInput.Focus()
					return m, m.openConvCmd(conv)
				}

			case viewChat:
				content := strings.TrimSpace(m.messageInput.Value())
				if content != "" {
					m.messageInput.SetValue("")
					return m, m.sendCmd(content)
				}

			case viewFilter:
				raw := strings.TrimSpace(m.filterInput.Value())
				m.view = viewConversations
				m.selectedConv = 0
				if raw == "" {
					return m, m.filterCmd(nil)
				}
				id, err := strconv.ParseInt(raw, 10, 64)
				if err != nil {
					m.statusLine = "course filter must be a number"
					return m, nil
				}
				return m, m.filterCmd(&id)
			}

		case "up", "k":
			if m.view == viewConversations && m.selectedConv > 0 {
				m.selectedConv--
				return m, nil
			}

		case "down", "j":
			if m.view == viewConversations {
				items := m.coord.Conversations.Items()
				if m.selectedConv < len(items)-1 {
					m.selectedConv++
				} else if m.coord.Conversations.HasMore() && !m.coord.Conversations.Loading() {
					return m, m.nextPageCmd()
				}
				return m, nil
			}

		case "f":
			if m.view == viewConversations {
				m.view = viewFilter
				m.filterInput.SetValue("")
				m.filterInput.Focus()
				return m, nil
			}

		case "pgup":
			if m.view == viewChat && m.coord.Window.HasMore() && !m.coord.Window.LoadingOlder() {
				return m, m.loadOlderCmd()
			}

		case "esc":
			if m.view == viewChat {
				m.coord.CloseConversation()
				m.view = viewConversations
				m.messageInput.Blur()
				return m, nil
			}
			if m.view == viewFilter {
				m.view = viewConversations
				return m, nil
			}
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.chatViewport.Width = msg.Width - 4
		m.chatViewport.Height = msg.Height - 8

	case stateUpdated:
		if m.view == viewChat {
			m.renderChatViewport(false)
		}
		cmds = append(cmds, waitForUpdate(m.updates))

	case loginDone:
		if msg.err != nil {
			m.loginError = loginErrorText(msg.err)
			return m, nil
		}
		m.selfID = msg.result.UserID
		m.name = msg.result.DisplayName
		session.Save(m.profile, session.Session{
			APIURL:      m.apiURL,
			HubURL:      m.hubURL,
			Token:       msg.result.Token,
			UserID:      msg.result.UserID,
			DisplayName: msg.result.DisplayName,
		})
		m.selfID = msg.result.UserID
		m.coord.SetSelfID(msg.result.UserID)
		return m, m.startSessionCmd(msg.result.Token)

	case sessionReady:
		if msg.err != nil {
			session.Clear(m.profile)
			m.view = viewLogin
			m.loginError = loginErrorText(msg.err)
			return m, nil
		}
		m.view = viewConversations
		m.selectedConv = 0

	case convOpened:
		if msg.err != nil {
			m.statusLine = "could not open conversation"
			m.view = viewConversations
			return m, nil
		}
		m.renderChatViewport(true)

	case olderLoaded:
		if msg.err != nil {
			m.statusLine = "could not load older messages"
			return m, nil
		}
		m.prependToViewport(msg.added)

	case nextPageLoaded:
		if msg.err != nil {
			m.statusLine = "could not load more conversations"
		}

	case sendDone:
		if msg.err != nil {
			m.statusLine = sendErrorText(msg.err)
			// The optimistic entry was rolled back; give the composed
			// text back so the user can retry.
			if !errors.Is(msg.err, csync.ErrEmptyMessage) {
				m.messageInput.SetValue(msg.content)
				m.messageInput.CursorEnd()
			}
		} else {
			m.statusLine = ""
		}
		m.renderChatViewport(false)

	case filterApplied:
		if msg.err != nil {
			m.statusLine = "could not apply course filter"
		}
	}

	// Update text inputs
	switch m.view {
	case viewLogin:
		if m.loginFocused == 0 {
			m.emailInput, _ = m.emailInput.Update(msg)
		} else {
			m.passwordInput, _ = m.passwordInput.Update(msg)
		}
	case viewChat:
		before := m.messageInput.Value()
		m.messageInput, _ = m.messageInput.Update(msg)
		after := m.messageInput.Value()
		if after != before {
			if after == "" {
				m.coord.Typing.InputCleared()
			} else if conv := m.coord.Window.Conversation(); conv != nil {
				m.coord.Typing.Keystroke(conv.ID)
			}
		}
		m.chatViewport, _ = m.chatViewport.Update(msg)
	case viewFilter:
		m.filterInput, _ = m.filterInput.Update(msg)
	}

	return m, tea.Batch(cmds...)
}

// buildCoordinator wires the session coordinator. It runs exactly once
// per process: the coordinator subscribes to the realtime manager's push
// events, and those subscriptions cannot be undone, so a login rebinds
// the user via SetSelfID instead of constructing a replacement.
func (m *model) buildCoordinator(selfID string) {
	m.selfID = selfID
	m.coord = csync.NewCoordinator(csync.CoordinatorConfig{
		Events:  m.rt,
		Invoker: m.rt,
		Backend: m.apiClient,
		SelfID:  selfID,
		Notify:  m.notify,
		Logger:  debug.NewLogger(os.Getenv("COURSECHAT_DEBUG_LOG")),
	})
}

// notify wakes the UI loop from the coordinator's goroutines. Non-blocking:
// a full channel already has a wakeup pending.
func (m *model) notify() {
	select {
	case m.updates <- struct{}{}:
	default:
	}
}

// renderChatViewport redraws the transcript. It scrolls to the bottom only
// when a new newest message arrived or on jump, so reading history is not
// yanked down by a redraw.
func (m *model) renderChatViewport(jump bool) {
	m.chatViewport.SetContent(m.transcript())
	newest := m.coord.Window.NewestID()
	if jump || (newest != m.lastNewestID && !m.coord.Window.LoadingOlder()) {
		m.chatViewport.GotoBottom()
	}
	m.lastNewestID = newest
}

// prependToViewport redraws after older messages were loaded at the top,
// keeping the previously visible line in place.
func (m *model) prependToViewport(added int) {
	if added == 0 {
		return
	}
	before := m.chatViewport.TotalLineCount()
	m.chatViewport.SetContent(m.transcript())
	delta := m.chatViewport.TotalLineCount() - before
	if delta > 0 {
		m.chatViewport.SetYOffset(m.chatViewport.YOffset + delta)
	}
	m.lastNewestID = m.coord.Window.NewestID()
}

func (m *model) transcript() string {
	conv := m.coord.Window.Conversation()
	var b strings.Builder
	if m.coord.Window.HasMore() {
		b.WriteString(mutedStyle.Render("  ··· PgUp for older messages ···") + "\n")
	}
	for _, msg := range m.coord.Window.Messages() {
		timestamp := msg.CreatedAt.Format("15:04")
		name := "them"
		style := otherMessageStyle
		if msg.SenderID == m.selfID {
			name = "you"
			style = ownMessageStyle
		} else if conv != nil && msg.SenderID == conv.BuyerID && conv.BuyerName != "" {
			name = conv.BuyerName
		}
		line := fmt.Sprintf("%s %s: %s",
			mutedStyle.Render(timestamp),
			style.Render(name),
			msg.Content,
		)
		if csync.IsTempID(msg.ID) {
			line += mutedStyle.Render("  (sending…)")
		}
		b.WriteString(line + "\n")
	}
	return b.String()
}

func loginErrorText(err error) string {
	var se *api.StatusError
	if errors.As(err, &se) {
		switch se.Status {
		case 401:
			return "Invalid email or password."
		case 429:
			return "Too many attempts, wait a minute."
		}
	}
	return "Could not sign in: " + err.Error()
}

func sendErrorText(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, csync.ErrBlockedConversation):
		return "This conversation is blocked."
	case errors.Is(err, csync.ErrEmptyMessage):
		return ""
	default:
		return "Message not delivered. Check your connection and retry."
	}
}

// --- View ---

func (m model) View() string {
	if m.err != nil {
		return errorStyle.Render(fmt.Sprintf("Error: %v\n\nPress ctrl+c to quit.", m.err))
	}

	switch m.view {
	case viewLogin:
		return m.loginView()
	case viewConversations:
		return m.conversationsView()
	case viewChat:
		return m.chatView()
	case viewFilter:
		return m.filterView()
	}
	return ""
}

func (m model) loginView() string {
	var s strings.Builder

	s.WriteString("\n\n")
	s.WriteString(titleStyle.Render("COURSECHAT"))
	s.WriteString("\n\n")

	s.WriteString("  Email:\n")
	s.WriteString("  " + m.emailInput.View() + "\n\n")
	s.WriteString("  Password:\n")
	s.WriteString("  " + m.passwordInput.View() + "\n\n")

	if m.loginError != "" {
		s.WriteString(errorStyle.Render("  " + m.loginError + "\n\n"))
	}

	s.WriteString(helpStyle.Render("  Tab to switch fields • Enter to sign in • q to quit\n"))
	return s.String()
}

func (m model) conversationsView() string {
	var s strings.Builder

	header := fmt.Sprintf("COURSECHAT - %s", m.name)
	if unread := m.coord.Unread.Count(); unread > 0 {
		header += unreadStyle.Render(fmt.Sprintf("  [%d unread]", unread))
	}
	s.WriteString(titleStyle.Render(header))
	s.WriteString(m.connectionBanner())
	s.WriteString("\n\n")

	if filter := m.coord.Conversations.Filter(); filter != nil {
		s.WriteString(mutedStyle.Render(fmt.Sprintf("  Filter: course %d\n\n", *filter)))
	}

	items := m.coord.Conversations.Items()
	if len(items) == 0 {
		s.WriteString(mutedStyle.Render("  No conversations yet.\n"))
	}
	for i, conv := range items {
		prefix := "  "
		style := lipgloss.NewStyle()
		if i == m.selectedConv {
			prefix = "→ "
			style = selectedStyle
		}

		name := conv.BuyerName
		if name == "" {
			name = conv.BuyerID
		}
		label := fmt.Sprintf("%s%s · %s", prefix, name, conv.CourseTitle)
		if conv.UnreadCount > 0 {
			label += unreadStyle.Render(fmt.Sprintf(" (%d)", conv.UnreadCount))
		}
		if conv.LastMessage != "" {
			label += mutedStyle.Render("  " + truncate(conv.LastMessage, 40))
		}
		s.WriteString(style.Render(label) + "\n")
	}

	if m.coord.Conversations.HasMore() {
		s.WriteString(mutedStyle.Render("  ··· more below ···\n"))
	}

	if m.statusLine != "" {
		s.WriteString("\n" + errorStyle.Render("  "+m.statusLine) + "\n")
	}

	s.WriteString("\n")
	s.WriteString(helpStyle.Render("  ↑/↓ navigate • Enter to open • f filter by course • q to quit"))
	return s.String()
}

func (m model) chatView() string {
	var s strings.Builder

	conv := m.coord.Window.Conversation()
	title := "Conversation"
	if conv != nil {
		name := conv.BuyerName
		if name == "" {
			name = conv.BuyerID
		}
		title = fmt.Sprintf("%s · %s", name, conv.CourseTitle)
	}
	s.WriteString(titleStyle.Render(title))
	s.WriteString(m.connectionBanner())
	s.WriteString("\n")
	s.WriteString(strings.Repeat("─", max(m.width-2, 10)))
	s.WriteString("\n")

	s.WriteString(m.chatViewport.View())
	s.WriteString("\n")

	if peers := m.coord.Typing.Peers(); len(peers) > 0 {
		s.WriteString(mutedStyle.Render("  typing…") + "\n")
	}

	s.WriteString(strings.Repeat("─", max(m.width-2, 10)))
	s.WriteString("\n")
	s.WriteString(m.messageInput.View())
	s.WriteString("\n")

	if m.statusLine != "" {
		s.WriteString(errorStyle.Render(m.statusLine) + "\n")
	}

	s.WriteString(helpStyle.Render("Enter to send • PgUp for history • Esc to go back"))
	return s.String()
}

func (m model) filterView() string {
	var s strings.Builder
	s.WriteString(titleStyle.Render("Filter by course"))
	s.WriteString("\n\n")
	s.WriteString("  " + m.filterInput.View() + "\n\n")
	s.WriteString(helpStyle.Render("  Enter to apply • Esc to cancel"))
	return s.String()
}

func (m model) connectionBanner() string {
	switch m.rt.State() {
	case realtime.StateConnected:
		return ""
	case realtime.StateReconnecting:
		return offlineStyle.Render("  ⟳ reconnecting…")
	default:
		return offlineStyle.Render("  ⚠ offline")
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

// --- Main ---

func main() {
	godotenv.Load()

	apiURL := envOr("COURSECHAT_API", "http://localhost:8080")
	hubURL := envOr("COURSECHAT_HUB", "ws://localhost:8080/ws")
	profile := envOr("COURSECHAT_PROFILE", "default")

	log := debug.NewLogger(os.Getenv("COURSECHAT_DEBUG_LOG"))

	apiClient, err := api.NewClient(api.Config{BaseURL: apiURL})
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	m := initialModel(apiURL, hubURL, profile)
	m.apiClient = apiClient
	m.rt = realtime.NewManager(hubURL, log)

	selfID := ""
	if s := session.Load(profile); s != nil && s.APIURL == apiURL {
		apiClient.SetToken(s.Token)
		m.name = s.DisplayName
		selfID = s.UserID
	}
	m.buildCoordinator(selfID)

	p := tea.NewProgram(m, tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

