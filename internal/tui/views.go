package tui

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/concord-chat/livechat/internal/api"
	"github.com/concord-chat/livechat/internal/models"
)

// renderLoginView renders the login screen
func (a *App) renderLoginView() string {
	boxWidth := 54
	var b strings.Builder

	b.WriteString(a.styles.Title.Render("╔════════════════════════════════════════════╗"))
	b.WriteString("\n")
	b.WriteString(a.styles.Title.Render("║            Welcome to Live Chat            ║"))
	b.WriteString("\n")
	b.WriteString(a.styles.Title.Render("╚════════════════════════════════════════════╝"))
	b.WriteString("\n\n")
	b.WriteString(a.styles.Subtitle.Render("     Log in with your email and password"))
	b.WriteString("\n\n")

	fieldStyle := func(focused bool) lipgloss.Style {
		if focused {
			return a.styles.InputFocused.Width(36)
		}
		return a.styles.Input.Width(36)
	}

	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Center,
		a.styles.Label.Render("Email:"),
		fieldStyle(a.loginFocus == 0).Render(a.loginEmail.View())))
	b.WriteString("\n")
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Center,
		a.styles.Label.Render("Password:"),
		fieldStyle(a.loginFocus == 1).Render(a.loginPassword.View())))
	b.WriteString("\n\n")

	switch {
	case a.loggingIn:
		b.WriteString(a.styles.Info.Render("Logging in..."))
		b.WriteString("\n\n")
	case a.loginError != "":
		b.WriteString(a.styles.Error.Bold(true).Render("⚠ " + a.loginError))
		b.WriteString("\n\n")
	}

	b.WriteString(a.styles.Help.Render("Tab: Switch fields  •  Enter: Login  •  Ctrl+C: Quit"))

	loginBox := a.styles.Box.Width(boxWidth).Render(b.String())
	if a.width == 0 || a.height == 0 {
		return loginBox
	}
	return lipgloss.Place(a.width, a.height, lipgloss.Center, lipgloss.Center, loginBox)
}

// updateLoginForm passes input to the focused login field
func (a *App) updateLoginForm(msg tea.Msg) tea.Cmd {
	var cmd tea.Cmd
	if a.loginFocus == 0 {
		a.loginEmail, cmd = a.loginEmail.Update(msg)
	} else {
		a.loginPassword, cmd = a.loginPassword.Update(msg)
	}
	return cmd
}

// handleLoginSubmit validates the form and starts the login request
func (a *App) handleLoginSubmit() tea.Cmd {
	if a.loggingIn {
		return nil
	}

	creds := api.Credentials{
		Email:    strings.TrimSpace(a.loginEmail.Value()),
		Password: a.loginPassword.Value(),
	}
	if creds.Email == "" || creds.Password == "" {
		a.loginError = "Please enter email and password"
		return nil
	}
	if len(creds.Password) < 8 {
		a.loginError = "Password must be at least 8 characters"
		return nil
	}

	a.loginError = ""
	a.loggingIn = true

	client := a.api
	return func() tea.Msg {
		ctx, cancel := requestContext()
		defer cancel()
		result, err := client.Login(ctx, creds)
		if err != nil {
			return LoginErrorMsg{Err: err}
		}
		return LoginSuccessMsg{Result: result}
	}
}

func (a *App) sidebarWidth() int {
	w := a.width / 5
	if w < 20 {
		w = 20
	}
	if w > 30 {
		w = 30
	}
	return w
}

// updateViewportSize resizes the chat viewport to the window
func (a *App) updateViewportSize() {
	if a.width == 0 || a.height == 0 {
		return
	}
	chatWidth := a.width - a.sidebarWidth() - 2

	// header, input box (3), status bar and the output panel
	chatHeight := a.height - 6
	if len(a.output) > 0 {
		chatHeight -= len(a.output) + 2
	}
	if chatHeight < 3 {
		chatHeight = 3
	}

	a.chatViewport.Width = chatWidth
	a.chatViewport.Height = chatHeight
	a.input.Width = chatWidth - 6
	a.refreshChat()
}

// refreshChat rebuilds the viewport content from the store
func (a *App) refreshChat() {
	var content strings.Builder
	width := a.chatViewport.Width
	if width <= 0 {
		width = 80
	}

	for i, msg := range a.visibleMessages() {
		content.WriteString(a.renderMessage(i+1, msg, width))
		content.WriteString("\n")
	}

	atBottom := a.chatViewport.AtBottom()
	a.chatViewport.SetContent(content.String())
	if atBottom || a.focus == FocusInput {
		a.chatViewport.GotoBottom()
	}
}

// renderMessage renders one message with its number for /pin
func (a *App) renderMessage(n int, msg models.Message, width int) string {
	nameStyle := a.styles.UsernameOther
	switch msg.Sender.Kind {
	case models.SenderSelf:
		nameStyle = a.styles.UsernameSelf
	case models.SenderSystem:
		nameStyle = a.styles.SystemMessage
	}

	header := fmt.Sprintf("%s %s  %s",
		a.styles.Timestamp.Render(fmt.Sprintf("%3d", n)),
		nameStyle.Render(msg.Sender.DisplayName()),
		a.styles.Timestamp.Render(msg.CreatedAt.Format("15:04")))
	if a.store.IsPinned(msg.ID) {
		header += " " + a.styles.PinMarker.Render("📌")
	}

	textStyle := a.styles.MessageContent
	switch {
	case msg.IsSystemMessage():
		textStyle = a.styles.SystemMessage
	case msg.NonJSON:
		textStyle = a.styles.NonJSON
	}
	body := textStyle.Width(width - 6).PaddingLeft(4).Render(msg.Text)

	return header + "\n" + body
}

// renderChatView renders the main chat interface
func (a *App) renderChatView() string {
	sidebarWidth := a.sidebarWidth()
	height := a.height - 1
	if height < 10 {
		height = 10
	}

	sidebar := a.renderSidebar(sidebarWidth, height)
	chat := a.renderChatPanel(a.width - sidebarWidth - 2)

	main := lipgloss.JoinHorizontal(lipgloss.Top, sidebar, chat)
	return lipgloss.JoinVertical(lipgloss.Left, main, a.renderStatusBar())
}

// renderSidebar renders the channel list and the active channel's pins
func (a *App) renderSidebar(width, height int) string {
	var b strings.Builder
	active := a.conn.Channel()

	b.WriteString(a.styles.SidebarHeader.Render("CHANNELS"))
	b.WriteString("\n")
	for _, name := range a.channels {
		label := truncate("# "+name, width-3)
		if name == active {
			b.WriteString(a.styles.ChannelActive.Width(width - 2).Render(label))
		} else {
			b.WriteString(a.styles.Channel.Render(label))
		}
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(a.styles.SidebarHeader.Render("PINNED"))
	b.WriteString("\n")
	pins := a.store.Pins(active)
	if len(pins) == 0 {
		b.WriteString(a.styles.Channel.Italic(true).Render("Nothing pinned"))
		b.WriteString("\n")
	}
	for _, p := range pins {
		b.WriteString(a.styles.PinnedItem.Render(truncate(p.Sender.DisplayName()+": "+p.Text, width-3)))
		b.WriteString("\n")
	}

	return a.styles.Sidebar.Width(width).Height(height).Render(b.String())
}

// renderChatPanel renders the header, messages, command output and input
func (a *App) renderChatPanel(width int) string {
	header := a.styles.ChatHeader.Width(width).Render("# " + a.conn.Channel())

	var chatContent string
	if len(a.visibleMessages()) == 0 {
		chatContent = a.styles.SystemMessage.
			Width(width).
			Height(a.chatViewport.Height).
			Align(lipgloss.Center).
			Render("No messages yet. Use /connect to join the live chat.")
	} else {
		chatContent = a.chatViewport.View()
	}

	parts := []string{header, chatContent}
	if len(a.output) > 0 {
		parts = append(parts, a.styles.Input.Width(width-2).Render(strings.Join(a.output, "\n")))
	}

	inputStyle := a.styles.Input
	if a.focus == FocusInput {
		inputStyle = a.styles.InputFocused
	}
	parts = append(parts, inputStyle.Width(width-2).Render(a.input.View()))

	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}

// renderStatusBar renders the bottom status bar
func (a *App) renderStatusBar() string {
	dot := "○"
	if a.connState == models.StateOpen {
		dot = "●"
	}
	left := a.styles.StateStyle(a.connState).Render(dot + " " + a.connState.String())
	if a.identity != nil {
		who := "user " + a.identity.UserID()
		if a.user != nil {
			who = a.user.GetDisplayName()
		}
		if role := a.identity.Role; role != "" {
			who += " (" + role + ")"
		}
		left += "  |  " + who
	}

	center := a.statusMessage
	if center == "" {
		center = a.connStatus
	}
	if a.statusError {
		center = a.styles.Error.Render(center)
	} else {
		center = a.styles.Info.Render(center)
	}

	right := "Tab: Focus  |  Ctrl+N/P: Channel  |  /help  |  Ctrl+C: Quit"

	space := a.width - lipgloss.Width(left) - lipgloss.Width(center) - lipgloss.Width(right) - 4
	var bar string
	if space > 0 {
		leftPad := space / 2
		bar = left + strings.Repeat(" ", leftPad) + center + strings.Repeat(" ", space-leftPad) + right
	} else {
		bar = left + "  " + center
	}

	return a.styles.StatusBar.Width(a.width).Render(bar)
}

// truncate shortens s to at most n display cells
func truncate(s string, n int) string {
	if n <= 3 || lipgloss.Width(s) <= n {
		return s
	}
	runes := []rune(s)
	for len(runes) > 0 && lipgloss.Width(string(runes)) > n-3 {
		runes = runes[:len(runes)-1]
	}
	return string(runes) + "..."
}
