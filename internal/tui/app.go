// Package tui is the terminal front end. It drives the chat connection,
// the session and the REST client, and re-renders from the message
// store; it holds no chat state of its own.
package tui

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"github.com/concord-chat/livechat/internal/api"
	"github.com/concord-chat/livechat/internal/chat"
	"github.com/concord-chat/livechat/internal/models"
	"github.com/concord-chat/livechat/internal/observ"
	"github.com/concord-chat/livechat/internal/session"
	"github.com/concord-chat/livechat/internal/themes"
)

// View represents the screens of the application
type View int

const (
	ViewLogin View = iota
	ViewChat
)

// FocusArea represents which area of the chat view has focus
type FocusArea int

const (
	FocusInput FocusArea = iota
	FocusChat
)

// requestTimeout bounds every REST call and dial started from the UI
const requestTimeout = 30 * time.Second

// maxOutputLines is how many command output lines stay on screen
const maxOutputLines = 8

// Options wires the application to the core components
type Options struct {
	API        *api.Client
	Session    *session.Context
	Connection *chat.Connection
	Channels   []string
	Theme      *themes.Theme
	ThemesDir  string
	Logger     *zap.Logger
}

// App is the bubbletea model
type App struct {
	api      *api.Client
	session  *session.Context
	conn     *chat.Connection
	store    *chat.Store
	channels []string
	logger   *zap.Logger

	// Window dimensions
	width  int
	height int

	view  View
	focus FocusArea

	theme     *themes.Theme
	styles    *themes.Styles
	themesDir string

	// Connection state as of the last event
	connState  models.ConnectionState
	connStatus string

	// Signed-in user
	identity *session.Identity
	user     *models.User
	landing  string

	// UI components
	input        textinput.Model
	chatViewport viewport.Model
	draft        *chat.Draft
	sending      bool

	// Login form
	loginEmail    textinput.Model
	loginPassword textinput.Model
	loginFocus    int
	loginError    string
	loggingIn     bool

	// Status line and command output
	statusMessage string
	statusError   bool
	output        []string

	// Events from the connection and session, consumed by waitForEvent
	events chan tea.Msg
}

// New creates the application and subscribes it to connection and
// session events
func New(opts Options) *App {
	input := textinput.New()
	input.Placeholder = "Type a message or /help"
	input.CharLimit = 2000
	input.Width = 50

	loginEmail := textinput.New()
	loginEmail.Placeholder = "Email"
	loginEmail.Focus()

	loginPassword := textinput.New()
	loginPassword.Placeholder = "Password"
	loginPassword.EchoMode = textinput.EchoPassword

	theme := opts.Theme
	if theme == nil {
		theme = themes.GetDefaultTheme()
	}

	channels := opts.Channels
	if len(channels) == 0 {
		channels = models.DefaultChannels()
	}

	a := &App{
		api:           opts.API,
		session:       opts.Session,
		conn:          opts.Connection,
		store:         opts.Connection.Store(),
		channels:      channels,
		logger:        observ.OrNop(opts.Logger).Named("tui"),
		view:          ViewLogin,
		focus:         FocusInput,
		theme:         theme,
		styles:        theme.BuildStyles(),
		themesDir:     opts.ThemesDir,
		connState:     opts.Connection.State(),
		connStatus:    opts.Connection.Status(),
		input:         input,
		chatViewport:  viewport.New(80, 20),
		draft:         &chat.Draft{},
		loginEmail:    loginEmail,
		loginPassword: loginPassword,
		events:        make(chan tea.Msg, 256),
	}

	a.conn.SetListener(func(ev chat.Event) {
		a.events <- ConnEventMsg{Event: ev}
	})
	a.session.OnClear(func() {
		a.events <- SessionClearedMsg{}
	})

	if identity := a.session.Identity(); identity != nil {
		a.enterChat(identity, nil)
	}
	return a
}

// Init implements tea.Model
func (a *App) Init() tea.Cmd {
	return tea.Batch(
		textinput.Blink,
		a.waitForEvent(),
	)
}

// waitForEvent delivers the next connection or session event
func (a *App) waitForEvent() tea.Cmd {
	return func() tea.Msg {
		return <-a.events
	}
}

// Update implements tea.Model
func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		if cmd, handled := a.handleKeyPress(msg); handled {
			return a, cmd
		}

	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.updateViewportSize()

	case ConnEventMsg:
		a.handleConnEvent(msg.Event)
		cmds = append(cmds, a.waitForEvent())

	case SessionClearedMsg:
		a.leaveChat("Session ended. Please log in again.")
		cmds = append(cmds, a.waitForEvent(), a.disconnect())

	case LoginSuccessMsg:
		a.loggingIn = false
		a.loginPassword.Reset()
		a.enterChat(msg.Result.Identity, msg.Result.User)

	case LoginErrorMsg:
		a.loggingIn = false
		a.loginError = msg.Err.Error()

	case SendResultMsg:
		a.sending = false
		if msg.Err != nil {
			a.setError(msg.Err.Error())
		} else {
			if a.draft.ClearIf(msg.Text) {
				a.input.Reset()
			}
			a.setStatus("Message sent")
			a.refreshChat()
		}

	case PinResultMsg:
		if msg.Err != nil {
			a.setError(msg.Err.Error())
		} else {
			a.setStatus("Message " + strings.ToLower(msg.Result.String()))
		}
		a.refreshChat()

	case OutputMsg:
		if msg.Err != nil {
			a.setError(msg.Err.Error())
		} else {
			a.statusError = false
			a.appendOutput(msg.Lines...)
		}
	}

	switch a.view {
	case ViewLogin:
		cmds = append(cmds, a.updateLoginForm(msg))
	case ViewChat:
		if a.focus == FocusInput {
			var cmd tea.Cmd
			a.input, cmd = a.input.Update(msg)
			cmds = append(cmds, cmd)
			if value := a.input.Value(); !strings.HasPrefix(value, "/") {
				a.draft.Set(value)
			}
		} else {
			var cmd tea.Cmd
			a.chatViewport, cmd = a.chatViewport.Update(msg)
			cmds = append(cmds, cmd)
		}
	}

	return a, tea.Batch(cmds...)
}

// View implements tea.Model
func (a *App) View() string {
	switch a.view {
	case ViewLogin:
		return a.renderLoginView()
	case ViewChat:
		return a.renderChatView()
	default:
		return "Unknown view"
	}
}

// handleKeyPress handles keys that are not plain text input. It
// reports false when the key should reach the focused component.
func (a *App) handleKeyPress(msg tea.KeyMsg) (tea.Cmd, bool) {
	switch msg.String() {
	case "ctrl+c", "ctrl+q":
		return tea.Sequence(a.disconnect(), tea.Quit), true

	case "tab", "shift+tab":
		a.cycleFocus()
		return nil, true

	case "enter":
		if a.view == ViewLogin {
			return a.handleLoginSubmit(), true
		}
		if a.focus == FocusInput {
			return a.handleSubmit(), true
		}

	case "esc":
		if a.view == ViewChat && len(a.output) > 0 {
			a.output = nil
			a.updateViewportSize()
			return nil, true
		}

	case "ctrl+n":
		if a.view == ViewChat {
			return a.switchChannel(a.nextChannel(1)), true
		}

	case "ctrl+p":
		if a.view == ViewChat {
			return a.switchChannel(a.nextChannel(-1)), true
		}

	case "pgup":
		if a.view == ViewChat {
			a.chatViewport.HalfViewUp()
			return nil, true
		}

	case "pgdown":
		if a.view == ViewChat {
			a.chatViewport.HalfViewDown()
			return nil, true
		}
	}

	return nil, false
}

// cycleFocus moves focus between the fields of the current view
func (a *App) cycleFocus() {
	if a.view == ViewLogin {
		a.loginFocus = (a.loginFocus + 1) % 2
		if a.loginFocus == 0 {
			a.loginEmail.Focus()
			a.loginPassword.Blur()
		} else {
			a.loginEmail.Blur()
			a.loginPassword.Focus()
		}
		return
	}

	switch a.focus {
	case FocusInput:
		a.focus = FocusChat
		a.input.Blur()
	case FocusChat:
		a.focus = FocusInput
		a.input.Focus()
	}
}

// handleSubmit runs a slash command or sends the draft
func (a *App) handleSubmit() tea.Cmd {
	value := strings.TrimSpace(a.input.Value())
	if value == "" {
		return nil
	}

	if strings.HasPrefix(value, "/") {
		a.input.Reset()
		a.input.SetValue(a.draft.String())
		a.input.CursorEnd()

		cmd, err := ParseCommand(value)
		if err != nil {
			a.setError(err.Error())
			return nil
		}
		return a.execute(cmd)
	}

	if a.sending {
		return nil
	}
	text := a.draft.String()
	if err := a.conn.ValidateText(text); err != nil {
		a.setError(err.Error())
		return nil
	}

	a.sending = true
	conn, channel := a.conn, a.conn.Channel()
	return func() tea.Msg {
		return SendResultMsg{Text: text, Err: conn.Send(text, channel)}
	}
}

// handleConnEvent folds a connection event into the view
func (a *App) handleConnEvent(ev chat.Event) {
	a.connState = ev.State
	a.connStatus = ev.Status

	switch ev.Kind {
	case chat.EventState:
		if ev.State == models.StateErrored && ev.Detail != "" {
			a.setError(ev.Status + " " + ev.Detail)
		} else {
			a.setStatus(ev.Status)
		}
	case chat.EventNonJSON:
		a.statusMessage = "Received a non-JSON frame"
		a.statusError = true
	case chat.EventError:
		a.setError("Send failed: " + ev.Detail)
	}

	if ev.Kind == chat.EventMessage {
		if m := ev.Message; m != nil && !m.IsOwn() && !m.IsSystemMessage() {
			a.setStatus("New message received")
		}
		a.refreshChat()
	}
}

// enterChat switches to the chat view for a signed-in user
func (a *App) enterChat(identity *session.Identity, user *models.User) {
	a.identity = identity
	a.user = user
	a.landing = (&api.LoginResult{Identity: identity, User: user}).Landing()
	a.view = ViewChat
	a.focus = FocusInput
	a.loginEmail.Blur()
	a.loginPassword.Blur()
	a.input.Focus()
	a.output = nil

	switch a.landing {
	case "admin":
		a.appendOutput(adminHelp...)
		a.setStatus("Admin console ready. Use /connect to join the live chat.")
	case "teacher":
		a.setStatus("Signed in as teacher. Use /connect to join the live chat.")
	default:
		a.setStatus("Signed in. Use /connect to join the live chat.")
	}
	a.refreshChat()
}

// leaveChat returns to the login view
func (a *App) leaveChat(reason string) {
	a.identity = nil
	a.user = nil
	a.landing = ""
	a.view = ViewLogin
	a.loginFocus = 0
	a.loginEmail.Focus()
	a.loginPassword.Blur()
	a.input.Blur()
	a.output = nil
	a.loginError = reason
}

func (a *App) disconnect() tea.Cmd {
	conn := a.conn
	return func() tea.Msg {
		conn.Disconnect()
		return nil
	}
}

// switchChannel makes name the active channel
func (a *App) switchChannel(name string) tea.Cmd {
	if !slices.Contains(a.channels, name) {
		a.setError("Unknown channel: " + name)
		return nil
	}
	a.conn.SetChannel(name)
	a.setStatus("Switched to #" + name)
	a.refreshChat()
	return nil
}

func (a *App) nextChannel(delta int) string {
	i := slices.Index(a.channels, a.conn.Channel())
	if i < 0 {
		return a.channels[0]
	}
	n := len(a.channels)
	return a.channels[((i+delta)%n+n)%n]
}

// visibleMessages returns the active channel's messages in order
func (a *App) visibleMessages() []models.Message {
	return slices.Collect(a.store.FilterByChannel(a.conn.Channel()))
}

func (a *App) setStatus(text string) {
	a.statusMessage = text
	a.statusError = false
}

func (a *App) setError(text string) {
	a.statusMessage = text
	a.statusError = true
}

func (a *App) appendOutput(lines ...string) {
	a.output = append(a.output, lines...)
	if len(a.output) > maxOutputLines {
		a.output = a.output[len(a.output)-maxOutputLines:]
	}
	a.updateViewportSize()
}

// SetTheme sets the application theme
func (a *App) SetTheme(theme *themes.Theme) {
	a.theme = theme
	a.styles = theme.BuildStyles()
	a.refreshChat()
}

func requestContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), requestTimeout)
}

// --- Message types for tea.Cmd ---

// ConnEventMsg carries a chat connection event
type ConnEventMsg struct {
	Event chat.Event
}

// SessionClearedMsg indicates the session ended (logout or rejected token)
type SessionClearedMsg struct{}

// LoginSuccessMsg indicates a successful login
type LoginSuccessMsg struct {
	Result *api.LoginResult
}

// LoginErrorMsg indicates a login failure
type LoginErrorMsg struct {
	Err error
}

// SendResultMsg reports the outcome of sending the draft
type SendResultMsg struct {
	Text string
	Err  error
}

// PinResultMsg reports the outcome of a pin toggle
type PinResultMsg struct {
	Result chat.PinResult
	Err    error
}

// OutputMsg carries command output for the output panel
type OutputMsg struct {
	Lines []string
	Err   error
}
