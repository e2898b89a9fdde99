package tui

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"github.com/concord-chat/livechat/internal/chat"
	"github.com/concord-chat/livechat/internal/models"
	"github.com/concord-chat/livechat/internal/themes"
)

// Command represents a parsed slash command
type Command struct {
	Name string
	Args []string
}

// ParseCommand parses a slash command string into a Command
func ParseCommand(input string) (*Command, error) {
	if !strings.HasPrefix(input, "/") {
		return nil, errors.New("not a command")
	}

	parts := strings.Fields(input[1:])
	if len(parts) == 0 {
		return nil, errors.New("empty command")
	}

	return &Command{
		Name: strings.ToLower(parts[0]),
		Args: parts[1:],
	}, nil
}

var chatHelp = []string{
	"/connect                open the live chat connection",
	"/disconnect             close it",
	"/channel <name>         switch channel (ctrl+n / ctrl+p cycle)",
	"/pin <n>                pin or unpin message n of this channel",
	"/pins                   list this channel's pins",
	"/emoji <name>           insert an emoji into the draft",
	"/theme [name]           list or switch themes",
	"/test                   check the session token",
	"/logout, /quit, /help",
}

var adminHelp = []string{
	"/users  /channels  /members  /user <id>",
	"/add-channel <name>",
	"/add-user <email> <username> <password> [role]",
}

var emoji = map[string]string{
	"smile":    "😊",
	"laugh":    "😂",
	"heart":    "❤️",
	"thumbsup": "👍",
	"wave":     "👋",
	"party":    "🎉",
	"think":    "🤔",
}

// execute runs a parsed command. Anything that blocks runs in the
// returned tea.Cmd.
func (a *App) execute(cmd *Command) tea.Cmd {
	switch cmd.Name {
	case "help":
		lines := chatHelp
		if a.identity.IsAdmin() {
			lines = append(append([]string{}, chatHelp...), adminHelp...)
		}
		a.appendOutput(lines...)
		return nil
	case "connect":
		return a.handleConnect()
	case "disconnect":
		return a.disconnect()
	case "channel":
		if len(cmd.Args) != 1 {
			a.setError("usage: /channel <name>  (" + strings.Join(a.channels, ", ") + ")")
			return nil
		}
		return a.switchChannel(strings.TrimPrefix(cmd.Args[0], "#"))
	case "pin":
		return a.handlePin(cmd.Args)
	case "pins":
		return a.handlePins()
	case "emoji":
		return a.handleEmoji(cmd.Args)
	case "theme":
		return a.handleTheme(cmd.Args)
	case "test":
		return a.handleTestToken()
	case "logout":
		return a.handleLogout()
	case "quit", "exit":
		return tea.Sequence(a.disconnect(), tea.Quit)
	case "users", "channels", "members", "user", "add-channel", "add-user":
		if !a.identity.IsAdmin() {
			a.setError("/" + cmd.Name + " requires an admin account")
			return nil
		}
		return a.executeAdmin(cmd)
	default:
		a.setError("unknown command: /" + cmd.Name)
		return nil
	}
}

func (a *App) handleConnect() tea.Cmd {
	token, userID := a.session.Credentials()
	conn, sess, logger := a.conn, a.session, a.logger
	return func() tea.Msg {
		ctx, cancel := requestContext()
		defer cancel()
		// State and status arrive as connection events
		err := conn.Connect(ctx, token, userID)
		if err == nil {
			return nil
		}
		logger.Debug("connect returned", zap.Error(err))
		if errors.Is(err, chat.ErrUnauthorized) {
			// The view changes on SessionClearedMsg
			if err := sess.Clear(ctx); err != nil {
				return OutputMsg{Err: err}
			}
		}
		return nil
	}
}

func (a *App) handlePin(args []string) tea.Cmd {
	if len(args) != 1 {
		a.setError("usage: /pin <message number>")
		return nil
	}
	n, err := strconv.Atoi(args[0])
	msgs := a.visibleMessages()
	if err != nil || n < 1 || n > len(msgs) {
		a.setError(fmt.Sprintf("no message %s in #%s", args[0], a.conn.Channel()))
		return nil
	}

	pin := msgs[n-1].Snapshot()
	store := a.store
	return func() tea.Msg {
		ctx, cancel := requestContext()
		defer cancel()
		result, err := store.TogglePin(ctx, pin)
		return PinResultMsg{Result: result, Err: err}
	}
}

func (a *App) handlePins() tea.Cmd {
	channel := a.conn.Channel()
	pins := a.store.Pins(channel)
	if len(pins) == 0 {
		a.appendOutput("No pinned messages in #" + channel)
		return nil
	}
	lines := make([]string, 0, len(pins))
	for _, p := range pins {
		lines = append(lines, fmt.Sprintf("📌 %s: %s", p.Sender.DisplayName(), p.Text))
	}
	a.appendOutput(lines...)
	return nil
}

func (a *App) handleEmoji(args []string) tea.Cmd {
	if len(args) != 1 || emoji[args[0]] == "" {
		a.setError("usage: /emoji <" + strings.Join(slices.Sorted(maps.Keys(emoji)), "|") + ">")
		return nil
	}
	a.draft.Append(emoji[args[0]])
	a.input.SetValue(a.draft.String())
	a.input.CursorEnd()
	return nil
}

func (a *App) handleTheme(args []string) tea.Cmd {
	if len(args) == 0 {
		a.appendOutput("Themes: " + strings.Join(themes.ListAvailableThemes(a.themesDir), ", "))
		return nil
	}
	theme, err := themes.GetTheme(a.themesDir, args[0])
	if err != nil {
		a.setError(err.Error())
		return nil
	}
	a.SetTheme(theme)
	a.setStatus("Theme set to " + theme.Meta.Name)
	return nil
}

func (a *App) handleTestToken() tea.Cmd {
	client := a.api
	return func() tea.Msg {
		ctx, cancel := requestContext()
		defer cancel()
		resp, err := client.TestToken(ctx)
		if err != nil {
			return OutputMsg{Err: fmt.Errorf("token test failed: %w", err)}
		}
		return OutputMsg{Lines: []string{"Token OK: " + resp.Message}}
	}
}

func (a *App) handleLogout() tea.Cmd {
	conn, client := a.conn, a.api
	return func() tea.Msg {
		conn.Disconnect()
		ctx, cancel := requestContext()
		defer cancel()
		if err := client.Logout(ctx); err != nil {
			return OutputMsg{Err: err}
		}
		// The view changes on SessionClearedMsg
		return nil
	}
}

// executeAdmin runs the admin console commands
func (a *App) executeAdmin(cmd *Command) tea.Cmd {
	client := a.api
	args := cmd.Args

	switch cmd.Name {
	case "users":
		return func() tea.Msg {
			ctx, cancel := requestContext()
			defer cancel()
			users, err := client.ListUsers(ctx)
			if err != nil {
				return OutputMsg{Err: err}
			}
			lines := []string{fmt.Sprintf("%d users", len(users))}
			for _, u := range users {
				lines = append(lines, formatUser(&u))
			}
			return OutputMsg{Lines: lines}
		}

	case "channels":
		return func() tea.Msg {
			ctx, cancel := requestContext()
			defer cancel()
			channels, err := client.ListChannels(ctx)
			if err != nil {
				return OutputMsg{Err: err}
			}
			lines := []string{fmt.Sprintf("%d channels", len(channels))}
			for _, ch := range channels {
				lines = append(lines, fmt.Sprintf("#%s  [%s]  id=%s", ch.Name, ch.Status, ch.ID))
			}
			return OutputMsg{Lines: lines}
		}

	case "members":
		return func() tea.Msg {
			ctx, cancel := requestContext()
			defer cancel()
			members, err := client.ListChannelMembers(ctx)
			if err != nil {
				return OutputMsg{Err: err}
			}
			lines := []string{fmt.Sprintf("%d memberships", len(members))}
			for _, m := range members {
				lines = append(lines, fmt.Sprintf("user %s (%s) in #%s", m.UserID, m.Email, m.ChannelName))
			}
			return OutputMsg{Lines: lines}
		}

	case "user":
		if len(args) != 1 {
			a.setError("usage: /user <id>")
			return nil
		}
		return func() tea.Msg {
			ctx, cancel := requestContext()
			defer cancel()
			user, err := client.GetUser(ctx, args[0])
			if err != nil {
				return OutputMsg{Err: err}
			}
			return OutputMsg{Lines: []string{formatUser(user)}}
		}

	case "add-channel":
		if len(args) < 1 {
			a.setError("usage: /add-channel <name>")
			return nil
		}
		req := models.AddChannelRequest{Name: strings.Join(args, "-")}
		return func() tea.Msg {
			ctx, cancel := requestContext()
			defer cancel()
			if err := client.AddChannel(ctx, req); err != nil {
				return OutputMsg{Err: err}
			}
			return OutputMsg{Lines: []string{"Channel #" + req.Name + " created"}}
		}

	case "add-user":
		if len(args) < 3 || len(args) > 4 {
			a.setError("usage: /add-user <email> <username> <password> [role]")
			return nil
		}
		req := models.AddUserRequest{
			Email:    args[0],
			Username: args[1],
			Password: args[2],
			Role:     models.RoleStudent,
		}
		if len(args) == 4 {
			req.Role = args[3]
		}
		return func() tea.Msg {
			ctx, cancel := requestContext()
			defer cancel()
			if err := client.AddUser(ctx, req); err != nil {
				return OutputMsg{Err: err}
			}
			return OutputMsg{Lines: []string{"User " + req.Email + " created as " + req.Role}}
		}
	}
	return nil
}

func formatUser(u *models.User) string {
	line := fmt.Sprintf("%s  %s", u.ID, u.Email)
	if u.Username != "" {
		line += "  @" + u.Username
	}
	if role := u.RoleName(); role != "" {
		line += "  [" + role + "]"
	}
	return line
}
