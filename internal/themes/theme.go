package themes

import (
	"fmt"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/pelletier/go-toml/v2"

	"github.com/concord-chat/livechat/internal/models"
)

// Theme is a colour theme for the terminal client
type Theme struct {
	Meta     ThemeMeta      `toml:"meta"`
	Colors   ThemeColors    `toml:"colors"`
	Semantic SemanticColors `toml:"semantic"`
}

// ThemeMeta contains metadata about the theme
type ThemeMeta struct {
	Name    string `toml:"name"`
	Author  string `toml:"author"`
	Variant string `toml:"variant"` // "dark" or "light"
}

// ThemeColors contains the base palette
type ThemeColors struct {
	Background string `toml:"background"`
	Selection  string `toml:"selection"`
	Foreground string `toml:"foreground"`
	Comment    string `toml:"comment"`
	Red        string `toml:"red"`
	Orange     string `toml:"orange"`
	Yellow     string `toml:"yellow"`
	Green      string `toml:"green"`
	Cyan       string `toml:"cyan"`
	Purple     string `toml:"purple"`
	Pink       string `toml:"pink"`
}

// SemanticColors maps colours to UI purposes. Empty values fall back
// to the palette.
type SemanticColors struct {
	UsernameSelf  string `toml:"username_self"`
	UsernameOther string `toml:"username_other"`
	System        string `toml:"system"`
	Pinned        string `toml:"pinned"`
	Border        string `toml:"border"`
	BorderFocus   string `toml:"border_focus"`
	Error         string `toml:"error"`
	Warning       string `toml:"warning"`
	Success       string `toml:"success"`
	Info          string `toml:"info"`
}

// Styles contains pre-computed lipgloss styles for a theme
type Styles struct {
	Title    lipgloss.Style
	Subtitle lipgloss.Style
	Label    lipgloss.Style
	Help     lipgloss.Style

	Sidebar        lipgloss.Style
	SidebarHeader  lipgloss.Style
	Channel        lipgloss.Style
	ChannelActive  lipgloss.Style
	PinnedItem     lipgloss.Style
	ChatHeader     lipgloss.Style
	MessageContent lipgloss.Style
	Timestamp      lipgloss.Style
	UsernameSelf   lipgloss.Style
	UsernameOther  lipgloss.Style
	SystemMessage  lipgloss.Style
	NonJSON        lipgloss.Style
	PinMarker      lipgloss.Style

	Input        lipgloss.Style
	InputFocused lipgloss.Style
	Box          lipgloss.Style
	StatusBar    lipgloss.Style

	Error   lipgloss.Style
	Warning lipgloss.Style
	Success lipgloss.Style
	Info    lipgloss.Style
}

// LoadTheme loads a theme from a TOML file
func LoadTheme(path string) (*Theme, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read theme file: %w", err)
	}
	return parseTheme(data)
}

func parseTheme(data []byte) (*Theme, error) {
	theme := GetDefaultTheme()
	if err := toml.Unmarshal(data, theme); err != nil {
		return nil, fmt.Errorf("failed to parse theme file: %w", err)
	}
	return theme, nil
}

func pick(value, fallback string) lipgloss.Color {
	if value != "" {
		return lipgloss.Color(value)
	}
	return lipgloss.Color(fallback)
}

// BuildStyles creates lipgloss styles from a theme
func (t *Theme) BuildStyles() *Styles {
	c, sem := t.Colors, t.Semantic
	border := pick(sem.Border, c.Comment)
	focus := pick(sem.BorderFocus, c.Purple)

	s := &Styles{}

	s.Title = lipgloss.NewStyle().
		Foreground(lipgloss.Color(c.Purple)).
		Bold(true)

	s.Subtitle = lipgloss.NewStyle().
		Foreground(lipgloss.Color(c.Comment)).
		Italic(true)

	s.Label = lipgloss.NewStyle().
		Foreground(lipgloss.Color(c.Cyan)).
		Width(10)

	s.Help = lipgloss.NewStyle().
		Foreground(lipgloss.Color(c.Comment)).
		Faint(true)

	// Sidebar
	s.Sidebar = lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder(), false, true, false, false).
		BorderForeground(lipgloss.Color(c.Selection))

	s.SidebarHeader = lipgloss.NewStyle().
		Foreground(lipgloss.Color(c.Comment)).
		Bold(true).
		PaddingLeft(1)

	s.Channel = lipgloss.NewStyle().
		Foreground(lipgloss.Color(c.Comment)).
		PaddingLeft(1)

	s.ChannelActive = lipgloss.NewStyle().
		Foreground(lipgloss.Color(c.Foreground)).
		Background(lipgloss.Color(c.Selection)).
		Bold(true).
		PaddingLeft(1)

	s.PinnedItem = lipgloss.NewStyle().
		Foreground(pick(sem.Pinned, c.Yellow)).
		PaddingLeft(1)

	// Chat
	s.ChatHeader = lipgloss.NewStyle().
		Foreground(lipgloss.Color(c.Foreground)).
		Background(lipgloss.Color(c.Selection)).
		Bold(true).
		Padding(0, 1)

	s.MessageContent = lipgloss.NewStyle().
		Foreground(lipgloss.Color(c.Foreground))

	s.Timestamp = lipgloss.NewStyle().
		Foreground(lipgloss.Color(c.Comment)).
		Faint(true)

	s.UsernameSelf = lipgloss.NewStyle().
		Foreground(pick(sem.UsernameSelf, c.Purple)).
		Bold(true)

	s.UsernameOther = lipgloss.NewStyle().
		Foreground(pick(sem.UsernameOther, c.Cyan)).
		Bold(true)

	s.SystemMessage = lipgloss.NewStyle().
		Foreground(pick(sem.System, c.Comment)).
		Italic(true)

	s.NonJSON = lipgloss.NewStyle().
		Foreground(pick(sem.Warning, c.Orange))

	s.PinMarker = lipgloss.NewStyle().
		Foreground(pick(sem.Pinned, c.Yellow))

	// Input and containers
	s.Input = lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(border).
		Padding(0, 1)

	s.InputFocused = s.Input.
		BorderForeground(focus)

	s.Box = lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(focus).
		Padding(1, 2)

	s.StatusBar = lipgloss.NewStyle().
		Background(lipgloss.Color(c.Selection)).
		Foreground(lipgloss.Color(c.Foreground)).
		Padding(0, 1)

	// Feedback
	s.Error = lipgloss.NewStyle().Foreground(pick(sem.Error, c.Red))
	s.Warning = lipgloss.NewStyle().Foreground(pick(sem.Warning, c.Orange))
	s.Success = lipgloss.NewStyle().Foreground(pick(sem.Success, c.Green))
	s.Info = lipgloss.NewStyle().Foreground(pick(sem.Info, c.Cyan))

	return s
}

// StateStyle returns the style used to show a connection state
func (s *Styles) StateStyle(state models.ConnectionState) lipgloss.Style {
	switch state {
	case models.StateOpen:
		return s.Success
	case models.StateConnecting:
		return s.Warning
	case models.StateErrored:
		return s.Error
	default:
		return s.Help
	}
}

// GetDefaultTheme returns the built-in Dracula theme
func GetDefaultTheme() *Theme {
	return &Theme{
		Meta: ThemeMeta{
			Name:    "Dracula",
			Author:  "Zeno Rocha",
			Variant: "dark",
		},
		Colors: ThemeColors{
			Background: "#282A36",
			Selection:  "#44475A",
			Foreground: "#F8F8F2",
			Comment:    "#6272A4",
			Red:        "#FF5555",
			Orange:     "#FFB86C",
			Yellow:     "#F1FA8C",
			Green:      "#50FA7B",
			Cyan:       "#8BE9FD",
			Purple:     "#BD93F9",
			Pink:       "#FF79C6",
		},
	}
}
