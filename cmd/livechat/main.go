package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/fatih/color"
	"go.uber.org/zap"

	"github.com/concord-chat/livechat/internal/api"
	"github.com/concord-chat/livechat/internal/chat"
	"github.com/concord-chat/livechat/internal/config"
	"github.com/concord-chat/livechat/internal/observ"
	"github.com/concord-chat/livechat/internal/session"
	"github.com/concord-chat/livechat/internal/storage"
	"github.com/concord-chat/livechat/internal/themes"
	"github.com/concord-chat/livechat/internal/tui"
)

const version = "0.1.0"

const banner = `
  _     _            ____ _           _
 | |   (_)_   _____ / ___| |__   __ _| |_
 | |   | \ \ / / _ \ |   | '_ \ / _' | __|
 | |___| |\ V /  __/ |___| | | | (_| | |_
 |_____|_| \_/ \___|\____|_| |_|\__,_|\__|
`

func main() {
	// Parse command line flags
	configPath := flag.String("config", "", "Path to configuration file")
	serverURL := flag.String("server", "", "Backend base URL (overrides config)")
	themeName := flag.String("theme", "", "Theme name (overrides config)")
	dbPath := flag.String("db", "", "Path to the client database (overrides config)")
	flag.Parse()

	if err := run(*configPath, *serverURL, *themeName, *dbPath); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath, serverURL, themeName, dbPath string) error {
	if configPath == "" {
		configPath = config.Find()
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// Apply command line overrides
	if serverURL != "" {
		cfg.Server.BaseURL = serverURL
	}
	if themeName != "" {
		cfg.UI.Theme = themeName
	}
	if dbPath != "" {
		cfg.Storage.Path = dbPath
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	printBanner(cfg, configPath)

	logger, err := observ.NewLogger(cfg.Logging.Env, cfg.Logging.Level, cfg.Logging.File)
	if err != nil {
		return fmt.Errorf("creating logger: %w", err)
	}
	defer logger.Sync()

	store, err := storage.Open(cfg.Storage.Path)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer store.Close()

	ctx := context.Background()

	sess := session.New(store, logger)
	if _, err := sess.Restore(ctx); err != nil && !errors.Is(err, session.ErrNoSession) {
		logger.Warn("stored session discarded", zap.Error(err))
	}

	client := api.NewClient(cfg.Server.BaseURL, sess,
		api.WithLogger(logger),
		api.WithRetry(&api.RetryStrategy{
			MaxAttempts:   cfg.Retry.MaxAttempts,
			InitialDelay:  cfg.Retry.BaseDelay,
			MaxDelay:      cfg.Retry.MaxDelay,
			BackoffFactor: 2,
		}))

	messages := chat.NewStore(store, logger)
	if err := messages.LoadPins(ctx); err != nil {
		logger.Warn("pinned messages could not be restored", zap.Error(err))
	}

	conn := chat.NewConnection(chat.NewWebSocketDialer(cfg.Server.BaseURL), messages, chat.Config{
		Channel:          cfg.Chat.DefaultChannel,
		DropEmpty:        cfg.Chat.DropEmpty,
		MaxMessageLength: cfg.Chat.MaxMessageLength,
	}, logger)
	defer conn.Close()

	theme, err := themes.GetTheme(cfg.UI.ThemesDir, cfg.UI.Theme)
	if err != nil {
		logger.Warn("theme not found, using default", zap.String("theme", cfg.UI.Theme), zap.Error(err))
		theme = themes.GetDefaultTheme()
	}

	app := tui.New(tui.Options{
		API:        client,
		Session:    sess,
		Connection: conn,
		Channels:   cfg.Chat.Channels,
		Theme:      theme,
		ThemesDir:  cfg.UI.ThemesDir,
		Logger:     logger,
	})

	p := tea.NewProgram(app, tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("running program: %w", err)
	}
	return nil
}

func printBanner(cfg *config.Config, configPath string) {
	cyan := color.New(color.FgCyan)
	cyan.Print(banner)

	gray := color.New(color.FgHiBlack)
	gray.Printf("    terminal client v%s\n\n", version)

	if configPath == "" {
		configPath = "(defaults)"
	}
	green := color.New(color.FgGreen)
	green.Print("    ▶ ")
	fmt.Printf("Config:  %s\n", configPath)
	green.Print("    ▶ ")
	fmt.Printf("Server:  %s\n", cfg.Server.BaseURL)
	green.Print("    ▶ ")
	fmt.Printf("Log:     %s\n\n", cfg.Logging.File)
}
