package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"go.uber.org/zap"

	"github.com/concord-chat/livechat/internal/devserver"
	"github.com/concord-chat/livechat/internal/models"
	"github.com/concord-chat/livechat/internal/observ"
	"github.com/concord-chat/livechat/pkg/crypto"
)

const banner = `
  _ _            _           _
 | (_)_   _____ | |__   __ _| |_   ___  ___ _ ____   _____ _ __
 | | \ \ / / _ \| '_ \ / _' | __| / __|/ _ \ '__\ \ / / _ \ '__|
 | | |\ V /  __/| | | | (_| | |_  \__ \  __/ |   \ V /  __/ |
 |_|_| \_/ \___||_| |_|\__,_|\__| |___/\___|_|    \_/ \___|_|
`

// seedPassword is the password of every seeded account
const seedPassword = "password123"

func main() {
	addr := flag.String("addr", devserver.DefaultConfig().Addr, "Address to listen on")
	secret := flag.String("secret", os.Getenv("LIVECHAT_JWT_SECRET"), "JWT signing secret (random if empty)")
	ttl := flag.Duration("token-ttl", devserver.DefaultConfig().TokenTTL, "Token lifetime")
	env := flag.String("env", "development", "Logging environment")
	level := flag.String("log-level", "info", "Log level")
	noSeed := flag.Bool("no-seed", false, "Start without the demo accounts")
	flag.Parse()

	if err := run(*addr, *secret, *ttl, *env, *level, !*noSeed); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(addr, secret string, ttl time.Duration, env, level string, seed bool) error {
	logger, err := observ.NewLogger(env, level, "")
	if err != nil {
		return fmt.Errorf("creating logger: %w", err)
	}
	defer logger.Sync()

	if secret == "" {
		if secret, err = crypto.GenerateSecret(32); err != nil {
			return err
		}
		logger.Info("generated signing secret", zap.String("fingerprint", crypto.Fingerprint(secret)))
	}

	srv, err := devserver.New(&devserver.Config{Addr: addr, JWTSecret: secret, TokenTTL: ttl}, logger)
	if err != nil {
		return err
	}

	cyan := color.New(color.FgCyan)
	cyan.Print(banner)
	green := color.New(color.FgGreen)
	green.Print("    ▶ ")
	fmt.Printf("HTTP:      http://%s\n", addr)
	green.Print("    ▶ ")
	fmt.Printf("WebSocket: ws://%s/user/{id}/websocketTest\n", addr)

	if seed {
		accounts := []struct{ email, username, role string }{
			{"admin@example.com", "admin", models.RoleAdmin},
			{"teacher@example.com", "teacher", models.RoleTeacher},
			{"alice@example.com", "alice", models.RoleStudent},
			{"bob@example.com", "bob", models.RoleStudent},
		}
		yellow := color.New(color.FgYellow)
		for _, acct := range accounts {
			user, err := srv.Seed(acct.email, acct.username, seedPassword, acct.role)
			if err != nil {
				return fmt.Errorf("seeding %s: %w", acct.email, err)
			}
			yellow.Print("    ● ")
			fmt.Printf("%-22s id=%-3s %s\n", user.Email, user.ID, user.Role)
		}
		color.New(color.FgHiBlack).Printf("    password for every account: %s\n", seedPassword)
	}
	fmt.Println()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return srv.Run(ctx)
}
