// Package devserver is a stand-in for the chat backend. It serves the
// endpoints the client consumes (login, token test, admin console and
// the real-time socket) from memory so the client can be run and
// tested without the real service.
package devserver

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/concord-chat/livechat/internal/models"
	"github.com/concord-chat/livechat/internal/observ"
)

// Config holds the dev server configuration
type Config struct {
	Addr      string
	JWTSecret string
	TokenTTL  time.Duration
}

// DefaultConfig returns the default dev server configuration
func DefaultConfig() *Config {
	return &Config{
		Addr:     "127.0.0.1:8000",
		TokenTTL: 24 * time.Hour,
	}
}

// Server is the dev backend
type Server struct {
	config    *Config
	hub       *Hub
	directory *Directory
	engine    *gin.Engine
	upgrader  websocket.Upgrader
	logger    *zap.Logger
}

// New creates a dev server. The hub is not running until Run or Start.
func New(config *Config, logger *zap.Logger) (*Server, error) {
	if config.JWTSecret == "" {
		return nil, fmt.Errorf("jwt secret is required")
	}
	if config.TokenTTL <= 0 {
		config.TokenTTL = DefaultConfig().TokenTTL
	}

	logger = observ.OrNop(logger).Named("devserver")
	s := &Server{
		config:    config,
		hub:       NewHub(logger.Named("hub")),
		directory: NewDirectory(),
		logger:    logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
	s.engine = s.routes()
	return s, nil
}

// Directory returns the user and channel registry
func (s *Server) Directory() *Directory {
	return s.directory
}

// Hub returns the real-time relay
func (s *Server) Hub() *Hub {
	return s.hub
}

// Handler returns the HTTP handler serving every endpoint
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Start runs the hub in the background until ctx is done
func (s *Server) Start(ctx context.Context) {
	go s.hub.Run(ctx)
}

// Run serves on the configured address until ctx is done
func (s *Server) Run(ctx context.Context) error {
	s.Start(ctx)

	httpServer := &http.Server{
		Addr:        s.config.Addr,
		Handler:     s.engine,
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		s.logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("http server shutdown error", zap.Error(err))
		}
	}()

	s.logger.Info("dev server starting",
		zap.String("addr", s.config.Addr),
		zap.String("websocket", fmt.Sprintf("ws://%s/user/{id}/websocketTest", s.config.Addr)))

	if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

func (s *Server) routes() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLogger())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "time": time.Now().UTC()})
	})
	r.POST("/login", s.handleLogin)
	r.GET("/user/:id/websocketTest", s.handleWebSocket)

	authed := r.Group("/", authMiddleware(s.config.JWTSecret))
	authed.POST("/protected", s.handleProtected)

	admin := r.Group("/admin", authMiddleware(s.config.JWTSecret), requireAdmin())
	admin.GET("/get_user_list", s.handleUserList)
	admin.GET("/get_channel_list", s.handleChannelList)
	admin.GET("/get_userinfo_at_channel", s.handleUserChannelList)
	admin.GET("/user/:id", s.handleGetUser)
	admin.POST("/add_user", s.handleAddUser)
	admin.POST("/add_channel", s.handleAddChannel)

	return r
}

// requestLogger logs each request through zap
func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)))
	}
}

// Seed adds a user, for startup fixtures and tests
func (s *Server) Seed(email, username, password, role string) (*models.User, error) {
	return s.directory.AddUser(models.AddUserRequest{
		Email:    email,
		Username: username,
		Password: password,
		Role:     role,
	})
}
