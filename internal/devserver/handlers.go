package devserver

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/concord-chat/livechat/internal/models"
)

type loginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// handleLogin handles POST /login
func (s *Server) handleLogin(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"detail": err.Error()})
		return
	}

	user, ok := s.directory.Authenticate(req.Email, req.Password)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"detail": "Invalid email or password"})
		return
	}

	token, err := GenerateToken(user, s.config.JWTSecret, s.config.TokenTTL)
	if err != nil {
		s.logger.Error("failed to create token", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "Internal server error"})
		return
	}

	s.logger.Info("login", zap.String("user_id", user.ID.String()), zap.String("role", user.Role))
	c.JSON(http.StatusOK, gin.H{
		"access_token": token,
		"token_type":   "bearer",
		"user":         user,
	})
}

// handleProtected handles POST /protected, the token test route
func (s *Server) handleProtected(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"message": "Protected resource accessed",
		"user_id": c.GetString(contextKeyUserID),
		"role":    c.GetString(contextKeyRole),
	})
}

func (s *Server) handleUserList(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"users": s.directory.Users()})
}

func (s *Server) handleChannelList(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"channel": s.directory.Channels()})
}

func (s *Server) handleUserChannelList(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"UserInfo": s.directory.Members()})
}

func (s *Server) handleGetUser(c *gin.Context) {
	user, err := s.directory.User(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"detail": "User not found"})
		return
	}
	c.JSON(http.StatusOK, user)
}

func (s *Server) handleAddUser(c *gin.Context) {
	var req models.AddUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"detail": err.Error()})
		return
	}

	user, err := s.directory.AddUser(req)
	if errors.Is(err, ErrUserExists) {
		c.JSON(http.StatusConflict, gin.H{"detail": err.Error()})
		return
	}
	if err != nil {
		s.logger.Error("failed to add user", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "Internal server error"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "User created", "user": user})
}

func (s *Server) handleAddChannel(c *gin.Context) {
	var req models.AddChannelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"detail": err.Error()})
		return
	}

	ch, err := s.directory.AddChannel(req)
	if errors.Is(err, ErrChannelExists) {
		c.JSON(http.StatusConflict, gin.H{"detail": err.Error()})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "Internal server error"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "Channel created", "channel": ch})
}

// handleWebSocket upgrades GET /user/:id/websocketTest. The token query
// parameter must be valid and name the same user as the path.
func (s *Server) handleWebSocket(c *gin.Context) {
	userID := c.Param("id")

	claims, err := ParseToken(c.Query("token"), s.config.JWTSecret)
	if err != nil || claims.Subject != userID {
		c.JSON(http.StatusUnauthorized, gin.H{"detail": "Invalid token for user"})
		return
	}
	if q := c.Query("user_id"); q != "" && q != userID {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "user_id does not match path"})
		return
	}

	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	client := newClient(conn, s.hub, userID, s.logger)
	if !s.hub.join(client) {
		conn.Close()
		return
	}

	// Start client pumps
	go client.writePump()
	go client.readPump()
}
