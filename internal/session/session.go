// Package session holds the bearer token and the identity decoded from
// it. The token is the only source of identity: a session without a
// token has no identity.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/concord-chat/livechat/internal/observ"
	"github.com/concord-chat/livechat/internal/storage"
	"github.com/concord-chat/livechat/pkg/crypto"
)

// ErrNoSession is returned when no token has been stored
var ErrNoSession = errors.New("session: not logged in")

// Context is the process-wide session. It is passed explicitly to the
// API client, the UI and the connection wiring.
type Context struct {
	store  storage.Store
	logger *zap.Logger

	token    string
	identity *Identity
	onClear  []func()

	mu sync.RWMutex
}

// New creates an empty session backed by store
func New(store storage.Store, logger *zap.Logger) *Context {
	if store == nil {
		store = storage.NewMemoryStore()
	}
	return &Context{
		store:  store,
		logger: observ.OrNop(logger).Named("session"),
	}
}

// Init decodes token, persists it with its identity and makes it current.
// A token that cannot be decoded leaves the session untouched.
func (c *Context) Init(ctx context.Context, token string) (*Identity, error) {
	identity, err := DecodeToken(token)
	if err != nil {
		return nil, err
	}

	if err := c.store.Set(ctx, storage.KeyAccessToken, token); err != nil {
		return nil, fmt.Errorf("failed to persist token: %w", err)
	}
	if err := storage.SetJSON(ctx, c.store, storage.KeyUserData, identity.Claims); err != nil {
		return nil, fmt.Errorf("failed to persist user data: %w", err)
	}

	c.mu.Lock()
	c.token = token
	c.identity = identity
	c.mu.Unlock()

	c.logger.Info("session started",
		zap.String("user_id", identity.Subject),
		zap.String("role", identity.Role),
		zap.String("token", crypto.Fingerprint(token)))

	return identity, nil
}

// Restore reloads the stored token at startup. A stored token that no
// longer decodes is discarded and ErrMalformedToken returned.
func (c *Context) Restore(ctx context.Context) (*Identity, error) {
	token, err := c.store.Get(ctx, storage.KeyAccessToken)
	if errors.Is(err, storage.ErrNotFound) || (err == nil && token == "") {
		return nil, ErrNoSession
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load token: %w", err)
	}

	identity, err := DecodeToken(token)
	if err != nil {
		c.logger.Warn("discarding stored token", zap.Error(err))
		if delErr := c.store.Delete(ctx, storage.KeyAccessToken, storage.KeyUserData); delErr != nil {
			c.logger.Error("failed to delete stored token", zap.Error(delErr))
		}
		return nil, err
	}

	c.mu.Lock()
	c.token = token
	c.identity = identity
	c.mu.Unlock()

	c.logger.Info("session restored",
		zap.String("user_id", identity.Subject),
		zap.String("token", crypto.Fingerprint(token)))

	return identity, nil
}

// Clear drops the token and identity, in memory and in storage, then
// notifies OnClear listeners. It is safe to call when already cleared.
func (c *Context) Clear(ctx context.Context) error {
	c.mu.Lock()
	hadToken := c.token != ""
	c.token = ""
	c.identity = nil
	listeners := append([]func(){}, c.onClear...)
	c.mu.Unlock()

	err := c.store.Delete(ctx, storage.KeyAccessToken, storage.KeyUserData)
	if err != nil {
		err = fmt.Errorf("failed to delete session: %w", err)
	}

	if hadToken {
		c.logger.Info("session cleared")
		for _, fn := range listeners {
			fn()
		}
	}
	return err
}

// OnClear registers fn to run after the session is cleared
func (c *Context) OnClear(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onClear = append(c.onClear, fn)
}

// Token returns the bearer token, or "" when logged out
func (c *Context) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// Identity returns a copy of the decoded identity, or nil when logged out
func (c *Context) Identity() *Identity {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.identity == nil {
		return nil
	}
	identity := *c.identity
	return &identity
}

// Authenticated returns true while a token is held
func (c *Context) Authenticated() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token != ""
}

// Credentials returns the token and user id needed to open the chat
// connection. Either may be empty.
func (c *Context) Credentials() (token, userID string) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token, c.identity.UserID()
}
