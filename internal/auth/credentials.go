// Package auth manages the bearer token for the shop API: the browser-driven
// login that produces it and the shared holder that refreshes it when the
// server reports it expired.
package auth

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Provider obtains a fresh bearer token. Implemented by BrowserLogin in
// production and by test stubs.
type Provider interface {
	Authenticate(ctx context.Context) (string, error)
}

// Credentials holds the current bearer token and serializes re-acquisition.
// Concurrent EnsureRefreshed callers share a single login attempt.
type Credentials struct {
	provider Provider
	log      *zap.Logger

	mu     sync.RWMutex
	token  string
	header string

	group singleflight.Group
}

// NewCredentials returns a Credentials holder with no token yet.
func NewCredentials(provider Provider, log *zap.Logger) *Credentials {
	return &Credentials{provider: provider, log: log}
}

// AuthorizationHeader returns the current "Bearer ..." header value, or the
// empty string when no token is held.
func (c *Credentials) AuthorizationHeader() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.header
}

// Token returns the current bearer token.
func (c *Credentials) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// SetToken replaces the held token. Subsequent AuthorizationHeader calls
// observe the new value atomically.
func (c *Credentials) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.header = "Bearer " + token
	c.mu.Unlock()

	if exp, err := TokenExpiry(token); err == nil {
		c.log.Info("bearer token updated", zap.Time("expires_at", exp))
	} else {
		c.log.Info("bearer token updated", zap.String("expiry", "unknown"))
	}
}

// EnsureRefreshed acquires a fresh token through the provider. Callers that
// arrive while a refresh is in flight wait for that refresh and share its
// outcome rather than starting another login. On failure the previous token
// is left in place.
func (c *Credentials) EnsureRefreshed(ctx context.Context) error {
	_, err, shared := c.group.Do("refresh", func() (interface{}, error) {
		token, err := c.provider.Authenticate(ctx)
		if err != nil {
			return nil, fmt.Errorf("token refresh failed: %w", err)
		}
		c.SetToken(token)
		return token, nil
	})
	if shared {
		c.log.Debug("token refresh shared with concurrent caller")
	}
	return err
}
