package authclient

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/yeiniel/authfacade/oidc"
)

// Session is a signed in user.
type Session struct {
	// Token returned by the code exchange.
	Token oidc.Token

	// Claims are the verified id_token claims, merged with the userinfo
	// claims when they were fetched.
	Claims Profile

	// ExpiresAt is the id_token expiry. A zero value never expires.
	ExpiresAt time.Time
}

// Cache stores the session of the user agent.
type Cache interface {
	Get(ctx context.Context) (*Session, error)
	Set(ctx context.Context, s *Session) error
	Clear(ctx context.Context) error
}

// MemoryCache is a Cache kept in process memory.
type MemoryCache struct {
	mu      sync.RWMutex
	session *Session
}

var _ Cache = (*MemoryCache)(nil)

// NewMemoryCache returns an empty MemoryCache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{}
}

// Get returns the session or nil when there is none.
func (c *MemoryCache) Get(_ context.Context) (*Session, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.session, nil
}

// Set replaces the session.
func (c *MemoryCache) Set(_ context.Context, s *Session) error {
	const op = "MemoryCache.Set"
	if s == nil {
		return fmt.Errorf("%s: session is nil: %w", op, ErrNilParameter)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.session = s
	return nil
}

// Clear removes the session.
func (c *MemoryCache) Clear(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.session = nil
	return nil
}
