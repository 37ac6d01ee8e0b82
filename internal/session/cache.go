// Package session keeps decrypted signing keys in process memory for users
// who have unlocked their wallet.
package session

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

const DefaultTTL = 30 * time.Minute

type entry struct {
	key      []byte
	lastUsed time.Time
}

// Cache is safe for concurrent use. Keys are never logged or persisted.
type Cache struct {
	mu      sync.Mutex
	entries map[int64]*entry
	ttl     time.Duration
	now     func() time.Time
	logger  *zap.Logger
}

// NewCache создает кеш сессий с заданным временем простоя.
func NewCache(ttl time.Duration, logger *zap.Logger) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{
		entries: make(map[int64]*entry),
		ttl:     ttl,
		now:     time.Now,
		logger:  logger.Named("session"),
	}
}

// Put stores a copy of key, replacing (and wiping) any previous session.
func (c *Cache) Put(userID int64, key []byte) {
	stored := make([]byte, len(key))
	copy(stored, key)

	c.mu.Lock()
	defer c.mu.Unlock()
	if old, ok := c.entries[userID]; ok {
		wipe(old.key)
	}
	c.entries[userID] = &entry{key: stored, lastUsed: c.now()}
	c.logger.Debug("Session opened", zap.Int64("user_id", userID))
}

// Get returns a copy of the key and refreshes the idle timer.
func (c *Cache) Get(userID int64) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[userID]
	if !ok {
		return nil, false
	}
	now := c.now()
	if now.Sub(e.lastUsed) >= c.ttl {
		c.removeLocked(userID, e, "expired")
		return nil, false
	}
	e.lastUsed = now

	out := make([]byte, len(e.key))
	copy(out, e.key)
	return out, true
}

// Has reports whether a live session exists without refreshing it.
func (c *Cache) Has(userID int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[userID]
	return ok && c.now().Sub(e.lastUsed) < c.ttl
}

// Invalidate removes the session and zeroes the stored key.
func (c *Cache) Invalidate(userID int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[userID]; ok {
		c.removeLocked(userID, e, "invalidated")
	}
}

// Sweep removes expired sessions and returns how many were dropped.
func (c *Cache) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	n := 0
	for id, e := range c.entries {
		if now.Sub(e.lastUsed) >= c.ttl {
			c.removeLocked(id, e, "expired")
			n++
		}
	}
	return n
}

// Len returns the number of stored sessions, expired or not.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Run sweeps periodically until ctx is done, then wipes every session.
func (c *Cache) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.Clear()
			return
		case <-ticker.C:
			if n := c.Sweep(); n > 0 {
				c.logger.Info("Expired sessions removed", zap.Int("count", n))
			}
		}
	}
}

// Clear wipes all sessions.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, e := range c.entries {
		c.removeLocked(id, e, "cleared")
	}
}

func (c *Cache) removeLocked(userID int64, e *entry, reason string) {
	wipe(e.key)
	delete(c.entries, userID)
	c.logger.Debug("Session closed", zap.Int64("user_id", userID), zap.String("reason", reason))
}

func wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
