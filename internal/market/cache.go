// internal/market/cache.go
package market

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrCacheMiss is returned by Cache implementations when no value is stored.
var ErrCacheMiss = errors.New("price cache miss")

// Cache stores the last known good price per asset.
type Cache interface {
	SetPrice(ctx context.Context, mint string, price float64, ts time.Time) error
	GetPrice(ctx context.Context, mint string) (float64, time.Time, error)
}

type cached struct {
	price float64
	ts    time.Time
}

// MemoryCache is a process-local Cache.
type MemoryCache struct {
	mu     sync.RWMutex
	prices map[string]cached
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{prices: make(map[string]cached)}
}

func (m *MemoryCache) SetPrice(_ context.Context, mint string, price float64, ts time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if prev, ok := m.prices[mint]; ok && prev.ts.After(ts) {
		return nil
	}
	m.prices[mint] = cached{price: price, ts: ts}
	return nil
}

func (m *MemoryCache) GetPrice(_ context.Context, mint string) (float64, time.Time, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.prices[mint]
	if !ok {
		return 0, time.Time{}, ErrCacheMiss
	}
	return c.price, c.ts, nil
}
