package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.t
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	f.t = f.t.Add(d)
	f.mu.Unlock()
}

func newTestCache(t *testing.T, ttl time.Duration) (*Cache, *fakeClock) {
	clock := &fakeClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	c := NewCache(ttl, zaptest.NewLogger(t))
	c.now = clock.Now
	return c, clock
}

func TestPutGetReturnsCopy(t *testing.T) {
	c, _ := newTestCache(t, time.Minute)
	key := []byte{1, 2, 3, 4}
	c.Put(7, key)

	key[0] = 99 // caller's slice is not aliased

	got, ok := c.Get(7)
	require.True(t, ok)
	assert.Equal(t, []byte{1, 2, 3, 4}, got)

	got[1] = 42
	again, _ := c.Get(7)
	assert.Equal(t, []byte{1, 2, 3, 4}, again)
}

func TestGetMissing(t *testing.T) {
	c, _ := newTestCache(t, time.Minute)
	_, ok := c.Get(1)
	assert.False(t, ok)
}

func TestInvalidateWipesKey(t *testing.T) {
	c, _ := newTestCache(t, time.Minute)
	c.Put(1, []byte{5, 5, 5})

	stored := c.entries[1].key
	c.Invalidate(1)

	assert.Equal(t, []byte{0, 0, 0}, stored)
	_, ok := c.Get(1)
	assert.False(t, ok)
	assert.Zero(t, c.Len())

	c.Invalidate(1) // no-op when absent
}

func TestIdleExpiryAndRefresh(t *testing.T) {
	c, clock := newTestCache(t, 10*time.Minute)
	c.Put(1, []byte{1})

	clock.Advance(9 * time.Minute)
	_, ok := c.Get(1)
	require.True(t, ok, "access within ttl refreshes the session")

	clock.Advance(9 * time.Minute)
	assert.True(t, c.Has(1))

	clock.Advance(time.Minute)
	assert.False(t, c.Has(1))
	_, ok = c.Get(1)
	assert.False(t, ok)
	assert.Zero(t, c.Len())
}

func TestSweep(t *testing.T) {
	c, clock := newTestCache(t, time.Minute)
	c.Put(1, []byte{1})
	clock.Advance(30 * time.Second)
	c.Put(2, []byte{2})
	clock.Advance(40 * time.Second)

	assert.Equal(t, 1, c.Sweep())
	assert.False(t, c.Has(1))
	assert.True(t, c.Has(2))
}

func TestPutReplacesAndWipesPrevious(t *testing.T) {
	c, _ := newTestCache(t, time.Minute)
	c.Put(1, []byte{7, 7})
	old := c.entries[1].key

	c.Put(1, []byte{8, 8})
	assert.Equal(t, []byte{0, 0}, old)
	got, _ := c.Get(1)
	assert.Equal(t, []byte{8, 8}, got)
}

func TestRunClearsOnCancel(t *testing.T) {
	c, _ := newTestCache(t, time.Minute)
	c.Put(1, []byte{1})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Run(ctx, time.Millisecond)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
	assert.Zero(t, c.Len())
}

func TestConcurrentAccess(t *testing.T) {
	c := NewCache(time.Minute, zaptest.NewLogger(t))
	var wg sync.WaitGroup
	for i := int64(0); i < 16; i++ {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			c.Put(id%4, []byte{byte(id)})
			c.Get(id % 4)
			if id%3 == 0 {
				c.Invalidate(id % 4)
			}
		}(i)
	}
	wg.Wait()
	assert.LessOrEqual(t, c.Len(), 4)
}
