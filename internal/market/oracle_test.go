package market

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/rovshanmuradov/sentinel-bot/internal/types"
)

type stubProvider struct {
	name  string
	price float64
	err   error
	delay time.Duration
	calls atomic.Int32
}

func (s *stubProvider) Name() string { return s.name }

func (s *stubProvider) Price(ctx context.Context, _ string) (float64, error) {
	s.calls.Add(1)
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
	return s.price, s.err
}

type recordingObserver struct {
	mu      sync.Mutex
	results map[string][]bool
}

func (r *recordingObserver) ObservePriceFetch(provider string, ok bool, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.results == nil {
		r.results = make(map[string][]bool)
	}
	r.results[provider] = append(r.results[provider], ok)
}

func TestOraclePrimaryWins(t *testing.T) {
	primary := &stubProvider{name: "jupiter", price: 1.3}
	secondary := &stubProvider{name: "dexscreener", price: 9}
	o := NewOracle(Config{}, nil, zaptest.NewLogger(t), primary, secondary)

	p, err := o.Price(context.Background(), testMint)
	require.NoError(t, err)
	assert.Equal(t, 1.3, p.Value)
	assert.Equal(t, "jupiter", p.Source)
	assert.False(t, p.Stale)
	assert.Zero(t, secondary.calls.Load())
}

func TestOracleFallsThroughOnFailureAndBadValues(t *testing.T) {
	primary := &stubProvider{name: "jupiter", err: errors.New("boom")}
	zero := &stubProvider{name: "zero", price: 0}
	secondary := &stubProvider{name: "dexscreener", price: 0.85}
	obs := &recordingObserver{}
	o := NewOracle(Config{}, nil, zaptest.NewLogger(t), primary, zero, secondary)
	o.SetObserver(obs)

	p, err := o.Price(context.Background(), testMint)
	require.NoError(t, err)
	assert.Equal(t, 0.85, p.Value)
	assert.Equal(t, "dexscreener", p.Source)
	assert.Equal(t, []bool{false}, obs.results["jupiter"])
	assert.Equal(t, []bool{false}, obs.results["zero"])
	assert.Equal(t, []bool{true}, obs.results["dexscreener"])
}

func TestOracleProviderTimeout(t *testing.T) {
	slow := &stubProvider{name: "slow", price: 1, delay: time.Second}
	fast := &stubProvider{name: "fast", price: 2}
	o := NewOracle(Config{ProviderTimeout: 20 * time.Millisecond}, nil, zaptest.NewLogger(t), slow, fast)

	start := time.Now()
	p, err := o.Price(context.Background(), testMint)
	require.NoError(t, err)
	assert.Equal(t, 2.0, p.Value)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestOracleStaleCacheWhenAllFail(t *testing.T) {
	provider := &stubProvider{name: "jupiter", price: 1.1}
	o := NewOracle(Config{}, NewMemoryCache(), zaptest.NewLogger(t), provider)
	observed := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	o.now = func() time.Time { return observed }

	_, err := o.Price(context.Background(), testMint)
	require.NoError(t, err)

	provider.err = errors.New("down")
	p, err := o.Price(context.Background(), testMint)
	require.NoError(t, err)
	assert.True(t, p.Stale)
	assert.Equal(t, SourceCache, p.Source)
	assert.Equal(t, 1.1, p.Value)
	assert.Equal(t, observed, p.ObservedAt)
	assert.Equal(t, 2*time.Minute, p.Age(observed.Add(2*time.Minute)))
}

func TestOracleReferenceFallback(t *testing.T) {
	down := &stubProvider{name: "jupiter", err: errors.New("down")}
	o := NewOracle(Config{ReferenceFallback: 150}, nil, zaptest.NewLogger(t), down)

	p, err := o.ReferencePrice(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 150.0, p.Value)
	assert.Equal(t, SourceFallback, p.Source)
	assert.True(t, p.Stale)
	assert.True(t, p.ObservedAt.IsZero())
	assert.Greater(t, p.Age(time.Now()), 24*time.Hour)
}

func TestOracleUnavailable(t *testing.T) {
	down := &stubProvider{name: "jupiter", err: errors.New("down")}
	o := NewOracle(Config{ReferenceFallback: 150}, nil, zaptest.NewLogger(t), down)

	p, err := o.Price(context.Background(), testMint)
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrDataUnavailable)
	assert.Zero(t, p.Value)
}

func TestOracleSkipsUnsupportedScopedProvider(t *testing.T) {
	cg := NewCoinGecko("http://127.0.0.1:1", nil)
	o := NewOracle(Config{}, nil, zaptest.NewLogger(t), cg)

	_, err := o.Price(context.Background(), testMint)
	assert.ErrorIs(t, err, types.ErrDataUnavailable)
}

func TestOracleCollapsesConcurrentRequests(t *testing.T) {
	provider := &stubProvider{name: "jupiter", price: 3, delay: 50 * time.Millisecond}
	o := NewOracle(Config{}, nil, zaptest.NewLogger(t), provider)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p, err := o.Price(context.Background(), testMint)
			assert.NoError(t, err)
			assert.Equal(t, 3.0, p.Value)
		}()
	}
	wg.Wait()
	assert.Less(t, provider.calls.Load(), int32(10))
}

func TestOracleCancelledContext(t *testing.T) {
	provider := &stubProvider{name: "jupiter", price: 3}
	o := NewOracle(Config{}, nil, zaptest.NewLogger(t), provider)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := o.Price(ctx, testMint)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, provider.calls.Load())
}

func TestMemoryCacheKeepsNewest(t *testing.T) {
	c := NewMemoryCache()
	ctx := context.Background()
	now := time.Now()

	_, _, err := c.GetPrice(ctx, testMint)
	assert.ErrorIs(t, err, ErrCacheMiss)

	require.NoError(t, c.SetPrice(ctx, testMint, 2, now))
	require.NoError(t, c.SetPrice(ctx, testMint, 1, now.Add(-time.Minute)))

	v, ts, err := c.GetPrice(ctx, testMint)
	require.NoError(t, err)
	assert.Equal(t, 2.0, v)
	assert.Equal(t, now, ts)
}
