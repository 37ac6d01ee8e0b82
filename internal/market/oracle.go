// internal/market/oracle.go
package market

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/rovshanmuradov/sentinel-bot/internal/types"
)

const (
	DefaultProviderTimeout = 5 * time.Second

	SourceCache    = "cache"
	SourceFallback = "fallback"
)

// Price is a USD quote for one whole token.
type Price struct {
	Value      float64
	ObservedAt time.Time
	Source     string
	Stale      bool
}

// Age returns how old the observation is. A price with no timestamp is
// treated as infinitely old.
func (p Price) Age(now time.Time) time.Duration {
	if p.ObservedAt.IsZero() {
		return time.Duration(math.MaxInt64)
	}
	return now.Sub(p.ObservedAt)
}

// Observer receives provider outcomes, e.g. for metrics.
type Observer interface {
	ObservePriceFetch(provider string, ok bool, d time.Duration)
}

type Config struct {
	ProviderTimeout time.Duration
	// ReferenceMint gets ReferenceFallback when every source fails.
	ReferenceMint     string
	ReferenceFallback float64
}

// Oracle queries providers in order and falls back to the last known good value.
type Oracle struct {
	providers []Provider
	cache     Cache
	cfg       Config
	group     singleflight.Group
	observer  Observer
	logger    *zap.Logger
	now       func() time.Time
}

func NewOracle(cfg Config, cache Cache, logger *zap.Logger, providers ...Provider) *Oracle {
	if cfg.ProviderTimeout <= 0 {
		cfg.ProviderTimeout = DefaultProviderTimeout
	}
	if cfg.ReferenceMint == "" {
		cfg.ReferenceMint = types.SOLMint
	}
	if cache == nil {
		cache = NewMemoryCache()
	}
	return &Oracle{
		providers: providers,
		cache:     cache,
		cfg:       cfg,
		logger:    logger.Named("oracle"),
		now:       time.Now,
	}
}

// SetObserver installs an outcome observer. Call before use.
func (o *Oracle) SetObserver(obs Observer) {
	o.observer = obs
}

// Price returns a positive USD price or an error wrapping types.ErrDataUnavailable.
// Concurrent calls for the same asset share one upstream round.
func (o *Oracle) Price(ctx context.Context, mint string) (Price, error) {
	v, err, _ := o.group.Do(mint, func() (interface{}, error) {
		return o.fetch(ctx, mint)
	})
	if err != nil {
		return Price{}, err
	}
	return v.(Price), nil
}

// ReferencePrice returns the price of the settlement asset.
func (o *Oracle) ReferencePrice(ctx context.Context) (Price, error) {
	return o.Price(ctx, o.cfg.ReferenceMint)
}

func (o *Oracle) fetch(ctx context.Context, mint string) (Price, error) {
	var errs []error
	for _, p := range o.providers {
		if scoped, ok := p.(Scoped); ok && !scoped.Supports(mint) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return Price{}, err
		}

		value, err := o.query(ctx, p, mint)
		if err != nil {
			errs = append(errs, err)
			o.logger.Debug("Price provider failed",
				zap.String("provider", p.Name()),
				zap.String("mint", mint),
				zap.Error(err))
			continue
		}

		price := Price{Value: value, ObservedAt: o.now(), Source: p.Name()}
		if err := o.cache.SetPrice(ctx, mint, price.Value, price.ObservedAt); err != nil {
			o.logger.Warn("Failed to cache price", zap.String("mint", mint), zap.Error(err))
		}
		return price, nil
	}

	if value, ts, err := o.cache.GetPrice(ctx, mint); err == nil && validPrice(value) {
		o.logger.Warn("All price providers failed, using last known price",
			zap.String("mint", mint),
			zap.Time("observed_at", ts))
		return Price{Value: value, ObservedAt: ts, Source: SourceCache, Stale: true}, nil
	} else if err != nil && !errors.Is(err, ErrCacheMiss) {
		o.logger.Warn("Price cache read failed", zap.String("mint", mint), zap.Error(err))
	}

	if mint == o.cfg.ReferenceMint && validPrice(o.cfg.ReferenceFallback) {
		o.logger.Warn("Using hardcoded reference price", zap.Float64("price", o.cfg.ReferenceFallback))
		return Price{Value: o.cfg.ReferenceFallback, Source: SourceFallback, Stale: true}, nil
	}

	if len(errs) == 0 {
		errs = append(errs, errors.New("no provider serves this asset"))
	}
	return Price{}, types.NewError(types.ErrDataUnavailable, "market.Price",
		fmt.Errorf("%s: %w", mint, errors.Join(errs...)))
}

func (o *Oracle) query(ctx context.Context, p Provider, mint string) (float64, error) {
	pctx, cancel := context.WithTimeout(ctx, o.cfg.ProviderTimeout)
	defer cancel()

	start := time.Now()
	value, err := p.Price(pctx, mint)
	if err == nil && !validPrice(value) {
		err = fmt.Errorf("%s: non-positive price %v", p.Name(), value)
	}
	if o.observer != nil {
		o.observer.ObservePriceFetch(p.Name(), err == nil, time.Since(start))
	}
	return value, err
}

func validPrice(v float64) bool {
	return v > 0 && !math.IsInf(v, 0) && !math.IsNaN(v)
}
