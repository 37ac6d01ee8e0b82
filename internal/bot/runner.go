// internal/bot/runner.go
package bot

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/rovshanmuradov/sentinel-bot/internal/blockchain/solbc"
	"github.com/rovshanmuradov/sentinel-bot/internal/blockchain/solbc/rpc"
	"github.com/rovshanmuradov/sentinel-bot/internal/cache/redis"
	"github.com/rovshanmuradov/sentinel-bot/internal/config"
	"github.com/rovshanmuradov/sentinel-bot/internal/dex/jupiter"
	"github.com/rovshanmuradov/sentinel-bot/internal/events"
	"github.com/rovshanmuradov/sentinel-bot/internal/market"
	"github.com/rovshanmuradov/sentinel-bot/internal/metrics"
	"github.com/rovshanmuradov/sentinel-bot/internal/monitor"
	"github.com/rovshanmuradov/sentinel-bot/internal/notify"
	"github.com/rovshanmuradov/sentinel-bot/internal/session"
	"github.com/rovshanmuradov/sentinel-bot/internal/storage"
	"github.com/rovshanmuradov/sentinel-bot/internal/storage/postgres"
	"github.com/rovshanmuradov/sentinel-bot/internal/storage/sqlite"
	"github.com/rovshanmuradov/sentinel-bot/internal/trade"
	"github.com/rovshanmuradov/sentinel-bot/internal/types"
	"github.com/rovshanmuradov/sentinel-bot/internal/vault"
)

const sessionSweepInterval = time.Minute

// Runner собирает движок из конфигурации и управляет фоновыми задачами.
type Runner struct {
	cfg      *config.Config
	logger   *zap.Logger
	store    storage.Storage
	pool     *rpc.Pool
	sessions *session.Cache
	bus      *events.Bus
	metrics  *metrics.Collector
	monitor  *monitor.Monitor
	service  *Service
	shutdown *ShutdownHandler
}

// NewRunner создает все компоненты. При ошибке уже открытые ресурсы закрываются.
func NewRunner(ctx context.Context, cfg *config.Config, logger *zap.Logger) (_ *Runner, err error) {
	r := &Runner{
		cfg:      cfg,
		logger:   logger.Named("runner"),
		metrics:  metrics.NewCollector(),
		shutdown: NewShutdownHandler(logger, cfg.ShutdownTimeoutDuration()),
	}
	defer func() {
		if err != nil {
			_ = r.shutdown.Shutdown(context.Background())
		}
	}()

	if r.store, err = openStorage(ctx, cfg, logger); err != nil {
		return nil, err
	}
	r.shutdown.Add("storage", r.store)

	priceCache, err := r.priceCache(ctx)
	if err != nil {
		return nil, err
	}

	httpClient := &http.Client{Timeout: cfg.ProviderTimeoutDuration()}
	oracle := market.NewOracle(market.Config{
		ProviderTimeout:   cfg.ProviderTimeoutDuration(),
		ReferenceMint:     types.SOLMint,
		ReferenceFallback: cfg.SOLFallbackPrice,
	}, priceCache, logger,
		market.NewJupiterPrice(cfg.JupiterPriceURL, httpClient),
		market.NewDexScreener(cfg.DexScreenerURL, httpClient),
		market.NewCoinGecko(cfg.CoinGeckoURL, httpClient),
	)
	oracle.SetObserver(r.metrics)

	if r.pool, err = rpc.NewPoolFromURLs(cfg.RPCList, logger); err != nil {
		return nil, fmt.Errorf("rpc pool: %w", err)
	}
	r.pool.SetObserver(r.metrics)

	submitter := solbc.NewSubmitter(r.pool, solbc.SubmitterConfig{
		Confirm:        cfg.ConfirmTransactions,
		ConfirmTimeout: cfg.ConfirmTimeoutDuration(),
	}, logger)
	submitter.SetObserver(r.metrics)

	quoter := jupiter.NewClient(jupiter.Config{
		QuoteURL:   cfg.JupiterQuoteURL,
		SwapURL:    cfg.JupiterSwapURL,
		MaxRetries: cfg.Retries,
		RateLimit:  cfg.QuoteRateLimit,
		HTTPClient: httpClient,
	}, logger)

	priority, err := types.ParsePriorityLevel(cfg.PriorityLevel)
	if err != nil {
		return nil, err
	}
	executor := trade.NewExecutor(trade.Config{
		FeeReserveLamports: cfg.FeeReserveLamports,
		Priority:           priority,
	}, quoter, submitter, r.pool, logger)
	executor.SetObserver(r.metrics)

	r.sessions = session.NewCache(cfg.SessionTTLDuration(), logger)

	r.bus = events.NewBus(logger, events.DefaultBufferSize)
	r.shutdown.AddFunc("events", func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return r.bus.Shutdown(ctx)
	})
	notify.Subscribe(r.bus, notify.NewNotifier(logger, r.senders()...))

	r.monitor = monitor.New(monitor.Config{
		Interval:    cfg.MonitorInterval(),
		PriceMaxAge: cfg.PriceMaxAgeDuration(),
		SellTimeout: cfg.SellTimeoutDuration(),
	}, monitor.Deps{
		Positions: r.store,
		Settings:  r.store,
		Prices:    oracle,
		Sessions:  r.sessions,
		Seller:    executor,
		Events:    r.bus,
		Logger:    logger,
	})
	r.monitor.SetObserver(r.metrics)

	r.service = NewService(ServiceDeps{
		Store:       r.store,
		Vault:       vault.New(0),
		Sessions:    r.sessions,
		Oracle:      oracle,
		Trader:      executor,
		Balances:    r.pool,
		Events:      r.bus,
		Logger:      logger,
		SellTimeout: cfg.SellTimeoutDuration(),
		PriceMaxAge: cfg.PriceMaxAgeDuration(),
	})

	return r, nil
}

func openStorage(ctx context.Context, cfg *config.Config, logger *zap.Logger) (storage.Storage, error) {
	switch cfg.StorageDriver {
	case config.DriverPostgres:
		return postgres.New(ctx, cfg.PostgresURL, logger)
	default:
		return sqlite.New(cfg.SQLitePath)
	}
}

// priceCache возвращает Redis, если он настроен, иначе кэш в памяти процесса.
func (r *Runner) priceCache(ctx context.Context) (market.Cache, error) {
	if r.cfg.RedisAddr == "" {
		return market.NewMemoryCache(), nil
	}
	client, err := redis.New(ctx, redis.ClientConfig{
		Addr:     r.cfg.RedisAddr,
		Password: r.cfg.RedisPassword,
		DB:       r.cfg.RedisDB,
	})
	if err != nil {
		return nil, err
	}
	r.shutdown.Add("redis", client)
	return redis.NewPriceCache(client, 0), nil
}

func (r *Runner) senders() []notify.Sender {
	senders := []notify.Sender{notify.NewLogSender(r.logger)}
	if r.cfg.TelegramToken != "" {
		senders = append(senders, notify.NewTelegramSender(r.cfg.TelegramToken, r.cfg.TelegramChatID))
	}
	return senders
}

// Service возвращает API хранения ключей и торговли для фронтенда.
func (r *Runner) Service() *Service { return r.service }

// Run запускает монитор, проверку узлов, очистку сессий и сервер метрик.
// Возвращает после отмены ctx и закрытия всех ресурсов.
func (r *Runner) Run(ctx context.Context) error {
	r.reportStuckClosing(ctx)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return r.monitor.Run(gctx) })
	g.Go(func() error { return r.pool.Run(gctx, r.cfg.HealthCheckInterval()) })
	g.Go(func() error {
		r.sessions.Run(gctx, sessionSweepInterval)
		return nil
	})
	g.Go(func() error { return r.metrics.Serve(gctx, r.cfg.MetricsAddr, r.logger) })

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		err = nil
	}

	r.logger.Info("Stopping engine")
	return errors.Join(err, r.shutdown.Shutdown(context.Background()))
}

// reportStuckClosing сообщает о позициях, оставшихся в CLOSING после сбоя:
// продажа могла пройти, поэтому повторять ее автоматически нельзя.
func (r *Runner) reportStuckClosing(ctx context.Context) {
	stuck, err := r.store.ListClosingPositions(ctx)
	if err != nil {
		r.logger.Error("Failed to list closing positions", zap.Error(err))
		return
	}
	for _, p := range stuck {
		r.logger.Warn("Position left in CLOSING, manual intervention required",
			zap.Int64("position_id", p.ID),
			zap.Int64("user_id", p.UserID),
			zap.String("mint", p.AssetAddress))
		err := r.bus.Publish(events.ManualInterventionEvent{
			BaseEvent:   events.NewBase(events.ManualInterventionRequired),
			PositionRef: events.PositionRef{PositionID: p.ID, UserID: p.UserID, AssetMint: p.AssetAddress},
			Reason:      events.ReasonStuckClosing,
		})
		if err != nil {
			r.logger.Warn("Failed to publish event", zap.Error(err))
		}
	}
}
