// internal/monitor/monitor.go
package monitor

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/sentinel-bot/internal/events"
	"github.com/rovshanmuradov/sentinel-bot/internal/market"
	"github.com/rovshanmuradov/sentinel-bot/internal/storage/models"
	"github.com/rovshanmuradov/sentinel-bot/internal/trade"
	"github.com/rovshanmuradov/sentinel-bot/internal/types"
	"github.com/rovshanmuradov/sentinel-bot/internal/wallet"
)

const (
	DefaultInterval    = 12 * time.Second
	DefaultPriceMaxAge = 2 * time.Minute
	DefaultSellTimeout = 60 * time.Second
)

type PositionStore interface {
	ListOpenPositions(ctx context.Context) ([]models.Position, error)
	BeginClose(ctx context.Context, id int64) (bool, error)
	ReleaseClose(ctx context.Context, id int64) error
	ClosePosition(ctx context.Context, id int64, details models.CloseDetails) error
}

type SettingsStore interface {
	GetRiskSettings(ctx context.Context, userID int64) (models.RiskSettings, error)
}

type PriceSource interface {
	Price(ctx context.Context, mint string) (market.Price, error)
}

type Sessions interface {
	Get(userID int64) ([]byte, bool)
}

type Seller interface {
	Sell(ctx context.Context, order trade.Order) (*trade.Result, error)
}

// Observer получает статистику циклов и срабатываний.
type Observer interface {
	ObserveCycle(d time.Duration, positions int, err error)
	ObserveTrigger(trigger string, outcome string)
}

type Config struct {
	Interval    time.Duration
	PriceMaxAge time.Duration
	SellTimeout time.Duration
}

type Deps struct {
	Positions PositionStore
	Settings  SettingsStore
	Prices    PriceSource
	Sessions  Sessions
	Seller    Seller
	Events    events.Publisher
	Logger    *zap.Logger
}

// Monitor периодически проверяет открытые позиции и закрывает те, что
// достигли тейк-профита или стоп-лосса. Циклы строго последовательны.
type Monitor struct {
	cfg      Config
	deps     Deps
	logger   *zap.Logger
	observer Observer
	now      func() time.Time
}

func New(cfg Config, deps Deps) *Monitor {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.PriceMaxAge <= 0 {
		cfg.PriceMaxAge = DefaultPriceMaxAge
	}
	if cfg.SellTimeout <= 0 {
		cfg.SellTimeout = DefaultSellTimeout
	}
	return &Monitor{
		cfg:    cfg,
		deps:   deps,
		logger: deps.Logger.Named("risk-monitor"),
		now:    time.Now,
	}
}

func (m *Monitor) SetObserver(o Observer) { m.observer = o }

// Run выполняет первый цикл сразу, затем по тикеру. Возвращается только
// после отмены контекста.
func (m *Monitor) Run(ctx context.Context) error {
	m.logger.Info("Risk monitor started", zap.Duration("interval", m.cfg.Interval))
	defer m.logger.Info("Risk monitor stopped")

	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()

	for {
		if err := m.RunCycle(ctx); err != nil && ctx.Err() == nil {
			m.logger.Error("Monitor cycle aborted", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// RunCycle проверяет все открытые позиции один раз. Прерывается только
// ошибкой хранилища или отменой контекста.
func (m *Monitor) RunCycle(ctx context.Context) (err error) {
	if err := ctx.Err(); err != nil {
		return err
	}
	start := time.Now()
	logger := m.logger.With(zap.String("cycle_id", uuid.NewString()))

	positions, err := m.deps.Positions.ListOpenPositions(ctx)
	defer func() {
		if m.observer != nil {
			m.observer.ObserveCycle(time.Since(start), len(positions), err)
		}
	}()
	if err != nil {
		return err
	}
	logger.Debug("Monitor cycle", zap.Int("open_positions", len(positions)))

	settings := make(map[int64]models.RiskSettings)
	for i := range positions {
		if err := ctx.Err(); err != nil {
			return err
		}
		p := &positions[i]

		s, ok := settings[p.UserID]
		if !ok {
			s, err = m.deps.Settings.GetRiskSettings(ctx, p.UserID)
			if err != nil {
				if types.IsPersistence(err) {
					return err
				}
				logger.Warn("Failed to load risk settings", zap.Int64("user_id", p.UserID), zap.Error(err))
				continue
			}
			settings[p.UserID] = s
		}

		if err := m.checkPosition(ctx, logger, p, s); err != nil {
			if types.IsPersistence(err) {
				return err
			}
			logger.Warn("Position check failed", zap.Int64("position_id", p.ID), zap.Error(err))
		}
	}
	return nil
}

func (m *Monitor) checkPosition(ctx context.Context, logger *zap.Logger, p *models.Position, s models.RiskSettings) error {
	logger = logger.With(
		zap.Int64("position_id", p.ID),
		zap.Int64("user_id", p.UserID),
		zap.String("mint", p.AssetAddress))

	price, err := m.deps.Prices.Price(ctx, p.AssetAddress)
	if err != nil {
		logger.Debug("Price unavailable, skipping", zap.Error(err))
		return nil
	}
	if age := price.Age(m.now()); age > m.cfg.PriceMaxAge {
		logger.Debug("Price too old, skipping", zap.Duration("age", age), zap.String("source", price.Source))
		return nil
	}

	pnl, ok := PnLPercent(p.EntryPrice, price.Value)
	if !ok {
		logger.Warn("Invalid entry price, skipping", zap.Float64("entry_price", p.EntryPrice))
		return nil
	}

	trigger := Evaluate(pnl, s.TakeProfitPct, s.StopLossPct)
	if trigger == TriggerNone {
		return nil
	}

	ref := events.PositionRef{PositionID: p.ID, UserID: p.UserID, AssetMint: p.AssetAddress}
	logger.Info("Exit threshold reached",
		zap.String("trigger", string(trigger)),
		zap.Float64("pnl_percent", pnl),
		zap.Float64("entry_price", p.EntryPrice),
		zap.Float64("current_price", price.Value))
	m.publish(events.TriggerFiredEvent{
		BaseEvent:    events.NewBase(events.TriggerFired),
		PositionRef:  ref,
		Trigger:      string(trigger),
		PnLPercent:   pnl,
		EntryPrice:   p.EntryPrice,
		CurrentPrice: price.Value,
		AutoSell:     s.AutoSell,
	})

	if !s.AutoSell {
		m.requestIntervention(ref, trigger, pnl, events.ReasonAutoSellDisabled)
		return nil
	}
	// в режиме симуляции сеть недоступна, а фиктивная продажа закрыла бы реальные токены
	if s.SimulationMode && !p.Simulated {
		logger.Warn("On-chain position cannot be sold in simulation mode")
		m.requestIntervention(ref, trigger, pnl, events.ReasonSimulationOn)
		return nil
	}

	key, ok := m.deps.Sessions.Get(p.UserID)
	if !ok {
		logger.Info("Wallet locked, manual action required")
		m.requestIntervention(ref, trigger, pnl, events.ReasonWalletLocked)
		return nil
	}
	w, err := wallet.FromBytes(key)
	clear(key)
	if err != nil {
		m.requestIntervention(ref, trigger, pnl, events.ReasonWalletLocked)
		return err
	}
	defer w.Wipe()

	admitted, err := m.deps.Positions.BeginClose(ctx, p.ID)
	if err != nil {
		return err
	}
	if !admitted {
		logger.Debug("Position already closing")
		return nil
	}

	return m.sell(ctx, logger, p, s, w, ref, trigger, pnl, price.Value)
}

// sell доводит продажу до конца независимо от отмены родительского контекста,
// но не дольше SellTimeout.
func (m *Monitor) sell(ctx context.Context, logger *zap.Logger, p *models.Position, s models.RiskSettings,
	w *wallet.Wallet, ref events.PositionRef, trigger Trigger, pnl, price float64) error {
	sellCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.cfg.SellTimeout)
	defer cancel()

	res, err := m.deps.Seller.Sell(sellCtx, trade.Order{
		Wallet:      w,
		AssetMint:   p.AssetAddress,
		Amount:      p.AssetAmount,
		SlippageBps: s.SlippageBps,
		Simulated:   p.Simulated,
	})
	if err != nil {
		logger.Error("Sell failed, position reopened", zap.String("trigger", string(trigger)), zap.Error(err))
		m.observeTrigger(trigger, "sell_failed")
		if relErr := m.deps.Positions.ReleaseClose(sellCtx, p.ID); relErr != nil {
			return errors.Join(err, relErr)
		}
		m.publish(events.SellFailedEvent{
			BaseEvent:   events.NewBase(events.SellFailed),
			PositionRef: ref,
			Trigger:     string(trigger),
			Err:         err,
		})
		return nil
	}

	if err := m.deps.Positions.ClosePosition(sellCtx, p.ID, models.CloseDetails{
		Signature: res.Signature,
		ExitPrice: price,
		ClosedAt:  m.now(),
	}); err != nil {
		logger.Error("Sell succeeded but close was not recorded",
			zap.String("signature", res.Signature), zap.Error(err))
		return err
	}

	m.observeTrigger(trigger, "closed")
	logger.Info("Position closed",
		zap.String("trigger", string(trigger)),
		zap.String("signature", res.Signature),
		zap.Bool("simulated", res.Simulated),
		zap.Float64("pnl_percent", pnl))
	m.publish(events.PositionClosedEvent{
		BaseEvent:   events.NewBase(events.PositionClosed),
		PositionRef: ref,
		Reason:      string(trigger),
		PnLPercent:  pnl,
		ExitPrice:   price,
		Signature:   res.Signature,
		Simulated:   res.Simulated,
	})
	return nil
}

func (m *Monitor) requestIntervention(ref events.PositionRef, trigger Trigger, pnl float64, reason string) {
	m.observeTrigger(trigger, "manual")
	m.publish(events.ManualInterventionEvent{
		BaseEvent:   events.NewBase(events.ManualInterventionRequired),
		PositionRef: ref,
		Trigger:     string(trigger),
		PnLPercent:  pnl,
		Reason:      reason,
	})
}

func (m *Monitor) observeTrigger(trigger Trigger, outcome string) {
	if m.observer != nil {
		m.observer.ObserveTrigger(string(trigger), outcome)
	}
}

func (m *Monitor) publish(e events.Event) {
	if m.deps.Events == nil {
		return
	}
	if err := m.deps.Events.Publish(e); err != nil {
		m.logger.Warn("Failed to publish event", zap.String("event_type", string(e.Type())), zap.Error(err))
	}
}
