// internal/bot/service.go
package bot

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/sentinel-bot/internal/events"
	"github.com/rovshanmuradov/sentinel-bot/internal/export"
	"github.com/rovshanmuradov/sentinel-bot/internal/market"
	"github.com/rovshanmuradov/sentinel-bot/internal/session"
	"github.com/rovshanmuradov/sentinel-bot/internal/storage"
	"github.com/rovshanmuradov/sentinel-bot/internal/storage/models"
	"github.com/rovshanmuradov/sentinel-bot/internal/trade"
	"github.com/rovshanmuradov/sentinel-bot/internal/types"
	"github.com/rovshanmuradov/sentinel-bot/internal/vault"
	"github.com/rovshanmuradov/sentinel-bot/internal/wallet"
)

type Oracle interface {
	Price(ctx context.Context, mint string) (market.Price, error)
	ReferencePrice(ctx context.Context) (market.Price, error)
}

type Trader interface {
	Buy(ctx context.Context, order trade.Order) (*trade.Result, error)
	Sell(ctx context.Context, order trade.Order) (*trade.Result, error)
}

type BalanceReader interface {
	GetBalance(ctx context.Context, account solana.PublicKey) (uint64, error)
}

type ServiceDeps struct {
	Store    storage.Storage
	Vault    *vault.Vault
	Sessions *session.Cache
	Oracle   Oracle
	Trader   Trader
	Balances BalanceReader
	Events   events.Publisher
	Logger   *zap.Logger
	// SellTimeout ограничивает ручную продажу после ее начала.
	SellTimeout time.Duration
	// PriceMaxAge - максимальный возраст цены входа.
	PriceMaxAge time.Duration
}

// Service - операции хранения ключей и торговли, которые вызывает фронтенд.
type Service struct {
	deps   ServiceDeps
	logger *zap.Logger
}

func NewService(deps ServiceDeps) *Service {
	if deps.SellTimeout <= 0 {
		deps.SellTimeout = 60 * time.Second
	}
	if deps.PriceMaxAge <= 0 {
		deps.PriceMaxAge = 2 * time.Minute
	}
	return &Service{deps: deps, logger: deps.Logger.Named("custody")}
}

// CreateWallet генерирует новый ключ, шифрует его PIN-кодом и разблокирует сессию.
func (s *Service) CreateWallet(ctx context.Context, userID int64, pin string) (string, error) {
	w, err := wallet.Generate()
	if err != nil {
		return "", err
	}
	defer w.Wipe()
	return s.storeWallet(ctx, userID, w, pin)
}

// ImportWallet заменяет кошелек пользователя ключом в base58.
func (s *Service) ImportWallet(ctx context.Context, userID int64, privateKey, pin string) (string, error) {
	w, err := wallet.NewWallet(strings.TrimSpace(privateKey))
	if err != nil {
		return "", types.NewError(types.ErrCredential, "custody.ImportWallet", err)
	}
	defer w.Wipe()
	return s.storeWallet(ctx, userID, w, pin)
}

func (s *Service) storeWallet(ctx context.Context, userID int64, w *wallet.Wallet, pin string) (string, error) {
	raw := w.Bytes()
	defer clear(raw)

	ciphertext, salt, err := s.deps.Vault.Encrypt(raw, pin)
	if err != nil {
		return "", err
	}
	if err := s.deps.Store.SaveWallet(ctx, &models.Wallet{
		UserID:              userID,
		PublicKey:           w.PublicKey.String(),
		EncryptedPrivateKey: ciphertext,
		Salt:                salt,
		CreatedAt:           time.Now().UTC(),
	}); err != nil {
		return "", err
	}

	// старая сессия относится к замененному ключу
	s.deps.Sessions.Invalidate(userID)
	s.deps.Sessions.Put(userID, raw)

	s.logger.Info("Wallet stored", zap.Int64("user_id", userID), zap.String("public_key", w.PublicKey.String()))
	return w.PublicKey.String(), nil
}

// Unlock расшифровывает ключ и кладет его в кеш сессий.
func (s *Service) Unlock(ctx context.Context, userID int64, pin string) error {
	stored, err := s.wallet(ctx, userID)
	if err != nil {
		return err
	}

	raw, err := s.deps.Vault.Decrypt(stored.EncryptedPrivateKey, stored.Salt, pin)
	if err != nil {
		s.logger.Info("Unlock failed", zap.Int64("user_id", userID))
		return err
	}
	defer clear(raw)

	w, err := wallet.FromBytes(raw)
	if err != nil {
		return types.NewError(types.ErrCredential, "custody.Unlock", err)
	}
	defer w.Wipe()
	if !w.Matches(stored.PublicKey) {
		return types.NewError(types.ErrCredential, "custody.Unlock", wallet.ErrKeyMismatch)
	}

	s.deps.Sessions.Put(userID, raw)
	s.logger.Info("Wallet unlocked", zap.Int64("user_id", userID))
	return nil
}

// Lock стирает ключ из памяти.
func (s *Service) Lock(userID int64) {
	s.deps.Sessions.Invalidate(userID)
}

func (s *Service) IsUnlocked(userID int64) bool {
	return s.deps.Sessions.Has(userID)
}

// Balance возвращает баланс кошелька в лампортах.
func (s *Service) Balance(ctx context.Context, userID int64) (uint64, error) {
	stored, err := s.wallet(ctx, userID)
	if err != nil {
		return 0, err
	}
	pub, err := solana.PublicKeyFromBase58(stored.PublicKey)
	if err != nil {
		return 0, fmt.Errorf("stored public key: %w", err)
	}
	return s.deps.Balances.GetBalance(ctx, pub)
}

// Buy покупает актив на lamports и открывает позицию. Количество актива
// берется из котировки и помечается как оценка.
func (s *Service) Buy(ctx context.Context, userID int64, mint string, lamports uint64) (*models.Position, error) {
	if _, err := solana.PublicKeyFromBase58(mint); err != nil {
		return nil, fmt.Errorf("invalid asset address %q: %w", mint, err)
	}
	settings, err := s.deps.Store.GetRiskSettings(ctx, userID)
	if err != nil {
		return nil, err
	}
	w, err := s.unlocked(userID)
	if err != nil {
		return nil, err
	}
	defer w.Wipe()

	price, err := s.deps.Oracle.Price(ctx, mint)
	if err != nil {
		return nil, err
	}
	// цена входа навсегда задает пороги, устаревшая цена недопустима
	if age := price.Age(time.Now()); price.Stale || age > s.deps.PriceMaxAge {
		return nil, types.NewError(types.ErrDataUnavailable, "custody.Buy",
			fmt.Errorf("entry price from %s is stale (age %s)", price.Source, age))
	}

	var estimate uint64
	if settings.SimulationMode {
		if estimate, err = s.estimateAmount(ctx, lamports, price.Value); err != nil {
			return nil, err
		}
	}

	res, err := s.deps.Trader.Buy(ctx, trade.Order{
		Wallet:      w,
		AssetMint:   mint,
		Amount:      lamports,
		SlippageBps: settings.SlippageBps,
		Simulated:   settings.SimulationMode,
	})
	if err != nil {
		return nil, err
	}

	amount := res.OutAmount
	if amount == 0 {
		amount = estimate
	}

	p := &models.Position{
		UserID:          userID,
		AssetAddress:    mint,
		InvestedAmount:  lamports,
		EntryPrice:      price.Value,
		AssetAmount:     amount,
		AmountEstimated: true,
		Simulated:       res.Simulated,
		Status:          models.StatusOpen,
		OpenSignature:   res.Signature,
		OpenedAt:        time.Now().UTC(),
	}
	id, err := s.deps.Store.CreatePosition(context.WithoutCancel(ctx), p)
	if err != nil {
		s.logger.Error("Buy executed but position was not recorded",
			zap.Int64("user_id", userID),
			zap.String("signature", res.Signature),
			zap.Error(err))
		return nil, err
	}
	p.ID = id

	s.logger.Info("Position opened",
		zap.Int64("position_id", id),
		zap.Int64("user_id", userID),
		zap.String("mint", mint),
		zap.Float64("entry_price", price.Value),
		zap.Bool("simulated", res.Simulated))
	s.publish(events.PositionOpenedEvent{
		BaseEvent:        events.NewBase(events.PositionOpened),
		PositionRef:      events.PositionRef{PositionID: id, UserID: userID, AssetMint: mint},
		InvestedLamports: lamports,
		AssetAmount:      amount,
		AmountEstimated:  true,
		EntryPrice:       price.Value,
		Signature:        res.Signature,
		Simulated:        res.Simulated,
	})
	return p, nil
}

// estimateAmount пересчитывает вложенные лампорты в базовые единицы актива
// по цене SOL; используется без котировки (симуляция).
func (s *Service) estimateAmount(ctx context.Context, lamports uint64, assetPrice float64) (uint64, error) {
	sol, err := s.deps.Oracle.ReferencePrice(ctx)
	if err != nil {
		return 0, err
	}
	tokens := types.LamportsToSOL(lamports) * sol.Value / assetPrice
	units := math.Floor(tokens * math.Pow10(types.DefaultTokenDecimals))
	if units < 1 || math.IsInf(units, 0) || math.IsNaN(units) {
		return 0, types.NewError(types.ErrDataUnavailable, "custody.estimateAmount",
			fmt.Errorf("cannot estimate amount from prices %g and %g", sol.Value, assetPrice))
	}
	if units >= math.MaxInt64 {
		return math.MaxInt64, nil
	}
	return uint64(units), nil
}

// ClosePosition продает позицию вручную.
func (s *Service) ClosePosition(ctx context.Context, userID, positionID int64) (*models.Position, error) {
	p, err := s.deps.Store.GetPosition(ctx, positionID)
	if err != nil {
		return nil, err
	}
	if p.UserID != userID {
		return nil, storage.ErrNotFound
	}
	if p.Status != models.StatusOpen {
		return nil, ErrAlreadyClosing
	}

	settings, err := s.deps.Store.GetRiskSettings(ctx, userID)
	if err != nil {
		return nil, err
	}
	if settings.SimulationMode && !p.Simulated {
		return nil, ErrSimulationMode
	}
	w, err := s.unlocked(userID)
	if err != nil {
		return nil, err
	}
	defer w.Wipe()

	var exit float64
	if price, err := s.deps.Oracle.Price(ctx, p.AssetAddress); err == nil {
		exit = price.Value
	}

	admitted, err := s.deps.Store.BeginClose(ctx, positionID)
	if err != nil {
		return nil, err
	}
	if !admitted {
		return nil, ErrAlreadyClosing
	}

	sellCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.deps.SellTimeout)
	defer cancel()

	res, err := s.deps.Trader.Sell(sellCtx, trade.Order{
		Wallet:      w,
		AssetMint:   p.AssetAddress,
		Amount:      p.AssetAmount,
		SlippageBps: settings.SlippageBps,
		Simulated:   p.Simulated,
	})
	if err != nil {
		if relErr := s.deps.Store.ReleaseClose(sellCtx, positionID); relErr != nil {
			return nil, errors.Join(err, relErr)
		}
		return nil, err
	}

	closedAt := time.Now().UTC()
	if err := s.deps.Store.ClosePosition(sellCtx, positionID, models.CloseDetails{
		Signature: res.Signature,
		ExitPrice: exit,
		ClosedAt:  closedAt,
	}); err != nil {
		return nil, err
	}

	p.Status = models.StatusClosed
	p.CloseSignature = res.Signature
	p.ExitPrice = exit
	p.ClosedAt = &closedAt

	var pnl float64
	if p.EntryPrice > 0 && exit > 0 {
		pnl = (exit - p.EntryPrice) / p.EntryPrice * 100
	}
	s.publish(events.PositionClosedEvent{
		BaseEvent:   events.NewBase(events.PositionClosed),
		PositionRef: events.PositionRef{PositionID: p.ID, UserID: userID, AssetMint: p.AssetAddress},
		Reason:      "manual",
		PnLPercent:  pnl,
		ExitPrice:   exit,
		Signature:   res.Signature,
		Simulated:   res.Simulated,
	})
	return p, nil
}

func (s *Service) ListPositions(ctx context.Context, userID int64) ([]models.Position, error) {
	return s.deps.Store.ListPositions(ctx, userID)
}

// ExportPositions выгружает историю позиций пользователя в w.
func (s *Service) ExportPositions(ctx context.Context, userID int64, w io.Writer, opts export.Options) (export.Summary, error) {
	positions, err := s.deps.Store.ListPositions(ctx, userID)
	if err != nil {
		return export.Summary{}, err
	}
	summary, err := export.Write(w, positions, opts)
	if err != nil {
		return summary, err
	}
	s.logger.Info("Positions exported",
		zap.Int64("user_id", userID),
		zap.Int("count", summary.Positions),
		zap.String("format", string(opts.Format)))
	return summary, nil
}

func (s *Service) GetRiskSettings(ctx context.Context, userID int64) (models.RiskSettings, error) {
	return s.deps.Store.GetRiskSettings(ctx, userID)
}

// UpdateRiskSettings проверяет и сохраняет настройки.
func (s *Service) UpdateRiskSettings(ctx context.Context, settings models.RiskSettings) error {
	if err := settings.Validate(); err != nil {
		return err
	}
	settings.UpdatedAt = time.Now().UTC()
	return s.deps.Store.SaveRiskSettings(ctx, settings)
}

func (s *Service) wallet(ctx context.Context, userID int64) (*models.Wallet, error) {
	stored, err := s.deps.Store.GetWallet(ctx, userID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrNoWallet
	}
	return stored, err
}

func (s *Service) unlocked(userID int64) (*wallet.Wallet, error) {
	key, ok := s.deps.Sessions.Get(userID)
	if !ok {
		return nil, ErrWalletLocked
	}
	defer clear(key)
	return wallet.FromBytes(key)
}

func (s *Service) publish(e events.Event) {
	if s.deps.Events == nil {
		return
	}
	if err := s.deps.Events.Publish(e); err != nil {
		s.logger.Warn("Failed to publish event", zap.String("event_type", string(e.Type())), zap.Error(err))
	}
}
