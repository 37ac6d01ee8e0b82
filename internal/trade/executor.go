// Package trade исполняет покупки и продажи через агрегатор и пул узлов.
package trade

import (
	"context"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/sentinel-bot/internal/blockchain/solbc"
	"github.com/rovshanmuradov/sentinel-bot/internal/dex/jupiter"
	"github.com/rovshanmuradov/sentinel-bot/internal/types"
	"github.com/rovshanmuradov/sentinel-bot/internal/wallet"
)

// SimulatedPrefix начинает идентификатор транзакции, не отправленной в сеть.
const SimulatedPrefix = "SIM-"

type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

type Quoter interface {
	GetQuoteAndTransaction(ctx context.Context, req jupiter.SwapRequest) (*jupiter.UnsignedTransaction, error)
}

type Submitter interface {
	Submit(ctx context.Context, raw []byte, signer *wallet.Wallet) (*solbc.SubmitResult, error)
}

type BalanceReader interface {
	GetBalance(ctx context.Context, account solana.PublicKey) (uint64, error)
}

// Observer получает исход каждой сделки.
type Observer interface {
	ObserveTrade(side string, outcome string, d time.Duration)
}

type Config struct {
	// FeeReserveLamports остается на кошельке для комиссий.
	FeeReserveLamports uint64
	Priority           types.PriorityLevel
	// SettlementMint - актив расчетов, по умолчанию wrapped SOL.
	SettlementMint string
}

type Order struct {
	Wallet      *wallet.Wallet
	AssetMint   string
	Amount      uint64 // лампорты для покупки, единицы актива для продажи
	SlippageBps types.SlippageBps
	Simulated   bool
}

type Result struct {
	Signature string
	Simulated bool
	Confirmed bool
	Endpoint  string
	InAmount  uint64
	// OutAmount - ожидаемый выход по котировке; 0 в режиме симуляции.
	OutAmount uint64
}

type Executor struct {
	cfg       Config
	quoter    Quoter
	submitter Submitter
	balances  BalanceReader
	logger    *zap.Logger
	observer  Observer
}

func NewExecutor(cfg Config, quoter Quoter, submitter Submitter, balances BalanceReader, logger *zap.Logger) *Executor {
	if cfg.SettlementMint == "" {
		cfg.SettlementMint = types.SOLMint
	}
	if cfg.Priority == "" {
		cfg.Priority = types.PriorityMedium
	}
	return &Executor{
		cfg:       cfg,
		quoter:    quoter,
		submitter: submitter,
		balances:  balances,
		logger:    logger.Named("trade"),
	}
}

func (e *Executor) SetObserver(o Observer) { e.observer = o }

// Buy обменивает order.Amount лампортов на актив.
func (e *Executor) Buy(ctx context.Context, order Order) (*Result, error) {
	return e.execute(ctx, SideBuy, order, e.cfg.SettlementMint, order.AssetMint)
}

// Sell обменивает order.Amount единиц актива обратно на актив расчетов.
func (e *Executor) Sell(ctx context.Context, order Order) (*Result, error) {
	return e.execute(ctx, SideSell, order, order.AssetMint, e.cfg.SettlementMint)
}

func (e *Executor) execute(ctx context.Context, side Side, order Order, inputMint, outputMint string) (res *Result, err error) {
	start := time.Now()
	op := "trade." + string(side)
	defer func() {
		outcome := "ok"
		switch {
		case err != nil:
			outcome = "error"
		case res.Simulated:
			outcome = "simulated"
		}
		if e.observer != nil {
			e.observer.ObserveTrade(string(side), outcome, time.Since(start))
		}
	}()

	if order.Wallet == nil {
		return nil, fmt.Errorf("%s: wallet is required", op)
	}
	if order.Amount == 0 {
		return nil, fmt.Errorf("%s: amount must be positive", op)
	}

	logger := e.logger.With(
		zap.String("side", string(side)),
		zap.String("mint", order.AssetMint),
		zap.Uint64("amount", order.Amount))

	if order.Simulated {
		sig := SimulatedPrefix + uuid.NewString()
		logger.Info("Simulated trade", zap.String("signature", sig))
		return &Result{Signature: sig, Simulated: true, InAmount: order.Amount}, nil
	}

	required := e.cfg.FeeReserveLamports
	if side == SideBuy {
		required += order.Amount
	}
	balance, err := e.balances.GetBalance(ctx, order.Wallet.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("%s: balance: %w", op, err)
	}
	if balance < required {
		return nil, types.NewError(types.ErrInsufficientFunds, op,
			fmt.Errorf("balance %d lamports is below required %d", balance, required))
	}

	unsigned, err := e.quoter.GetQuoteAndTransaction(ctx, jupiter.SwapRequest{
		InputMint:                 inputMint,
		OutputMint:                outputMint,
		Amount:                    order.Amount,
		SlippageBps:               order.SlippageBps,
		UserPublicKey:             order.Wallet.PublicKey.String(),
		PrioritizationFeeLamports: e.cfg.Priority.FeeLamports(),
	})
	if err != nil {
		return nil, err
	}

	sent, err := e.submitter.Submit(ctx, unsigned.Raw, order.Wallet)
	if err != nil {
		return nil, err
	}

	logger.Info("Trade submitted",
		zap.String("signature", sent.Signature.String()),
		zap.Bool("confirmed", sent.Confirmed),
		zap.Uint64("expected_out", unsigned.Quote.OutAmount))

	return &Result{
		Signature: sent.Signature.String(),
		Confirmed: sent.Confirmed,
		Endpoint:  sent.Endpoint,
		InAmount:  unsigned.Quote.InAmount,
		OutAmount: unsigned.Quote.OutAmount,
	}, nil
}
