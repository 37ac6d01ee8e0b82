package trade

import (
	"context"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/mock"

	"github.com/rovshanmuradov/sentinel-bot/internal/blockchain/solbc"
	"github.com/rovshanmuradov/sentinel-bot/internal/dex/jupiter"
	"github.com/rovshanmuradov/sentinel-bot/internal/wallet"
)

type MockQuoter struct {
	mock.Mock
}

func (m *MockQuoter) GetQuoteAndTransaction(ctx context.Context, req jupiter.SwapRequest) (*jupiter.UnsignedTransaction, error) {
	args := m.Called(ctx, req)
	tx, _ := args.Get(0).(*jupiter.UnsignedTransaction)
	return tx, args.Error(1)
}

type MockSubmitter struct {
	mock.Mock
}

func (m *MockSubmitter) Submit(ctx context.Context, raw []byte, signer *wallet.Wallet) (*solbc.SubmitResult, error) {
	args := m.Called(ctx, raw, signer)
	res, _ := args.Get(0).(*solbc.SubmitResult)
	return res, args.Error(1)
}

type MockBalances struct {
	mock.Mock
}

func (m *MockBalances) GetBalance(ctx context.Context, account solana.PublicKey) (uint64, error) {
	args := m.Called(ctx, account)
	return args.Get(0).(uint64), args.Error(1)
}
