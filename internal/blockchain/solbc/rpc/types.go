// internal/blockchain/solbc/rpc/types.go
package rpc

import (
	"context"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	solanarpc "github.com/gagliardetto/solana-go/rpc"
	"go.uber.org/zap"
)

const (
	DefaultTimeout      = 10 * time.Second
	HealthCheckTimeout  = 5 * time.Second
	HealthCheckInterval = 30 * time.Second
)

// Endpoint - подмножество JSON-RPC, которым пользуется движок.
// *solanarpc.Client удовлетворяет интерфейсу напрямую.
type Endpoint interface {
	SendTransactionWithOpts(ctx context.Context, tx *solana.Transaction, opts solanarpc.TransactionOpts) (solana.Signature, error)
	GetBalance(ctx context.Context, account solana.PublicKey, commitment solanarpc.CommitmentType) (*solanarpc.GetBalanceResult, error)
	GetSignatureStatuses(ctx context.Context, searchTransactionHistory bool, signatures ...solana.Signature) (*solanarpc.GetSignatureStatusesResult, error)
	GetVersion(ctx context.Context) (*solanarpc.GetVersionResult, error)
}

// Observer получает результаты каждого вызова узла.
type Observer interface {
	ObserveRPC(endpoint, method string, ok bool, latency time.Duration)
	SetActiveEndpoints(n int)
}

// Pool представляет пул RPC клиентов
type Pool struct {
	clients  []*NodeClient
	logger   *zap.Logger
	timeout  time.Duration
	shuffle  func(n int, swap func(i, j int))
	observer Observer
	mu       sync.RWMutex
}
