// Package rpctest содержит управляемую реализацию rpc.Endpoint для тестов.
package rpctest

import (
	"context"
	"errors"
	"sync"

	"github.com/gagliardetto/solana-go"
	solanarpc "github.com/gagliardetto/solana-go/rpc"
)

var ErrUnavailable = errors.New("endpoint unavailable")

// Endpoint записывает все вызовы и отвечает заранее заданными значениями.
type Endpoint struct {
	mu sync.Mutex

	SendErr    error
	BalanceErr error
	VersionErr error
	StatusErr  error
	Balance    uint64
	// Statuses по подписи; отсутствующая подпись возвращает nil статус.
	Statuses map[solana.Signature]*solanarpc.SignatureStatusesResult

	Sent          []solana.Signature
	BalanceCalls  int
	VersionCalls  int
	StatusQueries int
}

func (e *Endpoint) SendTransactionWithOpts(_ context.Context, tx *solana.Transaction, _ solanarpc.TransactionOpts) (solana.Signature, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(tx.Signatures) == 0 {
		return solana.Signature{}, errors.New("transaction is not signed")
	}
	e.Sent = append(e.Sent, tx.Signatures[0])
	if e.SendErr != nil {
		return solana.Signature{}, e.SendErr
	}
	return tx.Signatures[0], nil
}

func (e *Endpoint) GetBalance(context.Context, solana.PublicKey, solanarpc.CommitmentType) (*solanarpc.GetBalanceResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.BalanceCalls++
	if e.BalanceErr != nil {
		return nil, e.BalanceErr
	}
	return &solanarpc.GetBalanceResult{Value: e.Balance}, nil
}

func (e *Endpoint) GetSignatureStatuses(_ context.Context, _ bool, sigs ...solana.Signature) (*solanarpc.GetSignatureStatusesResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.StatusQueries++
	if e.StatusErr != nil {
		return nil, e.StatusErr
	}
	out := &solanarpc.GetSignatureStatusesResult{}
	for _, sig := range sigs {
		out.Value = append(out.Value, e.Statuses[sig])
	}
	return out, nil
}

func (e *Endpoint) GetVersion(context.Context) (*solanarpc.GetVersionResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.VersionCalls++
	if e.VersionErr != nil {
		return nil, e.VersionErr
	}
	return &solanarpc.GetVersionResult{SolanaCore: "2.0.0"}, nil
}

// SetStatus задает статус подтверждения для подписи.
func (e *Endpoint) SetStatus(sig solana.Signature, status *solanarpc.SignatureStatusesResult) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.Statuses == nil {
		e.Statuses = make(map[solana.Signature]*solanarpc.SignatureStatusesResult)
	}
	e.Statuses[sig] = status
}

// SentCount возвращает число принятых на отправку транзакций.
func (e *Endpoint) SentCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.Sent)
}

// InOrder сохраняет исходный порядок узлов вместо случайного.
func InOrder(int, func(i, j int)) {}
