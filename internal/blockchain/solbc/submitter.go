// internal/blockchain/solbc/submitter.go
package solbc

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	solanarpc "github.com/gagliardetto/solana-go/rpc"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/sentinel-bot/internal/blockchain/solbc/rpc"
	"github.com/rovshanmuradov/sentinel-bot/internal/wallet"
)

const (
	DefaultConfirmTimeout = 45 * time.Second
	DefaultPollInterval   = 500 * time.Millisecond
)

var (
	// ErrInvalidTransaction - сериализованную транзакцию не удалось разобрать или подписать
	ErrInvalidTransaction = errors.New("invalid transaction")
	errNotConfirmed       = errors.New("transaction not confirmed yet")
)

// TransactionFailedError означает, что транзакция попала в блок и завершилась ошибкой.
type TransactionFailedError struct {
	Signature solana.Signature
	Reason    string
}

func (e *TransactionFailedError) Error() string {
	return fmt.Sprintf("transaction %s failed on-chain: %s", e.Signature, e.Reason)
}

type SubmitResult struct {
	Signature solana.Signature
	Endpoint  string
	Confirmed bool
}

type SubmitterConfig struct {
	Confirm        bool
	ConfirmTimeout time.Duration
	PollInterval   time.Duration
}

// SubmitObserver получает исход каждой отправки: sent, confirmed, unconfirmed, failed.
type SubmitObserver interface {
	ObserveSubmission(outcome string, d time.Duration)
}

// Submitter подписывает транзакцию локально и рассылает ее по пулу узлов.
type Submitter struct {
	pool     *rpc.Pool
	cfg      SubmitterConfig
	logger   *zap.Logger
	observer SubmitObserver
}

func NewSubmitter(pool *rpc.Pool, cfg SubmitterConfig, logger *zap.Logger) *Submitter {
	if cfg.ConfirmTimeout <= 0 {
		cfg.ConfirmTimeout = DefaultConfirmTimeout
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	return &Submitter{
		pool:   pool,
		cfg:    cfg,
		logger: logger.Named("submitter"),
	}
}

func (s *Submitter) SetObserver(o SubmitObserver) { s.observer = o }

// Submit декодирует, подписывает и отправляет транзакцию. Подпись одна на все
// попытки: повторная рассылка на другом узле не может провести обмен дважды.
func (s *Submitter) Submit(ctx context.Context, raw []byte, signer *wallet.Wallet) (*SubmitResult, error) {
	start := time.Now()

	tx, err := solana.TransactionFromDecoder(bin.NewBinDecoder(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: decode: %v", ErrInvalidTransaction, err)
	}

	if err := signer.SignTransaction(tx); err != nil {
		return nil, fmt.Errorf("%w: sign: %v", ErrInvalidTransaction, err)
	}
	signature := tx.Signatures[0]

	logger := s.logger.With(zap.String("signature", signature.String()))

	var endpoint string
	err = s.pool.Execute(ctx, "sendTransaction", func(ctx context.Context, node *rpc.NodeClient) error {
		_, err := node.Client.SendTransactionWithOpts(ctx, tx, solanarpc.TransactionOpts{
			SkipPreflight:       true,
			PreflightCommitment: solanarpc.CommitmentConfirmed,
		})
		if err != nil && !isAlreadyProcessed(err) {
			logger.Warn("Broadcast failed", append(rpcErrorFields(err), zap.String("endpoint", node.Name()))...)
			return err
		}
		endpoint = node.Name()
		return nil
	})
	if err != nil {
		s.observe("failed", start)
		return nil, err
	}

	result := &SubmitResult{Signature: signature, Endpoint: endpoint}
	logger.Info("Transaction sent", zap.String("endpoint", endpoint))

	if !s.cfg.Confirm {
		s.observe("sent", start)
		return result, nil
	}

	confirmed, err := s.awaitConfirmation(ctx, signature)
	if err != nil {
		s.observe("failed", start)
		return nil, err
	}
	result.Confirmed = confirmed
	if confirmed {
		s.observe("confirmed", start)
		logger.Info("Transaction confirmed", zap.Duration("elapsed", time.Since(start)))
	} else {
		s.observe("unconfirmed", start)
		logger.Warn("Transaction not confirmed within timeout",
			zap.Duration("timeout", s.cfg.ConfirmTimeout))
	}
	return result, nil
}

// awaitConfirmation опрашивает статус подписи. Ошибка возвращается только для
// транзакции, упавшей в сети; истечение ожидания дает false.
func (s *Submitter) awaitConfirmation(ctx context.Context, sig solana.Signature) (bool, error) {
	check := func() (bool, error) {
		status, err := s.pool.GetSignatureStatus(ctx, sig)
		if err != nil {
			return false, err
		}
		if status == nil {
			return false, errNotConfirmed
		}
		if status.Err != nil {
			return false, backoff.Permanent(&TransactionFailedError{
				Signature: sig,
				Reason:    fmt.Sprintf("%v", status.Err),
			})
		}
		switch status.ConfirmationStatus {
		case solanarpc.ConfirmationStatusConfirmed, solanarpc.ConfirmationStatusFinalized:
			return true, nil
		}
		return false, errNotConfirmed
	}

	confirmed, err := backoff.Retry(ctx, check,
		backoff.WithBackOff(backoff.NewConstantBackOff(s.cfg.PollInterval)),
		backoff.WithMaxElapsedTime(s.cfg.ConfirmTimeout))
	if err == nil {
		return confirmed, nil
	}

	var failed *TransactionFailedError
	if errors.As(err, &failed) {
		return false, failed
	}
	return false, nil
}

func (s *Submitter) observe(outcome string, start time.Time) {
	if s.observer != nil {
		s.observer.ObserveSubmission(outcome, time.Since(start))
	}
}
