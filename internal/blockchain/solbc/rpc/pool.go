// internal/blockchain/solbc/rpc/pool.go
package rpc

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/gagliardetto/solana-go"
	solanarpc "github.com/gagliardetto/solana-go/rpc"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/sentinel-bot/internal/types"
)

// NewPool создает новый пул клиентов
func NewPool(clients []*NodeClient, logger *zap.Logger) (*Pool, error) {
	if len(clients) == 0 {
		return nil, ErrNoEndpoints
	}
	return &Pool{
		clients: clients,
		logger:  logger.Named("rpc-pool"),
		timeout: DefaultTimeout,
		shuffle: rand.Shuffle,
	}, nil
}

// NewPoolFromURLs создает пул из списка URL
func NewPoolFromURLs(urls []string, logger *zap.Logger) (*Pool, error) {
	clients := make([]*NodeClient, 0, len(urls))
	for _, url := range urls {
		clients = append(clients, NewClient(url))
	}
	return NewPool(clients, logger)
}

// SetObserver подключает сбор метрик.
func (p *Pool) SetObserver(o Observer) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.observer = o
}

// SetTimeout задает таймаут одного вызова узла.
func (p *Pool) SetTimeout(d time.Duration) {
	if d > 0 {
		p.timeout = d
	}
}

// SetShuffle подменяет перемешивание (детерминированный порядок в тестах).
func (p *Pool) SetShuffle(shuffle func(n int, swap func(i, j int))) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.shuffle = shuffle
}

// Clients возвращает все узлы пула
func (p *Pool) Clients() []*NodeClient {
	return p.clients
}

// ActiveClients возвращает активные узлы в случайном порядке
func (p *Pool) ActiveClients() []*NodeClient {
	active := make([]*NodeClient, 0, len(p.clients))
	for _, c := range p.clients {
		if c.IsActive() {
			active = append(active, c)
		}
	}

	p.mu.RLock()
	shuffle := p.shuffle
	p.mu.RUnlock()
	if shuffle != nil {
		shuffle(len(active), func(i, j int) { active[i], active[j] = active[j], active[i] })
	}
	return active
}

// Execute выполняет операцию на активных узлах по очереди, пока одна не
// завершится успешно. Если все узлы отказали, возвращается ErrProviderExhausted.
func (p *Pool) Execute(ctx context.Context, method string, operation func(context.Context, *NodeClient) error) error {
	clients := p.ActiveClients()
	if len(clients) == 0 {
		return types.NewError(types.ErrProviderExhausted, "rpc."+method, ErrNoActiveClients)
	}

	var errs []error
	for _, client := range clients {
		if err := ctx.Err(); err != nil {
			return err
		}

		callCtx, cancel := context.WithTimeout(ctx, p.timeout)
		start := time.Now()
		err := operation(callCtx, client)
		latency := time.Since(start)
		cancel()

		client.record(err == nil, latency)
		p.observe(client.Name(), method, err == nil, latency)

		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		var definitive *DefinitiveError
		if errors.As(err, &definitive) {
			return err
		}

		p.logger.Debug("RPC request failed, trying next node",
			zap.String("endpoint", client.Name()),
			zap.String("method", method),
			zap.Error(err))
		errs = append(errs, &Error{Err: err, Endpoint: client.Name(), Method: method})
	}

	return types.NewError(types.ErrProviderExhausted, "rpc."+method,
		fmt.Errorf("all %d endpoints failed: %w", len(clients), errors.Join(errs...)))
}

// GetBalance возвращает баланс аккаунта в лампортах
func (p *Pool) GetBalance(ctx context.Context, account solana.PublicKey) (uint64, error) {
	var balance uint64
	err := p.Execute(ctx, "getBalance", func(ctx context.Context, c *NodeClient) error {
		res, err := c.Client.GetBalance(ctx, account, solanarpc.CommitmentConfirmed)
		if err != nil {
			return err
		}
		balance = res.Value
		return nil
	})
	return balance, err
}

// GetSignatureStatus возвращает статус подписи или nil, если узел ее еще не видел
func (p *Pool) GetSignatureStatus(ctx context.Context, sig solana.Signature) (*solanarpc.SignatureStatusesResult, error) {
	var status *solanarpc.SignatureStatusesResult
	err := p.Execute(ctx, "getSignatureStatuses", func(ctx context.Context, c *NodeClient) error {
		res, err := c.Client.GetSignatureStatuses(ctx, true, sig)
		if err != nil {
			return err
		}
		if res != nil && len(res.Value) > 0 {
			status = res.Value[0]
		}
		return nil
	})
	return status, err
}

func (p *Pool) observe(url, method string, ok bool, latency time.Duration) {
	p.mu.RLock()
	o := p.observer
	p.mu.RUnlock()
	if o != nil {
		o.ObserveRPC(url, method, ok, latency)
	}
}
