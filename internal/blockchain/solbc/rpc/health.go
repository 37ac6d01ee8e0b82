// internal/blockchain/solbc/rpc/health.go
package rpc

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Run периодически проверяет узлы через getVersion до отмены контекста.
func (p *Pool) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = HealthCheckInterval
	}
	p.CheckHealth(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			p.CheckHealth(ctx)
		}
	}
}

// CheckHealth опрашивает все узлы параллельно и возвращает число активных.
func (p *Pool) CheckHealth(ctx context.Context) int {
	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		active int
	)

	for _, node := range p.clients {
		wg.Add(1)
		go func(n *NodeClient) {
			defer wg.Done()

			healthy := p.checkNodeHealth(ctx, n)
			wasActive := n.IsActive()
			n.SetActive(healthy)

			switch {
			case healthy && !wasActive:
				p.logger.Info("Node is back online", zap.String("endpoint", n.Name()))
			case !healthy && wasActive:
				p.logger.Warn("Node marked as inactive", zap.String("endpoint", n.Name()))
			}

			if healthy {
				mu.Lock()
				active++
				mu.Unlock()
			}
		}(node)
	}
	wg.Wait()

	if active == 0 {
		p.logger.Error("No healthy RPC nodes", zap.Int("total_nodes", len(p.clients)))
	} else if active < len(p.clients)/2 {
		p.logger.Warn("Low number of active nodes",
			zap.Int("active_nodes", active),
			zap.Int("total_nodes", len(p.clients)))
	}

	p.mu.RLock()
	o := p.observer
	p.mu.RUnlock()
	if o != nil {
		o.SetActiveEndpoints(active)
	}
	return active
}

func (p *Pool) checkNodeHealth(ctx context.Context, node *NodeClient) bool {
	ctx, cancel := context.WithTimeout(ctx, HealthCheckTimeout)
	defer cancel()

	start := time.Now()
	_, err := node.Client.GetVersion(ctx)
	latency := time.Since(start)
	node.record(err == nil, latency)

	if err != nil {
		p.logger.Debug("Node health check failed",
			zap.String("endpoint", node.Name()),
			zap.Error(err))
		return false
	}
	return true
}
