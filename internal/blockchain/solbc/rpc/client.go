// internal/blockchain/solbc/rpc/client.go
package rpc

import (
	"net/url"
	"sync"
	"time"

	solanarpc "github.com/gagliardetto/solana-go/rpc"
)

// latencyWeight - вес нового замера в скользящей задержке.
const latencyWeight = 0.2

// NodeClient - один узел пула. URL может содержать ключ провайдера,
// поэтому в логи и метрики попадает только Name().
type NodeClient struct {
	Client Endpoint
	URL    string
	name   string

	mu    sync.RWMutex
	stats NodeStats
	// active меняет только проверка здоровья
	active bool
}

// NodeStats - накопленная статистика вызовов узла.
type NodeStats struct {
	Successes           uint64
	Failures            uint64
	ConsecutiveFailures int
	Latency             time.Duration
	LastSuccess         time.Time
	LastFailure         time.Time
}

// NewClient создает узел поверх настоящего JSON-RPC клиента
func NewClient(rawURL string) *NodeClient {
	return NewNode(rawURL, solanarpc.New(rawURL))
}

// NewNode создает узел с произвольной реализацией Endpoint
func NewNode(rawURL string, endpoint Endpoint) *NodeClient {
	return &NodeClient{
		Client: endpoint,
		URL:    rawURL,
		name:   redact(rawURL),
		active: true,
	}
}

// redact оставляет схему, хост и путь без query и userinfo.
func redact(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return rawURL
	}
	return u.Scheme + "://" + u.Host + u.EscapedPath()
}

func (c *NodeClient) Name() string { return c.name }

func (c *NodeClient) Stats() NodeStats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.stats
}

func (c *NodeClient) SetActive(state bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.active = state
}

func (c *NodeClient) IsActive() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.active
}

func (c *NodeClient) record(ok bool, latency time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	if ok {
		c.stats.Successes++
		c.stats.ConsecutiveFailures = 0
		c.stats.LastSuccess = now
	} else {
		c.stats.Failures++
		c.stats.ConsecutiveFailures++
		c.stats.LastFailure = now
	}

	if c.stats.Latency == 0 {
		c.stats.Latency = latency
		return
	}
	c.stats.Latency += time.Duration(latencyWeight * float64(latency-c.stats.Latency))
}
