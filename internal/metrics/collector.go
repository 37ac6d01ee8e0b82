// internal/metrics/collector.go
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const namespace = "sentinel"

// Collector держит метрики движка в собственном реестре, чтобы несколько
// экземпляров (например, в тестах) не конфликтовали в глобальном.
type Collector struct {
	registry *prometheus.Registry

	priceFetches    *prometheus.CounterVec
	priceLatency    *prometheus.HistogramVec
	rpcRequests     *prometheus.CounterVec
	rpcLatency      *prometheus.HistogramVec
	activeEndpoints prometheus.Gauge
	submissions     *prometheus.CounterVec
	submitDuration  prometheus.Histogram
	trades          *prometheus.CounterVec
	tradeDuration   *prometheus.HistogramVec
	cycles          *prometheus.CounterVec
	cycleDuration   prometheus.Histogram
	openPositions   prometheus.Gauge
	triggers        *prometheus.CounterVec
}

// NewCollector создает новый экземпляр коллектора метрик
func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),

		priceFetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "price_fetches_total",
			Help:      "Price provider requests by outcome",
		}, []string{"provider", "status"}),
		priceLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "price_fetch_duration_seconds",
			Help:      "Price provider latency in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 10),
		}, []string{"provider"}),
		rpcRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rpc_requests_total",
			Help:      "RPC requests by endpoint, method and outcome",
		}, []string{"endpoint", "method", "status"}),
		rpcLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "rpc_latency_seconds",
			Help:      "RPC request latency in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12),
		}, []string{"method", "endpoint"}),
		activeEndpoints: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "rpc_active_endpoints",
			Help:      "Endpoints that passed the last liveness probe",
		}),
		submissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transactions_total",
			Help:      "Submitted transactions by outcome",
		}, []string{"outcome"}),
		submitDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "transaction_duration_seconds",
			Help:      "Time from signing to broadcast or confirmation",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
		}),
		trades: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "trades_total",
			Help:      "Trades by side and outcome",
		}, []string{"side", "outcome"}),
		tradeDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "trade_duration_seconds",
			Help:      "Trade execution time in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
		}, []string{"side"}),
		cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "monitor_cycles_total",
			Help:      "Risk monitor cycles by outcome",
		}, []string{"status"}),
		cycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "monitor_cycle_duration_seconds",
			Help:      "Risk monitor cycle duration in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
		openPositions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "open_positions",
			Help:      "Open positions seen by the last monitor cycle",
		}),
		triggers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "triggers_total",
			Help:      "Exit triggers by kind and outcome",
		}, []string{"trigger", "outcome"}),
	}

	c.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		c.priceFetches, c.priceLatency,
		c.rpcRequests, c.rpcLatency, c.activeEndpoints,
		c.submissions, c.submitDuration,
		c.trades, c.tradeDuration,
		c.cycles, c.cycleDuration, c.openPositions,
		c.triggers,
	)
	return c
}

// Registry возвращает реестр для экспорта.
func (c *Collector) Registry() *prometheus.Registry { return c.registry }

func status(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}

// ObservePriceFetch записывает результат запроса к поставщику цен
func (c *Collector) ObservePriceFetch(provider string, ok bool, d time.Duration) {
	c.priceFetches.WithLabelValues(provider, status(ok)).Inc()
	c.priceLatency.WithLabelValues(provider).Observe(d.Seconds())
}

// ObserveRPC записывает метрики RPC-запроса
func (c *Collector) ObserveRPC(endpoint, method string, ok bool, d time.Duration) {
	c.rpcRequests.WithLabelValues(endpoint, method, status(ok)).Inc()
	c.rpcLatency.WithLabelValues(method, endpoint).Observe(d.Seconds())
}

func (c *Collector) SetActiveEndpoints(n int) {
	c.activeEndpoints.Set(float64(n))
}

func (c *Collector) ObserveSubmission(outcome string, d time.Duration) {
	c.submissions.WithLabelValues(outcome).Inc()
	c.submitDuration.Observe(d.Seconds())
}

func (c *Collector) ObserveTrade(side, outcome string, d time.Duration) {
	c.trades.WithLabelValues(side, outcome).Inc()
	c.tradeDuration.WithLabelValues(side).Observe(d.Seconds())
}

// ObserveCycle записывает длительность цикла монитора и число открытых позиций
func (c *Collector) ObserveCycle(d time.Duration, positions int, err error) {
	c.cycles.WithLabelValues(status(err == nil)).Inc()
	c.cycleDuration.Observe(d.Seconds())
	if err == nil {
		c.openPositions.Set(float64(positions))
	}
}

func (c *Collector) ObserveTrigger(trigger, outcome string) {
	c.triggers.WithLabelValues(trigger, outcome).Inc()
}
