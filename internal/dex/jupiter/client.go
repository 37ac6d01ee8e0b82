// internal/dex/jupiter/client.go
package jupiter

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	DefaultQuoteURL   = "https://quote-api.jup.ag/v6/quote"
	DefaultSwapURL    = "https://quote-api.jup.ag/v6/swap"
	DefaultMaxRetries = 3
	DefaultRateLimit  = 5 // запросов в секунду

	maxBodySize = 4 << 20
)

type Config struct {
	QuoteURL   string
	SwapURL    string
	MaxRetries int
	// RateLimit ограничивает запросы к агрегатору (в секунду).
	RateLimit      float64
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	HTTPClient     *http.Client
}

// Client получает котировки и собирает транзакции свапа через Jupiter v6.
type Client struct {
	cfg     Config
	client  *http.Client
	limiter *rate.Limiter
	logger  *zap.Logger
}

func NewClient(cfg Config, logger *zap.Logger) *Client {
	if cfg.QuoteURL == "" {
		cfg.QuoteURL = DefaultQuoteURL
	}
	if cfg.SwapURL == "" {
		cfg.SwapURL = DefaultSwapURL
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = DefaultRateLimit
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = 500 * time.Millisecond
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = 5 * time.Second
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	burst := int(cfg.RateLimit)
	if burst < 1 {
		burst = 1
	}
	return &Client{
		cfg:     cfg,
		client:  httpClient,
		limiter: rate.NewLimiter(rate.Limit(cfg.RateLimit), burst),
		logger:  logger.Named("jupiter"),
	}
}

// GetQuoteAndTransaction запрашивает котировку и собирает по ней неподписанную транзакцию.
func (c *Client) GetQuoteAndTransaction(ctx context.Context, req SwapRequest) (*UnsignedTransaction, error) {
	quote, err := c.GetQuote(ctx, req)
	if err != nil {
		return nil, err
	}
	return c.BuildSwap(ctx, quote, req)
}

// GetQuote выполняет фазу котировки.
func (c *Client) GetQuote(ctx context.Context, req SwapRequest) (*Quote, error) {
	if err := req.validate(); err != nil {
		return nil, &QuoteError{Phase: "quote", Message: err.Error()}
	}

	params := url.Values{}
	params.Set("inputMint", req.InputMint)
	params.Set("outputMint", req.OutputMint)
	params.Set("amount", strconv.FormatUint(req.Amount, 10))
	params.Set("slippageBps", strconv.Itoa(int(req.SlippageBps)))
	endpoint := c.cfg.QuoteURL + "?" + params.Encode()

	body, err := c.do(ctx, "quote", func(ctx context.Context) (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	})
	if err != nil {
		return nil, err
	}

	quote, reason, err := decodeQuote(body)
	if err != nil {
		return nil, &QuoteError{Phase: "quote", Err: err}
	}
	if reason != "" {
		return nil, &QuoteError{Phase: "quote", Message: reason}
	}
	if quote.OutAmount == 0 {
		return nil, &QuoteError{Phase: "quote", Message: "zero output amount"}
	}

	c.logger.Debug("Quote received",
		zap.String("input_mint", req.InputMint),
		zap.String("output_mint", req.OutputMint),
		zap.Uint64("in_amount", quote.InAmount),
		zap.Uint64("out_amount", quote.OutAmount),
		zap.Float64("price_impact_pct", quote.PriceImpactPct))
	return quote, nil
}

// BuildSwap выполняет фазу сборки транзакции по котировке.
func (c *Client) BuildSwap(ctx context.Context, quote *Quote, req SwapRequest) (*UnsignedTransaction, error) {
	payload, err := json.Marshal(swapPayload{
		QuoteResponse:             quote.Raw,
		UserPublicKey:             req.UserPublicKey,
		WrapAndUnwrapSol:          true,
		PrioritizationFeeLamports: req.PrioritizationFeeLamports,
		DynamicComputeUnitLimit:   true,
	})
	if err != nil {
		return nil, &QuoteError{Phase: "swap", Err: err}
	}

	body, err := c.do(ctx, "swap", func(ctx context.Context) (*http.Request, error) {
		r, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.SwapURL, bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		r.Header.Set("Content-Type", "application/json")
		return r, nil
	})
	if err != nil {
		return nil, err
	}

	var resp swapWire
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, &QuoteError{Phase: "swap", Err: fmt.Errorf("decode swap: %w", err)}
	}
	if resp.Error != "" {
		return nil, &QuoteError{Phase: "swap", Message: resp.Error}
	}
	if resp.SwapTransaction == "" {
		return nil, &QuoteError{Phase: "swap", Message: "response has no swapTransaction"}
	}
	raw, err := base64.StdEncoding.DecodeString(resp.SwapTransaction)
	if err != nil {
		return nil, &QuoteError{Phase: "swap", Err: fmt.Errorf("decode swapTransaction: %w", err)}
	}

	return &UnsignedTransaction{
		Raw:                  raw,
		Quote:                *quote,
		LastValidBlockHeight: resp.LastValidBlockHeight,
	}, nil
}

// do выполняет запрос с ограничением частоты и экспоненциальными повторами
// на сетевых ошибках, 429 и 5xx.
func (c *Client) do(ctx context.Context, phase string, newRequest func(context.Context) (*http.Request, error)) ([]byte, error) {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.cfg.InitialBackoff
	policy.MaxInterval = c.cfg.MaxBackoff

	notify := func(err error, d time.Duration) {
		c.logger.Warn("Retrying aggregator request",
			zap.String("phase", phase),
			zap.Error(err),
			zap.Duration("backoff", d))
	}

	operation := func() ([]byte, error) {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, backoff.Permanent(err)
		}
		req, err := newRequest(ctx)
		if err != nil {
			return nil, backoff.Permanent(&QuoteError{Phase: phase, Err: err})
		}

		resp, err := c.client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, backoff.Permanent(ctx.Err())
			}
			return nil, err
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
		if err != nil {
			return nil, err
		}

		switch {
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			return nil, &retryableStatusError{StatusCode: resp.StatusCode, Body: snippet(body)}
		case resp.StatusCode >= 400:
			return nil, backoff.Permanent(&QuoteError{
				Phase:      phase,
				StatusCode: resp.StatusCode,
				Message:    errorMessage(body),
			})
		}
		return body, nil
	}

	body, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(policy),
		backoff.WithMaxTries(uint(c.cfg.MaxRetries+1)),
		backoff.WithNotify(notify))
	if err == nil {
		return body, nil
	}

	var qe *QuoteError
	if errors.As(err, &qe) {
		return nil, qe
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	out := &QuoteError{Phase: phase, Temporary: true, Err: err}
	var rs *retryableStatusError
	if errors.As(err, &rs) {
		out.StatusCode = rs.StatusCode
	}
	return nil, out
}

func errorMessage(body []byte) string {
	var e struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if json.Unmarshal(body, &e) == nil {
		if e.Error != "" {
			return e.Error
		}
		if e.Message != "" {
			return e.Message
		}
	}
	return snippet(body)
}

func snippet(body []byte) string {
	if len(body) > 256 {
		return string(body[:256])
	}
	return string(body)
}
