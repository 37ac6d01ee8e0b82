package jupiter

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/rovshanmuradov/sentinel-bot/internal/types"
)

const quoteBody = `{"inputMint":"So11111111111111111111111111111111111111112","outputMint":"Mint111","inAmount":"1000000000","outAmount":"250000","otherAmountThreshold":"247500","priceImpactPct":"0.0012","slippageBps":100,"routePlan":[]}`

func testRequest() SwapRequest {
	return SwapRequest{
		InputMint:                 types.SOLMint,
		OutputMint:                "Mint111",
		Amount:                    1_000_000_000,
		SlippageBps:               100,
		UserPublicKey:             "User111",
		PrioritizationFeeLamports: 10_000,
	}
}

func newTestClient(t *testing.T, srv *httptest.Server, retries int) *Client {
	return NewClient(Config{
		QuoteURL:       srv.URL + "/quote",
		SwapURL:        srv.URL + "/swap",
		MaxRetries:     retries,
		RateLimit:      1000,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
		HTTPClient:     srv.Client(),
	}, zaptest.NewLogger(t))
}

func TestGetQuoteAndTransaction(t *testing.T) {
	txBytes := []byte{1, 2, 3, 4, 5}
	var swapBody swapPayload

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/quote":
			assert.Equal(t, "1000000000", r.URL.Query().Get("amount"))
			assert.Equal(t, "100", r.URL.Query().Get("slippageBps"))
			_, _ = io.WriteString(w, quoteBody)
		case "/swap":
			assert.Equal(t, http.MethodPost, r.Method)
			require.NoError(t, json.NewDecoder(r.Body).Decode(&swapBody))
			_ = json.NewEncoder(w).Encode(map[string]any{
				"swapTransaction":      base64.StdEncoding.EncodeToString(txBytes),
				"lastValidBlockHeight": 4242,
			})
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := newTestClient(t, srv, 0)
	tx, err := c.GetQuoteAndTransaction(context.Background(), testRequest())
	require.NoError(t, err)

	assert.Equal(t, txBytes, tx.Raw)
	assert.Equal(t, uint64(4242), tx.LastValidBlockHeight)
	assert.Equal(t, uint64(250_000), tx.Quote.OutAmount)
	assert.Equal(t, uint64(247_500), tx.Quote.OtherAmountThreshold)
	assert.InDelta(t, 0.0012, tx.Quote.PriceImpactPct, 1e-9)

	// котировка уходит обратно без изменений
	assert.JSONEq(t, quoteBody, string(swapBody.QuoteResponse))
	assert.Equal(t, "User111", swapBody.UserPublicKey)
	assert.True(t, swapBody.WrapAndUnwrapSol)
	assert.Equal(t, uint64(10_000), swapBody.PrioritizationFeeLamports)
}

func TestGetQuote_RetriesTransientFailures(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch calls.Add(1) {
		case 1:
			w.WriteHeader(http.StatusTooManyRequests)
		case 2:
			w.WriteHeader(http.StatusBadGateway)
		default:
			_, _ = io.WriteString(w, quoteBody)
		}
	}))
	defer srv.Close()

	q, err := newTestClient(t, srv, 3).GetQuote(context.Background(), testRequest())
	require.NoError(t, err)
	assert.Equal(t, uint64(250_000), q.OutAmount)
	assert.Equal(t, int32(3), calls.Load())
}

func TestGetQuote_RetriesExhausted(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv, 2).GetQuote(context.Background(), testRequest())
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrQuote)

	var qe *QuoteError
	require.True(t, errors.As(err, &qe))
	assert.True(t, qe.Temporary)
	assert.Equal(t, http.StatusServiceUnavailable, qe.StatusCode)
	assert.Equal(t, int32(3), calls.Load())
}

func TestGetQuote_DefinitiveRejection(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		msg    string
	}{
		{"bad request", http.StatusBadRequest, `{"error":"Could not find any route"}`, "Could not find any route"},
		{"error field", http.StatusOK, `{"error":"TOKEN_NOT_TRADABLE"}`, "TOKEN_NOT_TRADABLE"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				calls.Add(1)
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			}))
			defer srv.Close()

			_, err := newTestClient(t, srv, 3).GetQuote(context.Background(), testRequest())
			require.Error(t, err)
			assert.ErrorIs(t, err, types.ErrQuote)

			var qe *QuoteError
			require.True(t, errors.As(err, &qe))
			assert.False(t, qe.Temporary)
			assert.Equal(t, tt.msg, qe.Message)
			assert.Equal(t, int32(1), calls.Load(), "definitive rejection must not be retried")
		})
	}
}

func TestBuildSwap_MissingTransaction(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/quote" {
			_, _ = io.WriteString(w, quoteBody)
			return
		}
		_, _ = io.WriteString(w, `{"lastValidBlockHeight":1}`)
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv, 0).GetQuoteAndTransaction(context.Background(), testRequest())
	require.Error(t, err)

	var qe *QuoteError
	require.True(t, errors.As(err, &qe))
	assert.Equal(t, "swap", qe.Phase)
}

func TestGetQuote_InvalidRequest(t *testing.T) {
	c := NewClient(Config{}, zaptest.NewLogger(t))

	req := testRequest()
	req.Amount = 0
	_, err := c.GetQuote(context.Background(), req)
	assert.ErrorIs(t, err, types.ErrQuote)

	req = testRequest()
	req.OutputMint = req.InputMint
	_, err = c.GetQuote(context.Background(), req)
	assert.ErrorIs(t, err, types.ErrQuote)
}

func TestGetQuote_ContextCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestClient(t, srv, 5).GetQuote(ctx, testRequest())
	assert.ErrorIs(t, err, context.Canceled)
}
