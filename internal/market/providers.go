// internal/market/providers.go
package market

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/rovshanmuradov/sentinel-bot/internal/types"
)

const (
	DefaultJupiterPriceURL = "https://api.jup.ag/price/v2"
	DefaultDexScreenerURL  = "https://api.dexscreener.com/latest/dex"
	DefaultCoinGeckoURL    = "https://api.coingecko.com/api/v3"
)

var errNoPrice = errors.New("no price in response")

// Provider returns a USD price per whole token.
type Provider interface {
	Name() string
	Price(ctx context.Context, mint string) (float64, error)
}

// Scoped providers serve only some assets.
type Scoped interface {
	Supports(mint string) bool
}

// JupiterPrice queries the Jupiter Price API v2.
type JupiterPrice struct {
	baseURL string
	client  *http.Client
}

func NewJupiterPrice(baseURL string, client *http.Client) *JupiterPrice {
	if baseURL == "" {
		baseURL = DefaultJupiterPriceURL
	}
	return &JupiterPrice{baseURL: strings.TrimRight(baseURL, "/"), client: newHTTPClient(client)}
}

func (j *JupiterPrice) Name() string { return "jupiter" }

type jupiterPriceResponse struct {
	Data map[string]*struct {
		ID    string    `json:"id"`
		Price flexFloat `json:"price"`
	} `json:"data"`
}

func (j *JupiterPrice) Price(ctx context.Context, mint string) (float64, error) {
	var resp jupiterPriceResponse
	if err := getJSON(ctx, j.client, j.Name(), j.baseURL+"?ids="+url.QueryEscape(mint), &resp); err != nil {
		return 0, err
	}
	entry, ok := resp.Data[mint]
	if !ok || entry == nil {
		return 0, fmt.Errorf("jupiter: %w for %s", errNoPrice, mint)
	}
	return float64(entry.Price), nil
}

// DexScreener picks the deepest Solana pair where mint is the base token.
type DexScreener struct {
	baseURL string
	client  *http.Client
}

func NewDexScreener(baseURL string, client *http.Client) *DexScreener {
	if baseURL == "" {
		baseURL = DefaultDexScreenerURL
	}
	return &DexScreener{baseURL: strings.TrimRight(baseURL, "/"), client: newHTTPClient(client)}
}

func (d *DexScreener) Name() string { return "dexscreener" }

type dexScreenerResponse struct {
	Pairs []struct {
		ChainID   string `json:"chainId"`
		DexID     string `json:"dexId"`
		BaseToken struct {
			Address string `json:"address"`
		} `json:"baseToken"`
		PriceUSD  flexFloat `json:"priceUsd"`
		Liquidity struct {
			USD float64 `json:"usd"`
		} `json:"liquidity"`
	} `json:"pairs"`
}

func (d *DexScreener) Price(ctx context.Context, mint string) (float64, error) {
	var resp dexScreenerResponse
	if err := getJSON(ctx, d.client, d.Name(), d.baseURL+"/tokens/"+url.PathEscape(mint), &resp); err != nil {
		return 0, err
	}

	best, bestLiquidity := 0.0, -1.0
	for _, pair := range resp.Pairs {
		if pair.ChainID != "" && pair.ChainID != "solana" {
			continue
		}
		if pair.BaseToken.Address != mint || pair.PriceUSD <= 0 {
			continue
		}
		if pair.Liquidity.USD > bestLiquidity {
			best, bestLiquidity = float64(pair.PriceUSD), pair.Liquidity.USD
		}
	}
	if bestLiquidity < 0 {
		return 0, fmt.Errorf("dexscreener: %w for %s", errNoPrice, mint)
	}
	return best, nil
}

// CoinGecko serves the reference asset only.
type CoinGecko struct {
	baseURL string
	client  *http.Client
	ids     map[string]string
}

func NewCoinGecko(baseURL string, client *http.Client) *CoinGecko {
	if baseURL == "" {
		baseURL = DefaultCoinGeckoURL
	}
	return &CoinGecko{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  newHTTPClient(client),
		ids:     map[string]string{types.SOLMint: "solana"},
	}
}

func (c *CoinGecko) Name() string { return "coingecko" }

func (c *CoinGecko) Supports(mint string) bool {
	_, ok := c.ids[mint]
	return ok
}

func (c *CoinGecko) Price(ctx context.Context, mint string) (float64, error) {
	id, ok := c.ids[mint]
	if !ok {
		return 0, fmt.Errorf("coingecko: unsupported asset %s", mint)
	}
	var resp map[string]map[string]flexFloat
	endpoint := fmt.Sprintf("%s/simple/price?ids=%s&vs_currencies=usd", c.baseURL, id)
	if err := getJSON(ctx, c.client, c.Name(), endpoint, &resp); err != nil {
		return 0, err
	}
	v, ok := resp[id]["usd"]
	if !ok {
		return 0, fmt.Errorf("coingecko: %w for %s", errNoPrice, id)
	}
	return float64(v), nil
}
