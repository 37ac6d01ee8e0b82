// internal/dex/jupiter/types.go
package jupiter

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/rovshanmuradov/sentinel-bot/internal/types"
)

// SwapRequest описывает обмен InputMint -> OutputMint.
type SwapRequest struct {
	InputMint                 string
	OutputMint                string
	Amount                    uint64 // в базовых единицах InputMint
	SlippageBps               types.SlippageBps
	UserPublicKey             string
	PrioritizationFeeLamports uint64
}

func (r SwapRequest) validate() error {
	switch {
	case r.InputMint == "" || r.OutputMint == "":
		return fmt.Errorf("input and output mints are required")
	case r.InputMint == r.OutputMint:
		return fmt.Errorf("input and output mints must differ")
	case r.Amount == 0:
		return fmt.Errorf("amount must be positive")
	case r.UserPublicKey == "":
		return fmt.Errorf("user public key is required")
	}
	return r.SlippageBps.Validate()
}

// Quote is a decoded quote. Raw is sent back verbatim when building the swap.
type Quote struct {
	InputMint            string
	OutputMint           string
	InAmount             uint64
	OutAmount            uint64
	OtherAmountThreshold uint64
	PriceImpactPct       float64
	SlippageBps          int
	Raw                  json.RawMessage
}

type quoteWire struct {
	InputMint            string `json:"inputMint"`
	OutputMint           string `json:"outputMint"`
	InAmount             string `json:"inAmount"`
	OutAmount            string `json:"outAmount"`
	OtherAmountThreshold string `json:"otherAmountThreshold"`
	PriceImpactPct       string `json:"priceImpactPct"`
	SlippageBps          int    `json:"slippageBps"`
	Error                string `json:"error"`
}

func decodeQuote(body []byte) (*Quote, string, error) {
	var w quoteWire
	if err := json.Unmarshal(body, &w); err != nil {
		return nil, "", fmt.Errorf("decode quote: %w", err)
	}
	if w.Error != "" {
		return nil, w.Error, nil
	}

	q := &Quote{
		InputMint:   w.InputMint,
		OutputMint:  w.OutputMint,
		SlippageBps: w.SlippageBps,
		Raw:         json.RawMessage(body),
	}
	var err error
	if q.InAmount, err = parseAmount("inAmount", w.InAmount); err != nil {
		return nil, "", err
	}
	if q.OutAmount, err = parseAmount("outAmount", w.OutAmount); err != nil {
		return nil, "", err
	}
	if w.OtherAmountThreshold != "" {
		if q.OtherAmountThreshold, err = parseAmount("otherAmountThreshold", w.OtherAmountThreshold); err != nil {
			return nil, "", err
		}
	}
	if w.PriceImpactPct != "" {
		if q.PriceImpactPct, err = strconv.ParseFloat(w.PriceImpactPct, 64); err != nil {
			return nil, "", fmt.Errorf("parse priceImpactPct: %w", err)
		}
	}
	return q, "", nil
}

func parseAmount(field, v string) (uint64, error) {
	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse %s %q: %w", field, v, err)
	}
	return n, nil
}

type swapPayload struct {
	QuoteResponse             json.RawMessage `json:"quoteResponse"`
	UserPublicKey             string          `json:"userPublicKey"`
	WrapAndUnwrapSol          bool            `json:"wrapAndUnwrapSol"`
	PrioritizationFeeLamports uint64          `json:"prioritizationFeeLamports"`
	DynamicComputeUnitLimit   bool            `json:"dynamicComputeUnitLimit"`
}

type swapWire struct {
	SwapTransaction      string `json:"swapTransaction"`
	LastValidBlockHeight uint64 `json:"lastValidBlockHeight"`
	Error                string `json:"error"`
}

// UnsignedTransaction is a serialized transaction ready for local signing.
type UnsignedTransaction struct {
	Raw                  []byte
	Quote                Quote
	LastValidBlockHeight uint64
}
