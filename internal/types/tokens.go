// internal/types/tokens.go
package types

const (
	// SOLMint is the wrapped SOL mint, the settlement asset for every position.
	SOLMint = "So11111111111111111111111111111111111111112"
	// USDCMint is used as the quote side for reference prices.
	USDCMint = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"

	LamportsPerSOL = 1_000_000_000

	// DefaultTokenDecimals используется, когда децималы токена неизвестны
	DefaultTokenDecimals = 6
)

// LamportsToSOL converts lamports to whole SOL.
func LamportsToSOL(lamports uint64) float64 {
	return float64(lamports) / LamportsPerSOL
}

// SOLToLamports converts whole SOL to lamports, truncating dust.
func SOLToLamports(sol float64) uint64 {
	if sol <= 0 {
		return 0
	}
	return uint64(sol * LamportsPerSOL)
}
