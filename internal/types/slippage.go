// internal/types/slippage.go
package types

import "fmt"

const (
	// MaxSlippageBps ограничивает проскальзывание 50%
	MaxSlippageBps = 5000
	// DefaultSlippageBps соответствует 1%
	DefaultSlippageBps = 100
)

// SlippageBps хранит допустимое проскальзывание в базисных пунктах (1 bps = 0.01%).
type SlippageBps uint16

// Validate проверяет диапазон значения.
func (s SlippageBps) Validate() error {
	if s == 0 || s > MaxSlippageBps {
		return fmt.Errorf("slippage_bps must be in (0, %d], got %d", MaxSlippageBps, s)
	}
	return nil
}
