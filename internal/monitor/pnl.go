// internal/monitor/pnl.go
package monitor

import "math"

// Trigger - сработавший порог выхода.
type Trigger string

const (
	TriggerNone       Trigger = ""
	TriggerTakeProfit Trigger = "TAKE_PROFIT"
	TriggerStopLoss   Trigger = "STOP_LOSS"
)

// epsilon поглощает ошибку округления: 0.10 -> 0.13 дает 29.999999999999996.
const epsilon = 1e-9

// PnLPercent возвращает (current-entry)/entry*100. ok=false для entry <= 0.
func PnLPercent(entry, current float64) (pnl float64, ok bool) {
	if entry <= 0 || math.IsNaN(entry) || math.IsNaN(current) {
		return 0, false
	}
	return (current - entry) / entry * 100, true
}

// Evaluate сравнивает доходность с порогами. Тейк-профит проверяется первым,
// обе границы включительны.
func Evaluate(pnl, takeProfitPct, stopLossPct float64) Trigger {
	if pnl >= takeProfitPct-epsilon {
		return TriggerTakeProfit
	}
	if pnl <= -stopLossPct+epsilon {
		return TriggerStopLoss
	}
	return TriggerNone
}
