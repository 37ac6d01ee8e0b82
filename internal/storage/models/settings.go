// internal/storage/models/settings.go
package models

import (
	"fmt"
	"math"
	"time"

	"github.com/rovshanmuradov/sentinel-bot/internal/types"
)

const (
	DefaultTakeProfitPct = 30.0
	DefaultStopLossPct   = 15.0
)

// RiskSettings are per-user thresholds. StopLossPct is a positive magnitude;
// the trigger is pnl <= -StopLossPct.
type RiskSettings struct {
	UserID         int64
	SlippageBps    types.SlippageBps
	AutoBuy        bool
	AutoSell       bool
	SimulationMode bool
	TakeProfitPct  float64
	StopLossPct    float64
	UpdatedAt      time.Time
}

// DefaultRiskSettings returns the settings created on first read.
func DefaultRiskSettings(userID int64) RiskSettings {
	return RiskSettings{
		UserID:         userID,
		SlippageBps:    types.DefaultSlippageBps,
		AutoBuy:        false,
		AutoSell:       true,
		SimulationMode: true,
		TakeProfitPct:  DefaultTakeProfitPct,
		StopLossPct:    DefaultStopLossPct,
	}
}

func (r RiskSettings) Validate() error {
	if err := r.SlippageBps.Validate(); err != nil {
		return err
	}
	if !(r.TakeProfitPct > 0) || math.IsInf(r.TakeProfitPct, 0) {
		return fmt.Errorf("take_profit_pct must be positive, got %v", r.TakeProfitPct)
	}
	if !(r.StopLossPct > 0) || r.StopLossPct > 100 {
		return fmt.Errorf("stop_loss_pct must be in (0, 100], got %v", r.StopLossPct)
	}
	return nil
}
