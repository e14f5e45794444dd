package risk

import (
	"fmt"
	"math"
)

// Limits are the hard risk constraints of one run. They are immutable once
// the engine is built and are passed explicitly, never read from globals.
type Limits struct {
	// Post-trade position value / equity.
	MaxPositionFraction float64 `json:"max_position_fraction" yaml:"max_position_fraction"`
	// Post-trade sector value / equity.
	MaxSectorFraction float64 `json:"max_sector_fraction" yaml:"max_sector_fraction"`
	// Loss from average cost that forces a full exit.
	StopLossFraction float64 `json:"stop_loss_fraction" yaml:"stop_loss_fraction"`
	// Decline from the previous close that blocks new buys for the day.
	MaxDailyDrawdownFraction float64 `json:"max_daily_drawdown_fraction" yaml:"max_daily_drawdown_fraction"`
}

// DefaultLimits are the JSE defaults: 5% per position, 30% per sector,
// 15% stop loss and a 2% daily drawdown breaker.
func DefaultLimits() Limits {
	return Limits{
		MaxPositionFraction:      0.05,
		MaxSectorFraction:        0.30,
		StopLossFraction:         0.15,
		MaxDailyDrawdownFraction: 0.02,
	}
}

// Validate checks every fraction is within (0, 1].
func (l Limits) Validate() error {
	check := func(name string, v float64) error {
		if math.IsNaN(v) || v <= 0 || v > 1 {
			return fmt.Errorf("risk.%s must be between 0 and 1", name)
		}
		return nil
	}
	if err := check("max_position_fraction", l.MaxPositionFraction); err != nil {
		return err
	}
	if err := check("max_sector_fraction", l.MaxSectorFraction); err != nil {
		return err
	}
	if err := check("stop_loss_fraction", l.StopLossFraction); err != nil {
		return err
	}
	return check("max_daily_drawdown_fraction", l.MaxDailyDrawdownFraction)
}
