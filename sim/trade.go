package sim

import (
	"time"

	"github.com/rustyeddy/jsetrader/risk"
	"github.com/rustyeddy/jsetrader/strategies"
	"github.com/shopspring/decimal"
)

// Source tells where a decision came from.
type Source string

const (
	External       Source = "EXTERNAL"
	ForcedStopLoss Source = "FORCED_STOP_LOSS"
)

// Order is a decision tagged with its source.
type Order struct {
	Decision strategies.Decision
	Source   Source
}

// TradeRecord is the audit entry for one BUY or SELL decision, whether it
// was filled, clipped or rejected. Quantities are unsigned share counts.
type TradeRecord struct {
	Date            time.Time         `json:"date"`
	Symbol          string            `json:"symbol"`
	Action          strategies.Action `json:"action"`
	Source          Source            `json:"source"`
	Requested       int64             `json:"requested"`
	Quantity        int64             `json:"quantity"`
	Price           decimal.Decimal   `json:"price"`
	Outcome         risk.Outcome      `json:"outcome"`
	TriggeredLimits []risk.Limit      `json:"triggered_limits,omitempty"`
	Notes           []string          `json:"notes,omitempty"`
	RealizedPnL     decimal.Decimal   `json:"realized_pnl"`
	SettlementDate  time.Time         `json:"settlement_date"`
	Reason          string            `json:"reason,omitempty"`
}

// Notional is the traded value.
func (t TradeRecord) Notional() decimal.Decimal {
	return t.Price.Mul(decimal.NewFromInt(t.Quantity))
}

// SettlementDate adds n weekdays to trade date.
func SettlementDate(date time.Time, n int) time.Time {
	d := date
	for n > 0 {
		d = d.AddDate(0, 0, 1)
		if d.Weekday() == time.Saturday || d.Weekday() == time.Sunday {
			continue
		}
		n--
	}
	return d
}
