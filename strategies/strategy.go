package strategies

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/rustyeddy/jsetrader/portfolio"
	"github.com/shopspring/decimal"
)

type Action string

const (
	Hold Action = "HOLD"
	Buy  Action = "BUY"
	Sell Action = "SELL"
)

// ParseAction accepts any casing of BUY, SELL or HOLD.
func ParseAction(s string) (Action, error) {
	switch a := Action(strings.ToUpper(strings.TrimSpace(s))); a {
	case Hold, Buy, Sell:
		return a, nil
	default:
		return "", fmt.Errorf("unknown action %q", s)
	}
}

// Decision is one instruction for one symbol on one day.
//
// Quantity wins when positive. Otherwise Fraction is used: for BUY it is a
// fraction of current equity, for SELL a fraction of the held quantity.
type Decision struct {
	Symbol   string  `json:"symbol"`
	Action   Action  `json:"action"`
	Quantity int64   `json:"quantity,omitempty"`
	Fraction float64 `json:"fraction,omitempty"`
	Reason   string  `json:"reason,omitempty"`
}

// Validate rejects malformed decisions.
func (d Decision) Validate() error {
	switch d.Action {
	case Hold, Buy, Sell:
	default:
		return fmt.Errorf("decision %s: unknown action %q", d.Symbol, d.Action)
	}
	if d.Quantity < 0 {
		return fmt.Errorf("decision %s: negative quantity %d", d.Symbol, d.Quantity)
	}
	if math.IsNaN(d.Fraction) || d.Fraction < 0 || d.Fraction > 1 {
		return fmt.Errorf("decision %s: fraction %.4f outside [0,1]", d.Symbol, d.Fraction)
	}
	if d.Action != Hold && d.Quantity == 0 && d.Fraction == 0 {
		return fmt.Errorf("decision %s: %s needs a quantity or fraction", d.Symbol, d.Action)
	}
	return nil
}

// View is the read-only context handed to a DecisionProvider.
type View struct {
	Date     time.Time
	Cash     decimal.Decimal
	Equity   decimal.Decimal
	Holdings []portfolio.Position
	Prices   portfolio.Prices
}

// Held returns the quantity of symbol in the view.
func (v View) Held(symbol string) int64 {
	for _, p := range v.Holdings {
		if p.Symbol == symbol {
			return p.Quantity
		}
	}
	return 0
}

// DecisionProvider is the pluggable source of trading decisions. Symbols
// left out of the returned map are treated as HOLD.
type DecisionProvider interface {
	Name() string
	Decide(ctx context.Context, date time.Time, symbols []string, view View) (map[string]Decision, error)
}

// Resetter is implemented by providers that keep state between days. The
// backtest loop calls Reset before the first day of every run.
type Resetter interface {
	Reset()
}

// ByName builds one of the built-in providers. Scripted providers are
// loaded from decisionsPath.
func ByName(name string, fraction float64, decisionsPath string) (DecisionProvider, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "hold", "noop", "none":
		return HoldStrategy{}, nil
	case "buy-once", "buyonce":
		return &BuyOnce{Fraction: fraction}, nil
	case "scripted", "file":
		if decisionsPath == "" {
			return nil, fmt.Errorf("scripted strategy needs a decisions file")
		}
		return LoadScripted(decisionsPath)
	default:
		return nil, fmt.Errorf("unknown strategy %q (supported: hold, buy-once, scripted)", name)
	}
}
