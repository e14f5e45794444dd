package backtest

import (
	"fmt"
	"time"

	"github.com/rustyeddy/jsetrader/market"
)

// InputError is a fatal problem with the data fed into a run: a missing
// price, a malformed decision or an unknown symbol. The run stops at Date.
type InputError struct {
	Date   time.Time
	Symbol string
	Err    error
}

func (e *InputError) Error() string {
	date := "-"
	if !e.Date.IsZero() {
		date = e.Date.Format(market.DateLayout)
	}
	if e.Symbol == "" {
		return fmt.Sprintf("input error on %s: %v", date, e.Err)
	}
	return fmt.Sprintf("input error on %s for %s: %v", date, e.Symbol, e.Err)
}

func (e *InputError) Unwrap() error { return e.Err }
