package portfolio

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	ErrUnknownSymbol = errors.New("unknown symbol")
	ErrMissingPrice  = errors.New("missing price")
	ErrBadPrice      = errors.New("price must be positive")
)

// InsufficientCashError is returned when a buy would take cash below the floor.
type InsufficientCashError struct {
	Symbol    string
	Required  decimal.Decimal
	Available decimal.Decimal
	Floor     decimal.Decimal
}

func (e *InsufficientCashError) Error() string {
	return fmt.Sprintf("insufficient cash for %s: need %s, have %s (floor %s)",
		e.Symbol, e.Required.StringFixed(2), e.Available.StringFixed(2), e.Floor.StringFixed(2))
}

// InsufficientSharesError is returned when a sell exceeds the held quantity.
type InsufficientSharesError struct {
	Symbol    string
	Requested int64
	Held      int64
}

func (e *InsufficientSharesError) Error() string {
	return fmt.Sprintf("insufficient shares of %s: selling %d, holding %d", e.Symbol, e.Requested, e.Held)
}
