package portfolio

import "github.com/shopspring/decimal"

// Position is a long holding in one symbol. Quantity is always positive
// while the position exists.
type Position struct {
	Symbol      string          `json:"symbol"`
	Quantity    int64           `json:"quantity"`
	AverageCost decimal.Decimal `json:"average_cost"`
}

// Value is the mark-to-market value at price.
func (p Position) Value(price decimal.Decimal) decimal.Decimal {
	return price.Mul(decimal.NewFromInt(p.Quantity))
}

// UnrealizedPnL is (price - average cost) * quantity.
func (p Position) UnrealizedPnL(price decimal.Decimal) decimal.Decimal {
	return price.Sub(p.AverageCost).Mul(decimal.NewFromInt(p.Quantity))
}

// Return is the fractional move of price against the average cost.
func (p Position) Return(price decimal.Decimal) decimal.Decimal {
	if p.AverageCost.IsZero() {
		return decimal.Zero
	}
	return price.Sub(p.AverageCost).Div(p.AverageCost)
}
