package risk

import "github.com/shopspring/decimal"

// MaxQuantity is the largest whole number of shares at price that fits in
// budget. A non-positive budget or price yields zero.
func MaxQuantity(budget, price decimal.Decimal) int64 {
	if !budget.IsPositive() || !price.IsPositive() {
		return 0
	}
	return budget.Div(price).Floor().IntPart()
}

// Fraction converts a configured fraction to an exact decimal.
func Fraction(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}
