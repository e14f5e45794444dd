package market

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// DefaultUSDZAR is the approximate rand per dollar rate used when no FX
// series is supplied.
const DefaultUSDZAR = 18.45

// FXRates is a USDZAR lookup supplied alongside the price series.
// Rates are rand per US dollar. A day without a rate uses the most recent
// earlier rate, falling back to the first known rate.
type FXRates struct {
	days  []time.Time
	rates map[time.Time]decimal.Decimal
}

// FixedFX returns a lookup that always answers rate.
func FixedFX(rate decimal.Decimal) *FXRates {
	fx := &FXRates{rates: map[time.Time]decimal.Decimal{}}
	fx.days = []time.Time{{}}
	fx.rates[time.Time{}] = rate
	return fx
}

// NewFXRates builds a dated lookup. Rates must be positive.
func NewFXRates(rates map[time.Time]decimal.Decimal) (*FXRates, error) {
	fx := &FXRates{rates: make(map[time.Time]decimal.Decimal, len(rates))}
	for d, r := range rates {
		if !r.IsPositive() {
			return nil, fmt.Errorf("fx rate on %s must be positive", d.Format(DateLayout))
		}
		day := Day(d)
		fx.rates[day] = r
		fx.days = append(fx.days, day)
	}
	if len(fx.days) == 0 {
		return nil, fmt.Errorf("fx rates: empty table")
	}
	sort.Slice(fx.days, func(i, j int) bool { return fx.days[i].Before(fx.days[j]) })
	return fx, nil
}

// Rate returns the USDZAR rate effective on day.
func (fx *FXRates) Rate(day time.Time) decimal.Decimal {
	day = Day(day)
	i := sort.Search(len(fx.days), func(i int) bool { return fx.days[i].After(day) })
	if i == 0 {
		return fx.rates[fx.days[0]]
	}
	return fx.rates[fx.days[i-1]]
}

// ToUSD converts a ZAR amount on day.
func (fx *FXRates) ToUSD(zar decimal.Decimal, day time.Time) decimal.Decimal {
	return zar.Div(fx.Rate(day))
}
