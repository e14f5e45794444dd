package portfolio

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// Snapshot is the end-of-day record of a portfolio. Once taken it shares no
// memory with the State it came from.
type Snapshot struct {
	Date           time.Time                  `json:"date"`
	Equity         decimal.Decimal            `json:"equity"`
	Cash           decimal.Decimal            `json:"cash"`
	PeakEquity     decimal.Decimal            `json:"peak_equity"`
	DayStartEquity decimal.Decimal            `json:"day_start_equity"`
	RealizedPnL    decimal.Decimal            `json:"realized_pnl"`
	Positions      []Position                 `json:"positions"`
	Marks          Prices                     `json:"marks"`
	SectorExposure map[string]decimal.Decimal `json:"sector_exposure"`
	// Sorted, de-duplicated limit identifiers triggered during the day.
	TriggeredLimits []string `json:"triggered_limits"`
}

// Drawdown is (peak - equity) / peak at the snapshot.
func (s Snapshot) Drawdown() decimal.Decimal {
	if !s.PeakEquity.IsPositive() {
		return decimal.Zero
	}
	return s.PeakEquity.Sub(s.Equity).Div(s.PeakEquity)
}

// Snapshot copies the current state valued at prices. The caller is
// expected to have updated the peak before taking it.
func (s *State) Snapshot(date time.Time, prices Prices, limits []string) (Snapshot, error) {
	equity, err := s.MarkToMarket(prices)
	if err != nil {
		return Snapshot{}, err
	}
	exposure, err := s.ExposureBySector(prices)
	if err != nil {
		return Snapshot{}, err
	}

	holdings := s.Holdings()
	marks := make(Prices, len(holdings))
	for _, p := range holdings {
		marks[p.Symbol] = prices[p.Symbol]
	}

	return Snapshot{
		Date:            date,
		Equity:          equity,
		Cash:            s.cash,
		PeakEquity:      s.peakEquity,
		DayStartEquity:  s.dayStartEquity,
		RealizedPnL:     s.realizedPnL,
		Positions:       holdings,
		Marks:           marks,
		SectorExposure:  exposure,
		TriggeredLimits: normalizeLimits(limits),
	}, nil
}

// CheckIdentity verifies cash + sum(quantity * mark) == equity and that no
// position has a non-positive quantity.
func (s Snapshot) CheckIdentity() error {
	sum := s.Cash
	for _, p := range s.Positions {
		if p.Quantity <= 0 {
			return fmt.Errorf("position %s has quantity %d", p.Symbol, p.Quantity)
		}
		px, ok := s.Marks[p.Symbol]
		if !ok {
			return fmt.Errorf("position %s has no mark", p.Symbol)
		}
		sum = sum.Add(p.Value(px))
	}
	if !sum.Equal(s.Equity) {
		return fmt.Errorf("cash + positions = %s, equity = %s", sum, s.Equity)
	}
	return nil
}

func normalizeLimits(in []string) []string {
	seen := map[string]bool{}
	out := []string{}
	for _, l := range in {
		if l == "" || seen[l] {
			continue
		}
		seen[l] = true
		out = append(out, l)
	}
	sort.Strings(out)
	return out
}
