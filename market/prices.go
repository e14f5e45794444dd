package market

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// DateLayout is the layout used for trading dates in files and flags.
const DateLayout = "2006-01-02"

// Day normalizes t to midnight UTC so dates can be used as map keys.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDay parses a YYYY-MM-DD date.
func ParseDay(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("bad date %q: %w", s, err)
	}
	return t, nil
}

// Bar is one daily OHLC row. Close is mandatory, the others are optional
// and left zero when the source does not carry them.
type Bar struct {
	Date   time.Time
	Symbol string
	Open   decimal.Decimal
	High   decimal.Decimal
	Low    decimal.Decimal
	Close  decimal.Decimal
}

// PriceProvider supplies closing prices for the backtest loop.
// Implementations must be deterministic and fully resident in memory.
type PriceProvider interface {
	// TradingDays returns the ordered trading days within [from, to].
	// A zero bound is open.
	TradingDays(from, to time.Time) []time.Time
	// Close returns the closing price for symbol on day.
	Close(symbol string, day time.Time) (decimal.Decimal, bool)
}

// Series is an in-memory PriceProvider keyed by day and symbol.
type Series struct {
	bars map[time.Time]map[string]Bar
	days []time.Time
}

// NewSeries returns an empty series.
func NewSeries() *Series {
	return &Series{bars: map[time.Time]map[string]Bar{}}
}

// Add inserts or replaces a bar. Close must be positive.
func (s *Series) Add(b Bar) error {
	if b.Symbol == "" {
		return fmt.Errorf("bar on %s has no symbol", b.Date.Format(DateLayout))
	}
	if !b.Close.IsPositive() {
		return fmt.Errorf("bar %s %s: close must be positive, got %s",
			b.Symbol, b.Date.Format(DateLayout), b.Close)
	}
	day := Day(b.Date)
	b.Date = day
	row, ok := s.bars[day]
	if !ok {
		row = map[string]Bar{}
		s.bars[day] = row
		i := sort.Search(len(s.days), func(i int) bool { return !s.days[i].Before(day) })
		s.days = append(s.days, time.Time{})
		copy(s.days[i+1:], s.days[i:])
		s.days[i] = day
	}
	row[b.Symbol] = b
	return nil
}

// AddClose is a shorthand for adding a close-only bar.
func (s *Series) AddClose(day time.Time, symbol string, close decimal.Decimal) error {
	return s.Add(Bar{Date: day, Symbol: symbol, Close: close})
}

// Bar returns the full bar for symbol on day.
func (s *Series) Bar(symbol string, day time.Time) (Bar, bool) {
	b, ok := s.bars[Day(day)][symbol]
	return b, ok
}

// Close implements PriceProvider.
func (s *Series) Close(symbol string, day time.Time) (decimal.Decimal, bool) {
	b, ok := s.bars[Day(day)][symbol]
	if !ok {
		return decimal.Zero, false
	}
	return b.Close, true
}

// TradingDays implements PriceProvider.
func (s *Series) TradingDays(from, to time.Time) []time.Time {
	var out []time.Time
	for _, d := range s.days {
		if !from.IsZero() && d.Before(Day(from)) {
			continue
		}
		if !to.IsZero() && d.After(Day(to)) {
			continue
		}
		out = append(out, d)
	}
	return out
}

// Symbols returns every symbol that has at least one bar, sorted.
func (s *Series) Symbols() []string {
	seen := map[string]bool{}
	for _, row := range s.bars {
		for sym := range row {
			seen[sym] = true
		}
	}
	out := make([]string, 0, len(seen))
	for sym := range seen {
		out = append(out, sym)
	}
	sort.Strings(out)
	return out
}

// Len is the number of stored bars.
func (s *Series) Len() int {
	n := 0
	for _, row := range s.bars {
		n += len(row)
	}
	return n
}
