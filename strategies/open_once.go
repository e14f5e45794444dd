package strategies

import (
	"context"
	"time"
)

// BuyOnce asks to buy every symbol with Fraction of equity on the first
// day it sees, then holds. Fraction 1 means "buy all" and relies on the risk
// limits to size the position.
type BuyOnce struct {
	Fraction float64
	done     bool
}

func (s *BuyOnce) Name() string { return "buy-once" }

// Reset forgets the initial allocation so the next run buys again.
func (s *BuyOnce) Reset() { s.done = false }

func (s *BuyOnce) Decide(ctx context.Context, date time.Time, symbols []string, view View) (map[string]Decision, error) {
	out := make(map[string]Decision, len(symbols))
	if s.done {
		return out, nil
	}
	s.done = true

	f := s.Fraction
	if f <= 0 || f > 1 {
		f = 1
	}
	for _, sym := range symbols {
		out[sym] = Decision{Symbol: sym, Action: Buy, Fraction: f, Reason: "initial allocation"}
	}
	return out, nil
}
