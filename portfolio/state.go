// Package portfolio holds the simulated cash and positions ledger.
//
// Costs use the weighted-average method: buys blend into the average cost,
// sells realize (price - average cost) per share and leave the average
// unchanged. Lots are not tracked.
package portfolio

import (
	"fmt"
	"sort"

	"github.com/rustyeddy/jsetrader/market"
	"github.com/shopspring/decimal"
)

// Prices maps symbol to the price used for valuation.
type Prices map[string]decimal.Decimal

// Fill is the applied result of one ApplyFill call.
type Fill struct {
	Symbol      string
	Quantity    int64 // signed, positive buys
	Price       decimal.Decimal
	RealizedPnL decimal.Decimal
}

// State is the mutable ledger of one run. It is not safe for concurrent use;
// a run owns exactly one State.
type State struct {
	catalog *market.Catalog

	cash           decimal.Decimal
	cashFloor      decimal.Decimal
	realizedPnL    decimal.Decimal
	peakEquity     decimal.Decimal
	dayStartEquity decimal.Decimal
	positions      map[string]*Position
}

// New creates a flat portfolio holding startingCash.
func New(catalog *market.Catalog, startingCash, cashFloor decimal.Decimal) (*State, error) {
	if catalog == nil {
		return nil, fmt.Errorf("portfolio: catalog is required")
	}
	if startingCash.LessThan(cashFloor) {
		return nil, fmt.Errorf("portfolio: starting cash %s below floor %s", startingCash, cashFloor)
	}
	return &State{
		catalog:        catalog,
		cash:           startingCash,
		cashFloor:      cashFloor,
		peakEquity:     startingCash,
		dayStartEquity: startingCash,
		positions:      map[string]*Position{},
	}, nil
}

func (s *State) Cash() decimal.Decimal           { return s.cash }
func (s *State) CashFloor() decimal.Decimal      { return s.cashFloor }
func (s *State) RealizedPnL() decimal.Decimal    { return s.realizedPnL }
func (s *State) PeakEquity() decimal.Decimal     { return s.peakEquity }
func (s *State) DayStartEquity() decimal.Decimal { return s.dayStartEquity }
func (s *State) Catalog() *market.Catalog        { return s.catalog }

// AvailableCash is the cash that can be spent before hitting the floor.
func (s *State) AvailableCash() decimal.Decimal {
	a := s.cash.Sub(s.cashFloor)
	if a.IsNegative() {
		return decimal.Zero
	}
	return a
}

// Position returns a copy of the position in symbol.
func (s *State) Position(symbol string) (Position, bool) {
	p, ok := s.positions[symbol]
	if !ok {
		return Position{}, false
	}
	return *p, true
}

// Quantity returns the held quantity, zero when flat.
func (s *State) Quantity(symbol string) int64 {
	if p, ok := s.positions[symbol]; ok {
		return p.Quantity
	}
	return 0
}

// Holdings returns copies of all positions ordered by symbol.
func (s *State) Holdings() []Position {
	out := make([]Position, 0, len(s.positions))
	for _, p := range s.positions {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// ApplyFill moves signedQty shares of symbol at price. Positive quantities
// buy, negative quantities sell. A zero quantity is a no-op.
func (s *State) ApplyFill(symbol string, signedQty int64, price decimal.Decimal) (Fill, error) {
	fill := Fill{Symbol: symbol, Quantity: signedQty, Price: price, RealizedPnL: decimal.Zero}
	if signedQty == 0 {
		return fill, nil
	}
	if _, ok := s.catalog.Lookup(symbol); !ok {
		return Fill{}, fmt.Errorf("apply fill %s: %w", symbol, ErrUnknownSymbol)
	}
	if !price.IsPositive() {
		return Fill{}, fmt.Errorf("apply fill %s at %s: %w", symbol, price, ErrBadPrice)
	}

	if signedQty > 0 {
		cost := price.Mul(decimal.NewFromInt(signedQty))
		if s.cash.Sub(cost).LessThan(s.cashFloor) {
			return Fill{}, &InsufficientCashError{
				Symbol:    symbol,
				Required:  cost,
				Available: s.cash,
				Floor:     s.cashFloor,
			}
		}

		p, ok := s.positions[symbol]
		if !ok {
			p = &Position{Symbol: symbol, AverageCost: decimal.Zero}
			s.positions[symbol] = p
		}
		held := decimal.NewFromInt(p.Quantity)
		total := p.Quantity + signedQty
		p.AverageCost = p.AverageCost.Mul(held).Add(cost).Div(decimal.NewFromInt(total))
		p.Quantity = total
		s.cash = s.cash.Sub(cost)
		return fill, nil
	}

	qty := -signedQty
	p, ok := s.positions[symbol]
	if !ok || p.Quantity < qty {
		held := int64(0)
		if ok {
			held = p.Quantity
		}
		return Fill{}, &InsufficientSharesError{Symbol: symbol, Requested: qty, Held: held}
	}

	q := decimal.NewFromInt(qty)
	fill.RealizedPnL = price.Sub(p.AverageCost).Mul(q)
	s.realizedPnL = s.realizedPnL.Add(fill.RealizedPnL)
	s.cash = s.cash.Add(price.Mul(q))
	p.Quantity -= qty
	if p.Quantity == 0 {
		delete(s.positions, symbol)
	}
	return fill, nil
}

// MarkToMarket returns cash plus the value of every position. Every held
// symbol must have a price.
func (s *State) MarkToMarket(prices Prices) (decimal.Decimal, error) {
	equity := s.cash
	for sym, p := range s.positions {
		px, ok := prices[sym]
		if !ok {
			return decimal.Zero, fmt.Errorf("mark to market %s: %w", sym, ErrMissingPrice)
		}
		equity = equity.Add(p.Value(px))
	}
	return equity, nil
}

// PositionValue is the market value of the holding in symbol.
func (s *State) PositionValue(symbol string, price decimal.Decimal) decimal.Decimal {
	p, ok := s.positions[symbol]
	if !ok {
		return decimal.Zero
	}
	return p.Value(price)
}

// SectorValues returns the market value held per sector.
func (s *State) SectorValues(prices Prices) (map[string]decimal.Decimal, error) {
	out := map[string]decimal.Decimal{}
	for sym, p := range s.positions {
		px, ok := prices[sym]
		if !ok {
			return nil, fmt.Errorf("sector value %s: %w", sym, ErrMissingPrice)
		}
		sector, err := s.catalog.Sector(sym)
		if err != nil {
			return nil, err
		}
		out[sector] = out[sector].Add(p.Value(px))
	}
	return out, nil
}

// ExposureBySector returns each sector's share of total equity.
func (s *State) ExposureBySector(prices Prices) (map[string]decimal.Decimal, error) {
	values, err := s.SectorValues(prices)
	if err != nil {
		return nil, err
	}
	equity, err := s.MarkToMarket(prices)
	if err != nil {
		return nil, err
	}
	out := make(map[string]decimal.Decimal, len(values))
	if !equity.IsPositive() {
		return out, nil
	}
	for sector, v := range values {
		out[sector] = v.Div(equity)
	}
	return out, nil
}

// BeginDay records the equity the day's drawdown is measured against.
func (s *State) BeginDay(equity decimal.Decimal) {
	s.dayStartEquity = equity
}

// CloseDay raises the high-water mark if equity made a new peak.
func (s *State) CloseDay(equity decimal.Decimal) {
	if equity.GreaterThan(s.peakEquity) {
		s.peakEquity = equity
	}
}
