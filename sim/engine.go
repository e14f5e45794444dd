// Package sim applies risk-checked decisions to a portfolio.
package sim

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/rustyeddy/jsetrader/market"
	"github.com/rustyeddy/jsetrader/portfolio"
	"github.com/rustyeddy/jsetrader/risk"
	"github.com/rustyeddy/jsetrader/strategies"
	"github.com/shopspring/decimal"
)

// Simulator fills orders at the day's price after asking the risk engine.
// Clips and rejections are recorded outcomes, not errors.
type Simulator struct {
	risk    *risk.Engine
	catalog *market.Catalog
	log     zerolog.Logger
}

func NewSimulator(r *risk.Engine, catalog *market.Catalog, log zerolog.Logger) *Simulator {
	return &Simulator{
		risk:    r,
		catalog: catalog,
		log:     log.With().Str("component", "sim").Logger(),
	}
}

// Execute runs one BUY or SELL order against state at prices[symbol].
// HOLD orders are not executed and return a zero record.
//
// The returned error is either an input problem reported by the risk engine
// (missing price, unknown symbol) or an *InvariantError.
func (s *Simulator) Execute(date time.Time, o Order, state *portfolio.State, prices portfolio.Prices, breaker bool) (TradeRecord, error) {
	d := o.Decision
	rec := TradeRecord{
		Date:        date,
		Symbol:      d.Symbol,
		Action:      d.Action,
		Source:      o.Source,
		RealizedPnL: decimal.Zero,
		Reason:      d.Reason,
	}
	if d.Action == strategies.Hold {
		return rec, nil
	}

	in, ok := s.catalog.Lookup(d.Symbol)
	if !ok {
		return rec, fmt.Errorf("execute %s: %w", d.Symbol, portfolio.ErrUnknownSymbol)
	}
	price, ok := prices[d.Symbol]
	if !ok {
		return rec, fmt.Errorf("execute %s: %w", d.Symbol, portfolio.ErrMissingPrice)
	}
	rec.Price = price
	rec.SettlementDate = SettlementDate(date, in.SettlementDays)

	requested, err := s.requested(d, state, prices, price)
	if err != nil {
		return rec, err
	}
	rec.Requested = requested

	if o.Source == ForcedStopLoss {
		rec.TriggeredLimits = append(rec.TriggeredLimits, risk.StopLoss)
	}

	if requested == 0 {
		rec.Outcome = risk.Rejected
		if d.Action == strategies.Sell && state.Quantity(d.Symbol) == 0 {
			rec.TriggeredLimits = append(rec.TriggeredLimits, risk.NoPosition)
			rec.Notes = append(rec.Notes, fmt.Sprintf("no %s position to sell", d.Symbol))
		} else {
			rec.Notes = append(rec.Notes, "order rounds to zero shares")
		}
		s.logOutcome(rec)
		return rec, nil
	}

	signed := requested
	if d.Action == strategies.Sell {
		signed = -requested
	}

	v, err := s.risk.Evaluate(state, risk.Request{
		Symbol:         d.Symbol,
		Quantity:       signed,
		Prices:         prices,
		BreakerTripped: breaker,
	})
	if err != nil {
		return rec, err
	}

	rec.Outcome = v.Outcome
	for _, vi := range v.Violations {
		rec.TriggeredLimits = append(rec.TriggeredLimits, vi.Code)
		rec.Notes = append(rec.Notes, vi.Msg)
	}
	rec.Quantity = abs(v.Approved)

	if v.Approved != 0 {
		fill, err := state.ApplyFill(d.Symbol, v.Approved, price)
		if err != nil {
			return rec, &InvariantError{Date: date, Symbol: d.Symbol, Err: err}
		}
		if state.Cash().LessThan(state.CashFloor()) {
			return rec, &InvariantError{Date: date, Symbol: d.Symbol,
				Err: fmt.Errorf("cash %s below floor %s", state.Cash(), state.CashFloor())}
		}
		rec.RealizedPnL = fill.RealizedPnL
	}

	s.logOutcome(rec)
	return rec, nil
}

// requested resolves a decision into an unsigned share count.
func (s *Simulator) requested(d strategies.Decision, state *portfolio.State, prices portfolio.Prices, price decimal.Decimal) (int64, error) {
	if d.Quantity > 0 {
		return d.Quantity, nil
	}
	f := risk.Fraction(d.Fraction)
	switch d.Action {
	case strategies.Buy:
		equity, err := state.MarkToMarket(prices)
		if err != nil {
			return 0, err
		}
		return risk.MaxQuantity(f.Mul(equity), price), nil
	case strategies.Sell:
		held := decimal.NewFromInt(state.Quantity(d.Symbol))
		return f.Mul(held).Floor().IntPart(), nil
	}
	return 0, nil
}

func (s *Simulator) logOutcome(rec TradeRecord) {
	ev := s.log.Debug()
	if rec.Outcome != risk.Filled || rec.Source != External {
		ev = s.log.Info()
	}
	ev.Str("date", rec.Date.Format(market.DateLayout)).
		Str("symbol", rec.Symbol).
		Str("action", string(rec.Action)).
		Str("source", string(rec.Source)).
		Int64("requested", rec.Requested).
		Int64("qty", rec.Quantity).
		Str("price", rec.Price.String()).
		Str("outcome", string(rec.Outcome)).
		Interface("limits", rec.TriggeredLimits).
		Msg("trade")
}

func abs(x int64) int64 {
	if x < 0 {
		return -x
	}
	return x
}
