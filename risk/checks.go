package risk

import (
	"fmt"

	"github.com/rustyeddy/jsetrader/market"
	"github.com/rustyeddy/jsetrader/portfolio"
	"github.com/shopspring/decimal"
)

// Limit identifies the rule behind a clip, rejection or forced exit.
type Limit string

const (
	PositionLimit        Limit = "POSITION_LIMIT"
	SectorLimit          Limit = "SECTOR_LIMIT"
	CashLimit            Limit = "CASH_LIMIT"
	StopLoss             Limit = "STOP_LOSS"
	DailyDrawdownBreaker Limit = "DAILY_DRAWDOWN_BREAKER"
	HeldQuantity         Limit = "HELD_QUANTITY"
	NoPosition           Limit = "NO_POSITION"
)

// Outcome of a checked trade.
type Outcome string

const (
	Filled   Outcome = "FILLED"
	Clipped  Outcome = "CLIPPED"
	Rejected Outcome = "REJECTED"
)

type Violation struct {
	Code Limit
	Msg  string
}

// Book is the read-only view of a portfolio the engine evaluates against.
type Book interface {
	Quantity(symbol string) int64
	Holdings() []portfolio.Position
	AvailableCash() decimal.Decimal
	PositionValue(symbol string, price decimal.Decimal) decimal.Decimal
	SectorValues(prices portfolio.Prices) (map[string]decimal.Decimal, error)
	MarkToMarket(prices portfolio.Prices) (decimal.Decimal, error)
}

// Request is a proposed trade. Quantity is signed: positive buys,
// negative sells.
type Request struct {
	Symbol   string
	Quantity int64
	Prices   portfolio.Prices
	// Set when the daily drawdown breaker tripped for the day.
	BreakerTripped bool
}

// Verdict is the engine's answer for one Request.
type Verdict struct {
	Requested  int64
	Approved   int64
	Outcome    Outcome
	Violations []Violation
}

func (v *Verdict) add(code Limit, msg string) {
	v.Violations = append(v.Violations, Violation{Code: code, Msg: msg})
}

// Limits lists the violation codes in the order they were raised.
func (v Verdict) Limits() []Limit {
	out := make([]Limit, len(v.Violations))
	for i, vi := range v.Violations {
		out[i] = vi.Code
	}
	return out
}

// Forced is a liquidation generated by the stop-loss sweep.
type Forced struct {
	Symbol      string
	Quantity    int64
	AverageCost decimal.Decimal
	Price       decimal.Decimal
	Return      decimal.Decimal
}

// Engine evaluates trades against a fixed set of Limits. It holds no
// mutable state and never touches the portfolio it is shown.
type Engine struct {
	limits  Limits
	catalog *market.Catalog

	maxPosition decimal.Decimal
	maxSector   decimal.Decimal
	stopLoss    decimal.Decimal
	maxDrawdown decimal.Decimal
}

func NewEngine(limits Limits, catalog *market.Catalog) (*Engine, error) {
	if err := limits.Validate(); err != nil {
		return nil, err
	}
	if catalog == nil {
		return nil, fmt.Errorf("risk: catalog is required")
	}
	return &Engine{
		limits:      limits,
		catalog:     catalog,
		maxPosition: Fraction(limits.MaxPositionFraction),
		maxSector:   Fraction(limits.MaxSectorFraction),
		stopLoss:    Fraction(limits.StopLossFraction),
		maxDrawdown: Fraction(limits.MaxDailyDrawdownFraction),
	}, nil
}

func (e *Engine) Limits() Limits { return e.limits }

// DrawdownTripped reports whether equity fell from dayStart by at least the
// configured daily drawdown fraction.
func (e *Engine) DrawdownTripped(dayStart, current decimal.Decimal) bool {
	if !dayStart.IsPositive() {
		return false
	}
	// (dayStart - current) / dayStart >= max, without dividing
	return dayStart.Sub(current).GreaterThanOrEqual(e.maxDrawdown.Mul(dayStart))
}

// StopLosses returns a full liquidation for every holding whose loss from
// average cost reached the stop-loss fraction, in ascending symbol order.
func (e *Engine) StopLosses(b Book, prices portfolio.Prices) ([]Forced, error) {
	var out []Forced
	for _, p := range b.Holdings() {
		px, ok := prices[p.Symbol]
		if !ok {
			return nil, fmt.Errorf("stop loss %s: %w", p.Symbol, portfolio.ErrMissingPrice)
		}
		// (px - avg) / avg <= -stop  <=>  px - avg <= -stop * avg
		if px.Sub(p.AverageCost).LessThanOrEqual(e.stopLoss.Neg().Mul(p.AverageCost)) {
			out = append(out, Forced{
				Symbol:      p.Symbol,
				Quantity:    p.Quantity,
				AverageCost: p.AverageCost,
				Price:       px,
				Return:      p.Return(px),
			})
		}
	}
	return out, nil
}

// Evaluate approves, clips or rejects a proposed trade.
//
// Buys are clipped to the largest quantity that satisfies the position,
// sector and cash limits, and rejected outright only when that quantity is
// zero or the drawdown breaker tripped. Sells are never limited beyond the
// held quantity.
func (e *Engine) Evaluate(b Book, req Request) (Verdict, error) {
	v := Verdict{Requested: req.Quantity}
	if req.Quantity == 0 {
		v.Outcome = Filled
		return v, nil
	}

	price, ok := req.Prices[req.Symbol]
	if !ok {
		return v, fmt.Errorf("evaluate %s: %w", req.Symbol, portfolio.ErrMissingPrice)
	}
	sector, err := e.catalog.Sector(req.Symbol)
	if err != nil {
		return v, err
	}

	if req.Quantity < 0 {
		return e.evaluateSell(b, req, v), nil
	}

	if req.BreakerTripped {
		v.add(DailyDrawdownBreaker, "daily drawdown breaker tripped, buys blocked for the day")
		v.Outcome = Rejected
		return v, nil
	}

	equity, err := b.MarkToMarket(req.Prices)
	if err != nil {
		return v, err
	}

	qty := req.Quantity

	posRoom := e.maxPosition.Mul(equity).Sub(b.PositionValue(req.Symbol, price))
	if maxQ := MaxQuantity(posRoom, price); qty > maxQ {
		v.add(PositionLimit, fmt.Sprintf("%s position capped at %s%% of equity: %d -> %d",
			req.Symbol, pct(e.maxPosition), qty, maxQ))
		qty = maxQ
	}

	if qty > 0 {
		sectors, err := b.SectorValues(req.Prices)
		if err != nil {
			return v, err
		}
		secRoom := e.maxSector.Mul(equity).Sub(sectors[sector])
		if maxQ := MaxQuantity(secRoom, price); qty > maxQ {
			v.add(SectorLimit, fmt.Sprintf("%s sector capped at %s%% of equity: %d -> %d",
				sector, pct(e.maxSector), qty, maxQ))
			qty = maxQ
		}
	}

	if qty > 0 {
		if maxQ := MaxQuantity(b.AvailableCash(), price); qty > maxQ {
			v.add(CashLimit, fmt.Sprintf("cash %s buys at most %d", b.AvailableCash().StringFixed(2), maxQ))
			qty = maxQ
		}
	}

	v.Approved = qty
	switch {
	case qty == 0:
		v.Outcome = Rejected
	case qty < req.Quantity:
		v.Outcome = Clipped
	default:
		v.Outcome = Filled
	}
	return v, nil
}

func (e *Engine) evaluateSell(b Book, req Request, v Verdict) Verdict {
	held := b.Quantity(req.Symbol)
	qty := -req.Quantity
	if held == 0 {
		v.add(NoPosition, fmt.Sprintf("no %s position to sell", req.Symbol))
		v.Outcome = Rejected
		return v
	}
	v.Outcome = Filled
	if qty > held {
		v.add(HeldQuantity, fmt.Sprintf("sell %d reduced to full exit of %d", qty, held))
		qty = held
		v.Outcome = Clipped
	}
	v.Approved = -qty
	return v
}

func pct(f decimal.Decimal) string {
	return f.Mul(decimal.NewFromInt(100)).String()
}
