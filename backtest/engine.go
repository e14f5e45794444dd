// Package backtest drives a portfolio through an ordered range of trading
// days, one strictly after the other.
//
// Each day runs DayStart, RiskPrecheck, DecisionIntake, Execution and
// DayClose in that order. Nothing inside the loop touches the network or
// disk; prices and decisions are expected to be resident before Run.
package backtest

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"github.com/rustyeddy/jsetrader/market"
	"github.com/rustyeddy/jsetrader/performance"
	"github.com/rustyeddy/jsetrader/portfolio"
	"github.com/rustyeddy/jsetrader/risk"
	"github.com/rustyeddy/jsetrader/sim"
	"github.com/rustyeddy/jsetrader/strategies"
	"github.com/shopspring/decimal"
)

// Config is the immutable description of one run.
type Config struct {
	StartingCapital decimal.Decimal
	CashFloor       decimal.Decimal
	Limits          risk.Limits
	Symbols         []string
	// Zero bounds are open.
	From time.Time
	To   time.Time
}

// Validate checks the config against catalog.
func (c Config) Validate(catalog *market.Catalog) error {
	if !c.StartingCapital.IsPositive() {
		return fmt.Errorf("starting capital must be positive, got %s", c.StartingCapital)
	}
	if c.CashFloor.IsNegative() {
		return fmt.Errorf("cash floor must not be negative, got %s", c.CashFloor)
	}
	if c.CashFloor.GreaterThan(c.StartingCapital) {
		return fmt.Errorf("cash floor %s above starting capital %s", c.CashFloor, c.StartingCapital)
	}
	if err := c.Limits.Validate(); err != nil {
		return err
	}
	if len(c.Symbols) == 0 {
		return errors.New("no symbols to trade")
	}
	for _, s := range c.Symbols {
		if _, ok := catalog.Lookup(s); !ok {
			return fmt.Errorf("symbol %s: %w", s, portfolio.ErrUnknownSymbol)
		}
	}
	if !c.From.IsZero() && !c.To.IsZero() && c.To.Before(c.From) {
		return fmt.Errorf("date range ends %s before it starts %s",
			c.To.Format(market.DateLayout), c.From.Format(market.DateLayout))
	}
	return nil
}

// Observer sees every closed day. It must not block or do I/O the run
// depends on.
type Observer interface {
	OnDay(snap portfolio.Snapshot, trades []sim.TradeRecord)
}

type Option func(*Engine)

func WithLogger(log zerolog.Logger) Option {
	return func(e *Engine) { e.log = log }
}

// WithObserver adds an observer. Observers are called in the order added.
func WithObserver(o Observer) Option {
	return func(e *Engine) { e.observers = append(e.observers, o) }
}

// WithFX supplies USDZAR rates for the report.
func WithFX(fx *market.FXRates) Option {
	return func(e *Engine) { e.fx = fx }
}

// Engine runs backtests for one Config. A fresh portfolio is created for
// every call to Run.
type Engine struct {
	cfg       Config
	catalog   *market.Catalog
	prices    market.PriceProvider
	decider   strategies.DecisionProvider
	risk      *risk.Engine
	sim       *sim.Simulator
	fx        *market.FXRates
	observers []Observer
	log       zerolog.Logger

	symbols map[string]bool
}

func NewEngine(cfg Config, catalog *market.Catalog, prices market.PriceProvider, decider strategies.DecisionProvider, opts ...Option) (*Engine, error) {
	if catalog == nil {
		return nil, errors.New("backtest: catalog is required")
	}
	if prices == nil {
		return nil, errors.New("backtest: price provider is required")
	}
	if decider == nil {
		return nil, errors.New("backtest: decision provider is required")
	}
	if err := cfg.Validate(catalog); err != nil {
		return nil, fmt.Errorf("backtest: %w", err)
	}

	e := &Engine{
		cfg:     cfg,
		catalog: catalog,
		prices:  prices,
		decider: decider,
		log:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(e)
	}

	r, err := risk.NewEngine(cfg.Limits, catalog)
	if err != nil {
		return nil, fmt.Errorf("backtest: %w", err)
	}
	e.risk = r
	e.sim = sim.NewSimulator(r, catalog, e.log)
	e.log = e.log.With().Str("component", "backtest").Str("strategy", decider.Name()).Logger()

	// sorted copy, deduplicated
	seen := map[string]bool{}
	syms := make([]string, 0, len(cfg.Symbols))
	for _, s := range cfg.Symbols {
		if !seen[s] {
			seen[s] = true
			syms = append(syms, s)
		}
	}
	sort.Strings(syms)
	e.cfg.Symbols = syms
	e.symbols = seen
	return e, nil
}

func (e *Engine) Config() Config { return e.cfg }

// Run processes every trading day in the configured range and returns the
// full history. Input and invariant errors abort the run at the offending
// day; risk limits only shape the trades.
//
// Every call starts from a fresh portfolio. Providers that implement
// strategies.Resetter are reset first, so repeated runs replay the same
// history.
func (e *Engine) Run(ctx context.Context) (*Result, error) {
	days := e.prices.TradingDays(e.cfg.From, e.cfg.To)
	if len(days) == 0 {
		return nil, &InputError{Date: e.cfg.From, Err: errors.New("no trading days in range")}
	}
	if r, ok := e.decider.(strategies.Resetter); ok {
		r.Reset()
	}

	state, err := portfolio.New(e.catalog, e.cfg.StartingCapital, e.cfg.CashFloor)
	if err != nil {
		return nil, err
	}

	res := &Result{
		Strategy:  e.decider.Name(),
		Config:    e.cfg,
		Start:     days[0],
		End:       days[len(days)-1],
		Snapshots: make([]portfolio.Snapshot, 0, len(days)),
	}

	e.log.Info().
		Str("from", res.Start.Format(market.DateLayout)).
		Str("to", res.End.Format(market.DateLayout)).
		Int("days", len(days)).
		Strs("symbols", e.cfg.Symbols).
		Str("capital", e.cfg.StartingCapital.String()).
		Msg("backtest start")

	prevClose := e.cfg.StartingCapital
	for _, day := range days {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		snap, trades, err := e.runDay(ctx, day, state, prevClose)
		if err != nil {
			e.log.Error().Err(err).Str("date", day.Format(market.DateLayout)).Msg("backtest aborted")
			return nil, err
		}
		res.Snapshots = append(res.Snapshots, snap)
		res.Trades = append(res.Trades, trades...)
		for _, o := range e.observers {
			o.OnDay(snap, trades)
		}
		prevClose = snap.Equity
	}

	res.FinalState = state
	res.Report = performance.Compute(e.cfg.StartingCapital, res.Snapshots, res.Trades, e.fx)

	e.log.Info().
		Str("final_equity", res.Report.FinalEquity.StringFixed(2)).
		Str("return", res.Report.TotalReturn.StringFixed(4)).
		Str("max_drawdown", res.Report.MaxDrawdown.StringFixed(4)).
		Int("trades", len(res.Trades)).
		Msg("backtest complete")
	return res, nil
}

func (e *Engine) runDay(ctx context.Context, day time.Time, state *portfolio.State, prevClose decimal.Decimal) (portfolio.Snapshot, []sim.TradeRecord, error) {
	log := e.log.With().Str("date", day.Format(market.DateLayout)).Logger()

	// DayStart
	state.BeginDay(prevClose)
	prices, err := e.dayPrices(day, state)
	if err != nil {
		return portfolio.Snapshot{}, nil, err
	}

	// RiskPrecheck
	current, err := state.MarkToMarket(prices)
	if err != nil {
		return portfolio.Snapshot{}, nil, &InputError{Date: day, Err: err}
	}
	breaker := e.risk.DrawdownTripped(prevClose, current)
	if breaker {
		log.Info().
			Str("day_start", prevClose.StringFixed(2)).
			Str("equity", current.StringFixed(2)).
			Msg("daily drawdown breaker tripped, buys blocked")
	}
	forced, err := e.risk.StopLosses(state, prices)
	if err != nil {
		return portfolio.Snapshot{}, nil, &InputError{Date: day, Err: err}
	}

	// DecisionIntake
	orders, err := e.intake(ctx, day, state, prices, current, forced)
	if err != nil {
		return portfolio.Snapshot{}, nil, err
	}

	// Execution
	var trades []sim.TradeRecord
	var limits []string
	for _, o := range orders {
		rec, err := e.sim.Execute(day, o, state, prices, breaker)
		if err != nil {
			var inv *sim.InvariantError
			if errors.As(err, &inv) {
				return portfolio.Snapshot{}, nil, err
			}
			return portfolio.Snapshot{}, nil, &InputError{Date: day, Symbol: o.Decision.Symbol, Err: err}
		}
		trades = append(trades, rec)
		for _, l := range rec.TriggeredLimits {
			limits = append(limits, string(l))
		}
	}
	if breaker {
		limits = append(limits, string(risk.DailyDrawdownBreaker))
	}

	// DayClose
	equity, err := state.MarkToMarket(prices)
	if err != nil {
		return portfolio.Snapshot{}, nil, &sim.InvariantError{Date: day, Err: err}
	}
	state.CloseDay(equity)
	snap, err := state.Snapshot(day, prices, limits)
	if err != nil {
		return portfolio.Snapshot{}, nil, &sim.InvariantError{Date: day, Err: err}
	}
	if err := snap.CheckIdentity(); err != nil {
		return portfolio.Snapshot{}, nil, &sim.InvariantError{Date: day, Err: err}
	}

	log.Debug().
		Str("equity", snap.Equity.StringFixed(2)).
		Str("cash", snap.Cash.StringFixed(2)).
		Int("positions", len(snap.Positions)).
		Int("trades", len(trades)).
		Strs("limits", snap.TriggeredLimits).
		Msg("day closed")
	return snap, trades, nil
}

// dayPrices collects closes for the configured and held symbols. A held
// symbol without a close is fatal; a configured one is only fatal once a
// BUY or SELL asks for it.
func (e *Engine) dayPrices(day time.Time, state *portfolio.State) (portfolio.Prices, error) {
	prices := make(portfolio.Prices, len(e.cfg.Symbols))
	for _, p := range state.Holdings() {
		px, ok := e.prices.Close(p.Symbol, day)
		if !ok {
			return nil, &InputError{Date: day, Symbol: p.Symbol, Err: portfolio.ErrMissingPrice}
		}
		prices[p.Symbol] = px
	}
	for _, s := range e.cfg.Symbols {
		if px, ok := e.prices.Close(s, day); ok {
			prices[s] = px
		}
	}
	return prices, nil
}

// intake asks the decision provider for the day, validates what comes back
// and lets forced liquidations replace any decision for the same symbol.
// Orders come back in ascending symbol order with HOLDs dropped.
func (e *Engine) intake(ctx context.Context, day time.Time, state *portfolio.State, prices portfolio.Prices, equity decimal.Decimal, forced []risk.Forced) ([]sim.Order, error) {
	view := strategies.View{
		Date:     day,
		Cash:     state.Cash(),
		Equity:   equity,
		Holdings: state.Holdings(),
		Prices:   copyPrices(prices),
	}
	decisions, err := e.decider.Decide(ctx, day, append([]string(nil), e.cfg.Symbols...), view)
	if err != nil {
		return nil, &InputError{Date: day, Err: fmt.Errorf("decision provider %s: %w", e.decider.Name(), err)}
	}

	bySymbol := make(map[string]sim.Order, len(decisions)+len(forced))
	for key, d := range decisions {
		if d.Symbol == "" {
			d.Symbol = key
		}
		if d.Symbol != key {
			return nil, &InputError{Date: day, Symbol: key,
				Err: fmt.Errorf("decision keyed %s is for %s", key, d.Symbol)}
		}
		if _, ok := e.catalog.Lookup(d.Symbol); !ok {
			return nil, &InputError{Date: day, Symbol: d.Symbol, Err: portfolio.ErrUnknownSymbol}
		}
		if !e.symbols[d.Symbol] {
			return nil, &InputError{Date: day, Symbol: d.Symbol,
				Err: fmt.Errorf("not in run symbols: %w", portfolio.ErrUnknownSymbol)}
		}
		if err := d.Validate(); err != nil {
			return nil, &InputError{Date: day, Symbol: d.Symbol, Err: err}
		}
		if d.Action == strategies.Hold {
			continue
		}
		if _, ok := prices[d.Symbol]; !ok {
			px, ok := e.prices.Close(d.Symbol, day)
			if !ok {
				return nil, &InputError{Date: day, Symbol: d.Symbol, Err: portfolio.ErrMissingPrice}
			}
			prices[d.Symbol] = px
		}
		bySymbol[d.Symbol] = sim.Order{Decision: d, Source: sim.External}
	}

	for _, f := range forced {
		if prev, ok := bySymbol[f.Symbol]; ok {
			e.log.Info().
				Str("date", day.Format(market.DateLayout)).
				Str("symbol", f.Symbol).
				Str("overridden", string(prev.Decision.Action)).
				Msg("stop loss overrides decision")
		}
		bySymbol[f.Symbol] = sim.Order{
			Source: sim.ForcedStopLoss,
			Decision: strategies.Decision{
				Symbol:   f.Symbol,
				Action:   strategies.Sell,
				Quantity: f.Quantity,
				Reason: fmt.Sprintf("stop loss: %s%% from average cost %s",
					f.Return.Mul(decimal.NewFromInt(100)).StringFixed(2), f.AverageCost.StringFixed(2)),
			},
		}
	}

	syms := make([]string, 0, len(bySymbol))
	for s := range bySymbol {
		syms = append(syms, s)
	}
	sort.Strings(syms)
	orders := make([]sim.Order, len(syms))
	for i, s := range syms {
		orders[i] = bySymbol[s]
	}
	return orders, nil
}

func copyPrices(p portfolio.Prices) portfolio.Prices {
	out := make(portfolio.Prices, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}
