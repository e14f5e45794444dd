package backtest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/rustyeddy/jsetrader/market"
	"github.com/rustyeddy/jsetrader/portfolio"
	"github.com/rustyeddy/jsetrader/risk"
	"github.com/rustyeddy/jsetrader/sim"
	"github.com/rustyeddy/jsetrader/strategies"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// day(1) is Monday 2024-01-01
func day(n int) time.Time { return time.Date(2024, 1, n, 0, 0, 0, 0, time.UTC) }

// series builds closes from rows of symbol -> price per day.
func series(t *testing.T, rows ...map[string]string) *market.Series {
	t.Helper()
	s := market.NewSeries()
	for i, row := range rows {
		for sym, px := range row {
			require.NoError(t, s.AddClose(day(i+1), sym, d(px)))
		}
	}
	return s
}

func scripted(t *testing.T, byDay map[int][]strategies.Decision) *strategies.Scripted {
	t.Helper()
	m := map[time.Time][]strategies.Decision{}
	for n, ds := range byDay {
		m[day(n)] = ds
	}
	s, err := strategies.NewScripted(m)
	require.NoError(t, err)
	return s
}

func config(capital string, syms ...string) Config {
	return Config{
		StartingCapital: d(capital),
		CashFloor:       decimal.Zero,
		Limits:          risk.DefaultLimits(),
		Symbols:         syms,
	}
}

func run(t *testing.T, cfg Config, prices market.PriceProvider, dp strategies.DecisionProvider, opts ...Option) *Result {
	t.Helper()
	eng, err := NewEngine(cfg, market.JSE(), prices, dp, opts...)
	require.NoError(t, err)
	res, err := eng.Run(context.Background())
	require.NoError(t, err)
	return res
}

type funcProvider func(date time.Time, view strategies.View) (map[string]strategies.Decision, error)

func (f funcProvider) Name() string { return "func" }

func (f funcProvider) Decide(_ context.Context, date time.Time, _ []string, view strategies.View) (map[string]strategies.Decision, error) {
	return f(date, view)
}

type recorder struct {
	snaps  []portfolio.Snapshot
	trades int
}

func (r *recorder) OnDay(s portfolio.Snapshot, trades []sim.TradeRecord) {
	r.snaps = append(r.snaps, s)
	r.trades += len(trades)
}

func TestBuyAllClippedToPositionLimit(t *testing.T) {
	t.Parallel()

	prices := series(t, map[string]string{"NPN": "100"}, map[string]string{"NPN": "100"})
	res := run(t, config("1000000", "NPN"), prices, &strategies.BuyOnce{Fraction: 1})

	require.Len(t, res.Snapshots, 2)
	first := res.Snapshots[0]
	require.Len(t, first.Positions, 1)
	assert.Equal(t, int64(500), first.Positions[0].Quantity)
	assert.True(t, first.Cash.Equal(d("950000")), first.Cash.String())
	assert.True(t, first.Equity.Equal(d("1000000")))
	assert.Equal(t, []string{string(risk.PositionLimit)}, first.TriggeredLimits)

	require.Len(t, res.Trades, 1)
	assert.Equal(t, risk.Clipped, res.Trades[0].Outcome)
	assert.Equal(t, int64(500), res.FinalState.Quantity("NPN"))
	assert.Empty(t, res.Snapshots[1].TriggeredLimits)
}

func TestStopLossOverridesDecision(t *testing.T) {
	t.Parallel()

	prices := series(t,
		map[string]string{"SBK": "100"},
		map[string]string{"SBK": "84"},
		map[string]string{"SBK": "90"},
	)
	dp := scripted(t, map[int][]strategies.Decision{
		1: {{Symbol: "SBK", Action: strategies.Buy, Quantity: 100}},
		2: {{Symbol: "SBK", Action: strategies.Buy, Quantity: 10}},
	})
	res := run(t, config("1000000", "SBK"), prices, dp)

	require.Len(t, res.Trades, 2)
	forced := res.Trades[1]
	assert.Equal(t, day(2), forced.Date)
	assert.Equal(t, sim.ForcedStopLoss, forced.Source)
	assert.Equal(t, strategies.Sell, forced.Action)
	assert.Equal(t, int64(100), forced.Quantity)
	assert.Equal(t, risk.Filled, forced.Outcome)
	assert.Contains(t, forced.TriggeredLimits, risk.StopLoss)
	assert.True(t, forced.RealizedPnL.Equal(d("-1600")))

	assert.Empty(t, res.Snapshots[1].Positions)
	assert.Contains(t, res.Snapshots[1].TriggeredLimits, string(risk.StopLoss))
	assert.True(t, res.Snapshots[2].Cash.Equal(d("998400")))
}

func TestDrawdownBreakerBlocksBuysForTheDay(t *testing.T) {
	t.Parallel()

	cfg := config("100000", "MTN", "NPN", "SBK")
	cfg.Limits = risk.Limits{
		MaxPositionFraction:      0.5,
		MaxSectorFraction:        1,
		StopLossFraction:         0.15,
		MaxDailyDrawdownFraction: 0.02,
	}
	prices := series(t,
		map[string]string{"MTN": "100", "NPN": "100", "SBK": "100"},
		map[string]string{"MTN": "100", "NPN": "100", "SBK": "93.75"},
		map[string]string{"MTN": "100", "NPN": "100", "SBK": "93.75"},
	)
	dp := scripted(t, map[int][]strategies.Decision{
		1: {
			{Symbol: "SBK", Action: strategies.Buy, Quantity: 400},
			{Symbol: "MTN", Action: strategies.Buy, Quantity: 100},
		},
		// 400 * 6.25 = 2500, a 2.5% fall from the prior close
		2: {
			{Symbol: "NPN", Action: strategies.Buy, Quantity: 10},
			{Symbol: "MTN", Action: strategies.Sell, Quantity: 100},
			{Symbol: "SBK", Action: strategies.Buy, Quantity: 10},
		},
		3: {{Symbol: "NPN", Action: strategies.Buy, Quantity: 10}},
	})
	res := run(t, cfg, prices, dp)

	var day2 []sim.TradeRecord
	for _, tr := range res.Trades {
		if tr.Date.Equal(day(2)) {
			day2 = append(day2, tr)
		}
	}
	require.Len(t, day2, 3)

	// ascending symbol order
	assert.Equal(t, "MTN", day2[0].Symbol)
	assert.Equal(t, risk.Filled, day2[0].Outcome)
	assert.Equal(t, int64(100), day2[0].Quantity)

	for _, tr := range day2[1:] {
		assert.Equal(t, strategies.Buy, tr.Action)
		assert.Equal(t, risk.Rejected, tr.Outcome, tr.Symbol)
		assert.Equal(t, []risk.Limit{risk.DailyDrawdownBreaker}, tr.TriggeredLimits)
		assert.Equal(t, int64(0), tr.Quantity)
	}
	assert.Contains(t, res.Snapshots[1].TriggeredLimits, string(risk.DailyDrawdownBreaker))
	assert.True(t, res.Snapshots[1].Equity.Equal(d("97500")))

	// next day measures against the new close
	last := res.Trades[len(res.Trades)-1]
	assert.Equal(t, day(3), last.Date)
	assert.Equal(t, risk.Filled, last.Outcome)
	assert.NotContains(t, res.Snapshots[2].TriggeredLimits, string(risk.DailyDrawdownBreaker))
	assert.Equal(t, 1, res.Report.BreakerDays)
}

// churn buys on even days and sells half on odd days.
func churn(date time.Time, view strategies.View) (map[string]strategies.Decision, error) {
	out := map[string]strategies.Decision{}
	for sym := range view.Prices {
		if date.Day()%2 == 0 {
			out[sym] = strategies.Decision{Symbol: sym, Action: strategies.Buy, Fraction: 0.04}
		} else if view.Held(sym) > 0 {
			out[sym] = strategies.Decision{Symbol: sym, Action: strategies.Sell, Fraction: 0.5}
		}
	}
	return out, nil
}

func churnPrices(t *testing.T) *market.Series {
	t.Helper()
	rows := []map[string]string{}
	base := map[string]int64{"AGL": 500, "BHP": 450, "FSR": 70, "MTN": 120, "NPN": 3100}
	for i := 0; i < 12; i++ {
		row := map[string]string{}
		for sym, b := range base {
			px := decimal.NewFromInt(b).Add(decimal.New(int64((i*37)%23)-11, -1).Mul(decimal.NewFromInt(b / 50)))
			row[sym] = px.String()
		}
		rows = append(rows, row)
	}
	return series(t, rows...)
}

func TestAccountingIdentityEveryDay(t *testing.T) {
	t.Parallel()

	res := run(t, config("2500000", "AGL", "BHP", "FSR", "MTN", "NPN"), churnPrices(t), funcProvider(churn))
	require.Len(t, res.Snapshots, 12)
	assert.NotEmpty(t, res.Trades)

	for _, s := range res.Snapshots {
		require.NoError(t, s.CheckIdentity(), s.Date)
		assert.True(t, s.Cash.GreaterThanOrEqual(decimal.Zero))
		assert.True(t, s.PeakEquity.GreaterThanOrEqual(s.Equity))
	}
	for _, tr := range res.Trades {
		if tr.Action == strategies.Buy && tr.Outcome != risk.Rejected {
			assert.LessOrEqual(t, tr.Quantity, tr.Requested)
		}
	}
}

func TestReplayIsByteIdentical(t *testing.T) {
	t.Parallel()

	eng, err := NewEngine(config("2500000", "AGL", "BHP", "FSR", "MTN", "NPN"), market.JSE(), churnPrices(t), funcProvider(churn))
	require.NoError(t, err)

	a, err := eng.Run(context.Background())
	require.NoError(t, err)
	b, err := eng.Run(context.Background())
	require.NoError(t, err)

	ja, err := json.Marshal(a.Snapshots)
	require.NoError(t, err)
	jb, err := json.Marshal(b.Snapshots)
	require.NoError(t, err)
	assert.True(t, bytes.Equal(ja, jb))

	ta, err := json.Marshal(a.Trades)
	require.NoError(t, err)
	tb, err := json.Marshal(b.Trades)
	require.NoError(t, err)
	assert.Equal(t, string(ta), string(tb))
}

func TestReplayWithStatefulProvider(t *testing.T) {
	t.Parallel()

	prices := series(t,
		map[string]string{"NPN": "100", "SBK": "200"},
		map[string]string{"NPN": "101", "SBK": "198"},
		map[string]string{"NPN": "99", "SBK": "205"},
	)
	eng, err := NewEngine(config("1000000", "NPN", "SBK"), market.JSE(), prices, &strategies.BuyOnce{Fraction: 1})
	require.NoError(t, err)

	a, err := eng.Run(context.Background())
	require.NoError(t, err)
	b, err := eng.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, a.Trades, 2)
	ta, err := json.Marshal(a.Trades)
	require.NoError(t, err)
	tb, err := json.Marshal(b.Trades)
	require.NoError(t, err)
	assert.Equal(t, string(ta), string(tb))

	ja, err := json.Marshal(a.Snapshots)
	require.NoError(t, err)
	jb, err := json.Marshal(b.Snapshots)
	require.NoError(t, err)
	assert.Equal(t, string(ja), string(jb))
}

func TestMissingPriceForHeldSymbolAborts(t *testing.T) {
	t.Parallel()

	prices := series(t,
		map[string]string{"SBK": "100", "MTN": "100"},
		map[string]string{"MTN": "100"},
	)
	dp := scripted(t, map[int][]strategies.Decision{
		1: {{Symbol: "SBK", Action: strategies.Buy, Quantity: 10}},
	})
	eng, err := NewEngine(config("1000000", "SBK", "MTN"), market.JSE(), prices, dp)
	require.NoError(t, err)

	_, err = eng.Run(context.Background())
	var in *InputError
	require.ErrorAs(t, err, &in)
	assert.Equal(t, day(2), in.Date)
	assert.Equal(t, "SBK", in.Symbol)
	assert.ErrorIs(t, err, portfolio.ErrMissingPrice)
}

func TestMissingPriceOnlyMattersWhenTraded(t *testing.T) {
	t.Parallel()

	prices := series(t,
		map[string]string{"MTN": "100"},
		map[string]string{"MTN": "100", "SBK": "50"},
	)
	dp := scripted(t, map[int][]strategies.Decision{
		2: {{Symbol: "SBK", Action: strategies.Buy, Quantity: 10}},
	})
	res := run(t, config("1000000", "SBK", "MTN"), prices, dp)
	require.Len(t, res.Trades, 1)
	assert.Equal(t, int64(10), res.FinalState.Quantity("SBK"))

	dp = scripted(t, map[int][]strategies.Decision{
		1: {{Symbol: "SBK", Action: strategies.Buy, Quantity: 10}},
	})
	eng, err := NewEngine(config("1000000", "SBK", "MTN"), market.JSE(), prices, dp)
	require.NoError(t, err)
	_, err = eng.Run(context.Background())
	assert.ErrorIs(t, err, portfolio.ErrMissingPrice)
}

func TestBadDecisionsAbort(t *testing.T) {
	t.Parallel()

	prices := series(t, map[string]string{"SBK": "100", "MTN": "100"})
	tests := []struct {
		name string
		out  map[string]strategies.Decision
		err  error
	}{
		{"unknown symbol", map[string]strategies.Decision{"AAPL": {Symbol: "AAPL", Action: strategies.Buy, Quantity: 1}}, portfolio.ErrUnknownSymbol},
		{"negative quantity", map[string]strategies.Decision{"SBK": {Symbol: "SBK", Action: strategies.Buy, Quantity: -1}}, nil},
		{"bad action", map[string]strategies.Decision{"SBK": {Symbol: "SBK", Action: "SHORT", Quantity: 1}}, nil},
		{"mismatched key", map[string]strategies.Decision{"SBK": {Symbol: "MTN", Action: strategies.Buy, Quantity: 1}}, nil},
		{"nan fraction", map[string]strategies.Decision{"SBK": {Symbol: "SBK", Action: strategies.Buy, Fraction: math.NaN()}}, nil},
		{"symbol outside run", map[string]strategies.Decision{"MTN": {Symbol: "MTN", Action: strategies.Buy, Quantity: 1}}, portfolio.ErrUnknownSymbol},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dp := funcProvider(func(time.Time, strategies.View) (map[string]strategies.Decision, error) {
				return tt.out, nil
			})
			eng, err := NewEngine(config("1000000", "SBK"), market.JSE(), prices, dp)
			require.NoError(t, err)
			_, err = eng.Run(context.Background())
			var in *InputError
			require.ErrorAs(t, err, &in)
			assert.Equal(t, day(1), in.Date)
			if tt.err != nil {
				assert.ErrorIs(t, err, tt.err)
			}
		})
	}
}

func TestProviderErrorAborts(t *testing.T) {
	t.Parallel()

	boom := errors.New("agent offline")
	dp := funcProvider(func(time.Time, strategies.View) (map[string]strategies.Decision, error) {
		return nil, boom
	})
	eng, err := NewEngine(config("1000000", "SBK"), market.JSE(), series(t, map[string]string{"SBK": "100"}), dp)
	require.NoError(t, err)
	_, err = eng.Run(context.Background())
	assert.ErrorIs(t, err, boom)
}

func TestEmptyRangeIsInputError(t *testing.T) {
	t.Parallel()

	cfg := config("1000000", "SBK")
	cfg.From = day(10)
	eng, err := NewEngine(cfg, market.JSE(), series(t, map[string]string{"SBK": "100"}), strategies.HoldStrategy{})
	require.NoError(t, err)
	_, err = eng.Run(context.Background())
	var in *InputError
	assert.ErrorAs(t, err, &in)
}

func TestRunHonoursCancel(t *testing.T) {
	t.Parallel()

	eng, err := NewEngine(config("1000000", "SBK"), market.JSE(), series(t, map[string]string{"SBK": "100"}), strategies.HoldStrategy{})
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = eng.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewEngineValidates(t *testing.T) {
	t.Parallel()

	prices := series(t, map[string]string{"SBK": "100"})
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero capital", func(c *Config) { c.StartingCapital = decimal.Zero }},
		{"floor above capital", func(c *Config) { c.CashFloor = d("2000000") }},
		{"no symbols", func(c *Config) { c.Symbols = nil }},
		{"unknown symbol", func(c *Config) { c.Symbols = []string{"AAPL"} }},
		{"bad limits", func(c *Config) { c.Limits.StopLossFraction = 0 }},
		{"reversed range", func(c *Config) { c.From, c.To = day(5), day(1) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config("1000000", "SBK")
			tt.mutate(&cfg)
			_, err := NewEngine(cfg, market.JSE(), prices, strategies.HoldStrategy{})
			assert.Error(t, err)
		})
	}

	_, err := NewEngine(config("1000000", "SBK"), market.JSE(), prices, nil)
	assert.Error(t, err)
}

func TestObserverSeesEveryDay(t *testing.T) {
	t.Parallel()

	prices := series(t, map[string]string{"NPN": "100"}, map[string]string{"NPN": "101"}, map[string]string{"NPN": "99"})
	rec := &recorder{}
	res := run(t, config("1000000", "NPN"), prices, &strategies.BuyOnce{Fraction: 1}, WithObserver(rec))

	require.Len(t, rec.snaps, 3)
	assert.Equal(t, 1, rec.trades)
	assert.Equal(t, res.Snapshots, rec.snaps)
}

func TestDateRangeAndSymbolOrder(t *testing.T) {
	t.Parallel()

	prices := series(t,
		map[string]string{"SBK": "100", "MTN": "100"},
		map[string]string{"SBK": "100", "MTN": "100"},
		map[string]string{"SBK": "100", "MTN": "100"},
	)
	cfg := config("1000000", "SBK", "MTN", "SBK")
	cfg.From, cfg.To = day(2), day(3)
	eng, err := NewEngine(cfg, market.JSE(), prices, strategies.HoldStrategy{})
	require.NoError(t, err)
	assert.Equal(t, []string{"MTN", "SBK"}, eng.Config().Symbols)

	res, err := eng.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, day(2), res.Start)
	assert.Equal(t, day(3), res.End)
	assert.Len(t, res.Snapshots, 2)
	assert.Empty(t, res.Trades)
}

func TestSweepRunsIsolated(t *testing.T) {
	t.Parallel()

	prices := series(t, map[string]string{"NPN": "100"}, map[string]string{"NPN": "100"})
	var runs []SweepRun
	for _, f := range []float64{0.05, 0.10, 0.20} {
		cfg := config("1000000", "NPN")
		cfg.Limits.MaxPositionFraction = f
		runs = append(runs, SweepRun{
			Name:   "pos",
			Config: cfg,
			NewDecider: func() (strategies.DecisionProvider, error) {
				return &strategies.BuyOnce{Fraction: 1}, nil
			},
		})
	}

	results, err := Sweep(context.Background(), market.JSE(), prices, runs, 2)
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, int64(500), results[0].FinalState.Quantity("NPN"))
	assert.Equal(t, int64(1000), results[1].FinalState.Quantity("NPN"))
	assert.Equal(t, int64(2000), results[2].FinalState.Quantity("NPN"))
}

func TestSweepStopsOnError(t *testing.T) {
	t.Parallel()

	prices := series(t, map[string]string{"NPN": "100"})
	runs := []SweepRun{
		{Name: "ok", Config: config("1000000", "NPN"), NewDecider: func() (strategies.DecisionProvider, error) { return strategies.HoldStrategy{}, nil }},
		{Name: "bad", Config: config("1000000", "NPN")},
	}
	_, err := Sweep(context.Background(), market.JSE(), prices, runs, 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad")
}

func TestPrintResult(t *testing.T) {
	t.Parallel()

	prices := series(t, map[string]string{"NPN": "100"}, map[string]string{"NPN": "110"})
	res := run(t, config("1000000", "NPN"), prices, &strategies.BuyOnce{Fraction: 1},
		WithFX(market.FixedFX(d("20"))))
	res.RunID = "01TESTRUN"

	var buf bytes.Buffer
	PrintResult(&buf, res)
	out := buf.String()

	assert.Contains(t, out, "Run ID:        01TESTRUN")
	assert.Contains(t, out, "Initial Capital: R1000000.00")
	assert.Contains(t, out, "Final Value:     R1005000.00")
	assert.Contains(t, out, "Total Return:    0.50%")
	assert.Contains(t, out, "USD Equivalent:  $50000.00 -> $50250.00")
	assert.Contains(t, out, "NPN   1 buys, 0 sells")
	assert.Contains(t, out, "Settlement:    T+3")
	assert.Contains(t, out, "Max Position:  5.0%")
}
