package risk

import (
	"math"
	"testing"

	"github.com/rustyeddy/jsetrader/market"
	"github.com/rustyeddy/jsetrader/portfolio"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func newEngine(t *testing.T, l Limits) *Engine {
	t.Helper()
	e, err := NewEngine(l, market.JSE())
	require.NoError(t, err)
	return e
}

func newBook(t *testing.T, cash string) *portfolio.State {
	t.Helper()
	s, err := portfolio.New(market.JSE(), d(cash), decimal.Zero)
	require.NoError(t, err)
	return s
}

func TestLimitsValidate(t *testing.T) {
	t.Parallel()

	assert.NoError(t, DefaultLimits().Validate())

	tests := []struct {
		name   string
		mutate func(*Limits)
		errMsg string
	}{
		{"zero position", func(l *Limits) { l.MaxPositionFraction = 0 }, "max_position_fraction"},
		{"sector above one", func(l *Limits) { l.MaxSectorFraction = 1.2 }, "max_sector_fraction"},
		{"negative stop", func(l *Limits) { l.StopLossFraction = -0.1 }, "stop_loss_fraction"},
		{"zero drawdown", func(l *Limits) { l.MaxDailyDrawdownFraction = 0 }, "max_daily_drawdown_fraction"},
		{"nan stop", func(l *Limits) { l.StopLossFraction = math.NaN() }, "stop_loss_fraction"},
		{"nan position", func(l *Limits) { l.MaxPositionFraction = math.NaN() }, "max_position_fraction"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := DefaultLimits()
			tt.mutate(&l)
			err := l.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestMaxQuantity(t *testing.T) {
	t.Parallel()

	assert.Equal(t, int64(500), MaxQuantity(d("50000"), d("100")))
	assert.Equal(t, int64(333), MaxQuantity(d("1000"), d("3")))
	assert.Equal(t, int64(0), MaxQuantity(d("-10"), d("3")))
	assert.Equal(t, int64(0), MaxQuantity(d("10"), d("0")))
}

func TestBuyClippedToPositionLimit(t *testing.T) {
	t.Parallel()

	e := newEngine(t, DefaultLimits())
	b := newBook(t, "1000000")

	v, err := e.Evaluate(b, Request{
		Symbol:   "SBK",
		Quantity: 10000,
		Prices:   portfolio.Prices{"SBK": d("100")},
	})
	require.NoError(t, err)
	assert.Equal(t, Clipped, v.Outcome)
	assert.Equal(t, int64(500), v.Approved)
	assert.Equal(t, []Limit{PositionLimit}, v.Limits())
}

func TestBuyClipNeverOvershoots(t *testing.T) {
	t.Parallel()

	e := newEngine(t, DefaultLimits())
	b := newBook(t, "1000000")
	price := d("137.13")
	_, err := b.ApplyFill("SBK", 100, price)
	require.NoError(t, err)

	prices := portfolio.Prices{"SBK": price}
	v, err := e.Evaluate(b, Request{Symbol: "SBK", Quantity: 1_000_000, Prices: prices})
	require.NoError(t, err)
	require.Equal(t, Clipped, v.Outcome)

	equity, err := b.MarkToMarket(prices)
	require.NoError(t, err)
	limit := d("0.05").Mul(equity)
	post := price.Mul(decimal.NewFromInt(100 + v.Approved))
	assert.True(t, post.LessThanOrEqual(limit), "post-trade value within limit")
	assert.True(t, post.Add(price).GreaterThan(limit), "one more share would breach")
}

func TestBuyClippedToSectorLimit(t *testing.T) {
	t.Parallel()

	l := DefaultLimits()
	l.MaxPositionFraction = 0.2
	e := newEngine(t, l)
	b := newBook(t, "100000")

	// 25% of equity already in financials
	_, err := b.ApplyFill("SBK", 125, d("100"))
	require.NoError(t, err)
	_, err = b.ApplyFill("FSR", 250, d("50"))
	require.NoError(t, err)

	prices := portfolio.Prices{"SBK": d("100"), "FSR": d("50"), "NED": d("10")}
	v, err := e.Evaluate(b, Request{Symbol: "NED", Quantity: 2000, Prices: prices})
	require.NoError(t, err)
	assert.Equal(t, Clipped, v.Outcome)
	// room = 30000 - 25000 = 5000 -> 500 shares
	assert.Equal(t, int64(500), v.Approved)
	assert.Equal(t, []Limit{SectorLimit}, v.Limits())

	// another sector is unaffected
	v, err = e.Evaluate(b, Request{Symbol: "NPN", Quantity: 10, Prices: portfolio.Prices{
		"SBK": d("100"), "FSR": d("50"), "NPN": d("100"),
	}})
	require.NoError(t, err)
	assert.Equal(t, Filled, v.Outcome)
	assert.Equal(t, int64(10), v.Approved)
}

func TestBuyClippedToCash(t *testing.T) {
	t.Parallel()

	l := Limits{MaxPositionFraction: 1, MaxSectorFraction: 1, StopLossFraction: 0.15, MaxDailyDrawdownFraction: 0.02}
	e := newEngine(t, l)
	b := newBook(t, "1000")
	_, err := b.ApplyFill("NPN", 10, d("50"))
	require.NoError(t, err)

	// equity 1000, cash 500
	v, err := e.Evaluate(b, Request{Symbol: "MTN", Quantity: 20, Prices: portfolio.Prices{"MTN": d("30"), "NPN": d("50")}})
	require.NoError(t, err)
	assert.Equal(t, Clipped, v.Outcome)
	assert.Equal(t, int64(16), v.Approved)
	assert.Equal(t, []Limit{CashLimit}, v.Limits())
}

func TestBuyRejectedWhenNoRoom(t *testing.T) {
	t.Parallel()

	e := newEngine(t, DefaultLimits())
	b := newBook(t, "1000")

	v, err := e.Evaluate(b, Request{Symbol: "NPN", Quantity: 1, Prices: portfolio.Prices{"NPN": d("3000")}})
	require.NoError(t, err)
	assert.Equal(t, Rejected, v.Outcome)
	assert.Equal(t, int64(0), v.Approved)
	assert.Contains(t, v.Limits(), PositionLimit)
}

func TestBreakerRejectsBuysNotSells(t *testing.T) {
	t.Parallel()

	e := newEngine(t, DefaultLimits())
	b := newBook(t, "100000")
	_, err := b.ApplyFill("VOD", 10, d("100"))
	require.NoError(t, err)
	prices := portfolio.Prices{"VOD": d("100"), "MTN": d("100")}

	v, err := e.Evaluate(b, Request{Symbol: "MTN", Quantity: 1, Prices: prices, BreakerTripped: true})
	require.NoError(t, err)
	assert.Equal(t, Rejected, v.Outcome)
	assert.Equal(t, []Limit{DailyDrawdownBreaker}, v.Limits())

	v, err = e.Evaluate(b, Request{Symbol: "VOD", Quantity: -10, Prices: prices, BreakerTripped: true})
	require.NoError(t, err)
	assert.Equal(t, Filled, v.Outcome)
	assert.Equal(t, int64(-10), v.Approved)
}

func TestSellRules(t *testing.T) {
	t.Parallel()

	e := newEngine(t, DefaultLimits())
	b := newBook(t, "100000")
	_, err := b.ApplyFill("VOD", 10, d("100"))
	require.NoError(t, err)
	prices := portfolio.Prices{"VOD": d("100"), "MTN": d("100")}

	v, err := e.Evaluate(b, Request{Symbol: "VOD", Quantity: -25, Prices: prices})
	require.NoError(t, err)
	assert.Equal(t, Clipped, v.Outcome)
	assert.Equal(t, int64(-10), v.Approved)
	assert.Equal(t, []Limit{HeldQuantity}, v.Limits())

	v, err = e.Evaluate(b, Request{Symbol: "MTN", Quantity: -1, Prices: prices})
	require.NoError(t, err)
	assert.Equal(t, Rejected, v.Outcome)
	assert.Equal(t, []Limit{NoPosition}, v.Limits())
}

func TestEvaluateInputErrors(t *testing.T) {
	t.Parallel()

	e := newEngine(t, DefaultLimits())
	b := newBook(t, "100000")

	_, err := e.Evaluate(b, Request{Symbol: "SBK", Quantity: 1, Prices: portfolio.Prices{}})
	assert.ErrorIs(t, err, portfolio.ErrMissingPrice)

	_, err = e.Evaluate(b, Request{Symbol: "XYZ", Quantity: 1, Prices: portfolio.Prices{"XYZ": d("1")}})
	assert.Error(t, err)
}

func TestStopLosses(t *testing.T) {
	t.Parallel()

	e := newEngine(t, DefaultLimits())
	b := newBook(t, "1000000")
	_, err := b.ApplyFill("SBK", 100, d("100"))
	require.NoError(t, err)
	_, err = b.ApplyFill("AGL", 100, d("100"))
	require.NoError(t, err)
	_, err = b.ApplyFill("MTN", 100, d("100"))
	require.NoError(t, err)

	forced, err := e.StopLosses(b, portfolio.Prices{
		"SBK": d("84"),    // -16%
		"AGL": d("85"),    // exactly -15%
		"MTN": d("85.01"), // just inside
	})
	require.NoError(t, err)
	require.Len(t, forced, 2)
	assert.Equal(t, "AGL", forced[0].Symbol, "ascending symbol order")
	assert.Equal(t, "SBK", forced[1].Symbol)
	assert.Equal(t, int64(100), forced[1].Quantity)
	assert.True(t, forced[1].Return.Equal(d("-0.16")))

	_, err = e.StopLosses(b, portfolio.Prices{"SBK": d("84")})
	assert.ErrorIs(t, err, portfolio.ErrMissingPrice)
}

func TestDrawdownTripped(t *testing.T) {
	t.Parallel()

	e := newEngine(t, DefaultLimits())
	tests := []struct {
		name    string
		current string
		want    bool
	}{
		{"flat", "1000000", false},
		{"up", "1010000", false},
		{"just under", "980001", false},
		{"exactly two percent", "980000", true},
		{"two and a half percent", "975000", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, e.DrawdownTripped(d("1000000"), d(tt.current)))
		})
	}
	assert.False(t, e.DrawdownTripped(decimal.Zero, d("1")))
}
