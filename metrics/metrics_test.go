package metrics

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rustyeddy/jsetrader/backtest"
	"github.com/rustyeddy/jsetrader/market"
	"github.com/rustyeddy/jsetrader/risk"
	"github.com/rustyeddy/jsetrader/strategies"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ backtest.Observer = (*Recorder)(nil)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func runWith(t *testing.T, rec *Recorder) *backtest.Result {
	t.Helper()

	day := func(n int) time.Time { return time.Date(2024, 4, n, 0, 0, 0, 0, time.UTC) }
	prices := market.NewSeries()
	for i, px := range []string{"100", "100", "80"} {
		require.NoError(t, prices.AddClose(day(i+1), "MTN", d(px)))
	}
	eng, err := backtest.NewEngine(backtest.Config{
		StartingCapital: d("1000000"),
		Limits:          risk.DefaultLimits(),
		Symbols:         []string{"MTN"},
	}, market.JSE(), prices, &strategies.BuyOnce{Fraction: 1}, backtest.WithObserver(rec))
	require.NoError(t, err)

	res, err := eng.Run(context.Background())
	require.NoError(t, err)
	return res
}

func TestRecorderCountsRun(t *testing.T) {
	t.Parallel()

	rec := New("buy-once")
	res := runWith(t, rec)

	assert.Equal(t, 1.0, rec.TradeCount("BUY", "CLIPPED", "EXTERNAL"))
	assert.Equal(t, 1.0, rec.TradeCount("SELL", "FILLED", "FORCED_STOP_LOSS"))
	assert.Equal(t, 0.0, rec.TradeCount("BUY", "REJECTED", "EXTERNAL"))
	assert.Equal(t, 1.0, rec.LimitCount(string(risk.PositionLimit)))
	assert.Equal(t, 1.0, rec.LimitCount(string(risk.StopLoss)))

	final, _ := res.Report.FinalEquity.Float64()
	assert.Equal(t, final, rec.EquityValue())
	assert.Equal(t, 0.0, gaugeValue(rec.Positions))
	assert.Equal(t, 3.0, counterValue(rec.Days))
}

func TestRecorderWriteTextfile(t *testing.T) {
	t.Parallel()

	rec := New("buy-once")
	runWith(t, rec)

	path := filepath.Join(t.TempDir(), "jsetrader.prom")
	require.NoError(t, rec.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	out := string(data)
	assert.Contains(t, out, "# TYPE jsetrader_trades_total counter")
	assert.Contains(t, out, `jsetrader_trades_total{action="SELL",outcome="FILLED",source="FORCED_STOP_LOSS",strategy="buy-once"} 1`)
	assert.Contains(t, out, `jsetrader_limits_triggered_total{limit="STOP_LOSS",strategy="buy-once"} 1`)
	assert.Contains(t, out, `jsetrader_days_total{strategy="buy-once"} 3`)
}

func TestRecordersAreIsolated(t *testing.T) {
	t.Parallel()

	a, b := New("a"), New("b")
	runWith(t, a)
	assert.Equal(t, 3.0, counterValue(a.Days))
	assert.Equal(t, 0.0, counterValue(b.Days))
}
