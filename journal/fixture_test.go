package journal

import (
	"context"
	"testing"
	"time"

	"github.com/rustyeddy/jsetrader/backtest"
	"github.com/rustyeddy/jsetrader/market"
	"github.com/rustyeddy/jsetrader/risk"
	"github.com/rustyeddy/jsetrader/strategies"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func date(n int) time.Time { return time.Date(2024, 2, n, 0, 0, 0, 0, time.UTC) }

// testResult is a three day run: a clipped buy of NPN, a filled buy of SBK
// and a forced stop loss on SBK.
func testResult(t *testing.T, runID string) *backtest.Result {
	t.Helper()

	prices := market.NewSeries()
	closes := []map[string]string{
		{"NPN": "100", "SBK": "200"},
		{"NPN": "102", "SBK": "200"},
		{"NPN": "101", "SBK": "160"},
	}
	for i, row := range closes {
		for sym, px := range row {
			require.NoError(t, prices.AddClose(date(i+1), sym, d(px)))
		}
	}

	dp, err := strategies.NewScripted(map[time.Time][]strategies.Decision{
		date(1): {{Symbol: "NPN", Action: strategies.Buy, Fraction: 1, Reason: "all in"}},
		date(2): {{Symbol: "SBK", Action: strategies.Buy, Quantity: 50}},
	})
	require.NoError(t, err)

	eng, err := backtest.NewEngine(backtest.Config{
		StartingCapital: d("1000000"),
		Limits:          risk.DefaultLimits(),
		Symbols:         []string{"NPN", "SBK"},
	}, market.JSE(), prices, dp)
	require.NoError(t, err)

	res, err := eng.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, res.Trades, 3)
	res.RunID = runID
	return res
}
