// Package journal persists finished backtest runs for later review.
//
// Runs are recorded after the engine returns, never from inside the day
// loop.
package journal

import (
	"context"
	"fmt"
	"time"

	"github.com/rustyeddy/jsetrader/backtest"
	"github.com/rustyeddy/jsetrader/internal/id"
	"github.com/rustyeddy/jsetrader/risk"
	"github.com/shopspring/decimal"
)

// Run is the summary row of one recorded backtest.
type Run struct {
	RunID    string
	Created  time.Time
	Strategy string

	Start   time.Time
	End     time.Time
	Symbols []string
	Limits  risk.Limits

	StartingCapital decimal.Decimal
	FinalEquity     decimal.Decimal
	NetPnL          decimal.Decimal
	RealizedPnL     decimal.Decimal
	TotalReturn     decimal.Decimal
	MaxDrawdown     decimal.Decimal
	Volatility      float64
	Sharpe          float64

	Days        int
	Trades      int
	Filled      int
	Clipped     int
	Rejected    int
	Forced      int
	BreakerDays int

	OrgPath string
	Notes   []string
}

// NewRun summarizes res. res.RunID must already be set.
func NewRun(res *backtest.Result, created time.Time) Run {
	rep := res.Report
	r := Run{
		RunID:           res.RunID,
		Created:         created.UTC(),
		Strategy:        res.Strategy,
		Start:           res.Start,
		End:             res.End,
		Symbols:         append([]string(nil), res.Config.Symbols...),
		Limits:          res.Config.Limits,
		StartingCapital: res.Config.StartingCapital,
		FinalEquity:     rep.FinalEquity,
		NetPnL:          rep.NetPnL,
		RealizedPnL:     rep.RealizedPnL,
		TotalReturn:     rep.TotalReturn,
		MaxDrawdown:     rep.MaxDrawdown,
		Volatility:      rep.Volatility,
		Sharpe:          rep.Sharpe,
		Days:            rep.Days,
		Trades:          rep.Trades,
		Filled:          rep.Filled,
		Clipped:         rep.Clipped,
		Rejected:        rep.Rejected,
		Forced:          rep.Forced,
		BreakerDays:     rep.BreakerDays,
	}

	if rep.Forced > 0 {
		r.Notes = append(r.Notes, fmt.Sprintf("%d position(s) liquidated by the stop loss", rep.Forced))
	}
	if rep.BreakerDays > 0 {
		r.Notes = append(r.Notes, fmt.Sprintf("daily drawdown breaker tripped on %d day(s)", rep.BreakerDays))
	}
	if rep.Clipped > 0 {
		r.Notes = append(r.Notes, fmt.Sprintf("%d order(s) clipped by position, sector or cash limits", rep.Clipped))
	}
	return r
}

// Journal records finished runs.
type Journal interface {
	RecordRun(ctx context.Context, res *backtest.Result) error
	Close() error
}

// Record assigns a run ID when res has none and writes it to j.
func Record(ctx context.Context, j Journal, res *backtest.Result) (string, error) {
	if res.RunID == "" {
		res.RunID = id.New()
	}
	if err := j.RecordRun(ctx, res); err != nil {
		return res.RunID, fmt.Errorf("record run %s: %w", res.RunID, err)
	}
	return res.RunID, nil
}
