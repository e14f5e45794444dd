// Package performance derives return, drawdown and exposure statistics from
// a finished run. Nothing here mutates its inputs.
package performance

import (
	"math"
	"sort"
	"time"

	"github.com/rustyeddy/jsetrader/market"
	"github.com/rustyeddy/jsetrader/portfolio"
	"github.com/rustyeddy/jsetrader/risk"
	"github.com/rustyeddy/jsetrader/sim"
	"github.com/rustyeddy/jsetrader/strategies"
	"github.com/shopspring/decimal"
	"gonum.org/v1/gonum/stat"
)

// TradingDaysPerYear annualizes daily statistics.
const TradingDaysPerYear = 252

// ExposurePoint is the sector breakdown at one close.
type ExposurePoint struct {
	Date     time.Time                  `json:"date"`
	Exposure map[string]decimal.Decimal `json:"exposure"`
}

// SymbolStats counts trade records per symbol.
type SymbolStats struct {
	Symbol      string          `json:"symbol"`
	Buys        int             `json:"buys"`
	Sells       int             `json:"sells"`
	Forced      int             `json:"forced"`
	Clipped     int             `json:"clipped"`
	Rejected    int             `json:"rejected"`
	RealizedPnL decimal.Decimal `json:"realized_pnl"`
}

// Report is the immutable summary of a run.
type Report struct {
	Days            int             `json:"days"`
	Start           time.Time       `json:"start"`
	End             time.Time       `json:"end"`
	InitialEquity   decimal.Decimal `json:"initial_equity"`
	FinalEquity     decimal.Decimal `json:"final_equity"`
	NetPnL          decimal.Decimal `json:"net_pnl"`
	RealizedPnL     decimal.Decimal `json:"realized_pnl"`
	TotalReturn     decimal.Decimal `json:"total_return"`
	MaxDrawdown     decimal.Decimal `json:"max_drawdown"`
	MaxDrawdownDate time.Time       `json:"max_drawdown_date"`

	// Zero when no FX rates were supplied.
	USDZAR         decimal.Decimal `json:"usd_zar"`
	FinalEquityUSD decimal.Decimal `json:"final_equity_usd"`

	DailyReturns []float64 `json:"daily_returns"`
	Volatility   float64   `json:"volatility"` // annualized
	Sharpe       float64   `json:"sharpe"`     // annualized, zero risk-free rate

	Trades      int `json:"trades"`
	Filled      int `json:"filled"`
	Clipped     int `json:"clipped"`
	Rejected    int `json:"rejected"`
	Forced      int `json:"forced"`
	BreakerDays int `json:"breaker_days"`

	Symbols        []SymbolStats   `json:"symbols"`
	SectorExposure []ExposurePoint `json:"sector_exposure"`
}

// Compute builds a Report from the snapshot history and trade records. fx
// may be nil.
func Compute(initial decimal.Decimal, snaps []portfolio.Snapshot, trades []sim.TradeRecord, fx *market.FXRates) Report {
	r := Report{
		Days:           len(snaps),
		InitialEquity:  initial,
		FinalEquity:    initial,
		NetPnL:         decimal.Zero,
		RealizedPnL:    decimal.Zero,
		TotalReturn:    decimal.Zero,
		MaxDrawdown:    decimal.Zero,
		USDZAR:         decimal.Zero,
		FinalEquityUSD: decimal.Zero,
	}

	if len(snaps) > 0 {
		last := snaps[len(snaps)-1]
		r.Start = snaps[0].Date
		r.End = last.Date
		r.FinalEquity = last.Equity
		r.RealizedPnL = last.RealizedPnL
	}
	r.NetPnL = r.FinalEquity.Sub(initial)
	if fx != nil {
		r.USDZAR = fx.Rate(r.End)
		r.FinalEquityUSD = fx.ToUSD(r.FinalEquity, r.End)
	}
	if initial.IsPositive() {
		r.TotalReturn = r.NetPnL.Div(initial)
	}

	r.MaxDrawdown, r.MaxDrawdownDate = MaxDrawdown(snaps)
	r.DailyReturns = DailyReturns(initial, snaps)
	r.Volatility = AnnualizedVolatility(r.DailyReturns)
	r.Sharpe = Sharpe(r.DailyReturns)
	r.SectorExposure = SectorSeries(snaps)

	for _, s := range snaps {
		for _, l := range s.TriggeredLimits {
			if l == string(risk.DailyDrawdownBreaker) {
				r.BreakerDays++
				break
			}
		}
	}

	r.Symbols = symbolStats(trades)
	for _, t := range trades {
		r.Trades++
		switch t.Outcome {
		case risk.Filled:
			r.Filled++
		case risk.Clipped:
			r.Clipped++
		case risk.Rejected:
			r.Rejected++
		}
		if t.Source == sim.ForcedStopLoss {
			r.Forced++
		}
	}
	return r
}

// MaxDrawdown is the largest (peak - equity) / peak over the snapshots,
// using the peak recorded in each snapshot.
func MaxDrawdown(snaps []portfolio.Snapshot) (decimal.Decimal, time.Time) {
	max := decimal.Zero
	var at time.Time
	for _, s := range snaps {
		if dd := s.Drawdown(); dd.GreaterThan(max) {
			max = dd
			at = s.Date
		}
	}
	return max, at
}

// DailyReturns are close-to-close returns, the first measured against the
// initial capital.
func DailyReturns(initial decimal.Decimal, snaps []portfolio.Snapshot) []float64 {
	out := make([]float64, 0, len(snaps))
	prev := initial
	for _, s := range snaps {
		if prev.IsPositive() {
			r, _ := s.Equity.Sub(prev).Div(prev).Float64()
			out = append(out, r)
		}
		prev = s.Equity
	}
	return out
}

// AnnualizedVolatility is the sample standard deviation of daily returns
// scaled by sqrt(252).
func AnnualizedVolatility(returns []float64) float64 {
	if len(returns) < 2 {
		return 0
	}
	return stat.StdDev(returns, nil) * math.Sqrt(TradingDaysPerYear)
}

// Sharpe is the annualized mean daily return over its standard deviation.
func Sharpe(returns []float64) float64 {
	if len(returns) < 2 {
		return 0
	}
	mean, std := stat.MeanStdDev(returns, nil)
	if std == 0 {
		return 0
	}
	return mean / std * math.Sqrt(TradingDaysPerYear)
}

// SectorSeries extracts the per-sector exposure at every close.
func SectorSeries(snaps []portfolio.Snapshot) []ExposurePoint {
	out := make([]ExposurePoint, len(snaps))
	for i, s := range snaps {
		exp := make(map[string]decimal.Decimal, len(s.SectorExposure))
		for k, v := range s.SectorExposure {
			exp[k] = v
		}
		out[i] = ExposurePoint{Date: s.Date, Exposure: exp}
	}
	return out
}

func symbolStats(trades []sim.TradeRecord) []SymbolStats {
	by := map[string]*SymbolStats{}
	for _, t := range trades {
		st, ok := by[t.Symbol]
		if !ok {
			st = &SymbolStats{Symbol: t.Symbol, RealizedPnL: decimal.Zero}
			by[t.Symbol] = st
		}
		if t.Source == sim.ForcedStopLoss {
			st.Forced++
		}
		switch t.Outcome {
		case risk.Clipped:
			st.Clipped++
		case risk.Rejected:
			st.Rejected++
			continue
		}
		if t.Quantity == 0 {
			continue
		}
		switch t.Action {
		case strategies.Buy:
			st.Buys++
		case strategies.Sell:
			st.Sells++
			st.RealizedPnL = st.RealizedPnL.Add(t.RealizedPnL)
		}
	}

	out := make([]SymbolStats, 0, len(by))
	for _, st := range by {
		out = append(out, *st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}
