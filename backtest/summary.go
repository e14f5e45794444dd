package backtest

import (
	"fmt"
	"io"

	"github.com/rustyeddy/jsetrader/market"
	"github.com/shopspring/decimal"
)

// PrintResult writes a plain text summary of a run.
func PrintResult(w io.Writer, r *Result) {
	rep := r.Report
	hundred := decimal.NewFromInt(100)

	fmt.Fprintln(w, "==================================================")
	fmt.Fprintln(w, " JSE Backtest Result")
	fmt.Fprintln(w, "==================================================")

	if r.RunID != "" {
		fmt.Fprintf(w, "Run ID:        %s\n", r.RunID)
	}
	fmt.Fprintf(w, "Strategy:      %s\n", r.Strategy)
	fmt.Fprintf(w, "Symbols:       %v\n", r.Config.Symbols)

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Period")
	fmt.Fprintln(w, "--------------------------------------------------")
	fmt.Fprintf(w, "Start:         %s\n", r.Start.Format(market.DateLayout))
	fmt.Fprintf(w, "End:           %s\n", r.End.Format(market.DateLayout))
	fmt.Fprintf(w, "Trading Days:  %d\n", rep.Days)

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Portfolio Performance")
	fmt.Fprintln(w, "--------------------------------------------------")
	fmt.Fprintf(w, "Initial Capital: %s%s\n", market.CurrencySymbol, rep.InitialEquity.StringFixed(2))
	fmt.Fprintf(w, "Final Value:     %s%s\n", market.CurrencySymbol, rep.FinalEquity.StringFixed(2))
	fmt.Fprintf(w, "Net P/L:         %s%s\n", market.CurrencySymbol, rep.NetPnL.StringFixed(2))
	fmt.Fprintf(w, "Realized P/L:    %s%s\n", market.CurrencySymbol, rep.RealizedPnL.StringFixed(2))
	fmt.Fprintf(w, "Total Return:    %s%%\n", rep.TotalReturn.Mul(hundred).StringFixed(2))
	fmt.Fprintf(w, "Max Drawdown:    %s%%\n", rep.MaxDrawdown.Mul(hundred).StringFixed(2))
	fmt.Fprintf(w, "Volatility:      %.2f%%\n", rep.Volatility*100)
	fmt.Fprintf(w, "Sharpe:          %.2f\n", rep.Sharpe)
	if rep.USDZAR.IsPositive() {
		fmt.Fprintf(w, "USD Equivalent:  $%s -> $%s (USDZAR %s)\n",
			rep.InitialEquity.Div(rep.USDZAR).StringFixed(2),
			rep.FinalEquityUSD.StringFixed(2),
			rep.USDZAR.String())
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Trading Activity")
	fmt.Fprintln(w, "--------------------------------------------------")
	fmt.Fprintf(w, "Trades:        %d\n", rep.Trades)
	fmt.Fprintf(w, "Filled:        %d\n", rep.Filled)
	fmt.Fprintf(w, "Clipped:       %d\n", rep.Clipped)
	fmt.Fprintf(w, "Rejected:      %d\n", rep.Rejected)
	fmt.Fprintf(w, "Stop Losses:   %d\n", rep.Forced)
	fmt.Fprintf(w, "Breaker Days:  %d\n", rep.BreakerDays)
	for _, s := range rep.Symbols {
		fmt.Fprintf(w, "  %-5s %d buys, %d sells", s.Symbol, s.Buys, s.Sells)
		if s.Forced > 0 {
			fmt.Fprintf(w, ", %d forced", s.Forced)
		}
		fmt.Fprintln(w)
	}

	if r.FinalState != nil {
		if h := r.FinalState.Holdings(); len(h) > 0 {
			fmt.Fprintln(w)
			fmt.Fprintln(w, "Holdings")
			fmt.Fprintln(w, "--------------------------------------------------")
			for _, p := range h {
				fmt.Fprintf(w, "  %-5s %8d @ %s%s\n", p.Symbol, p.Quantity, market.CurrencySymbol, p.AverageCost.StringFixed(2))
			}
		}
	}

	l := r.Config.Limits
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Market Context")
	fmt.Fprintln(w, "--------------------------------------------------")
	fmt.Fprintf(w, "Currency:      %s (%s)\n", market.Currency, market.CurrencySymbol)
	fmt.Fprintf(w, "Exchange:      %s\n", market.Exchange)
	fmt.Fprintf(w, "Trading Hours: %s\n", market.TradingHours)
	fmt.Fprintf(w, "Settlement:    T+%d\n", market.DefaultSettlementDays)
	fmt.Fprintf(w, "Max Position:  %.1f%%\n", l.MaxPositionFraction*100)
	fmt.Fprintf(w, "Max Sector:    %.1f%%\n", l.MaxSectorFraction*100)
	fmt.Fprintf(w, "Stop Loss:     %.1f%%\n", l.StopLossFraction*100)
	fmt.Fprintf(w, "Daily DD Cap:  %.1f%%\n", l.MaxDailyDrawdownFraction*100)
	fmt.Fprintln(w)
}
