package journal

import (
	"bytes"
	"fmt"
	"os"
	"strings"
	"text/template"
	"time"

	"github.com/rustyeddy/jsetrader/market"
	"github.com/rustyeddy/jsetrader/sim"
	"github.com/shopspring/decimal"
)

var runOrgFuncs = template.FuncMap{
	"pct": func(d decimal.Decimal) string {
		return d.Mul(decimal.NewFromInt(100)).StringFixed(2)
	},
	"pctf": func(f float64) string { return fmt.Sprintf("%.2f", f*100) },
	"zar":  func(d decimal.Decimal) string { return market.CurrencySymbol + d.StringFixed(2) },
	"join": strings.Join,
	"orTime": func(t time.Time) time.Time {
		if t.IsZero() {
			return time.Now()
		}
		return t
	},
}

var runOrg = template.Must(template.New("run").Funcs(runOrgFuncs).Parse(RunOrgTemplate))

// FormatRunOrg renders a run summary as an Org-mode entry.
func FormatRunOrg(r Run) (string, error) {
	var buf bytes.Buffer
	if err := runOrg.Execute(&buf, r); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// WriteRunOrg renders r to r.OrgPath.
func WriteRunOrg(r Run) error {
	if r.OrgPath == "" {
		return fmt.Errorf("run %s has no org path", r.RunID)
	}
	s, err := FormatRunOrg(r)
	if err != nil {
		return err
	}
	return os.WriteFile(r.OrgPath, []byte(s), 0644)
}

const RunOrgTemplate = `* BACKTEST: {{.Strategy}} {{join .Symbols " "}}
:PROPERTIES:
:RUN_ID:      {{if .RunID}}{{.RunID}}{{else}}(run-id?){{end}}
:STRATEGY:    {{.Strategy}}
:EXCHANGE:    JSE
:SYMBOLS:     {{join .Symbols ","}}
:START_DATE:  {{.Start.Format "2006-01-02"}}
:END_DATE:    {{.End.Format "2006-01-02"}}
:START_CAP:   {{zar .StartingCapital}}
:END_EQUITY:  {{zar .FinalEquity}}
:NET_PL:      {{zar .NetPnL}}
:RETURN_PCT:  {{pct .TotalReturn}}
:MAX_DD_PCT:  {{pct .MaxDrawdown}}
:TRADES:      {{.Trades}}
:CREATED:     [{{(orTime .Created).Format "2006-01-02 Mon 15:04"}}]
:END:

** Risk Limits
| Limit                | Value |
|----------------------+-------|
| Max position         | {{pctf .Limits.MaxPositionFraction}}% |
| Max sector           | {{pctf .Limits.MaxSectorFraction}}% |
| Stop loss            | {{pctf .Limits.StopLossFraction}}% |
| Daily drawdown break | {{pctf .Limits.MaxDailyDrawdownFraction}}% |

** Performance Summary
- Net P/L:          *{{zar .NetPnL}}*
- Realized P/L:     *{{zar .RealizedPnL}}*
- Return:           *{{pct .TotalReturn}}%*
- Max Drawdown:     *{{pct .MaxDrawdown}}%*
- Volatility:       *{{pctf .Volatility}}%*
- Sharpe:           *{{printf "%.2f" .Sharpe}}*

** Trade Distribution
| Outcome  | Count |
|----------+-------|
| Filled   | {{.Filled}} |
| Clipped  | {{.Clipped}} |
| Rejected | {{.Rejected}} |
| Forced   | {{.Forced}} |
| Total    | {{.Trades}} |

Breaker days: {{.BreakerDays}} of {{.Days}}
{{- if .Notes }}

** Observations
{{- range .Notes }}
- {{.}}
{{- end }}
{{- end }}
`

// FormatTradeOrg renders a trade record as an Org-mode block. Structured
// facts go in the PROPERTIES drawer, the Review heading is left for notes.
func FormatTradeOrg(runID string, t sim.TradeRecord) string {
	heading := fmt.Sprintf("** %s %s %d (%s)", t.Action, t.Symbol, t.Quantity, t.Outcome)

	var b strings.Builder
	b.WriteString(heading)
	b.WriteString("\n")
	b.WriteString(":PROPERTIES:\n")
	if runID != "" {
		b.WriteString(fmt.Sprintf(":RUN_ID: %s\n", runID))
	}
	b.WriteString(fmt.Sprintf(":DATE: %s\n", day(t.Date)))
	b.WriteString(fmt.Sprintf(":SYMBOL: %s\n", t.Symbol))
	b.WriteString(fmt.Sprintf(":SOURCE: %s\n", t.Source))
	b.WriteString(fmt.Sprintf(":REQUESTED: %d\n", t.Requested))
	b.WriteString(fmt.Sprintf(":QUANTITY: %d\n", t.Quantity))
	b.WriteString(fmt.Sprintf(":PRICE: %s\n", t.Price.StringFixed(2)))
	b.WriteString(fmt.Sprintf(":NOTIONAL: %s\n", t.Notional().StringFixed(2)))
	b.WriteString(fmt.Sprintf(":REALIZED_PL: %s\n", t.RealizedPnL.StringFixed(2)))
	if len(t.TriggeredLimits) > 0 {
		b.WriteString(fmt.Sprintf(":LIMITS: %s\n", joinLimits(t.TriggeredLimits)))
	}
	b.WriteString(fmt.Sprintf(":SETTLES: %s\n", day(t.SettlementDate)))
	if t.Reason != "" {
		b.WriteString(fmt.Sprintf(":REASON: %s\n", t.Reason))
	}
	b.WriteString(":END:\n")
	for _, n := range t.Notes {
		b.WriteString(fmt.Sprintf("- %s\n", n))
	}
	b.WriteString("\n*** Review\n- \n")

	return b.String()
}

// FormatTradesOrg renders multiple trades separated by blank lines.
func FormatTradesOrg(runID string, trades []sim.TradeRecord) string {
	var b strings.Builder
	for i, t := range trades {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(FormatTradeOrg(runID, t))
	}
	return b.String()
}
