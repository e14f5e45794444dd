package backtest

import (
	"time"

	"github.com/rustyeddy/jsetrader/performance"
	"github.com/rustyeddy/jsetrader/portfolio"
	"github.com/rustyeddy/jsetrader/sim"
)

// Result is everything a finished run produced. RunID is left empty by the
// engine and assigned by whoever records the run.
type Result struct {
	RunID      string
	Strategy   string
	Config     Config
	Start      time.Time
	End        time.Time
	FinalState *portfolio.State
	Snapshots  []portfolio.Snapshot
	Trades     []sim.TradeRecord
	Report     performance.Report
}
