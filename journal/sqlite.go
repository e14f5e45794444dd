package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rustyeddy/jsetrader/backtest"
	"github.com/rustyeddy/jsetrader/market"
	"github.com/rustyeddy/jsetrader/risk"
)

type SQLite struct {
	db  *sql.DB
	now func() time.Time
}

func NewSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	if _, err := db.Exec(Schema); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &SQLite{db: db, now: time.Now}, nil
}

// RecordRun writes the run summary, every trade record and every snapshot
// in one transaction.
func (j *SQLite) RecordRun(ctx context.Context, res *backtest.Result) error {
	if res.RunID == "" {
		return fmt.Errorf("run has no id")
	}
	run := NewRun(res, j.now())

	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs
		(run_id, created, strategy, start_date, end_date, symbols,
		 max_position_fraction, max_sector_fraction, stop_loss_fraction, max_daily_drawdown_fraction,
		 starting_capital, final_equity, net_pnl, realized_pnl, total_return, max_drawdown,
		 volatility, sharpe, days, trades, filled, clipped, rejected, forced, breaker_days)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.RunID, run.Created.Format(time.RFC3339), run.Strategy,
		day(run.Start), day(run.End), strings.Join(run.Symbols, ","),
		run.Limits.MaxPositionFraction, run.Limits.MaxSectorFraction,
		run.Limits.StopLossFraction, run.Limits.MaxDailyDrawdownFraction,
		run.StartingCapital, run.FinalEquity, run.NetPnL, run.RealizedPnL,
		run.TotalReturn, run.MaxDrawdown, run.Volatility, run.Sharpe,
		run.Days, run.Trades, run.Filled, run.Clipped, run.Rejected, run.Forced, run.BreakerDays,
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	tradeStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO trades
		(run_id, seq, date, symbol, action, source, requested, quantity, price, outcome,
		 triggered_limits, notes, realized_pnl, settlement_date, reason)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer tradeStmt.Close()

	for i, t := range res.Trades {
		_, err := tradeStmt.ExecContext(ctx,
			res.RunID, i, day(t.Date), t.Symbol, string(t.Action), string(t.Source),
			t.Requested, t.Quantity, t.Price, string(t.Outcome),
			joinLimits(t.TriggeredLimits), strings.Join(t.Notes, "; "),
			t.RealizedPnL, day(t.SettlementDate), t.Reason,
		)
		if err != nil {
			return fmt.Errorf("insert trade %d: %w", i, err)
		}
	}

	snapStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO snapshots
		(run_id, date, equity, cash, peak_equity, triggered_limits, data)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer snapStmt.Close()

	for _, s := range res.Snapshots {
		data, err := json.Marshal(s)
		if err != nil {
			return err
		}
		_, err = snapStmt.ExecContext(ctx,
			res.RunID, day(s.Date), s.Equity, s.Cash, s.PeakEquity,
			strings.Join(s.TriggeredLimits, ","), string(data),
		)
		if err != nil {
			return fmt.Errorf("insert snapshot %s: %w", day(s.Date), err)
		}
	}

	return tx.Commit()
}

func (j *SQLite) Close() error {
	return j.db.Close()
}

func day(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(market.DateLayout)
}

func parseDay(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return market.ParseDay(s)
}

func joinLimits(ls []risk.Limit) string {
	parts := make([]string, len(ls))
	for i, l := range ls {
		parts[i] = string(l)
	}
	return strings.Join(parts, ",")
}

func splitLimits(s string) []risk.Limit {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]risk.Limit, len(parts))
	for i, p := range parts {
		out[i] = risk.Limit(p)
	}
	return out
}
