package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rustyeddy/jsetrader/portfolio"
	"github.com/rustyeddy/jsetrader/risk"
	"github.com/rustyeddy/jsetrader/sim"
	"github.com/rustyeddy/jsetrader/strategies"
)

// ErrRunNotFound is returned when a run ID is not in the journal.
var ErrRunNotFound = errors.New("run not found")

const runColumns = `run_id, created, strategy, start_date, end_date, symbols,
	max_position_fraction, max_sector_fraction, stop_loss_fraction, max_daily_drawdown_fraction,
	starting_capital, final_equity, net_pnl, realized_pnl, total_return, max_drawdown,
	volatility, sharpe, days, trades, filled, clipped, rejected, forced, breaker_days`

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(s scanner) (Run, error) {
	var (
		r                       Run
		created, start, end, sy string
	)
	err := s.Scan(
		&r.RunID, &created, &r.Strategy, &start, &end, &sy,
		&r.Limits.MaxPositionFraction, &r.Limits.MaxSectorFraction,
		&r.Limits.StopLossFraction, &r.Limits.MaxDailyDrawdownFraction,
		&r.StartingCapital, &r.FinalEquity, &r.NetPnL, &r.RealizedPnL,
		&r.TotalReturn, &r.MaxDrawdown, &r.Volatility, &r.Sharpe,
		&r.Days, &r.Trades, &r.Filled, &r.Clipped, &r.Rejected, &r.Forced, &r.BreakerDays,
	)
	if err != nil {
		return Run{}, err
	}
	if r.Created, err = time.Parse(time.RFC3339, created); err != nil {
		return Run{}, err
	}
	if r.Start, err = parseDay(start); err != nil {
		return Run{}, err
	}
	if r.End, err = parseDay(end); err != nil {
		return Run{}, err
	}
	if sy != "" {
		r.Symbols = strings.Split(sy, ",")
	}
	return r, nil
}

// GetRun returns a single run summary by ID.
func (j *SQLite) GetRun(ctx context.Context, runID string) (Run, error) {
	row := j.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE run_id = ?`, runID)
	r, err := scanRun(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Run{}, fmt.Errorf("run %q: %w", runID, ErrRunNotFound)
		}
		return Run{}, err
	}
	return r, nil
}

// ListRuns returns the most recent runs first. limit <= 0 returns all.
func (j *SQLite) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	q := `SELECT ` + runColumns + ` FROM runs ORDER BY run_id DESC`
	args := []any{}
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := j.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// ListTradesByRunID returns the trade records of a run in execution order.
func (j *SQLite) ListTradesByRunID(ctx context.Context, runID string) ([]sim.TradeRecord, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT date, symbol, action, source, requested, quantity, price, outcome,
		       triggered_limits, notes, realized_pnl, settlement_date, reason
		FROM trades
		WHERE run_id = ?
		ORDER BY seq ASC`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []sim.TradeRecord
	for rows.Next() {
		var (
			rec                        sim.TradeRecord
			date, action, source, outc string
			limits, notes, settlement  string
		)
		if err := rows.Scan(
			&date, &rec.Symbol, &action, &source, &rec.Requested, &rec.Quantity,
			&rec.Price, &outc, &limits, &notes, &rec.RealizedPnL, &settlement, &rec.Reason,
		); err != nil {
			return nil, err
		}
		if rec.Date, err = parseDay(date); err != nil {
			return nil, err
		}
		if rec.SettlementDate, err = parseDay(settlement); err != nil {
			return nil, err
		}
		rec.Action = strategies.Action(action)
		rec.Source = sim.Source(source)
		rec.Outcome = risk.Outcome(outc)
		rec.TriggeredLimits = splitLimits(limits)
		if notes != "" {
			rec.Notes = strings.Split(notes, "; ")
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// ListSnapshotsByRunID returns the snapshot history of a run in date order.
func (j *SQLite) ListSnapshotsByRunID(ctx context.Context, runID string) ([]portfolio.Snapshot, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT data FROM snapshots WHERE run_id = ? ORDER BY date ASC`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []portfolio.Snapshot
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var s portfolio.Snapshot
		if err := json.Unmarshal([]byte(data), &s); err != nil {
			return nil, fmt.Errorf("decode snapshot: %w", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// LimitCounts tallies how often each limit was triggered in a run.
func (j *SQLite) LimitCounts(ctx context.Context, runID string) (map[risk.Limit]int, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT triggered_limits FROM trades WHERE run_id = ? AND triggered_limits != ''`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[risk.Limit]int{}
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		for _, l := range splitLimits(s) {
			out[l]++
		}
	}
	return out, rows.Err()
}
