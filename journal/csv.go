package journal

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/rustyeddy/jsetrader/backtest"
)

var (
	tradeHeader = []string{
		"run_id", "date", "symbol", "action", "source", "requested", "quantity",
		"price", "outcome", "triggered_limits", "realized_pnl", "settlement_date", "reason",
	}
	snapshotHeader = []string{
		"run_id", "date", "equity", "cash", "peak_equity", "day_start_equity",
		"realized_pnl", "positions", "triggered_limits",
	}
)

// CSVJournal appends trades and snapshots of every recorded run to two
// CSV files.
type CSVJournal struct {
	trades    *csv.Writer
	snapshots *csv.Writer
	tf, sf    *os.File
}

func NewCSV(tradesPath, snapshotsPath string) (*CSVJournal, error) {
	tf, err := os.Create(tradesPath)
	if err != nil {
		return nil, err
	}
	sf, err := os.Create(snapshotsPath)
	if err != nil {
		_ = tf.Close()
		return nil, err
	}

	tw := csv.NewWriter(tf)
	sw := csv.NewWriter(sf)

	if err := tw.Write(tradeHeader); err != nil {
		return nil, err
	}
	if err := sw.Write(snapshotHeader); err != nil {
		return nil, err
	}

	tw.Flush()
	if err := tw.Error(); err != nil {
		return nil, err
	}
	sw.Flush()
	if err := sw.Error(); err != nil {
		return nil, err
	}

	return &CSVJournal{trades: tw, snapshots: sw, tf: tf, sf: sf}, nil
}

func (j *CSVJournal) RecordRun(_ context.Context, res *backtest.Result) error {
	if res.RunID == "" {
		return fmt.Errorf("run has no id")
	}

	for _, t := range res.Trades {
		err := j.trades.Write([]string{
			res.RunID,
			day(t.Date),
			t.Symbol,
			string(t.Action),
			string(t.Source),
			strconv.FormatInt(t.Requested, 10),
			strconv.FormatInt(t.Quantity, 10),
			t.Price.String(),
			string(t.Outcome),
			joinLimits(t.TriggeredLimits),
			t.RealizedPnL.StringFixed(2),
			day(t.SettlementDate),
			t.Reason,
		})
		if err != nil {
			return err
		}
	}
	j.trades.Flush()
	if err := j.trades.Error(); err != nil {
		return err
	}

	for _, s := range res.Snapshots {
		pos := make([]string, len(s.Positions))
		for i, p := range s.Positions {
			pos[i] = fmt.Sprintf("%s:%d@%s", p.Symbol, p.Quantity, p.AverageCost.StringFixed(2))
		}
		err := j.snapshots.Write([]string{
			res.RunID,
			day(s.Date),
			s.Equity.StringFixed(2),
			s.Cash.StringFixed(2),
			s.PeakEquity.StringFixed(2),
			s.DayStartEquity.StringFixed(2),
			s.RealizedPnL.StringFixed(2),
			strings.Join(pos, " "),
			strings.Join(s.TriggeredLimits, ","),
		})
		if err != nil {
			return err
		}
	}
	j.snapshots.Flush()
	return j.snapshots.Error()
}

func (j *CSVJournal) Close() error {
	j.trades.Flush()
	if err := j.trades.Error(); err != nil {
		return err
	}
	j.snapshots.Flush()
	if err := j.snapshots.Error(); err != nil {
		return err
	}

	if err := j.tf.Close(); err != nil {
		return err
	}
	return j.sf.Close()
}
