package cmd

import (
	"fmt"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/rustyeddy/jsetrader/config"
	"github.com/rustyeddy/jsetrader/journal"
	"github.com/rustyeddy/jsetrader/market"
	"github.com/rustyeddy/jsetrader/risk"
	"github.com/spf13/cobra"
)

var journalCmd = &cobra.Command{
	Use:   "journal",
	Short: "Query the backtest journal",
	Long: `Query and display recorded backtests from the SQLite journal.

Subcommands:
  runs       - List recent runs
  show       - Show a run summary as Org-mode
  trades     - List the trades of a run as Org-mode entries
  snapshots  - Print the daily equity history of a run

Examples:
  jsetrader journal runs --limit 5
  jsetrader journal show <run-id>
  jsetrader journal trades <run-id>`,
}

var journalRunsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List recent runs, newest first",
	Args:  cobra.NoArgs,
	RunE:  runJournalRuns,
}

var journalShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show a run summary",
	Args:  cobra.ExactArgs(1),
	RunE:  runJournalShow,
}

var journalTradesCmd = &cobra.Command{
	Use:   "trades <run-id>",
	Short: "List the trades of a run",
	Args:  cobra.ExactArgs(1),
	RunE:  runJournalTrades,
}

var journalSnapshotsCmd = &cobra.Command{
	Use:   "snapshots <run-id>",
	Short: "Print the daily snapshots of a run",
	Args:  cobra.ExactArgs(1),
	RunE:  runJournalSnapshots,
}

var (
	journalDBPath string
	journalLimit  int
)

func init() {
	rootCmd.AddCommand(journalCmd)
	journalCmd.AddCommand(journalRunsCmd)
	journalCmd.AddCommand(journalShowCmd)
	journalCmd.AddCommand(journalTradesCmd)
	journalCmd.AddCommand(journalSnapshotsCmd)

	journalCmd.PersistentFlags().StringVarP(&journalDBPath, "db", "d", "", "path to SQLite journal DB (default from "+config.EnvDB+" or ./jsetrader.db)")
	journalRunsCmd.Flags().IntVarP(&journalLimit, "limit", "n", 20, "number of runs to list")
}

func openSQLite() (*journal.SQLite, error) {
	path := journalDBPath
	if path == "" {
		path = os.Getenv(config.EnvDB)
	}
	if path == "" {
		path = config.Default().Journal.DBPath
	}
	return journal.NewSQLite(path)
}

func runJournalRuns(cmd *cobra.Command, args []string) error {
	j, err := openSQLite()
	if err != nil {
		return err
	}
	defer j.Close()

	runs, err := j.ListRuns(cmd.Context(), journalLimit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No runs recorded")
		return nil
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "RUN ID\tSTRATEGY\tPERIOD\tDAYS\tFINAL EQUITY\tRETURN\tMAX DD\tTRADES")
	for _, r := range runs {
		fmt.Fprintf(w, "%s\t%s\t%s..%s\t%d\tR%s\t%s%%\t%s%%\t%d\n",
			r.RunID, r.Strategy,
			r.Start.Format(market.DateLayout), r.End.Format(market.DateLayout),
			r.Days, r.FinalEquity.StringFixed(2),
			r.TotalReturn.Shift(2).StringFixed(2), r.MaxDrawdown.Shift(2).StringFixed(2),
			r.Trades)
	}
	return w.Flush()
}

func runJournalShow(cmd *cobra.Command, args []string) error {
	j, err := openSQLite()
	if err != nil {
		return err
	}
	defer j.Close()

	run, err := j.GetRun(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	s, err := journal.FormatRunOrg(run)
	if err != nil {
		return err
	}
	fmt.Fprint(cmd.OutOrStdout(), s)

	counts, err := j.LimitCounts(cmd.Context(), run.RunID)
	if err != nil {
		return err
	}
	if len(counts) > 0 {
		limits := make([]risk.Limit, 0, len(counts))
		for l := range counts {
			limits = append(limits, l)
		}
		sort.Slice(limits, func(a, b int) bool { return limits[a] < limits[b] })
		fmt.Fprintln(cmd.OutOrStdout(), "\n** Limits")
		for _, l := range limits {
			fmt.Fprintf(cmd.OutOrStdout(), "- %s: %d\n", l, counts[l])
		}
	}
	return nil
}

func runJournalTrades(cmd *cobra.Command, args []string) error {
	j, err := openSQLite()
	if err != nil {
		return err
	}
	defer j.Close()

	if _, err := j.GetRun(cmd.Context(), args[0]); err != nil {
		return err
	}
	trades, err := j.ListTradesByRunID(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	if len(trades) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No trades recorded")
		return nil
	}
	fmt.Fprint(cmd.OutOrStdout(), journal.FormatTradesOrg(args[0], trades))
	return nil
}

func runJournalSnapshots(cmd *cobra.Command, args []string) error {
	j, err := openSQLite()
	if err != nil {
		return err
	}
	defer j.Close()

	snaps, err := j.ListSnapshotsByRunID(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	if len(snaps) == 0 {
		return fmt.Errorf("%s: %w", args[0], journal.ErrRunNotFound)
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "DATE\tEQUITY\tCASH\tDRAWDOWN\tPOSITIONS\tLIMITS")
	for _, s := range snaps {
		fmt.Fprintf(w, "%s\tR%s\tR%s\t%s%%\t%d\t%v\n",
			s.Date.Format(market.DateLayout), s.Equity.StringFixed(2), s.Cash.StringFixed(2),
			s.Drawdown().Shift(2).StringFixed(2), len(s.Positions), s.TriggeredLimits)
	}
	return w.Flush()
}
