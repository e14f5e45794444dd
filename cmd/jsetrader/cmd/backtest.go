package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rustyeddy/jsetrader/backtest"
	"github.com/rustyeddy/jsetrader/config"
	"github.com/rustyeddy/jsetrader/internal/id"
	"github.com/rustyeddy/jsetrader/internal/logging"
	"github.com/rustyeddy/jsetrader/journal"
	"github.com/rustyeddy/jsetrader/market"
	"github.com/rustyeddy/jsetrader/metrics"
	"github.com/rustyeddy/jsetrader/strategies"
	"github.com/spf13/cobra"
)

var backtestCmd = &cobra.Command{
	Use:   "backtest",
	Short: "Run a backtest over daily JSE closes",
	Long: `Replay a decision source against a daily close CSV and enforce the
risk limits on every trade. The run is journaled and a summary is printed.

Configuration comes from the config file (or defaults) and the environment,
and flags override both.

Examples:
  jsetrader backtest --prices data/jse.csv --symbols NPN,SBK,FSR
  jsetrader backtest -c run.yaml --strategy scripted --decisions orders.csv
  jsetrader backtest -c run.yaml --journal none --metrics run.prom --org-dir notes/`,
	RunE: runBacktest,
}

var (
	btConfigFile  string
	btPrices      string
	btSymbols     string
	btFrom        string
	btTo          string
	btStrategy    string
	btDecisions   string
	btFraction    float64
	btCapital     float64
	btCashFloor   float64
	btMaxPosition float64
	btMaxSector   float64
	btStopLoss    float64
	btMaxDrawdown float64
	btJournal     string
	btDB          string
	btTradesCSV   string
	btSnapsCSV    string
	btMetrics     string
	btOrgDir      string
	btUSDZAR      float64
)

func init() {
	rootCmd.AddCommand(backtestCmd)

	f := backtestCmd.Flags()
	f.StringVarP(&btConfigFile, "config", "c", "", "config file (YAML or JSON)")
	f.StringVarP(&btPrices, "prices", "p", "", "daily close CSV (date,symbol,close)")
	f.StringVarP(&btSymbols, "symbols", "s", "", "comma separated JSE tickers")
	f.StringVar(&btFrom, "from", "", "first trading day (YYYY-MM-DD)")
	f.StringVar(&btTo, "to", "", "last trading day (YYYY-MM-DD)")
	f.StringVar(&btStrategy, "strategy", "", "decision source: hold, buy-once or scripted")
	f.StringVar(&btDecisions, "decisions", "", "decision CSV for the scripted strategy")
	f.Float64Var(&btFraction, "fraction", 0, "equity fraction per BUY for buy-once")
	f.Float64Var(&btCapital, "capital", 0, "starting capital in ZAR")
	f.Float64Var(&btCashFloor, "cash-floor", 0, "cash that is never spent, in ZAR")
	f.Float64Var(&btMaxPosition, "max-position", 0, "max position fraction of equity")
	f.Float64Var(&btMaxSector, "max-sector", 0, "max sector fraction of equity")
	f.Float64Var(&btStopLoss, "stop-loss", 0, "stop-loss fraction from average cost")
	f.Float64Var(&btMaxDrawdown, "max-drawdown", 0, "daily drawdown fraction that blocks buys")
	f.StringVar(&btJournal, "journal", "", "journal type: sqlite, csv or none")
	f.StringVar(&btDB, "db", "", "SQLite journal path")
	f.StringVar(&btTradesCSV, "trades-csv", "", "CSV journal trades file")
	f.StringVar(&btSnapsCSV, "snapshots-csv", "", "CSV journal snapshots file")
	f.StringVar(&btMetrics, "metrics", "", "write Prometheus textfile metrics to this path")
	f.StringVar(&btOrgDir, "org-dir", "", "write an Org-mode run summary into this directory")
	f.Float64Var(&btUSDZAR, "usd-zar", 0, "USDZAR rate for the report (0 keeps the config value)")
}

func runBacktest(cmd *cobra.Command, args []string) error {
	cfg, err := loadBacktestConfig(cmd)
	if err != nil {
		return err
	}
	if !cmd.Flags().Changed("log-level") && !cmd.Flags().Changed("log-format") {
		l, err := logging.New(cfg.Log.Level, cfg.Log.Format, cmd.ErrOrStderr())
		if err != nil {
			return err
		}
		logger = l
	}
	btCfg, err := cfg.Backtest()
	if err != nil {
		return err
	}

	prices, err := market.LoadCSV(cfg.Run.PricesFile)
	if err != nil {
		return fmt.Errorf("load prices: %w", err)
	}
	decider, err := strategies.ByName(cfg.Run.Strategy, cfg.Run.BuyFraction, cfg.Run.DecisionsFile)
	if err != nil {
		return err
	}

	rec := metrics.New(decider.Name())
	eng, err := backtest.NewEngine(btCfg, market.JSE(), prices, decider,
		backtest.WithLogger(logger),
		backtest.WithObserver(rec),
		backtest.WithFX(cfg.FX()),
	)
	if err != nil {
		return err
	}

	logger.Info().
		Str("strategy", decider.Name()).
		Strs("symbols", btCfg.Symbols).
		Str("prices", cfg.Run.PricesFile).
		Msg("starting backtest")

	res, err := eng.Run(cmd.Context())
	if err != nil {
		return err
	}

	if err := recordResult(cmd.Context(), cfg, res); err != nil {
		return err
	}

	if cfg.Report.MetricsFile != "" {
		if err := rec.WriteTextfile(cfg.Report.MetricsFile); err != nil {
			return fmt.Errorf("write metrics: %w", err)
		}
		logger.Info().Str("path", cfg.Report.MetricsFile).Msg("metrics written")
	}

	backtest.PrintResult(cmd.OutOrStdout(), res)
	return nil
}

// loadBacktestConfig layers defaults, the config file, the environment and
// the command line flags, in that order.
func loadBacktestConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.Default()
	if btConfigFile != "" {
		c, err := config.LoadFromFile(btConfigFile)
		if err != nil {
			return nil, err
		}
		cfg = c
	}
	cfg.ApplyEnv(os.Getenv)

	f := cmd.Flags()
	if f.Changed("symbols") {
		valid, invalid := market.JSE().SplitTickers(btSymbols)
		for _, t := range invalid {
			logger.Warn().Str("ticker", t).Msg("ignoring unknown JSE ticker")
		}
		if len(valid) == 0 {
			return nil, fmt.Errorf("no valid JSE tickers in %q", btSymbols)
		}
		cfg.Run.Symbols = valid
	}
	if f.Changed("prices") {
		cfg.Run.PricesFile = btPrices
	}
	if f.Changed("from") {
		cfg.Run.From = btFrom
	}
	if f.Changed("to") {
		cfg.Run.To = btTo
	}
	if f.Changed("strategy") {
		cfg.Run.Strategy = btStrategy
	}
	if f.Changed("decisions") {
		cfg.Run.DecisionsFile = btDecisions
		if !f.Changed("strategy") {
			cfg.Run.Strategy = "scripted"
		}
	}
	if f.Changed("fraction") {
		cfg.Run.BuyFraction = btFraction
	}
	if f.Changed("capital") {
		cfg.Account.StartingCapital = btCapital
	}
	if f.Changed("cash-floor") {
		cfg.Account.CashFloor = btCashFloor
	}
	if f.Changed("max-position") {
		cfg.Risk.MaxPositionFraction = btMaxPosition
	}
	if f.Changed("max-sector") {
		cfg.Risk.MaxSectorFraction = btMaxSector
	}
	if f.Changed("stop-loss") {
		cfg.Risk.StopLossFraction = btStopLoss
	}
	if f.Changed("max-drawdown") {
		cfg.Risk.MaxDailyDrawdownFraction = btMaxDrawdown
	}
	if f.Changed("journal") {
		cfg.Journal.Type = btJournal
	}
	if f.Changed("db") {
		cfg.Journal.Type = "sqlite"
		cfg.Journal.DBPath = btDB
	}
	if f.Changed("trades-csv") {
		cfg.Journal.TradesFile = btTradesCSV
	}
	if f.Changed("snapshots-csv") {
		cfg.Journal.SnapshotsFile = btSnapsCSV
	}
	if f.Changed("metrics") {
		cfg.Report.MetricsFile = btMetrics
	}
	if f.Changed("org-dir") {
		cfg.Report.OrgDir = btOrgDir
	}
	if f.Changed("usd-zar") && btUSDZAR > 0 {
		cfg.Report.USDZAR = btUSDZAR
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// openJournal returns nil when journaling is disabled.
func openJournal(cfg *config.Config) (journal.Journal, error) {
	switch cfg.Journal.Type {
	case "sqlite":
		return journal.NewSQLite(cfg.Journal.DBPath)
	case "csv":
		return journal.NewCSV(cfg.Journal.TradesFile, cfg.Journal.SnapshotsFile)
	case "none", "":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown journal type %q", cfg.Journal.Type)
	}
}

func recordResult(ctx context.Context, cfg *config.Config, res *backtest.Result) error {
	j, err := openJournal(cfg)
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	if j != nil {
		defer j.Close()
		id, err := journal.Record(ctx, j, res)
		if err != nil {
			return fmt.Errorf("journal run: %w", err)
		}
		logger.Info().Str("run_id", id).Str("journal", cfg.Journal.Type).Msg("run recorded")
	}

	if cfg.Report.OrgDir == "" {
		return nil
	}
	if res.RunID == "" {
		res.RunID = id.New()
	}
	run := journal.NewRun(res, time.Now())
	run.OrgPath = filepath.Join(cfg.Report.OrgDir, run.RunID+".org")
	if err := journal.WriteRunOrg(run); err != nil {
		return fmt.Errorf("write org: %w", err)
	}
	logger.Info().Str("path", run.OrgPath).Msg("org summary written")
	return nil
}
