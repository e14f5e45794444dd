package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/rustyeddy/jsetrader/backtest"
	"github.com/rustyeddy/jsetrader/config"
	"github.com/rustyeddy/jsetrader/market"
	"github.com/rustyeddy/jsetrader/strategies"
	"github.com/spf13/cobra"
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Run the same backtest across a grid of risk limits",
	Long: `Run one isolated backtest per combination of position and stop-loss
fractions, in parallel, and compare the outcomes.

Examples:
  jsetrader sweep -c backtest.yaml --max-position 0.05,0.1,0.2
  jsetrader sweep --prices data/jse.csv --stop-loss 0.1,0.15,0.2 --workers 4`,
	RunE: runSweep,
}

var (
	swConfigFile string
	swPrices     string
	swSymbols    string
	swPositions  []float64
	swStops      []float64
	swWorkers    int
	swRecord     bool
)

func init() {
	rootCmd.AddCommand(sweepCmd)

	f := sweepCmd.Flags()
	f.StringVarP(&swConfigFile, "config", "c", "", "config file (YAML or JSON)")
	f.StringVarP(&swPrices, "prices", "p", "", "daily close CSV (date,symbol,close)")
	f.StringVarP(&swSymbols, "symbols", "s", "", "comma separated JSE tickers")
	f.Float64SliceVar(&swPositions, "max-position", nil, "max position fractions to try")
	f.Float64SliceVar(&swStops, "stop-loss", nil, "stop-loss fractions to try")
	f.IntVarP(&swWorkers, "workers", "w", 0, "parallel runs (0 = one per combination)")
	f.BoolVar(&swRecord, "record", false, "journal every run")
}

func runSweep(cmd *cobra.Command, args []string) error {
	cfg := config.Default()
	if swConfigFile != "" {
		c, err := config.LoadFromFile(swConfigFile)
		if err != nil {
			return err
		}
		cfg = c
	}
	cfg.ApplyEnv(os.Getenv)
	if swPrices != "" {
		cfg.Run.PricesFile = swPrices
	}
	if swSymbols != "" {
		valid, invalid := market.JSE().SplitTickers(swSymbols)
		for _, t := range invalid {
			logger.Warn().Str("ticker", t).Msg("ignoring unknown JSE ticker")
		}
		if len(valid) == 0 {
			return fmt.Errorf("no valid JSE tickers in %q", swSymbols)
		}
		cfg.Run.Symbols = valid
	}

	runs, err := sweepRuns(cfg, swPositions, swStops)
	if err != nil {
		return err
	}

	prices, err := market.LoadCSV(cfg.Run.PricesFile)
	if err != nil {
		return fmt.Errorf("load prices: %w", err)
	}

	logger.Info().Int("runs", len(runs)).Int("workers", swWorkers).Msg("starting sweep")
	results, err := backtest.Sweep(cmd.Context(), market.JSE(), prices, runs, swWorkers,
		backtest.WithLogger(logger),
		backtest.WithFX(cfg.FX()),
	)
	if err != nil {
		return err
	}

	if swRecord {
		for _, res := range results {
			if err := recordResult(cmd.Context(), cfg, res); err != nil {
				return err
			}
		}
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "RUN\tFINAL EQUITY\tRETURN\tMAX DD\tCLIPPED\tREJECTED\tFORCED\tBREAKER DAYS")
	for i, res := range results {
		rep := res.Report
		fmt.Fprintf(w, "%s\tR%s\t%s%%\t%s%%\t%d\t%d\t%d\t%d\n",
			runs[i].Name, rep.FinalEquity.StringFixed(2),
			rep.TotalReturn.Shift(2).StringFixed(2), rep.MaxDrawdown.Shift(2).StringFixed(2),
			rep.Clipped, rep.Rejected, rep.Forced, rep.BreakerDays)
	}
	return w.Flush()
}

// sweepRuns expands the configured run into one SweepRun per combination
// of position and stop-loss fraction. Empty lists keep the config value.
func sweepRuns(cfg *config.Config, positions, stops []float64) ([]backtest.SweepRun, error) {
	if len(positions) == 0 {
		positions = []float64{cfg.Risk.MaxPositionFraction}
	}
	if len(stops) == 0 {
		stops = []float64{cfg.Risk.StopLossFraction}
	}

	base, err := cfg.Backtest()
	if err != nil {
		return nil, err
	}
	strategy, fraction, decisions := cfg.Run.Strategy, cfg.Run.BuyFraction, cfg.Run.DecisionsFile

	var runs []backtest.SweepRun
	for _, pos := range positions {
		for _, stop := range stops {
			c := base
			c.Symbols = append([]string(nil), base.Symbols...)
			c.Limits.MaxPositionFraction = pos
			c.Limits.StopLossFraction = stop
			if err := c.Limits.Validate(); err != nil {
				return nil, fmt.Errorf("position %.3f stop %.3f: %w", pos, stop, err)
			}
			runs = append(runs, backtest.SweepRun{
				Name:   fmt.Sprintf("pos=%.3f stop=%.3f", pos, stop),
				Config: c,
				NewDecider: func() (strategies.DecisionProvider, error) {
					return strategies.ByName(strategy, fraction, decisions)
				},
			})
		}
	}
	return runs, nil
}
