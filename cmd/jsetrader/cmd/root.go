package cmd

import (
	"errors"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rustyeddy/jsetrader/config"
	"github.com/rustyeddy/jsetrader/internal/logging"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "jsetrader",
	Short: "Backtesting and risk-limit simulation for JSE equities",
	Long: `jsetrader replays trading decisions against historical JSE daily closes
and enforces fixed risk limits on a ZAR portfolio.

It provides tools for:
  - Backtesting decision sources against daily price CSVs
  - Position, sector, stop-loss and daily drawdown limits
  - Journaling runs, trades and daily snapshots to SQLite or CSV
  - Listing the built-in JSE instrument catalog`,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
}

var (
	envFile   string
	logLevel  string
	logFormat string

	logger = zerolog.Nop()
)

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file with JSETRADER_* overrides")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "console", "log format (console or json)")
}

// setup loads the dotenv file and builds the logger for every command.
func setup(cmd *cobra.Command, args []string) error {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}

	level := logLevel
	if level == "" {
		level = os.Getenv(config.EnvLogLevel)
	}
	l, err := logging.New(level, logFormat, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	logger = l
	return nil
}
