// Package config loads and validates the run configuration file.
package config

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"strings"
	"time"

	"github.com/rustyeddy/jsetrader/backtest"
	"github.com/rustyeddy/jsetrader/internal/logging"
	"github.com/rustyeddy/jsetrader/market"
	"github.com/rustyeddy/jsetrader/risk"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Environment overrides applied by ApplyEnv.
const (
	EnvDB       = "JSETRADER_DB"
	EnvLogLevel = "JSETRADER_LOG_LEVEL"
)

// Config represents the complete backtest configuration
type Config struct {
	Account AccountConfig `json:"account" yaml:"account"`
	Risk    risk.Limits   `json:"risk" yaml:"risk"`
	Run     RunConfig     `json:"run" yaml:"run"`
	Journal JournalConfig `json:"journal" yaml:"journal"`
	Report  ReportConfig  `json:"report" yaml:"report"`
	Log     LogConfig     `json:"log" yaml:"log"`
}

// AccountConfig contains account initialization parameters
type AccountConfig struct {
	Currency        string  `json:"currency" yaml:"currency"`
	StartingCapital float64 `json:"starting_capital" yaml:"starting_capital"`
	CashFloor       float64 `json:"cash_floor" yaml:"cash_floor"`
}

// RunConfig selects the data, decisions and date range of a run.
type RunConfig struct {
	Symbols       []string `json:"symbols" yaml:"symbols"`
	From          string   `json:"from,omitempty" yaml:"from,omitempty"` // YYYY-MM-DD
	To            string   `json:"to,omitempty" yaml:"to,omitempty"`
	PricesFile    string   `json:"prices_file" yaml:"prices_file"`
	Strategy      string   `json:"strategy" yaml:"strategy"` // hold, buy-once or scripted
	DecisionsFile string   `json:"decisions_file,omitempty" yaml:"decisions_file,omitempty"`
	BuyFraction   float64  `json:"buy_fraction,omitempty" yaml:"buy_fraction,omitempty"`
}

// JournalConfig contains journaling parameters
type JournalConfig struct {
	Type          string `json:"type" yaml:"type"` // "csv", "sqlite" or "none"
	TradesFile    string `json:"trades_file,omitempty" yaml:"trades_file,omitempty"`
	SnapshotsFile string `json:"snapshots_file,omitempty" yaml:"snapshots_file,omitempty"`
	DBPath        string `json:"db_path,omitempty" yaml:"db_path,omitempty"`
}

type ReportConfig struct {
	USDZAR      float64 `json:"usd_zar" yaml:"usd_zar"`
	MetricsFile string  `json:"metrics_file,omitempty" yaml:"metrics_file,omitempty"`
	OrgDir      string  `json:"org_dir,omitempty" yaml:"org_dir,omitempty"`
}

type LogConfig struct {
	Level  string `json:"level" yaml:"level"`
	Format string `json:"format" yaml:"format"`
}

// LoadFromFile loads configuration from a file (YAML, falling back to JSON)
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := Default()

	// Try YAML first, fall back to JSON
	err = yaml.Unmarshal(data, cfg)
	if err != nil {
		cfg = Default()
		err = json.Unmarshal(data, cfg)
		if err != nil {
			return nil, fmt.Errorf("parse config (tried YAML and JSON): %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// SaveToFile saves configuration as YAML for .yaml/.yml paths, JSON otherwise
func (c *Config) SaveToFile(path string) error {
	var data []byte
	var err error

	if strings.HasSuffix(path, ".yaml") || strings.HasSuffix(path, ".yml") {
		data, err = yaml.Marshal(c)
	} else {
		data, err = json.MarshalIndent(c, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}

// ApplyEnv overrides values from the environment. getenv is usually
// os.Getenv after godotenv has loaded a .env file.
func (c *Config) ApplyEnv(getenv func(string) string) {
	if v := getenv(EnvDB); v != "" {
		c.Journal.Type = "sqlite"
		c.Journal.DBPath = v
	}
	if v := getenv(EnvLogLevel); v != "" {
		c.Log.Level = v
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Account.Currency != market.Currency {
		return fmt.Errorf("account.currency must be %s", market.Currency)
	}
	if !finite(c.Account.StartingCapital) || c.Account.StartingCapital <= 0 {
		return fmt.Errorf("account.starting_capital must be positive")
	}
	if !finite(c.Account.CashFloor) || c.Account.CashFloor < 0 || c.Account.CashFloor >= c.Account.StartingCapital {
		return fmt.Errorf("account.cash_floor must be between 0 and starting_capital")
	}
	if err := c.Risk.Validate(); err != nil {
		return err
	}

	if len(c.Run.Symbols) == 0 {
		return fmt.Errorf("run.symbols is required")
	}
	cat := market.JSE()
	for _, s := range c.Run.Symbols {
		if !cat.ValidTicker(s) {
			return fmt.Errorf("run.symbols: unknown JSE ticker %q", s)
		}
	}
	if _, _, err := c.Run.Range(); err != nil {
		return err
	}
	switch strings.ToLower(c.Run.Strategy) {
	case "hold", "noop", "none", "buy-once", "buyonce":
	case "scripted", "file":
		if c.Run.DecisionsFile == "" {
			return fmt.Errorf("run.decisions_file required for the scripted strategy")
		}
	default:
		return fmt.Errorf("unknown run.strategy: %s", c.Run.Strategy)
	}
	if math.IsNaN(c.Run.BuyFraction) || c.Run.BuyFraction < 0 || c.Run.BuyFraction > 1 {
		return fmt.Errorf("run.buy_fraction must be between 0 and 1")
	}

	switch c.Journal.Type {
	case "none":
	case "csv":
		if c.Journal.TradesFile == "" || c.Journal.SnapshotsFile == "" {
			return fmt.Errorf("journal trades_file and snapshots_file required for CSV type")
		}
	case "sqlite":
		if c.Journal.DBPath == "" {
			return fmt.Errorf("journal db_path required for SQLite type")
		}
	default:
		return fmt.Errorf("journal.type must be 'csv', 'sqlite' or 'none'")
	}

	if !finite(c.Report.USDZAR) || c.Report.USDZAR < 0 {
		return fmt.Errorf("report.usd_zar must not be negative")
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	return nil
}

func finite(f float64) bool { return !math.IsNaN(f) && !math.IsInf(f, 0) }

// Range parses From and To. Empty values are returned as zero times.
func (r RunConfig) Range() (from, to time.Time, err error) {
	if r.From != "" {
		if from, err = market.ParseDay(r.From); err != nil {
			return from, to, fmt.Errorf("run.from: %w", err)
		}
	}
	if r.To != "" {
		if to, err = market.ParseDay(r.To); err != nil {
			return from, to, fmt.Errorf("run.to: %w", err)
		}
	}
	if !from.IsZero() && !to.IsZero() && to.Before(from) {
		return from, to, fmt.Errorf("run.to %s is before run.from %s", r.To, r.From)
	}
	return from, to, nil
}

// Backtest converts the file configuration into an engine config.
func (c *Config) Backtest() (backtest.Config, error) {
	from, to, err := c.Run.Range()
	if err != nil {
		return backtest.Config{}, err
	}
	return backtest.Config{
		StartingCapital: decimal.NewFromFloat(c.Account.StartingCapital),
		CashFloor:       decimal.NewFromFloat(c.Account.CashFloor),
		Limits:          c.Risk,
		Symbols:         append([]string(nil), c.Run.Symbols...),
		From:            from,
		To:              to,
	}, nil
}

// FX returns the fixed USDZAR lookup for the report, or nil when disabled.
func (c *Config) FX() *market.FXRates {
	if c.Report.USDZAR <= 0 {
		return nil
	}
	return market.FixedFX(decimal.NewFromFloat(c.Report.USDZAR))
}

// Default returns a configuration with the JSE defaults
func Default() *Config {
	return &Config{
		Account: AccountConfig{
			Currency:        market.Currency,
			StartingCapital: 1_000_000,
		},
		Risk: risk.DefaultLimits(),
		Run: RunConfig{
			Symbols:    []string{"NPN", "SBK", "FSR", "AGL", "MTN"},
			PricesFile: "./prices.csv",
			Strategy:   "buy-once",
		},
		Journal: JournalConfig{
			Type:   "sqlite",
			DBPath: "./jsetrader.db",
		},
		Report: ReportConfig{
			USDZAR: market.DefaultUSDZAR,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}
