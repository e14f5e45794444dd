package journal

// Money columns are TEXT holding exact decimal strings; dates are
// YYYY-MM-DD.
const Schema = `
CREATE TABLE IF NOT EXISTS runs (
	run_id TEXT PRIMARY KEY,
	created TEXT NOT NULL,
	strategy TEXT NOT NULL,
	start_date TEXT NOT NULL,
	end_date TEXT NOT NULL,
	symbols TEXT NOT NULL,
	max_position_fraction REAL NOT NULL,
	max_sector_fraction REAL NOT NULL,
	stop_loss_fraction REAL NOT NULL,
	max_daily_drawdown_fraction REAL NOT NULL,
	starting_capital TEXT NOT NULL,
	final_equity TEXT NOT NULL,
	net_pnl TEXT NOT NULL,
	realized_pnl TEXT NOT NULL,
	total_return TEXT NOT NULL,
	max_drawdown TEXT NOT NULL,
	volatility REAL NOT NULL,
	sharpe REAL NOT NULL,
	days INTEGER NOT NULL,
	trades INTEGER NOT NULL,
	filled INTEGER NOT NULL,
	clipped INTEGER NOT NULL,
	rejected INTEGER NOT NULL,
	forced INTEGER NOT NULL,
	breaker_days INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS trades (
	run_id TEXT NOT NULL REFERENCES runs(run_id),
	seq INTEGER NOT NULL,
	date TEXT NOT NULL,
	symbol TEXT NOT NULL,
	action TEXT NOT NULL,
	source TEXT NOT NULL,
	requested INTEGER NOT NULL,
	quantity INTEGER NOT NULL,
	price TEXT NOT NULL,
	outcome TEXT NOT NULL,
	triggered_limits TEXT NOT NULL,
	notes TEXT NOT NULL,
	realized_pnl TEXT NOT NULL,
	settlement_date TEXT NOT NULL,
	reason TEXT NOT NULL,
	PRIMARY KEY (run_id, seq)
);

CREATE TABLE IF NOT EXISTS snapshots (
	run_id TEXT NOT NULL REFERENCES runs(run_id),
	date TEXT NOT NULL,
	equity TEXT NOT NULL,
	cash TEXT NOT NULL,
	peak_equity TEXT NOT NULL,
	triggered_limits TEXT NOT NULL,
	data TEXT NOT NULL,
	PRIMARY KEY (run_id, date)
);

CREATE INDEX IF NOT EXISTS idx_trades_symbol ON trades(run_id, symbol);
`
