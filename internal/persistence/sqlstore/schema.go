package sqlstore

// Schema creates the run and trade tables. Column types are accepted by
// both PostgreSQL and SQLite.
var Schema = []string{
	`CREATE TABLE IF NOT EXISTS backtest_runs (
		run_id TEXT PRIMARY KEY,
		asset TEXT NOT NULL,
		start_time TIMESTAMP NOT NULL,
		end_time TIMESTAMP NOT NULL,
		status TEXT NOT NULL,
		error TEXT NOT NULL DEFAULT '',
		data_gaps INTEGER NOT NULL DEFAULT 0,
		config TEXT NOT NULL,
		total_return DOUBLE PRECISION NOT NULL,
		annualized_return DOUBLE PRECISION NOT NULL,
		benchmark_return DOUBLE PRECISION NOT NULL,
		benchmark_annualized_return DOUBLE PRECISION NOT NULL,
		alpha DOUBLE PRECISION NOT NULL,
		final_equity DOUBLE PRECISION NOT NULL,
		sharpe_ratio DOUBLE PRECISION NOT NULL,
		sortino_ratio DOUBLE PRECISION NOT NULL,
		calmar_ratio DOUBLE PRECISION NOT NULL,
		max_drawdown DOUBLE PRECISION NOT NULL,
		annualized_volatility DOUBLE PRECISION NOT NULL,
		win_ratio DOUBLE PRECISION NOT NULL,
		profit_factor DOUBLE PRECISION NOT NULL,
		gross_profit DOUBLE PRECISION NOT NULL,
		gross_loss DOUBLE PRECISION NOT NULL,
		total_trades INTEGER NOT NULL,
		avg_trade_duration_hours DOUBLE PRECISION NOT NULL,
		no_trades BOOLEAN NOT NULL,
		created_at TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_backtest_runs_asset ON backtest_runs (asset, created_at)`,
	`CREATE TABLE IF NOT EXISTS backtest_trades (
		run_id TEXT NOT NULL REFERENCES backtest_runs (run_id),
		seq INTEGER NOT NULL,
		asset TEXT NOT NULL,
		entry_time TIMESTAMP NOT NULL,
		exit_time TIMESTAMP NOT NULL,
		side TEXT NOT NULL,
		entry_price DOUBLE PRECISION NOT NULL,
		exit_price DOUBLE PRECISION NOT NULL,
		quantity DOUBLE PRECISION NOT NULL,
		entry_fee DOUBLE PRECISION NOT NULL,
		exit_fee DOUBLE PRECISION NOT NULL,
		exit_reason TEXT NOT NULL,
		profit_loss DOUBLE PRECISION NOT NULL,
		profit_loss_percent DOUBLE PRECISION NOT NULL,
		duration_hours DOUBLE PRECISION NOT NULL,
		PRIMARY KEY (run_id, seq)
	)`,
}
