package journal

const Schema = `
CREATE TABLE IF NOT EXISTS trades (
	trade_id TEXT PRIMARY KEY,
	symbol TEXT NOT NULL,
	side TEXT NOT NULL,
	quantity REAL NOT NULL,
	entry_price REAL NOT NULL,
	exit_price REAL NOT NULL,
	pnl REAL NOT NULL,
	pnl_percent REAL NOT NULL,
	entry_time DATETIME NOT NULL,
	exit_time DATETIME NOT NULL,
	exit_reason TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_trades_exit_time ON trades(exit_time);
CREATE INDEX IF NOT EXISTS idx_trades_symbol ON trades(symbol);

CREATE TABLE IF NOT EXISTS equity (
	time DATETIME NOT NULL,
	balance REAL NOT NULL,
	equity REAL NOT NULL,
	unrealized_pnl REAL NOT NULL,
	open_positions INTEGER NOT NULL,
	total_risk REAL NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_equity_time ON equity(time);

CREATE TABLE IF NOT EXISTS backtest_runs (
	run_id TEXT PRIMARY KEY,
	created DATETIME NOT NULL,
	symbol TEXT NOT NULL,
	days INTEGER NOT NULL,
	config BLOB,
	start_time DATETIME NOT NULL,
	end_time DATETIME NOT NULL,
	start_balance REAL NOT NULL,
	end_balance REAL NOT NULL,
	trades INTEGER NOT NULL,
	wins INTEGER NOT NULL,
	losses INTEGER NOT NULL,
	win_rate REAL NOT NULL,
	net_pnl REAL NOT NULL,
	roi REAL NOT NULL,
	max_drawdown REAL NOT NULL,
	profit_factor REAL NOT NULL,
	sharpe_ratio REAL NOT NULL
);
`
