package backtest

import "database/sql"

const schema = `
CREATE TABLE IF NOT EXISTS backtest_runs (
    id TEXT PRIMARY KEY,
    created_at TEXT NOT NULL,
    start_date TEXT NOT NULL,
    end_date TEXT NOT NULL,
    initial_capital REAL NOT NULL,
    final_equity REAL NOT NULL,
    total_return REAL NOT NULL,
    trades INTEGER NOT NULL,
    wins INTEGER NOT NULL,
    win_rate REAL NOT NULL,
    avg_return REAL NOT NULL,
    max_drawdown REAL NOT NULL,
    sharpe_ratio REAL,
    avg_holding_days REAL NOT NULL,
    data_gaps INTEGER NOT NULL,
    rejections INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS backtest_trades (
    id TEXT PRIMARY KEY,
    run_id TEXT NOT NULL,
    symbol TEXT NOT NULL,
    sector TEXT NOT NULL DEFAULT '',
    quantity INTEGER NOT NULL,
    entry_date TEXT NOT NULL,
    entry_price REAL NOT NULL,
    exit_date TEXT NOT NULL,
    exit_price REAL NOT NULL,
    exit_reason TEXT NOT NULL,
    cost REAL NOT NULL,
    pnl REAL NOT NULL,
    trade_return REAL NOT NULL,
    holding_days INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_backtest_trades_run ON backtest_trades(run_id);
CREATE INDEX IF NOT EXISTS idx_backtest_runs_created ON backtest_runs(created_at);
`

// InitSchema creates the backtest tables in backtest.db.
func InitSchema(db *sql.DB) error {
	_, err := db.Exec(schema)
	return err
}
