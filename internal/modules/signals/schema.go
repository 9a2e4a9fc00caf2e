package signals

import "database/sql"

const schema = `
CREATE TABLE IF NOT EXISTS signals (
    symbol TEXT NOT NULL,
    date TEXT NOT NULL,
    sector TEXT NOT NULL DEFAULT '',
    composite_score REAL NOT NULL,
    classification TEXT NOT NULL,
    entry_price REAL NOT NULL DEFAULT 0,
    stop_price REAL NOT NULL DEFAULT 0,
    target_price REAL NOT NULL DEFAULT 0,
    confidence REAL NOT NULL DEFAULT 0,
    partial INTEGER NOT NULL DEFAULT 0,
    volume_score REAL NOT NULL DEFAULT 0,
    price_action_score REAL NOT NULL DEFAULT 0,
    momentum_score REAL NOT NULL DEFAULT 0,
    accumulation_score REAL NOT NULL DEFAULT 0,
    context_multiplier REAL NOT NULL DEFAULT 1,
    created_at TEXT NOT NULL,
    PRIMARY KEY (symbol, date)
);

CREATE INDEX IF NOT EXISTS idx_signals_date ON signals(date);
CREATE INDEX IF NOT EXISTS idx_signals_classification ON signals(classification);
`

// InitSchema creates the signal tables in signals.db.
func InitSchema(db *sql.DB) error {
	_, err := db.Exec(schema)
	return err
}
