package portfolio

import (
	"database/sql"
	"fmt"
)

// Schema for portfolio.db. Positions hold the live book, cash is a
// single-row balance, snapshots carry the serialized end-of-day state.
const schema = `
CREATE TABLE IF NOT EXISTS positions (
    symbol        TEXT PRIMARY KEY,
    sector        TEXT NOT NULL DEFAULT '',
    quantity      INTEGER NOT NULL,
    entry_price   REAL NOT NULL,
    stop_price    REAL NOT NULL DEFAULT 0,
    risk_amount   REAL NOT NULL DEFAULT 0,
    entry_date    TEXT NOT NULL,
    entry_score   REAL NOT NULL DEFAULT 0,
    current_price REAL NOT NULL DEFAULT 0,
    last_updated  TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS cash (
    id         INTEGER PRIMARY KEY CHECK (id = 1),
    balance    REAL NOT NULL,
    updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS snapshots (
    date       TEXT PRIMARY KEY,
    data       BLOB NOT NULL,
    created_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_positions_sector ON positions(sector);
`

// InitSchema creates the portfolio tables if they do not exist.
func InitSchema(db *sql.DB) error {
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("failed to initialize portfolio schema: %w", err)
	}
	return nil
}
