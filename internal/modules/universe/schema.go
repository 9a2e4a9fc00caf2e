package universe

import "database/sql"

// Schema for universe.db: the securities table and per-symbol facts.
const Schema = `
CREATE TABLE IF NOT EXISTS securities (
    symbol TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    sector TEXT NOT NULL,
    exchange TEXT NOT NULL DEFAULT 'HOSE',
    lot_size INTEGER NOT NULL DEFAULT 100,
    active INTEGER NOT NULL DEFAULT 1,
    added_at TEXT NOT NULL,
    updated_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_securities_sector ON securities(sector);
CREATE INDEX IF NOT EXISTS idx_securities_active ON securities(active);

CREATE TABLE IF NOT EXISTS security_facts (
    symbol TEXT PRIMARY KEY REFERENCES securities(symbol) ON DELETE CASCADE,
    is_banking_leader INTEGER NOT NULL DEFAULT 0,
    is_state_owned INTEGER NOT NULL DEFAULT 0,
    has_foreign_interest INTEGER NOT NULL DEFAULT 0,
    near_foreign_limit INTEGER NOT NULL DEFAULT 0,
    ex_dividend_date TEXT,
    updated_at TEXT NOT NULL
);
`

// InitSchema ensures the universe tables exist.
func InitSchema(db *sql.DB) error {
	_, err := db.Exec(Schema)
	return err
}
