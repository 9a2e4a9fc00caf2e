package alerts

import "database/sql"

const schema = `
CREATE TABLE IF NOT EXISTS alerts (
    id TEXT PRIMARY KEY,
    symbol TEXT NOT NULL,
    type TEXT NOT NULL,
    severity TEXT NOT NULL,
    message TEXT NOT NULL,
    created_at TEXT NOT NULL,
    expires_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_alerts_expires ON alerts(expires_at);
CREATE INDEX IF NOT EXISTS idx_alerts_symbol_type ON alerts(symbol, type);
`

// InitSchema creates the alert tables in alerts.db.
func InitSchema(db *sql.DB) error {
	_, err := db.Exec(schema)
	return err
}
