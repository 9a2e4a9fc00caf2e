package alerts

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

const alertColumns = `id, symbol, type, severity, message, created_at, expires_at`

// Repository stores alerts in alerts.db.
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates an alert repository.
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "alerts").Logger(),
	}
}

// Save inserts one alert.
func (r *Repository) Save(alert *Alert) error {
	_, err := r.db.Exec(`INSERT INTO alerts (`+alertColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		alert.ID,
		alert.Symbol,
		string(alert.Type),
		string(alert.Severity),
		alert.Message,
		alert.CreatedAt.UTC().Format(time.RFC3339),
		alert.ExpiresAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to save alert for %s: %w", alert.Symbol, err)
	}
	return nil
}

// Active returns unexpired alerts, newest first.
func (r *Repository) Active(now time.Time) ([]Alert, error) {
	rows, err := r.db.Query(
		`SELECT `+alertColumns+` FROM alerts WHERE expires_at > ?
		ORDER BY created_at DESC, id`,
		now.UTC().Format(time.RFC3339))
	if err != nil {
		return nil, fmt.Errorf("failed to query active alerts: %w", err)
	}
	defer rows.Close()

	var out []Alert
	for rows.Next() {
		alert, err := scanAlert(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan alert: %w", err)
		}
		out = append(out, alert)
	}
	return out, rows.Err()
}

// HasUnexpired reports whether an unexpired alert exists for the
// (symbol, type) pair. This is the dedup check.
func (r *Repository) HasUnexpired(symbol string, alertType Type, now time.Time) (bool, error) {
	var count int
	err := r.db.QueryRow(
		`SELECT COUNT(*) FROM alerts WHERE symbol = ? AND type = ? AND expires_at > ?`,
		symbol, string(alertType), now.UTC().Format(time.RFC3339)).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check alert cooldown: %w", err)
	}
	return count > 0, nil
}

// PurgeExpired removes alerts past their expiry and returns the number
// deleted.
func (r *Repository) PurgeExpired(now time.Time) (int64, error) {
	res, err := r.db.Exec(`DELETE FROM alerts WHERE expires_at <= ?`,
		now.UTC().Format(time.RFC3339))
	if err != nil {
		return 0, fmt.Errorf("failed to purge expired alerts: %w", err)
	}
	deleted, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count purged alerts: %w", err)
	}
	if deleted > 0 {
		r.log.Info().Int64("deleted", deleted).Msg("Expired alerts purged")
	}
	return deleted, nil
}

func scanAlert(rows *sql.Rows) (Alert, error) {
	var alert Alert
	var alertType, severity, createdAt, expiresAt string

	err := rows.Scan(
		&alert.ID,
		&alert.Symbol,
		&alertType,
		&severity,
		&alert.Message,
		&createdAt,
		&expiresAt,
	)
	if err != nil {
		return alert, err
	}

	alert.Type = Type(alertType)
	alert.Severity = Severity(severity)
	if alert.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return alert, fmt.Errorf("failed to parse created_at %q: %w", createdAt, err)
	}
	if alert.ExpiresAt, err = time.Parse(time.RFC3339, expiresAt); err != nil {
		return alert, fmt.Errorf("failed to parse expires_at %q: %w", expiresAt, err)
	}
	return alert, nil
}
