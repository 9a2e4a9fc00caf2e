// Package universe maintains the coverage universe: which HOSE securities the
// engine analyzes, their sector membership and the qualitative facts feeding
// the context adjuster.
package universe

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/quangtd/vnsentry/internal/domain"
	"github.com/rs/zerolog"
)

const securityColumns = `symbol, name, sector, exchange, lot_size, active, added_at, updated_at`

// SecurityRepository handles security rows in universe.db.
type SecurityRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewSecurityRepository creates a security repository.
func NewSecurityRepository(db *sql.DB, log zerolog.Logger) *SecurityRepository {
	return &SecurityRepository{
		db:  db,
		log: log.With().Str("repo", "security").Logger(),
	}
}

// GetBySymbol returns a security by symbol, nil when not found.
func (r *SecurityRepository) GetBySymbol(symbol string) (*Security, error) {
	query := "SELECT " + securityColumns + " FROM securities WHERE symbol = ?"

	rows, err := r.db.Query(query, NormalizeSymbol(symbol))
	if err != nil {
		return nil, fmt.Errorf("failed to query security by symbol: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}

	sec, err := scanSecurity(rows)
	if err != nil {
		return nil, fmt.Errorf("failed to scan security: %w", err)
	}
	return &sec, nil
}

// GetAllActive returns all active securities ordered by symbol.
func (r *SecurityRepository) GetAllActive() ([]Security, error) {
	query := "SELECT " + securityColumns + " FROM securities WHERE active = 1 ORDER BY symbol"
	return r.querySecurities(query)
}

// GetAll returns every security, active or not, ordered by symbol.
func (r *SecurityRepository) GetAll() ([]Security, error) {
	query := "SELECT " + securityColumns + " FROM securities ORDER BY symbol"
	return r.querySecurities(query)
}

// GetBySector returns active securities in a sector ordered by symbol.
func (r *SecurityRepository) GetBySector(sector string) ([]Security, error) {
	query := "SELECT " + securityColumns + " FROM securities WHERE active = 1 AND sector = ? ORDER BY symbol"
	return r.querySecurities(query, strings.ToLower(strings.TrimSpace(sector)))
}

// Sectors returns the distinct sectors of active securities.
func (r *SecurityRepository) Sectors() ([]string, error) {
	rows, err := r.db.Query("SELECT DISTINCT sector FROM securities WHERE active = 1 ORDER BY sector")
	if err != nil {
		return nil, fmt.Errorf("failed to query sectors: %w", err)
	}
	defer rows.Close()

	var sectors []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, fmt.Errorf("failed to scan sector: %w", err)
		}
		sectors = append(sectors, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sectors: %w", err)
	}
	return sectors, nil
}

// Upsert inserts or updates a security. Reports whether the row was new.
func (r *SecurityRepository) Upsert(sec Security) (bool, error) {
	now := time.Now().UTC().Format(time.RFC3339)

	existing, err := r.GetBySymbol(sec.Symbol)
	if err != nil {
		return false, err
	}

	if existing == nil {
		_, err := r.db.Exec(`
			INSERT INTO securities (symbol, name, sector, exchange, lot_size, active, added_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			sec.Symbol, sec.Name, sec.Sector, sec.Exchange, sec.LotSize, boolToInt(sec.Active), now, now)
		if err != nil {
			return false, fmt.Errorf("failed to insert security %s: %w", sec.Symbol, err)
		}
		return true, nil
	}

	_, err = r.db.Exec(`
		UPDATE securities SET name = ?, sector = ?, exchange = ?, lot_size = ?, active = ?, updated_at = ?
		WHERE symbol = ?`,
		sec.Name, sec.Sector, sec.Exchange, sec.LotSize, boolToInt(sec.Active), now, sec.Symbol)
	if err != nil {
		return false, fmt.Errorf("failed to update security %s: %w", sec.Symbol, err)
	}
	return false, nil
}

// Deactivate marks a security inactive without deleting its history.
func (r *SecurityRepository) Deactivate(symbol string) error {
	now := time.Now().UTC().Format(time.RFC3339)
	result, err := r.db.Exec(
		"UPDATE securities SET active = 0, updated_at = ? WHERE symbol = ?",
		now, NormalizeSymbol(symbol))
	if err != nil {
		return fmt.Errorf("failed to deactivate security %s: %w", symbol, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check deactivation of %s: %w", symbol, err)
	}
	if affected == 0 {
		return fmt.Errorf("security %s not found", symbol)
	}
	return nil
}

// Count returns the number of active securities.
func (r *SecurityRepository) Count() (int, error) {
	var n int
	if err := r.db.QueryRow("SELECT COUNT(*) FROM securities WHERE active = 1").Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count securities: %w", err)
	}
	return n, nil
}

func (r *SecurityRepository) querySecurities(query string, args ...interface{}) ([]Security, error) {
	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query securities: %w", err)
	}
	defer rows.Close()

	var securities []Security
	for rows.Next() {
		sec, err := scanSecurity(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan security: %w", err)
		}
		securities = append(securities, sec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating securities: %w", err)
	}
	return securities, nil
}

func scanSecurity(rows *sql.Rows) (Security, error) {
	var sec Security
	var active int
	var addedAt, updatedAt string

	if err := rows.Scan(&sec.Symbol, &sec.Name, &sec.Sector, &sec.Exchange,
		&sec.LotSize, &active, &addedAt, &updatedAt); err != nil {
		return Security{}, err
	}

	sec.Active = active != 0
	sec.AddedAt = parseTimestamp(addedAt)
	sec.UpdatedAt = parseTimestamp(updatedAt)
	return sec, nil
}

// NormalizeSymbol upper-cases and trims a ticker.
func NormalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

func parseTimestamp(s string) time.Time {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t
	}
	if t, err := time.Parse(domain.DateFormat, s); err == nil {
		return t
	}
	return time.Time{}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
