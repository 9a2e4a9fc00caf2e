// Package history stores and serves daily OHLCV bars for the coverage
// universe. Dates are stored as YYYY-MM-DD strings, which sort correctly
// and match the engine's session-date keying.
package history

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/quangtd/vnsentry/internal/domain"
	"github.com/rs/zerolog"
)

// Coverage summarizes the stored history for one symbol.
type Coverage struct {
	Symbol    string `json:"symbol"`
	Bars      int    `json:"bars"`
	FirstDate string `json:"first_date"`
	LastDate  string `json:"last_date"`
}

// BarRepository handles price bars in history.db.
type BarRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewBarRepository creates a bar repository.
func NewBarRepository(db *sql.DB, log zerolog.Logger) *BarRepository {
	return &BarRepository{
		db:  db,
		log: log.With().Str("repo", "bars").Logger(),
	}
}

// UpsertBars inserts or replaces bars for a symbol in one transaction.
func (r *BarRepository) UpsertBars(symbol string, bars []domain.PriceBar) error {
	if len(bars) == 0 {
		return nil
	}

	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() // No-op once Commit succeeds

	stmt, err := tx.Prepare(`
		INSERT OR REPLACE INTO price_bars (symbol, date, open, high, low, close, volume)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, bar := range bars {
		_, err := stmt.Exec(symbol, bar.Date.Format(domain.DateFormat),
			bar.Open, bar.High, bar.Low, bar.Close, bar.Volume)
		if err != nil {
			return fmt.Errorf("failed to insert bar %s %s: %w",
				symbol, bar.Date.Format(domain.DateFormat), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	r.log.Debug().Str("symbol", symbol).Int("count", len(bars)).Msg("Upserted price bars")
	return nil
}

// GetHistory returns the most recent bars for a symbol in ascending date
// order. limit <= 0 returns the full series.
func (r *BarRepository) GetHistory(symbol string, limit int) (*domain.PriceHistory, error) {
	return r.GetHistoryAsOf(symbol, time.Time{}, limit)
}

// GetHistoryAsOf returns the most recent bars dated at or before asOf, in
// ascending order. A zero asOf means no upper bound; limit <= 0 means all.
func (r *BarRepository) GetHistoryAsOf(symbol string, asOf time.Time, limit int) (*domain.PriceHistory, error) {
	symbol = normalizeSymbol(symbol)

	query := "SELECT date, open, high, low, close, volume FROM price_bars WHERE symbol = ?"
	args := []interface{}{symbol}

	if !asOf.IsZero() {
		query += " AND date <= ?"
		args = append(args, asOf.Format(domain.DateFormat))
	}
	query += " ORDER BY date DESC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	bars, err := r.queryBars(symbol, query, args...)
	if err != nil {
		return nil, err
	}

	// Reverse DESC rows into ascending order.
	for i, j := 0, len(bars)-1; i < j; i, j = i+1, j-1 {
		bars[i], bars[j] = bars[j], bars[i]
	}
	return domain.NewPriceHistory(symbol, bars), nil
}

// GetRange returns bars with from <= date <= to in ascending order.
func (r *BarRepository) GetRange(symbol string, from, to time.Time) (*domain.PriceHistory, error) {
	symbol = normalizeSymbol(symbol)

	bars, err := r.queryBars(symbol, `
		SELECT date, open, high, low, close, volume FROM price_bars
		WHERE symbol = ? AND date >= ? AND date <= ?
		ORDER BY date ASC`,
		symbol, from.Format(domain.DateFormat), to.Format(domain.DateFormat))
	if err != nil {
		return nil, err
	}
	return domain.NewPriceHistory(symbol, bars), nil
}

// LatestDate returns the newest stored session date for a symbol, nil when
// the symbol has no bars.
func (r *BarRepository) LatestDate(symbol string) (*time.Time, error) {
	var raw sql.NullString
	err := r.db.QueryRow(
		"SELECT MAX(date) FROM price_bars WHERE symbol = ?",
		normalizeSymbol(symbol)).Scan(&raw)
	if err != nil {
		return nil, fmt.Errorf("failed to query latest date for %s: %w", symbol, err)
	}
	if !raw.Valid || raw.String == "" {
		return nil, nil
	}

	t, err := time.Parse(domain.DateFormat, raw.String)
	if err != nil {
		return nil, fmt.Errorf("failed to parse latest date %q: %w", raw.String, err)
	}
	return &t, nil
}

// Symbols returns the distinct symbols with stored bars.
func (r *BarRepository) Symbols() ([]string, error) {
	rows, err := r.db.Query("SELECT DISTINCT symbol FROM price_bars ORDER BY symbol")
	if err != nil {
		return nil, fmt.Errorf("failed to query symbols: %w", err)
	}
	defer rows.Close()

	var symbols []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, fmt.Errorf("failed to scan symbol: %w", err)
		}
		symbols = append(symbols, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating symbols: %w", err)
	}
	return symbols, nil
}

// GetCoverage summarizes stored history per symbol.
func (r *BarRepository) GetCoverage() ([]Coverage, error) {
	rows, err := r.db.Query(`
		SELECT symbol, COUNT(*), MIN(date), MAX(date)
		FROM price_bars GROUP BY symbol ORDER BY symbol`)
	if err != nil {
		return nil, fmt.Errorf("failed to query coverage: %w", err)
	}
	defer rows.Close()

	var coverage []Coverage
	for rows.Next() {
		var c Coverage
		if err := rows.Scan(&c.Symbol, &c.Bars, &c.FirstDate, &c.LastDate); err != nil {
			return nil, fmt.Errorf("failed to scan coverage: %w", err)
		}
		coverage = append(coverage, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating coverage: %w", err)
	}
	return coverage, nil
}

// DeleteBefore removes bars older than the cutoff date. Used by the
// maintenance job to bound database growth.
func (r *BarRepository) DeleteBefore(cutoff time.Time) (int64, error) {
	result, err := r.db.Exec("DELETE FROM price_bars WHERE date < ?", cutoff.Format(domain.DateFormat))
	if err != nil {
		return 0, fmt.Errorf("failed to delete old bars: %w", err)
	}

	deleted, _ := result.RowsAffected()
	if deleted > 0 {
		r.log.Info().Int64("rows_deleted", deleted).
			Str("older_than", cutoff.Format(domain.DateFormat)).
			Msg("Deleted old price bars")
	}
	return deleted, nil
}

func (r *BarRepository) queryBars(symbol, query string, args ...interface{}) ([]domain.PriceBar, error) {
	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query bars for %s: %w", symbol, err)
	}
	defer rows.Close()

	var bars []domain.PriceBar
	for rows.Next() {
		var bar domain.PriceBar
		var date string
		if err := rows.Scan(&date, &bar.Open, &bar.High, &bar.Low, &bar.Close, &bar.Volume); err != nil {
			return nil, fmt.Errorf("failed to scan bar for %s: %w", symbol, err)
		}
		bar.Symbol = symbol
		bar.Date, err = time.Parse(domain.DateFormat, date)
		if err != nil {
			return nil, fmt.Errorf("failed to parse bar date %q: %w", date, err)
		}
		bars = append(bars, bar)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating bars for %s: %w", symbol, err)
	}
	return bars, nil
}

func normalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}
